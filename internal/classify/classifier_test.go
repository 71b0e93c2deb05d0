package classify_test

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-phunks/phunk-indexer/internal/classify"
	"github.com/ethereum-phunks/phunk-indexer/internal/domain"
)

func TestClassifier_Classify(t *testing.T) {
	c := classify.NewClassifier()

	recipient := "0x1111111111111111111111111111111111111111"

	tests := []struct {
		name         string
		input        []byte
		from         string
		validateFunc func(t *testing.T, result domain.Classification)
	}{
		{
			name:  "plain text data URI is a creation",
			input: []byte("data:,hello phunks"),
			from:  "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B",
			validateFunc: func(t *testing.T, result domain.Classification) {
				creation, ok := result.(domain.Creation)
				require.True(t, ok, "expected a creation, got %T", result)

				expectedHash := crypto.Keccak256Hash([]byte("data:,hello phunks")).Hex()
				assert.Equal(t, expectedHash, creation.HashID)
				assert.Equal(t, []byte("hello phunks"), creation.Content)
				assert.Equal(t, "0xab5801a7d398351b8be11c439e05c5b3259aec9b", creation.Creator)
				assert.Len(t, creation.Sha, 64)
			},
		},
		{
			name:  "mime type is taken from the URI",
			input: []byte("data:image/png;base64,iVBORw0KGgo="),
			validateFunc: func(t *testing.T, result domain.Classification) {
				creation, ok := result.(domain.Creation)
				require.True(t, ok)
				assert.Equal(t, "image/png", creation.ContentType)
			},
		},
		{
			name:  "base64 payload is decoded",
			input: []byte("data:text/plain;base64,aGVsbG8="),
			validateFunc: func(t *testing.T, result domain.Classification) {
				creation, ok := result.(domain.Creation)
				require.True(t, ok)
				assert.Equal(t, []byte("hello"), creation.Content)
			},
		},
		{
			name:  "percent-encoded payload is decoded",
			input: []byte("data:,hello%20world"),
			validateFunc: func(t *testing.T, result domain.Classification) {
				creation, ok := result.(domain.Creation)
				require.True(t, ok)
				assert.Equal(t, []byte("hello world"), creation.Content)
			},
		},
		{
			name:  "hash id covers the full calldata, not the payload",
			input: []byte("data:text/plain,same"),
			validateFunc: func(t *testing.T, result domain.Classification) {
				creation, ok := result.(domain.Creation)
				require.True(t, ok)
				other := crypto.Keccak256Hash([]byte("data:,same")).Hex()
				assert.NotEqual(t, other, creation.HashID)
			},
		},
		{
			name:  "32-byte calldata is a transfer candidate",
			input: crypto.Keccak256([]byte("some ethscription")),
			validateFunc: func(t *testing.T, result domain.Classification) {
				candidate, ok := result.(domain.TransferCandidate)
				require.True(t, ok, "expected a transfer candidate, got %T", result)
				assert.Equal(t, crypto.Keccak256Hash([]byte("some ethscription")).Hex(), candidate.HashID)
			},
		},
		{
			name:  "empty calldata is not applicable",
			input: nil,
			validateFunc: func(t *testing.T, result domain.Classification) {
				_, ok := result.(domain.NotApplicable)
				assert.True(t, ok)
			},
		},
		{
			name:  "non-UTF-8 calldata is not applicable",
			input: []byte{0xff, 0xfe, 0xfd, 0x00, 0x01},
			validateFunc: func(t *testing.T, result domain.Classification) {
				_, ok := result.(domain.NotApplicable)
				assert.True(t, ok)
			},
		},
		{
			name:  "arbitrary text is not applicable",
			input: []byte("0x095ea7b3 approve calldata"),
			validateFunc: func(t *testing.T, result domain.Classification) {
				_, ok := result.(domain.NotApplicable)
				assert.True(t, ok)
			},
		},
		{
			name:  "data URI without comma is not applicable",
			input: []byte("data:image/png;base64"),
			validateFunc: func(t *testing.T, result domain.Classification) {
				_, ok := result.(domain.NotApplicable)
				assert.True(t, ok)
			},
		},
		{
			name:  "data URI with invalid base64 is not applicable",
			input: []byte("data:text/plain;base64,!!notbase64!!"),
			validateFunc: func(t *testing.T, result domain.Classification) {
				_, ok := result.(domain.NotApplicable)
				assert.True(t, ok)
			},
		},
		{
			name:  "data URI with empty payload is not applicable",
			input: []byte("data:,"),
			validateFunc: func(t *testing.T, result domain.Classification) {
				_, ok := result.(domain.NotApplicable)
				assert.True(t, ok)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := c.Classify(domain.TransactionPayload{
				Hash:  "0xtx",
				From:  tt.from,
				To:    &recipient,
				Input: tt.input,
			})
			tt.validateFunc(t, result)
		})
	}
}

func TestClassifier_ClassifyIsDeterministic(t *testing.T) {
	c := classify.NewClassifier()
	tx := domain.TransactionPayload{
		From:  "0x1111111111111111111111111111111111111111",
		Input: []byte("data:,determinism check"),
	}

	first, ok := c.Classify(tx).(domain.Creation)
	require.True(t, ok)
	second, ok := c.Classify(tx).(domain.Creation)
	require.True(t, ok)

	assert.Equal(t, first.HashID, second.HashID)
	assert.Equal(t, first.Sha, second.Sha)
}

func TestClassifier_ShaCoversDecodedContent(t *testing.T) {
	c := classify.NewClassifier()
	from := "0x1111111111111111111111111111111111111111"

	// The same content inscribed with different URI encodings must resolve to
	// one media hash, or the sha -> phunk number mapping cannot match it
	plain, ok := c.Classify(domain.TransactionPayload{From: from, Input: []byte("data:text/plain,hello")}).(domain.Creation)
	require.True(t, ok)
	encoded, ok := c.Classify(domain.TransactionPayload{From: from, Input: []byte("data:text/plain;base64,aGVsbG8=")}).(domain.Creation)
	require.True(t, ok)

	assert.Equal(t, plain.Sha, encoded.Sha)
	// Identity still covers the raw calldata, so the two remain distinct
	assert.NotEqual(t, plain.HashID, encoded.HashID)

	expected := sha256.Sum256([]byte("hello"))
	assert.Equal(t, hex.EncodeToString(expected[:]), plain.Sha)
}

func TestParseDataURI(t *testing.T) {
	tests := []struct {
		name        string
		uri         string
		expectedErr bool
		mimeType    string
		base64      bool
		data        string
	}{
		{name: "bare", uri: "data:,abc", data: "abc"},
		{name: "with mime type", uri: "data:text/html,<b>x</b>", mimeType: "text/html", data: "<b>x</b>"},
		{name: "base64", uri: "data:application/json;base64,e30=", mimeType: "application/json", base64: true, data: "{}"},
		{name: "mime type is lower-cased", uri: "data:TEXT/PLAIN,x", mimeType: "text/plain", data: "x"},
		{name: "payload may contain commas", uri: "data:,a,b,c", data: "a,b,c"},
		{name: "missing prefix", uri: "text/plain,abc", expectedErr: true},
		{name: "missing comma", uri: "data:text/plain", expectedErr: true},
		{name: "empty payload", uri: "data:,", expectedErr: true},
		{name: "bad base64", uri: "data:;base64,???", expectedErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := classify.ParseDataURI(tt.uri)
			if tt.expectedErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.mimeType, parsed.MimeType)
			assert.Equal(t, tt.base64, parsed.Base64)
			assert.Equal(t, tt.data, string(parsed.Data))
		})
	}
}
