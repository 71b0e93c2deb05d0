package classify

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gabriel-vasile/mimetype"

	"github.com/ethereum-phunks/phunk-indexer/internal/domain"
)

const dataURIPrefix = "data:"

// Classifier decides whether a transaction's calldata originates an
// ethscription, signals a calldata transfer, or is neither
type Classifier interface {
	// Classify inspects one transaction's input payload
	Classify(tx domain.TransactionPayload) domain.Classification
}

type classifier struct{}

// NewClassifier creates a new transaction classifier
func NewClassifier() Classifier {
	return &classifier{}
}

// Classify returns exactly one of Creation, TransferCandidate or NotApplicable.
// Malformed payloads are never errors; they classify as NotApplicable.
func (c *classifier) Classify(tx domain.TransactionPayload) domain.Classification {
	input := tx.Input

	if len(input) == 0 {
		return domain.NotApplicable{Reason: "empty calldata"}
	}

	// A bare 32-byte payload is a transfer of the ethscription it names to
	// the transaction recipient
	if len(input) == common.HashLength {
		return domain.TransferCandidate{
			HashID: common.BytesToHash(input).Hex(),
		}
	}

	if !utf8.Valid(input) {
		return domain.NotApplicable{Reason: "calldata is not valid UTF-8"}
	}

	uri := string(input)
	if !strings.HasPrefix(uri, dataURIPrefix) {
		return domain.NotApplicable{Reason: "calldata is not a data URI"}
	}

	parsed, err := ParseDataURI(uri)
	if err != nil {
		return domain.NotApplicable{Reason: fmt.Sprintf("malformed data URI: %v", err)}
	}

	// Identity is the keccak-256 digest of the raw calldata bytes; the media
	// hash is the sha-256 digest of the decoded content, so the same payload
	// resolves to one collection sequence regardless of URI encoding
	hashID := crypto.Keccak256Hash(input).Hex()
	sum := sha256.Sum256(parsed.Data)

	contentType := parsed.MimeType
	if detected := mimetype.Detect(parsed.Data); detected != nil && contentType == "" {
		contentType = detected.String()
	}

	return domain.Creation{
		HashID:      hashID,
		Content:     parsed.Data,
		ContentType: contentType,
		Sha:         hex.EncodeToString(sum[:]),
		Creator:     domain.NormalizeAddress(tx.From),
	}
}

// DataURI is a parsed RFC 2397 data URI
type DataURI struct {
	MimeType string
	Base64   bool
	Data     []byte
}

// ParseDataURI parses a data URI into its mime type and decoded payload
func ParseDataURI(uri string) (*DataURI, error) {
	if !strings.HasPrefix(uri, dataURIPrefix) {
		return nil, fmt.Errorf("missing %q prefix", dataURIPrefix)
	}

	rest := uri[len(dataURIPrefix):]
	comma := strings.Index(rest, ",")
	if comma < 0 {
		return nil, fmt.Errorf("missing comma separator")
	}

	meta := rest[:comma]
	payload := rest[comma+1:]

	parsed := &DataURI{}
	for i, part := range strings.Split(meta, ";") {
		switch {
		case part == "base64":
			parsed.Base64 = true
		case i == 0:
			parsed.MimeType = strings.ToLower(strings.TrimSpace(part))
		}
	}

	if parsed.Base64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 payload: %w", err)
		}
		parsed.Data = data
	} else {
		data, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("invalid percent-encoded payload: %w", err)
		}
		parsed.Data = []byte(data)
	}

	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	return parsed, nil
}
