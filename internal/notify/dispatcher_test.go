package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-phunks/phunk-indexer/internal/adapter"
	"github.com/ethereum-phunks/phunk-indexer/internal/domain"
	"github.com/ethereum-phunks/phunk-indexer/internal/mocks"
	"github.com/ethereum-phunks/phunk-indexer/internal/notify"
)

func transferEvent() *domain.Event {
	return &domain.Event{
		Type:           domain.EventTypeTransfer,
		HashID:         "0x2817fd9cf901e4435253881550731a5edc5e519c19de46b08e2b19a18e95143e",
		From:           "0x00000000000000000000000000000000000000a1",
		To:             "0x00000000000000000000000000000000000000b2",
		TxHash:         "0xaaaa",
		BlockNumber:    100,
		TxIndex:        3,
		BlockTimestamp: time.Unix(1700000000, 0),
	}
}

func TestDispatcher_Dispatch(t *testing.T) {
	var mu sync.Mutex
	var bodies [][]byte

	client := &mocks.FakeHTTPClient{
		PostFn: func(ctx context.Context, url string, contentType string, body io.Reader) ([]byte, error) {
			data, err := io.ReadAll(body)
			require.NoError(t, err)
			mu.Lock()
			bodies = append(bodies, data)
			mu.Unlock()
			assert.Equal(t, "application/json", contentType)
			assert.Equal(t, "https://chat.example.com/hook", url)
			return nil, nil
		},
	}

	d := notify.NewDispatcher(client, adapter.NewJSON(), notify.Config{
		WebhookURL: "https://chat.example.com/hook",
		MaxRetries: 2,
	})

	phunkID := uint64(842)
	d.Dispatch(context.Background(), domain.ChainEthereumMainnet, transferEvent(), &phunkID)
	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)

	var n notify.Notification
	require.NoError(t, json.Unmarshal(bodies[0], &n))
	assert.NotEmpty(t, n.DeliveryID)
	assert.Equal(t, "eip155:1", n.Chain)
	assert.Equal(t, "transfer", n.EventType)
	assert.Contains(t, n.Text, "Phunk #842")
	assert.Contains(t, n.Text, "transferred")
	require.NotNil(t, n.PhunkID)
	assert.Equal(t, uint64(842), *n.PhunkID)
}

func TestDispatcher_RetriesThenDrops(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	client := &mocks.FakeHTTPClient{
		PostFn: func(ctx context.Context, url string, contentType string, body io.Reader) ([]byte, error) {
			mu.Lock()
			attempts++
			mu.Unlock()
			return nil, assert.AnError
		},
	}

	d := notify.NewDispatcher(client, adapter.NewJSON(), notify.Config{
		WebhookURL:    "https://chat.example.com/hook",
		MaxRetries:    2,
		RetryInterval: time.Millisecond,
	})

	d.Dispatch(context.Background(), domain.ChainEthereumMainnet, transferEvent(), nil)
	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	// Initial attempt plus two retries, then the notification is dropped
	assert.Equal(t, 3, attempts)
}

func TestDispatcher_DisabledWithoutURL(t *testing.T) {
	client := &mocks.FakeHTTPClient{}

	d := notify.NewDispatcher(client, adapter.NewJSON(), notify.Config{})
	d.Dispatch(context.Background(), domain.ChainEthereumMainnet, transferEvent(), nil)
	d.Stop()

	assert.Empty(t, client.PostCalls)
}
