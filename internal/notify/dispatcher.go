package notify

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ethereum-phunks/phunk-indexer/internal/adapter"
	"github.com/ethereum-phunks/phunk-indexer/internal/domain"
	"github.com/ethereum-phunks/phunk-indexer/internal/logger"
)

// Config holds the configuration for the notification dispatcher
type Config struct {
	WebhookURL string
	MaxRetries uint64
	// RetryInterval is the initial backoff between delivery attempts
	RetryInterval time.Duration
	PoolSize      int
	QueueSize     int
}

// Notification is the chat webhook payload for one committed event
type Notification struct {
	DeliveryID string    `json:"deliveryId"`
	Chain      string    `json:"chain"`
	EventType  string    `json:"eventType"`
	Text       string    `json:"text"`
	HashID     string    `json:"hashId"`
	PhunkID    *uint64   `json:"phunkId,omitempty"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	TxHash     string    `json:"txHash"`
	Timestamp  time.Time `json:"timestamp"`
}

// Dispatcher fans committed events out to a chat webhook. Delivery is best
// effort: failures are logged and dropped after bounded retries, and never
// affect the ledger.
type Dispatcher interface {
	// Dispatch enqueues one event for delivery
	Dispatch(ctx context.Context, chain domain.Chain, event *domain.Event, phunkID *uint64)

	// Stop drains the queue and stops the pool
	Stop()
}

type dispatcher struct {
	http   adapter.HTTPClient
	json   adapter.JSON
	config Config
	pool   pond.Pool
}

// NewDispatcher creates a new notification dispatcher
func NewDispatcher(http adapter.HTTPClient, json adapter.JSON, cfg Config) Dispatcher {
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 4
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 1024
	}
	return &dispatcher{
		http:   http,
		json:   json,
		config: cfg,
		pool:   pond.NewPool(cfg.PoolSize, pond.WithQueueSize(cfg.QueueSize), pond.WithNonBlocking(true)),
	}
}

// Dispatch enqueues one event for delivery
func (d *dispatcher) Dispatch(ctx context.Context, chain domain.Chain, event *domain.Event, phunkID *uint64) {
	if d.config.WebhookURL == "" {
		return
	}

	notification := Notification{
		DeliveryID: uuid.NewString(),
		Chain:      string(chain),
		EventType:  string(event.Type),
		Text:       describe(event, phunkID),
		HashID:     event.HashID,
		PhunkID:    phunkID,
		From:       event.From,
		To:         event.To,
		TxHash:     event.TxHash,
		Timestamp:  event.BlockTimestamp,
	}

	d.pool.Submit(func() {
		if err := d.deliver(ctx, notification); err != nil {
			logger.WarnCtx(ctx, "Dropping notification after retries",
				zap.String("delivery_id", notification.DeliveryID),
				zap.String("hash_id", notification.HashID),
				zap.Error(err))
		}
	})
}

func (d *dispatcher) deliver(ctx context.Context, notification Notification) error {
	body, err := d.json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	operation := func() error {
		_, err := d.http.Post(ctx, d.config.WebhookURL, "application/json", bytes.NewReader(body))
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.config.RetryInterval
	if b.InitialInterval == 0 {
		b.InitialInterval = time.Second
	}
	b.MaxInterval = 30 * time.Second

	return backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(b, d.config.MaxRetries), ctx))
}

// Stop drains the queue and stops the pool
func (d *dispatcher) Stop() {
	d.pool.StopAndWait()
}

// describe renders a short human-readable line for the chat channel
func describe(event *domain.Event, phunkID *uint64) string {
	subject := fmt.Sprintf("Ethscription %s", shorten(event.HashID))
	if phunkID != nil {
		subject = fmt.Sprintf("Phunk #%d", *phunkID)
	}

	switch event.Type {
	case domain.EventTypeCreated:
		return fmt.Sprintf("%s created by %s", subject, shorten(event.To))
	case domain.EventTypeSale:
		return fmt.Sprintf("%s sold to %s", subject, shorten(event.To))
	case domain.EventTypeBurned:
		return fmt.Sprintf("%s burned by %s", subject, shorten(event.From))
	default:
		return fmt.Sprintf("%s transferred from %s to %s", subject, shorten(event.From), shorten(event.To))
	}
}

func shorten(hex string) string {
	if len(hex) <= 10 {
		return hex
	}
	return hex[:6] + "..." + hex[len(hex)-4:]
}
