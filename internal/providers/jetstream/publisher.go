package jetstream

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ethereum-phunks/phunk-indexer/internal/adapter"
	"github.com/ethereum-phunks/phunk-indexer/internal/domain"
	"github.com/ethereum-phunks/phunk-indexer/internal/logger"
	"github.com/ethereum-phunks/phunk-indexer/internal/messaging"
)

// Config holds the configuration for NATS JetStream connection
type Config struct {
	URL            string
	StreamName     string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectionName string
}

type publisher struct {
	nc         adapter.NatsConn
	js         adapter.JetStream
	streamName string
	json       adapter.JSON
}

// NewPublisher creates a new NATS JetStream publisher
func NewPublisher(cfg Config, natsJS adapter.NatsJetStream, jsonAdapter adapter.JSON) (messaging.Publisher, error) {
	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error(err, zap.String("message", "Disconnected from NATS"))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, js, err := natsJS.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	return &publisher{
		nc:         nc,
		js:         js,
		streamName: cfg.StreamName,
		json:       jsonAdapter,
	}, nil
}

// PublishEvent publishes one committed ledger event to NATS JetStream
func (p *publisher) PublishEvent(ctx context.Context, chain domain.Chain, event *domain.Event) error {
	logger.Debug("Publishing NATS event",
		zap.String("chain", string(chain)), zap.Any("event", event))

	data, err := p.json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := buildSubject(chain, event)

	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// buildSubject constructs the NATS subject for an event
func buildSubject(chain domain.Chain, event *domain.Event) string {
	// Format: phunks.{network}.{event_type}
	// e.g., phunks.mainnet.transfer, phunks.sepolia.created
	network := "mainnet"
	if chain == domain.ChainEthereumSepolia {
		network = "sepolia"
	}

	return fmt.Sprintf("phunks.%s.%s", network, event.Type)
}

// Close closes the NATS connection
func (p *publisher) Close() {
	if p.nc == nil {
		return
	}

	p.nc.Close()
}
