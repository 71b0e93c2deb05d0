package messaging

import (
	"context"

	"github.com/ethereum-phunks/phunk-indexer/internal/domain"
)

// Publisher defines the interface for fanning committed ledger events out to
// a message broker
type Publisher interface {
	// PublishEvent publishes one committed ledger event
	PublishEvent(ctx context.Context, chain domain.Chain, event *domain.Event) error
	// Close closes the connection
	Close()
}

// NopPublisher discards events; used when no broker is configured
type NopPublisher struct{}

func (NopPublisher) PublishEvent(ctx context.Context, chain domain.Chain, event *domain.Event) error {
	return nil
}

func (NopPublisher) Close() {}
