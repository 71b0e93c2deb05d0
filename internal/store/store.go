package store

import (
	"context"

	"github.com/ethereum-phunks/phunk-indexer/internal/domain"
	"github.com/ethereum-phunks/phunk-indexer/internal/store/schema"
)

// CreationRecord is a classified creation bound to its transaction position
type CreationRecord struct {
	Creation domain.Creation
	TxHash   string
	TxIndex  uint64
	Curated  bool
}

// CommitBlockInput carries everything derived from one block; it is applied
// atomically together with the block journal entry and the watermark advance
type CommitBlockInput struct {
	Number    uint64
	Hash      string
	Timestamp int64
	Creations []CreationRecord
	Events    []domain.Event
}

// CommitBlockResult reports what a block commit actually applied
type CommitBlockResult struct {
	// Applied holds the events committed to the ledger, in ordering-key order
	Applied []domain.Event
	// Quarantined counts events rejected for invariant violations
	Quarantined int
}

// Store defines the interface for database operations
type Store interface {
	// AppendEvent appends one event to the ledger and updates the projection.
	// It is idempotent: an event whose ordering key is not greater than the
	// last committed key for its hash id is a no-op returning false.
	AppendEvent(ctx context.Context, chain domain.Chain, event *domain.Event) (bool, error)

	// CommitBlock applies a block's creations and events, journals the block
	// hash and advances the watermark, all in one transaction
	CommitBlock(ctx context.Context, chain domain.Chain, input CommitBlockInput) (*CommitBlockResult, error)

	// ProjectPhunk recomputes owner/prevOwner for one hash id by replaying
	// its ledger entries in ordering-key order
	ProjectPhunk(ctx context.Context, chain domain.Chain, hashID string) (*schema.Phunk, error)

	// GetPhunk retrieves the current projection for one hash id
	GetPhunk(ctx context.Context, chain domain.Chain, hashID string) (*schema.Phunk, error)

	// GetOwner returns the current owner, or domain.ErrPhunkNotFound
	GetOwner(ctx context.Context, chain domain.Chain, hashID string) (string, error)

	// RecordedBlockHash returns the journaled hash for a block number, or ""
	RecordedBlockHash(ctx context.Context, chain domain.Chain, number uint64) (string, error)

	// RollbackFrom removes all ledger entries with blockNumber >= forkPoint,
	// re-projects the affected phunks from the remaining ledger and rewinds
	// the block journal and watermark. Returns the affected hash ids.
	RollbackFrom(ctx context.Context, chain domain.Chain, forkPoint uint64) ([]string, error)

	// GetBlockCursor retrieves the last durably committed block number
	GetBlockCursor(ctx context.Context, chain domain.Chain) (uint64, error)

	// SetBlockCursor stores the last durably committed block number
	SetBlockCursor(ctx context.Context, chain domain.Chain, blockNumber uint64) error

	// SetFlagged marks or clears the consensus-mismatch flag on a phunk
	SetFlagged(ctx context.Context, chain domain.Chain, hashID string, flagged bool) error

	// SetEthscriptionNumber records the oracle-reported global sequence
	SetEthscriptionNumber(ctx context.Context, chain domain.Chain, hashID string, number uint64) error

	// LoadShaMapping replaces the sha -> phunk number mapping
	LoadShaMapping(ctx context.Context, mapping map[string]uint64) error

	// ListPhunks returns phunks matching the filter plus the total count
	ListPhunks(ctx context.Context, filter PhunkFilter) ([]schema.Phunk, uint64, error)

	// ListEvents returns ledger entries matching the filter plus the total count
	ListEvents(ctx context.Context, filter EventFilter) ([]schema.Event, uint64, error)
}

// PhunkFilter holds equality filters, ordering and pagination for phunk queries
type PhunkFilter struct {
	Chain   string
	HashIDs []string
	Owners  []string
	Creator string
	PhunkID *uint64
	Sha     string
	Curated *bool

	OrderBy   string
	OrderDesc bool
	Limit     int
	Offset    int
}

// EventFilter holds equality filters, ordering and pagination for event queries
type EventFilter struct {
	Chain       string
	HashID      string
	Types       []string
	Address     string // matches either party
	TxHash      string
	BlockNumber *uint64

	OrderDesc bool
	Limit     int
	Offset    int
}
