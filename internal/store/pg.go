package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ethereum-phunks/phunk-indexer/internal/domain"
	"github.com/ethereum-phunks/phunk-indexer/internal/logger"
	"github.com/ethereum-phunks/phunk-indexer/internal/store/schema"
)

// blockJournalDepth is how many trailing block hashes are retained for
// fork-point discovery
const blockJournalDepth = 128

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// Migrate creates or updates the persisted schema
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&schema.Phunk{},
		&schema.Event{},
		&schema.Sha{},
		&schema.User{},
		&schema.IndexedBlock{},
		&schema.KeyValueStore{},
		&schema.QuarantinedEvent{},
	)
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

func cursorKey(chain domain.Chain) string {
	return fmt.Sprintf("block_cursor:%s", chain)
}

// lastEventKey returns the greatest committed ordering key for a hash id
func lastEventKey(tx *gorm.DB, chain domain.Chain, hashID string) (domain.OrderingKey, bool, error) {
	var last schema.Event
	err := tx.Where("chain = ? AND hash_id = ?", string(chain), hashID).
		Order("block_number DESC, tx_index DESC, log_index DESC").
		First(&last).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.OrderingKey{}, false, nil
		}
		return domain.OrderingKey{}, false, fmt.Errorf("failed to get last event: %w", err)
	}
	return orderingKey(&last), true, nil
}

// appendEventTx applies one event inside an open transaction. Returns false
// for stale/duplicate keys (not an error).
func (s *pgStore) appendEventTx(ctx context.Context, tx *gorm.DB, chain domain.Chain, event *domain.Event) (bool, error) {
	// Lock the projection row so the ordering gate and the owner update are
	// atomic per hash id under any delivery strategy
	var phunk schema.Phunk
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("chain = ? AND hash_id = ?", string(chain), event.HashID).
		First(&phunk).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, domain.ErrPhunkNotFound
		}
		return false, fmt.Errorf("failed to lock phunk: %w", err)
	}

	lastKey, hasEvents, err := lastEventKey(tx, chain, event.HashID)
	if err != nil {
		return false, err
	}

	if event.Type == domain.EventTypeCreated && hasEvents {
		// First-writer-wins: only one creation is ever valid per hash id
		if phunk.Creator != event.To {
			return false, domain.ErrCreatorConflict
		}
		return false, nil
	}

	if hasEvents && !event.Key().After(lastKey) {
		// Ordering conflict: stale or duplicate delivery, a silent no-op
		return false, nil
	}

	row := schema.Event{
		Chain:          string(chain),
		Type:           string(event.Type),
		HashID:         event.HashID,
		FromAddress:    event.From,
		ToAddress:      event.To,
		TxHash:         event.TxHash,
		BlockNumber:    event.BlockNumber,
		TxIndex:        event.TxIndex,
		LogIndex:       event.LogIndex,
		BlockHash:      event.BlockHash,
		BlockTimestamp: event.BlockTimestamp,
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "chain"}, {Name: "hash_id"},
			{Name: "block_number"}, {Name: "tx_index"}, {Name: "log_index"},
		},
		DoNothing: true,
	}).Clauses(clause.Returning{Columns: []clause.Column{}}).
		Create(&row).Error; err != nil {
		return false, fmt.Errorf("failed to create event: %w", err)
	}
	if row.ID == 0 {
		return false, nil
	}

	// Advance the projection
	if event.Type != domain.EventTypeCreated {
		prev := phunk.Owner
		phunk.PrevOwner = &prev
		phunk.Owner = event.To
		if err := tx.Save(&phunk).Error; err != nil {
			return false, fmt.Errorf("failed to update phunk projection: %w", err)
		}
	}

	if err := upsertUsersTx(tx, event.BlockNumber, event.From, event.To); err != nil {
		return false, err
	}

	return true, nil
}

// upsertUsersTx lazily creates user records for every party to an event
func upsertUsersTx(tx *gorm.DB, blockNumber uint64, addresses ...string) error {
	for _, addr := range addresses {
		if addr == "" || addr == domain.EthereumZeroAddress {
			continue
		}
		user := schema.User{Address: addr, FirstSeenBlock: blockNumber}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoNothing: true,
		}).Create(&user).Error; err != nil {
			return fmt.Errorf("failed to upsert user %s: %w", addr, err)
		}
	}
	return nil
}

// createPhunkTx inserts the projection row for a new ethscription and settles
// its phunk id from the sha mapping. Returns false when the hash id already
// exists (first-writer-wins).
func (s *pgStore) createPhunkTx(ctx context.Context, tx *gorm.DB, chain domain.Chain, rec CreationRecord, blockNumber uint64, blockHash string) (bool, error) {
	phunk := schema.Phunk{
		Chain:           string(chain),
		HashID:          rec.Creation.HashID,
		Creator:         rec.Creation.Creator,
		Owner:           rec.Creation.Creator,
		Sha:             rec.Creation.Sha,
		Data:            rec.Creation.Content,
		ContentType:     rec.Creation.ContentType,
		CreationBlock:   blockNumber,
		CreationTxIndex: rec.TxIndex,
		CreationTxHash:  rec.TxHash,
		BlockHash:       blockHash,
		Curated:         rec.Curated,
	}

	// Settle the collection sequence number at creation, exactly once
	var sha schema.Sha
	err := tx.Where("sha = ?", rec.Creation.Sha).First(&sha).Error
	if err == nil {
		phunk.PhunkID = &sha.PhunkID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("failed to resolve sha mapping: %w", err)
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain"}, {Name: "hash_id"}},
		DoNothing: true,
	}).Create(&phunk).Error; err != nil {
		return false, fmt.Errorf("failed to create phunk: %w", err)
	}

	var existing schema.Phunk
	if err := tx.Where("chain = ? AND hash_id = ?", string(chain), rec.Creation.HashID).
		First(&existing).Error; err != nil {
		return false, fmt.Errorf("failed to read back phunk: %w", err)
	}

	if existing.CreationTxHash != rec.TxHash {
		// The row predates this creation attempt
		if existing.Creator != rec.Creation.Creator {
			return false, domain.ErrCreatorConflict
		}
		return false, nil
	}

	return true, nil
}

func (s *pgStore) quarantineTx(tx *gorm.DB, chain domain.Chain, event *domain.Event, reason string) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal quarantined event: %w", err)
	}

	row := schema.QuarantinedEvent{
		ID:      uuid.NewString(),
		Chain:   string(chain),
		HashID:  event.HashID,
		Reason:  reason,
		Payload: datatypes.JSON(payload),
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create quarantined event: %w", err)
	}
	return nil
}

// AppendEvent appends one event to the ledger and updates the projection
func (s *pgStore) AppendEvent(ctx context.Context, chain domain.Chain, event *domain.Event) (bool, error) {
	var applied bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		applied, err = s.appendEventTx(ctx, tx, chain, event)
		return err
	})
	return applied, err
}

// CommitBlock applies a block's creations and events atomically together with
// the block journal entry and the watermark advance
func (s *pgStore) CommitBlock(ctx context.Context, chain domain.Chain, input CommitBlockInput) (*CommitBlockResult, error) {
	result := &CommitBlockResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Creations first so transfer events within the same block can see
		// their projection rows
		skipCreated := make(map[string]bool)
		for _, rec := range input.Creations {
			created, err := s.createPhunkTx(ctx, tx, chain, rec, input.Number, input.Hash)
			if err != nil {
				if errors.Is(err, domain.ErrCreatorConflict) {
					ev := creationEvent(rec, input)
					if qErr := s.quarantineTx(tx, chain, &ev, err.Error()); qErr != nil {
						return qErr
					}
					result.Quarantined++
					skipCreated[rec.Creation.HashID] = true
					logger.WarnCtx(ctx, "Quarantined conflicting creation",
						zap.String("hash_id", rec.Creation.HashID), zap.String("tx_hash", rec.TxHash))
					continue
				}
				return err
			}
			if !created {
				// Duplicate content from the same creator, drop its event too
				skipCreated[rec.Creation.HashID] = true
			}
		}

		for i := range input.Events {
			event := input.Events[i]
			if event.Type == domain.EventTypeCreated && skipCreated[event.HashID] {
				continue
			}

			applied, err := s.appendEventTx(ctx, tx, chain, &event)
			if err != nil {
				switch {
				case errors.Is(err, domain.ErrPhunkNotFound):
					// Transfer of an ethscription this worker never indexed
					logger.DebugCtx(ctx, "Dropping event for unknown phunk",
						zap.String("hash_id", event.HashID), zap.String("tx_hash", event.TxHash))
					continue
				case errors.Is(err, domain.ErrCreatorConflict):
					if qErr := s.quarantineTx(tx, chain, &event, err.Error()); qErr != nil {
						return qErr
					}
					result.Quarantined++
					continue
				default:
					return err
				}
			}
			if applied {
				result.Applied = append(result.Applied, event)
			}
		}

		// Journal the block hash and trim the window
		journal := schema.IndexedBlock{
			Chain:  string(chain),
			Number: input.Number,
			Hash:   input.Hash,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chain"}, {Name: "number"}},
			DoUpdates: clause.AssignmentColumns([]string{"hash"}),
		}).Create(&journal).Error; err != nil {
			return fmt.Errorf("failed to journal block: %w", err)
		}
		if input.Number > blockJournalDepth {
			if err := tx.Where("chain = ? AND number < ?", string(chain), input.Number-blockJournalDepth).
				Delete(&schema.IndexedBlock{}).Error; err != nil {
				return fmt.Errorf("failed to trim block journal: %w", err)
			}
		}

		// The watermark advances only inside the same transaction
		return setBlockCursorTx(tx, chain, input.Number)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func creationEvent(rec CreationRecord, input CommitBlockInput) domain.Event {
	return domain.Event{
		Type:           domain.EventTypeCreated,
		HashID:         rec.Creation.HashID,
		From:           domain.EthereumZeroAddress,
		To:             rec.Creation.Creator,
		TxHash:         rec.TxHash,
		BlockNumber:    input.Number,
		TxIndex:        rec.TxIndex,
		BlockHash:      input.Hash,
		BlockTimestamp: time.Unix(input.Timestamp, 0),
	}
}

// ProjectPhunk recomputes the projection for one hash id from its ledger
func (s *pgStore) ProjectPhunk(ctx context.Context, chain domain.Chain, hashID string) (*schema.Phunk, error) {
	var phunk schema.Phunk

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("chain = ? AND hash_id = ?", string(chain), hashID).
			First(&phunk).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrPhunkNotFound
			}
			return fmt.Errorf("failed to get phunk: %w", err)
		}

		var events []schema.Event
		if err := tx.Where("chain = ? AND hash_id = ?", string(chain), hashID).
			Find(&events).Error; err != nil {
			return fmt.Errorf("failed to load ledger: %w", err)
		}

		state := Replay(events)
		phunk.Owner = state.Owner
		phunk.PrevOwner = state.PrevOwner
		if state.Creator != "" {
			phunk.Creator = state.Creator
		}

		if err := tx.Save(&phunk).Error; err != nil {
			return fmt.Errorf("failed to save projection: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &phunk, nil
}

// GetPhunk retrieves the current projection for one hash id
func (s *pgStore) GetPhunk(ctx context.Context, chain domain.Chain, hashID string) (*schema.Phunk, error) {
	var phunk schema.Phunk
	err := s.db.WithContext(ctx).
		Where("chain = ? AND hash_id = ?", string(chain), hashID).
		First(&phunk).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPhunkNotFound
		}
		return nil, fmt.Errorf("failed to get phunk: %w", err)
	}
	return &phunk, nil
}

// GetOwner returns the current owner of an ethscription
func (s *pgStore) GetOwner(ctx context.Context, chain domain.Chain, hashID string) (string, error) {
	phunk, err := s.GetPhunk(ctx, chain, hashID)
	if err != nil {
		return "", err
	}
	return phunk.Owner, nil
}

// RecordedBlockHash returns the journaled hash for a block number
func (s *pgStore) RecordedBlockHash(ctx context.Context, chain domain.Chain, number uint64) (string, error) {
	var row schema.IndexedBlock
	err := s.db.WithContext(ctx).
		Where("chain = ? AND number = ?", string(chain), number).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get indexed block: %w", err)
	}
	return row.Hash, nil
}

// RollbackFrom removes all ledger entries at or above the fork point and
// re-derives the affected projections from the remaining ledger
func (s *pgStore) RollbackFrom(ctx context.Context, chain domain.Chain, forkPoint uint64) ([]string, error) {
	var affected []string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&schema.Event{}).
			Distinct("hash_id").
			Where("chain = ? AND block_number >= ?", string(chain), forkPoint).
			Pluck("hash_id", &affected).Error; err != nil {
			return fmt.Errorf("failed to collect affected hash ids: %w", err)
		}

		if err := tx.Where("chain = ? AND block_number >= ?", string(chain), forkPoint).
			Delete(&schema.Event{}).Error; err != nil {
			return fmt.Errorf("failed to roll back events: %w", err)
		}

		// Projections created past the fork point disappear entirely; the
		// rest are re-derived from the remaining ledger
		for _, hashID := range affected {
			var events []schema.Event
			if err := tx.Where("chain = ? AND hash_id = ?", string(chain), hashID).
				Find(&events).Error; err != nil {
				return fmt.Errorf("failed to load remaining ledger: %w", err)
			}

			if len(events) == 0 {
				if err := tx.Where("chain = ? AND hash_id = ?", string(chain), hashID).
					Delete(&schema.Phunk{}).Error; err != nil {
					return fmt.Errorf("failed to delete orphaned phunk: %w", err)
				}
				continue
			}

			state := Replay(events)
			if err := tx.Model(&schema.Phunk{}).
				Where("chain = ? AND hash_id = ?", string(chain), hashID).
				Updates(map[string]interface{}{
					"owner":      state.Owner,
					"prev_owner": state.PrevOwner,
				}).Error; err != nil {
				return fmt.Errorf("failed to re-project phunk: %w", err)
			}
		}

		if err := tx.Where("chain = ? AND number >= ?", string(chain), forkPoint).
			Delete(&schema.IndexedBlock{}).Error; err != nil {
			return fmt.Errorf("failed to rewind block journal: %w", err)
		}

		cursor := uint64(0)
		if forkPoint > 0 {
			cursor = forkPoint - 1
		}
		return setBlockCursorTx(tx, chain, cursor)
	})
	if err != nil {
		return nil, err
	}

	return affected, nil
}

func setBlockCursorTx(tx *gorm.DB, chain domain.Chain, blockNumber uint64) error {
	kv := schema.KeyValueStore{
		Key:   cursorKey(chain),
		Value: strconv.FormatUint(blockNumber, 10),
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&kv).Error; err != nil {
		return fmt.Errorf("failed to set block cursor: %w", err)
	}
	return nil
}

// GetBlockCursor retrieves the last durably committed block number
func (s *pgStore) GetBlockCursor(ctx context.Context, chain domain.Chain) (uint64, error) {
	var kv schema.KeyValueStore
	err := s.db.WithContext(ctx).Where("key = ?", cursorKey(chain)).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get block cursor: %w", err)
	}

	blockNumber, err := strconv.ParseUint(kv.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse block cursor: %w", err)
	}
	return blockNumber, nil
}

// SetBlockCursor stores the last durably committed block number
func (s *pgStore) SetBlockCursor(ctx context.Context, chain domain.Chain, blockNumber uint64) error {
	return setBlockCursorTx(s.db.WithContext(ctx), chain, blockNumber)
}

// SetFlagged marks or clears the consensus-mismatch flag on a phunk
func (s *pgStore) SetFlagged(ctx context.Context, chain domain.Chain, hashID string, flagged bool) error {
	err := s.db.WithContext(ctx).Model(&schema.Phunk{}).
		Where("chain = ? AND hash_id = ?", string(chain), hashID).
		Update("flagged", flagged).Error
	if err != nil {
		return fmt.Errorf("failed to set flagged: %w", err)
	}
	return nil
}

// SetEthscriptionNumber records the oracle-reported global sequence number
func (s *pgStore) SetEthscriptionNumber(ctx context.Context, chain domain.Chain, hashID string, number uint64) error {
	err := s.db.WithContext(ctx).Model(&schema.Phunk{}).
		Where("chain = ? AND hash_id = ?", string(chain), hashID).
		Update("ethscription_number", number).Error
	if err != nil {
		return fmt.Errorf("failed to set ethscription number: %w", err)
	}
	return nil
}

// LoadShaMapping replaces the sha -> phunk number mapping
func (s *pgStore) LoadShaMapping(ctx context.Context, mapping map[string]uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for sha, phunkID := range mapping {
			row := schema.Sha{Sha: sha, PhunkID: phunkID}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "sha"}},
				DoUpdates: clause.AssignmentColumns([]string{"phunk_id"}),
			}).Create(&row).Error; err != nil {
				return fmt.Errorf("failed to upsert sha mapping: %w", err)
			}
		}
		return nil
	})
}

// phunkOrderColumns whitelists order-by fields for phunk queries
var phunkOrderColumns = map[string]string{
	"createdAt":   "created_at",
	"hashId":      "hash_id",
	"phunkId":     "phunk_id",
	"blockNumber": "creation_block",
	"owner":       "owner",
	"creator":     "creator",
}

// ListPhunks returns phunks matching the filter plus the total count
func (s *pgStore) ListPhunks(ctx context.Context, filter PhunkFilter) ([]schema.Phunk, uint64, error) {
	query := s.db.WithContext(ctx).Model(&schema.Phunk{})

	if filter.Chain != "" {
		query = query.Where("chain = ?", filter.Chain)
	}
	if len(filter.HashIDs) > 0 {
		query = query.Where("hash_id IN ?", filter.HashIDs)
	}
	if len(filter.Owners) > 0 {
		query = query.Where("owner IN ?", filter.Owners)
	}
	if filter.Creator != "" {
		query = query.Where("creator = ?", filter.Creator)
	}
	if filter.PhunkID != nil {
		query = query.Where("phunk_id = ?", *filter.PhunkID)
	}
	if filter.Sha != "" {
		query = query.Where("sha = ?", filter.Sha)
	}
	if filter.Curated != nil {
		query = query.Where("curated = ?", *filter.Curated)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count phunks: %w", err)
	}

	column, ok := phunkOrderColumns[filter.OrderBy]
	if !ok {
		column = "creation_block"
	}
	direction := "ASC"
	if filter.OrderDesc {
		direction = "DESC"
	}
	query = query.Order(fmt.Sprintf("%s %s", column, direction)).
		Order("creation_tx_index ASC").
		Limit(filter.Limit).Offset(filter.Offset)

	var phunks []schema.Phunk
	if err := query.Find(&phunks).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list phunks: %w", err)
	}

	return phunks, uint64(total), nil //nolint:gosec,G115
}

// ListEvents returns ledger entries matching the filter plus the total count
func (s *pgStore) ListEvents(ctx context.Context, filter EventFilter) ([]schema.Event, uint64, error) {
	query := s.db.WithContext(ctx).Model(&schema.Event{})

	if filter.Chain != "" {
		query = query.Where("chain = ?", filter.Chain)
	}
	if filter.HashID != "" {
		query = query.Where("hash_id = ?", filter.HashID)
	}
	if len(filter.Types) > 0 {
		query = query.Where("type IN ?", filter.Types)
	}
	if filter.Address != "" {
		query = query.Where("from_address = ? OR to_address = ?", filter.Address, filter.Address)
	}
	if filter.TxHash != "" {
		query = query.Where("tx_hash = ?", filter.TxHash)
	}
	if filter.BlockNumber != nil {
		query = query.Where("block_number = ?", *filter.BlockNumber)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	if filter.OrderDesc {
		query = query.Order("block_number DESC, tx_index DESC, log_index DESC")
	} else {
		query = query.Order("block_number ASC, tx_index ASC, log_index ASC")
	}
	query = query.Limit(filter.Limit).Offset(filter.Offset)

	var events []schema.Event
	if err := query.Find(&events).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list events: %w", err)
	}

	return events, uint64(total), nil //nolint:gosec,G115
}
