package ingest

import (
	"context"
	"fmt"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/ethereum-phunks/phunk-indexer/internal/classify"
	"github.com/ethereum-phunks/phunk-indexer/internal/consensus"
	"github.com/ethereum-phunks/phunk-indexer/internal/curated"
	"github.com/ethereum-phunks/phunk-indexer/internal/domain"
	"github.com/ethereum-phunks/phunk-indexer/internal/logger"
	"github.com/ethereum-phunks/phunk-indexer/internal/messaging"
	"github.com/ethereum-phunks/phunk-indexer/internal/normalize"
	"github.com/ethereum-phunks/phunk-indexer/internal/notify"
	"github.com/ethereum-phunks/phunk-indexer/internal/store"
)

// HeaderSource resolves the canonical hash of a block number; used to locate
// the fork point during reorg recovery
type HeaderSource interface {
	BlockHash(ctx context.Context, number uint64) (string, error)
}

// Config holds the configuration for one chain's ingestion worker
type Config struct {
	ChainID domain.Chain
	// PoolSize bounds the classification and fan-out pools
	PoolSize  int
	QueueSize int
}

// Worker drives the per-block pipeline: reorg detection, classification,
// normalization, atomic commit, then advisory fan-out. Blocks are handled
// strictly one at a time per chain.
type Worker interface {
	// HandleBlock processes one block; ledger effects are committed before
	// it returns
	HandleBlock(ctx context.Context, block *domain.BlockPayload) error

	// Stop drains the fan-out pool
	Stop()
}

type worker struct {
	config     Config
	headers    HeaderSource
	classifier classify.Classifier
	normalizer normalize.Normalizer
	store      store.Store
	curated    curated.Registry
	verifier   consensus.Verifier
	dispatcher notify.Dispatcher
	publisher  messaging.Publisher

	classifyPool pond.Pool
	fanoutPool   pond.Pool
}

// NewWorker creates a new ingestion worker. verifier and dispatcher may be
// nil; publisher must be at least a messaging.NopPublisher.
func NewWorker(
	cfg Config,
	headers HeaderSource,
	cls classify.Classifier,
	norm normalize.Normalizer,
	st store.Store,
	cur curated.Registry,
	ver consensus.Verifier,
	disp notify.Dispatcher,
	pub messaging.Publisher,
) Worker {
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 8
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 1024
	}
	return &worker{
		config:       cfg,
		headers:      headers,
		classifier:   cls,
		normalizer:   norm,
		store:        st,
		curated:      cur,
		verifier:     ver,
		dispatcher:   disp,
		publisher:    pub,
		classifyPool: pond.NewPool(cfg.PoolSize),
		fanoutPool:   pond.NewPool(cfg.PoolSize, pond.WithQueueSize(cfg.QueueSize)),
	}
}

// HandleBlock processes one block end to end
func (w *worker) HandleBlock(ctx context.Context, block *domain.BlockPayload) error {
	chain := w.config.ChainID

	// A re-delivered block whose hash we already journaled is a no-op
	recorded, err := w.store.RecordedBlockHash(ctx, chain, block.Number)
	if err != nil {
		return fmt.Errorf("failed to check block journal: %w", err)
	}
	if recorded == block.Hash {
		logger.DebugCtx(ctx, "Block already committed, skipping",
			zap.String("chain", string(chain)), zap.Uint64("block", block.Number))
		return nil
	}

	if err := w.checkReorg(ctx, block); err != nil {
		return err
	}

	classified, err := w.classifyTransactions(block)
	if err != nil {
		return err
	}

	events, err := w.normalizer.NormalizeBlock(ctx, block, classified)
	if err != nil {
		return fmt.Errorf("failed to normalize block %d: %w", block.Number, err)
	}

	input := store.CommitBlockInput{
		Number:    block.Number,
		Hash:      block.Hash,
		Timestamp: block.Timestamp.Unix(),
		Events:    events,
	}
	for _, ct := range classified {
		creation, ok := ct.Result.(domain.Creation)
		if !ok {
			continue
		}
		input.Creations = append(input.Creations, store.CreationRecord{
			Creation: creation,
			TxHash:   ct.Tx.Hash,
			TxIndex:  ct.Tx.Index,
			Curated:  w.curated != nil && w.curated.Contains(creation.HashID),
		})
	}

	result, err := w.store.CommitBlock(ctx, chain, input)
	if err != nil {
		return fmt.Errorf("failed to commit block %d: %w", block.Number, err)
	}

	if len(result.Applied) > 0 || result.Quarantined > 0 {
		logger.InfoCtx(ctx, "Committed block",
			zap.String("chain", string(chain)),
			zap.Uint64("block", block.Number),
			zap.Int("events", len(result.Applied)),
			zap.Int("quarantined", result.Quarantined))
	}

	// Everything past the commit is advisory and must not delay ingestion
	for i := range result.Applied {
		event := result.Applied[i]
		w.fanoutPool.Submit(func() {
			w.fanout(ctx, event)
		})
	}

	return nil
}

// checkReorg compares the incoming parent hash with the journal and rolls the
// ledger back to the fork point when they diverge
func (w *worker) checkReorg(ctx context.Context, block *domain.BlockPayload) error {
	chain := w.config.ChainID
	if block.Number == 0 {
		return nil
	}

	recorded, err := w.store.RecordedBlockHash(ctx, chain, block.Number-1)
	if err != nil {
		return fmt.Errorf("failed to check block journal: %w", err)
	}
	if recorded == "" || recorded == block.ParentHash {
		return nil
	}

	logger.WarnCtx(ctx, "Reorg detected",
		zap.String("chain", string(chain)),
		zap.Uint64("block", block.Number),
		zap.String("recorded_parent", recorded),
		zap.String("incoming_parent", block.ParentHash))

	forkPoint, err := w.findForkPoint(ctx, block.Number-1)
	if err != nil {
		return err
	}

	affected, err := w.store.RollbackFrom(ctx, chain, forkPoint)
	if err != nil {
		return fmt.Errorf("failed to roll back from %d: %w", forkPoint, err)
	}

	logger.InfoCtx(ctx, "Rolled back forked blocks",
		zap.String("chain", string(chain)),
		zap.Uint64("fork_point", forkPoint),
		zap.Int("affected_phunks", len(affected)))

	return nil
}

// findForkPoint walks the journal backwards until the recorded hash matches
// the canonical chain again. The first divergent block is the fork point.
func (w *worker) findForkPoint(ctx context.Context, from uint64) (uint64, error) {
	chain := w.config.ChainID

	for number := from; ; number-- {
		recorded, err := w.store.RecordedBlockHash(ctx, chain, number)
		if err != nil {
			return 0, fmt.Errorf("failed to read block journal: %w", err)
		}
		if recorded == "" {
			// The fork reaches past the retained journal window
			return 0, fmt.Errorf("fork at or below block %d: %w", number, domain.ErrWatermarkBehindFork)
		}

		canonical, err := w.headers.BlockHash(ctx, number)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch canonical hash of %d: %w", number, err)
		}

		if recorded == canonical {
			return number + 1, nil
		}
		if number == 0 {
			return 0, fmt.Errorf("fork at genesis: %w", domain.ErrWatermarkBehindFork)
		}
	}
}

// classifyTransactions runs the classifier across the block in parallel and
// gathers results back in transaction order
func (w *worker) classifyTransactions(block *domain.BlockPayload) ([]normalize.ClassifiedTx, error) {
	results := make([]normalize.ClassifiedTx, len(block.Transactions))

	group := w.classifyPool.NewGroup()
	for i := range block.Transactions {
		group.Submit(func() {
			tx := block.Transactions[i]
			results[i] = normalize.ClassifiedTx{
				Tx:     tx,
				Result: w.classifier.Classify(tx),
			}
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("failed to classify block %d: %w", block.Number, err)
	}

	return results, nil
}

// fanout performs the advisory post-commit work for one applied event
func (w *worker) fanout(ctx context.Context, event domain.Event) {
	chain := w.config.ChainID

	if err := w.publisher.PublishEvent(ctx, chain, &event); err != nil {
		logger.WarnCtx(ctx, "Failed to publish event",
			zap.String("hash_id", event.HashID), zap.Error(err))
	}

	var phunkID *uint64
	if phunk, err := w.store.GetPhunk(ctx, chain, event.HashID); err == nil {
		phunkID = phunk.PhunkID
	}

	if w.dispatcher != nil {
		w.dispatcher.Dispatch(ctx, chain, &event, phunkID)
	}

	if w.verifier != nil {
		if _, err := w.verifier.Verify(ctx, chain, event.HashID); err != nil {
			logger.WarnCtx(ctx, "Consensus verification failed",
				zap.String("hash_id", event.HashID), zap.Error(err))
		}
	}
}

// Stop drains the fan-out pool
func (w *worker) Stop() {
	w.classifyPool.StopAndWait()
	w.fanoutPool.StopAndWait()
}
