package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ethereum-phunks/phunk-indexer/internal/adapter"
	"github.com/ethereum-phunks/phunk-indexer/internal/domain"
	"github.com/ethereum-phunks/phunk-indexer/internal/logger"
	"github.com/ethereum-phunks/phunk-indexer/internal/normalize"
)

// Config holds the configuration for a chain source
type Config struct {
	ChainID domain.Chain
	// StartBlock is where indexing begins on an empty database
	StartBlock uint64
	// PollInterval is how long to wait once the head has been reached
	PollInterval time.Duration
	// RedeliverWindow is how many already-committed trailing blocks are
	// re-delivered after a restart
	RedeliverWindow uint64
}

// BlockHandler processes one fetched block. Returning an error stops the run.
type BlockHandler func(ctx context.Context, block *domain.BlockPayload) error

// Source streams blocks in strictly increasing order, starting from the
// durable cursor. Blocks within the redeliver window arrive again after a
// restart; downstream consumers absorb them idempotently.
type Source interface {
	// Run streams blocks from fromBlock until the context is canceled
	Run(ctx context.Context, fromBlock uint64, handler BlockHandler) error

	// ResolveStart computes the first block to deliver given the durable
	// cursor (0 means an empty database)
	ResolveStart(cursor uint64) uint64

	// LatestBlock returns the current chain head number
	LatestBlock(ctx context.Context) (uint64, error)

	// BlockHash returns the canonical hash of a block number
	BlockHash(ctx context.Context, number uint64) (string, error)

	// FetchBlock fetches one block with its transactions and transfer logs
	FetchBlock(ctx context.Context, number uint64) (*domain.BlockPayload, error)

	// Close closes the underlying connection
	Close()
}

type source struct {
	client adapter.EthClient
	config Config
	clock  adapter.Clock
}

// NewSource creates a new chain source
func NewSource(client adapter.EthClient, cfg Config, clock adapter.Clock) Source {
	return &source{client: client, config: cfg, clock: clock}
}

// ResolveStart computes the first block to deliver given the durable cursor
func (s *source) ResolveStart(cursor uint64) uint64 {
	if cursor == 0 {
		return s.config.StartBlock
	}
	start := cursor + 1
	if s.config.RedeliverWindow > 0 {
		if cursor >= s.config.RedeliverWindow {
			start = cursor - s.config.RedeliverWindow + 1
		} else {
			start = s.config.StartBlock
		}
	}
	if start < s.config.StartBlock {
		start = s.config.StartBlock
	}
	return start
}

// Run streams blocks from fromBlock until the context is canceled
func (s *source) Run(ctx context.Context, fromBlock uint64, handler BlockHandler) error {
	logger.InfoCtx(ctx, "Starting block stream",
		zap.String("chain", string(s.config.ChainID)),
		zap.Uint64("from_block", fromBlock))

	head, err := s.LatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain head: %w", err)
	}

	for number := fromBlock; ; number++ {
		for number > head {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.clock.After(s.config.PollInterval):
			}

			head, err = s.LatestBlock(ctx)
			if err != nil {
				logger.WarnCtx(ctx, "Failed to refresh chain head",
					zap.String("chain", string(s.config.ChainID)), zap.Error(err))
			}
		}

		block, err := s.fetchBlockWithRetry(ctx, number)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Retry budget exhausted; requeue the block rather than drop it.
			// The stream cannot skip a block without corrupting the ledger.
			logger.ErrorCtx(ctx, fmt.Errorf("failed to fetch block %d, requeueing: %w", number, err),
				zap.String("chain", string(s.config.ChainID)))
			number--
			continue
		}

		if err := handler(ctx, block); err != nil {
			return fmt.Errorf("failed to handle block %d: %w", number, err)
		}
	}
}

// LatestBlock returns the current chain head number
func (s *source) LatestBlock(ctx context.Context) (uint64, error) {
	header, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return header.Number.Uint64(), nil
}

// BlockHash returns the canonical hash of a block number
func (s *source) BlockHash(ctx context.Context, number uint64) (string, error) {
	header, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return "", fmt.Errorf("failed to get header %d: %w", number, err)
	}
	return header.Hash().Hex(), nil
}

// fetchBlockWithRetry retries transient RPC failures with exponential backoff
func (s *source) fetchBlockWithRetry(ctx context.Context, number uint64) (*domain.BlockPayload, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 5 * time.Minute

	return backoff.RetryWithData(func() (*domain.BlockPayload, error) {
		block, err := s.FetchBlock(ctx, number)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, backoff.Permanent(err)
			}
			logger.WarnCtx(ctx, "Retrying block fetch",
				zap.String("chain", string(s.config.ChainID)),
				zap.Uint64("block", number), zap.Error(err))
			return nil, err
		}
		return block, nil
	}, backoff.WithContext(b, ctx))
}

// FetchBlock fetches one block with its transactions and transfer logs
func (s *source) FetchBlock(ctx context.Context, number uint64) (*domain.BlockPayload, error) {
	block, err := s.client.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", number, err)
	}

	payload := &domain.BlockPayload{
		Number:     block.NumberU64(),
		Hash:       block.Hash().Hex(),
		ParentHash: block.ParentHash().Hex(),
		Timestamp:  time.Unix(int64(block.Time()), 0), //nolint:gosec,G115
	}

	blockHash := block.Hash()
	for i, tx := range block.Transactions() {
		// Contract deployments carry no recipient and cannot encode a
		// creation or transfer
		if tx.To() == nil {
			continue
		}
		if len(tx.Data()) == 0 {
			continue
		}

		from, err := s.client.TransactionSender(ctx, tx, blockHash, uint(i)) //nolint:gosec,G115
		if err != nil {
			return nil, fmt.Errorf("failed to resolve sender of %s: %w", tx.Hash().Hex(), err)
		}

		to := domain.NormalizeAddress(tx.To().Hex())
		payload.Transactions = append(payload.Transactions, domain.TransactionPayload{
			Hash:  tx.Hash().Hex(),
			Index: uint64(i), //nolint:gosec,G115
			From:  domain.NormalizeAddress(from.Hex()),
			To:    &to,
			Value: tx.Value().String(),
			Input: tx.Data(),
		})
	}

	logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(number),
		ToBlock:   new(big.Int).SetUint64(number),
		Topics:    [][]common.Hash{normalize.Topics()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs of block %d: %w", number, err)
	}
	payload.Logs = logs

	return payload, nil
}

// Close closes the underlying connection
func (s *source) Close() {
	if s.client == nil {
		return
	}
	s.client.Close()
	logger.Info("Ethereum RPC connection closed")
}
