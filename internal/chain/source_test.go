package chain_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-phunks/phunk-indexer/internal/chain"
	"github.com/ethereum-phunks/phunk-indexer/internal/domain"
	"github.com/ethereum-phunks/phunk-indexer/internal/mocks"
	"github.com/ethereum-phunks/phunk-indexer/internal/normalize"
)

func header(number uint64) *types.Header {
	return &types.Header{
		Number:     new(big.Int).SetUint64(number),
		ParentHash: common.HexToHash("0xdead"),
		Time:       1700000000 + number,
	}
}

func newSource(client *mocks.FakeEthClient, cfg chain.Config) chain.Source {
	if cfg.ChainID == "" {
		cfg.ChainID = domain.ChainEthereumMainnet
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	return chain.NewSource(client, cfg, &mocks.FakeClock{})
}

func TestResolveStart(t *testing.T) {
	tests := []struct {
		name     string
		cfg      chain.Config
		cursor   uint64
		expected uint64
	}{
		{
			name:     "empty database starts at the configured block",
			cfg:      chain.Config{StartBlock: 500, RedeliverWindow: 12},
			cursor:   0,
			expected: 500,
		},
		{
			name:     "cursor rewinds by the redeliver window",
			cfg:      chain.Config{StartBlock: 500, RedeliverWindow: 12},
			cursor:   1000,
			expected: 989,
		},
		{
			name:     "rewind never goes below the start block",
			cfg:      chain.Config{StartBlock: 500, RedeliverWindow: 12},
			cursor:   505,
			expected: 500,
		},
		{
			name:     "cursor smaller than the window",
			cfg:      chain.Config{StartBlock: 1, RedeliverWindow: 100},
			cursor:   50,
			expected: 1,
		},
		{
			name:     "no window resumes at the next block",
			cfg:      chain.Config{StartBlock: 1},
			cursor:   42,
			expected: 43,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSource(&mocks.FakeEthClient{}, tt.cfg)
			assert.Equal(t, tt.expected, s.ResolveStart(tt.cursor))
		})
	}
}

func TestSource_Run(t *testing.T) {
	head := header(102)
	client := &mocks.FakeEthClient{
		HeaderByNumberFn: func(_ context.Context, number *big.Int) (*types.Header, error) {
			if number == nil {
				return head, nil
			}
			return header(number.Uint64()), nil
		},
		BlockByNumberFn: func(_ context.Context, number *big.Int) (*types.Block, error) {
			return types.NewBlockWithHeader(header(number.Uint64())), nil
		},
	}
	s := newSource(client, chain.Config{StartBlock: 100})

	stop := errors.New("enough")
	var delivered []uint64
	err := s.Run(context.Background(), 100, func(_ context.Context, block *domain.BlockPayload) error {
		delivered = append(delivered, block.Number)
		if len(delivered) == 3 {
			return stop
		}
		return nil
	})

	require.ErrorIs(t, err, stop)
	assert.Equal(t, []uint64{100, 101, 102}, delivered)
}

func TestSource_FetchBlock(t *testing.T) {
	wantLog := types.Log{
		Topics:      []common.Hash{normalize.TransferEthscriptionTopic},
		BlockNumber: 100,
	}

	var query ethereum.FilterQuery
	client := &mocks.FakeEthClient{
		BlockByNumberFn: func(_ context.Context, number *big.Int) (*types.Block, error) {
			return types.NewBlockWithHeader(header(number.Uint64())), nil
		},
		FilterLogsFn: func(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
			query = q
			return []types.Log{wantLog}, nil
		},
	}
	s := newSource(client, chain.Config{})

	block, err := s.FetchBlock(context.Background(), 100)
	require.NoError(t, err)

	assert.Equal(t, uint64(100), block.Number)
	assert.Equal(t, common.HexToHash("0xdead").Hex(), block.ParentHash)
	assert.Equal(t, time.Unix(1700000100, 0), block.Timestamp)
	assert.Equal(t, []types.Log{wantLog}, block.Logs)

	// The log filter is pinned to the single block and the transfer topics
	require.NotNil(t, query.FromBlock)
	assert.Equal(t, uint64(100), query.FromBlock.Uint64())
	assert.Equal(t, uint64(100), query.ToBlock.Uint64())
	require.Len(t, query.Topics, 1)
	assert.Equal(t, normalize.Topics(), query.Topics[0])
}

func TestSource_BlockHash(t *testing.T) {
	client := &mocks.FakeEthClient{
		HeaderByNumberFn: func(_ context.Context, number *big.Int) (*types.Header, error) {
			require.NotNil(t, number)
			return header(number.Uint64()), nil
		},
	}
	s := newSource(client, chain.Config{})

	hash, err := s.BlockHash(context.Background(), 77)
	require.NoError(t, err)
	assert.Equal(t, header(77).Hash().Hex(), hash)
}

func TestSource_Close(t *testing.T) {
	client := &mocks.FakeEthClient{}
	s := newSource(client, chain.Config{})
	s.Close()
	assert.True(t, client.Closed)
}
