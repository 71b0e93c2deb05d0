// Package mocks provides hand-written test doubles for the interfaces used
// across the indexer. Each fake delegates to optional function fields and
// returns zero values when a field is unset.
package mocks

import (
	"context"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ethereum-phunks/phunk-indexer/internal/domain"
	"github.com/ethereum-phunks/phunk-indexer/internal/store"
	"github.com/ethereum-phunks/phunk-indexer/internal/store/schema"
)

// FakeStore implements store.Store
type FakeStore struct {
	AppendEventFn           func(ctx context.Context, chain domain.Chain, event *domain.Event) (bool, error)
	CommitBlockFn           func(ctx context.Context, chain domain.Chain, input store.CommitBlockInput) (*store.CommitBlockResult, error)
	ProjectPhunkFn          func(ctx context.Context, chain domain.Chain, hashID string) (*schema.Phunk, error)
	GetPhunkFn              func(ctx context.Context, chain domain.Chain, hashID string) (*schema.Phunk, error)
	GetOwnerFn              func(ctx context.Context, chain domain.Chain, hashID string) (string, error)
	RecordedBlockHashFn     func(ctx context.Context, chain domain.Chain, number uint64) (string, error)
	RollbackFromFn          func(ctx context.Context, chain domain.Chain, forkPoint uint64) ([]string, error)
	GetBlockCursorFn        func(ctx context.Context, chain domain.Chain) (uint64, error)
	SetBlockCursorFn        func(ctx context.Context, chain domain.Chain, blockNumber uint64) error
	SetFlaggedFn            func(ctx context.Context, chain domain.Chain, hashID string, flagged bool) error
	SetEthscriptionNumberFn func(ctx context.Context, chain domain.Chain, hashID string, number uint64) error
	LoadShaMappingFn        func(ctx context.Context, mapping map[string]uint64) error
	ListPhunksFn            func(ctx context.Context, filter store.PhunkFilter) ([]schema.Phunk, uint64, error)
	ListEventsFn            func(ctx context.Context, filter store.EventFilter) ([]schema.Event, uint64, error)
}

func (f *FakeStore) AppendEvent(ctx context.Context, chain domain.Chain, event *domain.Event) (bool, error) {
	if f.AppendEventFn != nil {
		return f.AppendEventFn(ctx, chain, event)
	}
	return false, nil
}

func (f *FakeStore) CommitBlock(ctx context.Context, chain domain.Chain, input store.CommitBlockInput) (*store.CommitBlockResult, error) {
	if f.CommitBlockFn != nil {
		return f.CommitBlockFn(ctx, chain, input)
	}
	return &store.CommitBlockResult{}, nil
}

func (f *FakeStore) ProjectPhunk(ctx context.Context, chain domain.Chain, hashID string) (*schema.Phunk, error) {
	if f.ProjectPhunkFn != nil {
		return f.ProjectPhunkFn(ctx, chain, hashID)
	}
	return nil, domain.ErrPhunkNotFound
}

func (f *FakeStore) GetPhunk(ctx context.Context, chain domain.Chain, hashID string) (*schema.Phunk, error) {
	if f.GetPhunkFn != nil {
		return f.GetPhunkFn(ctx, chain, hashID)
	}
	return nil, domain.ErrPhunkNotFound
}

func (f *FakeStore) GetOwner(ctx context.Context, chain domain.Chain, hashID string) (string, error) {
	if f.GetOwnerFn != nil {
		return f.GetOwnerFn(ctx, chain, hashID)
	}
	return "", domain.ErrPhunkNotFound
}

func (f *FakeStore) RecordedBlockHash(ctx context.Context, chain domain.Chain, number uint64) (string, error) {
	if f.RecordedBlockHashFn != nil {
		return f.RecordedBlockHashFn(ctx, chain, number)
	}
	return "", nil
}

func (f *FakeStore) RollbackFrom(ctx context.Context, chain domain.Chain, forkPoint uint64) ([]string, error) {
	if f.RollbackFromFn != nil {
		return f.RollbackFromFn(ctx, chain, forkPoint)
	}
	return nil, nil
}

func (f *FakeStore) GetBlockCursor(ctx context.Context, chain domain.Chain) (uint64, error) {
	if f.GetBlockCursorFn != nil {
		return f.GetBlockCursorFn(ctx, chain)
	}
	return 0, nil
}

func (f *FakeStore) SetBlockCursor(ctx context.Context, chain domain.Chain, blockNumber uint64) error {
	if f.SetBlockCursorFn != nil {
		return f.SetBlockCursorFn(ctx, chain, blockNumber)
	}
	return nil
}

func (f *FakeStore) SetFlagged(ctx context.Context, chain domain.Chain, hashID string, flagged bool) error {
	if f.SetFlaggedFn != nil {
		return f.SetFlaggedFn(ctx, chain, hashID, flagged)
	}
	return nil
}

func (f *FakeStore) SetEthscriptionNumber(ctx context.Context, chain domain.Chain, hashID string, number uint64) error {
	if f.SetEthscriptionNumberFn != nil {
		return f.SetEthscriptionNumberFn(ctx, chain, hashID, number)
	}
	return nil
}

func (f *FakeStore) LoadShaMapping(ctx context.Context, mapping map[string]uint64) error {
	if f.LoadShaMappingFn != nil {
		return f.LoadShaMappingFn(ctx, mapping)
	}
	return nil
}

func (f *FakeStore) ListPhunks(ctx context.Context, filter store.PhunkFilter) ([]schema.Phunk, uint64, error) {
	if f.ListPhunksFn != nil {
		return f.ListPhunksFn(ctx, filter)
	}
	return nil, 0, nil
}

func (f *FakeStore) ListEvents(ctx context.Context, filter store.EventFilter) ([]schema.Event, uint64, error) {
	if f.ListEventsFn != nil {
		return f.ListEventsFn(ctx, filter)
	}
	return nil, 0, nil
}

// FakeHTTPClient implements adapter.HTTPClient
type FakeHTTPClient struct {
	GetFn  func(ctx context.Context, url string, result interface{}) error
	PostFn func(ctx context.Context, url string, contentType string, body io.Reader) ([]byte, error)

	GetCalls  []string
	PostCalls []string
}

func (f *FakeHTTPClient) Get(ctx context.Context, url string, result interface{}) error {
	f.GetCalls = append(f.GetCalls, url)
	if f.GetFn != nil {
		return f.GetFn(ctx, url, result)
	}
	return nil
}

func (f *FakeHTTPClient) Post(ctx context.Context, url string, contentType string, body io.Reader) ([]byte, error) {
	f.PostCalls = append(f.PostCalls, url)
	if f.PostFn != nil {
		return f.PostFn(ctx, url, contentType, body)
	}
	return nil, nil
}

// FakeEthClient implements adapter.EthClient
type FakeEthClient struct {
	BlockByNumberFn     func(ctx context.Context, number *big.Int) (*types.Block, error)
	HeaderByNumberFn    func(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogsFn        func(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
	TransactionSenderFn func(ctx context.Context, tx *types.Transaction, block common.Hash, index uint) (common.Address, error)
	Closed              bool
}

func (f *FakeEthClient) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	if f.BlockByNumberFn != nil {
		return f.BlockByNumberFn(ctx, number)
	}
	return nil, ethereum.NotFound
}

func (f *FakeEthClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if f.HeaderByNumberFn != nil {
		return f.HeaderByNumberFn(ctx, number)
	}
	return nil, ethereum.NotFound
}

func (f *FakeEthClient) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	if f.FilterLogsFn != nil {
		return f.FilterLogsFn(ctx, query)
	}
	return nil, nil
}

func (f *FakeEthClient) TransactionSender(ctx context.Context, tx *types.Transaction, block common.Hash, index uint) (common.Address, error) {
	if f.TransactionSenderFn != nil {
		return f.TransactionSenderFn(ctx, tx, block, index)
	}
	return common.Address{}, nil
}

func (f *FakeEthClient) Close() {
	f.Closed = true
}

// FakeClock implements adapter.Clock with an instantly-firing timer
type FakeClock struct {
	NowTime time.Time
}

func (f *FakeClock) Now() time.Time {
	if f.NowTime.IsZero() {
		return time.Unix(0, 0)
	}
	return f.NowTime
}

func (f *FakeClock) Since(t time.Time) time.Duration {
	return f.Now().Sub(t)
}

func (f *FakeClock) Sleep(d time.Duration) {}

func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- f.Now()
	return ch
}
