package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-phunks/phunk-indexer/internal/domain"
	"github.com/ethereum-phunks/phunk-indexer/internal/store"
	"github.com/ethereum-phunks/phunk-indexer/internal/store/schema"
)

const (
	alice = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
	carol = "0x3333333333333333333333333333333333333333"
)

func entry(eventType domain.EventType, from, to string, block, txIndex, logIndex uint64) schema.Event {
	return schema.Event{
		Type:        string(eventType),
		FromAddress: from,
		ToAddress:   to,
		BlockNumber: block,
		TxIndex:     txIndex,
		LogIndex:    logIndex,
	}
}

func TestReplay(t *testing.T) {
	tests := []struct {
		name     string
		events   []schema.Event
		expected store.ProjectedState
	}{
		{
			name:     "empty ledger",
			events:   nil,
			expected: store.ProjectedState{},
		},
		{
			name: "creation only",
			events: []schema.Event{
				entry(domain.EventTypeCreated, domain.EthereumZeroAddress, alice, 100, 0, 0),
			},
			expected: store.ProjectedState{Creator: alice, Owner: alice},
		},
		{
			name: "creation then transfer",
			events: []schema.Event{
				entry(domain.EventTypeCreated, domain.EthereumZeroAddress, alice, 100, 0, 0),
				entry(domain.EventTypeTransfer, alice, bob, 101, 2, 1),
			},
			expected: store.ProjectedState{Creator: alice, Owner: bob, PrevOwner: strPtr(alice)},
		},
		{
			name: "sale moves ownership like a transfer",
			events: []schema.Event{
				entry(domain.EventTypeCreated, domain.EthereumZeroAddress, alice, 100, 0, 0),
				entry(domain.EventTypeSale, alice, carol, 105, 1, 3),
			},
			expected: store.ProjectedState{Creator: alice, Owner: carol, PrevOwner: strPtr(alice)},
		},
		{
			name: "burn marks the state burned",
			events: []schema.Event{
				entry(domain.EventTypeCreated, domain.EthereumZeroAddress, alice, 100, 0, 0),
				entry(domain.EventTypeBurned, alice, domain.EthereumZeroAddress, 110, 0, 0),
			},
			expected: store.ProjectedState{
				Creator:   alice,
				Owner:     domain.EthereumZeroAddress,
				PrevOwner: strPtr(alice),
				Burned:    true,
			},
		},
		{
			name: "transfer after burn clears the burned flag",
			events: []schema.Event{
				entry(domain.EventTypeCreated, domain.EthereumZeroAddress, alice, 100, 0, 0),
				entry(domain.EventTypeBurned, alice, domain.EthereumZeroAddress, 110, 0, 0),
				entry(domain.EventTypeTransfer, domain.EthereumZeroAddress, bob, 120, 0, 0),
			},
			expected: store.ProjectedState{
				Creator:   alice,
				Owner:     bob,
				PrevOwner: strPtr(domain.EthereumZeroAddress),
				Burned:    false,
			},
		},
		{
			name: "log index breaks ties within one transaction",
			events: []schema.Event{
				entry(domain.EventTypeCreated, domain.EthereumZeroAddress, alice, 100, 0, 0),
				entry(domain.EventTypeTransfer, bob, carol, 101, 4, 9),
				entry(domain.EventTypeTransfer, alice, bob, 101, 4, 2),
			},
			expected: store.ProjectedState{Creator: alice, Owner: carol, PrevOwner: strPtr(bob)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, store.Replay(tt.events))
		})
	}
}

func TestReplay_IndependentOfInputOrder(t *testing.T) {
	ordered := []schema.Event{
		entry(domain.EventTypeCreated, domain.EthereumZeroAddress, alice, 100, 0, 0),
		entry(domain.EventTypeTransfer, alice, bob, 101, 2, 1),
		entry(domain.EventTypeSale, bob, carol, 102, 0, 5),
	}
	reversed := []schema.Event{ordered[2], ordered[1], ordered[0]}
	shuffled := []schema.Event{ordered[1], ordered[2], ordered[0]}

	expected := store.Replay(ordered)
	require.Equal(t, carol, expected.Owner)

	assert.Equal(t, expected, store.Replay(reversed))
	assert.Equal(t, expected, store.Replay(shuffled))
}

func TestReplay_DoesNotMutateInput(t *testing.T) {
	events := []schema.Event{
		entry(domain.EventTypeTransfer, alice, bob, 102, 0, 0),
		entry(domain.EventTypeCreated, domain.EthereumZeroAddress, alice, 100, 0, 0),
	}

	store.Replay(events)

	assert.Equal(t, string(domain.EventTypeTransfer), events[0].Type)
	assert.Equal(t, uint64(102), events[0].BlockNumber)
}

func TestLastKey(t *testing.T) {
	assert.Equal(t, domain.OrderingKey{}, store.LastKey(nil))

	events := []schema.Event{
		entry(domain.EventTypeTransfer, alice, bob, 101, 2, 1),
		entry(domain.EventTypeCreated, domain.EthereumZeroAddress, alice, 100, 0, 0),
		entry(domain.EventTypeSale, bob, carol, 101, 2, 9),
	}
	assert.Equal(t, domain.OrderingKey{BlockNumber: 101, TxIndex: 2, LogIndex: 9}, store.LastKey(events))
}

func strPtr(s string) *string {
	return &s
}
