package store

import (
	"sort"

	"github.com/ethereum-phunks/phunk-indexer/internal/domain"
	"github.com/ethereum-phunks/phunk-indexer/internal/store/schema"
)

// ProjectedState is the deterministic result of replaying one hash id's ledger
type ProjectedState struct {
	Creator   string
	Owner     string
	PrevOwner *string
	Burned    bool
}

// orderingKey extracts the ordering key of a ledger row
func orderingKey(e *schema.Event) domain.OrderingKey {
	return domain.OrderingKey{BlockNumber: e.BlockNumber, TxIndex: e.TxIndex, LogIndex: e.LogIndex}
}

// Replay folds a single hash id's ledger entries into current state. The
// input may arrive in any order; replay sorts by ordering key first, so the
// result is independent of storage or delivery order.
func Replay(events []schema.Event) ProjectedState {
	sorted := make([]schema.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		return orderingKey(&sorted[j]).After(orderingKey(&sorted[i]))
	})

	var state ProjectedState
	for i := range sorted {
		e := &sorted[i]
		switch domain.EventType(e.Type) {
		case domain.EventTypeCreated:
			state.Creator = e.ToAddress
			state.Owner = e.ToAddress
			state.PrevOwner = nil
		case domain.EventTypeTransfer, domain.EventTypeSale, domain.EventTypeBurned:
			prev := state.Owner
			if prev != "" {
				state.PrevOwner = &prev
			}
			state.Owner = e.ToAddress
			state.Burned = domain.EventType(e.Type) == domain.EventTypeBurned
		}
	}

	return state
}

// LastKey returns the greatest ordering key among the given entries, or the
// zero key when the ledger is empty
func LastKey(events []schema.Event) domain.OrderingKey {
	var last domain.OrderingKey
	for i := range events {
		if k := orderingKey(&events[i]); k.After(last) {
			last = k
		}
	}
	return last
}
