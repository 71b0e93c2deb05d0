package normalize

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/ethereum-phunks/phunk-indexer/internal/domain"
	"github.com/ethereum-phunks/phunk-indexer/internal/logger"
)

// Event signatures for the two transfer-signaling schemes
var (
	// Scheme A: TransferEthscription(address indexed recipient, bytes32 indexed ethscriptionId)
	TransferEthscriptionTopic = crypto.Keccak256Hash([]byte("TransferEthscription(address,bytes32)"))

	// Scheme B: TransferEthscriptionForPreviousOwner(address indexed previousOwner, address indexed recipient, bytes32 indexed ethscriptionId)
	TransferForPreviousOwnerTopic = crypto.Keccak256Hash([]byte("TransferEthscriptionForPreviousOwner(address,address,bytes32)"))
)

// Topics returns the log topics the chain source must subscribe to
func Topics() []common.Hash {
	return []common.Hash{TransferEthscriptionTopic, TransferForPreviousOwnerTopic}
}

// OwnerLookup resolves the current owner of an ethscription from local state
type OwnerLookup interface {
	// GetOwner returns the current owner address, or domain.ErrPhunkNotFound
	GetOwner(ctx context.Context, hashID string) (string, error)
}

// Config holds the address sets used to reclassify transfers
type Config struct {
	// MarketplaceAddresses are contract addresses whose receipt of an
	// ethscription marks a sale
	MarketplaceAddresses []string

	// BurnAddresses are sinks whose receipt marks a burn
	BurnAddresses []string
}

// ClassifiedTx pairs a transaction with its classification outcome
type ClassifiedTx struct {
	Tx     domain.TransactionPayload
	Result domain.Classification
}

// Normalizer unifies calldata transfer candidates and the two on-chain
// transfer-signaling schemes into canonical ledger events
type Normalizer interface {
	// ParseTransferLog maps a raw log to a transfer signal variant; a nil
	// signal with nil error means the log is not a recognized shape
	ParseTransferLog(log types.Log) (domain.TransferSignal, error)

	// NormalizeBlock produces the ordered canonical events for one block
	NormalizeBlock(ctx context.Context, block *domain.BlockPayload, classified []ClassifiedTx) ([]domain.Event, error)
}

type normalizer struct {
	owners      OwnerLookup
	marketplace map[string]bool
	burn        map[string]bool
}

// NewNormalizer creates a new event normalizer
func NewNormalizer(cfg Config, owners OwnerLookup) Normalizer {
	n := &normalizer{
		owners:      owners,
		marketplace: make(map[string]bool),
		burn:        make(map[string]bool),
	}
	for _, addr := range cfg.MarketplaceAddresses {
		n.marketplace[domain.NormalizeAddress(addr)] = true
	}
	for _, addr := range cfg.BurnAddresses {
		n.burn[domain.NormalizeAddress(addr)] = true
	}
	n.burn[domain.EthereumZeroAddress] = true
	n.burn[domain.EthereumDeadAddress] = true
	return n
}

// ParseTransferLog maps a raw log to a SchemeA or SchemeB signal
func (n *normalizer) ParseTransferLog(log types.Log) (domain.TransferSignal, error) {
	if len(log.Topics) == 0 {
		return nil, nil
	}

	meta := domain.SignalMeta{
		Tx:          log.TxHash.Hex(),
		BlockNumber: log.BlockNumber,
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
	}

	switch log.Topics[0] {
	case TransferEthscriptionTopic:
		if len(log.Topics) != 3 {
			return nil, fmt.Errorf("scheme A log with %d topics", len(log.Topics))
		}
		return domain.SchemeA{
			Recipient: domain.NormalizeAddress(common.BytesToAddress(log.Topics[1].Bytes()).Hex()),
			ID:        log.Topics[2].Hex(),
			Meta:      meta,
		}, nil

	case TransferForPreviousOwnerTopic:
		if len(log.Topics) != 4 {
			return nil, fmt.Errorf("scheme B log with %d topics", len(log.Topics))
		}
		return domain.SchemeB{
			PreviousOwner: domain.NormalizeAddress(common.BytesToAddress(log.Topics[1].Bytes()).Hex()),
			Recipient:     domain.NormalizeAddress(common.BytesToAddress(log.Topics[2].Bytes()).Hex()),
			ID:            log.Topics[3].Hex(),
			Meta:          meta,
		}, nil
	}

	return nil, nil
}

// transferIntent is one candidate transfer before scheme precedence is applied
type transferIntent struct {
	hashID   string
	from     string // empty when it must be resolved from current state
	to       string
	key      domain.OrderingKey
	txHash   string
	priority int // higher wins within one transaction
}

// NormalizeBlock produces the ordered canonical events for one block.
// Within one transaction a Scheme B signal supersedes Scheme A, which in turn
// supersedes a bare calldata transfer for the same ethscription.
func (n *normalizer) NormalizeBlock(ctx context.Context, block *domain.BlockPayload, classified []ClassifiedTx) ([]domain.Event, error) {
	var events []domain.Event
	var intents []transferIntent

	// Owners as of this block: seeded by the block's own creations and
	// advanced by each applied transfer, so a transfer of an ethscription
	// created or moved earlier in the same block resolves locally instead of
	// missing the not-yet-committed state
	pending := make(map[string]string)

	for _, ct := range classified {
		switch result := ct.Result.(type) {
		case domain.Creation:
			pending[strings.ToLower(result.HashID)] = result.Creator
			events = append(events, domain.Event{
				Type:           domain.EventTypeCreated,
				HashID:         strings.ToLower(result.HashID),
				From:           domain.EthereumZeroAddress,
				To:             result.Creator,
				TxHash:         ct.Tx.Hash,
				BlockNumber:    block.Number,
				TxIndex:        ct.Tx.Index,
				BlockHash:      block.Hash,
				BlockTimestamp: block.Timestamp,
			})

		case domain.TransferCandidate:
			if ct.Tx.To == nil {
				logger.DebugCtx(ctx, "Calldata transfer without recipient, skipping",
					zap.String("tx_hash", ct.Tx.Hash))
				continue
			}
			intents = append(intents, transferIntent{
				hashID:   strings.ToLower(result.HashID),
				to:       domain.NormalizeAddress(*ct.Tx.To),
				key:      domain.OrderingKey{BlockNumber: block.Number, TxIndex: ct.Tx.Index},
				txHash:   ct.Tx.Hash,
				priority: 0,
			})

		case domain.NotApplicable:
			// Not an error; most transactions are unrelated to the protocol
		}
	}

	for _, log := range block.Logs {
		signal, err := n.ParseTransferLog(log)
		if err != nil {
			logger.WarnCtx(ctx, "Skipping malformed transfer log",
				zap.String("tx_hash", log.TxHash.Hex()), zap.Error(err))
			continue
		}
		if signal == nil {
			continue
		}

		switch s := signal.(type) {
		case domain.SchemeA:
			intents = append(intents, transferIntent{
				hashID:   strings.ToLower(s.ID),
				to:       s.Recipient,
				key:      s.Key(),
				txHash:   s.Meta.Tx,
				priority: 1,
			})
		case domain.SchemeB:
			intents = append(intents, transferIntent{
				hashID:   strings.ToLower(s.ID),
				from:     s.PreviousOwner,
				to:       s.Recipient,
				key:      s.Key(),
				txHash:   s.Meta.Tx,
				priority: 2,
			})
		}
	}

	// Scheme precedence: keep only the highest-priority intent per
	// (transaction, ethscription); the superseded record is redundant
	best := make(map[string]transferIntent)
	for _, intent := range intents {
		dedupeKey := intent.txHash + "/" + intent.hashID
		if prev, ok := best[dedupeKey]; ok && prev.priority >= intent.priority {
			continue
		}
		best[dedupeKey] = intent
	}

	// Apply in ordering-key order so chained same-block transfers hand
	// ownership forward correctly
	ordered := make([]transferIntent, 0, len(best))
	for _, intent := range best {
		ordered = append(ordered, intent)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[j].key.After(ordered[i].key)
	})

	for _, intent := range ordered {
		from := intent.from
		if from == "" {
			if owner, ok := pending[intent.hashID]; ok {
				from = owner
			} else {
				owner, err := n.owners.GetOwner(ctx, intent.hashID)
				if err != nil {
					// Unknown ethscription: nothing to transfer, skip and log
					logger.DebugCtx(ctx, "Transfer signal for unknown ethscription, skipping",
						zap.String("hash_id", intent.hashID), zap.String("tx_hash", intent.txHash))
					continue
				}
				from = owner
			}
		}
		pending[intent.hashID] = intent.to

		events = append(events, domain.Event{
			Type:           n.eventType(intent.to),
			HashID:         intent.hashID,
			From:           from,
			To:             intent.to,
			TxHash:         intent.txHash,
			BlockNumber:    intent.key.BlockNumber,
			TxIndex:        intent.key.TxIndex,
			LogIndex:       intent.key.LogIndex,
			BlockHash:      block.Hash,
			BlockTimestamp: block.Timestamp,
		})
	}

	sort.Slice(events, func(i, j int) bool {
		return events[j].Key().After(events[i].Key())
	})

	return events, nil
}

// eventType reclassifies a transfer by its destination
func (n *normalizer) eventType(to string) domain.EventType {
	switch {
	case n.burn[to]:
		return domain.EventTypeBurned
	case n.marketplace[to]:
		return domain.EventTypeSale
	default:
		return domain.EventTypeTransfer
	}
}
