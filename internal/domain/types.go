package domain

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Chain represents the blockchain network identifier using CAIP-2 format
type Chain string

const (
	ChainEthereumMainnet Chain = "eip155:1"
	ChainEthereumSepolia Chain = "eip155:11155111"
)

// IsValidChain checks if a chain is valid
func IsValidChain(chain Chain) bool {
	return chain == ChainEthereumMainnet || chain == ChainEthereumSepolia
}

// EventType represents the type of ledger event
type EventType string

const (
	EventTypeCreated  EventType = "created"
	EventTypeTransfer EventType = "transfer"
	EventTypeSale     EventType = "sale"
	EventTypeBurned   EventType = "burned"
)

// OrderingKey establishes the total order of events for a given ethscription
type OrderingKey struct {
	BlockNumber uint64 `json:"block_number"`
	TxIndex     uint64 `json:"tx_index"`
	LogIndex    uint64 `json:"log_index"`
}

// After reports whether k is strictly greater than other
func (k OrderingKey) After(other OrderingKey) bool {
	if k.BlockNumber != other.BlockNumber {
		return k.BlockNumber > other.BlockNumber
	}
	if k.TxIndex != other.TxIndex {
		return k.TxIndex > other.TxIndex
	}
	return k.LogIndex > other.LogIndex
}

// Event is an append-only ledger entry for one ethscription
type Event struct {
	Type           EventType `json:"type"`
	HashID         string    `json:"hash_id"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	TxHash         string    `json:"tx_hash"`
	BlockNumber    uint64    `json:"block_number"`
	TxIndex        uint64    `json:"tx_index"`
	LogIndex       uint64    `json:"log_index"`
	BlockHash      string    `json:"block_hash"`
	BlockTimestamp time.Time `json:"block_timestamp"`
}

// Key returns the ordering key of the event
func (e *Event) Key() OrderingKey {
	return OrderingKey{BlockNumber: e.BlockNumber, TxIndex: e.TxIndex, LogIndex: e.LogIndex}
}

// TransactionPayload carries one transaction of a fetched block
type TransactionPayload struct {
	Hash  string
	Index uint64
	From  string
	To    *string
	Value string
	Input []byte
}

// BlockPayload is one unit of work produced by the chain source: a block with
// its transactions and the logs matching the configured transfer topics
type BlockPayload struct {
	Number       uint64
	Hash         string
	ParentHash   string
	Timestamp    time.Time
	Transactions []TransactionPayload
	Logs         []types.Log
}

// Classification is the closed set of outcomes for one transaction's calldata.
// Exactly one of Creation, TransferCandidate or NotApplicable implements it.
type Classification interface {
	isClassification()
}

// Creation marks calldata that originates a new ethscription
type Creation struct {
	HashID      string
	Content     []byte
	ContentType string
	Sha         string
	Creator     string
}

func (Creation) isClassification() {}

// TransferCandidate marks a zero-payload call carrying a 32-byte ethscription id,
// signaling a transfer of that ethscription to the transaction recipient
type TransferCandidate struct {
	HashID string
}

func (TransferCandidate) isClassification() {}

// NotApplicable marks calldata that encodes neither protocol shape
type NotApplicable struct {
	Reason string
}

func (NotApplicable) isClassification() {}

// TransferSignal is the closed set of on-chain transfer log shapes.
// SchemeB supersedes SchemeA when both fire for the same transaction.
type TransferSignal interface {
	isTransferSignal()
	EthscriptionID() string
	TxHash() string
	Key() OrderingKey
}

// SignalMeta carries the log position shared by both schemes
type SignalMeta struct {
	Tx          string
	BlockNumber uint64
	TxIndex     uint64
	LogIndex    uint64
}

// SchemeA is the single-party transfer signal: the previous owner is resolved
// from current state
type SchemeA struct {
	Recipient string
	ID        string
	Meta      SignalMeta
}

func (SchemeA) isTransferSignal()        {}
func (s SchemeA) EthscriptionID() string { return s.ID }
func (s SchemeA) TxHash() string         { return s.Meta.Tx }
func (s SchemeA) Key() OrderingKey {
	return OrderingKey{BlockNumber: s.Meta.BlockNumber, TxIndex: s.Meta.TxIndex, LogIndex: s.Meta.LogIndex}
}

// SchemeB is the previous-owner-qualified transfer signal, tamper-evident
// against stale-owner races
type SchemeB struct {
	PreviousOwner string
	Recipient     string
	ID            string
	Meta          SignalMeta
}

func (SchemeB) isTransferSignal()        {}
func (s SchemeB) EthscriptionID() string { return s.ID }
func (s SchemeB) TxHash() string         { return s.Meta.Tx }
func (s SchemeB) Key() OrderingKey {
	return OrderingKey{BlockNumber: s.Meta.BlockNumber, TxIndex: s.Meta.TxIndex, LogIndex: s.Meta.LogIndex}
}

// NormalizeAddress lower-cases an address for storage and comparison
func NormalizeAddress(addr string) string {
	return strings.ToLower(common.HexToAddress(addr).Hex())
}

// NormalizeAddresses normalizes a list of addresses
func NormalizeAddresses(addrs []string) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = NormalizeAddress(a)
	}
	return out
}
