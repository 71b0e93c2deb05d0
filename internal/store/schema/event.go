package schema

import (
	"time"
)

// Event is one append-only ledger entry. Rows are never mutated; they are
// deleted only during reorg rollback.
type Event struct {
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	// Chain identifies the ledger partition
	Chain string `gorm:"column:chain;not null;type:text;uniqueIndex:idx_events_ordering,priority:1;index:idx_events_chain_block,priority:1" json:"chain"`
	// Type is one of created, transfer, sale, burned
	Type string `gorm:"column:type;not null;type:text" json:"type"`
	// HashID is the ethscription this entry belongs to
	HashID string `gorm:"column:hash_id;not null;type:text;uniqueIndex:idx_events_ordering,priority:2" json:"hashId"`
	// FromAddress is the sending party (zero address for creations)
	FromAddress string `gorm:"column:from_address;not null;type:text;index" json:"from"`
	// ToAddress is the receiving party
	ToAddress string `gorm:"column:to_address;not null;type:text;index" json:"to"`
	// TxHash is the transaction that produced the entry
	TxHash string `gorm:"column:tx_hash;not null;type:text" json:"txHash"`
	// BlockNumber, TxIndex and LogIndex form the ordering key
	BlockNumber uint64 `gorm:"column:block_number;not null;uniqueIndex:idx_events_ordering,priority:3;index:idx_events_chain_block,priority:2" json:"blockNumber"`
	TxIndex     uint64 `gorm:"column:tx_index;not null;uniqueIndex:idx_events_ordering,priority:4" json:"txIndex"`
	LogIndex    uint64 `gorm:"column:log_index;not null;uniqueIndex:idx_events_ordering,priority:5" json:"logIndex"`
	// BlockHash is the hash of the block that carried the entry
	BlockHash string `gorm:"column:block_hash;type:text" json:"blockHash"`
	// BlockTimestamp is the timestamp of that block
	BlockTimestamp time.Time `gorm:"column:block_timestamp;not null" json:"blockTimestamp"`
	// CreatedAt is when the entry was committed
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()" json:"createdAt"`
}

// TableName specifies the table name for the Event model
func (Event) TableName() string {
	return "events"
}
