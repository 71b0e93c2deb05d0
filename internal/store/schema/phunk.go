package schema

import (
	"time"
)

// Phunk is the current-state projection of an ethscription, rebuildable from
// the event ledger
type Phunk struct {
	// Chain identifies the ledger partition (CAIP-2, e.g. "eip155:1")
	Chain string `gorm:"column:chain;primaryKey;type:text" json:"chain"`
	// HashID is the keccak-256 digest of the normalized calldata bytes
	HashID string `gorm:"column:hash_id;primaryKey;type:text" json:"hashId"`
	// Creator is the address that originated the ethscription
	Creator string `gorm:"column:creator;not null;type:text;index" json:"creator"`
	// Owner is the target of the most recent valid transfer
	Owner string `gorm:"column:owner;not null;type:text;index" json:"owner"`
	// PrevOwner is the immediately preceding owner
	PrevOwner *string `gorm:"column:prev_owner;type:text" json:"prevOwner"`
	// PhunkID is the collection sequence number, assigned at most once
	PhunkID *uint64 `gorm:"column:phunk_id;uniqueIndex:idx_phunks_chain_phunk_id,priority:2" json:"phunkId"`
	// Sha is the derived media hash used for sequence resolution
	Sha string `gorm:"column:sha;not null;type:text;index" json:"sha"`
	// Data holds the raw content bytes
	Data []byte `gorm:"column:data;type:bytea" json:"data"`
	// ContentType is the sniffed or declared mime type of the content
	ContentType string `gorm:"column:content_type;type:text" json:"contentType"`
	// EthscriptionNumber is the global protocol sequence reported by the oracle
	EthscriptionNumber *uint64 `gorm:"column:ethscription_number" json:"ethscriptionNumber"`
	// CreationBlock is the block that carried the creation transaction
	CreationBlock uint64 `gorm:"column:creation_block;not null;index" json:"blockNumber"`
	// CreationTxIndex is the creation transaction's index within its block
	CreationTxIndex uint64 `gorm:"column:creation_tx_index;not null" json:"txIndex"`
	// CreationTxHash is the creation transaction hash
	CreationTxHash string `gorm:"column:creation_tx_hash;not null;type:text" json:"txHash"`
	// BlockHash is the hash of the creation block
	BlockHash string `gorm:"column:block_hash;type:text" json:"blockHash"`
	// Curated marks membership in the configured allow-list
	Curated bool `gorm:"column:curated;not null;default:false" json:"curated"`
	// Flagged marks a consensus-oracle mismatch pending manual review
	Flagged bool `gorm:"column:flagged;not null;default:false" json:"flagged"`
	// CreatedAt is when this record was first indexed
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()" json:"createdAt"`
}

// TableName specifies the table name for the Phunk model
func (Phunk) TableName() string {
	return "phunks"
}
