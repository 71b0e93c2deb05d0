package schema

import (
	"time"
)

// IndexedBlock journals the hash of each processed block so a reorg's fork
// point can be located after restart. Only a trailing window is retained.
type IndexedBlock struct {
	Chain     string    `gorm:"column:chain;primaryKey;type:text"`
	Number    uint64    `gorm:"column:number;primaryKey"`
	Hash      string    `gorm:"column:hash;not null;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
}

// TableName specifies the table name for the IndexedBlock model
func (IndexedBlock) TableName() string {
	return "indexed_blocks"
}
