package schema

import (
	"time"
)

// KeyValueStore holds small singleton values such as per-chain block cursors
type KeyValueStore struct {
	Key       string    `gorm:"column:key;primaryKey;type:text"`
	Value     string    `gorm:"column:value;not null;type:text"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()"`
}

// TableName specifies the table name for the KeyValueStore model
func (KeyValueStore) TableName() string {
	return "key_value_store"
}
