package schema

import (
	"time"

	"gorm.io/datatypes"
)

// QuarantinedEvent holds an event that violated a ledger invariant, surfaced
// for manual review instead of being applied
type QuarantinedEvent struct {
	ID        string         `gorm:"column:id;primaryKey;type:uuid"`
	Chain     string         `gorm:"column:chain;not null;type:text;index"`
	HashID    string         `gorm:"column:hash_id;not null;type:text;index"`
	Reason    string         `gorm:"column:reason;not null;type:text"`
	Payload   datatypes.JSON `gorm:"column:payload"`
	CreatedAt time.Time      `gorm:"column:created_at;not null;default:now()"`
}

// TableName specifies the table name for the QuarantinedEvent model
func (QuarantinedEvent) TableName() string {
	return "quarantined_events"
}
