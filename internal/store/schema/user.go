package schema

import (
	"time"
)

// User is an address-keyed record created lazily the first time an address
// appears as a party to any event
type User struct {
	Address        string    `gorm:"column:address;primaryKey;type:text" json:"address"`
	FirstSeenBlock uint64    `gorm:"column:first_seen_block;not null" json:"firstSeenBlock"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;default:now()" json:"createdAt"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}
