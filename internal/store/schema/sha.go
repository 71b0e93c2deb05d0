package schema

// Sha maps a media hash to its externally assigned collection sequence number
type Sha struct {
	Sha     string `gorm:"column:sha;primaryKey;type:text" json:"sha"`
	PhunkID uint64 `gorm:"column:phunk_id;not null;uniqueIndex" json:"phunkId"`
}

// TableName specifies the table name for the Sha model
func (Sha) TableName() string {
	return "shas"
}
