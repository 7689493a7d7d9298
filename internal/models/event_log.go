package models

import (
	"time"
)

// EventLog persisted copy of an event from a committed transaction
type EventLog struct {
	ID           uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	TxHash       string    `json:"tx_hash" gorm:"not null;size:66;index;uniqueIndex:idx_tx_event"`
	LogIndex     int       `json:"log_index" gorm:"not null;uniqueIndex:idx_tx_event"`
	Sequence     uint64    `json:"sequence" gorm:"not null;index"`
	Contract     string    `json:"contract" gorm:"not null;size:42;index:idx_contract_event"`
	ContractName string    `json:"contract_name" gorm:"size:64"`
	EventName    string    `json:"event_name" gorm:"not null;size:64;index:idx_contract_event"`
	AgreementID  string    `json:"agreement_id,omitempty" gorm:"size:66;index"`
	Data         string    `json:"data" gorm:"type:text"` // JSON encoded fields
	BlockTime    uint64    `json:"block_time" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName specifies the table name
func (EventLog) TableName() string {
	return "event_logs"
}

// StateEntry one key of the committed protocol state
type StateEntry struct {
	Key       string    `gorm:"primaryKey;size:255"`
	Value     []byte    `gorm:"type:bytea;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name
func (StateEntry) TableName() string {
	return "state_entries"
}
