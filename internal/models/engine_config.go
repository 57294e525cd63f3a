package models

import (
	"time"
)

// EngineConfigRecord is an audit row for one attempt to apply an assembled
// configuration to the engine.
type EngineConfigRecord struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	ConfigHash string    `json:"config_hash" gorm:"index"`
	AppliedAt  time.Time `json:"applied_at"`
	Success    bool      `json:"success"`
	ErrorMsg   string    `json:"error_msg" gorm:"type:text"`
}
