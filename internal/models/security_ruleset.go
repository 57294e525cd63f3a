package models

import (
	"time"
)

// SecurityRuleSet is a named body of WAF inspection rules. At least one of
// Content or SourceURL is always populated; rulesets with a SourceURL are
// refreshed on a schedule.
type SecurityRuleSet struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	UUID        string    `json:"uuid" gorm:"uniqueIndex"`
	Name        string    `json:"name" gorm:"uniqueIndex"`
	SourceURL   string    `json:"source_url" gorm:"type:text"`
	Content     string    `json:"content" gorm:"type:text"`
	Mode        string    `json:"mode"` // "block" or "detect"
	LastUpdated time.Time `json:"last_updated"`
}
