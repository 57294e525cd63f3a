package models

import (
	"time"
)

// ImportSession tracks one import of externally authored engine
// configuration from upload through conflict review to commit.
type ImportSession struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	UUID            string     `json:"uuid" gorm:"uniqueIndex"`
	SourceFile      string     `json:"source_file"`
	Status          string     `json:"status"` // "pending", "reviewing", "committed", "cancelled"
	ParsedData      string     `json:"-" gorm:"type:text"`
	ConflictReport  string     `json:"-" gorm:"type:text"`
	UserResolutions string     `json:"-" gorm:"type:text"`
	CommittedAt     *time.Time `json:"committed_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
