package models

import (
	"time"
)

// Certificate stores TLS certificate metadata referenced by proxy hosts.
// Issuance and renewal happen elsewhere; the compiler only attaches the PEM
// material (custom certs) or leaves the domain to ACME automation.
type Certificate struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	UUID        string    `json:"uuid" gorm:"uniqueIndex"`
	Name        string    `json:"name"`
	Provider    string    `json:"provider"` // "acme" or "custom"
	Certificate string     `json:"-" gorm:"type:text"`
	PrivateKey  string     `json:"-" gorm:"type:text"`
	ExpiresAt   *time.Time `json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
