package models

import (
	"time"
)

// SecurityConfig is the singleton record holding global security pipeline
// settings. It is read once per compile cycle and passed by value into the
// composer; nothing mutates it mid-cycle.
type SecurityConfig struct {
	ID                 uint      `json:"id" gorm:"primaryKey"`
	UUID               string    `json:"uuid" gorm:"uniqueIndex"`
	Name               string    `json:"name" gorm:"index"`
	Enabled            bool      `json:"enabled"`
	CrowdSecEnabled    bool      `json:"crowdsec_enabled"`
	CrowdSecAPIURL     string    `json:"crowdsec_api_url"`
	CrowdSecAPIKey     string    `json:"-" gorm:"column:crowdsec_api_key"`
	ACLEnabled         bool      `json:"acl_enabled"`
	WAFMode            string    `json:"waf_mode"` // "disabled", "detect", "block"
	WAFRulesSource     string    `json:"waf_rules_source"`
	RateLimitEnabled   bool      `json:"rate_limit_enabled"`
	RateLimitRequests  int       `json:"rate_limit_requests"`
	RateLimitBurst     int       `json:"rate_limit_burst"`
	RateLimitWindowSec int       `json:"rate_limit_window_sec"`
	AdminWhitelist     string    `json:"admin_whitelist" gorm:"type:text"` // comma-separated CIDRs
	BreakGlassHash     string    `json:"-" gorm:"column:break_glass_hash"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// WAFEnabled reports whether the WAF stage participates in composed chains.
func (c *SecurityConfig) WAFEnabled() bool {
	return c.Enabled && c.WAFMode != "" && c.WAFMode != "disabled"
}
