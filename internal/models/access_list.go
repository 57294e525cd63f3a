package models

import (
	"time"
)

// AccessList defines IP-based or geo-based access control rules that can be
// attached to proxy hosts. IPRules and LocalNetworkOnly are mutually
// exclusive: a list is either explicit CIDRs or the RFC1918 shortcut, never
// both.
type AccessList struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	UUID             string    `json:"uuid" gorm:"uniqueIndex"`
	Name             string    `json:"name" gorm:"index"`
	Description      string    `json:"description"`
	Type             string    `json:"type"`                      // "whitelist", "blacklist", "geo_whitelist", "geo_blacklist"
	IPRules          string    `json:"ip_rules" gorm:"type:text"` // JSON array of AccessListRule
	CountryCodes     string    `json:"country_codes"`             // comma-separated ISO 3166-1 alpha-2 codes
	LocalNetworkOnly bool      `json:"local_network_only"`
	Enabled          bool      `json:"enabled"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// AccessListRule is a single IP or CIDR entry inside AccessList.IPRules.
type AccessListRule struct {
	CIDR        string `json:"cidr"`
	Description string `json:"description,omitempty"`
}

// IsGeo reports whether the list matches on country codes rather than CIDRs.
func (a *AccessList) IsGeo() bool {
	return a.Type == "geo_whitelist" || a.Type == "geo_blacklist"
}
