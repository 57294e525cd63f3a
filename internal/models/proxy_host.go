package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ProxyHost represents one proxied upstream service and the policy attached
// to it. DomainNames is a comma-separated list; every name must be unique
// across enabled hosts.
type ProxyHost struct {
	ID               uint         `json:"id" gorm:"primaryKey"`
	UUID             string       `json:"uuid" gorm:"uniqueIndex"`
	Name             string       `json:"name"`
	DomainNames      string       `json:"domain_names" gorm:"index"`
	ForwardScheme    string       `json:"forward_scheme"`
	ForwardHost      string       `json:"forward_host"`
	ForwardPort      int          `json:"forward_port"`
	ForceTLS         bool         `json:"force_tls"`
	HTTP2Support     bool         `json:"http2_support"`
	HSTSEnabled      bool         `json:"hsts_enabled"`
	HSTSSubdomains   bool         `json:"hsts_subdomains"`
	BlockExploits    bool         `json:"block_exploits"`
	WebsocketSupport bool         `json:"websocket_support"`
	Application      string       `json:"application"` // detected app preset, e.g. "wordpress"
	AdvancedConfig   string       `json:"advanced_config" gorm:"type:text"`
	CertificateID    *uint        `json:"certificate_id"`
	Certificate      *Certificate `json:"certificate,omitempty" gorm:"foreignKey:CertificateID"`
	AccessListID     *uint        `json:"access_list_id"`
	AccessList       *AccessList  `json:"access_list,omitempty" gorm:"foreignKey:AccessListID"`
	Enabled          bool         `json:"enabled"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Domains returns the normalized (trimmed, lowercased) domain names.
func (p *ProxyHost) Domains() []string {
	raw := strings.Split(p.DomainNames, ",")
	out := make([]string, 0, len(raw))
	for _, d := range raw {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// Upstream returns the scheme://host:port target for this host.
func (p *ProxyHost) Upstream() string {
	scheme := p.ForwardScheme
	if scheme == "" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, p.ForwardHost, p.ForwardPort)
}

// AdvancedOptions is the parsed form of ProxyHost.AdvancedConfig.
type AdvancedOptions struct {
	RulesetName string `json:"ruleset_name,omitempty"`
}

// Advanced parses the host's advanced configuration. An empty or malformed
// document yields zero options; advanced config is free-form and must never
// break compilation.
func (p *ProxyHost) Advanced() AdvancedOptions {
	var opts AdvancedOptions
	if p.AdvancedConfig == "" {
		return opts
	}
	_ = json.Unmarshal([]byte(p.AdvancedConfig), &opts)
	return opts
}
