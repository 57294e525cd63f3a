package caddy

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aegis-proxy/aegis/internal/models"
	"github.com/aegis-proxy/aegis/internal/snapshot"
)

// AssembleOptions carries deployment-level settings that are not part of
// the domain snapshot.
type AssembleOptions struct {
	ACMEEmail    string
	ACMEStaging  bool
	RulesetPaths map[string]string // ruleset name -> materialized include path
	AccessLog    string            // access log file path, empty disables
}

// exploitPaths are request paths blocked outright when a host has exploit
// blocking enabled. They never carry legitimate traffic through a proxy.
var exploitPaths = []string{
	"/.git/*",
	"/.svn/*",
	"/.env",
	"/.env.*",
	"/wp-config.php",
	"/config.php.bak",
	"/*.sql",
	"/phpmyadmin/*",
}

// Assemble converts one domain snapshot into a complete engine
// configuration document. It is a pure function of its inputs: no I/O, no
// store reads, and identical snapshots produce identical documents.
func Assemble(snap snapshot.Snapshot, opts AssembleOptions) (*Config, []string, error) {
	var warnings []string

	enabled := make([]models.ProxyHost, 0, len(snap.Hosts))
	for _, h := range snap.Hosts {
		if h.Enabled {
			enabled = append(enabled, h)
		}
	}

	// Deterministic route order: sort by primary domain, then UUID. The
	// engine matches routes in order, so this also makes behavior stable.
	sort.Slice(enabled, func(i, j int) bool {
		di, dj := firstDomain(&enabled[i]), firstDomain(&enabled[j])
		if di != dj {
			return di < dj
		}
		return enabled[i].UUID < enabled[j].UUID
	})

	if err := checkDuplicateDomains(enabled); err != nil {
		return nil, nil, err
	}

	cfg := &Config{
		Apps: Apps{
			HTTP: &HTTPApp{Servers: map[string]*Server{}},
		},
	}

	if opts.AccessLog != "" {
		cfg.Logging = &LoggingConfig{
			Logs: map[string]*LogConfig{
				"access": {
					Level:   "INFO",
					Writer:  &WriterConfig{Output: "file", Filename: opts.AccessLog, Roll: true, RollSize: 10, RollKeep: 5},
					Encoder: &EncoderConfig{Format: "json"},
					Include: []string{"http.log.access.access_log"},
				},
			},
		}
	}

	if snap.Security.Enabled && snap.Security.CrowdSecEnabled {
		cfg.Apps.CrowdSec = map[string]interface{}{
			"api_url": snap.Security.CrowdSecAPIURL,
			"api_key": snap.Security.CrowdSecAPIKey,
		}
	}

	routes := make([]*Route, 0, len(enabled))
	var skipTLS []string

	for i := range enabled {
		host := enabled[i]

		var acl *models.AccessList
		if host.AccessListID != nil {
			acl = snap.AccessListByID(*host.AccessListID)
		}

		result, err := ComposeChain(ComposeInput{
			Host:         host,
			Security:     snap.Security,
			AccessList:   acl,
			Rulesets:     snap.Rulesets,
			RulesetPaths: opts.RulesetPaths,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("compose host %s: %w", host.UUID, err)
		}
		warnings = append(warnings, result.Warnings...)

		domains := host.Domains()

		if host.BlockExploits {
			routes = append(routes, &Route{
				Match:    []Match{{"host": domains, "path": exploitPaths}},
				Handle:   []Handler{StaticResponseHandler(403, "Forbidden")},
				Terminal: true,
			})
		}

		routes = append(routes, &Route{
			Match:    []Match{HostMatch(domains...)},
			Handle:   result.Handlers,
			Terminal: true,
		})

		if !host.ForceTLS {
			skipTLS = append(skipTLS, domains...)
		}
	}

	server := &Server{
		Listen: []string{":80", ":443"},
		Routes: routes,
		Logs:   &ServerLogs{DefaultLoggerName: "access_log"},
	}
	if len(skipTLS) > 0 {
		sort.Strings(skipTLS)
		server.AutoHTTPS = &AutoHTTPSConfig{Skip: skipTLS}
	}
	cfg.Apps.HTTP.Servers["aegis"] = server

	attachTLS(cfg, enabled, opts, &warnings)

	return cfg, warnings, nil
}

// MarshalCanonical serializes a document in the canonical form submitted to
// the engine. Map keys marshal sorted, so identical documents are
// byte-identical.
func MarshalCanonical(cfg *Config) ([]byte, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return raw, nil
}

func firstDomain(h *models.ProxyHost) string {
	domains := h.Domains()
	if len(domains) == 0 {
		return ""
	}
	return domains[0]
}

func checkDuplicateDomains(hosts []models.ProxyHost) error {
	seen := make(map[string]string) // domain -> host UUID
	for i := range hosts {
		for _, d := range hosts[i].Domains() {
			if first, ok := seen[d]; ok {
				return &DuplicateRouteError{Domain: d, FirstHost: first, OtherHost: hosts[i].UUID}
			}
			seen[d] = hosts[i].UUID
		}
	}
	return nil
}

func attachTLS(cfg *Config, hosts []models.ProxyHost, opts AssembleOptions, warnings *[]string) {
	if opts.ACMEEmail != "" {
		issuer := map[string]interface{}{
			"module": "acme",
			"email":  opts.ACMEEmail,
		}
		if opts.ACMEStaging {
			issuer["ca"] = "https://acme-staging-v02.api.letsencrypt.org/directory"
		}
		cfg.Apps.TLS = &TLSApp{
			Automation: &AutomationConfig{
				Policies: []*AutomationPolicy{{IssuersRaw: []interface{}{issuer}}},
			},
		}
	}

	// Only custom certificates are loaded by value; ACME-managed ones are
	// the engine's own business.
	var loadPEM []LoadPEMConfig
	seenCerts := make(map[uint]bool)
	for i := range hosts {
		host := &hosts[i]
		if host.CertificateID == nil || host.Certificate == nil {
			continue
		}
		cert := host.Certificate
		if cert.Provider != "custom" || seenCerts[cert.ID] {
			continue
		}
		seenCerts[cert.ID] = true
		if cert.Certificate == "" || cert.PrivateKey == "" {
			*warnings = append(*warnings, fmt.Sprintf("custom certificate %s is missing PEM material; skipped", cert.Name))
			continue
		}
		loadPEM = append(loadPEM, LoadPEMConfig{
			Certificate: cert.Certificate,
			Key:         cert.PrivateKey,
			Tags:        []string{cert.UUID},
		})
	}

	if len(loadPEM) > 0 {
		sort.Slice(loadPEM, func(i, j int) bool { return loadPEM[i].Tags[0] < loadPEM[j].Tags[0] })
		if cfg.Apps.TLS == nil {
			cfg.Apps.TLS = &TLSApp{}
		}
		cfg.Apps.TLS.Certificates = &CertificatesConfig{LoadPEM: loadPEM}
	}
}
