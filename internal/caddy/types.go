package caddy

import (
	"fmt"
	"strings"
)

// Config represents Caddy's top-level JSON configuration structure.
// Reference: https://caddyserver.com/docs/json/
type Config struct {
	Admin   *AdminConfig   `json:"admin,omitempty"`
	Apps    Apps           `json:"apps"`
	Logging *LoggingConfig `json:"logging,omitempty"`
}

// AdminConfig configures the admin endpoint.
type AdminConfig struct {
	Listen string `json:"listen,omitempty"`
}

// LoggingConfig configures Caddy's logging facility.
type LoggingConfig struct {
	Logs map[string]*LogConfig `json:"logs,omitempty"`
}

// LogConfig configures a specific logger.
type LogConfig struct {
	Writer  *WriterConfig  `json:"writer,omitempty"`
	Encoder *EncoderConfig `json:"encoder,omitempty"`
	Level   string         `json:"level,omitempty"`
	Include []string       `json:"include,omitempty"`
}

// WriterConfig configures the log writer.
type WriterConfig struct {
	Output   string `json:"output"`
	Filename string `json:"filename,omitempty"`
	Roll     bool   `json:"roll,omitempty"`
	RollSize int    `json:"roll_size_mb,omitempty"`
	RollKeep int    `json:"roll_keep,omitempty"`
}

// EncoderConfig configures the log format.
type EncoderConfig struct {
	Format string `json:"format"`
}

// Apps contains all Caddy app modules.
type Apps struct {
	HTTP     *HTTPApp               `json:"http,omitempty"`
	TLS      *TLSApp                `json:"tls,omitempty"`
	CrowdSec map[string]interface{} `json:"crowdsec,omitempty"`
}

// HTTPApp configures the HTTP app.
type HTTPApp struct {
	Servers map[string]*Server `json:"servers"`
}

// Server represents an HTTP server instance.
type Server struct {
	Listen    []string         `json:"listen"`
	Routes    []*Route         `json:"routes"`
	AutoHTTPS *AutoHTTPSConfig `json:"automatic_https,omitempty"`
	Logs      *ServerLogs      `json:"logs,omitempty"`
}

// AutoHTTPSConfig controls automatic HTTPS behavior.
type AutoHTTPSConfig struct {
	Disable      bool     `json:"disable,omitempty"`
	DisableRedir bool     `json:"disable_redirects,omitempty"`
	Skip         []string `json:"skip,omitempty"`
}

// ServerLogs configures access logging.
type ServerLogs struct {
	DefaultLoggerName string `json:"default_logger_name,omitempty"`
}

// Route represents an HTTP route (matcher plus handlers).
type Route struct {
	Match    []Match   `json:"match,omitempty"`
	Handle   []Handler `json:"handle"`
	Terminal bool      `json:"terminal,omitempty"`
}

// Match is one matcher set in a route. Matcher modules are open-ended
// (host, path, remote_ip, not, maxmind_geolocation, ...), so it stays a map.
type Match map[string]interface{}

// HostMatch matches requests by host name.
func HostMatch(hosts ...string) Match {
	return Match{"host": hosts}
}

// PathMatch matches requests by URI path.
func PathMatch(paths ...string) Match {
	return Match{"path": paths}
}

// RemoteIPMatch matches requests by client address ranges.
func RemoteIPMatch(ranges []string) Match {
	return Match{"remote_ip": map[string]interface{}{"ranges": ranges}}
}

// GeoMatch matches requests by resolved country code.
func GeoMatch(countries []string) Match {
	return Match{"maxmind_geolocation": map[string]interface{}{"allow_countries": countries}}
}

// NotMatch inverts a matcher set.
func NotMatch(m Match) Match {
	return Match{"not": []Match{m}}
}

// Handler is a single handler object in a route's handle chain. Handler
// modules carry arbitrary fields, so it stays a map keyed by "handler".
type Handler map[string]interface{}

// Name returns the handler module name, or "" if the object is malformed.
func (h Handler) Name() string {
	name, _ := h["handler"].(string)
	return name
}

// TLSApp configures the TLS app for certificate management.
type TLSApp struct {
	Automation   *AutomationConfig   `json:"automation,omitempty"`
	Certificates *CertificatesConfig `json:"certificates,omitempty"`
}

// CertificatesConfig configures manual certificate loading.
type CertificatesConfig struct {
	LoadPEM []LoadPEMConfig `json:"load_pem,omitempty"`
}

// LoadPEMConfig defines a PEM-loaded certificate.
type LoadPEMConfig struct {
	Certificate string   `json:"certificate"`
	Key         string   `json:"key"`
	Tags        []string `json:"tags,omitempty"`
}

// AutomationConfig controls certificate automation.
type AutomationConfig struct {
	Policies []*AutomationPolicy `json:"policies,omitempty"`
}

// AutomationPolicy defines certificate management for specific domains.
type AutomationPolicy struct {
	Subjects   []string      `json:"subjects,omitempty"`
	IssuersRaw []interface{} `json:"issuers,omitempty"`
}

// ReverseProxyHandler creates the terminal reverse_proxy handler for a host.
func ReverseProxyHandler(scheme, dial string, enableWS bool) Handler {
	h := Handler{
		"handler":        "reverse_proxy",
		"flush_interval": -1,
		"upstreams": []map[string]interface{}{
			{"dial": dial},
		},
	}

	if scheme == "https" {
		h["transport"] = map[string]interface{}{
			"protocol": "http",
			"tls":      map[string]interface{}{},
		}
	}

	setHeaders := make(map[string][]string)
	if enableWS {
		setHeaders["Upgrade"] = []string{"{http.request.header.Upgrade}"}
		setHeaders["Connection"] = []string{"{http.request.header.Connection}"}
	}
	if len(setHeaders) > 0 {
		h["headers"] = map[string]interface{}{
			"request": map[string]interface{}{"set": setHeaders},
		}
	}

	return h
}

// HeaderHandler creates a handler that sets HTTP response headers.
func HeaderHandler(headers map[string][]string) Handler {
	return Handler{
		"handler": "headers",
		"response": map[string]interface{}{
			"set": headers,
		},
	}
}

// StaticResponseHandler creates a fixed-status response handler.
func StaticResponseHandler(status int, body string) Handler {
	return Handler{
		"handler":     "static_response",
		"status_code": status,
		"body":        body,
	}
}

// SubrouteHandler wraps routes inside a subroute handler.
func SubrouteHandler(routes []*Route) Handler {
	return Handler{
		"handler": "subroute",
		"routes":  routes,
	}
}

// CrowdSecHandler creates the IP-reputation bouncer handler.
func CrowdSecHandler() Handler {
	return Handler{
		"handler": "crowdsec",
	}
}

// CorazaHandler creates a coraza_waf handler with the given SecLang
// directives. Callers must never pass empty directives: an empty filter is a
// silent bypass, and the composer omits the stage instead.
func CorazaHandler(directives string) Handler {
	return Handler{
		"handler":    "coraza_waf",
		"directives": directives,
	}
}

// CorazaDirectives builds the SecLang preamble plus an Include reference for
// a materialized ruleset file.
func CorazaDirectives(includePath, mode string) string {
	engine := "On"
	if mode == "detect" {
		engine = "DetectionOnly"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SecRuleEngine %s\n", engine)
	fmt.Fprintf(&b, "Include %s\n", includePath)
	return b.String()
}

// RateLimitHandler creates a rate_limit handler keyed by client IP.
func RateLimitHandler(requests, burst, windowSec int) Handler {
	if windowSec <= 0 {
		windowSec = 60
	}
	max := requests
	if burst > max {
		max = burst
	}
	return Handler{
		"handler": "rate_limit",
		"rate_limits": map[string]interface{}{
			"per_ip": map[string]interface{}{
				"match_key":  "{http.request.remote.host}",
				"max_events": max,
				"window":     fmt.Sprintf("%ds", windowSec),
			},
		},
	}
}
