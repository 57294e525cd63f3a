package caddy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aegis-proxy/aegis/internal/metrics"
	"github.com/aegis-proxy/aegis/internal/models"
)

// Stage identifies one step of the per-host security pipeline.
type Stage string

const (
	StageReputation Stage = "reputation"
	StageACL        Stage = "acl"
	StageWAF        Stage = "waf"
	StageRateLimit  Stage = "ratelimit"
	StageProxy      Stage = "proxy"
)

// PipelineOrder is the fixed evaluation order of the security pipeline.
// Cheap reputation and ACL checks run before payload inspection so a
// rejected request never reaches the expensive stages. Configuration can
// disable stages but never reorder them.
var PipelineOrder = [...]Stage{StageReputation, StageACL, StageWAF, StageRateLimit, StageProxy}

// DefaultRulesetName is the fallback WAF ruleset, used only when no
// higher-priority selection matches.
const DefaultRulesetName = "owasp-crs"

// RFC1918PrivateNetworks are the ranges behind the local-network-only
// access list shortcut.
var RFC1918PrivateNetworks = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"fc00::/7",
	"fe80::/10",
	"::1/128",
}

// ComposeInput carries everything the composer may consult for one host.
// All of it comes from a single snapshot; the composer performs no I/O.
type ComposeInput struct {
	Host         models.ProxyHost
	Security     models.SecurityConfig
	AccessList   *models.AccessList
	Rulesets     []models.SecurityRuleSet
	RulesetPaths map[string]string // ruleset name -> materialized include path
}

// ComposeResult is the ordered handler chain for one host, terminating in
// the reverse-proxy handler, plus any warnings raised while composing.
type ComposeResult struct {
	Handlers []Handler
	Warnings []string
}

type stageSpec struct {
	stage   Stage
	enabled func(in *ComposeInput) bool
	build   func(in *ComposeInput, res *ComposeResult) error
}

// stageTable makes the pipeline order a static artifact: composing walks
// this table top to bottom, never conditionally reordering.
var stageTable = []stageSpec{
	{
		stage: StageReputation,
		enabled: func(in *ComposeInput) bool {
			return in.Security.Enabled && in.Security.CrowdSecEnabled
		},
		build: func(in *ComposeInput, res *ComposeResult) error {
			res.Handlers = append(res.Handlers, CrowdSecHandler())
			return nil
		},
	},
	{
		stage: StageACL,
		enabled: func(in *ComposeInput) bool {
			return in.Security.Enabled && in.Security.ACLEnabled &&
				in.AccessList != nil && in.AccessList.Enabled
		},
		build: buildACLStage,
	},
	{
		stage: StageWAF,
		enabled: func(in *ComposeInput) bool {
			return in.Security.WAFEnabled()
		},
		build: buildWAFStage,
	},
	{
		stage: StageRateLimit,
		enabled: func(in *ComposeInput) bool {
			return in.Security.Enabled && in.Security.RateLimitEnabled
		},
		build: func(in *ComposeInput, res *ComposeResult) error {
			sec := in.Security
			if sec.RateLimitRequests <= 0 && sec.RateLimitBurst <= 0 {
				// max_events of zero would block every request.
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("rate limiting enabled with no request budget for host %s; ratelimit stage omitted", in.Host.UUID))
				return nil
			}
			res.Handlers = append(res.Handlers, RateLimitHandler(sec.RateLimitRequests, sec.RateLimitBurst, sec.RateLimitWindowSec))
			return nil
		},
	},
	{
		stage:   StageProxy,
		enabled: func(in *ComposeInput) bool { return true },
		build:   buildProxyStage,
	},
}

// StageOf maps a handler back to its pipeline stage. Auxiliary handlers
// (response headers and the like) belong to no stage.
func StageOf(h Handler) (Stage, bool) {
	switch h.Name() {
	case "crowdsec":
		return StageReputation, true
	case "subroute":
		return StageACL, true
	case "coraza_waf":
		return StageWAF, true
	case "rate_limit":
		return StageRateLimit, true
	case "reverse_proxy":
		return StageProxy, true
	}
	return "", false
}

// ComposeChain converts one host's applicable policies into an ordered
// handler chain. The chain always ends in the reverse-proxy handler; a
// stage that cannot produce a meaningful handler is omitted, never emitted
// as a no-op.
func ComposeChain(in ComposeInput) (ComposeResult, error) {
	var res ComposeResult

	if err := validateHost(&in.Host); err != nil {
		return ComposeResult{}, err
	}

	for _, spec := range stageTable {
		if !spec.enabled(&in) {
			continue
		}
		if err := spec.build(&in, &res); err != nil {
			return ComposeResult{}, err
		}
	}

	return res, nil
}

func validateHost(host *models.ProxyHost) error {
	if len(host.Domains()) == 0 {
		return NewValidationError("host %s has no domain names", host.UUID)
	}
	if host.ForwardHost == "" || host.ForwardPort <= 0 {
		return NewValidationError("host %s has incomplete upstream target %q", host.UUID, host.Upstream())
	}
	if s := host.ForwardScheme; s != "" && s != "http" && s != "https" {
		return NewValidationError("host %s has unsupported upstream scheme %q", host.UUID, s)
	}
	return nil
}

func buildACLStage(in *ComposeInput, res *ComposeResult) error {
	h, warn, err := buildACLHandler(in.AccessList)
	if err != nil {
		return err
	}
	if warn != "" {
		res.Warnings = append(res.Warnings, warn)
	}
	if h != nil {
		res.Handlers = append(res.Handlers, h)
	}
	return nil
}

// buildACLHandler renders an access list as a subroute that short-circuits
// denied clients with a 403. A nil handler with a warning means the list
// has no effective rules.
func buildACLHandler(acl *models.AccessList) (Handler, string, error) {
	if acl.LocalNetworkOnly && acl.IPRules != "" && acl.IPRules != "[]" {
		return nil, "", NewValidationError("access list %s mixes local_network_only with explicit IP rules", acl.UUID)
	}

	deny := func(match Match, body string) Handler {
		return SubrouteHandler([]*Route{
			{
				Match:  []Match{match},
				Handle: []Handler{StaticResponseHandler(403, body)},
			},
		})
	}

	if acl.IsGeo() {
		countries := splitCSVUpper(acl.CountryCodes)
		if len(countries) == 0 {
			return nil, fmt.Sprintf("access list %s has no country codes; acl stage omitted", acl.UUID), nil
		}
		switch acl.Type {
		case "geo_whitelist":
			return deny(NotMatch(GeoMatch(countries)), "Access denied: Geographic restriction"), "", nil
		default: // geo_blacklist
			return deny(GeoMatch(countries), "Access denied: Geographic restriction"), "", nil
		}
	}

	if acl.LocalNetworkOnly {
		return deny(NotMatch(RemoteIPMatch(RFC1918PrivateNetworks)), "Access denied: Not a local network IP"), "", nil
	}

	ranges, err := parseIPRules(acl.IPRules)
	if err != nil {
		return nil, "", err
	}
	if len(ranges) == 0 {
		return nil, fmt.Sprintf("access list %s has no IP rules; acl stage omitted", acl.UUID), nil
	}

	switch acl.Type {
	case "whitelist":
		return deny(NotMatch(RemoteIPMatch(ranges)), "Access denied: IP not in whitelist"), "", nil
	case "blacklist":
		return deny(RemoteIPMatch(ranges), "Access denied: IP blacklisted"), "", nil
	}

	return nil, "", NewValidationError("access list %s has unknown type %q", acl.UUID, acl.Type)
}

func parseIPRules(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var rules []models.AccessListRule
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return nil, NewValidationError("invalid IP rules JSON: %v", err)
	}
	ranges := make([]string, 0, len(rules))
	for _, r := range rules {
		if r.CIDR != "" {
			ranges = append(ranges, r.CIDR)
		}
	}
	return ranges, nil
}

func buildWAFStage(in *ComposeInput, res *ComposeResult) error {
	rs, err := selectRuleset(in)
	if err != nil {
		return err
	}

	omit := func(reason string) {
		metrics.IncWAFOmitted()
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("waf enabled but %s for host %s; waf stage omitted", reason, in.Host.UUID))
	}

	if rs == nil {
		omit("no ruleset resolved")
		return nil
	}

	includePath := in.RulesetPaths[rs.Name]
	if includePath == "" {
		omit(fmt.Sprintf("ruleset %q has no materialized rules file", rs.Name))
		return nil
	}

	mode := "block"
	if in.Security.WAFMode == "detect" || rs.Mode == "detect" {
		mode = "detect"
	}

	res.Handlers = append(res.Handlers, CorazaHandler(CorazaDirectives(includePath, mode)))
	return nil
}

// selectRuleset applies the fixed selection priority: the host's explicit
// choice, then the global waf_rules_source, then the host's application
// preset, then the literal default name. First match wins. A dangling
// host-level reference is an error (it is user-authored intent); a dangling
// global or preset name falls through to the next level.
func selectRuleset(in *ComposeInput) (*models.SecurityRuleSet, error) {
	byName := func(name string) *models.SecurityRuleSet {
		for i := range in.Rulesets {
			if in.Rulesets[i].Name == name {
				return &in.Rulesets[i]
			}
		}
		return nil
	}

	if name := in.Host.Advanced().RulesetName; name != "" {
		rs := byName(name)
		if rs == nil {
			return nil, NewValidationError("host %s references ruleset %q which does not exist", in.Host.UUID, name)
		}
		return rs, nil
	}

	if name := in.Security.WAFRulesSource; name != "" {
		if rs := byName(name); rs != nil {
			return rs, nil
		}
	}

	if name := in.Host.Application; name != "" {
		if rs := byName(name); rs != nil {
			return rs, nil
		}
	}

	return byName(DefaultRulesetName), nil
}

func buildProxyStage(in *ComposeInput, res *ComposeResult) error {
	host := &in.Host

	if host.HSTSEnabled {
		hsts := "max-age=31536000"
		if host.HSTSSubdomains {
			hsts += "; includeSubDomains"
		}
		res.Handlers = append(res.Handlers, HeaderHandler(map[string][]string{
			"Strict-Transport-Security": {hsts},
		}))
	}

	dial := fmt.Sprintf("%s:%d", host.ForwardHost, host.ForwardPort)
	res.Handlers = append(res.Handlers, ReverseProxyHandler(host.ForwardScheme, dial, host.WebsocketSupport))
	return nil
}

func splitCSVUpper(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
