package importer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aegis-proxy/aegis/internal/caddy"
	"github.com/aegis-proxy/aegis/internal/models"
)

// ParseConfig extracts candidate proxy hosts from an externally authored
// engine configuration document. Routes without a host matcher or a
// reverse_proxy handler are ignored: they are not representable as hosts.
func ParseConfig(raw []byte) ([]models.ProxyHost, error) {
	var cfg caddy.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, caddy.NewValidationError("parse engine config: %v", err)
	}
	if cfg.Apps.HTTP == nil {
		return nil, caddy.NewValidationError("document has no http app")
	}

	var hosts []models.ProxyHost
	for _, srv := range cfg.Apps.HTTP.Servers {
		skipTLS := make(map[string]bool)
		if srv.AutoHTTPS != nil {
			for _, d := range srv.AutoHTTPS.Skip {
				skipTLS[strings.ToLower(d)] = true
			}
		}

		for _, route := range srv.Routes {
			host, ok := hostFromRoute(route, skipTLS)
			if ok {
				hosts = append(hosts, host)
			}
		}
	}

	sort.Slice(hosts, func(i, j int) bool { return hosts[i].DomainNames < hosts[j].DomainNames })
	return hosts, nil
}

func hostFromRoute(route *caddy.Route, skipTLS map[string]bool) (models.ProxyHost, bool) {
	var host models.ProxyHost

	domains := matchedDomains(route)
	if len(domains) == 0 {
		return host, false
	}

	proxy := findProxyHandler(route.Handle)
	if proxy == nil {
		return host, false
	}

	dial, ok := upstreamDial(proxy)
	if !ok {
		return host, false
	}
	fwdHost, fwdPort := splitDial(dial)
	if fwdHost == "" || fwdPort == 0 {
		return host, false
	}

	scheme := "http"
	if _, hasTransport := proxy["transport"]; hasTransport {
		scheme = "https"
	}

	host = models.ProxyHost{
		Name:             domains[0],
		DomainNames:      strings.Join(domains, ","),
		ForwardScheme:    scheme,
		ForwardHost:      fwdHost,
		ForwardPort:      fwdPort,
		ForceTLS:         !skipTLS[domains[0]],
		WebsocketSupport: proxyHasWebsocketHeaders(proxy),
		Enabled:          true,
	}
	return host, true
}

func matchedDomains(route *caddy.Route) []string {
	for _, m := range route.Match {
		rawHosts, ok := m["host"]
		if !ok {
			continue
		}
		var domains []string
		switch v := rawHosts.(type) {
		case []interface{}:
			for _, h := range v {
				if s, ok := h.(string); ok && s != "" {
					domains = append(domains, strings.ToLower(s))
				}
			}
		case []string:
			for _, s := range v {
				if s != "" {
					domains = append(domains, strings.ToLower(s))
				}
			}
		}
		if len(domains) > 0 {
			return domains
		}
	}
	return nil
}

// findProxyHandler locates the reverse_proxy handler, descending into
// subroutes (imported documents often nest the proxy one level down).
func findProxyHandler(handlers []caddy.Handler) caddy.Handler {
	for _, h := range handlers {
		switch h.Name() {
		case "reverse_proxy":
			return h
		case "subroute":
			if routes, ok := h["routes"].([]interface{}); ok {
				for _, r := range routes {
					sub := subrouteHandlers(r)
					if p := findProxyHandler(sub); p != nil {
						return p
					}
				}
			}
		}
	}
	return nil
}

func subrouteHandlers(raw interface{}) []caddy.Handler {
	routeMap, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	handleRaw, ok := routeMap["handle"].([]interface{})
	if !ok {
		return nil
	}
	var out []caddy.Handler
	for _, h := range handleRaw {
		if hm, ok := h.(map[string]interface{}); ok {
			out = append(out, caddy.Handler(hm))
		}
	}
	return out
}

func upstreamDial(proxy caddy.Handler) (string, bool) {
	upstreams, ok := proxy["upstreams"].([]interface{})
	if !ok || len(upstreams) == 0 {
		// Documents we generated ourselves keep the typed shape.
		if typed, ok := proxy["upstreams"].([]map[string]interface{}); ok && len(typed) > 0 {
			dial, _ := typed[0]["dial"].(string)
			return dial, dial != ""
		}
		return "", false
	}
	first, ok := upstreams[0].(map[string]interface{})
	if !ok {
		return "", false
	}
	dial, _ := first["dial"].(string)
	return dial, dial != ""
}

func splitDial(dial string) (string, int) {
	idx := strings.LastIndex(dial, ":")
	if idx <= 0 {
		return dial, 0
	}
	port, err := strconv.Atoi(dial[idx+1:])
	if err != nil {
		return dial, 0
	}
	return dial[:idx], port
}

func proxyHasWebsocketHeaders(proxy caddy.Handler) bool {
	raw, err := json.Marshal(proxy)
	if err != nil {
		return false
	}
	return strings.Contains(string(raw), "http.request.header.Upgrade")
}

// CandidateSummary renders a one-line description of a candidate host for
// logs and session records.
func CandidateSummary(h *models.ProxyHost) string {
	return fmt.Sprintf("%s -> %s", h.DomainNames, h.Upstream())
}
