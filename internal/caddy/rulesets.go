package caddy

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/aegis-proxy/aegis/internal/models"
)

var rulesetNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Materializer writes ruleset content to files the generated WAF handler
// can reference via Include directives.
type Materializer struct {
	dir string
}

// NewMaterializer creates a materializer rooted at dir.
func NewMaterializer(dir string) *Materializer {
	return &Materializer{dir: dir}
}

// MaterializeAll writes every ruleset with content to disk and returns the
// name -> include path mapping the composer consumes. Rulesets without
// content (e.g. a source URL that has not been fetched yet) get no path, so
// the composer omits the WAF stage for hosts selecting them.
func (m *Materializer) MaterializeAll(rulesets []models.SecurityRuleSet) (map[string]string, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure ruleset dir: %w", err)
	}

	paths := make(map[string]string, len(rulesets))
	for i := range rulesets {
		rs := &rulesets[i]
		if rs.Content == "" {
			continue
		}
		if !rulesetNamePattern.MatchString(rs.Name) {
			return nil, NewValidationError("ruleset name %q is not a safe file name", rs.Name)
		}
		path := filepath.Join(m.dir, rs.Name+".conf")
		if err := os.WriteFile(path, []byte(rs.Content), 0o644); err != nil {
			return nil, fmt.Errorf("write ruleset %s: %w", rs.Name, err)
		}
		paths[rs.Name] = path
	}
	return paths, nil
}
