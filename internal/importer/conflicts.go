package importer

import (
	"github.com/aegis-proxy/aegis/internal/models"
)

// Resolution values a user can choose for a conflicting host.
const (
	ResolutionKeepExisting = "keep-existing"
	ResolutionOverwrite    = "overwrite"
)

// HostSummary is the side-by-side view of the fields a conflict is judged
// on.
type HostSummary struct {
	Upstream         string `json:"upstream"`
	ForceTLS         bool   `json:"force_tls"`
	WebsocketSupport bool   `json:"websocket_support"`
}

// FieldDiff is one differing field between the existing and imported host.
type FieldDiff struct {
	Field    string `json:"field"`
	Existing string `json:"existing"`
	Imported string `json:"imported"`
}

// ConflictEntry classifies one candidate host against the current host set.
// A same-domain match is always a conflict, even when the diff is empty:
// silently merging identical-looking hosts would drop the user's intent to
// review.
type ConflictEntry struct {
	Domain         string       `json:"domain"`
	Classification string       `json:"classification"` // "new" | "conflict"
	Existing       *HostSummary `json:"existing,omitempty"`
	ExistingUUID   string       `json:"existing_uuid,omitempty"`
	Imported       HostSummary  `json:"imported"`
	Diff           []FieldDiff  `json:"diff,omitempty"`
	Resolution     string       `json:"resolution"`
}

// ConflictPreview is the staged, user-resolvable result of one import,
// keyed by the candidate's domain list. Candidates claiming a domain an
// earlier candidate in the same document already claims are listed under
// Duplicates and excluded from the commit.
type ConflictPreview struct {
	Entries    map[string]*ConflictEntry `json:"entries"`
	Duplicates []string                  `json:"duplicates,omitempty"`
}

// Conflicts returns the domains classified as conflicts.
func (p *ConflictPreview) Conflicts() []string {
	var out []string
	for domain, e := range p.Entries {
		if e.Classification == "conflict" {
			out = append(out, domain)
		}
	}
	return out
}

// DetectConflicts diffs candidate hosts against the current host set. It
// mutates nothing; a separate commit step applies chosen resolutions.
func DetectConflicts(candidates []models.ProxyHost, existing []models.ProxyHost) *ConflictPreview {
	byDomain := make(map[string]*models.ProxyHost)
	for i := range existing {
		for _, d := range existing[i].Domains() {
			byDomain[d] = &existing[i]
		}
	}

	preview := &ConflictPreview{Entries: make(map[string]*ConflictEntry, len(candidates))}
	claimed := make(map[string]bool)

	for i := range candidates {
		cand := &candidates[i]

		// Two routes in one document can proxy the same domain, for example
		// the same host matcher repeated across servers. Only the first
		// candidate survives; committing both would leave the store with two
		// hosts claiming one domain and no compilable configuration.
		duplicate := false
		for _, d := range cand.Domains() {
			if claimed[d] {
				duplicate = true
				break
			}
		}
		if duplicate {
			preview.Duplicates = append(preview.Duplicates, cand.DomainNames)
			continue
		}
		for _, d := range cand.Domains() {
			claimed[d] = true
		}

		imported := summarize(cand)
		entry := &ConflictEntry{
			Domain:         cand.DomainNames,
			Classification: "new",
			Imported:       imported,
			Resolution:     ResolutionKeepExisting,
		}

		for _, d := range cand.Domains() {
			if match, ok := byDomain[d]; ok {
				existingSummary := summarize(match)
				entry.Classification = "conflict"
				entry.Existing = &existingSummary
				entry.ExistingUUID = match.UUID
				entry.Diff = diffSummaries(existingSummary, imported)
				break
			}
		}

		preview.Entries[cand.DomainNames] = entry
	}

	return preview
}

func summarize(h *models.ProxyHost) HostSummary {
	return HostSummary{
		Upstream:         h.Upstream(),
		ForceTLS:         h.ForceTLS,
		WebsocketSupport: h.WebsocketSupport,
	}
}

func diffSummaries(existing, imported HostSummary) []FieldDiff {
	var diff []FieldDiff
	if existing.Upstream != imported.Upstream {
		diff = append(diff, FieldDiff{Field: "upstream", Existing: existing.Upstream, Imported: imported.Upstream})
	}
	if existing.ForceTLS != imported.ForceTLS {
		diff = append(diff, FieldDiff{Field: "force_tls", Existing: boolStr(existing.ForceTLS), Imported: boolStr(imported.ForceTLS)})
	}
	if existing.WebsocketSupport != imported.WebsocketSupport {
		diff = append(diff, FieldDiff{Field: "websocket_support", Existing: boolStr(existing.WebsocketSupport), Imported: boolStr(imported.WebsocketSupport)})
	}
	return diff
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
