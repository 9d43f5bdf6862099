package cors

import (
	"fmt"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// FindingKind classifies a LintAllowDomains finding.
type FindingKind string

const (
	// FindingPublicSuffix marks an entry that is itself a public suffix
	// (e.g. "com" or "co.kr") and therefore authorizes unrelated sites.
	FindingPublicSuffix FindingKind = "public_suffix"
	// FindingNoDotBoundary marks an entry that also matches domains which
	// merely end with the same characters ("example.com" matches
	// "evilexample.com").
	FindingNoDotBoundary FindingKind = "no_dot_boundary"
	// FindingBlank marks an empty entry; it is dropped by NewPolicy.
	FindingBlank FindingKind = "blank"
)

// Finding describes a risky allow-domain entry.
type Finding struct {
	Entry   string
	Kind    FindingKind
	Message string
}

// LintAllowDomains reports allow-domain entries whose suffix matching is
// broader than it looks. It never changes how entries match.
func LintAllowDomains(entries []string) []Finding {
	var out []Finding
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			out = append(out, Finding{
				Entry:   raw,
				Kind:    FindingBlank,
				Message: "blank allow-domain entry ignored",
			})
			continue
		}

		host := strings.TrimPrefix(strings.TrimSuffix(entry, "."), ".")
		// The boolean result is ignored: it is false for some listed
		// suffixes such as github.io.
		if etld, _ := publicsuffix.PublicSuffix(host); etld == host {
			out = append(out, Finding{
				Entry:   entry,
				Kind:    FindingPublicSuffix,
				Message: fmt.Sprintf("%q is a public suffix and authorizes every site registered under it", entry),
			})
			continue
		}

		if !strings.HasPrefix(entry, ".") {
			out = append(out, Finding{
				Entry:   entry,
				Kind:    FindingNoDotBoundary,
				Message: fmt.Sprintf("%q also matches any domain ending in it, e.g. %q", entry, "evil"+entry),
			})
		}
	}
	return out
}
