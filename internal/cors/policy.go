// Package cors decides, per request, whether a cross-origin caller is
// authorized and which Access-Control-* response headers to send.
package cors

import (
	"strings"
	"time"
)

const (
	// DefaultMaxAge is how long browsers may cache an authorized preflight result.
	DefaultMaxAge = 3600 * time.Second

	// NullOrigin is used when a request carries no Origin header.
	NullOrigin = "null"
)

// DefaultPrivatePrefixes are the private-network prefixes accepted in relaxed mode.
var DefaultPrivatePrefixes = []string{"192.168", "172.21"}

var loopbackDomains = []string{NullOrigin, "localhost", "127.0.0.1"}

// Options configures a Policy.
type Options struct {
	// AllowDomains are domain suffixes. A normalized origin domain that ends
	// with any entry is authorized. Blank entries are ignored.
	AllowDomains []string
	// Relaxed enables development-only rules (loopback and private networks).
	Relaxed bool
	// PrivatePrefixes replaces DefaultPrivatePrefixes when non-nil.
	PrivatePrefixes []string
	// MaxAge replaces DefaultMaxAge when positive.
	MaxAge time.Duration
}

// Policy is an immutable snapshot of the CORS configuration. It is safe for
// concurrent use without synchronization.
type Policy struct {
	allowDomains    []string
	relaxed         bool
	privatePrefixes []string
	maxAge          time.Duration
}

// NewPolicy builds a Policy, copying every slice in opts.
func NewPolicy(opts Options) *Policy {
	p := &Policy{
		allowDomains: compact(opts.AllowDomains),
		relaxed:      opts.Relaxed,
		maxAge:       opts.MaxAge,
	}
	if opts.PrivatePrefixes != nil {
		p.privatePrefixes = compact(opts.PrivatePrefixes)
	} else {
		p.privatePrefixes = compact(DefaultPrivatePrefixes)
	}
	if p.maxAge <= 0 {
		p.maxAge = DefaultMaxAge
	}
	return p
}

// AllowDomains returns a copy of the configured allow-domain suffixes.
func (p *Policy) AllowDomains() []string { return append([]string(nil), p.allowDomains...) }

// PrivatePrefixes returns a copy of the private-network prefixes.
func (p *Policy) PrivatePrefixes() []string { return append([]string(nil), p.privatePrefixes...) }

// Relaxed reports whether development relaxations are active.
func (p *Policy) Relaxed() bool { return p.relaxed }

// MaxAge returns the preflight cache duration.
func (p *Policy) MaxAge() time.Duration { return p.maxAge }

// Evaluate decides whether r is authorized and, if so, returns the
// directives to send back. The boolean is false when the origin is not
// authorized; the returned Directives are then empty and nothing should be
// written.
func (p *Policy) Evaluate(r Request) (Directives, bool) {
	origin, ok := r.Header(HeaderOrigin)
	if !ok {
		origin = NullOrigin
	}

	if !p.authorize(NormalizeDomain(origin)) {
		return Directives{}, false
	}

	d := Directives{
		AllowOrigin:      origin,
		AllowCredentials: true,
		AllowMethods:     strings.ToUpper(r.Method()),
	}
	if m, ok := r.Header(HeaderRequestMethod); ok && !isBlank(m) {
		d.AllowMethods = strings.ToUpper(m)
	}
	if h, ok := r.Header(HeaderRequestHeaders); ok && !isBlank(h) {
		d.AllowHeaders = h
	}
	if strings.EqualFold(r.Method(), methodOptions) {
		d.Preflight = true
		d.MaxAge = p.maxAge
	}
	return d, true
}

func (p *Policy) authorize(domain string) bool {
	if hasAnySuffix(domain, p.allowDomains) {
		return true
	}
	if !p.relaxed {
		return false
	}
	for _, d := range loopbackDomains {
		if domain == d {
			return true
		}
	}
	return hasAnyPrefix(domain, p.privatePrefixes)
}

// hasAnySuffix is a plain string suffix test with no dot boundary:
// "example.com" matches "notexample.com". See LintAllowDomains.
func hasAnySuffix(s string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// IsPreflight reports whether r is a CORS preflight: an OPTIONS request
// with a non-blank Access-Control-Request-Method. Evaluate applies the same
// blank rule when choosing the allowed method.
func IsPreflight(r Request) bool {
	if !strings.EqualFold(r.Method(), methodOptions) {
		return false
	}
	m, ok := r.Header(HeaderRequestMethod)
	return ok && !isBlank(m)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// compact trims entries and drops blanks. An empty suffix or prefix would
// match every domain.
func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
