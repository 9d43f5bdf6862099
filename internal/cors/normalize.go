package cors

import "regexp"

// originDomain keeps the host of an origin: optional http(s) scheme and
// "www." are dropped, as are any port and path.
var originDomain = regexp.MustCompile(`^(?:https?://)?(?:www\.)?([^:/]+)(?::\d+)?(?:/.*)?$`)

// NormalizeDomain reduces an Origin header value to a bare domain. Values the
// pattern does not recognize (e.g. other schemes or a non-numeric port) are
// returned unchanged. Matching is case-sensitive.
func NormalizeDomain(origin string) string {
	m := originDomain.FindStringSubmatch(origin)
	if m == nil {
		return origin
	}
	return m[1]
}
