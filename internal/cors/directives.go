package cors

import (
	"net/http"
	"strconv"
	"time"
)

// Request and response header names.
const (
	HeaderOrigin         = "Origin"
	HeaderRequestMethod  = "Access-Control-Request-Method"
	HeaderRequestHeaders = "Access-Control-Request-Headers"

	HeaderAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAllowCredentials = "Access-Control-Allow-Credentials"
	HeaderAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAllowHeaders     = "Access-Control-Allow-Headers"
	HeaderMaxAge           = "Access-Control-Max-Age"
)

const methodOptions = http.MethodOptions

// Request is the read-only view of an inbound request that Evaluate needs.
type Request interface {
	// Header returns the first value of the named header and whether the
	// header was present at all.
	Header(name string) (string, bool)
	Method() string
}

// FromHTTP adapts an *http.Request.
func FromHTTP(r *http.Request) Request {
	return httpRequest{r: r}
}

type httpRequest struct {
	r *http.Request
}

func (h httpRequest) Header(name string) (string, bool) {
	v := h.r.Header.Values(name)
	if len(v) == 0 {
		return "", false
	}
	return v[0], true
}

func (h httpRequest) Method() string { return h.r.Method }

// Directives are the CORS response headers for one authorized request.
type Directives struct {
	AllowOrigin      string
	AllowCredentials bool
	AllowMethods     string
	// AllowHeaders is empty when the header must be omitted.
	AllowHeaders string
	// Preflight is set for authorized OPTIONS requests; only then is MaxAge sent.
	Preflight bool
	MaxAge    time.Duration
}

// HeaderSink receives response headers. http.Header satisfies it.
type HeaderSink interface {
	Set(key, value string)
}

// Apply writes d to sink. It writes nothing when AllowOrigin is empty.
func (d Directives) Apply(sink HeaderSink) {
	if d.AllowOrigin == "" {
		return
	}
	sink.Set(HeaderAllowOrigin, d.AllowOrigin)
	if d.AllowCredentials {
		sink.Set(HeaderAllowCredentials, "true")
	}
	sink.Set(HeaderAllowMethods, d.AllowMethods)
	if d.AllowHeaders != "" {
		sink.Set(HeaderAllowHeaders, d.AllowHeaders)
	}
	if d.Preflight {
		sink.Set(HeaderMaxAge, strconv.Itoa(int(d.MaxAge/time.Second)))
	}
}

// Map returns the headers Apply would write, keyed by header name.
func (d Directives) Map() map[string]string {
	m := make(map[string]string)
	d.Apply(mapSink(m))
	return m
}

type mapSink map[string]string

func (m mapSink) Set(key, value string) { m[key] = value }

// StaticRequest is a Request built from plain values, used for diagnostics
// and dry runs. Headers are keyed by canonical header name; a missing key
// means the header is absent.
type StaticRequest struct {
	HTTPMethod string
	Headers    map[string]string
}

func (s StaticRequest) Header(name string) (string, bool) {
	v, ok := s.Headers[name]
	return v, ok
}

func (s StaticRequest) Method() string { return s.HTTPMethod }
