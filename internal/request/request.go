package request

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	requestIDContextKey    contextKey = "request_id"
	corsDecisionContextKey contextKey = "cors_decision"
)

// RequestIDHeader carries the request ID in and out of the service.
const RequestIDHeader = "X-Request-ID"

// CORSDecision records what the CORS middleware decided for a request.
type CORSDecision struct {
	Origin     string
	Present    bool
	Authorized bool
}

// ClientIP extracts the client IP from the request, respecting X-Forwarded-For and X-Real-IP.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return r.RemoteAddr
}

// WithRequestID returns a context carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestIDFromContext returns the request ID, or "" if none was set.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// WithCORSDecision returns a context carrying d.
func WithCORSDecision(ctx context.Context, d CORSDecision) context.Context {
	return context.WithValue(ctx, corsDecisionContextKey, d)
}

// CORSDecisionFromContext returns the CORS decision for the request, if the
// CORS middleware ran.
func CORSDecisionFromContext(r *http.Request) (CORSDecision, bool) {
	d, ok := r.Context().Value(corsDecisionContextKey).(CORSDecision)
	return d, ok
}
