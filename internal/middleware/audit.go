package middleware

import (
	"net/http"

	logpkg "github.com/benvon/process-rest/internal/logger"
	"github.com/benvon/process-rest/internal/request"
	"go.uber.org/zap"
)

// Audit logs security-related events: requests from origins the CORS policy
// refused and responses with 401 or 403.
func Audit(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &auditResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			ip := logpkg.SanitizeString(request.ClientIP(r), logpkg.MaxGeneralStringLength)

			// The handler still ran; the browser drops the response.
			if d, ok := request.CORSDecisionFromContext(r); ok && d.Present && !d.Authorized {
				logger.Warn("cors_origin_rejected",
					zap.String("origin", logpkg.SanitizeOrigin(d.Origin)),
					zap.String("method", r.Method),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("ip", ip),
					zap.String("request_id", request.RequestIDFromContext(r.Context())),
				)
			}

			statusCode := wrapped.statusCode
			if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
				logger.Warn("security_event",
					zap.Int("status_code", statusCode),
					zap.String("method", r.Method),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("ip", ip),
				)
			}
		})
	}
}

// auditResponseWriter wraps http.ResponseWriter to capture status code
type auditResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (aw *auditResponseWriter) WriteHeader(code int) {
	aw.statusCode = code
	aw.ResponseWriter.WriteHeader(code)
}
