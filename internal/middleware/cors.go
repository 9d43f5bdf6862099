package middleware

import (
	"net/http"

	"github.com/benvon/process-rest/internal/cors"
	logpkg "github.com/benvon/process-rest/internal/logger"
	"github.com/benvon/process-rest/internal/request"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// varyHeaders lists the request headers CORS responses depend on.
var varyHeaders = []string{cors.HeaderOrigin, cors.HeaderRequestMethod, cors.HeaderRequestHeaders}

// CORSEvaluator decides CORS directives for a request. *cors.Policy and
// *cors.Holder implement it.
type CORSEvaluator interface {
	Evaluate(r cors.Request) (cors.Directives, bool)
}

// CORS creates CORS middleware. Directives are written only when the origin
// is authorized; a denied request continues without any Access-Control-*
// headers and the browser enforces the policy. Preflight requests (OPTIONS
// carrying Access-Control-Request-Method) are answered with 204 here.
func CORS(policy CORSEvaluator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, h := range varyHeaders {
				w.Header().Add("Vary", h)
			}

			cr := cors.FromHTTP(r)
			d, authorized := policy.Evaluate(cr)
			if authorized {
				d.Apply(w.Header())
			}

			origin, present := r.Header.Get(cors.HeaderOrigin), len(r.Header.Values(cors.HeaderOrigin)) > 0
			preflight := cors.IsPreflight(cr)

			trace.SpanFromContext(r.Context()).SetAttributes(
				attribute.Bool("cors.authorized", authorized),
				attribute.String("cors.origin", logpkg.SanitizeOrigin(origin)),
			)

			if preflight {
				if !authorized {
					logger.Info("cors_preflight_rejected",
						zap.String("origin", logpkg.SanitizeOrigin(origin)),
						zap.String("path", logpkg.SanitizePath(r.URL.Path)),
						zap.String("request_id", request.RequestIDFromContext(r.Context())),
					)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			ctx := request.WithCORSDecision(r.Context(), request.CORSDecision{
				Origin:     origin,
				Present:    present,
				Authorized: authorized,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
