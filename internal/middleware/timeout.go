package middleware

import (
	"net/http"
	"time"
)

// DefaultRequestTimeout is the default request timeout.
const DefaultRequestTimeout = 30 * time.Second

const timeoutBody = `{"success":false,"error":"Service Unavailable","message":"Request timed out"}`

// Timeout bounds handler run time. The handler's context is cancelled at the
// deadline, which also aborts in-flight relay calls, and the client receives
// a 503 JSON error.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(next http.Handler) http.Handler {
		th := http.TimeoutHandler(next, timeout, timeoutBody)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			th.ServeHTTP(w, r)
		})
	}
}
