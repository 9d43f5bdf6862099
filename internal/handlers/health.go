package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	logpkg "github.com/benvon/process-rest/internal/logger"
	"github.com/benvon/process-rest/internal/relay"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultCheckTimeout bounds each dependency check in extended mode.
const DefaultCheckTimeout = 5 * time.Second

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

type namedCheck struct {
	name  string
	check Check
}

// HealthChecker handles health check requests
type HealthChecker struct {
	checks  []namedCheck
	timeout time.Duration
	log     *zap.Logger
}

// NewHealthChecker creates a health checker with no dependency checks.
func NewHealthChecker(log *zap.Logger) *HealthChecker {
	if log == nil {
		log = zap.NewNop()
	}
	return &HealthChecker{timeout: DefaultCheckTimeout, log: log}
}

// AddCheck registers a dependency reported in extended mode.
func (h *HealthChecker) AddCheck(name string, check Check) {
	h.checks = append(h.checks, namedCheck{name: name, check: check})
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles the /healthz endpoint. Basic mode only reports that
// the process serves requests; ?mode=extended also runs every registered
// check and answers 503 if any fails.
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	statusCode := http.StatusOK

	if r.URL.Query().Get("mode") == "extended" {
		response.Checks = make(map[string]string, len(h.checks))
		for _, c := range h.checks {
			if err := h.run(r.Context(), c.check); err != nil {
				h.log.Warn("health_check_failed",
					zap.String("check", c.name),
					zap.String("error", logpkg.SanitizeError(err)),
				)
				response.Status = "unhealthy"
				response.Checks[c.name] = "unhealthy"
				continue
			}
			response.Checks[c.name] = "healthy"
		}
		if response.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("failed_to_encode_health_response", zap.Error(err))
	}
}

func (h *HealthChecker) run(ctx context.Context, check Check) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return check(ctx)
}

// Pinger is satisfied by *database.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// DatabaseCheck verifies the database connection.
func DatabaseCheck(db Pinger) Check {
	return db.PingContext
}

// RedisCheck verifies the reload channel's redis connection.
func RedisCheck(client redis.UniversalClient) Check {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// UpstreamCheck calls url through the relay client. The upstream must
// answer with a success envelope.
func UpstreamCheck(client *relay.Client, url string) Check {
	return func(ctx context.Context) error {
		_, err := relay.Get(ctx, client, relay.Request{URL: url, Token: relay.NoToken}, relay.Raw())
		return err
	}
}
