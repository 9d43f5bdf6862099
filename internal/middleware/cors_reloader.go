package middleware

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/benvon/process-rest/internal/cors"
	"github.com/benvon/process-rest/internal/models"
	"go.uber.org/zap"
)

// CorsConfigSource supplies the persisted CORS configuration. Get returns
// nil, nil when nothing is stored.
type CorsConfigSource interface {
	Get(ctx context.Context) (*models.CorsConfig, error)
}

// PolicySource names where the active policy's allow list came from.
type PolicySource string

const (
	PolicyFromEnvironment PolicySource = "environment"
	PolicyFromDatabase    PolicySource = "database"
)

// CORSReloader keeps a cors.Holder in sync with the persisted configuration.
// Requests always see a complete policy; a reload swaps the whole snapshot.
type CORSReloader struct {
	holder   *cors.Holder
	source   CorsConfigSource
	fallback cors.Options
	log      *zap.Logger
	interval time.Duration

	mu      sync.Mutex // serializes loads
	loaded  bool
	linted  []string
	from    PolicySource
	loadErr error
}

// NewCORSReloader creates a reloader. fallback is the process configuration,
// used when source is nil, empty or unreachable on first load. Relaxed mode
// always comes from fallback.
func NewCORSReloader(source CorsConfigSource, fallback cors.Options, log *zap.Logger, reloadInterval time.Duration) *CORSReloader {
	if log == nil {
		log = zap.NewNop()
	}
	return &CORSReloader{
		holder:   cors.NewHolder(cors.NewPolicy(fallback)),
		source:   source,
		fallback: fallback,
		log:      log,
		interval: reloadInterval,
		from:     PolicyFromEnvironment,
	}
}

// Status reports where the active policy came from and the error of the
// last failed source read, or nil when the last read succeeded.
func (r *CORSReloader) Status() (PolicySource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.from, r.loadErr
}

// Holder returns the holder the reloader publishes to.
func (r *CORSReloader) Holder() *cors.Holder {
	return r.holder
}

// Middleware loads the configuration once and returns the CORS middleware
// bound to the reloader's holder.
func (r *CORSReloader) Middleware() func(http.Handler) http.Handler {
	r.Reload(context.Background())
	return CORS(r.holder, r.log)
}

// Start runs the reload loop until ctx is cancelled.
func (r *CORSReloader) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reload(ctx)
		}
	}
}

// Reload reads the source and publishes a new policy. If the source fails
// after a successful load, the current policy stays in place.
func (r *CORSReloader) Reload(ctx context.Context) *cors.Policy {
	r.mu.Lock()
	defer r.mu.Unlock()

	opts, from := r.fallback, PolicyFromEnvironment
	r.loadErr = nil
	if r.source != nil {
		cfg, err := r.source.Get(ctx)
		r.loadErr = err
		switch {
		case err != nil && r.loaded:
			r.log.Warn("cors_config_reload_failed", zap.Error(err))
			return r.holder.Load()
		case err != nil:
			r.log.Warn("cors_config_load_failed_using_env", zap.Error(err))
		case cfg != nil:
			opts, from = r.merge(cfg), PolicyFromDatabase
		}
	}

	p := cors.NewPolicy(opts)
	r.holder.Store(p)
	r.loaded = true
	r.from = from
	r.lint(p.AllowDomains())

	r.log.Debug("cors_policy_loaded",
		zap.Strings("allow_domains", p.AllowDomains()),
		zap.Strings("private_prefixes", p.PrivatePrefixes()),
		zap.Bool("relaxed", p.Relaxed()),
		zap.Duration("max_age", p.MaxAge()),
	)
	return p
}

// merge overlays stored values on the fallback. Empty prefixes and a zero
// max age mean "use the process value".
func (r *CORSReloader) merge(cfg *models.CorsConfig) cors.Options {
	opts := cors.Options{
		AllowDomains:    cfg.AllowDomains,
		Relaxed:         r.fallback.Relaxed,
		PrivatePrefixes: r.fallback.PrivatePrefixes,
		MaxAge:          r.fallback.MaxAge,
	}
	if len(cfg.PrivatePrefixes) > 0 {
		opts.PrivatePrefixes = cfg.PrivatePrefixes
	}
	if cfg.MaxAge > 0 {
		opts.MaxAge = time.Duration(cfg.MaxAge) * time.Second
	}
	return opts
}

// lint warns about risky entries once per distinct allow list.
func (r *CORSReloader) lint(domains []string) {
	if r.linted != nil && slices.Equal(r.linted, domains) {
		return
	}
	r.linted = append([]string{}, domains...)
	for _, f := range cors.LintAllowDomains(domains) {
		r.log.Warn("cors_allow_domain_warning",
			zap.String("entry", f.Entry),
			zap.String("kind", string(f.Kind)),
			zap.String("detail", f.Message),
		)
	}
}
