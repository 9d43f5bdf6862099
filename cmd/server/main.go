package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/process-rest/internal/config"
	"github.com/benvon/process-rest/internal/database"
	"github.com/benvon/process-rest/internal/handlers"
	"github.com/benvon/process-rest/internal/logger"
	"github.com/benvon/process-rest/internal/middleware"
	"github.com/benvon/process-rest/internal/notify"
	"github.com/benvon/process-rest/internal/relay"
	"github.com/benvon/process-rest/internal/telemetry"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = ""
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(cfg.IsProduction(), debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.String("version", version),
		zap.String("profile", cfg.Profile),
		zap.Bool("cors_relaxed", cfg.RelaxedMode()),
		zap.Bool("cors_diagnostics", cfg.CORSDiagnostics),
		zap.Bool("debug_mode", debugMode),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)
	if cfg.RelaxedMode() && cfg.IsProduction() {
		zapLogger.Warn("cors_relaxed_mode_in_production_profile", zap.String("profile", cfg.Profile))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp := initTracing(ctx, cfg, zapLogger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
			zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
		}
	}()

	relayClient := relay.NewClient(&http.Client{Timeout: cfg.RelayTimeout}, zapLogger)
	healthChecker := handlers.NewHealthChecker(zapLogger)

	var corsSource middleware.CorsConfigSource
	if cfg.DatabaseURL != "" {
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
		}
		defer func() {
			if err := db.Close(); err != nil {
				zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
			}
		}()
		if err := db.EnsureSchema(ctx); err != nil {
			zapLogger.Fatal("failed_to_ensure_schema", zap.Error(err))
		}
		zapLogger.Info("connected_to_database")
		corsSource = database.NewCorsConfigRepository(db)
		healthChecker.AddCheck("database", handlers.DatabaseCheck(db))
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = notify.Connect(ctx, cfg.RedisURL)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
		zapLogger.Info("connected_to_redis")
		healthChecker.AddCheck("redis", handlers.RedisCheck(redisClient))
	}

	if cfg.UpstreamHealthURL != "" {
		healthChecker.AddCheck("upstream", handlers.UpstreamCheck(relayClient, cfg.UpstreamHealthURL))
	}

	corsReloader := middleware.NewCORSReloader(corsSource, cfg.CORSOptions(), zapLogger, cfg.CORSReloadInterval)

	r := mux.NewRouter()

	// gorilla/mux runs middleware in registration order: the first one
	// registered is the outermost.
	if tp != nil {
		r.Use(otelmux.Middleware(telemetry.ServiceName))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(corsReloader.Middleware())
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize, zapLogger))
	r.Use(middleware.Timeout(middleware.DefaultRequestTimeout))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Audit(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", handlers.Version(version, commit)).Methods(http.MethodGet)

	if openAPIHandler, err := handlers.NewOpenAPIHandler(cfg.OpenAPIPath); err != nil {
		zapLogger.Warn("openapi_document_unavailable", zap.String("path", cfg.OpenAPIPath), zap.Error(err))
	} else {
		openAPIHandler.RegisterRoutes(r)
	}

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	if cfg.CORSDiagnostics {
		diagRouter := apiRouter.PathPrefix("").Subrouter()
		diagRouter.Use(middleware.ContentType(zapLogger))
		handlers.NewCORSEvaluateHandler(corsReloader.Holder(), zapLogger).RegisterRoutes(diagRouter)
		zapLogger.Info("cors_diagnostics_enabled")
	}

	// Middleware only runs for matched routes, so every OPTIONS request needs
	// one. Preflights are answered by the CORS middleware before reaching it.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	go corsReloader.Start(ctx)
	if redisClient != nil {
		sub := notify.NewSubscriber(redisClient, cfg.CORSReloadChannel, zapLogger)
		go func() {
			err := sub.Listen(ctx, func(ctx context.Context, ev notify.ReloadEvent) {
				corsReloader.Reload(ctx)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				zapLogger.Error("cors_reload_subscription_stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   middleware.DefaultRequestTimeout + 5*time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
		os.Exit(1)
	}
	zapLogger.Info("server_exited")
}

// initTracing installs the OTLP tracer provider when enabled. It returns nil
// when tracing is off or could not be initialized.
func initTracing(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) *sdktrace.TracerProvider {
	if !cfg.OTELEnabled {
		return nil
	}
	if cfg.OTELEndpoint == "" {
		zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		return nil
	}
	tp, err := telemetry.InitTracer(ctx, telemetry.Config{
		ServiceVersion: version,
		Endpoint:       cfg.OTELEndpoint,
		Insecure:       !cfg.IsProduction(),
	})
	if err != nil {
		zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		return nil
	}
	zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
	return tp
}
