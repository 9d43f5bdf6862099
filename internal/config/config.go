package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/benvon/process-rest/internal/cors"
	"github.com/benvon/process-rest/internal/validation"
	"github.com/joho/godotenv"
)

// DefaultProfile is used when APP_PROFILE is unset.
const DefaultProfile = "local"

// productionProfiles are the profile names that disable CORS relaxations.
var productionProfiles = []string{"real", "prod", "production"}

// Config holds application configuration. CORSMaxAge is the preflight
// Access-Control-Max-Age in seconds and must be positive.
type Config struct {
	Profile            string `validate:"required"`
	CORSDevelop        bool
	AllowDomains       []string
	PrivatePrefixes    []string
	CORSMaxAge         int           `validate:"min=1"`
	CORSReloadInterval time.Duration `validate:"min=0"`
	CORSReloadChannel  string        `validate:"required"`
	CORSDiagnostics    bool
	DatabaseURL        string
	RedisURL           string
	ServerPort         string `validate:"required,numeric"`
	EnableHSTS         bool
	ServerDebugMode    bool
	OTELEnabled        bool
	OTELEndpoint       string
	OpenAPIPath        string
	UpstreamHealthURL  string        `validate:"omitempty,url"`
	RelayTimeout       time.Duration `validate:"gt=0"`
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present; real environment variables
// win over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{
		Profile:            getEnv("APP_PROFILE", DefaultProfile),
		CORSDevelop:        getEnvBool("CORS_DEVELOP", false),
		AllowDomains:       getEnvList("CORS_ALLOW_DOMAINS", nil),
		PrivatePrefixes:    getEnvList("CORS_PRIVATE_PREFIXES", cors.DefaultPrivatePrefixes),
		CORSMaxAge:         getEnvInt("CORS_MAX_AGE", int(cors.DefaultMaxAge/time.Second)),
		CORSReloadInterval: getEnvDuration("CORS_RELOAD_INTERVAL", time.Minute),
		CORSReloadChannel:  getEnv("CORS_RELOAD_CHANNEL", "process-rest:cors:reload"),
		CORSDiagnostics:    getEnvBool("CORS_DIAGNOSTICS", false),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		EnableHSTS:         getEnvBool("ENABLE_HSTS", false),
		ServerDebugMode:    getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:        getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OpenAPIPath:        getEnv("OPENAPI_PATH", "api/openapi/openapi.yaml"),
		UpstreamHealthURL:  getEnv("UPSTREAM_HEALTH_URL", ""),
		RelayTimeout:       getEnvDuration("RELAY_TIMEOUT", 30*time.Second),
	}

	if err := validation.Validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// IsProduction reports whether the active profile is production-equivalent.
func (c *Config) IsProduction() bool {
	for _, p := range productionProfiles {
		if strings.EqualFold(strings.TrimSpace(c.Profile), p) {
			return true
		}
	}
	return false
}

// RelaxedMode reports whether development CORS relaxations apply: either
// forced by CORS_DEVELOP or implied by a non-production profile.
func (c *Config) RelaxedMode() bool {
	return c.CORSDevelop || !c.IsProduction()
}

// CORSOptions returns the policy options described by the environment.
func (c *Config) CORSOptions() cors.Options {
	return cors.Options{
		AllowDomains:    c.AllowDomains,
		Relaxed:         c.RelaxedMode(),
		PrivatePrefixes: c.PrivatePrefixes,
		MaxAge:          time.Duration(c.CORSMaxAge) * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, trimming entries and
// dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
