package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/process-rest/internal/models"
	"github.com/benvon/process-rest/internal/validation"
)

const defaultCorsConfigKey = "default"

// CorsConfigRepository handles CORS configuration in the database.
type CorsConfigRepository struct {
	db *DB
}

// NewCorsConfigRepository creates a new CORS config repository.
func NewCorsConfigRepository(db *DB) *CorsConfigRepository {
	return &CorsConfigRepository{db: db}
}

// Get retrieves the default CORS config. It returns nil, nil when no
// configuration has been stored yet.
func (r *CorsConfigRepository) Get(ctx context.Context) (*models.CorsConfig, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT config_key, allow_domains, private_prefixes, max_age, created_at, updated_at
		FROM cors_config WHERE config_key = $1
	`, defaultCorsConfigKey)
	c := &models.CorsConfig{}
	var domains, prefixes string
	err := row.Scan(
		&c.ConfigKey,
		&domains,
		&prefixes,
		&c.MaxAge,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cors config: %w", err)
	}
	c.AllowDomains = SplitList(domains)
	c.PrivatePrefixes = SplitList(prefixes)
	return c, nil
}

// Set upserts the default CORS config.
func (r *CorsConfigRepository) Set(ctx context.Context, c *models.CorsConfig) error {
	domains := SplitList(strings.Join(c.AllowDomains, ","))
	if len(domains) == 0 {
		return fmt.Errorf("allow_domains cannot be empty")
	}
	normalized := &models.CorsConfig{
		AllowDomains:    domains,
		PrivatePrefixes: SplitList(strings.Join(c.PrivatePrefixes, ",")),
		MaxAge:          c.MaxAge,
	}
	if err := validation.Validate.Struct(normalized); err != nil {
		return fmt.Errorf("invalid cors config: %w", err)
	}
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cors_config (config_key, allow_domains, private_prefixes, max_age, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (config_key) DO UPDATE SET
			allow_domains = EXCLUDED.allow_domains,
			private_prefixes = EXCLUDED.private_prefixes,
			max_age = EXCLUDED.max_age,
			updated_at = EXCLUDED.updated_at
	`, defaultCorsConfigKey,
		strings.Join(normalized.AllowDomains, ","),
		strings.Join(normalized.PrivatePrefixes, ","),
		normalized.MaxAge, now, now)
	if err != nil {
		return fmt.Errorf("set cors config: %w", err)
	}
	return nil
}

// SplitList splits a comma-separated column into trimmed, de-duplicated
// entries, keeping first-seen order.
func SplitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	var out []string
	seen := make(map[string]bool)
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
