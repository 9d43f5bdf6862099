package models

import "time"

// CorsConfig is the persisted CORS policy (allow-domain suffixes, relaxed
// private-network prefixes, preflight cache lifetime). Relaxed mode itself is
// decided at process start and is not stored.
type CorsConfig struct {
	ConfigKey       string    `json:"config_key"`
	AllowDomains    []string  `json:"allow_domains" validate:"dive,domain_suffix"`
	PrivatePrefixes []string  `json:"private_prefixes" validate:"dive,network_prefix"`
	MaxAge          int       `json:"max_age" validate:"min=0"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
