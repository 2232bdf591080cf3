package config

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// SidecarConfig is this module's configuration schema, decoded from the
// map LoadRaw returns after $include composition and env substitution.
type SidecarConfig struct {
	Server    SidecarServerConfig  `yaml:"server"`
	Auth      SidecarAuthConfig    `yaml:"auth"`
	Admin     SidecarAdminConfig   `yaml:"admin"`
	Storage   SidecarStorageConfig `yaml:"storage"`
	Tools     SidecarToolsConfig   `yaml:"tools"`
	HitlTTL   time.Duration        `yaml:"hitl_ttl"`
	RateLimit RateLimitConfig      `yaml:"rate_limit"`
	Logging   LoggingLevelConfig   `yaml:"logging"`
}

// SidecarServerConfig is the HTTP listener's bind address.
type SidecarServerConfig struct {
	Addr string `yaml:"addr"`
}

// SidecarAuthConfig configures the user-facing Authenticator.
type SidecarAuthConfig struct {
	Mode      string `yaml:"mode"` // "trust" or "verify"
	Secret    string `yaml:"secret"`
	ClaimPath string `yaml:"claim_path"`
}

// SidecarAdminConfig configures the admin plane.
type SidecarAdminConfig struct {
	Key        string `yaml:"key"`
	ConfigPath string `yaml:"config_path"`
}

// SidecarToolsConfig configures outbound tool dispatch.
type SidecarToolsConfig struct {
	McpBaseURL string `yaml:"mcp_base_url"`
}

// SidecarStorageConfig selects the storage backends. The conversation and
// HITL stores use the first configured of Redis > Postgres > SQLite >
// memory; the admin-plane and audit stores use Postgres when postgres_dsn
// is set and memory otherwise.
type SidecarStorageConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	SQLitePath  string `yaml:"sqlite_path"`
	RedisURL    string `yaml:"redis_url"`
}

// RateLimitConfig mirrors ratelimit.Config's yaml shape so it can be
// embedded directly in SidecarConfig.
type RateLimitConfig struct {
	WindowMs    int64 `yaml:"window_ms"`
	MaxRequests int   `yaml:"max_requests"`
	Enabled     bool  `yaml:"enabled"`
}

// LoggingLevelConfig is the minimal logging section the sidecar needs —
// a level/format pair, unlike the teacher's much larger observability
// config (tracing exporters, metrics backends, ...).
type LoggingLevelConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// LoadSidecar reads path (and any $include'd files) via LoadRaw, then
// strictly decodes the merged map into a SidecarConfig, rejecting unknown
// fields and any second YAML document.
func LoadSidecar(path string) (*SidecarConfig, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	var cfg SidecarConfig
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}
	return &cfg, nil
}

// DefaultSidecarConfig returns the zero-config fallback runServe uses when
// the config file cannot be loaded.
func DefaultSidecarConfig() *SidecarConfig {
	return &SidecarConfig{
		Server: SidecarServerConfig{Addr: ":8080"},
		Auth:   SidecarAuthConfig{Mode: "trust", ClaimPath: "sub"},
		RateLimit: RateLimitConfig{
			WindowMs: 60_000, MaxRequests: 60, Enabled: true,
		},
		HitlTTL: 5 * time.Minute,
		Logging: LoggingLevelConfig{Level: "info", Format: "json"},
	}
}
