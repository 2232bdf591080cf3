package convstore

import "time"

// BackendConfig selects which ConversationStore variant NewStore builds.
// Priority mirrors internal/hitl.BackendConfig: Redis > Postgres > SQLite >
// in-memory.
type BackendConfig struct {
	RedisURL    string
	RedisTTL    time.Duration
	PostgresDSN string
	SQLitePath  string
}

// NewStore builds the first configured backend, falling back to an
// in-memory store when none is configured (development / tests).
func NewStore(cfg BackendConfig) (Store, error) {
	if cfg.RedisURL != "" {
		return NewKeyedStoreFromURL(cfg.RedisURL, cfg.RedisTTL)
	}
	if cfg.PostgresDSN != "" {
		return NewPostgresStore(cfg.PostgresDSN)
	}
	if cfg.SQLitePath != "" {
		return NewSQLiteStore(cfg.SQLitePath)
	}
	return NewMemoryStore(), nil
}
