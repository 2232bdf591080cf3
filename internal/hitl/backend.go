package hitl

import (
	"strings"

	"github.com/redis/go-redis/v9"
)

// BackendConfig names the connection strings available to select a Store.
// Exactly the fields that are non-empty matter; selection priority is
// Redis > Postgres > SQLite > in-memory, per spec §4.3.
type BackendConfig struct {
	RedisURL    string
	PostgresDSN string
	SQLitePath  string
}

// NewStore selects and constructs a Store by the priority above, falling
// back to MemoryStore when no backend is configured.
func NewStore(cfg BackendConfig) (Store, error) {
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(redis.NewClient(opts)), nil
	}
	if strings.TrimSpace(cfg.PostgresDSN) != "" {
		return NewPostgresStore(cfg.PostgresDSN)
	}
	if strings.TrimSpace(cfg.SQLitePath) != "" {
		return NewSQLiteStore(cfg.SQLitePath)
	}
	return NewMemoryStore(), nil
}
