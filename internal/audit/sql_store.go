package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/forgehq/sidecar/pkg/models"
)

// SQLStore persists audit rows to a Postgres/CockroachDB table, sharing the
// connection pool the caller already opened for admin-plane storage.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps db. The caller owns db's lifecycle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// EnsureSchema creates the chat_audit_log table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS chat_audit_log (
			id SERIAL PRIMARY KEY,
			session_id TEXT,
			user_id TEXT,
			agent_id TEXT,
			route TEXT NOT NULL,
			status_code INT NOT NULL,
			duration_ms BIGINT NOT NULL,
			model TEXT,
			message TEXT,
			tool_count INT NOT NULL DEFAULT 0,
			hitl_triggered BOOLEAN NOT NULL DEFAULT FALSE,
			warnings_count INT NOT NULL DEFAULT 0,
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure chat_audit_log schema: %w", err)
	}
	return nil
}

func (s *SQLStore) Record(ctx context.Context, row models.ChatAuditRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_audit_log
			(session_id, user_id, agent_id, route, status_code, duration_ms,
			 model, message, tool_count, hitl_triggered, warnings_count, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		nullIfEmpty(row.SessionID), nullIfEmpty(row.UserID), nullIfEmpty(row.AgentID),
		row.Route, row.StatusCode, row.DurationMs,
		nullIfEmpty(row.Model), nullIfEmpty(models.TruncateForAudit(row.Message)),
		row.ToolCount, row.HitlTriggered, row.WarningsCount, nullIfEmpty(row.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("insert chat_audit_log row: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
