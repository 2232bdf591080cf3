package convstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/forgehq/sidecar/pkg/models"
)

// sqlStore backs both the "Local SQL" (single-file SQLite) and "Shared SQL
// pool" (Postgres) variants of §4.9 — the two differ only in driver name
// and placeholder syntax, mirroring internal/hitl's sqlStore.
type sqlStore struct {
	db          *sql.DB
	placeholder func(n int) string
}

func dollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }
func qmarkPlaceholder(int) string    { return "?" }

// NewPostgresStore opens a pooled Postgres-backed ConversationStore.
func NewPostgresStore(dsn string) (Store, error) {
	return newSQLStore("postgres", dsn, dollarPlaceholder)
}

// NewSQLiteStore opens a single-file SQLite-backed ConversationStore.
func NewSQLiteStore(path string) (Store, error) {
	return newSQLStore("sqlite", path, qmarkPlaceholder)
}

func newSQLStore(driver, dsn string, placeholder func(int) string) (Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("convstore: open %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("convstore: ping %s: %w", driver, err)
	}
	s := &sqlStore{db: db, placeholder: placeholder}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS conv_sessions (
	id TEXT PRIMARY KEY,
	owner_user_id TEXT NOT NULL,
	agent_id TEXT,
	created_at TIMESTAMP NOT NULL,
	complete BOOLEAN NOT NULL DEFAULT FALSE
)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
CREATE TABLE IF NOT EXISTS conv_messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	stage TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	agent_id TEXT,
	user_id TEXT,
	created_at TIMESTAMP NOT NULL
)`)
	return err
}

func (s *sqlStore) p(n int) string { return s.placeholder(n) }

func (s *sqlStore) CreateSession(ctx context.Context, ownerUserID, agentID string) (*models.Session, error) {
	session := &models.Session{
		ID:          uuid.NewString(),
		OwnerUserID: ownerUserID,
		AgentID:     agentID,
		CreatedAt:   time.Now(),
	}
	query := fmt.Sprintf(
		"INSERT INTO conv_sessions (id, owner_user_id, agent_id, created_at, complete) VALUES (%s, %s, %s, %s, FALSE)",
		s.p(1), s.p(2), s.p(3), s.p(4))
	if _, err := s.db.ExecContext(ctx, query, session.ID, session.OwnerUserID, session.AgentID, session.CreatedAt); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *sqlStore) PersistMessage(ctx context.Context, msg *models.ConversationMessage) error {
	if msg == nil {
		return nil
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insert := fmt.Sprintf(
		"INSERT INTO conv_messages (id, session_id, stage, role, content, agent_id, user_id, created_at) VALUES (%s, %s, %s, %s, %s, %s, %s, %s)",
		s.p(1), s.p(2), s.p(3), s.p(4), s.p(5), s.p(6), s.p(7), s.p(8))
	if _, err := tx.ExecContext(ctx, insert, msg.ID, msg.SessionID, msg.Stage, msg.Role, msg.Content, msg.AgentID, msg.UserID, msg.CreatedAt); err != nil {
		return err
	}

	if isComplete(msg) {
		update := fmt.Sprintf("UPDATE conv_sessions SET complete = TRUE WHERE id = %s", s.p(1))
		if _, err := tx.ExecContext(ctx, update, msg.SessionID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *sqlStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]models.ConversationMessage, error) {
	query := fmt.Sprintf(
		"SELECT id, session_id, stage, role, content, agent_id, user_id, created_at FROM conv_messages WHERE session_id = %s ORDER BY created_at ASC",
		s.p(1))
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []models.ConversationMessage
	for rows.Next() {
		var m models.ConversationMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Stage, &m.Role, &m.Content, &m.AgentID, &m.UserID, &m.CreatedAt); err != nil {
			return nil, err
		}
		all = append(all, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *sqlStore) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	query := fmt.Sprintf("SELECT id, owner_user_id, agent_id, created_at FROM conv_sessions WHERE owner_user_id = %s", s.p(1))
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		var sess models.Session
		if err := rows.Scan(&sess.ID, &sess.OwnerUserID, &sess.AgentID, &sess.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *sqlStore) DeleteSession(ctx context.Context, sessionID, userID string) error {
	ownerID, err := s.GetSessionUserID(ctx, sessionID)
	if err != nil {
		return err
	}
	if ownerID != userID {
		return ErrForbidden
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM conv_messages WHERE session_id = %s", s.p(1)), sessionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM conv_sessions WHERE id = %s", s.p(1)), sessionID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqlStore) GetSessionUserID(ctx context.Context, sessionID string) (string, error) {
	query := fmt.Sprintf("SELECT owner_user_id FROM conv_sessions WHERE id = %s", s.p(1))
	var ownerID string
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return ownerID, nil
}

func (s *sqlStore) GetIncompleteSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM conv_sessions WHERE complete = FALSE")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqlStore) Close() error { return s.db.Close() }
