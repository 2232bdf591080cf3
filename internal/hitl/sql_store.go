package hitl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// sqlStore is a Store backed by a database/sql pool, shared between the
// Postgres and SQLite variants — they differ only in driver name and
// placeholder syntax. Table creation is lazy, on first use.
type sqlStore struct {
	db          *sql.DB
	placeholder func(n int) string

	initOnce sync.Once
	initErr  error

	stop    chan struct{}
	stopped sync.Once
}

func newSQLStore(db *sql.DB, placeholder func(int) string) *sqlStore {
	s := &sqlStore{db: db, placeholder: placeholder, stop: make(chan struct{})}
	go s.sweepLoop()
	return s
}

// NewPostgresStore opens a hitl Store against a Postgres/CockroachDB DSN.
func NewPostgresStore(dsn string) (*sqlStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("hitl: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("hitl: ping postgres: %w", err)
	}
	return newSQLStore(db, func(n int) string { return fmt.Sprintf("$%d", n) }), nil
}

// NewSQLiteStore opens a hitl Store against a SQLite file path.
func NewSQLiteStore(path string) (*sqlStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("hitl: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("hitl: ping sqlite: %w", err)
	}
	return newSQLStore(db, func(int) string { return "?" }), nil
}

func (s *sqlStore) ensureTable(ctx context.Context) error {
	s.initOnce.Do(func() {
		_, s.initErr = s.db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS hitl_paused_state (
				resume_token TEXT PRIMARY KEY,
				state BYTEA,
				expires_at TIMESTAMP NOT NULL,
				created_at TIMESTAMP NOT NULL
			)
		`)
	})
	return s.initErr
}

func (s *sqlStore) Save(ctx context.Context, token string, data []byte, expiresAt time.Time) error {
	if err := s.ensureTable(ctx); err != nil {
		return err
	}
	query := fmt.Sprintf(
		`INSERT INTO hitl_paused_state (resume_token, state, expires_at, created_at) VALUES (%s, %s, %s, %s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4),
	)
	_, err := s.db.ExecContext(ctx, query, token, data, expiresAt, time.Now())
	return err
}

func (s *sqlStore) Take(ctx context.Context, token string) ([]byte, time.Time, bool, error) {
	if err := s.ensureTable(ctx); err != nil {
		return nil, time.Time{}, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, time.Time{}, false, err
	}
	defer tx.Rollback()

	selectQuery := fmt.Sprintf(
		`SELECT state, expires_at FROM hitl_paused_state WHERE resume_token = %s`,
		s.placeholder(1),
	)
	var data []byte
	var expiresAt time.Time
	err = tx.QueryRowContext(ctx, selectQuery, token).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}

	deleteQuery := fmt.Sprintf(`DELETE FROM hitl_paused_state WHERE resume_token = %s`, s.placeholder(1))
	if _, err := tx.ExecContext(ctx, deleteQuery, token); err != nil {
		return nil, time.Time{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, time.Time{}, false, err
	}
	return data, expiresAt, true, nil
}

func (s *sqlStore) Close() error {
	s.stopped.Do(func() { close(s.stop) })
	return s.db.Close()
}

// sweepLoop deletes expired rows every 5 minutes, per spec §4.3. A failed
// sweep's error is dropped without logging: cleanup failure is non-fatal.
func (s *sqlStore) sweepLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			query := fmt.Sprintf(`DELETE FROM hitl_paused_state WHERE expires_at < %s`, s.placeholder(1))
			s.db.Exec(query, time.Now())
		}
	}
}
