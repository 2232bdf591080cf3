// Package audit persists the one best-effort ChatAuditRow written per
// terminated chat/chat-sync/resume request (§5: "audit ... non-fatal").
package audit

import (
	"context"
	"sync"

	"github.com/forgehq/sidecar/pkg/models"
)

// Store records ChatAuditRow entries. Record failures must never alter the
// response that triggered them — callers log and swallow the error.
type Store interface {
	Record(ctx context.Context, row models.ChatAuditRow) error
}

// MemoryStore is an in-process Store, useful for tests and single-node
// deployments without a database configured.
type MemoryStore struct {
	mu   sync.Mutex
	rows []models.ChatAuditRow
	next int64
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Record(_ context.Context, row models.ChatAuditRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	row.ID = s.next
	s.rows = append(s.rows, row)
	return nil
}

// Rows returns a copy of every recorded row, oldest first. Exposed for
// tests; not part of the Store interface.
func (s *MemoryStore) Rows() []models.ChatAuditRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatAuditRow, len(s.rows))
	copy(out, s.rows)
	return out
}
