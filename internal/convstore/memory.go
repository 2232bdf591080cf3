package convstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgehq/sidecar/pkg/models"
)

// maxMessagesPerSession bounds per-session history kept in memory, trimming
// the oldest entries once exceeded.
const maxMessagesPerSession = 1000

// MemoryStore is the in-process ConversationStore backend — the fallback
// when neither a SQL DSN nor a Redis URL is configured.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]*models.Session
	messages   map[string][]models.ConversationMessage
	incomplete map[string]struct{}
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]*models.Session),
		messages:   make(map[string][]models.ConversationMessage),
		incomplete: make(map[string]struct{}),
	}
}

func (m *MemoryStore) CreateSession(ctx context.Context, ownerUserID, agentID string) (*models.Session, error) {
	session := &models.Session{
		ID:          uuid.NewString(),
		OwnerUserID: ownerUserID,
		AgentID:     agentID,
		CreatedAt:   time.Now(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	m.incomplete[session.ID] = struct{}{}
	return session, nil
}

func (m *MemoryStore) PersistMessage(ctx context.Context, msg *models.ConversationMessage) error {
	if msg == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	list := append(m.messages[msg.SessionID], *msg)
	if len(list) > maxMessagesPerSession {
		list = list[len(list)-maxMessagesPerSession:]
	}
	m.messages[msg.SessionID] = list

	if isComplete(msg) {
		delete(m.incomplete, msg.SessionID)
	}
	return nil
}

func (m *MemoryStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]models.ConversationMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.messages[sessionID]
	if limit <= 0 || limit >= len(all) {
		out := make([]models.ConversationMessage, len(all))
		copy(out, all)
		return out, nil
	}
	out := make([]models.ConversationMessage, limit)
	copy(out, all[len(all)-limit:])
	return out, nil
}

func (m *MemoryStore) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Session
	for _, s := range m.sessions {
		if s.OwnerUserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, sessionID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if session.OwnerUserID != userID {
		return ErrForbidden
	}
	delete(m.sessions, sessionID)
	delete(m.messages, sessionID)
	delete(m.incomplete, sessionID)
	return nil
}

func (m *MemoryStore) GetSessionUserID(ctx context.Context, sessionID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return "", ErrNotFound
	}
	return session.OwnerUserID, nil
}

func (m *MemoryStore) GetIncompleteSessions(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.incomplete))
	for id := range m.incomplete {
		out = append(out, id)
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
