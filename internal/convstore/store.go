// Package convstore implements the ConversationStore: session creation,
// message persistence/history, and the "[COMPLETE]" termination marker
// described in §4.9, across three backend shapes.
package convstore

import (
	"context"
	"errors"

	"github.com/forgehq/sidecar/pkg/models"
)

// ErrNotFound is returned when a session id has no matching row.
var ErrNotFound = errors.New("convstore: session not found")

// ErrForbidden is returned by operations that check ownership when the
// caller does not own the session.
var ErrForbidden = errors.New("convstore: caller does not own session")

// Store is the capability set every ConversationStore backend implements.
type Store interface {
	CreateSession(ctx context.Context, ownerUserID, agentID string) (*models.Session, error)
	PersistMessage(ctx context.Context, msg *models.ConversationMessage) error
	GetHistory(ctx context.Context, sessionID string, limit int) ([]models.ConversationMessage, error)
	ListSessions(ctx context.Context, userID string) ([]models.Session, error)
	DeleteSession(ctx context.Context, sessionID, userID string) error
	GetSessionUserID(ctx context.Context, sessionID string) (string, error)
	GetIncompleteSessions(ctx context.Context) ([]string, error)
	Close() error
}

// isComplete reports whether msg is the termination marker per §4.9.
func isComplete(msg *models.ConversationMessage) bool {
	return msg.Role == models.RoleSystem && msg.Content == models.CompleteMarker
}
