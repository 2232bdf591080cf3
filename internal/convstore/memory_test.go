package convstore

import (
	"context"
	"testing"

	"github.com/forgehq/sidecar/pkg/models"
)

func TestMemoryStoreCreateAndPersist(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session, err := store.CreateSession(ctx, "user-1", "agent-1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.ID == "" {
		t.Fatalf("expected a generated session id")
	}

	err = store.PersistMessage(ctx, &models.ConversationMessage{
		SessionID: session.ID, Role: models.RoleUser, Content: "hi", Stage: models.StageChat,
	})
	if err != nil {
		t.Fatalf("PersistMessage: %v", err)
	}

	history, err := store.GetHistory(ctx, session.ID, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 1 || history[0].Content != "hi" {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestMemoryStoreCompleteMarkerRemovesFromIncomplete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session, _ := store.CreateSession(ctx, "user-1", "")

	incomplete, _ := store.GetIncompleteSessions(ctx)
	if len(incomplete) != 1 || incomplete[0] != session.ID {
		t.Fatalf("expected new session to be incomplete, got %v", incomplete)
	}

	if err := store.PersistMessage(ctx, &models.ConversationMessage{
		SessionID: session.ID, Role: models.RoleSystem, Content: models.CompleteMarker,
	}); err != nil {
		t.Fatalf("PersistMessage: %v", err)
	}

	incomplete, _ = store.GetIncompleteSessions(ctx)
	if len(incomplete) != 0 {
		t.Fatalf("expected session to be removed from incomplete set, got %v", incomplete)
	}
}

func TestMemoryStoreDeleteSessionEnforcesOwnership(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session, _ := store.CreateSession(ctx, "user-1", "")

	if err := store.DeleteSession(ctx, session.ID, "user-2"); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden for cross-user delete, got %v", err)
	}
	if err := store.DeleteSession(ctx, session.ID, "user-1"); err != nil {
		t.Fatalf("DeleteSession by owner: %v", err)
	}
	if _, err := store.GetSessionUserID(ctx, session.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStoreGetHistoryRespectsLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	session, _ := store.CreateSession(ctx, "user-1", "")

	for i := 0; i < 5; i++ {
		store.PersistMessage(ctx, &models.ConversationMessage{SessionID: session.ID, Role: models.RoleUser, Content: "m"})
	}

	history, err := store.GetHistory(ctx, session.ID, 2)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages with limit=2, got %d", len(history))
	}
}
