package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/forgehq/sidecar/pkg/models"
)

func TestMemoryAgentStoreDefaultAutoPromotes(t *testing.T) {
	store := NewMemoryAgentStore()
	ctx := context.Background()

	a1 := &models.Agent{ID: uuid.NewString(), DisplayName: "A", Enabled: true, IsDefault: true}
	a2 := &models.Agent{ID: uuid.NewString(), DisplayName: "B", Enabled: true}
	if err := store.Create(ctx, a1); err != nil {
		t.Fatalf("Create a1: %v", err)
	}
	if err := store.Create(ctx, a2); err != nil {
		t.Fatalf("Create a2: %v", err)
	}

	def, err := store.Default(ctx)
	if err != nil || def.ID != a1.ID {
		t.Fatalf("expected a1 as default, got %+v err=%v", def, err)
	}

	if err := store.SetDefault(ctx, a2.ID); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}
	def, _ = store.Default(ctx)
	if def.ID != a2.ID {
		t.Fatalf("expected a2 as default after SetDefault, got %+v", def)
	}

	if err := store.Delete(ctx, a2.ID); err != nil {
		t.Fatalf("Delete a2: %v", err)
	}
	def, err = store.Default(ctx)
	if err != nil || def.ID != a1.ID {
		t.Fatalf("expected a1 auto-promoted after deleting default, got %+v err=%v", def, err)
	}
}

func TestMemoryPromptStoreActivateIsExclusive(t *testing.T) {
	store := NewMemoryPromptStore()
	ctx := context.Background()

	p1 := &models.PromptVersion{Version: "v1", Content: "one"}
	p2 := &models.PromptVersion{Version: "v2", Content: "two"}
	store.Create(ctx, p1)
	store.Create(ctx, p2)

	if err := store.Activate(ctx, p1.ID); err != nil {
		t.Fatalf("Activate p1: %v", err)
	}
	if err := store.Activate(ctx, p2.ID); err != nil {
		t.Fatalf("Activate p2: %v", err)
	}

	active, err := store.Active(ctx)
	if err != nil || active.ID != p2.ID {
		t.Fatalf("expected p2 active, got %+v err=%v", active, err)
	}

	got1, _ := store.Get(ctx, p1.ID)
	if got1.IsActive {
		t.Fatalf("expected p1 deactivated once p2 activated")
	}
}

func TestMemoryPreferencesStoreUpsert(t *testing.T) {
	store := NewMemoryPreferencesStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "user-1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound before upsert, got %v", err)
	}

	store.Upsert(ctx, &models.UserPreferences{UserID: "user-1", Model: "gpt-4o"})
	got, err := store.Get(ctx, "user-1")
	if err != nil || got.Model != "gpt-4o" {
		t.Fatalf("unexpected preferences: %+v err=%v", got, err)
	}
}

func TestMemoryToolStorePromotedFiltersLifecycle(t *testing.T) {
	store := NewMemoryToolStore()
	ctx := context.Background()

	store.Upsert(ctx, &models.ToolSpec{Name: "search", Lifecycle: models.ToolPromoted})
	store.Upsert(ctx, &models.ToolSpec{Name: "experimental", Lifecycle: models.ToolCandidate})

	promoted, err := store.Promoted(ctx)
	if err != nil {
		t.Fatalf("Promoted: %v", err)
	}
	if len(promoted) != 1 || promoted[0].Name != "search" {
		t.Fatalf("expected only promoted tools, got %+v", promoted)
	}
}
