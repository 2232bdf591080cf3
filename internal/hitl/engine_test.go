package hitl

import (
	"context"
	"testing"
	"time"

	"github.com/forgehq/sidecar/pkg/models"
)

func TestShouldPauseDecisionTable(t *testing.T) {
	get := models.ToolSpec{MCPRouting: &models.MCPRouting{Method: "GET"}}
	del := models.ToolSpec{MCPRouting: &models.MCPRouting{Method: "DELETE"}}
	needsConfirm := models.ToolSpec{RequiresConfirmation: true}

	cases := []struct {
		level models.HitlLevel
		tool  models.ToolSpec
		want  bool
	}{
		{models.HitlAutonomous, del, false},
		{models.HitlAutonomous, needsConfirm, false},
		{models.HitlCautious, get, false},
		{models.HitlCautious, needsConfirm, true},
		{models.HitlStandard, get, false},
		{models.HitlStandard, del, true},
		{models.HitlParanoid, get, true},
	}
	for _, c := range cases {
		if got := ShouldPause(c.level, c.tool); got != c.want {
			t.Errorf("ShouldPause(%s, %+v) = %v, want %v", c.level, c.tool, got, c.want)
		}
	}
}

func TestEngineResumeIsAtMostOnce(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	engine := NewEngine(store, time.Minute)

	token, err := engine.Pause(context.Background(), models.PausedState{SessionID: "s1", ToolName: "delete_user"})
	if err != nil {
		t.Fatalf("Pause() error = %v", err)
	}

	state, err := engine.Resume(context.Background(), token)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if state.SessionID != "s1" {
		t.Fatalf("expected session s1, got %q", state.SessionID)
	}

	if _, err := engine.Resume(context.Background(), token); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on second resume, got %v", err)
	}
}

func TestEngineResumeExpiredTokenDeletesAndFails(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	engine := NewEngine(store, time.Minute)
	engine.ttl = -time.Minute // NewEngine replaces ttl <= 0 with the default; set it directly to mint an already-expired token

	token, err := engine.Pause(context.Background(), models.PausedState{SessionID: "s2"})
	if err != nil {
		t.Fatalf("Pause() error = %v", err)
	}

	if _, err := engine.Resume(context.Background(), token); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	// Delete-precedes-expiry-check: the row must be gone even though it expired.
	if _, err := engine.Resume(context.Background(), token); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on re-read of expired token, got %v", err)
	}
}

func TestEngineResumeUnknownToken(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	engine := NewEngine(store, time.Minute)

	if _, err := engine.Resume(context.Background(), "does-not-exist"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
