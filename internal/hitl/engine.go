// Package hitl implements the human-in-the-loop pause/resume engine: it
// decides whether a tool call must pause the ReactLoop, persists paused
// turn state under a resume token, and redeems that token at most once.
package hitl

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/forgehq/sidecar/pkg/models"
)

// ErrExpired is returned by Resume when the token's row existed but had
// already passed its expires_at — the caller should treat this the same as
// ErrNotFound (404), not as a distinct condition.
var ErrExpired = errors.New("hitl: resume token expired")

// ErrNotFound is returned by Resume when no row exists for the token, or it
// had already been consumed by a prior call.
var ErrNotFound = errors.New("hitl: resume token not found")

// Store is the storage contract a HitlEngine delegates to. Implementations
// (memory, SQLite, Postgres, Redis) must honor delete-before-expiry-check
// semantics in Take so at-most-once holds even for expired tokens.
type Store interface {
	// Save stores data under token with the given absolute expiry.
	Save(ctx context.Context, token string, data []byte, expiresAt time.Time) error
	// Take deletes and returns the row for token, reporting whether it
	// existed and whether it had already expired. A row that existed but
	// expired is still deleted (at-most-once holds even past TTL).
	Take(ctx context.Context, token string) (data []byte, expiresAt time.Time, found bool, err error)
	// Close releases any resources (background sweep goroutines, conns).
	Close() error
}

// Engine decides when a tool call must pause and manages the resulting
// resume tokens.
type Engine struct {
	store Store
	ttl   time.Duration
}

// NewEngine builds a HitlEngine backed by store. ttl <= 0 uses
// models.DefaultHitlTTL.
func NewEngine(store Store, ttl time.Duration) *Engine {
	if ttl <= 0 {
		ttl = models.DefaultHitlTTL
	}
	return &Engine{store: store, ttl: ttl}
}

// Close releases the underlying store's resources.
func (e *Engine) Close() error {
	if e == nil || e.store == nil {
		return nil
	}
	return e.store.Close()
}

// ShouldPause implements the decision table from §4.3: autonomous never
// pauses, cautious pauses on requiresConfirmation, standard pauses on any
// non-GET method, paranoid always pauses.
func ShouldPause(level models.HitlLevel, tool models.ToolSpec) bool {
	switch level {
	case models.HitlAutonomous:
		return false
	case models.HitlCautious:
		return tool.RequiresConfirmation
	case models.HitlParanoid:
		return true
	case models.HitlStandard:
		switch tool.Method() {
		case "POST", "PUT", "PATCH", "DELETE":
			return true
		default:
			return false
		}
	default:
		return false
	}
}

// Pause serialises state as JSON, mints a UUID v4 resume token, and stores
// the pair with expires_at = now + ttl.
func (e *Engine) Pause(ctx context.Context, state models.PausedState) (string, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	token := uuid.NewString()
	expiresAt := time.Now().Add(e.ttl)
	if err := e.store.Save(ctx, token, payload, expiresAt); err != nil {
		return "", err
	}
	return token, nil
}

// Resume redeems token exactly once. The row is always deleted first; only
// then is its expiry checked, so a caller racing the TTL still observes
// at-most-once delivery even when the token has expired.
func (e *Engine) Resume(ctx context.Context, token string) (*models.PausedState, error) {
	data, expiresAt, found, err := e.store.Take(ctx, token)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	if time.Now().After(expiresAt) {
		return nil, ErrExpired
	}
	var state models.PausedState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}
