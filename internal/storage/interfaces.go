package storage

import (
	"context"
	"errors"

	"github.com/forgehq/sidecar/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// AgentStore persists agent configurations, enforcing that at most one
// enabled agent carries is_default at a time.
type AgentStore interface {
	Create(ctx context.Context, agent *models.Agent) error
	Get(ctx context.Context, id string) (*models.Agent, error)
	List(ctx context.Context) ([]*models.Agent, error)
	Update(ctx context.Context, agent *models.Agent) error
	Delete(ctx context.Context, id string) error
	// SetDefault makes id the sole is_default agent.
	SetDefault(ctx context.Context, id string) error
	// Default returns the current enabled default agent, or ErrNotFound.
	Default(ctx context.Context) (*models.Agent, error)
}

// PromptStore persists versioned system prompts with atomic activation.
type PromptStore interface {
	Create(ctx context.Context, prompt *models.PromptVersion) error
	Get(ctx context.Context, id int64) (*models.PromptVersion, error)
	List(ctx context.Context) ([]*models.PromptVersion, error)
	// Update rewrites an existing version's content/notes in place,
	// leaving its id/is_active/activated_at untouched.
	Update(ctx context.Context, prompt *models.PromptVersion) error
	Delete(ctx context.Context, id int64) error
	// Activate deactivates every other version and activates id, in one
	// transaction (deactivate-all, then activate-target).
	Activate(ctx context.Context, id int64) error
	// Active returns the currently active prompt version, or ErrNotFound.
	Active(ctx context.Context) (*models.PromptVersion, error)
}

// PreferencesStore persists per-user chat preferences.
type PreferencesStore interface {
	Get(ctx context.Context, userID string) (*models.UserPreferences, error)
	Upsert(ctx context.Context, prefs *models.UserPreferences) error
}

// ToolStore persists the ToolSpec registry. Promoted returns only
// lifecycle=promoted specs, the set visible to the ReactLoop.
type ToolStore interface {
	Upsert(ctx context.Context, tool *models.ToolSpec) error
	Get(ctx context.Context, name string) (*models.ToolSpec, error)
	List(ctx context.Context) ([]*models.ToolSpec, error)
	Promoted(ctx context.Context) ([]*models.ToolSpec, error)
	Delete(ctx context.Context, name string) error
}

// StoreSet groups the admin-plane storage dependencies.
type StoreSet struct {
	Agents      AgentStore
	Prompts     PromptStore
	Preferences PreferencesStore
	Tools       ToolStore
	closer      func() error
}

// Close closes any underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
