package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/forgehq/sidecar/pkg/models"
)

// MemoryAgentStore provides an in-memory AgentStore.
type MemoryAgentStore struct {
	mu     sync.RWMutex
	agents map[string]*models.Agent
}

// NewMemoryAgentStore creates an in-memory agent store.
func NewMemoryAgentStore() *MemoryAgentStore {
	return &MemoryAgentStore{agents: make(map[string]*models.Agent)}
}

func (s *MemoryAgentStore) Create(ctx context.Context, agent *models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[agent.ID]; exists {
		return ErrAlreadyExists
	}
	now := time.Now()
	agent.CreatedAt, agent.UpdatedAt = now, now
	if agent.IsDefault {
		s.clearDefaultLocked()
	}
	clone := *agent
	s.agents[clone.ID] = &clone
	return nil
}

func (s *MemoryAgentStore) Get(ctx context.Context, id string) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (s *MemoryAgentStore) List(ctx context.Context) ([]*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		clone := *a
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryAgentStore) Update(ctx context.Context, agent *models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[agent.ID]; !exists {
		return ErrNotFound
	}
	agent.UpdatedAt = time.Now()
	if agent.IsDefault {
		s.clearDefaultLocked()
	}
	clone := *agent
	s.agents[clone.ID] = &clone
	return nil
}

func (s *MemoryAgentStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted, ok := s.agents[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.agents, id)
	if deleted.IsDefault {
		s.promoteFirstEnabledLocked()
	}
	return nil
}

func (s *MemoryAgentStore) SetDefault(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.agents[id]
	if !ok {
		return ErrNotFound
	}
	s.clearDefaultLocked()
	target.IsDefault = true
	return nil
}

func (s *MemoryAgentStore) Default(ctx context.Context) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.agents {
		if a.IsDefault && a.Enabled {
			clone := *a
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryAgentStore) clearDefaultLocked() {
	for _, a := range s.agents {
		a.IsDefault = false
	}
}

// promoteFirstEnabledLocked auto-promotes the first remaining enabled agent
// once the current default is deleted. Map iteration order is unspecified;
// the SQL backend orders by id for a deterministic pick.
func (s *MemoryAgentStore) promoteFirstEnabledLocked() {
	for _, a := range s.agents {
		if a.Enabled {
			a.IsDefault = true
			return
		}
	}
}

// MemoryPromptStore provides an in-memory PromptStore.
type MemoryPromptStore struct {
	mu      sync.RWMutex
	prompts map[int64]*models.PromptVersion
	nextID  int64
}

// NewMemoryPromptStore creates an in-memory prompt store.
func NewMemoryPromptStore() *MemoryPromptStore {
	return &MemoryPromptStore{prompts: make(map[int64]*models.PromptVersion)}
}

func (s *MemoryPromptStore) Create(ctx context.Context, prompt *models.PromptVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	prompt.ID = s.nextID
	prompt.CreatedAt = time.Now()
	clone := *prompt
	s.prompts[clone.ID] = &clone
	return nil
}

func (s *MemoryPromptStore) Get(ctx context.Context, id int64) (*models.PromptVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prompts[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (s *MemoryPromptStore) Update(ctx context.Context, prompt *models.PromptVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.prompts[prompt.ID]
	if !ok {
		return ErrNotFound
	}
	clone := *prompt
	clone.IsActive = existing.IsActive
	clone.ActivatedAt = existing.ActivatedAt
	clone.CreatedAt = existing.CreatedAt
	s.prompts[clone.ID] = &clone
	return nil
}

func (s *MemoryPromptStore) List(ctx context.Context) ([]*models.PromptVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.PromptVersion, 0, len(s.prompts))
	for _, p := range s.prompts {
		clone := *p
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryPromptStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prompts[id]; !ok {
		return ErrNotFound
	}
	delete(s.prompts, id)
	return nil
}

// Activate runs the deactivate-all-then-activate-target transaction under
// a single mutex rather than a DB transaction.
func (s *MemoryPromptStore) Activate(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.prompts[id]
	if !ok {
		return ErrNotFound
	}
	for _, p := range s.prompts {
		p.IsActive = false
	}
	target.IsActive = true
	target.ActivatedAt = time.Now()
	return nil
}

func (s *MemoryPromptStore) Active(ctx context.Context) (*models.PromptVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.prompts {
		if p.IsActive {
			clone := *p
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

// MemoryPreferencesStore provides an in-memory PreferencesStore.
type MemoryPreferencesStore struct {
	mu    sync.RWMutex
	prefs map[string]*models.UserPreferences
}

// NewMemoryPreferencesStore creates an in-memory preferences store.
func NewMemoryPreferencesStore() *MemoryPreferencesStore {
	return &MemoryPreferencesStore{prefs: make(map[string]*models.UserPreferences)}
}

func (s *MemoryPreferencesStore) Get(ctx context.Context, userID string) (*models.UserPreferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (s *MemoryPreferencesStore) Upsert(ctx context.Context, prefs *models.UserPreferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefs.UpdatedAt = time.Now()
	clone := *prefs
	s.prefs[clone.UserID] = &clone
	return nil
}

// MemoryToolStore provides an in-memory ToolStore.
type MemoryToolStore struct {
	mu    sync.RWMutex
	tools map[string]*models.ToolSpec
}

// NewMemoryToolStore creates an in-memory tool store.
func NewMemoryToolStore() *MemoryToolStore {
	return &MemoryToolStore{tools: make(map[string]*models.ToolSpec)}
}

func (s *MemoryToolStore) Upsert(ctx context.Context, tool *models.ToolSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *tool
	s.tools[clone.Name] = &clone
	return nil
}

func (s *MemoryToolStore) Get(ctx context.Context, name string) (*models.ToolSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tools[name]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *t
	return &clone, nil
}

func (s *MemoryToolStore) List(ctx context.Context) ([]*models.ToolSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ToolSpec, 0, len(s.tools))
	for _, t := range s.tools {
		clone := *t
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryToolStore) Promoted(ctx context.Context) ([]*models.ToolSpec, error) {
	all, _ := s.List(ctx)
	out := make([]*models.ToolSpec, 0, len(all))
	for _, t := range all {
		if t.Lifecycle == models.ToolPromoted {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryToolStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tools[name]; !ok {
		return ErrNotFound
	}
	delete(s.tools, name)
	return nil
}

// NewMemoryStores constructs a StoreSet backed by memory.
func NewMemoryStores() StoreSet {
	return StoreSet{
		Agents:      NewMemoryAgentStore(),
		Prompts:     NewMemoryPromptStore(),
		Preferences: NewMemoryPreferencesStore(),
		Tools:       NewMemoryToolStore(),
	}
}
