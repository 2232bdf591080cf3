package admin

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	"github.com/forgehq/sidecar/pkg/models"
)

// ErrUnknownSection is returned by ConfigStore.Section for an
// unrecognized section name.
var ErrUnknownSection = errors.New("admin: unknown config section")

// RuntimeDefaults is the sidecar-wide configuration the admin plane can
// read and rewrite at runtime, grouped into the four sections spec §6.1
// names: model, hitl, permissions, conversation. The chat handler does not
// read these values: chat requests use the Base* fields cmd/sidecar sets on
// chat.Handler at startup, so a change made here is stored and returned by
// /forge-admin/config but does not alter chat behavior.
type RuntimeDefaults struct {
	Model        ModelSection        `json:"model"`
	Hitl         HitlSection         `json:"hitl"`
	Permissions  PermissionsSection  `json:"permissions"`
	Conversation ConversationSection `json:"conversation"`
}

// ModelSection is the sidecar-wide default model/provider.
type ModelSection struct {
	DefaultModel string `json:"default_model"`
}

// HitlSection is the sidecar-wide default HITL level.
type HitlSection struct {
	DefaultLevel models.HitlLevel `json:"default_level"`
}

// PermissionsSection holds the stored per-request turn/token caps.
type PermissionsSection struct {
	MaxTurns  int `json:"max_turns"`
	MaxTokens int `json:"max_tokens"`
}

// ConversationSection holds the stored history window length.
type ConversationSection struct {
	Window int `json:"window"`
}

// DefaultRuntimeDefaults mirrors react.DefaultMaxTurns/the sidecar's
// built-in fallbacks, used when no config file exists yet.
func DefaultRuntimeDefaults() RuntimeDefaults {
	return RuntimeDefaults{
		Model:        ModelSection{DefaultModel: "claude-sonnet-4-20250514"},
		Hitl:         HitlSection{DefaultLevel: models.HitlCautious},
		Permissions:  PermissionsSection{MaxTurns: 10, MaxTokens: 4096},
		Conversation: ConversationSection{Window: 25},
	}
}

// ConfigStore persists RuntimeDefaults to a JSON file, rewritten
// atomically (write to a ".tmp" sibling, then rename) per spec §5's
// "Shared resources" note on config mutation.
type ConfigStore struct {
	path string
	mu   sync.RWMutex
	data RuntimeDefaults
}

// NewConfigStore loads path if it exists, or seeds it with
// DefaultRuntimeDefaults otherwise. path == "" keeps everything in
// memory only (useful for tests).
func NewConfigStore(path string) (*ConfigStore, error) {
	s := &ConfigStore{path: path, data: DefaultRuntimeDefaults()}
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, s.save()
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns a copy of the full RuntimeDefaults.
func (s *ConfigStore) Get() RuntimeDefaults {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// Replace overwrites the full RuntimeDefaults and persists it.
func (s *ConfigStore) Replace(data RuntimeDefaults) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	return s.save()
}

// Section returns the named section as a JSON-marshalable value.
func (s *ConfigStore) Section(name string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch name {
	case "model":
		return s.data.Model, nil
	case "hitl":
		return s.data.Hitl, nil
	case "permissions":
		return s.data.Permissions, nil
	case "conversation":
		return s.data.Conversation, nil
	default:
		return nil, ErrUnknownSection
	}
}

// ReplaceSection decodes raw into the named section and persists it.
func (s *ConfigStore) ReplaceSection(name string, raw json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch name {
	case "model":
		var v ModelSection
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		s.data.Model = v
	case "hitl":
		var v HitlSection
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		s.data.Hitl = v
	case "permissions":
		var v PermissionsSection
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		s.data.Permissions = v
	case "conversation":
		var v ConversationSection
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		s.data.Conversation = v
	default:
		return ErrUnknownSection
	}
	return s.save()
}

// save writes s.data to s.path atomically via a ".tmp" sibling + rename.
// A blank path keeps the store in-memory only (tests, or no-config
// deployments).
func (s *ConfigStore) save() error {
	if s.path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
