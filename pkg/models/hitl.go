package models

import (
	"encoding/json"
	"time"
)

// PausedToolCall is a tool-use block captured at the moment a turn paused.
type PausedToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// PausedState is the JSON-serialized payload stored under a resume token.
// It carries everything ReactLoop needs to pick a turn back up.
type PausedState struct {
	SessionID    string                `json:"session_id"`
	AgentID      string                `json:"agent_id,omitempty"`
	PendingTools []PausedToolCall      `json:"pending_tools"`
	Messages     []ConversationMessage `json:"messages"`
	TurnIndex    int                   `json:"turn_index"`
	ToolName     string                `json:"tool_name"`
	ToolArgs     json.RawMessage       `json:"tool_args,omitempty"`
	Message      string                `json:"message,omitempty"`
}

// PausedHitlState is the storage row wrapping a PausedState. Consumed
// exactly once (delete-on-read); auto-purged once ExpiresAt has passed.
type PausedHitlState struct {
	ResumeToken string    `json:"resume_token"`
	State       []byte    `json:"-"` // JSON-encoded PausedState
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// DefaultHitlTTL is the default resume-token lifetime.
const DefaultHitlTTL = 5 * time.Minute
