// Package models provides the domain types shared across the sidecar's
// storage, agent, and HTTP layers.
package models

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Stage identifies which part of the system produced a message. Chat is the
// only stage implemented today; the column exists so non-chat surfaces
// (e.g. a future batch pipeline) can share the same table without a migration.
type Stage string

const (
	StageChat Stage = "chat"
)

// CompleteMarker is the sentinel content that, combined with RoleSystem,
// marks a session as terminated. Every ConversationStore implementation
// must treat it as removing the session from the "incomplete" set.
const CompleteMarker = "[COMPLETE]"

// Session is a conversation thread. Ownership is sticky: OwnerUserID is set
// from the first message and never changes.
type Session struct {
	ID          string    `json:"id"`
	OwnerUserID string    `json:"owner_user_id"`
	AgentID     string    `json:"agent_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ConversationMessage is one immutable turn boundary in a session.
type ConversationMessage struct {
	ID        string    `json:"id,omitempty"`
	SessionID string    `json:"session_id"`
	Stage     Stage     `json:"stage"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	AgentID   string    `json:"agent_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatRequest is the inbound request body for the chat endpoints. It is
// never persisted — it is consumed entirely within one HTTP request.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
	AgentID   string `json:"agentId,omitempty"`
}

// ResumeRequest is the body for POST /agent-api/chat/resume.
type ResumeRequest struct {
	ResumeToken string `json:"resumeToken"`
	Confirmed   bool   `json:"confirmed"`
}
