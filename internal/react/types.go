// Package react implements the ReactLoop: the LLM turn / tool dispatch
// cycle at the core of a chat request, modeled as a channel of ReactEvent
// values rather than the source system's async generator.
package react

import (
	"context"
	"encoding/json"

	"github.com/forgehq/sidecar/pkg/models"
)

// LLMProvider is a streaming completion backend (Anthropic, OpenAI, Google).
// Implementations must be safe for concurrent use.
type LLMProvider interface {
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
	Name() string
	Models() []Model
}

// CompletionRequest carries everything a provider needs for one turn.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []CompletionMessage
	Tools     []models.ToolSpec
	MaxTokens int
}

// CompletionMessage is one turn in the provider-facing conversation shape.
// Role is "user", "assistant", or "tool".
type CompletionMessage struct {
	Role        string
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolCall is a tool-use block the LLM emitted this turn.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult is what gets threaded back into conversation history after a
// tool dispatches (or is denied/paused).
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// CompletionChunk is one piece of a streamed turn: partial text, a
// completed tool call, usage counters on Done, or a terminal error.
type CompletionChunk struct {
	Text         string
	ToolCall     *ToolCall
	Done         bool
	Error        error
	InputTokens  int
	OutputTokens int
}

// Model describes one model a provider exposes.
type Model struct {
	ID   string
	Name string
}

// EventKind is a ReactEvent variant tag.
type EventKind string

const (
	EventSession     EventKind = "session"
	EventText        EventKind = "text"
	EventTextDelta   EventKind = "text_delta"
	EventToolCall    EventKind = "tool_call"
	EventToolResult  EventKind = "tool_result"
	EventToolWarning EventKind = "tool_warning"
	EventHitl        EventKind = "hitl"
	EventError       EventKind = "error"
	EventDone        EventKind = "done"
)

// ReactEvent is the single, flat struct carrying every variant's payload
// (only the fields relevant to Kind are populated) — the same shape the
// source's ResponseChunk used for its channel of streamed results.
type ReactEvent struct {
	Kind EventKind

	// text / text_delta
	Text string

	// tool_call / tool_result / tool_warning
	ToolCall   *ToolCall
	ToolResult *ToolResult
	Outcome    models.VerifierOutcome
	Message    string

	// hitl
	ResumeToken  string
	PausedState  *models.PausedState
	PendingTools []ToolCall

	// error
	Err error

	// done
	InputTokens  int
	OutputTokens int
	Exhausted    bool
}
