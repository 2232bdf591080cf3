package chat

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/forgehq/sidecar/internal/react"
	"github.com/forgehq/sidecar/pkg/models"
)

// Sink is where driveLoop forwards every ReactEvent it sees. SSESink
// streams each event to an open HTTP response; BufferSink accumulates
// them into one JSON response body. Per §9, both handlers share the same
// driveLoop — only the Sink differs.
type Sink interface {
	SendSession(sessionID, agentID string) error
	SendText(text string, delta bool) error
	SendToolCall(tc *react.ToolCall) error
	SendToolResult(tr *react.ToolResult) error
	SendToolWarning(tc *react.ToolCall, outcome models.VerifierOutcome, message string) error
	SendHitl(resumeToken string, tc *react.ToolCall) error
	SendError(err error) error
	SendDone(inputTokens, outputTokens int, exhausted bool) error
}

// writeSSE writes one SSE frame in the wire shape "event: <kind>\n
// data: <json>\n\n", per §6's framing.
func writeSSE(w *bufio.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}

// SSESink streams ReactEvents as Server-Sent Events. Build one per request
// after writing the SSE response headers.
type SSESink struct {
	w       *bufio.Writer
	flusher http.Flusher
}

// NewSSESink wraps w. w must support http.Flusher (true for any
// net/http.ResponseWriter serving a non-hijacked connection).
func NewSSESink(w http.ResponseWriter) *SSESink {
	flusher, _ := w.(http.Flusher)
	return &SSESink{w: bufio.NewWriter(w), flusher: flusher}
}

func (s *SSESink) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

func (s *SSESink) SendSession(sessionID, agentID string) error {
	defer s.flush()
	return writeSSE(s.w, "session", map[string]string{"sessionId": sessionID, "agentId": agentID})
}

func (s *SSESink) SendText(text string, delta bool) error {
	defer s.flush()
	kind := "text"
	if delta {
		kind = "text_delta"
	}
	return writeSSE(s.w, kind, map[string]string{"text": text})
}

func (s *SSESink) SendToolCall(tc *react.ToolCall) error {
	defer s.flush()
	return writeSSE(s.w, "tool_call", map[string]any{"id": tc.ID, "name": tc.Name, "input": tc.Input})
}

func (s *SSESink) SendToolResult(tr *react.ToolResult) error {
	defer s.flush()
	return writeSSE(s.w, "tool_result", map[string]any{"toolCallId": tr.ToolCallID, "content": tr.Content, "isError": tr.IsError})
}

func (s *SSESink) SendToolWarning(tc *react.ToolCall, outcome models.VerifierOutcome, message string) error {
	defer s.flush()
	name := ""
	if tc != nil {
		name = tc.Name
	}
	return writeSSE(s.w, "tool_warning", map[string]any{"tool": name, "outcome": outcome, "message": message})
}

func (s *SSESink) SendHitl(resumeToken string, tc *react.ToolCall) error {
	defer s.flush()
	name := ""
	if tc != nil {
		name = tc.Name
	}
	return writeSSE(s.w, "hitl", map[string]any{"resumeToken": resumeToken, "tool": name})
}

func (s *SSESink) SendError(err error) error {
	defer s.flush()
	return writeSSE(s.w, "error", map[string]string{"error": err.Error()})
}

func (s *SSESink) SendDone(inputTokens, outputTokens int, exhausted bool) error {
	defer s.flush()
	return writeSSE(s.w, "done", map[string]any{
		"inputTokens": inputTokens, "outputTokens": outputTokens, "exhausted": exhausted,
	})
}

// toolCallSummary is one entry of a BufferSink's ToolCalls slice.
type toolCallSummary struct {
	Name    string `json:"name"`
	Input   string `json:"input,omitempty"`
	Result  string `json:"result,omitempty"`
	IsError bool   `json:"isError,omitempty"`
}

// warningSummary is one entry of a BufferSink's Warnings slice.
type warningSummary struct {
	Tool    string                 `json:"tool"`
	Outcome models.VerifierOutcome `json:"outcome"`
	Message string                 `json:"message,omitempty"`
}

// BufferSink accumulates one turn into the chat-sync response shape
// instead of streaming it. SendText appends text_delta chunks to Message
// and replaces Message with each full text event; the running
// tool-call/warning slices are exposed after the loop ends.
type BufferSink struct {
	Message     string
	ToolCalls   []toolCallSummary
	Warnings    []warningSummary
	Flags       []string
	ResumeToken string
	pendingName string
	pendingArgs string
}

func NewBufferSink() *BufferSink { return &BufferSink{} }

func (b *BufferSink) SendSession(string, string) error { return nil }

func (b *BufferSink) SendText(text string, delta bool) error {
	if delta {
		b.Message += text
	} else {
		b.Message = text
	}
	return nil
}

func (b *BufferSink) SendToolCall(tc *react.ToolCall) error {
	b.pendingName = tc.Name
	b.pendingArgs = string(tc.Input)
	return nil
}

func (b *BufferSink) SendToolResult(tr *react.ToolResult) error {
	b.ToolCalls = append(b.ToolCalls, toolCallSummary{
		Name: b.pendingName, Input: b.pendingArgs, Result: tr.Content, IsError: tr.IsError,
	})
	b.pendingName, b.pendingArgs = "", ""
	return nil
}

func (b *BufferSink) SendToolWarning(tc *react.ToolCall, outcome models.VerifierOutcome, message string) error {
	name := ""
	if tc != nil {
		name = tc.Name
	}
	b.Warnings = append(b.Warnings, warningSummary{Tool: name, Outcome: outcome, Message: message})
	if outcome == models.OutcomeBlock {
		b.Flags = append(b.Flags, name)
	}
	return nil
}

func (b *BufferSink) SendHitl(resumeToken string, tc *react.ToolCall) error {
	b.ResumeToken = resumeToken
	return nil
}

func (b *BufferSink) SendError(error) error { return nil }

func (b *BufferSink) SendDone(int, int, bool) error { return nil }
