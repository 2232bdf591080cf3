package react

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/forgehq/sidecar/internal/hitl"
	"github.com/forgehq/sidecar/internal/verify"
	"github.com/forgehq/sidecar/pkg/models"
)

// scriptedProvider replays one CompletionChunk slice per call to Complete,
// advancing through turns in order.
type scriptedProvider struct {
	turns [][]*CompletionChunk
	call  int
}

func (p *scriptedProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	idx := p.call
	p.call++
	ch := make(chan *CompletionChunk, len(p.turns[idx]))
	for _, c := range p.turns[idx] {
		ch <- c
	}
	close(ch)
	return ch, nil
}
func (p *scriptedProvider) Name() string    { return "scripted" }
func (p *scriptedProvider) Models() []Model { return nil }

func drain(t *testing.T, events <-chan *ReactEvent) []*ReactEvent {
	t.Helper()
	var out []*ReactEvent
	for e := range events {
		out = append(out, e)
	}
	return out
}

func TestLoopCompletesWithoutToolCalls(t *testing.T) {
	provider := &scriptedProvider{turns: [][]*CompletionChunk{
		{{Text: "hello"}, {Done: true, InputTokens: 5, OutputTokens: 2}},
	}}
	loop := NewLoop(provider, NewDispatcher("", nil), nil, nil, nil)

	events, err := loop.Run(context.Background(), Config{}, "s1", 0, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := drain(t, events)

	if got[len(got)-1].Kind != EventDone {
		t.Fatalf("expected loop to end with done, got %s", got[len(got)-1].Kind)
	}
	if got[len(got)-1].InputTokens != 5 || got[len(got)-1].OutputTokens != 2 {
		t.Fatalf("usage counters not propagated: %+v", got[len(got)-1])
	}
}

func TestLoopDispatchesToolAndContinues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tools := []models.ToolSpec{{
		Name:       "lookup",
		Lifecycle:  models.ToolPromoted,
		MCPRouting: &models.MCPRouting{Endpoint: "/lookup", Method: "GET"},
	}}

	provider := &scriptedProvider{turns: [][]*CompletionChunk{
		{{ToolCall: &ToolCall{ID: "t1", Name: "lookup", Input: json.RawMessage(`{}`)}}, {Done: true}},
		{{Text: "done"}, {Done: true}},
	}}

	loop := NewLoop(provider, NewDispatcher(srv.URL, srv.Client()), nil, nil, tools)
	events, err := loop.Run(context.Background(), Config{HitlLevel: models.HitlAutonomous}, "s1", 0, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := drain(t, events)

	var sawToolCall, sawToolResult, sawDone bool
	for _, e := range got {
		switch e.Kind {
		case EventToolCall:
			sawToolCall = true
		case EventToolResult:
			sawToolResult = true
			if e.ToolResult.IsError {
				t.Fatalf("expected successful tool result, got %+v", e.ToolResult)
			}
		case EventDone:
			sawDone = true
		}
	}
	if !sawToolCall || !sawToolResult || !sawDone {
		t.Fatalf("missing expected events: %+v", got)
	}
}

func TestLoopPausesForHitl(t *testing.T) {
	tools := []models.ToolSpec{{
		Name:       "delete_user",
		Lifecycle:  models.ToolPromoted,
		MCPRouting: &models.MCPRouting{Endpoint: "/delete", Method: "DELETE"},
	}}
	provider := &scriptedProvider{turns: [][]*CompletionChunk{
		{{ToolCall: &ToolCall{ID: "t1", Name: "delete_user", Input: json.RawMessage(`{"id":42}`)}}, {Done: true}},
	}}

	engine := hitl.NewEngine(hitl.NewMemoryStore(), 0)
	defer engine.Close()

	loop := NewLoop(provider, NewDispatcher("", nil), engine, nil, tools)
	events, err := loop.Run(context.Background(), Config{HitlLevel: models.HitlStandard}, "s1", 0, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := drain(t, events)

	if len(got) != 1 || got[0].Kind != EventHitl {
		t.Fatalf("expected a single hitl event and generator termination, got %+v", got)
	}
	if got[0].ResumeToken == "" {
		t.Fatalf("expected a resume token on the hitl event")
	}
}

func TestLoopHaltsOnVerifierBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	tools := []models.ToolSpec{{
		Name:       "risky",
		Lifecycle:  models.ToolPromoted,
		MCPRouting: &models.MCPRouting{Endpoint: "/risky", Method: "GET"},
	}}
	provider := &scriptedProvider{turns: [][]*CompletionChunk{
		{{ToolCall: &ToolCall{ID: "t1", Name: "risky", Input: json.RawMessage(`{}`)}}, {Done: true}},
	}}

	reg := verify.NewRegistry([]verify.Spec{
		{Name: "always-block", ToolName: "risky", Order: "A-0001", Kind: verify.KindSchema, SchemaFields: map[string]verify.SchemaField{
			"must_have": {Required: true, Type: "string"},
		}},
	})
	runner := verify.NewRunner(reg, nil, nil)

	loop := NewLoop(provider, NewDispatcher(srv.URL, srv.Client()), nil, runner, tools)
	events, err := loop.Run(context.Background(), Config{HitlLevel: models.HitlAutonomous}, "s1", 0, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := drain(t, events)

	var sawWarning bool
	for _, e := range got {
		if e.Kind == EventToolWarning {
			sawWarning = true
			if e.Outcome != models.OutcomeBlock {
				t.Fatalf("expected block outcome, got %s", e.Outcome)
			}
		}
	}
	if !sawWarning {
		t.Fatalf("expected a tool_warning event for the blocked verifier, got %+v", got)
	}
	if got[len(got)-1].Kind != EventDone {
		t.Fatalf("expected loop to still terminate with done after halt, got %s", got[len(got)-1].Kind)
	}
}
