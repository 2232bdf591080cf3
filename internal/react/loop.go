package react

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forgehq/sidecar/internal/hitl"
	"github.com/forgehq/sidecar/internal/verify"
	"github.com/forgehq/sidecar/pkg/models"
)

// DefaultMaxTurns is the per-request turn cap absent an agent override.
const DefaultMaxTurns = 10

// Config configures one Loop run.
type Config struct {
	MaxTurns  int
	MaxTokens int
	Model     string
	System    string
	HitlLevel models.HitlLevel
}

func (c Config) sanitized() Config {
	if c.MaxTurns <= 0 {
		c.MaxTurns = DefaultMaxTurns
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	return c
}

// Loop runs the LLM-turn / tool-dispatch cycle described in §4.6. It is
// request-scoped: build one per chat request, call Run once.
type Loop struct {
	provider   LLMProvider
	dispatcher *Dispatcher
	hitl       *hitl.Engine
	verifier   *verify.Runner
	tools      []models.ToolSpec
}

// NewLoop builds a Loop. hitlEngine and verifier may both be nil — a nil
// hitlEngine means ShouldPause is never consulted (every tool call
// dispatches immediately); a nil verifier means onAfterToolCall always
// passes.
func NewLoop(provider LLMProvider, dispatcher *Dispatcher, hitlEngine *hitl.Engine, verifier *verify.Runner, tools []models.ToolSpec) *Loop {
	return &Loop{provider: provider, dispatcher: dispatcher, hitl: hitlEngine, verifier: verifier, tools: tools}
}

func (l *Loop) toolSpec(name string) (models.ToolSpec, bool) {
	for _, t := range l.tools {
		if t.Name == name {
			return t, true
		}
	}
	return models.ToolSpec{}, false
}

// Run starts the loop and returns a channel of ReactEvent. The channel is
// closed after exactly one "done" event, or right after the "hitl" event
// when a tool call pauses (no "done" follows a pause). An unrecoverable
// setup error returns a non-nil error instead of a channel.
// sessionID/turnIndex seed the PausedState emitted on a hitl pause.
func (l *Loop) Run(ctx context.Context, cfg Config, sessionID string, startTurn int, messages []CompletionMessage) (<-chan *ReactEvent, error) {
	if l.provider == nil {
		return nil, fmt.Errorf("react: no provider configured")
	}
	cfg = cfg.sanitized()

	events := make(chan *ReactEvent, 16)
	go l.run(ctx, cfg, sessionID, startTurn, messages, events)
	return events, nil
}

func (l *Loop) run(ctx context.Context, cfg Config, sessionID string, startTurn int, messages []CompletionMessage, events chan<- *ReactEvent) {
	defer close(events)

	var inputTokens, outputTokens int

	for turn := startTurn; turn < cfg.MaxTurns; turn++ {
		select {
		case <-ctx.Done():
			events <- &ReactEvent{Kind: EventError, Err: ctx.Err()}
			events <- &ReactEvent{Kind: EventDone}
			return
		default:
		}

		req := &CompletionRequest{
			Model:     cfg.Model,
			System:    cfg.System,
			Messages:  messages,
			Tools:     l.tools,
			MaxTokens: cfg.MaxTokens,
		}

		chunks, err := l.provider.Complete(ctx, req)
		if err != nil {
			events <- &ReactEvent{Kind: EventError, Err: err}
			events <- &ReactEvent{Kind: EventDone}
			return
		}

		var text string
		var toolCalls []ToolCall
		var turnErr error

		for chunk := range chunks {
			if chunk.Error != nil {
				turnErr = chunk.Error
				break
			}
			if chunk.Text != "" {
				text += chunk.Text
				events <- &ReactEvent{Kind: EventTextDelta, Text: chunk.Text}
			}
			if chunk.ToolCall != nil {
				toolCalls = append(toolCalls, *chunk.ToolCall)
			}
			if chunk.Done {
				inputTokens += chunk.InputTokens
				outputTokens += chunk.OutputTokens
			}
		}

		if turnErr != nil {
			events <- &ReactEvent{Kind: EventError, Err: turnErr}
			events <- &ReactEvent{Kind: EventDone}
			return
		}

		if text != "" {
			events <- &ReactEvent{Kind: EventText, Text: text}
		}
		messages = append(messages, CompletionMessage{Role: "assistant", Content: text, ToolCalls: toolCalls})

		if len(toolCalls) == 0 {
			events <- &ReactEvent{Kind: EventDone, InputTokens: inputTokens, OutputTokens: outputTokens}
			return
		}

		var toolResults []ToolResult
		halted := false

		for _, tc := range toolCalls {
			spec, known := l.toolSpec(tc.Name)

			if l.hitl != nil && known && hitl.ShouldPause(cfg.HitlLevel, spec) {
				state := models.PausedState{
					SessionID:    sessionID,
					TurnIndex:    turn,
					ToolName:     tc.Name,
					ToolArgs:     tc.Input,
					PendingTools: toPausedToolCalls(toolCalls),
					Messages:     nil, // caller fills this in from its own persisted history
				}
				token, perr := l.hitl.Pause(ctx, state)
				if perr != nil {
					events <- &ReactEvent{Kind: EventError, Err: perr}
					events <- &ReactEvent{Kind: EventDone}
					return
				}
				events <- &ReactEvent{
					Kind:         EventHitl,
					ToolCall:     &tc,
					ResumeToken:  token,
					PausedState:  &state,
					PendingTools: toolCalls,
				}
				return
			}

			if !known {
				res := ToolResult{ToolCallID: tc.ID, Content: fmt.Sprintf("unknown tool: %s", tc.Name), IsError: true}
				events <- &ReactEvent{Kind: EventToolCall, ToolCall: &tc}
				events <- &ReactEvent{Kind: EventToolResult, ToolResult: &res}
				toolResults = append(toolResults, res)
				continue
			}

			events <- &ReactEvent{Kind: EventToolCall, ToolCall: &tc}
			result, derr := l.dispatcher.Dispatch(ctx, spec, tc)
			if derr != nil {
				result = ToolResult{ToolCallID: tc.ID, Content: derr.Error(), IsError: true}
			}
			events <- &ReactEvent{Kind: EventToolResult, ToolResult: &result}
			toolResults = append(toolResults, result)

			if l.verifier != nil {
				verdict := l.verifier.Verify(ctx, sessionID, tc.Name, tc.Input, json.RawMessage(result.Content))
				switch verdict.Outcome {
				case models.OutcomeWarn:
					events <- &ReactEvent{Kind: EventToolWarning, ToolCall: &tc, Outcome: verdict.Outcome, Message: verdict.Message}
				case models.OutcomeBlock:
					events <- &ReactEvent{Kind: EventToolWarning, ToolCall: &tc, Outcome: verdict.Outcome, Message: verdict.Message}
					halted = true
				}
			}

			if halted {
				break
			}
		}

		messages = append(messages, CompletionMessage{Role: "tool", ToolResults: toolResults})

		if halted {
			events <- &ReactEvent{Kind: EventDone, InputTokens: inputTokens, OutputTokens: outputTokens}
			return
		}
	}

	events <- &ReactEvent{Kind: EventDone, InputTokens: inputTokens, OutputTokens: outputTokens, Exhausted: true}
}

func toPausedToolCalls(calls []ToolCall) []models.PausedToolCall {
	out := make([]models.PausedToolCall, len(calls))
	for i, c := range calls {
		out[i] = models.PausedToolCall{ID: c.ID, Name: c.Name, Input: c.Input}
	}
	return out
}
