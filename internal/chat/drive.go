package chat

import (
	"context"
	"strings"

	"github.com/forgehq/sidecar/internal/convstore"
	"github.com/forgehq/sidecar/internal/react"
	"github.com/forgehq/sidecar/pkg/models"
)

// loopOutcome summarizes one driveLoop run for the caller's audit row and
// (for chat-sync) its response body.
type loopOutcome struct {
	Text          string
	ToolCount     int
	WarningsCount int
	HitlTriggered bool
	ResumeToken   string
	InputTokens   int
	OutputTokens  int
	Exhausted     bool
	Err           error
}

// driveLoop consumes events from a running react.Loop and forwards every
// one to sink, persisting the accumulated assistant text to convo whenever
// a turn pauses (hitl) or terminates (done) — the one piece of behavior
// every chat surface shares, per §9's "handlers share one driveLoop".
//
// ReactLoop has already minted the resume token and paused internally by
// the time an EventHitl reaches here (see react.Loop.run); driveLoop's job
// on that event is only to flush pending text and relay it onward.
func driveLoop(ctx context.Context, events <-chan *react.ReactEvent, convo convstore.Store, sessionID, agentID, userID string, sink Sink) loopOutcome {
	var outcome loopOutcome
	var text strings.Builder

	flush := func() {
		if text.Len() == 0 {
			return
		}
		msg := &models.ConversationMessage{
			SessionID: sessionID,
			Stage:     models.StageChat,
			Role:      models.RoleAssistant,
			Content:   text.String(),
			AgentID:   agentID,
			UserID:    userID,
		}
		_ = convo.PersistMessage(ctx, msg) // non-fatal per §5
		text.Reset()
	}

	for ev := range events {
		switch ev.Kind {
		case react.EventTextDelta:
			text.WriteString(ev.Text)
			_ = sink.SendText(ev.Text, true)

		case react.EventText:
			text.Reset()
			text.WriteString(ev.Text)
			_ = sink.SendText(ev.Text, false)

		case react.EventToolCall:
			outcome.ToolCount++
			_ = sink.SendToolCall(ev.ToolCall)

		case react.EventToolResult:
			_ = sink.SendToolResult(ev.ToolResult)

		case react.EventToolWarning:
			outcome.WarningsCount++
			_ = sink.SendToolWarning(ev.ToolCall, ev.Outcome, ev.Message)

		case react.EventHitl:
			outcome.HitlTriggered = true
			outcome.ResumeToken = ev.ResumeToken
			flush()
			_ = sink.SendHitl(ev.ResumeToken, ev.ToolCall)

		case react.EventError:
			outcome.Err = ev.Err
			_ = sink.SendError(ev.Err)

		case react.EventDone:
			outcome.InputTokens = ev.InputTokens
			outcome.OutputTokens = ev.OutputTokens
			outcome.Exhausted = ev.Exhausted
			outcome.Text = text.String()
			flush()
			_ = sink.SendDone(ev.InputTokens, ev.OutputTokens, ev.Exhausted)
		}
	}

	return outcome
}
