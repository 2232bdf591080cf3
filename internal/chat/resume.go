package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/forgehq/sidecar/internal/hitl"
	"github.com/forgehq/sidecar/internal/httpx"
	"github.com/forgehq/sidecar/internal/react"
	"github.com/forgehq/sidecar/pkg/models"
)

// ServeResume handles POST /agent-api/chat/resume: redeems a resume token
// minted by a prior pause, threads the operator's confirm/deny decision
// back into the paused tool call, and continues the turn, per §4.7.c.
//
// PausedState.Messages is always nil (react.Loop leaves it for the caller
// to fill in) — history is reconstructed from the ConversationStore
// instead, the same way a fresh chat turn is.
func (h *Handler) ServeResume(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req models.ResumeRequest
	if herr := httpx.DecodeJSON(w, r, &req); herr != nil {
		httpx.WriteError(w, herr)
		return
	}

	ctx := r.Context()

	user, err := h.Auth.Authenticate(bearerToken(r))
	if err != nil {
		httpx.WriteError(w, httpx.AuthFailure(err.Error()))
		return
	}

	if strings.TrimSpace(req.ResumeToken) == "" {
		httpx.WriteError(w, httpx.BadRequest("resumeToken is required"))
		return
	}

	state, err := h.Hitl.Resume(ctx, req.ResumeToken)
	if err != nil {
		if err == hitl.ErrExpired || err == hitl.ErrNotFound {
			httpx.WriteError(w, httpx.Gone("resume token expired or already used"))
			return
		}
		httpx.WriteError(w, httpx.Internal("failed to redeem resume token", err))
		return
	}

	ownerID, err := h.Conv.GetSessionUserID(ctx, state.SessionID)
	if err != nil {
		httpx.WriteError(w, httpx.NotFound("session not found"))
		return
	}
	if ownerID != user.ID {
		httpx.WriteError(w, httpx.Forbidden("session belongs to another user"))
		return
	}

	var agent *models.Agent
	if state.AgentID != "" {
		agent, _ = h.Agents.Get(ctx, state.AgentID)
	}
	scoped := h.scopedConfigFor(agent)

	var prefs *models.UserPreferences
	if h.Prefs != nil {
		prefs, _ = h.Prefs.Get(ctx, user.ID)
	}
	settings := ResolveEffective(prefs, scoped, osEnvLookup)
	if settings.APIKey == "" {
		httpx.WriteError(w, httpx.ProviderMisconfigured("no API key configured for provider "+settings.Provider))
		return
	}
	provider, ok := h.providerFor(settings.Provider)
	if !ok {
		httpx.WriteError(w, httpx.ProviderMisconfigured("no provider configured for "+settings.Provider))
		return
	}

	tools, err := h.loadAllowedTools(ctx, agent)
	if err != nil {
		httpx.WriteError(w, httpx.Internal("failed to load tool registry", err))
		return
	}

	history, err := h.Conv.GetHistory(ctx, state.SessionID, h.historyWindow())
	if err != nil {
		httpx.WriteError(w, httpx.Internal("failed to load conversation history", err))
		return
	}
	messages := toCompletionMessages(history)
	messages = append(messages, h.resumeToolTurn(ctx, state, tools, req.Confirmed)...)

	sink := NewBufferSink()
	loop := react.NewLoop(provider, h.Dispatch, h.Hitl, h.Verifier, tools)
	cfg := react.Config{
		MaxTurns:  scoped.MaxTurns,
		MaxTokens: scoped.MaxTokens,
		Model:     settings.Model,
		System:    h.systemPromptFor(ctx, agent),
		HitlLevel: settings.HitlLevel,
	}

	events, err := loop.Run(ctx, cfg, state.SessionID, state.TurnIndex+1, messages)
	if err != nil {
		httpx.WriteError(w, httpx.Internal("react loop failed to start", err))
		return
	}

	outcome := driveLoop(ctx, events, h.Conv, state.SessionID, state.AgentID, user.ID, sink)
	h.recordAudit(r, models.ChatAuditRow{
		SessionID: state.SessionID, UserID: user.ID, AgentID: state.AgentID, Route: "chat/resume",
		Model: settings.Model, Message: outcome.Text, ToolCount: outcome.ToolCount,
		HitlTriggered: outcome.HitlTriggered, WarningsCount: outcome.WarningsCount,
	}, start)

	httpx.WriteJSON(w, http.StatusOK, chatSyncResponse{
		SessionID:   state.SessionID,
		Message:     sink.Message,
		ToolCalls:   sink.ToolCalls,
		Warnings:    sink.Warnings,
		Flags:       sink.Flags,
		ResumeToken: sink.ResumeToken,
		Exhausted:   outcome.Exhausted,
	})
}

// resumeToolTurn rebuilds the assistant tool-call message and its
// resulting tool-result message for the single tool call that triggered
// the pause. A denial never reaches the dispatcher; a confirmation
// dispatches and verifies it exactly as react.Loop would have, had it not
// paused first.
func (h *Handler) resumeToolTurn(ctx context.Context, state *models.PausedState, tools []models.ToolSpec, confirmed bool) []react.CompletionMessage {
	call := react.ToolCall{ID: "resumed_" + state.ToolName, Name: state.ToolName, Input: state.ToolArgs}
	for _, pt := range state.PendingTools {
		if pt.Name == state.ToolName {
			call = react.ToolCall{ID: pt.ID, Name: pt.Name, Input: pt.Input}
			break
		}
	}

	var result react.ToolResult
	if !confirmed {
		result = react.ToolResult{ToolCallID: call.ID, Content: "denied by operator", IsError: true}
	} else {
		spec, known := toolSpecByName(tools, call.Name)
		if !known {
			result = react.ToolResult{ToolCallID: call.ID, Content: "unknown tool: " + call.Name, IsError: true}
		} else {
			var derr error
			result, derr = h.Dispatch.Dispatch(ctx, spec, call)
			if derr != nil {
				result = react.ToolResult{ToolCallID: call.ID, Content: derr.Error(), IsError: true}
			} else if h.Verifier != nil {
				verdict := h.Verifier.Verify(ctx, state.SessionID, call.Name, call.Input, json.RawMessage(result.Content))
				if verdict.Outcome == models.OutcomeBlock {
					result = react.ToolResult{ToolCallID: call.ID, Content: verdict.Message, IsError: true}
				}
			}
		}
	}

	return []react.CompletionMessage{
		{Role: "assistant", ToolCalls: []react.ToolCall{call}},
		{Role: "tool", ToolResults: []react.ToolResult{result}},
	}
}

func toolSpecByName(tools []models.ToolSpec, name string) (models.ToolSpec, bool) {
	for _, t := range tools {
		if t.Name == name {
			return t, true
		}
	}
	return models.ToolSpec{}, false
}
