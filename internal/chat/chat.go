package chat

import (
	"net/http"
	"strings"
	"time"

	"github.com/forgehq/sidecar/internal/httpx"
	"github.com/forgehq/sidecar/internal/react"
	"github.com/forgehq/sidecar/pkg/models"
)

// preparedTurn is everything resolved before a chat/chat-sync request
// drives its ReactLoop: the authenticated user, the session it is running
// in, and the loop's provider/config/history.
type preparedTurn struct {
	user     *models.User
	agent    *models.Agent
	session  *models.Session
	settings EffectiveSettings
	provider react.LLMProvider
	loop     *react.Loop
	cfg      react.Config
	messages []react.CompletionMessage
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return h
}

// prepare implements the shared setup steps of §4.7.a (1-11), common to
// POST /agent-api/chat and /agent-api/chat-sync: authenticate, rate limit,
// resolve the agent/session/effective settings, and load history.
func (h *Handler) prepare(r *http.Request, req models.ChatRequest) (*preparedTurn, *httpx.Error) {
	ctx := r.Context()

	user, err := h.Auth.Authenticate(bearerToken(r))
	if err != nil {
		return nil, httpx.AuthFailure(err.Error())
	}

	const route = "chat"
	result, err := h.Limiter.Allow(ctx, user.ID, route, time.Now())
	if err != nil {
		return nil, httpx.Internal("rate limiter failure", err)
	}
	if !result.Allowed {
		return nil, httpx.RateLimited(int(result.RetryAfter.Seconds()))
	}

	if strings.TrimSpace(req.Message) == "" {
		return nil, httpx.BadRequest("message must not be empty")
	}

	agent, herr := h.resolveAgent(ctx, req.AgentID)
	if herr != nil {
		return nil, herr
	}

	var agentID string
	if agent != nil {
		agentID = agent.ID
	}

	var session *models.Session
	if req.SessionID != "" {
		ownerID, err := h.Conv.GetSessionUserID(ctx, req.SessionID)
		if err != nil {
			return nil, httpx.NotFound("session not found")
		}
		if ownerID != user.ID {
			return nil, httpx.Forbidden("session belongs to another user")
		}
		session = &models.Session{ID: req.SessionID, OwnerUserID: user.ID, AgentID: agentID}
	} else {
		session, err = h.Conv.CreateSession(ctx, user.ID, agentID)
		if err != nil {
			return nil, httpx.Internal("failed to create session", err)
		}
	}

	scoped := h.scopedConfigFor(agent)

	var prefs *models.UserPreferences
	if h.Prefs != nil {
		prefs, _ = h.Prefs.Get(ctx, user.ID)
	}
	settings := ResolveEffective(prefs, scoped, osEnvLookup)
	if settings.APIKey == "" {
		return nil, httpx.ProviderMisconfigured("no API key configured for provider " + settings.Provider)
	}

	provider, ok := h.providerFor(settings.Provider)
	if !ok {
		return nil, httpx.ProviderMisconfigured("no provider configured for " + settings.Provider)
	}

	tools, err := h.loadAllowedTools(ctx, agent)
	if err != nil {
		return nil, httpx.Internal("failed to load tool registry", err)
	}

	history, err := h.Conv.GetHistory(ctx, session.ID, h.historyWindow())
	if err != nil {
		return nil, httpx.Internal("failed to load conversation history", err)
	}
	_ = h.Conv.PersistMessage(ctx, &models.ConversationMessage{
		SessionID: session.ID,
		Stage:     models.StageChat,
		Role:      models.RoleUser,
		Content:   req.Message,
		AgentID:   agentID,
		UserID:    user.ID,
	}) // non-fatal per §5

	messages := toCompletionMessages(history)
	messages = append(messages, react.CompletionMessage{Role: "user", Content: req.Message})

	loop := react.NewLoop(provider, h.Dispatch, h.Hitl, h.Verifier, tools)
	cfg := react.Config{
		MaxTurns:  scoped.MaxTurns,
		MaxTokens: scoped.MaxTokens,
		Model:     settings.Model,
		System:    h.systemPromptFor(ctx, agent),
		HitlLevel: settings.HitlLevel,
	}

	return &preparedTurn{
		user: user, agent: agent, session: session, settings: settings,
		provider: provider, loop: loop, cfg: cfg, messages: messages,
	}, nil
}

// toCompletionMessages maps stored conversation history onto the
// react.LLMProvider's message shape. Tool turns are not reconstructed here
// — only user/assistant text rounds survive across a process restart,
// matching the same simplification the resume path makes for PausedState.
func toCompletionMessages(history []models.ConversationMessage) []react.CompletionMessage {
	out := make([]react.CompletionMessage, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case models.RoleUser:
			out = append(out, react.CompletionMessage{Role: "user", Content: msg.Content})
		case models.RoleAssistant:
			out = append(out, react.CompletionMessage{Role: "assistant", Content: msg.Content})
		}
	}
	return out
}

// ServeChat handles POST /agent-api/chat: a streaming turn delivered as
// Server-Sent Events, per §4.7.
func (h *Handler) ServeChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req models.ChatRequest
	if herr := httpx.DecodeJSON(w, r, &req); herr != nil {
		httpx.WriteError(w, herr)
		return
	}

	turn, herr := h.prepare(r, req)
	if herr != nil {
		h.recordAudit(r, models.ChatAuditRow{Route: "chat", ErrorMessage: herr.Message}, start)
		httpx.WriteError(w, herr)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sink := NewSSESink(w)
	_ = sink.SendSession(turn.session.ID, agentIDOf(turn.agent))

	events, err := turn.loop.Run(r.Context(), turn.cfg, turn.session.ID, 0, turn.messages)
	if err != nil {
		_ = sink.SendError(err)
		h.recordAudit(r, models.ChatAuditRow{
			SessionID: turn.session.ID, UserID: turn.user.ID, AgentID: agentIDOf(turn.agent), Route: "chat",
			Model: turn.settings.Model, ErrorMessage: err.Error(),
		}, start)
		return
	}

	outcome := driveLoop(r.Context(), events, h.Conv, turn.session.ID, agentIDOf(turn.agent), turn.user.ID, sink)
	h.recordAudit(r, auditRowFrom("chat", turn, outcome), start)
}

// ServeChatSync handles POST /agent-api/chat-sync: the same turn, buffered
// into one JSON response body instead of streamed, per §4.7.
func (h *Handler) ServeChatSync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req models.ChatRequest
	if herr := httpx.DecodeJSON(w, r, &req); herr != nil {
		httpx.WriteError(w, herr)
		return
	}

	turn, herr := h.prepare(r, req)
	if herr != nil {
		h.recordAudit(r, models.ChatAuditRow{Route: "chat-sync", ErrorMessage: herr.Message}, start)
		httpx.WriteError(w, herr)
		return
	}

	sink := NewBufferSink()
	events, err := turn.loop.Run(r.Context(), turn.cfg, turn.session.ID, 0, turn.messages)
	if err != nil {
		h.recordAudit(r, models.ChatAuditRow{
			SessionID: turn.session.ID, UserID: turn.user.ID, AgentID: agentIDOf(turn.agent), Route: "chat-sync",
			Model: turn.settings.Model, ErrorMessage: err.Error(),
		}, start)
		httpx.WriteError(w, httpx.Internal("react loop failed to start", err))
		return
	}

	outcome := driveLoop(r.Context(), events, h.Conv, turn.session.ID, agentIDOf(turn.agent), turn.user.ID, sink)
	h.recordAudit(r, auditRowFrom("chat-sync", turn, outcome), start)

	httpx.WriteJSON(w, http.StatusOK, chatSyncResponse{
		SessionID:   turn.session.ID,
		Message:     sink.Message,
		ToolCalls:   sink.ToolCalls,
		Warnings:    sink.Warnings,
		Flags:       sink.Flags,
		ResumeToken: sink.ResumeToken,
		Exhausted:   outcome.Exhausted,
	})
}

type chatSyncResponse struct {
	SessionID   string            `json:"sessionId"`
	Message     string            `json:"message"`
	ToolCalls   []toolCallSummary `json:"toolCalls,omitempty"`
	Warnings    []warningSummary  `json:"warnings,omitempty"`
	Flags       []string          `json:"flags,omitempty"`
	ResumeToken string            `json:"resumeToken,omitempty"`
	Exhausted   bool              `json:"exhausted,omitempty"`
}

func agentIDOf(agent *models.Agent) string {
	if agent == nil {
		return ""
	}
	return agent.ID
}

func auditRowFrom(route string, turn *preparedTurn, outcome loopOutcome) models.ChatAuditRow {
	row := models.ChatAuditRow{
		SessionID:     turn.session.ID,
		UserID:        turn.user.ID,
		AgentID:       agentIDOf(turn.agent),
		Route:         route,
		Model:         turn.settings.Model,
		Message:       outcome.Text,
		ToolCount:     outcome.ToolCount,
		HitlTriggered: outcome.HitlTriggered,
		WarningsCount: outcome.WarningsCount,
	}
	if outcome.Err != nil {
		row.ErrorMessage = outcome.Err.Error()
	}
	return row
}

// recordAudit writes exactly one ChatAuditRow for the request, swallowing
// any write failure — audit is best-effort per §5.
func (h *Handler) recordAudit(r *http.Request, row models.ChatAuditRow, start time.Time) {
	if h.Audit == nil {
		return
	}
	row.DurationMs = time.Since(start).Milliseconds()
	row.Message = models.TruncateForAudit(row.Message)
	if err := h.Audit.Record(r.Context(), row); err != nil {
		h.logger().Warn("audit write failed", "error", err, "route", row.Route)
	}
}
