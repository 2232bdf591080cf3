package chat

import (
	"net/http"
	"strings"
	"time"

	"github.com/forgehq/sidecar/internal/convstore"
	"github.com/forgehq/sidecar/internal/httpx"
	"github.com/forgehq/sidecar/pkg/models"
)

// authenticate is the shared bearer-token + rate-limit prologue used by
// every non-chat endpoint in this package.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request, route string) (*models.User, bool) {
	user, err := h.Auth.Authenticate(bearerToken(r))
	if err != nil {
		httpx.WriteError(w, httpx.AuthFailure(err.Error()))
		return nil, false
	}
	result, err := h.Limiter.Allow(r.Context(), user.ID, route, time.Now())
	if err != nil {
		httpx.WriteError(w, httpx.Internal("rate limiter failure", err))
		return nil, false
	}
	if !result.Allowed {
		httpx.WriteError(w, httpx.RateLimited(int(result.RetryAfter.Seconds())))
		return nil, false
	}
	return user, true
}

// ServePreferences handles GET/PUT /agent-api/user/preferences.
func (h *Handler) ServePreferences(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r, "preferences")
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		prefs, err := h.Prefs.Get(r.Context(), user.ID)
		if err != nil {
			httpx.WriteError(w, httpx.Internal("failed to load preferences", err))
			return
		}
		if prefs == nil {
			prefs = &models.UserPreferences{UserID: user.ID}
		}
		httpx.WriteJSON(w, http.StatusOK, prefs)

	case http.MethodPut:
		var body models.UserPreferences
		if herr := httpx.DecodeJSON(w, r, &body); herr != nil {
			httpx.WriteError(w, herr)
			return
		}
		if body.HitlLevel != "" && !models.ValidHitlLevel(body.HitlLevel) {
			httpx.WriteError(w, httpx.BadRequest("invalid hitl_level"))
			return
		}
		body.UserID = user.ID
		if err := h.Prefs.Upsert(r.Context(), &body); err != nil {
			httpx.WriteError(w, httpx.Internal("failed to save preferences", err))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, body)

	default:
		httpx.WriteError(w, httpx.New(httpx.KindNotImplemented, "method not allowed"))
	}
}

// ServeConversations handles GET /agent-api/conversations and
// GET/DELETE /agent-api/conversations/:sessionId.
func (h *Handler) ServeConversations(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r, "conversations")
	if !ok {
		return
	}

	sessionID := strings.TrimPrefix(r.URL.Path, "/agent-api/conversations")
	sessionID = strings.Trim(sessionID, "/")

	if sessionID == "" {
		sessions, err := h.Conv.ListSessions(r.Context(), user.ID)
		if err != nil {
			httpx.WriteError(w, httpx.Internal("failed to list conversations", err))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, sessions)
		return
	}

	ownerID, err := h.Conv.GetSessionUserID(r.Context(), sessionID)
	if err != nil {
		httpx.WriteError(w, httpx.NotFound("session not found"))
		return
	}
	if ownerID != user.ID {
		httpx.WriteError(w, httpx.Forbidden("session belongs to another user"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		history, err := h.Conv.GetHistory(r.Context(), sessionID, 0)
		if err != nil {
			httpx.WriteError(w, httpx.Internal("failed to load conversation history", err))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, history)

	case http.MethodDelete:
		if err := h.Conv.DeleteSession(r.Context(), sessionID, user.ID); err != nil {
			if err == convstore.ErrForbidden {
				httpx.WriteError(w, httpx.Forbidden("session belongs to another user"))
				return
			}
			httpx.WriteError(w, httpx.Internal("failed to delete session", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		httpx.WriteError(w, httpx.New(httpx.KindNotImplemented, "method not allowed"))
	}
}

// ServeTools handles GET /agent-api/tools: every promoted tool visible to
// the allowlist of the agent named by ?agentId, or of the default agent
// when that parameter is absent.
func (h *Handler) ServeTools(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r, "tools"); !ok {
		return
	}

	agentID := r.URL.Query().Get("agentId")
	agent, herr := h.resolveAgent(r.Context(), agentID)
	if herr != nil {
		httpx.WriteError(w, herr)
		return
	}

	tools, err := h.loadAllowedTools(r.Context(), agent)
	if err != nil {
		httpx.WriteError(w, httpx.Internal("failed to load tool registry", err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tools)
}
