package admin

import (
	"net/http"
	"regexp"
	"time"

	"github.com/forgehq/sidecar/internal/httpx"
	"github.com/forgehq/sidecar/internal/storage"
	"github.com/forgehq/sidecar/pkg/models"
)

var agentIDRe = regexp.MustCompile(models.AgentIDPattern)

// ServeAgents handles the /forge-admin/agents[...] tree: list/create on
// the collection, get/update/delete on a single id, and set-default.
func (h *Handler) ServeAgents(w http.ResponseWriter, r *http.Request) {
	if !h.authenticate(w, r) {
		return
	}

	tail := pathTail(r.URL.Path, "/forge-admin/agents")
	if tail == "" {
		h.serveAgentCollection(w, r)
		return
	}

	if id, ok := cutSuffix(tail, "/set-default"); ok {
		if r.Method != http.MethodPost {
			httpx.WriteError(w, httpx.New(httpx.KindNotImplemented, "method not allowed"))
			return
		}
		h.setDefaultAgent(w, r, id)
		return
	}

	h.serveAgentItem(w, r, tail)
}

func (h *Handler) serveAgentCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		agents, err := h.Agents.List(r.Context())
		if err != nil {
			httpx.WriteError(w, httpx.Internal("failed to list agents", err))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, agents)

	case http.MethodPost:
		var agent models.Agent
		if herr := httpx.DecodeJSON(w, r, &agent); herr != nil {
			httpx.WriteError(w, herr)
			return
		}
		if !agentIDRe.MatchString(agent.ID) {
			httpx.WriteError(w, httpx.BadRequest("id must match "+models.AgentIDPattern))
			return
		}
		if agent.DefaultHitl != "" && !models.ValidHitlLevel(agent.DefaultHitl) {
			httpx.WriteError(w, httpx.BadRequest("invalid default_hitl"))
			return
		}
		now := time.Now()
		agent.CreatedAt, agent.UpdatedAt = now, now
		if err := h.Agents.Create(r.Context(), &agent); err != nil {
			if err == storage.ErrAlreadyExists {
				httpx.WriteError(w, httpx.New(httpx.KindBadRequest, "agent id already exists"))
				return
			}
			httpx.WriteError(w, httpx.Internal("failed to create agent", err))
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, agent)

	default:
		httpx.WriteError(w, httpx.New(httpx.KindNotImplemented, "method not allowed"))
	}
}

func (h *Handler) serveAgentItem(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		agent, err := h.Agents.Get(r.Context(), id)
		if err != nil {
			httpx.WriteError(w, httpx.NotFound("agent not found"))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, agent)

	case http.MethodPut:
		existing, err := h.Agents.Get(r.Context(), id)
		if err != nil {
			httpx.WriteError(w, httpx.NotFound("agent not found"))
			return
		}
		var body models.Agent
		if herr := httpx.DecodeJSON(w, r, &body); herr != nil {
			httpx.WriteError(w, herr)
			return
		}
		if body.DefaultHitl != "" && !models.ValidHitlLevel(body.DefaultHitl) {
			httpx.WriteError(w, httpx.BadRequest("invalid default_hitl"))
			return
		}
		body.ID = id
		body.CreatedAt = existing.CreatedAt
		body.UpdatedAt = time.Now()
		if err := h.Agents.Update(r.Context(), &body); err != nil {
			httpx.WriteError(w, httpx.Internal("failed to update agent", err))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, body)

	case http.MethodDelete:
		if err := h.Agents.Delete(r.Context(), id); err != nil {
			if err == storage.ErrNotFound {
				httpx.WriteError(w, httpx.NotFound("agent not found"))
				return
			}
			httpx.WriteError(w, httpx.Internal("failed to delete agent", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		httpx.WriteError(w, httpx.New(httpx.KindNotImplemented, "method not allowed"))
	}
}

func (h *Handler) setDefaultAgent(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.Agents.SetDefault(r.Context(), id); err != nil {
		if err == storage.ErrNotFound {
			httpx.WriteError(w, httpx.NotFound("agent not found"))
			return
		}
		httpx.WriteError(w, httpx.Internal("failed to set default agent", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// cutSuffix reports whether s ends with suffix and returns the part
// before it, trimmed of its own trailing slash.
func cutSuffix(s, suffix string) (string, bool) {
	if len(s) <= len(suffix) {
		return "", false
	}
	if s[len(s)-len(suffix):] != suffix {
		return "", false
	}
	return stripTrailingSlash(s[:len(s)-len(suffix)]), true
}

func stripTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
