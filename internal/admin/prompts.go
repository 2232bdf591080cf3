package admin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/forgehq/sidecar/internal/httpx"
	"github.com/forgehq/sidecar/internal/storage"
	"github.com/forgehq/sidecar/pkg/models"
)

// ServePrompts handles the /forge-admin/prompts[...] tree: list/create on
// the collection, get/update/delete on a single id, and activate.
func (h *Handler) ServePrompts(w http.ResponseWriter, r *http.Request) {
	if !h.authenticate(w, r) {
		return
	}

	tail := pathTail(r.URL.Path, "/forge-admin/prompts")
	if tail == "" {
		h.servePromptCollection(w, r)
		return
	}

	if idStr, ok := cutSuffix(tail, "/activate"); ok {
		if r.Method != http.MethodPost {
			httpx.WriteError(w, httpx.New(httpx.KindNotImplemented, "method not allowed"))
			return
		}
		h.activatePrompt(w, r, idStr)
		return
	}

	h.servePromptItem(w, r, tail)
}

func (h *Handler) servePromptCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		prompts, err := h.Prompts.List(r.Context())
		if err != nil {
			httpx.WriteError(w, httpx.Internal("failed to list prompts", err))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, prompts)

	case http.MethodPost:
		var prompt models.PromptVersion
		if herr := httpx.DecodeJSON(w, r, &prompt); herr != nil {
			httpx.WriteError(w, herr)
			return
		}
		if prompt.Content == "" {
			httpx.WriteError(w, httpx.BadRequest("content is required"))
			return
		}
		prompt.CreatedAt = time.Now()
		prompt.IsActive = false
		if err := h.Prompts.Create(r.Context(), &prompt); err != nil {
			httpx.WriteError(w, httpx.Internal("failed to create prompt", err))
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, prompt)

	default:
		httpx.WriteError(w, httpx.New(httpx.KindNotImplemented, "method not allowed"))
	}
}

func (h *Handler) servePromptItem(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		httpx.WriteError(w, httpx.BadRequest("invalid prompt id"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		prompt, err := h.Prompts.Get(r.Context(), id)
		if err != nil {
			httpx.WriteError(w, httpx.NotFound("prompt not found"))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, prompt)

	case http.MethodPut:
		existing, err := h.Prompts.Get(r.Context(), id)
		if err != nil {
			httpx.WriteError(w, httpx.NotFound("prompt not found"))
			return
		}
		var body models.PromptVersion
		if herr := httpx.DecodeJSON(w, r, &body); herr != nil {
			httpx.WriteError(w, herr)
			return
		}
		body.ID = id
		body.CreatedAt = existing.CreatedAt
		body.IsActive = existing.IsActive
		body.ActivatedAt = existing.ActivatedAt
		if err := h.Prompts.Update(r.Context(), &body); err != nil {
			if err == storage.ErrNotFound {
				httpx.WriteError(w, httpx.NotFound("prompt not found"))
				return
			}
			httpx.WriteError(w, httpx.Internal("failed to update prompt", err))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, body)

	case http.MethodDelete:
		if err := h.Prompts.Delete(r.Context(), id); err != nil {
			if err == storage.ErrNotFound {
				httpx.WriteError(w, httpx.NotFound("prompt not found"))
				return
			}
			httpx.WriteError(w, httpx.Internal("failed to delete prompt", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		httpx.WriteError(w, httpx.New(httpx.KindNotImplemented, "method not allowed"))
	}
}

func (h *Handler) activatePrompt(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		httpx.WriteError(w, httpx.BadRequest("invalid prompt id"))
		return
	}
	if err := h.Prompts.Activate(r.Context(), id); err != nil {
		if err == storage.ErrNotFound {
			httpx.WriteError(w, httpx.NotFound("prompt not found"))
			return
		}
		httpx.WriteError(w, httpx.Internal("failed to activate prompt", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
