// Package admin implements the §6.1 admin plane: CRUD over agents and
// prompts, and section-scoped read/write of the sidecar's runtime
// defaults, gated by a single shared admin key.
package admin

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/forgehq/sidecar/internal/auth"
	"github.com/forgehq/sidecar/internal/httpx"
	"github.com/forgehq/sidecar/internal/storage"
)

// Handler bundles the admin plane's collaborators: the storage stores it
// manages and the key that gates every request.
type Handler struct {
	Auth    *auth.AdminAuthenticator
	Agents  storage.AgentStore
	Prompts storage.PromptStore
	Config  *ConfigStore
	Logger  *slog.Logger
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func bearerToken(r *http.Request) string {
	v := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(v) > len(prefix) && strings.EqualFold(v[:len(prefix)], prefix) {
		return v[len(prefix):]
	}
	return v
}

// authenticate fails closed: an unconfigured or mismatched admin key
// reports AdminUnavailable (503) / AuthFailure (401) respectively.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) bool {
	if h.Auth == nil {
		httpx.WriteError(w, httpx.AdminUnavailable("admin plane not configured"))
		return false
	}
	if !h.Auth.Authenticate(bearerToken(r)) {
		httpx.WriteError(w, httpx.AuthFailure("invalid admin credentials"))
		return false
	}
	return true
}

// pathTail strips prefix from r.URL.Path and trims slashes, returning the
// remaining segment(s) — e.g. "/forge-admin/agents/foo" with prefix
// "/forge-admin/agents" yields "foo".
func pathTail(path, prefix string) string {
	return strings.Trim(strings.TrimPrefix(path, prefix), "/")
}
