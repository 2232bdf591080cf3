package admin

import (
	"encoding/json"
	"net/http"

	"github.com/forgehq/sidecar/internal/httpx"
)

// ServeConfig handles GET/PUT /forge-admin/config and
// GET/PUT /forge-admin/config/:section (section in
// {model, hitl, permissions, conversation}).
func (h *Handler) ServeConfig(w http.ResponseWriter, r *http.Request) {
	if !h.authenticate(w, r) {
		return
	}
	if h.Config == nil {
		httpx.WriteError(w, httpx.AdminUnavailable("config store not configured"))
		return
	}

	section := pathTail(r.URL.Path, "/forge-admin/config")

	switch r.Method {
	case http.MethodGet:
		if section == "" {
			httpx.WriteJSON(w, http.StatusOK, h.Config.Get())
			return
		}
		value, err := h.Config.Section(section)
		if err != nil {
			httpx.WriteError(w, httpx.NotFound("unknown config section"))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, value)

	case http.MethodPut:
		raw, err := readBody(r)
		if err != nil {
			httpx.WriteError(w, httpx.BadRequest("malformed request body"))
			return
		}
		if section == "" {
			var full RuntimeDefaults
			if err := json.Unmarshal(raw, &full); err != nil {
				httpx.WriteError(w, httpx.BadRequest("malformed request body"))
				return
			}
			if err := h.Config.Replace(full); err != nil {
				httpx.WriteError(w, httpx.Internal("failed to persist config", err))
				return
			}
			httpx.WriteJSON(w, http.StatusOK, full)
			return
		}
		if err := h.Config.ReplaceSection(section, raw); err != nil {
			if err == ErrUnknownSection {
				httpx.WriteError(w, httpx.NotFound("unknown config section"))
				return
			}
			httpx.WriteError(w, httpx.BadRequest("malformed request body"))
			return
		}
		value, _ := h.Config.Section(section)
		httpx.WriteJSON(w, http.StatusOK, value)

	default:
		httpx.WriteError(w, httpx.New(httpx.KindNotImplemented, "method not allowed"))
	}
}

func readBody(r *http.Request) (json.RawMessage, error) {
	defer r.Body.Close()
	var raw json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, httpx.MaxBodyBytes)).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}
