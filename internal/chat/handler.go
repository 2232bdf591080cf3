package chat

import (
	"log/slog"
	"os"

	"github.com/forgehq/sidecar/internal/audit"
	"github.com/forgehq/sidecar/internal/auth"
	"github.com/forgehq/sidecar/internal/convstore"
	"github.com/forgehq/sidecar/internal/hitl"
	"github.com/forgehq/sidecar/internal/ratelimit"
	"github.com/forgehq/sidecar/internal/react"
	"github.com/forgehq/sidecar/internal/storage"
	"github.com/forgehq/sidecar/internal/verify"
	"github.com/forgehq/sidecar/pkg/models"
)

// HistoryWindow is the default number of prior messages loaded into a
// chat turn's context absent a config override.
const HistoryWindow = 25

// Handler bundles every collaborator the chat endpoints need: auth,
// rate limiting, agent/prompt/preferences/tool storage, the conversation
// store, the HITL engine, the verifier runner, and one LLMProvider per
// provider family the ReactLoop can pick between.
type Handler struct {
	Auth      *auth.Authenticator
	Limiter   *ratelimit.Limiter
	Agents    storage.AgentStore
	Prompts   storage.PromptStore
	Prefs     storage.PreferencesStore
	Tools     storage.ToolStore
	Conv      convstore.Store
	Hitl      *hitl.Engine
	Verifier  *verify.Runner
	Providers map[string]react.LLMProvider
	Dispatch  *react.Dispatcher
	Audit     audit.Store
	Logger    *slog.Logger

	// Base* are the sidecar-wide defaults a ScopedConfig overlays agent
	// overrides onto.
	BaseModel        string
	BaseHitlLevel    models.HitlLevel
	BaseMaxTurns     int
	BaseMaxTokens    int
	BaseSystemPrompt string
	HistoryWindow    int
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) historyWindow() int {
	if h.HistoryWindow > 0 {
		return h.HistoryWindow
	}
	return HistoryWindow
}

func osEnvLookup(key string) (string, bool) { return os.LookupEnv(key) }

// providerFor looks up the LLMProvider bound to name, or reports false if
// none is configured — the caller turns that into a ProviderMisconfigured
// (500), per §7.
func (h *Handler) providerFor(name string) (react.LLMProvider, bool) {
	p, ok := h.Providers[name]
	return p, ok
}
