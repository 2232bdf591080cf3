package chat

import (
	"context"
	"encoding/json"

	"github.com/forgehq/sidecar/internal/httpx"
	"github.com/forgehq/sidecar/internal/storage"
	"github.com/forgehq/sidecar/pkg/models"
)

const defaultSystemPrompt = "You are a helpful assistant."

// resolveAgent implements §4.7.a step 4: an explicit, unknown/disabled
// agentId is a 404; an absent one falls back to the registry default
// (which may itself be nil if none is configured).
func (h *Handler) resolveAgent(ctx context.Context, agentID string) (*models.Agent, *httpx.Error) {
	if agentID == "" {
		agent, err := h.Agents.Default(ctx)
		if err != nil {
			if err == storage.ErrNotFound {
				return nil, nil
			}
			return nil, httpx.Internal("failed to load default agent", err)
		}
		return agent, nil
	}

	agent, err := h.Agents.Get(ctx, agentID)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, httpx.NotFound("agent not found")
		}
		return nil, httpx.Internal("failed to load agent", err)
	}
	if !agent.Enabled {
		return nil, httpx.NotFound("agent not found")
	}
	return agent, nil
}

// scopedConfigFor builds the agent-scoped ScopedConfig per §4.7.a step 5.
// A nil agent (no default configured) yields the sidecar-wide base.
func (h *Handler) scopedConfigFor(agent *models.Agent) ScopedConfig {
	cfg := ScopedConfig{
		DefaultModel:     h.BaseModel,
		DefaultHitlLevel: h.BaseHitlLevel,
		MaxTurns:         h.BaseMaxTurns,
		MaxTokens:        h.BaseMaxTokens,
		SystemPrompt:     h.BaseSystemPrompt,
	}
	if agent == nil {
		return cfg
	}
	if agent.DefaultModel != "" {
		cfg.DefaultModel = agent.DefaultModel
	}
	if agent.DefaultHitl != "" {
		cfg.DefaultHitlLevel = agent.DefaultHitl
	}
	if agent.MaxTurns > 0 {
		cfg.MaxTurns = agent.MaxTurns
	}
	if agent.MaxTokens > 0 {
		cfg.MaxTokens = agent.MaxTokens
	}
	cfg.AllowUserModelSelect = agent.AllowUserModel
	cfg.AllowUserHitlConfig = agent.AllowUserHitl
	if agent.SystemPrompt != "" {
		cfg.SystemPrompt = agent.SystemPrompt
	}
	return cfg
}

// systemPromptFor resolves the precedence chain from §4.7.a step 8:
// agent.systemPrompt -> promptStore.active -> config.systemPrompt ->
// the built-in default.
func (h *Handler) systemPromptFor(ctx context.Context, agent *models.Agent) string {
	if agent != nil && agent.SystemPrompt != "" {
		return agent.SystemPrompt
	}
	if h.Prompts != nil {
		if active, err := h.Prompts.Active(ctx); err == nil && active != nil {
			return active.Content
		}
	}
	if h.BaseSystemPrompt != "" {
		return h.BaseSystemPrompt
	}
	return defaultSystemPrompt
}

// loadAllowedTools loads every promoted tool and filters it through the
// agent's allowlist: "*" (or a nil agent) allows everything; a malformed
// allowlist value allows nothing per §4.7.a step 10.
func (h *Handler) loadAllowedTools(ctx context.Context, agent *models.Agent) ([]models.ToolSpec, error) {
	promoted, err := h.Tools.Promoted(ctx)
	if err != nil {
		return nil, err
	}

	unrestricted := agent == nil || agent.ToolAllowlist == "*" || agent.ToolAllowlist == ""
	var allowSet map[string]bool
	if !unrestricted {
		var allowed []string
		if err := json.Unmarshal([]byte(agent.ToolAllowlist), &allowed); err != nil {
			return nil, nil
		}
		allowSet = make(map[string]bool, len(allowed))
		for _, name := range allowed {
			allowSet[name] = true
		}
	}

	out := make([]models.ToolSpec, 0, len(promoted))
	for _, tool := range promoted {
		if tool == nil {
			continue
		}
		if unrestricted || allowSet[tool.Name] {
			out = append(out, *tool)
		}
	}
	return out, nil
}
