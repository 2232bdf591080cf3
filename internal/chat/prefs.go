// Package chat wires the Authenticator, RateLimiter, HitlEngine,
// VerifierRunner, ReactLoop, ConversationStore, and storage stores into the
// three chat HTTP handlers (§4.7) and their supporting endpoints.
package chat

import (
	"strings"

	"github.com/forgehq/sidecar/pkg/models"
)

// ScopedConfig is the agent-scoped configuration a chat request resolves
// before building its ReactLoop: the base runtime defaults overlaid with
// the selected agent's model/HITL/permission/turn/token overrides.
type ScopedConfig struct {
	DefaultModel         string
	DefaultHitlLevel     models.HitlLevel
	AllowUserModelSelect bool
	AllowUserHitlConfig  bool
	MaxTurns             int
	MaxTokens            int
	SystemPrompt         string
}

// EffectiveSettings is resolveEffective's output: the concrete model,
// HITL level, provider, and API key a chat request will run with.
type EffectiveSettings struct {
	Model     string
	HitlLevel models.HitlLevel
	Provider  string
	APIKey    string
}

// EnvLookup abstracts os.LookupEnv so resolveEffective is testable without
// mutating the process environment.
type EnvLookup func(key string) (string, bool)

// ResolveEffective implements §4.8's resolveEffective(userId, scopedConfig,
// env): user overrides apply only where the agent's scoped config allows
// them, the provider is derived from the model's name prefix, and the API
// key comes from the provider's environment variable. apiKey is empty when
// unresolvable — callers must turn that into a 500 (ProviderMisconfigured).
func ResolveEffective(prefs *models.UserPreferences, scoped ScopedConfig, env EnvLookup) EffectiveSettings {
	settings := EffectiveSettings{
		Model:     scoped.DefaultModel,
		HitlLevel: scoped.DefaultHitlLevel,
	}
	if settings.HitlLevel == "" {
		settings.HitlLevel = models.HitlCautious
	}

	if prefs != nil {
		if scoped.AllowUserModelSelect && prefs.Model != "" {
			settings.Model = prefs.Model
		}
		if scoped.AllowUserHitlConfig && prefs.HitlLevel != "" {
			settings.HitlLevel = prefs.HitlLevel
		}
	}

	settings.Provider = providerForModel(settings.Model)
	settings.APIKey, _ = env(envVarForProvider(settings.Provider))
	return settings
}

// providerForModel derives the provider family from a model's name prefix,
// defaulting to anthropic when the prefix is unrecognized.
func providerForModel(model string) string {
	switch {
	case strings.HasPrefix(model, "claude-"):
		return "anthropic"
	case strings.HasPrefix(model, "gpt-"), strings.HasPrefix(model, "o3-"):
		return "openai"
	case strings.HasPrefix(model, "gemini-"):
		return "google"
	default:
		return "anthropic"
	}
}

func envVarForProvider(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	default:
		return "ANTHROPIC_API_KEY"
	}
}
