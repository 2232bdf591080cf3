package models

import "time"

// HitlLevel controls how aggressively the HitlEngine pauses tool calls.
type HitlLevel string

const (
	HitlAutonomous HitlLevel = "autonomous"
	HitlCautious   HitlLevel = "cautious"
	HitlStandard   HitlLevel = "standard"
	HitlParanoid   HitlLevel = "paranoid"
)

// ValidHitlLevel reports whether level is one of the four recognized values.
func ValidHitlLevel(level HitlLevel) bool {
	switch level {
	case HitlAutonomous, HitlCautious, HitlStandard, HitlParanoid:
		return true
	default:
		return false
	}
}

// Agent bundles model, HITL policy, system prompt, turn/token caps, and a
// tool allowlist — a named profile a chat request can select.
type Agent struct {
	ID               string    `json:"id"`
	DisplayName      string    `json:"display_name"`
	SystemPrompt     string    `json:"system_prompt,omitempty"`
	DefaultModel     string    `json:"default_model,omitempty"`
	DefaultHitl      HitlLevel `json:"default_hitl,omitempty"`
	AllowUserModel   bool      `json:"allow_user_model_select"`
	AllowUserHitl    bool      `json:"allow_user_hitl_config"`
	ToolAllowlist    string    `json:"tool_allowlist"` // "*" or JSON-encoded []string
	MaxTurns         int       `json:"max_turns,omitempty"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
	IsDefault        bool      `json:"is_default"`
	Enabled          bool      `json:"enabled"`
	SeededFromConfig bool      `json:"seeded_from_config,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// AgentIDPattern is the validation regexp for Agent.ID, per spec §3.
const AgentIDPattern = `^[a-z0-9_-]{1,64}$`

// MCPRouting describes how a promoted tool's call is dispatched over HTTP.
type MCPRouting struct {
	Endpoint string `json:"endpoint"`
	Method   string `json:"method"` // GET, POST, PUT, PATCH, DELETE
}

// ToolLifecycle is the visibility state of a ToolSpec.
type ToolLifecycle string

const (
	ToolCandidate ToolLifecycle = "candidate"
	ToolPromoted  ToolLifecycle = "promoted"
	ToolFlagged   ToolLifecycle = "flagged"
	ToolRetired   ToolLifecycle = "retired"
)

// ToolProperty describes one field of a ToolSpec's input schema.
type ToolProperty struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional,omitempty"`
}

// ToolSpec is a tool the ReactLoop can dispatch. Only lifecycle=promoted
// tools are visible to the loop.
type ToolSpec struct {
	Name                 string                  `json:"name"`
	Description          string                  `json:"description"`
	InputSchema          map[string]ToolProperty `json:"input_schema"`
	MCPRouting           *MCPRouting             `json:"mcp_routing,omitempty"`
	RequiresConfirmation bool                    `json:"requires_confirmation,omitempty"`
	Lifecycle            ToolLifecycle           `json:"lifecycle"`
}

// Method returns the tool's dispatch method, defaulting to GET per spec §4.3.
func (t ToolSpec) Method() string {
	if t.MCPRouting == nil || t.MCPRouting.Method == "" {
		return "GET"
	}
	return t.MCPRouting.Method
}
