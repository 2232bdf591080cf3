package models

import "time"

// PromptVersion is a versioned system prompt. At most one is active
// globally; activation is a two-statement transaction (deactivate all,
// activate target).
type PromptVersion struct {
	ID          int64     `json:"id"`
	Version     string    `json:"version"`
	Content     string    `json:"content"`
	IsActive    bool      `json:"is_active"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ActivatedAt time.Time `json:"activated_at,omitempty"`
}

// UserPreferences is a per-user upsertable row read on every chat request.
type UserPreferences struct {
	UserID    string    `json:"user_id"`
	Model     string    `json:"model,omitempty"`
	HitlLevel HitlLevel `json:"hitl_level,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
