package models

// User is an authenticated identity, derived from a JWT subject claim or a
// static API key mapping. Never persisted by the core — ownership checks
// compare ids only.
type User struct {
	ID     string         `json:"id"`
	Email  string         `json:"email,omitempty"`
	Name   string         `json:"name,omitempty"`
	Claims map[string]any `json:"claims,omitempty"`
}
