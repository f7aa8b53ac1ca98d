package api

import (
	"time"

	"github.com/satriahrh/bpmn-voice/domain/entities"
)

// TokenRequest represents the request payload for client authentication
type TokenRequest struct {
	ClientID  string `json:"client_id" validate:"required"`
	AccessKey string `json:"access_key" validate:"required"`
}

// TokenResponse represents the response payload for client authentication
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ClientID  string    `json:"client_id"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SessionSummary is the list view of a session
type SessionSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Active       bool      `json:"active"`
	MessageCount int       `json:"messageCount"`
	VersionCount int       `json:"versionCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SessionsResponse lists every session, most recent first
type SessionsResponse struct {
	ActiveSessionID string           `json:"activeSessionId"`
	Sessions        []SessionSummary `json:"sessions"`
}

// NameRequest carries a session name
type NameRequest struct {
	Name string `json:"name"`
}

// VersionRequest carries an optional snapshot label
type VersionRequest struct {
	Label string `json:"label"`
}

// VersionResponse reports a snapshot and whether it was newly created
type VersionResponse struct {
	Version entities.Version `json:"version"`
	Created bool             `json:"created"`
}

// ToolRequest carries the arguments of a direct tool invocation
type ToolRequest struct {
	Args map[string]any `json:"args"`
}

// TextRequest carries a typed user turn
type TextRequest struct {
	Text string `json:"text"`
}

// VoiceStateResponse reports the live session state
type VoiceStateResponse struct {
	State     string `json:"state"`
	Listening bool   `json:"listening"`
}

// APIKeyRequest carries a Gemini API key
type APIKeyRequest struct {
	APIKey string `json:"api_key"`
}

func summarize(session *entities.Session, activeID string) SessionSummary {
	return SessionSummary{
		ID:           session.ID,
		Name:         session.Name,
		Active:       session.ID == activeID,
		MessageCount: len(session.Messages),
		VersionCount: len(session.Versions),
		CreatedAt:    session.CreatedAt,
		UpdatedAt:    session.UpdatedAt,
	}
}
