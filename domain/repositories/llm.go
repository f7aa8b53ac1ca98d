package repositories

import (
	"context"
	"errors"
)

// ErrConnectionClosed is returned by LiveConnection.Receive when the remote
// side closed the session normally.
var ErrConnectionClosed = errors.New("live connection closed")

// ErrMissingAPIKey is returned by a LiveDialer that has no credential to dial with.
var ErrMissingAPIKey = errors.New("api key is not configured")

// LiveDialer abstracts a real-time voice model provider
type LiveDialer interface {
	// Dial opens a new bidirectional session with the remote model
	Dial(ctx context.Context) (LiveConnection, error)
}

// LiveConnection represents one open bidirectional session.
// Send methods are safe for concurrent use; Receive must be called from a
// single goroutine.
type LiveConnection interface {
	// Receive blocks until the next server message arrives
	Receive() (*ServerMessage, error)
	// SendAudio streams one outbound microphone frame
	SendAudio(frame AudioFrame) error
	// SendText sends a complete user text turn
	SendText(text string) error
	// SendToolResults replies to every call of one tool-call message in a single batch
	SendToolResults(results []FunctionResult) error
	Close() error
}

// ServerMessage is one message pushed by the remote model. Every field is
// independent; a single message can carry several of them.
type ServerMessage struct {
	SetupComplete       bool
	FunctionCalls       []FunctionCall
	Audio               []AudioFrame
	InputTranscription  string
	OutputTranscription string
	Interrupted         bool
	TurnComplete        bool
}

// FunctionCall is a structured request from the model to run a named tool
type FunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// FunctionResult is the reply to a single FunctionCall
type FunctionResult struct {
	CallID   string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}
