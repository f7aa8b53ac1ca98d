package repositories

import (
	"context"
	"errors"

	"github.com/satriahrh/bpmn-voice/domain/entities"
)

// Record keys shared by every storage backend
const (
	SessionsKey      = "bpmn-sessions"
	ActiveSessionKey = "bpmn-active-session"
	APIKeyKey        = "gemini-api-key"
)

// ErrRecordNotFound is returned when a keyed record has never been written
var ErrRecordNotFound = errors.New("record not found")

// SessionRepository persists the whole session set and the active session id
// as two keyed records.
type SessionRepository interface {
	LoadSessions(ctx context.Context) ([]*entities.Session, error)
	SaveSessions(ctx context.Context, sessions []*entities.Session) error
	LoadActiveSessionID(ctx context.Context) (string, error)
	SaveActiveSessionID(ctx context.Context, id string) error
}

// CredentialRepository persists the user supplied model API key
type CredentialRepository interface {
	LoadAPIKey(ctx context.Context) (string, error)
	SaveAPIKey(ctx context.Context, key string) error
}
