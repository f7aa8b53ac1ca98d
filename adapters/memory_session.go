package adapters

import (
	"context"
	"sync"

	"github.com/satriahrh/bpmn-voice/domain/entities"
	"github.com/satriahrh/bpmn-voice/domain/repositories"
)

// MemorySessionRepository keeps every record in process memory. It backs
// the "memory" store and the tests; nothing survives a restart.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions []*entities.Session
	values   map[string]string
	hasSet   bool
}

var (
	_ repositories.SessionRepository    = (*MemorySessionRepository)(nil)
	_ repositories.CredentialRepository = (*MemorySessionRepository)(nil)
)

// NewMemorySessionRepository creates a new in-memory session repository
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		values: make(map[string]string),
	}
}

// LoadSessions implements repositories.SessionRepository
func (m *MemorySessionRepository) LoadSessions(ctx context.Context) ([]*entities.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.hasSet {
		return nil, repositories.ErrRecordNotFound
	}
	return cloneSessions(m.sessions), nil
}

// SaveSessions implements repositories.SessionRepository
func (m *MemorySessionRepository) SaveSessions(ctx context.Context, sessions []*entities.Session) error {
	for _, s := range sessions {
		if err := s.Validate(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions = cloneSessions(sessions)
	m.hasSet = true
	return nil
}

// LoadActiveSessionID implements repositories.SessionRepository
func (m *MemorySessionRepository) LoadActiveSessionID(ctx context.Context) (string, error) {
	return m.load(repositories.ActiveSessionKey)
}

// SaveActiveSessionID implements repositories.SessionRepository
func (m *MemorySessionRepository) SaveActiveSessionID(ctx context.Context, id string) error {
	m.save(repositories.ActiveSessionKey, id)
	return nil
}

// LoadAPIKey implements repositories.CredentialRepository
func (m *MemorySessionRepository) LoadAPIKey(ctx context.Context) (string, error) {
	return m.load(repositories.APIKeyKey)
}

// SaveAPIKey implements repositories.CredentialRepository
func (m *MemorySessionRepository) SaveAPIKey(ctx context.Context, key string) error {
	m.save(repositories.APIKeyKey, key)
	return nil
}

func (m *MemorySessionRepository) load(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return "", repositories.ErrRecordNotFound
	}
	return v, nil
}

func (m *MemorySessionRepository) save(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

func cloneSessions(sessions []*entities.Session) []*entities.Session {
	out := make([]*entities.Session, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Clone())
	}
	return out
}
