package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/bpmn-voice/domain/entities"
	"github.com/satriahrh/bpmn-voice/domain/repositories"
	"github.com/satriahrh/bpmn-voice/internal/diagram"
	"github.com/satriahrh/bpmn-voice/internal/metrics"
)

var (
	// ErrSessionNotFound is returned for an unknown session id
	ErrSessionNotFound = errors.New("session not found")
	// ErrVersionNotFound is returned for an unknown version id
	ErrVersionNotFound = errors.New("version not found")
	// ErrEmptyName is returned when renaming to a blank name
	ErrEmptyName = errors.New("name must not be empty")
)

// SessionService owns the persisted session set. Every mutating call writes
// the full set and the active id through the repository before returning.
// Write failures are logged and counted; the in-memory state stays authoritative.
type SessionService struct {
	repo    repositories.SessionRepository
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.RWMutex
	sessions []*entities.Session
	activeID string
}

// NewSessionService creates a new session service and loads the stored set.
// An empty or unreadable store starts with a single default session.
func NewSessionService(ctx context.Context, repo repositories.SessionRepository, logger *zap.Logger, m *metrics.Metrics) *SessionService {
	s := &SessionService{
		repo:    repo,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
	s.load(ctx)
	return s
}

func (s *SessionService) load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.repo.LoadSessions(ctx)
	if err != nil && !errors.Is(err, repositories.ErrRecordNotFound) {
		s.logger.Error("Failed to load sessions, starting fresh", zap.Error(err))
		s.metrics.PersistFailed()
	}

	for _, session := range sessions {
		if session == nil || session.Validate() != nil {
			s.logger.Warn("Skipping invalid stored session")
			continue
		}
		s.sessions = append(s.sessions, session)
	}

	activeID, err := s.repo.LoadActiveSessionID(ctx)
	if err != nil && !errors.Is(err, repositories.ErrRecordNotFound) {
		s.logger.Warn("Failed to load active session id", zap.Error(err))
	}

	if len(s.sessions) == 0 {
		session := entities.NewSession(entities.DefaultSessionName, diagram.InitialXML())
		s.sessions = []*entities.Session{session}
		s.activeID = session.ID
		s.logger.Info("Created default session", zap.String("sessionID", session.ID))
		s.persistLocked(ctx)
		return
	}

	if s.indexLocked(activeID) < 0 {
		activeID = s.sessions[0].ID
	}
	s.activeID = activeID

	s.logger.Info("Sessions loaded",
		zap.Int("count", len(s.sessions)),
		zap.String("activeSessionID", s.activeID))
}

// CreateSession inserts a new session at the front of the list and makes it
// active. A blank name gets a date based default.
func (s *SessionService) CreateSession(ctx context.Context, name string) *entities.Session {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Diagram " + s.now().Format("Jan 2, 03:04 PM")
	}

	session := entities.NewSession(name, diagram.InitialXML())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = append([]*entities.Session{session}, s.sessions...)
	s.activeID = session.ID
	s.persistLocked(ctx)

	s.logger.Info("Session created", zap.String("sessionID", session.ID), zap.String("name", name))
	return session.Clone()
}

// DeleteSession removes a session. Deleting the active session activates the
// first remaining one; deleting the last session recreates a default one.
func (s *SessionService) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return ErrSessionNotFound
	}

	s.sessions = append(s.sessions[:idx:idx], s.sessions[idx+1:]...)

	if len(s.sessions) == 0 {
		session := entities.NewSession(entities.DefaultSessionName, diagram.InitialXML())
		s.sessions = []*entities.Session{session}
		s.activeID = session.ID
	} else if s.activeID == id {
		s.activeID = s.sessions[0].ID
	}

	s.persistLocked(ctx)
	s.logger.Info("Session deleted", zap.String("sessionID", id), zap.String("activeSessionID", s.activeID))
	return nil
}

// RenameSession changes the name of a session
func (s *SessionService) RenameSession(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	return s.mutate(ctx, id, func(session *entities.Session) error {
		session.Name = name
		session.Touch()
		return nil
	})
}

// UpdateSessionDiagram replaces the serialized diagram of a session
func (s *SessionService) UpdateSessionDiagram(ctx context.Context, id, diagramXML string) error {
	return s.mutate(ctx, id, func(session *entities.Session) error {
		session.DiagramXML = diagramXML
		session.Touch()
		return nil
	})
}

// UpdateSessionMessages replaces the message history of a session
func (s *SessionService) UpdateSessionMessages(ctx context.Context, id string, messages []entities.Message) error {
	return s.mutate(ctx, id, func(session *entities.Session) error {
		session.Messages = append(make([]entities.Message, 0, len(messages)), messages...)
		session.Touch()
		return nil
	})
}

// AppendMessage adds one message to the history of a session
func (s *SessionService) AppendMessage(ctx context.Context, id string, message entities.Message) error {
	return s.mutate(ctx, id, func(session *entities.Session) error {
		session.AddMessage(message)
		return nil
	})
}

// CreateVersion snapshots the current diagram of a session. It reports false
// and returns the latest version when the diagram has not changed since.
func (s *SessionService) CreateVersion(ctx context.Context, id, label string) (entities.Version, bool, error) {
	var (
		version entities.Version
		created bool
	)
	err := s.mutate(ctx, id, func(session *entities.Session) error {
		version, created = session.AddVersion(strings.TrimSpace(label))
		if !created {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return version, false, nil
	}
	return version, created, err
}

// RestoreVersion copies a version's diagram into the session and returns it.
// Messages and versions are left untouched.
func (s *SessionService) RestoreVersion(ctx context.Context, id, versionID string) (string, error) {
	var restored string
	err := s.mutate(ctx, id, func(session *entities.Session) error {
		version, ok := session.FindVersion(versionID)
		if !ok {
			return ErrVersionNotFound
		}
		session.DiagramXML = version.DiagramXML
		session.Touch()
		restored = version.DiagramXML
		return nil
	})
	return restored, err
}

// DeleteVersion removes a version from a session
func (s *SessionService) DeleteVersion(ctx context.Context, id, versionID string) error {
	return s.mutate(ctx, id, func(session *entities.Session) error {
		if !session.RemoveVersion(versionID) {
			return ErrVersionNotFound
		}
		session.Touch()
		return nil
	})
}

// SwitchSession makes id the active session. Unknown ids are ignored and
// reported as false.
func (s *SessionService) SwitchSession(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(id) < 0 {
		return false
	}
	if s.activeID == id {
		return true
	}
	s.activeID = id
	s.persistLocked(ctx)
	return true
}

// Sessions returns a copy of every session, most recent first
func (s *SessionService) Sessions() []*entities.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entities.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.Clone())
	}
	return out
}

// Session returns a copy of one session
func (s *SessionService) Session(id string) (*entities.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return nil, false
	}
	return s.sessions[idx].Clone(), true
}

// ActiveSession returns a copy of the active session
func (s *SessionService) ActiveSession() *entities.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexLocked(s.activeID)
	if idx < 0 {
		return nil
	}
	return s.sessions[idx].Clone()
}

// ActiveSessionID returns the id of the active session
func (s *SessionService) ActiveSessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

var errUnchanged = errors.New("unchanged")

// mutate applies fn to the session with the given id and persists the set
// unless fn fails.
func (s *SessionService) mutate(ctx context.Context, id string, fn func(*entities.Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return ErrSessionNotFound
	}
	if err := fn(s.sessions[idx]); err != nil {
		return err
	}
	s.persistLocked(ctx)
	return nil
}

func (s *SessionService) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, session := range s.sessions {
		if session.ID == id {
			return i
		}
	}
	return -1
}

func (s *SessionService) persistLocked(ctx context.Context) {
	if err := s.repo.SaveSessions(ctx, s.sessions); err != nil {
		s.logger.Error("Failed to persist sessions", zap.Error(err))
		s.metrics.PersistFailed()
	}
	if err := s.repo.SaveActiveSessionID(ctx, s.activeID); err != nil {
		s.logger.Error("Failed to persist active session id", zap.Error(err))
		s.metrics.PersistFailed()
	}
}
