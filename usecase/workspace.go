package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/bpmn-voice/domain/entities"
	"github.com/satriahrh/bpmn-voice/internal/diagram"
)

// DefaultAutosaveQuiet is the quiet period after the last diagram change
// before the active session is saved.
const DefaultAutosaveQuiet = time.Second

// WorkspaceListener is notified about changes to the active session
type WorkspaceListener interface {
	// DiagramChanged fires after every mutation of the live diagram
	DiagramChanged(sessionID string)
	// SessionChanged fires after the active session was switched, created,
	// deleted, renamed or restored
	SessionChanged(sessionID string)
}

// Workspace binds the active session to a live diagram. Readers always go
// through Diagram() so tool calls act on whatever session is active at the
// moment they run.
type Workspace struct {
	sessions *SessionService
	logger   *zap.Logger
	quiet    time.Duration

	current atomic.Pointer[diagram.Diagram]

	mu          sync.Mutex
	activeID    string
	binding     uint64
	unsubscribe func()
	timer       *time.Timer
	pending     bool
	listener    WorkspaceListener
}

// NewWorkspace creates a new workspace bound to the active session
func NewWorkspace(sessions *SessionService, quiet time.Duration, logger *zap.Logger) *Workspace {
	if quiet <= 0 {
		quiet = DefaultAutosaveQuiet
	}
	w := &Workspace{
		sessions: sessions,
		logger:   logger,
		quiet:    quiet,
	}

	w.mu.Lock()
	w.bindLocked(sessions.ActiveSession())
	w.mu.Unlock()
	return w
}

// SetListener registers the change listener. It must be called before the
// workspace is shared.
func (w *Workspace) SetListener(l WorkspaceListener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listener = l
}

// Diagram returns the live diagram of the active session
func (w *Workspace) Diagram() *diagram.Diagram {
	return w.current.Load()
}

// ActiveSessionID returns the id of the session bound to the live diagram
func (w *Workspace) ActiveSessionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeID
}

// Sessions exposes the underlying session store
func (w *Workspace) Sessions() *SessionService {
	return w.sessions
}

// Switch activates another session. Pending edits of the current session are
// saved first.
func (w *Workspace) Switch(ctx context.Context, id string) error {
	w.mu.Lock()
	if id == w.activeID {
		w.mu.Unlock()
		return nil
	}
	w.flushLocked(ctx)
	if !w.sessions.SwitchSession(ctx, id) {
		w.mu.Unlock()
		return ErrSessionNotFound
	}
	session, _ := w.sessions.Session(id)
	w.bindLocked(session)
	listener := w.listener
	w.mu.Unlock()

	w.notifySession(listener, id)
	return nil
}

// Create adds a new session and activates it
func (w *Workspace) Create(ctx context.Context, name string) *entities.Session {
	w.mu.Lock()
	w.flushLocked(ctx)
	session := w.sessions.CreateSession(ctx, name)
	w.bindLocked(session)
	listener := w.listener
	w.mu.Unlock()

	w.notifySession(listener, session.ID)
	return session
}

// Delete removes a session. When the active session is removed, the session
// the store activates in its place is bound.
func (w *Workspace) Delete(ctx context.Context, id string) error {
	w.mu.Lock()
	if id == w.activeID {
		w.cancelSaveLocked()
	}
	if err := w.sessions.DeleteSession(ctx, id); err != nil {
		w.mu.Unlock()
		return err
	}

	activeID := w.sessions.ActiveSessionID()
	if activeID != w.activeID {
		w.bindLocked(w.sessions.ActiveSession())
	}
	listener := w.listener
	w.mu.Unlock()

	w.notifySession(listener, activeID)
	return nil
}

// Rename renames any session
func (w *Workspace) Rename(ctx context.Context, id, name string) error {
	if err := w.sessions.RenameSession(ctx, id, name); err != nil {
		return err
	}

	w.mu.Lock()
	listener := w.listener
	w.mu.Unlock()

	w.notifySession(listener, id)
	return nil
}

// RenameActive renames the active session
func (w *Workspace) RenameActive(title string) error {
	return w.Rename(context.Background(), w.ActiveSessionID(), title)
}

// Restore replaces the active diagram with a stored version
func (w *Workspace) Restore(ctx context.Context, versionID string) error {
	w.mu.Lock()
	return w.restoreLocked(ctx, w.activeID, versionID)
}

// RestoreSession restores a version of any session. The live diagram is
// rebound only when id is the active session at the time of the call.
func (w *Workspace) RestoreSession(ctx context.Context, id, versionID string) error {
	w.mu.Lock()
	return w.restoreLocked(ctx, id, versionID)
}

// restoreLocked releases w.mu before notifying
func (w *Workspace) restoreLocked(ctx context.Context, id, versionID string) error {
	active := id == w.activeID
	if active {
		w.cancelSaveLocked()
	}
	if _, err := w.sessions.RestoreVersion(ctx, id, versionID); err != nil {
		w.mu.Unlock()
		return err
	}
	if active {
		session, _ := w.sessions.Session(id)
		w.bindLocked(session)
	}
	listener := w.listener
	w.mu.Unlock()

	w.notifySession(listener, id)
	return nil
}

// Snapshot saves pending edits and records a version of the active session
func (w *Workspace) Snapshot(ctx context.Context, label string) (entities.Version, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.flushLocked(ctx)
	return w.sessions.CreateVersion(ctx, w.activeID, label)
}

// SnapshotSession records a version of any session. Pending edits are saved
// first when id is the active session.
func (w *Workspace) SnapshotSession(ctx context.Context, id, label string) (entities.Version, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if id == w.activeID {
		w.flushLocked(ctx)
	}
	return w.sessions.CreateVersion(ctx, id, label)
}

// RecordMessage appends a finalized message to the active session
func (w *Workspace) RecordMessage(ctx context.Context, role entities.MessageRole, text string) error {
	return w.sessions.AppendMessage(ctx, w.ActiveSessionID(), entities.NewMessage(role, text))
}

// Flush writes pending diagram edits immediately
func (w *Workspace) Flush(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushLocked(ctx)
}

// Close flushes pending edits and detaches from the live diagram
func (w *Workspace) Close(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.flushLocked(ctx)
	if w.unsubscribe != nil {
		w.unsubscribe()
		w.unsubscribe = nil
	}
	w.binding++
}

// bindLocked imports session into a fresh live diagram and subscribes to its
// changes. Any save scheduled for the previous binding is dropped.
func (w *Workspace) bindLocked(session *entities.Session) {
	w.cancelSaveLocked()
	if w.unsubscribe != nil {
		w.unsubscribe()
		w.unsubscribe = nil
	}
	w.binding++

	if session == nil {
		w.activeID = ""
		w.current.Store(nil)
		return
	}

	d, err := diagram.Import(session.DiagramXML)
	if err != nil {
		w.logger.Warn("Failed to import session diagram, starting from default",
			zap.String("sessionID", session.ID),
			zap.Error(err))
		d = diagram.NewDefault()
	}

	binding := w.binding
	sessionID := session.ID
	w.activeID = sessionID
	w.current.Store(d)
	w.unsubscribe = d.OnChange(func() {
		w.scheduleSave(binding, sessionID)
	})

	w.logger.Debug("Workspace bound", zap.String("sessionID", sessionID))
}

func (w *Workspace) scheduleSave(binding uint64, sessionID string) {
	w.mu.Lock()
	if binding != w.binding {
		w.mu.Unlock()
		return
	}
	w.pending = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.quiet, func() {
		w.saveIfCurrent(binding, sessionID)
	})
	listener := w.listener
	w.mu.Unlock()

	if listener != nil {
		listener.DiagramChanged(sessionID)
	}
}

func (w *Workspace) saveIfCurrent(binding uint64, sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.pending {
		return
	}
	if binding != w.binding || sessionID != w.activeID {
		w.logger.Debug("Dropping autosave for inactive session", zap.String("sessionID", sessionID))
		return
	}
	w.saveLocked(context.Background())
}

func (w *Workspace) flushLocked(ctx context.Context) {
	if !w.pending {
		return
	}
	w.saveLocked(ctx)
}

func (w *Workspace) saveLocked(ctx context.Context) {
	w.cancelSaveLocked()

	d := w.current.Load()
	if d == nil || w.activeID == "" {
		return
	}

	xml, err := d.Export()
	if err != nil {
		w.logger.Error("Failed to export diagram for autosave", zap.Error(err))
		return
	}
	if err := w.sessions.UpdateSessionDiagram(ctx, w.activeID, xml); err != nil {
		w.logger.Warn("Failed to save diagram", zap.String("sessionID", w.activeID), zap.Error(err))
	}
}

func (w *Workspace) cancelSaveLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.pending = false
}

func (w *Workspace) notifySession(listener WorkspaceListener, sessionID string) {
	if listener != nil {
		listener.SessionChanged(sessionID)
	}
}
