package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/satriahrh/bpmn-voice/internal/diagram"
)

type recordingListener struct {
	mu       sync.Mutex
	diagrams []string
	sessions []string
}

func (l *recordingListener) DiagramChanged(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.diagrams = append(l.diagrams, id)
}

func (l *recordingListener) SessionChanged(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessions = append(l.sessions, id)
}

func (l *recordingListener) sessionEvents() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.sessions...)
}

func (l *recordingListener) diagramEvents() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.diagrams)
}

func newTestWorkspace(t *testing.T, quiet time.Duration) (*Workspace, *recordingListener) {
	t.Helper()
	w := NewWorkspace(newTestSessionService(t, nil), quiet, zap.NewNop())
	l := &recordingListener{}
	w.SetListener(l)
	t.Cleanup(func() { w.Close(context.Background()) })
	return w, l
}

func addTask(t *testing.T, w *Workspace, name string) string {
	t.Helper()
	id, err := w.Diagram().CreateElement(diagram.KindTask, name, nil)
	require.NoError(t, err)
	return id
}

func storedXML(w *Workspace, id string) string {
	session, _ := w.Sessions().Session(id)
	if session == nil {
		return ""
	}
	return session.DiagramXML
}

func TestWorkspace_BindsActiveSession(t *testing.T) {
	w, _ := newTestWorkspace(t, time.Hour)

	require.NotNil(t, w.Diagram())
	assert.Equal(t, w.Sessions().ActiveSessionID(), w.ActiveSessionID())
	_, ok := w.Diagram().Element("StartEvent_1")
	assert.True(t, ok)
}

func TestWorkspace_AutosaveAfterQuietPeriod(t *testing.T) {
	w, l := newTestWorkspace(t, 20*time.Millisecond)
	id := w.ActiveSessionID()

	addTask(t, w, "Check Stock")
	addTask(t, w, "Ship Order")
	assert.Equal(t, 2, l.diagramEvents())
	assert.NotContains(t, storedXML(w, id), "Check Stock", "save waits for the quiet period")

	assert.Eventually(t, func() bool {
		xml := storedXML(w, id)
		return strings.Contains(xml, "Check Stock") && strings.Contains(xml, "Ship Order")
	}, time.Second, 5*time.Millisecond)
}

func TestWorkspace_FlushSavesImmediately(t *testing.T) {
	w, _ := newTestWorkspace(t, time.Hour)
	id := w.ActiveSessionID()

	addTask(t, w, "Approve")
	w.Flush(context.Background())
	assert.Contains(t, storedXML(w, id), "Approve")
}

func TestWorkspace_SwitchSavesAndRebinds(t *testing.T) {
	ctx := context.Background()
	w, l := newTestWorkspace(t, time.Hour)
	first := w.ActiveSessionID()
	firstDiagram := w.Diagram()

	second := w.Create(ctx, "Second")
	assert.Equal(t, second.ID, w.ActiveSessionID())
	assert.NotSame(t, firstDiagram, w.Diagram())

	addTask(t, w, "Only In Second")
	require.NoError(t, w.Switch(ctx, first))

	assert.Contains(t, storedXML(w, second.ID), "Only In Second", "pending edits are saved before switching")
	assert.NotContains(t, storedXML(w, first), "Only In Second")
	assert.Equal(t, []string{second.ID, first}, l.sessionEvents())

	assert.ErrorIs(t, w.Switch(ctx, "missing"), ErrSessionNotFound)
	assert.Equal(t, first, w.ActiveSessionID())
}

func TestWorkspace_EditsOnStaleDiagramAreDropped(t *testing.T) {
	ctx := context.Background()
	w, _ := newTestWorkspace(t, 10*time.Millisecond)
	first := w.ActiveSessionID()
	stale := w.Diagram()

	second := w.Create(ctx, "Second")
	_, err := stale.CreateElement(diagram.KindTask, "Ghost", nil)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.NotContains(t, storedXML(w, first), "Ghost")
	assert.NotContains(t, storedXML(w, second.ID), "Ghost")
}

func TestWorkspace_SnapshotAndRestore(t *testing.T) {
	ctx := context.Background()
	w, _ := newTestWorkspace(t, time.Hour)
	id := w.ActiveSessionID()

	addTask(t, w, "Draft")
	version, created, err := w.Snapshot(ctx, "draft")
	require.NoError(t, err)
	require.True(t, created)
	assert.Contains(t, version.DiagramXML, "Draft")

	_, created, err = w.Snapshot(ctx, "again")
	require.NoError(t, err)
	assert.False(t, created)

	taskID, ok := w.Diagram().FindElementByName("Draft")
	require.True(t, ok)
	require.True(t, w.Diagram().DeleteElement(taskID))

	require.NoError(t, w.Restore(ctx, version.ID))
	_, ok = w.Diagram().FindElementByName("Draft")
	assert.True(t, ok)
	assert.Equal(t, version.DiagramXML, storedXML(w, id))

	assert.ErrorIs(t, w.Restore(ctx, "missing"), ErrVersionNotFound)
}

func TestWorkspace_SessionScopedVersions(t *testing.T) {
	ctx := context.Background()
	w, l := newTestWorkspace(t, time.Hour)
	first := w.ActiveSessionID()
	addTask(t, w, "Kept")

	second := w.Create(ctx, "Second")
	addTask(t, w, "Other")

	version, created, err := w.SnapshotSession(ctx, first, "first draft")
	require.NoError(t, err)
	require.True(t, created)
	assert.Contains(t, version.DiagramXML, "Kept")
	assert.NotContains(t, version.DiagramXML, "Other")

	stored, _ := w.Sessions().Session(second.ID)
	assert.Empty(t, stored.Versions, "the active session is left alone")

	active, created, err := w.SnapshotSession(ctx, second.ID, "second draft")
	require.NoError(t, err)
	require.True(t, created)
	assert.Contains(t, active.DiagramXML, "Other", "pending edits are saved first")

	require.NoError(t, w.RestoreSession(ctx, first, version.ID))
	assert.Equal(t, second.ID, w.ActiveSessionID())
	_, ok := w.Diagram().FindElementByName("Other")
	assert.True(t, ok, "restoring another session keeps the live diagram")
	assert.Contains(t, l.sessionEvents(), first)

	_, _, err = w.SnapshotSession(ctx, "missing", "x")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, w.RestoreSession(ctx, "missing", version.ID), ErrSessionNotFound)
}

func TestWorkspace_DeleteActiveRebinds(t *testing.T) {
	ctx := context.Background()
	w, _ := newTestWorkspace(t, time.Hour)
	first := w.ActiveSessionID()
	second := w.Create(ctx, "Second")

	require.NoError(t, w.Delete(ctx, second.ID))
	assert.Equal(t, first, w.ActiveSessionID())

	require.NoError(t, w.Delete(ctx, first))
	assert.NotEqual(t, first, w.ActiveSessionID())
	assert.NotEmpty(t, w.ActiveSessionID())
	assert.NotNil(t, w.Diagram())
}

func TestWorkspace_RenameActiveAndMessages(t *testing.T) {
	w, l := newTestWorkspace(t, time.Hour)
	id := w.ActiveSessionID()

	require.NoError(t, w.RenameActive("Order Flow"))
	assert.ErrorIs(t, w.RenameActive("  "), ErrEmptyName)
	require.NoError(t, w.RecordMessage(context.Background(), "user", "add a task"))

	session, _ := w.Sessions().Session(id)
	assert.Equal(t, "Order Flow", session.Name)
	require.Len(t, session.Messages, 1)
	assert.Equal(t, "add a task", session.Messages[0].Content)
	assert.Equal(t, []string{id}, l.sessionEvents())
}

func TestWorkspace_CorruptDiagramFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService(t, nil)
	id := svc.ActiveSessionID()
	require.NoError(t, svc.UpdateSessionDiagram(ctx, id, "<not-bpmn"))

	w := NewWorkspace(svc, time.Hour, zap.NewNop())
	defer w.Close(ctx)

	_, ok := w.Diagram().Element("StartEvent_1")
	assert.True(t, ok)
}
