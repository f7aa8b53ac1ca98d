package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/satriahrh/bpmn-voice/adapters"
	"github.com/satriahrh/bpmn-voice/domain/repositories"
	"github.com/satriahrh/bpmn-voice/internal/auth"
	"github.com/satriahrh/bpmn-voice/internal/metrics"
	"github.com/satriahrh/bpmn-voice/internal/tools"
	"github.com/satriahrh/bpmn-voice/internal/websocket"
	"github.com/satriahrh/bpmn-voice/usecase"
)

type stubVoice struct {
	state     usecase.ConnectionState
	listening bool
	texts     []string
	ok        bool
}

func (s *stubVoice) Connect()    { s.state = usecase.StateConnected }
func (s *stubVoice) Disconnect() { s.state, s.listening = usecase.StateDisconnected, false }
func (s *stubVoice) StartListening(context.Context) bool {
	s.listening = s.ok
	return s.ok
}
func (s *stubVoice) StopListening() { s.listening = false }
func (s *stubVoice) SendText(_ context.Context, text string) bool {
	s.texts = append(s.texts, text)
	return s.ok
}
func (s *stubVoice) SendAudioFrame(repositories.AudioFrame) bool { return false }
func (s *stubVoice) State() usecase.ConnectionState              { return s.state }
func (s *stubVoice) Listening() bool                             { return s.listening }

type testServer struct {
	e         *echo.Echo
	workspace *usecase.Workspace
	voice     *stubVoice
	repo      *adapters.MemorySessionRepository
}

func newTestServer(t *testing.T, issuer *auth.Issuer) *testServer {
	t.Helper()
	logger := zap.NewNop()
	m := metrics.NewNop()
	repo := adapters.NewMemorySessionRepository()

	sessions := usecase.NewSessionService(context.Background(), repo, logger, m)
	workspace := usecase.NewWorkspace(sessions, time.Hour, logger)
	t.Cleanup(func() { workspace.Close(context.Background()) })

	voice := &stubVoice{state: usecase.StateDisconnected, ok: true}
	e := echo.New()
	InitRoutes(e, Dependencies{
		Workspace:   workspace,
		Voice:       voice,
		Dispatcher:  tools.NewDispatcher(workspace, workspace, logger, m),
		Credentials: repo,
		Hub:         websocket.NewHub(voice, logger),
		Issuer:      issuer,
		Metrics:     http.NotFoundHandler(),
	}, logger)

	return &testServer{e: e, workspace: workspace, voice: voice, repo: repo}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestSessionsCRUD(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[SessionsResponse](t, rec)
	require.Len(t, list.Sessions, 1)
	first := list.Sessions[0].ID
	assert.True(t, list.Sessions[0].Active)

	rec = s.do(t, http.MethodPost, "/api/v1/sessions", `{"name":"Orders"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[map[string]any](t, rec)
	id := created["id"].(string)
	assert.Equal(t, "Orders", created["name"])
	assert.Equal(t, id, s.workspace.ActiveSessionID())

	rec = s.do(t, http.MethodPatch, "/api/v1/sessions/"+id, `{"name":"Invoices"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodPatch, "/api/v1/sessions/"+id, `{"name":" "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/sessions/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Invoices", decode[map[string]any](t, rec)["name"])

	rec = s.do(t, http.MethodPost, "/api/v1/sessions/"+first+"/activate", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, first, s.workspace.ActiveSessionID())

	rec = s.do(t, http.MethodDelete, "/api/v1/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session_not_found", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/api/v1/sessions/missing/activate", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestToolInvocationAndVersions(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.workspace.ActiveSessionID()

	rec := s.do(t, http.MethodPost, "/api/v1/diagram/tools/createElement", `{"args":{"type":"task","name":"Pick Items"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[map[string]any](t, rec)
	assert.Equal(t, true, result["success"])

	rec = s.do(t, http.MethodPost, "/api/v1/diagram/tools/launch", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["success"])

	rec = s.do(t, http.MethodGet, "/api/v1/diagram", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Pick Items")

	rec = s.do(t, http.MethodGet, "/api/v1/diagram/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "application/xml")
	assert.Contains(t, rec.Body.String(), `name="Pick Items"`)

	rec = s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/versions", `{"label":"first"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	version := decode[VersionResponse](t, rec)
	assert.True(t, version.Created)
	assert.Equal(t, "first", version.Version.Label)

	rec = s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/versions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[VersionResponse](t, rec).Created)

	rec = s.do(t, http.MethodPost, "/api/v1/diagram/tools/deleteElement", `{"args":{"elementId":"StartEvent_1"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	_, ok := s.workspace.Diagram().Element("StartEvent_1")
	require.False(t, ok)

	rec = s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/versions/"+version.Version.ID+"/restore", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok = s.workspace.Diagram().Element("StartEvent_1")
	assert.True(t, ok)

	rec = s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/versions/nope/restore", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "version_not_found", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodDelete, "/api/v1/sessions/"+id+"/versions/"+version.Version.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestVoiceEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/v1/voice/connect", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "connected", decode[VoiceStateResponse](t, rec).State)

	rec = s.do(t, http.MethodPost, "/api/v1/voice/listen/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[VoiceStateResponse](t, rec).Listening)

	rec = s.do(t, http.MethodPost, "/api/v1/voice/text", `{"text":"add a task"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"add a task"}, s.voice.texts)

	rec = s.do(t, http.MethodPost, "/api/v1/voice/text", `{"text":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.voice.ok = false
	rec = s.do(t, http.MethodPost, "/api/v1/voice/text", `{"text":"hello"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/voice/disconnect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[VoiceStateResponse](t, rec)
	assert.Equal(t, "disconnected", state.State)
	assert.False(t, state.Listening)
}

func TestUpdateAPIKey(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPut, "/api/v1/credentials/api-key", `{"api_key":" new-key "}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	key, err := s.repo.LoadAPIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new-key", key)

	rec = s.do(t, http.MethodPut, "/api/v1/credentials/api-key", `{"api_key":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthentication(t *testing.T) {
	issuer, err := auth.NewIssuer("secret", "open-sesame", time.Hour)
	require.NoError(t, err)
	s := newTestServer(t, issuer)

	rec := s.do(t, http.MethodGet, "/api/v1/sessions", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_token", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodGet, "/api/v1/sessions", "", "Authorization", "Bearer forged")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/token", `{"client_id":"browser","access_key":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/token", `{"client_id":"browser"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/token", `{"client_id":"browser","access_key":"open-sesame"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	token := decode[TokenResponse](t, rec)
	assert.Equal(t, "browser", token.ClientID)

	rec = s.do(t, http.MethodGet, "/api/v1/sessions", "", "Authorization", "Bearer "+token.Token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/voice/state?token="+token.Token, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// health stays open
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", "").Code)
}

func TestTokenEndpointWithoutAuth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodPost, "/api/v1/auth/token", `{"client_id":"browser","access_key":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
