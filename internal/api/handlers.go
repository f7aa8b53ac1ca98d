package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/satriahrh/bpmn-voice/domain/repositories"
	"github.com/satriahrh/bpmn-voice/usecase"
)

func (h *handler) listSessions(c echo.Context) error {
	sessions := h.Workspace.Sessions()
	activeID := h.Workspace.ActiveSessionID()

	resp := SessionsResponse{
		ActiveSessionID: activeID,
		Sessions:        make([]SessionSummary, 0),
	}
	for _, session := range sessions.Sessions() {
		resp.Sessions = append(resp.Sessions, summarize(session, activeID))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *handler) createSession(c echo.Context) error {
	var req NameRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	session := h.Workspace.Create(c.Request().Context(), req.Name)
	return c.JSON(http.StatusCreated, session)
}

func (h *handler) getSession(c echo.Context) error {
	id := c.Param("id")
	if id == h.Workspace.ActiveSessionID() {
		h.Workspace.Flush(c.Request().Context())
	}

	session, ok := h.Workspace.Sessions().Session(id)
	if !ok {
		return h.fail(c, usecase.ErrSessionNotFound)
	}
	return c.JSON(http.StatusOK, session)
}

func (h *handler) renameSession(c echo.Context) error {
	var req NameRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	if err := h.Workspace.Rename(c.Request().Context(), c.Param("id"), req.Name); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) deleteSession(c echo.Context) error {
	if err := h.Workspace.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) activateSession(c echo.Context) error {
	if err := h.Workspace.Switch(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) getMessages(c echo.Context) error {
	session, ok := h.Workspace.Sessions().Session(c.Param("id"))
	if !ok {
		return h.fail(c, usecase.ErrSessionNotFound)
	}
	return c.JSON(http.StatusOK, session.Messages)
}

func (h *handler) createVersion(c echo.Context) error {
	var req VersionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	ctx := c.Request().Context()
	id := c.Param("id")

	version, created, err := h.Workspace.SnapshotSession(ctx, id, req.Label)
	if err != nil {
		return h.fail(c, err)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, VersionResponse{Version: version, Created: created})
}

func (h *handler) restoreVersion(c echo.Context) error {
	ctx := c.Request().Context()
	id, versionID := c.Param("id"), c.Param("versionId")

	if err := h.Workspace.RestoreSession(ctx, id, versionID); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) deleteVersion(c echo.Context) error {
	err := h.Workspace.Sessions().DeleteVersion(c.Request().Context(), c.Param("id"), c.Param("versionId"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) getDiagram(c echo.Context) error {
	d := h.Workspace.Diagram()
	if d == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "no_diagram", Message: "No diagram is loaded"})
	}
	return c.JSON(http.StatusOK, d.State())
}

func (h *handler) exportDiagram(c echo.Context) error {
	d := h.Workspace.Diagram()
	if d == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "no_diagram", Message: "No diagram is loaded"})
	}

	xml, err := d.Export()
	if err != nil {
		return h.fail(c, err)
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationXMLCharsetUTF8, []byte(xml))
}

func (h *handler) invokeTool(c echo.Context) error {
	var req ToolRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	result := h.Dispatcher.Dispatch(c.Request().Context(), repositories.FunctionCall{
		ID:   "api-" + uuid.NewString(),
		Name: c.Param("name"),
		Args: req.Args,
	})
	return c.JSON(http.StatusOK, result.Response)
}

func (h *handler) voiceState(c echo.Context) error {
	return c.JSON(http.StatusOK, h.currentVoiceState())
}

func (h *handler) voiceConnect(c echo.Context) error {
	h.Voice.Connect()
	return c.JSON(http.StatusAccepted, h.currentVoiceState())
}

func (h *handler) voiceDisconnect(c echo.Context) error {
	h.Voice.Disconnect()
	return c.JSON(http.StatusOK, h.currentVoiceState())
}

func (h *handler) listenStart(c echo.Context) error {
	if !h.Voice.StartListening(c.Request().Context()) {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "not_connected",
			Message: "Could not start listening",
		})
	}
	return c.JSON(http.StatusOK, h.currentVoiceState())
}

func (h *handler) listenStop(c echo.Context) error {
	h.Voice.StopListening()
	return c.JSON(http.StatusOK, h.currentVoiceState())
}

func (h *handler) sendText(c echo.Context) error {
	var req TextRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	if strings.TrimSpace(req.Text) == "" {
		return badRequest(c, "Text is required")
	}

	if !h.Voice.SendText(c.Request().Context(), req.Text) {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "not_connected",
			Message: "Message could not be sent",
		})
	}
	return c.JSON(http.StatusAccepted, h.currentVoiceState())
}

func (h *handler) updateAPIKey(c echo.Context) error {
	var req APIKeyRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		return badRequest(c, "API key is required")
	}

	if err := h.Credentials.SaveAPIKey(c.Request().Context(), key); err != nil {
		return h.fail(c, err)
	}
	h.logger.Info("API key updated")
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) currentVoiceState() VoiceStateResponse {
	return VoiceStateResponse{
		State:     string(h.Voice.State()),
		Listening: h.Voice.Listening(),
	}
}

