package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/bpmn-voice/domain/repositories"
	"github.com/satriahrh/bpmn-voice/internal/auth"
	"github.com/satriahrh/bpmn-voice/internal/tools"
	"github.com/satriahrh/bpmn-voice/internal/websocket"
	"github.com/satriahrh/bpmn-voice/usecase"
)

const claimsKey = "claims"

// Dependencies are the services the API exposes
type Dependencies struct {
	Workspace   *usecase.Workspace
	Voice       websocket.Controller
	Dispatcher  *tools.Dispatcher
	Credentials repositories.CredentialRepository
	Hub         *websocket.Hub
	// Issuer protects /api/v1 and /ws when it is enabled
	Issuer  *auth.Issuer
	Metrics http.Handler
}

type handler struct {
	Dependencies
	logger *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies, logger *zap.Logger) {
	h := &handler{Dependencies: deps, logger: logger}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "bpmn-voice",
		})
	})

	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Metrics))
	}

	e.POST("/api/v1/auth/token", h.issueToken)

	// API v1 routes
	v1 := e.Group("/api/v1", h.requireToken)

	v1.GET("/sessions", h.listSessions)
	v1.POST("/sessions", h.createSession)
	v1.GET("/sessions/:id", h.getSession)
	v1.PATCH("/sessions/:id", h.renameSession)
	v1.DELETE("/sessions/:id", h.deleteSession)
	v1.POST("/sessions/:id/activate", h.activateSession)
	v1.GET("/sessions/:id/messages", h.getMessages)

	v1.POST("/sessions/:id/versions", h.createVersion)
	v1.POST("/sessions/:id/versions/:versionId/restore", h.restoreVersion)
	v1.DELETE("/sessions/:id/versions/:versionId", h.deleteVersion)

	v1.GET("/diagram", h.getDiagram)
	v1.GET("/diagram/export", h.exportDiagram)
	v1.POST("/diagram/tools/:name", h.invokeTool)

	v1.GET("/voice/state", h.voiceState)
	v1.POST("/voice/connect", h.voiceConnect)
	v1.POST("/voice/disconnect", h.voiceDisconnect)
	v1.POST("/voice/listen/start", h.listenStart)
	v1.POST("/voice/listen/stop", h.listenStop)
	v1.POST("/voice/text", h.sendText)

	v1.PUT("/credentials/api-key", h.updateAPIKey)

	// WebSocket endpoint with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		return websocket.HandleWebSocket(h.Hub, c, logger)
	}, h.requireToken)
}

func (h *handler) issueToken(c echo.Context) error {
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Error("Failed to bind token request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if !h.Issuer.Enabled() {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "auth_disabled",
			Message: "Authentication is not configured",
		})
	}

	if req.ClientID == "" || req.AccessKey == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Client ID and access key are required",
		})
	}

	token, expiresAt, err := h.Issuer.GenerateClientToken(req.ClientID, req.AccessKey)
	if errors.Is(err, auth.ErrInvalidAccessKey) {
		h.logger.Warn("Client authentication failed", zap.String("client_id", req.ClientID))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid access key",
		})
	}
	if err != nil {
		h.logger.Error("Failed to generate client token",
			zap.String("client_id", req.ClientID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	h.logger.Info("Client authenticated successfully", zap.String("client_id", req.ClientID))
	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		ClientID:  req.ClientID,
	})
}

// requireToken validates the bearer token when authentication is enabled.
// WebSocket clients may pass the token as the "token" query parameter.
func (h *handler) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !h.Issuer.Enabled() {
			return next(c)
		}

		var token string
		authHeader := c.Request().Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
		if token == "" {
			token = c.QueryParam("token")
		}

		if token == "" {
			h.logger.Warn("Request rejected: missing token", zap.String("path", c.Path()))
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "missing_token",
				Message: "JWT token is required in Authorization header",
			})
		}

		claims, err := h.Issuer.ValidateToken(token)
		if err != nil {
			h.logger.Warn("Request rejected: invalid token", zap.Error(err))
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_token",
				Message: "Invalid or expired JWT token",
			})
		}

		c.Set(claimsKey, claims)
		return next(c)
	}
}

// fail maps service errors to HTTP responses
func (h *handler) fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, usecase.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "session_not_found", Message: err.Error()})
	case errors.Is(err, usecase.ErrVersionNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "version_not_found", Message: err.Error()})
	case errors.Is(err, usecase.ErrEmptyName):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_name", Message: err.Error()})
	default:
		h.logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "Internal server error"})
	}
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: message})
}
