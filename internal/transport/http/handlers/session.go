package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/transport/http/middleware"
)

// SessionHandler exposes endpoints for listing and revoking the caller's sessions.
type SessionHandler struct {
	auth LifecycleService
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(auth LifecycleService) *SessionHandler {
	return &SessionHandler{auth: auth}
}

// RegisterRoutes binds REST session management routes to the provided router group.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.Use(middleware.RequireAuth(h.auth))
	r.GET("", h.ListSessions)
	r.DELETE("/:session_id", h.RevokeSession)
}

// ListSessions godoc
// @Summary List sessions for authenticated user
// @Description Returns every active session of the caller, marking the current one.
// @Tags Sessions
// @Security Bearer
// @Produce json
// @Success 200 {object} SessionListResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	views, err := h.auth.ListSessions(c.Request.Context(), claims)
	if err != nil {
		respondLifecycleError(c, err, "failed to list sessions")
		return
	}

	response := make([]SessionPayload, 0, len(views))
	for _, view := range views {
		response = append(response, newSessionPayload(view))
	}

	c.JSON(http.StatusOK, SessionListResponse{Sessions: response, Total: len(response)})
}

// RevokeSession godoc
// @Summary Revoke a specific session
// @Description Revokes another session owned by the caller. The current session must use logout.
// @Tags Sessions
// @Security Bearer
// @Produce json
// @Param session_id path string true "Session identifier"
// @Success 200 {object} SessionRevokeResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{session_id} [delete]
func (h *SessionHandler) RevokeSession(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	sessionID := strings.TrimSpace(c.Param("session_id"))
	if err := h.auth.RevokeSession(c.Request.Context(), claims, sessionID); err != nil {
		respondLifecycleError(c, err, "failed to revoke session")
		return
	}

	c.JSON(http.StatusOK, SessionRevokeResponse{Revoked: true})
}
