package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/usecase"
)

// TokenHandler exposes token introspection for resource servers.
type TokenHandler struct {
	auth LifecycleService
}

func NewTokenHandler(auth LifecycleService) *TokenHandler {
	return &TokenHandler{auth: auth}
}

// RegisterRoutes binds token endpoints.
func (h *TokenHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/validate", h.Validate)
}

// Validate godoc
// @Summary Validate a token
// @Description Checks signature, expiry, blacklist and token version. Rejections are reported in the body.
// @Tags Tokens
// @Accept json
// @Produce json
// @Param request body TokenValidateRequest true "Token to validate"
// @Success 200 {object} TokenValidateResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/tokens/validate [post]
func (h *TokenHandler) Validate(c *gin.Context) {
	var req TokenValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token is required"))
		return
	}

	result := h.auth.Validate(c.Request.Context(), req.Token)
	switch {
	case result.Valid:
		payload := result.Payload
		c.JSON(http.StatusOK, TokenValidateResponse{Valid: true, Payload: &payload})
	case errors.Is(result.Err, usecase.ErrRevocationUnavailable):
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "revocation state unavailable"))
	case errors.Is(result.Err, usecase.ErrUnauthenticated):
		c.JSON(http.StatusOK, TokenValidateResponse{Valid: false, Error: result.Err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to validate token"))
	}
}
