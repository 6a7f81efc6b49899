package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/infra/logger"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/transport/http/middleware"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/usecase"
)

// LifecycleService is the token lifecycle surface consumed by the HTTP handlers.
type LifecycleService interface {
	middleware.Authenticator
	Login(ctx context.Context, in usecase.LoginInput) (*usecase.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string, device domain.DeviceInfo) (*usecase.RefreshResult, error)
	Logout(ctx context.Context, claims domain.TokenClaims) error
	LogoutAll(ctx context.Context, claims domain.TokenClaims, keepCurrent bool) (*usecase.LogoutAllResult, error)
	ListSessions(ctx context.Context, claims domain.TokenClaims) ([]domain.SessionView, error)
	RevokeSession(ctx context.Context, claims domain.TokenClaims, sessionID string) error
	Validate(ctx context.Context, token string) usecase.ValidationResult
}

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth   LifecycleService
	logger *zap.Logger
	now    func() time.Time
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth LifecycleService, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{auth: auth, logger: log, now: time.Now}
}

// RegisterRoutes binds authentication routes, applying optional middleware ahead of the login handler.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, loginMiddlewares ...gin.HandlerFunc) {
	chain := append([]gin.HandlerFunc{}, loginMiddlewares...)
	chain = append(chain, h.login)
	r.POST("/login", chain...)

	r.POST("/refresh", h.refresh)

	protected := r.Group("", middleware.RequireAuth(h.auth))
	protected.POST("/logout", h.logout)
	protected.POST("/logout-all", h.logoutAll)
}

// Login godoc
// @Summary Authenticate with email and password
// @Description Issues an access and refresh token pair and registers a session.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body AuthLoginRequest true "Login request"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 429 {object} middleware.ProblemDetails
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var req AuthLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "email and password are required"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Email:      strings.TrimSpace(req.Email),
		Password:   req.Password,
		RememberMe: req.RememberMe,
		Device:     deviceFromRequest(c, req.DeviceID),
	})
	if err != nil {
		h.logger.Info("login rejected",
			zap.String("email", logger.MaskEmail(req.Email)),
			zap.String("trace_id", middleware.GetTraceID(c)),
			zap.Error(err),
		)
		respondLifecycleError(c, err, "failed to login")
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(result.Tokens, result.User, result.Session, h.now()))
}

// Refresh godoc
// @Summary Refresh an access token
// @Description Rotates the refresh token and issues a new token pair.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body TokenRefreshRequest true "Refresh request"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) refresh(c *gin.Context) {
	var req TokenRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refresh_token is required"))
		return
	}

	result, err := h.auth.Refresh(c.Request.Context(), strings.TrimSpace(req.RefreshToken), deviceFromRequest(c, req.DeviceID))
	if err != nil {
		respondLifecycleError(c, err, "failed to refresh token")
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(result.Tokens, result.User, result.Session, h.now()))
}

// Logout godoc
// @Summary Logout the current session
// @Description Revokes the caller's access token and its session.
// @Tags Authentication
// @Security Bearer
// @Success 204 {string} string ""
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) logout(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), claims); err != nil {
		respondLifecycleError(c, err, "failed to logout")
		return
	}

	c.Status(http.StatusNoContent)
}

// LogoutAll godoc
// @Summary Logout from every device
// @Description Revokes all sessions and invalidates every outstanding token of the caller. With keep_current the calling session is reissued and its new pair returned.
// @Tags Authentication
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body LogoutAllRequest false "Logout all options"
// @Success 200 {object} LogoutAllResponse
// @Failure 401 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/auth/logout-all [post]
func (h *AuthHandler) logoutAll(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req LogoutAllRequest
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		// The body is optional; an empty one keeps the defaults.
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid logout-all payload"))
			return
		}
	}

	result, err := h.auth.LogoutAll(c.Request.Context(), claims, req.KeepCurrent)
	if err != nil {
		respondLifecycleError(c, err, "failed to revoke sessions")
		return
	}

	resp := LogoutAllResponse{RevokedCount: result.Revoked}
	if result.Tokens != nil {
		tokens := newTokenResponse(*result.Tokens, result.User, result.Session, h.now())
		resp.Tokens = &tokens
	}
	c.JSON(http.StatusOK, resp)
}

func deviceFromRequest(c *gin.Context, deviceID string) domain.DeviceInfo {
	device := domain.DeviceInfo{
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	}
	if id := strings.TrimSpace(deviceID); id != "" {
		device.DeviceID = &id
	}
	return device
}
