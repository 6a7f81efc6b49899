package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
)

const bearerTokenType = "Bearer"

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// UserSummary describes a minimal view of a user returned by the API.
type UserSummary struct {
	ID          string   `json:"id"`
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// AuthLoginRequest defines the payload for the login endpoint.
type AuthLoginRequest struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"remember_me"`
	DeviceID   string `json:"device_id"`
}

// TokenRefreshRequest represents the payload to refresh an access token.
type TokenRefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
	DeviceID     string `json:"device_id"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken      string          `json:"access_token"`
	RefreshToken     string          `json:"refresh_token"`
	TokenType        string          `json:"token_type"`
	ExpiresIn        int             `json:"expires_in"`
	RefreshExpiresIn int             `json:"refresh_expires_in"`
	User             UserSummary     `json:"user"`
	Session          *SessionPayload `json:"session,omitempty"`
}

// LogoutAllRequest controls whether the calling session survives a global logout.
type LogoutAllRequest struct {
	KeepCurrent bool `json:"keep_current"`
}

// LogoutAllResponse reports how many sessions were revoked and, when the
// current session was kept, the pair that replaces its outdated one.
type LogoutAllResponse struct {
	RevokedCount int            `json:"revoked_count"`
	Tokens       *TokenResponse `json:"tokens,omitempty"`
}

// SessionPayload describes a session view in API responses.
type SessionPayload struct {
	ID           string            `json:"session_id"`
	Device       domain.DeviceInfo `json:"device_info"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
	ExpiresAt    time.Time         `json:"expires_at"`
	IsCurrent    bool              `json:"is_current"`
}

// SessionListResponse wraps a list of sessions for a user.
type SessionListResponse struct {
	Sessions []SessionPayload `json:"sessions"`
	Total    int              `json:"total"`
}

// SessionRevokeResponse indicates whether the session was revoked.
type SessionRevokeResponse struct {
	Revoked bool `json:"revoked"`
}

// TokenValidateRequest carries a token to introspect.
type TokenValidateRequest struct {
	Token string `json:"token" binding:"required"`
}

// TokenValidateResponse reports the outcome of a validation; failures are in-band.
type TokenValidateResponse struct {
	Valid   bool                 `json:"valid"`
	Payload *domain.TokenPayload `json:"payload,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func newUserSummary(user domain.UserIdentity) UserSummary {
	permissions := make([]string, len(user.Permissions))
	copy(permissions, user.Permissions)

	return UserSummary{
		ID:          user.ID,
		Email:       user.Email,
		Role:        user.Role,
		Permissions: permissions,
	}
}

func newSessionPayload(view domain.SessionView) SessionPayload {
	return SessionPayload{
		ID:           view.ID,
		Device:       view.Device,
		CreatedAt:    view.CreatedAt,
		LastActivity: view.LastActivity,
		ExpiresAt:    view.ExpiresAt,
		IsCurrent:    view.IsCurrent,
	}
}

func newTokenResponse(tokens domain.TokenPair, user domain.UserIdentity, session *domain.Session, now time.Time) TokenResponse {
	resp := TokenResponse{
		AccessToken:      tokens.AccessToken,
		RefreshToken:     tokens.RefreshToken,
		TokenType:        bearerTokenType,
		ExpiresIn:        secondsUntil(tokens.AccessExpiresAt, now),
		RefreshExpiresIn: secondsUntil(tokens.RefreshExpiresAt, now),
		User:             newUserSummary(user),
	}
	if session != nil {
		payload := newSessionPayload(domain.SessionView{Session: *session, IsCurrent: true})
		resp.Session = &payload
	}
	return resp
}

func secondsUntil(at, now time.Time) int {
	if remaining := at.Sub(now); remaining > 0 {
		return int(remaining.Seconds())
	}
	return 0
}
