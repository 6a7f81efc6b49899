package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// lifecycleCases covers the errors shared by every token endpoint. More specific
// sentinels come first because they wrap ErrUnauthenticated.
var lifecycleCases = []ErrorCase{
	{Err: usecase.ErrRevocationUnavailable, Status: http.StatusServiceUnavailable, Message: "revocation state unavailable"},
	{Err: usecase.ErrInvalidInput, Status: http.StatusBadRequest, Message: "invalid request"},
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
	{Err: usecase.ErrTokenExpired, Status: http.StatusUnauthorized, Message: "token expired"},
	{Err: usecase.ErrTokenRevoked, Status: http.StatusUnauthorized, Message: "token revoked"},
	{Err: usecase.ErrTokenVersionOutdated, Status: http.StatusUnauthorized, Message: "token outdated"},
	{Err: usecase.ErrWrongTokenType, Status: http.StatusUnauthorized, Message: "wrong token type"},
	{Err: usecase.ErrUnauthenticated, Status: http.StatusUnauthorized, Message: "invalid token"},
	{Err: usecase.ErrSessionNotFound, Status: http.StatusNotFound, Message: "session not found"},
	{Err: usecase.ErrCannotRevokeCurrentSession, Status: http.StatusForbidden, Message: "cannot revoke the current session, use logout"},
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

func respondLifecycleError(c *gin.Context, err error, fallbackMessage string) {
	RespondWithMappedError(c, err, lifecycleCases, http.StatusInternalServerError, fallbackMessage)
}
