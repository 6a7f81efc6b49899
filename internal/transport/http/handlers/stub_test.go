package handlers

import (
	"context"
	"time"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/usecase"
)

const validAccessToken = "access-token"

type stubLifecycle struct {
	claims         domain.TokenClaims
	authErr        error
	loginInput     usecase.LoginInput
	loginErr       error
	refreshErr     error
	logoutCalls    int
	keepCurrent    bool
	logoutAllCalls int
	logoutAllErr   error
	sessions       []domain.SessionView
	revokeErr      error
	revokedID      string
	validation     usecase.ValidationResult
}

func newStubLifecycle() *stubLifecycle {
	return &stubLifecycle{
		claims: domain.TokenClaims{
			UserID:    "user-1",
			Role:      "student",
			TokenType: domain.TokenTypeAccess,
			JTI:       "access-jti",
			SessionID: "session-1",
		},
	}
}

func (s *stubLifecycle) Authenticate(_ context.Context, token string) (domain.TokenClaims, error) {
	if s.authErr != nil {
		return domain.TokenClaims{}, s.authErr
	}
	if token != validAccessToken {
		return domain.TokenClaims{}, usecase.ErrTokenMalformed
	}
	return s.claims, nil
}

func (s *stubLifecycle) Login(_ context.Context, in usecase.LoginInput) (*usecase.LoginResult, error) {
	s.loginInput = in
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	now := time.Now()
	session := &domain.Session{ID: "refresh-jti", UserID: "user-1", Device: in.Device, CreatedAt: now, LastActivity: now, ExpiresAt: now.Add(24 * time.Hour)}
	return &usecase.LoginResult{
		Tokens: domain.TokenPair{
			AccessToken:      validAccessToken,
			RefreshToken:     "refresh-token",
			AccessJTI:        "access-jti",
			RefreshJTI:       "refresh-jti",
			AccessExpiresAt:  now.Add(time.Hour),
			RefreshExpiresAt: now.Add(24 * time.Hour),
		},
		User:    domain.UserIdentity{ID: "user-1", Email: in.Email, Role: "student", Permissions: []string{"courses:read"}, IsActive: true},
		Session: session,
	}, nil
}

func (s *stubLifecycle) Refresh(_ context.Context, refreshToken string, device domain.DeviceInfo) (*usecase.RefreshResult, error) {
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	now := time.Now()
	return &usecase.RefreshResult{
		Tokens: domain.TokenPair{
			AccessToken:      "access-token-2",
			RefreshToken:     "refresh-token-2",
			AccessExpiresAt:  now.Add(time.Hour),
			RefreshExpiresAt: now.Add(24 * time.Hour),
		},
		User: domain.UserIdentity{ID: "user-1", Role: "student", IsActive: true},
	}, nil
}

func (s *stubLifecycle) Logout(context.Context, domain.TokenClaims) error {
	s.logoutCalls++
	return nil
}

func (s *stubLifecycle) LogoutAll(_ context.Context, _ domain.TokenClaims, keepCurrent bool) (*usecase.LogoutAllResult, error) {
	s.logoutAllCalls++
	s.keepCurrent = keepCurrent
	if s.logoutAllErr != nil {
		return nil, s.logoutAllErr
	}
	result := &usecase.LogoutAllResult{Revoked: 2}
	if keepCurrent {
		now := time.Now()
		result.Tokens = &domain.TokenPair{
			AccessToken:      "access-token-kept",
			RefreshToken:     "refresh-token-kept",
			AccessJTI:        "access-jti-kept",
			RefreshJTI:       "refresh-jti-kept",
			AccessExpiresAt:  now.Add(time.Hour),
			RefreshExpiresAt: now.Add(24 * time.Hour),
		}
		result.User = domain.UserIdentity{ID: "user-1", Role: "student", IsActive: true}
	}
	return result, nil
}

func (s *stubLifecycle) ListSessions(context.Context, domain.TokenClaims) ([]domain.SessionView, error) {
	return s.sessions, nil
}

func (s *stubLifecycle) RevokeSession(_ context.Context, _ domain.TokenClaims, sessionID string) error {
	s.revokedID = sessionID
	return s.revokeErr
}

func (s *stubLifecycle) Validate(context.Context, string) usecase.ValidationResult {
	return s.validation
}
