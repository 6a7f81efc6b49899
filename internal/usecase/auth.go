package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/port"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/repository"
)

// LoginInput carries the credentials and device context of a login attempt.
type LoginInput struct {
	Email      string
	Password   string
	RememberMe bool
	Device     domain.DeviceInfo
}

// LoginResult is returned on successful login.
type LoginResult struct {
	Tokens  domain.TokenPair
	User    domain.UserIdentity
	Session *domain.Session
}

// RefreshResult is returned on successful rotation.
type RefreshResult struct {
	Tokens  domain.TokenPair
	User    domain.UserIdentity
	Session *domain.Session
}

// LogoutAllResult reports a global logout. When the current session is kept
// it is moved onto a fresh pair, since the version bump invalidates the pair
// it was using.
type LogoutAllResult struct {
	Revoked int
	Tokens  *domain.TokenPair
	User    domain.UserIdentity
	Session *domain.Session
}

// AuthService coordinates the login, rotation and logout flows.
type AuthService struct {
	users     port.UserDirectory
	issuer    *TokenIssuer
	validator *TokenValidator
	sessions  *SessionRegistry
	store     *RevocationStore
	audit     *BestEffortAudit
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	users port.UserDirectory,
	issuer *TokenIssuer,
	validator *TokenValidator,
	sessions *SessionRegistry,
	store *RevocationStore,
	audit *BestEffortAudit,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:     users,
		issuer:    issuer,
		validator: validator,
		sessions:  sessions,
		store:     store,
		audit:     audit,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Login verifies credentials, issues a token pair and registers a session.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	ok, err := s.users.VerifyCredentials(ctx, email, in.Password)
	if err != nil {
		return nil, fmt.Errorf("verify credentials: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	tokens, err := s.issuer.CreateTokens(ctx, *user, IssueOptions{
		DeviceID:   in.Device.DeviceID,
		IPAddress:  optionalString(in.Device.IPAddress),
		RememberMe: in.RememberMe,
	})
	if err != nil {
		return nil, err
	}

	result := &LoginResult{Tokens: tokens, User: *user}
	session, err := s.sessions.Register(ctx, user.ID, tokens.RefreshJTI, in.Device, tokens.RefreshExpiresAt)
	if err != nil {
		s.logger.Warn("session not registered on login",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	} else {
		result.Session = &session
	}

	s.audit.Submit(ctx, domain.AuditEvent{
		Action:    domain.AuditActionLogin,
		UserID:    user.ID,
		SessionID: tokens.RefreshJTI,
		Metadata:  deviceMetadata(in.Device, map[string]any{"remember_me": in.RememberMe}),
	})

	return result, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// consumed; presenting it again fails with ErrTokenRevoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, device domain.DeviceInfo) (*RefreshResult, error) {
	validation := s.validator.ValidateRefresh(ctx, refreshToken)
	if !validation.Valid {
		if errors.Is(validation.Err, ErrTokenRevoked) {
			s.auditRefreshReplay(ctx, validation.Claims, device)
		}
		return nil, validation.Err
	}
	claims := validation.Claims

	user, err := s.users.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	tokens, err := s.issuer.RefreshTokens(ctx, *user, claims, IssueOptions{
		IPAddress: optionalString(device.IPAddress),
	})
	if err != nil {
		if errors.Is(err, ErrTokenRevoked) {
			s.auditRefreshReplay(ctx, claims, device)
		}
		return nil, err
	}

	result := &RefreshResult{Tokens: tokens, User: *user}
	if device.DeviceID == nil {
		device.DeviceID = claims.DeviceID
	}
	session, err := s.sessions.Rotate(ctx, user.ID, claims.JTI, tokens.RefreshJTI, tokens.RefreshExpiresAt, device)
	if err != nil {
		s.logger.Warn("session not moved on refresh",
			zap.String("user_id", user.ID),
			zap.String("session_id", claims.JTI),
			zap.Error(err),
		)
	} else {
		result.Session = &session
	}

	s.audit.Submit(ctx, domain.AuditEvent{
		Action:    domain.AuditActionTokenRefreshed,
		UserID:    user.ID,
		SessionID: tokens.RefreshJTI,
		Metadata:  map[string]any{"previous_session_id": claims.JTI},
	})

	return result, nil
}

// auditRefreshReplay records a refresh token presented after it was
// blacklisted, with the blacklist reason when the cache still has it.
func (s *AuthService) auditRefreshReplay(ctx context.Context, claims domain.TokenClaims, device domain.DeviceInfo) {
	extra := map[string]any{}
	if reason, ok := s.store.RevocationReason(ctx, claims.JTI); ok {
		extra["revocation_reason"] = string(reason)
	}
	s.audit.Submit(ctx, domain.AuditEvent{
		Action:    domain.AuditActionRefreshReplay,
		UserID:    claims.UserID,
		SessionID: claims.JTI,
		Metadata:  deviceMetadata(device, extra),
	})
}

// Logout revokes the presented access token and its session. Persistence
// failures are logged and do not fail the call.
func (s *AuthService) Logout(ctx context.Context, claims domain.TokenClaims) error {
	if claims.TokenType != domain.TokenTypeAccess {
		return ErrWrongTokenType
	}

	userID := claims.UserID
	accessExpiry := claims.ExpiresAt
	if !s.store.Revoke(ctx, domain.BlacklistEntry{
		JTI:       claims.JTI,
		Reason:    domain.RevocationReasonLogout,
		UserID:    &userID,
		RevokedAt: s.now(),
		ExpiresAt: &accessExpiry,
	}) {
		s.logger.Error("revocation not persisted",
			zap.String("user_id", userID),
			zap.String("jti", claims.JTI),
			zap.String("reason", string(domain.RevocationReasonLogout)),
		)
	}

	if claims.SessionID != "" {
		err := s.sessions.RevokeOne(ctx, userID, claims.SessionID, domain.RevocationReasonLogout)
		if err != nil {
			// Without the session record the refresh expiry is unknown; the
			// longest refresh lifetime from issuance bounds it.
			sessionExpiry := claims.IssuedAt.Add(s.issuer.MaxRefreshTTL())
			if !s.store.Revoke(ctx, domain.BlacklistEntry{
				JTI:       claims.SessionID,
				Reason:    domain.RevocationReasonLogout,
				UserID:    &userID,
				RevokedAt: s.now(),
				ExpiresAt: &sessionExpiry,
			}) {
				s.logger.Error("revocation not persisted",
					zap.String("user_id", userID),
					zap.String("session_id", claims.SessionID),
					zap.String("reason", string(domain.RevocationReasonLogout)),
				)
			}
			if !errors.Is(err, ErrSessionNotFound) {
				s.logger.Warn("session not removed on logout",
					zap.String("session_id", claims.SessionID),
					zap.Error(err),
				)
			}
		}
	}

	s.audit.Submit(ctx, domain.AuditEvent{
		Action:    domain.AuditActionLogout,
		UserID:    userID,
		SessionID: claims.SessionID,
	})
	return nil
}

// LogoutAll revokes every session of the caller, optionally keeping the
// current one, and invalidates all previously issued tokens through the
// token version. A kept session is reissued under the new version.
func (s *AuthService) LogoutAll(ctx context.Context, claims domain.TokenClaims, keepCurrent bool) (*LogoutAllResult, error) {
	except := ""
	if keepCurrent {
		except = claims.SessionID
	}

	revoked, err := s.sessions.RevokeAll(ctx, claims.UserID, except)
	result := &LogoutAllResult{Revoked: revoked}
	if err != nil {
		s.logger.Error("logout-all incomplete",
			zap.String("user_id", claims.UserID),
			zap.Int("sessions_revoked", revoked),
			zap.Error(err),
		)
		if errors.Is(err, ErrStoreUnavailable) {
			return result, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
		}
		return result, err
	}

	metadata := map[string]any{
		"keep_current":     keepCurrent,
		"sessions_revoked": revoked,
	}
	if except != "" {
		tokens, user, session, err := s.reissueKeptSession(ctx, claims)
		if err != nil {
			s.logger.Warn("kept session not reissued after logout-all",
				zap.String("user_id", claims.UserID),
				zap.String("session_id", claims.SessionID),
				zap.Error(err),
			)
		} else {
			result.Tokens = &tokens
			result.User = user
			result.Session = session
			metadata["current_session_id"] = tokens.RefreshJTI
		}
	}

	s.audit.Submit(ctx, domain.AuditEvent{
		Action:    domain.AuditActionLogoutAll,
		UserID:    claims.UserID,
		SessionID: claims.SessionID,
		Metadata:  metadata,
	})
	return result, nil
}

// reissueKeptSession rotates the caller's session as if its refresh token had
// been presented, so the pair embeds the bumped version.
func (s *AuthService) reissueKeptSession(ctx context.Context, claims domain.TokenClaims) (domain.TokenPair, domain.UserIdentity, *domain.Session, error) {
	user, err := s.users.GetUser(ctx, claims.UserID)
	if err != nil {
		return domain.TokenPair{}, domain.UserIdentity{}, nil, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		return domain.TokenPair{}, domain.UserIdentity{}, nil, ErrInvalidCredentials
	}

	expiresAt := claims.IssuedAt.Add(s.issuer.MaxRefreshTTL())
	if kept, err := s.sessions.Get(ctx, claims.UserID, claims.SessionID); err == nil {
		expiresAt = kept.ExpiresAt
	}
	tokens, err := s.issuer.RefreshTokens(ctx, *user, domain.TokenClaims{
		UserID:     claims.UserID,
		TokenType:  domain.TokenTypeRefresh,
		JTI:        claims.SessionID,
		ExpiresAt:  expiresAt,
		DeviceID:   claims.DeviceID,
		IPAddress:  claims.IPAddress,
		RememberMe: claims.RememberMe,
	}, IssueOptions{})
	if err != nil {
		return domain.TokenPair{}, domain.UserIdentity{}, nil, err
	}

	session, err := s.sessions.Rotate(ctx, user.ID, claims.SessionID, tokens.RefreshJTI, tokens.RefreshExpiresAt, domain.DeviceInfo{DeviceID: claims.DeviceID})
	if err != nil {
		s.logger.Warn("session not moved after logout-all",
			zap.String("user_id", user.ID),
			zap.String("session_id", claims.SessionID),
			zap.Error(err),
		)
		return tokens, *user, nil, nil
	}
	return tokens, *user, &session, nil
}

// ListSessions returns the caller's sessions with the current one marked.
func (s *AuthService) ListSessions(ctx context.Context, claims domain.TokenClaims) ([]domain.SessionView, error) {
	sessions, err := s.sessions.List(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	views := make([]domain.SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, domain.SessionView{
			Session:   session,
			IsCurrent: session.ID == claims.SessionID,
		})
	}
	return views, nil
}

// RevokeSession revokes one of the caller's other sessions.
func (s *AuthService) RevokeSession(ctx context.Context, claims domain.TokenClaims, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	if sessionID == claims.SessionID {
		return ErrCannotRevokeCurrentSession
	}

	if err := s.sessions.RevokeOne(ctx, claims.UserID, sessionID, domain.RevocationReasonSessionRevoked); err != nil {
		return err
	}

	s.audit.Submit(ctx, domain.AuditEvent{
		Action:    domain.AuditActionSessionRevoked,
		UserID:    claims.UserID,
		SessionID: sessionID,
		Metadata:  map[string]any{"revoked_by_session_id": claims.SessionID},
	})
	return nil
}

// Authenticate validates an access token for a protected request and records
// activity on its session.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (domain.TokenClaims, error) {
	result := s.validator.ValidateAccess(ctx, accessToken)
	if !result.Valid {
		return domain.TokenClaims{}, result.Err
	}
	s.sessions.Touch(ctx, result.Claims.UserID, result.Claims.SessionID)
	return result.Claims, nil
}

// Validate exposes token introspection without touching sessions.
func (s *AuthService) Validate(ctx context.Context, token string) ValidationResult {
	return s.validator.Validate(ctx, token)
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func deviceMetadata(device domain.DeviceInfo, extra map[string]any) map[string]any {
	metadata := make(map[string]any, len(extra)+3)
	for k, v := range extra {
		metadata[k] = v
	}
	if device.UserAgent != "" {
		metadata["user_agent"] = device.UserAgent
	}
	if device.IPAddress != "" {
		metadata["ip_address"] = device.IPAddress
	}
	if device.DeviceID != nil {
		metadata["device_id"] = *device.DeviceID
	}
	return metadata
}
