package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
)

const (
	defaultAccessTokenTTL  = time.Hour
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultRememberMeTTL   = 30 * 24 * time.Hour
)

// TokenSigner turns claims into a signed compact token.
type TokenSigner interface {
	Sign(claims domain.TokenClaims) (string, error)
}

// IssueOptions carries the per-request context embedded in issued tokens.
type IssueOptions struct {
	DeviceID   *string
	IPAddress  *string
	RememberMe bool
}

// TokenIssuerOptions configures lifetimes and the degradation policy.
type TokenIssuerOptions struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RememberMeTTL time.Duration
	Policy        domain.DegradationPolicy
	Logger        *zap.Logger
	Now           func() time.Time
}

// TokenIssuer creates access and refresh token pairs.
type TokenIssuer struct {
	signer TokenSigner
	store  *RevocationStore

	accessTTL     time.Duration
	refreshTTL    time.Duration
	rememberMeTTL time.Duration
	policy        domain.DegradationPolicy
	logger        *zap.Logger
	now           func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer.
func NewTokenIssuer(signer TokenSigner, store *RevocationStore, opts TokenIssuerOptions) *TokenIssuer {
	issuer := &TokenIssuer{
		signer:        signer,
		store:         store,
		accessTTL:     opts.AccessTTL,
		refreshTTL:    opts.RefreshTTL,
		rememberMeTTL: opts.RememberMeTTL,
		policy:        opts.Policy,
		logger:        opts.Logger,
		now:           opts.Now,
	}
	if issuer.accessTTL <= 0 {
		issuer.accessTTL = defaultAccessTokenTTL
	}
	if issuer.refreshTTL <= 0 {
		issuer.refreshTTL = defaultRefreshTokenTTL
	}
	if issuer.rememberMeTTL <= 0 {
		issuer.rememberMeTTL = defaultRememberMeTTL
	}
	if issuer.logger == nil {
		issuer.logger = zap.NewNop()
	}
	if issuer.now == nil {
		issuer.now = time.Now
	}
	return issuer
}

// MaxRefreshTTL is the longest lifetime any refresh token can carry.
func (i *TokenIssuer) MaxRefreshTTL() time.Duration {
	if i.rememberMeTTL > i.refreshTTL {
		return i.rememberMeTTL
	}
	return i.refreshTTL
}

// CreateTokens issues a fresh pair for the user embedding the current token
// version. The access token's sid points at the refresh jti.
func (i *TokenIssuer) CreateTokens(ctx context.Context, user domain.UserIdentity, opts IssueOptions) (domain.TokenPair, error) {
	if err := user.Validate(); err != nil {
		return domain.TokenPair{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	version, err := i.store.GetTokenVersion(ctx, user.ID)
	if err != nil {
		if !errors.Is(err, ErrStoreUnavailable) {
			return domain.TokenPair{}, err
		}
		if !i.policy.AllowsFallback(domain.DegradationReasonVersionUnavailable) {
			return domain.TokenPair{}, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
		}
		i.logger.Warn("token version unavailable, issuing with version 0",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		version = 0
	}

	// Registered claims carry whole seconds only.
	now := i.now().UTC().Truncate(time.Second)
	refreshTTL := i.refreshTTL
	if opts.RememberMe {
		refreshTTL = i.rememberMeTTL
	}

	permissions := domain.NormalizePermissions(user.Permissions)
	refresh := domain.TokenClaims{
		UserID:       user.ID,
		Role:         user.Role,
		Permissions:  permissions,
		Email:        user.Email,
		TokenType:    domain.TokenTypeRefresh,
		JTI:          uuid.NewString(),
		IssuedAt:     now,
		ExpiresAt:    now.Add(refreshTTL),
		TokenVersion: version,
		DeviceID:     opts.DeviceID,
		IPAddress:    opts.IPAddress,
		RememberMe:   opts.RememberMe,
	}
	access := refresh
	access.TokenType = domain.TokenTypeAccess
	access.JTI = uuid.NewString()
	access.SessionID = refresh.JTI
	access.ExpiresAt = now.Add(i.accessTTL)

	accessToken, err := i.signer.Sign(access)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("%w: access: %v", ErrTokenSigning, err)
	}
	refreshToken, err := i.signer.Sign(refresh)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("%w: refresh: %v", ErrTokenSigning, err)
	}

	return domain.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessJTI:        access.JTI,
		RefreshJTI:       refresh.JTI,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// RefreshTokens consumes the presented refresh token and issues a new pair.
// Only the first caller for a given jti succeeds; later callers receive
// ErrTokenRevoked.
func (i *TokenIssuer) RefreshTokens(ctx context.Context, user domain.UserIdentity, old domain.TokenClaims, opts IssueOptions) (domain.TokenPair, error) {
	if old.TokenType != domain.TokenTypeRefresh {
		return domain.TokenPair{}, ErrWrongTokenType
	}
	if old.JTI == "" || old.UserID != user.ID {
		return domain.TokenPair{}, fmt.Errorf("%w: refresh token does not belong to user", ErrInvalidInput)
	}

	userID := user.ID
	expiresAt := old.ExpiresAt
	entry := domain.BlacklistEntry{
		JTI:       old.JTI,
		Reason:    domain.RevocationReasonTokenRotation,
		UserID:    &userID,
		RevokedAt: i.now().UTC(),
		ExpiresAt: &expiresAt,
	}

	claimed, err := i.store.ConsumeForRotation(ctx, entry)
	switch {
	case err == nil && !claimed:
		return domain.TokenPair{}, ErrTokenRevoked
	case err != nil && errors.Is(err, ErrStoreUnavailable):
		if !i.policy.AllowsFallback(domain.DegradationReasonBlacklistUnavailable) {
			return domain.TokenPair{}, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
		}
		i.logger.Error("refresh token could not be consumed, rotating anyway",
			zap.String("user_id", user.ID),
			zap.String("jti", old.JTI),
			zap.Error(err),
		)
	case err != nil:
		return domain.TokenPair{}, err
	}

	if opts.DeviceID == nil {
		opts.DeviceID = old.DeviceID
	}
	if opts.IPAddress == nil {
		opts.IPAddress = old.IPAddress
	}
	opts.RememberMe = old.RememberMe

	return i.CreateTokens(ctx, user, opts)
}
