package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/port"
)

// TokenParser verifies a compact token and returns its claims.
type TokenParser interface {
	Parse(raw string) (domain.TokenClaims, error)
}

// ValidationResult is the outcome of validating a token. Err is one of the
// sentinel errors of this package when Valid is false. Claims are also set
// for a revoked token so callers can attribute the attempt.
type ValidationResult struct {
	Valid   bool
	Payload domain.TokenPayload
	Claims  domain.TokenClaims
	Err     error
}

func invalid(err error) ValidationResult {
	return ValidationResult{Err: err}
}

// TokenValidator checks signature, expiry, blacklist and token version.
type TokenValidator struct {
	parser  TokenParser
	store   *RevocationStore
	policy  domain.DegradationPolicy
	metrics port.RevocationMetrics
	logger  *zap.Logger
}

// NewTokenValidator constructs a TokenValidator.
func NewTokenValidator(parser TokenParser, store *RevocationStore, policy domain.DegradationPolicy, metrics port.RevocationMetrics, logger *zap.Logger) *TokenValidator {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenValidator{
		parser:  parser,
		store:   store,
		policy:  policy,
		metrics: metrics,
		logger:  logger,
	}
}

// Validate checks the token regardless of its type.
func (v *TokenValidator) Validate(ctx context.Context, token string) ValidationResult {
	result := v.validate(ctx, token, "")
	v.metrics.IncValidation(validationOutcome(result))
	return result
}

// ValidateAccess checks the token and requires it to be an access token.
func (v *TokenValidator) ValidateAccess(ctx context.Context, token string) ValidationResult {
	result := v.validate(ctx, token, domain.TokenTypeAccess)
	v.metrics.IncValidation(validationOutcome(result))
	return result
}

// ValidateRefresh checks the token and requires it to be a refresh token.
func (v *TokenValidator) ValidateRefresh(ctx context.Context, token string) ValidationResult {
	result := v.validate(ctx, token, domain.TokenTypeRefresh)
	v.metrics.IncValidation(validationOutcome(result))
	return result
}

func (v *TokenValidator) validate(ctx context.Context, token string, want domain.TokenType) ValidationResult {
	token = strings.TrimSpace(token)
	if token == "" {
		return invalid(ErrTokenMalformed)
	}

	claims, err := v.parser.Parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return invalid(ErrTokenExpired)
		}
		return invalid(ErrTokenMalformed)
	}
	if want != "" && claims.TokenType != want {
		return invalid(ErrWrongTokenType)
	}

	revoked, err := v.store.IsRevoked(ctx, claims.JTI)
	switch {
	case err != nil:
		if !v.policy.AllowsFallback(domain.DegradationReasonBlacklistUnavailable) {
			v.logger.Warn("rejecting token, blacklist unavailable",
				zap.String("jti", claims.JTI),
				zap.Error(err),
			)
			return invalid(ErrRevocationUnavailable)
		}
		v.logger.Error("blacklist unavailable, accepting token without revocation check",
			zap.String("jti", claims.JTI),
			zap.String("user_id", claims.UserID),
			zap.Error(err),
		)
	case revoked:
		return ValidationResult{Claims: claims, Err: ErrTokenRevoked}
	}

	current, err := v.store.GetTokenVersion(ctx, claims.UserID)
	switch {
	case err != nil:
		if !v.policy.AllowsFallback(domain.DegradationReasonVersionUnavailable) {
			v.logger.Warn("rejecting token, token version unavailable",
				zap.String("user_id", claims.UserID),
				zap.Error(err),
			)
			return invalid(ErrRevocationUnavailable)
		}
		v.logger.Error("token version unavailable, accepting token without version check",
			zap.String("user_id", claims.UserID),
			zap.Error(err),
		)
	case claims.TokenVersion < current:
		return invalid(ErrTokenVersionOutdated)
	}

	return ValidationResult{
		Valid:   true,
		Payload: claims.Payload(),
		Claims:  claims,
	}
}

func validationOutcome(result ValidationResult) string {
	switch {
	case result.Valid:
		return "valid"
	case errors.Is(result.Err, ErrTokenExpired):
		return "expired"
	case errors.Is(result.Err, ErrTokenRevoked):
		return "revoked"
	case errors.Is(result.Err, ErrTokenVersionOutdated):
		return "outdated"
	case errors.Is(result.Err, ErrWrongTokenType):
		return "wrong_type"
	case errors.Is(result.Err, ErrRevocationUnavailable):
		return "unavailable"
	default:
		return "malformed"
	}
}
