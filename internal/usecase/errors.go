package usecase

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is the parent of every credential or token failure; transports map it to 401.
	ErrUnauthenticated = errors.New("authentication failed")
	// ErrInvalidInput is the parent of malformed input to issuance or rotation; transports map it to 400.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStoreUnavailable indicates neither revocation tier answered. It is recovered internally
	// and never returned to transports directly.
	ErrStoreUnavailable = errors.New("revocation store unavailable")
)

var (
	// ErrInvalidCredentials indicates the email or password is wrong, or the account is disabled.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthenticated)
	// ErrTokenMalformed indicates the token failed decoding or signature verification.
	ErrTokenMalformed = fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	// ErrTokenExpired indicates the token is past its expiry.
	ErrTokenExpired = fmt.Errorf("%w: token has expired", ErrUnauthenticated)
	// ErrTokenRevoked indicates the token's jti is blacklisted.
	ErrTokenRevoked = fmt.Errorf("%w: token has been revoked", ErrUnauthenticated)
	// ErrTokenVersionOutdated indicates the token predates the user's current token version.
	ErrTokenVersionOutdated = fmt.Errorf("%w: token version is outdated", ErrUnauthenticated)
	// ErrWrongTokenType indicates a refresh token was presented where an access token is required, or vice versa.
	ErrWrongTokenType = fmt.Errorf("%w: unexpected token type", ErrUnauthenticated)
)

var (
	// ErrRevocationUnavailable indicates revocation state could not be read or written and the
	// degradation policy refuses to continue; transports map it to 503.
	ErrRevocationUnavailable = errors.New("revocation state unavailable")
	// ErrTokenSigning indicates the token could not be signed; this is a system failure.
	ErrTokenSigning = errors.New("token signing failed")
	// ErrSessionNotFound indicates the session does not exist for the user.
	ErrSessionNotFound = errors.New("session not found")
	// ErrCannotRevokeCurrentSession indicates an attempt to revoke the caller's own session
	// through the single-session path; callers must log out instead.
	ErrCannotRevokeCurrentSession = errors.New("cannot revoke the current session, use logout")
)
