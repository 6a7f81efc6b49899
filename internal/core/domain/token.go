package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// TokenType distinguishes short-lived access tokens from refresh tokens.
type TokenType string

const (
	// TokenTypeAccess marks bearer tokens presented on every request.
	TokenTypeAccess TokenType = "access"
	// TokenTypeRefresh marks tokens exchanged for a new pair.
	TokenTypeRefresh TokenType = "refresh"
)

// ParseTokenType normalises raw input into a known token type.
func ParseTokenType(value string) (TokenType, error) {
	switch TokenType(strings.ToLower(strings.TrimSpace(value))) {
	case TokenTypeAccess:
		return TokenTypeAccess, nil
	case TokenTypeRefresh:
		return TokenTypeRefresh, nil
	default:
		return "", fmt.Errorf("unknown token type %q", value)
	}
}

// TokenClaims is the identity snapshot embedded in a signed token.
type TokenClaims struct {
	UserID       string
	Role         string
	Permissions  []string
	Email        string
	TokenType    TokenType
	JTI          string
	SessionID    string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	TokenVersion int64
	DeviceID     *string
	IPAddress    *string
	RememberMe   bool
}

// IsExpired reports whether the claims have expired at the supplied instant.
func (c TokenClaims) IsExpired(at time.Time) bool {
	return !c.ExpiresAt.After(at)
}

// Remaining returns the lifetime left at the supplied instant, never negative.
func (c TokenClaims) Remaining(at time.Time) time.Duration {
	if c.IsExpired(at) {
		return 0
	}
	return c.ExpiresAt.Sub(at)
}

// HasPermission reports whether the permission set contains the supplied value.
func (c TokenClaims) HasPermission(permission string) bool {
	permission = strings.TrimSpace(permission)
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// TokenPair groups the credentials returned on login and rotation.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessJTI        string
	RefreshJTI       string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenPayload is the validated view of a token handed to callers.
type TokenPayload struct {
	UserID       string    `json:"user_id"`
	Role         string    `json:"role"`
	Permissions  []string  `json:"permissions"`
	Email        string    `json:"email,omitempty"`
	TokenType    TokenType `json:"token_type"`
	JTI          string    `json:"jti"`
	SessionID    string    `json:"session_id,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenVersion int64     `json:"token_version"`
	DeviceID     *string   `json:"device_id,omitempty"`
	IPAddress    *string   `json:"ip_address,omitempty"`
}

// Payload projects the claims into a TokenPayload.
func (c TokenClaims) Payload() TokenPayload {
	return TokenPayload{
		UserID:       c.UserID,
		Role:         c.Role,
		Permissions:  append([]string(nil), c.Permissions...),
		Email:        c.Email,
		TokenType:    c.TokenType,
		JTI:          c.JTI,
		SessionID:    c.SessionID,
		IssuedAt:     c.IssuedAt,
		ExpiresAt:    c.ExpiresAt,
		TokenVersion: c.TokenVersion,
		DeviceID:     c.DeviceID,
		IPAddress:    c.IPAddress,
	}
}

// NormalizePermissions trims, de-duplicates and sorts a permission set.
func NormalizePermissions(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
