package security

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
)

// ErrKeyIDMissing indicates a token header without kid.
var ErrKeyIDMissing = errors.New("jwt: missing key identifier")

// JWTManager signs and parses RS256 tokens carrying TokenClaims.
type JWTManager struct {
	keys     KeyProvider
	issuer   string
	audience string
	now      func() time.Time
}

// JWTOptions configures a JWTManager.
type JWTOptions struct {
	Issuer   string
	Audience string
	Now      func() time.Time
}

// NewJWTManager constructs a JWTManager for the supplied key provider.
func NewJWTManager(provider KeyProvider, opts JWTOptions) *JWTManager {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &JWTManager{
		keys:     provider,
		issuer:   strings.TrimSpace(opts.Issuer),
		audience: strings.TrimSpace(opts.Audience),
		now:      now,
	}
}

type tokenClaims struct {
	UserID       string   `json:"user_id"`
	Role         string   `json:"role"`
	Permissions  []string `json:"permissions"`
	Email        string   `json:"email,omitempty"`
	TokenType    string   `json:"token_type"`
	TokenVersion int64    `json:"token_version"`
	SessionID    string   `json:"sid,omitempty"`
	DeviceID     *string  `json:"device_id,omitempty"`
	IPAddress    *string  `json:"ip_address,omitempty"`
	RememberMe   bool     `json:"remember_me,omitempty"`
	jwt.RegisteredClaims
}

// Sign encodes and signs the claims with the provider's active key.
func (m *JWTManager) Sign(claims domain.TokenClaims) (string, error) {
	if strings.TrimSpace(claims.UserID) == "" || strings.TrimSpace(claims.JTI) == "" {
		return "", fmt.Errorf("jwt: user id and jti are required")
	}

	kid, key, err := m.keys.SigningKey()
	if err != nil {
		return "", fmt.Errorf("jwt: get signing key: %w", err)
	}

	registered := jwt.RegisteredClaims{
		Subject:   claims.UserID,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
		NotBefore: jwt.NewNumericDate(claims.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		ID:        claims.JTI,
	}
	if m.audience != "" {
		registered.Audience = jwt.ClaimStrings{m.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, tokenClaims{
		UserID:           claims.UserID,
		Role:             claims.Role,
		Permissions:      claims.Permissions,
		Email:            claims.Email,
		TokenType:        string(claims.TokenType),
		TokenVersion:     claims.TokenVersion,
		SessionID:        claims.SessionID,
		DeviceID:         claims.DeviceID,
		IPAddress:        claims.IPAddress,
		RememberMe:       claims.RememberMe,
		RegisteredClaims: registered,
	})
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, issuer, audience and expiry and returns the claims.
// Errors wrap the golang-jwt sentinels such as jwt.ErrTokenExpired.
func (m *JWTManager) Parse(raw string) (domain.TokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &parsed, m.keyFunc, opts...)
	if err != nil {
		return domain.TokenClaims{}, err
	}

	tokenType, err := domain.ParseTokenType(parsed.TokenType)
	if err != nil {
		return domain.TokenClaims{}, fmt.Errorf("%w: %v", jwt.ErrTokenInvalidClaims, err)
	}
	if parsed.UserID == "" || parsed.ID == "" || parsed.IssuedAt == nil {
		return domain.TokenClaims{}, fmt.Errorf("%w: user_id, jti and iat are required", jwt.ErrTokenInvalidClaims)
	}

	return domain.TokenClaims{
		UserID:       parsed.UserID,
		Role:         parsed.Role,
		Permissions:  domain.NormalizePermissions(parsed.Permissions),
		Email:        parsed.Email,
		TokenType:    tokenType,
		JTI:          parsed.ID,
		SessionID:    parsed.SessionID,
		IssuedAt:     parsed.IssuedAt.Time,
		ExpiresAt:    parsed.ExpiresAt.Time,
		TokenVersion: parsed.TokenVersion,
		DeviceID:     parsed.DeviceID,
		IPAddress:    parsed.IPAddress,
		RememberMe:   parsed.RememberMe,
	}, nil
}

func (m *JWTManager) keyFunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if strings.TrimSpace(kid) == "" {
		return nil, ErrKeyIDMissing
	}
	return m.keys.VerificationKey(kid)
}

// JWKS produces the JSON Web Key Set of all verification keys.
func (m *JWTManager) JWKS() ([]byte, error) {
	keys := m.keys.VerificationKeys()
	kids := make([]string, 0, len(keys))
	for kid := range keys {
		kids = append(kids, kid)
	}
	sort.Strings(kids)

	out := make([]map[string]string, 0, len(kids))
	for _, kid := range kids {
		if key := keys[kid]; key != nil {
			out = append(out, buildJWK(kid, key))
		}
	}
	return json.Marshal(map[string]any{"keys": out})
}

func buildJWK(kid string, key *rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}
