package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
)

var testKey = mustKey()

func mustKey() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
}

func testClaims(now time.Time) domain.TokenClaims {
	device := "device-1"
	return domain.TokenClaims{
		UserID:       "user-1",
		Role:         "instructor",
		Permissions:  []string{"courses:read", "exams:grade"},
		Email:        "user@example.com",
		TokenType:    domain.TokenTypeAccess,
		JTI:          "jti-1",
		SessionID:    "session-1",
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Hour),
		TokenVersion: 4,
		DeviceID:     &device,
	}
}

func TestJWTManagerRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	manager := NewJWTManager(NewStaticKeyProvider("k1", testKey), JWTOptions{Issuer: "tokens", Audience: "platform", Now: func() time.Time { return now }})

	signed, err := manager.Sign(testClaims(now))
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	claims, err := manager.Parse(signed)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != "instructor" || claims.TokenVersion != 4 {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.TokenType != domain.TokenTypeAccess || claims.SessionID != "session-1" {
		t.Fatalf("unexpected token type/session: %+v", claims)
	}
	if !claims.ExpiresAt.Equal(now.Add(time.Hour)) || claims.DeviceID == nil || *claims.DeviceID != "device-1" {
		t.Fatalf("unexpected expiry/device: %+v", claims)
	}
	if len(claims.Permissions) != 2 {
		t.Fatalf("expected permissions to survive, got %v", claims.Permissions)
	}
}

func TestJWTManagerRejectsExpiredToken(t *testing.T) {
	issued := time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Second)
	manager := NewJWTManager(NewStaticKeyProvider("k1", testKey), JWTOptions{Issuer: "tokens"})

	signed, err := manager.Sign(testClaims(issued))
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	if _, err := manager.Parse(signed); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestJWTManagerRejectsForeignKeyAndAudience(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	signer := NewJWTManager(NewStaticKeyProvider("k1", mustKey()), JWTOptions{Issuer: "tokens", Audience: "platform"})
	verifier := NewJWTManager(NewStaticKeyProvider("k1", testKey), JWTOptions{Issuer: "tokens", Audience: "platform"})

	signed, err := signer.Sign(testClaims(now))
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	if _, err := verifier.Parse(signed); !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		t.Fatalf("expected signature error, got %v", err)
	}

	other := NewJWTManager(NewStaticKeyProvider("k1", testKey), JWTOptions{Issuer: "tokens", Audience: "elsewhere"})
	signed, err = verifier.Sign(testClaims(now))
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	if _, err := other.Parse(signed); !errors.Is(err, jwt.ErrTokenInvalidAudience) {
		t.Fatalf("expected audience error, got %v", err)
	}
}

func TestJWTManagerRejectsGarbage(t *testing.T) {
	manager := NewJWTManager(NewStaticKeyProvider("k1", testKey), JWTOptions{})
	if _, err := manager.Parse("not-a-token"); !errors.Is(err, jwt.ErrTokenMalformed) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestJWTManagerJWKS(t *testing.T) {
	manager := NewJWTManager(NewStaticKeyProvider("k1", testKey), JWTOptions{})
	payload, err := manager.JWKS()
	if err != nil {
		t.Fatalf("JWKS returned error: %v", err)
	}

	var doc struct {
		Keys []map[string]string `json:"keys"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		t.Fatalf("decode jwks: %v", err)
	}
	if len(doc.Keys) != 1 || doc.Keys[0]["kid"] != "k1" || doc.Keys[0]["alg"] != "RS256" {
		t.Fatalf("unexpected jwks: %s", payload)
	}
}

func TestLoadKeyDirectoryPicksLastPrivateKey(t *testing.T) {
	dir := t.TempDir()
	writePEM(t, filepath.Join(dir, "2024-01.pem"), "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(testKey))
	newer := mustKey()
	pkcs8, err := x509.MarshalPKCS8PrivateKey(newer)
	if err != nil {
		t.Fatalf("marshal pkcs8: %v", err)
	}
	writePEM(t, filepath.Join(dir, "2024-02.pem"), "PRIVATE KEY", pkcs8)

	provider, err := LoadKeyDirectory(dir)
	if err != nil {
		t.Fatalf("LoadKeyDirectory returned error: %v", err)
	}
	kid, key, err := provider.SigningKey()
	if err != nil || kid != "2024-02" || key.N.Cmp(newer.N) != 0 {
		t.Fatalf("expected newest key to sign, got kid=%s err=%v", kid, err)
	}
	if _, err := provider.VerificationKey("2024-01"); err != nil {
		t.Fatalf("expected old key to keep verifying: %v", err)
	}
	if _, err := provider.VerificationKey("missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestLoadKeyDirectoryRequiresPrivateKey(t *testing.T) {
	dir := t.TempDir()
	writePEM(t, filepath.Join(dir, "public.pem"), "RSA PUBLIC KEY", x509.MarshalPKCS1PublicKey(&testKey.PublicKey))

	if _, err := LoadKeyDirectory(dir); !errors.Is(err, ErrNoSigningKey) {
		t.Fatalf("expected ErrNoSigningKey, got %v", err)
	}
}

func writePEM(t *testing.T, path, blockType string, der []byte) {
	t.Helper()
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
