package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrKeyNotFound indicates no verification key is registered for a kid.
	ErrKeyNotFound = errors.New("key not found")
	// ErrNoSigningKey indicates the provider holds only public keys.
	ErrNoSigningKey = errors.New("no private key available for signing")
)

// KeyProvider supplies the active signing key and the verification keys by kid.
type KeyProvider interface {
	SigningKey() (string, *rsa.PrivateKey, error)
	VerificationKey(kid string) (*rsa.PublicKey, error)
	VerificationKeys() map[string]*rsa.PublicKey
}

// StaticKeyProvider serves a fixed key set.
type StaticKeyProvider struct {
	signingKID string
	signingKey *rsa.PrivateKey
	keys       map[string]*rsa.PublicKey
}

// NewStaticKeyProvider builds a provider that signs with key under kid.
func NewStaticKeyProvider(kid string, key *rsa.PrivateKey) *StaticKeyProvider {
	p := &StaticKeyProvider{keys: make(map[string]*rsa.PublicKey)}
	if key != nil {
		p.signingKID = kid
		p.signingKey = key
		p.keys[kid] = &key.PublicKey
	}
	return p
}

// NewEphemeralKeyProvider generates an in-memory RSA key. Tokens signed with
// it do not survive a restart and are not accepted by other instances.
func NewEphemeralKeyProvider(bits int) (*StaticKeyProvider, error) {
	if bits < 2048 {
		bits = 2048
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return NewStaticKeyProvider("ephemeral", key), nil
}

// LoadKeyDirectory reads PEM encoded RSA keys from dir. The kid of each key is
// its file name without extension; the lexically last private key signs, so
// rotating in "2025-02.pem" next to "2025-01.pem" switches signing while the
// old key keeps verifying.
func LoadKeyDirectory(dir string) (*StaticKeyProvider, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read key directory: %w", err)
	}

	names := make([]string, 0, len(files))
	for _, file := range files {
		if !file.IsDir() {
			names = append(names, file.Name())
		}
	}
	sort.Strings(names)

	provider := &StaticKeyProvider{keys: make(map[string]*rsa.PublicKey)}
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read key file %s: %w", path, err)
		}

		kid := strings.TrimSuffix(name, filepath.Ext(name))
		private, public, err := parseRSAKey(data)
		if err != nil {
			return nil, fmt.Errorf("parse key file %s: %w", path, err)
		}
		if private != nil {
			provider.signingKID = kid
			provider.signingKey = private
			public = &private.PublicKey
		}
		provider.keys[kid] = public
	}

	if provider.signingKey == nil {
		return nil, ErrNoSigningKey
	}
	return provider, nil
}

// SigningKey returns the kid and private key used for new tokens.
func (p *StaticKeyProvider) SigningKey() (string, *rsa.PrivateKey, error) {
	if p.signingKey == nil {
		return "", nil, ErrNoSigningKey
	}
	return p.signingKID, p.signingKey, nil
}

// VerificationKey returns the public key registered under kid.
func (p *StaticKeyProvider) VerificationKey(kid string) (*rsa.PublicKey, error) {
	key, ok := p.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// VerificationKeys returns a copy of all public keys by kid.
func (p *StaticKeyProvider) VerificationKeys() map[string]*rsa.PublicKey {
	out := make(map[string]*rsa.PublicKey, len(p.keys))
	for kid, key := range p.keys {
		out[kid] = key
	}
	return out
}

func parseRSAKey(data []byte) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, nil, errors.New("no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil, nil
		}
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return nil, key, nil
	}
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PublicKey); ok {
			return nil, rsaKey, nil
		}
	}
	return nil, nil, errors.New("unsupported key type")
}
