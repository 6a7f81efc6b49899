package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/repository"
)

const minEntryTTL = time.Second

// BlacklistRepository stores revoked jtis as keys expiring with the token they revoke.
type BlacklistRepository struct {
	client red.UniversalClient
	keys   keyspace
	now    func() time.Time
}

type blacklistValue struct {
	Reason    domain.RevocationReason `json:"reason"`
	UserID    *string                 `json:"user_id,omitempty"`
	RevokedAt time.Time               `json:"revoked_at"`
}

// NewBlacklistRepository wires a Redis client into a blacklist repository.
func NewBlacklistRepository(client red.UniversalClient, keyPrefix string) *BlacklistRepository {
	return &BlacklistRepository{client: client, keys: newKeyspace(keyPrefix), now: time.Now}
}

// WithClock overrides the time source, used by tests.
func (r *BlacklistRepository) WithClock(now func() time.Time) *BlacklistRepository {
	if now != nil {
		r.now = now
	}
	return r
}

// Add writes the entry, overwriting any previous record for the same jti.
func (r *BlacklistRepository) Add(ctx context.Context, entry domain.BlacklistEntry, retainUntil time.Time) error {
	key, payload, ttl, err := r.prepare(entry, retainUntil)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set blacklist entry: %w", err)
	}
	return nil
}

// AddIfAbsent writes the entry only when the jti is not blacklisted yet.
// It is the compare-and-set used to consume refresh tokens exactly once.
func (r *BlacklistRepository) AddIfAbsent(ctx context.Context, entry domain.BlacklistEntry, retainUntil time.Time) (bool, error) {
	key, payload, ttl, err := r.prepare(entry, retainUntil)
	if err != nil {
		return false, err
	}
	created, err := r.client.SetNX(ctx, key, payload, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx blacklist entry: %w", err)
	}
	return created, nil
}

// Contains reports whether the jti is blacklisted.
func (r *BlacklistRepository) Contains(ctx context.Context, jti string) (bool, error) {
	key := r.keys.key("blacklist", jti)
	if key == "" {
		return false, fmt.Errorf("%w: jti must not be empty", repository.ErrInvalidArgument)
	}
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists blacklist entry: %w", err)
	}
	return n > 0, nil
}

// Reason returns the stored revocation reason for a blacklisted jti.
func (r *BlacklistRepository) Reason(ctx context.Context, jti string) (domain.RevocationReason, error) {
	key := r.keys.key("blacklist", jti)
	if key == "" {
		return "", fmt.Errorf("%w: jti must not be empty", repository.ErrInvalidArgument)
	}
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("redis get blacklist entry: %w", err)
	}
	var value blacklistValue
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("decode blacklist entry: %w", err)
	}
	return value.Reason, nil
}

func (r *BlacklistRepository) prepare(entry domain.BlacklistEntry, retainUntil time.Time) (string, []byte, time.Duration, error) {
	key := r.keys.key("blacklist", entry.JTI)
	if key == "" {
		return "", nil, 0, fmt.Errorf("%w: jti must not be empty", repository.ErrInvalidArgument)
	}
	ttl := retainUntil.Sub(r.now())
	if ttl < minEntryTTL {
		ttl = minEntryTTL
	}
	payload, err := json.Marshal(blacklistValue{
		Reason:    entry.Reason,
		UserID:    entry.UserID,
		RevokedAt: entry.RevokedAt.UTC(),
	})
	if err != nil {
		return "", nil, 0, fmt.Errorf("encode blacklist entry: %w", err)
	}
	return key, payload, ttl, nil
}
