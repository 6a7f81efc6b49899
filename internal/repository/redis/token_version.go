package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/repository"
)

const defaultTokenVersionTTL = 365 * 24 * time.Hour

var raiseTokenVersionScript = red.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local wanted = tonumber(ARGV[1])
if wanted > current then
	redis.call('SET', KEYS[1], wanted, 'PX', ARGV[2])
	return wanted
end
return current
`)

// TokenVersionRepository keeps per-user token version counters.
type TokenVersionRepository struct {
	client red.UniversalClient
	keys   keyspace
	ttl    time.Duration
}

// NewTokenVersionRepository wires a Redis client into a token version repository.
// Counters are refreshed to ttl on every increment so they outlive any token.
func NewTokenVersionRepository(client red.UniversalClient, keyPrefix string, ttl time.Duration) *TokenVersionRepository {
	if ttl <= 0 {
		ttl = defaultTokenVersionTTL
	}
	return &TokenVersionRepository{client: client, keys: newKeyspace(keyPrefix), ttl: ttl}
}

// GetTokenVersion returns the stored version, or 0 when the user has none.
func (r *TokenVersionRepository) GetTokenVersion(ctx context.Context, userID string) (int64, error) {
	key := r.keys.key("token_version", userID)
	if key == "" {
		return 0, fmt.Errorf("%w: user id must not be empty", repository.ErrInvalidArgument)
	}

	raw, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get token version: %w", err)
	}

	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse token version: %w", err)
	}
	return version, nil
}

// IncrementTokenVersion atomically bumps the version and returns the new value.
func (r *TokenVersionRepository) IncrementTokenVersion(ctx context.Context, userID string) (int64, error) {
	key := r.keys.key("token_version", userID)
	if key == "" {
		return 0, fmt.Errorf("%w: user id must not be empty", repository.ErrInvalidArgument)
	}

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incr token version: %w", err)
	}
	return incr.Val(), nil
}

// RaiseTokenVersion sets the counter to atLeast unless it already holds a
// higher value. Used to replay versions bumped while the cache was down.
func (r *TokenVersionRepository) RaiseTokenVersion(ctx context.Context, userID string, atLeast int64) (int64, error) {
	key := r.keys.key("token_version", userID)
	if key == "" {
		return 0, fmt.Errorf("%w: user id must not be empty", repository.ErrInvalidArgument)
	}

	version, err := raiseTokenVersionScript.Run(ctx, r.client, []string{key}, atLeast, r.ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis raise token version: %w", err)
	}
	return version, nil
}
