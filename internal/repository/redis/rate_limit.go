package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	red "github.com/redis/go-redis/v9"
)

const rateLimitKind = "ratelimit"

// RateLimitWindow describes a sliding window after recording an attempt.
type RateLimitWindow struct {
	Count  int
	Oldest time.Time
}

// RateLimitRepository keeps a sliding log of attempts per identifier in a sorted set.
type RateLimitRepository struct {
	client red.UniversalClient
	keys   keyspace
}

// NewRateLimitRepository constructs a repository using the provided Redis client.
func NewRateLimitRepository(client red.UniversalClient, keyPrefix string) *RateLimitRepository {
	return &RateLimitRepository{client: client, keys: newKeyspace(keyPrefix)}
}

// Hit records an attempt at the supplied instant, drops attempts that left the
// window and reports the window contents. All steps run in one MULTI block.
func (r *RateLimitRepository) Hit(ctx context.Context, identifier string, window time.Duration, at time.Time) (RateLimitWindow, error) {
	if window <= 0 {
		return RateLimitWindow{}, errors.New("window must be positive")
	}
	key := r.keys.key(rateLimitKind, identifier)
	if key == "" {
		return RateLimitWindow{}, errors.New("identifier is required")
	}

	threshold := strconv.FormatInt(at.Add(-window).UnixNano(), 10)
	member := strconv.FormatInt(at.UnixNano(), 10) + ":" + uuid.NewString()[:8]

	var (
		card   *red.IntCmd
		oldest *red.ZSliceCmd
	)
	_, err := r.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+threshold)
		pipe.ZAdd(ctx, key, red.Z{Score: float64(at.UnixNano()), Member: member})
		card = pipe.ZCard(ctx, key)
		oldest = pipe.ZRangeWithScores(ctx, key, 0, 0)
		pipe.PExpire(ctx, key, window)
		return nil
	})
	if err != nil {
		return RateLimitWindow{}, fmt.Errorf("redis rate limit hit: %w", err)
	}

	result := RateLimitWindow{Count: int(card.Val()), Oldest: at}
	if entries := oldest.Val(); len(entries) > 0 {
		result.Oldest = time.Unix(0, int64(entries[0].Score)).UTC()
	}
	return result, nil
}
