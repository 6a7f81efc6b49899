package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/repository"
)

// removeAllExceptScript deletes every session field except ARGV[1] and
// returns the removed payloads, so a bulk revoke is a single atomic step.
var removeAllExceptScript = red.NewScript(`
local entries = redis.call('HGETALL', KEYS[1])
local removed = {}
for i = 1, #entries, 2 do
  if entries[i] ~= ARGV[1] then
    redis.call('HDEL', KEYS[1], entries[i])
    removed[#removed + 1] = entries[i + 1]
  end
end
return removed
`)

// replaceIfPresentScript swaps field ARGV[1] for ARGV[2] only while the old
// field still exists, so a concurrent revoke is never undone.
var replaceIfPresentScript = red.NewScript(`
if redis.call('HDEL', KEYS[1], ARGV[1]) == 1 then
  redis.call('HSET', KEYS[1], ARGV[2], ARGV[3])
  return 1
end
return 0
`)

// touchIfPresentScript rewrites field ARGV[1] only while it still exists.
var touchIfPresentScript = red.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
  redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
  return 1
end
return 0
`)

// SessionRepository keeps one hash per user mapping refresh jti to session metadata.
type SessionRepository struct {
	client red.UniversalClient
	keys   keyspace
	now    func() time.Time
}

// NewSessionRepository wires a Redis client into a session repository.
func NewSessionRepository(client red.UniversalClient, keyPrefix string) *SessionRepository {
	return &SessionRepository{client: client, keys: newKeyspace(keyPrefix), now: time.Now}
}

// WithClock overrides the time source, used by tests.
func (r *SessionRepository) WithClock(now func() time.Time) *SessionRepository {
	if now != nil {
		r.now = now
	}
	return r
}

// AddSession stores the session and extends the hash expiry to cover it.
func (r *SessionRepository) AddSession(ctx context.Context, session domain.Session) error {
	key := r.keys.key("sessions", session.UserID)
	if key == "" || session.ID == "" {
		return fmt.Errorf("%w: user id and session id are required", repository.ErrInvalidArgument)
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, session.ID, payload)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis hset session: %w", err)
	}

	want := session.ExpiresAt.Sub(r.now())
	if want > ttl.Val() {
		if err := r.client.PExpire(ctx, key, want).Err(); err != nil {
			return fmt.Errorf("redis expire sessions: %w", err)
		}
	}
	return nil
}

// GetSession returns a single active session.
func (r *SessionRepository) GetSession(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	key := r.keys.key("sessions", userID)
	if key == "" || sessionID == "" {
		return nil, fmt.Errorf("%w: user id and session id are required", repository.ErrInvalidArgument)
	}

	raw, err := r.client.HGet(ctx, key, sessionID).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis hget session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if !session.IsActive(r.now()) {
		_ = r.client.HDel(ctx, key, sessionID).Err()
		return nil, repository.ErrNotFound
	}
	return &session, nil
}

// ListSessions returns active sessions ordered by most recent activity.
// Expired entries are pruned lazily.
func (r *SessionRepository) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	key := r.keys.key("sessions", userID)
	if key == "" {
		return nil, fmt.Errorf("%w: user id must not be empty", repository.ErrInvalidArgument)
	}

	values, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall sessions: %w", err)
	}

	now := r.now()
	sessions := make([]domain.Session, 0, len(values))
	var stale []string
	for field, raw := range values {
		var session domain.Session
		if err := json.Unmarshal([]byte(raw), &session); err != nil || !session.IsActive(now) {
			stale = append(stale, field)
			continue
		}
		sessions = append(sessions, session)
	}
	if len(stale) > 0 {
		_ = r.client.HDel(ctx, key, stale...).Err()
	}

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].LastActivity.Equal(sessions[j].LastActivity) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
	return sessions, nil
}

// RemoveSession deletes one session and reports whether it existed.
func (r *SessionRepository) RemoveSession(ctx context.Context, userID, sessionID string) (bool, error) {
	key := r.keys.key("sessions", userID)
	if key == "" || sessionID == "" {
		return false, fmt.Errorf("%w: user id and session id are required", repository.ErrInvalidArgument)
	}

	n, err := r.client.HDel(ctx, key, sessionID).Result()
	if err != nil {
		return false, fmt.Errorf("redis hdel session: %w", err)
	}
	return n > 0, nil
}

// RemoveAllSessions atomically deletes every session except exceptSessionID
// and returns what was removed, including already expired entries.
func (r *SessionRepository) RemoveAllSessions(ctx context.Context, userID, exceptSessionID string) ([]domain.Session, error) {
	key := r.keys.key("sessions", userID)
	if key == "" {
		return nil, fmt.Errorf("%w: user id must not be empty", repository.ErrInvalidArgument)
	}

	raw, err := removeAllExceptScript.Run(ctx, r.client, []string{key}, exceptSessionID).StringSlice()
	if err != nil && !errors.Is(err, red.Nil) {
		return nil, fmt.Errorf("redis remove sessions: %w", err)
	}

	removed := make([]domain.Session, 0, len(raw))
	for _, item := range raw {
		var session domain.Session
		if err := json.Unmarshal([]byte(item), &session); err != nil {
			continue
		}
		removed = append(removed, session)
	}
	return removed, nil
}

// ReplaceSession moves a session onto a new identifier, typically the jti of
// a rotated refresh token. It reports false when the old session is gone.
func (r *SessionRepository) ReplaceSession(ctx context.Context, userID, oldSessionID string, next domain.Session) (bool, error) {
	key := r.keys.key("sessions", userID)
	if key == "" || oldSessionID == "" || next.ID == "" {
		return false, fmt.Errorf("%w: user id and session ids are required", repository.ErrInvalidArgument)
	}

	payload, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("encode session: %w", err)
	}

	replaced, err := replaceIfPresentScript.Run(ctx, r.client, []string{key}, oldSessionID, next.ID, payload).Int()
	if err != nil {
		return false, fmt.Errorf("redis replace session: %w", err)
	}
	if replaced == 0 {
		return false, nil
	}

	want := next.ExpiresAt.Sub(r.now())
	ttl, err := r.client.PTTL(ctx, key).Result()
	if err == nil && want > ttl {
		if err := r.client.PExpire(ctx, key, want).Err(); err != nil {
			return true, fmt.Errorf("redis expire sessions: %w", err)
		}
	}
	return true, nil
}

// TouchSession records activity on an existing session without resurrecting
// one that was revoked concurrently.
func (r *SessionRepository) TouchSession(ctx context.Context, userID, sessionID string, at time.Time) error {
	session, err := r.GetSession(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	session.Touch(at)

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	key := r.keys.key("sessions", userID)
	updated, err := touchIfPresentScript.Run(ctx, r.client, []string{key}, sessionID, payload).Int()
	if err != nil {
		return fmt.Errorf("redis touch session: %w", err)
	}
	if updated == 0 {
		return repository.ErrNotFound
	}
	return nil
}
