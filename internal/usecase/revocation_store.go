package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/port"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/infra/breaker"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/repository"
)

const (
	defaultMinBlacklistTTL      = 60 * time.Second
	defaultFallbackBlacklistTTL = 7 * 24 * time.Hour
	defaultDurableQueryTimeout  = 500 * time.Millisecond
)

// Cache operation names reported to metrics.
const (
	opBlacklistAdd     = "blacklist_add"
	opBlacklistConsume = "blacklist_consume"
	opBlacklistCheck   = "blacklist_check"
	opVersionGet       = "version_get"
	opVersionIncrement = "version_increment"
	opSessionWrite     = "session_write"
	opSessionRead      = "session_read"
)

var errCacheSkipped = errors.New("cache marked unavailable")

// RevocationStoreOptions wires the tiers behind the revocation store.
type RevocationStoreOptions struct {
	Cache    port.BlacklistStore
	Durable  port.DurableBlacklistStore
	Versions port.TokenVersionStore
	// DurableVersions mirrors the version counters; nil keeps them cache only.
	DurableVersions port.DurableTokenVersionStore
	Sessions        port.SessionStore
	Breaker         *breaker.CacheBreaker
	Metrics         port.RevocationMetrics
	Logger          *zap.Logger
	Now             func() time.Time

	// MinBlacklistTTL is the retention floor for entries bound to a token expiry.
	MinBlacklistTTL time.Duration
	// FallbackBlacklistTTL applies to entries without an expiry.
	FallbackBlacklistTTL time.Duration
	DurableQueryTimeout  time.Duration
}

// RevocationStore is the two-tier façade over the blacklist, the token
// version counters and the session registry. The cache answers first; the
// durable tables take blacklist and version traffic while the breaker
// reports the cache as unavailable.
type RevocationStore struct {
	cache           port.BlacklistStore
	durable         port.DurableBlacklistStore
	versions        port.TokenVersionStore
	durableVersions port.DurableTokenVersionStore
	sessions        port.SessionStore
	breaker         *breaker.CacheBreaker
	metrics         port.RevocationMetrics
	logger          *zap.Logger
	now             func() time.Time

	minTTL         time.Duration
	fallbackTTL    time.Duration
	durableTimeout time.Duration
}

// NewRevocationStore constructs the façade. Durable may be nil, in which case
// cache failures surface directly.
func NewRevocationStore(opts RevocationStoreOptions) *RevocationStore {
	s := &RevocationStore{
		cache:           opts.Cache,
		durable:         opts.Durable,
		versions:        opts.Versions,
		durableVersions: opts.DurableVersions,
		sessions:        opts.Sessions,
		breaker:         opts.Breaker,
		metrics:         opts.Metrics,
		logger:          opts.Logger,
		now:             opts.Now,
		minTTL:          opts.MinBlacklistTTL,
		fallbackTTL:     opts.FallbackBlacklistTTL,
		durableTimeout:  opts.DurableQueryTimeout,
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.minTTL <= 0 {
		s.minTTL = defaultMinBlacklistTTL
	}
	if s.fallbackTTL <= 0 {
		s.fallbackTTL = defaultFallbackBlacklistTTL
	}
	if s.durableTimeout <= 0 {
		s.durableTimeout = defaultDurableQueryTimeout
	}
	if s.breaker != nil {
		s.breaker.Subscribe(s.metrics.SetCacheAvailable)
	}
	return s
}

// CacheAvailable reports the breaker state without probing.
func (s *RevocationStore) CacheAvailable() bool {
	return s.breaker.Available()
}

// Revoke blacklists the entry in the cache, falling back to the durable
// table. It reports whether any tier recorded the entry and never returns an
// error so logout style callers can proceed.
func (s *RevocationStore) Revoke(ctx context.Context, entry domain.BlacklistEntry) bool {
	entry, retainUntil, err := s.prepare(entry)
	if err != nil {
		s.logger.Warn("rejecting blacklist entry", zap.Error(err))
		return false
	}

	cacheErr := s.cacheCall(ctx, opBlacklistAdd, func(ctx context.Context) error {
		return s.cache.Add(ctx, entry, retainUntil)
	})
	if cacheErr == nil {
		return true
	}
	if errors.Is(cacheErr, repository.ErrInvalidArgument) {
		return false
	}

	durableErr := s.durableCall(ctx, opBlacklistAdd, func(ctx context.Context) error {
		return s.durable.Add(ctx, entry, retainUntil)
	})
	if durableErr != nil {
		s.logger.Error("blacklist entry not persisted in any tier",
			zap.String("jti", entry.JTI),
			zap.String("reason", string(entry.Reason)),
			zap.NamedError("cache_error", cacheErr),
			zap.NamedError("durable_error", durableErr),
		)
		return false
	}
	s.copyToRecoveringCache(ctx, opBlacklistAdd, func(ctx context.Context) error {
		return s.cache.Add(ctx, entry, retainUntil)
	})
	return true
}

// ConsumeForRotation atomically blacklists a refresh token. Exactly one
// caller per jti observes true; the rest observe false. ErrStoreUnavailable
// is returned when neither tier answered.
func (s *RevocationStore) ConsumeForRotation(ctx context.Context, entry domain.BlacklistEntry) (bool, error) {
	entry, retainUntil, err := s.prepare(entry)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var claimed bool
	cacheErr := s.cacheCall(ctx, opBlacklistConsume, func(ctx context.Context) error {
		var err error
		claimed, err = s.cache.AddIfAbsent(ctx, entry, retainUntil)
		return err
	})
	if cacheErr == nil {
		return claimed, nil
	}
	if errors.Is(cacheErr, repository.ErrInvalidArgument) {
		return false, fmt.Errorf("%w: %v", ErrInvalidInput, cacheErr)
	}

	durableErr := s.durableCall(ctx, opBlacklistConsume, func(ctx context.Context) error {
		var err error
		claimed, err = s.durable.AddIfAbsent(ctx, entry, retainUntil)
		return err
	})
	if durableErr != nil {
		return false, fmt.Errorf("%w: consume %s: %v", ErrStoreUnavailable, entry.JTI, durableErr)
	}
	if claimed {
		s.copyToRecoveringCache(ctx, opBlacklistConsume, func(ctx context.Context) error {
			return s.cache.Add(ctx, entry, retainUntil)
		})
	}
	return claimed, nil
}

// IsRevoked reports whether the jti is blacklisted in the tier that answers.
// ErrStoreUnavailable is returned when neither tier answered; the caller's
// degradation policy decides what that means.
func (s *RevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	cacheErr := s.cacheCall(ctx, opBlacklistCheck, func(ctx context.Context) error {
		var err error
		revoked, err = s.cache.Contains(ctx, jti)
		return err
	})
	if cacheErr == nil {
		return revoked, nil
	}
	if errors.Is(cacheErr, repository.ErrInvalidArgument) {
		return false, fmt.Errorf("%w: %v", ErrInvalidInput, cacheErr)
	}

	durableErr := s.durableCall(ctx, opBlacklistCheck, func(ctx context.Context) error {
		var err error
		revoked, err = s.durable.Contains(ctx, jti)
		return err
	})
	if durableErr != nil {
		return false, fmt.Errorf("%w: lookup %s: %v", ErrStoreUnavailable, jti, durableErr)
	}
	return revoked, nil
}

// GetTokenVersion returns the user's current version, zero when never bumped.
// The durable mirror answers when the cache does not; ErrStoreUnavailable is
// returned only when neither tier answered.
func (s *RevocationStore) GetTokenVersion(ctx context.Context, userID string) (int64, error) {
	var version int64
	cacheErr := s.cacheCall(ctx, opVersionGet, func(ctx context.Context) error {
		var err error
		version, err = s.versions.GetTokenVersion(ctx, userID)
		return err
	})
	if cacheErr == nil {
		return version, nil
	}
	if s.durableVersions == nil || errors.Is(cacheErr, repository.ErrInvalidArgument) {
		return 0, s.cacheFailure("read token version", cacheErr)
	}

	durableErr := s.fallbackCall(ctx, opVersionGet, func(ctx context.Context) error {
		var err error
		version, err = s.durableVersions.GetTokenVersion(ctx, userID)
		return err
	})
	if durableErr != nil {
		return 0, fmt.Errorf("%w: read token version %s: cache: %v: durable: %v", ErrStoreUnavailable, userID, cacheErr, durableErr)
	}
	return version, nil
}

// IncrementTokenVersion bumps the user's version in the cache and mirrors
// the result into the durable tier. While the breaker reports the cache as
// unavailable only the durable counter is bumped; the recovery replay lifts
// the cache to it before cache reads resume. Without a durable mirror the
// cache is attempted regardless of the breaker.
func (s *RevocationStore) IncrementTokenVersion(ctx context.Context, userID string) (int64, error) {
	var cacheErr error
	if s.durableVersions == nil || s.breaker.Available() {
		var version int64
		version, cacheErr = s.versions.IncrementTokenVersion(ctx, userID)
		s.recordCacheResult(ctx, opVersionIncrement, cacheErr)
		if cacheErr == nil {
			s.mirrorTokenVersion(ctx, userID, version)
			return version, nil
		}
		if s.durableVersions == nil || errors.Is(cacheErr, repository.ErrInvalidArgument) {
			return 0, s.cacheFailure("increment token version", cacheErr)
		}
	} else {
		s.metrics.ObserveCacheOperation(opVersionIncrement, "skipped")
		cacheErr = errCacheSkipped
	}

	var version int64
	durableErr := s.fallbackCall(ctx, opVersionIncrement, func(ctx context.Context) error {
		var err error
		version, err = s.durableVersions.IncrementTokenVersion(ctx, userID)
		return err
	})
	if durableErr != nil {
		return 0, fmt.Errorf("%w: increment token version %s: cache: %v: durable: %v", ErrStoreUnavailable, userID, cacheErr, durableErr)
	}
	s.logger.Warn("token version bumped in durable tier only",
		zap.String("user_id", userID),
		zap.Int64("version", version),
		zap.NamedError("cache_error", cacheErr),
	)
	s.copyToRecoveringCache(ctx, opVersionIncrement, func(ctx context.Context) error {
		_, err := s.versions.RaiseTokenVersion(ctx, userID, version)
		return err
	})
	return version, nil
}

// mirrorTokenVersion copies a cache bump into the durable tier. A lost mirror
// only matters during a later cache outage, so it is logged and not returned.
func (s *RevocationStore) mirrorTokenVersion(ctx context.Context, userID string, version int64) {
	if s.durableVersions == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.durableTimeout)
	defer cancel()
	if _, err := s.durableVersions.RaiseTokenVersion(ctx, userID, version); err != nil {
		s.logger.Error("token version not mirrored to durable tier",
			zap.String("user_id", userID),
			zap.Int64("version", version),
			zap.Error(err),
		)
	}
}

// RevocationReason reports why a jti was blacklisted when the cache keeps
// that detail. The second result is false when the reason is unknown.
func (s *RevocationStore) RevocationReason(ctx context.Context, jti string) (domain.RevocationReason, bool) {
	reader, ok := s.cache.(port.BlacklistReasonReader)
	if !ok {
		return "", false
	}
	var reason domain.RevocationReason
	err := s.cacheCall(ctx, opBlacklistCheck, func(ctx context.Context) error {
		var err error
		reason, err = reader.Reason(ctx, jti)
		return err
	})
	if err != nil {
		return "", false
	}
	return reason, true
}

// AddSession registers a session in the cache.
func (s *RevocationStore) AddSession(ctx context.Context, session domain.Session) error {
	err := s.cacheCall(ctx, opSessionWrite, func(ctx context.Context) error {
		return s.sessions.AddSession(ctx, session)
	})
	if err != nil {
		return s.cacheFailure("add session", err)
	}
	return nil
}

// GetSession returns the session or repository.ErrNotFound.
func (s *RevocationStore) GetSession(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	var session *domain.Session
	err := s.cacheCall(ctx, opSessionRead, func(ctx context.Context) error {
		var err error
		session, err = s.sessions.GetSession(ctx, userID, sessionID)
		return err
	})
	if err != nil {
		return nil, s.cacheFailure("get session", err)
	}
	return session, nil
}

// ListSessions returns the user's live sessions. An unavailable cache yields
// an empty list rather than an error.
func (s *RevocationStore) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	var sessions []domain.Session
	err := s.cacheCall(ctx, opSessionRead, func(ctx context.Context) error {
		var err error
		sessions, err = s.sessions.ListSessions(ctx, userID)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrInvalidArgument) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		s.logger.Warn("session list unavailable, returning empty list",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return []domain.Session{}, nil
	}
	return sessions, nil
}

// RemoveSession deletes a single session and reports whether it existed.
func (s *RevocationStore) RemoveSession(ctx context.Context, userID, sessionID string) (bool, error) {
	var removed bool
	err := s.cacheCall(ctx, opSessionWrite, func(ctx context.Context) error {
		var err error
		removed, err = s.sessions.RemoveSession(ctx, userID, sessionID)
		return err
	})
	if err != nil {
		return false, s.cacheFailure("remove session", err)
	}
	return removed, nil
}

// RevokeAllSessions removes every session except the given one and bumps the
// token version. The bump is attempted even when the removal failed; its
// error is the one returned because it is the guarantee callers depend on.
func (s *RevocationStore) RevokeAllSessions(ctx context.Context, userID, exceptSessionID string) ([]domain.Session, int64, error) {
	var removed []domain.Session
	removeErr := s.cacheCall(ctx, opSessionWrite, func(ctx context.Context) error {
		var err error
		removed, err = s.sessions.RemoveAllSessions(ctx, userID, exceptSessionID)
		return err
	})
	if removeErr != nil {
		s.logger.Warn("session removal failed during revoke-all",
			zap.String("user_id", userID),
			zap.Error(removeErr),
		)
	}

	version, err := s.IncrementTokenVersion(ctx, userID)
	if err != nil {
		return removed, 0, err
	}
	return removed, version, nil
}

// ReplaceSession moves a session onto a rotated jti. It reports false when
// the old session no longer exists.
func (s *RevocationStore) ReplaceSession(ctx context.Context, userID, oldSessionID string, next domain.Session) (bool, error) {
	var replaced bool
	err := s.cacheCall(ctx, opSessionWrite, func(ctx context.Context) error {
		var err error
		replaced, err = s.sessions.ReplaceSession(ctx, userID, oldSessionID, next)
		return err
	})
	if err != nil {
		return false, s.cacheFailure("replace session", err)
	}
	return replaced, nil
}

// TouchSession refreshes a session's last activity when it still exists.
func (s *RevocationStore) TouchSession(ctx context.Context, userID, sessionID string, at time.Time) error {
	err := s.cacheCall(ctx, opSessionWrite, func(ctx context.Context) error {
		return s.sessions.TouchSession(ctx, userID, sessionID, at)
	})
	if err != nil {
		return s.cacheFailure("touch session", err)
	}
	return nil
}

func (s *RevocationStore) prepare(entry domain.BlacklistEntry) (domain.BlacklistEntry, time.Time, error) {
	if entry.JTI == "" {
		return entry, time.Time{}, errors.New("blacklist entry requires a jti")
	}
	now := s.now().UTC()
	if entry.RevokedAt.IsZero() {
		entry.RevokedAt = now
	}
	if !entry.Reason.Valid() {
		entry.Reason = domain.RevocationReasonSecurity
	}
	return entry, entry.RetainUntil(now, s.minTTL, s.fallbackTTL), nil
}

// copyToRecoveringCache repeats a durable-only write against the cache while
// the breaker's recovery replay runs, since the replay may already have read
// past it. A failed copy aborts the recovery.
func (s *RevocationStore) copyToRecoveringCache(ctx context.Context, op string, fn func(context.Context) error) {
	if !s.breaker.Recovering() {
		return
	}
	if err := fn(ctx); err != nil {
		s.breaker.RecordFailure(ctx)
		s.metrics.ObserveCacheOperation(op, "error")
		s.logger.Warn("cache copy during recovery failed",
			zap.String("op", op),
			zap.Error(err),
		)
		return
	}
	s.metrics.ObserveCacheOperation(op, "ok")
}

// cacheCall runs fn against the cache when the breaker allows it and keeps
// the breaker in step with the outcome.
func (s *RevocationStore) cacheCall(ctx context.Context, op string, fn func(context.Context) error) error {
	if s.breaker != nil && !s.breaker.Allow(ctx) {
		s.metrics.ObserveCacheOperation(op, "skipped")
		return errCacheSkipped
	}
	err := fn(ctx)
	s.recordCacheResult(ctx, op, err)
	return err
}

func (s *RevocationStore) recordCacheResult(ctx context.Context, op string, err error) {
	switch {
	case err == nil, errors.Is(err, repository.ErrNotFound):
		s.breaker.RecordSuccess()
		s.metrics.ObserveCacheOperation(op, "ok")
	case errors.Is(err, repository.ErrInvalidArgument):
		s.metrics.ObserveCacheOperation(op, "rejected")
	default:
		s.breaker.RecordFailure(ctx)
		s.metrics.ObserveCacheOperation(op, "error")
		s.logger.Warn("cache operation failed",
			zap.String("op", op),
			zap.Error(err),
		)
	}
}

func (s *RevocationStore) durableCall(ctx context.Context, op string, fn func(context.Context) error) error {
	if s.durable == nil {
		return errors.New("durable blacklist not configured")
	}
	return s.fallbackCall(ctx, op, fn)
}

// fallbackCall runs fn against a durable tier under the fallback timeout.
func (s *RevocationStore) fallbackCall(ctx context.Context, op string, fn func(context.Context) error) error {
	s.metrics.IncFallback(op)

	ctx, cancel := context.WithTimeout(ctx, s.durableTimeout)
	defer cancel()
	return fn(ctx)
}

func (s *RevocationStore) cacheFailure(action string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return err
	case errors.Is(err, repository.ErrInvalidArgument):
		return fmt.Errorf("%w: %s: %v", ErrInvalidInput, action, err)
	default:
		return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, action, err)
	}
}

type noopMetrics struct{}

func (noopMetrics) ObserveCacheOperation(string, string) {}
func (noopMetrics) IncFallback(string)                   {}
func (noopMetrics) SetCacheAvailable(bool)               {}
func (noopMetrics) IncValidation(string)                 {}
func (noopMetrics) IncAuditFailure()                     {}
