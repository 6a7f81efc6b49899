package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/port"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/infra/breaker"
)

const (
	defaultSweepInterval  = 5 * time.Minute
	defaultReplayBatch    = 500
	defaultSweepPassLimit = 30 * time.Second
	// Versions bumped this close to the previous sync are replayed again.
	versionSyncSkew = time.Minute
)

// SweepResult summarises a single sweeper pass.
type SweepResult struct {
	Deleted          int64
	Replayed         int
	VersionsReplayed int
	Skipped          bool
}

// BlacklistSweeper purges expired durable blacklist rows and copies live rows
// and token versions back into the cache so state written during a cache
// outage stays honoured once the cache returns.
type BlacklistSweeper struct {
	durable         port.DurableBlacklistStore
	cache           port.BlacklistStore
	durableVersions port.DurableTokenVersionStore
	cacheVersions   port.TokenVersionStore
	breaker         *breaker.CacheBreaker
	interval        time.Duration
	batch           int
	logger          *zap.Logger
	now             func() time.Time

	// passMu serialises passes; versionsSyncedAt is guarded by it.
	passMu           sync.Mutex
	versionsSyncedAt time.Time
}

// NewBlacklistSweeper constructs a sweeper. The sweeper registers itself as
// the breaker's recovery function: a recovered cache is only marked available
// after the durable backlog has been replayed into it.
func NewBlacklistSweeper(durable port.DurableBlacklistStore, cache port.BlacklistStore, cb *breaker.CacheBreaker, interval time.Duration, batch int, logger *zap.Logger) *BlacklistSweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if batch <= 0 {
		batch = defaultReplayBatch
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &BlacklistSweeper{
		durable:  durable,
		cache:    cache,
		breaker:  cb,
		interval: interval,
		batch:    batch,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if cache != nil {
		cb.SetRecovery(s.RecoverCache)
	}
	return s
}

// WithTokenVersions makes every replay also lift cached token versions to
// the durable counters.
func (s *BlacklistSweeper) WithTokenVersions(durable port.DurableTokenVersionStore, cache port.TokenVersionStore) *BlacklistSweeper {
	s.durableVersions = durable
	s.cacheVersions = cache
	return s
}

// WithClock overrides the sweeper clock for deterministic tests.
func (s *BlacklistSweeper) WithClock(clock func() time.Time) *BlacklistSweeper {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Run sweeps on every tick until ctx is done.
func (s *BlacklistSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		passCtx, cancel := context.WithTimeout(ctx, defaultSweepPassLimit)
		result, err := s.RunOnce(passCtx)
		cancel()
		if err != nil {
			s.logger.Warn("blacklist sweep failed", zap.Error(err))
			continue
		}
		s.logger.Debug("blacklist sweep finished",
			zap.Int64("deleted", result.Deleted),
			zap.Int("replayed", result.Replayed),
			zap.Int("versions_replayed", result.VersionsReplayed),
			zap.Bool("replay_skipped", result.Skipped),
		)
	}
}

// RunOnce performs one purge and replay pass. The replay is skipped while the
// breaker reports the cache unavailable; recovery runs its own replay.
func (s *BlacklistSweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	if s.durable == nil {
		return SweepResult{Skipped: true}, nil
	}
	s.passMu.Lock()
	defer s.passMu.Unlock()

	var result SweepResult
	deleted, err := s.durable.DeleteExpired(ctx, s.now())
	if err != nil {
		return result, fmt.Errorf("delete expired blacklist rows: %w", err)
	}
	result.Deleted = deleted

	if s.cache == nil || !s.breaker.Available() {
		result.Skipped = true
		return result, nil
	}

	if err := s.replay(ctx, &result, false); err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.breaker.RecordFailure(ctx)
		}
		return result, err
	}
	return result, nil
}

// RecoverCache replays every live durable blacklist row and every durable
// token version into the cache. The breaker runs it before reopening the
// cache, so a refresh token consumed during the outage cannot be consumed
// again through the cache.
func (s *BlacklistSweeper) RecoverCache(ctx context.Context) error {
	if s.durable == nil || s.cache == nil {
		return nil
	}
	s.passMu.Lock()
	defer s.passMu.Unlock()

	var result SweepResult
	if err := s.replay(ctx, &result, true); err != nil {
		s.logger.Warn("cache recovery replay failed",
			zap.Int("replayed", result.Replayed),
			zap.Int("versions_replayed", result.VersionsReplayed),
			zap.Error(err),
		)
		return err
	}
	s.logger.Info("cache recovery replay finished",
		zap.Int("replayed", result.Replayed),
		zap.Int("versions_replayed", result.VersionsReplayed),
	)
	return nil
}

func (s *BlacklistSweeper) replay(ctx context.Context, result *SweepResult, full bool) error {
	now := s.now()
	after := ""
	for {
		records, err := s.durable.ListActive(ctx, now, after, s.batch)
		if err != nil {
			return fmt.Errorf("list active blacklist rows: %w", err)
		}
		for _, record := range records {
			if err := s.cache.Add(ctx, record.Entry, record.RetainUntil); err != nil {
				return fmt.Errorf("replay %s: %w", record.Entry.JTI, err)
			}
			result.Replayed++
		}
		if len(records) < s.batch {
			break
		}
		after = records[len(records)-1].Entry.JTI
	}

	replayed, err := s.replayVersions(ctx, full)
	result.VersionsReplayed = replayed
	return err
}

// replayVersions raises cached versions to the durable counters. A full
// replay covers every user; otherwise only counters changed since the last
// sync are read.
func (s *BlacklistSweeper) replayVersions(ctx context.Context, full bool) (int, error) {
	if s.durableVersions == nil || s.cacheVersions == nil {
		return 0, nil
	}
	started := s.now()
	var since time.Time
	if !full && !s.versionsSyncedAt.IsZero() {
		since = s.versionsSyncedAt.Add(-versionSyncSkew)
	}

	replayed := 0
	after := ""
	for {
		versions, err := s.durableVersions.ListTokenVersions(ctx, since, after, s.batch)
		if err != nil {
			return replayed, fmt.Errorf("list token versions: %w", err)
		}
		for _, v := range versions {
			if _, err := s.cacheVersions.RaiseTokenVersion(ctx, v.UserID, v.Version); err != nil {
				return replayed, fmt.Errorf("replay token version %s: %w", v.UserID, err)
			}
			replayed++
		}
		if len(versions) < s.batch {
			break
		}
		after = versions[len(versions)-1].UserID
	}
	s.versionsSyncedAt = started
	return replayed, nil
}
