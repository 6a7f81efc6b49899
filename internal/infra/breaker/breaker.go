// Package breaker tracks whether the shared cache is reachable so that
// callers stop probing a down cache on every request.
package breaker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultRecheckInterval bounds how often an unavailable cache is probed.
	DefaultRecheckInterval = 60 * time.Second
	// DefaultRecoveryTimeout bounds a single recovery run.
	DefaultRecoveryTimeout = 2 * time.Minute
)

// ProbeFunc checks whether the protected dependency answers.
type ProbeFunc func(ctx context.Context) error

// RecoveryFunc brings a reachable cache back in line with state written while
// it was down. The cache is not marked available until it returns nil.
type RecoveryFunc func(ctx context.Context) error

// Options configures a CacheBreaker.
type Options struct {
	Probe           ProbeFunc
	RecheckInterval time.Duration
	RecoveryTimeout time.Duration
	Now             func() time.Time
	// OnStateChange is invoked after every transition, outside any lock.
	OnStateChange func(available bool)
}

// CacheBreaker holds the "cache reachable" flag and the time it was last
// checked. All state is atomic; a single caller wins the right to probe once
// the recheck interval has elapsed. With a recovery function registered a
// reachable cache stays unavailable until that function has run.
type CacheBreaker struct {
	available   atomic.Bool
	lastChecked atomic.Int64

	recovery        atomic.Pointer[RecoveryFunc]
	recovering      atomic.Bool
	recoveryAborted atomic.Bool

	probe           ProbeFunc
	interval        time.Duration
	recoveryTimeout time.Duration
	now             func() time.Time

	listenersMu sync.RWMutex
	listeners   []func(available bool)
}

// New returns a breaker that starts in the available state.
func New(opts Options) *CacheBreaker {
	interval := opts.RecheckInterval
	if interval <= 0 {
		interval = DefaultRecheckInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	recoveryTimeout := opts.RecoveryTimeout
	if recoveryTimeout <= 0 {
		recoveryTimeout = DefaultRecoveryTimeout
	}

	b := &CacheBreaker{probe: opts.Probe, interval: interval, recoveryTimeout: recoveryTimeout, now: now}
	b.available.Store(true)
	b.lastChecked.Store(now().UnixNano())
	if opts.OnStateChange != nil {
		b.listeners = append(b.listeners, opts.OnStateChange)
	}
	return b
}

// Subscribe registers an additional state change listener.
func (b *CacheBreaker) Subscribe(fn func(available bool)) {
	if b == nil || fn == nil {
		return
	}
	b.listenersMu.Lock()
	b.listeners = append(b.listeners, fn)
	b.listenersMu.Unlock()
}

// SetRecovery registers the function run between a successful health check
// and the cache being marked available. A nil fn restores immediate reopening.
func (b *CacheBreaker) SetRecovery(fn RecoveryFunc) {
	if b == nil {
		return
	}
	if fn == nil {
		b.recovery.Store(nil)
		return
	}
	b.recovery.Store(&fn)
}

// Recovering reports whether a recovery run is in flight. Writes that land in
// the fallback tier meanwhile should also be copied into the cache.
func (b *CacheBreaker) Recovering() bool {
	if b == nil {
		return false
	}
	return b.recovering.Load()
}

// Available reports the last known state without probing.
func (b *CacheBreaker) Available() bool {
	if b == nil {
		return true
	}
	return b.available.Load()
}

// LastChecked returns when the state was last confirmed or changed.
func (b *CacheBreaker) LastChecked() time.Time {
	return time.Unix(0, b.lastChecked.Load())
}

// Allow reports whether the cache should be attempted. While the cache is
// marked unavailable it returns false until the recheck interval elapses;
// then exactly one caller probes and, on success, the breaker closes again
// or, with a recovery function registered, starts recovery.
func (b *CacheBreaker) Allow(ctx context.Context) bool {
	if b == nil {
		return true
	}
	if b.available.Load() {
		return true
	}
	if b.recovering.Load() {
		return false
	}

	last := b.lastChecked.Load()
	now := b.now().UnixNano()
	if time.Duration(now-last) < b.interval {
		return false
	}
	if !b.lastChecked.CompareAndSwap(last, now) {
		return false
	}

	if b.probe != nil {
		if err := b.probe(ctx); err != nil {
			return false
		}
	}
	b.RecordSuccess()
	return b.available.Load()
}

// RecordSuccess marks the cache reachable. With a recovery function
// registered an unavailable cache starts recovery instead.
func (b *CacheBreaker) RecordSuccess() {
	if b == nil || b.available.Load() {
		return
	}
	if fn := b.recovery.Load(); fn != nil {
		b.startRecovery(*fn)
		return
	}
	b.markAvailable()
}

func (b *CacheBreaker) markAvailable() {
	if !b.available.Swap(true) {
		b.lastChecked.Store(b.now().UnixNano())
		b.notify(true)
	}
}

func (b *CacheBreaker) startRecovery(fn RecoveryFunc) {
	if !b.recovering.CompareAndSwap(false, true) {
		return
	}
	b.recoveryAborted.Store(false)

	go func() {
		defer b.recovering.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), b.recoveryTimeout)
		defer cancel()
		err := fn(ctx)
		if err != nil || b.recoveryAborted.Load() {
			b.lastChecked.Store(b.now().UnixNano())
			return
		}
		b.markAvailable()
	}()
}

// RecordFailure marks the cache unreachable and restarts the recheck interval.
// Failures caused by the caller's own cancellation are ignored.
func (b *CacheBreaker) RecordFailure(ctx context.Context) {
	if b == nil {
		return
	}
	if ctx != nil && ctx.Err() != nil {
		return
	}
	b.lastChecked.Store(b.now().UnixNano())
	if b.recovering.Load() {
		b.recoveryAborted.Store(true)
	}
	if b.available.Swap(false) {
		b.notify(false)
	}
}

func (b *CacheBreaker) notify(available bool) {
	b.listenersMu.RLock()
	listeners := append([]func(bool){}, b.listeners...)
	b.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(available)
	}
}
