package port

import (
	"context"
	"time"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
)

// BlacklistStore records revoked token identifiers.
type BlacklistStore interface {
	// Add records the entry; adding an existing jti is a no-op from the reader's point of view.
	Add(ctx context.Context, entry domain.BlacklistEntry, retainUntil time.Time) error
	// AddIfAbsent records the entry only when the jti is not yet blacklisted and reports whether it did.
	AddIfAbsent(ctx context.Context, entry domain.BlacklistEntry, retainUntil time.Time) (bool, error)
	Contains(ctx context.Context, jti string) (bool, error)
}

// BlacklistReasonReader is implemented by blacklist tiers that keep the
// revocation reason alongside the jti.
type BlacklistReasonReader interface {
	Reason(ctx context.Context, jti string) (domain.RevocationReason, error)
}

// DurableBlacklistStore is the relational tier that needs explicit expiry management.
type DurableBlacklistStore interface {
	BlacklistStore
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	ListActive(ctx context.Context, at time.Time, afterJTI string, limit int) ([]DurableBlacklistRecord, error)
}

// DurableBlacklistRecord is a blacklist row together with its purge deadline.
type DurableBlacklistRecord struct {
	Entry       domain.BlacklistEntry
	RetainUntil time.Time
}

// TokenVersionStore keeps the per-user mass invalidation counter.
type TokenVersionStore interface {
	GetTokenVersion(ctx context.Context, userID string) (int64, error)
	IncrementTokenVersion(ctx context.Context, userID string) (int64, error)
	// RaiseTokenVersion lifts the stored version to atLeast and returns the
	// resulting value. A higher stored version is left untouched.
	RaiseTokenVersion(ctx context.Context, userID string, atLeast int64) (int64, error)
}

// DurableTokenVersionStore mirrors the version counters in the relational tier.
type DurableTokenVersionStore interface {
	TokenVersionStore
	ListTokenVersions(ctx context.Context, changedSince time.Time, afterUserID string, limit int) ([]DurableTokenVersion, error)
}

// DurableTokenVersion is a mirrored counter row.
type DurableTokenVersion struct {
	UserID    string
	Version   int64
	UpdatedAt time.Time
}

// SessionStore keeps the per-user collection of sessions keyed by refresh jti.
type SessionStore interface {
	AddSession(ctx context.Context, session domain.Session) error
	GetSession(ctx context.Context, userID, sessionID string) (*domain.Session, error)
	ListSessions(ctx context.Context, userID string) ([]domain.Session, error)
	RemoveSession(ctx context.Context, userID, sessionID string) (bool, error)
	RemoveAllSessions(ctx context.Context, userID, exceptSessionID string) ([]domain.Session, error)
	ReplaceSession(ctx context.Context, userID, oldSessionID string, next domain.Session) (bool, error)
	TouchSession(ctx context.Context, userID, sessionID string, at time.Time) error
}
