package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/repository"
)

const defaultTouchTimeout = 200 * time.Millisecond

// SessionRegistry tracks the sessions of each user and revokes them through
// the revocation store.
type SessionRegistry struct {
	store        *RevocationStore
	logger       *zap.Logger
	now          func() time.Time
	touchTimeout time.Duration
}

// NewSessionRegistry constructs a SessionRegistry.
func NewSessionRegistry(store *RevocationStore, logger *zap.Logger) *SessionRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionRegistry{
		store:        store,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
		touchTimeout: defaultTouchTimeout,
	}
}

// WithClock overrides the registry clock for deterministic tests.
func (r *SessionRegistry) WithClock(clock func() time.Time) *SessionRegistry {
	if clock != nil {
		r.now = clock
	}
	return r
}

// Register records a session keyed by the refresh jti.
func (r *SessionRegistry) Register(ctx context.Context, userID, jti string, device domain.DeviceInfo, expiresAt time.Time) (domain.Session, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(jti) == "" {
		return domain.Session{}, fmt.Errorf("%w: user id and session id are required", ErrInvalidInput)
	}
	now := r.now()
	session := domain.Session{
		ID:           jti,
		UserID:       userID,
		Device:       device,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    expiresAt,
	}
	if err := r.store.AddSession(ctx, session); err != nil {
		return domain.Session{}, fmt.Errorf("register session: %w", err)
	}
	return session, nil
}

// List returns the user's live sessions, most recently active first.
func (r *SessionRegistry) List(ctx context.Context, userID string) ([]domain.Session, error) {
	return r.store.ListSessions(ctx, userID)
}

// Get returns a single session or ErrSessionNotFound.
func (r *SessionRegistry) Get(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	session, err := r.store.GetSession(ctx, userID, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// RevokeOne blacklists the session's refresh jti until its expiry and removes
// the session.
func (r *SessionRegistry) RevokeOne(ctx context.Context, userID, sessionID string, reason domain.RevocationReason) error {
	session, err := r.Get(ctx, userID, sessionID)
	if err != nil {
		return err
	}

	if !r.store.Revoke(ctx, r.entryFor(*session, reason)) {
		r.logger.Error("session revocation not persisted",
			zap.String("user_id", userID),
			zap.String("session_id", sessionID),
			zap.String("reason", string(reason)),
		)
	}

	removed, err := r.store.RemoveSession(ctx, userID, sessionID)
	if err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	if !removed {
		// Removed concurrently; the blacklist entry above still applies.
		r.logger.Debug("session already removed", zap.String("session_id", sessionID))
	}
	return nil
}

// RevokeAll removes every session except exceptJTI, blacklists each removed
// refresh jti and bumps the token version. It returns the number of sessions
// removed.
func (r *SessionRegistry) RevokeAll(ctx context.Context, userID, exceptJTI string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	removed, _, err := r.store.RevokeAllSessions(ctx, userID, exceptJTI)
	for _, session := range removed {
		if !r.store.Revoke(ctx, r.entryFor(session, domain.RevocationReasonLogoutAll)) {
			r.logger.Error("session revocation not persisted",
				zap.String("user_id", userID),
				zap.String("session_id", session.ID),
				zap.String("reason", string(domain.RevocationReasonLogoutAll)),
			)
		}
	}
	if err != nil {
		return len(removed), err
	}
	return len(removed), nil
}

// Rotate moves the session from the consumed refresh jti onto the new one.
// A session that vanished meanwhile is registered afresh.
func (r *SessionRegistry) Rotate(ctx context.Context, userID, oldJTI, newJTI string, expiresAt time.Time, device domain.DeviceInfo) (domain.Session, error) {
	now := r.now()
	current, err := r.store.GetSession(ctx, userID, oldJTI)
	switch {
	case err == nil:
		next := current.Rebind(newJTI, expiresAt, now)
		if device.IPAddress != "" {
			next.Device.IPAddress = device.IPAddress
		}
		if device.UserAgent != "" {
			next.Device.UserAgent = device.UserAgent
		}
		replaced, err := r.store.ReplaceSession(ctx, userID, oldJTI, next)
		if err != nil {
			return domain.Session{}, fmt.Errorf("move session: %w", err)
		}
		if replaced {
			return next, nil
		}
	case !errors.Is(err, repository.ErrNotFound):
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}

	return r.Register(ctx, userID, newJTI, device, expiresAt)
}

// Touch records activity on the session without blocking the caller.
func (r *SessionRegistry) Touch(ctx context.Context, userID, sessionID string) {
	if userID == "" || sessionID == "" {
		return
	}
	at := r.now()
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.touchTimeout)
		defer cancel()
		if err := r.store.TouchSession(ctx, userID, sessionID, at); err != nil {
			r.logger.Debug("session touch failed",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	}()
}

func (r *SessionRegistry) entryFor(session domain.Session, reason domain.RevocationReason) domain.BlacklistEntry {
	userID := session.UserID
	expiresAt := session.ExpiresAt
	return domain.BlacklistEntry{
		JTI:       session.ID,
		Reason:    reason,
		UserID:    &userID,
		RevokedAt: r.now(),
		ExpiresAt: &expiresAt,
	}
}
