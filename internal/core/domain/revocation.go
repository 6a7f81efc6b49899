package domain

import (
	"fmt"
	"strings"
	"time"
)

// RevocationReason enumerates why a token identifier was blacklisted.
type RevocationReason string

const (
	// RevocationReasonLogout is recorded when a user ends the current session.
	RevocationReasonLogout RevocationReason = "logout"
	// RevocationReasonTokenRotation is recorded when a refresh token is exchanged.
	RevocationReasonTokenRotation RevocationReason = "token_rotation"
	// RevocationReasonSessionRevoked is recorded when a single session is revoked.
	RevocationReasonSessionRevoked RevocationReason = "session_revoked"
	// RevocationReasonLogoutAll is recorded for every session ended by logout-all.
	RevocationReasonLogoutAll RevocationReason = "logout_all"
	// RevocationReasonSecurity is recorded for operator or anomaly driven revocation.
	RevocationReasonSecurity RevocationReason = "security"
)

var revocationReasons = map[RevocationReason]struct{}{
	RevocationReasonLogout:         {},
	RevocationReasonTokenRotation:  {},
	RevocationReasonSessionRevoked: {},
	RevocationReasonLogoutAll:      {},
	RevocationReasonSecurity:       {},
}

// ParseRevocationReason normalises raw input into a known reason.
func ParseRevocationReason(value string) (RevocationReason, error) {
	reason := RevocationReason(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := revocationReasons[reason]; !ok {
		return "", fmt.Errorf("unknown revocation reason %q", value)
	}
	return reason, nil
}

// Valid reports whether the reason is one of the known values.
func (r RevocationReason) Valid() bool {
	_, ok := revocationReasons[r]
	return ok
}

// BlacklistEntry records a revoked token identifier until its natural expiry.
type BlacklistEntry struct {
	JTI       string
	Reason    RevocationReason
	UserID    *string
	RevokedAt time.Time
	ExpiresAt *time.Time
}

// TTL returns how long the entry must be retained at the supplied instant.
// Entries bound to a token never live shorter than floor; entries without an
// expiry use fallback.
func (e BlacklistEntry) TTL(now time.Time, floor, fallback time.Duration) time.Duration {
	if e.ExpiresAt == nil {
		return fallback
	}
	remaining := e.ExpiresAt.Sub(now)
	if remaining < floor {
		return floor
	}
	return remaining
}

// RetainUntil returns the absolute instant the entry may be purged.
func (e BlacklistEntry) RetainUntil(now time.Time, floor, fallback time.Duration) time.Time {
	return now.Add(e.TTL(now, floor, fallback))
}
