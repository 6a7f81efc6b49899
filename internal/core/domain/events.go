package domain

import "time"

// AuditAction enumerates the token lifecycle events reported to the audit sink.
type AuditAction string

const (
	AuditActionLogin          AuditAction = "login"
	AuditActionTokenRefreshed AuditAction = "token_refreshed"
	AuditActionLogout         AuditAction = "logout"
	AuditActionLogoutAll      AuditAction = "logout_all"
	AuditActionSessionRevoked AuditAction = "session_revoked"
	AuditActionRefreshReplay  AuditAction = "refresh_replay_detected"
)

// AuditEvent is a fire-and-forget record of a lifecycle action.
type AuditEvent struct {
	ID         string
	Action     AuditAction
	UserID     string
	SessionID  string
	OccurredAt time.Time
	Metadata   map[string]any
}
