package domain

import "time"

// DeviceInfo captures where a session was established from.
type DeviceInfo struct {
	UserAgent string  `json:"user_agent,omitempty"`
	IPAddress string  `json:"ip_address,omitempty"`
	DeviceID  *string `json:"device_id,omitempty"`
}

// Session represents a tracked login bound to the jti of its refresh token.
type Session struct {
	ID           string     `json:"session_id"`
	UserID       string     `json:"user_id"`
	Device       DeviceInfo `json:"device_info"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
	ExpiresAt    time.Time  `json:"expires_at"`
}

// IsActive reports whether the session has not yet reached its refresh expiry.
func (s Session) IsActive(at time.Time) bool {
	return s.ExpiresAt.After(at)
}

// Touch records activity on the session.
func (s *Session) Touch(at time.Time) {
	if at.After(s.LastActivity) {
		s.LastActivity = at
	}
}

// Rebind moves the session onto a freshly rotated refresh token.
func (s Session) Rebind(jti string, expiresAt, at time.Time) Session {
	next := s
	next.ID = jti
	next.ExpiresAt = expiresAt
	next.Touch(at)
	return next
}

// SessionView is a session enriched with caller-relative information.
type SessionView struct {
	Session
	IsCurrent bool `json:"is_current"`
}
