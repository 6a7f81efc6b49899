package domain

import (
	"errors"
	"strings"
)

var (
	// ErrIdentityMissingID indicates an identity without a user identifier.
	ErrIdentityMissingID = errors.New("user id is required")
	// ErrIdentityInactive indicates an identity whose account is disabled.
	ErrIdentityInactive = errors.New("user account is inactive")
)

// UserIdentity is the resolved identity the token engine issues credentials for.
type UserIdentity struct {
	ID          string
	Email       string
	Role        string
	Permissions []string
	IsActive    bool
}

// Validate checks the identity carries enough information to be embedded in a token.
func (u UserIdentity) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return ErrIdentityMissingID
	}
	if !u.IsActive {
		return ErrIdentityInactive
	}
	return nil
}
