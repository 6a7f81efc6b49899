package port

import (
	"context"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
)

// UserDirectory resolves identities owned by the account service.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*domain.UserIdentity, error)
	FindByEmail(ctx context.Context, email string) (*domain.UserIdentity, error)
	VerifyCredentials(ctx context.Context, email, password string) (bool, error)
}
