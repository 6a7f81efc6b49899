package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/port"
)

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Blacklist     *BlacklistRepository
	TokenVersions *TokenVersionRepository
	Users         *UserDirectory
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool, verifier port.PasswordVerifier) *Repositories {
	return &Repositories{
		Blacklist:     NewBlacklistRepository(pool),
		TokenVersions: NewTokenVersionRepository(pool),
		Users:         NewUserDirectory(pool, verifier),
	}
}
