package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/port"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/repository"
)

const usersTable = "users"

// UserDirectory resolves identities from the account service's users table.
type UserDirectory struct {
	exec     pgExecutor
	builder  squirrel.StatementBuilderType
	verifier port.PasswordVerifier
}

// NewUserDirectory wires a PostgreSQL-backed user directory.
func NewUserDirectory(exec pgExecutor, verifier port.PasswordVerifier) *UserDirectory {
	return &UserDirectory{exec: exec, builder: newBuilder(), verifier: verifier}
}

// GetUser retrieves a user by identifier.
func (d *UserDirectory) GetUser(ctx context.Context, id string) (*domain.UserIdentity, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id must not be empty", repository.ErrInvalidArgument)
	}
	return d.selectOne(ctx, squirrel.Eq{"id": id})
}

// FindByEmail retrieves a user by case-insensitive email.
func (d *UserDirectory) FindByEmail(ctx context.Context, email string) (*domain.UserIdentity, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email must not be empty", repository.ErrInvalidArgument)
	}
	return d.selectOne(ctx, squirrel.Expr("lower(email) = lower(?)", email))
}

// VerifyCredentials reports whether the password matches the stored hash of an active user.
func (d *UserDirectory) VerifyCredentials(ctx context.Context, email, password string) (bool, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return false, nil
	}

	sql, args, err := d.builder.
		Select("password_hash").
		From(usersTable).
		Where(squirrel.Expr("lower(email) = lower(?)", email)).
		Where(squirrel.Eq{"is_active": true}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build select password sql: %w", err)
	}

	var encoded string
	if err := d.exec.QueryRow(ctx, sql, args...).Scan(&encoded); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("select password hash: %w", err)
	}

	ok, err := d.verifier.Verify(password, encoded)
	if err != nil {
		return false, fmt.Errorf("verify password: %w", err)
	}
	return ok, nil
}

func (d *UserDirectory) selectOne(ctx context.Context, where squirrel.Sqlizer) (*domain.UserIdentity, error) {
	sql, args, err := d.builder.
		Select("id", "email", "role", "permissions", "is_active").
		From(usersTable).
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	var user domain.UserIdentity
	if err := d.exec.QueryRow(ctx, sql, args...).Scan(&user.ID, &user.Email, &user.Role, &user.Permissions, &user.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	user.Permissions = domain.NormalizePermissions(user.Permissions)
	return &user, nil
}
