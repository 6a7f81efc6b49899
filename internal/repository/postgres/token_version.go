package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/port"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/repository"
)

const tokenVersionTable = "token_versions"

// TokenVersionRepository mirrors the per-user token version counters so the
// version check keeps working while the cache is down.
type TokenVersionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTokenVersionRepository wires a PostgreSQL-backed token version mirror.
func NewTokenVersionRepository(exec pgExecutor) *TokenVersionRepository {
	return &TokenVersionRepository{exec: exec, builder: newBuilder()}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *TokenVersionRepository) WithTx(tx pgx.Tx) *TokenVersionRepository {
	if tx == nil {
		return r
	}
	return &TokenVersionRepository{exec: tx, builder: r.builder}
}

// GetTokenVersion returns the mirrored version, or 0 when the user has none.
func (r *TokenVersionRepository) GetTokenVersion(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("%w: user id must not be empty", repository.ErrInvalidArgument)
	}

	sql, args, err := r.builder.
		Select("version").
		From(tokenVersionTable).
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build select token version sql: %w", err)
	}

	var version int64
	if err := r.exec.QueryRow(ctx, sql, args...).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("select token version: %w", err)
	}
	return version, nil
}

// IncrementTokenVersion bumps the mirrored counter and returns the new value.
func (r *TokenVersionRepository) IncrementTokenVersion(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("%w: user id must not be empty", repository.ErrInvalidArgument)
	}

	sql, args, err := r.builder.
		Insert(tokenVersionTable).
		Columns("user_id", "version", "updated_at").
		Values(userID, 1, squirrel.Expr("now()")).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET version = " + tokenVersionTable + ".version + 1, updated_at = EXCLUDED.updated_at RETURNING version").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build increment token version sql: %w", err)
	}

	var version int64
	if err := r.exec.QueryRow(ctx, sql, args...).Scan(&version); err != nil {
		return 0, fmt.Errorf("increment token version: %w", err)
	}
	return version, nil
}

// RaiseTokenVersion lifts the mirrored counter to atLeast. A higher stored
// value wins and is returned unchanged.
func (r *TokenVersionRepository) RaiseTokenVersion(ctx context.Context, userID string, atLeast int64) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("%w: user id must not be empty", repository.ErrInvalidArgument)
	}
	if atLeast < 0 {
		return 0, fmt.Errorf("%w: negative token version", repository.ErrInvalidArgument)
	}

	sql, args, err := r.builder.
		Insert(tokenVersionTable).
		Columns("user_id", "version", "updated_at").
		Values(userID, atLeast, squirrel.Expr("now()")).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET version = EXCLUDED.version, updated_at = EXCLUDED.updated_at WHERE " + tokenVersionTable + ".version < EXCLUDED.version RETURNING version").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build raise token version sql: %w", err)
	}

	var version int64
	if err := r.exec.QueryRow(ctx, sql, args...).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The stored version is already at or above atLeast.
			return r.GetTokenVersion(ctx, userID)
		}
		return 0, fmt.Errorf("raise token version: %w", err)
	}
	return version, nil
}

// ListTokenVersions pages through counters changed at or after changedSince,
// ordered by user id. Passing the last user id of a page as afterUserID
// returns the next page.
func (r *TokenVersionRepository) ListTokenVersions(ctx context.Context, changedSince time.Time, afterUserID string, limit int) ([]port.DurableTokenVersion, error) {
	query := r.builder.
		Select("user_id", "version", "updated_at").
		From(tokenVersionTable)
	if !changedSince.IsZero() {
		query = query.Where(squirrel.GtOrEq{"updated_at": changedSince.UTC()})
	}
	if afterUserID != "" {
		query = query.Where(squirrel.Gt{"user_id": afterUserID})
	}
	query = query.OrderBy("user_id ASC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list token versions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list token versions: %w", err)
	}
	defer rows.Close()

	var versions []port.DurableTokenVersion
	for rows.Next() {
		var v port.DurableTokenVersion
		if err := rows.Scan(&v.UserID, &v.Version, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan token version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token versions: %w", err)
	}
	return versions, nil
}
