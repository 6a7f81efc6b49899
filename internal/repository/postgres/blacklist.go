package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/port"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/repository"
)

const blacklistTable = "token_blacklist"

// BlacklistRepository is the durable blacklist tier. Rows carry their purge
// deadline in expires_at and are removed by DeleteExpired.
type BlacklistRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewBlacklistRepository wires a PostgreSQL-backed blacklist repository.
func NewBlacklistRepository(exec pgExecutor) *BlacklistRepository {
	return &BlacklistRepository{exec: exec, builder: newBuilder()}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *BlacklistRepository) WithTx(tx pgx.Tx) *BlacklistRepository {
	if tx == nil {
		return r
	}
	return &BlacklistRepository{exec: tx, builder: r.builder}
}

// Add upserts the entry, never shortening an existing retention deadline.
func (r *BlacklistRepository) Add(ctx context.Context, entry domain.BlacklistEntry, retainUntil time.Time) error {
	query, err := r.insert(entry, retainUntil)
	if err != nil {
		return err
	}

	sql, args, err := query.
		Suffix("ON CONFLICT (jti) DO UPDATE SET expires_at = GREATEST(" + blacklistTable + ".expires_at, EXCLUDED.expires_at)").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert blacklist sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert blacklist entry: %w", err)
	}
	return nil
}

// AddIfAbsent inserts the entry only when the jti is new and reports whether it did.
func (r *BlacklistRepository) AddIfAbsent(ctx context.Context, entry domain.BlacklistEntry, retainUntil time.Time) (bool, error) {
	query, err := r.insert(entry, retainUntil)
	if err != nil {
		return false, err
	}

	sql, args, err := query.Suffix("ON CONFLICT (jti) DO NOTHING").ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert blacklist sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("insert blacklist entry: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Contains looks the jti up by primary key.
func (r *BlacklistRepository) Contains(ctx context.Context, jti string) (bool, error) {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return false, fmt.Errorf("%w: jti must not be empty", repository.ErrInvalidArgument)
	}

	sql, args, err := r.builder.
		Select("1").
		From(blacklistTable).
		Where(squirrel.Eq{"jti": jti}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build select blacklist sql: %w", err)
	}

	var one int
	if err := r.exec.QueryRow(ctx, sql, args...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("select blacklist entry: %w", err)
	}
	return true, nil
}

// DeleteExpired purges rows whose retention deadline passed before the supplied instant.
func (r *BlacklistRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	sql, args, err := r.builder.
		Delete(blacklistTable).
		Where(squirrel.Lt{"expires_at": before.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete blacklist sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired blacklist entries: %w", err)
	}
	return ct.RowsAffected(), nil
}

// ListActive returns rows still retained at the supplied instant ordered by
// jti. Passing the last jti of a page as afterJTI returns the next page.
func (r *BlacklistRepository) ListActive(ctx context.Context, at time.Time, afterJTI string, limit int) ([]port.DurableBlacklistRecord, error) {
	query := r.builder.
		Select("jti", "reason", "user_id", "revoked_at", "expires_at").
		From(blacklistTable).
		Where(squirrel.Gt{"expires_at": at.UTC()})
	if afterJTI != "" {
		query = query.Where(squirrel.Gt{"jti": afterJTI})
	}
	query = query.OrderBy("jti ASC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list blacklist sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list blacklist entries: %w", err)
	}
	defer rows.Close()

	var records []port.DurableBlacklistRecord
	for rows.Next() {
		var (
			jti       string
			reason    string
			userID    *string
			revokedAt time.Time
			expiresAt time.Time
		)
		if err := rows.Scan(&jti, &reason, &userID, &revokedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan blacklist entry: %w", err)
		}

		parsed, err := domain.ParseRevocationReason(reason)
		if err != nil {
			parsed = domain.RevocationReasonSecurity
		}
		records = append(records, port.DurableBlacklistRecord{
			Entry: domain.BlacklistEntry{
				JTI:       jti,
				Reason:    parsed,
				UserID:    userID,
				RevokedAt: revokedAt,
				ExpiresAt: &expiresAt,
			},
			RetainUntil: expiresAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blacklist entries: %w", err)
	}
	return records, nil
}

func (r *BlacklistRepository) insert(entry domain.BlacklistEntry, retainUntil time.Time) (squirrel.InsertBuilder, error) {
	jti := strings.TrimSpace(entry.JTI)
	if jti == "" {
		return squirrel.InsertBuilder{}, fmt.Errorf("%w: jti must not be empty", repository.ErrInvalidArgument)
	}
	if !entry.Reason.Valid() {
		return squirrel.InsertBuilder{}, fmt.Errorf("%w: unknown revocation reason %q", repository.ErrInvalidArgument, entry.Reason)
	}

	return r.builder.
		Insert(blacklistTable).
		Columns("jti", "reason", "user_id", "revoked_at", "expires_at").
		Values(jti, string(entry.Reason), nullableString(entry.UserID), entry.RevokedAt.UTC(), retainUntil.UTC()), nil
}
