package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/jwt-auth-service/internal/models"
	"github.com/pribylovaa/jwt-auth-service/internal/storage"
)

// SaveRefreshToken сохраняет новый refresh-токен в БД.
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.sqlite.SaveRefreshToken"

	if err := insertRefreshToken(ctx, s.db, token); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RedeemRefreshToken отзывает активный токен условным UPDATE
// и читает владельца в той же транзакции.
func (s *Storage) RedeemRefreshToken(ctx context.Context, hash string, now time.Time) (*models.RefreshToken, *models.User, error) {
	const op = "storage.sqlite.RedeemRefreshToken"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	token, err := revoke(ctx, tx, hash, now)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := userInTx(ctx, tx, token.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return token, user, nil
}

// RotateRefreshToken отзывает активный токен и сохраняет next в одной транзакции.
func (s *Storage) RotateRefreshToken(ctx context.Context, hash string, now time.Time, next *models.RefreshToken) (*models.User, error) {
	const op = "storage.sqlite.RotateRefreshToken"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	old, err := revoke(ctx, tx, hash, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	next.UserID = old.UserID
	if err := insertRefreshToken(ctx, tx, next); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := userInTx(ctx, tx, old.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// DeleteExpiredTokens удаляет токены, истёкшие раньше before.
func (s *Storage) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	const op = "storage.sqlite.DeleteExpiredTokens"

	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// execQuerier — общее у *sql.DB и *sql.Tx.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertRefreshToken(ctx context.Context, db execQuerier, token *models.RefreshToken) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO refresh_tokens(token_hash, user_id, created_at, expires_at, revoked)
		VALUES (?, ?, ?, ?, ?)`,
		token.TokenHash,
		token.UserID.String(),
		toMillis(token.CreatedAt),
		toMillis(token.ExpiresAt),
		token.Revoked,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}

		return err
	}

	return nil
}

func revoke(ctx context.Context, db execQuerier, hash string, now time.Time) (*models.RefreshToken, error) {
	var (
		token                models.RefreshToken
		userID               string
		createdAt, expiresAt int64
	)

	err := db.QueryRowContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1
		WHERE token_hash = ? AND revoked = 0 AND expires_at > ?
		RETURNING token_hash, user_id, created_at, expires_at`,
		hash, toMillis(now),
	).Scan(&token.TokenHash, &userID, &createdAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, err
	}

	if token.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	token.CreatedAt = fromMillis(createdAt)
	token.ExpiresAt = fromMillis(expiresAt)
	token.Revoked = true

	return &token, nil
}

func userInTx(ctx context.Context, db execQuerier, id uuid.UUID) (*models.User, error) {
	user, err := scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, err
	}

	return user, nil
}
