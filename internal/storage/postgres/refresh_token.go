package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pribylovaa/jwt-auth-service/internal/models"
	"github.com/pribylovaa/jwt-auth-service/internal/storage"
)

// SaveRefreshToken сохраняет новый refresh-токен в БД.
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.postgres.SaveRefreshToken"

	if err := insertRefreshToken(ctx, s.db, token); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RedeemRefreshToken отзывает активный токен одним условным UPDATE
// и в том же запросе возвращает владельца.
// Конкурентные вызовы сериализуются блокировкой строки: после ожидания
// проигравший видит revoked = TRUE и получает 0 строк.
func (s *Storage) RedeemRefreshToken(ctx context.Context, hash string, now time.Time) (*models.RefreshToken, *models.User, error) {
	const op = "storage.postgres.RedeemRefreshToken"

	query := `
		WITH r AS (
			UPDATE refresh_tokens
			SET revoked = TRUE
			WHERE token_hash = $1 AND revoked = FALSE AND expires_at > $2
			RETURNING token_hash, user_id, created_at, expires_at, revoked
		)
		SELECT r.token_hash, r.user_id, r.created_at, r.expires_at, r.revoked,
		       u.id, u.name, u.surname, u.email, u.password_hash, u.role, u.created_at, u.updated_at
		FROM r JOIN users u ON u.id = r.user_id
	`

	var (
		token models.RefreshToken
		user  models.User
	)
	err := s.db.QueryRow(ctx, query, hash, now).Scan(
		&token.TokenHash,
		&token.UserID,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.Revoked,
		&user.ID,
		&user.Name,
		&user.Surname,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return &token, &user, nil
}

// RotateRefreshToken отзывает активный токен и сохраняет next в одной транзакции.
func (s *Storage) RotateRefreshToken(ctx context.Context, hash string, now time.Time, next *models.RefreshToken) (*models.User, error) {
	const op = "storage.postgres.RotateRefreshToken"

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	revoke := `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE token_hash = $1 AND revoked = FALSE AND expires_at > $2
		RETURNING user_id
	`

	if err := tx.QueryRow(ctx, revoke, hash, now).Scan(&next.UserID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := insertRefreshToken(ctx, tx, next); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, next.UserID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// DeleteExpiredTokens удаляет токены, истёкшие раньше before.
func (s *Storage) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	const op = "storage.postgres.DeleteExpiredTokens"

	query := `
        DELETE FROM refresh_tokens
        WHERE expires_at <= $1
    `

	tag, err := s.db.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

// execer — общее у пула и транзакции.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertRefreshToken(ctx context.Context, db execer, token *models.RefreshToken) error {
	query := `
        INSERT INTO refresh_tokens(token_hash, user_id, created_at, expires_at, revoked)
        VALUES ($1, $2, $3, $4, $5)
    `

	_, err := db.Exec(ctx, query,
		token.TokenHash,
		token.UserID,
		token.CreatedAt,
		token.ExpiresAt,
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
