// refresh управляет жизненным циклом refresh-токенов: выпуск,
// однократное погашение (Redeem) и ротация (Rotate).
//
// Токен — 64 случайных байта в base64url. В хранилище попадает только
// base64url(sha256(значение)); поиск по значению равен поиску по хэшу.
// Отзыв монотонен: revoked меняется только с false на true.
package refresh

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/jwt-auth-service/internal/cache"
	"github.com/pribylovaa/jwt-auth-service/internal/models"
	"github.com/pribylovaa/jwt-auth-service/internal/pkg/log"
	"github.com/pribylovaa/jwt-auth-service/internal/storage"
)

var (
	// ErrInvalidToken — токен неизвестен, отозван или истёк.
	// Причины намеренно не различаются.
	ErrInvalidToken = errors.New("invalid refresh token")
	// ErrCollision — исчерпаны попытки выпустить уникальный токен.
	ErrCollision = errors.New("refresh token collision")
)

const (
	valueBytes  = 64
	maxAttempts = 5
)

// Store — хранилище refresh-токенов поверх storage.RefreshTokenStorage
// с необязательным кэшем отзывов.
type Store struct {
	st     storage.RefreshTokenStorage
	ttl    time.Duration
	cache  cache.RefreshCache
	random io.Reader
}

// New создаёт Store со сроком жизни токенов ttl.
func New(st storage.RefreshTokenStorage, ttl time.Duration) *Store {
	return &Store{st: st, ttl: ttl, random: rand.Reader}
}

// SetCache подключает кэш отзывов (может быть nil).
func (s *Store) SetCache(c cache.RefreshCache) {
	s.cache = c
}

// TTL возвращает срок жизни refresh-токена.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Hash возвращает представление токена в хранилище.
func Hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Issue выпускает новый токен для пользователя с истечением now+ttl.
// При ошибке сохранения значение токена не возвращается.
func (s *Store) Issue(ctx context.Context, user *models.User, now time.Time) (*models.RefreshToken, error) {
	const op = "refresh.Store.Issue"

	lg := log.From(ctx)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		tok, err := s.newToken(user.ID, now)
		if err != nil {
			lg.Error("refresh_rand_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if err := s.st.SaveRefreshToken(ctx, tok); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				// Редкая коллизия — пробуем сгенерировать заново.
				continue
			}

			lg.Error("save_refresh_token_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		s.remember(ctx, tok, now)

		return tok, nil
	}

	lg.Error("refresh_collision_exceeded",
		slog.String("op", op),
	)

	return nil, fmt.Errorf("%s: %w", op, ErrCollision)
}

// Redeem атомарно погашает токен и возвращает его запись и владельца.
// Неизвестный, отозванный и истёкший токен дают ErrInvalidToken.
// Из N конкурентных вызовов с одним значением успешен ровно один.
func (s *Store) Redeem(ctx context.Context, value string, now time.Time) (*models.RefreshToken, *models.User, error) {
	const op = "refresh.Store.Redeem"

	if value == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	hash := Hash(value)
	if s.rejectedByCache(ctx, hash, now) {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	tok, user, err := s.st.RedeemRefreshToken(ctx, hash, now)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.From(ctx).Warn("refresh_redeem_rejected",
				slog.String("op", op),
			)
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		log.From(ctx).Error("refresh_redeem_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	s.forget(ctx, hash, tok.UserID, tok.ExpiresAt, now)

	return tok, user, nil
}

// Rotate погашает токен value и выпускает ему замену в одной транзакции.
// Отменённый или упавший запрос не оставляет частичного состояния.
func (s *Store) Rotate(ctx context.Context, value string, now time.Time) (*models.User, *models.RefreshToken, error) {
	const op = "refresh.Store.Rotate"

	lg := log.From(ctx)

	if value == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	hash := Hash(value)
	if s.rejectedByCache(ctx, hash, now) {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		next, err := s.newToken(uuid.Nil, now)
		if err != nil {
			lg.Error("refresh_rand_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}

		user, err := s.st.RotateRefreshToken(ctx, hash, now, next)
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrAlreadyExists):
				continue
			case errors.Is(err, storage.ErrNotFound):
				lg.Warn("refresh_rotate_rejected",
					slog.String("op", op),
				)
				return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			default:
				lg.Error("refresh_rotate_failed",
					slog.String("op", op),
					slog.String("err", err.Error()),
				)
				return nil, nil, fmt.Errorf("%s: %w", op, err)
			}
		}

		// Срок старого токена не больше ttl от текущего момента.
		s.forget(ctx, hash, user.ID, now.Add(s.ttl), now)
		s.remember(ctx, next, now)

		return user, next, nil
	}

	lg.Error("refresh_collision_exceeded",
		slog.String("op", op),
	)

	return nil, nil, fmt.Errorf("%s: %w", op, ErrCollision)
}

// Purge удаляет токены, истёкшие раньше before.
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	const op = "refresh.Store.Purge"

	n, err := s.st.DeleteExpiredTokens(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func (s *Store) newToken(userID uuid.UUID, now time.Time) (*models.RefreshToken, error) {
	b := make([]byte, valueBytes)
	if _, err := io.ReadFull(s.random, b); err != nil {
		return nil, err
	}
	plain := base64.RawURLEncoding.EncodeToString(b)

	// Миллисекунды — общая точность драйверов хранилища.
	now = now.UTC().Truncate(time.Millisecond)

	return &models.RefreshToken{
		Token:     plain,
		TokenHash: Hash(plain),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}, nil
}

// rejectedByCache — быстрый отказ по кэшу. Промах и ошибки кэша
// отправляют запрос в БД.
func (s *Store) rejectedByCache(ctx context.Context, hash string, now time.Time) bool {
	if s.cache == nil {
		return false
	}

	e, ok, err := s.cache.Get(ctx, hash)
	if err != nil {
		log.From(ctx).Warn("refresh_cache_get_failed",
			slog.String("err", err.Error()),
		)
		return false
	}

	return ok && (e.Revoked || !now.Before(e.ExpiresAt))
}

func (s *Store) remember(ctx context.Context, tok *models.RefreshToken, now time.Time) {
	if s.cache == nil {
		return
	}

	e := &cache.RefreshEntry{UserID: tok.UserID, ExpiresAt: tok.ExpiresAt}
	if err := s.cache.Set(ctx, tok.TokenHash, e, tok.ExpiresAt.Sub(now)); err != nil {
		log.From(ctx).Warn("refresh_cache_set_failed",
			slog.String("err", err.Error()),
		)
	}
}

func (s *Store) forget(ctx context.Context, hash string, userID uuid.UUID, expiresAt, now time.Time) {
	if s.cache == nil {
		return
	}

	e := &cache.RefreshEntry{UserID: userID, ExpiresAt: expiresAt}
	if err := s.cache.MarkRevoked(ctx, hash, e, expiresAt.Sub(now)); err != nil {
		log.From(ctx).Warn("refresh_cache_revoke_failed",
			slog.String("err", err.Error()),
		)
	}
}
