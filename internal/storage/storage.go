// storage задаёт контракты хранилища пользователей и refresh-токенов
// и общие для всех драйверов sentinel-ошибки.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/jwt-auth-service/internal/models"
)

//go:generate mockgen -destination=../../mocks/mock_storage.go -package=mocks github.com/pribylovaa/jwt-auth-service/internal/storage Storage

var (
	// ErrNotFound — запись не найдена (пользователь/активный токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/refresh-token).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создает нового пользователя в БД.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email (точное совпадение).
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RefreshTokenStorage выполняет операции над refresh-токенами.
// Токены идентифицируются хэшем значения; открытое значение в БД не попадает.
type RefreshTokenStorage interface {
	// SaveRefreshToken сохраняет новый refresh-токен.
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// RedeemRefreshToken атомарно отзывает активный (не отозванный и не истёкший
	// на момент now) токен и возвращает его вместе с владельцем.
	// Если активного токена нет — ErrNotFound. Из N конкурентных вызовов
	// с одним хэшем успешен ровно один.
	RedeemRefreshToken(ctx context.Context, hash string, now time.Time) (*models.RefreshToken, *models.User, error)
	// RotateRefreshToken в одной транзакции отзывает активный токен hash
	// и сохраняет next, проставив next.UserID владельцем старого токена.
	// При ошибке изменений нет.
	RotateRefreshToken(ctx context.Context, hash string, now time.Time, next *models.RefreshToken) (*models.User, error)
	// DeleteExpiredTokens удаляет токены, истёкшие раньше before.
	// Возвращает количество удалённых строк.
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error)
}

// Storage задает контракт работы с БД.
type Storage interface {
	UserStorage
	RefreshTokenStorage
	// Ping проверяет доступность БД (readiness).
	Ping(ctx context.Context) error
	Close()
}
