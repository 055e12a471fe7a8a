// service содержит бизнес-логику auth-сервиса: регистрацию, вход,
// ротацию refresh-токенов, выход и проверку access-токенов.
//
// Основные аспекты:
//   - Service не хранит состояние запроса; экземпляр безопасен для
//     конкурентного использования при потокобезопасном хранилище.
//   - Ошибки — sentinel-значения ниже; транспорт маппит их на HTTP-статусы.
//   - Вход не раскрывает, существует ли e-mail: неизвестный адрес и неверный
//     пароль дают одну ошибку и одинаковую стоимость проверки.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pribylovaa/jwt-auth-service/internal/cache"
	"github.com/pribylovaa/jwt-auth-service/internal/config"
	"github.com/pribylovaa/jwt-auth-service/internal/hasher"
	"github.com/pribylovaa/jwt-auth-service/internal/metrics"
	"github.com/pribylovaa/jwt-auth-service/internal/refresh"
	"github.com/pribylovaa/jwt-auth-service/internal/storage"
	"github.com/pribylovaa/jwt-auth-service/internal/token"
	"github.com/pribylovaa/jwt-auth-service/internal/tracing"
)

var (
	// ErrInvalidInput — запрос некорректен (пустые имя/фамилия и т.п.).
	// Транспорт: HTTP 400.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidEmail — e-mail имеет некорректный формат.
	// Транспорт: HTTP 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrEmptyPassword — пароль пустой.
	// Транспорт: HTTP 400.
	ErrEmptyPassword = errors.New("password is empty")

	// ErrWeakPassword — пароль короче минимальной длины.
	// Транспорт: HTTP 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmailTaken — e-mail уже занят другим пользователем.
	// Транспорт: HTTP 400 "Email already exists.".
	ErrEmailTaken = errors.New("email already taken")

	// ErrInvalidCredentials — пара логин/пароль неверна или пользователь не найден.
	// Транспорт: HTTP 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken — токен (access/refresh) некорректен, отозван, истёк
	// или отсутствует в хранилище. Транспорт: HTTP 401.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired — срок действия access-токена истёк.
	// Транспорт: HTTP 401.
	ErrTokenExpired = errors.New("token expired")

	// ErrStorage — сбой хранилища; исходная ошибка обёрнута рядом.
	// Транспорт: HTTP 500.
	ErrStorage = errors.New("storage failure")
)

// Service описывает бизнес-логику auth-сервиса.
type Service struct {
	users   storage.UserStorage
	hasher  hasher.Hasher
	signer  *token.Signer
	refresh *refresh.Store
	cfg     config.AuthConfig
	metrics *metrics.Metrics // может быть nil
	now     func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// New создаёт новый экземпляр Service. Параметры подписи и хэширования
// проверяются здесь, на старте процесса.
func New(st storage.Storage, jwtCfg config.JWTConfig, authCfg config.AuthConfig) (*Service, error) {
	const op = "service.New"

	signer, err := token.NewSigner(jwtCfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	h, err := hasher.New(authCfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, config.ErrConfiguration, err)
	}

	if authCfg.MinPasswordLength < 1 {
		authCfg.MinPasswordLength = 1
	}

	return &Service{
		users:   st,
		hasher:  h,
		signer:  signer,
		refresh: refresh.New(st, jwtCfg.RefreshTokenTTL()),
		cfg:     authCfg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetRefreshCache устанавливает кэш refresh-токенов (опционально).
func (s *Service) SetRefreshCache(c cache.RefreshCache) {
	s.refresh.SetCache(c)
}

// SetMetrics подключает Prometheus-метрики (опционально).
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetClock подменяет источник времени (тесты).
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// track открывает спан операции и возвращает функцию, которая
// закрывает его и учитывает исход в метриках.
func (s *Service) track(ctx context.Context, op string) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := tracing.Tracer().Start(ctx, "service."+op)

	return ctx, func(errp *error) {
		err := *errp
		s.metrics.Observe(op, resultOf(err), time.Since(start))
		tracing.End(span, err)
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case isClientError(err):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}

func isClientError(err error) bool {
	for _, target := range []error{
		ErrInvalidInput,
		ErrInvalidEmail,
		ErrEmptyPassword,
		ErrWeakPassword,
		ErrEmailTaken,
		ErrInvalidCredentials,
		ErrInvalidToken,
		ErrTokenExpired,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
