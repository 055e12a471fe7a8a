package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pribylovaa/jwt-auth-service/internal/hasher"
	"github.com/pribylovaa/jwt-auth-service/internal/metrics"
	"github.com/pribylovaa/jwt-auth-service/internal/models"
	"github.com/pribylovaa/jwt-auth-service/internal/pkg/log"
	"github.com/pribylovaa/jwt-auth-service/internal/pkg/redact"
	"github.com/pribylovaa/jwt-auth-service/internal/refresh"
	"github.com/pribylovaa/jwt-auth-service/internal/storage"
	"github.com/pribylovaa/jwt-auth-service/internal/token"
)

// RegisterUser регистрирует нового пользователя с ролью "User".
func (s *Service) RegisterUser(ctx context.Context, name, surname, email, password string) (_ *models.User, err error) {
	const op = "service.auth.RegisterUser"

	ctx, done := s.track(ctx, metrics.OpRegister)
	defer done(&err)

	lg := log.From(ctx)

	name, surname = strings.TrimSpace(name), strings.TrimSpace(surname)
	if name == "" || surname == "" {
		return nil, fmt.Errorf("%s: %w: name and surname are required", op, ErrInvalidInput)
	}

	normEmail, err := normalizeEmail(email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.validatePassword(password); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.users.UserByEmail(ctx, normEmail)
	if err == nil {
		lg.Info("register_email_taken",
			slog.String("email", redact.Email(normEmail)),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		lg.Error("register_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
	}

	hash, err := s.hasher.Hash(normEmail, password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	user := &models.User{
		ID:           uuid.New(),
		Name:         name,
		Surname:      surname,
		Email:        normEmail,
		PasswordHash: hash,
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		lg.Error("register_save_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
	}

	lg.Info("register_ok",
		slog.String("user_id", user.ID.String()),
		slog.String("email", redact.Email(normEmail)),
	)

	return user, nil
}

// LoginUser выполняет вход по email+пароль и выпускает пару токенов.
func (s *Service) LoginUser(ctx context.Context, email, password string) (_ *models.TokenPair, err error) {
	const op = "service.auth.LoginUser"

	ctx, done := s.track(ctx, metrics.OpLogin)
	defer done(&err)

	lg := log.From(ctx)

	normEmail, err := normalizeEmail(email)
	if err != nil || password == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.users.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Неизвестный e-mail платит ту же цену, что и неверный пароль.
			s.hasher.Verify(normEmail, s.dummy(ctx), password)
			lg.Info("login_failed",
				slog.String("email", redact.Email(normEmail)),
			)
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		lg.Error("login_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
	}

	if s.hasher.Verify(normEmail, user.PasswordHash, password) != hasher.Success {
		lg.Info("login_failed",
			slog.String("email", redact.Email(normEmail)),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	now := s.now()
	access, accessExp, err := s.signer.IssueAccessToken(user, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rt, err := s.refresh.Issue(ctx, user, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, storageErr(err))
	}

	lg.Info("login_ok",
		slog.String("user_id", user.ID.String()),
	)

	return &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     rt.Token,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: rt.ExpiresAt,
	}, nil
}

// RefreshToken погашает refresh-токен и выпускает новую пару.
// Старое значение отзывается в той же транзакции, где сохраняется новое.
// Причины отказа вызывающему не раскрываются.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (_ *models.TokenPair, err error) {
	const op = "service.auth.RefreshToken"

	ctx, done := s.track(ctx, metrics.OpRefresh)
	defer done(&err)

	now := s.now()
	user, next, err := s.refresh.Rotate(ctx, refreshToken, now)
	if err != nil {
		if errors.Is(err, refresh.ErrInvalidToken) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, fmt.Errorf("%s: %w", op, storageErr(err))
	}

	access, accessExp, err := s.signer.IssueAccessToken(user, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("refresh_ok",
		slog.String("user_id", user.ID.String()),
	)

	return &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     next.Token,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: next.ExpiresAt,
	}, nil
}

// RevokeToken отзывает refresh-токен (выход) без выпуска замены.
func (s *Service) RevokeToken(ctx context.Context, refreshToken string) (err error) {
	const op = "service.auth.RevokeToken"

	ctx, done := s.track(ctx, metrics.OpRevoke)
	defer done(&err)

	tok, _, err := s.refresh.Redeem(ctx, refreshToken, s.now())
	if err != nil {
		if errors.Is(err, refresh.ErrInvalidToken) {
			return fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return fmt.Errorf("%s: %w", op, storageErr(err))
	}

	log.From(ctx).Info("revoke_ok",
		slog.String("user_id", tok.UserID.String()),
	)

	return nil
}

// ValidateToken проверяет access-токен и возвращает его утверждения.
func (s *Service) ValidateToken(ctx context.Context, accessToken string) (_ *token.Claims, err error) {
	const op = "service.auth.ValidateToken"

	_, done := s.track(ctx, metrics.OpValidate)
	defer done(&err)

	claims, err := s.signer.Validate(accessToken, s.now())
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return claims, nil
}

// CurrentUser проверяет access-токен и загружает его владельца.
// Токен удалённого пользователя считается недействительным.
func (s *Service) CurrentUser(ctx context.Context, accessToken string) (_ *models.User, _ *token.Claims, err error) {
	const op = "service.auth.CurrentUser"

	ctx, done := s.track(ctx, metrics.OpMe)
	defer done(&err)

	claims, err := s.ValidateToken(ctx, accessToken)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	id, err := claims.UserID()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	user, err := s.users.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.From(ctx).Info("current_user_missing",
				slog.String("user_id", id.String()),
			)
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		log.From(ctx).Error("current_user_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, nil, fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
	}

	return user, claims, nil
}

// PurgeExpiredTokens удаляет refresh-токены, истёкшие более retention назад.
func (s *Service) PurgeExpiredTokens(ctx context.Context, retention time.Duration) (n int64, err error) {
	const op = "service.auth.PurgeExpiredTokens"

	ctx, done := s.track(ctx, metrics.OpPurge)
	defer done(&err)

	n, err = s.refresh.Purge(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
	}

	s.metrics.Purged(n)

	return n, nil
}

// dummy лениво вычисляет хэш для выравнивания времени входа.
func (s *Service) dummy(ctx context.Context) string {
	s.dummyOnce.Do(func() {
		h, err := hasher.Dummy(s.hasher)
		if err != nil {
			log.From(ctx).Error("dummy_hash_failed",
				slog.String("err", err.Error()),
			)
			return
		}
		s.dummyHash = h
	})

	return s.dummyHash
}

// storageErr помечает ошибку хранилища, не трогая коллизии refresh-токенов.
func storageErr(err error) error {
	if errors.Is(err, refresh.ErrCollision) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrStorage, err)
}

// normalizeEmail обрезает пробелы, приводит к нижнему регистру и проверяет
// формат: допускается только «голый» адрес без отображаемого имени.
func normalizeEmail(raw string) (string, error) {
	const op = "service.auth.normalizeEmail"

	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return email, nil
}

// validatePassword проверяет политику паролей: непустой и не короче
// MinPasswordLength символов.
func (s *Service) validatePassword(pw string) error {
	const op = "service.auth.validatePassword"

	if pw == "" {
		return fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	if utf8.RuneCountInString(pw) < s.cfg.MinPasswordLength {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}
