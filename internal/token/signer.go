// token выпускает и проверяет короткоживущие access-токены (JWT, HS256).
// Отзыва access-токенов нет: компрометация ограничена сроком жизни токена.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pribylovaa/jwt-auth-service/internal/config"
	"github.com/pribylovaa/jwt-auth-service/internal/models"
)

var (
	// ErrInvalidToken — токен не прошёл проверку (подпись, алгоритм, iss/aud, формат).
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired — срок жизни токена истёк.
	ErrTokenExpired = errors.New("token expired")
)

// Claims — набор утверждений access-токена.
type Claims struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// UserID возвращает идентификатор пользователя из sub.
func (c *Claims) UserID() (uuid.UUID, error) {
	const op = "token.Claims.UserID"

	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return id, nil
}

// Signer подписывает и проверяет access-токены.
// Безопасен для конкурентного использования.
type Signer struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
}

// NewSigner создаёт Signer. Параметры проверяются один раз на старте:
// пустой ключ/issuer/audience или неположительная длительность дают
// ошибку, оборачивающую config.ErrConfiguration.
func NewSigner(cfg config.JWTConfig) (*Signer, error) {
	const op = "token.NewSigner"

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Signer{
		key:      []byte(cfg.Key),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.AccessTokenTTL(),
	}, nil
}

// TTL возвращает срок жизни access-токена.
func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// IssueAccessToken выпускает access-токен для пользователя.
// Результат детерминирован для одинаковых user и now.
// Возвращает подписанный токен и момент его истечения (с точностью до секунды).
func (s *Signer) IssueAccessToken(user *models.User, now time.Time) (string, time.Time, error) {
	const op = "token.Signer.IssueAccessToken"

	if user == nil {
		return "", time.Time{}, fmt.Errorf("%s: nil user", op)
	}

	iat := jwt.NewNumericDate(now)
	exp := jwt.NewNumericDate(now.Add(s.ttl))

	claims := Claims{
		Name:    user.Name,
		Surname: user.Surname,
		Email:   user.Email,
		Role:    user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  iat,
			ExpiresAt: exp,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return signed, exp.Time, nil
}

// Validate проверяет подпись, алгоритм, issuer, audience и срок жизни токена
// на момент now без допуска (leeway). Токен действителен строго до exp.
func (s *Signer) Validate(tokenStr string, now time.Time) (*Claims, error) {
	const op = "token.Signer.Validate"

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	var claims Claims
	tok, err := parser.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if !tok.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &claims, nil
}
