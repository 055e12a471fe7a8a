// handlers — HTTP-обработчики публичного API auth-сервиса.
package handlers

import (
	"time"

	"github.com/pribylovaa/jwt-auth-service/internal/models"
	"github.com/pribylovaa/jwt-auth-service/internal/token"
)

// Ответы-строки.
const (
	msgRegistered = "Registered successfully."
	msgRevoked    = "Revoked."
)

type RegisterRequest struct {
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// TokenResponse — пара токенов в формате публичного API.
type TokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

func tokenFromModel(tp *models.TokenPair) TokenResponse {
	return TokenResponse{
		Token:        tp.AccessToken,
		RefreshToken: tp.RefreshToken,
	}
}

// MeResponse — профиль текущего пользователя и срок его access-токена.
type MeResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Surname   string    `json:"surname"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func meFromUser(u *models.User, c *token.Claims) MeResponse {
	out := MeResponse{
		ID:        u.ID.String(),
		Name:      u.Name,
		Surname:   u.Surname,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt.UTC(),
	}
	if c != nil && c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time.UTC()
	}

	return out
}
