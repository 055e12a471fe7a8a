package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken - данные refresh-токена для управления сессиями.
//
// Token — открытое значение, которое получает клиент; заполняется только при выпуске
// и никогда не сохраняется. В хранилище лежит TokenHash = base64url(sha256(Token)).
// Revoked меняется только с false на true.
type RefreshToken struct {
	Token     string
	TokenHash string
	UserID    uuid.UUID
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}
