package models

import (
	"time"

	"github.com/google/uuid"
)

// RoleUser — роль, назначаемая при регистрации.
const RoleUser = "User"

// User - модель пользователя в системе.
// Email хранится нормализованным (trim + lower-case), PasswordHash — никогда не plaintext.
type User struct {
	ID           uuid.UUID
	Name         string
	Surname      string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
