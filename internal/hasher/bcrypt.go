package hasher

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// dummyPassword используется для выравнивания времени проверки.
const dummyPassword = "dummy-password-for-timing"

// Bcrypt — реализация Hasher поверх bcrypt.
type Bcrypt struct {
	cost  int
	dummy []byte
}

// NewBcrypt создаёт bcrypt-хэшер. cost == 0 означает bcrypt.DefaultCost.
func NewBcrypt(cost int) (*Bcrypt, error) {
	const op = "hasher.NewBcrypt"

	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%s: %w: cost %d", op, ErrInvalidParams, cost)
	}

	dummy, err := bcrypt.GenerateFromPassword(bind("", dummyPassword), cost)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Bcrypt{cost: cost, dummy: dummy}, nil
}

// Hash хэширует пароль с помощью bcrypt.
func (b *Bcrypt) Hash(context, plaintext string) (string, error) {
	const op = "hasher.bcrypt.Hash"

	h, err := bcrypt.GenerateFromPassword(bind(context, plaintext), b.cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(h), nil
}

// Verify сравнивает пароль с хэшем.
func (b *Bcrypt) Verify(context, hash, plaintext string) Result {
	bound := bind(context, plaintext)

	// Повреждённый хэш: тратим столько же времени, сколько на обычную проверку.
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		_ = bcrypt.CompareHashAndPassword(b.dummy, bound)
		return Failed
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), bound) != nil {
		return Failed
	}

	return Success
}

var _ Hasher = (*Bcrypt)(nil)
