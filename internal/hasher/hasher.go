// hasher реализует одностороннее хэширование паролей с привязкой к контексту
// (обычно нормализованный e-mail пользователя).
//
// Пароль перед медленной функцией пропускается через HMAC-SHA256 с ключом-контекстом:
// одинаковые пароли разных пользователей дают несравнимые хэши, а хэш проверяется
// только в том контексте, в котором был создан. Заодно снимается ограничение
// bcrypt в 72 байта.
//
// Verify не различает по времени «неверный пароль» и «повреждённый хэш»:
// в обоих случаях выполняется одно полное вычисление медленной функции.
package hasher

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/pribylovaa/jwt-auth-service/internal/config"
)

// Result — итог проверки пароля.
type Result int

const (
	// Failed — пароль не совпал или хэш повреждён.
	Failed Result = iota
	// Success — пароль совпал.
	Success
)

func (r Result) String() string {
	if r == Success {
		return "success"
	}

	return "failed"
}

// ErrInvalidParams — недопустимые параметры алгоритма.
var ErrInvalidParams = errors.New("invalid hasher parameters")

// Hasher — абстракция над конкретным алгоритмом хэширования паролей.
// Реализации не имеют разделяемого изменяемого состояния и безопасны
// для конкурентного использования.
type Hasher interface {
	// Hash вычисляет солёный хэш plaintext в контексте context.
	Hash(context, plaintext string) (string, error)
	// Verify проверяет plaintext против hash в контексте context.
	Verify(context, hash, plaintext string) Result
}

// New создаёт Hasher по имени алгоритма из конфигурации.
func New(cfg config.AuthConfig) (Hasher, error) {
	const op = "hasher.New"

	switch cfg.PasswordHasher {
	case config.HasherBcrypt, "":
		h, err := NewBcrypt(cfg.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return h, nil
	case config.HasherArgon2id:
		return NewArgon2id(DefaultArgon2Params), nil
	default:
		return nil, fmt.Errorf("%s: %w: unknown algorithm %q", op, ErrInvalidParams, cfg.PasswordHasher)
	}
}

// bind привязывает пароль к контексту: base64(HMAC-SHA256(context, plaintext)).
// Результат имеет фиксированную длину 43 байта.
func bind(context, plaintext string) []byte {
	mac := hmac.New(sha256.New, []byte(context))
	mac.Write([]byte(plaintext))
	sum := mac.Sum(nil)

	out := make([]byte, base64.RawStdEncoding.EncodedLen(len(sum)))
	base64.RawStdEncoding.Encode(out, sum)

	return out
}

// Dummy возвращает хэш фиксированного пароля в пустом контексте.
// Оркестратор проверяет против него пароль, когда e-mail не найден,
// чтобы время ответа не выдавало существование пользователя.
func Dummy(h Hasher) (string, error) {
	const op = "hasher.Dummy"

	hash, err := h.Hash("", dummyPassword)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return hash, nil
}
