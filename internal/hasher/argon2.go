package hasher

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2Params — параметры argon2id.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2Params — параметры по умолчанию (RFC 9106, второй рекомендованный профиль).
var DefaultArgon2Params = Argon2Params{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 4,
	SaltLen: 16,
	KeyLen:  32,
}

// maxArgon2Memory ограничивает память, которую может затребовать хэш из хранилища.
const maxArgon2Memory = 1024 * 1024

// Argon2id — реализация Hasher поверх argon2id.
// Формат хэша: $argon2id$v=19$m=<KiB>,t=<iter>,p=<threads>$<salt>$<key>.
type Argon2id struct {
	params    Argon2Params
	dummySalt []byte
}

// NewArgon2id создаёт argon2id-хэшер.
func NewArgon2id(p Argon2Params) *Argon2id {
	return &Argon2id{
		params:    p,
		dummySalt: make([]byte, p.SaltLen),
	}
}

// Hash хэширует пароль с помощью argon2id и случайной соли.
func (a *Argon2id) Hash(context, plaintext string) (string, error) {
	const op = "hasher.argon2id.Hash"

	salt := make([]byte, a.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	key := argon2.IDKey(bind(context, plaintext), salt, a.params.Time, a.params.Memory, a.params.Threads, a.params.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		a.params.Memory, a.params.Time, a.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify сравнивает пароль с хэшем за постоянное время.
func (a *Argon2id) Verify(context, hash, plaintext string) Result {
	bound := bind(context, plaintext)

	p, salt, key, err := decodeArgon2(hash)
	if err != nil {
		_ = argon2.IDKey(bound, a.dummySalt, a.params.Time, a.params.Memory, a.params.Threads, a.params.KeyLen)
		return Failed
	}

	got := argon2.IDKey(bound, salt, p.Time, p.Memory, p.Threads, uint32(len(key)))
	if subtle.ConstantTimeCompare(got, key) != 1 {
		return Failed
	}

	return Success
}

func decodeArgon2(encoded string) (Argon2Params, []byte, []byte, error) {
	const op = "hasher.decodeArgon2"

	var p Argon2Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, fmt.Errorf("%s: %w: malformed hash", op, ErrInvalidParams)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, fmt.Errorf("%s: %w: unsupported version", op, ErrInvalidParams)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return p, nil, nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidParams, err)
	}

	if p.Memory == 0 || p.Memory > maxArgon2Memory || p.Time == 0 || p.Threads == 0 {
		return p, nil, nil, fmt.Errorf("%s: %w: parameters out of range", op, ErrInvalidParams)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return p, nil, nil, fmt.Errorf("%s: %w: bad salt", op, ErrInvalidParams)
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, fmt.Errorf("%s: %w: bad key", op, ErrInvalidParams)
	}

	p.SaltLen = uint32(len(salt))
	p.KeyLen = uint32(len(key))

	return p, salt, key, nil
}

var _ Hasher = (*Argon2id)(nil)
