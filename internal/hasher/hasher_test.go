package hasher

import (
	"strings"
	"testing"

	"github.com/pribylovaa/jwt-auth-service/internal/config"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testArgon2Params = Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, SaltLen: 16, KeyLen: 32}

func newHashers(t *testing.T) map[string]Hasher {
	t.Helper()

	b, err := NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)

	return map[string]Hasher{
		"bcrypt":   b,
		"argon2id": NewArgon2id(testArgon2Params),
	}
}

func TestHasher_RoundTrip(t *testing.T) {
	t.Parallel()

	for name, h := range newHashers(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			hash, err := h.Hash("alice@example.com", "Secret1")
			require.NoError(t, err)
			require.NotEmpty(t, hash)
			require.NotContains(t, hash, "Secret1")

			require.Equal(t, Success, h.Verify("alice@example.com", hash, "Secret1"))
			require.Equal(t, Failed, h.Verify("alice@example.com", hash, "Secret2"))
		})
	}
}

func TestHasher_ContextBinding(t *testing.T) {
	t.Parallel()

	for name, h := range newHashers(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			hash, err := h.Hash("alice@example.com", "Secret1")
			require.NoError(t, err)

			require.Equal(t, Failed, h.Verify("bob@example.com", hash, "Secret1"))
		})
	}
}

func TestHasher_Salted(t *testing.T) {
	t.Parallel()

	for name, h := range newHashers(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			a, err := h.Hash("ctx", "same")
			require.NoError(t, err)
			b, err := h.Hash("ctx", "same")
			require.NoError(t, err)

			require.NotEqual(t, a, b)
		})
	}
}

func TestHasher_CorruptedHash(t *testing.T) {
	t.Parallel()

	corrupted := []string{
		"",
		"not-a-hash",
		"$2a$04$short",
		"$argon2id$v=19$m=8192,t=1,p=1$@@@$@@@",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=99999999,t=1,p=1$c2FsdA$a2V5",
	}

	for name, h := range newHashers(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			for _, c := range corrupted {
				require.Equal(t, Failed, h.Verify("ctx", c, "pw"), "hash %q", c)
			}
		})
	}
}

func TestBcrypt_LongPassword(t *testing.T) {
	t.Parallel()

	h, err := NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)

	long := strings.Repeat("a", 100)
	hash, err := h.Hash("ctx", long)
	require.NoError(t, err)

	// Пароли, отличающиеся после 72-го байта, различимы.
	require.Equal(t, Success, h.Verify("ctx", hash, long))
	require.Equal(t, Failed, h.Verify("ctx", hash, strings.Repeat("a", 99)+"b"))
}

func TestNewBcrypt_InvalidCost(t *testing.T) {
	t.Parallel()

	_, err := NewBcrypt(bcrypt.MaxCost + 1)
	require.ErrorIs(t, err, ErrInvalidParams)

	_, err = NewBcrypt(1)
	require.ErrorIs(t, err, ErrInvalidParams)
}

func TestArgon2id_Format(t *testing.T) {
	t.Parallel()

	h := NewArgon2id(testArgon2Params)
	hash, err := h.Hash("ctx", "pw")
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$"), hash)
	require.Len(t, strings.Split(hash, "$"), 6)

	// Хэш, созданный с другими параметрами, проверяется по параметрам из строки.
	other := NewArgon2id(Argon2Params{Time: 2, Memory: 16 * 1024, Threads: 2, SaltLen: 8, KeyLen: 16})
	require.Equal(t, Success, other.Verify("ctx", hash, "pw"))
}

func TestNew(t *testing.T) {
	t.Parallel()

	h, err := New(config.AuthConfig{PasswordHasher: config.HasherBcrypt, BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	require.IsType(t, &Bcrypt{}, h)

	h, err = New(config.AuthConfig{PasswordHasher: config.HasherArgon2id})
	require.NoError(t, err)
	require.IsType(t, &Argon2id{}, h)

	_, err = New(config.AuthConfig{PasswordHasher: "md5"})
	require.ErrorIs(t, err, ErrInvalidParams)
}

func TestResult_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "success", Success.String())
	require.Equal(t, "failed", Failed.String())
}

func TestDummy(t *testing.T) {
	t.Parallel()

	for name, h := range newHashers(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			d, err := Dummy(h)
			require.NoError(t, err)
			require.Equal(t, Failed, h.Verify("alice@example.com", d, "Secret1"))
		})
	}
}
