package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pribylovaa/jwt-auth-service/internal/config"
	"github.com/pribylovaa/jwt-auth-service/internal/models"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func testCfg() config.JWTConfig {
	return config.JWTConfig{
		Key:                        "test-signing-key",
		Issuer:                     "auth",
		Audience:                   "api",
		AccessTokenDurationMinutes: 15,
		RefreshTokenDurationDays:   7,
	}
}

func testUser() *models.User {
	return &models.User{
		ID:      uuid.MustParse("6f1c6f0e-4b5e-4d1a-9a3c-2c7d8f9e0a1b"),
		Name:    "Alice",
		Surname: "Smith",
		Email:   "alice@example.com",
		Role:    models.RoleUser,
	}
}

func newSigner(t *testing.T) *Signer {
	t.Helper()

	s, err := NewSigner(testCfg())
	require.NoError(t, err)

	return s
}

func TestNewSigner_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *config.JWTConfig)
	}{
		{name: "empty_key", mutate: func(c *config.JWTConfig) { c.Key = "" }},
		{name: "empty_issuer", mutate: func(c *config.JWTConfig) { c.Issuer = "" }},
		{name: "empty_audience", mutate: func(c *config.JWTConfig) { c.Audience = "" }},
		{name: "zero_duration", mutate: func(c *config.JWTConfig) { c.AccessTokenDurationMinutes = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testCfg()
			tt.mutate(&cfg)

			_, err := NewSigner(cfg)
			require.ErrorIs(t, err, config.ErrConfiguration)
		})
	}
}

func TestIssueAccessToken_Claims(t *testing.T) {
	t.Parallel()

	s := newSigner(t)
	u := testUser()

	tok, exp, err := s.IssueAccessToken(u, t0)
	require.NoError(t, err)
	require.Equal(t, t0.Add(15*time.Minute), exp)

	claims, err := s.Validate(tok, t0)
	require.NoError(t, err)
	require.Equal(t, u.ID.String(), claims.Subject)
	require.Equal(t, "Alice", claims.Name)
	require.Equal(t, "Smith", claims.Surname)
	require.Equal(t, "alice@example.com", claims.Email)
	require.Equal(t, models.RoleUser, claims.Role)
	require.Equal(t, "auth", claims.Issuer)
	require.Equal(t, jwt.ClaimStrings{"api"}, claims.Audience)
	require.Equal(t, t0, claims.IssuedAt.Time.UTC())
	require.Equal(t, exp, claims.ExpiresAt.Time.UTC())

	id, err := claims.UserID()
	require.NoError(t, err)
	require.Equal(t, u.ID, id)
}

func TestIssueAccessToken_Deterministic(t *testing.T) {
	t.Parallel()

	s := newSigner(t)

	a, _, err := s.IssueAccessToken(testUser(), t0)
	require.NoError(t, err)
	b, _, err := s.IssueAccessToken(testUser(), t0)
	require.NoError(t, err)
	c, _, err := s.IssueAccessToken(testUser(), t0.Add(time.Second))
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestValidate_ExpiryBoundary(t *testing.T) {
	t.Parallel()

	s := newSigner(t)
	tok, exp, err := s.IssueAccessToken(testUser(), t0)
	require.NoError(t, err)

	_, err = s.Validate(tok, exp.Add(-time.Second))
	require.NoError(t, err)

	_, err = s.Validate(tok, exp.Add(time.Second))
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidate_Rejects(t *testing.T) {
	t.Parallel()

	s := newSigner(t)
	tok, _, err := s.IssueAccessToken(testUser(), t0)
	require.NoError(t, err)

	otherKey := testCfg()
	otherKey.Key = "another-key"
	sOtherKey, err := NewSigner(otherKey)
	require.NoError(t, err)

	otherIss := testCfg()
	otherIss.Issuer = "someone-else"
	sOtherIss, err := NewSigner(otherIss)
	require.NoError(t, err)

	otherAud := testCfg()
	otherAud.Audience = "mobile"
	sOtherAud, err := NewSigner(otherAud)
	require.NoError(t, err)

	_, err = sOtherKey.Validate(tok, t0)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = sOtherIss.Validate(tok, t0)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = sOtherAud.Validate(tok, t0)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Validate("garbage", t0)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Подделка payload ломает подпись.
	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]
	_, err = s.Validate(tampered, t0)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	s := newSigner(t)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   testUser().ID.String(),
			Issuer:    "auth",
			Audience:  jwt.ClaimStrings{"api"},
			ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour)),
		},
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.Validate(none, t0)
	require.ErrorIs(t, err, ErrInvalidToken)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	_, err = s.Validate(hs512, t0)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_RejectsBadSubject(t *testing.T) {
	t.Parallel()

	s := newSigner(t)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-uuid",
			Issuer:    "auth",
			Audience:  jwt.ClaimStrings{"api"},
			ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = s.Validate(tok, t0)
	require.ErrorIs(t, err, ErrInvalidToken)
}
