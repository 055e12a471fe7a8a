package sqlite

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/jwt-auth-service/internal/models"
	"github.com/pribylovaa/jwt-auth-service/internal/storage"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// newStorage открывает временную БД с применёнными миграциями.
func newStorage(t *testing.T) *Storage {
	t.Helper()

	ctx := context.Background()
	st, err := New(ctx, filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	t.Cleanup(st.Close)

	return st
}

func seedUser(t *testing.T, st *Storage, email string) *models.User {
	t.Helper()
	u := &models.User{
		ID:           uuid.New(),
		Name:         "Alice",
		Surname:      "Smith",
		Email:        email,
		PasswordHash: "hash",
		Role:         models.RoleUser,
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
	require.NoError(t, st.SaveUser(context.Background(), u))
	return u
}

func hashRefresh(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func seedToken(t *testing.T, st *Storage, userID uuid.UUID, plain string, expiresAt time.Time) string {
	t.Helper()
	hash := hashRefresh(plain)
	require.NoError(t, st.SaveRefreshToken(context.Background(), &models.RefreshToken{
		TokenHash: hash,
		UserID:    userID,
		CreatedAt: t0,
		ExpiresAt: expiresAt,
	}))
	return hash
}

func TestNew_EmptyPath(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "  ")
	require.Error(t, err)
}

func TestSaveUser_And_Lookup(t *testing.T) {
	t.Parallel()

	st := newStorage(t)
	ctx := context.Background()
	u := seedUser(t, st, "alice@example.com")

	got, err := st.UserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, *u, *got)

	got, err = st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Email, got.Email)

	_, err = st.UserByEmail(ctx, "ALICE@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.UserByID(ctx, uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSaveUser_DuplicateEmail(t *testing.T) {
	t.Parallel()

	st := newStorage(t)
	seedUser(t, st, "dup@example.com")

	err := st.SaveUser(context.Background(), &models.User{ID: uuid.New(), Email: "dup@example.com", Role: models.RoleUser})
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestSaveRefreshToken_Duplicate(t *testing.T) {
	t.Parallel()

	st := newStorage(t)
	u := seedUser(t, st, "u@example.com")
	seedToken(t, st, u.ID, "dup", t0.Add(time.Hour))

	err := st.SaveRefreshToken(context.Background(), &models.RefreshToken{
		TokenHash: hashRefresh("dup"), UserID: u.ID, CreatedAt: t0, ExpiresAt: t0.Add(time.Hour),
	})
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestSaveRefreshToken_UnknownUser(t *testing.T) {
	t.Parallel()

	st := newStorage(t)

	err := st.SaveRefreshToken(context.Background(), &models.RefreshToken{
		TokenHash: hashRefresh("orphan"), UserID: uuid.New(), CreatedAt: t0, ExpiresAt: t0.Add(time.Hour),
	})
	require.Error(t, err)
	require.NotErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestRedeemRefreshToken(t *testing.T) {
	t.Parallel()

	st := newStorage(t)
	ctx := context.Background()
	u := seedUser(t, st, "u@example.com")
	hash := seedToken(t, st, u.ID, "plain", t0.Add(time.Hour))

	tok, owner, err := st.RedeemRefreshToken(ctx, hash, t0)
	require.NoError(t, err)
	require.True(t, tok.Revoked)
	require.Equal(t, hash, tok.TokenHash)
	require.Equal(t, t0.Add(time.Hour), tok.ExpiresAt)
	require.Equal(t, u.ID, owner.ID)

	_, _, err = st.RedeemRefreshToken(ctx, hash, t0)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, _, err = st.RedeemRefreshToken(ctx, hashRefresh("missing"), t0)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRedeemRefreshToken_ExpiryBoundary(t *testing.T) {
	t.Parallel()

	st := newStorage(t)
	ctx := context.Background()
	u := seedUser(t, st, "u@example.com")
	exp := t0.Add(time.Hour)

	a := seedToken(t, st, u.ID, "a", exp)
	b := seedToken(t, st, u.ID, "b", exp)

	_, _, err := st.RedeemRefreshToken(ctx, a, exp)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, _, err = st.RedeemRefreshToken(ctx, b, exp.Add(-time.Millisecond))
	require.NoError(t, err)
}

func TestRedeemRefreshToken_Concurrent(t *testing.T) {
	t.Parallel()

	st := newStorage(t)
	u := seedUser(t, st, "u@example.com")
	hash := seedToken(t, st, u.ID, "race", t0.Add(time.Hour))

	const n = 16
	var (
		wg  sync.WaitGroup
		won atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := st.RedeemRefreshToken(context.Background(), hash, t0); err == nil {
				won.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), won.Load())
}

func TestRotateRefreshToken(t *testing.T) {
	t.Parallel()

	st := newStorage(t)
	ctx := context.Background()
	u := seedUser(t, st, "u@example.com")
	oldHash := seedToken(t, st, u.ID, "old", t0.Add(time.Hour))

	next := &models.RefreshToken{TokenHash: hashRefresh("new"), CreatedAt: t0, ExpiresAt: t0.Add(2 * time.Hour)}
	owner, err := st.RotateRefreshToken(ctx, oldHash, t0, next)
	require.NoError(t, err)
	require.Equal(t, u.ID, owner.ID)
	require.Equal(t, u.ID, next.UserID)

	_, _, err = st.RedeemRefreshToken(ctx, oldHash, t0)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, _, err = st.RedeemRefreshToken(ctx, next.TokenHash, t0)
	require.NoError(t, err)
}

func TestRotateRefreshToken_RollbackOnConflict(t *testing.T) {
	t.Parallel()

	st := newStorage(t)
	ctx := context.Background()
	u := seedUser(t, st, "u@example.com")
	oldHash := seedToken(t, st, u.ID, "old", t0.Add(time.Hour))
	taken := seedToken(t, st, u.ID, "taken", t0.Add(time.Hour))

	_, err := st.RotateRefreshToken(ctx, oldHash, t0, &models.RefreshToken{TokenHash: taken, CreatedAt: t0, ExpiresAt: t0.Add(time.Hour)})
	require.ErrorIs(t, err, storage.ErrAlreadyExists)

	_, _, err = st.RedeemRefreshToken(ctx, oldHash, t0)
	require.NoError(t, err)
}

func TestRotateRefreshToken_CancelledContext(t *testing.T) {
	t.Parallel()

	st := newStorage(t)
	u := seedUser(t, st, "u@example.com")
	oldHash := seedToken(t, st, u.ID, "old", t0.Add(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := st.RotateRefreshToken(ctx, oldHash, t0, &models.RefreshToken{TokenHash: hashRefresh("new"), CreatedAt: t0, ExpiresAt: t0.Add(time.Hour)})
	require.Error(t, err)

	// Отменённый запрос не оставляет частичного состояния.
	_, _, err = st.RedeemRefreshToken(context.Background(), oldHash, t0)
	require.NoError(t, err)
	_, _, err = st.RedeemRefreshToken(context.Background(), hashRefresh("new"), t0)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteExpiredTokens(t *testing.T) {
	t.Parallel()

	st := newStorage(t)
	ctx := context.Background()
	u := seedUser(t, st, "u@example.com")
	seedToken(t, st, u.ID, "old-1", t0.Add(-2*time.Hour))
	seedToken(t, st, u.ID, "old-2", t0.Add(-time.Hour))
	alive := seedToken(t, st, u.ID, "alive", t0.Add(time.Hour))

	n, err := st.DeleteExpiredTokens(ctx, t0)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	_, _, err = st.RedeemRefreshToken(ctx, alive, t0)
	require.NoError(t, err)
}

func TestPing(t *testing.T) {
	t.Parallel()

	require.NoError(t, newStorage(t).Ping(context.Background()))
}
