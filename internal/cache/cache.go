// cache — кэш состояния refresh-токенов в Redis.
// Источник истины — БД; кэш только ускоряет отказ по отозванным
// и истёкшим токенам.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

//go:generate mockgen -destination=../../mocks/mock_cache.go -package=mocks github.com/pribylovaa/jwt-auth-service/internal/cache RefreshCache

// DefaultPrefix — префикс ключей по умолчанию.
const DefaultPrefix = "auth:rt:"

// RefreshEntry описывает данные, которые мы храним в Redis по хэшу refresh-токена.
type RefreshEntry struct {
	UserID    uuid.UUID
	Revoked   bool
	ExpiresAt time.Time
}

// RefreshCache — минимальный контракт кэша refresh-токенов.
type RefreshCache interface {
	// Get возвращает запись и признак её наличия в кэше.
	Get(ctx context.Context, hash string) (*RefreshEntry, bool, error)
	// Set сохраняет запись с TTL (обычно ExpiresAt-now).
	Set(ctx context.Context, hash string, e *RefreshEntry, ttl time.Duration) error
	// MarkRevoked сохраняет запись с revoked=1 и тем же TTL.
	// Ключ без TTL не создаётся: при ttl <= 0 запись удаляется.
	MarkRevoked(ctx context.Context, hash string, e *RefreshEntry, ttl time.Duration) error
	// Ping проверяет доступность Redis.
	Ping(ctx context.Context) error
	// Close закрывает клиент Redis.
	Close() error
}

type redisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется DefaultPrefix.
func NewRedisCache(ctx context.Context, redisURL, prefix string) (RefreshCache, error) {
	const op = "cache.NewRedisCache"

	if prefix == "" {
		prefix = DefaultPrefix
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &redisCache{rdb: rdb, prefix: prefix}, nil
}

func (c *redisCache) key(hash string) string { return c.prefix + hash }

// Храним как Redis Hash с полями: uid, rev (0/1), exp (unix, мс).
func (c *redisCache) Get(ctx context.Context, hash string) (*RefreshEntry, bool, error) {
	const op = "cache.redis.Get"

	m, err := c.rdb.HGetAll(ctx, c.key(hash)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if len(m) == 0 {
		return nil, false, nil
	}

	e, err := decodeEntry(m)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	return e, true, nil
}

func (c *redisCache) Set(ctx context.Context, hash string, e *RefreshEntry, ttl time.Duration) error {
	const op = "cache.redis.Set"

	if err := c.write(ctx, hash, e, ttl); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *redisCache) MarkRevoked(ctx context.Context, hash string, e *RefreshEntry, ttl time.Duration) error {
	const op = "cache.redis.MarkRevoked"

	revoked := *e
	revoked.Revoked = true

	if err := c.write(ctx, hash, &revoked, ttl); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *redisCache) write(ctx context.Context, hash string, e *RefreshEntry, ttl time.Duration) error {
	if ttl <= 0 {
		return c.rdb.Del(ctx, c.key(hash)).Err()
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, c.key(hash), encodeEntry(e))
	pipe.Expire(ctx, c.key(hash), ttl)

	_, err := pipe.Exec(ctx)
	return err
}

func (c *redisCache) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

func (c *redisCache) Close() error { return c.rdb.Close() }

func encodeEntry(e *RefreshEntry) map[string]string {
	return map[string]string{
		"uid": e.UserID.String(),
		"rev": boolTo01(e.Revoked),
		"exp": strconv.FormatInt(e.ExpiresAt.UnixMilli(), 10),
	}
}

func decodeEntry(m map[string]string) (*RefreshEntry, error) {
	uid, err := uuid.Parse(m["uid"])
	if err != nil {
		return nil, err
	}

	expMillis, err := strconv.ParseInt(m["exp"], 10, 64)
	if err != nil {
		return nil, err
	}

	return &RefreshEntry{
		UserID:    uid,
		Revoked:   m["rev"] == "1",
		ExpiresAt: time.UnixMilli(expMillis).UTC(),
	}, nil
}

func boolTo01(b bool) string {
	if b {
		return "1"
	}

	return "0"
}
