// Package cache keeps harvesting coordination state in Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "ranking:"

// Config holds Redis connection settings
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// RedisCache stores harvest locks and watermarks
type RedisCache struct {
	client *redis.Client
}

// releaseScript deletes a lock only when it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(cfg Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info().Str("addr", client.Options().Addr).Int("db", cfg.DB).Msg("Connected to Redis")
	return &RedisCache{client: client}, nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Health pings Redis
func (c *RedisCache) Health(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// AcquireLock takes the named lock for at most ttl. When the lock is already
// held it returns acquired=false and a nil release.
func (c *RedisCache) AcquireLock(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error) {
	key := keyPrefix + "lock:" + name
	token := uuid.NewString()

	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %q: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, c.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release lock %q: %w", name, err)
		}
		return nil
	}
	return release, true, nil
}

// Watermark returns the end of the last successful harvest window of a game.
// ok is false when no harvest has completed yet.
func (c *RedisCache) Watermark(ctx context.Context, gameCode string) (t time.Time, ok bool, err error) {
	val, err := c.client.Get(ctx, watermarkKey(gameCode)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read watermark of %q: %w", gameCode, err)
	}

	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt watermark of %q: %w", gameCode, err)
	}
	return time.Unix(unix, 0).UTC(), true, nil
}

// SetWatermark records the end of a successful harvest window
func (c *RedisCache) SetWatermark(ctx context.Context, gameCode string, t time.Time) error {
	if err := c.client.Set(ctx, watermarkKey(gameCode), strconv.FormatInt(t.Unix(), 10), 0).Err(); err != nil {
		return fmt.Errorf("failed to store watermark of %q: %w", gameCode, err)
	}
	return nil
}

func watermarkKey(gameCode string) string {
	return keyPrefix + "watermark:" + gameCode
}
