package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Processing statuses stored per key.
const (
	StatusUnknown   = ""
	StatusCompleted = "completed"
)

// Store persists idempotency state.
type Store interface {
	Lock(ctx context.Context, key string, lockTTL time.Duration) (bool, error)
	Status(ctx context.Context, key string) (string, error)
	MarkCompleted(ctx context.Context, key string, ttl time.Duration) error
	ReleaseLock(ctx context.Context, key string) error
}

// RedisStore is the Redis-backed Store implementation.
type RedisStore struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client, log *slog.Logger) Store {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStore{
		client: client,
		log:    log,
	}
}

// Lock acquires the processing lock for the key.
func (s *RedisStore) Lock(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	acquired, err := s.client.SetNX(ctx, lockKey(key), 1, lockTTL).Result()
	if err != nil {
		s.log.Error("failed to acquire idempotency lock", slog.String("key", key), slog.Any("error", err))
		return false, err
	}

	return acquired, nil
}

// Status returns the stored status for the key, or StatusUnknown when absent.
func (s *RedisStore) Status(ctx context.Context, key string) (string, error) {
	status, err := s.client.Get(ctx, recordKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return StatusUnknown, nil
		}

		s.log.Error("failed to fetch idempotency record", slog.String("key", key), slog.Any("error", err))
		return StatusUnknown, err
	}

	return status, nil
}

// MarkCompleted records that the key's operation finished successfully.
func (s *RedisStore) MarkCompleted(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Set(ctx, recordKey(key), StatusCompleted, ttl).Err(); err != nil {
		s.log.Error("failed to store idempotency record", slog.String("key", key), slog.Any("error", err))
		return err
	}

	return nil
}

// ReleaseLock frees the processing lock for the key.
func (s *RedisStore) ReleaseLock(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, lockKey(key)).Err(); err != nil {
		return err
	}

	return nil
}

func recordKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

func lockKey(key string) string {
	return fmt.Sprintf("idempotency:%s:lock", key)
}
