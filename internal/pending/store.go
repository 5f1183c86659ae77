// Package pending stores the photo a user uploaded while they pick an output format.
package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	pendingKeyPattern = "user:pending:%d"
	defaultTTL        = 10 * time.Minute
)

// ErrNotFound indicates there is no pending photo for the user (never uploaded or expired).
var ErrNotFound = errors.New("no pending photo for user")

// Photo references an uploaded photo by its Telegram file id.
type Photo struct {
	FileID     string    `json:"file_id"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Store keeps pending photos in Redis with a TTL, one slot per user.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

// NewStore initializes a Redis-backed pending photo store.
func NewStore(client *redis.Client, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}

	return &Store{
		client: client,
		ttl:    defaultTTL,
		log:    log,
	}
}

// Put saves the pending photo for the user, replacing any previous one.
func (s *Store) Put(ctx context.Context, userID int64, photo Photo) error {
	if photo.UploadedAt.IsZero() {
		photo.UploadedAt = time.Now().UTC()
	}

	data, err := json.Marshal(photo)
	if err != nil {
		s.log.Error("failed to encode pending photo", slog.Int64("user_id", userID), slog.Any("error", err))
		return err
	}

	if err := s.client.Set(ctx, pendingKey(userID), data, s.ttl).Err(); err != nil {
		s.log.Error("failed to save pending photo", slog.Int64("user_id", userID), slog.Any("error", err))
		return err
	}

	return nil
}

// Get returns the pending photo for the user or ErrNotFound.
func (s *Store) Get(ctx context.Context, userID int64) (*Photo, error) {
	data, err := s.client.Get(ctx, pendingKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}

		s.log.Error("failed to get pending photo", slog.Int64("user_id", userID), slog.Any("error", err))
		return nil, err
	}

	var photo Photo
	if err := json.Unmarshal([]byte(data), &photo); err != nil {
		s.log.Error("failed to decode pending photo", slog.Int64("user_id", userID), slog.Any("error", err))
		return nil, err
	}

	return &photo, nil
}

// Clear removes the pending photo for the user.
func (s *Store) Clear(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, pendingKey(userID)).Err(); err != nil {
		s.log.Error("failed to clear pending photo", slog.Int64("user_id", userID), slog.Any("error", err))
		return err
	}

	return nil
}

func pendingKey(userID int64) string {
	return fmt.Sprintf(pendingKeyPattern, userID)
}
