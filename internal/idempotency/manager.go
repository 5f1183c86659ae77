// Package idempotency guarantees at-most-once handler execution per Telegram update.
package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrInProgress indicates another delivery of the same update is being handled right now.
var ErrInProgress = errors.New("update with this key is already in progress")

// Operation is the guarded unit of work.
type Operation func(ctx context.Context) error

// Manager executes operations at most once per key.
type Manager interface {
	Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (executed bool, err error)
}

type manager struct {
	store Store
	log   *slog.Logger
}

// NewManager builds a Manager over the given store.
func NewManager(store Store, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		store: store,
		log:   log,
	}
}

// Execute runs fn unless the key was already completed. The returned bool
// reports whether fn actually ran (false means the update was a duplicate).
func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if fn == nil {
		return false, errors.New("operation fn cannot be nil")
	}

	locked, err := m.store.Lock(ctx, key, 5*time.Minute)
	if err != nil {
		return false, err
	}

	if !locked {
		status, err := m.store.Status(ctx, key)
		if err != nil {
			return false, err
		}

		if status == StatusCompleted {
			m.log.Debug("skipping duplicate update", slog.String("key", key))
			return false, nil
		}

		return false, ErrInProgress
	}
	defer func() {
		if err := m.store.ReleaseLock(ctx, key); err != nil {
			m.log.Error("failed to release idempotency lock", slog.String("key", key), slog.Any("error", err))
		}
	}()

	if err := fn(ctx); err != nil {
		return true, err
	}

	if err := m.store.MarkCompleted(ctx, key, ttl); err != nil {
		return true, err
	}

	return true, nil
}
