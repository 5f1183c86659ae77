package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/clearcut-bot/clearcut-bot/internal/bot/handlers"
	"github.com/clearcut-bot/clearcut-bot/internal/idempotency"
)

// Idempotency ensures handlers execute at most once per Telegram update key,
// so webhook redeliveries cannot double-charge credits or double-send replies.
func Idempotency(manager idempotency.Manager, log *slog.Logger) handlers.Middleware {
	if manager == nil {
		return func(next handlers.Handler) handlers.Handler {
			return next
		}
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			key := extractIdempotencyKey(c)
			if key == "" {
				return next(c)
			}

			executed, err := manager.Execute(context.Background(), key, 24*time.Hour, func(context.Context) error {
				return next(c)
			})
			if err != nil {
				if errors.Is(err, idempotency.ErrInProgress) {
					return nil
				}
				return err
			}

			if !executed {
				log.Info("dropped duplicate update", slog.String("key", key))
			}

			return nil
		}
	}
}

func extractIdempotencyKey(c telebot.Context) string {
	if c == nil {
		return ""
	}

	if cb := c.Callback(); cb != nil && cb.ID != "" {
		return fmt.Sprintf("cb:%s", cb.ID)
	}

	if msg := c.Message(); msg != nil && msg.ID != 0 {
		chatID := int64(0)
		if msg.Chat != nil {
			chatID = msg.Chat.ID
		}
		return fmt.Sprintf("msg:%d:%d", chatID, msg.ID)
	}

	return ""
}
