package middleware

import (
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/clearcut-bot/clearcut-bot/internal/bot/handlers"
	"github.com/clearcut-bot/clearcut-bot/pkg/metrics"
)

// Metrics measures execution time and status for bot handlers, reporting them to Prometheus.
func Metrics(next handlers.Handler) handlers.Handler {
	if next == nil {
		return nil
	}

	return func(c telebot.Context) error {
		start := time.Now()
		err := next(c)

		status := "ok"
		if err != nil {
			status = "error"
		}

		metrics.RecordUpdate(updateKind(c), status, time.Since(start))

		return err
	}
}

// updateKind classifies the update with bounded label cardinality.
func updateKind(c telebot.Context) string {
	if c == nil {
		return "unknown"
	}

	if cb := c.Callback(); cb != nil {
		data := strings.TrimSpace(cb.Data)
		if idx := strings.IndexByte(data, '_'); idx > 0 {
			return "cb:" + data[:idx]
		}
		return "cb:" + data
	}

	if msg := c.Message(); msg != nil && msg.Photo != nil {
		return "photo"
	}

	text := c.Text()
	if strings.HasPrefix(text, "/") {
		if idx := strings.IndexAny(text, " @"); idx > 0 {
			text = text[:idx]
		}
		return text
	}

	return "text"
}
