// Package broadcast delivers one message to every known user with per-recipient failure isolation.
package broadcast

import (
	"context"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/clearcut-bot/clearcut-bot/pkg/metrics"
)

// Sender is the subset of telebot.Bot used for deliveries.
type Sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Report aggregates delivery outcomes for one broadcast run.
type Report struct {
	Sent   int
	Failed int
}

// Broadcaster sends messages to lists of recipients.
type Broadcaster struct {
	api Sender
	log *slog.Logger
}

// New constructs a Broadcaster delivering through api.
func New(api Sender, log *slog.Logger) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}

	return &Broadcaster{
		api: api,
		log: log,
	}
}

// SendToAll delivers text to every recipient sequentially. A failed delivery
// (user blocked the bot, deleted their account) is counted and never aborts
// the remaining sends, so Sent+Failed always equals len(recipients).
func (b *Broadcaster) SendToAll(ctx context.Context, recipients []int64, text string) Report {
	var report Report

	for _, userID := range recipients {
		select {
		case <-ctx.Done():
			report.Failed += len(recipients) - report.Sent - report.Failed
			return report
		default:
		}

		if _, err := b.api.Send(telebot.ChatID(userID), text); err != nil {
			b.log.Warn("broadcast delivery failed", slog.Int64("user_id", userID), slog.Any("error", err))
			metrics.RecordBroadcastDelivery("failed")
			report.Failed++
			continue
		}

		metrics.RecordBroadcastDelivery("sent")
		report.Sent++
	}

	return report
}
