// Package mirror maintains the per-user status snapshot in the log channel.
package mirror

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strconv"

	telebot "gopkg.in/telebot.v3"

	"github.com/clearcut-bot/clearcut-bot/internal/domain"
	"github.com/clearcut-bot/clearcut-bot/pkg/metrics"
)

// ChannelAPI is the subset of telebot.Bot the mirror publishes through.
type ChannelAPI interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
	Edit(msg telebot.Editable, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// MessageStore persists the mirror message id for a user.
type MessageStore interface {
	SetMirrorMessageID(ctx context.Context, telegramID, messageID int64) error
}

// Mirror publishes one status message per user to the log channel,
// creating it once and editing it in place afterwards.
type Mirror struct {
	api       ChannelAPI
	store     MessageStore
	channelID int64
	log       *slog.Logger
}

// New constructs a Mirror publishing to the given channel.
func New(api ChannelAPI, store MessageStore, channelID int64, log *slog.Logger) *Mirror {
	if log == nil {
		log = slog.Default()
	}

	return &Mirror{
		api:       api,
		store:     store,
		channelID: channelID,
		log:       log,
	}
}

// Sync publishes the user's current snapshot. An edit that reports unchanged
// content counts as success. A missing target message is healed by clearing
// the stored id and creating a replacement, bounded to exactly one attempt.
// Callers treat Sync as best-effort and must not fail their primary action on error.
func (m *Mirror) Sync(ctx context.Context, rec *domain.UserRecord) error {
	text := Snapshot(rec)

	for attempt := 0; attempt < 2; attempt++ {
		if rec.MirrorMessageID == 0 {
			msg, err := m.api.Send(telebot.ChatID(m.channelID), text, telebot.ModeHTML)
			if err != nil {
				metrics.RecordMirrorSync("create_failed")
				return fmt.Errorf("create mirror message: %w", err)
			}

			rec.MirrorMessageID = int64(msg.ID)
			if err := m.store.SetMirrorMessageID(ctx, rec.TelegramID, rec.MirrorMessageID); err != nil {
				return fmt.Errorf("store mirror message id: %w", err)
			}

			metrics.RecordMirrorSync("created")
			return nil
		}

		ref := telebot.StoredMessage{
			MessageID: strconv.FormatInt(rec.MirrorMessageID, 10),
			ChatID:    m.channelID,
		}

		_, err := m.api.Edit(ref, text, telebot.ModeHTML)
		switch {
		case err == nil:
			metrics.RecordMirrorSync("edited")
			return nil
		case IsNotModified(err):
			// nothing to update, this is fine
			metrics.RecordMirrorSync("unchanged")
			return nil
		case IsMessageGone(err):
			m.log.Warn("mirror message is gone, recreating",
				slog.Int64("telegram_id", rec.TelegramID),
				slog.Int64("message_id", rec.MirrorMessageID),
			)

			rec.MirrorMessageID = 0
			if storeErr := m.store.SetMirrorMessageID(ctx, rec.TelegramID, 0); storeErr != nil {
				return fmt.Errorf("clear mirror message id: %w", storeErr)
			}
			continue
		default:
			metrics.RecordMirrorSync("edit_failed")
			return fmt.Errorf("edit mirror message: %w", err)
		}
	}

	metrics.RecordMirrorSync("recreate_failed")
	return fmt.Errorf("mirror message for user %d could not be recreated", rec.TelegramID)
}

// LogEvent publishes a plain-text administrative notice to the log channel.
// Delivery is fire-and-forget: failures are logged locally and never propagate.
func (m *Mirror) LogEvent(ctx context.Context, text string) {
	_ = ctx

	if _, err := m.api.Send(telebot.ChatID(m.channelID), text); err != nil {
		m.log.Error("failed to log event to channel", slog.String("event", text), slog.Any("error", err))
	}
}

// Snapshot formats the user's status message for the log channel.
func Snapshot(rec *domain.UserRecord) string {
	username := "No Username"
	if rec.Username != "" {
		username = "@" + html.EscapeString(rec.Username)
	}

	banned := "No"
	if rec.Banned {
		banned = "Yes"
	}

	return fmt.Sprintf(
		"<b>User:</b> %s\n"+
			"<b>Username:</b> %s\n"+
			"<b>User ID:</b> <code>%d</code>\n\n"+
			"<b>Credits Left:</b> %d\n"+
			"<b>Violations:</b> %d\n"+
			"<b>Banned:</b> %s",
		html.EscapeString(rec.FirstName),
		username,
		rec.TelegramID,
		rec.Credits,
		rec.Violations,
		banned,
	)
}
