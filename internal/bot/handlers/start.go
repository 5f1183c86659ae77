package handlers

import (
	"context"
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/clearcut-bot/clearcut-bot/internal/domain"
	"github.com/clearcut-bot/clearcut-bot/internal/mirror"
	"github.com/clearcut-bot/clearcut-bot/internal/quota"
	"github.com/clearcut-bot/clearcut-bot/pkg/config"
)

const helpText = "Send me a photo and I will remove its background.\n\n" +
	"1. Send a photo (as a photo, not a file).\n" +
	"2. Pick the output format: transparent PNG or white-background JPG.\n" +
	"3. Receive the processed image.\n\n" +
	"You get %d free credits every day. Use /status to check your balance."

// StartHandler serves /start, /help and /status.
type StartHandler struct {
	ledger *quota.Ledger
	mirror *mirror.Mirror
	botCfg *config.BotConfig
	log    *slog.Logger
}

// NewStartHandler wires the onboarding command handlers.
func NewStartHandler(ledger *quota.Ledger, m *mirror.Mirror, botCfg *config.BotConfig, log *slog.Logger) *StartHandler {
	if log == nil {
		log = slog.Default()
	}

	return &StartHandler{
		ledger: ledger,
		mirror: m,
		botCfg: botCfg,
		log:    log,
	}
}

// HandleStart greets the user and materializes their record.
func (h *StartHandler) HandleStart(c telebot.Context) error {
	ctx := context.Background()

	rec, err := h.ledger.GetOrCreate(ctx, c.Sender())
	if err != nil {
		return err
	}

	h.syncMirror(ctx, rec)

	if rec.Banned {
		return c.Send("You are banned from using this bot.")
	}

	greeting := fmt.Sprintf(
		"Hi %s! 👋\n\nSend me a photo and I will remove its background for you.\n"+
			"You have %d credits left today.",
		c.Sender().FirstName, rec.Credits,
	)

	return c.Send(greeting)
}

// HandleHelp describes how the bot works.
func (h *StartHandler) HandleHelp(c telebot.Context) error {
	return c.Send(fmt.Sprintf(helpText, h.botCfg.DailyCredits))
}

// HandleStatus shows the user their own status snapshot.
func (h *StartHandler) HandleStatus(c telebot.Context) error {
	ctx := context.Background()

	rec, err := h.ledger.GetOrCreate(ctx, c.Sender())
	if err != nil {
		return err
	}

	h.syncMirror(ctx, rec)

	return c.Send(mirror.Snapshot(rec), telebot.ModeHTML)
}

// HandleDefault answers text messages that are not commands.
func (h *StartHandler) HandleDefault(c telebot.Context) error {
	return c.Send("Just send me a photo to get started, or type /help.")
}

// syncMirror is best-effort: a log-channel failure never blocks the user's command.
func (h *StartHandler) syncMirror(ctx context.Context, rec *domain.UserRecord) {
	if err := h.mirror.Sync(ctx, rec); err != nil {
		h.log.Error("mirror sync failed", slog.Int64("telegram_id", rec.TelegramID), slog.Any("error", err))
	}
}
