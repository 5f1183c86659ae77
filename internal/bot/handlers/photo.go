package handlers

import (
	"context"
	"errors"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/clearcut-bot/clearcut-bot/internal/bot/keyboard"
	"github.com/clearcut-bot/clearcut-bot/internal/domain"
	"github.com/clearcut-bot/clearcut-bot/internal/mirror"
	"github.com/clearcut-bot/clearcut-bot/internal/pending"
	"github.com/clearcut-bot/clearcut-bot/internal/quota"
	"github.com/clearcut-bot/clearcut-bot/pkg/config"
	"github.com/clearcut-bot/clearcut-bot/pkg/metrics"
)

// PhotoHandler accepts uploaded photos and asks for the output format.
// Quota is checked up front, but the credit is charged only when the
// conversion actually succeeds.
type PhotoHandler struct {
	ledger   *quota.Ledger
	pending  *pending.Store
	mirror   *mirror.Mirror
	keyboard *keyboard.Builder
	botCfg   *config.BotConfig
	log      *slog.Logger
}

// NewPhotoHandler wires the photo upload handler.
func NewPhotoHandler(
	ledger *quota.Ledger,
	pendingStore *pending.Store,
	m *mirror.Mirror,
	kb *keyboard.Builder,
	botCfg *config.BotConfig,
	log *slog.Logger,
) *PhotoHandler {
	if log == nil {
		log = slog.Default()
	}

	return &PhotoHandler{
		ledger:   ledger,
		pending:  pendingStore,
		mirror:   m,
		keyboard: kb,
		botCfg:   botCfg,
		log:      log,
	}
}

// Handle receives a photo upload, gates it on ban and quota state and,
// when allowed, parks the photo until the user picks a format.
func (h *PhotoHandler) Handle(c telebot.Context) error {
	sender := c.Sender()
	if sender == nil || c.Message() == nil || c.Message().Photo == nil {
		return nil
	}

	ctx := context.Background()

	err := h.ledger.WithLock(ctx, sender.ID, func(ctx context.Context) error {
		rec, err := h.ledger.GetOrCreate(ctx, sender)
		if err != nil {
			return err
		}

		if rec.Banned {
			return h.rejectBanned(ctx, c, rec)
		}

		isAdmin := h.botCfg.IsAdmin(sender.ID)
		allowed, err := h.ledger.CheckDailyLimit(ctx, rec, isAdmin)
		if err != nil {
			h.log.Error("daily limit check failed", slog.Int64("telegram_id", sender.ID), slog.Any("error", err))
		}
		if !allowed {
			return h.rejectQuota(ctx, c, rec)
		}

		// Telegram sends several sizes of the same photo; the stored
		// FileID references the largest one telebot exposes.
		photo := pending.Photo{FileID: c.Message().Photo.FileID}
		if err := h.pending.Put(ctx, sender.ID, photo); err != nil {
			return err
		}

		h.syncMirror(ctx, rec)

		return c.Send("Great! Now pick the output format:", h.keyboard.FormatButtons())
	})

	if errors.Is(err, quota.ErrLocked) {
		return c.Send("I'm still working on your previous photo. Give me a second!")
	}

	return err
}

func (h *PhotoHandler) rejectBanned(ctx context.Context, c telebot.Context, rec *domain.UserRecord) error {
	if err := h.ledger.RecordViolation(ctx, rec); err != nil {
		h.log.Error("failed to record violation", slog.Int64("telegram_id", rec.TelegramID), slog.Any("error", err))
	}

	h.syncMirror(ctx, rec)

	return c.Send("You are banned from using this bot.")
}

func (h *PhotoHandler) rejectQuota(ctx context.Context, c telebot.Context, rec *domain.UserRecord) error {
	metrics.RecordQuotaRejection()

	if err := h.ledger.RecordViolation(ctx, rec); err != nil {
		h.log.Error("failed to record violation", slog.Int64("telegram_id", rec.TelegramID), slog.Any("error", err))
	}

	h.syncMirror(ctx, rec)

	return c.Send("You have used all your credits for today. Come back tomorrow!")
}

func (h *PhotoHandler) syncMirror(ctx context.Context, rec *domain.UserRecord) {
	if err := h.mirror.Sync(ctx, rec); err != nil {
		h.log.Error("mirror sync failed", slog.Int64("telegram_id", rec.TelegramID), slog.Any("error", err))
	}
}
