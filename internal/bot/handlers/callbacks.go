package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/clearcut-bot/clearcut-bot/internal/bot/keyboard"
	"github.com/clearcut-bot/clearcut-bot/internal/domain"
	"github.com/clearcut-bot/clearcut-bot/internal/mirror"
	"github.com/clearcut-bot/clearcut-bot/internal/pending"
	"github.com/clearcut-bot/clearcut-bot/internal/quota"
	"github.com/clearcut-bot/clearcut-bot/internal/removebg"
	"github.com/clearcut-bot/clearcut-bot/pkg/config"
	"github.com/clearcut-bot/clearcut-bot/pkg/metrics"
)

const convertPrefix = "convert_"

// FileDownloader fetches file contents from Telegram.
type FileDownloader interface {
	File(file *telebot.File) (io.ReadCloser, error)
}

// Processor turns an input image into a background-free one.
type Processor interface {
	Process(ctx context.Context, image io.Reader, format string) ([]byte, error)
}

// ConvertHandler serves the format-selection callbacks and credit display.
type ConvertHandler struct {
	ledger    *quota.Ledger
	pending   *pending.Store
	mirror    *mirror.Mirror
	files     FileDownloader
	processor Processor
	keyboard  *keyboard.Builder
	botCfg    *config.BotConfig
	log       *slog.Logger
}

// NewConvertHandler wires the callback handlers.
func NewConvertHandler(
	ledger *quota.Ledger,
	pendingStore *pending.Store,
	m *mirror.Mirror,
	files FileDownloader,
	processor Processor,
	kb *keyboard.Builder,
	botCfg *config.BotConfig,
	log *slog.Logger,
) *ConvertHandler {
	if log == nil {
		log = slog.Default()
	}

	return &ConvertHandler{
		ledger:    ledger,
		pending:   pendingStore,
		mirror:    m,
		files:     files,
		processor: processor,
		keyboard:  kb,
		botCfg:    botCfg,
		log:       log,
	}
}

// HandleShowCredits answers the "Credits left" button with an alert.
func (h *ConvertHandler) HandleShowCredits(c telebot.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	rec, err := h.ledger.GetOrCreate(context.Background(), sender)
	if err != nil {
		return err
	}

	return c.Respond(&telebot.CallbackResponse{
		Text:      fmt.Sprintf("You have %d credits left today.", rec.Credits),
		ShowAlert: true,
	})
}

// HandleConvert processes the pending photo in the chosen format,
// charges one credit on success and delivers the result.
func (h *ConvertHandler) HandleConvert(c telebot.Context) error {
	sender := c.Sender()
	callback := c.Callback()
	if sender == nil || callback == nil {
		return nil
	}

	format, err := parseFormat(callback.Data)
	if err != nil {
		h.log.Warn("unknown conversion format", slog.String("data", callback.Data))
		return c.Respond(&telebot.CallbackResponse{Text: "Unknown format."})
	}

	// Acknowledge right away, the processing call takes seconds.
	_ = c.Respond(&telebot.CallbackResponse{Text: "Working on it..."})

	ctx := context.Background()

	err = h.ledger.WithLock(ctx, sender.ID, func(ctx context.Context) error {
		return h.convert(ctx, c, format)
	})

	if errors.Is(err, quota.ErrLocked) {
		return c.Send("I'm still working on your previous photo. Give me a second!")
	}

	return err
}

func (h *ConvertHandler) convert(ctx context.Context, c telebot.Context, format string) error {
	sender := c.Sender()

	rec, err := h.ledger.GetOrCreate(ctx, sender)
	if err != nil {
		return err
	}

	if rec.Banned {
		return c.Send("You are banned from using this bot.")
	}

	isAdmin := h.botCfg.IsAdmin(sender.ID)
	allowed, err := h.ledger.CheckDailyLimit(ctx, rec, isAdmin)
	if err != nil {
		h.log.Error("daily limit check failed", slog.Int64("telegram_id", sender.ID), slog.Any("error", err))
	}
	if !allowed {
		metrics.RecordQuotaRejection()
		h.syncMirror(ctx, rec)
		return c.Send("You have used all your credits for today. Come back tomorrow!")
	}

	photo, err := h.pending.Get(ctx, sender.ID)
	if err != nil {
		if errors.Is(err, pending.ErrNotFound) {
			return c.Send("I don't have a photo from you. Send me one first!")
		}
		return err
	}

	result, err := h.process(ctx, photo.FileID, format)
	if err != nil {
		metrics.RecordPhotoProcessed("failed")
		return err
	}
	metrics.RecordPhotoProcessed("success")

	if err := h.ledger.UseCredit(ctx, rec, isAdmin); err != nil {
		h.log.Error("failed to charge credit", slog.Int64("telegram_id", sender.ID), slog.Any("error", err))
	} else if !isAdmin {
		metrics.RecordCreditConsumed()
	}

	if err := h.pending.Clear(ctx, sender.ID); err != nil {
		h.log.Warn("failed to clear pending photo", slog.Int64("user_id", sender.ID), slog.Any("error", err))
	}

	h.syncMirror(ctx, rec)

	return h.deliver(c, result, format)
}

func (h *ConvertHandler) process(ctx context.Context, fileID, format string) ([]byte, error) {
	reader, err := h.files.File(&telebot.File{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("download photo: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	return h.processor.Process(ctx, reader, format)
}

// deliver sends PNGs as documents so Telegram does not flatten the
// transparency, and JPGs as regular photos.
func (h *ConvertHandler) deliver(c telebot.Context, result []byte, format string) error {
	markup := h.keyboard.ResultButtons()

	if format == removebg.FormatPNG {
		doc := &telebot.Document{
			File:     telebot.FromReader(bytes.NewReader(result)),
			FileName: "clearcut.png",
		}
		return c.Send(doc, markup)
	}

	photo := &telebot.Photo{File: telebot.FromReader(bytes.NewReader(result))}
	return c.Send(photo, markup)
}

func (h *ConvertHandler) syncMirror(ctx context.Context, rec *domain.UserRecord) {
	if err := h.mirror.Sync(ctx, rec); err != nil {
		h.log.Error("mirror sync failed", slog.Int64("telegram_id", rec.TelegramID), slog.Any("error", err))
	}
}

func parseFormat(data string) (string, error) {
	data = strings.TrimPrefix(data, "\f")

	switch strings.TrimPrefix(data, convertPrefix) {
	case removebg.FormatPNG:
		return removebg.FormatPNG, nil
	case removebg.FormatJPG:
		return removebg.FormatJPG, nil
	default:
		return "", fmt.Errorf("unsupported format in callback data %q", data)
	}
}
