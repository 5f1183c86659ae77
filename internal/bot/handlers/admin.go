package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/clearcut-bot/clearcut-bot/internal/broadcast"
	apperrors "github.com/clearcut-bot/clearcut-bot/internal/errors"
	"github.com/clearcut-bot/clearcut-bot/internal/mirror"
	"github.com/clearcut-bot/clearcut-bot/internal/registry"
	"github.com/clearcut-bot/clearcut-bot/internal/repository"
	"github.com/clearcut-bot/clearcut-bot/pkg/config"
)

// AdminHandler serves the moderation and messaging commands.
// Every handler is wrapped by AdminOnly, non-admins are dropped silently.
type AdminHandler struct {
	banList     *registry.BanList
	registry    *registry.Registry
	repo        repository.UserRepository
	mirror      *mirror.Mirror
	broadcaster *broadcast.Broadcaster
	sender      broadcast.Sender
	botCfg      *config.BotConfig
	log         *slog.Logger
}

// NewAdminHandler wires the admin command handlers.
func NewAdminHandler(
	banList *registry.BanList,
	reg *registry.Registry,
	repo repository.UserRepository,
	m *mirror.Mirror,
	broadcaster *broadcast.Broadcaster,
	sender broadcast.Sender,
	botCfg *config.BotConfig,
	log *slog.Logger,
) *AdminHandler {
	if log == nil {
		log = slog.Default()
	}

	return &AdminHandler{
		banList:     banList,
		registry:    reg,
		repo:        repo,
		mirror:      m,
		broadcaster: broadcaster,
		sender:      sender,
		botCfg:      botCfg,
		log:         log,
	}
}

// AdminOnly drops updates from non-administrators without any reply.
func (h *AdminHandler) AdminOnly(next Handler) Handler {
	return func(c telebot.Context) error {
		if c.Sender() == nil || !h.botCfg.IsAdmin(c.Sender().ID) {
			return nil
		}
		return next(c)
	}
}

// HandleBan adds a user id to the ban list.
func (h *AdminHandler) HandleBan(c telebot.Context) error {
	userID, err := parseUserID(c.Args())
	if err != nil {
		return apperrors.NewUsageError("/ban <user_id>")
	}

	ctx := context.Background()

	if err := h.banList.Add(ctx, userID); err != nil {
		return apperrors.NewDatabaseError(err)
	}

	h.setBanFlag(ctx, userID, true)
	h.mirror.LogEvent(ctx, fmt.Sprintf("Admin %d banned user %d", c.Sender().ID, userID))

	return c.Send(fmt.Sprintf("User %d has been added to the ban list.", userID))
}

// HandleUnban removes a user id from the ban list.
func (h *AdminHandler) HandleUnban(c telebot.Context) error {
	userID, err := parseUserID(c.Args())
	if err != nil {
		return apperrors.NewUsageError("/unban <user_id>")
	}

	ctx := context.Background()

	if err := h.banList.Remove(ctx, userID); err != nil {
		return apperrors.NewDatabaseError(err)
	}

	h.setBanFlag(ctx, userID, false)
	h.mirror.LogEvent(ctx, fmt.Sprintf("Admin %d unbanned user %d", c.Sender().ID, userID))

	return c.Send(fmt.Sprintf(
		"User %d has been removed from the ban list. They may need to type /start to reset their status.",
		userID,
	))
}

// HandleSendMsg sends a direct message to a single user.
func (h *AdminHandler) HandleSendMsg(c telebot.Context) error {
	args := c.Args()
	if len(args) < 2 {
		return apperrors.NewUsageError("/sendmsg <user_id> <message>")
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return apperrors.NewUsageError("/sendmsg <user_id> <message>")
	}

	text := strings.Join(args[1:], " ")
	if _, err := h.sender.Send(telebot.ChatID(userID), text); err != nil {
		return c.Send(fmt.Sprintf("Could not send message: %v", err))
	}

	return c.Send("Message sent successfully.")
}

// HandleSendMsgAll broadcasts a message to every known user.
func (h *AdminHandler) HandleSendMsgAll(c telebot.Context) error {
	args := c.Args()
	if len(args) == 0 {
		return apperrors.NewUsageError("/sendmsgall <message>")
	}

	text := strings.Join(args, " ")
	ctx := context.Background()

	recipients, err := h.registry.All(ctx)
	if err != nil {
		return apperrors.NewDatabaseError(err)
	}

	if err := c.Send(fmt.Sprintf("Starting broadcast to %d users. This may take time.", len(recipients))); err != nil {
		h.log.Warn("failed to acknowledge broadcast start", slog.Any("error", err))
	}

	report := h.broadcaster.SendToAll(ctx, recipients, text)

	h.mirror.LogEvent(ctx, fmt.Sprintf(
		"Admin %d broadcast a message: %d sent, %d failed", c.Sender().ID, report.Sent, report.Failed,
	))

	return c.Send(fmt.Sprintf(
		"Broadcast complete.\nSuccessfully sent: %d\nFailed: %d", report.Sent, report.Failed,
	))
}

// setBanFlag mirrors the ban list change into the user's record when one
// exists. Users banned before first contact get the flag reconciled on
// their next interaction instead.
func (h *AdminHandler) setBanFlag(ctx context.Context, userID int64, banned bool) {
	rec, err := h.repo.FindByID(ctx, userID)
	if err != nil {
		return
	}

	if rec.Banned == banned {
		return
	}

	rec.Banned = banned
	if err := h.repo.Update(ctx, rec); err != nil {
		h.log.Error("failed to update ban flag", slog.Int64("telegram_id", userID), slog.Any("error", err))
		return
	}

	if err := h.mirror.Sync(ctx, rec); err != nil {
		h.log.Error("mirror sync failed", slog.Int64("telegram_id", userID), slog.Any("error", err))
	}
}

func parseUserID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one argument, got %d", len(args))
	}

	return strconv.ParseInt(args[0], 10, 64)
}
