// Package bot assembles the Telegram transport, routing and handler wiring.
package bot

import (
	"fmt"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/clearcut-bot/clearcut-bot/internal/bot/handlers"
	"github.com/clearcut-bot/clearcut-bot/internal/bot/keyboard"
	"github.com/clearcut-bot/clearcut-bot/internal/broadcast"
	apperrors "github.com/clearcut-bot/clearcut-bot/internal/errors"
	"github.com/clearcut-bot/clearcut-bot/internal/idempotency"
	"github.com/clearcut-bot/clearcut-bot/internal/middleware"
	"github.com/clearcut-bot/clearcut-bot/internal/mirror"
	"github.com/clearcut-bot/clearcut-bot/internal/pending"
	"github.com/clearcut-bot/clearcut-bot/internal/quota"
	"github.com/clearcut-bot/clearcut-bot/internal/ratelimit"
	"github.com/clearcut-bot/clearcut-bot/internal/registry"
	"github.com/clearcut-bot/clearcut-bot/internal/repository"
	"github.com/clearcut-bot/clearcut-bot/pkg/config"
)

// Dependencies carries everything the bot needs wired in.
type Dependencies struct {
	Ledger      *quota.Ledger
	Pending     *pending.Store
	Registry    *registry.Registry
	BanList     *registry.BanList
	Repo        repository.UserRepository
	Processor   handlers.Processor
	Idempotency idempotency.Manager
	RateLimiter ratelimit.Limiter
	RateRules   *ratelimit.Rules
	ErrHandler  *apperrors.Handler
	Logger      *slog.Logger
}

// Bot is the assembled Telegram bot.
type Bot struct {
	tb     *telebot.Bot
	router *Router
	mirror *mirror.Mirror
	cfg    *config.Config
	log    *slog.Logger
}

// New creates the telebot instance, wires all handlers and middleware, and
// returns the bot ready to Start.
func New(cfg *config.Config, deps Dependencies) (*Bot, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	tb, err := telebot.NewBot(newSettings(cfg))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	m := mirror.New(tb, deps.Repo, cfg.Bot.LogChannelID, log)
	kb := keyboard.NewBuilder(log)
	broadcaster := broadcast.New(tb, log)

	startHandler := handlers.NewStartHandler(deps.Ledger, m, &cfg.Bot, log)
	photoHandler := handlers.NewPhotoHandler(deps.Ledger, deps.Pending, m, kb, &cfg.Bot, log)
	convertHandler := handlers.NewConvertHandler(
		deps.Ledger, deps.Pending, m, tb, deps.Processor, kb, &cfg.Bot, log,
	)
	adminHandler := handlers.NewAdminHandler(
		deps.BanList, deps.Registry, deps.Repo, m, broadcaster, tb, &cfg.Bot, log,
	)

	router := NewRouter(log)

	// Ordering matters: recovery outermost, then dedup before any side
	// effects, then error translation around logging and the rest.
	router.Use(RecoveryMiddleware(log, deps.ErrHandler))
	router.Use(middleware.Idempotency(deps.Idempotency, log))
	router.Use(ErrorHandlingMiddleware(deps.ErrHandler))
	router.Use(LoggingMiddleware(log))
	router.Use(PrivateChatMiddleware())
	router.Use(RegistryMiddleware(deps.Registry))
	router.Use(middleware.Metrics)

	router.RegisterCommand(CommandStart, startHandler.HandleStart)
	router.RegisterCommand(CommandHelp, startHandler.HandleHelp)
	router.RegisterCommand(CommandStatus, startHandler.HandleStatus)

	router.RegisterCommand(CommandBan, adminHandler.AdminOnly(adminHandler.HandleBan))
	router.RegisterCommand(CommandUnban, adminHandler.AdminOnly(adminHandler.HandleUnban))
	router.RegisterCommand(CommandSendMsg, adminHandler.AdminOnly(adminHandler.HandleSendMsg))
	router.RegisterCommand(CommandSendMsgAll, adminHandler.AdminOnly(adminHandler.HandleSendMsgAll))

	router.RegisterCallback(CallbackConvertPrefix, convertHandler.HandleConvert)
	router.RegisterCallback(CallbackShowCredits, convertHandler.HandleShowCredits)

	router.RegisterPhoto(photoHandler.Handle)
	router.SetDefault(startHandler.HandleDefault)

	if cfg.RateLimit.Enabled && deps.RateLimiter != nil {
		rateLimitMw := middleware.NewRateLimitMiddleware(deps.RateLimiter, deps.RateRules, log)
		tb.Use(rateLimitMw.Handle)
	}

	// Commands are registered as telebot endpoints so Message.Payload gets
	// populated and Args() works inside the handlers.
	for _, cmd := range []string{
		CommandStart, CommandHelp, CommandStatus,
		CommandBan, CommandUnban, CommandSendMsg, CommandSendMsgAll,
	} {
		tb.Handle(cmd, router.Route)
	}
	tb.Handle(telebot.OnText, router.Route)
	tb.Handle(telebot.OnPhoto, router.Route)
	tb.Handle(telebot.OnCallback, router.Route)

	return &Bot{
		tb:     tb,
		router: router,
		mirror: m,
		cfg:    cfg,
		log:    log,
	}, nil
}

// Start begins receiving updates. It blocks until Stop is called.
func (b *Bot) Start() {
	b.log.Info("starting telegram bot",
		slog.String("mode", b.cfg.Bot.Mode),
		slog.String("username", b.tb.Me.Username),
	)
	b.tb.Start()
}

// Stop shuts the poller down.
func (b *Bot) Stop() {
	b.log.Info("stopping telegram bot")
	b.tb.Stop()
}

// Telebot exposes the underlying API client for health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.tb
}

// Mirror exposes the log-channel mirror for startup notices.
func (b *Bot) Mirror() *mirror.Mirror {
	return b.mirror
}

func newSettings(cfg *config.Config) telebot.Settings {
	settings := telebot.Settings{
		Token: cfg.Bot.Token,
	}

	timeout := cfg.Bot.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if cfg.Bot.Mode == "webhook" {
		settings.Poller = &telebot.Webhook{
			Listen: ":" + cfg.Server.Port,
			Endpoint: &telebot.WebhookEndpoint{
				PublicURL: cfg.Bot.WebhookURL,
			},
		}
		return settings
	}

	settings.Poller = &telebot.LongPoller{Timeout: timeout}
	return settings
}
