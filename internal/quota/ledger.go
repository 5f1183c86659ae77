// Package quota implements the per-user daily credit ledger.
package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
	telebot "gopkg.in/telebot.v3"

	"github.com/clearcut-bot/clearcut-bot/internal/domain"
	"github.com/clearcut-bot/clearcut-bot/internal/repository"
)

const (
	userLockKeyPattern = "user:lock:%d"
	lockTTL            = 5 * time.Second

	dateLayout = "2006-01-02"
)

// ErrLocked indicates that a concurrent update already holds the user's lock.
var ErrLocked = errors.New("user record is locked, try again later")

// BanChecker is the ban list view the ledger needs to reconcile record flags.
type BanChecker interface {
	Contains(ctx context.Context, userID int64) (bool, error)
}

// Ledger manages credit balances, daily resets and violation counters.
type Ledger struct {
	repo         repository.UserRepository
	bans         BanChecker
	redisClient  *redis.Client
	dailyCredits int
	log          *slog.Logger
	now          func() time.Time
}

// NewLedger creates a Ledger backed by the given repository.
// redisClient is used for per-user locking and may be nil in tests.
func NewLedger(repo repository.UserRepository, bans BanChecker, redisClient *redis.Client, dailyCredits int, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}

	return &Ledger{
		repo:         repo,
		bans:         bans,
		redisClient:  redisClient,
		dailyCredits: dailyCredits,
		log:          log,
		now:          time.Now,
	}
}

// GetOrCreate loads the user's record, creating it lazily on first interaction.
// On every load the record's ban flag is reconciled with the ban list, so a user
// banned before first contact becomes banned on their next record-creating interaction.
func (l *Ledger) GetOrCreate(ctx context.Context, tgUser *telebot.User) (*domain.UserRecord, error) {
	if tgUser == nil {
		return nil, errors.New("telegram user is nil")
	}

	rec, err := l.repo.FindByID(ctx, tgUser.ID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get user record: %w", err)
		}

		rec = &domain.UserRecord{
			TelegramID:    tgUser.ID,
			FirstName:     tgUser.FirstName,
			Username:      tgUser.Username,
			Credits:       l.dailyCredits,
			LastResetDate: l.today(),
			CreatedAt:     l.now().UTC(),
		}

		if err := l.repo.Create(ctx, rec); err != nil {
			return nil, fmt.Errorf("create user record: %w", err)
		}

		l.log.Info("created new user record", slog.Int64("telegram_id", tgUser.ID))
	}

	if l.reconcile(ctx, rec, tgUser) {
		if err := l.repo.Update(ctx, rec); err != nil {
			return nil, fmt.Errorf("reconcile user record: %w", err)
		}
	}

	return rec, nil
}

// CheckDailyLimit reports whether the user may perform the gated action today.
// Administrators always pass without mutation. For everyone else the credit
// balance is lazily reset to the daily allowance on the first access of each
// UTC calendar day. The returned error reports persistence failures only.
func (l *Ledger) CheckDailyLimit(ctx context.Context, rec *domain.UserRecord, isAdmin bool) (bool, error) {
	if isAdmin {
		return true, nil
	}

	today := l.today()
	if rec.LastResetDate != today {
		rec.Credits = l.dailyCredits
		rec.LastResetDate = today

		if err := l.repo.Update(ctx, rec); err != nil {
			return rec.Credits > 0, fmt.Errorf("persist daily reset: %w", err)
		}

		l.log.Info("daily credits reset",
			slog.Int64("telegram_id", rec.TelegramID),
			slog.Int("credits", rec.Credits),
		)
	}

	return rec.Credits > 0, nil
}

// UseCredit consumes one credit after a successful gated action.
// Administrators are exempt; the balance never goes below zero.
func (l *Ledger) UseCredit(ctx context.Context, rec *domain.UserRecord, isAdmin bool) error {
	if isAdmin || rec.Credits <= 0 {
		return nil
	}

	rec.Credits--
	if err := l.repo.Update(ctx, rec); err != nil {
		return fmt.Errorf("persist credit use: %w", err)
	}

	return nil
}

// RecordViolation increments the user's violation counter.
func (l *Ledger) RecordViolation(ctx context.Context, rec *domain.UserRecord) error {
	rec.Violations++
	if err := l.repo.Update(ctx, rec); err != nil {
		return fmt.Errorf("persist violation: %w", err)
	}

	return nil
}

// WithLock runs fn while holding the user's distributed lock, so that
// concurrent webhook deliveries cannot interleave check/use sequences.
func (l *Ledger) WithLock(ctx context.Context, userID int64, fn func(ctx context.Context) error) error {
	if err := l.lock(ctx, userID); err != nil {
		return err
	}
	defer l.unlock(ctx, userID)

	return fn(ctx)
}

func (l *Ledger) reconcile(ctx context.Context, rec *domain.UserRecord, tgUser *telebot.User) bool {
	dirty := false

	if tgUser.FirstName != "" && tgUser.FirstName != rec.FirstName {
		rec.FirstName = tgUser.FirstName
		dirty = true
	}
	if tgUser.Username != rec.Username {
		rec.Username = tgUser.Username
		dirty = true
	}

	if l.bans != nil {
		banned, err := l.bans.Contains(ctx, rec.TelegramID)
		if err != nil {
			l.log.Error("failed to reconcile ban state", slog.Int64("telegram_id", rec.TelegramID), slog.Any("error", err))
		} else if banned != rec.Banned {
			rec.Banned = banned
			dirty = true
		}
	}

	return dirty
}

func (l *Ledger) lock(ctx context.Context, userID int64) error {
	if l.redisClient == nil {
		return nil
	}

	key := fmt.Sprintf(userLockKeyPattern, userID)
	acquired, err := l.redisClient.SetNX(ctx, key, 1, lockTTL).Result()
	if err != nil {
		l.log.Error("failed to acquire user lock", slog.Int64("user_id", userID), slog.Any("error", err))
		return err
	}

	if !acquired {
		l.log.Warn("user lock already held", slog.Int64("user_id", userID))
		return ErrLocked
	}

	return nil
}

func (l *Ledger) unlock(ctx context.Context, userID int64) {
	if l.redisClient == nil {
		return
	}

	key := fmt.Sprintf(userLockKeyPattern, userID)
	if err := l.redisClient.Del(ctx, key).Err(); err != nil {
		l.log.Error("failed to release user lock", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

func (l *Ledger) today() string {
	return l.now().UTC().Format(dateLayout)
}
