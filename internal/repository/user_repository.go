package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/clearcut-bot/clearcut-bot/internal/domain"
)

// UserRepository defines persistence operations for user quota records.
type UserRepository interface {
	FindByID(ctx context.Context, telegramID int64) (*domain.UserRecord, error)
	Create(ctx context.Context, rec *domain.UserRecord) error
	Update(ctx context.Context, rec *domain.UserRecord) error
	SetMirrorMessageID(ctx context.Context, telegramID, messageID int64) error
}

type userRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewUserRepository creates a new SQL-backed user repository.
func NewUserRepository(db *sql.DB, log *slog.Logger) UserRepository {
	return &userRepository{
		db:  db,
		log: log,
	}
}

// FindByID retrieves a user record by Telegram identifier. Returns sql.ErrNoRows when absent.
func (r *userRepository) FindByID(ctx context.Context, telegramID int64) (*domain.UserRecord, error) {
	const query = `
		SELECT id, telegram_id, first_name, username, credits, violations, banned,
		       last_reset_date, mirror_message_id, created_at
		FROM users
		WHERE telegram_id = $1
	`

	row := r.db.QueryRowContext(ctx, query, telegramID)

	var rec domain.UserRecord
	if err := row.Scan(
		&rec.ID,
		&rec.TelegramID,
		&rec.FirstName,
		&rec.Username,
		&rec.Credits,
		&rec.Violations,
		&rec.Banned,
		&rec.LastResetDate,
		&rec.MirrorMessageID,
		&rec.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}

		if r.log != nil {
			r.log.Error("failed to fetch user record", slog.Int64("telegram_id", telegramID), slog.Any("error", err))
		}
		return nil, fmt.Errorf("select user by telegram id: %w", err)
	}

	return &rec, nil
}

// Create persists a new user record.
func (r *userRepository) Create(ctx context.Context, rec *domain.UserRecord) error {
	const query = `
		INSERT INTO users (telegram_id, first_name, username, credits, violations, banned,
		                   last_reset_date, mirror_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	if err := r.db.QueryRowContext(
		ctx,
		query,
		rec.TelegramID,
		rec.FirstName,
		rec.Username,
		rec.Credits,
		rec.Violations,
		rec.Banned,
		rec.LastResetDate,
		rec.MirrorMessageID,
		rec.CreatedAt,
	).Scan(&rec.ID); err != nil {
		if r.log != nil {
			r.log.Error("failed to create user record", slog.Int64("telegram_id", rec.TelegramID), slog.Any("error", err))
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// Update flushes the mutable quota fields of an existing record.
func (r *userRepository) Update(ctx context.Context, rec *domain.UserRecord) error {
	const query = `
		UPDATE users
		SET first_name = $2, username = $3, credits = $4, violations = $5,
		    banned = $6, last_reset_date = $7
		WHERE telegram_id = $1
	`

	if _, err := r.db.ExecContext(
		ctx,
		query,
		rec.TelegramID,
		rec.FirstName,
		rec.Username,
		rec.Credits,
		rec.Violations,
		rec.Banned,
		rec.LastResetDate,
	); err != nil {
		if r.log != nil {
			r.log.Error("failed to update user record", slog.Int64("telegram_id", rec.TelegramID), slog.Any("error", err))
		}
		return fmt.Errorf("update user: %w", err)
	}

	return nil
}

// SetMirrorMessageID stores the log channel message id for the user (0 clears it).
func (r *userRepository) SetMirrorMessageID(ctx context.Context, telegramID, messageID int64) error {
	const query = `UPDATE users SET mirror_message_id = $2 WHERE telegram_id = $1`

	if _, err := r.db.ExecContext(ctx, query, telegramID, messageID); err != nil {
		if r.log != nil {
			r.log.Error("failed to store mirror message id", slog.Int64("telegram_id", telegramID), slog.Any("error", err))
		}
		return fmt.Errorf("update mirror message id: %w", err)
	}

	return nil
}
