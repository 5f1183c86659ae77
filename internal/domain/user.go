package domain

import "time"

// UserRecord represents an application user and their quota state stored in the database.
type UserRecord struct {
	ID              int64
	TelegramID      int64
	FirstName       string
	Username        string
	Credits         int
	Violations      int
	Banned          bool
	LastResetDate   string // ISO calendar date (2006-01-02) of the last credit reset
	MirrorMessageID int64  // log channel message id, 0 until first mirrored
	CreatedAt       time.Time
}
