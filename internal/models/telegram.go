package models

import "time"

// TelegramMessage holds the data for an action notification.
type TelegramMessage struct {
	Success   bool
	Action    string // backup, restore, duplicate, drop_db, create_db
	Databases []string
	StartTime time.Time
	Duration  time.Duration

	// Backup info (if applicable).
	Archives []string

	// Error info (if failed).
	ErrorMessage string
	FailedStep   string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
