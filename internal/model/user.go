package model

import "time"

// User is a Telegram account talking to the bot. Subscribed users receive
// the daily agenda in ChatID after each periodic regeneration.
type User struct {
	ID         uint  `gorm:"primaryKey"`
	TelegramID int64 `gorm:"uniqueIndex"`
	ChatID     int64
	FirstName  string
	LastName   string
	Username   string
	Subscribed bool `gorm:"index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
