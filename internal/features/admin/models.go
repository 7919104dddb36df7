// Package admin реализует вход администраторов по паролю.
// models.go описывает структуры сессий и попыток входа.
package admin

import "time"

// Session — активная сессия администратора.
type Session struct {
	ID              int64     `db:"id" json:"-"`
	UserID          int64     `db:"user_id" json:"user_id"`
	Token           string    `db:"session_token" json:"token"`
	AuthenticatedAt time.Time `db:"authenticated_at" json:"authenticated_at"`
	ExpiresAt       time.Time `db:"expires_at" json:"expires_at"`
	LastActivity    time.Time `db:"last_activity" json:"-"`
	IsActive        bool      `db:"is_active" json:"-"`
}

// LoginAttempt — попытка входа (для защиты от brute-force).
type LoginAttempt struct {
	UserID      int64     `db:"user_id"`
	AttemptTime time.Time `db:"attempt_time"`
	Success     bool      `db:"success"`
}

const (
	// SessionTTL — срок жизни сессии.
	SessionTTL = 24 * time.Hour
	// MaxFailedAttempts неудачных попыток за AttemptWindow блокируют вход.
	MaxFailedAttempts = 3
	AttemptWindow     = time.Hour
)
