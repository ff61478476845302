// Package admin реализует админ-панель: статистика, выдача токенов и безлимита,
// список отзывов. Доступ по ADMIN_IDS и, если задан ADMIN_PASSWORD_HASH,
// после входа по паролю.
// models.go описывает структуры сессий и попыток входа.
package admin

import "time"

// AdminSession — активная сессия администратора.
type AdminSession struct {
	ID              int64     `db:"id"`
	UserID          int64     `db:"user_id"`
	SessionToken    string    `db:"session_token"`
	AuthenticatedAt time.Time `db:"authenticated_at"`
	ExpiresAt       time.Time `db:"expires_at"`
	LastActivity    time.Time `db:"last_activity"`
	IsActive        bool      `db:"is_active"`
}

// LoginAttempt — попытка входа (для защиты от brute-force).
type LoginAttempt struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	AttemptTime time.Time `db:"attempt_time"`
	Success     bool      `db:"success"`
}

// Ограничения входа
const (
	SessionTTL    = 24 * time.Hour
	MaxAttempts   = 3
	LockoutPeriod = time.Hour

	// MaxGrantTokens — верхняя граница /user_id, защита от опечаток
	MaxGrantTokens = 1_000_000
)

// Callback-данные админ-панели
const (
	CallbackStats         = "admin_stats"
	CallbackGiveTokens    = "admin_give_tokens"
	CallbackGiveUnlimited = "admin_give_unlimited"
	CallbackBack          = "admin_back"
)
