// Package store описывает данные бота (пользователи, платежи, отзывы)
// и контракт хранилища, которым пользуются все фичи.
package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnlimitedTokens — значение Payment.Tokens для безлимитного тарифа.
const UnlimitedTokens int64 = -1

// HistoryEntry — одна реплика в истории диалога пользователя.
type HistoryEntry struct {
	Text      string    `json:"text"`
	IsUser    bool      `json:"is_user"`
	Timestamp time.Time `json:"timestamp"`
}

// User — документ пользователя. Ключ — Telegram user ID.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string

	Tokens       int64 // Баланс Майндтокенов, в хранилище никогда не отрицательный
	IsSubscribed bool  // Подписан на канал
	IsUnlimited  bool  // Безлимит: токены не списываются
	// Бонус за подписку уже выдавался (заполняется миграцией для старых записей)
	HasReceivedSubscriptionBonus bool

	History []HistoryEntry

	ReferralCode  string
	ReferredBy    *int64
	ReferralCount int

	CreatedAt    time.Time
	LastActivity time.Time
}

// Clone возвращает глубокую копию пользователя.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.History != nil {
		c.History = make([]HistoryEntry, len(u.History))
		copy(c.History, u.History)
	}
	if u.ReferredBy != nil {
		ref := *u.ReferredBy
		c.ReferredBy = &ref
	}
	return &c
}

// Profile — поля профиля из Telegram для get-or-create.
type Profile struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
}

// PaymentStatus — статус платежа.
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusSucceeded PaymentStatus = "succeeded"
	StatusFailed    PaymentStatus = "failed"
	StatusCanceled  PaymentStatus = "canceled"
	// StatusUnknown возвращается только проверкой статуса, в базу не пишется
	StatusUnknown PaymentStatus = "unknown"
)

// IsTerminal — статус окончательный, дальше платёж не меняется.
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// ParsePaymentStatus приводит статус внешней системы к нашему.
// YooKassa отдаёт ещё waiting_for_capture — для нас это всё ещё pending.
func ParsePaymentStatus(s string) PaymentStatus {
	switch s {
	case "pending", "waiting_for_capture":
		return StatusPending
	case "succeeded":
		return StatusSucceeded
	case "failed":
		return StatusFailed
	case "canceled", "cancelled":
		return StatusCanceled
	default:
		return StatusUnknown
	}
}

// Payment — запись о покупке тарифа.
type Payment struct {
	ID          string
	UserID      int64
	Tariff      string
	Amount      decimal.Decimal
	Tokens      int64 // UnlimitedTokens для безлимита
	Status      PaymentStatus
	ChargeID    string // ID списания на стороне Telegram/шлюза
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// IsUnlimited — платёж за безлимитный тариф.
func (p *Payment) IsUnlimited() bool {
	return p.Tokens == UnlimitedTokens
}

// Clone возвращает копию платежа.
func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	c := *p
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Review — отзыв пользователя. Только добавление, без редактирования.
type Review struct {
	ID        string
	UserID    int64
	Text      string
	Rating    *int
	CreatedAt time.Time
}

// Stats — сводная статистика для админки.
type Stats struct {
	TotalUsers    int64
	TotalMessages int64
	TotalPayments int64
	TotalAmount   decimal.Decimal

	NewUsers24h int64
	Messages24h int64
	Payments24h int64
	Amount24h   decimal.Decimal
}
