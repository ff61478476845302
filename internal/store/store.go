package store

import (
	"context"
	"time"
)

// Store — единственный владелец персистентных данных.
//
// Точечные выборки возвращают (nil, nil), если записи нет: отсутствие
// пользователя или платежа — не ошибка, а повод для онбординга.
// UpdateUser перезаписывает документ целиком (last-writer-wins).
type Store interface {
	GetUser(ctx context.Context, userID int64) (*User, error)
	GetOrCreateUser(ctx context.Context, p Profile) (*User, bool, error)
	UpdateUser(ctx context.Context, u *User) error
	GetUserByReferralCode(ctx context.Context, code string) (*User, error)

	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID string, status PaymentStatus, chargeID string) (*Payment, error)
	GetUserPayments(ctx context.Context, userID int64) ([]*Payment, error)
	ListPendingPayments(ctx context.Context, olderThan time.Duration, limit int) ([]*Payment, error)

	CreateReview(ctx context.Context, r *Review) error
	GetUserReviews(ctx context.Context, userID int64) ([]*Review, error)
	GetAllReviews(ctx context.Context, limit int) ([]*Review, error)

	Statistics(ctx context.Context, now time.Time) (*Stats, error)
	BackfillSubscriptionBonus(ctx context.Context) (int64, error)
}
