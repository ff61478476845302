package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"mindbot.ru/telegram-bot/internal/store"
)

const paymentColumns = `
	payment_id, user_id, tariff, amount::text, tokens, status,
	COALESCE(charge_id, ''), created_at, completed_at`

func scanPayment(row pgx.Row) (*store.Payment, error) {
	var (
		p      store.Payment
		amount string
		status string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Tariff, &amount, &p.Tokens, &status,
		&p.ChargeID, &p.CreatedAt, &p.CompletedAt)
	if err != nil {
		return nil, err
	}
	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("некорректная сумма платежа %s: %w", p.ID, err)
	}
	p.Status = store.PaymentStatus(status)
	return &p, nil
}

func collectPayments(rows pgx.Rows) ([]*store.Payment, error) {
	defer rows.Close()
	var out []*store.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreatePayment сохраняет новый платёж.
func (s *Store) CreatePayment(ctx context.Context, p *store.Payment) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO payments (payment_id, user_id, tariff, amount, tokens, status, charge_id, created_at, completed_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, NULLIF($7, ''), $8, $9)
	`, p.ID, p.UserID, p.Tariff, p.Amount.String(), p.Tokens, string(p.Status), p.ChargeID, p.CreatedAt, p.CompletedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания платежа: %w", err)
	}
	return nil
}

// GetPayment возвращает платёж или nil.
func (s *Store) GetPayment(ctx context.Context, paymentID string) (*store.Payment, error) {
	p, err := scanPayment(s.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE payment_id = $1`, paymentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения платежа: %w", err)
	}
	return p, nil
}

// UpdatePaymentStatus меняет статус; completed_at ставится только при успехе.
func (s *Store) UpdatePaymentStatus(ctx context.Context, paymentID string, status store.PaymentStatus, chargeID string) (*store.Payment, error) {
	p, err := scanPayment(s.db.QueryRow(ctx, `
		UPDATE payments
		SET status = $2,
		    charge_id = COALESCE(NULLIF($3, ''), charge_id),
		    completed_at = CASE WHEN $2 = 'succeeded' THEN NOW() ELSE completed_at END
		WHERE payment_id = $1
		RETURNING `+paymentColumns,
		paymentID, string(status), chargeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка обновления статуса платежа: %w", err)
	}
	return p, nil
}

// GetUserPayments возвращает платежи пользователя, новые первыми.
func (s *Store) GetUserPayments(ctx context.Context, userID int64) ([]*store.Payment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения платежей: %w", err)
	}
	return collectPayments(rows)
}

// ListPendingPayments — зависшие pending-платежи для сверки со шлюзом.
func (s *Store) ListPendingPayments(ctx context.Context, olderThan time.Duration, limit int) ([]*store.Payment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE status = 'pending' AND created_at <= $1
		ORDER BY created_at
		LIMIT $2
	`, time.Now().Add(-olderThan), limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки pending-платежей: %w", err)
	}
	return collectPayments(rows)
}
