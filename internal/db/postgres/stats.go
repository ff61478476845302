package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"mindbot.ru/telegram-bot/internal/store"
)

// Statistics собирает статистику бота одним запросом.
func (s *Store) Statistics(ctx context.Context, now time.Time) (*store.Stats, error) {
	dayAgo := now.Add(-24 * time.Hour)

	var (
		st       store.Stats
		amount   string
		amount24 string
	)
	err := s.db.QueryRow(ctx, `
		WITH u AS (
			SELECT COUNT(*) AS total_users,
			       COUNT(*) FILTER (WHERE created_at >= $1) AS new_users,
			       COALESCE(SUM(jsonb_array_length(history)), 0)::bigint AS total_messages
			FROM users
		), m AS (
			SELECT COUNT(*) AS messages_24h
			FROM users, jsonb_array_elements(history) AS e
			WHERE (e->>'timestamp')::timestamptz >= $1
		), p AS (
			SELECT COUNT(*) AS total_payments,
			       COALESCE(SUM(amount), 0)::text AS total_amount,
			       COUNT(*) FILTER (WHERE completed_at >= $1) AS payments_24h,
			       COALESCE(SUM(amount) FILTER (WHERE completed_at >= $1), 0)::text AS amount_24h
			FROM payments
			WHERE status = 'succeeded'
		)
		SELECT u.total_users, u.total_messages, u.new_users,
		       m.messages_24h, p.total_payments, p.total_amount, p.payments_24h, p.amount_24h
		FROM u, m, p
	`, dayAgo).Scan(
		&st.TotalUsers, &st.TotalMessages, &st.NewUsers24h,
		&st.Messages24h, &st.TotalPayments, &amount, &st.Payments24h, &amount24,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения статистики: %w", err)
	}

	st.TotalAmount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("некорректная сумма в статистике: %w", err)
	}
	st.Amount24h, err = decimal.NewFromString(amount24)
	if err != nil {
		return nil, fmt.Errorf("некорректная сумма за сутки в статистике: %w", err)
	}
	return &st, nil
}
