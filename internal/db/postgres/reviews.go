package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"mindbot.ru/telegram-bot/internal/store"
)

func collectReviews(rows pgx.Rows) ([]*store.Review, error) {
	defer rows.Close()
	var out []*store.Review
	for rows.Next() {
		var r store.Review
		if err := rows.Scan(&r.ID, &r.UserID, &r.Text, &r.Rating, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка чтения отзыва: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// CreateReview добавляет отзыв.
func (s *Store) CreateReview(ctx context.Context, r *store.Review) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO reviews (review_id, user_id, text, rating, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, r.ID, r.UserID, r.Text, r.Rating, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения отзыва: %w", err)
	}
	return nil
}

// GetUserReviews — отзывы пользователя, новые первыми.
func (s *Store) GetUserReviews(ctx context.Context, userID int64) ([]*store.Review, error) {
	rows, err := s.db.Query(ctx, `
		SELECT review_id, user_id, text, rating, created_at
		FROM reviews WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения отзывов: %w", err)
	}
	return collectReviews(rows)
}

// GetAllReviews — последние отзывы всех пользователей.
func (s *Store) GetAllReviews(ctx context.Context, limit int) ([]*store.Review, error) {
	rows, err := s.db.Query(ctx, `
		SELECT review_id, user_id, text, rating, created_at
		FROM reviews
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения отзывов: %w", err)
	}
	return collectReviews(rows)
}
