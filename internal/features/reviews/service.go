// Package reviews — отзывы пользователей о боте.
// Отзыв только добавляется: редактирования и удаления нет.
package reviews

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/common"
	"mindbot.ru/telegram-bot/internal/store"
)

// MaxTextLength — длинные отзывы обрезаются.
const MaxTextLength = 2000

// Service сохраняет и читает отзывы.
type Service struct {
	store store.Store
}

// NewService создаёт сервис отзывов.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// ParseReview выделяет оценку 1..5 из начала текста ("5 Отличный бот").
// Без оценки весь текст — отзыв, rating = nil.
func ParseReview(text string) (string, *int) {
	text = strings.TrimSpace(text)
	if len(text) < 2 || text[0] < '1' || text[0] > '5' {
		return text, nil
	}
	r, size := utf8.DecodeRuneInString(text[1:])
	if r != ' ' && r != '\n' && r != '\t' {
		return text, nil
	}
	body := strings.TrimSpace(text[1+size:])
	if body == "" {
		return text, nil
	}
	rating := int(text[0] - '0')
	return body, &rating
}

// Create сохраняет отзыв пользователя.
func (s *Service) Create(ctx context.Context, userID int64, text string) (*store.Review, error) {
	body, rating := ParseReview(text)
	if body == "" {
		return nil, common.ErrEmptyReview
	}
	if utf8.RuneCountInString(body) > MaxTextLength {
		body = string([]rune(body)[:MaxTextLength])
	}

	r := &store.Review{
		ID:     uuid.NewString(),
		UserID: userID,
		Text:   body,
		Rating: rating,
	}
	if err := s.store.CreateReview(ctx, r); err != nil {
		return nil, fmt.Errorf("ошибка сохранения отзыва: %w", err)
	}

	log.WithFields(log.Fields{
		"user_id":   userID,
		"review_id": r.ID,
		"text":      common.Truncate(body, 50),
	}).Info("Получен отзыв")
	return r, nil
}

// Latest — последние отзывы, новые первыми.
func (s *Service) Latest(ctx context.Context, limit int) ([]*store.Review, error) {
	return s.store.GetAllReviews(ctx, limit)
}

// ByUser — отзывы одного пользователя.
func (s *Service) ByUser(ctx context.Context, userID int64) ([]*store.Review, error) {
	return s.store.GetUserReviews(ctx, userID)
}
