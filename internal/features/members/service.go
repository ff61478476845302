// Package members — service.go: регистрация пользователя и синхронизация
// статуса подписки на канал с Ledger.
package members

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/features/economy"
	"mindbot.ru/telegram-bot/internal/store"
)

// SubscriptionChecker спрашивает Telegram, подписан ли пользователь на канал.
type SubscriptionChecker interface {
	IsSubscribed(userID int64) (bool, error)
}

// Service связывает обработчики онбординга с хранилищем и Ledger.
type Service struct {
	store   store.Store
	ledger  *economy.Ledger
	checker SubscriptionChecker

	channelID  string
	channelURL string
}

// NewService создаёт сервис участников.
func NewService(st store.Store, ledger *economy.Ledger, checker SubscriptionChecker, channelID, channelURL string) *Service {
	return &Service{
		store:      st,
		ledger:     ledger,
		checker:    checker,
		channelID:  channelID,
		channelURL: channelURL,
	}
}

// Register возвращает пользователя, создавая его при первом /start.
// Вернувшемуся пользователю обновляет имя и username, если они изменились.
func (s *Service) Register(ctx context.Context, p store.Profile) (*store.User, bool, error) {
	u, created, err := s.store.GetOrCreateUser(ctx, p)
	if err != nil {
		return nil, false, fmt.Errorf("ошибка регистрации пользователя: %w", err)
	}
	if created {
		log.WithFields(log.Fields{
			"user_id":  p.UserID,
			"username": p.Username,
		}).Info("Новый пользователь зарегистрирован")
		return u, true, nil
	}

	if u.Username == p.Username && u.FirstName == p.FirstName && u.LastName == p.LastName {
		return u, false, nil
	}
	u, err = s.ledger.Mutate(ctx, p.UserID, func(u *store.User) (bool, error) {
		u.Username, u.FirstName, u.LastName = p.Username, p.FirstName, p.LastName
		return true, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("ошибка обновления профиля: %w", err)
	}
	return u, false, nil
}

// CheckSubscription спрашивает Telegram о подписке и сохраняет статус.
// Бонус выдаёт Ledger на переходе «не подписан → подписан».
// Ошибка Telegram — считаем неподписанным, сохранённый статус не трогаем.
func (s *Service) CheckSubscription(ctx context.Context, userID int64) (subscribed, granted bool) {
	subscribed, err := s.checker.IsSubscribed(userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка при проверке подписки")
		return false, false
	}

	_, granted, err = s.ledger.SetSubscriptionStatus(ctx, userID, subscribed)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка сохранения статуса подписки")
		return subscribed, false
	}
	return subscribed, granted
}

// ChannelLink — ссылка на канал для кнопки «Подписаться».
func (s *Service) ChannelLink() string {
	if s.channelURL != "" {
		return s.channelURL
	}
	if name, ok := strings.CutPrefix(s.channelID, "@"); ok && name != "" {
		return "https://t.me/" + name
	}
	log.Warn("Ссылка на канал не задана (CHANNEL_URL)")
	return ""
}
