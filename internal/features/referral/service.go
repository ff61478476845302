// Package referral — реферальная программа: коды приглашения,
// привязка нового пользователя к пригласившему и бонус за приглашение.
package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/common"
	"mindbot.ru/telegram-bot/internal/features/economy"
	"mindbot.ru/telegram-bot/internal/store"
)

const (
	codeLength   = 8
	codeAttempts = 5

	// StartPrefix — префикс параметра /start в реферальной ссылке.
	StartPrefix = "ref_"
)

// Service управляет реферальными кодами.
type Service struct {
	store  store.Store
	ledger *economy.Ledger

	newCode func() string
}

// NewService создаёт сервис рефералов.
func NewService(st store.Store, ledger *economy.Ledger) *Service {
	return &Service{store: st, ledger: ledger, newCode: randomCode}
}

func randomCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:codeLength]
}

// GenerateReferralCode возвращает код пользователя, создавая его при первом запросе.
// Существующий код не меняется.
func (s *Service) GenerateReferralCode(ctx context.Context, userID int64) (string, error) {
	u, err := s.ledger.Mutate(ctx, userID, func(u *store.User) (bool, error) {
		if u.ReferralCode != "" {
			return false, nil
		}
		for i := 0; i < codeAttempts; i++ {
			code := s.newCode()
			owner, err := s.store.GetUserByReferralCode(ctx, code)
			if err != nil {
				return false, err
			}
			if owner == nil {
				u.ReferralCode = code
				return true, nil
			}
			log.WithField("code", code).Warn("Коллизия реферального кода, генерируем заново")
		}
		return false, fmt.Errorf("не удалось подобрать уникальный реферальный код за %d попыток", codeAttempts)
	})
	if err != nil {
		return "", fmt.Errorf("ошибка генерации реферального кода: %w", err)
	}
	if u == nil {
		return "", common.ErrUserNotFound
	}
	return u.ReferralCode, nil
}

// ResolveReferralCode ищет владельца кода. Неизвестный код — (nil, nil).
func (s *Service) ResolveReferralCode(ctx context.Context, code string) (*store.User, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	return s.store.GetUserByReferralCode(ctx, code)
}

// ProcessReferral привязывает нового пользователя к владельцу кода.
// false без изменений, если код неизвестен, это собственный код
// или пользователь уже был приглашён. true, как только привязка записана.
func (s *Service) ProcessReferral(ctx context.Context, newUserID int64, code string) (bool, error) {
	_, err := s.Apply(ctx, newUserID, code)
	switch {
	case err == nil:
		return true, nil
	case isRejection(err):
		log.WithFields(log.Fields{"user_id": newUserID, "code": code}).WithError(err).Info("Реферальный код отклонён")
		return false, nil
	default:
		return false, err
	}
}

// Apply — ProcessReferral, возвращающий обновлённого пригласившего.
// Причины отказа — ErrReferralCodeNotFound, ErrSelfReferral, ErrAlreadyReferred.
//
// Запись нового пользователя и пригласившего — две отдельные записи:
// при падении между ними привязка останется без бонуса. Если пригласивший
// исчез между записями, возвращается (nil, nil): привязка есть, бонуса нет.
func (s *Service) Apply(ctx context.Context, newUserID int64, code string) (*store.User, error) {
	referrer, err := s.ResolveReferralCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска реферального кода: %w", err)
	}
	if referrer == nil {
		return nil, common.ErrReferralCodeNotFound
	}
	if referrer.ID == newUserID {
		return nil, common.ErrSelfReferral
	}

	referrerID := referrer.ID
	u, err := s.ledger.Mutate(ctx, newUserID, func(u *store.User) (bool, error) {
		if u.ReferredBy != nil {
			return false, common.ErrAlreadyReferred
		}
		u.ReferredBy = &referrerID
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, common.ErrUserNotFound
	}

	updated, err := s.ledger.AwardReferral(ctx, referrerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка начисления реферального бонуса: %w", err)
	}
	if updated == nil {
		log.WithFields(log.Fields{"user_id": newUserID, "referrer_id": referrerID}).
			Warn("Пригласивший не найден при начислении бонуса, привязка сохранена без бонуса")
		return nil, nil
	}
	log.WithFields(log.Fields{"user_id": newUserID, "referrer_id": referrerID}).Info("Пользователь пришёл по реферальной ссылке")
	return updated, nil
}

// Link — реферальная ссылка на бота.
func Link(botUsername, code string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s%s", botUsername, StartPrefix, code)
}

// CodeFromStart достаёт код из параметра /start ("ref_XXXX").
func CodeFromStart(payload string) (string, bool) {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, StartPrefix) {
		return "", false
	}
	code := strings.TrimPrefix(payload, StartPrefix)
	return code, code != ""
}

func isRejection(err error) bool {
	return errors.Is(err, common.ErrReferralCodeNotFound) ||
		errors.Is(err, common.ErrSelfReferral) ||
		errors.Is(err, common.ErrAlreadyReferred) ||
		errors.Is(err, common.ErrUserNotFound)
}
