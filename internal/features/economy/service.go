// Package economy — service.go содержит Ledger: все изменения баланса
// и флагов пользователя проходят через него.
package economy

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/common"
	"mindbot.ru/telegram-bot/internal/config"
	"mindbot.ru/telegram-bot/internal/locks"
	"mindbot.ru/telegram-bot/internal/metrics"
	"mindbot.ru/telegram-bot/internal/store"
)

// Причины начисления (метка метрики mindbot_tokens_credited_total)
const (
	ReasonPurchase     = "purchase"
	ReasonSubscription = "subscription"
	ReasonReferral     = "referral"
	ReasonAdmin        = "admin"
)

// Ledger — операции read-modify-write над документом пользователя.
// Каждая операция заново читает пользователя из хранилища.
type Ledger struct {
	store store.Store
	locks *locks.Keyed[int64] // nil или выключен = без сериализации

	freeTokens       int64
	tokensPerMessage int64
	referralBonus    int64

	now func() time.Time
}

// NewLedger создаёт Ledger. userLocks может быть nil.
func NewLedger(st store.Store, userLocks *locks.Keyed[int64], cfg *config.Config) *Ledger {
	return &Ledger{
		store:            st,
		locks:            userLocks,
		freeTokens:       cfg.FreeTokens,
		tokensPerMessage: cfg.TokensPerMessage,
		referralBonus:    cfg.ReferralBonusTokens,
		now:              time.Now,
	}
}

// FreeTokens — бонус за подписку на канал.
func (l *Ledger) FreeTokens() int64 { return l.freeTokens }

// TokensPerMessage — стоимость одного ответа AI.
func (l *Ledger) TokensPerMessage() int64 { return l.tokensPerMessage }

// ReferralBonusTokens — бонус пригласившему.
func (l *Ledger) ReferralBonusTokens() int64 { return l.referralBonus }

// CanAfford — хватит ли пользователю на одно сообщение.
func (l *Ledger) CanAfford(u *store.User) bool {
	return u != nil && (u.IsUnlimited || u.Tokens >= l.tokensPerMessage)
}

// Mutate читает пользователя, применяет fn и сохраняет, если fn вернула true.
// Отсутствующий пользователь — (nil, nil), fn не вызывается.
func (l *Ledger) Mutate(ctx context.Context, userID int64, fn func(u *store.User) (bool, error)) (*store.User, error) {
	unlock := l.locks.Lock(userID)
	defer unlock()

	u, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения пользователя %d: %w", userID, err)
	}
	if u == nil {
		return nil, nil
	}

	changed, err := fn(u)
	if err != nil {
		return nil, err
	}
	if !changed {
		return u, nil
	}
	if err := l.store.UpdateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("ошибка сохранения пользователя %d: %w", userID, err)
	}
	return u, nil
}

// AddTokens начисляет amount токенов.
// Если пользователя нет — возвращает (nil, nil), ничего не создаёт.
func (l *Ledger) AddTokens(ctx context.Context, userID, amount int64, reason string) (*store.User, error) {
	if amount <= 0 {
		return nil, common.ErrInvalidAmount
	}
	u, err := l.Mutate(ctx, userID, func(u *store.User) (bool, error) {
		u.Tokens += amount
		return true, nil
	})
	if err != nil || u == nil {
		return u, err
	}

	metrics.TokensCreditedTotal.WithLabelValues(reason).Add(float64(amount))
	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  amount,
		"reason":  reason,
		"balance": u.Tokens,
	}).Info("Начислены Майндтокены")
	return u, nil
}

// DeductTokens списывает amount токенов.
// Безлимитным пользователям списание всегда разрешено, баланс не трогается.
// Нехватка баланса — не ошибка: возвращается ok=false без изменений.
func (l *Ledger) DeductTokens(ctx context.Context, userID, amount int64) (*store.User, bool, error) {
	if amount <= 0 {
		return nil, false, common.ErrInvalidAmount
	}
	var ok bool
	u, err := l.Mutate(ctx, userID, func(u *store.User) (bool, error) {
		if !u.IsUnlimited && u.Tokens < amount {
			return false, nil
		}
		if !u.IsUnlimited {
			u.Tokens -= amount
		}
		u.LastActivity = l.now()
		ok = true
		return true, nil
	})
	if err != nil || u == nil {
		return u, false, err
	}
	if ok && !u.IsUnlimited {
		metrics.TokensDebitedTotal.Add(float64(amount))
	}
	return u, ok, nil
}

// SetSubscriptionStatus сохраняет статус подписки на канал.
//
// Бонус FreeTokens выдаётся только на переходе «не подписан → подписан»
// по сохранённому значению и только если бонус ещё не выдавался.
// Баланс на это не влияет: токены от рефералов или админа бонус не отменяют.
func (l *Ledger) SetSubscriptionStatus(ctx context.Context, userID int64, subscribed bool) (*store.User, bool, error) {
	var granted bool
	u, err := l.Mutate(ctx, userID, func(u *store.User) (bool, error) {
		wasSubscribed := u.IsSubscribed
		if wasSubscribed == subscribed {
			return false, nil
		}
		u.IsSubscribed = subscribed
		if subscribed && !wasSubscribed && !u.HasReceivedSubscriptionBonus {
			u.Tokens += l.freeTokens
			u.HasReceivedSubscriptionBonus = true
			granted = true
		}
		return true, nil
	})
	if err != nil || u == nil {
		return u, false, err
	}

	if granted {
		metrics.TokensCreditedTotal.WithLabelValues(ReasonSubscription).Add(float64(l.freeTokens))
		log.WithFields(log.Fields{"user_id": userID, "bonus": l.freeTokens}).Info("Выдан бонус за подписку")
	}
	return u, granted, nil
}

// SetUnlimitedStatus включает или выключает безлимит. Баланс не меняется.
func (l *Ledger) SetUnlimitedStatus(ctx context.Context, userID int64, unlimited bool) (*store.User, error) {
	u, err := l.Mutate(ctx, userID, func(u *store.User) (bool, error) {
		if u.IsUnlimited == unlimited {
			return false, nil
		}
		u.IsUnlimited = unlimited
		return true, nil
	})
	if err != nil || u == nil {
		return u, err
	}
	log.WithFields(log.Fields{"user_id": userID, "unlimited": unlimited}).Info("Изменён статус безлимита")
	return u, nil
}

// AddMessageToHistory дописывает реплику в историю пользователя.
func (l *Ledger) AddMessageToHistory(ctx context.Context, userID int64, text string, isUser bool) (*store.User, error) {
	return l.Mutate(ctx, userID, func(u *store.User) (bool, error) {
		now := l.now()
		u.History = append(u.History, store.HistoryEntry{Text: text, IsUser: isUser, Timestamp: now})
		u.LastActivity = now
		return true, nil
	})
}

// ApplyPurchase зачисляет оплаченный тариф: токены или безлимит.
// Вызывается ровно один раз на успешный платёж (см. payments.Resolver).
func (l *Ledger) ApplyPurchase(ctx context.Context, p *store.Payment) (*store.User, error) {
	if p.IsUnlimited() {
		return l.SetUnlimitedStatus(ctx, p.UserID, true)
	}
	return l.AddTokens(ctx, p.UserID, p.Tokens, ReasonPurchase)
}

// AwardReferral засчитывает приглашение: +1 к ReferralCount и бонус пригласившему.
func (l *Ledger) AwardReferral(ctx context.Context, referrerID int64) (*store.User, error) {
	u, err := l.Mutate(ctx, referrerID, func(u *store.User) (bool, error) {
		u.ReferralCount++
		u.Tokens += l.referralBonus
		return true, nil
	})
	if err != nil || u == nil {
		return u, err
	}

	metrics.TokensCreditedTotal.WithLabelValues(ReasonReferral).Add(float64(l.referralBonus))
	log.WithFields(log.Fields{
		"user_id":        referrerID,
		"bonus":          l.referralBonus,
		"referral_count": u.ReferralCount,
	}).Info("Начислен реферальный бонус")
	return u, nil
}
