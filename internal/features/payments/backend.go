// Package payments — покупка тарифов. Один Backend выбирается при старте
// (см. NewBackend), все успешные оплаты зачисляются через Resolver.
package payments

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/common"
	"mindbot.ru/telegram-bot/internal/features/economy"
	"mindbot.ru/telegram-bot/internal/locks"
	"mindbot.ru/telegram-bot/internal/metrics"
	"mindbot.ru/telegram-bot/internal/store"
)

// Имена бэкендов (метка метрик и лог выбора)
const (
	BackendMock     = "mock"
	BackendFree     = "free"
	BackendTelegram = "telegram"
	BackendYooKassa = "yookassa"
)

// Backend — платёжный бэкенд.
//
// CreatePaymentLink возвращает handle (URL или маркер для инвойса) и
// сохранённый платёж. Внешние сбои не пробрасываются: ("", nil, nil)
// означает «платёж создать не удалось». ErrUnknownTariff — неверный ключ.
type Backend interface {
	Name() string
	CreatePaymentLink(ctx context.Context, userID int64, tariffKey string) (string, *store.Payment, error)
	CheckPaymentStatus(ctx context.Context, paymentID string) (store.PaymentStatus, error)
}

// NotificationHandler реализуют бэкенды, принимающие вебхуки.
type NotificationHandler interface {
	HandleNotification(ctx context.Context, body []byte) error
}

// Deps — общие зависимости бэкендов.
type Deps struct {
	Store        store.Store
	Ledger       *economy.Ledger
	PaymentLocks *locks.Keyed[string]
}

// newPayment собирает pending-платёж по тарифу.
func newPayment(id string, userID int64, tariffKey string) (*store.Payment, economy.Tariff, error) {
	t, ok := economy.LookupTariff(tariffKey)
	if !ok {
		return nil, economy.Tariff{}, fmt.Errorf("%w: %q", common.ErrUnknownTariff, tariffKey)
	}
	return &store.Payment{
		ID:        id,
		UserID:    userID,
		Tariff:    t.Key,
		Amount:    t.Price,
		Tokens:    t.Tokens,
		Status:    store.StatusPending,
		CreatedAt: time.Now(),
	}, t, nil
}

// persist сохраняет платёж; ошибка хранилища логируется и превращается в «не создан».
func persist(ctx context.Context, st store.Store, backend string, p *store.Payment) bool {
	if err := st.CreatePayment(ctx, p); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"backend":    backend,
			"payment_id": p.ID,
			"user_id":    p.UserID,
		}).Error("Ошибка сохранения платежа")
		return false
	}
	metrics.PaymentsTotal.WithLabelValues(backend, string(store.StatusPending)).Inc()
	log.WithFields(log.Fields{
		"backend":    backend,
		"payment_id": p.ID,
		"user_id":    p.UserID,
		"tariff":     p.Tariff,
		"amount":     p.Amount.String(),
	}).Info("Создан платёж")
	return true
}
