package payments

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/store"
)

// FreeBackend — бесплатный режим: платёж создаётся pending и
// становится succeeded при первой проверке статуса.
type FreeBackend struct {
	store    store.Store
	resolver *Resolver
	delay    time.Duration // пауза перед «подтверждением»

	counter  atomic.Int64
	instance string // суффикс запуска, чтобы ID не пересекались после рестарта
}

// NewFreeBackend создаёт бесплатный бэкенд.
func NewFreeBackend(deps Deps, delay time.Duration) *FreeBackend {
	return &FreeBackend{
		store:    deps.Store,
		resolver: NewResolver(deps.Store, deps.Ledger, deps.PaymentLocks, BackendFree),
		delay:    delay,
		instance: uuid.NewString()[:8],
	}
}

func (b *FreeBackend) Name() string { return BackendFree }

func (b *FreeBackend) nextID() string {
	return fmt.Sprintf("free_payment_%d_%s", b.counter.Add(1), b.instance)
}

// CreatePaymentLink сохраняет pending-платёж и возвращает ссылку-заглушку.
func (b *FreeBackend) CreatePaymentLink(ctx context.Context, userID int64, tariffKey string) (string, *store.Payment, error) {
	p, _, err := newPayment(b.nextID(), userID, tariffKey)
	if err != nil {
		return "", nil, err
	}
	if !persist(ctx, b.store, BackendFree, p) {
		return "", nil, nil
	}
	return fmt.Sprintf("https://free-payment.example.com/%s", p.ID), p, nil
}

// CheckPaymentStatus ждёт delay и подтверждает платёж.
// Неизвестный ID — StatusUnknown.
func (b *FreeBackend) CheckPaymentStatus(ctx context.Context, paymentID string) (store.PaymentStatus, error) {
	if b.delay > 0 {
		timer := time.NewTimer(b.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return store.StatusUnknown, ctx.Err()
		case <-timer.C:
		}
	}

	p, _, err := b.resolver.Resolve(ctx, paymentID, store.StatusSucceeded, "")
	if err != nil {
		return store.StatusUnknown, err
	}
	if p == nil {
		log.WithField("payment_id", paymentID).Warn("Бесплатный платёж не найден")
		return store.StatusUnknown, nil
	}
	return p.Status, nil
}
