package payments

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/features/economy"
	"mindbot.ru/telegram-bot/internal/locks"
	"mindbot.ru/telegram-bot/internal/metrics"
	"mindbot.ru/telegram-bot/internal/store"
)

// Resolver переводит платёж в окончательный статус и зачисляет покупку.
// Это единственный путь начисления по платежам: опрос статуса, вебхук
// и successful_payment сходятся сюда.
type Resolver struct {
	store   store.Store
	ledger  *economy.Ledger
	locks   *locks.Keyed[string]
	backend string
}

// NewResolver создаёт Resolver для бэкенда backend.
func NewResolver(st store.Store, ledger *economy.Ledger, paymentLocks *locks.Keyed[string], backend string) *Resolver {
	return &Resolver{store: st, ledger: ledger, locks: paymentLocks, backend: backend}
}

// Resolve применяет статус к платежу.
//
// Неизвестный платёж — (nil, false, nil). Уже окончательный статус не
// меняется и повторно не зачисляется. credited=true только для вызова,
// который действительно зачислил покупку.
func (r *Resolver) Resolve(ctx context.Context, paymentID string, status store.PaymentStatus, chargeID string) (*store.Payment, bool, error) {
	unlock := r.locks.Lock(paymentID)
	defer unlock()

	p, err := r.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения платежа %s: %w", paymentID, err)
	}
	if p == nil {
		return nil, false, nil
	}
	if p.Status.IsTerminal() {
		if status != p.Status {
			log.WithFields(log.Fields{
				"payment_id": paymentID,
				"stored":     p.Status,
				"incoming":   status,
			}).Warn("Платёж уже в окончательном статусе, новый статус проигнорирован")
		}
		return p, false, nil
	}
	if !status.IsTerminal() {
		return p, false, nil
	}

	updated, err := r.store.UpdatePaymentStatus(ctx, paymentID, status, chargeID)
	if err != nil {
		return nil, false, fmt.Errorf("ошибка обновления статуса платежа %s: %w", paymentID, err)
	}
	if updated == nil {
		return nil, false, nil
	}
	metrics.PaymentsTotal.WithLabelValues(r.backend, string(status)).Inc()

	if status != store.StatusSucceeded {
		log.WithFields(log.Fields{"payment_id": paymentID, "status": status}).Info("Платёж не прошёл")
		return updated, false, nil
	}

	u, err := r.ledger.ApplyPurchase(ctx, updated)
	if err != nil {
		// Статус уже succeeded: повторный Resolve не зачислит, нужен ручной разбор
		log.WithError(err).WithFields(log.Fields{
			"payment_id": paymentID,
			"user_id":    updated.UserID,
			"tokens":     updated.Tokens,
		}).Error("Платёж оплачен, но покупку зачислить не удалось")
		return updated, false, err
	}
	if u == nil {
		log.WithFields(log.Fields{"payment_id": paymentID, "user_id": updated.UserID}).
			Error("Платёж оплачен, но пользователь не найден")
		return updated, false, nil
	}

	log.WithFields(log.Fields{
		"backend":    r.backend,
		"payment_id": paymentID,
		"user_id":    updated.UserID,
		"tariff":     updated.Tariff,
	}).Info("Покупка зачислена")
	return updated, true, nil
}
