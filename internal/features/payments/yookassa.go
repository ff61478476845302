package payments

import (
	"context"
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/common"
	"mindbot.ru/telegram-bot/internal/features/payments/yookassa"
	"mindbot.ru/telegram-bot/internal/store"
)

// YooKassaBackend — оплата через редирект на страницу ЮKassa.
// Статус приходит вебхуком или по кнопке «Проверить оплату».
type YooKassaBackend struct {
	store     store.Store
	resolver  *Resolver
	client    *yookassa.Client
	returnURL string
}

// NewYooKassaBackend создаёт бэкенд ЮKassa.
func NewYooKassaBackend(deps Deps, client *yookassa.Client, returnURL string) *YooKassaBackend {
	return &YooKassaBackend{
		store:     deps.Store,
		resolver:  NewResolver(deps.Store, deps.Ledger, deps.PaymentLocks, BackendYooKassa),
		client:    client,
		returnURL: returnURL,
	}
}

func (b *YooKassaBackend) Name() string { return BackendYooKassa }

// CreatePaymentLink создаёт платёж в ЮKassa и сохраняет его под ID шлюза.
func (b *YooKassaBackend) CreatePaymentLink(ctx context.Context, userID int64, tariffKey string) (string, *store.Payment, error) {
	// ID появится после ответа шлюза
	p, t, err := newPayment("", userID, tariffKey)
	if err != nil {
		return "", nil, err
	}

	remote, err := b.client.CreatePayment(ctx, yookassa.CreateRequest{
		Amount:       yookassa.Amount{Value: yookassa.FormatAmount(t.Price), Currency: "RUB"},
		Confirmation: yookassa.Confirmation{Type: "redirect", ReturnURL: b.returnURL},
		Capture:      true,
		Description:  fmt.Sprintf("Оплата тарифа '%s' (%s)", t.Key, t.Description),
		Metadata: map[string]string{
			"user_id": strconv.FormatInt(userID, 10),
			"tariff":  t.Key,
		},
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"user_id": userID, "tariff": t.Key}).Error("Ошибка при создании платежа ЮKassa")
		return "", nil, nil
	}
	if remote.ID == "" || remote.Confirmation.ConfirmationURL == "" {
		log.WithField("payment_id", remote.ID).Error("ЮKassa не вернула ссылку на оплату")
		return "", nil, nil
	}

	p.ID = remote.ID
	if !persist(ctx, b.store, BackendYooKassa, p) {
		return "", nil, nil
	}
	return remote.Confirmation.ConfirmationURL, p, nil
}

// CheckPaymentStatus опрашивает шлюз и применяет окончательный статус.
// Сбой шлюза — StatusUnknown без ошибки.
func (b *YooKassaBackend) CheckPaymentStatus(ctx context.Context, paymentID string) (store.PaymentStatus, error) {
	remote, err := b.client.GetPayment(ctx, paymentID)
	if err != nil {
		log.WithError(err).WithField("payment_id", paymentID).Error("Ошибка при проверке статуса платежа ЮKassa")
		return store.StatusUnknown, nil
	}

	status := store.ParsePaymentStatus(remote.Status)
	p, _, err := b.resolver.Resolve(ctx, paymentID, status, "")
	if err != nil {
		return store.StatusUnknown, err
	}
	if p == nil {
		return status, nil
	}
	return p.Status, nil
}

// HandleNotification обрабатывает HTTP-уведомление ЮKassa.
// Уведомление только повод перепроверить платёж: статус берётся из API шлюза,
// статусу в теле не доверяем. Некорректное тело — ErrBadPayload,
// неизвестный платёж подтверждается молча, недоступный шлюз — ErrBackendUnavailable.
func (b *YooKassaBackend) HandleNotification(ctx context.Context, body []byte) error {
	n, err := yookassa.ParseNotification(body)
	if err != nil {
		log.WithError(err).Warn("Получено некорректное уведомление о платеже")
		return fmt.Errorf("%w: %v", common.ErrBadPayload, err)
	}

	logger := log.WithFields(log.Fields{"payment_id": n.Object.ID, "status": n.Object.Status, "event": n.Event})
	logger.Info("Обработка уведомления о платеже")

	p, err := b.store.GetPayment(ctx, n.Object.ID)
	if err != nil {
		return fmt.Errorf("ошибка чтения платежа: %w", err)
	}
	if p == nil {
		logger.Warn("Уведомление о неизвестном платеже")
		return nil
	}

	remote, err := b.client.GetPayment(ctx, p.ID)
	if err != nil {
		logger.WithError(err).Error("Не удалось перепроверить платёж в ЮKassa")
		return fmt.Errorf("%w: %v", common.ErrBackendUnavailable, err)
	}
	status := store.ParsePaymentStatus(remote.Status)
	if status != store.ParsePaymentStatus(n.Object.Status) {
		logger.WithField("gateway_status", remote.Status).Warn("Статус в уведомлении расходится со статусом шлюза")
	}

	p, credited, err := b.resolver.Resolve(ctx, p.ID, status, "")
	if err != nil {
		return err
	}
	if credited {
		logger.WithField("user_id", p.UserID).Info("Оплата по уведомлению зачислена")
	}
	return nil
}
