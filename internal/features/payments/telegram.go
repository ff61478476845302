package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/common"
	"mindbot.ru/telegram-bot/internal/features/economy"
	"mindbot.ru/telegram-bot/internal/store"
)

// Currency — валюта инвойсов Telegram Payments.
const Currency = "RUB"

// Причины отказа на pre-checkout
var (
	errPaymentNotPending = errors.New("платёж уже обработан")
	errPaymentMismatch   = errors.New("данные платежа не совпадают")
)

// TelegramBackend — платежи через инвойсы Telegram (провайдер из BotFather).
//
// Двухфазный протокол: pre_checkout_query надо подтвердить за 10 секунд,
// зачисление — только по successful_payment с charge id.
type TelegramBackend struct {
	store         store.Store
	resolver      *Resolver
	api           *tgbotapi.BotAPI
	providerToken string
}

// NewTelegramBackend создаёт бэкенд Telegram Payments.
func NewTelegramBackend(deps Deps, api *tgbotapi.BotAPI, providerToken string) *TelegramBackend {
	return &TelegramBackend{
		store:         deps.Store,
		resolver:      NewResolver(deps.Store, deps.Ledger, deps.PaymentLocks, BackendTelegram),
		api:           api,
		providerToken: providerToken,
	}
}

func (b *TelegramBackend) Name() string { return BackendTelegram }

// Payload — строка, которую Telegram вернёт в pre-checkout и successful_payment.
func Payload(paymentID, tariffKey string) string {
	return fmt.Sprintf("payment:%s:%s", paymentID, tariffKey)
}

// ParsePayload разбирает "payment:<id>:<tariff>".
func ParsePayload(payload string) (paymentID, tariffKey string, err error) {
	parts := strings.Split(payload, ":")
	if len(parts) != 3 || parts[0] != "payment" || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("%w: %q", common.ErrBadPayload, payload)
	}
	return parts[1], parts[2], nil
}

// CreatePaymentLink сохраняет pending-платёж. Handle — маркер
// "tariff:<t>:payment_id:<id>", сам счёт отправляет SendInvoice.
func (b *TelegramBackend) CreatePaymentLink(ctx context.Context, userID int64, tariffKey string) (string, *store.Payment, error) {
	if b.providerToken == "" {
		log.Error("Невозможно создать платёж: не задан TELEGRAM_PROVIDER_TOKEN")
		return "", nil, nil
	}
	p, t, err := newPayment(uuid.NewString(), userID, tariffKey)
	if err != nil {
		return "", nil, err
	}
	if !t.Price.IsPositive() {
		log.WithFields(log.Fields{"tariff": t.Key, "price": t.Price.String()}).Error("Некорректная сумма платежа")
		return "", nil, nil
	}
	if !persist(ctx, b.store, BackendTelegram, p) {
		return "", nil, nil
	}
	return fmt.Sprintf("tariff:%s:payment_id:%s", t.Key, p.ID), p, nil
}

// SendInvoice отправляет счёт на оплату платежа p.
func (b *TelegramBackend) SendInvoice(chatID int64, p *store.Payment) error {
	t, ok := economy.LookupTariff(p.Tariff)
	if !ok {
		return fmt.Errorf("%w: %q", common.ErrUnknownTariff, p.Tariff)
	}
	invoice := tgbotapi.NewInvoice(
		chatID,
		"Пополнение Майндтокенов",
		fmt.Sprintf("Тариф «%s»", t.Description),
		Payload(p.ID, t.Key),
		b.providerToken,
		"mindtokens-"+t.Key,
		Currency,
		[]tgbotapi.LabeledPrice{{Label: t.Description, Amount: t.PriceMinorUnits()}},
	)
	// Без этого библиотека сериализует null и Telegram отклоняет запрос
	invoice.SuggestedTipAmounts = []int{}

	if _, err := b.api.Send(invoice); err != nil {
		return fmt.Errorf("ошибка отправки счёта: %w", err)
	}
	return nil
}

// PreCheckout проверяет запрос перед списанием денег.
// nil — можно подтверждать.
func (b *TelegramBackend) PreCheckout(ctx context.Context, userID int64, payload, currency string, totalAmount int) error {
	paymentID, tariffKey, err := ParsePayload(payload)
	if err != nil {
		return err
	}
	p, err := b.store.GetPayment(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("ошибка чтения платежа: %w", err)
	}
	if p == nil {
		return common.ErrPaymentNotFound
	}
	if p.Status != store.StatusPending {
		return errPaymentNotPending
	}
	t, ok := economy.LookupTariff(tariffKey)
	if !ok || p.Tariff != tariffKey || p.UserID != userID ||
		currency != Currency || totalAmount != t.PriceMinorUnits() {
		return errPaymentMismatch
	}
	return nil
}

// ConfirmSuccessfulPayment зачисляет оплату по successful_payment.
func (b *TelegramBackend) ConfirmSuccessfulPayment(ctx context.Context, payload, chargeID string) (*store.Payment, bool, error) {
	paymentID, _, err := ParsePayload(payload)
	if err != nil {
		return nil, false, err
	}
	p, credited, err := b.resolver.Resolve(ctx, paymentID, store.StatusSucceeded, chargeID)
	if err != nil {
		return nil, false, err
	}
	if p == nil {
		return nil, false, common.ErrPaymentNotFound
	}
	return p, credited, nil
}

// CheckPaymentStatus возвращает сохранённый статус: Telegram статус не опрашивается.
func (b *TelegramBackend) CheckPaymentStatus(ctx context.Context, paymentID string) (store.PaymentStatus, error) {
	p, err := b.store.GetPayment(ctx, paymentID)
	if err != nil {
		return store.StatusUnknown, fmt.Errorf("ошибка чтения платежа: %w", err)
	}
	if p == nil {
		return store.StatusUnknown, nil
	}
	return p.Status, nil
}
