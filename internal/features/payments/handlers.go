// Package payments — handlers.go обрабатывает выбор тарифа, проверку оплаты
// и события Telegram Payments (pre_checkout_query, successful_payment).
package payments

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/bot/reply"
	"mindbot.ru/telegram-bot/internal/common"
	"mindbot.ru/telegram-bot/internal/features/economy"
	"mindbot.ru/telegram-bot/internal/store"
)

// Callback-данные
const (
	CallbackCheckPayment = "check_payment:"
	CallbackStartChat    = "start_chat"
)

// Тексты ответов
const (
	textBadTariff     = "⚠️ Выбран неверный тариф. Пожалуйста, попробуйте еще раз."
	textCreateFailed  = "⚠️ Произошла ошибка при создании платежа. Пожалуйста, попробуйте позже."
	textPending       = "⏳ Ваш платеж находится в обработке.\n\nПожалуйста, подождите некоторое время и нажмите «Проверить оплату» снова."
	textFailed        = "❌ Платеж не был выполнен или возникла ошибка.\n\nПожалуйста, попробуйте снова или выберите другой способ оплаты."
	textPaidUnlimited = "✅ Оплата успешно выполнена!\n\n💫 У вас активирован безлимитный тариф. Теперь вы можете задавать неограниченное количество вопросов!"
	textPreCheckout   = "Платёж не найден или уже обработан. Выберите тариф заново."
)

// Handler — обработчик платёжных кнопок.
type Handler struct {
	backend Backend
	store   store.Store
	ledger  *economy.Ledger
	reply   *reply.Sender
}

// NewHandler создаёт обработчик.
func NewHandler(backend Backend, st store.Store, ledger *economy.Ledger, sender *reply.Sender) *Handler {
	return &Handler{backend: backend, store: st, ledger: ledger, reply: sender}
}

// HandleSelectTariff — кнопка select_tariff:<key>.
func (h *Handler) HandleSelectTariff(ctx context.Context, t reply.Target, userID int64, tariffKey string) {
	tariff, ok := economy.LookupTariff(tariffKey)
	if !ok {
		h.reply.Show(t, textBadTariff, nil)
		return
	}

	handle, p, err := h.backend.CreatePaymentLink(ctx, userID, tariffKey)
	if err != nil || handle == "" || p == nil {
		if err != nil && !errors.Is(err, common.ErrUnknownTariff) {
			log.WithError(err).WithField("user_id", userID).Error("Ошибка создания платежа")
		}
		h.reply.Show(t, textCreateFailed, nil)
		return
	}

	summary := fmt.Sprintf("🔹 Вы выбрали тариф: %s\nСтоимость: %s ₽\n\n",
		tariff.Summary(h.ledger.TokensPerMessage()), tariff.Price.String())

	// Telegram Payments: вместо ссылки отправляем счёт отдельным сообщением
	if tb, ok := h.backend.(*TelegramBackend); ok {
		if err := tb.SendInvoice(t.ChatID, p); err != nil {
			log.WithError(err).WithField("payment_id", p.ID).Error("Не удалось отправить счёт")
			h.reply.Show(t, textCreateFailed, nil)
			return
		}
		h.reply.Show(t, summary+"Счёт на оплату отправлен ниже. После оплаты Майндтокены зачислятся автоматически.",
			reply.Keyboard(reply.Button("🔙 Назад", economy.CallbackBuyTokens)))
		return
	}

	h.reply.Show(t,
		summary+"Для оплаты нажмите кнопку «Перейти к оплате» и следуйте инструкциям на сайте.\n"+
			"После успешной оплаты нажмите «Проверить оплату».",
		reply.Keyboard(
			reply.URLButton("💳 Перейти к оплате", handle),
			reply.Button("✅ Проверить оплату", CallbackCheckPayment+p.ID),
			reply.Button("🔙 Назад", economy.CallbackBuyTokens),
		))
}

// HandleCheckPayment — кнопка check_payment:<id>.
func (h *Handler) HandleCheckPayment(ctx context.Context, t reply.Target, userID int64, paymentID string) {
	// Чужие и несуществующие платежи не проверяем
	p, err := h.store.GetPayment(ctx, paymentID)
	if err != nil {
		log.WithError(err).WithField("payment_id", paymentID).Error("Ошибка чтения платежа")
	}
	if p == nil || p.UserID != userID {
		h.showFailed(t)
		return
	}

	status, err := h.backend.CheckPaymentStatus(ctx, paymentID)
	if err != nil {
		log.WithError(err).WithField("payment_id", paymentID).Error("Ошибка проверки статуса платежа")
		status = store.StatusUnknown
	}

	switch status {
	case store.StatusSucceeded:
		h.showPaid(ctx, t, userID)
	case store.StatusPending:
		h.reply.Show(t, textPending, reply.Keyboard(
			reply.Button("✅ Проверить оплату", CallbackCheckPayment+paymentID),
			reply.Button("🔙 Назад", economy.CallbackBuyTokens),
		))
	default:
		h.showFailed(t)
	}
}

// HandlePreCheckout отвечает на pre_checkout_query.
func (h *Handler) HandlePreCheckout(ctx context.Context, q *tgbotapi.PreCheckoutQuery) {
	tb, ok := h.backend.(*TelegramBackend)
	if !ok {
		log.WithField("backend", h.backend.Name()).Warn("pre_checkout_query при неинвойсном бэкенде")
		h.reply.AnswerPreCheckout(q.ID, false, textPreCheckout)
		return
	}

	var userID int64
	if q.From != nil {
		userID = q.From.ID
	}
	if err := tb.PreCheckout(ctx, userID, q.InvoicePayload, q.Currency, q.TotalAmount); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"user_id": userID,
			"payload": q.InvoicePayload,
		}).Warn("Pre-checkout отклонён")
		h.reply.AnswerPreCheckout(q.ID, false, textPreCheckout)
		return
	}
	h.reply.AnswerPreCheckout(q.ID, true, "")
}

// HandleSuccessfulPayment обрабатывает сообщение successful_payment.
func (h *Handler) HandleSuccessfulPayment(ctx context.Context, chatID, userID int64, sp *tgbotapi.SuccessfulPayment) {
	tb, ok := h.backend.(*TelegramBackend)
	if !ok {
		log.WithField("backend", h.backend.Name()).Error("successful_payment при неинвойсном бэкенде")
		return
	}

	p, _, err := tb.ConfirmSuccessfulPayment(ctx, sp.InvoicePayload, sp.TelegramPaymentChargeID)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"user_id":   userID,
			"payload":   sp.InvoicePayload,
			"charge_id": sp.TelegramPaymentChargeID,
		}).Error("Ошибка обработки успешного платежа")
		h.reply.Send(chatID, "⚠️ Оплата получена, но при зачислении возникла ошибка. Напишите администратору.", nil)
		return
	}
	h.showPaid(ctx, reply.Chat(chatID), p.UserID)
}

func (h *Handler) showPaid(ctx context.Context, t reply.Target, userID int64) {
	kb := reply.Keyboard(reply.Button("💬 Вернуться к диалогу", CallbackStartChat))

	u, err := h.store.GetUser(ctx, userID)
	if err != nil || u == nil {
		h.reply.Show(t, "✅ Оплата успешно выполнена!", kb)
		return
	}
	if u.IsUnlimited {
		h.reply.Show(t, textPaidUnlimited, kb)
		return
	}
	h.reply.Show(t, fmt.Sprintf("✅ Оплата успешно выполнена!\n\n💎 Ваш текущий баланс: %s.", common.FormatBalance(u.Tokens)), kb)
}

func (h *Handler) showFailed(t reply.Target) {
	h.reply.Show(t, textFailed, reply.Keyboard(
		reply.Button("🔄 Попробовать снова", economy.CallbackBuyTokens),
		reply.Button("🔙 Назад", economy.CallbackBackToMain),
	))
}
