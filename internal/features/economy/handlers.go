// Package economy — handlers.go обрабатывает /balance и меню пополнения (buy_tokens).
package economy

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/bot/reply"
	"mindbot.ru/telegram-bot/internal/common"
	"mindbot.ru/telegram-bot/internal/store"
)

// Callback-данные кнопок экономики
const (
	CallbackBuyTokens    = "buy_tokens"
	CallbackSelectTariff = "select_tariff:"
	CallbackBackToMain   = "back_to_main"
)

// Handler обрабатывает команды экономики.
type Handler struct {
	ledger *Ledger
	store  store.Store
	reply  *reply.Sender
}

// NewHandler создаёт обработчик.
func NewHandler(ledger *Ledger, st store.Store, sender *reply.Sender) *Handler {
	return &Handler{ledger: ledger, store: st, reply: sender}
}

// HandleBalance обрабатывает /balance.
//
//	💎 Ваш баланс: 40 Майндтокенов
//	Этого хватит на 4 вопроса.
func (h *Handler) HandleBalance(ctx context.Context, chatID, userID int64) {
	u, err := h.store.GetUser(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Ошибка получения баланса")
		h.reply.Send(chatID, "❌ Ошибка получения баланса", nil)
		return
	}
	if u == nil {
		h.reply.Send(chatID, "Пожалуйста, начните диалог с помощью команды /start", nil)
		return
	}

	h.reply.Send(chatID, BalanceText(u, h.ledger.TokensPerMessage()), TopUpKeyboard())
}

// HandleBuyTokens показывает список тарифов.
func (h *Handler) HandleBuyTokens(t reply.Target) {
	h.reply.Show(t, "🔹 Выберите тариф для пополнения Майндтокенов:", TariffKeyboard())
}

// BalanceText — текст с балансом пользователя.
func BalanceText(u *store.User, perMessage int64) string {
	if u.IsUnlimited {
		return "💫 У вас активирован безлимитный тариф."
	}
	questions := u.Tokens / perMessage
	return fmt.Sprintf("💎 Ваш баланс: %s\nЭтого хватит на %d %s.",
		common.FormatBalance(u.Tokens), questions, common.PluralizeQuestions(questions))
}

// TopUpKeyboard — одна кнопка «Пополнить».
func TopUpKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return reply.Keyboard(reply.Button("💰 Пополнить Майндтокены", CallbackBuyTokens))
}

// TariffKeyboard — кнопки тарифов и «Назад».
func TariffKeyboard() *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(tariffs)+1)
	for _, t := range tariffs {
		rows = append(rows, reply.Button(t.ButtonText(), CallbackSelectTariff+t.Key))
	}
	rows = append(rows, reply.Button("🔙 Назад", CallbackBackToMain))
	return reply.Keyboard(rows...)
}
