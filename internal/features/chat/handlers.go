// Package chat — handlers.go обрабатывает текстовые сообщения и кнопку start_chat.
package chat

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/bot/reply"
	"mindbot.ru/telegram-bot/internal/common"
	"mindbot.ru/telegram-bot/internal/features/economy"
	"mindbot.ru/telegram-bot/internal/store"
)

// Тексты ответов
const (
	TextStartFirst = "Пожалуйста, используйте команду /start для начала работы с ботом."
	TextApology    = "😔 Извините, возникла техническая проблема при обработке вашего запроса. Пожалуйста, попробуйте позже."
	TextFailure    = "😔 Произошла ошибка при обработке вашего сообщения. Наши специалисты уже работают над решением проблемы."
	TextChatReady  = "🔹 Вы можете начать диалог прямо сейчас. Просто напишите ваш вопрос или опишите ситуацию, " +
		"и я постараюсь помочь вам разобраться.\n\nЧем я могу вам помочь сегодня?"
)

// Handler обрабатывает диалог с AI.
type Handler struct {
	store   store.Store
	ledger  *economy.Ledger
	session *Session
	reply   *reply.Sender
}

// NewHandler создаёт обработчик.
func NewHandler(st store.Store, ledger *economy.Ledger, session *Session, sender *reply.Sender) *Handler {
	return &Handler{store: st, ledger: ledger, session: session, reply: sender}
}

// insufficientText — «не хватает токенов». action: «продолжения диалога» / «начала диалога».
func (h *Handler) insufficientText(u *store.User, action string) string {
	return fmt.Sprintf(
		"⚠️ У вас недостаточно Майндтокенов для %s. Стоимость одного сообщения составляет %d токенов.\n\n"+
			"Ваш текущий баланс: %s.",
		action, h.ledger.TokensPerMessage(), common.FormatBalance(u.Tokens))
}

// HandleMessage — вопрос пользователя.
//
// Порядок: история(вопрос) → агент → списание → история(ответ) → ответ.
// Без ответа агента токены не списываются.
func (h *Handler) HandleMessage(ctx context.Context, chatID, userID int64, text string) {
	logger := log.WithField("user_id", userID)

	u, err := h.store.GetUser(ctx, userID)
	if err != nil {
		logger.WithError(err).Error("Ошибка получения пользователя")
		h.reply.Send(chatID, TextFailure, nil)
		return
	}
	if u == nil {
		logger.Warn("Пользователь не найден в базе данных")
		h.reply.Send(chatID, TextStartFirst, nil)
		return
	}

	if !h.ledger.CanAfford(u) {
		logger.WithField("tokens", u.Tokens).Info("Недостаточно токенов")
		h.reply.Send(chatID, h.insufficientText(u, "продолжения диалога"), economy.TopUpKeyboard())
		return
	}

	h.reply.Typing(chatID)

	if _, err := h.ledger.AddMessageToHistory(ctx, userID, text, true); err != nil {
		logger.WithError(err).Error("Ошибка сохранения сообщения в историю")
		h.reply.Send(chatID, TextFailure, nil)
		return
	}

	answer, ok := h.session.Send(ctx, userID, text)
	if !ok {
		logger.Error("Не получен ответ от AI агента")
		h.reply.Send(chatID, TextApology, nil)
		return
	}

	updated, debited, err := h.ledger.DeductTokens(ctx, userID, h.ledger.TokensPerMessage())
	if err != nil {
		logger.WithError(err).Error("Ошибка списания токенов")
	} else if !debited {
		// Баланс успели потратить параллельным сообщением: ответ уже получен, отдаём его
		logger.Warn("Списание отклонено после ответа агента")
	}

	if _, err := h.ledger.AddMessageToHistory(ctx, userID, answer, false); err != nil {
		logger.WithError(err).Error("Ошибка сохранения ответа в историю")
	}

	if updated != nil && !updated.IsUnlimited {
		answer += fmt.Sprintf("\n\n💎 Остаток: %s", common.FormatBalance(updated.Tokens))
	}
	h.reply.Send(chatID, answer, nil)
}

// HandleStartChat — кнопка «Начать диалог»: очищает окно памяти.
func (h *Handler) HandleStartChat(ctx context.Context, t reply.Target, userID int64) {
	if err := h.session.Clear(ctx, userID); err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка при очистке истории диалога")
	}

	u, err := h.store.GetUser(ctx, userID)
	if err != nil || u == nil {
		h.reply.Show(t, TextStartFirst, nil)
		return
	}

	if h.ledger.CanAfford(u) {
		h.reply.Show(t, TextChatReady, nil)
		return
	}
	h.reply.Show(t, h.insufficientText(u, "начала диалога"), economy.TopUpKeyboard())
}
