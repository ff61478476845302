// Package members — handlers.go обрабатывает /start, /help, проверку подписки
// и возврат в главное меню.
package members

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/bot/reply"
	"mindbot.ru/telegram-bot/internal/common"
	"mindbot.ru/telegram-bot/internal/features/economy"
	"mindbot.ru/telegram-bot/internal/features/payments"
	"mindbot.ru/telegram-bot/internal/features/referral"
	"mindbot.ru/telegram-bot/internal/store"
)

// Handler обрабатывает события онбординга.
type Handler struct {
	service  *Service
	ledger   *economy.Ledger
	referral *referral.Handler
	reply    *reply.Sender
}

// NewHandler создаёт обработчик. referralHandler может быть nil.
func NewHandler(service *Service, ledger *economy.Ledger, referralHandler *referral.Handler, sender *reply.Sender) *Handler {
	return &Handler{service: service, ledger: ledger, referral: referralHandler, reply: sender}
}

// HandleStart обрабатывает /start [ref_<code>].
//
// 1. Регистрирует пользователя
// 2. Применяет реферальный код из параметра
// 3. Проверяет подписку (может выдать бонус)
// 4. Показывает приветствие и меню
func (h *Handler) HandleStart(ctx context.Context, chatID int64, from *tgbotapi.User, payload string) {
	if from == nil {
		return
	}
	_, _, err := h.service.Register(ctx, store.Profile{
		UserID:    from.ID,
		Username:  from.UserName,
		FirstName: from.FirstName,
		LastName:  from.LastName,
	})
	if err != nil {
		log.WithError(err).WithField("user_id", from.ID).Error("Ошибка /start")
		h.reply.Send(chatID, "❌ Произошла ошибка. Попробуйте позже.", nil)
		return
	}

	if h.referral != nil && payload != "" {
		h.referral.HandleStartPayload(ctx, chatID, from.ID, payload)
	}

	h.showMenu(ctx, reply.Chat(chatID), from)
}

// HandleMainMenu — кнопки back_to_main и main_menu: то же, что /start без параметра.
func (h *Handler) HandleMainMenu(ctx context.Context, t reply.Target, from *tgbotapi.User) {
	if from == nil {
		return
	}
	h.showMenu(ctx, t, from)
}

func (h *Handler) showMenu(ctx context.Context, t reply.Target, from *tgbotapi.User) {
	subscribed, granted := h.service.CheckSubscription(ctx, from.ID)

	// Перечитываем: бонус за подписку или реферал мог изменить баланс
	u, err := h.service.store.GetUser(ctx, from.ID)
	if err != nil || u == nil {
		log.WithError(err).WithField("user_id", from.ID).Error("Ошибка чтения пользователя")
		h.reply.Show(t, "Пожалуйста, начните диалог с помощью команды /start", nil)
		return
	}

	text := WelcomeText(DisplayName(from), u)
	switch {
	case granted:
		text += fmt.Sprintf("\n\n🎁 Спасибо за подписку! Вам начислено %s.", common.FormatBalance(h.ledger.FreeTokens()))
	case !subscribed && !u.HasReceivedSubscriptionBonus:
		text += fmt.Sprintf("\n\n🎁 Подпишитесь на наш канал и получите %s бесплатно!", common.FormatBalance(h.ledger.FreeTokens()))
	case !subscribed:
		text += "\n\n📢 Подпишитесь на наш канал, чтобы начать диалог."
	}

	h.reply.Show(t, text, MenuKeyboard(subscribed, h.ledger.CanAfford(u), h.service.ChannelLink()))
}

// HandleCheckSubscription — кнопка «Проверить подписку».
func (h *Handler) HandleCheckSubscription(ctx context.Context, t reply.Target, userID int64) {
	subscribed, granted := h.service.CheckSubscription(ctx, userID)
	perMessage := h.ledger.TokensPerMessage()

	if !subscribed {
		free := h.ledger.FreeTokens()
		h.reply.Show(t, fmt.Sprintf(
			"⚠️ Вы еще не подписаны на наш канал.\n\n"+
				"Подпишитесь на канал и получите %s бесплатно!\n"+
				"Этого хватит на %d %s.",
			common.FormatBalance(free), free/perMessage, common.PluralizeQuestions(free/perMessage),
		), reply.Keyboard(subscribeRows(h.service.ChannelLink())...))
		return
	}

	u, err := h.service.store.GetUser(ctx, userID)
	if err != nil || u == nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка чтения пользователя")
		h.reply.Show(t, "Пожалуйста, начните диалог с помощью команды /start", nil)
		return
	}

	text := "✅ Подписка на канал подтверждена!\n\n"
	if granted {
		text = fmt.Sprintf("✅ Спасибо за подписку на наш канал!\n\n🎁 Вам начислено %s.\n",
			common.FormatBalance(h.ledger.FreeTokens()))
	}
	text += economy.BalanceText(u, perMessage)

	rows := [][]tgbotapi.InlineKeyboardButton{reply.Button("💬 Начать диалог", payments.CallbackStartChat)}
	if !h.ledger.CanAfford(u) {
		rows = append(rows, reply.Button("💰 Пополнить Майндтокены", economy.CallbackBuyTokens))
	}
	h.reply.Show(t, text, reply.Keyboard(rows...))
}

// HandleDescription — описание бота (кнопка «О боте» и /help).
func (h *Handler) HandleDescription(t reply.Target) {
	text := DescriptionText(h.ledger.TokensPerMessage(), h.ledger.FreeTokens(), h.ledger.ReferralBonusTokens())
	h.reply.ShowMarkdown(t, text, reply.Keyboard(reply.Button("🔙 Назад", CallbackMainMenu)))
}
