package referral

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/bot/reply"
	"mindbot.ru/telegram-bot/internal/common"
	"mindbot.ru/telegram-bot/internal/features/economy"
)

// CallbackMenu — кнопка «Пригласить друга».
const CallbackMenu = "referral"

// Handler — реферальное меню и обработка ссылок.
type Handler struct {
	service     *Service
	ledger      *economy.Ledger
	reply       *reply.Sender
	botUsername string
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service, ledger *economy.Ledger, sender *reply.Sender, botUsername string) *Handler {
	return &Handler{service: service, ledger: ledger, reply: sender, botUsername: botUsername}
}

// HandleMenu показывает ссылку и счётчик приглашений.
func (h *Handler) HandleMenu(ctx context.Context, t reply.Target, userID int64) {
	code, err := h.service.GenerateReferralCode(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения реферального кода")
		h.reply.Show(t, "❌ Не удалось получить реферальную ссылку. Попробуйте позже.", nil)
		return
	}
	u, err := h.service.store.GetUser(ctx, userID)
	if err != nil || u == nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка чтения пользователя")
		return
	}

	bonus := h.ledger.ReferralBonusTokens()
	text := fmt.Sprintf(
		"👥 *Пригласите друзей и получите бонусы!*\n\n"+
			"За каждого приглашенного друга вы получите %s.\n\n"+
			"Ваша реферальная ссылка (нажмите, чтобы скопировать):\n"+
			"```%s```\n\n"+
			"Количество приглашенных: %d\n"+
			"Заработано токенов: %d",
		common.FormatBalance(bonus), Link(h.botUsername, code),
		u.ReferralCount, int64(u.ReferralCount)*bonus,
	)
	h.reply.ShowMarkdown(t, text, reply.Keyboard(reply.Button("🔙 Главное меню", economy.CallbackBackToMain)))
}

// HandleStartPayload обрабатывает /start ref_<code>. Вызывается после создания пользователя.
func (h *Handler) HandleStartPayload(ctx context.Context, chatID, userID int64, payload string) {
	code, ok := CodeFromStart(payload)
	if !ok {
		return
	}

	referrer, err := h.service.Apply(ctx, userID, code)
	if err != nil {
		if isRejection(err) {
			log.WithFields(log.Fields{"user_id": userID, "code": code}).WithError(err).Info("Реферальный код отклонён")
		} else {
			log.WithError(err).WithField("user_id", userID).Error("Ошибка обработки реферального кода")
		}
		return
	}
	if referrer == nil {
		return
	}

	h.reply.Send(chatID, "🎉 Поздравляем! Вы присоединились по реферальной ссылке.", nil)
	// Личный чат с пользователем совпадает с его ID
	h.reply.Send(referrer.ID, fmt.Sprintf(
		"👥 По вашей ссылке присоединился новый пользователь!\n\n🎁 Вам начислено %s.\n💎 Ваш баланс: %s.",
		common.FormatBalance(h.ledger.ReferralBonusTokens()), common.FormatBalance(referrer.Tokens),
	), nil)
}
