// Package admin — handlers.go обрабатывает взаимодействие с админ-панелью.
// Панель работает через inline-кнопки в личных сообщениях.
// Поток: /admin → (вход по паролю) → меню → действие → команда с аргументами.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/bot/reply"
	"mindbot.ru/telegram-bot/internal/common"
	"mindbot.ru/telegram-bot/internal/dialog"
	"mindbot.ru/telegram-bot/internal/features/reviews"
)

// Тексты
const (
	textNoAccess     = "⛔ У вас нет доступа к админ-панели."
	textNeedLogin    = "🔐 Введите пароль для доступа к админ-панели:\n/login ПАРОЛЬ"
	textMenu         = "🔐 Панель администратора"
	textTokensPrompt = "👤 Введите ID пользователя, которому хотите выдать токены.\n\n" +
		"Формат: /user_id ПОЛЬЗОВАТЕЛЬ_ID КОЛИЧЕСТВО_ТОКЕНОВ\n" +
		"Например: /user_id 123456789 100"
	textUnlimitedPrompt = "👤 Введите ID пользователя, которому хотите выдать безлимитный тариф.\n\n" +
		"Формат: /unlimited ПОЛЬЗОВАТЕЛЬ_ID 1/0\n" +
		"1 - включить безлимит, 0 - выключить\n" +
		"Например: /unlimited 123456789 1"
	textTokensFormat    = "⚠️ Неверный формат команды. Используйте: /user_id ID_ПОЛЬЗОВАТЕЛЯ КОЛИЧЕСТВО_ТОКЕНОВ"
	textUnlimitedFormat = "⚠️ Неверный формат команды. Используйте: /unlimited ID_ПОЛЬЗОВАТЕЛЯ 1/0"

	reviewsLimit = 10
)

// Handler обрабатывает админ-команды.
type Handler struct {
	service *Service
	reviews *reviews.Service
	dialogs *dialog.Store
	reply   *reply.Sender
}

// NewHandler создаёт обработчик админ-панели.
func NewHandler(service *Service, reviewsService *reviews.Service, dialogs *dialog.Store, sender *reply.Sender) *Handler {
	return &Handler{service: service, reviews: reviewsService, dialogs: dialogs, reply: sender}
}

// MenuKeyboard — кнопки админ-панели.
func MenuKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return reply.Keyboard(
		reply.Button("📊 Статистика", CallbackStats),
		reply.Button("🎁 Выдать токены пользователю", CallbackGiveTokens),
		reply.Button("⭐ Выдать безлимит пользователю", CallbackGiveUnlimited),
	)
}

func backKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return reply.Keyboard(reply.Button("🔙 Назад", CallbackBack))
}

// authorize проверяет доступ и сам отвечает при отказе.
func (h *Handler) authorize(ctx context.Context, t reply.Target, userID int64) bool {
	err := h.service.Authorize(ctx, userID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, common.ErrWrongPassword):
		h.reply.Show(t, textNeedLogin, nil)
	default:
		log.WithField("user_id", userID).Warn("Попытка доступа к админ-панели")
		h.reply.Show(t, textNoAccess, nil)
	}
	return false
}

// HandleAdmin обрабатывает /admin.
func (h *Handler) HandleAdmin(ctx context.Context, chatID, userID int64) {
	if !h.authorize(ctx, reply.Chat(chatID), userID) {
		return
	}
	h.dialogs.Clear(userID)
	h.reply.Send(chatID, textMenu, MenuKeyboard())
}

// HandleLogin обрабатывает /login <пароль>. Сообщение с паролем удаляется.
func (h *Handler) HandleLogin(ctx context.Context, chatID, userID int64, messageID int, text string) {
	if !h.service.IsAdmin(userID) {
		h.reply.Send(chatID, textNoAccess, nil)
		return
	}
	if messageID != 0 {
		h.reply.Delete(chatID, messageID)
	}
	if !h.service.PasswordRequired() {
		h.reply.Send(chatID, textMenu, MenuKeyboard())
		return
	}

	args := commandArgs(text)
	if len(args) != 1 {
		h.reply.Send(chatID, textNeedLogin, nil)
		return
	}

	if err := h.service.VerifyPassword(ctx, userID, args[0]); err != nil {
		switch {
		case errors.Is(err, common.ErrWrongPassword), errors.Is(err, common.ErrTooManyAttempts):
			h.reply.Send(chatID, "❌ "+err.Error(), nil)
		default:
			log.WithError(err).WithField("user_id", userID).Error("Ошибка входа в админ-панель")
			h.reply.Send(chatID, "❌ Ошибка входа. Попробуйте позже.", nil)
		}
		return
	}

	h.reply.Send(chatID, "✅ Аутентификация успешна!", nil)
	h.reply.Send(chatID, textMenu, MenuKeyboard())
}

// HandleLogout обрабатывает /logout.
func (h *Handler) HandleLogout(ctx context.Context, chatID, userID int64) {
	if !h.service.IsAdmin(userID) {
		return
	}
	if err := h.service.Logout(ctx, userID); err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка завершения админ-сессии")
	}
	h.dialogs.Clear(userID)
	h.reply.Send(chatID, "👋 Сессия администратора завершена.", nil)
}

// HandleCallback обрабатывает кнопки admin_*.
func (h *Handler) HandleCallback(ctx context.Context, t reply.Target, userID int64, data string) {
	if !h.authorize(ctx, t, userID) {
		return
	}

	switch data {
	case CallbackStats:
		h.reply.Show(t, h.statsText(ctx), backKeyboard())
	case CallbackGiveTokens:
		h.dialogs.Set(userID, dialog.AwaitingAdminTargetTokens)
		h.reply.Show(t, textTokensPrompt, backKeyboard())
	case CallbackGiveUnlimited:
		h.dialogs.Set(userID, dialog.AwaitingAdminTargetUnlimited)
		h.reply.Show(t, textUnlimitedPrompt, backKeyboard())
	case CallbackBack:
		h.dialogs.Clear(userID)
		h.reply.Show(t, textMenu, MenuKeyboard())
	default:
		log.WithField("data", data).Warn("Неизвестная кнопка админ-панели")
	}
}

func (h *Handler) statsText(ctx context.Context) string {
	stats, err := h.service.Stats(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка при получении статистики")
		return "❌ Ошибка при получении статистики. Проверьте логи сервера."
	}
	return StatsText(stats)
}

// HandleGiveTokens обрабатывает /user_id <id> <n>.
func (h *Handler) HandleGiveTokens(ctx context.Context, chatID, userID int64, text string) {
	if !h.authorize(ctx, reply.Chat(chatID), userID) {
		return
	}
	h.dialogs.Clear(userID)

	targetID, amount, err := ParseGiveTokens(text)
	if err != nil {
		h.reply.Send(chatID, textTokensFormat, nil)
		return
	}

	u, err := h.service.GiveTokens(ctx, targetID, amount)
	switch {
	case errors.Is(err, common.ErrUserNotFound):
		h.reply.Send(chatID, fmt.Sprintf("⚠️ Пользователь с ID %d не найден.", targetID), nil)
		return
	case err != nil:
		log.WithError(err).WithField("target_id", targetID).Error("Ошибка выдачи токенов")
		h.reply.Send(chatID, "❌ Не удалось выдать токены. Проверьте логи сервера.", nil)
		return
	}

	log.WithFields(log.Fields{"admin_id": userID, "target_id": targetID, "amount": amount}).Info("Админ выдал токены")
	h.reply.Send(chatID, fmt.Sprintf(
		"✅ Пользователю %d выдано %s.\nТекущий баланс: %s.",
		targetID, common.FormatBalance(amount), common.FormatBalance(u.Tokens),
	), nil)
}

// HandleUnlimited обрабатывает /unlimited <id> 1|0.
func (h *Handler) HandleUnlimited(ctx context.Context, chatID, userID int64, text string) {
	if !h.authorize(ctx, reply.Chat(chatID), userID) {
		return
	}
	h.dialogs.Clear(userID)

	targetID, unlimited, err := ParseUnlimited(text)
	if err != nil {
		h.reply.Send(chatID, textUnlimitedFormat, nil)
		return
	}

	_, err = h.service.SetUnlimited(ctx, targetID, unlimited)
	switch {
	case errors.Is(err, common.ErrUserNotFound):
		h.reply.Send(chatID, fmt.Sprintf("⚠️ Пользователь с ID %d не найден.", targetID), nil)
		return
	case err != nil:
		log.WithError(err).WithField("target_id", targetID).Error("Ошибка изменения безлимита")
		h.reply.Send(chatID, "❌ Не удалось изменить безлимит. Проверьте логи сервера.", nil)
		return
	}

	status := "выключен"
	if unlimited {
		status = "включен"
	}
	log.WithFields(log.Fields{"admin_id": userID, "target_id": targetID, "unlimited": unlimited}).Info("Админ изменил безлимит")
	h.reply.Send(chatID, fmt.Sprintf("✅ Для пользователя %d безлимитный тариф %s.", targetID, status), nil)
}

// HandleReviews обрабатывает /reviews: последние отзывы.
func (h *Handler) HandleReviews(ctx context.Context, chatID, userID int64) {
	if !h.authorize(ctx, reply.Chat(chatID), userID) {
		return
	}
	list, err := h.reviews.Latest(ctx, reviewsLimit)
	if err != nil {
		log.WithError(err).Error("Ошибка чтения отзывов")
		h.reply.Send(chatID, "❌ Ошибка при получении отзывов.", nil)
		return
	}
	h.reply.Send(chatID, reviews.FormatList(list), nil)
}

// HandleText принимает аргументы без команды после нажатия
// «Выдать токены» или «Выдать безлимит». false — сообщение не для админки.
func (h *Handler) HandleText(ctx context.Context, chatID, userID int64, text string) bool {
	if strings.HasPrefix(strings.TrimSpace(text), "/") {
		return false
	}
	switch h.dialogs.Get(userID) {
	case dialog.AwaitingAdminTargetTokens:
		h.HandleGiveTokens(ctx, chatID, userID, text)
		return true
	case dialog.AwaitingAdminTargetUnlimited:
		h.HandleUnlimited(ctx, chatID, userID, text)
		return true
	}
	return false
}
