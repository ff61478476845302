package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/bot/reply"
	"mindbot.ru/telegram-bot/internal/common"
	"mindbot.ru/telegram-bot/internal/dialog"
	"mindbot.ru/telegram-bot/internal/features/economy"
	"mindbot.ru/telegram-bot/internal/store"
)

// CallbackForm — кнопка «Оставить отзыв».
const CallbackForm = "leave_review"

// Тексты
const (
	TextForm = "📝 *Оставьте свой отзыв*\n\n" +
		"Пожалуйста, напишите ваше мнение о работе бота.\n" +
		"Можно начать с оценки от 1 до 5, например: «5 Очень помог».\n" +
		"Ваш отзыв поможет нам стать лучше!"
	TextThanks = "🙏 *Спасибо за ваш отзыв!*\n\n" +
		"Мы ценим ваше мнение и постоянно работаем над улучшением бота."
)

// Handler — форма отзыва и приём текста.
type Handler struct {
	service *Service
	dialogs *dialog.Store
	reply   *reply.Sender
}

// NewHandler создаёт обработчик отзывов.
func NewHandler(service *Service, dialogs *dialog.Store, sender *reply.Sender) *Handler {
	return &Handler{service: service, dialogs: dialogs, reply: sender}
}

// HandleForm показывает форму и ждёт текст отзыва.
func (h *Handler) HandleForm(t reply.Target, userID int64) {
	h.dialogs.Set(userID, dialog.AwaitingReview)
	h.reply.ShowMarkdown(t, TextForm, reply.Keyboard(reply.Button("🔙 Назад", economy.CallbackBackToMain)))
}

// HandleText принимает текст, если пользователь в AwaitingReview.
// false — сообщение не отзыв, его обрабатывает чат.
func (h *Handler) HandleText(ctx context.Context, chatID, userID int64, text string) bool {
	if h.dialogs.Get(userID) != dialog.AwaitingReview {
		return false
	}

	_, err := h.service.Create(ctx, userID, text)
	if errors.Is(err, common.ErrEmptyReview) {
		h.reply.Send(chatID, "⚠️ Отзыв не может быть пустым. Напишите, пожалуйста, пару слов.", nil)
		return true
	}
	h.dialogs.Clear(userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка сохранения отзыва")
		h.reply.Send(chatID, "❌ Не удалось сохранить отзыв. Попробуйте позже.", nil)
		return true
	}

	h.reply.SendMarkdown(chatID, TextThanks, reply.Keyboard(reply.Button("🔙 В главное меню", economy.CallbackBackToMain)))
	return true
}

// FormatList — список отзывов для админа.
func FormatList(reviews []*store.Review) string {
	if len(reviews) == 0 {
		return "📭 Отзывов пока нет."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📝 Последние отзывы (%d):\n", len(reviews))
	for _, r := range reviews {
		b.WriteString("\n")
		fmt.Fprintf(&b, "👤 %d · %s", r.UserID, common.FormatDateTime(r.CreatedAt))
		if r.Rating != nil {
			fmt.Fprintf(&b, " · %s", strings.Repeat("⭐", *r.Rating))
		}
		fmt.Fprintf(&b, "\n%s\n", common.Truncate(r.Text, 300))
	}
	return b.String()
}
