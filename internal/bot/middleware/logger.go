// Package middleware содержит промежуточные обработчики для логирования,
// восстановления после паники и rate-limiting.
package middleware

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/common"
)

const logTextLimit = 50

// LogMessage логирует входящее сообщение: user_id, chat_id, username и начало текста.
func LogMessage(message *tgbotapi.Message) {
	if message == nil || message.From == nil || message.Chat == nil {
		return
	}

	log.WithFields(log.Fields{
		"user_id":  message.From.ID,
		"chat_id":  message.Chat.ID,
		"username": message.From.UserName,
		"text":     common.Truncate(message.Text, logTextLimit),
	}).Debug("Входящее сообщение")
}

// LogCallback логирует нажатие inline-кнопки.
func LogCallback(q *tgbotapi.CallbackQuery) {
	if q == nil || q.From == nil {
		return
	}

	log.WithFields(log.Fields{
		"user_id":  q.From.ID,
		"username": q.From.UserName,
		"data":     q.Data,
	}).Debug("Нажатие кнопки")
}
