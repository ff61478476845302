// Package reply — отправка и редактирование сообщений бота.
// Обработчики фич получают Sender вместо прямой работы с BotAPI.
package reply

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// Target — куда отвечать. MessageID != 0 означает «отредактировать
// сообщение с кнопкой», иначе отправляется новое сообщение.
type Target struct {
	ChatID    int64
	MessageID int
}

// Chat — ответ новым сообщением.
func Chat(chatID int64) Target {
	return Target{ChatID: chatID}
}

// Sender оборачивает BotAPI.
type Sender struct {
	api *tgbotapi.BotAPI
}

// New создаёт Sender.
func New(api *tgbotapi.BotAPI) *Sender {
	return &Sender{api: api}
}

// API возвращает исходный клиент (инвойсы, getChatMember).
func (s *Sender) API() *tgbotapi.BotAPI {
	return s.api
}

// Send отправляет новое сообщение. markup может быть nil.
func (s *Sender) Send(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	s.send(chatID, text, "", markup)
}

// SendMarkdown отправляет сообщение с разметкой Markdown.
func (s *Sender) SendMarkdown(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	s.send(chatID, text, tgbotapi.ModeMarkdown, markup)
}

func (s *Sender) send(chatID int64, text, parseMode string, markup *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = parseMode
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := s.api.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// Show редактирует сообщение цели или отправляет новое.
func (s *Sender) Show(t Target, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	s.show(t, text, "", markup)
}

// ShowMarkdown — Show с разметкой Markdown.
func (s *Sender) ShowMarkdown(t Target, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	s.show(t, text, tgbotapi.ModeMarkdown, markup)
}

func (s *Sender) show(t Target, text, parseMode string, markup *tgbotapi.InlineKeyboardMarkup) {
	if t.MessageID == 0 {
		s.send(t.ChatID, text, parseMode, markup)
		return
	}

	var edit tgbotapi.EditMessageTextConfig
	if markup != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(t.ChatID, t.MessageID, text, *markup)
	} else {
		edit = tgbotapi.NewEditMessageText(t.ChatID, t.MessageID, text)
	}
	edit.ParseMode = parseMode
	if _, err := s.api.Send(edit); err != nil {
		// «message is not modified» и удалённые сообщения — не повод молчать, отправим заново
		log.WithError(err).WithField("chat_id", t.ChatID).Debug("Не удалось отредактировать сообщение")
		s.send(t.ChatID, text, parseMode, markup)
	}
}

// Answer отвечает на callback-запрос (убирает «часики» на кнопке).
func (s *Sender) Answer(callbackID, text string) {
	if _, err := s.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		log.WithError(err).Debug("Ошибка ответа на callback")
	}
}

// AnswerPreCheckout подтверждает или отклоняет оплату (Telegram ждёт ответ 10 секунд).
func (s *Sender) AnswerPreCheckout(queryID string, ok bool, errorMessage string) {
	cfg := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: queryID, OK: ok}
	if !ok {
		cfg.ErrorMessage = errorMessage
	}
	if _, err := s.api.Request(cfg); err != nil {
		log.WithError(err).WithField("query_id", queryID).Error("Ошибка ответа на pre-checkout")
	}
}

// Delete удаляет сообщение (например, с паролем).
func (s *Sender) Delete(chatID int64, messageID int) {
	if _, err := s.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Debug("Не удалось удалить сообщение")
	}
}

// Typing показывает индикатор «печатает...».
func (s *Sender) Typing(chatID int64) {
	if _, err := s.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		log.WithError(err).Debug("Ошибка отправки chat action")
	}
}

// Keyboard собирает inline-клавиатуру из рядов.
func Keyboard(rows ...[]tgbotapi.InlineKeyboardButton) *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

// Button — ряд из одной callback-кнопки.
func Button(text, data string) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(text, data))
}

// URLButton — ряд из одной кнопки-ссылки.
func URLButton(text, url string) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(text, url))
}
