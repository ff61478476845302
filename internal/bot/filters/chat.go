// Package filters — проверки доступа до вызова обработчиков фич.
package filters

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// IsPrivate — бот отвечает только в личных чатах.
func IsPrivate(message *tgbotapi.Message) bool {
	if message == nil || message.Chat == nil {
		log.WithField("component", "ChatFilter").Warn("nil message/chat")
		return false
	}
	if message.From == nil {
		log.WithFields(log.Fields{
			"component": "ChatFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Warn("nil message.From (service/channel message?)")
		return false
	}
	if !message.Chat.IsPrivate() {
		log.WithFields(log.Fields{
			"component": "ChatFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Debug("deny: not a private chat")
		return false
	}
	return true
}

// ChannelFilter проверяет подписку пользователя на канал через getChatMember.
type ChannelFilter struct {
	bot       *tgbotapi.BotAPI
	channelID string
}

// NewChannelFilter создаёт проверку. channelID — числовой ID или @username канала.
func NewChannelFilter(bot *tgbotapi.BotAPI, channelID string) *ChannelFilter {
	return &ChannelFilter{bot: bot, channelID: strings.TrimSpace(channelID)}
}

// IsSubscribed — статус member, administrator или creator.
func (f *ChannelFilter) IsSubscribed(userID int64) (bool, error) {
	if f.bot == nil {
		return false, fmt.Errorf("bot is nil")
	}
	if f.channelID == "" {
		return false, fmt.Errorf("CHANNEL_ID не задан")
	}

	chat := tgbotapi.ChatConfigWithUser{UserID: userID}
	if id, err := strconv.ParseInt(f.channelID, 10, 64); err == nil {
		chat.ChatID = id
	} else {
		chat.SuperGroupUsername = f.channelID
	}

	cm, err := f.bot.GetChatMember(tgbotapi.GetChatMemberConfig{ChatConfigWithUser: chat})
	if err != nil {
		return false, fmt.Errorf("ошибка getChatMember: %w", err)
	}

	logger := log.WithFields(log.Fields{
		"component":  "ChannelFilter",
		"user_id":    userID,
		"channel_id": f.channelID,
		"tg_status":  cm.Status,
	})
	switch cm.Status {
	case "creator", "administrator", "member":
		logger.Debug("подписан на канал")
		return true, nil
	default:
		logger.Debug("не подписан на канал")
		return false, nil
	}
}
