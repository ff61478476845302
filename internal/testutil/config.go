package testutil

import (
	"time"

	"mindbot.ru/telegram-bot/internal/config"
)

// Config — конфигурация со значениями по умолчанию для тестов.
func Config() *config.Config {
	return &config.Config{
		TelegramBotToken:    "TEST",
		BotUsername:         "mindtestbot",
		ChannelID:           "@mindchannel",
		ChannelURL:          "https://t.me/mindchannel",
		StoreDriver:         config.StoreDriverMemory,
		ChatMemoryBackend:   config.ChatMemoryRing,
		AITimeout:           time.Second,
		FreeTokens:          50,
		TokensPerMessage:    10,
		ReferralBonusTokens: 10,
		UserLocksEnabled:    true,
		GatewayTimeout:      time.Second,
		YooKassaReturnURL:   "https://t.me/mindtestbot",
		BotMaxInflight:      4,
		RateLimitRequests:   100,
		RateLimitWindow:     time.Minute,
		AdminIDs:            []int64{1000},
	}
}
