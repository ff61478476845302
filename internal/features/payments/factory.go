package payments

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/config"
	"mindbot.ru/telegram-bot/internal/features/payments/yookassa"
	"mindbot.ru/telegram-bot/internal/metrics"
)

// NewBackend выбирает платёжный бэкенд. Вызывается один раз при старте.
//
// Порядок: TEST_MODE → mock; TELEGRAM_PROVIDER_TOKEN → telegram;
// ключи ЮKassa и успешная инициализация клиента → yookassa; иначе free.
func NewBackend(cfg *config.Config, deps Deps, api *tgbotapi.BotAPI) Backend {
	var (
		b      Backend
		reason string
	)

	switch {
	case cfg.TestMode:
		b, reason = NewMockBackend(deps, cfg.BotUsername), "TEST_MODE=true"
	case cfg.TelegramProviderToken != "":
		b, reason = NewTelegramBackend(deps, api, cfg.TelegramProviderToken), "задан TELEGRAM_PROVIDER_TOKEN"
	default:
		b, reason = newGatewayOrFree(cfg, deps)
	}

	log.WithFields(log.Fields{
		"backend": b.Name(),
		"reason":  reason,
	}).Info("💰 Выбран платёжный бэкенд")
	if b.Name() == BackendFree {
		log.Warn("Платежи работают в бесплатном режиме: любой тариф подтверждается без оплаты")
	}
	metrics.PaymentBackendInfo.WithLabelValues(b.Name()).Set(1)
	return b
}

func newGatewayOrFree(cfg *config.Config, deps Deps) (Backend, string) {
	if cfg.YooKassaShopID == "" && cfg.YooKassaSecretKey == "" {
		return NewFreeBackend(deps, cfg.FreePaymentDelay), "платёжные ключи не заданы"
	}

	client, err := yookassa.NewClient(cfg.YooKassaAPIURL, cfg.YooKassaShopID, cfg.YooKassaSecretKey, cfg.GatewayTimeout)
	if err != nil {
		log.WithError(err).Warn("Ошибка инициализации ЮKassa, переключаемся на бесплатный платёжный сервис")
		return NewFreeBackend(deps, cfg.FreePaymentDelay), "клиент ЮKassa не инициализирован"
	}
	return NewYooKassaBackend(deps, client, cfg.YooKassaReturnURL), "заданы YUKASSA_SHOP_ID и YUKASSA_SECRET_KEY"
}
