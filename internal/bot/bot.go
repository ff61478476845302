// Package bot содержит цикл получения апдейтов и маршрутизацию
// сообщений, кнопок и платёжных событий по обработчикам фич.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/bot/filters"
	"mindbot.ru/telegram-bot/internal/bot/middleware"
	"mindbot.ru/telegram-bot/internal/bot/reply"
	"mindbot.ru/telegram-bot/internal/common"
	"mindbot.ru/telegram-bot/internal/config"
	"mindbot.ru/telegram-bot/internal/dialog"
	"mindbot.ru/telegram-bot/internal/features/admin"
	"mindbot.ru/telegram-bot/internal/features/chat"
	"mindbot.ru/telegram-bot/internal/features/economy"
	"mindbot.ru/telegram-bot/internal/features/members"
	"mindbot.ru/telegram-bot/internal/features/payments"
	"mindbot.ru/telegram-bot/internal/features/referral"
	"mindbot.ru/telegram-bot/internal/features/reviews"
	"mindbot.ru/telegram-bot/internal/metrics"
)

const textUnknownCommand = "🤔 Неизвестная команда. Список команд: /help"

// Handlers — обработчики фич, которые вызывает роутер.
type Handlers struct {
	Members  *members.Handler
	Economy  *economy.Handler
	Payments *payments.Handler
	Chat     *chat.Handler
	Referral *referral.Handler
	Reviews  *reviews.Handler
	Admin    *admin.Handler
}

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api *tgbotapi.BotAPI
	cfg *config.Config

	h       Handlers
	dialogs *dialog.Store
	reply   *reply.Sender

	rateLimiter *middleware.RateLimiter
	parser      *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
	// очередь апдейтов из вебхука
	webhook chan tgbotapi.Update
	// закрывается, когда Start вернул управление
	stopped  chan struct{}
	stopOnce sync.Once
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(api *tgbotapi.BotAPI, cfg *config.Config, h Handlers, dialogs *dialog.Store, sender *reply.Sender) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:         api,
		cfg:         cfg,
		h:           h,
		dialogs:     dialogs,
		reply:       sender,
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		parser:      NewCommandParser("/"),
		inflight:    make(chan struct{}, maxInFlight),
		webhook:     make(chan tgbotapi.Update, maxInFlight),
		stopped:     make(chan struct{}),
	}
}

// SetupDelivery регистрирует вебхук в Telegram или снимает его перед long polling:
// при установленном вебхуке getUpdates не работает.
func (b *Bot) SetupDelivery() error {
	if !b.cfg.UseWebhook() {
		if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			return fmt.Errorf("ошибка снятия вебхука: %w", err)
		}
		return nil
	}

	params := tgbotapi.Params{"url": b.cfg.WebhookEndpoint()}
	params.AddNonEmpty("secret_token", b.cfg.WebhookSecret)
	params.AddBool("drop_pending_updates", true)
	// Telegram принимает max_connections от 1 до 100
	params.AddNonZero("max_connections", min(cap(b.inflight), 100))
	if _, err := b.api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("ошибка регистрации вебхука: %w", err)
	}
	log.WithField("path", b.cfg.WebhookPath).Info("Вебхук Telegram зарегистрирован")
	return nil
}

// Push ставит апдейт из вебхука в очередь. Ждёт место не дольше ctx.
func (b *Bot) Push(ctx context.Context, update tgbotapi.Update) error {
	select {
	case <-b.stopped:
		return common.ErrBotStopped
	default:
	}

	select {
	case b.webhook <- update:
		return nil
	case <-b.stopped:
		return common.ErrBotStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start запускает приём апдейтов: вебхук в production, иначе long polling.
// Блокируется до отмены ctx.
func (b *Bot) Start(ctx context.Context) {
	defer b.stopOnce.Do(func() { close(b.stopped) })
	defer b.rateLimiter.Close()

	if b.cfg.UseWebhook() {
		log.WithField("max_inflight", cap(b.inflight)).Info("Бот запущен, апдейты приходят вебхуком")
		b.serve(ctx, b.webhook)
		return
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	log.WithFields(log.Fields{
		"max_inflight": cap(b.inflight),
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	b.serve(ctx, updates)
}

// serve раздаёт апдейты обработчикам с лимитом параллелизма.
func (b *Bot) serve(ctx context.Context, updates <-chan tgbotapi.Update) {
	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			go func(upd tgbotapi.Update) {
				defer func() { <-b.inflight }()
				b.HandleUpdate(ctx, upd)
			}(update)
		}
	}
}

// HandleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic(update.UpdateID)

	switch {
	case update.PreCheckoutQuery != nil:
		metrics.UpdatesTotal.WithLabelValues("pre_checkout_query").Inc()
		b.h.Payments.HandlePreCheckout(ctx, update.PreCheckoutQuery)
	case update.CallbackQuery != nil:
		metrics.UpdatesTotal.WithLabelValues("callback_query").Inc()
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		metrics.UpdatesTotal.WithLabelValues("message").Inc()
		b.handleMessage(ctx, update.Message)
	default:
		metrics.UpdatesTotal.WithLabelValues("other").Inc()
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil || !filters.IsPrivate(message) {
		return
	}
	chatID := message.Chat.ID
	userID := message.From.ID

	// Оплата через Telegram приходит сервисным сообщением
	if message.SuccessfulPayment != nil {
		b.h.Payments.HandleSuccessfulPayment(ctx, chatID, userID, message.SuccessfulPayment)
		return
	}
	if message.Text == "" {
		return
	}

	middleware.LogMessage(message)

	if !b.rateLimiter.Allow(userID) {
		log.WithField("user_id", userID).Debug("rate limited")
		return
	}

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	if isCommand {
		log.WithFields(log.Fields{
			"cmd":  cmd,
			"args": args,
		}).Debug("routing command")
		b.routeCommand(ctx, message, cmd, args)
		return
	}

	if b.h.Admin.HandleText(ctx, chatID, userID, message.Text) {
		return
	}
	if b.h.Reviews.HandleText(ctx, chatID, userID, message.Text) {
		return
	}
	b.h.Chat.HandleMessage(ctx, chatID, userID, message.Text)
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, message *tgbotapi.Message, cmd string, args []string) {
	chatID := message.Chat.ID
	userID := message.From.ID

	switch cmd {
	case "start":
		b.dialogs.Clear(userID)
		b.h.Members.HandleStart(ctx, chatID, message.From, strings.Join(args, " "))
	case "help":
		b.h.Members.HandleDescription(reply.Chat(chatID))
	case "balance":
		b.h.Economy.HandleBalance(ctx, chatID, userID)
	case "admin":
		b.h.Admin.HandleAdmin(ctx, chatID, userID)
	case "login":
		b.h.Admin.HandleLogin(ctx, chatID, userID, message.MessageID, message.Text)
	case "logout":
		b.h.Admin.HandleLogout(ctx, chatID, userID)
	case "user_id":
		b.h.Admin.HandleGiveTokens(ctx, chatID, userID, message.Text)
	case "unlimited":
		b.h.Admin.HandleUnlimited(ctx, chatID, userID, message.Text)
	case "reviews":
		b.h.Admin.HandleReviews(ctx, chatID, userID)
	default:
		b.reply.Send(chatID, textUnknownCommand, nil)
	}
}

// handleCallback маршрутизирует нажатия inline-кнопок.
func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	// Снимаем «часики» с кнопки сразу
	b.reply.Answer(q.ID, "")

	if q.From == nil || q.Message == nil || q.Message.Chat == nil || !q.Message.Chat.IsPrivate() {
		return
	}
	if !b.rateLimiter.Allow(q.From.ID) {
		log.WithField("user_id", q.From.ID).Debug("rate limited")
		return
	}

	middleware.LogCallback(q)

	userID := q.From.ID
	t := reply.Target{ChatID: q.Message.Chat.ID, MessageID: q.Message.MessageID}
	data := q.Data

	switch {
	case data == payments.CallbackStartChat:
		b.h.Chat.HandleStartChat(ctx, t, userID)
	case data == economy.CallbackBuyTokens:
		b.h.Economy.HandleBuyTokens(t)
	case strings.HasPrefix(data, economy.CallbackSelectTariff):
		b.h.Payments.HandleSelectTariff(ctx, t, userID, strings.TrimPrefix(data, economy.CallbackSelectTariff))
	case strings.HasPrefix(data, payments.CallbackCheckPayment):
		b.h.Payments.HandleCheckPayment(ctx, t, userID, strings.TrimPrefix(data, payments.CallbackCheckPayment))
	case data == economy.CallbackBackToMain, data == members.CallbackMainMenu:
		b.dialogs.Clear(userID)
		b.h.Members.HandleMainMenu(ctx, t, q.From)
	case data == members.CallbackCheckSubscription:
		b.h.Members.HandleCheckSubscription(ctx, t, userID)
	case data == members.CallbackDescription:
		b.h.Members.HandleDescription(t)
	case data == referral.CallbackMenu:
		b.h.Referral.HandleMenu(ctx, t, userID)
	case data == reviews.CallbackForm:
		b.h.Reviews.HandleForm(t, userID)
	case strings.HasPrefix(data, "admin_"):
		b.h.Admin.HandleCallback(ctx, t, userID, data)
	default:
		log.WithFields(log.Fields{"user_id": userID, "data": data}).Warn("Неизвестная кнопка")
	}
}

// CommandParser разбирает команды с заданными префиксами.
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser(prefixes ...string) *CommandParser {
	if len(prefixes) == 0 {
		prefixes = []string{"/"}
	}
	return &CommandParser{validPrefixes: prefixes}
}

// ParseCommand разбирает текст на команду и аргументы.
// Суффикс @botname у команды отбрасывается: /start@mindbot → start.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}

	if !hasPrefix {
		return "", nil, false
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}

	command := strings.ToLower(parts[0])
	if i := strings.IndexByte(command, '@'); i >= 0 {
		command = command[:i]
	}
	if command == "" {
		return "", nil, false
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	return command, args, true
}
