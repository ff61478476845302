// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: хранилище, память диалога, платёжный бэкенд,
// сервисы, обработчики, бот, планировщик и HTTP-сервер.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/bot"
	"mindbot.ru/telegram-bot/internal/bot/filters"
	"mindbot.ru/telegram-bot/internal/bot/reply"
	"mindbot.ru/telegram-bot/internal/config"
	"mindbot.ru/telegram-bot/internal/db/memory"
	"mindbot.ru/telegram-bot/internal/db/postgres"
	"mindbot.ru/telegram-bot/internal/dialog"
	"mindbot.ru/telegram-bot/internal/features/admin"
	"mindbot.ru/telegram-bot/internal/features/chat"
	"mindbot.ru/telegram-bot/internal/features/economy"
	"mindbot.ru/telegram-bot/internal/features/members"
	"mindbot.ru/telegram-bot/internal/features/payments"
	"mindbot.ru/telegram-bot/internal/features/referral"
	"mindbot.ru/telegram-bot/internal/features/reviews"
	"mindbot.ru/telegram-bot/internal/httpserver"
	"mindbot.ru/telegram-bot/internal/jobs"
	"mindbot.ru/telegram-bot/internal/locks"
	"mindbot.ru/telegram-bot/internal/store"
)

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	Scheduler *jobs.Scheduler
	HTTP      *httpserver.Server
	BotAPI    *tgbotapi.BotAPI

	// DB и Redis равны nil, если соответствующий драйвер не выбран
	DB    *pgxpool.Pool
	Redis *redis.Client
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	// === 1. Хранилище ===
	st, sessions, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Пользователи, получившие бонус до появления флага
	if n, err := st.BackfillSubscriptionBonus(ctx); err != nil {
		log.WithError(err).Warn("Не удалось проставить has_received_subscription_bonus")
	} else if n > 0 {
		log.WithField("updated", n).Info("Проставлен has_received_subscription_bonus")
	}

	// === 2. Telegram Bot API ===
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	botAPI.Debug = cfg.AppEnv == "development" && cfg.AppLogLevel == "trace"
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)
	a.BotAPI = botAPI
	if cfg.BotUsername == "" {
		cfg.BotUsername = botAPI.Self.UserName
	}

	// === 3. Память диалога и AI-агент ===
	window := a.chatWindow(ctx, cfg)
	session := chat.NewSession(window, chat.NewAgent(cfg.AIAgentURL, cfg.AIAgentID, cfg.AITimeout))

	// === 4. Сервисы ===
	sender := reply.New(botAPI)
	dialogs := dialog.NewStore(dialog.DefaultTTL)
	ledger := economy.NewLedger(st, locks.NewKeyed[int64](cfg.UserLocksEnabled), cfg)
	backend := payments.NewBackend(cfg, payments.Deps{
		Store:        st,
		Ledger:       ledger,
		PaymentLocks: locks.NewKeyed[string](true),
	}, botAPI)

	referralService := referral.NewService(st, ledger)
	reviewsService := reviews.NewService(st)
	memberService := members.NewService(st, ledger, filters.NewChannelFilter(botAPI, cfg.ChannelID), cfg.ChannelID, cfg.ChannelURL)
	adminService := admin.NewService(sessions, st, ledger, cfg)

	// === 5. Обработчики ===
	referralHandler := referral.NewHandler(referralService, ledger, sender, cfg.BotUsername)
	handlers := bot.Handlers{
		Members:  members.NewHandler(memberService, ledger, referralHandler, sender),
		Economy:  economy.NewHandler(ledger, st, sender),
		Payments: payments.NewHandler(backend, st, ledger, sender),
		Chat:     chat.NewHandler(st, ledger, session, sender),
		Referral: referralHandler,
		Reviews:  reviews.NewHandler(reviewsService, dialogs, sender),
		Admin:    admin.NewHandler(adminService, reviewsService, dialogs, sender),
	}

	// === 6. Бот, планировщик, HTTP ===
	a.Bot = bot.New(botAPI, cfg, handlers, dialogs, sender)
	if err := a.Bot.SetupDelivery(); err != nil {
		a.Close()
		return nil, err
	}
	a.Scheduler = jobs.NewScheduler(cfg.AppTimezone, st, backend, adminService, dialogs, cfg.AdminIDs,
		func(userID int64, text string) { sender.Send(userID, text, nil) })
	if cfg.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	var httpOpts []httpserver.Option
	if cfg.UseWebhook() {
		httpOpts = append(httpOpts, httpserver.WithTelegramWebhook(cfg.WebhookPath, cfg.WebhookSecret, a.Bot))
	}
	a.HTTP = httpserver.New(cfg.HTTPAddr, backend, a.healthCheck, httpOpts...)

	return a, nil
}

// openStore подключает хранилище по STORE_DRIVER.
func (a *App) openStore(ctx context.Context, cfg *config.Config) (store.Store, admin.SessionStore, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn("STORE_DRIVER=memory: данные не переживут перезапуск")
		return memory.New(), admin.NewMemorySessions(), nil

	default:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("ошибка подключения к БД: %w", err)
		}
		if err := postgres.ApplyMigrations(ctx, pool, postgres.Migrations); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ошибка миграций: %w", err)
		}
		a.DB = pool
		return postgres.NewStore(pool), admin.NewRepository(pool), nil
	}
}

// chatWindow выбирает хранилище окна диалога по CHAT_MEMORY_BACKEND.
// Недоступный Redis не роняет бота: окно уходит в память процесса.
func (a *App) chatWindow(ctx context.Context, cfg *config.Config) chat.Window {
	if cfg.ChatMemoryBackend != config.ChatMemoryRedis {
		return chat.NewRingWindow()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).WithField("addr", cfg.RedisAddr).Error("Redis недоступен, память диалога хранится в процессе")
		rdb.Close()
		return chat.NewRingWindow()
	}

	log.WithField("addr", cfg.RedisAddr).Info("Память диалога хранится в Redis")
	a.Redis = rdb
	return chat.NewRedisWindow(rdb, cfg.ChatMemoryTTL)
}

func (a *App) healthCheck(ctx context.Context) error {
	if a.DB != nil {
		if err := a.DB.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close освобождает соединения с базой и Redis.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.WithError(err).Warn("Ошибка закрытия Redis")
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
