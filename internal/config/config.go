// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Драйверы хранилища и бэкенды памяти диалога.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	ChatMemoryRing  = "memory"
	ChatMemoryRedis = "redis"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	TelegramBotToken string  `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	BotUsername      string  `envconfig:"BOT_USERNAME" default:"tarodevruslanbot"`
	AdminIDsRaw      string  `envconfig:"ADMIN_IDS" default:""`
	AdminIDs         []int64 `envconfig:"-"` // заполним вручную

	// Канал, подписка на который даёт бонус
	ChannelID  string `envconfig:"CHANNEL_ID" default:""`
	ChannelURL string `envconfig:"CHANNEL_URL" default:"https://t.me/bilalovai"`

	// --- Storage ---
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`

	// Дефолт "postgres" (имя сервиса в docker-compose), для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"botuser"`
	DBPassword string `envconfig:"DB_PASSWORD" default:""`
	DBName     string `envconfig:"DB_NAME" default:"psycholog_bot"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Chat memory ---
	ChatMemoryBackend string        `envconfig:"CHAT_MEMORY_BACKEND" default:"memory"`
	RedisAddr         string        `envconfig:"REDIS_ADDR" default:"redis:6379"`
	RedisPassword     string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB           int           `envconfig:"REDIS_DB" default:"0"`
	ChatMemoryTTL     time.Duration `envconfig:"CHAT_MEMORY_TTL" default:"72h"`

	// --- AI agent ---
	AIAgentURL string        `envconfig:"AI_AGENT_URL" default:"https://api.bilalov.ai/api/message"`
	AIAgentID  string        `envconfig:"AI_AGENT_ID" default:"ed3ca89f25ba41b1a5c6"`
	AITimeout  time.Duration `envconfig:"AI_TIMEOUT" default:"30s"`

	// --- Economy ---
	FreeTokens          int64 `envconfig:"FREE_TOKENS" default:"50"`
	TokensPerMessage    int64 `envconfig:"TOKENS_PER_MESSAGE" default:"10"`
	ReferralBonusTokens int64 `envconfig:"REFERRAL_BONUS_TOKENS" default:"10"`
	// Сериализация операций с балансом одного пользователя внутри процесса
	UserLocksEnabled bool `envconfig:"USER_LOCKS_ENABLED" default:"true"`

	// --- Payments ---
	TestMode              bool          `envconfig:"TEST_MODE" default:"false"`
	TelegramProviderToken string        `envconfig:"TELEGRAM_PROVIDER_TOKEN" default:""`
	YooKassaShopID        string        `envconfig:"YUKASSA_SHOP_ID" default:""`
	YooKassaSecretKey     string        `envconfig:"YUKASSA_SECRET_KEY" default:""`
	YooKassaReturnURL     string        `envconfig:"YUKASSA_RETURN_URL" default:"https://t.me/your_bot_name"`
	YooKassaAPIURL        string        `envconfig:"YUKASSA_API_URL" default:"https://api.yookassa.ru/v3"`
	GatewayTimeout        time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"30s"`
	FreePaymentDelay      time.Duration `envconfig:"FREE_PAYMENT_DELAY" default:"0s"`

	// --- HTTP (вебхуки платёжки + метрики) ---
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8000"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Europe/Moscow"`

	// --- Bot runtime ---
	// Сколько апдейтов обрабатываем параллельно. Иначе "go на каждый апдейт" = утечка памяти при флуде.
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	// Таймаут long polling (секунды)
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// Вебхук Telegram: включается при APP_ENV=production и непустом WEBHOOK_URL.
	// Telegram стучится на WEBHOOK_URL+WEBHOOK_PATH, сервер слушает HTTP_ADDR.
	WebhookURL    string `envconfig:"WEBHOOK_URL" default:""`
	WebhookPath   string `envconfig:"WEBHOOK_PATH" default:"/webhooks/telegram"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET" default:""`

	// --- Admin ---
	// Пустой хеш = вход в панель только по ADMIN_IDS
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH" default:""`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// UseWebhook — получать апдейты вебхуком вместо long polling.
func (c *Config) UseWebhook() bool {
	return c.AppEnv == "production" && c.WebhookURL != ""
}

// WebhookEndpoint — полный адрес, который регистрируется в Telegram.
func (c *Config) WebhookEndpoint() string {
	return strings.TrimRight(c.WebhookURL, "/") + c.WebhookPath
}

// допустимые символы secret_token по документации Bot API
var webhookSecretRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

// IsAdmin проверяет, входит ли пользователь в ADMIN_IDS.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Config) Validate() error {
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("неизвестный STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.ChatMemoryBackend {
	case ChatMemoryRing, ChatMemoryRedis:
	default:
		return fmt.Errorf("неизвестный CHAT_MEMORY_BACKEND %q", c.ChatMemoryBackend)
	}
	if c.TokensPerMessage <= 0 {
		return fmt.Errorf("TOKENS_PER_MESSAGE должен быть > 0")
	}
	if c.FreeTokens < 0 || c.ReferralBonusTokens < 0 {
		return fmt.Errorf("бонусы не могут быть отрицательными")
	}
	if c.AITimeout <= 0 || c.GatewayTimeout <= 0 {
		return fmt.Errorf("AI_TIMEOUT и GATEWAY_TIMEOUT должны быть > 0")
	}
	if c.UseWebhook() {
		u, err := url.Parse(c.WebhookURL)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			return fmt.Errorf("WEBHOOK_URL должен быть https-адресом, получено %q", c.WebhookURL)
		}
		if !strings.HasPrefix(c.WebhookPath, "/") {
			return fmt.Errorf("WEBHOOK_PATH должен начинаться с /")
		}
		// без секрета любой может слать боту поддельные апдейты
		if !webhookSecretRe.MatchString(c.WebhookSecret) {
			return fmt.Errorf("WEBHOOK_SECRET обязателен: 1-256 символов A-Z, a-z, 0-9, _ и -")
		}
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.AdminIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	cfg.AdminIDs = ids

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
