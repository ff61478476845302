// Package admin — service.go содержит проверку доступа, аутентификацию по паролю,
// выдачу токенов и безлимита, статистику.
package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"mindbot.ru/telegram-bot/internal/common"
	"mindbot.ru/telegram-bot/internal/config"
	"mindbot.ru/telegram-bot/internal/features/economy"
	"mindbot.ru/telegram-bot/internal/store"
)

// Service управляет админ-панелью.
type Service struct {
	sessions SessionStore
	store    store.Store
	ledger   *economy.Ledger
	cfg      *config.Config

	now func() time.Time
}

// NewService создаёт сервис админ-панели.
func NewService(sessions SessionStore, st store.Store, ledger *economy.Ledger, cfg *config.Config) *Service {
	return &Service{
		sessions: sessions,
		store:    st,
		ledger:   ledger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// IsAdmin — пользователь в ADMIN_IDS.
func (s *Service) IsAdmin(userID int64) bool {
	return s.cfg.IsAdmin(userID)
}

// PasswordRequired — задан ADMIN_PASSWORD_HASH.
func (s *Service) PasswordRequired() bool {
	return s.cfg.AdminPasswordHash != ""
}

// Authorize проверяет доступ к панели.
// ErrNotAdmin — не в ADMIN_IDS; ErrWrongPassword — нужен /login.
func (s *Service) Authorize(ctx context.Context, userID int64) error {
	if !s.IsAdmin(userID) {
		return common.ErrNotAdmin
	}
	if !s.PasswordRequired() {
		return nil
	}
	if !s.HasActiveSession(ctx, userID) {
		return common.ErrWrongPassword
	}
	if err := s.sessions.UpdateActivity(ctx, userID); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось обновить активность сессии")
	}
	return nil
}

// VerifyPassword проверяет пароль администратора с использованием Argon2id.
// Включает защиту от brute-force: 3 неудачные попытки = блокировка на 1 час.
func (s *Service) VerifyPassword(ctx context.Context, userID int64, password string) error {
	if !s.IsAdmin(userID) {
		return common.ErrNotAdmin
	}

	// Проверяем лимит попыток
	attempts, err := s.sessions.GetRecentAttempts(ctx, userID, LockoutPeriod)
	if err != nil {
		return fmt.Errorf("ошибка проверки попыток входа: %w", err)
	}
	if attempts >= MaxAttempts {
		return common.ErrTooManyAttempts
	}

	match := verifyArgon2id(password, s.cfg.AdminPasswordHash)

	if err := s.sessions.LogAttempt(ctx, userID, match); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось записать попытку входа")
	}

	if !match {
		log.WithField("user_id", userID).Warn("Неверный пароль админ-панели")
		return common.ErrWrongPassword
	}

	// Создаём сессию (24 часа)
	session := &AdminSession{
		UserID:       userID,
		SessionToken: generateSecureToken(),
		ExpiresAt:    s.now().Add(SessionTTL),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return err
	}
	log.WithField("user_id", userID).Info("Вход в админ-панель")
	return nil
}

// HasActiveSession проверяет, есть ли у пользователя активная сессия.
func (s *Service) HasActiveSession(ctx context.Context, userID int64) bool {
	session, err := s.sessions.GetActiveSession(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка чтения админ-сессии")
		return false
	}
	return session != nil
}

// Logout завершает сессию.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	return s.sessions.DeactivateSession(ctx, userID)
}

// GiveTokens начисляет токены пользователю. Нет пользователя — ErrUserNotFound.
func (s *Service) GiveTokens(ctx context.Context, targetID, amount int64) (*store.User, error) {
	u, err := s.ledger.AddTokens(ctx, targetID, amount, economy.ReasonAdmin)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, common.ErrUserNotFound
	}
	return u, nil
}

// SetUnlimited включает или выключает безлимит. Нет пользователя — ErrUserNotFound.
func (s *Service) SetUnlimited(ctx context.Context, targetID int64, unlimited bool) (*store.User, error) {
	u, err := s.ledger.SetUnlimitedStatus(ctx, targetID, unlimited)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, common.ErrUserNotFound
	}
	return u, nil
}

// Stats — сводная статистика на текущий момент.
func (s *Service) Stats(ctx context.Context) (*store.Stats, error) {
	return s.store.Statistics(ctx, s.now())
}

// StatsText — текст статистики для админа и ежедневного отчёта.
func StatsText(st *store.Stats) string {
	return fmt.Sprintf(
		"📊 Статистика бота:\n\n"+
			"👥 Всего пользователей: %s\n"+
			"💬 Всего сообщений: %s\n"+
			"💰 Всего платежей: %s\n"+
			"💸 Общая сумма: %s ₽\n\n"+
			"За последние 24 часа:\n"+
			"👤 Новых пользователей: %s\n"+
			"💬 Сообщений: %s\n"+
			"💰 Платежей: %s\n"+
			"💸 Сумма: %s ₽\n",
		common.FormatNumber(st.TotalUsers),
		common.FormatNumber(st.TotalMessages),
		common.FormatNumber(st.TotalPayments),
		st.TotalAmount.StringFixed(2),
		common.FormatNumber(st.NewUsers24h),
		common.FormatNumber(st.Messages24h),
		common.FormatNumber(st.Payments24h),
		st.Amount24h.StringFixed(2),
	)
}

// ParseGiveTokens разбирает "/user_id <id> <n>" или "<id> <n>".
func ParseGiveTokens(text string) (targetID, amount int64, err error) {
	args := commandArgs(text)
	if len(args) != 2 {
		return 0, 0, common.ErrBadCommandFormat
	}
	targetID, err = strconv.ParseInt(args[0], 10, 64)
	if err != nil || targetID <= 0 {
		return 0, 0, common.ErrBadCommandFormat
	}
	amount, err = strconv.ParseInt(args[1], 10, 64)
	if err != nil || amount <= 0 || amount > MaxGrantTokens {
		return 0, 0, common.ErrBadCommandFormat
	}
	return targetID, amount, nil
}

// ParseUnlimited разбирает "/unlimited <id> 1|0" или "<id> 1|0".
func ParseUnlimited(text string) (targetID int64, unlimited bool, err error) {
	args := commandArgs(text)
	if len(args) != 2 {
		return 0, false, common.ErrBadCommandFormat
	}
	targetID, err = strconv.ParseInt(args[0], 10, 64)
	if err != nil || targetID <= 0 {
		return 0, false, common.ErrBadCommandFormat
	}
	switch args[1] {
	case "1":
		return targetID, true, nil
	case "0":
		return targetID, false, nil
	default:
		return 0, false, common.ErrBadCommandFormat
	}
}

// commandArgs отбрасывает саму команду, если она есть.
func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) > 0 && strings.HasPrefix(fields[0], "/") {
		fields = fields[1:]
	}
	return fields
}

// --- Криптографические утилиты ---

// Параметры Argon2id для новых хешей
const (
	argonMemory      = 64 * 1024
	argonIterations  = 3
	argonParallelism = 2
	argonSaltLen     = 16
	argonKeyLen      = 32
)

// HashPassword создаёт хеш для ADMIN_PASSWORD_HASH.
// Формат: $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("ошибка генерации соли: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, argonIterations, argonMemory, argonParallelism, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonIterations, argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// verifyArgon2id проверяет пароль по хешу Argon2id.
func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory uint32
	var iterations uint32
	var parallelism uint8
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism)
	if err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// Сравнение в постоянном времени
	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1
}

// generateSecureToken генерирует криптографически безопасный токен сессии.
func generateSecureToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}
