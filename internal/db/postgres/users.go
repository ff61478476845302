package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mindbot.ru/telegram-bot/internal/store"
)

// Store реализует store.Store поверх PostgreSQL.
// Пользователь хранится одной строкой-документом, история диалога — JSONB.
type Store struct {
	db *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// NewStore создаёт хранилище на готовом пуле.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const userColumns = `
	user_id, username, first_name, last_name, tokens,
	is_subscribed, is_unlimited,
	COALESCE(has_received_subscription_bonus, is_subscribed),
	history, COALESCE(referral_code, ''), referred_by, referral_count,
	created_at, last_activity`

func scanUser(row pgx.Row) (*store.User, error) {
	var (
		u       store.User
		history []byte
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Tokens,
		&u.IsSubscribed, &u.IsUnlimited, &u.HasReceivedSubscriptionBonus,
		&history, &u.ReferralCode, &u.ReferredBy, &u.ReferralCount,
		&u.CreatedAt, &u.LastActivity,
	)
	if err != nil {
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &u.History); err != nil {
			return nil, fmt.Errorf("ошибка разбора истории пользователя %d: %w", u.ID, err)
		}
	}
	return &u, nil
}

// GetUser возвращает пользователя или nil, если его нет.
func (s *Store) GetUser(ctx context.Context, userID int64) (*store.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}

// GetOrCreateUser создаёт пользователя с нулевым балансом при первом контакте.
// Гонка двух первых сообщений безопасна: второй INSERT упрётся в ON CONFLICT.
func (s *Store) GetOrCreateUser(ctx context.Context, p store.Profile) (*store.User, bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO users (user_id, username, first_name, last_name, has_received_subscription_bonus)
		VALUES ($1, $2, $3, $4, FALSE)
		ON CONFLICT (user_id) DO NOTHING
	`, p.UserID, p.Username, p.FirstName, p.LastName)
	if err != nil {
		return nil, false, fmt.Errorf("ошибка создания пользователя: %w", err)
	}

	u, err := s.GetUser(ctx, p.UserID)
	if err != nil {
		return nil, false, err
	}
	if u == nil {
		return nil, false, fmt.Errorf("пользователь %d пропал после создания", p.UserID)
	}
	return u, tag.RowsAffected() == 1, nil
}

// UpdateUser перезаписывает документ пользователя целиком.
func (s *Store) UpdateUser(ctx context.Context, u *store.User) error {
	history := u.History
	if history == nil {
		history = []store.HistoryEntry{}
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("ошибка сериализации истории: %w", err)
	}

	var code *string
	if u.ReferralCode != "" {
		code = &u.ReferralCode
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO users (
			user_id, username, first_name, last_name, tokens,
			is_subscribed, is_unlimited, has_received_subscription_bonus,
			history, referral_code, referred_by, referral_count,
			created_at, last_activity
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (user_id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			tokens = EXCLUDED.tokens,
			is_subscribed = EXCLUDED.is_subscribed,
			is_unlimited = EXCLUDED.is_unlimited,
			has_received_subscription_bonus = EXCLUDED.has_received_subscription_bonus,
			history = EXCLUDED.history,
			referral_code = EXCLUDED.referral_code,
			referred_by = EXCLUDED.referred_by,
			referral_count = EXCLUDED.referral_count,
			last_activity = EXCLUDED.last_activity
	`,
		u.ID, u.Username, u.FirstName, u.LastName, u.Tokens,
		u.IsSubscribed, u.IsUnlimited, u.HasReceivedSubscriptionBonus,
		raw, code, u.ReferredBy, u.ReferralCount,
		u.CreatedAt, u.LastActivity,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления пользователя %d: %w", u.ID, err)
	}
	return nil
}

// GetUserByReferralCode ищет пользователя по реферальному коду.
func (s *Store) GetUserByReferralCode(ctx context.Context, code string) (*store.User, error) {
	if code == "" {
		return nil, nil
	}
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE referral_code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска по реферальному коду: %w", err)
	}
	return u, nil
}

// BackfillSubscriptionBonus проставляет has_received_subscription_bonus
// старым записям: подписанные уже получили бонус, остальные — нет.
func (s *Store) BackfillSubscriptionBonus(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE users
		SET has_received_subscription_bonus = is_subscribed
		WHERE has_received_subscription_bonus IS NULL
	`)
	if err != nil {
		return 0, fmt.Errorf("ошибка миграции бонуса за подписку: %w", err)
	}
	return tag.RowsAffected(), nil
}
