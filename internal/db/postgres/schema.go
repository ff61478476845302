package postgres

// SQL-миграции встроены в код для упрощения деплоя.
var Migrations = []Migration{
	{1, "users", migration001Users},
	{2, "payments", migration002Payments},
	{3, "reviews", migration003Reviews},
	{4, "subscription_bonus", migration004SubscriptionBonus},
	{5, "admin_sessions", migration005AdminSessions},
}

var migration001Users = `
CREATE TABLE IF NOT EXISTS users (
    user_id BIGINT PRIMARY KEY,
    username VARCHAR(255) NOT NULL DEFAULT '',
    first_name VARCHAR(255) NOT NULL DEFAULT '',
    last_name VARCHAR(255) NOT NULL DEFAULT '',
    tokens BIGINT NOT NULL DEFAULT 0 CHECK (tokens >= 0),
    is_subscribed BOOLEAN NOT NULL DEFAULT FALSE,
    is_unlimited BOOLEAN NOT NULL DEFAULT FALSE,
    history JSONB NOT NULL DEFAULT '[]'::jsonb,
    referral_code VARCHAR(32) UNIQUE,
    referred_by BIGINT,
    referral_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at);
`

var migration002Payments = `
CREATE TABLE IF NOT EXISTS payments (
    payment_id VARCHAR(128) PRIMARY KEY,
    user_id BIGINT NOT NULL,
    tariff VARCHAR(32) NOT NULL,
    amount NUMERIC(12,2) NOT NULL,
    tokens BIGINT NOT NULL,
    status VARCHAR(32) NOT NULL DEFAULT 'pending',
    charge_id VARCHAR(255),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_payments_user_id ON payments(user_id);
CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status, created_at);
`

var migration003Reviews = `
CREATE TABLE IF NOT EXISTS reviews (
    review_id VARCHAR(64) PRIMARY KEY,
    user_id BIGINT NOT NULL,
    text TEXT NOT NULL,
    rating SMALLINT CHECK (rating BETWEEN 1 AND 5),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_reviews_user_id ON reviews(user_id);
CREATE INDEX IF NOT EXISTS idx_reviews_created_at ON reviews(created_at DESC);
`

// Поле добавлено позже: у старых записей NULL до прогона BackfillSubscriptionBonus.
var migration004SubscriptionBonus = `
ALTER TABLE users ADD COLUMN IF NOT EXISTS has_received_subscription_bonus BOOLEAN;
`

var migration005AdminSessions = `
CREATE TABLE IF NOT EXISTS admin_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    session_token VARCHAR(128) NOT NULL UNIQUE,
    authenticated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMPTZ NOT NULL,
    last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    is_active BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_admin_sessions_user ON admin_sessions(user_id, is_active);

CREATE TABLE IF NOT EXISTS admin_login_attempts (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    attempt_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    success BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_admin_login_attempts_user ON admin_login_attempts(user_id, attempt_time);
`
