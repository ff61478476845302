package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"mindbot.ru/telegram-bot/internal/store"
)

// MockBackend — тестовый режим: платёж считается оплаченным сразу при создании.
type MockBackend struct {
	store       store.Store
	resolver    *Resolver
	botUsername string
}

// NewMockBackend создаёт тестовый бэкенд.
func NewMockBackend(deps Deps, botUsername string) *MockBackend {
	return &MockBackend{
		store:       deps.Store,
		resolver:    NewResolver(deps.Store, deps.Ledger, deps.PaymentLocks, BackendMock),
		botUsername: botUsername,
	}
}

func (b *MockBackend) Name() string { return BackendMock }

// CreatePaymentLink сохраняет платёж и тут же зачисляет его.
// Ссылка ведёт обратно в бота.
func (b *MockBackend) CreatePaymentLink(ctx context.Context, userID int64, tariffKey string) (string, *store.Payment, error) {
	p, _, err := newPayment(uuid.NewString(), userID, tariffKey)
	if err != nil {
		return "", nil, err
	}
	if !persist(ctx, b.store, BackendMock, p) {
		return "", nil, nil
	}

	resolved, _, err := b.resolver.Resolve(ctx, p.ID, store.StatusSucceeded, "")
	if err != nil {
		return "", nil, fmt.Errorf("ошибка тестового зачисления: %w", err)
	}
	if resolved != nil {
		p = resolved
	}
	return fmt.Sprintf("https://t.me/%s", b.botUsername), p, nil
}

// CheckPaymentStatus всегда успешен для известных платежей.
func (b *MockBackend) CheckPaymentStatus(ctx context.Context, paymentID string) (store.PaymentStatus, error) {
	p, _, err := b.resolver.Resolve(ctx, paymentID, store.StatusSucceeded, "")
	if err != nil {
		return store.StatusUnknown, err
	}
	if p == nil {
		return store.StatusUnknown, nil
	}
	return p.Status, nil
}
