package economy

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"mindbot.ru/telegram-bot/internal/common"
	"mindbot.ru/telegram-bot/internal/db/memory"
	"mindbot.ru/telegram-bot/internal/locks"
	"mindbot.ru/telegram-bot/internal/store"
	"mindbot.ru/telegram-bot/internal/testutil"
)

func newLedger(t *testing.T) (*Ledger, *memory.Store) {
	t.Helper()
	st := memory.New()
	return NewLedger(st, locks.NewKeyed[int64](true), testutil.Config()), st
}

func createUser(t *testing.T, st *memory.Store, id int64, mutate func(u *store.User)) {
	t.Helper()
	ctx := context.Background()
	u, _, err := st.GetOrCreateUser(ctx, store.Profile{UserID: id})
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	if mutate != nil {
		mutate(u)
		if err := st.UpdateUser(ctx, u); err != nil {
			t.Fatalf("UpdateUser: %v", err)
		}
	}
}

func mustUser(t *testing.T, st *memory.Store, id int64) *store.User {
	t.Helper()
	u, err := st.GetUser(context.Background(), id)
	if err != nil || u == nil {
		t.Fatalf("GetUser(%d): %v %v", id, u, err)
	}
	return u
}

func TestDeductTokensDeniedWhenBalanceTooLow(t *testing.T) {
	l, st := newLedger(t)
	ctx := context.Background()

	for _, balance := range []int64{0, 1, 9} {
		createUser(t, st, 1, func(u *store.User) { u.Tokens = balance })

		u, ok, err := l.DeductTokens(ctx, 1, 10)
		if err != nil {
			t.Fatalf("DeductTokens: %v", err)
		}
		if ok {
			t.Fatalf("balance %d: debit must be denied", balance)
		}
		if u.Tokens != balance || mustUser(t, st, 1).Tokens != balance {
			t.Fatalf("balance %d: state changed to %d", balance, mustUser(t, st, 1).Tokens)
		}
	}
}

func TestDeductTokensExactBalance(t *testing.T) {
	l, st := newLedger(t)
	createUser(t, st, 1, func(u *store.User) { u.Tokens = 10 })

	u, ok, err := l.DeductTokens(context.Background(), 1, 10)
	if err != nil || !ok {
		t.Fatalf("DeductTokens: ok=%v err=%v", ok, err)
	}
	if u.Tokens != 0 {
		t.Fatalf("tokens = %d, want 0", u.Tokens)
	}
}

func TestDeductTokensUnlimitedKeepsBalance(t *testing.T) {
	l, st := newLedger(t)
	createUser(t, st, 1, func(u *store.User) {
		u.Tokens = 3
		u.IsUnlimited = true
	})

	_, ok, err := l.DeductTokens(context.Background(), 1, 10)
	if err != nil || !ok {
		t.Fatalf("DeductTokens: ok=%v err=%v", ok, err)
	}
	if got := mustUser(t, st, 1).Tokens; got != 3 {
		t.Fatalf("tokens = %d, want 3", got)
	}
}

func TestDeductTokensMissingUser(t *testing.T) {
	l, _ := newLedger(t)
	u, ok, err := l.DeductTokens(context.Background(), 42, 10)
	if u != nil || ok || err != nil {
		t.Fatalf("got %v %v %v, want nil false nil", u, ok, err)
	}
}

func TestAddTokens(t *testing.T) {
	l, st := newLedger(t)
	ctx := context.Background()
	createUser(t, st, 1, nil)

	u, err := l.AddTokens(ctx, 1, 25, ReasonAdmin)
	if err != nil || u.Tokens != 25 {
		t.Fatalf("AddTokens: %v %v", u, err)
	}

	if _, err := l.AddTokens(ctx, 1, 0, ReasonAdmin); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("zero amount: err = %v", err)
	}

	u, err = l.AddTokens(ctx, 404, 10, ReasonAdmin)
	if u != nil || err != nil {
		t.Fatalf("missing user: %v %v", u, err)
	}
	if got, _ := st.GetUser(ctx, 404); got != nil {
		t.Fatalf("missing user must not be created: %+v", got)
	}
}

// Сценарий A: новый пользователь с нулевым балансом не может задать вопрос.
func TestNewUserCannotAffordMessage(t *testing.T) {
	l, st := newLedger(t)
	createUser(t, st, 1, nil)

	u := mustUser(t, st, 1)
	if l.CanAfford(u) {
		t.Fatal("new user must not afford a message")
	}
	if _, ok, _ := l.DeductTokens(context.Background(), 1, l.TokensPerMessage()); ok {
		t.Fatal("debit must be denied")
	}
}

// Сценарий B: первая подписка даёт FreeTokens, повторная — ничего.
func TestSubscriptionBonusGrantedOnce(t *testing.T) {
	l, st := newLedger(t)
	ctx := context.Background()
	createUser(t, st, 1, nil)

	u, granted, err := l.SetSubscriptionStatus(ctx, 1, true)
	if err != nil || !granted {
		t.Fatalf("first subscribe: granted=%v err=%v", granted, err)
	}
	if u.Tokens != 50 || !u.HasReceivedSubscriptionBonus {
		t.Fatalf("after first subscribe: %+v", u)
	}

	for i := 0; i < 3; i++ {
		_, granted, err = l.SetSubscriptionStatus(ctx, 1, true)
		if err != nil || granted {
			t.Fatalf("repeat subscribe #%d: granted=%v err=%v", i, granted, err)
		}
	}

	// Отписка и повторная подписка бонус не возвращают
	if _, _, err := l.SetSubscriptionStatus(ctx, 1, false); err != nil {
		t.Fatal(err)
	}
	_, granted, _ = l.SetSubscriptionStatus(ctx, 1, true)
	if granted {
		t.Fatal("resubscribe after unsubscribe must not grant bonus")
	}
	if got := mustUser(t, st, 1).Tokens; got != 50 {
		t.Fatalf("tokens = %d, want 50", got)
	}
}

// Политика бонуса выбрана по переходу флага, а не по нулевому балансу:
// пользователь с токенами от реферала всё равно получает бонус при первой подписке.
func TestSubscriptionBonusIsEdgeTriggeredNotZeroBalance(t *testing.T) {
	l, st := newLedger(t)
	createUser(t, st, 1, func(u *store.User) { u.Tokens = 10 })

	u, granted, err := l.SetSubscriptionStatus(context.Background(), 1, true)
	if err != nil || !granted {
		t.Fatalf("granted=%v err=%v", granted, err)
	}
	if u.Tokens != 60 {
		t.Fatalf("tokens = %d, want 60", u.Tokens)
	}
}

// Записи, где бонус уже отмечен (бэкфилл), бонус не получают.
func TestSubscriptionBonusRespectsBackfilledFlag(t *testing.T) {
	l, st := newLedger(t)
	createUser(t, st, 1, func(u *store.User) { u.HasReceivedSubscriptionBonus = true })

	u, granted, err := l.SetSubscriptionStatus(context.Background(), 1, true)
	if err != nil || granted {
		t.Fatalf("granted=%v err=%v", granted, err)
	}
	if !u.IsSubscribed || u.Tokens != 0 {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestSubscriptionBonusConcurrentCallsGrantOnce(t *testing.T) {
	l, st := newLedger(t)
	createUser(t, st, 1, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := l.SetSubscriptionStatus(context.Background(), 1, true); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got := mustUser(t, st, 1).Tokens; got != 50 {
		t.Fatalf("tokens = %d, want 50", got)
	}
}

func TestSetUnlimitedStatusKeepsTokens(t *testing.T) {
	l, st := newLedger(t)
	ctx := context.Background()
	createUser(t, st, 1, func(u *store.User) { u.Tokens = 70 })

	u, err := l.SetUnlimitedStatus(ctx, 1, true)
	if err != nil || !u.IsUnlimited || u.Tokens != 70 {
		t.Fatalf("enable: %+v %v", u, err)
	}
	u, err = l.SetUnlimitedStatus(ctx, 1, false)
	if err != nil || u.IsUnlimited || u.Tokens != 70 {
		t.Fatalf("disable: %+v %v", u, err)
	}
}

func TestAddMessageToHistory(t *testing.T) {
	l, st := newLedger(t)
	ctx := context.Background()
	createUser(t, st, 1, nil)

	if _, err := l.AddMessageToHistory(ctx, 1, "вопрос", true); err != nil {
		t.Fatal(err)
	}
	if _, err := l.AddMessageToHistory(ctx, 1, "ответ", false); err != nil {
		t.Fatal(err)
	}
	h := mustUser(t, st, 1).History
	if len(h) != 2 || h[0].Text != "вопрос" || !h[0].IsUser || h[1].IsUser {
		t.Fatalf("history = %+v", h)
	}
}

func TestApplyPurchase(t *testing.T) {
	l, st := newLedger(t)
	ctx := context.Background()
	createUser(t, st, 1, func(u *store.User) { u.Tokens = 5 })

	small, _ := LookupTariff(TariffSmall)
	p := &store.Payment{ID: "p1", UserID: 1, Tariff: small.Key, Amount: small.Price, Tokens: small.Tokens}
	if _, err := l.ApplyPurchase(ctx, p); err != nil {
		t.Fatal(err)
	}
	if got := mustUser(t, st, 1).Tokens; got != 55 {
		t.Fatalf("tokens = %d, want 55", got)
	}

	unl, _ := LookupTariff(TariffUnlimited)
	p = &store.Payment{ID: "p2", UserID: 1, Tariff: unl.Key, Amount: unl.Price, Tokens: unl.Tokens}
	u, err := l.ApplyPurchase(ctx, p)
	if err != nil || !u.IsUnlimited || u.Tokens != 55 {
		t.Fatalf("unlimited purchase: %+v %v", u, err)
	}
}

func TestTariffTable(t *testing.T) {
	ts := Tariffs()
	if len(ts) != 4 || ts[0].Key != TariffSmall || ts[3].Key != TariffUnlimited {
		t.Fatalf("tariffs = %+v", ts)
	}
	small, ok := LookupTariff(TariffSmall)
	if !ok || small.Tokens != 50 || !small.Price.Equal(decimal.NewFromInt(99)) {
		t.Fatalf("small = %+v", small)
	}
	if small.PriceMinorUnits() != 9900 {
		t.Fatalf("PriceMinorUnits = %d", small.PriceMinorUnits())
	}
	if got := small.ButtonText(); got != "5 вопросов - 99 ₽" {
		t.Fatalf("ButtonText = %q", got)
	}
	unl, _ := LookupTariff(TariffUnlimited)
	if got := unl.ButtonText(); got != "💫 Безлимитное количество вопросов - 990 ₽ (безлимит)" {
		t.Fatalf("ButtonText = %q", got)
	}
	if got := small.Summary(10); got != "50 Майндтокенов (5 вопросов)" {
		t.Fatalf("Summary = %q", got)
	}
	if _, ok := LookupTariff("huge"); ok {
		t.Fatal("unknown tariff must not resolve")
	}
}
