package members

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mindbot.ru/telegram-bot/internal/bot/filters"
	"mindbot.ru/telegram-bot/internal/bot/reply"
	"mindbot.ru/telegram-bot/internal/db/memory"
	"mindbot.ru/telegram-bot/internal/features/economy"
	"mindbot.ru/telegram-bot/internal/features/referral"
	"mindbot.ru/telegram-bot/internal/locks"
	"mindbot.ru/telegram-bot/internal/store"
	"mindbot.ru/telegram-bot/internal/testutil"
)

type stubChecker struct {
	subscribed bool
	err        error
}

func (c *stubChecker) IsSubscribed(int64) (bool, error) { return c.subscribed, c.err }

type env struct {
	store   *memory.Store
	ledger  *economy.Ledger
	checker *stubChecker
	service *Service
	fake    *testutil.FakeTelegram
	h       *Handler
	ref     *referral.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := memory.New()
	cfg := testutil.Config()
	ledger := economy.NewLedger(st, locks.NewKeyed[int64](true), cfg)
	api, fake := testutil.NewBotAPI(t)
	sender := reply.New(api)
	checker := &stubChecker{}
	service := NewService(st, ledger, checker, cfg.ChannelID, cfg.ChannelURL)
	refService := referral.NewService(st, ledger)
	refHandler := referral.NewHandler(refService, ledger, sender, cfg.BotUsername)
	return &env{
		store:   st,
		ledger:  ledger,
		checker: checker,
		service: service,
		fake:    fake,
		h:       NewHandler(service, ledger, refHandler, sender),
		ref:     refService,
	}
}

func (e *env) user(t *testing.T, id int64) *store.User {
	t.Helper()
	u, err := e.store.GetUser(context.Background(), id)
	if err != nil || u == nil {
		t.Fatalf("GetUser(%d): %v %v", id, u, err)
	}
	return u
}

func TestStartRegistersUnsubscribedUser(t *testing.T) {
	e := newEnv(t)
	e.h.HandleStart(context.Background(), 1, &tgbotapi.User{ID: 1, FirstName: "Анна", UserName: "anna"}, "")

	u := e.user(t, 1)
	if u.Tokens != 0 || u.IsSubscribed || u.Username != "anna" {
		t.Fatalf("user = %+v", u)
	}
	text := e.fake.LastText()
	if !strings.Contains(text, "Здравствуйте, Анна!") || !strings.Contains(text, "получите 50 Майндтокенов бесплатно") {
		t.Fatalf("text = %q", text)
	}
	markup := e.fake.Calls("sendMessage")[0].Params.Get("reply_markup")
	if !strings.Contains(markup, CallbackCheckSubscription) || !strings.Contains(markup, "https://t.me/mindchannel") {
		t.Fatalf("markup = %s", markup)
	}
	if strings.Contains(markup, "start_chat") {
		t.Fatal("unsubscribed user must not see start_chat")
	}
}

func TestStartGrantsBonusToSubscriber(t *testing.T) {
	e := newEnv(t)
	e.checker.subscribed = true
	ctx := context.Background()

	e.h.HandleStart(ctx, 1, &tgbotapi.User{ID: 1, FirstName: "Анна"}, "")
	u := e.user(t, 1)
	if u.Tokens != 50 || !u.IsSubscribed || !u.HasReceivedSubscriptionBonus {
		t.Fatalf("user = %+v", u)
	}
	if text := e.fake.LastText(); !strings.Contains(text, "У вас сейчас 50 Майндтокенов") || !strings.Contains(text, "Вам начислено 50") {
		t.Fatalf("text = %q", text)
	}

	// Повторный /start: бонус не выдаётся
	e.h.HandleStart(ctx, 1, &tgbotapi.User{ID: 1, FirstName: "Анна"}, "")
	if e.user(t, 1).Tokens != 50 {
		t.Fatal("bonus granted twice")
	}
}

func TestStartUpdatesProfile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.h.HandleStart(ctx, 1, &tgbotapi.User{ID: 1, FirstName: "Анна", UserName: "anna"}, "")
	e.h.HandleStart(ctx, 1, &tgbotapi.User{ID: 1, FirstName: "Аня", UserName: "anya"}, "")

	if u := e.user(t, 1); u.FirstName != "Аня" || u.Username != "anya" {
		t.Fatalf("profile = %+v", u)
	}
}

func TestStartWithReferralPayload(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.h.HandleStart(ctx, 1, &tgbotapi.User{ID: 1, FirstName: "A"}, "")
	code, err := e.ref.GenerateReferralCode(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}

	e.h.HandleStart(ctx, 2, &tgbotapi.User{ID: 2, FirstName: "B"}, referral.StartPrefix+code)

	if b := e.user(t, 2); b.ReferredBy == nil || *b.ReferredBy != 1 {
		t.Fatalf("referred_by = %v", b.ReferredBy)
	}
	if a := e.user(t, 1); a.Tokens != 10 || a.ReferralCount != 1 {
		t.Fatalf("referrer = %+v", a)
	}
}

func TestCheckSubscriptionCallback(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, _, err := e.store.GetOrCreateUser(ctx, store.Profile{UserID: 1}); err != nil {
		t.Fatal(err)
	}
	target := reply.Target{ChatID: 1, MessageID: 3}

	e.h.HandleCheckSubscription(ctx, target, 1)
	if !strings.Contains(e.fake.LastText(), "Вы еще не подписаны") {
		t.Fatalf("text = %q", e.fake.LastText())
	}

	e.checker.subscribed = true
	e.h.HandleCheckSubscription(ctx, target, 1)
	text := e.fake.LastText()
	if !strings.Contains(text, "Вам начислено 50 Майндтокенов") || !strings.Contains(text, "Этого хватит на 5 вопросов") {
		t.Fatalf("text = %q", text)
	}

	e.h.HandleCheckSubscription(ctx, target, 1)
	if text := e.fake.LastText(); strings.Contains(text, "начислено") {
		t.Fatalf("second check must not mention bonus: %q", text)
	}
	if e.user(t, 1).Tokens != 50 {
		t.Fatal("bonus must be granted once")
	}
}

func TestCheckSubscriptionTelegramErrorKeepsState(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, _, _ := e.store.GetOrCreateUser(ctx, store.Profile{UserID: 1})
	u.IsSubscribed = true
	e.store.UpdateUser(ctx, u)

	e.checker.err = errors.New("timeout")
	subscribed, granted := e.service.CheckSubscription(ctx, 1)
	if subscribed || granted {
		t.Fatalf("subscribed=%v granted=%v", subscribed, granted)
	}
	if !e.user(t, 1).IsSubscribed {
		t.Fatal("stored status must not change on telegram error")
	}
}

func TestChannelFilterStatuses(t *testing.T) {
	api, fake := testutil.NewBotAPI(t)
	f := filters.NewChannelFilter(api, "@mindchannel")

	for status, want := range map[string]bool{
		"member": true, "administrator": true, "creator": true,
		"left": false, "kicked": false, "restricted": false,
	} {
		fake.SetMemberStatus(status)
		got, err := f.IsSubscribed(7)
		if err != nil || got != want {
			t.Fatalf("%s: got %v err %v", status, got, err)
		}
	}
	call := fake.Calls("getChatMember")[0]
	if call.Params.Get("chat_id") != "@mindchannel" || call.Params.Get("user_id") != "7" {
		t.Fatalf("params = %v", call.Params)
	}
}

func TestChannelLinkFallback(t *testing.T) {
	s := NewService(nil, nil, nil, "@mindchannel", "")
	if got := s.ChannelLink(); got != "https://t.me/mindchannel" {
		t.Fatalf("link = %s", got)
	}
	if got := NewService(nil, nil, nil, "-100123", "").ChannelLink(); got != "" {
		t.Fatalf("link = %s", got)
	}
}
