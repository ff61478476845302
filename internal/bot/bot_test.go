package bot

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mindbot.ru/telegram-bot/internal/bot/reply"
	"mindbot.ru/telegram-bot/internal/common"
	"mindbot.ru/telegram-bot/internal/db/memory"
	"mindbot.ru/telegram-bot/internal/dialog"
	"mindbot.ru/telegram-bot/internal/features/admin"
	"mindbot.ru/telegram-bot/internal/features/chat"
	"mindbot.ru/telegram-bot/internal/features/economy"
	"mindbot.ru/telegram-bot/internal/features/members"
	"mindbot.ru/telegram-bot/internal/features/payments"
	"mindbot.ru/telegram-bot/internal/features/referral"
	"mindbot.ru/telegram-bot/internal/features/reviews"
	"mindbot.ru/telegram-bot/internal/locks"
	"mindbot.ru/telegram-bot/internal/testutil"
)

type echoAgent struct{ calls int }

func (a *echoAgent) Ask(_ context.Context, _ int64, message string) (string, error) {
	a.calls++
	return "ответ: " + message, nil
}

type subscribed struct{}

func (subscribed) IsSubscribed(int64) (bool, error) { return true, nil }

type env struct {
	bot   *Bot
	store *memory.Store
	fake  *testutil.FakeTelegram
	agent *echoAgent
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := testutil.Config()
	st := memory.New()
	ledger := economy.NewLedger(st, locks.NewKeyed[int64](true), cfg)
	api, fake := testutil.NewBotAPI(t)
	sender := reply.New(api)
	dialogs := dialog.NewStore(time.Minute)
	agent := &echoAgent{}

	backend := payments.NewMockBackend(payments.Deps{
		Store:        st,
		Ledger:       ledger,
		PaymentLocks: locks.NewKeyed[string](true),
	}, cfg.BotUsername)

	refService := referral.NewService(st, ledger)
	refHandler := referral.NewHandler(refService, ledger, sender, cfg.BotUsername)
	reviewsService := reviews.NewService(st)

	h := Handlers{
		Members:  members.NewHandler(members.NewService(st, ledger, subscribed{}, cfg.ChannelID, cfg.ChannelURL), ledger, refHandler, sender),
		Economy:  economy.NewHandler(ledger, st, sender),
		Payments: payments.NewHandler(backend, st, ledger, sender),
		Chat:     chat.NewHandler(st, ledger, chat.NewSession(chat.NewRingWindow(), agent), sender),
		Referral: refHandler,
		Reviews:  reviews.NewHandler(reviewsService, dialogs, sender),
		Admin:    admin.NewHandler(admin.NewService(admin.NewMemorySessions(), st, ledger, cfg), reviewsService, dialogs, sender),
	}
	b := New(api, cfg, h, dialogs, sender)
	t.Cleanup(b.rateLimiter.Close)
	return &env{bot: b, store: st, fake: fake, agent: agent}
}

func privateMessage(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: userID, FirstName: "Анна"},
		Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		Text:      text,
	}}
}

func callback(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb",
		From: &tgbotapi.User{ID: userID, FirstName: "Анна"},
		Message: &tgbotapi.Message{
			MessageID: 20,
			Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		},
		Data: data,
	}}
}

func TestParseCommand(t *testing.T) {
	p := NewCommandParser("/")
	tests := []struct {
		text string
		cmd  string
		args []string
		ok   bool
	}{
		{"/start", "start", nil, true},
		{"/START ref_ABC", "start", []string{"ref_ABC"}, true},
		{"/start@mindtestbot ref_X", "start", []string{"ref_X"}, true},
		{"  /user_id 1 100 ", "user_id", []string{"1", "100"}, true},
		{"/", "", nil, false},
		{"привет", "", nil, false},
		{"!balance", "", nil, false},
	}
	for _, tt := range tests {
		cmd, args, ok := p.ParseCommand(tt.text)
		if cmd != tt.cmd || ok != tt.ok || !reflect.DeepEqual(args, tt.args) {
			t.Errorf("ParseCommand(%q) = %q %v %v", tt.text, cmd, args, ok)
		}
	}
}

func TestGroupMessagesIgnored(t *testing.T) {
	e := newEnv(t)
	upd := privateMessage(1, "/start")
	upd.Message.Chat.Type = "supergroup"
	e.bot.HandleUpdate(context.Background(), upd)

	if calls := e.fake.Calls(""); len(calls) != 0 {
		t.Fatalf("group update produced calls: %v", calls)
	}
}

func TestStartThenChat(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.bot.HandleUpdate(ctx, privateMessage(1, "как дела?"))
	if e.fake.LastText() != chat.TextStartFirst {
		t.Fatalf("text = %q", e.fake.LastText())
	}

	e.bot.HandleUpdate(ctx, privateMessage(1, "/start"))
	u, _ := e.store.GetUser(ctx, 1)
	if u == nil || u.Tokens != 50 {
		t.Fatalf("user after /start = %+v", u)
	}

	e.bot.HandleUpdate(ctx, privateMessage(1, "как дела?"))
	if got := e.fake.LastText(); !strings.HasPrefix(got, "ответ: как дела?") || !strings.Contains(got, "Остаток: 40") {
		t.Fatalf("text = %q", got)
	}
}

func TestReviewTextNotSentToAgent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.bot.HandleUpdate(ctx, privateMessage(1, "/start"))

	e.bot.HandleUpdate(ctx, callback(1, reviews.CallbackForm))
	e.bot.HandleUpdate(ctx, privateMessage(1, "5 Очень помог"))

	if e.agent.calls != 0 {
		t.Fatal("review text reached the agent")
	}
	list, _ := e.store.GetUserReviews(ctx, 1)
	if len(list) != 1 || list[0].Rating == nil || *list[0].Rating != 5 {
		t.Fatalf("reviews = %v", list)
	}

	// /start сбрасывает незавершённый диалог
	e.bot.HandleUpdate(ctx, callback(1, reviews.CallbackForm))
	e.bot.HandleUpdate(ctx, privateMessage(1, "/start"))
	e.bot.HandleUpdate(ctx, privateMessage(1, "вопрос"))
	if e.agent.calls != 1 {
		t.Fatalf("agent calls = %d", e.agent.calls)
	}
}

func TestCallbacksAreAnswered(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.bot.HandleUpdate(ctx, privateMessage(1, "/start"))

	e.bot.HandleUpdate(ctx, callback(1, economy.CallbackBuyTokens))
	if len(e.fake.Calls("answerCallbackQuery")) != 1 {
		t.Fatal("callback not answered")
	}
	edits := e.fake.Calls("editMessageText")
	if len(edits) != 1 || !strings.Contains(edits[0].Params.Get("reply_markup"), economy.CallbackSelectTariff) {
		t.Fatalf("edits = %v", edits)
	}

	e.bot.HandleUpdate(ctx, callback(1, economy.CallbackSelectTariff+economy.TariffSmall))
	if !strings.Contains(e.fake.Calls("editMessageText")[1].Params.Get("reply_markup"), payments.CallbackCheckPayment) {
		t.Fatal("check_payment button missing")
	}
}

func TestUnknownCommand(t *testing.T) {
	e := newEnv(t)
	e.bot.HandleUpdate(context.Background(), privateMessage(1, "/dance"))
	if e.fake.LastText() != textUnknownCommand {
		t.Fatalf("text = %q", e.fake.LastText())
	}
}

func TestPanicRecovered(t *testing.T) {
	e := newEnv(t)
	e.bot.h.Chat = nil
	e.bot.HandleUpdate(context.Background(), privateMessage(1, "без обработчика"))
}

func TestSetupDelivery(t *testing.T) {
	e := newEnv(t)
	if err := e.bot.SetupDelivery(); err != nil {
		t.Fatalf("SetupDelivery (polling): %v", err)
	}
	if len(e.fake.Calls("deleteWebhook")) != 1 || len(e.fake.Calls("setWebhook")) != 0 {
		t.Fatal("polling mode must drop the webhook")
	}

	e.bot.cfg.AppEnv = "production"
	e.bot.cfg.WebhookURL = "https://bot.example.com"
	e.bot.cfg.WebhookPath = "/webhooks/telegram"
	e.bot.cfg.WebhookSecret = "s3cret"
	if err := e.bot.SetupDelivery(); err != nil {
		t.Fatalf("SetupDelivery (webhook): %v", err)
	}
	calls := e.fake.Calls("setWebhook")
	if len(calls) != 1 {
		t.Fatalf("setWebhook calls = %d", len(calls))
	}
	p := calls[0].Params
	if p.Get("url") != "https://bot.example.com/webhooks/telegram" || p.Get("secret_token") != "s3cret" ||
		p.Get("drop_pending_updates") != "true" {
		t.Fatalf("setWebhook params = %v", p)
	}
}

func TestWebhookUpdatesAreHandled(t *testing.T) {
	e := newEnv(t)
	e.bot.cfg.AppEnv = "production"
	e.bot.cfg.WebhookURL = "https://bot.example.com"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.bot.Start(ctx)
	}()

	if err := e.bot.Push(ctx, privateMessage(7, "/start")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if u, _ := e.store.GetUser(context.Background(), 7); u != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("pushed update was not handled")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done
	if len(e.fake.Calls("getUpdates")) != 0 {
		t.Fatal("webhook mode must not poll")
	}
	if err := e.bot.Push(context.Background(), privateMessage(8, "/start")); !errors.Is(err, common.ErrBotStopped) {
		t.Fatalf("Push after stop: %v", err)
	}
}
