package payments

import (
	"context"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mindbot.ru/telegram-bot/internal/bot/reply"
	"mindbot.ru/telegram-bot/internal/features/economy"
	"mindbot.ru/telegram-bot/internal/store"
	"mindbot.ru/telegram-bot/internal/testutil"
)

func TestHandlerFreeBackendFlow(t *testing.T) {
	e := newEnv(t, 1)
	api, fake := testutil.NewBotAPI(t)
	b := NewFreeBackend(e.deps, 0)
	h := NewHandler(b, e.store, e.ledger, reply.New(api))
	ctx := context.Background()

	h.HandleSelectTariff(ctx, reply.Chat(1), 1, economy.TariffSmall)
	if !strings.Contains(fake.LastText(), "Вы выбрали тариф: 50 Майндтокенов (5 вопросов)") {
		t.Fatalf("text = %q", fake.LastText())
	}
	markup := fake.Calls("sendMessage")[0].Params.Get("reply_markup")
	if !strings.Contains(markup, "https://free-payment.example.com/free_payment_1_") || !strings.Contains(markup, "check_payment:free_payment_1_") {
		t.Fatalf("markup = %s", markup)
	}

	payments, _ := e.store.GetUserPayments(ctx, 1)
	if len(payments) != 1 {
		t.Fatalf("payments = %d", len(payments))
	}
	h.HandleCheckPayment(ctx, reply.Chat(1), 1, payments[0].ID)
	if !strings.Contains(fake.LastText(), "Ваш текущий баланс: 50 Майндтокенов") {
		t.Fatalf("text = %q", fake.LastText())
	}

	// Чужой платёж не проверяется и не зачисляется
	if _, _, err := e.store.GetOrCreateUser(ctx, store.Profile{UserID: 2}); err != nil {
		t.Fatal(err)
	}
	_, p2, _ := b.CreatePaymentLink(ctx, 1, economy.TariffSmall)
	h.HandleCheckPayment(ctx, reply.Chat(2), 2, p2.ID)
	if !strings.Contains(fake.LastText(), "Платеж не был выполнен") {
		t.Fatalf("text = %q", fake.LastText())
	}
	if e.payment(t, p2.ID).Status != store.StatusPending {
		t.Fatal("foreign check must not resolve payment")
	}
}

func TestHandlerUnknownTariff(t *testing.T) {
	e := newEnv(t, 1)
	api, fake := testutil.NewBotAPI(t)
	h := NewHandler(NewFreeBackend(e.deps, 0), e.store, e.ledger, reply.New(api))

	h.HandleSelectTariff(context.Background(), reply.Chat(1), 1, "huge")
	if fake.LastText() != textBadTariff {
		t.Fatalf("text = %q", fake.LastText())
	}
}

func TestHandlerTelegramInvoiceFlow(t *testing.T) {
	e := newEnv(t, 1)
	api, fake := testutil.NewBotAPI(t)
	b := NewTelegramBackend(e.deps, api, "PROVIDER")
	h := NewHandler(b, e.store, e.ledger, reply.New(api))
	ctx := context.Background()

	h.HandleSelectTariff(ctx, reply.Chat(1), 1, economy.TariffUnlimited)
	invoices := fake.Calls("sendInvoice")
	if len(invoices) != 1 {
		t.Fatalf("sendInvoice calls = %d", len(invoices))
	}
	payload := invoices[0].Params.Get("payload")

	h.HandlePreCheckout(ctx, &tgbotapi.PreCheckoutQuery{
		ID: "q1", From: &tgbotapi.User{ID: 1}, Currency: "RUB", TotalAmount: 99000, InvoicePayload: payload,
	})
	answers := fake.Calls("answerPreCheckoutQuery")
	if len(answers) != 1 || answers[0].Params.Get("ok") != "true" {
		t.Fatalf("answers = %+v", answers)
	}

	h.HandleSuccessfulPayment(ctx, 1, 1, &tgbotapi.SuccessfulPayment{
		Currency: "RUB", TotalAmount: 99000, InvoicePayload: payload, TelegramPaymentChargeID: "charge-1",
	})
	if !e.user(t, 1).IsUnlimited {
		t.Fatal("unlimited must be activated")
	}
	if !strings.Contains(fake.LastText(), "безлимитный тариф") {
		t.Fatalf("text = %q", fake.LastText())
	}

	h.HandlePreCheckout(ctx, &tgbotapi.PreCheckoutQuery{
		ID: "q2", From: &tgbotapi.User{ID: 1}, Currency: "RUB", TotalAmount: 99000, InvoicePayload: payload,
	})
	answers = fake.Calls("answerPreCheckoutQuery")
	// false библиотека не передаёт вовсе
	if got := answers[len(answers)-1].Params.Get("ok"); got == "true" {
		t.Fatalf("second pre-checkout ok = %q", got)
	}
}
