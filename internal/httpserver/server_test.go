package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mindbot.ru/telegram-bot/internal/db/memory"
	"mindbot.ru/telegram-bot/internal/features/economy"
	"mindbot.ru/telegram-bot/internal/features/payments"
	"mindbot.ru/telegram-bot/internal/features/payments/yookassa"
	"mindbot.ru/telegram-bot/internal/locks"
	"mindbot.ru/telegram-bot/internal/store"
	"mindbot.ru/telegram-bot/internal/testutil"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newDeps(t *testing.T) (*memory.Store, payments.Deps) {
	t.Helper()
	st := memory.New()
	ledger := economy.NewLedger(st, locks.NewKeyed[int64](true), testutil.Config())
	return st, payments.Deps{Store: st, Ledger: ledger, PaymentLocks: locks.NewKeyed[string](true)}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// newGateway отвечает на GET /payments/<id> статусом из statuses.
func newGateway(t *testing.T, statuses map[string]string) *yookassa.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		id := strings.TrimPrefix(r.URL.Path, "/payments/")
		status, ok := statuses[id]
		if r.Method != http.MethodGet || !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"type":"error","code":"not_found"}`))
			return
		}
		fmt.Fprintf(w, `{"id":%q,"status":%q}`, id, status)
	}))
	t.Cleanup(srv.Close)

	client, err := yookassa.NewClient(srv.URL, "shop", "secret", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestYooKassaWebhook(t *testing.T) {
	st, deps := newDeps(t)
	ctx := context.Background()
	st.GetOrCreateUser(ctx, store.Profile{UserID: 5})
	tariff, _ := economy.LookupTariff(economy.TariffMedium)
	for _, id := range []string{"yk-9", "yk-10", "yk-11"} {
		st.CreatePayment(ctx, &store.Payment{
			ID: id, UserID: 5, Tariff: tariff.Key, Amount: tariff.Price,
			Tokens: tariff.Tokens, Status: store.StatusPending, CreatedAt: time.Now(),
		})
	}

	// yk-10 шлюз считает неоплаченным, yk-11 шлюзу неизвестен
	client := newGateway(t, map[string]string{"yk-9": "succeeded", "yk-10": "pending"})
	r := New(":0", payments.NewYooKassaBackend(deps, client, "https://t.me/mindtestbot"), nil).Router()

	body := `{"type":"notification","event":"payment.succeeded","object":{"id":"yk-9","status":"succeeded"}}`
	for i := 0; i < 2; i++ {
		if rec := do(t, r, http.MethodPost, "/webhooks/yookassa", body); rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: code = %d", i, rec.Code)
		}
	}
	if u, _ := st.GetUser(ctx, 5); u.Tokens != tariff.Tokens {
		t.Fatalf("tokens = %d, want %d", u.Tokens, tariff.Tokens)
	}

	forged := `{"event":"payment.succeeded","object":{"id":"yk-10","status":"succeeded"}}`
	if rec := do(t, r, http.MethodPost, "/webhooks/yookassa", forged); rec.Code != http.StatusOK {
		t.Fatalf("forged code = %d", rec.Code)
	}
	if u, _ := st.GetUser(ctx, 5); u.Tokens != tariff.Tokens {
		t.Fatalf("tokens after forged notification = %d, want %d", u.Tokens, tariff.Tokens)
	}

	unconfirmed := `{"event":"payment.succeeded","object":{"id":"yk-11","status":"succeeded"}}`
	if rec := do(t, r, http.MethodPost, "/webhooks/yookassa", unconfirmed); rec.Code != http.StatusInternalServerError {
		t.Fatalf("unconfirmed code = %d", rec.Code)
	}

	if rec := do(t, r, http.MethodPost, "/webhooks/yookassa", `{"object":{}}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad payload code = %d", rec.Code)
	}
	if rec := do(t, r, http.MethodPost, "/webhooks/yookassa", `{"object":{"id":"ghost","status":"succeeded"}}`); rec.Code != http.StatusOK {
		t.Fatalf("unknown payment code = %d", rec.Code)
	}
}

func TestWebhookDisabledForOtherBackends(t *testing.T) {
	_, deps := newDeps(t)
	r := New(":0", payments.NewFreeBackend(deps, 0), nil).Router()

	if rec := do(t, r, http.MethodPost, "/webhooks/yookassa", `{}`); rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	_, deps := newDeps(t)
	healthy := true
	check := func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("db down")
	}
	r := New(":0", payments.NewFreeBackend(deps, 0), check).Router()

	rec := do(t, r, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"payment_backend":"free"`) {
		t.Fatalf("healthz = %d %s", rec.Code, rec.Body.String())
	}

	healthy = false
	if rec := do(t, r, http.MethodGet, "/healthz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy code = %d", rec.Code)
	}

	rec = do(t, r, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("metrics = %d", rec.Code)
	}
}

type updateSink struct {
	mu      sync.Mutex
	updates []tgbotapi.Update
	err     error
}

func (s *updateSink) Push(_ context.Context, u tgbotapi.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.updates = append(s.updates, u)
	return nil
}

func TestTelegramWebhook(t *testing.T) {
	_, deps := newDeps(t)
	sink := &updateSink{}
	r := New(":0", payments.NewFreeBackend(deps, 0), nil,
		WithTelegramWebhook("/webhooks/telegram", "s3cret", sink)).Router()

	send := func(secret, body string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/telegram", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if secret != "" {
			req.Header.Set("X-Telegram-Bot-Api-Secret-Token", secret)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}
	update := `{"update_id":77,"message":{"message_id":1,"date":0,"chat":{"id":5,"type":"private"},"from":{"id":5,"is_bot":false,"first_name":"u"},"text":"/start"}}`

	if code := send("", update); code != http.StatusUnauthorized {
		t.Fatalf("no secret: code = %d", code)
	}
	if code := send("wrong", update); code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: code = %d", code)
	}
	if len(sink.updates) != 0 {
		t.Fatal("unauthorized update must not reach the bot")
	}

	if code := send("s3cret", update); code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	if len(sink.updates) != 1 || sink.updates[0].UpdateID != 77 || sink.updates[0].Message.Text != "/start" {
		t.Fatalf("updates = %+v", sink.updates)
	}

	if code := send("s3cret", "{not json"); code != http.StatusBadRequest {
		t.Fatalf("bad json: code = %d", code)
	}

	sink.err = context.DeadlineExceeded
	if code := send("s3cret", update); code != http.StatusServiceUnavailable {
		t.Fatalf("busy sink: code = %d", code)
	}
}

func TestTelegramWebhookNotRoutedByDefault(t *testing.T) {
	_, deps := newDeps(t)
	r := New(":0", payments.NewFreeBackend(deps, 0), nil).Router()

	if rec := do(t, r, http.MethodPost, "/webhooks/telegram", `{"update_id":1}`); rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d", rec.Code)
	}
}
