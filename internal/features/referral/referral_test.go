package referral

import (
	"context"
	"strings"
	"testing"

	"mindbot.ru/telegram-bot/internal/bot/reply"
	"mindbot.ru/telegram-bot/internal/db/memory"
	"mindbot.ru/telegram-bot/internal/features/economy"
	"mindbot.ru/telegram-bot/internal/locks"
	"mindbot.ru/telegram-bot/internal/store"
	"mindbot.ru/telegram-bot/internal/testutil"
)

func newService(t *testing.T, ids ...int64) (*Service, *memory.Store, *economy.Ledger) {
	t.Helper()
	st := memory.New()
	ledger := economy.NewLedger(st, locks.NewKeyed[int64](true), testutil.Config())
	for _, id := range ids {
		if _, _, err := st.GetOrCreateUser(context.Background(), store.Profile{UserID: id}); err != nil {
			t.Fatal(err)
		}
	}
	return NewService(st, ledger), st, ledger
}

func getUser(t *testing.T, st *memory.Store, id int64) *store.User {
	t.Helper()
	u, err := st.GetUser(context.Background(), id)
	if err != nil || u == nil {
		t.Fatalf("GetUser(%d): %v %v", id, u, err)
	}
	return u
}

func TestGenerateReferralCodeIsStable(t *testing.T) {
	s, st, _ := newService(t, 1)
	ctx := context.Background()

	code, err := s.GenerateReferralCode(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(code) != codeLength {
		t.Fatalf("code = %q", code)
	}
	again, _ := s.GenerateReferralCode(ctx, 1)
	if again != code || getUser(t, st, 1).ReferralCode != code {
		t.Fatalf("code changed: %q -> %q", code, again)
	}

	owner, _ := s.ResolveReferralCode(ctx, code)
	if owner == nil || owner.ID != 1 {
		t.Fatalf("resolve = %+v", owner)
	}
	if owner, _ := s.ResolveReferralCode(ctx, "NOPE0000"); owner != nil {
		t.Fatal("unknown code must not resolve")
	}
}

func TestGenerateReferralCodeRetriesOnCollision(t *testing.T) {
	s, _, _ := newService(t, 1, 2)
	ctx := context.Background()

	codes := []string{"AAAAAAAA", "AAAAAAAA", "BBBBBBBB"}
	s.newCode = func() string {
		c := codes[0]
		codes = codes[1:]
		return c
	}

	first, _ := s.GenerateReferralCode(ctx, 1)
	second, err := s.GenerateReferralCode(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if first != "AAAAAAAA" || second != "BBBBBBBB" {
		t.Fatalf("codes = %q, %q", first, second)
	}
}

func TestGenerateReferralCodeUnknownUser(t *testing.T) {
	s, _, _ := newService(t)
	if _, err := s.GenerateReferralCode(context.Background(), 5); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

// Сценарий D: B приходит по коду A, повторный вход ничего не меняет.
func TestProcessReferralScenario(t *testing.T) {
	s, st, _ := newService(t, 1, 2, 3)
	ctx := context.Background()
	codeA, _ := s.GenerateReferralCode(ctx, 1)
	codeC, _ := s.GenerateReferralCode(ctx, 3)

	ok, err := s.ProcessReferral(ctx, 2, codeA)
	if err != nil || !ok {
		t.Fatalf("ProcessReferral: ok=%v err=%v", ok, err)
	}
	a, b := getUser(t, st, 1), getUser(t, st, 2)
	if b.ReferredBy == nil || *b.ReferredBy != 1 {
		t.Fatalf("referred_by = %v", b.ReferredBy)
	}
	if a.ReferralCount != 1 || a.Tokens != 10 {
		t.Fatalf("referrer = count %d tokens %d", a.ReferralCount, a.Tokens)
	}

	for _, code := range []string{codeA, codeC} {
		ok, err := s.ProcessReferral(ctx, 2, code)
		if err != nil || ok {
			t.Fatalf("repeat with %s: ok=%v err=%v", code, ok, err)
		}
	}
	if a := getUser(t, st, 1); a.ReferralCount != 1 || a.Tokens != 10 {
		t.Fatalf("referrer changed on repeat: %+v", a)
	}
	if c := getUser(t, st, 3); c.ReferralCount != 0 || c.Tokens != 0 {
		t.Fatalf("second referrer credited: %+v", c)
	}
	if b := getUser(t, st, 2); *b.ReferredBy != 1 {
		t.Fatal("referred_by must be set once")
	}
}

func TestProcessReferralRejections(t *testing.T) {
	s, st, _ := newService(t, 1, 2)
	ctx := context.Background()
	codeA, _ := s.GenerateReferralCode(ctx, 1)

	cases := map[string]struct {
		userID int64
		code   string
	}{
		"unknown code":  {2, "ZZZZZZZZ"},
		"empty code":    {2, ""},
		"self referral": {1, codeA},
		"unknown user":  {99, codeA},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ok, err := s.ProcessReferral(ctx, tc.userID, tc.code)
			if err != nil || ok {
				t.Fatalf("ok=%v err=%v", ok, err)
			}
		})
	}

	a, b := getUser(t, st, 1), getUser(t, st, 2)
	if a.ReferredBy != nil || a.ReferralCount != 0 || a.Tokens != 0 || b.ReferredBy != nil {
		t.Fatalf("state mutated: a=%+v b=%+v", a, b)
	}
}

func TestCodeFromStart(t *testing.T) {
	cases := map[string]struct {
		code string
		ok   bool
	}{
		"ref_ABCD1234": {"ABCD1234", true},
		"ref_":         {"", false},
		"promo":        {"", false},
		"":             {"", false},
	}
	for in, want := range cases {
		code, ok := CodeFromStart(in)
		if code != want.code || ok != want.ok {
			t.Fatalf("%q: got %q %v", in, code, ok)
		}
	}
	if got := Link("mindtestbot", "ABCD1234"); got != "https://t.me/mindtestbot?start=ref_ABCD1234" {
		t.Fatalf("link = %s", got)
	}
}

func TestHandlerStartPayloadNotifiesReferrer(t *testing.T) {
	s, st, ledger := newService(t, 1, 2)
	ctx := context.Background()
	api, fake := testutil.NewBotAPI(t)
	h := NewHandler(s, ledger, reply.New(api), "mindtestbot")
	code, _ := s.GenerateReferralCode(ctx, 1)

	h.HandleStartPayload(ctx, 2, 2, StartPrefix+code)

	sent := fake.Calls("sendMessage")
	if len(sent) != 2 {
		t.Fatalf("sendMessage calls = %d", len(sent))
	}
	if sent[1].Params.Get("chat_id") != "1" || !strings.Contains(sent[1].Params.Get("text"), "Вам начислено 10 Майндтокенов") {
		t.Fatalf("referrer notification = %v", sent[1].Params)
	}
	if getUser(t, st, 1).Tokens != 10 {
		t.Fatal("referrer not credited")
	}

	fake.Reset()
	h.HandleStartPayload(ctx, 2, 2, StartPrefix+code)
	if len(fake.Calls("sendMessage")) != 0 {
		t.Fatal("repeat referral must be silent")
	}
}

func TestHandlerMenuShowsLink(t *testing.T) {
	s, _, ledger := newService(t, 1)
	api, fake := testutil.NewBotAPI(t)
	h := NewHandler(s, ledger, reply.New(api), "mindtestbot")

	h.HandleMenu(context.Background(), reply.Chat(1), 1)
	text := fake.LastText()
	if !strings.Contains(text, "https://t.me/mindtestbot?start=ref_") || !strings.Contains(text, "Количество приглашенных: 0") {
		t.Fatalf("text = %q", text)
	}
}

// vanishingStore теряет пользователя gone при чтении по ID,
// но находит его по реферальному коду.
type vanishingStore struct {
	*memory.Store
	gone int64
}

func (s *vanishingStore) GetUser(ctx context.Context, id int64) (*store.User, error) {
	if id == s.gone {
		return nil, nil
	}
	return s.Store.GetUser(ctx, id)
}

func TestProcessReferralReferrerGoneKeepsBinding(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	for _, id := range []int64{1, 2} {
		mem.GetOrCreateUser(ctx, store.Profile{UserID: id})
	}
	code, err := NewService(mem, economy.NewLedger(mem, locks.NewKeyed[int64](true), testutil.Config())).GenerateReferralCode(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}

	st := &vanishingStore{Store: mem, gone: 1}
	s := NewService(st, economy.NewLedger(st, locks.NewKeyed[int64](true), testutil.Config()))

	ok, err := s.ProcessReferral(ctx, 2, code)
	if err != nil || !ok {
		t.Fatalf("ProcessReferral: ok=%v err=%v", ok, err)
	}
	if b := getUser(t, mem, 2); b.ReferredBy == nil || *b.ReferredBy != 1 {
		t.Fatalf("referred_by = %v", b.ReferredBy)
	}
	if a := getUser(t, mem, 1); a.ReferralCount != 0 || a.Tokens != 0 {
		t.Fatalf("vanished referrer credited: %+v", a)
	}

	if ok, _ := s.ProcessReferral(ctx, 2, code); ok {
		t.Fatal("repeat must be rejected")
	}
}
