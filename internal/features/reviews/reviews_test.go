package reviews

import (
	"context"
	"strings"
	"testing"
	"time"

	"mindbot.ru/telegram-bot/internal/bot/reply"
	"mindbot.ru/telegram-bot/internal/db/memory"
	"mindbot.ru/telegram-bot/internal/dialog"
	"mindbot.ru/telegram-bot/internal/store"
	"mindbot.ru/telegram-bot/internal/testutil"
)

func TestParseReview(t *testing.T) {
	cases := []struct {
		in     string
		text   string
		rating int // 0 — без оценки
	}{
		{"5 Отличный бот", "Отличный бот", 5},
		{"  1   плохо ", "плохо", 1},
		{"3\nнормально", "нормально", 3},
		{"6 шесть", "6 шесть", 0},
		{"10 из 10", "10 из 10", 0},
		{"5", "5", 0},
		{"5 ", "5", 0},
		{"Без оценки", "Без оценки", 0},
	}
	for _, tc := range cases {
		text, rating := ParseReview(tc.in)
		got := 0
		if rating != nil {
			got = *rating
		}
		if text != tc.text || got != tc.rating {
			t.Fatalf("%q: got %q/%d, want %q/%d", tc.in, text, got, tc.text, tc.rating)
		}
	}
}

func TestCreateReview(t *testing.T) {
	st := memory.New()
	s := NewService(st)
	ctx := context.Background()

	r, err := s.Create(ctx, 1, "4 Помог разобраться")
	if err != nil {
		t.Fatal(err)
	}
	if r.ID == "" || r.Text != "Помог разобраться" || r.Rating == nil || *r.Rating != 4 {
		t.Fatalf("review = %+v", r)
	}
	if _, err := s.Create(ctx, 1, "   "); err == nil {
		t.Fatal("empty review must fail")
	}

	long := strings.Repeat("я", MaxTextLength+100)
	r, _ = s.Create(ctx, 2, long)
	if len([]rune(r.Text)) != MaxTextLength {
		t.Fatalf("len = %d", len([]rune(r.Text)))
	}

	mine, _ := s.ByUser(ctx, 1)
	all, _ := s.Latest(ctx, 10)
	if len(mine) != 1 || len(all) != 2 || all[0].UserID != 2 {
		t.Fatalf("mine=%d all=%d", len(mine), len(all))
	}
}

func TestHandlerCapturesReviewOnlyWhenAwaiting(t *testing.T) {
	st := memory.New()
	dialogs := dialog.NewStore(time.Minute)
	api, fake := testutil.NewBotAPI(t)
	h := NewHandler(NewService(st), dialogs, reply.New(api))
	ctx := context.Background()

	if h.HandleText(ctx, 1, 1, "просто сообщение") {
		t.Fatal("text outside review state must pass through")
	}

	h.HandleForm(reply.Target{ChatID: 1, MessageID: 2}, 1)
	if dialogs.Get(1) != dialog.AwaitingReview || fake.LastText() != TextForm {
		t.Fatalf("state=%s text=%q", dialogs.Get(1), fake.LastText())
	}

	if !h.HandleText(ctx, 1, 1, "5 Спасибо") {
		t.Fatal("review text must be consumed")
	}
	if dialogs.Get(1) != dialog.Idle {
		t.Fatal("state must reset after review")
	}
	if fake.LastText() != TextThanks {
		t.Fatalf("text = %q", fake.LastText())
	}
	reviews, _ := st.GetUserReviews(ctx, 1)
	if len(reviews) != 1 || reviews[0].Text != "Спасибо" {
		t.Fatalf("reviews = %+v", reviews)
	}

	if h.HandleText(ctx, 1, 1, "ещё") {
		t.Fatal("second message must go to chat")
	}
}

func TestFormatList(t *testing.T) {
	if FormatList(nil) != "📭 Отзывов пока нет." {
		t.Fatal("empty list text")
	}
	five := 5
	text := FormatList([]*store.Review{
		{UserID: 7, Text: "Хорошо", Rating: &five, CreatedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
		{UserID: 8, Text: "Без оценки"},
	})
	if !strings.Contains(text, "👤 7 · 01.03.2025 12:00 · ⭐⭐⭐⭐⭐\nХорошо") || !strings.Contains(text, "Без оценки") {
		t.Fatalf("text = %q", text)
	}
}
