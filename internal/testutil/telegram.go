// Package testutil — фейковый Bot API для тестов обработчиков.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Call — один запрос к фейковому Bot API.
type Call struct {
	Method string
	Params url.Values
}

// FakeTelegram записывает вызовы Bot API и отвечает успехом.
type FakeTelegram struct {
	mu    sync.Mutex
	calls []Call

	// MemberStatus — что вернуть на getChatMember
	MemberStatus string
	// FailMethods — методы, на которые отвечаем ошибкой
	FailMethods map[string]bool
}

// NewBotAPI поднимает httptest-сервер и возвращает настроенный BotAPI.
func NewBotAPI(t *testing.T) (*tgbotapi.BotAPI, *FakeTelegram) {
	t.Helper()
	fake := &FakeTelegram{MemberStatus: "left", FailMethods: map[string]bool{}}
	srv := httptest.NewServer(http.HandlerFunc(fake.serve))
	t.Cleanup(srv.Close)

	api, err := tgbotapi.NewBotAPIWithClient("TEST", srv.URL+"/bot%s/%s", srv.Client())
	if err != nil {
		t.Fatalf("NewBotAPIWithClient: %v", err)
	}
	return api, fake
}

func (f *FakeTelegram) serve(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	f.mu.Lock()
	f.calls = append(f.calls, Call{Method: method, Params: r.PostForm})
	status := f.MemberStatus
	fail := f.FailMethods[method]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fail {
		fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: forced failure"}`)
		return
	}
	switch method {
	case "getMe":
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Mind","username":"mindtestbot"}}`)
	case "getChatMember":
		fmt.Fprintf(w, `{"ok":true,"result":{"status":%q,"user":{"id":%s,"is_bot":false,"first_name":"u"}}}`,
			status, r.PostForm.Get("user_id"))
	case "answerCallbackQuery", "answerPreCheckoutQuery", "sendChatAction", "deleteMessage",
		"setWebhook", "deleteWebhook":
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	default:
		chatID := r.PostForm.Get("chat_id")
		if chatID == "" {
			chatID = "0"
		}
		fmt.Fprintf(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":%s,"type":"private"}}}`, chatID)
	}
}

// Calls возвращает вызовы указанного метода (все, если method пустой).
func (f *FakeTelegram) Calls(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Texts — тексты всех отправленных и отредактированных сообщений.
func (f *FakeTelegram) Texts() []string {
	var out []string
	for _, c := range f.Calls("") {
		if c.Method == "sendMessage" || c.Method == "editMessageText" {
			out = append(out, c.Params.Get("text"))
		}
	}
	return out
}

// LastText — текст последнего сообщения.
func (f *FakeTelegram) LastText() string {
	texts := f.Texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

// Reset очищает записанные вызовы.
func (f *FakeTelegram) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// SetMemberStatus меняет ответ getChatMember.
func (f *FakeTelegram) SetMemberStatus(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MemberStatus = status
}
