package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/common"
	"mindbot.ru/telegram-bot/internal/metrics"
)

// ErrNoReply — агент не дал ответа (сеть, таймаут, не 200, пустой ответ).
var ErrNoReply = errors.New("AI-агент не вернул ответ")

// Asker — то, что умеет отвечать на сообщение пользователя.
type Asker interface {
	Ask(ctx context.Context, userID int64, message string) (string, error)
}

// ExtractionRule достаёт текст ответа из JSON-объекта агента.
type ExtractionRule struct {
	Name    string
	Extract func(obj map[string]any) (string, bool)
}

// fieldRule — строковое поле верхнего уровня.
func fieldRule(key string) ExtractionRule {
	return ExtractionRule{
		Name: key,
		Extract: func(obj map[string]any) (string, bool) {
			s, ok := obj[key].(string)
			return s, ok
		},
	}
}

// DefaultExtractionRules — порядок важен: первое сработавшее правило побеждает.
var DefaultExtractionRules = []ExtractionRule{
	fieldRule("response"),
	fieldRule("content"),
	fieldRule("text"),
	fieldRule("message"),
}

// ExtractReply применяет правила по порядку. Если ни одно не подошло,
// возвращает тело как строку (для JSON-строки — её значение).
func ExtractReply(body []byte, rules []ExtractionRule) (string, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return "", fmt.Errorf("некорректный JSON ответа: %w", err)
	}
	switch val := v.(type) {
	case map[string]any:
		for _, r := range rules {
			if s, ok := r.Extract(val); ok {
				return s, nil
			}
		}
	case string:
		return val, nil
	}
	return string(bytes.TrimSpace(body)), nil
}

type agentRequest struct {
	AgentID string `json:"agent_id"`
	Message string `json:"message"`
	Stream  bool   `json:"stream"`
	UserID  string `json:"user_id,omitempty"`
}

// Agent — HTTP-клиент AI-агента.
type Agent struct {
	url     string
	agentID string
	client  *http.Client
	rules   []ExtractionRule
}

// NewAgent создаёт клиент. timeout ограничивает запрос целиком.
func NewAgent(url, agentID string, timeout time.Duration) *Agent {
	log.WithFields(log.Fields{"agent_id": agentID, "url": url}).Info("Инициализирован AI агент")
	return &Agent{
		url:     url,
		agentID: agentID,
		client:  &http.Client{Timeout: timeout},
		rules:   DefaultExtractionRules,
	}
}

// Ask отправляет сообщение агенту. Любой сбой — ошибка с ErrNoReply.
func (a *Agent) Ask(ctx context.Context, userID int64, message string) (string, error) {
	start := time.Now()
	reply, err := a.ask(ctx, userID, message)
	metrics.AIRequestDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		metrics.AIRequestsTotal.WithLabelValues("error").Inc()
		log.WithError(err).WithField("user_id", userID).Error("Ошибка при запросе к ИИ-агенту")
		return "", fmt.Errorf("%w: %v", ErrNoReply, err)
	case reply == "":
		metrics.AIRequestsTotal.WithLabelValues("empty").Inc()
		log.WithField("user_id", userID).Warn("ИИ-агент вернул пустой ответ")
		return "", ErrNoReply
	}
	metrics.AIRequestsTotal.WithLabelValues("ok").Inc()
	log.WithFields(log.Fields{
		"user_id": userID,
		"reply":   common.Truncate(reply, 50),
	}).Debug("Получен ответ от AI агента")
	return reply, nil
}

func (a *Agent) ask(ctx context.Context, userID int64, message string) (string, error) {
	payload := agentRequest{AgentID: a.agentID, Message: message, Stream: false}
	if userID != 0 {
		payload.UserID = strconv.FormatInt(userID, 10)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, common.Truncate(string(respBody), 200))
	}
	return ExtractReply(respBody, a.rules)
}
