// Package yookassa — минимальный REST-клиент ЮKassa (API v3):
// создание платежа и получение его статуса.
package yookassa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotConfigured — не заданы shop id или секретный ключ.
var ErrNotConfigured = errors.New("yookassa: не заданы YUKASSA_SHOP_ID/YUKASSA_SECRET_KEY")

// Amount — сумма в формате ЮKassa ("99.00").
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// Confirmation — способ подтверждения платежа.
type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

// CreateRequest — тело POST /payments.
type CreateRequest struct {
	Amount       Amount            `json:"amount"`
	Confirmation Confirmation      `json:"confirmation"`
	Capture      bool              `json:"capture"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Payment — объект платежа в ответах API и вебхуках.
type Payment struct {
	ID           string       `json:"id"`
	Status       string       `json:"status"`
	Paid         bool         `json:"paid"`
	Amount       Amount       `json:"amount"`
	Confirmation Confirmation `json:"confirmation"`
	Description  string       `json:"description"`
}

// Notification — тело HTTP-уведомления: {"event": "...", "object": {...}}.
type Notification struct {
	Type   string  `json:"type"`
	Event  string  `json:"event"`
	Object Payment `json:"object"`
}

// APIError — ответ API с кодом не 2xx.
type APIError struct {
	StatusCode  int
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("yookassa: HTTP %d: %s %s", e.StatusCode, e.Code, e.Description)
}

// Client ходит в API ЮKassa с Basic-авторизацией.
type Client struct {
	baseURL   string
	shopID    string
	secretKey string
	client    *http.Client
}

// NewClient создаёт клиент. timeout ограничивает каждый запрос целиком.
func NewClient(baseURL, shopID, secretKey string, timeout time.Duration) (*Client, error) {
	if shopID == "" || secretKey == "" {
		return nil, ErrNotConfigured
	}
	if baseURL == "" {
		baseURL = "https://api.yookassa.ru/v3"
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		shopID:    shopID,
		secretKey: secretKey,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

// FormatAmount приводит сумму к виду "99.00".
func FormatAmount(v decimal.Decimal) string {
	return v.StringFixed(2)
}

// CreatePayment создаёт платёж. Каждый вызов получает новый Idempotence-Key.
func (c *Client) CreatePayment(ctx context.Context, req CreateRequest) (*Payment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации платежа: %w", err)
	}
	var p Payment
	if err := c.do(ctx, http.MethodPost, "/payments", body, uuid.NewString(), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPayment возвращает платёж по ID.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var p Payment
	if err := c.do(ctx, http.MethodGet, "/payments/"+paymentID, nil, "", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, idempotenceKey string, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.SetBasicAuth(c.shopID, c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotenceKey != "" {
		req.Header.Set("Idempotence-Key", idempotenceKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("yookassa %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа yookassa: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(respBody, apiErr)
		return apiErr
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("некорректный ответ yookassa: %w", err)
	}
	return nil
}

// ParseNotification разбирает тело вебхука. Пустые id/status — ошибка.
func ParseNotification(body []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("некорректный JSON уведомления: %w", err)
	}
	if n.Object.ID == "" || n.Object.Status == "" {
		return nil, errors.New("в уведомлении нет object.id или object.status")
	}
	return &n, nil
}
