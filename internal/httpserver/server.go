// Package httpserver — HTTP-сервер рядом с ботом: вебхуки ЮKassa и Telegram,
// Prometheus-метрики и проверка живости.
package httpserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/common"
	"mindbot.ru/telegram-bot/internal/features/payments"
)

const (
	maxWebhookBody  = 1 << 20
	shutdownTimeout = 10 * time.Second

	// заголовок, в котором Telegram присылает secret_token вебхука
	telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// HealthCheck проверяет зависимости (например, пинг базы). nil — всё хорошо.
type HealthCheck func(ctx context.Context) error

// UpdateSink принимает апдейты Telegram из вебхука.
type UpdateSink interface {
	Push(ctx context.Context, update tgbotapi.Update) error
}

type telegramRoute struct {
	path   string
	secret string
	sink   UpdateSink
}

// Option настраивает Server.
type Option func(s *Server)

// WithTelegramWebhook включает POST path для апдейтов Telegram.
// Запросы без верного secret принимаются только при пустом secret.
func WithTelegramWebhook(path, secret string, sink UpdateSink) Option {
	return func(s *Server) {
		s.telegram = &telegramRoute{path: path, secret: secret, sink: sink}
	}
}

// Server — HTTP-сервер.
type Server struct {
	srv      *http.Server
	backend  payments.Backend
	health   HealthCheck
	telegram *telegramRoute
}

// New собирает роутер. health может быть nil.
func New(addr string, backend payments.Backend, health HealthCheck, opts ...Option) *Server {
	s := &Server{backend: backend, health: health}
	for _, opt := range opts {
		opt(s)
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router возвращает gin-роутер со всеми маршрутами.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/webhooks/yookassa", s.handleYooKassa)
	if s.telegram != nil {
		r.POST(s.telegram.path, s.handleTelegram)
	}
	return r
}

// Start слушает адрес в фоне. Ошибка запуска только логируется.
func (s *Server) Start() {
	go func() {
		log.WithField("addr", s.srv.Addr).Info("HTTP-сервер запущен")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP-сервер остановился с ошибкой")
		}
	}()
}

// Shutdown плавно останавливает сервер.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка остановки HTTP-сервера: %w", err)
	}
	log.Info("HTTP-сервер остановлен")
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health != nil {
		if err := s.health(c.Request.Context()); err != nil {
			log.WithError(err).Warn("Проверка живости не пройдена")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "payment_backend": s.backend.Name()})
}

// handleYooKassa принимает уведомления ЮKassa.
// 400 — тело не разобрано, 500 — сбой хранилища (ЮKassa повторит), иначе 200.
func (s *Server) handleYooKassa(c *gin.Context) {
	nh, ok := s.backend.(payments.NotificationHandler)
	if !ok {
		log.WithField("backend", s.backend.Name()).Warn("Вебхук ЮKassa при другом платёжном бэкенде")
		c.JSON(http.StatusNotFound, gin.H{"error": "webhook disabled"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	if err := nh.HandleNotification(c.Request.Context(), body); err != nil {
		if errors.Is(err, common.ErrBadPayload) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad payload"})
			return
		}
		log.WithError(err).Error("Ошибка обработки вебхука ЮKassa")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleTelegram принимает апдейт Telegram и ставит его в очередь бота.
// 401 — неверный секрет, 400 — тело не разобрано, 503 — очередь не освободилась
// до конца запроса (Telegram повторит доставку).
func (s *Server) handleTelegram(c *gin.Context) {
	if s.telegram.secret != "" {
		got := c.GetHeader(telegramSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.telegram.secret)) != 1 {
			log.WithField("ip", c.ClientIP()).Warn("Вебхук Telegram с неверным секретом")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		log.WithError(err).Warn("Некорректный апдейт в вебхуке Telegram")
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad update"})
		return
	}

	if err := s.telegram.sink.Push(c.Request.Context(), update); err != nil {
		log.WithError(err).WithField("update_id", update.UpdateID).Error("Очередь апдейтов переполнена")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "busy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requestLogger пишет запросы в logrus вместо стандартного логгера gin.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("HTTP-запрос")
	}
}
