// Package metrics объявляет Prometheus-метрики бота.
// Отдаются HTTP-сервером на /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpdatesTotal — входящие апдейты Telegram по типу.
	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindbot_updates_total",
		Help: "Входящие апдейты Telegram",
	}, []string{"kind"})

	// AIRequestsTotal — запросы к AI-агенту по результату (ok, error, empty).
	AIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindbot_ai_requests_total",
		Help: "Запросы к AI-агенту",
	}, []string{"result"})

	AIRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mindbot_ai_request_duration_seconds",
		Help:    "Длительность запроса к AI-агенту",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
	})

	// TokensCreditedTotal — начисленные токены по причине (purchase, subscription, referral, admin).
	TokensCreditedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindbot_tokens_credited_total",
		Help: "Начисленные Майндтокены",
	}, []string{"reason"})

	TokensDebitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mindbot_tokens_debited_total",
		Help: "Списанные за сообщения Майндтокены",
	})

	// PaymentsTotal — переходы платежей по бэкенду и статусу.
	PaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindbot_payments_total",
		Help: "Платежи по бэкенду и статусу",
	}, []string{"backend", "status"})

	// PaymentBackendInfo = 1 для выбранного при старте бэкенда.
	PaymentBackendInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mindbot_payment_backend_info",
		Help: "Активный платёжный бэкенд",
	}, []string{"backend"})

	PanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mindbot_handler_panics_total",
		Help: "Паники в обработчиках апдейтов",
	})

	// RateLimitedTotal — апдейты, отброшенные ограничителем частоты.
	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mindbot_rate_limited_total",
		Help: "Отброшенные по rate limit апдейты",
	})

	// JobRunsTotal — запуски фоновых задач по имени и результату.
	JobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindbot_job_runs_total",
		Help: "Запуски фоновых задач",
	}, []string{"job", "result"})
)
