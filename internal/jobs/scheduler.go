// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: сверка зависших платежей,
// ежедневный отчёт администраторам и очистка состояний диалога.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"mindbot.ru/telegram-bot/internal/common"
	"mindbot.ru/telegram-bot/internal/dialog"
	"mindbot.ru/telegram-bot/internal/features/admin"
	"mindbot.ru/telegram-bot/internal/features/payments"
	"mindbot.ru/telegram-bot/internal/metrics"
	"mindbot.ru/telegram-bot/internal/store"
)

// Расписание и параметры сверки
const (
	SpecReconcile     = "@every 5m"
	SpecDailyReport   = "0 9 * * *"
	SpecDialogCleanup = "@every 10m"

	// Платёж моложе минуты ещё может оплачиваться прямо сейчас
	PendingOlderThan = time.Minute
	ReconcileBatch   = 100
	checkTimeout     = 30 * time.Second
)

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	store    store.Store
	backend  payments.Backend
	admin    *admin.Service
	dialogs  *dialog.Store
	adminIDs []int64
	sendFunc func(userID int64, text string)
}

// NewScheduler создаёт планировщик задач в часовом поясе timezone
// (по умолчанию Europe/Moscow).
func NewScheduler(
	timezone string,
	st store.Store,
	backend payments.Backend,
	adminService *admin.Service,
	dialogs *dialog.Store,
	adminIDs []int64,
	sendFunc func(userID int64, text string),
) *Scheduler {
	if timezone == "" {
		timezone = "Europe/Moscow"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.WithError(err).WithField("timezone", timezone).Warn("Не удалось загрузить часовой пояс, используем UTC+3")
		loc = time.FixedZone("MSK", 3*60*60)
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		store:    st,
		backend:  backend,
		admin:    adminService,
		dialogs:  dialogs,
		adminIDs: adminIDs,
		sendFunc: sendFunc,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		spec string
		name string
		run  func(context.Context) error
	}{
		{SpecReconcile, "reconcile_payments", func(ctx context.Context) error {
			_, err := s.ReconcilePayments(ctx)
			return err
		}},
		{SpecDailyReport, "daily_report", s.SendDailyReport},
		{SpecDialogCleanup, "dialog_cleanup", func(context.Context) error {
			if n := s.dialogs.Cleanup(); n > 0 {
				log.WithField("removed", n).Debug("[CRON] Очищены устаревшие состояния диалога")
			}
			return nil
		}},
	}

	for _, j := range jobs {
		j := j
		if _, err := s.cron.AddFunc(j.spec, func() { s.run(ctx, j.name, j.run) }); err != nil {
			return fmt.Errorf("ошибка регистрации задачи %s: %w", j.name, err)
		}
	}

	s.cron.Start()
	log.WithField("location", s.cron.Location().String()).Info("Планировщик задач запущен")
	return nil
}

func (s *Scheduler) run(ctx context.Context, name string, fn func(context.Context) error) {
	if ctx.Err() != nil {
		return
	}
	if err := fn(ctx); err != nil {
		metrics.JobRunsTotal.WithLabelValues(name, "error").Inc()
		log.WithError(err).WithField("job", name).Error("[CRON] Ошибка задачи")
		return
	}
	metrics.JobRunsTotal.WithLabelValues(name, "ok").Inc()
}

// Stop останавливает планировщик и ждёт завершения запущенных задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

// ReconcilePayments проверяет через активный бэкенд платежи, которые
// висят в pending дольше минуты. Возвращает число подтверждённых.
// Ошибка одного платежа не останавливает остальные.
func (s *Scheduler) ReconcilePayments(ctx context.Context) (int, error) {
	pending, err := s.store.ListPendingPayments(ctx, PendingOlderThan, ReconcileBatch)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения pending-платежей: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	succeeded := 0
	for _, p := range pending {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		status, err := s.backend.CheckPaymentStatus(checkCtx, p.ID)
		cancel()

		logger := log.WithFields(log.Fields{
			"payment_id": p.ID,
			"user_id":    p.UserID,
			"backend":    s.backend.Name(),
		})
		if err != nil {
			logger.WithError(err).Warn("[CRON] Не удалось проверить платёж")
			continue
		}
		if status != store.StatusSucceeded {
			logger.WithField("status", status).Debug("[CRON] Платёж ещё не оплачен")
			continue
		}

		succeeded++
		logger.Info("[CRON] Платёж подтверждён при сверке")
		if s.sendFunc != nil {
			s.sendFunc(p.UserID, paidText(p))
		}
	}

	log.WithFields(log.Fields{
		"checked":   len(pending),
		"succeeded": succeeded,
	}).Info("[CRON] Сверка платежей завершена")
	return succeeded, nil
}

func paidText(p *store.Payment) string {
	if p.IsUnlimited() {
		return "✅ Оплата подтверждена!\n\n💫 У вас активирован безлимитный тариф."
	}
	return fmt.Sprintf("✅ Оплата подтверждена!\n\n💎 Вам начислено %s.", common.FormatBalance(p.Tokens))
}

// SendDailyReport рассылает статистику всем ADMIN_IDS.
func (s *Scheduler) SendDailyReport(ctx context.Context) error {
	if len(s.adminIDs) == 0 || s.sendFunc == nil {
		return nil
	}

	stats, err := s.admin.Stats(ctx)
	if err != nil {
		return fmt.Errorf("ошибка сбора статистики: %w", err)
	}

	text := "🗓 Ежедневный отчёт\n\n" + admin.StatsText(stats)
	for _, id := range s.adminIDs {
		s.sendFunc(id, text)
	}
	log.WithField("admins", len(s.adminIDs)).Info("[CRON] Ежедневный отчёт отправлен")
	return nil
}
