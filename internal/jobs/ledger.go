package jobs

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"efhc.app/ledger/internal/config"
	"efhc.app/ledger/internal/features/accrual"
	"efhc.app/ledger/internal/features/draws"
	"efhc.app/ledger/internal/features/panels"
	"efhc.app/ledger/internal/features/settlement"
)

// Имена задач (они же ключи аренды и метки метрик).
const (
	JobAccrual     = accrual.JobName
	JobDrawSettle  = "draw_settle"
	JobChainPoll   = "chain_poll"
	JobPanelExpiry = "panel_expiry"
)

// Services — сервисы, которые обслуживают фоновые задачи.
// Chain может быть nil, если кошелёк не настроен.
type Services struct {
	Accrual *accrual.Service
	Draws   *draws.Service
	Panels  *panels.Service
	Chain   *settlement.ChainWatcher
}

// RegisterLedgerJobs добавляет в планировщик задачи леджера по расписаниям из конфига.
func RegisterLedgerJobs(s *Scheduler, cfg *config.Config, svc Services) error {
	now := time.Now

	jobs := []Job{
		{Name: JobAccrual, Spec: cfg.AccrualCron, Run: func(ctx context.Context) error {
			log.Info("[CRON] Ежедневное начисление генерации")
			_, err := svc.Accrual.RunDaily(ctx, now())
			return err
		}},
		{Name: JobDrawSettle, Spec: cfg.DrawCron, Run: func(ctx context.Context) error {
			_, err := svc.Draws.Settle(ctx)
			return err
		}},
		{Name: JobPanelExpiry, Spec: cfg.PanelExpiryCron, Run: func(ctx context.Context) error {
			n, err := svc.Panels.ExpirePanels(ctx, now())
			if err == nil && n > 0 {
				log.WithField("batches", n).Info("[CRON] Истёкшие панели деактивированы")
			}
			return err
		}},
	}

	if svc.Chain != nil {
		jobs = append(jobs, Job{Name: JobChainPoll, Spec: cfg.ChainPollCron, Run: func(ctx context.Context) error {
			report, err := svc.Chain.Poll(ctx)
			if err != nil {
				return err
			}
			if report.Applied > 0 || report.Failed > 0 {
				log.WithFields(log.Fields{
					"fetched":    report.Fetched,
					"applied":    report.Applied,
					"duplicates": report.Duplicates,
					"failed":     report.Failed,
				}).Info("[CRON] Опрос TON завершён")
			}
			return nil
		}})
	} else {
		log.Warn("TON_WALLET_ADDRESS не задан, опрос блокчейна отключён")
	}

	for _, job := range jobs {
		if err := s.Add(job); err != nil {
			return err
		}
	}
	return nil
}
