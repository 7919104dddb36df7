// Package accrual ежедневно начисляет кВт·ч за активные панели.
// Каждый аккаунт начисляется в своей транзакции; запись (дата, аккаунт)
// гарантирует, что повторный запуск за ту же дату ничего не добавит.
package accrual

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/config"
	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/metrics"
	"efhc.app/ledger/internal/money"
	"efhc.app/ledger/internal/storage"
)

// VIPMultiplier — надбавка к генерации для VIP-аккаунтов (+7%).
var VIPMultiplier = decimal.RequireFromString("1.07")

// JobName — имя задачи начисления в планировщике (ключ аренды).
const JobName = "accrual"

// Runner выполняет задачу под арендой планировщика, не допуская
// параллельного запуска с плановым тиком.
type Runner interface {
	RunExclusive(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// Service начисляет генерацию.
type Service struct {
	store storage.Store
	loc   *time.Location
	now   func() time.Time
}

// NewService создаёт сервис начислений в часовом поясе APP_TIMEZONE.
func NewService(store storage.Store, cfg *config.Config) *Service {
	return &Service{store: store, loc: common.LoadLocation(cfg.AppTimezone), now: time.Now}
}

// Report — итог ежедневного начисления.
type Report struct {
	Date       time.Time    `json:"date"`
	Skipped    bool         `json:"skipped"` // таблица ставок пуста
	Candidates int          `json:"candidates"`
	Credited   int          `json:"credited"`
	Duplicates int          `json:"duplicates"`
	Failed     int          `json:"failed"`
	Total      money.Amount `json:"total_kwh"`
}

// RunManual запускает начисление вне расписания через runner.
// at может сдвинуть момент только в пределах текущих суток APP_TIMEZONE:
// начислить за прошлый или будущий день нельзя.
func (s *Service) RunManual(ctx context.Context, runner Runner, at *time.Time) (*Report, error) {
	now := s.now()
	moment := now
	if at != nil {
		today := common.DateIn(now, s.loc)
		if !common.DateIn(*at, s.loc).Equal(today) {
			return nil, fmt.Errorf("%w: начисление возможно только за %s", common.ErrInvalidDate, today.Format(time.DateOnly))
		}
		moment = *at
	}

	var report *Report
	err := runner.RunExclusive(ctx, JobName, func(ctx context.Context) error {
		var err error
		report, err = s.RunDaily(ctx, moment)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// RunDaily начисляет генерацию за календарную дату момента at
// всем аккаунтам, у которых в этот момент есть активные панели.
func (s *Service) RunDaily(ctx context.Context, at time.Time) (*Report, error) {
	report := &Report{Date: common.DateIn(at, s.loc)}

	var (
		rates      map[int]money.Amount
		candidates []domain.AccrualCandidate
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		list, err := tx.YieldRates(ctx)
		if err != nil {
			return err
		}
		rates = make(map[int]money.Amount, len(list))
		for _, r := range list {
			rates[r.Level] = r.Daily
		}
		if len(rates) == 0 {
			return nil
		}
		candidates, err = tx.ListAccrualCandidates(ctx, at)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка подготовки начисления: %w", err)
	}
	if len(rates) == 0 {
		report.Skipped = true
		log.WithError(common.ErrNoYieldRates).Warn("[CRON] Начисление пропущено")
		return report, nil
	}

	report.Candidates = len(candidates)
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		credited, amount, err := s.accrueOne(ctx, report.Date, c, rates)
		switch {
		case err != nil:
			report.Failed++
			metrics.RecordAccrual("failed")
			log.WithError(err).WithField("account", c.AccountID).Error("[CRON] Ошибка начисления")
		case credited:
			report.Credited++
			report.Total += amount
			metrics.RecordAccrual("credited")
		default:
			report.Duplicates++
			metrics.RecordAccrual("duplicate")
		}
	}

	log.WithFields(log.Fields{
		"date":       report.Date.Format(time.DateOnly),
		"credited":   report.Credited,
		"duplicates": report.Duplicates,
		"failed":     report.Failed,
		"total_kwh":  report.Total.String(),
	}).Info("[CRON] Начисление генерации завершено")
	return report, nil
}

// Yield считает суточную генерацию: Σ количество × ставка уровня, ×1.07 для VIP,
// с усечением до 3 знаков. Уровни без ставки ничего не дают.
func Yield(units map[int]int64, rates map[int]money.Amount, vip bool) (money.Amount, error) {
	var total money.Amount
	for level, count := range units {
		part, err := rates[level].Mul(count)
		if err != nil {
			return 0, err
		}
		if total, err = money.FromDecimal(total.Decimal().Add(part.Decimal())); err != nil {
			return 0, err
		}
	}
	if vip {
		return total.MulRate(VIPMultiplier)
	}
	return total, nil
}

func (s *Service) accrueOne(ctx context.Context, date time.Time, c domain.AccrualCandidate,
	rates map[int]money.Amount) (bool, money.Amount, error) {
	var (
		credited bool
		amount   money.Amount
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		locked, err := tx.LockAccounts(ctx, c.AccountID)
		if err != nil {
			return err
		}
		vip := locked[c.AccountID].VIP
		amount, err = Yield(c.Units, rates, vip)
		if err != nil {
			return err
		}

		credited, err = tx.InsertAccrual(ctx, &domain.AccrualRecord{
			Date:      date,
			AccountID: c.AccountID,
			Yield:     amount,
			Units:     c.TotalUnits(),
			VIP:       vip,
		})
		if err != nil || !credited {
			return err
		}
		if !amount.IsPositive() {
			return nil
		}
		return tx.Credit(ctx, c.AccountID, domain.BucketUtility, amount)
	})
	return credited, amount, err
}
