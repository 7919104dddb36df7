// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание и запускает задачи по одной:
// тик, пришедший во время предыдущего запуска, пропускается.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/metrics"
)

// Job — фоновая задача.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron   *cron.Cron
	locker Locker
	loc    *time.Location
	jobs   []Job

	mu      sync.Mutex
	running map[string]bool
}

// NewScheduler создаёт планировщик в часовом поясе loc.
func NewScheduler(loc *time.Location, locker Locker) *Scheduler {
	if locker == nil {
		locker = LocalLocker{}
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.StandardLogger()))),
	)
	return &Scheduler{cron: c, locker: locker, loc: loc, running: make(map[string]bool)}
}

// Add регистрирует задачу. Ошибка означает некорректное расписание.
func (s *Scheduler) Add(job Job) error {
	if _, err := cron.ParseStandard(job.Spec); err != nil {
		return fmt.Errorf("некорректное расписание задачи %s (%q): %w", job.Name, job.Spec, err)
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Jobs возвращает зарегистрированные задачи.
func (s *Scheduler) Jobs() []Job {
	return s.jobs
}

// Start запускает все фоновые задачи. Отмена ctx прерывает текущие запуски.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, job := range s.jobs {
		if _, err := s.cron.AddFunc(job.Spec, func() { s.RunJob(ctx, job) }); err != nil {
			return fmt.Errorf("ошибка регистрации задачи %s: %w", job.Name, err)
		}
	}

	s.cron.Start()
	log.WithFields(log.Fields{
		"jobs":     len(s.jobs),
		"timezone": s.loc.String(),
	}).Info("Планировщик задач запущен")
	return nil
}

// RunExclusive выполняет fn под именем задачи name: не больше одного
// запуска в процессе и только при взятой аренде. Если задача уже идёт
// здесь или на другой реплике, возвращает common.ErrJobBusy.
func (s *Scheduler) RunExclusive(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.running[name] {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", common.ErrJobBusy, name)
	}
	s.running[name] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	ok, err := s.locker.Acquire(ctx, name)
	if err != nil {
		return fmt.Errorf("не удалось взять аренду: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s выполняется другой репликой", common.ErrJobBusy, name)
	}
	return fn(ctx)
}

// RunJob выполняет один тик задачи, если удалось взять аренду.
func (s *Scheduler) RunJob(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}

	started := time.Now()
	err := s.RunExclusive(ctx, job.Name, job.Run)
	if errors.Is(err, common.ErrJobBusy) {
		log.WithField("job", job.Name).Debug("[CRON] Задача уже выполняется")
		return
	}
	metrics.RecordJobRun(job.Name, err)

	entry := log.WithFields(log.Fields{"job": job.Name, "took": time.Since(started).Round(time.Millisecond)})
	if err != nil {
		entry.WithError(err).Error("[CRON] Ошибка выполнения задачи")
		return
	}
	entry.Debug("[CRON] Задача выполнена")
}

// Stop останавливает планировщик и ждёт завершения текущих задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
