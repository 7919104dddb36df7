// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: выбирает хранилище, создаёт сервисы, обработчики,
// планировщик и HTTP-сервер.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/config"
	"efhc.app/ledger/internal/db/memory"
	"efhc.app/ledger/internal/db/postgres"
	"efhc.app/ledger/internal/features/accrual"
	"efhc.app/ledger/internal/features/admin"
	"efhc.app/ledger/internal/features/draws"
	"efhc.app/ledger/internal/features/ledger"
	"efhc.app/ledger/internal/features/panels"
	"efhc.app/ledger/internal/features/referrals"
	"efhc.app/ledger/internal/features/settlement"
	"efhc.app/ledger/internal/features/tasks"
	"efhc.app/ledger/internal/features/withdrawals"
	"efhc.app/ledger/internal/httpapi"
	"efhc.app/ledger/internal/jobs"
	"efhc.app/ledger/internal/notify"
	"efhc.app/ledger/internal/storage"
)

// App содержит все компоненты приложения.
type App struct {
	Server    *http.Server
	Scheduler *jobs.Scheduler
	Limiter   *httpapi.RateLimiter
	DB        *pgxpool.Pool // nil при APP_ENV=memory
	Redis     *redis.Client // nil без REDIS_ADDR
}

// New создаёт и инициализирует приложение.
// Компоненты создаются в порядке зависимостей.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if !cfg.InMemory() && cfg.WebhookSecret == "" {
		return nil, config.ErrNoWebhookSecret
	}
	a := &App{}

	// === 1. Хранилище ===
	var (
		store     storage.Store
		adminRepo admin.Repository
	)
	if cfg.InMemory() {
		mem := memory.New()
		mem.SeedDefaults()
		store = mem
		adminRepo = admin.NewMemoryRepository()
		log.Warn("APP_ENV=memory: данные хранятся в памяти до перезапуска")
	} else {
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
		}
		a.DB = pool
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			a.Close()
			return nil, fmt.Errorf("ошибка миграций: %w", err)
		}
		store = postgres.NewStore(pool)
		adminRepo = admin.NewRepository(pool)
	}

	// === 2. Уведомления администраторам ===
	var notifier notify.Notifier = notify.Log{}
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.AdminIDs)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
		}
		notifier = tg
	}

	// === 3. Сервисы ===
	ledgerService := ledger.NewService(store, ledger.NewBank(cfg.BankAccountID), cfg.AdminIDs)
	if err := ledgerService.Bootstrap(ctx, cfg.GenesisSupply()); err != nil {
		a.Close()
		return nil, fmt.Errorf("ошибка стартовой эмиссии: %w", err)
	}
	panelService := panels.NewService(store, ledgerService, cfg)
	referralService := referrals.NewService(store, ledgerService, cfg)
	panelService.SetRewardHook(referralService)
	withdrawalService := withdrawals.NewService(store, ledgerService, notifier, cfg)
	settlementService := settlement.NewService(store, ledgerService, settlement.NewCatalog(settlement.DefaultOffers), notifier)
	drawService := draws.NewService(store, ledgerService, notifier, cfg)
	accrualService := accrual.NewService(store, cfg)
	taskService := tasks.NewService(ledgerService)
	adminService := admin.NewService(adminRepo, cfg)

	var watcher *settlement.ChainWatcher
	if cfg.TONWalletAddress != "" {
		watcher = settlement.NewChainWatcher(settlement.ChainWatcherConfig{
			BaseURL: cfg.TONAPIBaseURL,
			APIKey:  cfg.TONAPIKey,
			Wallet:  cfg.TONWalletAddress,
			Limit:   cfg.TONPollLimit,
			Timeout: cfg.TONHTTPTimeout,
		}, settlementService)
	}

	// === 4. Планировщик задач ===
	var locker jobs.Locker = jobs.LocalLocker{}
	if cfg.RedisAddr != "" {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
		}
		locker = jobs.NewRedisLocker(a.Redis, replicaID(), cfg.JobLeaseTTL)
	}
	a.Scheduler = jobs.NewScheduler(common.LoadLocation(cfg.AppTimezone), locker)
	if err := jobs.RegisterLedgerJobs(a.Scheduler, cfg, jobs.Services{
		Accrual: accrualService,
		Draws:   drawService,
		Panels:  panelService,
		Chain:   watcher,
	}); err != nil {
		a.Close()
		return nil, err
	}

	// === 5. Обработчики и маршруты ===
	a.Limiter = httpapi.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	router := NewRouter(Handlers{
		Ledger:      ledger.NewHandler(ledgerService),
		Panels:      panels.NewHandler(panelService),
		Settlement:  settlement.NewHandler(settlementService),
		Draws:       draws.NewHandler(drawService),
		Tasks:       tasks.NewHandler(taskService),
		Accrual:     accrual.NewHandler(accrualService, a.Scheduler),
		Admin:       admin.NewHandler(adminService),
		Withdrawals: withdrawals.NewHandler(withdrawalService),
		Referrals:   referrals.NewHandler(referralService),
	}, RouterConfig{
		Auth:          adminService,
		Limiter:       a.Limiter,
		WebhookSecret: cfg.WebhookSecret,
	})
	a.Server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return a, nil
}

// Close освобождает ресурсы: лимитер, Redis и пул БД.
func (a *App) Close() {
	if a.Limiter != nil {
		a.Limiter.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.WithError(err).Warn("Ошибка закрытия Redis")
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// replicaID — владелец аренды задач в Redis.
func replicaID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
