// Package postgres управляет подключением к базе данных PostgreSQL
// и реализует хранилище леджера поверх pgx.
//
// Пул соединений pgxpool автоматически управляет открытием/закрытием
// соединений, переподключается при обрыве и ограничивает их число.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"efhc.app/ledger/internal/config"
)

// NewPool создаёт новый пул соединений к PostgreSQL.
//
// Параметры:
//   - ctx: контекст для отмены операции
//   - cfg: конфигурация с параметрами подключения
//
// Пример:
//
//	pool, err := postgres.NewPool(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return Connect(ctx, cfg.DatabaseDSN(), cfg.DBMaxConns, cfg.DBMinConns)
}

// Connect создаёт пул по готовой строке подключения.
func Connect(ctx context.Context, dsn string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	poolConfig.MaxConns = maxConns                  // Максимум соединений
	poolConfig.MinConns = minConns                  // Минимум (держать открытыми)
	poolConfig.MaxConnLifetime = 1 * time.Hour      // Время жизни одного соединения
	poolConfig.MaxConnIdleTime = 30 * time.Minute   // Время простоя до закрытия
	poolConfig.HealthCheckPeriod = 1 * time.Minute  // Проверка здоровья соединений

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула: %w", err)
	}

	// Проверяем, что база доступна
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("база данных недоступна: %w", err)
	}

	log.Info("Подключение к PostgreSQL установлено")
	return pool, nil
}

// RunMigrations создаёт таблицу schema_migrations и применяет
// все встроенные миграции по порядку номеров.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ошибка создания таблицы миграций: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		fresh, err := applyMigration(ctx, pool, m)
		if err != nil {
			return err
		}
		if fresh {
			applied++
			log.WithField("version", m.version).Debug("Миграция применена")
		}
	}

	log.WithFields(log.Fields{"applied": applied, "total": len(migrations)}).Info("Схема БД актуальна")
	return nil
}
