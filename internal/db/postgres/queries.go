// Package postgres — вспомогательные функции для работы с БД.
// queries.go применяет миграции и разбирает NUMERIC-колонки.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/money"
)

// migrationLockKey — ключ advisory-блокировки, под которой реплики
// применяют миграции по очереди.
const migrationLockKey = 0x0EF4C

// applyMigration применяет одну миграцию, если её версии ещё нет в
// schema_migrations. Возвращает true, если миграция выполнена сейчас.
func applyMigration(ctx context.Context, pool *pgxpool.Pool, m migration) (bool, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
		return false, fmt.Errorf("ошибка блокировки миграций: %w", err)
	}

	tag, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING", m.version,
	)
	if err != nil {
		return false, fmt.Errorf("ошибка записи версии миграции %d: %w", m.version, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, m.sql); err != nil {
		return false, fmt.Errorf("ошибка выполнения миграции %d: %w", m.version, err)
	}
	return true, tx.Commit(ctx)
}

// numeric — приёмник для колонки, выбранной как ::text.
// Суммы передаются в БД и обратно только текстом, без float.
type numeric struct {
	raw string
	dst *money.Amount
}

// num создаёт приёмник для Scan.
func num(dst *money.Amount) *numeric { return &numeric{dst: dst} }

// target возвращает указатель для Scan.
func (n *numeric) target() *string { return &n.raw }

// apply переносит разобранное значение в dst.
func (n *numeric) apply() error {
	v, err := money.Parse(n.raw)
	if err != nil {
		return fmt.Errorf("ошибка разбора суммы %q: %w", n.raw, err)
	}
	*n.dst = v
	return nil
}

// applyAll разбирает все приёмники после Scan.
func applyAll(nums ...*numeric) error {
	for _, n := range nums {
		if err := n.apply(); err != nil {
			return err
		}
	}
	return nil
}

// notFound переводит pgx.ErrNoRows в common.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, common.ErrNotFound)
	}
	return fmt.Errorf("ошибка чтения (%s): %w", what, err)
}
