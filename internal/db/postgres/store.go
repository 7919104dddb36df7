// Package postgres — store.go реализует storage.Store поверх pgx.
// Каждый InTx открывает одну транзакцию READ COMMITTED; строки счетов
// блокируются SELECT ... FOR UPDATE в порядке возрастания id.
package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/money"
	"efhc.app/ledger/internal/storage"
)

// Store — хранилище леджера в PostgreSQL.
type Store struct {
	db *pgxpool.Pool
}

// NewStore создаёт хранилище поверх пула.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// InTx открывает транзакцию, выполняет fn и фиксирует результат.
// Ошибка fn откатывает транзакцию целиком.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	pgTx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer pgTx.Rollback(ctx)

	if err := fn(ctx, &txRepo{tx: pgTx}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// txRepo реализует storage.Tx внутри pgx.Tx.
type txRepo struct {
	tx pgx.Tx
}

var _ storage.Tx = (*txRepo)(nil)

// bucketColumn сопоставляет бакет колонке. Имена колонок не приходят снаружи.
func bucketColumn(b domain.Bucket) (string, error) {
	switch b {
	case domain.BucketMain:
		return "main_balance", nil
	case domain.BucketBonus:
		return "bonus_balance", nil
	case domain.BucketUtility:
		return "utility_counter", nil
	}
	return "", fmt.Errorf("неизвестный баланс %q", b)
}

const accountColumns = `id, main_balance::text, bonus_balance::text, utility_counter::text, vip, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	mainN, bonusN, utilN := num(&a.Main), num(&a.Bonus), num(&a.Utility)
	if err := row.Scan(&a.ID, mainN.target(), bonusN.target(), utilN.target(), &a.VIP, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if err := applyAll(mainN, bonusN, utilN); err != nil {
		return nil, err
	}
	return &a, nil
}

// ensure создаёт нулевой счёт, если его нет (race-free за счёт ON CONFLICT).
func (r *txRepo) ensure(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO accounts (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id)
	if err != nil {
		return fmt.Errorf("ошибка создания счёта %d: %w", id, err)
	}
	return nil
}

func (r *txRepo) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	if err := r.ensure(ctx, id); err != nil {
		return nil, err
	}
	return r.PeekAccount(ctx, id)
}

func (r *txRepo) PeekAccount(ctx context.Context, id int64) (*domain.Account, error) {
	acc, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "счёт")
	}
	return acc, nil
}

func (r *txRepo) LockAccounts(ctx context.Context, ids ...int64) (map[int64]*domain.Account, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for _, id := range sorted {
		if err := r.ensure(ctx, id); err != nil {
			return nil, err
		}
	}

	rows, err := r.tx.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`, sorted)
	if err != nil {
		return nil, fmt.Errorf("ошибка блокировки счетов: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]*domain.Account, len(sorted))
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения счёта: %w", err)
		}
		out[acc.ID] = acc
	}
	return out, rows.Err()
}

func (r *txRepo) Credit(ctx context.Context, id int64, bucket domain.Bucket, amount money.Amount) error {
	col, err := bucketColumn(bucket)
	if err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx,
		fmt.Sprintf(`UPDATE accounts SET %[1]s = %[1]s + $2::numeric, updated_at = NOW() WHERE id = $1`, col),
		id, amount.String())
	if err != nil {
		return fmt.Errorf("ошибка начисления: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("счёт %d: %w", id, common.ErrNotFound)
	}
	return nil
}

func (r *txRepo) Debit(ctx context.Context, id int64, bucket domain.Bucket, amount money.Amount) error {
	col, err := bucketColumn(bucket)
	if err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx,
		fmt.Sprintf(`UPDATE accounts SET %[1]s = %[1]s - $2::numeric, updated_at = NOW()
			WHERE id = $1 AND %[1]s >= $2::numeric`, col),
		id, amount.String())
	if err != nil {
		return fmt.Errorf("ошибка списания: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrInsufficientBalance
	}
	return nil
}

func (r *txRepo) SetVIP(ctx context.Context, id int64, vip bool) error {
	if err := r.ensure(ctx, id); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `UPDATE accounts SET vip = $2, updated_at = NOW() WHERE id = $1`, id, vip)
	if err != nil {
		return fmt.Errorf("ошибка установки VIP: %w", err)
	}
	return nil
}

func (r *txRepo) SumBalances(ctx context.Context, bucket domain.Bucket) (money.Amount, error) {
	col, err := bucketColumn(bucket)
	if err != nil {
		return 0, err
	}
	var sum money.Amount
	n := num(&sum)
	if err := r.tx.QueryRow(ctx, fmt.Sprintf(`SELECT COALESCE(SUM(%s), 0)::text FROM accounts`, col)).Scan(n.target()); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта балансов: %w", err)
	}
	return sum, n.apply()
}

// --- Журналы ---

func (r *txRepo) AppendMintBurn(ctx context.Context, rec *domain.MintBurnRecord) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO mint_burn_log (actor_id, direction, currency, amount, note)
		VALUES ($1, $2, $3, $4::numeric, $5)
		RETURNING id, created_at
	`, rec.Actor, rec.Direction, rec.Currency, rec.Amount.String(), rec.Note).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи журнала эмиссии: %w", err)
	}
	return nil
}

func (r *txRepo) AppendTransfer(ctx context.Context, rec *domain.TransferRecord) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO transfer_log (from_id, to_id, currency, amount, reason)
		VALUES ($1, $2, $3, $4::numeric, $5)
		RETURNING id, created_at
	`, rec.FromID, rec.ToID, rec.Currency, rec.Amount.String(), rec.Reason).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи журнала переводов: %w", err)
	}
	return nil
}

func (r *txRepo) SupplyTotals(ctx context.Context, currency domain.Currency) (money.Amount, money.Amount, error) {
	var minted, burned money.Amount
	mintN, burnN := num(&minted), num(&burned)
	err := r.tx.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE direction = 'MINT'), 0)::text,
			COALESCE(SUM(amount) FILTER (WHERE direction = 'BURN'), 0)::text
		FROM mint_burn_log
		WHERE currency = $1
	`, currency).Scan(mintN.target(), burnN.target())
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка подсчёта эмиссии: %w", err)
	}
	return minted, burned, applyAll(mintN, burnN)
}

func (r *txRepo) ListMintBurn(ctx context.Context, limit int) ([]domain.MintBurnRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.tx.Query(ctx, `
		SELECT id, actor_id, direction, currency, amount::text, note, created_at
		FROM mint_burn_log
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала эмиссии: %w", err)
	}
	defer rows.Close()

	var out []domain.MintBurnRecord
	for rows.Next() {
		var rec domain.MintBurnRecord
		amt := num(&rec.Amount)
		if err := rows.Scan(&rec.ID, &rec.Actor, &rec.Direction, &rec.Currency, amt.target(), &rec.Note, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка чтения записи эмиссии: %w", err)
		}
		if err := amt.apply(); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
