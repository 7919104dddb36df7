package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"efhc.app/ledger/internal/domain"
)

// --- Заявки на вывод ---

const withdrawalColumns = `id, account_id, asset, to_address, amount::text, status, idempotency_key,
	tx_hash, admin_comment, admin_id, created_at, updated_at`

func scanWithdrawal(row pgx.Row) (*domain.Withdrawal, error) {
	var w domain.Withdrawal
	amount := num(&w.Amount)
	err := row.Scan(&w.ID, &w.AccountID, &w.Asset, &w.Address, amount.target(), &w.Status, &w.IdempotencyKey,
		&w.TxHash, &w.Comment, &w.AdminID, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := amount.apply(); err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *txRepo) CreateWithdrawal(ctx context.Context, w *domain.Withdrawal) (bool, error) {
	if err := r.ensure(ctx, w.AccountID); err != nil {
		return false, err
	}
	err := r.tx.QueryRow(ctx, `
		INSERT INTO withdrawals (account_id, asset, to_address, amount, status, idempotency_key)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id, created_at, updated_at
	`, w.AccountID, w.Asset, w.Address, w.Amount.String(), w.Status, w.IdempotencyKey).
		Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("ошибка создания заявки на вывод: %w", err)
	}

	existing, err := scanWithdrawal(r.tx.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE idempotency_key = $1`, w.IdempotencyKey))
	if err != nil {
		return false, notFound(err, "заявка на вывод")
	}
	*w = *existing
	return false, nil
}

func (r *txRepo) GetWithdrawal(ctx context.Context, id int64) (*domain.Withdrawal, error) {
	w, err := scanWithdrawal(r.tx.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "заявка на вывод")
	}
	return w, nil
}

func (r *txRepo) LockWithdrawal(ctx context.Context, id int64) (*domain.Withdrawal, error) {
	w, err := scanWithdrawal(r.tx.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "заявка на вывод")
	}
	return w, nil
}

func (r *txRepo) UpdateWithdrawal(ctx context.Context, w *domain.Withdrawal) error {
	err := r.tx.QueryRow(ctx, `
		UPDATE withdrawals
		SET status = $2, tx_hash = $3, admin_comment = $4, admin_id = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, w.ID, w.Status, w.TxHash, w.Comment, w.AdminID).Scan(&w.UpdatedAt)
	if err != nil {
		return notFound(err, "заявка на вывод")
	}
	return nil
}

func (r *txRepo) ListWithdrawals(ctx context.Context, f domain.WithdrawalFilter) ([]domain.Withdrawal, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+withdrawalColumns+`
		FROM withdrawals
		WHERE ($1::bigint = 0 OR account_id = $1::bigint)
		  AND ($2::text = '' OR status = $2::text)
		ORDER BY id DESC
		LIMIT NULLIF($3::int, 0)
	`, f.AccountID, string(f.Status), f.Limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения заявок на вывод: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Withdrawal, 0)
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения заявки на вывод: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// --- Рефералы ---

const referralColumns = `referee_id, referrer_id, active, created_at, activated_at`

func scanReferral(row pgx.Row) (*domain.Referral, error) {
	var ref domain.Referral
	if err := row.Scan(&ref.RefereeID, &ref.ReferrerID, &ref.Active, &ref.CreatedAt, &ref.ActivatedAt); err != nil {
		return nil, err
	}
	return &ref, nil
}

func (r *txRepo) InsertReferral(ctx context.Context, ref *domain.Referral) (bool, error) {
	if err := r.ensure(ctx, ref.RefereeID); err != nil {
		return false, err
	}
	if err := r.ensure(ctx, ref.ReferrerID); err != nil {
		return false, err
	}
	err := r.tx.QueryRow(ctx, `
		INSERT INTO referrals (referee_id, referrer_id)
		VALUES ($1, $2)
		ON CONFLICT (referee_id) DO NOTHING
		RETURNING created_at
	`, ref.RefereeID, ref.ReferrerID).Scan(&ref.CreatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("ошибка записи реферала: %w", err)
	}

	existing, err := scanReferral(r.tx.QueryRow(ctx,
		`SELECT `+referralColumns+` FROM referrals WHERE referee_id = $1`, ref.RefereeID))
	if err != nil {
		return false, notFound(err, "реферал")
	}
	*ref = *existing
	return false, nil
}

func (r *txRepo) LockReferral(ctx context.Context, refereeID int64) (*domain.Referral, error) {
	ref, err := scanReferral(r.tx.QueryRow(ctx,
		`SELECT `+referralColumns+` FROM referrals WHERE referee_id = $1 FOR UPDATE`, refereeID))
	if err != nil {
		return nil, notFound(err, "реферал")
	}
	return ref, nil
}

func (r *txRepo) ActivateReferral(ctx context.Context, refereeID int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE referrals SET active = TRUE, activated_at = $2 WHERE referee_id = $1`, refereeID, at)
	if err != nil {
		return fmt.Errorf("ошибка активации реферала: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(pgx.ErrNoRows, "реферал")
	}
	return nil
}

func (r *txRepo) CountActiveReferrals(ctx context.Context, referrerID int64) (int64, error) {
	var n int64
	err := r.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM referrals WHERE referrer_id = $1 AND active`, referrerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта рефералов: %w", err)
	}
	return n, nil
}

func (r *txRepo) ListReferrals(ctx context.Context, referrerID int64) ([]domain.Referral, error) {
	rows, err := r.tx.Query(ctx,
		`SELECT `+referralColumns+` FROM referrals WHERE referrer_id = $1 ORDER BY referee_id`, referrerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения рефералов: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Referral, 0)
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения реферала: %w", err)
		}
		out = append(out, *ref)
	}
	return out, rows.Err()
}
