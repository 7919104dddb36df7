package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/domain"
)

// uniqueViolation — код ошибки PostgreSQL для нарушения UNIQUE.
const uniqueViolation = "23505"

// --- Панели и начисления ---

func (r *txRepo) CountActivePanels(ctx context.Context, accountID int64, at time.Time) (int64, error) {
	var n int64
	err := r.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(count), 0) FROM panels
		WHERE account_id = $1 AND active AND expires_at > $2
	`, accountID, at).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта панелей: %w", err)
	}
	return n, nil
}

func (r *txRepo) InsertPanel(ctx context.Context, p *domain.Panel) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO panels (account_id, level, count, activated_at, expires_at, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, p.AccountID, p.Level, p.Count, p.ActivatedAt, p.ExpiresAt, p.Active).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("ошибка создания панели: %w", err)
	}
	return nil
}

func (r *txRepo) ExpirePanels(ctx context.Context, at time.Time) (int64, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE panels SET active = FALSE WHERE active AND expires_at <= $1`, at)
	if err != nil {
		return 0, fmt.Errorf("ошибка деактивации панелей: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *txRepo) YieldRates(ctx context.Context) ([]domain.YieldRate, error) {
	rows, err := r.tx.Query(ctx, `SELECT level, daily_kwh::text FROM panel_levels ORDER BY level`)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ставок: %w", err)
	}
	defer rows.Close()

	var out []domain.YieldRate
	for rows.Next() {
		var yr domain.YieldRate
		daily := num(&yr.Daily)
		if err := rows.Scan(&yr.Level, daily.target()); err != nil {
			return nil, fmt.Errorf("ошибка чтения ставки: %w", err)
		}
		if err := daily.apply(); err != nil {
			return nil, err
		}
		out = append(out, yr)
	}
	return out, rows.Err()
}

func (r *txRepo) ListAccrualCandidates(ctx context.Context, at time.Time) ([]domain.AccrualCandidate, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT p.account_id, a.vip, p.level, SUM(p.count)
		FROM panels p
		JOIN accounts a ON a.id = p.account_id
		WHERE p.active AND p.expires_at > $1
		GROUP BY p.account_id, a.vip, p.level
		ORDER BY p.account_id, p.level
	`, at)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки кандидатов на начисление: %w", err)
	}
	defer rows.Close()

	var out []domain.AccrualCandidate
	for rows.Next() {
		var (
			accountID int64
			vip       bool
			level     int
			count     int64
		)
		if err := rows.Scan(&accountID, &vip, &level, &count); err != nil {
			return nil, fmt.Errorf("ошибка чтения кандидата: %w", err)
		}
		if n := len(out); n == 0 || out[n-1].AccountID != accountID {
			out = append(out, domain.AccrualCandidate{AccountID: accountID, VIP: vip, Units: map[int]int64{}})
		}
		out[len(out)-1].Units[level] += count
	}
	return out, rows.Err()
}

func (r *txRepo) InsertAccrual(ctx context.Context, rec *domain.AccrualRecord) (bool, error) {
	tag, err := r.tx.Exec(ctx, `
		INSERT INTO accrual_log (accrual_date, account_id, yield_kwh, units, vip)
		VALUES ($1, $2, $3::numeric, $4, $5)
		ON CONFLICT (accrual_date, account_id) DO NOTHING
	`, rec.Date, rec.AccountID, rec.Yield.String(), rec.Units, rec.VIP)
	if err != nil {
		return false, fmt.Errorf("ошибка записи начисления: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// --- Заказы ---

const orderColumns = `id, ref, account_id, kind, offer_code, external_asset, external_amount::text,
	credit_amount::text, idempotency_key, status, external_tx_ref, failure_reason, created_at, updated_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	ext, credit := num(&o.ExternalAmount), num(&o.CreditAmount)
	err := row.Scan(&o.ID, &o.Ref, &o.AccountID, &o.Kind, &o.OfferCode, &o.ExternalAsset, ext.target(),
		credit.target(), &o.IdempotencyKey, &o.Status, &o.ExternalTxRef, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := applyAll(ext, credit); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *txRepo) CreateOrder(ctx context.Context, o *domain.Order) (bool, error) {
	if err := r.ensure(ctx, o.AccountID); err != nil {
		return false, err
	}
	err := r.tx.QueryRow(ctx, `
		INSERT INTO orders (ref, account_id, kind, offer_code, external_asset, external_amount,
			credit_amount, idempotency_key, status)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id, created_at, updated_at
	`, o.Ref, o.AccountID, o.Kind, o.OfferCode, o.ExternalAsset, o.ExternalAmount.String(),
		o.CreditAmount.String(), o.IdempotencyKey, o.Status).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("ошибка создания заказа: %w", err)
	}

	// Ключ уже занят, возвращаем существующий заказ
	existing, err := scanOrder(r.tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE idempotency_key = $1`, o.IdempotencyKey))
	if err != nil {
		return false, notFound(err, "заказ")
	}
	*o = *existing
	return false, nil
}

func (r *txRepo) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "заказ")
	}
	return o, nil
}

func (r *txRepo) LockOrder(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "заказ")
	}
	return o, nil
}

// LockOrderByRef ищет сначала по публичной ссылке, затем по ключу идемпотентности.
func (r *txRepo) LockOrderByRef(ctx context.Context, ref string) (*domain.Order, error) {
	o, err := scanOrder(r.tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE ref = $1 FOR UPDATE`, ref))
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ошибка поиска заказа: %w", err)
	}
	o, err = scanOrder(r.tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE idempotency_key = $1 FOR UPDATE`, ref))
	if err != nil {
		return nil, notFound(err, "заказ")
	}
	return o, nil
}

func (r *txRepo) UpdateOrder(ctx context.Context, o *domain.Order) error {
	err := r.tx.QueryRow(ctx, `
		UPDATE orders
		SET status = $2, external_tx_ref = $3, failure_reason = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, o.ID, o.Status, o.ExternalTxRef, o.FailureReason).Scan(&o.UpdatedAt)
	if err != nil {
		return notFound(err, "заказ")
	}
	return nil
}

func (r *txRepo) InsertFulfillment(ctx context.Context, f *domain.FulfillmentRequest) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO fulfillment_requests (account_id, kind, order_id, source, status, note)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, f.AccountID, f.Kind, f.OrderID, f.Source, f.Status, f.Note).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания заявки на выдачу: %w", err)
	}
	return nil
}

func (r *txRepo) ListFulfillments(ctx context.Context, status string) ([]domain.FulfillmentRequest, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT id, account_id, kind, order_id, source, status, note, created_at
		FROM fulfillment_requests
		WHERE $1::text = '' OR status = $1::text
		ORDER BY id
	`, status)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения заявок: %w", err)
	}
	defer rows.Close()

	var out []domain.FulfillmentRequest
	for rows.Next() {
		var f domain.FulfillmentRequest
		if err := rows.Scan(&f.ID, &f.AccountID, &f.Kind, &f.OrderID, &f.Source, &f.Status, &f.Note, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка чтения заявки: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// --- Внешние события ---

func (r *txRepo) MarkEventProcessed(ctx context.Context, ev *domain.ProcessedEvent) (bool, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO processed_events (event_id, source, outcome, note)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING created_at
	`, ev.ID, ev.Source, ev.Outcome, ev.Note).Scan(&ev.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ошибка записи события: %w", err)
	}
	return true, nil
}

func (r *txRepo) SetEventOutcome(ctx context.Context, id, outcome, note string) error {
	tag, err := r.tx.Exec(ctx, `UPDATE processed_events SET outcome = $2, note = $3 WHERE event_id = $1`, id, outcome, note)
	if err != nil {
		return fmt.Errorf("ошибка обновления события: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("событие %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func (r *txRepo) GetEvent(ctx context.Context, id string) (*domain.ProcessedEvent, error) {
	var ev domain.ProcessedEvent
	err := r.tx.QueryRow(ctx, `
		SELECT event_id, source, outcome, note, created_at FROM processed_events WHERE event_id = $1
	`, id).Scan(&ev.ID, &ev.Source, &ev.Outcome, &ev.Note, &ev.CreatedAt)
	if err != nil {
		return nil, notFound(err, "событие")
	}
	return &ev, nil
}

// --- Розыгрыши ---

const drawColumns = `code, title, target_participants, ticket_price::text, prize, status,
	winner_ticket_id, winner_account_id, created_at, settled_at`

func scanDraw(row pgx.Row) (*domain.Draw, error) {
	var d domain.Draw
	price := num(&d.TicketPrice)
	err := row.Scan(&d.Code, &d.Title, &d.Target, price.target(), &d.Prize, &d.Status,
		&d.WinnerTicketID, &d.WinnerAccountID, &d.CreatedAt, &d.SettledAt)
	if err != nil {
		return nil, err
	}
	return &d, price.apply()
}

func (r *txRepo) InsertDraw(ctx context.Context, d *domain.Draw) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO draws (code, title, target_participants, ticket_price, prize, status)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
		RETURNING created_at
	`, d.Code, d.Title, d.Target, d.TicketPrice.String(), d.Prize, d.Status).Scan(&d.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("розыгрыш %s: %w", d.Code, common.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("ошибка создания розыгрыша: %w", err)
	}
	return nil
}

func (r *txRepo) GetDraw(ctx context.Context, code string) (*domain.Draw, error) {
	d, err := scanDraw(r.tx.QueryRow(ctx, `SELECT `+drawColumns+` FROM draws WHERE code = $1`, code))
	if err != nil {
		return nil, notFound(err, "розыгрыш")
	}
	return d, nil
}

func (r *txRepo) LockDraw(ctx context.Context, code string) (*domain.Draw, error) {
	d, err := scanDraw(r.tx.QueryRow(ctx, `SELECT `+drawColumns+` FROM draws WHERE code = $1 FOR UPDATE`, code))
	if err != nil {
		return nil, notFound(err, "розыгрыш")
	}
	return d, nil
}

func (r *txRepo) ListReadyDraws(ctx context.Context) ([]string, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT d.code
		FROM draws d
		WHERE d.status = 'active'
		  AND (SELECT COUNT(*) FROM draw_tickets t WHERE t.draw_code = d.code) >= d.target_participants
		ORDER BY d.code
	`)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки розыгрышей: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("ошибка чтения розыгрыша: %w", err)
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

func (r *txRepo) AppendTickets(ctx context.Context, code string, accountID int64, count int64, at time.Time) ([]domain.Ticket, error) {
	rows, err := r.tx.Query(ctx, `
		INSERT INTO draw_tickets (draw_code, account_id, created_at)
		SELECT $1::text, $2::bigint, $3::timestamptz FROM generate_series(1, $4::bigint)
		RETURNING id
	`, code, accountID, at, count)
	if err != nil {
		return nil, fmt.Errorf("ошибка записи билетов: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Ticket, 0, count)
	for rows.Next() {
		tk := domain.Ticket{DrawCode: code, AccountID: accountID, CreatedAt: at}
		if err := rows.Scan(&tk.ID); err != nil {
			return nil, fmt.Errorf("ошибка чтения билета: %w", err)
		}
		out = append(out, tk)
	}
	return out, rows.Err()
}

func (r *txRepo) CountTickets(ctx context.Context, code string) (int64, error) {
	var n int64
	if err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM draw_tickets WHERE draw_code = $1`, code).Scan(&n); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта билетов: %w", err)
	}
	return n, nil
}

func (r *txRepo) ListTickets(ctx context.Context, code string) ([]domain.Ticket, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT id, draw_code, account_id, created_at FROM draw_tickets WHERE draw_code = $1 ORDER BY id
	`, code)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения билетов: %w", err)
	}
	defer rows.Close()

	var out []domain.Ticket
	for rows.Next() {
		var tk domain.Ticket
		if err := rows.Scan(&tk.ID, &tk.DrawCode, &tk.AccountID, &tk.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка чтения билета: %w", err)
		}
		out = append(out, tk)
	}
	return out, rows.Err()
}

func (r *txRepo) SettleDraw(ctx context.Context, d *domain.Draw) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE draws
		SET status = $2, winner_ticket_id = $3, winner_account_id = $4, settled_at = $5
		WHERE code = $1 AND status = 'active'
	`, d.Code, d.Status, d.WinnerTicketID, d.WinnerAccountID, d.SettledAt)
	if err != nil {
		return fmt.Errorf("ошибка закрытия розыгрыша: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrInvalidStateTransition
	}
	return nil
}

// --- Задания ---

func (r *txRepo) GetTask(ctx context.Context, code string) (*domain.Task, error) {
	var t domain.Task
	reward := num(&t.Reward)
	err := r.tx.QueryRow(ctx, `
		SELECT code, title, reward_bonus::text, active FROM tasks WHERE code = $1
	`, code).Scan(&t.Code, &t.Title, reward.target(), &t.Active)
	if err != nil {
		return nil, notFound(err, "задание")
	}
	return &t, reward.apply()
}

func (r *txRepo) InsertTaskCompletion(ctx context.Context, code string, accountID int64, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, `
		INSERT INTO task_completions (task_code, account_id, completed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (task_code, account_id) DO NOTHING
	`, code, accountID, at)
	if err != nil {
		return false, fmt.Errorf("ошибка отметки задания: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
