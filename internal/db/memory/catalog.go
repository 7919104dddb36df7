package memory

import (
	"context"
	"sort"
	"time"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/money"
)

// --- Панели и начисления ---

func (t *tx) CountActivePanels(_ context.Context, accountID int64, at time.Time) (int64, error) {
	var n int64
	for i := range t.st.panels {
		p := &t.st.panels[i]
		if p.AccountID == accountID && p.ActiveAt(at) {
			n += p.Count
		}
	}
	return n, nil
}

func (t *tx) InsertPanel(_ context.Context, p *domain.Panel) error {
	p.ID = t.st.nextID()
	t.st.panels = append(t.st.panels, *p)
	return nil
}

func (t *tx) ExpirePanels(_ context.Context, at time.Time) (int64, error) {
	var n int64
	for i := range t.st.panels {
		p := &t.st.panels[i]
		if p.Active && !p.ExpiresAt.After(at) {
			p.Active = false
			n++
		}
	}
	return n, nil
}

func (t *tx) YieldRates(_ context.Context) ([]domain.YieldRate, error) {
	out := make([]domain.YieldRate, 0, len(t.st.rates))
	for level, daily := range t.st.rates {
		out = append(out, domain.YieldRate{Level: level, Daily: daily})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

func (t *tx) ListAccrualCandidates(_ context.Context, at time.Time) ([]domain.AccrualCandidate, error) {
	byAccount := make(map[int64]map[int]int64)
	for i := range t.st.panels {
		p := &t.st.panels[i]
		if !p.ActiveAt(at) {
			continue
		}
		units, ok := byAccount[p.AccountID]
		if !ok {
			units = make(map[int]int64)
			byAccount[p.AccountID] = units
		}
		units[p.Level] += p.Count
	}

	out := make([]domain.AccrualCandidate, 0, len(byAccount))
	for id, units := range byAccount {
		out = append(out, domain.AccrualCandidate{
			AccountID: id,
			VIP:       t.st.accounts[id].VIP,
			Units:     units,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (t *tx) InsertAccrual(_ context.Context, rec *domain.AccrualRecord) (bool, error) {
	key := accrualKey{date: rec.Date.Format(time.DateOnly), accountID: rec.AccountID}
	if _, ok := t.st.accruals[key]; ok {
		return false, nil
	}
	rec.CreatedAt = t.now()
	t.st.accruals[key] = *rec
	return true, nil
}

// --- Заказы ---

func (t *tx) CreateOrder(_ context.Context, o *domain.Order) (bool, error) {
	if id, ok := t.st.orderKeys[o.IdempotencyKey]; ok {
		*o = t.st.orders[id]
		return false, nil
	}
	now := t.now()
	o.ID = t.st.nextID()
	o.CreatedAt = now
	o.UpdatedAt = now
	t.st.orders[o.ID] = *o
	t.st.orderKeys[o.IdempotencyKey] = o.ID
	return true, nil
}

func (t *tx) GetOrder(_ context.Context, id int64) (*domain.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &o, nil
}

func (t *tx) LockOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return t.GetOrder(ctx, id)
}

func (t *tx) LockOrderByRef(ctx context.Context, ref string) (*domain.Order, error) {
	for id, o := range t.st.orders {
		if o.Ref == ref {
			return t.GetOrder(ctx, id)
		}
	}
	if id, ok := t.st.orderKeys[ref]; ok {
		return t.GetOrder(ctx, id)
	}
	return nil, common.ErrNotFound
}

func (t *tx) UpdateOrder(_ context.Context, o *domain.Order) error {
	if _, ok := t.st.orders[o.ID]; !ok {
		return common.ErrNotFound
	}
	o.UpdatedAt = t.now()
	t.st.orders[o.ID] = *o
	return nil
}

func (t *tx) InsertFulfillment(_ context.Context, f *domain.FulfillmentRequest) error {
	f.ID = t.st.nextID()
	f.CreatedAt = t.now()
	t.st.fulfillments = append(t.st.fulfillments, *f)
	return nil
}

func (t *tx) ListFulfillments(_ context.Context, status string) ([]domain.FulfillmentRequest, error) {
	var out []domain.FulfillmentRequest
	for _, f := range t.st.fulfillments {
		if status == "" || f.Status == status {
			out = append(out, f)
		}
	}
	return out, nil
}

// --- Внешние события ---

func (t *tx) MarkEventProcessed(_ context.Context, ev *domain.ProcessedEvent) (bool, error) {
	if _, ok := t.st.events[ev.ID]; ok {
		return false, nil
	}
	ev.CreatedAt = t.now()
	t.st.events[ev.ID] = *ev
	return true, nil
}

func (t *tx) SetEventOutcome(_ context.Context, id, outcome, note string) error {
	ev, ok := t.st.events[id]
	if !ok {
		return common.ErrNotFound
	}
	ev.Outcome = outcome
	ev.Note = note
	t.st.events[id] = ev
	return nil
}

func (t *tx) GetEvent(_ context.Context, id string) (*domain.ProcessedEvent, error) {
	ev, ok := t.st.events[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &ev, nil
}

// --- Розыгрыши ---

func (t *tx) InsertDraw(_ context.Context, d *domain.Draw) error {
	if _, ok := t.st.draws[d.Code]; ok {
		return common.ErrAlreadyExists
	}
	d.CreatedAt = t.now()
	t.st.draws[d.Code] = *d
	return nil
}

func (t *tx) GetDraw(_ context.Context, code string) (*domain.Draw, error) {
	d, ok := t.st.draws[code]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &d, nil
}

func (t *tx) LockDraw(ctx context.Context, code string) (*domain.Draw, error) {
	return t.GetDraw(ctx, code)
}

func (t *tx) ListReadyDraws(_ context.Context) ([]string, error) {
	var out []string
	for code, d := range t.st.draws {
		if d.Status == domain.DrawActive && int64(len(t.st.tickets[code])) >= d.Target {
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (t *tx) AppendTickets(_ context.Context, code string, accountID int64, count int64, at time.Time) ([]domain.Ticket, error) {
	out := make([]domain.Ticket, 0, count)
	for i := int64(0); i < count; i++ {
		tk := domain.Ticket{ID: t.st.nextID(), DrawCode: code, AccountID: accountID, CreatedAt: at}
		t.st.tickets[code] = append(t.st.tickets[code], tk)
		out = append(out, tk)
	}
	return out, nil
}

func (t *tx) CountTickets(_ context.Context, code string) (int64, error) {
	return int64(len(t.st.tickets[code])), nil
}

func (t *tx) ListTickets(_ context.Context, code string) ([]domain.Ticket, error) {
	return append([]domain.Ticket(nil), t.st.tickets[code]...), nil
}

func (t *tx) SettleDraw(_ context.Context, d *domain.Draw) error {
	cur, ok := t.st.draws[d.Code]
	if !ok {
		return common.ErrNotFound
	}
	if cur.Status != domain.DrawActive {
		return common.ErrInvalidStateTransition
	}
	t.st.draws[d.Code] = *d
	return nil
}

// --- Задания ---

func (t *tx) GetTask(_ context.Context, code string) (*domain.Task, error) {
	task, ok := t.st.tasks[code]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &task, nil
}

func (t *tx) InsertTaskCompletion(_ context.Context, code string, accountID int64, at time.Time) (bool, error) {
	key := taskKey{code: code, accountID: accountID}
	if _, ok := t.st.completions[key]; ok {
		return false, nil
	}
	t.st.completions[key] = at
	return true, nil
}

// rates возвращает копию таблицы ставок (для тестов).
func (s *Store) rates() map[int]money.Amount {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]money.Amount, len(s.state.rates))
	for k, v := range s.state.rates {
		out[k] = v
	}
	return out
}
