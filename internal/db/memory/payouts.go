package memory

import (
	"context"
	"sort"
	"time"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/domain"
)

// --- Заявки на вывод ---

func (t *tx) CreateWithdrawal(_ context.Context, w *domain.Withdrawal) (bool, error) {
	if id, ok := t.st.withdrawalKeys[w.IdempotencyKey]; ok {
		*w = t.st.withdrawals[id]
		return false, nil
	}
	t.ensure(w.AccountID)
	now := t.now()
	w.ID = t.st.nextID()
	w.CreatedAt = now
	w.UpdatedAt = now
	t.st.withdrawals[w.ID] = *w
	t.st.withdrawalKeys[w.IdempotencyKey] = w.ID
	return true, nil
}

func (t *tx) GetWithdrawal(_ context.Context, id int64) (*domain.Withdrawal, error) {
	w, ok := t.st.withdrawals[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &w, nil
}

func (t *tx) LockWithdrawal(ctx context.Context, id int64) (*domain.Withdrawal, error) {
	return t.GetWithdrawal(ctx, id)
}

func (t *tx) UpdateWithdrawal(_ context.Context, w *domain.Withdrawal) error {
	cur, ok := t.st.withdrawals[w.ID]
	if !ok {
		return common.ErrNotFound
	}
	cur.Status = w.Status
	cur.TxHash = w.TxHash
	cur.Comment = w.Comment
	cur.AdminID = w.AdminID
	cur.UpdatedAt = t.now()
	t.st.withdrawals[w.ID] = cur
	w.UpdatedAt = cur.UpdatedAt
	return nil
}

func (t *tx) ListWithdrawals(_ context.Context, f domain.WithdrawalFilter) ([]domain.Withdrawal, error) {
	out := make([]domain.Withdrawal, 0)
	for _, w := range t.st.withdrawals {
		if f.AccountID != 0 && w.AccountID != f.AccountID {
			continue
		}
		if f.Status != "" && w.Status != f.Status {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// --- Рефералы ---

func (t *tx) InsertReferral(_ context.Context, r *domain.Referral) (bool, error) {
	if cur, ok := t.st.referrals[r.RefereeID]; ok {
		*r = cur
		return false, nil
	}
	t.ensure(r.RefereeID)
	t.ensure(r.ReferrerID)
	r.CreatedAt = t.now()
	t.st.referrals[r.RefereeID] = *r
	return true, nil
}

func (t *tx) LockReferral(_ context.Context, refereeID int64) (*domain.Referral, error) {
	r, ok := t.st.referrals[refereeID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &r, nil
}

func (t *tx) ActivateReferral(_ context.Context, refereeID int64, at time.Time) error {
	r, ok := t.st.referrals[refereeID]
	if !ok {
		return common.ErrNotFound
	}
	r.Active = true
	r.ActivatedAt = &at
	t.st.referrals[refereeID] = r
	return nil
}

func (t *tx) CountActiveReferrals(_ context.Context, referrerID int64) (int64, error) {
	var n int64
	for _, r := range t.st.referrals {
		if r.ReferrerID == referrerID && r.Active {
			n++
		}
	}
	return n, nil
}

func (t *tx) ListReferrals(_ context.Context, referrerID int64) ([]domain.Referral, error) {
	out := make([]domain.Referral, 0)
	for _, r := range t.st.referrals {
		if r.ReferrerID == referrerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RefereeID < out[j].RefereeID })
	return out, nil
}
