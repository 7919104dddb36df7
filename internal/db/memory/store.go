// Package memory — хранилище леджера в памяти процесса.
//
// Используется в тестах сервисов и для локального запуска без PostgreSQL
// (APP_ENV=memory). Транзакции сериализуются общим мьютексом: fn работает
// с копией состояния, которая подменяет основное только при успешном
// завершении. Вложенный InTx внутри fn приведёт к взаимоблокировке.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/money"
	"efhc.app/ledger/internal/storage"
)

type accrualKey struct {
	date      string
	accountID int64
}

type taskKey struct {
	code      string
	accountID int64
}

type state struct {
	seq          int64
	accounts     map[int64]domain.Account
	mintBurn     []domain.MintBurnRecord
	transfers    []domain.TransferRecord
	panels       []domain.Panel
	rates        map[int]money.Amount
	accruals     map[accrualKey]domain.AccrualRecord
	orders       map[int64]domain.Order
	orderKeys    map[string]int64
	fulfillments []domain.FulfillmentRequest
	events       map[string]domain.ProcessedEvent
	draws        map[string]domain.Draw
	tickets      map[string][]domain.Ticket
	tasks        map[string]domain.Task
	completions  map[taskKey]time.Time

	withdrawals    map[int64]domain.Withdrawal
	withdrawalKeys map[string]int64
	referrals      map[int64]domain.Referral
}

func newState() *state {
	return &state{
		accounts:    make(map[int64]domain.Account),
		rates:       make(map[int]money.Amount),
		accruals:    make(map[accrualKey]domain.AccrualRecord),
		orders:      make(map[int64]domain.Order),
		orderKeys:   make(map[string]int64),
		events:      make(map[string]domain.ProcessedEvent),
		draws:       make(map[string]domain.Draw),
		tickets:     make(map[string][]domain.Ticket),
		tasks:       make(map[string]domain.Task),
		completions: make(map[taskKey]time.Time),

		withdrawals:    make(map[int64]domain.Withdrawal),
		withdrawalKeys: make(map[string]int64),
		referrals:      make(map[int64]domain.Referral),
	}
}

func (s *state) clone() *state {
	c := &state{
		seq:          s.seq,
		accounts:     make(map[int64]domain.Account, len(s.accounts)),
		mintBurn:     append([]domain.MintBurnRecord(nil), s.mintBurn...),
		transfers:    append([]domain.TransferRecord(nil), s.transfers...),
		panels:       append([]domain.Panel(nil), s.panels...),
		rates:        make(map[int]money.Amount, len(s.rates)),
		accruals:     make(map[accrualKey]domain.AccrualRecord, len(s.accruals)),
		orders:       make(map[int64]domain.Order, len(s.orders)),
		orderKeys:    make(map[string]int64, len(s.orderKeys)),
		fulfillments: append([]domain.FulfillmentRequest(nil), s.fulfillments...),
		events:       make(map[string]domain.ProcessedEvent, len(s.events)),
		draws:        make(map[string]domain.Draw, len(s.draws)),
		tickets:      make(map[string][]domain.Ticket, len(s.tickets)),
		tasks:        make(map[string]domain.Task, len(s.tasks)),
		completions:  make(map[taskKey]time.Time, len(s.completions)),

		withdrawals:    make(map[int64]domain.Withdrawal, len(s.withdrawals)),
		withdrawalKeys: make(map[string]int64, len(s.withdrawalKeys)),
		referrals:      make(map[int64]domain.Referral, len(s.referrals)),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.rates {
		c.rates[k] = v
	}
	for k, v := range s.accruals {
		c.accruals[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.orderKeys {
		c.orderKeys[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.draws {
		c.draws[k] = v
	}
	for k, v := range s.tickets {
		c.tickets[k] = append([]domain.Ticket(nil), v...)
	}
	for k, v := range s.tasks {
		c.tasks[k] = v
	}
	for k, v := range s.completions {
		c.completions[k] = v
	}
	for k, v := range s.withdrawals {
		c.withdrawals[k] = v
	}
	for k, v := range s.withdrawalKeys {
		c.withdrawalKeys[k] = v
	}
	for k, v := range s.referrals {
		c.referrals[k] = v
	}
	return c
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

// Store — хранилище в памяти.
type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{state: newState(), now: time.Now}
}

// SetClock подменяет часы для created_at.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetYieldRate задаёт суточную генерацию панели уровня.
func (s *Store) SetYieldRate(level int, daily money.Amount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.rates[level] = daily
}

// PutTask добавляет задание в каталог.
func (s *Store) PutTask(t domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.tasks[t.Code] = t
}

// PutDraw добавляет розыгрыш.
func (s *Store) PutDraw(d domain.Draw) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.CreatedAt = s.now()
	s.state.draws[d.Code] = d
}

// SeedDefaults заполняет справочники так же, как миграции PostgreSQL.
func (s *Store) SeedDefaults() {
	s.SetYieldRate(domain.DefaultPanelLevel, money.FromMilli(598))
	s.PutTask(domain.Task{Code: "subscribe_channel", Title: "Подписаться на канал", Reward: money.FromInt(1), Active: true})
	s.PutTask(domain.Task{Code: "invite_friend", Title: "Пригласить друга", Reward: money.FromInt(1), Active: true})
	s.PutDraw(domain.Draw{Code: "lottery_vip", Title: "Розыгрыш VIP NFT", Target: 500,
		TicketPrice: money.FromInt(1), Prize: domain.PrizeVIPCollectible, Status: domain.DrawActive})
	s.PutDraw(domain.Draw{Code: "lottery_panel", Title: "Розыгрыш панели", Target: 200,
		TicketPrice: money.FromInt(1), Prize: domain.PrizePanel, Status: domain.DrawActive})
}

// InTx выполняет fn над копией состояния и публикует её при успехе.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, &tx{st: work, now: s.now}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// tx реализует storage.Tx над рабочей копией.
type tx struct {
	st  *state
	now func() time.Time
}

var _ storage.Tx = (*tx)(nil)

// --- Счета ---

func (t *tx) ensure(id int64) domain.Account {
	acc, ok := t.st.accounts[id]
	if !ok {
		now := t.now()
		acc = domain.Account{ID: id, CreatedAt: now, UpdatedAt: now}
		t.st.accounts[id] = acc
	}
	return acc
}

func (t *tx) GetAccount(_ context.Context, id int64) (*domain.Account, error) {
	acc := t.ensure(id)
	return &acc, nil
}

func (t *tx) PeekAccount(_ context.Context, id int64) (*domain.Account, error) {
	acc, ok := t.st.accounts[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &acc, nil
}

func (t *tx) LockAccounts(_ context.Context, ids ...int64) (map[int64]*domain.Account, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make(map[int64]*domain.Account, len(sorted))
	for _, id := range sorted {
		acc := t.ensure(id)
		out[id] = &acc
	}
	return out, nil
}

func (t *tx) Credit(_ context.Context, id int64, bucket domain.Bucket, amount money.Amount) error {
	acc := t.ensure(id)
	switch bucket {
	case domain.BucketMain:
		acc.Main += amount
	case domain.BucketBonus:
		acc.Bonus += amount
	case domain.BucketUtility:
		acc.Utility += amount
	}
	acc.UpdatedAt = t.now()
	t.st.accounts[id] = acc
	return nil
}

func (t *tx) Debit(_ context.Context, id int64, bucket domain.Bucket, amount money.Amount) error {
	acc, ok := t.st.accounts[id]
	if !ok || acc.Balance(bucket) < amount {
		return common.ErrInsufficientBalance
	}
	switch bucket {
	case domain.BucketMain:
		acc.Main -= amount
	case domain.BucketBonus:
		acc.Bonus -= amount
	case domain.BucketUtility:
		acc.Utility -= amount
	}
	acc.UpdatedAt = t.now()
	t.st.accounts[id] = acc
	return nil
}

func (t *tx) SetVIP(_ context.Context, id int64, vip bool) error {
	acc := t.ensure(id)
	acc.VIP = vip
	acc.UpdatedAt = t.now()
	t.st.accounts[id] = acc
	return nil
}

func (t *tx) SumBalances(_ context.Context, bucket domain.Bucket) (money.Amount, error) {
	var sum money.Amount
	for _, acc := range t.st.accounts {
		sum += acc.Balance(bucket)
	}
	return sum, nil
}

// --- Журналы ---

func (t *tx) AppendMintBurn(_ context.Context, rec *domain.MintBurnRecord) error {
	rec.ID = t.st.nextID()
	rec.CreatedAt = t.now()
	t.st.mintBurn = append(t.st.mintBurn, *rec)
	return nil
}

func (t *tx) AppendTransfer(_ context.Context, rec *domain.TransferRecord) error {
	rec.ID = t.st.nextID()
	rec.CreatedAt = t.now()
	t.st.transfers = append(t.st.transfers, *rec)
	return nil
}

func (t *tx) SupplyTotals(_ context.Context, currency domain.Currency) (money.Amount, money.Amount, error) {
	var minted, burned money.Amount
	for _, rec := range t.st.mintBurn {
		if rec.Currency != currency {
			continue
		}
		if rec.Direction == domain.DirectionMint {
			minted += rec.Amount
		} else {
			burned += rec.Amount
		}
	}
	return minted, burned, nil
}

func (t *tx) ListMintBurn(_ context.Context, limit int) ([]domain.MintBurnRecord, error) {
	out := make([]domain.MintBurnRecord, 0, len(t.st.mintBurn))
	for i := len(t.st.mintBurn) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, t.st.mintBurn[i])
	}
	return out, nil
}

// Transfers возвращает копию журнала переводов (для тестов).
func (s *Store) Transfers() []domain.TransferRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TransferRecord(nil), s.state.transfers...)
}
