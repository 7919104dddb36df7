// Package storage описывает контракт хранилища леджера.
//
// Любое изменение данных возможно только внутри Store.InTx: транзакция
// получает Tx, все методы которого выполняются атомарно и откатываются
// целиком при ошибке. Изменять балансы можно только через условные
// Debit/Credit после LockAccounts.
package storage

import (
	"context"
	"time"

	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/money"
)

// Store — транзакционное хранилище.
type Store interface {
	// InTx выполняет fn в одной транзакции. Ошибка fn откатывает всё.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx — операции, доступные внутри транзакции.
type Tx interface {
	Accounts
	Journal
	Panels
	Orders
	Events
	Draws
	Tasks
	Withdrawals
	Referrals
}

// Accounts — счета и их балансы.
type Accounts interface {
	// GetAccount возвращает счёт, создавая нулевой при первом обращении.
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	// PeekAccount — только чтение, без создания. Возвращает common.ErrNotFound.
	PeekAccount(ctx context.Context, id int64) (*domain.Account, error)
	// LockAccounts создаёт недостающие счета и блокирует их по возрастанию id
	// до конца транзакции.
	LockAccounts(ctx context.Context, ids ...int64) (map[int64]*domain.Account, error)
	// Credit увеличивает баланс.
	Credit(ctx context.Context, id int64, bucket domain.Bucket, amount money.Amount) error
	// Debit уменьшает баланс при условии balance >= amount,
	// иначе common.ErrInsufficientBalance без изменений.
	Debit(ctx context.Context, id int64, bucket domain.Bucket, amount money.Amount) error
	SetVIP(ctx context.Context, id int64, vip bool) error
	// SumBalances — сумма баланса по всем счетам (для сверки эмиссии).
	SumBalances(ctx context.Context, bucket domain.Bucket) (money.Amount, error)
}

// Journal — журналы эмиссии и переводов (только добавление).
type Journal interface {
	AppendMintBurn(ctx context.Context, rec *domain.MintBurnRecord) error
	AppendTransfer(ctx context.Context, rec *domain.TransferRecord) error
	// SupplyTotals возвращает суммы MINT и BURN по валюте.
	SupplyTotals(ctx context.Context, currency domain.Currency) (minted, burned money.Amount, err error)
	ListMintBurn(ctx context.Context, limit int) ([]domain.MintBurnRecord, error)
}

// Panels — панели, ставки и журнал начислений.
type Panels interface {
	CountActivePanels(ctx context.Context, accountID int64, at time.Time) (int64, error)
	InsertPanel(ctx context.Context, p *domain.Panel) error
	// ExpirePanels снимает флаг active с истёкших партий.
	ExpirePanels(ctx context.Context, at time.Time) (int64, error)
	YieldRates(ctx context.Context) ([]domain.YieldRate, error)
	ListAccrualCandidates(ctx context.Context, at time.Time) ([]domain.AccrualCandidate, error)
	// InsertAccrual добавляет запись, если её ещё нет. false — уже начислено.
	InsertAccrual(ctx context.Context, rec *domain.AccrualRecord) (bool, error)
}

// Orders — заказы и очередь ручной выдачи.
type Orders interface {
	// CreateOrder вставляет заказ. Если ключ идемпотентности уже занят,
	// o заполняется существующим заказом и возвращается false.
	CreateOrder(ctx context.Context, o *domain.Order) (bool, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	// LockOrder блокирует заказ по id.
	LockOrder(ctx context.Context, id int64) (*domain.Order, error)
	// LockOrderByRef блокирует заказ по публичной ссылке, а если такой нет,
	// по ключу идемпотентности.
	LockOrderByRef(ctx context.Context, ref string) (*domain.Order, error)
	UpdateOrder(ctx context.Context, o *domain.Order) error
	InsertFulfillment(ctx context.Context, f *domain.FulfillmentRequest) error
	ListFulfillments(ctx context.Context, status string) ([]domain.FulfillmentRequest, error)
}

// Events — множество уже обработанных внешних событий.
type Events interface {
	// MarkEventProcessed — атомарный insert-if-absent. false — событие уже было.
	MarkEventProcessed(ctx context.Context, ev *domain.ProcessedEvent) (bool, error)
	SetEventOutcome(ctx context.Context, id, outcome, note string) error
	GetEvent(ctx context.Context, id string) (*domain.ProcessedEvent, error)
}

// Draws — розыгрыши и билеты.
type Draws interface {
	InsertDraw(ctx context.Context, d *domain.Draw) error
	GetDraw(ctx context.Context, code string) (*domain.Draw, error)
	LockDraw(ctx context.Context, code string) (*domain.Draw, error)
	// ListReadyDraws — активные розыгрыши, набравшие цель.
	ListReadyDraws(ctx context.Context) ([]string, error)
	AppendTickets(ctx context.Context, code string, accountID int64, count int64, at time.Time) ([]domain.Ticket, error)
	CountTickets(ctx context.Context, code string) (int64, error)
	ListTickets(ctx context.Context, code string) ([]domain.Ticket, error)
	// SettleDraw переводит active → settled. Повторный вызов даёт ErrInvalidStateTransition.
	SettleDraw(ctx context.Context, d *domain.Draw) error
}

// Tasks — задания и отметки о выполнении.
type Tasks interface {
	GetTask(ctx context.Context, code string) (*domain.Task, error)
	// InsertTaskCompletion — insert-if-absent по (task, account).
	InsertTaskCompletion(ctx context.Context, code string, accountID int64, at time.Time) (bool, error)
}

// Withdrawals — заявки на вывод EFHC.
type Withdrawals interface {
	// CreateWithdrawal вставляет заявку. Если ключ идемпотентности уже занят,
	// w заполняется существующей заявкой и возвращается false.
	CreateWithdrawal(ctx context.Context, w *domain.Withdrawal) (bool, error)
	GetWithdrawal(ctx context.Context, id int64) (*domain.Withdrawal, error)
	LockWithdrawal(ctx context.Context, id int64) (*domain.Withdrawal, error)
	// UpdateWithdrawal сохраняет статус, tx_hash, комментарий и администратора.
	UpdateWithdrawal(ctx context.Context, w *domain.Withdrawal) error
	// ListWithdrawals — от новых к старым.
	ListWithdrawals(ctx context.Context, f domain.WithdrawalFilter) ([]domain.Withdrawal, error)
}

// Referrals — связи приглашённых с пригласившими.
type Referrals interface {
	// InsertReferral — insert-if-absent по приглашённому. false — пригласивший уже указан.
	InsertReferral(ctx context.Context, r *domain.Referral) (bool, error)
	// LockReferral блокирует связь приглашённого. Нет связи — common.ErrNotFound.
	LockReferral(ctx context.Context, refereeID int64) (*domain.Referral, error)
	ActivateReferral(ctx context.Context, refereeID int64, at time.Time) error
	CountActiveReferrals(ctx context.Context, referrerID int64) (int64, error)
	ListReferrals(ctx context.Context, referrerID int64) ([]domain.Referral, error)
}
