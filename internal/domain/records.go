package domain

import (
	"time"

	"efhc.app/ledger/internal/money"
)

// Currency — валюта, к которой относится запись журнала.
type Currency string

const (
	CurrencyMain  Currency = "main"
	CurrencyBonus Currency = "bonus"
)

// Bucket возвращает баланс счёта, который хранит эту валюту.
func (c Currency) Bucket() Bucket {
	if c == CurrencyBonus {
		return BucketBonus
	}
	return BucketMain
}

// Direction — направление изменения эмиссии.
type Direction string

const (
	DirectionMint Direction = "MINT"
	DirectionBurn Direction = "BURN"
)

// MintBurnRecord — запись журнала эмиссии. Никогда не меняется и не удаляется.
type MintBurnRecord struct {
	ID        int64        `db:"id" json:"id"`
	Actor     int64        `db:"actor_id" json:"actor_id"`
	Direction Direction    `db:"direction" json:"direction"`
	Currency  Currency     `db:"currency" json:"currency"`
	Amount    money.Amount `db:"amount" json:"amount"`
	Note      string       `db:"note" json:"note"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

// TransferRecord — запись журнала переводов между счётом и Банком.
type TransferRecord struct {
	ID        int64        `db:"id" json:"id"`
	FromID    int64        `db:"from_id" json:"from_id"`
	ToID      int64        `db:"to_id" json:"to_id"`
	Currency  Currency     `db:"currency" json:"currency"`
	Amount    money.Amount `db:"amount" json:"amount"`
	Reason    string       `db:"reason" json:"reason"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

// Причины переводов (reason в журнале)
const (
	ReasonAdminCredit   = "admin_credit"
	ReasonAdminDebit    = "admin_debit"
	ReasonPanelPurchase = "panel_purchase"
	ReasonExchange      = "exchange_kwh"
	ReasonOrderCredit   = "order_credit"
	ReasonChainDeposit  = "chain_deposit"
	ReasonTickets       = "draw_tickets"
	ReasonTaskReward    = "task_reward"

	ReasonWithdrawal        = "withdrawal"
	ReasonWithdrawalRefund  = "withdrawal_refund"
	ReasonReferralBonus     = "referral_bonus"
	ReasonReferralMilestone = "referral_milestone"
)

// AccrualRecord — доказательство, что генерация за дату уже начислена.
type AccrualRecord struct {
	Date      time.Time    `db:"accrual_date" json:"date"`
	AccountID int64        `db:"account_id" json:"account_id"`
	Yield     money.Amount `db:"yield_kwh" json:"yield_kwh"`
	Units     int64        `db:"units" json:"units"`
	VIP       bool         `db:"vip" json:"vip"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

// Исходы обработки внешнего события
const (
	OutcomeApplied   = "applied"
	OutcomeIgnored   = "ignored"
	OutcomeUnmatched = "unmatched"
	OutcomeMismatch  = "mismatch"
)

// ProcessedEvent — идентификатор уже обработанного внешнего события.
type ProcessedEvent struct {
	ID        string    `db:"event_id" json:"event_id"`
	Source    string    `db:"source" json:"source"`
	Outcome   string    `db:"outcome" json:"outcome"`
	Note      string    `db:"note" json:"note"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// FulfillmentKind — что выдаётся вручную.
type FulfillmentKind string

const (
	FulfillVIPCollectible FulfillmentKind = "vip_collectible"
)

// FulfillmentRequest — заявка в очередь ручной выдачи коллекционного VIP.
type FulfillmentRequest struct {
	ID        int64           `db:"id" json:"id"`
	AccountID int64           `db:"account_id" json:"account_id"`
	Kind      FulfillmentKind `db:"kind" json:"kind"`
	OrderID   *int64          `db:"order_id" json:"order_id,omitempty"`
	Source    string          `db:"source" json:"source"` // order, chain, draw
	Status    string          `db:"status" json:"status"`
	Note      string          `db:"note" json:"note"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
