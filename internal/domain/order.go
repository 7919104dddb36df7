package domain

import (
	"time"

	"efhc.app/ledger/internal/money"
)

// OrderKind — что покупается за внешнюю валюту.
type OrderKind string

const (
	OrderMainCurrency   OrderKind = "main_currency"   // пакет EFHC
	OrderVIP            OrderKind = "vip"             // внутренний VIP-флаг
	OrderVIPCollectible OrderKind = "vip_collectible" // VIP NFT, выдаётся вручную
)

// Valid проверяет, что вид заказа известен.
func (k OrderKind) Valid() bool {
	switch k {
	case OrderMainCurrency, OrderVIP, OrderVIPCollectible:
		return true
	}
	return false
}

// OrderStatus — состояние заказа.
type OrderStatus string

const (
	OrderPending         OrderStatus = "pending"
	OrderPaid            OrderStatus = "paid"
	OrderPendingDelivery OrderStatus = "pending_delivery"
	OrderCompleted       OrderStatus = "completed"
	OrderRejected        OrderStatus = "rejected"
	OrderCanceled        OrderStatus = "canceled"
	OrderFailed          OrderStatus = "failed"
)

// orderTransitions — разрешённые переходы конечного автомата заказа.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:         {OrderPaid, OrderRejected, OrderCanceled, OrderFailed},
	OrderPaid:            {OrderCompleted, OrderPendingDelivery, OrderRejected, OrderCanceled, OrderFailed},
	OrderPendingDelivery: {OrderCompleted, OrderRejected, OrderCanceled, OrderFailed},
}

// Terminal — из состояния нет выхода.
func (s OrderStatus) Terminal() bool {
	_, ok := orderTransitions[s]
	return !ok
}

// CanTransition проверяет переход from → to.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Order — покупка за внешнюю валюту (TON, USDT).
type Order struct {
	ID             int64        `db:"id" json:"id"`
	Ref            string       `db:"ref" json:"ref"`
	AccountID      int64        `db:"account_id" json:"account_id"`
	Kind           OrderKind    `db:"kind" json:"kind"`
	OfferCode      string       `db:"offer_code" json:"offer_code"`
	ExternalAsset  string       `db:"external_asset" json:"external_asset"`
	ExternalAmount money.Amount `db:"external_amount" json:"external_amount"`
	CreditAmount   money.Amount `db:"credit_amount" json:"credit_amount"` // EFHC к зачислению для main_currency
	IdempotencyKey string       `db:"idempotency_key" json:"idempotency_key"`
	Status         OrderStatus  `db:"status" json:"status"`
	ExternalTxRef  string       `db:"external_tx_ref" json:"external_tx_ref,omitempty"`
	FailureReason  string       `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}
