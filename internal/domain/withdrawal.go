package domain

import (
	"regexp"
	"strings"
	"time"

	"efhc.app/ledger/internal/money"
)

// WithdrawalStatus — состояние заявки на вывод EFHC.
type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalSent     WithdrawalStatus = "sent"
	WithdrawalRejected WithdrawalStatus = "rejected"
	WithdrawalCanceled WithdrawalStatus = "canceled"
	WithdrawalFailed   WithdrawalStatus = "failed"
)

// withdrawalTransitions — разрешённые переходы заявки на вывод.
// failed → rejected оставлен, чтобы после сбоя отправки можно было вернуть средства.
var withdrawalTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalPending:  {WithdrawalApproved, WithdrawalRejected, WithdrawalCanceled, WithdrawalFailed},
	WithdrawalApproved: {WithdrawalSent, WithdrawalRejected, WithdrawalFailed},
	WithdrawalFailed:   {WithdrawalRejected},
}

// Valid проверяет, что статус известен.
func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalPending, WithdrawalApproved, WithdrawalSent, WithdrawalRejected, WithdrawalCanceled, WithdrawalFailed:
		return true
	}
	return false
}

// Terminal — из состояния нет выхода.
func (s WithdrawalStatus) Terminal() bool {
	_, ok := withdrawalTransitions[s]
	return !ok
}

// CanTransition проверяет переход s → to.
func (s WithdrawalStatus) CanTransition(to WithdrawalStatus) bool {
	for _, next := range withdrawalTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Refunds — переход в to возвращает списанные EFHC пользователю.
func (s WithdrawalStatus) Refunds() bool {
	return s == WithdrawalRejected || s == WithdrawalCanceled
}

// Активы для вывода
const (
	AssetTON  = "TON"
	AssetUSDT = "USDT"
)

// tonAddress — user-friendly адрес TON (EQ.../UQ...).
var tonAddress = regexp.MustCompile(`^[EU][QqA-Za-z0-9_-]{46,66}$`)

// NormalizeWithdrawAsset приводит актив к верхнему регистру и проверяет, что он поддерживается.
func NormalizeWithdrawAsset(asset string) (string, bool) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	switch asset {
	case AssetTON, AssetUSDT:
		return asset, true
	}
	return "", false
}

// ValidTONAddress проверяет формат адреса кошелька TON.
func ValidTONAddress(addr string) bool {
	return tonAddress.MatchString(addr)
}

// Withdrawal — заявка на вывод EFHC во внешний кошелёк.
// При создании сумма сразу списывается на Банк; отказ и отмена возвращают её.
type Withdrawal struct {
	ID             int64            `db:"id" json:"id"`
	AccountID      int64            `db:"account_id" json:"account_id"`
	Asset          string           `db:"asset" json:"asset"`
	Address        string           `db:"to_address" json:"to_address"`
	Amount         money.Amount     `db:"amount" json:"amount"`
	Status         WithdrawalStatus `db:"status" json:"status"`
	IdempotencyKey string           `db:"idempotency_key" json:"idempotency_key"`
	TxHash         string           `db:"tx_hash" json:"tx_hash,omitempty"`
	Comment        string           `db:"admin_comment" json:"admin_comment,omitempty"`
	AdminID        int64            `db:"admin_id" json:"admin_id,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// WithdrawalFilter — выборка заявок. Нулевые поля не фильтруют.
type WithdrawalFilter struct {
	AccountID int64
	Status    WithdrawalStatus
	Limit     int
}
