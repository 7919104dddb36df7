// Package ledger — перемещение валюты между счетами.
// models.go описывает приоритет оплаты, квитанции операций и отказ с балансами.
package ledger

import (
	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/money"
)

// Priority — какой баланс тратится первым при комбинированной оплате.
type Priority string

const (
	BonusFirst Priority = "bonus_first"
	MainFirst  Priority = "main_first"
)

// ParsePriority разбирает приоритет; пустая строка — bonus_first.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case "", BonusFirst:
		return BonusFirst, true
	case MainFirst:
		return MainFirst, true
	}
	return "", false
}

// Split — разбиение цены между бонусным и основным балансом.
type Split struct {
	UseBonus money.Amount `json:"use_bonus"`
	UseMain  money.Amount `json:"use_main"`
}

// Adjustment — компоненты административного начисления или списания.
type Adjustment struct {
	Main    money.Amount `json:"main"`
	Bonus   money.Amount `json:"bonus"`
	Utility money.Amount `json:"utility"`
}

// validate проверяет, что компоненты неотрицательны и хотя бы одна положительна.
func (a Adjustment) validate() bool {
	if a.Main.IsNegative() || a.Bonus.IsNegative() || a.Utility.IsNegative() {
		return false
	}
	return a.Main.IsPositive() || a.Bonus.IsPositive() || a.Utility.IsPositive()
}

// Receipt — балансы после операции: затронутый счёт и Банк.
type Receipt struct {
	Account *domain.Snapshot `json:"account,omitempty"`
	Bank    *domain.Snapshot `json:"bank,omitempty"`
	Split   *Split           `json:"split,omitempty"`
}

// RejectedError — отказ операции вместе с текущими (неизменёнными) балансами,
// чтобы клиент мог сверить состояние без повторного запроса.
type RejectedError struct {
	Err     error
	Receipt Receipt
}

func (e *RejectedError) Error() string { return e.Err.Error() }
func (e *RejectedError) Unwrap() error { return e.Err }

// RejectedReceipt отдаёт балансы для тела ответа с ошибкой.
func (e *RejectedError) RejectedReceipt() any { return &e.Receipt }

// BonusGrant — основание для движения бонусной валюты вне покупки панелей.
// Значения создаются только в этом пакете.
type BonusGrant struct {
	reason string
}

var (
	// GrantAdminReward — явное административное начисление или изъятие
	GrantAdminReward = BonusGrant{reason: domain.ReasonAdminCredit}
	// GrantTaskReward — награда за выполненное задание
	GrantTaskReward = BonusGrant{reason: domain.ReasonTaskReward}
)

// AuditReport — сверка эмиссии с суммой балансов.
type AuditReport struct {
	MainMinted   money.Amount `json:"main_minted"`
	MainBurned   money.Amount `json:"main_burned"`
	MainBalances money.Amount `json:"main_balances"`
	BonusMinted  money.Amount `json:"bonus_minted"`
	BonusBurned  money.Amount `json:"bonus_burned"`
	BonusTotal   money.Amount `json:"bonus_balances"`
	Balanced     bool         `json:"balanced"`
}
