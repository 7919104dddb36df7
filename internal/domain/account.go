// Package domain описывает сущности леджера: счета, панели, заказы,
// розыгрыши и журналы. Пакет не зависит от хранилища и транспорта.
package domain

import (
	"time"

	"efhc.app/ledger/internal/money"
)

// Account — счёт пользователя или Банка.
// Каждый пользователь имеет ровно одну строку в таблице accounts.
type Account struct {
	ID        int64        `db:"id" json:"id"`
	Main      money.Amount `db:"main_balance" json:"main_balance"`       // Основная валюта EFHC
	Bonus     money.Amount `db:"bonus_balance" json:"bonus_balance"`     // Бонусные EFHC, только на панели
	Utility   money.Amount `db:"utility_counter" json:"utility_counter"` // Накопленные кВт·ч
	VIP       bool         `db:"vip" json:"vip"`                         // Внутренний VIP-флаг (+7% генерации)
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// Balance возвращает значение указанного баланса.
func (a *Account) Balance(b Bucket) money.Amount {
	switch b {
	case BucketBonus:
		return a.Bonus
	case BucketUtility:
		return a.Utility
	default:
		return a.Main
	}
}

// Bucket — один из трёх балансов счёта.
type Bucket string

const (
	BucketMain    Bucket = "main"
	BucketBonus   Bucket = "bonus"
	BucketUtility Bucket = "utility"
)

// Valid проверяет, что бакет известен.
func (b Bucket) Valid() bool {
	switch b {
	case BucketMain, BucketBonus, BucketUtility:
		return true
	}
	return false
}

// Snapshot — read-модель баланса для слоёв представления.
type Snapshot struct {
	AccountID   int64        `json:"account_id"`
	Main        money.Amount `json:"main_balance"`
	Bonus       money.Amount `json:"bonus_balance"`
	Utility     money.Amount `json:"utility_counter"`
	ActiveUnits int64        `json:"active_panels"`
	VIP         bool         `json:"vip"`
}
