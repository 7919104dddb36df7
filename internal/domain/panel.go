package domain

import (
	"time"

	"efhc.app/ledger/internal/money"
)

// PanelLifetime — срок жизни панели с момента активации.
const PanelLifetime = 180 * 24 * time.Hour

// DefaultPanelLevel — уровень панелей из магазина и из розыгрышей.
const DefaultPanelLevel = 1

// Panel — партия панелей одной покупки.
type Panel struct {
	ID          int64     `db:"id" json:"id"`
	AccountID   int64     `db:"account_id" json:"account_id"`
	Level       int       `db:"level" json:"level"`
	Count       int64     `db:"count" json:"count"`
	ActivatedAt time.Time `db:"activated_at" json:"activated_at"`
	ExpiresAt   time.Time `db:"expires_at" json:"expires_at"`
	Active      bool      `db:"active" json:"active"`
}

// ActiveAt — панель генерирует энергию в момент at.
func (p *Panel) ActiveAt(at time.Time) bool {
	return p.Active && p.ExpiresAt.After(at)
}

// NewPanel создаёт партию с истечением через PanelLifetime.
func NewPanel(accountID int64, level int, count int64, at time.Time) *Panel {
	return &Panel{
		AccountID:   accountID,
		Level:       level,
		Count:       count,
		ActivatedAt: at,
		ExpiresAt:   at.Add(PanelLifetime),
		Active:      true,
	}
}

// YieldRate — суточная генерация одной панели уровня.
type YieldRate struct {
	Level int          `db:"level" json:"level"`
	Daily money.Amount `db:"daily_kwh" json:"daily_kwh"`
}

// AccrualCandidate — счёт с активными панелями на дату начисления.
type AccrualCandidate struct {
	AccountID int64
	VIP       bool
	Units     map[int]int64 // уровень → количество активных панелей
}

// TotalUnits возвращает общее число панелей кандидата.
func (c AccrualCandidate) TotalUnits() int64 {
	var n int64
	for _, cnt := range c.Units {
		n += cnt
	}
	return n
}
