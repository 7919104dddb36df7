package domain

import (
	"time"

	"efhc.app/ledger/internal/money"
)

// DrawStatus — состояние розыгрыша. Переход только active → settled.
type DrawStatus string

const (
	DrawActive  DrawStatus = "active"
	DrawSettled DrawStatus = "settled"
)

// PrizeKind — что получает победитель.
type PrizeKind string

const (
	PrizePanel          PrizeKind = "panel"
	PrizeVIPCollectible PrizeKind = "vip_collectible"
)

// Valid проверяет, что тип приза известен.
func (p PrizeKind) Valid() bool {
	return p == PrizePanel || p == PrizeVIPCollectible
}

// Draw — розыгрыш с целевым числом билетов.
type Draw struct {
	Code            string       `db:"code" json:"code"`
	Title           string       `db:"title" json:"title"`
	Target          int64        `db:"target_participants" json:"target"`
	TicketPrice     money.Amount `db:"ticket_price" json:"ticket_price"`
	Prize           PrizeKind    `db:"prize" json:"prize"`
	Status          DrawStatus   `db:"status" json:"status"`
	WinnerTicketID  *int64       `db:"winner_ticket_id" json:"winner_ticket_id,omitempty"`
	WinnerAccountID *int64       `db:"winner_account_id" json:"winner_account_id,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	SettledAt       *time.Time   `db:"settled_at" json:"settled_at,omitempty"`
}

// Ticket — билет. После покупки не меняется.
type Ticket struct {
	ID        int64     `db:"id" json:"id"`
	DrawCode  string    `db:"draw_code" json:"draw_code"`
	AccountID int64     `db:"account_id" json:"account_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Task — задание с бонусной наградой.
type Task struct {
	Code   string       `db:"code" json:"code"`
	Title  string       `db:"title" json:"title"`
	Reward money.Amount `db:"reward_bonus" json:"reward_bonus"`
	Active bool         `db:"active" json:"active"`
}
