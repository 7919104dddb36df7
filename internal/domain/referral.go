package domain

import (
	"time"

	"efhc.app/ledger/internal/money"
)

// Referral — связь приглашённого с пригласившим. Задаётся один раз.
// Active становится true при первой покупке панели приглашённым.
type Referral struct {
	RefereeID   int64      `db:"referee_id" json:"referee_id"`
	ReferrerID  int64      `db:"referrer_id" json:"referrer_id"`
	Active      bool       `db:"active" json:"active"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	ActivatedAt *time.Time `db:"activated_at" json:"activated_at,omitempty"`
}

// ReferralMilestone — разовый бонус пригласившему, когда число его
// активных рефералов достигает Active.
type ReferralMilestone struct {
	Active int64
	Bonus  money.Amount
}

// ReferralMilestones — пороги по возрастанию.
var ReferralMilestones = []ReferralMilestone{
	{Active: 10, Bonus: money.FromInt(1)},
	{Active: 50, Bonus: money.FromInt(5)},
	{Active: 100, Bonus: money.FromInt(10)},
	{Active: 500, Bonus: money.FromInt(50)},
	{Active: 1000, Bonus: money.FromInt(100)},
	{Active: 10000, Bonus: money.FromInt(1000)},
}

// MilestoneBonus возвращает бонус за порог, ровно достигнутый при active активных рефералах.
func MilestoneBonus(active int64) (money.Amount, bool) {
	for _, m := range ReferralMilestones {
		if m.Active == active {
			return m.Bonus, true
		}
	}
	return money.Zero, false
}
