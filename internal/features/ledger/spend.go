package ledger

import (
	"context"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/money"
	"efhc.app/ledger/internal/storage"
)

// ResolveSpend делит цену между бонусным и основным балансом.
// Чистая функция: ничего не списывает.
//
// Первый по приоритету баланс покрывает min(доступно, цена), второй покрывает остаток
// price − first, поэтому UseBonus + UseMain == price ровно.
func ResolveSpend(price, bonusAvailable, mainAvailable money.Amount, priority Priority) (Split, error) {
	if !price.IsPositive() || bonusAvailable.IsNegative() || mainAvailable.IsNegative() {
		return Split{}, common.ErrInvalidAmount
	}
	if bonusAvailable+mainAvailable < price {
		return Split{}, common.ErrInsufficientFunds
	}

	var s Split
	switch priority {
	case MainFirst:
		s.UseMain = money.Min(mainAvailable, price)
		s.UseBonus = price - s.UseMain
	default:
		s.UseBonus = money.Min(bonusAvailable, price)
		s.UseMain = price - s.UseBonus
	}
	return s, nil
}

// ChargeCombined списывает цену покупки панелей с бонусного и основного баланса
// пользователя в пользу Банка. Счета пользователя и Банка блокируются до
// разбиения, поэтому параллельная покупка того же пользователя ждёт и видит
// уже списанные балансы.
func (b *Bank) ChargeCombined(ctx context.Context, tx storage.Tx, user int64, price money.Amount, priority Priority) (Split, error) {
	if user == b.id {
		return Split{}, common.ErrBankAccount
	}
	locked, err := tx.LockAccounts(ctx, user, b.id)
	if err != nil {
		return Split{}, err
	}
	acc := locked[user]

	split, err := ResolveSpend(price, acc.Bonus, acc.Main, priority)
	if err != nil {
		return Split{}, err
	}

	if split.UseBonus.IsPositive() {
		if err := b.debitBonusToBank(ctx, tx, user, split.UseBonus); err != nil {
			return Split{}, err
		}
		if err := b.journal(ctx, tx, user, b.id, domain.CurrencyBonus, split.UseBonus, domain.ReasonPanelPurchase); err != nil {
			return Split{}, err
		}
	}
	if split.UseMain.IsPositive() {
		if err := b.DebitUserToBank(ctx, tx, user, split.UseMain, domain.ReasonPanelPurchase); err != nil {
			return Split{}, err
		}
	}
	return split, nil
}
