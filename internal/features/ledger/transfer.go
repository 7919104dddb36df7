package ledger

import (
	"context"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/money"
	"efhc.app/ledger/internal/storage"
)

// Transfer переводит основную валюту со счёта from на счёт to.
// Это единственный путь изменения main_balance.
//
// Оба счёта блокируются по возрастанию id; списание условное
// (main_balance >= amount), иначе ErrInsufficientBalance без изменений.
// Журнал переводов пишет вызывающий.
func Transfer(ctx context.Context, tx storage.Tx, from, to int64, amount money.Amount) error {
	return move(ctx, tx, domain.BucketMain, from, to, amount)
}

// move — общий шаг для основной и бонусной валюты.
func move(ctx context.Context, tx storage.Tx, bucket domain.Bucket, from, to int64, amount money.Amount) error {
	if !amount.IsPositive() {
		return common.ErrInvalidAmount
	}
	if from == to {
		return common.ErrSelfTransfer
	}
	if _, err := tx.LockAccounts(ctx, from, to); err != nil {
		return err
	}
	if err := tx.Debit(ctx, from, bucket, amount); err != nil {
		return err
	}
	return tx.Credit(ctx, to, bucket, amount)
}
