package ledger

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/metrics"
	"efhc.app/ledger/internal/money"
	"efhc.app/ledger/internal/storage"
)

// Bank — политика маршрутизации через счёт Банка.
// Любое пользовательское начисление или списание является переводом с Банка или на Банк,
// эмиссия и сжигание возможны только на счёте Банка.
// Все методы работают внутри транзакции вызывающего.
type Bank struct {
	id int64
}

// NewBank создаёт политику для счёта Банка с идентификатором id.
func NewBank(id int64) *Bank {
	return &Bank{id: id}
}

// ID возвращает идентификатор счёта Банка.
func (b *Bank) ID() int64 { return b.id }

// CreditUserFromBank ≡ Transfer(Bank, user) + запись в журнал переводов.
func (b *Bank) CreditUserFromBank(ctx context.Context, tx storage.Tx, user int64, amount money.Amount, reason string) error {
	if user == b.id {
		return common.ErrBankAccount
	}
	if err := Transfer(ctx, tx, b.id, user, amount); err != nil {
		return bankSide(err)
	}
	return b.journal(ctx, tx, b.id, user, domain.CurrencyMain, amount, reason)
}

// DebitUserToBank ≡ Transfer(user, Bank) + запись в журнал переводов.
func (b *Bank) DebitUserToBank(ctx context.Context, tx storage.Tx, user int64, amount money.Amount, reason string) error {
	if user == b.id {
		return common.ErrBankAccount
	}
	if err := Transfer(ctx, tx, user, b.id, amount); err != nil {
		return err
	}
	return b.journal(ctx, tx, user, b.id, domain.CurrencyMain, amount, reason)
}

// Mint создаёт основную валюту на счёте Банка.
func (b *Bank) Mint(ctx context.Context, tx storage.Tx, admin int64, amount money.Amount, note string) (*domain.MintBurnRecord, error) {
	return b.supply(ctx, tx, admin, domain.DirectionMint, domain.CurrencyMain, amount, note)
}

// Burn сжигает основную валюту со счёта Банка.
func (b *Bank) Burn(ctx context.Context, tx storage.Tx, admin int64, amount money.Amount, note string) (*domain.MintBurnRecord, error) {
	return b.supply(ctx, tx, admin, domain.DirectionBurn, domain.CurrencyMain, amount, note)
}

// MintBonus создаёт бонусную валюту на счёте Банка.
func (b *Bank) MintBonus(ctx context.Context, tx storage.Tx, admin int64, amount money.Amount, note string) (*domain.MintBurnRecord, error) {
	return b.supply(ctx, tx, admin, domain.DirectionMint, domain.CurrencyBonus, amount, note)
}

// BurnBonus сжигает бонусную валюту со счёта Банка.
func (b *Bank) BurnBonus(ctx context.Context, tx storage.Tx, admin int64, amount money.Amount, note string) (*domain.MintBurnRecord, error) {
	return b.supply(ctx, tx, admin, domain.DirectionBurn, domain.CurrencyBonus, amount, note)
}

// GrantBonus начисляет бонусы пользователю с бонусного баланса Банка.
// Доступно только с основанием BonusGrant (награда за задание или решение администратора).
func (b *Bank) GrantBonus(ctx context.Context, tx storage.Tx, user int64, amount money.Amount, grant BonusGrant) error {
	if grant.reason == "" {
		return errors.New("бонусы начисляются только с основанием")
	}
	if user == b.id {
		return common.ErrBankAccount
	}
	if err := b.creditBonusFromBank(ctx, tx, user, amount); err != nil {
		return err
	}
	return b.journal(ctx, tx, b.id, user, domain.CurrencyBonus, amount, grant.reason)
}

// ReclaimBonus возвращает бонусы пользователя на Банк по решению администратора.
func (b *Bank) ReclaimBonus(ctx context.Context, tx storage.Tx, user int64, amount money.Amount, grant BonusGrant) error {
	if grant != GrantAdminReward {
		return errors.New("изъятие бонусов доступно только администратору")
	}
	if user == b.id {
		return common.ErrBankAccount
	}
	if err := b.debitBonusToBank(ctx, tx, user, amount); err != nil {
		return err
	}
	return b.journal(ctx, tx, user, b.id, domain.CurrencyBonus, amount, domain.ReasonAdminDebit)
}

func (b *Bank) creditBonusFromBank(ctx context.Context, tx storage.Tx, user int64, amount money.Amount) error {
	if err := move(ctx, tx, domain.BucketBonus, b.id, user, amount); err != nil {
		return bankSide(err)
	}
	return nil
}

func (b *Bank) debitBonusToBank(ctx context.Context, tx storage.Tx, user int64, amount money.Amount) error {
	return move(ctx, tx, domain.BucketBonus, user, b.id, amount)
}

// supply — эмиссия или сжигание с записью в журнал.
func (b *Bank) supply(ctx context.Context, tx storage.Tx, admin int64, dir domain.Direction, cur domain.Currency,
	amount money.Amount, note string) (*domain.MintBurnRecord, error) {
	if !amount.IsPositive() {
		return nil, common.ErrInvalidAmount
	}
	if _, err := tx.LockAccounts(ctx, b.id); err != nil {
		return nil, err
	}

	if dir == domain.DirectionMint {
		if err := tx.Credit(ctx, b.id, cur.Bucket(), amount); err != nil {
			return nil, err
		}
	} else if err := tx.Debit(ctx, b.id, cur.Bucket(), amount); err != nil {
		return nil, bankSide(err)
	}

	rec := &domain.MintBurnRecord{Actor: admin, Direction: dir, Currency: cur, Amount: amount, Note: note}
	if err := tx.AppendMintBurn(ctx, rec); err != nil {
		return nil, err
	}

	metrics.RecordSupplyChange(string(dir), string(cur), amount.Milli())
	log.WithFields(log.Fields{
		"admin":     admin,
		"direction": dir,
		"currency":  cur,
		"amount":    amount.String(),
		"note":      note,
	}).Info("Изменение эмиссии")
	return rec, nil
}

func (b *Bank) journal(ctx context.Context, tx storage.Tx, from, to int64, cur domain.Currency, amount money.Amount, reason string) error {
	rec := &domain.TransferRecord{FromID: from, ToID: to, Currency: cur, Amount: amount, Reason: reason}
	if err := tx.AppendTransfer(ctx, rec); err != nil {
		return fmt.Errorf("ошибка журнала переводов: %w", err)
	}
	return nil
}

// bankSide уточняет нехватку средств: не хватило у Банка.
func bankSide(err error) error {
	if errors.Is(err, common.ErrInsufficientBalance) {
		return common.ErrInsufficientBankBalance
	}
	return err
}
