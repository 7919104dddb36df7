// Package ledger — service.go содержит административные и пользовательские
// операции над балансами. Каждая операция выполняется в одной транзакции хранилища;
// при отказе возвращается RejectedError с текущими балансами.
package ledger

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/metrics"
	"efhc.app/ledger/internal/money"
	"efhc.app/ledger/internal/storage"
)

// SystemActor — actor_id для операций, выполненных самим сервисом (genesis).
const SystemActor int64 = 0

// Service управляет балансами.
type Service struct {
	store  storage.Store
	bank   *Bank
	admins map[int64]struct{}
	now    func() time.Time
}

// NewService создаёт сервис леджера.
func NewService(store storage.Store, bank *Bank, adminIDs []int64) *Service {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Service{store: store, bank: bank, admins: admins, now: time.Now}
}

// Bank возвращает политику Банка.
func (s *Service) Bank() *Bank { return s.bank }

// IsAdmin проверяет, входит ли пользователь в ADMIN_IDS.
func (s *Service) IsAdmin(id int64) bool {
	_, ok := s.admins[id]
	return ok
}

// Bootstrap выпускает стартовую эмиссию Банка, если журнал эмиссии пуст.
func (s *Service) Bootstrap(ctx context.Context, genesis money.Amount) error {
	if !genesis.IsPositive() {
		return nil
	}
	return s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		minted, _, err := tx.SupplyTotals(ctx, domain.CurrencyMain)
		if err != nil {
			return err
		}
		if minted.IsPositive() {
			return nil
		}
		_, err = s.bank.Mint(ctx, tx, SystemActor, genesis, "genesis")
		return err
	})
}

// Mint создаёт основную валюту на счёте Банка.
func (s *Service) Mint(ctx context.Context, admin int64, amount money.Amount, note string) (*Receipt, error) {
	return s.adminOp(ctx, "mint", admin, 0, func(ctx context.Context, tx storage.Tx) error {
		_, err := s.bank.Mint(ctx, tx, admin, amount, note)
		return err
	})
}

// Burn сжигает основную валюту со счёта Банка.
func (s *Service) Burn(ctx context.Context, admin int64, amount money.Amount, note string) (*Receipt, error) {
	return s.adminOp(ctx, "burn", admin, 0, func(ctx context.Context, tx storage.Tx) error {
		_, err := s.bank.Burn(ctx, tx, admin, amount, note)
		return err
	})
}

// MintBonus создаёт бонусную валюту на счёте Банка.
func (s *Service) MintBonus(ctx context.Context, admin int64, amount money.Amount, note string) (*Receipt, error) {
	return s.adminOp(ctx, "mint_bonus", admin, 0, func(ctx context.Context, tx storage.Tx) error {
		_, err := s.bank.MintBonus(ctx, tx, admin, amount, note)
		return err
	})
}

// BurnBonus сжигает бонусную валюту со счёта Банка.
func (s *Service) BurnBonus(ctx context.Context, admin int64, amount money.Amount, note string) (*Receipt, error) {
	return s.adminOp(ctx, "burn_bonus", admin, 0, func(ctx context.Context, tx storage.Tx) error {
		_, err := s.bank.BurnBonus(ctx, tx, admin, amount, note)
		return err
	})
}

// Credit начисляет пользователю компоненты adj с Банка (кВт·ч — без контрагента).
func (s *Service) Credit(ctx context.Context, admin, user int64, adj Adjustment) (*Receipt, error) {
	if !adj.validate() {
		return nil, common.ErrInvalidAmount
	}
	return s.adminOp(ctx, "admin_credit", admin, user, func(ctx context.Context, tx storage.Tx) error {
		if user == s.bank.ID() {
			return common.ErrBankAccount
		}
		if adj.Main.IsPositive() {
			if err := s.bank.CreditUserFromBank(ctx, tx, user, adj.Main, domain.ReasonAdminCredit); err != nil {
				return err
			}
		}
		if adj.Bonus.IsPositive() {
			if err := s.bank.GrantBonus(ctx, tx, user, adj.Bonus, GrantAdminReward); err != nil {
				return err
			}
		}
		if adj.Utility.IsPositive() {
			if _, err := tx.LockAccounts(ctx, user); err != nil {
				return err
			}
			if err := tx.Credit(ctx, user, domain.BucketUtility, adj.Utility); err != nil {
				return err
			}
		}
		return nil
	})
}

// Debit списывает с пользователя компоненты adj в пользу Банка.
func (s *Service) Debit(ctx context.Context, admin, user int64, adj Adjustment) (*Receipt, error) {
	if !adj.validate() {
		return nil, common.ErrInvalidAmount
	}
	return s.adminOp(ctx, "admin_debit", admin, user, func(ctx context.Context, tx storage.Tx) error {
		if user == s.bank.ID() {
			return common.ErrBankAccount
		}
		if adj.Main.IsPositive() {
			if err := s.bank.DebitUserToBank(ctx, tx, user, adj.Main, domain.ReasonAdminDebit); err != nil {
				return err
			}
		}
		if adj.Bonus.IsPositive() {
			if err := s.bank.ReclaimBonus(ctx, tx, user, adj.Bonus, GrantAdminReward); err != nil {
				return err
			}
		}
		if adj.Utility.IsPositive() {
			if _, err := tx.LockAccounts(ctx, user); err != nil {
				return err
			}
			if err := tx.Debit(ctx, user, domain.BucketUtility, adj.Utility); err != nil {
				return err
			}
		}
		return nil
	})
}

// Exchange обменивает кВт·ч на EFHC по курсу 1:1 (минимум 0.001).
func (s *Service) Exchange(ctx context.Context, user int64, amount money.Amount) (*Receipt, error) {
	if !amount.IsPositive() {
		return nil, common.ErrInvalidAmount
	}
	receipt, err := s.Run(ctx, "exchange", user, func(ctx context.Context, tx storage.Tx) error {
		if user == s.bank.ID() {
			return common.ErrBankAccount
		}
		if _, err := tx.LockAccounts(ctx, user, s.bank.ID()); err != nil {
			return err
		}
		if err := tx.Debit(ctx, user, domain.BucketUtility, amount); err != nil {
			return err
		}
		return s.bank.CreditUserFromBank(ctx, tx, user, amount, domain.ReasonExchange)
	})
	if err == nil {
		log.WithFields(log.Fields{"user": user, "amount": amount.String()}).Info("Обмен кВт·ч на EFHC")
	}
	return receipt, err
}

// Snapshot возвращает read-модель баланса (создаёт счёт при первом обращении).
func (s *Service) Snapshot(ctx context.Context, user int64) (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		snap, err = s.snapshot(ctx, tx, user)
		return err
	})
	return snap, err
}

// SupplyLog возвращает последние записи журнала эмиссии.
func (s *Service) SupplyLog(ctx context.Context, limit int) ([]domain.MintBurnRecord, error) {
	var out []domain.MintBurnRecord
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.ListMintBurn(ctx, limit)
		return err
	})
	return out, err
}

// Audit сверяет эмиссию с суммой балансов по основной и бонусной валюте.
func (s *Service) Audit(ctx context.Context) (*AuditReport, error) {
	var r AuditReport
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		if r.MainMinted, r.MainBurned, err = tx.SupplyTotals(ctx, domain.CurrencyMain); err != nil {
			return err
		}
		if r.MainBalances, err = tx.SumBalances(ctx, domain.BucketMain); err != nil {
			return err
		}
		if r.BonusMinted, r.BonusBurned, err = tx.SupplyTotals(ctx, domain.CurrencyBonus); err != nil {
			return err
		}
		if r.BonusTotal, err = tx.SumBalances(ctx, domain.BucketBonus); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.Balanced = r.MainMinted-r.MainBurned == r.MainBalances && r.BonusMinted-r.BonusBurned == r.BonusTotal
	if !r.Balanced {
		log.WithFields(log.Fields{
			"main_supply":   (r.MainMinted - r.MainBurned).String(),
			"main_balances": r.MainBalances.String(),
			"bonus_supply":  (r.BonusMinted - r.BonusBurned).String(),
			"bonus_total":   r.BonusTotal.String(),
		}).Error("Расхождение эмиссии и балансов")
	}
	return &r, nil
}

// Run выполняет fn в транзакции и собирает квитанцию по user и Банку.
// При отказе возвращает RejectedError с балансами после отката.
// Используется и другими модулями (панели, розыгрыши, задания).
func (s *Service) Run(ctx context.Context, op string, user int64, fn func(ctx context.Context, tx storage.Tx) error) (*Receipt, error) {
	var receipt Receipt
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return s.fillReceipt(ctx, tx, user, &receipt)
	})
	metrics.RecordLedgerOperation(op, err)
	if err != nil {
		return nil, s.reject(ctx, err, user)
	}
	return &receipt, nil
}

// RunSplit — Run для операций с комбинированной оплатой.
func (s *Service) RunSplit(ctx context.Context, op string, user int64, fn func(ctx context.Context, tx storage.Tx) (Split, error)) (*Receipt, error) {
	var split Split
	receipt, err := s.Run(ctx, op, user, func(ctx context.Context, tx storage.Tx) error {
		var err error
		split, err = fn(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	receipt.Split = &split
	return receipt, nil
}

func (s *Service) adminOp(ctx context.Context, op string, admin, user int64, fn func(ctx context.Context, tx storage.Tx) error) (*Receipt, error) {
	if !s.IsAdmin(admin) {
		return nil, common.ErrNotAdmin
	}
	receipt, err := s.Run(ctx, op, user, fn)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"op": op, "admin": admin, "user": user}).Warn("Административная операция отклонена")
		return nil, err
	}
	log.WithFields(log.Fields{"op": op, "admin": admin, "user": user}).Info("Административная операция выполнена")
	return receipt, nil
}

func (s *Service) fillReceipt(ctx context.Context, tx storage.Tx, user int64, r *Receipt) error {
	if user != 0 && user != s.bank.ID() {
		snap, err := s.snapshot(ctx, tx, user)
		if err != nil {
			return err
		}
		r.Account = snap
	}
	bank, err := s.snapshot(ctx, tx, s.bank.ID())
	if err != nil {
		return err
	}
	r.Bank = bank
	return nil
}

func (s *Service) snapshot(ctx context.Context, tx storage.Tx, id int64) (*domain.Snapshot, error) {
	acc, err := tx.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	units, err := tx.CountActivePanels(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	return &domain.Snapshot{
		AccountID:   acc.ID,
		Main:        acc.Main,
		Bonus:       acc.Bonus,
		Utility:     acc.Utility,
		ActiveUnits: units,
		VIP:         acc.VIP,
	}, nil
}

// reject прикладывает к ошибке текущие балансы. Если прочитать их не удалось,
// возвращается исходная ошибка.
func (s *Service) reject(ctx context.Context, cause error, user int64) error {
	var receipt Receipt
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return s.fillReceipt(ctx, tx, user, &receipt)
	})
	if err != nil {
		return cause
	}
	return &RejectedError{Err: cause, Receipt: receipt}
}
