// Package withdrawals ведёт заявки на вывод EFHC во внешний кошелёк.
//
// При создании сумма сразу переводится с пользователя на Банк, поэтому
// одни и те же средства нельзя вывести дважды. Отказ администратора и
// отмена пользователем возвращают сумму с Банка, отправка и сбой — нет.
//
//	pending  → approved | rejected | canceled | failed
//	approved → sent | rejected | failed
//	failed   → rejected
package withdrawals

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/config"
	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/features/ledger"
	"efhc.app/ledger/internal/metrics"
	"efhc.app/ledger/internal/money"
	"efhc.app/ledger/internal/notify"
	"efhc.app/ledger/internal/storage"
)

// ErrMissingTxHash — отправка отмечается только с хешем транзакции.
var ErrMissingTxHash = errors.New("не указан хеш транзакции")

// defaultListLimit — сколько заявок отдаёт список без явного лимита.
const defaultListLimit = 100

// Service управляет заявками на вывод.
type Service struct {
	store    storage.Store
	ledger   *ledger.Service
	notifier notify.Notifier
	min, max money.Amount
}

// NewService создаёт сервис с лимитами WITHDRAW_MIN/WITHDRAW_MAX.
func NewService(store storage.Store, ledgerService *ledger.Service, notifier notify.Notifier, cfg *config.Config) *Service {
	lo, hi := cfg.WithdrawLimits()
	return &Service{store: store, ledger: ledgerService, notifier: notifier, min: lo, max: hi}
}

// Request — заявка пользователя.
type Request struct {
	Asset          string       `json:"asset"`
	Address        string       `json:"to_address"`
	Amount         money.Amount `json:"amount"`
	IdempotencyKey string       `json:"idempotency_key"`
}

// Result — заявка и балансы после операции.
type Result struct {
	Withdrawal *domain.Withdrawal `json:"withdrawal"`
	Receipt    *ledger.Receipt    `json:"receipt,omitempty"`
	Created    bool               `json:"-"`
}

func (s *Service) validate(req *Request) error {
	asset, ok := domain.NormalizeWithdrawAsset(req.Asset)
	if !ok {
		return fmt.Errorf("%w: актив %q не поддерживается", common.ErrInvalidAddress, req.Asset)
	}
	req.Asset = asset
	req.Address = strings.TrimSpace(req.Address)
	if !domain.ValidTONAddress(req.Address) {
		return fmt.Errorf("%w: %q", common.ErrInvalidAddress, req.Address)
	}
	if !req.Amount.IsPositive() {
		return common.ErrInvalidAmount
	}
	if req.Amount < s.min || req.Amount > s.max {
		return fmt.Errorf("%w: допустимо от %s до %s EFHC", common.ErrInvalidAmount, s.min, s.max)
	}
	return nil
}

// Create создаёт заявку и списывает сумму на Банк в одной транзакции.
// Повтор с тем же ключом возвращает существующую заявку без повторного списания.
// Пустой ключ заменяется случайным.
func (s *Service) Create(ctx context.Context, user int64, req Request) (*Result, error) {
	if user == s.ledger.Bank().ID() {
		return nil, common.ErrBankAccount
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	w := &domain.Withdrawal{
		AccountID:      user,
		Asset:          req.Asset,
		Address:        req.Address,
		Amount:         req.Amount,
		Status:         domain.WithdrawalPending,
		IdempotencyKey: req.IdempotencyKey,
	}
	var created bool
	receipt, err := s.ledger.Run(ctx, "withdrawal_create", user, func(ctx context.Context, tx storage.Tx) error {
		var err error
		created, err = tx.CreateWithdrawal(ctx, w)
		if err != nil || !created {
			return err
		}
		return s.ledger.Bank().DebitUserToBank(ctx, tx, user, w.Amount, domain.ReasonWithdrawal)
	})
	if err != nil {
		return nil, err
	}
	if !created {
		if w.AccountID != user {
			// Чужой ключ идемпотентности: не раскрываем чужую заявку
			return nil, common.ErrAlreadyExists
		}
		return &Result{Withdrawal: w, Receipt: receipt}, nil
	}

	metrics.RecordWithdrawalTransition(w.Asset, string(w.Status))
	log.WithFields(log.Fields{
		"withdrawal": w.ID,
		"user":       user,
		"asset":      w.Asset,
		"amount":     w.Amount.String(),
	}).Info("Создана заявка на вывод")
	s.notifier.NotifyAdmins(ctx, fmt.Sprintf("Заявка на вывод #%d: %s EFHC в %s, пользователь %d",
		w.ID, w.Amount, w.Asset, user))
	return &Result{Withdrawal: w, Receipt: receipt, Created: true}, nil
}

// Get возвращает заявку по id.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Withdrawal, error) {
	var w *domain.Withdrawal
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		w, err = tx.GetWithdrawal(ctx, id)
		return err
	})
	return w, err
}

// List возвращает заявки по фильтру, от новых к старым.
func (s *Service) List(ctx context.Context, f domain.WithdrawalFilter) ([]domain.Withdrawal, error) {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	var out []domain.Withdrawal
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.ListWithdrawals(ctx, f)
		return err
	})
	return out, err
}

// Cancel отменяет свою заявку в статусе pending и возвращает сумму.
func (s *Service) Cancel(ctx context.Context, user, id int64) (*Result, error) {
	return s.move(ctx, "withdrawal_cancel", user, id, domain.WithdrawalCanceled, func(w *domain.Withdrawal) error {
		if w.AccountID != user {
			return common.ErrNotFound
		}
		return nil
	})
}

// Approve подтверждает заявку к отправке.
func (s *Service) Approve(ctx context.Context, admin, id int64, comment string) (*Result, error) {
	return s.adminMove(ctx, "withdrawal_approve", admin, id, domain.WithdrawalApproved, comment, "")
}

// Reject отклоняет заявку и возвращает сумму пользователю.
func (s *Service) Reject(ctx context.Context, admin, id int64, comment string) (*Result, error) {
	return s.adminMove(ctx, "withdrawal_reject", admin, id, domain.WithdrawalRejected, comment, "")
}

// Send отмечает подтверждённую заявку отправленной. txHash обязателен.
func (s *Service) Send(ctx context.Context, admin, id int64, txHash, comment string) (*Result, error) {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return nil, ErrMissingTxHash
	}
	return s.adminMove(ctx, "withdrawal_send", admin, id, domain.WithdrawalSent, comment, txHash)
}

// Fail отмечает сбой отправки. Сумма остаётся на Банке до решения администратора (reject).
func (s *Service) Fail(ctx context.Context, admin, id int64, comment string) (*Result, error) {
	return s.adminMove(ctx, "withdrawal_fail", admin, id, domain.WithdrawalFailed, comment, "")
}

func (s *Service) adminMove(ctx context.Context, op string, admin, id int64, to domain.WithdrawalStatus,
	comment, txHash string) (*Result, error) {
	if !s.ledger.IsAdmin(admin) {
		return nil, common.ErrNotAdmin
	}
	res, err := s.move(ctx, op, 0, id, to, func(w *domain.Withdrawal) error {
		w.AdminID = admin
		if comment != "" {
			w.Comment = comment
		}
		if txHash != "" {
			w.TxHash = txHash
		}
		return nil
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"op": op, "admin": admin, "withdrawal": id}).Warn("Операция с заявкой на вывод отклонена")
		return nil, err
	}
	return res, nil
}

// move переводит заявку в to под блокировкой. Владелец заявки нужен
// заранее, чтобы квитанция содержала его балансы.
func (s *Service) move(ctx context.Context, op string, user, id int64, to domain.WithdrawalStatus,
	check func(w *domain.Withdrawal) error) (*Result, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// Чужая заявка не должна попасть даже в квитанцию отказа
	if user != 0 && current.AccountID != user {
		return nil, common.ErrNotFound
	}

	var w *domain.Withdrawal
	receipt, err := s.ledger.Run(ctx, op, current.AccountID, func(ctx context.Context, tx storage.Tx) error {
		var err error
		w, err = tx.LockWithdrawal(ctx, id)
		if err != nil {
			return err
		}
		if err := check(w); err != nil {
			return err
		}
		if !w.Status.CanTransition(to) {
			return fmt.Errorf("%w: заявка %d %s → %s", common.ErrInvalidStateTransition, w.ID, w.Status, to)
		}
		w.Status = to
		if err := tx.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}
		if to.Refunds() {
			return s.ledger.Bank().CreditUserFromBank(ctx, tx, w.AccountID, w.Amount, domain.ReasonWithdrawalRefund)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordWithdrawalTransition(w.Asset, string(w.Status))
	log.WithFields(log.Fields{
		"withdrawal": w.ID,
		"user":       w.AccountID,
		"status":     w.Status,
		"refund":     to.Refunds(),
	}).Info("Заявка на вывод обновлена")
	return &Result{Withdrawal: w, Receipt: receipt}, nil
}
