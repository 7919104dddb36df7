package withdrawals

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/config"
	"efhc.app/ledger/internal/db/memory"
	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/features/ledger"
	"efhc.app/ledger/internal/money"
	"efhc.app/ledger/internal/notify"
)

const (
	bankID  int64 = 362746228
	adminID int64 = 1
	userID  int64 = 42
	address       = "EQD4FPq-PRDieyQKkizFTRtSDyucUIqrj0v_zXJmqaDp6_0t"
)

type WithdrawalsSuite struct {
	suite.Suite
	ctx      context.Context
	store    *memory.Store
	ledger   *ledger.Service
	notifier *notify.Recorder
	svc      *Service
}

func TestWithdrawalsSuite(t *testing.T) {
	suite.Run(t, new(WithdrawalsSuite))
}

func (s *WithdrawalsSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.ledger = ledger.NewService(s.store, ledger.NewBank(bankID), []int64{adminID})
	s.Require().NoError(s.ledger.Bootstrap(s.ctx, money.FromInt(1000)))
	s.notifier = &notify.Recorder{}
	s.svc = NewService(s.store, s.ledger, s.notifier, &config.Config{WithdrawMin: "1", WithdrawMax: "500"})

	_, err := s.ledger.Credit(s.ctx, adminID, userID, ledger.Adjustment{Main: money.FromInt(100)})
	s.Require().NoError(err)
}

func (s *WithdrawalsSuite) request(amount, key string) Request {
	return Request{Asset: "ton", Address: address, Amount: money.MustParse(amount), IdempotencyKey: key}
}

func (s *WithdrawalsSuite) balance(id int64) string {
	snap, err := s.ledger.Snapshot(s.ctx, id)
	s.Require().NoError(err)
	return snap.Main.String()
}

func (s *WithdrawalsSuite) audit() {
	report, err := s.ledger.Audit(s.ctx)
	s.Require().NoError(err)
	s.True(report.Balanced)
}

func (s *WithdrawalsSuite) TestCreateDebitsOnce() {
	res, err := s.svc.Create(s.ctx, userID, s.request("30.5", "w1"))
	s.Require().NoError(err)
	s.True(res.Created)
	s.Equal(domain.WithdrawalPending, res.Withdrawal.Status)
	s.Equal(domain.AssetTON, res.Withdrawal.Asset)
	s.Equal("69.500", res.Receipt.Account.Main.String())
	s.Len(s.notifier.Messages(), 1)

	// Повтор с тем же ключом не списывает второй раз
	res, err = s.svc.Create(s.ctx, userID, s.request("30.5", "w1"))
	s.Require().NoError(err)
	s.False(res.Created)
	s.Equal("69.500", s.balance(userID))

	// Чужой ключ не раскрывается
	_, err = s.svc.Create(s.ctx, 7, s.request("1", "w1"))
	s.Require().ErrorIs(err, common.ErrAlreadyExists)

	transfers := s.store.Transfers()
	last := transfers[len(transfers)-1]
	s.Equal(domain.ReasonWithdrawal, last.Reason)
	s.Equal(bankID, last.ToID)
	s.audit()
}

func (s *WithdrawalsSuite) TestCreateRejectsInvalid() {
	cases := map[string]struct {
		req  Request
		want error
	}{
		"below min":       {s.request("0.999", ""), common.ErrInvalidAmount},
		"above max":       {s.request("500.001", ""), common.ErrInvalidAmount},
		"zero":            {s.request("0", ""), common.ErrInvalidAmount},
		"unknown asset":   {Request{Asset: "BTC", Address: address, Amount: money.FromInt(2)}, common.ErrInvalidAddress},
		"bad address":     {Request{Asset: "TON", Address: "0xdeadbeef", Amount: money.FromInt(2)}, common.ErrInvalidAddress},
		"not enough main": {s.request("200", ""), common.ErrInsufficientBalance},
	}
	for name, tc := range cases {
		s.Run(name, func() {
			_, err := s.svc.Create(s.ctx, userID, tc.req)
			s.Require().ErrorIs(err, tc.want)
		})
	}
	_, err := s.svc.Create(s.ctx, bankID, s.request("2", ""))
	s.Require().ErrorIs(err, common.ErrBankAccount)

	s.Equal("100.000", s.balance(userID))
	list, err := s.svc.List(s.ctx, domain.WithdrawalFilter{AccountID: userID})
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *WithdrawalsSuite) TestRejectRefunds() {
	res, err := s.svc.Create(s.ctx, userID, s.request("40", ""))
	s.Require().NoError(err)
	id := res.Withdrawal.ID

	_, err = s.svc.Approve(s.ctx, userID, id, "")
	s.Require().ErrorIs(err, common.ErrNotAdmin)

	res, err = s.svc.Approve(s.ctx, adminID, id, "ok")
	s.Require().NoError(err)
	s.Equal(domain.WithdrawalApproved, res.Withdrawal.Status)
	s.Equal(adminID, res.Withdrawal.AdminID)

	res, err = s.svc.Reject(s.ctx, adminID, id, "адрес в чёрном списке")
	s.Require().NoError(err)
	s.Equal(domain.WithdrawalRejected, res.Withdrawal.Status)
	s.Equal("100.000", res.Receipt.Account.Main.String())

	// Повторный отказ не возвращает средства второй раз
	_, err = s.svc.Reject(s.ctx, adminID, id, "")
	s.Require().ErrorIs(err, common.ErrInvalidStateTransition)
	s.Equal("100.000", s.balance(userID))
	s.audit()
}

func (s *WithdrawalsSuite) TestSendKeepsFunds() {
	res, err := s.svc.Create(s.ctx, userID, s.request("10", ""))
	s.Require().NoError(err)
	id := res.Withdrawal.ID

	// Отправить можно только подтверждённую заявку
	_, err = s.svc.Send(s.ctx, adminID, id, "hash", "")
	s.Require().ErrorIs(err, common.ErrInvalidStateTransition)

	_, err = s.svc.Approve(s.ctx, adminID, id, "")
	s.Require().NoError(err)
	_, err = s.svc.Send(s.ctx, adminID, id, "  ", "")
	s.Require().ErrorIs(err, ErrMissingTxHash)

	res, err = s.svc.Send(s.ctx, adminID, id, "abc123", "")
	s.Require().NoError(err)
	s.Equal(domain.WithdrawalSent, res.Withdrawal.Status)
	s.Equal("abc123", res.Withdrawal.TxHash)
	s.Equal("90.000", res.Receipt.Account.Main.String())

	_, err = s.svc.Reject(s.ctx, adminID, id, "")
	s.Require().ErrorIs(err, common.ErrInvalidStateTransition)
	s.Equal("910.000", s.balance(bankID))
}

func (s *WithdrawalsSuite) TestFailThenReject() {
	res, err := s.svc.Create(s.ctx, userID, s.request("25", ""))
	s.Require().NoError(err)
	id := res.Withdrawal.ID

	res, err = s.svc.Fail(s.ctx, adminID, id, "узел недоступен")
	s.Require().NoError(err)
	s.Equal(domain.WithdrawalFailed, res.Withdrawal.Status)
	s.Equal("75.000", res.Receipt.Account.Main.String())

	_, err = s.svc.Approve(s.ctx, adminID, id, "")
	s.Require().ErrorIs(err, common.ErrInvalidStateTransition)

	res, err = s.svc.Reject(s.ctx, adminID, id, "")
	s.Require().NoError(err)
	s.Equal("100.000", res.Receipt.Account.Main.String())
	s.audit()
}

func (s *WithdrawalsSuite) TestCancelOwnPendingOnly() {
	res, err := s.svc.Create(s.ctx, userID, s.request("5", ""))
	s.Require().NoError(err)
	id := res.Withdrawal.ID

	_, err = s.svc.Cancel(s.ctx, 7, id)
	s.Require().ErrorIs(err, common.ErrNotFound)

	res, err = s.svc.Cancel(s.ctx, userID, id)
	s.Require().NoError(err)
	s.Equal(domain.WithdrawalCanceled, res.Withdrawal.Status)
	s.Equal("100.000", res.Receipt.Account.Main.String())

	res, err = s.svc.Create(s.ctx, userID, s.request("5", ""))
	s.Require().NoError(err)
	_, err = s.svc.Approve(s.ctx, adminID, res.Withdrawal.ID, "")
	s.Require().NoError(err)
	_, err = s.svc.Cancel(s.ctx, userID, res.Withdrawal.ID)
	s.Require().ErrorIs(err, common.ErrInvalidStateTransition)

	list, err := s.svc.List(s.ctx, domain.WithdrawalFilter{Status: domain.WithdrawalApproved})
	s.Require().NoError(err)
	s.Len(list, 1)
	s.Equal(res.Withdrawal.ID, list[0].ID)

	_, err = s.svc.Cancel(s.ctx, userID, 999)
	s.Require().ErrorIs(err, common.ErrNotFound)
}
