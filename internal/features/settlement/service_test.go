package settlement

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/suite"

	"efhc.app/ledger/internal/common"
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
	otherID int64 = 43
)

type SettlementSuite struct {
	suite.Suite
	ctx      context.Context
	store    *memory.Store
	ledger   *ledger.Service
	notifier *notify.Recorder
	svc      *Service
}

func TestSettlementSuite(t *testing.T) {
	suite.Run(t, new(SettlementSuite))
}

func (s *SettlementSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.ledger = ledger.NewService(s.store, ledger.NewBank(bankID), []int64{adminID})
	s.Require().NoError(s.ledger.Bootstrap(s.ctx, money.FromInt(10_000)))
	s.notifier = &notify.Recorder{}
	s.svc = NewService(s.store, s.ledger, NewCatalog(DefaultOffers), s.notifier)
}

func (s *SettlementSuite) order(kind domain.OrderKind, asset, amount, key string) *domain.Order {
	o, created, err := s.svc.CreateExternalOrder(s.ctx, userID, kind, asset, money.MustParse(amount), key)
	s.Require().NoError(err)
	s.Require().True(created)
	return o
}

func (s *SettlementSuite) paidOrder(kind domain.OrderKind, asset, amount string) *domain.Order {
	o := s.order(kind, asset, amount, "")
	_, err := s.svc.PaymentWebhook(s.ctx, strconv.FormatInt(o.ID, 10), "tx-"+o.Ref)
	s.Require().NoError(err)
	return o
}

func (s *SettlementSuite) snapshot(id int64) *domain.Snapshot {
	snap, err := s.ledger.Snapshot(s.ctx, id)
	s.Require().NoError(err)
	return snap
}

func (s *SettlementSuite) status(id int64) domain.OrderStatus {
	o, err := s.svc.OrderStatus(s.ctx, id)
	s.Require().NoError(err)
	return o.Status
}

// --- Заказы ---

func (s *SettlementSuite) TestCreateOrderIdempotent() {
	o := s.order(domain.OrderMainCurrency, "ton", "8", "key-1")
	s.Equal(domain.OrderPending, o.Status)
	s.Equal("efhc_100", o.OfferCode)
	s.Equal("TON", o.ExternalAsset)
	s.Equal("100.000", o.CreditAmount.String())
	s.NotEmpty(o.Ref)

	again, created, err := s.svc.CreateExternalOrder(s.ctx, userID, domain.OrderMainCurrency, "TON", money.FromInt(8), "key-1")
	s.Require().NoError(err)
	s.False(created)
	s.Equal(o.ID, again.ID)

	_, _, err = s.svc.CreateExternalOrder(s.ctx, otherID, domain.OrderMainCurrency, "TON", money.FromInt(8), "key-1")
	s.Require().ErrorIs(err, common.ErrAlreadyExists)
}

func (s *SettlementSuite) TestCreateOrderValidation() {
	_, _, err := s.svc.CreateExternalOrder(s.ctx, userID, domain.OrderMainCurrency, "TON", money.FromInt(7), "")
	s.Require().ErrorIs(err, common.ErrUnknownOffer)

	_, _, err = s.svc.CreateExternalOrder(s.ctx, userID, "skin", "TON", money.FromInt(8), "")
	s.Require().ErrorIs(err, common.ErrUnknownOffer)

	_, _, err = s.svc.CreateExternalOrder(s.ctx, userID, domain.OrderVIP, "TON", money.Zero, "")
	s.Require().ErrorIs(err, common.ErrInvalidAmount)

	_, _, err = s.svc.CreateExternalOrder(s.ctx, bankID, domain.OrderVIP, "TON", money.FromInt(10), "")
	s.Require().ErrorIs(err, common.ErrBankAccount)
}

func (s *SettlementSuite) TestPaymentWebhook() {
	o := s.order(domain.OrderMainCurrency, "USDT", "30", "pay-1")

	paid, err := s.svc.PaymentWebhook(s.ctx, "pay-1", "gw-77")
	s.Require().NoError(err)
	s.Equal(domain.OrderPaid, paid.Status)
	s.Equal("gw-77", paid.ExternalTxRef)

	_, err = s.svc.PaymentWebhook(s.ctx, o.Ref, "gw-77")
	s.Require().ErrorIs(err, common.ErrDuplicateEvent)

	_, err = s.svc.PaymentWebhook(s.ctx, o.Ref, "gw-78")
	s.Require().ErrorIs(err, common.ErrInvalidStateTransition)

	_, err = s.svc.PaymentWebhook(s.ctx, "missing", "gw-79")
	s.Require().ErrorIs(err, common.ErrNotFound)

	_, err = s.svc.PaymentWebhook(s.ctx, o.Ref, "")
	s.Require().ErrorIs(err, ErrMissingTxRef)
}

func (s *SettlementSuite) TestApproveMainCurrency() {
	o := s.paidOrder(domain.OrderMainCurrency, "TON", "8")

	_, err := s.svc.Approve(s.ctx, userID, o.ID)
	s.Require().ErrorIs(err, common.ErrNotAdmin)

	done, err := s.svc.Approve(s.ctx, adminID, o.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderCompleted, done.Status)
	s.Equal("100.000", s.snapshot(userID).Main.String())
	s.Equal("9900.000", s.snapshot(bankID).Main.String())

	// Повтор ничего не начисляет
	again, err := s.svc.Approve(s.ctx, adminID, o.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderCompleted, again.Status)
	s.Equal("100.000", s.snapshot(userID).Main.String())

	report, err := s.ledger.Audit(s.ctx)
	s.Require().NoError(err)
	s.True(report.Balanced)
}

func (s *SettlementSuite) TestApprovePendingIsRejected() {
	o := s.order(domain.OrderVIP, "TON", "10", "")

	_, err := s.svc.Approve(s.ctx, adminID, o.ID)
	s.Require().ErrorIs(err, common.ErrInvalidStateTransition)
	s.Equal(domain.OrderPending, s.status(o.ID))
}

func (s *SettlementSuite) TestApproveFailureMarksFailed() {
	_, err := s.ledger.Burn(s.ctx, adminID, money.FromInt(9950), "")
	s.Require().NoError(err)
	o := s.paidOrder(domain.OrderMainCurrency, "TON", "8")

	_, err = s.svc.Approve(s.ctx, adminID, o.ID)
	s.Require().ErrorIs(err, common.ErrInsufficientBankBalance)

	failed, err := s.svc.OrderStatus(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderFailed, failed.Status)
	s.NotEmpty(failed.FailureReason)
	s.True(s.snapshot(userID).Main.IsZero())
}

func (s *SettlementSuite) TestApproveVIP() {
	o := s.paidOrder(domain.OrderVIP, "USDT", "25")

	done, err := s.svc.Approve(s.ctx, adminID, o.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderCompleted, done.Status)
	s.True(s.snapshot(userID).VIP)
}

func (s *SettlementSuite) TestApproveCollectibleAndDeliver() {
	o := s.paidOrder(domain.OrderVIPCollectible, "TON", "20")

	pending, err := s.svc.Approve(s.ctx, adminID, o.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderPendingDelivery, pending.Status)
	s.False(s.snapshot(userID).VIP)
	s.Len(s.notifier.Messages(), 1)

	queue, err := s.svc.Fulfillments(s.ctx, "pending")
	s.Require().NoError(err)
	s.Require().Len(queue, 1)
	s.Equal(userID, queue[0].AccountID)
	s.Equal(o.ID, *queue[0].OrderID)

	done, err := s.svc.Deliver(s.ctx, adminID, o.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderCompleted, done.Status)
	s.True(s.snapshot(userID).VIP)

	_, err = s.svc.Deliver(s.ctx, adminID, o.ID)
	s.Require().ErrorIs(err, common.ErrInvalidStateTransition)
}

func (s *SettlementSuite) TestCancelAndReject() {
	o := s.order(domain.OrderVIP, "TON", "10", "")

	_, err := s.svc.Cancel(s.ctx, otherID, o.ID)
	s.Require().ErrorIs(err, common.ErrNotFound)

	canceled, err := s.svc.Cancel(s.ctx, userID, o.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderCanceled, canceled.Status)

	_, err = s.svc.Reject(s.ctx, adminID, o.ID, "поздно")
	s.Require().ErrorIs(err, common.ErrInvalidStateTransition)

	paid := s.paidOrder(domain.OrderVIP, "TON", "10")
	_, err = s.svc.Cancel(s.ctx, userID, paid.ID)
	s.Require().ErrorIs(err, common.ErrInvalidStateTransition)

	rejected, err := s.svc.Reject(s.ctx, adminID, paid.ID, "платёж отозван")
	s.Require().NoError(err)
	s.Equal(domain.OrderRejected, rejected.Status)
	s.Equal("платёж отозван", rejected.FailureReason)
}

// --- События блокчейна ---

func (s *SettlementSuite) event(id, asset, amount, memo string) (*EventResult, error) {
	return s.svc.BlockchainEvent(s.ctx, ChainEvent{ID: id, Asset: asset, Amount: money.MustParse(amount), Memo: memo})
}

func (s *SettlementSuite) TestDepositAppliedOnce() {
	res, err := s.event("tx1", "efhc", "15", "42, 15 EFHC")
	s.Require().NoError(err)
	s.Equal(domain.OutcomeApplied, res.Outcome)
	s.Equal("15.000", s.snapshot(userID).Main.String())

	_, err = s.event("tx1", "efhc", "15", "42, 15 EFHC")
	s.Require().ErrorIs(err, common.ErrDuplicateEvent)
	s.Equal("15.000", s.snapshot(userID).Main.String())

	res, err = s.event("tx2", "EFHC", "2.5", "id 42")
	s.Require().NoError(err)
	s.Equal(domain.OutcomeApplied, res.Outcome)
	s.Equal("17.500", s.snapshot(userID).Main.String())

	report, err := s.ledger.Audit(s.ctx)
	s.Require().NoError(err)
	s.True(report.Balanced)
}

func (s *SettlementSuite) TestEventOutcomes() {
	cases := []struct {
		id, asset, amount, memo string
		outcome                 string
	}{
		{"bad-memo", "EFHC", "5", "hello", domain.OutcomeIgnored},
		{"mismatch", "EFHC", "15", "42 10 EFHC", domain.OutcomeMismatch},
		{"ton-no-order", "TON", "5", "42", domain.OutcomeUnmatched},
		{"no-order", "TON", "5", "42 order 999999", domain.OutcomeUnmatched},
		{"bank", "EFHC", "5", "362746228", domain.OutcomeUnmatched},
	}
	for _, tc := range cases {
		res, err := s.event(tc.id, tc.asset, tc.amount, tc.memo)
		s.Require().NoError(err, tc.id)
		s.Equal(tc.outcome, res.Outcome, tc.id)

		_, err = s.event(tc.id, tc.asset, tc.amount, tc.memo)
		s.Require().ErrorIs(err, common.ErrDuplicateEvent, tc.id)
	}
	s.True(s.snapshot(userID).Main.IsZero())
}

func (s *SettlementSuite) TestEventPaysOrder() {
	o := s.order(domain.OrderVIPCollectible, "TON", "20", "")
	memo := BuildPaymentMemo(o)

	res, err := s.event("short", "TON", "19.999", memo)
	s.Require().NoError(err)
	s.Equal(domain.OutcomeMismatch, res.Outcome)
	s.Equal(domain.OrderPending, s.status(o.ID))

	res, err = s.event("full", "TON", "20", memo)
	s.Require().NoError(err)
	s.Equal(domain.OutcomeApplied, res.Outcome)
	s.Equal(domain.OrderPaid, s.status(o.ID))

	res, err = s.event("again", "TON", "20", memo)
	s.Require().NoError(err)
	s.Equal(domain.OutcomeIgnored, res.Outcome)
}

func (s *SettlementSuite) TestEventVIPWithoutOrder() {
	res, err := s.event("vip", "TON", "20", "4357333, VIP NFT")
	s.Require().NoError(err)
	s.Equal(domain.OutcomeApplied, res.Outcome)

	queue, err := s.svc.Fulfillments(s.ctx, "")
	s.Require().NoError(err)
	s.Require().Len(queue, 1)
	s.Equal(int64(4357333), queue[0].AccountID)
	s.Equal(SourceChain, queue[0].Source)
	s.Nil(queue[0].OrderID)
	s.Len(s.notifier.Messages(), 1)
}
