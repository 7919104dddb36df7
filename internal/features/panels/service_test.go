package panels

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/config"
	"efhc.app/ledger/internal/db/memory"
	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/features/ledger"
	"efhc.app/ledger/internal/money"
	"efhc.app/ledger/internal/storage"
)

const (
	bankID  int64 = 362746228
	adminID int64 = 1
	userID  int64 = 42
)

type PanelsSuite struct {
	suite.Suite
	ctx    context.Context
	now    time.Time
	store  *memory.Store
	ledger *ledger.Service
	svc    *Service
}

func TestPanelsSuite(t *testing.T) {
	suite.Run(t, new(PanelsSuite))
}

func (s *PanelsSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Now().UTC().Truncate(time.Second)
	s.store = memory.New()
	s.store.SetClock(func() time.Time { return s.now })
	s.ledger = ledger.NewService(s.store, ledger.NewBank(bankID), []int64{adminID})
	s.Require().NoError(s.ledger.Bootstrap(s.ctx, money.FromInt(10_000)))

	cfg := &config.Config{PanelPrice: "100", PanelMaxActive: 5}
	s.svc = NewService(s.store, s.ledger, cfg)
	s.svc.now = func() time.Time { return s.now }
}

func (s *PanelsSuite) fund(main, bonus string) {
	adj := ledger.Adjustment{Main: money.MustParse(main), Bonus: money.MustParse(bonus)}
	if adj.Bonus.IsPositive() {
		_, err := s.ledger.MintBonus(s.ctx, adminID, adj.Bonus, "")
		s.Require().NoError(err)
	}
	_, err := s.ledger.Credit(s.ctx, adminID, userID, adj)
	s.Require().NoError(err)
}

func (s *PanelsSuite) TestPurchaseBonusFirst() {
	s.fund("200", "35.5")

	p, err := s.svc.PurchaseCapacityUnit(s.ctx, userID, 1, ledger.BonusFirst)
	s.Require().NoError(err)

	s.Equal("35.500", p.Receipt.Split.UseBonus.String())
	s.Equal("64.500", p.Receipt.Split.UseMain.String())
	s.Equal("0.000", p.Receipt.Account.Bonus.String())
	s.Equal("135.500", p.Receipt.Account.Main.String())
	s.Equal(int64(1), p.Receipt.Account.ActiveUnits)
	s.Equal("35.500", p.Receipt.Bank.Bonus.String())

	s.Equal(domain.DefaultPanelLevel, p.Panel.Level)
	s.Equal(s.now.Add(domain.PanelLifetime), p.Panel.ExpiresAt)

	report, err := s.ledger.Audit(s.ctx)
	s.Require().NoError(err)
	s.True(report.Balanced)
}

func (s *PanelsSuite) TestPurchaseMainFirst() {
	s.fund("150", "100")

	p, err := s.svc.PurchaseCapacityUnit(s.ctx, userID, 2, ledger.MainFirst)
	s.Require().NoError(err)
	s.Equal("150.000", p.Receipt.Split.UseMain.String())
	s.Equal("50.000", p.Receipt.Split.UseBonus.String())
	s.Equal(int64(2), p.Receipt.Account.ActiveUnits)
}

func (s *PanelsSuite) TestInsufficientFundsLeavesBalances() {
	s.fund("50", "49.999")

	_, err := s.svc.PurchaseCapacityUnit(s.ctx, userID, 1, ledger.BonusFirst)
	s.Require().ErrorIs(err, common.ErrInsufficientFunds)

	snap, err := s.ledger.Snapshot(s.ctx, userID)
	s.Require().NoError(err)
	s.Equal("50.000", snap.Main.String())
	s.Equal("49.999", snap.Bonus.String())
	s.Zero(snap.ActiveUnits)
}

func (s *PanelsSuite) TestActiveLimit() {
	s.fund("1000", "0")

	_, err := s.svc.PurchaseCapacityUnit(s.ctx, userID, 4, ledger.BonusFirst)
	s.Require().NoError(err)

	_, err = s.svc.PurchaseCapacityUnit(s.ctx, userID, 2, ledger.BonusFirst)
	s.Require().ErrorIs(err, common.ErrPanelLimit)

	_, err = s.svc.PurchaseCapacityUnit(s.ctx, userID, 1, ledger.BonusFirst)
	s.Require().NoError(err)

	// После истечения срока место освобождается
	s.now = s.now.Add(domain.PanelLifetime)
	n, err := s.svc.ExpirePanels(s.ctx, s.now)
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	p, err := s.svc.PurchaseCapacityUnit(s.ctx, userID, 5, ledger.MainFirst)
	s.Require().NoError(err)
	s.Equal("0.000", p.Receipt.Account.Main.String())
}

func (s *PanelsSuite) TestInvalidQuantity() {
	_, err := s.svc.PurchaseCapacityUnit(s.ctx, userID, 0, ledger.BonusFirst)
	s.Require().ErrorIs(err, common.ErrInvalidAmount)
}

type stubRewards struct {
	referrer int64
	err      error
	rewarded []int64
}

func (h *stubRewards) PendingReferrer(context.Context, storage.Tx, int64) (int64, error) {
	return h.referrer, nil
}

func (h *stubRewards) RewardFirstPurchase(_ context.Context, _ storage.Tx, buyer int64, _ time.Time) error {
	if h.err != nil {
		return h.err
	}
	h.rewarded = append(h.rewarded, buyer)
	return nil
}

func (s *PanelsSuite) TestRewardHookRunsInPurchaseTx() {
	s.fund("300", "0")
	hook := &stubRewards{referrer: 7}
	s.svc.SetRewardHook(hook)

	_, err := s.svc.PurchaseCapacityUnit(s.ctx, userID, 1, ledger.MainFirst)
	s.Require().NoError(err)
	s.Equal([]int64{userID}, hook.rewarded)

	// Ошибка награды откатывает покупку целиком
	hook.err = common.ErrInsufficientBankBalance
	_, err = s.svc.PurchaseCapacityUnit(s.ctx, userID, 1, ledger.MainFirst)
	s.Require().ErrorIs(err, common.ErrInsufficientBankBalance)

	snap, err := s.ledger.Snapshot(s.ctx, userID)
	s.Require().NoError(err)
	s.Equal("200.000", snap.Main.String())
	s.Equal(int64(1), snap.ActiveUnits)

	// Без пригласившего награда не вызывается
	hook.err = nil
	hook.referrer = 0
	_, err = s.svc.PurchaseCapacityUnit(s.ctx, userID, 1, ledger.MainFirst)
	s.Require().NoError(err)
	s.Len(hook.rewarded, 1)
}
