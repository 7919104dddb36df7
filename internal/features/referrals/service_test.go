package referrals

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
	"efhc.app/ledger/internal/features/panels"
	"efhc.app/ledger/internal/money"
	"efhc.app/ledger/internal/storage"
)

const (
	bankID     int64 = 362746228
	adminID    int64 = 1
	referrerID int64 = 10
	userID     int64 = 42
)

type ReferralsSuite struct {
	suite.Suite
	ctx    context.Context
	store  *memory.Store
	ledger *ledger.Service
	panels *panels.Service
	svc    *Service
}

func TestReferralsSuite(t *testing.T) {
	suite.Run(t, new(ReferralsSuite))
}

func (s *ReferralsSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.ledger = ledger.NewService(s.store, ledger.NewBank(bankID), []int64{adminID})

	cfg := &config.Config{PanelPrice: "100", PanelMaxActive: 10, ReferralDirectBonus: "0.1"}
	s.svc = NewService(s.store, s.ledger, cfg)
	s.panels = panels.NewService(s.store, s.ledger, cfg)
	s.panels.SetRewardHook(s.svc)

	// Пригласивший известен сервису
	_, err := s.ledger.Snapshot(s.ctx, referrerID)
	s.Require().NoError(err)
}

func (s *ReferralsSuite) fundMain(user int64, amount int64) {
	_, err := s.ledger.Mint(s.ctx, adminID, money.FromInt(amount), "")
	s.Require().NoError(err)
	_, err = s.ledger.Credit(s.ctx, adminID, user, ledger.Adjustment{Main: money.FromInt(amount)})
	s.Require().NoError(err)
}

func (s *ReferralsSuite) fundBonus(user int64, amount int64) {
	_, err := s.ledger.MintBonus(s.ctx, adminID, money.FromInt(amount), "")
	s.Require().NoError(err)
	_, err = s.ledger.Credit(s.ctx, adminID, user, ledger.Adjustment{Bonus: money.FromInt(amount)})
	s.Require().NoError(err)
}

func (s *ReferralsSuite) main(id int64) string {
	snap, err := s.ledger.Snapshot(s.ctx, id)
	s.Require().NoError(err)
	return snap.Main.String()
}

func (s *ReferralsSuite) audit() {
	report, err := s.ledger.Audit(s.ctx)
	s.Require().NoError(err)
	s.True(report.Balanced)
}

func (s *ReferralsSuite) TestSetReferrerOnce() {
	_, err := s.svc.SetReferrer(s.ctx, userID, userID)
	s.Require().ErrorIs(err, common.ErrSelfReferral)
	_, err = s.svc.SetReferrer(s.ctx, userID, bankID)
	s.Require().ErrorIs(err, common.ErrBankAccount)
	_, err = s.svc.SetReferrer(s.ctx, userID, 777)
	s.Require().ErrorIs(err, common.ErrNotFound)

	ref, err := s.svc.SetReferrer(s.ctx, userID, referrerID)
	s.Require().NoError(err)
	s.Equal(referrerID, ref.ReferrerID)
	s.False(ref.Active)

	_, err = s.ledger.Snapshot(s.ctx, 11)
	s.Require().NoError(err)
	_, err = s.svc.SetReferrer(s.ctx, userID, 11)
	s.Require().ErrorIs(err, common.ErrAlreadyExists)

	stats, err := s.svc.Stats(s.ctx, referrerID)
	s.Require().NoError(err)
	s.Len(stats.Referrals, 1)
	s.Zero(stats.Active)
}

func (s *ReferralsSuite) TestSetReferrerAfterPurchase() {
	s.fundMain(userID, 100)
	_, err := s.panels.PurchaseCapacityUnit(s.ctx, userID, 1, ledger.MainFirst)
	s.Require().NoError(err)

	_, err = s.svc.SetReferrer(s.ctx, userID, referrerID)
	s.Require().ErrorIs(err, common.ErrInvalidStateTransition)
}

func (s *ReferralsSuite) TestDirectBonusOnFirstPurchaseOnly() {
	_, err := s.svc.SetReferrer(s.ctx, userID, referrerID)
	s.Require().NoError(err)
	s.fundMain(userID, 200)

	_, err = s.panels.PurchaseCapacityUnit(s.ctx, userID, 1, ledger.MainFirst)
	s.Require().NoError(err)
	s.Equal("0.100", s.main(referrerID))

	_, err = s.panels.PurchaseCapacityUnit(s.ctx, userID, 1, ledger.MainFirst)
	s.Require().NoError(err)
	s.Equal("0.100", s.main(referrerID))

	stats, err := s.svc.Stats(s.ctx, referrerID)
	s.Require().NoError(err)
	s.Equal(int64(1), stats.Active)
	s.NotNil(stats.Referrals[0].ActivatedAt)

	var reasons []string
	for _, t := range s.store.Transfers() {
		if t.ToID == referrerID {
			reasons = append(reasons, t.Reason)
		}
	}
	s.Equal([]string{domain.ReasonReferralBonus}, reasons)
	s.audit()
}

func (s *ReferralsSuite) TestMilestoneBonus() {
	// Девять приглашённых уже активны
	s.Require().NoError(s.store.InTx(s.ctx, func(ctx context.Context, tx storage.Tx) error {
		for id := int64(100); id < 109; id++ {
			if _, err := tx.InsertReferral(ctx, &domain.Referral{RefereeID: id, ReferrerID: referrerID}); err != nil {
				return err
			}
			if err := tx.ActivateReferral(ctx, id, time.Now()); err != nil {
				return err
			}
		}
		return nil
	}))

	_, err := s.svc.SetReferrer(s.ctx, userID, referrerID)
	s.Require().NoError(err)
	s.fundMain(userID, 100)

	_, err = s.panels.PurchaseCapacityUnit(s.ctx, userID, 1, ledger.MainFirst)
	s.Require().NoError(err)
	// 0.1 за покупку и 1 за десятого активного реферала
	s.Equal("1.100", s.main(referrerID))
	s.audit()
}

func (s *ReferralsSuite) TestRewardDeferredWhenBankShort() {
	_, err := s.svc.SetReferrer(s.ctx, userID, referrerID)
	s.Require().NoError(err)

	// Оплата бонусами: основной баланс Банка остаётся нулевым
	s.fundBonus(userID, 100)
	_, err = s.panels.PurchaseCapacityUnit(s.ctx, userID, 1, ledger.BonusFirst)
	s.Require().NoError(err)
	s.Equal("0.000", s.main(referrerID))

	stats, err := s.svc.Stats(s.ctx, referrerID)
	s.Require().NoError(err)
	s.Zero(stats.Active)

	_, err = s.ledger.Mint(s.ctx, adminID, money.FromInt(1), "")
	s.Require().NoError(err)
	s.fundBonus(userID, 100)
	_, err = s.panels.PurchaseCapacityUnit(s.ctx, userID, 1, ledger.BonusFirst)
	s.Require().NoError(err)
	s.Equal("0.100", s.main(referrerID))
	s.audit()
}
