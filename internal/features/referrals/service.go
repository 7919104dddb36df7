// Package referrals связывает приглашённых с пригласившими и платит
// пригласившему награды с Банка:
//
//   - REFERRAL_DIRECT_BONUS EFHC за первую покупку панели приглашённым;
//   - разовый бонус, когда число активных рефералов ровно достигает порога
//     из domain.ReferralMilestones.
//
// Награды платятся в транзакции покупки. Если Банку не хватает средств,
// реферал остаётся неактивным и награда будет выплачена при следующей покупке.
package referrals

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/config"
	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/features/ledger"
	"efhc.app/ledger/internal/metrics"
	"efhc.app/ledger/internal/money"
	"efhc.app/ledger/internal/storage"
)

// Service управляет реферальной программой.
type Service struct {
	store  storage.Store
	ledger *ledger.Service
	bonus  money.Amount
	now    func() time.Time
}

// NewService создаёт сервис с бонусом REFERRAL_DIRECT_BONUS.
func NewService(store storage.Store, ledgerService *ledger.Service, cfg *config.Config) *Service {
	return &Service{store: store, ledger: ledgerService, bonus: cfg.ReferralBonus(), now: time.Now}
}

// SetReferrer указывает пригласившего. Сделать это можно один раз и только
// до первой покупки панели.
func (s *Service) SetReferrer(ctx context.Context, user, referrer int64) (*domain.Referral, error) {
	if referrer <= 0 {
		return nil, fmt.Errorf("%w: пригласивший не указан", common.ErrNotFound)
	}
	if user == referrer {
		return nil, common.ErrSelfReferral
	}
	bank := s.ledger.Bank().ID()
	if user == bank || referrer == bank {
		return nil, common.ErrBankAccount
	}

	ref := &domain.Referral{RefereeID: user, ReferrerID: referrer}
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		// Пригласивший должен быть известным пользователем
		if _, err := tx.PeekAccount(ctx, referrer); err != nil {
			return err
		}
		if _, err := tx.LockAccounts(ctx, user); err != nil {
			return err
		}
		units, err := tx.CountActivePanels(ctx, user, s.now())
		if err != nil {
			return err
		}
		if units > 0 {
			return fmt.Errorf("%w: панели уже куплены", common.ErrInvalidStateTransition)
		}
		created, err := tx.InsertReferral(ctx, ref)
		if err != nil {
			return err
		}
		if !created {
			return fmt.Errorf("%w: пригласивший уже указан", common.ErrAlreadyExists)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"user": user, "referrer": referrer}).Info("Указан пригласивший")
	return ref, nil
}

// Stats — рефералы пользователя.
type Stats struct {
	Referrals []domain.Referral `json:"referrals"`
	Active    int64             `json:"active"`
}

// Stats возвращает приглашённых пользователем.
func (s *Service) Stats(ctx context.Context, user int64) (*Stats, error) {
	var out Stats
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		if out.Referrals, err = tx.ListReferrals(ctx, user); err != nil {
			return err
		}
		out.Active, err = tx.CountActiveReferrals(ctx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PendingReferrer возвращает пригласившего, которому причитается награда
// за покупку referee, или 0. Связь блокируется до конца транзакции.
func (s *Service) PendingReferrer(ctx context.Context, tx storage.Tx, referee int64) (int64, error) {
	ref, err := tx.LockReferral(ctx, referee)
	if errors.Is(err, common.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if ref.Active {
		return 0, nil
	}
	return ref.ReferrerID, nil
}

// RewardFirstPurchase активирует реферала referee и платит награды
// пригласившему. Вызывается в транзакции покупки после PendingReferrer,
// счета пригласившего и Банка уже заблокированы вызывающим.
func (s *Service) RewardFirstPurchase(ctx context.Context, tx storage.Tx, referee int64, at time.Time) error {
	referrer, err := s.PendingReferrer(ctx, tx, referee)
	if err != nil || referrer == 0 {
		return err
	}

	active, err := tx.CountActiveReferrals(ctx, referrer)
	if err != nil {
		return err
	}
	milestone, reached := domain.MilestoneBonus(active + 1)
	due := s.bonus
	if reached {
		due += milestone
	}

	bank := s.ledger.Bank()
	locked, err := tx.LockAccounts(ctx, referrer, bank.ID())
	if err != nil {
		return err
	}
	if locked[bank.ID()].Main < due {
		log.WithFields(log.Fields{
			"referee":  referee,
			"referrer": referrer,
			"due":      due.String(),
		}).Warn("Банку не хватает средств на реферальную награду, выплата отложена")
		return nil
	}

	if err := tx.ActivateReferral(ctx, referee, at); err != nil {
		return err
	}
	if err := bank.CreditUserFromBank(ctx, tx, referrer, s.bonus, domain.ReasonReferralBonus); err != nil {
		return err
	}
	metrics.RecordReferralReward("direct")
	if reached {
		if err := bank.CreditUserFromBank(ctx, tx, referrer, milestone, domain.ReasonReferralMilestone); err != nil {
			return err
		}
		metrics.RecordReferralReward("milestone")
	}

	log.WithFields(log.Fields{
		"referee":   referee,
		"referrer":  referrer,
		"active":    active + 1,
		"milestone": reached,
	}).Info("Реферальная награда выплачена")
	return nil
}
