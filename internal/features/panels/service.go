// Package panels продаёт панели (единицы мощности) за EFHC.
// Панель активна 180 дней и каждый день генерирует кВт·ч по ставке своего уровня.
package panels

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/config"
	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/features/ledger"
	"efhc.app/ledger/internal/money"
	"efhc.app/ledger/internal/storage"
)

// RewardHook платит награды за покупку внутри её транзакции
// (реферальная программа).
type RewardHook interface {
	// PendingReferrer возвращает счёт, которому причитается награда, или 0.
	PendingReferrer(ctx context.Context, tx storage.Tx, buyer int64) (int64, error)
	RewardFirstPurchase(ctx context.Context, tx storage.Tx, buyer int64, at time.Time) error
}

// Service покупает и выводит из эксплуатации панели.
type Service struct {
	store     storage.Store
	ledger    *ledger.Service
	rewards   RewardHook
	price     money.Amount
	maxActive int64
	now       func() time.Time
}

// NewService создаёт сервис панелей.
func NewService(store storage.Store, ledgerService *ledger.Service, cfg *config.Config) *Service {
	return &Service{
		store:     store,
		ledger:    ledgerService,
		price:     cfg.PanelPriceAmount(),
		maxActive: cfg.PanelMaxActive,
		now:       time.Now,
	}
}

// SetRewardHook подключает награды за покупку. nil отключает их.
func (s *Service) SetRewardHook(h RewardHook) {
	s.rewards = h
}

// Purchase — результат покупки.
type Purchase struct {
	Panel   *domain.Panel   `json:"panel"`
	Receipt *ledger.Receipt `json:"receipt"`
}

// PurchaseCapacityUnit покупает quantity панелей уровня 1.
// Лимит активных панелей проверяется под блокировкой счёта, оплата идёт через
// комбинированное списание бонусов и основного баланса.
func (s *Service) PurchaseCapacityUnit(ctx context.Context, user int64, quantity int64, priority ledger.Priority) (*Purchase, error) {
	if quantity < 1 {
		return nil, common.ErrInvalidAmount
	}
	if quantity > s.maxActive {
		return nil, fmt.Errorf("%w: максимум %s", common.ErrPanelLimit, common.FormatPanels(s.maxActive))
	}
	price, err := s.price.Mul(quantity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidAmount, err)
	}

	now := s.now()
	var panel *domain.Panel

	receipt, err := s.ledger.RunSplit(ctx, "panel_purchase", user, func(ctx context.Context, tx storage.Tx) (ledger.Split, error) {
		// Все счета операции блокируются одним вызовом по возрастанию id
		ids := []int64{user, s.ledger.Bank().ID()}
		referrer := int64(0)
		if s.rewards != nil {
			var err error
			if referrer, err = s.rewards.PendingReferrer(ctx, tx, user); err != nil {
				return ledger.Split{}, err
			}
			if referrer != 0 {
				ids = append(ids, referrer)
			}
		}
		if _, err := tx.LockAccounts(ctx, ids...); err != nil {
			return ledger.Split{}, err
		}
		active, err := tx.CountActivePanels(ctx, user, now)
		if err != nil {
			return ledger.Split{}, err
		}
		if active+quantity > s.maxActive {
			return ledger.Split{}, fmt.Errorf("%w: активно %d из %d", common.ErrPanelLimit, active, s.maxActive)
		}

		split, err := s.ledger.Bank().ChargeCombined(ctx, tx, user, price, priority)
		if err != nil {
			return ledger.Split{}, err
		}

		panel = domain.NewPanel(user, domain.DefaultPanelLevel, quantity, now)
		if err := tx.InsertPanel(ctx, panel); err != nil {
			return ledger.Split{}, err
		}
		if referrer != 0 {
			if err := s.rewards.RewardFirstPurchase(ctx, tx, user, now); err != nil {
				return ledger.Split{}, err
			}
		}
		return split, nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user":      user,
		"quantity":  quantity,
		"use_bonus": receipt.Split.UseBonus.String(),
		"use_main":  receipt.Split.UseMain.String(),
	}).Infof("Куплено %s на %s", common.FormatPanels(quantity), common.FormatDays(int64(domain.PanelLifetime/(24*time.Hour))))

	return &Purchase{Panel: panel, Receipt: receipt}, nil
}

// ExpirePanels снимает с эксплуатации панели, срок которых истёк к моменту at.
func (s *Service) ExpirePanels(ctx context.Context, at time.Time) (int64, error) {
	var n int64
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		n, err = tx.ExpirePanels(ctx, at)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("ошибка деактивации панелей: %w", err)
	}
	if n > 0 {
		log.WithField("batches", n).Info("Истёкшие панели деактивированы")
	}
	return n, nil
}
