// Package tasks выдаёт бонусные EFHC за выполненные задания
// (подписка на канал, приглашение друга). Каждое задание награждается
// один раз на аккаунт.
package tasks

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/features/ledger"
	"efhc.app/ledger/internal/storage"
)

// Service награждает за задания.
type Service struct {
	ledger *ledger.Service
	now    func() time.Time
}

// NewService создаёт сервис заданий.
func NewService(ledgerService *ledger.Service) *Service {
	return &Service{ledger: ledgerService, now: time.Now}
}

// CompleteTask отмечает задание выполненным и начисляет награду с бонусного
// баланса Банка. Повторное выполнение возвращает ErrAlreadyExists без начисления.
func (s *Service) CompleteTask(ctx context.Context, user int64, code string) (*ledger.Receipt, error) {
	receipt, err := s.ledger.Run(ctx, "task_reward", user, func(ctx context.Context, tx storage.Tx) error {
		task, err := tx.GetTask(ctx, code)
		if err != nil {
			return err
		}
		if !task.Active {
			return fmt.Errorf("%w: задание %s неактивно", common.ErrNotFound, code)
		}

		fresh, err := tx.InsertTaskCompletion(ctx, code, user, s.now())
		if err != nil {
			return err
		}
		if !fresh {
			return fmt.Errorf("%w: задание %s уже выполнено", common.ErrAlreadyExists, code)
		}
		if !task.Reward.IsPositive() {
			return nil
		}
		return s.ledger.Bank().GrantBonus(ctx, tx, user, task.Reward, ledger.GrantTaskReward)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"user": user, "task": code}).Info("Задание выполнено")
	return receipt, nil
}
