package settlement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/metrics"
	"efhc.app/ledger/internal/money"
	"efhc.app/ledger/internal/storage"
)

// ErrMissingTxRef — вебхук пришёл без идентификатора платежа.
var ErrMissingTxRef = errors.New("не указан идентификатор платежа")

// CreateExternalOrder создаёт заказ в статусе pending по предложению из каталога.
// Повтор с тем же ключом идемпотентности возвращает уже созданный заказ и created=false.
// Пустой ключ заменяется случайным.
func (s *Service) CreateExternalOrder(ctx context.Context, user int64, kind domain.OrderKind, asset string,
	amount money.Amount, idempotencyKey string) (order *domain.Order, created bool, err error) {
	if !kind.Valid() {
		return nil, false, fmt.Errorf("%w: вид заказа %q", common.ErrUnknownOffer, kind)
	}
	if !amount.IsPositive() {
		return nil, false, common.ErrInvalidAmount
	}
	if user == s.ledger.Bank().ID() {
		return nil, false, common.ErrBankAccount
	}
	offer, ok := s.catalog.Match(kind, asset, amount)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s %s %s", common.ErrUnknownOffer, kind, amount, strings.ToUpper(asset))
	}

	ref := uuid.NewString()
	if idempotencyKey == "" {
		idempotencyKey = ref
	}
	order = &domain.Order{
		Ref:            ref,
		AccountID:      user,
		Kind:           kind,
		OfferCode:      offer.Code,
		ExternalAsset:  offer.Asset,
		ExternalAmount: offer.Price,
		CreditAmount:   offer.Credit,
		IdempotencyKey: idempotencyKey,
		Status:         domain.OrderPending,
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		created, err = tx.CreateOrder(ctx, order)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("ошибка создания заказа: %w", err)
	}

	if created {
		metrics.RecordOrderTransition(string(order.Kind), string(order.Status))
		log.WithFields(log.Fields{
			"order": order.ID,
			"user":  user,
			"offer": offer.Code,
			"asset": offer.Asset,
		}).Info("Создан заказ")
	} else if order.AccountID != user {
		// Чужой ключ идемпотентности: не раскрываем чужой заказ
		return nil, false, common.ErrAlreadyExists
	}
	return order, created, nil
}

// PaymentWebhook отмечает заказ оплаченным по уведомлению платёжного шлюза.
// Повтор того же платежа возвращает ErrDuplicateEvent.
func (s *Service) PaymentWebhook(ctx context.Context, orderRef, externalTxRef string) (*domain.Order, error) {
	if externalTxRef == "" {
		return nil, ErrMissingTxRef
	}

	var order *domain.Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		eventID := "webhook:" + externalTxRef
		fresh, err := tx.MarkEventProcessed(ctx, &domain.ProcessedEvent{ID: eventID, Source: SourceWebhook})
		if err != nil {
			return err
		}
		if !fresh {
			return common.ErrDuplicateEvent
		}

		order, err = lockOrderRef(ctx, tx, orderRef)
		if err != nil {
			return err
		}
		order.ExternalTxRef = externalTxRef
		if err := transition(ctx, tx, order, domain.OrderPaid); err != nil {
			return err
		}
		return tx.SetEventOutcome(ctx, eventID, domain.OutcomeApplied, fmt.Sprintf("order %d", order.ID))
	})
	if err != nil {
		if errors.Is(err, common.ErrDuplicateEvent) {
			metrics.RecordExternalEvent(SourceWebhook, "duplicate")
		}
		return nil, err
	}

	metrics.RecordExternalEvent(SourceWebhook, domain.OutcomeApplied)
	metrics.RecordOrderTransition(string(order.Kind), string(order.Status))
	log.WithFields(log.Fields{"order": order.ID, "tx": externalTxRef}).Info("Заказ оплачен")
	return order, nil
}

// Approve выполняет оплаченный заказ.
//
//	main_currency:   paid → completed, EFHC с Банка покупателю
//	vip:             paid → completed, VIP-флаг
//	vip_collectible: paid → pending_delivery, заявка на ручную выдачу
//
// Повторный Approve выполненного заказа ничего не меняет. Если выполнение
// сорвалось, заказ переводится в failed отдельной транзакцией.
func (s *Service) Approve(ctx context.Context, admin, orderID int64) (*domain.Order, error) {
	if !s.ledger.IsAdmin(admin) {
		return nil, common.ErrNotAdmin
	}

	var (
		order   *domain.Order
		noop    bool
		applied bool
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		order = o
		if o.Status == domain.OrderCompleted {
			noop = true
			return nil
		}
		if o.Status != domain.OrderPaid {
			return fmt.Errorf("%w: %s → approve", common.ErrInvalidStateTransition, o.Status)
		}

		applied = true
		switch o.Kind {
		case domain.OrderMainCurrency:
			if err := s.ledger.Bank().CreditUserFromBank(ctx, tx, o.AccountID, o.CreditAmount, domain.ReasonOrderCredit); err != nil {
				return err
			}
			return transition(ctx, tx, o, domain.OrderCompleted)
		case domain.OrderVIP:
			if err := grantVIP(ctx, tx, o.AccountID); err != nil {
				return err
			}
			return transition(ctx, tx, o, domain.OrderCompleted)
		case domain.OrderVIPCollectible:
			id := o.ID
			if err := tx.InsertFulfillment(ctx, &domain.FulfillmentRequest{
				AccountID: o.AccountID,
				Kind:      domain.FulfillVIPCollectible,
				OrderID:   &id,
				Source:    SourceOrder,
				Status:    "pending",
			}); err != nil {
				return err
			}
			return transition(ctx, tx, o, domain.OrderPendingDelivery)
		}
		return fmt.Errorf("неизвестный вид заказа %q", o.Kind)
	})
	if err != nil {
		if applied {
			s.markFailed(ctx, orderID, err)
		}
		return nil, err
	}
	if noop {
		return order, nil
	}

	metrics.RecordOrderTransition(string(order.Kind), string(order.Status))
	log.WithFields(log.Fields{"order": order.ID, "admin": admin, "status": order.Status}).Info("Заказ подтверждён")
	if order.Status == domain.OrderPendingDelivery {
		s.notifier.NotifyAdmins(ctx, fmt.Sprintf("Заказ #%d: выдать VIP NFT пользователю %d", order.ID, order.AccountID))
	}
	return order, nil
}

// Deliver завершает ручную выдачу VIP NFT: pending_delivery → completed.
func (s *Service) Deliver(ctx context.Context, admin, orderID int64) (*domain.Order, error) {
	if !s.ledger.IsAdmin(admin) {
		return nil, common.ErrNotAdmin
	}
	order, err := s.update(ctx, orderID, func(ctx context.Context, tx storage.Tx, o *domain.Order) error {
		if o.Status != domain.OrderPendingDelivery {
			return fmt.Errorf("%w: %s → deliver", common.ErrInvalidStateTransition, o.Status)
		}
		if err := grantVIP(ctx, tx, o.AccountID); err != nil {
			return err
		}
		return transition(ctx, tx, o, domain.OrderCompleted)
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"order": order.ID, "admin": admin}).Info("VIP NFT выдан")
	return order, nil
}

// Reject отклоняет незавершённый заказ с причиной.
func (s *Service) Reject(ctx context.Context, admin, orderID int64, reason string) (*domain.Order, error) {
	if !s.ledger.IsAdmin(admin) {
		return nil, common.ErrNotAdmin
	}
	order, err := s.update(ctx, orderID, func(ctx context.Context, tx storage.Tx, o *domain.Order) error {
		o.FailureReason = reason
		return transition(ctx, tx, o, domain.OrderRejected)
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"order": order.ID, "admin": admin, "reason": reason}).Info("Заказ отклонён")
	return order, nil
}

// Cancel отменяет собственный заказ пользователя, пока он не оплачен.
func (s *Service) Cancel(ctx context.Context, user, orderID int64) (*domain.Order, error) {
	return s.update(ctx, orderID, func(ctx context.Context, tx storage.Tx, o *domain.Order) error {
		if o.AccountID != user {
			return common.ErrNotFound
		}
		if o.Status != domain.OrderPending {
			return fmt.Errorf("%w: %s → canceled", common.ErrInvalidStateTransition, o.Status)
		}
		return transition(ctx, tx, o, domain.OrderCanceled)
	})
}

// OrderStatus возвращает заказ.
func (s *Service) OrderStatus(ctx context.Context, orderID int64) (*domain.Order, error) {
	var order *domain.Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		order, err = tx.GetOrder(ctx, orderID)
		return err
	})
	return order, err
}

// Fulfillments возвращает очередь ручной выдачи ("" — все статусы).
func (s *Service) Fulfillments(ctx context.Context, status string) ([]domain.FulfillmentRequest, error) {
	var out []domain.FulfillmentRequest
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.ListFulfillments(ctx, status)
		return err
	})
	return out, err
}

// update блокирует заказ, применяет fn и пишет метрику перехода.
func (s *Service) update(ctx context.Context, orderID int64,
	fn func(ctx context.Context, tx storage.Tx, o *domain.Order) error) (*domain.Order, error) {
	var order *domain.Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		order = o
		return fn(ctx, tx, o)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordOrderTransition(string(order.Kind), string(order.Status))
	return order, nil
}

// markFailed записывает причину сбоя выполнения заказа.
func (s *Service) markFailed(ctx context.Context, orderID int64, cause error) {
	order, err := s.update(ctx, orderID, func(ctx context.Context, tx storage.Tx, o *domain.Order) error {
		o.FailureReason = cause.Error()
		return transition(ctx, tx, o, domain.OrderFailed)
	})
	if err != nil {
		log.WithError(err).WithField("order", orderID).Error("Не удалось отметить сбой заказа")
		return
	}
	log.WithError(cause).WithField("order", order.ID).Warn("Выполнение заказа сорвалось")
}

// transition проверяет переход по конечному автомату и сохраняет заказ.
func transition(ctx context.Context, tx storage.Tx, o *domain.Order, to domain.OrderStatus) error {
	if !o.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s → %s", common.ErrInvalidStateTransition, o.Status, to)
	}
	o.Status = to
	return tx.UpdateOrder(ctx, o)
}

// lockOrderRef находит заказ по числовому id, публичной ссылке или ключу идемпотентности.
func lockOrderRef(ctx context.Context, tx storage.Tx, ref string) (*domain.Order, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, common.ErrNotFound
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		o, err := tx.LockOrder(ctx, id)
		if !errors.Is(err, common.ErrNotFound) {
			return o, err
		}
	}
	return tx.LockOrderByRef(ctx, ref)
}

func grantVIP(ctx context.Context, tx storage.Tx, account int64) error {
	if _, err := tx.LockAccounts(ctx, account); err != nil {
		return err
	}
	return tx.SetVIP(ctx, account, true)
}
