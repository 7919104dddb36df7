package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/metrics"
	"efhc.app/ledger/internal/money"
	"efhc.app/ledger/internal/storage"
)

// ChainEvent — входящий перевод, найденный в блокчейне.
type ChainEvent struct {
	ID     string       `json:"event_id"` // хеш транзакции
	From   string       `json:"from"`
	To     string       `json:"to"`
	Asset  string       `json:"asset"`
	Amount money.Amount `json:"amount"`
	Memo   string       `json:"memo"`
}

// EventResult — чем закончилась обработка события.
type EventResult struct {
	Outcome string `json:"outcome"`
	Note    string `json:"note,omitempty"`
}

// BlockchainEvent обрабатывает событие ровно один раз: отметка о событии и все
// его последствия записываются в одной транзакции. Повтор возвращает
// ErrDuplicateEvent, вызывающий считает его успехом.
func (s *Service) BlockchainEvent(ctx context.Context, ev ChainEvent) (*EventResult, error) {
	if ev.ID == "" {
		return nil, ErrMissingTxRef
	}
	ev.Asset = strings.ToUpper(strings.TrimSpace(ev.Asset))

	var (
		res     EventResult
		paid    *domain.Order
		vipUser int64
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		res, paid, vipUser = EventResult{}, nil, 0

		fresh, err := tx.MarkEventProcessed(ctx, &domain.ProcessedEvent{ID: ev.ID, Source: SourceChain})
		if err != nil {
			return err
		}
		if !fresh {
			return common.ErrDuplicateEvent
		}

		memo, perr := ParseMemo(ev.Memo)
		switch {
		case perr != nil:
			res = EventResult{Outcome: domain.OutcomeIgnored, Note: perr.Error()}
		case memo.OrderRef != "":
			res, paid, err = s.payOrder(ctx, tx, ev, memo)
		case memo.VIP:
			res, err = s.requestCollectible(ctx, tx, ev, memo)
			if res.Outcome == domain.OutcomeApplied {
				vipUser = memo.AccountID
			}
		case ev.Asset == AssetEFHC:
			res, err = s.deposit(ctx, tx, ev, memo)
		default:
			res = EventResult{Outcome: domain.OutcomeUnmatched, Note: fmt.Sprintf("актив %s без заказа", ev.Asset)}
		}
		if err != nil {
			return err
		}
		return tx.SetEventOutcome(ctx, ev.ID, res.Outcome, res.Note)
	})
	if err != nil {
		if errors.Is(err, common.ErrDuplicateEvent) {
			metrics.RecordExternalEvent(SourceChain, "duplicate")
		}
		return nil, err
	}

	metrics.RecordExternalEvent(SourceChain, res.Outcome)
	fields := log.Fields{"event": ev.ID, "outcome": res.Outcome, "asset": ev.Asset, "amount": ev.Amount.String()}
	if res.Outcome == domain.OutcomeApplied {
		log.WithFields(fields).Info("Событие блокчейна применено")
	} else {
		log.WithFields(fields).WithField("note", res.Note).Warn("Событие блокчейна не применено")
	}

	if paid != nil {
		metrics.RecordOrderTransition(string(paid.Kind), string(paid.Status))
	}
	if vipUser != 0 {
		s.notifier.NotifyAdmins(ctx, fmt.Sprintf("Оплата VIP NFT в блокчейне от пользователя %d (tx %s)", vipUser, ev.ID))
	}
	return &res, nil
}

// payOrder переводит заказ из memo в paid, если сумма и актив совпали.
func (s *Service) payOrder(ctx context.Context, tx storage.Tx, ev ChainEvent, memo *Memo) (EventResult, *domain.Order, error) {
	o, err := lockOrderRef(ctx, tx, memo.OrderRef)
	if errors.Is(err, common.ErrNotFound) {
		return EventResult{Outcome: domain.OutcomeUnmatched, Note: "заказ " + memo.OrderRef + " не найден"}, nil, nil
	}
	if err != nil {
		return EventResult{}, nil, err
	}

	switch {
	case o.AccountID != memo.AccountID:
		return EventResult{Outcome: domain.OutcomeMismatch, Note: fmt.Sprintf("заказ %d принадлежит другому аккаунту", o.ID)}, nil, nil
	case o.ExternalAsset != ev.Asset || ev.Amount < o.ExternalAmount:
		return EventResult{Outcome: domain.OutcomeMismatch,
			Note: fmt.Sprintf("ожидалось %s %s, получено %s %s", o.ExternalAmount, o.ExternalAsset, ev.Amount, ev.Asset)}, nil, nil
	case o.Status != domain.OrderPending:
		return EventResult{Outcome: domain.OutcomeIgnored, Note: fmt.Sprintf("заказ %d уже в статусе %s", o.ID, o.Status)}, nil, nil
	}

	o.ExternalTxRef = ev.ID
	if err := transition(ctx, tx, o, domain.OrderPaid); err != nil {
		return EventResult{}, nil, err
	}
	return EventResult{Outcome: domain.OutcomeApplied, Note: fmt.Sprintf("order %d paid", o.ID)}, o, nil
}

// requestCollectible открывает заявку на ручную выдачу VIP NFT.
func (s *Service) requestCollectible(ctx context.Context, tx storage.Tx, ev ChainEvent, memo *Memo) (EventResult, error) {
	if memo.AccountID == s.ledger.Bank().ID() {
		return EventResult{Outcome: domain.OutcomeUnmatched, Note: "аккаунт Банка в комментарии"}, nil
	}
	err := tx.InsertFulfillment(ctx, &domain.FulfillmentRequest{
		AccountID: memo.AccountID,
		Kind:      domain.FulfillVIPCollectible,
		Source:    SourceChain,
		Status:    "pending",
		Note:      fmt.Sprintf("tx %s: %s %s", ev.ID, ev.Amount, ev.Asset),
	})
	if err != nil {
		return EventResult{}, err
	}
	return EventResult{Outcome: domain.OutcomeApplied, Note: "заявка на VIP NFT"}, nil
}

// deposit зачисляет пришедшие в блокчейне EFHC с Банка на аккаунт из memo.
func (s *Service) deposit(ctx context.Context, tx storage.Tx, ev ChainEvent, memo *Memo) (EventResult, error) {
	if !ev.Amount.IsPositive() {
		return EventResult{Outcome: domain.OutcomeIgnored, Note: "нулевая сумма"}, nil
	}
	if memo.HasAmount() && (memo.Asset != AssetEFHC || memo.Amount != ev.Amount) {
		return EventResult{Outcome: domain.OutcomeMismatch,
			Note: fmt.Sprintf("в комментарии %s %s, получено %s %s", memo.Amount, memo.Asset, ev.Amount, ev.Asset)}, nil
	}
	if memo.AccountID == s.ledger.Bank().ID() {
		return EventResult{Outcome: domain.OutcomeUnmatched, Note: "аккаунт Банка в комментарии"}, nil
	}
	if err := s.ledger.Bank().CreditUserFromBank(ctx, tx, memo.AccountID, ev.Amount, domain.ReasonChainDeposit); err != nil {
		return EventResult{}, err
	}
	return EventResult{Outcome: domain.OutcomeApplied, Note: fmt.Sprintf("зачислено %s EFHC", ev.Amount)}, nil
}
