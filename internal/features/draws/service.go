// Package draws проводит розыгрыши: продажа билетов за EFHC и выбор
// победителя, когда продано целевое число билетов.
package draws

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

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

// Service управляет розыгрышами.
type Service struct {
	store       storage.Store
	ledger      *ledger.Service
	notifier    notify.Notifier
	maxPerBuy   int64
	ticketPrice money.Amount
	pick        func(n int) int // равномерный выбор из [0, n)
	now         func() time.Time
}

// NewService создаёт сервис розыгрышей.
func NewService(store storage.Store, ledgerService *ledger.Service, notifier notify.Notifier, cfg *config.Config) *Service {
	return &Service{
		store:       store,
		ledger:      ledgerService,
		notifier:    notifier,
		maxPerBuy:   cfg.DrawMaxTicketsPerBuy,
		ticketPrice: cfg.TicketPriceAmount(),
		pick:        rand.IntN,
		now:         time.Now,
	}
}

// WithPicker подменяет источник случайности (детерминированный выбор в тестах).
func (s *Service) WithPicker(pick func(n int) int) *Service {
	s.pick = pick
	return s
}

// TicketPurchase — купленные билеты и балансы после покупки.
type TicketPurchase struct {
	Tickets []domain.Ticket `json:"tickets"`
	Receipt *ledger.Receipt `json:"receipt"`
}

// BuyTickets продаёт count билетов розыгрыша code за основной баланс.
// Продано может быть не больше цели розыгрыша.
func (s *Service) BuyTickets(ctx context.Context, user int64, code string, count int64) (*TicketPurchase, error) {
	if count < 1 {
		return nil, common.ErrInvalidAmount
	}
	if count > s.maxPerBuy {
		return nil, fmt.Errorf("%w: максимум %s", common.ErrTicketLimit, common.FormatTickets(s.maxPerBuy))
	}

	var tickets []domain.Ticket
	receipt, err := s.ledger.Run(ctx, "draw_tickets", user, func(ctx context.Context, tx storage.Tx) error {
		d, err := tx.LockDraw(ctx, code)
		if err != nil {
			return err
		}
		if d.Status != domain.DrawActive {
			return fmt.Errorf("%w: розыгрыш %s завершён", common.ErrInvalidStateTransition, code)
		}
		sold, err := tx.CountTickets(ctx, code)
		if err != nil {
			return err
		}
		if left := d.Target - sold; count > left {
			return fmt.Errorf("%w: осталось %s", common.ErrDrawFull, common.FormatTickets(max(left, 0)))
		}

		cost, err := d.TicketPrice.Mul(count)
		if err != nil {
			return fmt.Errorf("%w: %v", common.ErrInvalidAmount, err)
		}
		if err := s.ledger.Bank().DebitUserToBank(ctx, tx, user, cost, domain.ReasonTickets); err != nil {
			return err
		}
		tickets, err = tx.AppendTickets(ctx, code, user, count, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"user": user, "draw": code}).Infof("Куплено %s", common.FormatTickets(count))
	return &TicketPurchase{Tickets: tickets, Receipt: receipt}, nil
}

// SettleReport — итог прохода Settle.
type SettleReport struct {
	Settled []domain.Draw `json:"settled"`
	Failed  int           `json:"failed"`
}

// Settle разыгрывает все активные розыгрыши, набравшие цель. Каждый розыгрыш
// завершается в своей транзакции под блокировкой; повторный проход ничего не меняет.
func (s *Service) Settle(ctx context.Context) (*SettleReport, error) {
	var ready []string
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		ready, err = tx.ListReadyDraws(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска готовых розыгрышей: %w", err)
	}

	report := &SettleReport{}
	for _, code := range ready {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		d, err := s.settleOne(ctx, code)
		if err != nil {
			report.Failed++
			log.WithError(err).WithField("draw", code).Error("Ошибка розыгрыша")
			continue
		}
		if d != nil {
			report.Settled = append(report.Settled, *d)
		}
	}
	return report, nil
}

func (s *Service) settleOne(ctx context.Context, code string) (*domain.Draw, error) {
	var settled *domain.Draw
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		d, err := tx.LockDraw(ctx, code)
		if err != nil {
			return err
		}
		if d.Status != domain.DrawActive {
			return nil
		}
		tickets, err := tx.ListTickets(ctx, code)
		if err != nil {
			return err
		}
		if int64(len(tickets)) < d.Target || len(tickets) == 0 {
			return nil
		}

		winner := tickets[s.pick(len(tickets))]
		now := s.now()
		d.Status = domain.DrawSettled
		d.WinnerTicketID = &winner.ID
		d.WinnerAccountID = &winner.AccountID
		d.SettledAt = &now
		if err := tx.SettleDraw(ctx, d); err != nil {
			return err
		}
		if err := s.award(ctx, tx, d, winner.AccountID, now); err != nil {
			return err
		}
		settled = d
		return nil
	})
	if err != nil || settled == nil {
		return nil, err
	}

	metrics.RecordDrawSettled(string(settled.Prize))
	log.WithFields(log.Fields{
		"draw":   code,
		"winner": *settled.WinnerAccountID,
		"ticket": *settled.WinnerTicketID,
	}).Info("Розыгрыш завершён")
	s.notifier.NotifyAdmins(ctx, fmt.Sprintf("Розыгрыш «%s» завершён: победитель %d, билет #%d",
		settled.Title, *settled.WinnerAccountID, *settled.WinnerTicketID))
	return settled, nil
}

// award выдаёт приз победителю в той же транзакции, что и завершение розыгрыша.
func (s *Service) award(ctx context.Context, tx storage.Tx, d *domain.Draw, winner int64, now time.Time) error {
	switch d.Prize {
	case domain.PrizePanel:
		return tx.InsertPanel(ctx, domain.NewPanel(winner, domain.DefaultPanelLevel, 1, now))
	case domain.PrizeVIPCollectible:
		return tx.InsertFulfillment(ctx, &domain.FulfillmentRequest{
			AccountID: winner,
			Kind:      domain.FulfillVIPCollectible,
			Source:    "draw",
			Status:    "pending",
			Note:      "розыгрыш " + d.Code,
		})
	}
	return fmt.Errorf("неизвестный приз %q", d.Prize)
}

// CreateDraw создаёт активный розыгрыш. Цена билета берётся из DRAW_TICKET_PRICE.
func (s *Service) CreateDraw(ctx context.Context, admin int64, code, title string, target int64, prize domain.PrizeKind) (*domain.Draw, error) {
	if !s.ledger.IsAdmin(admin) {
		return nil, common.ErrNotAdmin
	}
	code = strings.TrimSpace(code)
	if code == "" || target <= 0 || !prize.Valid() {
		return nil, fmt.Errorf("%w: код, цель и приз обязательны", common.ErrInvalidAmount)
	}

	d := &domain.Draw{
		Code:        code,
		Title:       title,
		Target:      target,
		TicketPrice: s.ticketPrice,
		Prize:       prize,
		Status:      domain.DrawActive,
	}
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.InsertDraw(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"draw": code, "target": target, "prize": prize, "admin": admin}).Info("Создан розыгрыш")
	return d, nil
}

// Draw возвращает розыгрыш и число проданных билетов.
func (s *Service) Draw(ctx context.Context, code string) (*domain.Draw, int64, error) {
	var (
		d    *domain.Draw
		sold int64
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		if d, err = tx.GetDraw(ctx, code); err != nil {
			return err
		}
		sold, err = tx.CountTickets(ctx, code)
		return err
	})
	return d, sold, err
}
