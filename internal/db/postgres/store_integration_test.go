//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/config"
	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/features/accrual"
	"efhc.app/ledger/internal/features/admin"
	"efhc.app/ledger/internal/features/ledger"
	"efhc.app/ledger/internal/features/panels"
	"efhc.app/ledger/internal/money"
	"efhc.app/ledger/internal/storage"
)

const (
	bankID  int64 = 362746228
	adminID int64 = 1
)

type PostgresSuite struct {
	suite.Suite
	ctx       context.Context
	container testcontainers.Container
	pool      *pgxpool.Pool
	store     *Store
	ledger    *ledger.Service
}

func TestPostgresSuite(t *testing.T) {
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := tcpostgres.Run(s.ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("efhc"),
		tcpostgres.WithUsername("efhc"),
		tcpostgres.WithPassword("efhc"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.pool, err = Connect(s.ctx, dsn, 10, 1)
	s.Require().NoError(err)
	s.Require().NoError(RunMigrations(s.ctx, s.pool))
	// Повторный запуск миграций ничего не ломает
	s.Require().NoError(RunMigrations(s.ctx, s.pool))
}

func (s *PostgresSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresSuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, `
		TRUNCATE accounts, mint_burn_log, transfer_log, panels, accrual_log, orders,
			processed_events, fulfillment_requests, draw_tickets, task_completions,
			admin_sessions, admin_login_attempts, withdrawals, referrals RESTART IDENTITY CASCADE
	`)
	s.Require().NoError(err)
	s.store = NewStore(s.pool)
	s.ledger = ledger.NewService(s.store, ledger.NewBank(bankID), []int64{adminID})
	s.Require().NoError(s.ledger.Bootstrap(s.ctx, money.FromInt(10_000)))
}

func (s *PostgresSuite) TestCreditAndRejectedDebit() {
	_, err := s.ledger.Credit(s.ctx, adminID, 42, ledger.Adjustment{Main: money.MustParse("12.345")})
	s.Require().NoError(err)

	_, err = s.ledger.Debit(s.ctx, adminID, 42, ledger.Adjustment{Main: money.FromInt(13)})
	s.Require().ErrorIs(err, common.ErrInsufficientBalance)

	snap, err := s.ledger.Snapshot(s.ctx, 42)
	s.Require().NoError(err)
	s.Equal("12.345", snap.Main.String())

	report, err := s.ledger.Audit(s.ctx)
	s.Require().NoError(err)
	s.True(report.Balanced)
}

func (s *PostgresSuite) TestConcurrentTransfersConserveSupply() {
	for _, id := range []int64{10, 11} {
		_, err := s.ledger.Credit(s.ctx, adminID, id, ledger.Adjustment{Main: money.FromInt(100)})
		s.Require().NoError(err)
	}

	var wg sync.WaitGroup
	for i := range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			from, to := int64(10), int64(11)
			if i%2 == 1 {
				from, to = to, from
			}
			_ = s.store.InTx(s.ctx, func(ctx context.Context, tx storage.Tx) error {
				return ledger.Transfer(ctx, tx, from, to, money.FromInt(1))
			})
		}()
	}
	wg.Wait()

	a, err := s.ledger.Snapshot(s.ctx, 10)
	s.Require().NoError(err)
	b, err := s.ledger.Snapshot(s.ctx, 11)
	s.Require().NoError(err)
	s.Equal(money.FromInt(200), a.Main+b.Main)

	report, err := s.ledger.Audit(s.ctx)
	s.Require().NoError(err)
	s.True(report.Balanced)
}

func (s *PostgresSuite) TestPanelPurchaseAndAccrualOnce() {
	cfg := &config.Config{PanelPrice: "100", PanelMaxActive: 1000, AppTimezone: "UTC"}
	_, err := s.ledger.Credit(s.ctx, adminID, 42, ledger.Adjustment{Main: money.FromInt(1000)})
	s.Require().NoError(err)

	_, err = panels.NewService(s.store, s.ledger, cfg).PurchaseCapacityUnit(s.ctx, 42, 10, ledger.MainFirst)
	s.Require().NoError(err)

	svc := accrual.NewService(s.store, cfg)
	at := time.Now().UTC().Add(time.Hour)
	report, err := svc.RunDaily(s.ctx, at)
	s.Require().NoError(err)
	s.Equal(1, report.Credited)

	report, err = svc.RunDaily(s.ctx, at)
	s.Require().NoError(err)
	s.Equal(0, report.Credited)
	s.Equal(1, report.Duplicates)

	snap, err := s.ledger.Snapshot(s.ctx, 42)
	s.Require().NoError(err)
	s.Equal("5.980", snap.Utility.String())
	s.Equal(int64(10), snap.ActiveUnits)
}

func (s *PostgresSuite) TestEventMarkedOnce() {
	ev := &domain.ProcessedEvent{ID: "tx-1", Source: "chain"}
	var first, second bool
	s.Require().NoError(s.store.InTx(s.ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		first, err = tx.MarkEventProcessed(ctx, ev)
		return err
	}))
	s.Require().NoError(s.store.InTx(s.ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		second, err = tx.MarkEventProcessed(ctx, ev)
		return err
	}))
	s.True(first)
	s.False(second)
}

func (s *PostgresSuite) TestLockOrderByRefPrefersRef() {
	a := &domain.Order{AccountID: 1, Kind: domain.OrderVIP, Ref: "EFHC-A", IdempotencyKey: "ka", Status: domain.OrderPending}
	b := &domain.Order{AccountID: 2, Kind: domain.OrderVIP, Ref: "EFHC-B", IdempotencyKey: "EFHC-A", Status: domain.OrderPending}

	s.Require().NoError(s.store.InTx(s.ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.CreateOrder(ctx, b); err != nil {
			return err
		}
		_, err := tx.CreateOrder(ctx, a)
		return err
	}))

	s.Require().NoError(s.store.InTx(s.ctx, func(ctx context.Context, tx storage.Tx) error {
		got, err := tx.LockOrderByRef(ctx, "EFHC-A")
		s.Require().NoError(err)
		s.Equal(a.ID, got.ID)

		got, err = tx.LockOrderByRef(ctx, "ka")
		s.Require().NoError(err)
		s.Equal(a.ID, got.ID)

		_, err = tx.LockOrderByRef(ctx, "missing")
		s.Require().ErrorIs(err, common.ErrNotFound)
		return nil
	}))
}

func (s *PostgresSuite) TestAdminRepository() {
	repo := admin.NewRepository(s.pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	session := &admin.Session{UserID: adminID, Token: "tok", AuthenticatedAt: now, ExpiresAt: now.Add(time.Hour)}
	s.Require().NoError(repo.CreateSession(s.ctx, session))
	s.NotZero(session.ID)

	got, err := repo.GetActiveSession(s.ctx, "tok", now)
	s.Require().NoError(err)
	s.Equal(adminID, got.UserID)

	s.Require().NoError(repo.DeactivateSession(s.ctx, "tok"))
	_, err = repo.GetActiveSession(s.ctx, "tok", now)
	s.Require().ErrorIs(err, common.ErrNotFound)

	for range 2 {
		s.Require().NoError(repo.LogAttempt(s.ctx, admin.LoginAttempt{UserID: adminID, AttemptTime: now}))
	}
	count, err := repo.CountFailedAttempts(s.ctx, adminID, now.Add(-time.Minute))
	s.Require().NoError(err)
	s.Equal(2, count)
}
