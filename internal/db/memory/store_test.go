package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/money"
	"efhc.app/ledger/internal/storage"
)

type StoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = New()
}

func (s *StoreSuite) TestCreateOnRead() {
	s.Run("get creates zero account", func() {
		err := s.store.InTx(s.ctx, func(ctx context.Context, tx storage.Tx) error {
			acc, err := tx.GetAccount(ctx, 42)
			s.Require().NoError(err)
			s.Equal(int64(42), acc.ID)
			s.True(acc.Main.IsZero())
			return nil
		})
		s.Require().NoError(err)
	})

	s.Run("peek does not create", func() {
		err := s.store.InTx(s.ctx, func(ctx context.Context, tx storage.Tx) error {
			_, err := tx.PeekAccount(ctx, 7)
			return err
		})
		s.Require().ErrorIs(err, common.ErrNotFound)
	})
}

func (s *StoreSuite) TestRollbackOnError() {
	boom := errors.New("boom")
	err := s.store.InTx(s.ctx, func(ctx context.Context, tx storage.Tx) error {
		s.Require().NoError(tx.Credit(ctx, 1, domain.BucketMain, money.FromInt(10)))
		return boom
	})
	s.Require().ErrorIs(err, boom)

	err = s.store.InTx(s.ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.PeekAccount(ctx, 1)
		return err
	})
	s.Require().ErrorIs(err, common.ErrNotFound)
}

func (s *StoreSuite) TestConditionalDebit() {
	err := s.store.InTx(s.ctx, func(ctx context.Context, tx storage.Tx) error {
		s.Require().NoError(tx.Credit(ctx, 5, domain.BucketBonus, money.MustParse("3.5")))
		s.Require().ErrorIs(tx.Debit(ctx, 5, domain.BucketBonus, money.MustParse("3.501")), common.ErrInsufficientBalance)
		s.Require().NoError(tx.Debit(ctx, 5, domain.BucketBonus, money.MustParse("3.5")))
		acc, err := tx.GetAccount(ctx, 5)
		s.Require().NoError(err)
		s.True(acc.Bonus.IsZero())
		return nil
	})
	s.Require().NoError(err)
}

func (s *StoreSuite) TestOrderIdempotencyKey() {
	first := &domain.Order{AccountID: 1, Kind: domain.OrderVIP, IdempotencyKey: "k1", Status: domain.OrderPending}
	second := &domain.Order{AccountID: 1, Kind: domain.OrderVIP, IdempotencyKey: "k1", Status: domain.OrderPending}

	err := s.store.InTx(s.ctx, func(ctx context.Context, tx storage.Tx) error {
		created, err := tx.CreateOrder(ctx, first)
		s.Require().NoError(err)
		s.True(created)
		created, err = tx.CreateOrder(ctx, second)
		s.Require().NoError(err)
		s.False(created)
		return nil
	})
	s.Require().NoError(err)
	s.Equal(first.ID, second.ID)
}

func (s *StoreSuite) TestLockOrderByRefPrefersRef() {
	a := &domain.Order{AccountID: 1, Kind: domain.OrderVIP, Ref: "EFHC-A", IdempotencyKey: "ka", Status: domain.OrderPending}
	b := &domain.Order{AccountID: 2, Kind: domain.OrderVIP, Ref: "EFHC-B", IdempotencyKey: "EFHC-A", Status: domain.OrderPending}

	err := s.store.InTx(s.ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.CreateOrder(ctx, a)
		s.Require().NoError(err)
		_, err = tx.CreateOrder(ctx, b)
		s.Require().NoError(err)

		for i := 0; i < 20; i++ {
			got, err := tx.LockOrderByRef(ctx, "EFHC-A")
			s.Require().NoError(err)
			s.Equal(a.ID, got.ID)
		}
		got, err := tx.LockOrderByRef(ctx, "missing")
		s.Require().ErrorIs(err, common.ErrNotFound)
		s.Nil(got)
		got, err = tx.LockOrderByRef(ctx, "ka")
		s.Require().NoError(err)
		s.Equal(a.ID, got.ID)
		return nil
	})
	s.Require().NoError(err)
}

func (s *StoreSuite) TestInsertIfAbsent() {
	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	err := s.store.InTx(s.ctx, func(ctx context.Context, tx storage.Tx) error {
		ok, err := tx.MarkEventProcessed(ctx, &domain.ProcessedEvent{ID: "ev1", Source: "chain"})
		s.Require().NoError(err)
		s.True(ok)
		ok, err = tx.MarkEventProcessed(ctx, &domain.ProcessedEvent{ID: "ev1", Source: "chain"})
		s.Require().NoError(err)
		s.False(ok)

		ok, err = tx.InsertAccrual(ctx, &domain.AccrualRecord{Date: day, AccountID: 9})
		s.Require().NoError(err)
		s.True(ok)
		ok, err = tx.InsertAccrual(ctx, &domain.AccrualRecord{Date: day.Add(5 * time.Hour), AccountID: 9})
		s.Require().NoError(err)
		s.False(ok)
		return nil
	})
	s.Require().NoError(err)
}

func (s *StoreSuite) TestSeedDefaults() {
	s.store.SeedDefaults()
	s.Equal(money.FromMilli(598), s.store.rates()[domain.DefaultPanelLevel])
}
