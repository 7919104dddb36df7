package accrual

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/config"
	"efhc.app/ledger/internal/db/memory"
	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/money"
	"efhc.app/ledger/internal/storage"
)

func TestYield(t *testing.T) {
	rates := map[int]money.Amount{1: money.MustParse("0.598"), 2: money.MustParse("0.7")}

	yield := func(units map[int]int64, vip bool) string {
		got, err := Yield(units, rates, vip)
		require.NoError(t, err)
		return got.String()
	}
	require.Equal(t, "5.980", yield(map[int]int64{1: 10}, false))
	// 5.980 × 1.07 = 6.3986 → 6.398
	require.Equal(t, "6.398", yield(map[int]int64{1: 10}, true))
	require.Equal(t, "1.298", yield(map[int]int64{1: 1, 2: 1}, false))
	require.Equal(t, "0.000", yield(map[int]int64{3: 5}, false))

	_, err := Yield(map[int]int64{1: money.MaxUnits}, rates, true)
	require.ErrorIs(t, err, money.ErrOutOfRange)
}

type AccrualSuite struct {
	suite.Suite
	ctx   context.Context
	at    time.Time
	store *memory.Store
	svc   *Service
}

func TestAccrualSuite(t *testing.T) {
	suite.Run(t, new(AccrualSuite))
}

func (s *AccrualSuite) SetupTest() {
	s.ctx = context.Background()
	s.at = time.Date(2026, 4, 10, 0, 30, 0, 0, time.UTC)
	s.store = memory.New()
	s.svc = NewService(s.store, &config.Config{AppTimezone: "UTC"})
}

func (s *AccrualSuite) addPanels(account int64, count int64, activated time.Time) {
	s.Require().NoError(s.store.InTx(s.ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.InsertPanel(ctx, domain.NewPanel(account, domain.DefaultPanelLevel, count, activated))
	}))
}

func (s *AccrualSuite) setVIP(account int64) {
	s.Require().NoError(s.store.InTx(s.ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.LockAccounts(ctx, account); err != nil {
			return err
		}
		return tx.SetVIP(ctx, account, true)
	}))
}

func (s *AccrualSuite) utility(account int64) string {
	var out string
	s.Require().NoError(s.store.InTx(s.ctx, func(ctx context.Context, tx storage.Tx) error {
		acc, err := tx.GetAccount(ctx, account)
		if err != nil {
			return err
		}
		out = acc.Utility.String()
		return nil
	}))
	return out
}

func (s *AccrualSuite) TestSkipsWithoutRates() {
	s.addPanels(10, 1, s.at.Add(-time.Hour))

	report, err := s.svc.RunDaily(s.ctx, s.at)
	s.Require().NoError(err)
	s.True(report.Skipped)
	s.Equal("0.000", s.utility(10))
}

func (s *AccrualSuite) TestExactlyOncePerDate() {
	s.store.SeedDefaults()
	s.addPanels(10, 10, s.at.Add(-48*time.Hour))
	s.addPanels(11, 10, s.at.Add(-48*time.Hour))
	s.setVIP(11)
	// Панель с истёкшим сроком не участвует
	s.addPanels(12, 5, s.at.Add(-domain.PanelLifetime-time.Hour))

	report, err := s.svc.RunDaily(s.ctx, s.at)
	s.Require().NoError(err)
	s.Equal(2, report.Candidates)
	s.Equal(2, report.Credited)
	s.Equal("12.378", report.Total.String())
	s.Equal("5.980", s.utility(10))
	s.Equal("6.398", s.utility(11))
	s.Equal("0.000", s.utility(12))

	// Повтор за ту же дату, в том числе в другое время суток
	report, err = s.svc.RunDaily(s.ctx, s.at.Add(20*time.Hour))
	s.Require().NoError(err)
	s.Equal(0, report.Credited)
	s.Equal(2, report.Duplicates)
	s.Equal("5.980", s.utility(10))

	// Следующий день начисляется заново
	report, err = s.svc.RunDaily(s.ctx, s.at.Add(24*time.Hour))
	s.Require().NoError(err)
	s.Equal(2, report.Credited)
	s.Equal("11.960", s.utility(10))
}

func (s *AccrualSuite) TestDateFollowsTimezone() {
	svc := NewService(s.store, &config.Config{AppTimezone: "Europe/Moscow"})
	// 22:00 UTC 9 апреля = 01:00 MSK 10 апреля
	report, err := svc.RunDaily(s.ctx, time.Date(2026, 4, 9, 22, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	s.Equal("2026-04-10", report.Date.Format(time.DateOnly))
}

type stubRunner struct {
	names []string
	busy  bool
}

func (r *stubRunner) RunExclusive(ctx context.Context, name string, fn func(context.Context) error) error {
	r.names = append(r.names, name)
	if r.busy {
		return common.ErrJobBusy
	}
	return fn(ctx)
}

func (s *AccrualSuite) TestRunManualOnlyToday() {
	s.store.SeedDefaults()
	s.addPanels(10, 10, s.at.Add(-48*time.Hour))
	svc := NewService(s.store, &config.Config{AppTimezone: "Europe/Moscow"})
	// 23:30 UTC 9 апреля = 02:30 MSK 10 апреля
	svc.now = func() time.Time { return time.Date(2026, 4, 9, 23, 30, 0, 0, time.UTC) }
	runner := &stubRunner{}

	for name, at := range map[string]time.Time{
		"yesterday":     time.Date(2026, 4, 9, 12, 0, 0, 0, time.UTC),
		"tomorrow":      time.Date(2026, 4, 10, 22, 0, 0, 0, time.UTC),
		"far past":      time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		"far future":    time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		// Та же дата по UTC, но 23:00 MSK предыдущих суток
		"same utc date": time.Date(2026, 4, 9, 20, 0, 0, 0, time.UTC),
	} {
		_, err := svc.RunManual(s.ctx, runner, &at)
		s.Require().ErrorIs(err, common.ErrInvalidDate, name)
	}
	s.Empty(runner.names)
	s.Equal("0.000", s.utility(10))

	// Момент в тех же сутках MSK допустим
	at := time.Date(2026, 4, 10, 10, 0, 0, 0, time.UTC)
	report, err := svc.RunManual(s.ctx, runner, &at)
	s.Require().NoError(err)
	s.Equal("2026-04-10", report.Date.Format(time.DateOnly))
	s.Equal(1, report.Credited)

	report, err = svc.RunManual(s.ctx, runner, nil)
	s.Require().NoError(err)
	s.Equal(1, report.Duplicates)
	s.Equal([]string{JobName, JobName}, runner.names)
	s.Equal("5.980", s.utility(10))
}

func (s *AccrualSuite) TestRunManualBusy() {
	s.store.SeedDefaults()
	s.addPanels(10, 10, s.at.Add(-48*time.Hour))
	s.svc.now = func() time.Time { return s.at }

	report, err := s.svc.RunManual(s.ctx, &stubRunner{busy: true}, nil)
	s.Require().ErrorIs(err, common.ErrJobBusy)
	s.Nil(report)
	s.Equal("0.000", s.utility(10))
}
