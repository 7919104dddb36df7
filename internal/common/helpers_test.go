package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPluralizeTickets(t *testing.T) {
	cases := map[int64]string{
		0:   "билетов",
		1:   "билет",
		3:   "билета",
		5:   "билетов",
		11:  "билетов",
		12:  "билетов",
		21:  "билет",
		22:  "билета",
		111: "билетов",
	}
	for n, want := range cases {
		require.Equal(t, want, PluralizeTickets(n), n)
	}
}

func TestFormatNumber(t *testing.T) {
	require.Equal(t, "999", FormatNumber(999))
	require.Equal(t, "2 350", FormatNumber(2350))
	require.Equal(t, "1 000 005", FormatNumber(1000005))
	require.Equal(t, "-1 000", FormatNumber(-1000))
	require.Equal(t, "1 000 панелей", FormatPanels(1000))
	require.Equal(t, "2 билета", FormatTickets(2))
	require.Equal(t, "180 дней", FormatDays(180))
	require.Equal(t, "21 день", FormatDays(21))
}

func TestDateIn(t *testing.T) {
	msk := time.FixedZone("MSK", 3*60*60)
	ts := time.Date(2026, 3, 1, 22, 30, 0, 0, time.UTC)

	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), DateIn(ts, time.UTC))
	require.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, msk), DateIn(ts, msk))
}
