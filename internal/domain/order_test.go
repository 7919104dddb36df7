package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOrderTransitions(t *testing.T) {
	allowed := []struct{ from, to OrderStatus }{
		{OrderPending, OrderPaid},
		{OrderPaid, OrderCompleted},
		{OrderPaid, OrderPendingDelivery},
		{OrderPendingDelivery, OrderCompleted},
		{OrderPending, OrderCanceled},
		{OrderPaid, OrderFailed},
		{OrderPendingDelivery, OrderRejected},
	}
	for _, tc := range allowed {
		require.True(t, tc.from.CanTransition(tc.to), "%s → %s", tc.from, tc.to)
	}

	forbidden := []struct{ from, to OrderStatus }{
		{OrderPending, OrderCompleted},
		{OrderPending, OrderPendingDelivery},
		{OrderCompleted, OrderFailed},
		{OrderRejected, OrderCanceled},
		{OrderFailed, OrderPaid},
		{OrderCanceled, OrderPending},
		{OrderPaid, OrderPaid},
	}
	for _, tc := range forbidden {
		require.False(t, tc.from.CanTransition(tc.to), "%s → %s", tc.from, tc.to)
	}

	for _, s := range []OrderStatus{OrderCompleted, OrderRejected, OrderCanceled, OrderFailed} {
		require.True(t, s.Terminal(), s)
	}
	require.False(t, OrderPaid.Terminal())
}

func TestPanelActiveAt(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := NewPanel(42, DefaultPanelLevel, 2, start)

	require.Equal(t, start.Add(180*24*time.Hour), p.ExpiresAt)
	require.True(t, p.ActiveAt(start.Add(179*24*time.Hour)))
	require.False(t, p.ActiveAt(p.ExpiresAt))

	p.Active = false
	require.False(t, p.ActiveAt(start))
}
