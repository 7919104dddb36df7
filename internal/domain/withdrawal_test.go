package domain

import (
	"testing"

	"github.com/stretchr/testify/require"

	"efhc.app/ledger/internal/money"
)

func TestWithdrawalTransitions(t *testing.T) {
	allowed := []struct{ from, to WithdrawalStatus }{
		{WithdrawalPending, WithdrawalApproved},
		{WithdrawalPending, WithdrawalCanceled},
		{WithdrawalPending, WithdrawalRejected},
		{WithdrawalApproved, WithdrawalSent},
		{WithdrawalApproved, WithdrawalFailed},
		{WithdrawalFailed, WithdrawalRejected},
	}
	for _, tc := range allowed {
		require.True(t, tc.from.CanTransition(tc.to), "%s → %s", tc.from, tc.to)
	}

	forbidden := []struct{ from, to WithdrawalStatus }{
		{WithdrawalPending, WithdrawalSent},
		{WithdrawalApproved, WithdrawalCanceled},
		{WithdrawalSent, WithdrawalRejected},
		{WithdrawalRejected, WithdrawalPending},
		{WithdrawalCanceled, WithdrawalApproved},
		{WithdrawalFailed, WithdrawalSent},
	}
	for _, tc := range forbidden {
		require.False(t, tc.from.CanTransition(tc.to), "%s → %s", tc.from, tc.to)
	}

	require.True(t, WithdrawalSent.Terminal())
	require.False(t, WithdrawalFailed.Terminal())
	require.True(t, WithdrawalRejected.Refunds())
	require.True(t, WithdrawalCanceled.Refunds())
	require.False(t, WithdrawalFailed.Refunds())
	require.False(t, WithdrawalStatus("lost").Valid())
}

func TestWithdrawAssetAndAddress(t *testing.T) {
	asset, ok := NormalizeWithdrawAsset(" usdt ")
	require.True(t, ok)
	require.Equal(t, AssetUSDT, asset)
	_, ok = NormalizeWithdrawAsset("BTC")
	require.False(t, ok)

	require.True(t, ValidTONAddress("UQD4FPq-PRDieyQKkizFTRtSDyucUIqrj0v_zXJmqaDp6_0t"))
	require.False(t, ValidTONAddress("EQshort"))
	require.False(t, ValidTONAddress("0:83dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1ba403a0f31a8"))
}

func TestMilestoneBonus(t *testing.T) {
	bonus, ok := MilestoneBonus(10)
	require.True(t, ok)
	require.Equal(t, money.FromInt(1), bonus)
	bonus, ok = MilestoneBonus(10000)
	require.True(t, ok)
	require.Equal(t, money.FromInt(1000), bonus)
	_, ok = MilestoneBonus(11)
	require.False(t, ok)
}
