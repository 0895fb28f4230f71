package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-03-05")
	require.NoError(t, err)
	require.Equal(t, "2024-03-05 00:00:00", got)

	got, err = ParseDate("2024-03-05T10:30")
	require.NoError(t, err)
	require.Equal(t, "2024-03-05 10:30:00", got)

	_, err = ParseDate("05/03/2024")
	require.Error(t, err)
}

func TestPermissionOrder(t *testing.T) {
	require.True(t, PermissionOwner.AtLeast(PermissionManager))
	require.True(t, PermissionEditor.AtLeast(PermissionViewer))
	require.False(t, PermissionViewer.AtLeast(PermissionEditor))

	p, err := ParsePermission(" Manager ")
	require.NoError(t, err)
	require.Equal(t, PermissionManager, p)
	require.Equal(t, "manager", p.String())

	_, err = ParsePermission("none")
	require.Error(t, err)
}

func TestDebtStatus(t *testing.T) {
	hundred := decimal.NewFromInt(100)
	require.Equal(t, DebtOpen, StatusFor(hundred, decimal.NewFromInt(60)))
	require.Equal(t, DebtPaid, StatusFor(hundred, hundred))

	d := Debt{OriginalAmount: hundred, PaidAmount: decimal.NewFromInt(60)}
	require.True(t, d.Remaining().Equal(decimal.NewFromInt(40)))
	require.True(t, EntityCustomer.Valid())
	require.False(t, EntityType("bank").Valid())
}

func TestWholeCents(t *testing.T) {
	require.True(t, WholeCents(decimal.RequireFromString("40")))
	require.True(t, WholeCents(decimal.RequireFromString("40.10")))
	require.True(t, WholeCents(decimal.RequireFromString("40.000")))
	require.False(t, WholeCents(decimal.RequireFromString("40.004")))
	require.False(t, WholeCents(decimal.RequireFromString("0.125")))
}
