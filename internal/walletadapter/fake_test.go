package walletadapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/tradecore/internal/money"
)

func mustParse(t *testing.T, s string) money.Money {
	t.Helper()
	m, err := money.Parse(s)
	require.NoError(t, err)
	return m
}

func TestGetBalanceDefaultsToZeroForUnseenUser(t *testing.T) {
	a := NewFakeAdapter()
	bal, err := a.GetBalance(context.Background(), "user-1", "SOL")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestCreateWithdrawalDebitsBalance(t *testing.T) {
	a := NewFakeAdapter()
	a.SeedBalance("user-1", "SOL", mustParse(t, "100"))

	w, err := a.CreateWithdrawal(context.Background(), "user-1", "SOL", "addr-1", mustParse(t, "40"))
	require.NoError(t, err)
	assert.Equal(t, WithdrawalBroadcast, w.Status)

	bal, err := a.GetBalance(context.Background(), "user-1", "SOL")
	require.NoError(t, err)
	assert.Equal(t, "60", bal.String())
}

func TestCreateWithdrawalRejectsOverdraft(t *testing.T) {
	a := NewFakeAdapter()
	a.SeedBalance("user-1", "SOL", mustParse(t, "10"))

	_, err := a.CreateWithdrawal(context.Background(), "user-1", "SOL", "addr-1", mustParse(t, "11"))
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestCreateWithdrawalRejectsInvalidAddress(t *testing.T) {
	a := NewFakeAdapter()
	a.SeedBalance("user-1", "SOL", mustParse(t, "10"))

	_, err := a.CreateWithdrawal(context.Background(), "user-1", "SOL", "invalid", mustParse(t, "1"))
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestTransferEscrowThenReleaseMovesFunds(t *testing.T) {
	a := NewFakeAdapter()
	a.SeedBalance("buyer", "SOL", mustParse(t, "50"))

	require.NoError(t, a.TransferEscrow(context.Background(), "order-1", "buyer", mustParse(t, "20"), "SOL"))

	buyerBal, _ := a.GetBalance(context.Background(), "buyer", "SOL")
	assert.Equal(t, "30", buyerBal.String())

	require.NoError(t, a.ReleaseEscrow(context.Background(), "order-1", "seller"))

	sellerBal, _ := a.GetBalance(context.Background(), "seller", "SOL")
	assert.Equal(t, "20", sellerBal.String())
}

func TestTransferEscrowThenRefundReturnsFunds(t *testing.T) {
	a := NewFakeAdapter()
	a.SeedBalance("buyer", "SOL", mustParse(t, "50"))

	require.NoError(t, a.TransferEscrow(context.Background(), "order-2", "buyer", mustParse(t, "20"), "SOL"))
	require.NoError(t, a.RefundEscrow(context.Background(), "order-2"))

	buyerBal, _ := a.GetBalance(context.Background(), "buyer", "SOL")
	assert.Equal(t, "50", buyerBal.String())
}

func TestReleaseEscrowFailsWithoutPriorTransfer(t *testing.T) {
	a := NewFakeAdapter()
	err := a.ReleaseEscrow(context.Background(), "no-such-order", "seller")
	require.Error(t, err)
}

func TestTransferEscrowRejectsOverdraft(t *testing.T) {
	a := NewFakeAdapter()
	a.SeedBalance("buyer", "SOL", mustParse(t, "5"))

	err := a.TransferEscrow(context.Background(), "order-3", "buyer", mustParse(t, "10"), "SOL")
	require.ErrorIs(t, err, ErrInsufficientBalance)
}
