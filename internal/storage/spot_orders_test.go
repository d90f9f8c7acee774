package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, s *Storage, id string) {
	t.Helper()
	require.NoError(t, s.CreateUser(&User{ID: id, Handle: id, CreatedAt: time.Now()}))
}

func TestCreateAndGetOrder(t *testing.T) {
	s := newTestStorage(t)
	seedUser(t, s, "user-1")

	o := &SpotOrder{
		ID: "order-1", UserID: "user-1", OrderType: OrderTypeMarket, Side: SideBuy,
		Network: "SOL", FromToken: "USDC", ToToken: "SOL",
		InputAmount: "100", Status: OrderStatusPending, CreatedAt: time.Now(),
	}
	require.NoError(t, s.CreateOrder(o))

	got, err := s.GetOrder("order-1")
	require.NoError(t, err)
	assert.Equal(t, "100", got.InputAmount)
	assert.Equal(t, OrderStatusPending, got.Status)

	_, err = s.GetOrder("missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCompareAndSetStatusIsIdempotentOnTerminalState(t *testing.T) {
	s := newTestStorage(t)
	seedUser(t, s, "user-1")
	o := &SpotOrder{
		ID: "order-1", UserID: "user-1", OrderType: OrderTypeMarket, Side: SideBuy,
		Network: "SOL", FromToken: "USDC", ToToken: "SOL",
		InputAmount: "100", Status: OrderStatusPending, CreatedAt: time.Now(),
	}
	require.NoError(t, s.CreateOrder(o))

	ok, err := s.CompareAndSetStatus("order-1", OrderStatusPending, OrderStatusCancelled)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second cancel attempt against the now-stale expected state is a no-op, not an error.
	ok, err = s.CompareAndSetStatus("order-1", OrderStatusPending, OrderStatusCancelled)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetOrder("order-1")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusCancelled, got.Status)
}

func TestCompleteOrderIsIdempotent(t *testing.T) {
	s := newTestStorage(t)
	seedUser(t, s, "user-1")
	o := &SpotOrder{
		ID: "order-1", UserID: "user-1", OrderType: OrderTypeMarket, Side: SideBuy,
		Network: "SOL", FromToken: "USDC", ToToken: "SOL",
		InputAmount: "100", Status: OrderStatusPending, CreatedAt: time.Now(),
	}
	require.NoError(t, s.CreateOrder(o))

	require.NoError(t, s.CompleteOrder("order-1", "4.2", "orca", `{"venue":"orca"}`))
	require.NoError(t, s.FailOrder("order-1", "should not override a terminal state"))

	got, err := s.GetOrder("order-1")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusCompleted, got.Status)
	require.NotNil(t, got.FilledOutputAmount)
	assert.Equal(t, "4.2", *got.FilledOutputAmount)
}

func TestListOrdersFiltersByUserAndStatus(t *testing.T) {
	s := newTestStorage(t)
	seedUser(t, s, "user-1")
	seedUser(t, s, "user-2")

	require.NoError(t, s.CreateOrder(&SpotOrder{
		ID: "o1", UserID: "user-1", OrderType: OrderTypeMarket, Side: SideBuy,
		Network: "SOL", FromToken: "USDC", ToToken: "SOL", InputAmount: "10",
		Status: OrderStatusPending, CreatedAt: time.Now(),
	}))
	require.NoError(t, s.CreateOrder(&SpotOrder{
		ID: "o2", UserID: "user-2", OrderType: OrderTypeMarket, Side: SideBuy,
		Network: "SOL", FromToken: "USDC", ToToken: "SOL", InputAmount: "10",
		Status: OrderStatusPending, CreatedAt: time.Now(),
	}))

	orders, err := s.ListOrders(SpotOrderFilter{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "o1", orders[0].ID)
}

func TestListPendingTriggers(t *testing.T) {
	s := newTestStorage(t)
	seedUser(t, s, "user-1")
	price := "95"
	require.NoError(t, s.CreateOrder(&SpotOrder{
		ID: "o1", UserID: "user-1", OrderType: OrderTypeStopLoss, Side: SideSell,
		Network: "SOL", FromToken: "SOL", ToToken: "USDC", InputAmount: "10",
		TriggerPrice: &price, Status: OrderStatusPending, CreatedAt: time.Now(),
	}))
	require.NoError(t, s.CreateOrder(&SpotOrder{
		ID: "o2", UserID: "user-1", OrderType: OrderTypeMarket, Side: SideSell,
		Network: "SOL", FromToken: "SOL", ToToken: "USDC", InputAmount: "10",
		Status: OrderStatusCompleted, CreatedAt: time.Now(),
	}))

	triggers, err := s.ListPendingTriggers("SOL", "SOL", "USDC")
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.Equal(t, "o1", triggers[0].ID)
}
