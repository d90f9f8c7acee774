package copytrade

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/tradecore/internal/aggregator"
	"github.com/klingon-exchange/tradecore/internal/cache"
	"github.com/klingon-exchange/tradecore/internal/money"
	"github.com/klingon-exchange/tradecore/internal/order"
	"github.com/klingon-exchange/tradecore/internal/storage"
	"github.com/klingon-exchange/tradecore/internal/venue"
	"github.com/klingon-exchange/tradecore/pkg/logging"
)

type fakeVenue struct {
	name    string
	network string
	rate    money.Money
}

func (f *fakeVenue) Name() string    { return f.name }
func (f *fakeVenue) Network() string { return f.network }

func (f *fakeVenue) Quote(ctx context.Context, fromToken, toToken string, inputAmount money.Money) (*venue.Quote, error) {
	out := inputAmount.Mul(f.rate.Decimal())
	return &venue.Quote{Venue: f.name, Network: f.network, FromToken: fromToken, ToToken: toToken, InputAmount: inputAmount, OutputAmount: out}, nil
}

func (f *fakeVenue) Swap(ctx context.Context, idempotencyKey, fromToken, toToken string, inputAmount, minOutputAmount money.Money) (*venue.SwapResult, error) {
	out := inputAmount.Mul(f.rate.Decimal())
	return &venue.SwapResult{Venue: f.name, TxRef: "tx-" + f.name, OutputAmount: out}, nil
}

func mustParse(t *testing.T, s string) money.Money {
	t.Helper()
	m, err := money.Parse(s)
	require.NoError(t, err)
	return m
}

func newTestFixture(t *testing.T) (*order.Engine, *storage.Storage) {
	t.Helper()
	reg := venue.NewRegistry()
	v := &fakeVenue{name: "orca", network: "SOL", rate: mustParse(t, "2")}
	reg.Register(v.Network(), v.Name(), v)

	cacheStore := cache.NewMemStore()
	t.Cleanup(cacheStore.Close)

	db, err := storage.New(&storage.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	agg := aggregator.New(reg, cacheStore, db, nil, logging.Default())
	engine := order.New(db, cacheStore, agg, nil, logging.Default())
	return engine, db
}

func TestFollowerWithSufficientBalanceReceivesProportionalOrder(t *testing.T) {
	engine, db := newTestFixture(t)

	require.NoError(t, db.CreateUser(&storage.User{ID: "leader", Handle: "leader", CreatedAt: time.Now()}))
	require.NoError(t, db.CreateUser(&storage.User{ID: "follower", Handle: "follower", CreatedAt: time.Now()}))
	require.NoError(t, db.SetFollowing("follower", strPtr("leader")))
	require.NoError(t, db.AdjustSpendableBalance("follower", "100"))

	_, err := New(engine, db, "0.5", "10", logging.Default())
	require.NoError(t, err)

	_, err = engine.CreateOrder(context.Background(), "leader", storage.OrderTypeMarket, storage.SideBuy, "SOL", "USDC", "SOL", mustParse(t, "10"), nil, 100)
	require.NoError(t, err)

	orders, err := engine.ListUserOrders(context.Background(), storage.SpotOrderFilter{UserID: "follower"})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "5", orders[0].InputAmount)
	assert.Equal(t, storage.OrderStatusCompleted, orders[0].Status)
}

func TestFollowerBelowMinimumBalanceIsSkipped(t *testing.T) {
	engine, db := newTestFixture(t)

	require.NoError(t, db.CreateUser(&storage.User{ID: "leader", Handle: "leader", CreatedAt: time.Now()}))
	require.NoError(t, db.CreateUser(&storage.User{ID: "follower", Handle: "follower", CreatedAt: time.Now()}))
	require.NoError(t, db.SetFollowing("follower", strPtr("leader")))
	require.NoError(t, db.AdjustSpendableBalance("follower", "1"))

	_, err := New(engine, db, "0.5", "10", logging.Default())
	require.NoError(t, err)

	_, err = engine.CreateOrder(context.Background(), "leader", storage.OrderTypeMarket, storage.SideBuy, "SOL", "USDC", "SOL", mustParse(t, "10"), nil, 100)
	require.NoError(t, err)

	orders, err := engine.ListUserOrders(context.Background(), storage.SpotOrderFilter{UserID: "follower"})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestLeaderWithNoFollowersDoesNothing(t *testing.T) {
	engine, db := newTestFixture(t)
	require.NoError(t, db.CreateUser(&storage.User{ID: "leader", Handle: "leader", CreatedAt: time.Now()}))

	_, err := New(engine, db, "0.5", "10", logging.Default())
	require.NoError(t, err)

	_, err = engine.CreateOrder(context.Background(), "leader", storage.OrderTypeMarket, storage.SideBuy, "SOL", "USDC", "SOL", mustParse(t, "10"), nil, 100)
	require.NoError(t, err)
}

func strPtr(s string) *string { return &s }
