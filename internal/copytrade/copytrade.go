// Package copytrade fans successful leader trades out to their followers.
// It has exactly one entry point into the rest of the system: the Order
// Engine's OrderCompleted event, and exactly one way of acting on it:
// enqueueing a proportional MARKET order through the same Engine.CreateOrder
// call a direct user would make. There is no separate execution path.
package copytrade

import (
	"context"

	"github.com/klingon-exchange/tradecore/internal/money"
	"github.com/klingon-exchange/tradecore/internal/order"
	"github.com/klingon-exchange/tradecore/internal/storage"
	"github.com/klingon-exchange/tradecore/pkg/logging"
)

// defaultFollowerSlippageBps bounds the follower order the same way a
// cautious manual trader would, since the follower never chose a slippage
// tolerance themselves.
const defaultFollowerSlippageBps = 100

// Dispatcher subscribes to the Order Engine's completion events and fans
// each one out to the leader's followers.
type Dispatcher struct {
	engine  *order.Engine
	storage *storage.Storage
	ratio   money.Money
	minBal  money.Money
	log     *logging.Logger
}

// New builds a Dispatcher and subscribes it to engine immediately. ratio and
// minBalanceUSD are decimal strings from the platform's fee/config table.
func New(engine *order.Engine, store *storage.Storage, ratio, minBalanceUSD string, log *logging.Logger) (*Dispatcher, error) {
	r, err := money.Parse(ratio)
	if err != nil {
		return nil, err
	}
	m, err := money.Parse(minBalanceUSD)
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{engine: engine, storage: store, ratio: r, minBal: m, log: log.Component("copytrade")}
	engine.Subscribe(d.onOrderCompleted)
	return d, nil
}

func (d *Dispatcher) onOrderCompleted(ctx context.Context, event order.OrderCompletedEvent) {
	followers, err := d.storage.ListFollowers(event.UserID)
	if err != nil {
		d.log.Warn("failed to list followers for copy-trade fan-out", "leader_id", event.UserID, "error", err)
		return
	}

	for _, follower := range followers {
		d.copyOne(ctx, event, follower)
	}
}

// copyOne places one follower's proportional order. Failures are isolated
// per follower: one follower's rejected or under-funded order never blocks
// another's, matching the no-cross-entity-ordering guarantee the rest of the
// system relies on.
func (d *Dispatcher) copyOne(ctx context.Context, event order.OrderCompletedEvent, follower *storage.User) {
	balance, err := money.Parse(follower.SpendableBalance)
	if err != nil {
		d.log.Warn("skipping follower with unparseable balance", "follower_id", follower.ID, "error", err)
		return
	}
	if balance.LessThan(d.minBal) {
		return
	}

	amount := event.InputAmount.Mul(d.ratio.Decimal())
	if !amount.IsPositive() {
		return
	}

	_, err = d.engine.CreateOrder(ctx, follower.ID, storage.OrderTypeMarket, event.Side, event.Network, event.FromToken, event.ToToken, amount, nil, defaultFollowerSlippageBps)
	if err != nil {
		d.log.Warn("copy-trade order failed", "follower_id", follower.ID, "leader_id", event.UserID, "error", err)
	}
}
