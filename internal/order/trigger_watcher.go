package order

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/klingon-exchange/tradecore/internal/money"
	"github.com/klingon-exchange/tradecore/internal/storage"
)

const (
	watchedPairsKey  = "order_engine:watched_pairs"
	triggerPollEvery = time.Second
)

// triggerEntry is the JSON value stored per order_id in a pair's trigger
// hash: a (network, from_token, to_token) hash mapping
// order_id -> {order_type, trigger_price, amount}, where order_type
// (STOP_LOSS or TAKE_PROFIT) gives the trigger direction.
type triggerEntry struct {
	OrderType storage.OrderType `json:"order_type"`
	Trigger   string            `json:"trigger_price"`
	Amount    string            `json:"amount"`
}

func triggerHashKey(network, fromToken, toToken string) string {
	return fmt.Sprintf("order_engine:triggers:%s:%s:%s", network, fromToken, toToken)
}

func pairKey(network, fromToken, toToken string) string {
	return network + "|" + fromToken + "|" + toToken
}

func parsePairKey(s string) (network, fromToken, toToken string, ok bool) {
	parts := strings.SplitN(s, "|", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

func (e *Engine) registerTrigger(o *storage.SpotOrder, triggerPrice, amount money.Money) error {
	if err := e.cache.SAdd(watchedPairsKey, pairKey(o.Network, o.FromToken, o.ToToken)); err != nil {
		return err
	}
	raw, err := json.Marshal(triggerEntry{OrderType: o.OrderType, Trigger: triggerPrice.String(), Amount: amount.String()})
	if err != nil {
		return err
	}
	return e.cache.HSet(triggerHashKey(o.Network, o.FromToken, o.ToToken), o.ID, raw)
}

func (e *Engine) removeFromTriggerIndex(o *storage.SpotOrder) {
	if o.OrderType == storage.OrderTypeMarket {
		return
	}
	if err := e.cache.HDel(triggerHashKey(o.Network, o.FromToken, o.ToToken), o.ID); err != nil {
		e.log.Warn("failed to remove order from trigger index", "order_id", o.ID, "error", err)
	}
}

// RunTriggerWatcher polls the Trigger Index once per second until ctx is
// canceled, firing Execute for every conditional order whose trigger
// condition the latest quote satisfies.
func (e *Engine) RunTriggerWatcher(ctx context.Context) {
	ticker := time.NewTicker(triggerPollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.scanTriggers(ctx)
		}
	}
}

func (e *Engine) scanTriggers(ctx context.Context) {
	pairs, err := e.cache.SMembers(watchedPairsKey)
	if err != nil {
		e.log.Warn("failed to list watched trigger pairs", "error", err)
		return
	}

	for _, pk := range pairs {
		network, fromToken, toToken, ok := parsePairKey(pk)
		if !ok {
			continue
		}
		entries, err := e.cache.HGetAll(triggerHashKey(network, fromToken, toToken))
		if err != nil {
			e.log.Warn("failed to read trigger index", "pair", pk, "error", err)
			continue
		}
		if len(entries) == 0 {
			_ = e.cache.SRem(watchedPairsKey, pk)
			continue
		}

		for orderID, raw := range entries {
			var te triggerEntry
			if err := json.Unmarshal(raw, &te); err != nil {
				continue
			}
			amount, err := money.Parse(te.Amount)
			if err != nil {
				continue
			}
			triggerPrice, err := money.Parse(te.Trigger)
			if err != nil {
				continue
			}

			quote, err := e.aggregator.BestPrice(ctx, network, fromToken, toToken, amount)
			if err != nil {
				e.log.Warn("trigger price check failed", "order_id", orderID, "error", err)
				continue
			}
			if quote.InputAmount.IsZero() {
				continue
			}
			currentPrice := quote.OutputAmount.Decimal().Div(quote.InputAmount.Decimal())

			var fire bool
			switch te.OrderType {
			case storage.OrderTypeStopLoss:
				fire = currentPrice.LessThanOrEqual(triggerPrice.Decimal())
			case storage.OrderTypeTakeProfit:
				fire = currentPrice.GreaterThanOrEqual(triggerPrice.Decimal())
			}
			if !fire {
				continue
			}

			go e.fireTrigger(ctx, orderID)
		}
	}
}

func (e *Engine) fireTrigger(ctx context.Context, orderID string) {
	if _, err := e.Execute(ctx, orderID); err != nil {
		e.log.Warn("trigger execution failed", "order_id", orderID, "error", err)
	}
}
