// Package order implements the spot order lifecycle: creation, synchronous
// market execution, conditional-order registration, and the idempotent
// compare-and-set execution path shared by direct calls and the
// trigger-watcher loop.
package order

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/klingon-exchange/tradecore/internal/aggregator"
	"github.com/klingon-exchange/tradecore/internal/cache"
	"github.com/klingon-exchange/tradecore/internal/errs"
	"github.com/klingon-exchange/tradecore/internal/money"
	"github.com/klingon-exchange/tradecore/internal/notify"
	"github.com/klingon-exchange/tradecore/internal/storage"
	"github.com/klingon-exchange/tradecore/internal/venue"
	"github.com/klingon-exchange/tradecore/pkg/logging"
)

// OrderCompletedEvent is published once per successfully filled order, the
// only event copy-trading (or anything else) is allowed to observe.
type OrderCompletedEvent struct {
	OrderID      string
	UserID       string
	Side         storage.Side
	Network      string
	FromToken    string
	ToToken      string
	Venue        string
	InputAmount  money.Money
	OutputAmount money.Money
}

// Observer receives OrderCompletedEvent notifications.
type Observer func(ctx context.Context, event OrderCompletedEvent)

// Engine is the Order Engine (C4): it exclusively owns spot order status
// mutations, backed by storage's compare-and-set update, and drives both
// synchronous MARKET execution and the asynchronous conditional-order path.
type Engine struct {
	storage    *storage.Storage
	cache      cache.Store
	aggregator *aggregator.Aggregator
	notify     notify.Port
	log        *logging.Logger

	mu        sync.Mutex
	observers []Observer
}

// New builds an Engine. notifyPort may be nil to skip user notification.
func New(store *storage.Storage, cacheStore cache.Store, agg *aggregator.Aggregator, notifyPort notify.Port, log *logging.Logger) *Engine {
	return &Engine{
		storage:    store,
		cache:      cacheStore,
		aggregator: agg,
		notify:     notifyPort,
		log:        log.Component("order"),
	}
}

// Subscribe registers an observer invoked synchronously after every
// successful order completion, in registration order.
func (e *Engine) Subscribe(obs Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, obs)
}

// CreateOrder validates and persists a new order PENDING. MARKET orders are
// executed synchronously before returning; conditional orders are
// registered in the Trigger Index instead.
func (e *Engine) CreateOrder(ctx context.Context, userID string, orderType storage.OrderType, side storage.Side, network, fromToken, toToken string, amount money.Money, triggerPrice *money.Money, maxSlippageBps int64) (*storage.SpotOrder, error) {
	if userID == "" {
		return nil, errs.Validationf("user_id is required")
	}
	if !amount.IsPositive() {
		return nil, errs.Validationf("amount must be positive")
	}
	if orderType != storage.OrderTypeMarket && triggerPrice == nil {
		return nil, errs.Validationf("trigger_price is required for %s orders", orderType)
	}

	o := &storage.SpotOrder{
		ID:             uuid.NewString(),
		UserID:         userID,
		OrderType:      orderType,
		Side:           side,
		Network:        network,
		FromToken:      fromToken,
		ToToken:        toToken,
		InputAmount:    amount.String(),
		MaxSlippageBps: maxSlippageBps,
		Status:         storage.OrderStatusPending,
		CreatedAt:      time.Now(),
	}
	if triggerPrice != nil {
		tp := triggerPrice.String()
		o.TriggerPrice = &tp
	}

	if err := e.storage.CreateOrder(o); err != nil {
		return nil, errs.Wrap(errs.Fatal, "failed to persist order", err)
	}

	if orderType == storage.OrderTypeMarket {
		return e.Execute(ctx, o.ID)
	}

	if err := e.registerTrigger(o, *triggerPrice, amount); err != nil {
		e.log.Warn("failed to register conditional order in trigger index", "order_id", o.ID, "error", err)
	}
	return o, nil
}

// Execute runs (or re-observes) a single execution attempt for an order.
// It is idempotent on terminal state: calling it again after COMPLETED,
// FAILED, or CANCELLED simply returns the stored result.
func (e *Engine) Execute(ctx context.Context, orderID string) (*storage.SpotOrder, error) {
	o, err := e.storage.GetOrder(orderID)
	if err != nil {
		return nil, errs.Wrap(errs.NotFound, "order not found", err)
	}
	if isTerminal(o.Status) {
		return o, nil
	}

	claimed, err := e.storage.CompareAndSetStatus(orderID, storage.OrderStatusPending, storage.OrderStatusTriggered)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "failed to claim order for execution", err)
	}
	if !claimed {
		// Another caller (watcher tick or concurrent request) is already
		// executing, or got there first and the order moved on.
		return e.storage.GetOrder(orderID)
	}

	inputAmount, err := money.Parse(o.InputAmount)
	if err != nil {
		return e.failOrRetry(ctx, o, errs.Wrap(errs.Fatal, "corrupt input amount", err))
	}

	quote, err := e.aggregator.BestPrice(ctx, o.Network, o.FromToken, o.ToToken, inputAmount)
	if err != nil {
		return e.failOrRetry(ctx, o, err)
	}
	minOutput := quote.OutputAmount.BpsOff(o.MaxSlippageBps)

	result, err := e.aggregator.ExecuteSwap(ctx, orderID, o.Network, o.FromToken, o.ToToken, inputAmount, minOutput)
	if err != nil {
		return e.failOrRetry(ctx, o, err)
	}

	details, _ := json.Marshal(executionDetail{Venue: result.Venue, TxRef: result.TxRef, PriceImpact: result.PriceImpact})
	if err := e.storage.CompleteOrder(orderID, result.OutputAmount.String(), result.Venue, string(details)); err != nil {
		return nil, errs.Wrap(errs.Fatal, "failed to record order completion", err)
	}

	updated, err := e.storage.GetOrder(orderID)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "failed to reload completed order", err)
	}
	e.removeFromTriggerIndex(updated)
	e.emitCompleted(ctx, updated, inputAmount, result)
	return updated, nil
}

// executionDetail is the JSON shape persisted to SpotOrder.ExecutionDetails.
type executionDetail struct {
	Venue       string `json:"venue"`
	TxRef       string `json:"tx_ref"`
	PriceImpact string `json:"price_impact"`
}

// failOrRetry handles an execution failure: transient errors revert the
// order to PENDING so the trigger watcher retries on its next tick; every
// other kind is recorded as a terminal FAILED.
func (e *Engine) failOrRetry(ctx context.Context, o *storage.SpotOrder, cause error) (*storage.SpotOrder, error) {
	if errs.Is(cause, errs.Transient) {
		if _, err := e.storage.CompareAndSetStatus(o.ID, storage.OrderStatusTriggered, storage.OrderStatusPending); err != nil {
			e.log.Warn("failed to revert order to pending after transient error", "order_id", o.ID, "error", err)
		}
		return e.storage.GetOrder(o.ID)
	}

	if err := e.storage.FailOrder(o.ID, cause.Error()); err != nil {
		return nil, errs.Wrap(errs.Fatal, "failed to record order failure", err)
	}
	updated, err := e.storage.GetOrder(o.ID)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "failed to reload failed order", err)
	}
	e.removeFromTriggerIndex(updated)
	return updated, nil
}

// CancelOrder cancels an order, valid only from PENDING.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	ok, err := e.storage.CompareAndSetStatus(orderID, storage.OrderStatusPending, storage.OrderStatusCancelled)
	if err != nil {
		return errs.Wrap(errs.Fatal, "failed to cancel order", err)
	}
	if !ok {
		return errs.Conflictf("order %s is not pending", orderID)
	}
	if o, err := e.storage.GetOrder(orderID); err == nil {
		e.removeFromTriggerIndex(o)
	}
	return nil
}

// GetOrder returns a single order by id.
func (e *Engine) GetOrder(ctx context.Context, orderID string) (*storage.SpotOrder, error) {
	o, err := e.storage.GetOrder(orderID)
	if err != nil {
		return nil, errs.Wrap(errs.NotFound, "order not found", err)
	}
	return o, nil
}

// ListUserOrders returns a user's orders matching filter, newest first.
func (e *Engine) ListUserOrders(ctx context.Context, filter storage.SpotOrderFilter) ([]*storage.SpotOrder, error) {
	orders, err := e.storage.ListOrders(filter)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "failed to list orders", err)
	}
	return orders, nil
}

func (e *Engine) emitCompleted(ctx context.Context, o *storage.SpotOrder, inputAmount money.Money, result *venue.SwapResult) {
	event := OrderCompletedEvent{
		OrderID: o.ID, UserID: o.UserID, Side: o.Side, Network: o.Network, FromToken: o.FromToken, ToToken: o.ToToken,
		Venue: result.Venue, InputAmount: inputAmount, OutputAmount: result.OutputAmount,
	}

	e.mu.Lock()
	observers := make([]Observer, len(e.observers))
	copy(observers, e.observers)
	e.mu.Unlock()

	for _, obs := range observers {
		obs(ctx, event)
	}

	if e.notify == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := e.notify.Notify(ctx, o.UserID, "order_completed", payload); err != nil {
		e.log.Warn("failed to notify order completion", "order_id", o.ID, "error", err)
	}
}

func isTerminal(s storage.OrderStatus) bool {
	switch s {
	case storage.OrderStatusCompleted, storage.OrderStatusFailed, storage.OrderStatusCancelled:
		return true
	default:
		return false
	}
}
