// Package p2p implements the escrowed fiat-for-crypto order book: posting
// ads, taking them, the payment-confirmation handshake, disputes, expiry,
// and post-trade reviews. The P2P Engine exclusively owns P2POrder status
// mutations; balance movement is delegated to the Wallet Adapter contract,
// never touched directly, the same separation the aggregator keeps between
// order state and venue execution.
package p2p

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/klingon-exchange/tradecore/internal/errs"
	"github.com/klingon-exchange/tradecore/internal/money"
	"github.com/klingon-exchange/tradecore/internal/notify"
	"github.com/klingon-exchange/tradecore/internal/storage"
	"github.com/klingon-exchange/tradecore/internal/walletadapter"
	"github.com/klingon-exchange/tradecore/pkg/logging"
)

const orderLifetime = 24 * time.Hour

// Engine is the P2P Engine (C5): the escrow order state machine.
type Engine struct {
	storage *storage.Storage
	wallet  walletadapter.Adapter
	notify  notify.Port
	log     *logging.Logger
}

// New builds an Engine. notifyPort may be nil to skip user notification.
func New(store *storage.Storage, wallet walletadapter.Adapter, notifyPort notify.Port, log *logging.Logger) *Engine {
	return &Engine{storage: store, wallet: wallet, notify: notifyPort, log: log.Component("p2p")}
}

// PostAd creates a new OPEN escrow listing, expiring 24h from now.
func (e *Engine) PostAd(ctx context.Context, makerID string, side storage.Side, asset, network string, amount, price money.Money, fiatCurrency, paymentMethod string) (*storage.P2POrder, error) {
	if makerID == "" {
		return nil, errs.Validationf("maker_id is required")
	}
	if !amount.IsPositive() || !price.IsPositive() {
		return nil, errs.Validationf("amount and price must be positive")
	}

	now := time.Now()
	o := &storage.P2POrder{
		ID: uuid.NewString(), MakerID: makerID, Side: side, Asset: asset, Network: network,
		Amount: amount.String(), Price: price.String(), FiatCurrency: fiatCurrency, PaymentMethod: paymentMethod,
		Status: storage.P2PStatusOpen, CreatedAt: now, ExpiresAt: now.Add(orderLifetime),
	}
	if err := e.storage.CreateP2POrder(o); err != nil {
		return nil, errs.Wrap(errs.Fatal, "failed to persist p2p order", err)
	}
	return o, nil
}

// Take assigns takerID as the counterparty and moves the order to
// IN_PROGRESS, transferring the maker's side-dependent crypto amount into
// escrow atomically with the status transition. Two concurrent takers
// racing on the same order only one wins; the loser sees NotOpen.
func (e *Engine) Take(ctx context.Context, orderID, takerID string) (*storage.P2POrder, error) {
	o, err := e.storage.GetP2POrder(orderID)
	if err != nil {
		return nil, errs.Wrap(errs.NotFound, "p2p order not found", err)
	}
	if o.Status != storage.P2PStatusOpen {
		return nil, errs.Conflictf("p2p order %s is not open", orderID)
	}

	amount, err := money.Parse(o.Amount)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "corrupt order amount", err)
	}

	escrowRef := uuid.NewString()
	if err := e.wallet.TransferEscrow(ctx, orderID, o.MakerID, amount, o.Network); err != nil {
		return nil, errs.Wrap(errs.Fatal, "escrow transfer failed", err)
	}

	ok, err := e.storage.TakeP2POrder(orderID, takerID, escrowRef)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "failed to assign taker", err)
	}
	if !ok {
		// Lost the race after escrow was already pulled: refund immediately,
		// this order is no longer ours to hold funds against.
		if refundErr := e.wallet.RefundEscrow(ctx, orderID); refundErr != nil {
			e.log.Warn("failed to refund escrow after lost take race", "order_id", orderID, "error", refundErr)
		}
		return nil, errs.Conflictf("p2p order %s is not open", orderID)
	}

	return e.storage.GetP2POrder(orderID)
}

// ConfirmPayment is called by the taker once fiat payment has been sent,
// valid only from IN_PROGRESS.
func (e *Engine) ConfirmPayment(ctx context.Context, orderID, takerID string) (*storage.P2POrder, error) {
	o, err := e.requireParticipant(orderID, takerID)
	if err != nil {
		return nil, err
	}
	if o.TakerID == nil || *o.TakerID != takerID {
		return nil, errs.Conflictf("only the taker can confirm payment")
	}
	if o.Status != storage.P2PStatusInProgress {
		return nil, errs.Conflictf("p2p order %s is not in progress", orderID)
	}
	if err := e.storage.SetP2PStatus(orderID, storage.P2PStatusPaymentSent); err != nil {
		return nil, errs.Wrap(errs.Fatal, "failed to record payment confirmation", err)
	}
	return e.storage.GetP2POrder(orderID)
}

// Release is called by the maker once fiat has been received, crediting
// escrow to the taker (buyer) and completing the order.
func (e *Engine) Release(ctx context.Context, orderID, makerID string) (*storage.P2POrder, error) {
	o, err := e.requireParticipant(orderID, makerID)
	if err != nil {
		return nil, err
	}
	if o.MakerID != makerID {
		return nil, errs.Conflictf("only the maker can release escrow")
	}
	if o.Status != storage.P2PStatusPaymentSent {
		return nil, errs.Conflictf("p2p order %s has no payment to release against", orderID)
	}
	if o.TakerID == nil {
		return nil, errs.Wrap(errs.Fatal, "order has no taker to release to", errs.New(errs.Fatal, "missing taker"))
	}

	if err := e.wallet.ReleaseEscrow(ctx, orderID, *o.TakerID); err != nil {
		return nil, errs.Wrap(errs.Fatal, "escrow release failed", err)
	}
	if err := e.storage.SetP2PStatus(orderID, storage.P2PStatusCompleted); err != nil {
		return nil, errs.Wrap(errs.Fatal, "failed to record completion", err)
	}

	updated, err := e.storage.GetP2POrder(orderID)
	if err == nil {
		e.notifyBoth(ctx, updated, "p2p_order_completed")
	}
	return updated, err
}

// Cancel cancels an order: OPEN before it's taken, or IN_PROGRESS before
// payment has been sent (either party may cancel at that point). Escrow,
// if any was pulled, is refunded to the maker.
func (e *Engine) Cancel(ctx context.Context, orderID, requesterID string) (*storage.P2POrder, error) {
	o, err := e.requireParticipant(orderID, requesterID)
	if err != nil {
		return nil, err
	}

	switch o.Status {
	case storage.P2PStatusOpen:
		if o.MakerID != requesterID {
			return nil, errs.Conflictf("only the maker can cancel an open order")
		}
	case storage.P2PStatusInProgress:
		if err := e.wallet.RefundEscrow(ctx, orderID); err != nil {
			return nil, errs.Wrap(errs.Fatal, "escrow refund failed", err)
		}
	default:
		return nil, errs.Conflictf("p2p order %s cannot be cancelled from %s", orderID, o.Status)
	}

	if err := e.storage.SetP2PStatus(orderID, storage.P2PStatusCancelled); err != nil {
		return nil, errs.Wrap(errs.Fatal, "failed to record cancellation", err)
	}
	return e.storage.GetP2POrder(orderID)
}

// OpenDispute moves an IN_PROGRESS or PAYMENT_SENT order to DISPUTE.
func (e *Engine) OpenDispute(ctx context.Context, orderID, requesterID, reason string, evidence []string) (*storage.P2POrder, error) {
	o, err := e.requireParticipant(orderID, requesterID)
	if err != nil {
		return nil, err
	}
	if o.Status != storage.P2PStatusInProgress && o.Status != storage.P2PStatusPaymentSent {
		return nil, errs.Conflictf("p2p order %s cannot be disputed from %s", orderID, o.Status)
	}
	if err := e.storage.OpenDispute(orderID, reason, evidence); err != nil {
		return nil, errs.Wrap(errs.Fatal, "failed to open dispute", err)
	}
	return e.storage.GetP2POrder(orderID)
}

// ResolveDispute is called by an operator: outcome "refund" returns escrow
// to the maker and cancels the order; outcome "complete" releases escrow to
// the taker and completes it.
func (e *Engine) ResolveDispute(ctx context.Context, orderID string, outcome DisputeOutcome) (*storage.P2POrder, error) {
	o, err := e.storage.GetP2POrder(orderID)
	if err != nil {
		return nil, errs.Wrap(errs.NotFound, "p2p order not found", err)
	}
	if o.Status != storage.P2PStatusDisputed {
		return nil, errs.Conflictf("p2p order %s is not under dispute", orderID)
	}

	switch outcome {
	case DisputeRefund:
		if err := e.wallet.RefundEscrow(ctx, orderID); err != nil {
			return nil, errs.Wrap(errs.Fatal, "escrow refund failed", err)
		}
		if err := e.storage.SetP2PStatus(orderID, storage.P2PStatusCancelled); err != nil {
			return nil, errs.Wrap(errs.Fatal, "failed to record dispute resolution", err)
		}
	case DisputeComplete:
		if o.TakerID == nil {
			return nil, errs.Wrap(errs.Fatal, "disputed order has no taker", errs.New(errs.Fatal, "missing taker"))
		}
		if err := e.wallet.ReleaseEscrow(ctx, orderID, *o.TakerID); err != nil {
			return nil, errs.Wrap(errs.Fatal, "escrow release failed", err)
		}
		if err := e.storage.SetP2PStatus(orderID, storage.P2PStatusCompleted); err != nil {
			return nil, errs.Wrap(errs.Fatal, "failed to record dispute resolution", err)
		}
	default:
		return nil, errs.Validationf("unknown dispute outcome %q", outcome)
	}

	updated, err := e.storage.GetP2POrder(orderID)
	if err == nil {
		e.notifyBoth(ctx, updated, "p2p_dispute_resolved")
	}
	return updated, err
}

// DisputeOutcome is the operator's resolution decision.
type DisputeOutcome string

const (
	DisputeRefund   DisputeOutcome = "refund"
	DisputeComplete DisputeOutcome = "complete"
)

// ListOpen returns OPEN listings matching filter.
func (e *Engine) ListOpen(ctx context.Context, filter storage.P2PFilter) ([]*storage.P2POrder, error) {
	orders, err := e.storage.ListOpenP2POrders(filter)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "failed to list open p2p orders", err)
	}
	return orders, nil
}

// SweepExpired cancels every OPEN order whose expiry has passed, for the
// Scheduler's p2p.sweep_expired job.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	expired, err := e.storage.ListExpiredOpenP2POrders(time.Now())
	if err != nil {
		return 0, errs.Wrap(errs.Fatal, "failed to list expired p2p orders", err)
	}

	swept := 0
	for _, o := range expired {
		if err := e.storage.SetP2PStatus(o.ID, storage.P2PStatusCancelled); err != nil {
			e.log.Warn("failed to cancel expired p2p order", "order_id", o.ID, "error", err)
			continue
		}
		swept++
	}
	return swept, nil
}

// AddReview records a post-trade rating; valid only on a COMPLETED order,
// by one of its two participants, about the other.
func (e *Engine) AddReview(ctx context.Context, orderID, reviewerID string, rating int, comment string) error {
	o, err := e.storage.GetP2POrder(orderID)
	if err != nil {
		return errs.Wrap(errs.NotFound, "p2p order not found", err)
	}
	if o.Status != storage.P2PStatusCompleted {
		return errs.Conflictf("p2p order %s is not completed", orderID)
	}
	if rating < 1 || rating > 5 {
		return errs.Validationf("rating must be between 1 and 5")
	}

	revieweeID, err := counterparty(o, reviewerID)
	if err != nil {
		return err
	}

	return e.storage.AddP2PReview(&storage.P2PReview{
		ID: uuid.NewString(), OrderID: orderID, ReviewerID: reviewerID, RevieweeID: revieweeID,
		Rating: rating, Comment: comment, CreatedAt: time.Now(),
	})
}

func (e *Engine) requireParticipant(orderID, userID string) (*storage.P2POrder, error) {
	o, err := e.storage.GetP2POrder(orderID)
	if err != nil {
		return nil, errs.Wrap(errs.NotFound, "p2p order not found", err)
	}
	if o.MakerID != userID && (o.TakerID == nil || *o.TakerID != userID) {
		return nil, errs.Conflictf("user %s is not a participant in order %s", userID, orderID)
	}
	return o, nil
}

func counterparty(o *storage.P2POrder, userID string) (string, error) {
	switch {
	case o.MakerID == userID && o.TakerID != nil:
		return *o.TakerID, nil
	case o.TakerID != nil && *o.TakerID == userID:
		return o.MakerID, nil
	default:
		return "", errs.Conflictf("user %s is not a participant in order %s", userID, o.ID)
	}
}

func (e *Engine) notifyBoth(ctx context.Context, o *storage.P2POrder, kind string) {
	if e.notify == nil {
		return
	}
	if err := e.notify.Notify(ctx, o.MakerID, kind, []byte(o.ID)); err != nil {
		e.log.Warn("failed to notify maker", "order_id", o.ID, "error", err)
	}
	if o.TakerID != nil {
		if err := e.notify.Notify(ctx, *o.TakerID, kind, []byte(o.ID)); err != nil {
			e.log.Warn("failed to notify taker", "order_id", o.ID, "error", err)
		}
	}
}
