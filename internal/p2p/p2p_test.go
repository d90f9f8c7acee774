package p2p

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/tradecore/internal/money"
	"github.com/klingon-exchange/tradecore/internal/storage"
	"github.com/klingon-exchange/tradecore/internal/walletadapter"
	"github.com/klingon-exchange/tradecore/pkg/logging"
)

func mustParse(t *testing.T, s string) money.Money {
	t.Helper()
	m, err := money.Parse(s)
	require.NoError(t, err)
	return m
}

func newTestEngine(t *testing.T) (*Engine, *walletadapter.FakeAdapter) {
	t.Helper()
	db, err := storage.New(&storage.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	wallet := walletadapter.NewFakeAdapter()
	wallet.SeedBalance("maker-1", "SOL", mustParse(t, "100"))

	return New(db, wallet, nil, logging.Default()), wallet
}

func postTestAd(t *testing.T, e *Engine) *storage.P2POrder {
	t.Helper()
	o, err := e.PostAd(context.Background(), "maker-1", storage.SideSell, "SOL", "SOL", mustParse(t, "10"), mustParse(t, "150"), "USD", "bank_transfer")
	require.NoError(t, err)
	return o
}

func TestPostAdCreatesOpenOrder(t *testing.T) {
	e, _ := newTestEngine(t)
	o := postTestAd(t, e)
	assert.Equal(t, storage.P2PStatusOpen, o.Status)
	assert.False(t, o.ExpiresAt.IsZero())
}

func TestTakeMovesToInProgressAndPullsEscrow(t *testing.T) {
	e, wallet := newTestEngine(t)
	o := postTestAd(t, e)

	taken, err := e.Take(context.Background(), o.ID, "taker-1")
	require.NoError(t, err)
	assert.Equal(t, storage.P2PStatusInProgress, taken.Status)
	require.NotNil(t, taken.TakerID)
	assert.Equal(t, "taker-1", *taken.TakerID)

	makerBal, _ := wallet.GetBalance(context.Background(), "maker-1", "SOL")
	assert.Equal(t, "90", makerBal.String())
}

func TestTakeFailsWhenAlreadyTaken(t *testing.T) {
	e, _ := newTestEngine(t)
	o := postTestAd(t, e)

	_, err := e.Take(context.Background(), o.ID, "taker-1")
	require.NoError(t, err)

	_, err = e.Take(context.Background(), o.ID, "taker-2")
	require.Error(t, err)
}

func TestFullHappyPathReleasesEscrowToTaker(t *testing.T) {
	e, wallet := newTestEngine(t)
	o := postTestAd(t, e)

	_, err := e.Take(context.Background(), o.ID, "taker-1")
	require.NoError(t, err)

	_, err = e.ConfirmPayment(context.Background(), o.ID, "taker-1")
	require.NoError(t, err)

	final, err := e.Release(context.Background(), o.ID, "maker-1")
	require.NoError(t, err)
	assert.Equal(t, storage.P2PStatusCompleted, final.Status)

	takerBal, _ := wallet.GetBalance(context.Background(), "taker-1", "SOL")
	assert.Equal(t, "10", takerBal.String())
}

func TestReleaseFailsBeforePaymentConfirmed(t *testing.T) {
	e, _ := newTestEngine(t)
	o := postTestAd(t, e)

	_, err := e.Take(context.Background(), o.ID, "taker-1")
	require.NoError(t, err)

	_, err = e.Release(context.Background(), o.ID, "maker-1")
	require.Error(t, err)
}

func TestCancelOpenOrderRequiresMaker(t *testing.T) {
	e, _ := newTestEngine(t)
	o := postTestAd(t, e)

	_, err := e.Cancel(context.Background(), o.ID, "someone-else")
	require.Error(t, err)

	cancelled, err := e.Cancel(context.Background(), o.ID, "maker-1")
	require.NoError(t, err)
	assert.Equal(t, storage.P2PStatusCancelled, cancelled.Status)
}

func TestCancelInProgressRefundsEscrow(t *testing.T) {
	e, wallet := newTestEngine(t)
	o := postTestAd(t, e)

	_, err := e.Take(context.Background(), o.ID, "taker-1")
	require.NoError(t, err)

	cancelled, err := e.Cancel(context.Background(), o.ID, "taker-1")
	require.NoError(t, err)
	assert.Equal(t, storage.P2PStatusCancelled, cancelled.Status)

	makerBal, _ := wallet.GetBalance(context.Background(), "maker-1", "SOL")
	assert.Equal(t, "100", makerBal.String())
}

func TestOpenDisputeThenResolveRefund(t *testing.T) {
	e, wallet := newTestEngine(t)
	o := postTestAd(t, e)

	_, err := e.Take(context.Background(), o.ID, "taker-1")
	require.NoError(t, err)

	_, err = e.OpenDispute(context.Background(), o.ID, "taker-1", "never received payment", []string{"screenshot.png"})
	require.NoError(t, err)

	resolved, err := e.ResolveDispute(context.Background(), o.ID, DisputeRefund)
	require.NoError(t, err)
	assert.Equal(t, storage.P2PStatusCancelled, resolved.Status)

	makerBal, _ := wallet.GetBalance(context.Background(), "maker-1", "SOL")
	assert.Equal(t, "100", makerBal.String())
}

func TestOpenDisputeThenResolveComplete(t *testing.T) {
	e, wallet := newTestEngine(t)
	o := postTestAd(t, e)

	_, err := e.Take(context.Background(), o.ID, "taker-1")
	require.NoError(t, err)

	_, err = e.OpenDispute(context.Background(), o.ID, "maker-1", "buyer paid late", nil)
	require.NoError(t, err)

	resolved, err := e.ResolveDispute(context.Background(), o.ID, DisputeComplete)
	require.NoError(t, err)
	assert.Equal(t, storage.P2PStatusCompleted, resolved.Status)

	takerBal, _ := wallet.GetBalance(context.Background(), "taker-1", "SOL")
	assert.Equal(t, "10", takerBal.String())
}

func TestSweepExpiredCancelsPastDeadlineOrders(t *testing.T) {
	e, _ := newTestEngine(t)
	o := postTestAd(t, e)

	// Force expiry into the past directly through storage, since PostAd
	// always sets a 24h-future deadline.
	require.NoError(t, e.storage.SetP2PStatus(o.ID, storage.P2PStatusOpen))
	_, err := e.storage.DB().Exec(`UPDATE p2p_orders SET expires_at = 1 WHERE id = ?`, o.ID)
	require.NoError(t, err)

	swept, err := e.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	reloaded, err := e.storage.GetP2POrder(o.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.P2PStatusCancelled, reloaded.Status)
}

func TestAddReviewOnlyAfterCompletion(t *testing.T) {
	e, _ := newTestEngine(t)
	o := postTestAd(t, e)

	_, err := e.Take(context.Background(), o.ID, "taker-1")
	require.NoError(t, err)

	err = e.AddReview(context.Background(), o.ID, "taker-1", 5, "smooth trade")
	require.Error(t, err)

	_, err = e.ConfirmPayment(context.Background(), o.ID, "taker-1")
	require.NoError(t, err)
	_, err = e.Release(context.Background(), o.ID, "maker-1")
	require.NoError(t, err)

	require.NoError(t, e.AddReview(context.Background(), o.ID, "taker-1", 5, "smooth trade"))
}

func TestSendAndListMessagesRestrictedToParticipants(t *testing.T) {
	e, _ := newTestEngine(t)
	o := postTestAd(t, e)

	_, err := e.Take(context.Background(), o.ID, "taker-1")
	require.NoError(t, err)

	_, err = e.SendMessage(context.Background(), o.ID, "taker-1", "when can you pay?")
	require.NoError(t, err)

	_, err = e.SendMessage(context.Background(), o.ID, "intruder", "hi")
	require.Error(t, err)

	messages, err := e.ListMessages(context.Background(), o.ID, "maker-1")
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}
