package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndTakeP2POrder(t *testing.T) {
	s := newTestStorage(t)
	seedUser(t, s, "maker")
	seedUser(t, s, "taker")

	o := &P2POrder{
		ID: "deal-1", MakerID: "maker", Side: SideSell, Asset: "USDT", Network: "TON",
		Amount: "100", Price: "1.01", FiatCurrency: "USD", PaymentMethod: "bank_transfer",
		Status: P2PStatusOpen, CreatedAt: time.Now(), ExpiresAt: time.Now().Add(30 * time.Minute),
	}
	require.NoError(t, s.CreateP2POrder(o))

	ok, err := s.TakeP2POrder("deal-1", "taker", "escrow-ref-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// A second taker racing the same order loses.
	ok, err = s.TakeP2POrder("deal-1", "someone-else", "escrow-ref-2")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetP2POrder("deal-1")
	require.NoError(t, err)
	assert.Equal(t, P2PStatusInProgress, got.Status)
	require.NotNil(t, got.TakerID)
	assert.Equal(t, "taker", *got.TakerID)
}

func TestListOpenP2POrdersSortOrder(t *testing.T) {
	s := newTestStorage(t)
	seedUser(t, s, "m1")
	seedUser(t, s, "m2")
	seedUser(t, s, "m3")

	mk := func(id, price string) *P2POrder {
		return &P2POrder{
			ID: id, MakerID: "m1", Side: SideBuy, Asset: "USDT", Network: "TON",
			Amount: "100", Price: price, FiatCurrency: "USD", PaymentMethod: "bank_transfer",
			Status: P2PStatusOpen, CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
		}
	}
	require.NoError(t, s.CreateP2POrder(mk("cheap", "0.98")))
	require.NoError(t, s.CreateP2POrder(mk("mid", "1.00")))
	require.NoError(t, s.CreateP2POrder(mk("expensive", "1.05")))

	buySide := SideBuy
	orders, err := s.ListOpenP2POrders(P2PFilter{Asset: "USDT", Network: "TON", Side: &buySide})
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, []string{"cheap", "mid", "expensive"}, []string{orders[0].ID, orders[1].ID, orders[2].ID})
}

func TestListExpiredOpenP2POrders(t *testing.T) {
	s := newTestStorage(t)
	seedUser(t, s, "maker")

	expired := &P2POrder{
		ID: "expired-1", MakerID: "maker", Side: SideSell, Asset: "USDT", Network: "TON",
		Amount: "10", Price: "1", FiatCurrency: "USD", PaymentMethod: "bank_transfer",
		Status: P2PStatusOpen, CreatedAt: time.Now().Add(-time.Hour), ExpiresAt: time.Now().Add(-time.Minute),
	}
	live := &P2POrder{
		ID: "live-1", MakerID: "maker", Side: SideSell, Asset: "USDT", Network: "TON",
		Amount: "10", Price: "1", FiatCurrency: "USD", PaymentMethod: "bank_transfer",
		Status: P2PStatusOpen, CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, s.CreateP2POrder(expired))
	require.NoError(t, s.CreateP2POrder(live))

	results, err := s.ListExpiredOpenP2POrders(time.Now())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "expired-1", results[0].ID)
}

func TestOpenDisputeRecordsEvidence(t *testing.T) {
	s := newTestStorage(t)
	seedUser(t, s, "maker")
	o := &P2POrder{
		ID: "deal-1", MakerID: "maker", Side: SideSell, Asset: "USDT", Network: "TON",
		Amount: "10", Price: "1", FiatCurrency: "USD", PaymentMethod: "bank_transfer",
		Status: P2PStatusPaymentSent, CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, s.CreateP2POrder(o))

	require.NoError(t, s.OpenDispute("deal-1", "payment not received", []string{"screenshot-1.png", "screenshot-2.png"}))

	got, err := s.GetP2POrder("deal-1")
	require.NoError(t, err)
	assert.Equal(t, P2PStatusDisputed, got.Status)
	require.NotNil(t, got.DisputeReason)
	assert.Equal(t, "payment not received", *got.DisputeReason)
	assert.Equal(t, []string{"screenshot-1.png", "screenshot-2.png"}, got.DisputeEvidence)
}

func TestAddP2PReviewRollsUpRating(t *testing.T) {
	s := newTestStorage(t)
	seedUser(t, s, "maker")
	seedUser(t, s, "taker")
	o := &P2POrder{
		ID: "deal-1", MakerID: "maker", Side: SideSell, Asset: "USDT", Network: "TON",
		Amount: "10", Price: "1", FiatCurrency: "USD", PaymentMethod: "bank_transfer",
		Status: P2PStatusCompleted, CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, s.CreateP2POrder(o))

	require.NoError(t, s.AddP2PReview(&P2PReview{
		ID: "r1", OrderID: "deal-1", ReviewerID: "taker", RevieweeID: "maker",
		Rating: 5, Comment: "fast release", CreatedAt: time.Now(),
	}))

	got, err := s.GetUser("maker")
	require.NoError(t, err)
	assert.Equal(t, "5", got.RatingSum)
	assert.Equal(t, 1, got.RatingCount)
}
