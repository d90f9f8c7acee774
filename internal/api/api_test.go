package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/tradecore/internal/aggregator"
	"github.com/klingon-exchange/tradecore/internal/cache"
	"github.com/klingon-exchange/tradecore/internal/money"
	"github.com/klingon-exchange/tradecore/internal/order"
	"github.com/klingon-exchange/tradecore/internal/p2p"
	"github.com/klingon-exchange/tradecore/internal/storage"
	"github.com/klingon-exchange/tradecore/internal/telemetry"
	"github.com/klingon-exchange/tradecore/internal/venue"
	"github.com/klingon-exchange/tradecore/internal/walletadapter"
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

func newTestServer(t *testing.T) *Server {
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
	orders := order.New(db, cacheStore, agg, nil, logging.Default())

	wallet := walletadapter.NewFakeAdapter()
	wallet.SeedBalance("maker-1", "SOL", mustParse(t, "100"))
	p2pEngine := p2p.New(db, wallet, nil, logging.Default())

	return New(orders, p2pEngine, telemetry.New(), logging.Default())
}

func mustParse(t *testing.T, s string) money.Money {
	t.Helper()
	m, err := money.Parse(s)
	require.NoError(t, err)
	return m
}

func doRPC(t *testing.T, s *Server, method string, params interface{}) Response {
	t.Helper()
	paramsRaw, err := json.Marshal(params)
	require.NoError(t, err)

	req := Request{JSONRPC: "2.0", Method: method, Params: paramsRaw, ID: float64(1)}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq := httptest.NewRequest("POST", "/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleRPC(rec, httpReq)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestOrdersCreateExecutesMarketOrderAndReturnsResult(t *testing.T) {
	s := newTestServer(t)
	resp := doRPC(t, s, "orders.create", map[string]interface{}{
		"user_id": "user-1", "type": "MARKET", "side": "BUY",
		"network": "SOL", "from_token": "USDC", "to_token": "SOL",
		"amount": "10", "max_slippage_bps": 100,
	})
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Result)
}

func TestOrdersCreateRejectsInvalidAmount(t *testing.T) {
	s := newTestServer(t)
	resp := doRPC(t, s, "orders.create", map[string]interface{}{
		"user_id": "user-1", "type": "MARKET", "side": "BUY",
		"network": "SOL", "from_token": "USDC", "to_token": "SOL",
		"amount": "not-a-number",
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidParams, resp.Error.Code)
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	s := newTestServer(t)
	resp := doRPC(t, s, "orders.nonexistent", map[string]interface{}{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, MethodNotFound, resp.Error.Code)
}

func TestOrdersGetUnknownOrderReturnsNotFoundCode(t *testing.T) {
	s := newTestServer(t)
	resp := doRPC(t, s, "orders.get", map[string]interface{}{"order_id": "missing"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeNotFound, resp.Error.Code)
}

func TestP2PPostThenListOpenRoundTrips(t *testing.T) {
	s := newTestServer(t)
	createResp := doRPC(t, s, "p2p.post", map[string]interface{}{
		"maker_id": "maker-1", "side": "SELL", "asset": "SOL", "network": "SOL",
		"amount": "10", "price": "150", "fiat_currency": "USD", "payment_method": "bank_transfer",
	})
	require.Nil(t, createResp.Error)

	listResp := doRPC(t, s, "p2p.listOpen", map[string]interface{}{"asset": "SOL", "network": "SOL"})
	require.Nil(t, listResp.Error)
	orders, ok := listResp.Result.([]interface{})
	require.True(t, ok)
	assert.Len(t, orders, 1)
}

func TestP2PTakeThenMessageRoundTrip(t *testing.T) {
	s := newTestServer(t)
	createResp := doRPC(t, s, "p2p.post", map[string]interface{}{
		"maker_id": "maker-1", "side": "SELL", "asset": "SOL", "network": "SOL",
		"amount": "10", "price": "150", "fiat_currency": "USD", "payment_method": "bank_transfer",
	})
	require.Nil(t, createResp.Error)
	created := createResp.Result.(map[string]interface{})
	orderID := created["ID"].(string)

	takeResp := doRPC(t, s, "p2p.take", map[string]interface{}{"order_id": orderID, "user_id": "taker-1"})
	require.Nil(t, takeResp.Error)

	sendResp := doRPC(t, s, "messages.send", map[string]interface{}{"order_id": orderID, "sender_id": "taker-1", "body": "hi"})
	require.Nil(t, sendResp.Error)

	listResp := doRPC(t, s, "messages.list", map[string]interface{}{"order_id": orderID, "requester_id": "maker-1"})
	require.Nil(t, listResp.Error)
	messages, ok := listResp.Result.([]interface{})
	require.True(t, ok)
	assert.Len(t, messages, 1)
}

func TestMetricsEndpointIsMounted(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	s.mux().ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
}
