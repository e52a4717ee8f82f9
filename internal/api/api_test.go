package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"clobex.com/internal/engine"
	"clobex.com/internal/funds"
	"clobex.com/internal/indexer/sink"
	"clobex.com/internal/indexer/store"
	"clobex.com/internal/market"
	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pk(b byte) solana.PublicKey {
	var k solana.PublicKey
	k[0] = b
	k[31] = 0x5A
	return k
}

var (
	marketID  = pk(0x10)
	baseMint  = pk(0xB0)
	quoteMint = pk(0xC0)
	admin     = pk(0xAD)
	alice     = pk(0x01)
	bob       = pk(0x02)
)

type response struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	r       *gin.Engine
	vault   *funds.MemoryVault
	trades  *store.MemoryStore
	candles *sink.MemorySink
}

func setup(t *testing.T, cfg Config) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	vault := funds.NewMemoryVault(funds.Mints{Base: baseMint, Quote: quoteMint})
	for _, who := range []solana.PublicKey{alice, bob} {
		require.NoError(t, vault.Deposit(who, baseMint, 1_000_000))
		require.NoError(t, vault.Deposit(who, quoteMint, 1_000_000))
	}
	eng := engine.NewEngine(engine.EngineConfig{Now: func() int64 { return 1_700_000_000_000 }}, engine.NewChanBus(1024))
	require.NoError(t, eng.AddMarket(marketID, market.Config{
		BaseMint:     baseMint,
		QuoteMint:    quoteMint,
		Admin:        admin,
		BaseLotSize:  100,
		QuoteLotSize: 10,
		MakerFeeBps:  10,
		TakerFeeBps:  20,
		MinOrderSize: 100,
	}, vault))
	t.Cleanup(eng.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	f := &fixture{vault: vault, trades: store.NewMemoryStore(0), candles: sink.NewMemorySink(0)}
	f.r = NewRouter(ctx, cfg, NewHandler(eng, f.trades, f.candles, 16), nil)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, response) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	var resp response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w.Code, resp
}

func (f *fixture) ok(t *testing.T, method, path string, body any, out any) {
	t.Helper()
	code, resp := f.do(t, method, path, body)
	require.Equal(t, http.StatusOK, code, "%s %s: %+v", method, path, resp)
	if out != nil {
		require.NoError(t, json.Unmarshal(resp.Data, out))
	}
}

func base(p string) string { return "/v1/markets/" + marketID.String() + p }

func TestAPI_OrderLifecycle(t *testing.T) {
	f := setup(t, Config{})
	for _, who := range []solana.PublicKey{alice, bob} {
		var acct accountDTO
		f.ok(t, http.MethodPost, base("/accounts"), initAccountReq{Owner: who.String()}, &acct)
		assert.Equal(t, who.String(), acct.Owner)
	}

	var ask placeDTO
	f.ok(t, http.MethodPost, base("/orders"), placeReq{Signer: alice.String(), Side: "ask", Price: 3, MaxBaseQty: 200, ClientOrderID: 7}, &ask)
	assert.Equal(t, uint64(1), ask.OrderID)
	assert.True(t, ask.Rested)
	assert.Equal(t, uint64(200), ask.Locked)

	var book bookDTO
	f.ok(t, http.MethodGet, base("/book?depth=10"), nil, &book)
	require.Len(t, book.Asks, 1)
	assert.Empty(t, book.Bids)
	assert.Equal(t, uint64(7), book.Asks[0].ClientOrderID)
	assert.Equal(t, alice.String(), book.Asks[0].Owner)

	var order orderDTO
	f.ok(t, http.MethodGet, base("/orders/1"), nil, &order)
	assert.Equal(t, "ask", order.Side)
	assert.Equal(t, uint64(2), order.Quantity)

	var bid placeDTO
	f.ok(t, http.MethodPost, base("/orders"), placeReq{Signer: bob.String(), Side: "buy", Type: "ioc", Price: 3, MaxBaseQty: 200}, &bid)
	assert.Equal(t, uint64(2), bid.Filled)
	require.Len(t, bid.Fills, 1)
	assert.Equal(t, alice.String(), bid.Fills[0].Maker)

	var events []eventDTO
	f.ok(t, http.MethodGet, base("/events"), nil, &events)
	require.Len(t, events, 1)
	assert.Equal(t, alice.String(), events[0].Maker)
	assert.Equal(t, bob.String(), events[0].Taker)

	var crank map[string]any
	f.ok(t, http.MethodPost, base("/crank"), nil, &crank)
	assert.EqualValues(t, 1, crank["consumed"])

	var acct accountDTO
	f.ok(t, http.MethodGet, base("/owners/"+alice.String()+"/account"), nil, &acct)
	assert.Equal(t, uint64(60), acct.QuoteFree)
	assert.Empty(t, acct.Orders)

	var settled map[string]any
	f.ok(t, http.MethodPost, base("/settle"), signerReq{Signer: alice.String()}, &settled)
	assert.EqualValues(t, 60, settled["quote"])
	assert.Equal(t, uint64(1_000_060), f.vault.Balance(alice, quoteMint))

	var mkts []marketDTO
	f.ok(t, http.MethodGet, "/v1/markets", nil, &mkts)
	require.Len(t, mkts, 1)
	assert.Equal(t, "active", mkts[0].Status)
	assert.Equal(t, uint64(3), mkts[0].NextOrderID)
}

func TestAPI_CancelRestingOrder(t *testing.T) {
	f := setup(t, Config{})
	f.ok(t, http.MethodPost, base("/accounts"), initAccountReq{Owner: bob.String()}, nil)
	f.ok(t, http.MethodPost, base("/orders"), placeReq{Signer: bob.String(), Side: "bid", Price: 4, MaxBaseQty: 300}, nil)
	assert.Equal(t, uint64(1_000_000-120), f.vault.Balance(bob, quoteMint))

	var mine bookDTO
	f.ok(t, http.MethodGet, base("/owners/"+bob.String()+"/orders"), nil, &mine)
	require.Len(t, mine.Bids, 1)

	var out map[string]any
	f.ok(t, http.MethodDelete, base("/orders/1?signer="+bob.String()), nil, &out)
	assert.EqualValues(t, 120, out["released"])
	assert.Equal(t, uint64(1_000_000), f.vault.Balance(bob, quoteMint))

	code, resp := f.do(t, http.MethodGet, base("/orders/1"), nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, 6030, resp.Code)
}

func TestAPI_ErrorMapping(t *testing.T) {
	f := setup(t, Config{})
	f.ok(t, http.MethodPost, base("/accounts"), initAccountReq{Owner: alice.String()}, nil)

	code, _ := f.do(t, http.MethodGet, "/v1/markets/not-a-key/book", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp := f.do(t, http.MethodGet, "/v1/markets/"+pk(0x77).String(), nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, 6301, resp.Code)

	code, _ = f.do(t, http.MethodPost, base("/orders"), placeReq{Signer: alice.String(), Side: "up", Price: 1, MaxBaseQty: 100})
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = f.do(t, http.MethodPost, base("/accounts"), initAccountReq{Owner: alice.String()})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 6303, resp.Code)

	// 不是 admin
	code, resp = f.do(t, http.MethodPut, base("/status"), statusReq{Signer: alice.String(), Status: "paused"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, 6040, resp.Code)

	// 低于最小下单量
	code, resp = f.do(t, http.MethodPost, base("/orders"), placeReq{Signer: alice.String(), Side: "ask", Price: 1, MaxBaseQty: 50})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, 6052, resp.Code)

	// 余额不够
	code, resp = f.do(t, http.MethodPost, base("/orders"), placeReq{Signer: alice.String(), Side: "ask", Price: 1, MaxBaseQty: 5_000_000})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, 6100, resp.Code)

	var m marketDTO
	f.ok(t, http.MethodPut, base("/status"), statusReq{Signer: admin.String(), Status: "paused"}, &m)
	assert.Equal(t, "paused", m.Status)
	code, resp = f.do(t, http.MethodPost, base("/orders"), placeReq{Signer: alice.String(), Side: "ask", Price: 1, MaxBaseQty: 100})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, 6051, resp.Code)
}

func TestAPI_TradesAndCandles(t *testing.T) {
	f := setup(t, Config{})
	ctx := context.Background()
	require.NoError(t, f.trades.SaveTrades(ctx, []store.Trade{{Market: marketID.String(), TakerOrderID: 2, MakerOrderID: 1, TsMs: 5}}))
	require.NoError(t, f.candles.WriteCandle(ctx, sink.Candle{Market: marketID.String(), TF: "5m", StartMs: 0}))

	var trades []store.Trade
	f.ok(t, http.MethodGet, base("/trades?limit=10"), nil, &trades)
	require.Len(t, trades, 1)
	assert.Equal(t, uint64(2), trades[0].TakerOrderID)

	var candles []sink.Candle
	f.ok(t, http.MethodGet, base("/candles?tf=5m"), nil, &candles)
	assert.Len(t, candles, 1)
	f.ok(t, http.MethodGet, base("/candles"), nil, &candles)
	assert.Empty(t, candles)

	code, _ := f.do(t, http.MethodGet, base("/trades?page=x"), nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAPI_RateLimitAndRequestID(t *testing.T) {
	f := setup(t, Config{Rate: 0.001, Burst: 1})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "rid-1")
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rid-1", w.Header().Get("X-Request-Id"))

	w = httptest.NewRecorder()
	f.r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}
