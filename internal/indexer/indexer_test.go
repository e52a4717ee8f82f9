package indexer

import (
	"context"
	"errors"
	"testing"

	"clobex.com/internal/indexer/broker"
	"clobex.com/internal/indexer/sink"
	"clobex.com/internal/indexer/store"
	"clobex.com/internal/market"
	"clobex.com/internal/matching"
	"github.com/gagliardetto/solana-go"
	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pk(b byte) solana.PublicKey {
	var k solana.PublicKey
	k[0] = b
	k[31] = 0x3C
	return k
}

var (
	mkt   = pk(1)
	maker = pk(2)
	taker = pk(3)
)

func testMeta() MarketMeta {
	return MarketMeta{ID: mkt, Name: "SOL/USDC", BaseLotSize: 100, QuoteLotSize: 10, BaseDecimals: 2, QuoteDecimals: 2}
}

func fill(orderID, takerID, price, qty uint64, ts int64) market.Notification {
	return market.Notification{
		Kind:           market.OrderFilled,
		Market:         mkt,
		Owner:          maker,
		OrderID:        orderID,
		Taker:          taker,
		TakerOrderID:   takerID,
		Side:           matching.Ask,
		Price:          price,
		BaseLotsFilled: qty,
		Timestamp:      ts,
	}
}

type harness struct {
	x      *Indexer
	broker *broker.MemBroker
	trades *store.MemoryStore
	sink   *sink.MemorySink
}

func newHarness(t *testing.T, ts store.TradeStore) *harness {
	t.Helper()
	h := &harness{broker: broker.NewMemBroker(256), trades: store.NewMemoryStore(0), sink: sink.NewMemorySink(0)}
	if ts == nil {
		ts = h.trades
	}
	x, err := New(Config{RollupTFs: []string{"5m"}, TradeBatch: 100}, []MarketMeta{testMeta()}, h.broker, ts, h.sink)
	require.NoError(t, err)
	h.x = x
	return h
}

func TestMarketMeta_Conversions(t *testing.T) {
	m := testMeta()
	assert.Equal(t, "3", m.Size(3).String())
	assert.Equal(t, "12", m.Price(120).String())

	m = MarketMeta{BaseLotSize: 1_000_000, QuoteLotSize: 1, BaseDecimals: 9, QuoteDecimals: 6}
	// 1 lot = 0.001 base，价格 25 quote lot/lot = 0.000025 quote / 0.001 base
	assert.Equal(t, "0.001", m.Size(1).String())
	assert.True(t, m.Price(25).Equal(decimal.RequireFromString("0.025")), m.Price(25).String())
	assert.True(t, MarketMeta{}.Price(1).IsZero())
}

func TestNew_RejectsBadTFs(t *testing.T) {
	_, err := New(Config{BaseTF: "1x"}, nil, broker.NewMemBroker(1), store.NewMemoryStore(1), sink.NewMemorySink(1))
	assert.Error(t, err)
	_, err = New(Config{BaseTF: "5m", RollupTFs: []string{"1m"}}, nil, broker.NewMemBroker(1), store.NewMemoryStore(1), sink.NewMemorySink(1))
	assert.Error(t, err)
	_, err = New(Config{BaseTF: "2m", RollupTFs: []string{"5m"}}, nil, broker.NewMemBroker(1), store.NewMemoryStore(1), sink.NewMemorySink(1))
	assert.Error(t, err)
}

func TestIndexer_FillsBecomeTradesAndCandles(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orders, err := h.broker.Subscribe(ctx, []string{"order.>"})
	require.NoError(t, err)
	trades, err := h.broker.Subscribe(ctx, []string{"trade.*"})
	require.NoError(t, err)
	closed, err := h.broker.Subscribe(ctx, []string{"candle." + mkt.String() + ".1m"})
	require.NoError(t, err)

	h.x.Handle(ctx, market.Notification{Kind: market.OrderPlaced, Market: mkt, Owner: maker, OrderID: 1, Side: matching.Ask, Price: 120, BaseLotsRemaining: 5, Timestamp: 500})
	h.x.Handle(ctx, fill(1, 2, 120, 3, 1_000))
	h.x.Handle(ctx, fill(1, 3, 130, 2, 61_000))

	msg := <-orders
	assert.Equal(t, "order.placed", msg.Topic)
	msg = <-orders
	assert.Equal(t, "order.filled", msg.Topic)

	msg = <-trades
	assert.Equal(t, TradeTopic(mkt.String()), msg.Topic)
	var tr store.Trade
	require.NoError(t, json.Unmarshal(msg.Payload, &tr))
	assert.Equal(t, "bid", tr.TakerSide)
	assert.Equal(t, "12", tr.Price.String())

	// 成交还没落库，Tick 之后才有
	got, _ := h.trades.RecentTrades(ctx, mkt.String(), 1, 10)
	assert.Empty(t, got)
	h.x.Tick(ctx, 61_500)
	got, _ = h.trades.RecentTrades(ctx, mkt.String(), 1, 10)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(3), got[0].TakerOrderID)
	assert.Equal(t, maker.String(), got[0].Maker)
	assert.Equal(t, taker.String(), got[0].Taker)
	assert.Equal(t, "2", got[0].Size.String())

	candles := h.sink.Candles(mkt.String(), "1m", 0)
	require.Len(t, candles, 2)
	assert.True(t, candles[0].Closed)
	assert.Equal(t, "12", candles[0].Close.String())
	assert.Equal(t, "3", candles[0].Volume.String())
	assert.Equal(t, "SOL/USDC", candles[0].Name)
	assert.False(t, candles[1].Closed)
	assert.Equal(t, "13", candles[1].Close.String())

	// 两根实时快照之后才是第一根的关闭
	var seen []sink.Candle
	for range 3 {
		var bar sink.Candle
		require.NoError(t, json.Unmarshal((<-closed).Payload, &bar))
		seen = append(seen, bar)
	}
	assert.False(t, seen[0].Closed)
	assert.False(t, seen[1].Closed)
	assert.Equal(t, int64(60_000), seen[1].StartMs)
	assert.True(t, seen[2].Closed)
	assert.Equal(t, int64(0), seen[2].StartMs)
}

func TestIndexer_RunFlushesOnClose(t *testing.T) {
	h := newHarness(t, nil)
	in := make(chan market.Notification, 4)
	in <- fill(1, 2, 120, 3, 1_000)
	in <- fill(1, 3, 110, 1, 61_000)
	close(in)
	require.NoError(t, h.x.Run(context.Background(), in))

	got, _ := h.trades.RecentTrades(context.Background(), mkt.String(), 1, 10)
	assert.Len(t, got, 2)

	five := h.sink.Candles(mkt.String(), "5m", 0)
	require.Len(t, five, 1)
	assert.True(t, five[0].Closed)
	assert.Equal(t, "12", five[0].High.String())
	assert.Equal(t, "11", five[0].Low.String())
	assert.Equal(t, "4", five[0].Volume.String())
	for _, c := range h.sink.Candles(mkt.String(), "1m", 0) {
		assert.True(t, c.Closed)
	}
}

type flakyStore struct {
	*store.MemoryStore
	fail bool
	n    int
}

func (f *flakyStore) SaveTrades(ctx context.Context, trades []store.Trade) error {
	f.n++
	if f.fail {
		return errors.New("mysql down")
	}
	return f.MemoryStore.SaveTrades(ctx, trades)
}

func TestIndexer_RetriesFailedTrades(t *testing.T) {
	fs := &flakyStore{MemoryStore: store.NewMemoryStore(0), fail: true}
	h := newHarness(t, fs)
	ctx := context.Background()
	h.x.Handle(ctx, fill(1, 2, 120, 3, 1_000))
	h.x.Tick(ctx, 2_000)
	got, _ := fs.RecentTrades(ctx, mkt.String(), 1, 10)
	assert.Empty(t, got)

	fs.fail = false
	h.x.Tick(ctx, 3_000)
	got, _ = fs.RecentTrades(ctx, mkt.String(), 1, 10)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, fs.n)
}

func TestIndexer_UnknownMarketSkipsTrade(t *testing.T) {
	h := newHarness(t, nil)
	n := fill(1, 2, 120, 3, 1_000)
	n.Market = pk(9)
	h.x.Handle(context.Background(), n)
	h.x.Tick(context.Background(), 2_000)
	got, _ := h.trades.RecentTrades(context.Background(), pk(9).String(), 1, 10)
	assert.Empty(t, got)
}
