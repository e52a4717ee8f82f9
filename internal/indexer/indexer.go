package indexer

import (
	"context"
	"fmt"
	"time"

	"clobex.com/internal/engine"
	"clobex.com/internal/indexer/broker"
	"clobex.com/internal/indexer/kline"
	"clobex.com/internal/indexer/sink"
	"clobex.com/internal/indexer/store"
	"clobex.com/internal/market"
	"clobex.com/pkg/logger"
	"clobex.com/pkg/metrics"
	"clobex.com/pkg/safe"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
)

type Config struct {
	BaseTF        string        `mapstructure:"baseTF"`
	RollupTFs     []string      `mapstructure:"rollupTFs"`
	Reorder       time.Duration `mapstructure:"reorder"`
	FlushInterval time.Duration `mapstructure:"flushInterval"`
	TradeBatch    int           `mapstructure:"tradeBatch"`
	MaxPending    int           `mapstructure:"maxPending"`
}

func (c *Config) defaults() {
	if c.BaseTF == "" {
		c.BaseTF = "1m"
	}
	if c.RollupTFs == nil {
		c.RollupTFs = []string{"5m", "1h", "1d"}
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.TradeBatch <= 0 {
		c.TradeBatch = 200
	}
	if c.MaxPending <= 0 {
		c.MaxPending = 50 * c.TradeBatch
	}
}

func TradeTopic(market string) string      { return "trade." + market }
func CandleTopic(market, tf string) string { return "candle." + market + "." + tf }

// Indexer 消费引擎通知：原样广播，成交落库，聚合 K 线。单 goroutine 跑，内部不加锁
type Indexer struct {
	cfg     Config
	markets map[string]MarketMeta
	broker  broker.Broker
	trades  store.TradeStore
	candles sink.CandleSink
	pipe    *kline.Pipeline
	now     func() time.Time

	ctx     context.Context // 当前 Handle/Tick 的 ctx，给 pipeline 回调用
	pending []store.Trade
}

func New(cfg Config, markets []MarketMeta, b broker.Broker, trades store.TradeStore, candles sink.CandleSink) (*Indexer, error) {
	cfg.defaults()
	base, err := kline.ParseTF(cfg.BaseTF)
	if err != nil {
		return nil, fmt.Errorf("base tf: %w", err)
	}
	rollups := make([]time.Duration, 0, len(cfg.RollupTFs))
	for _, s := range cfg.RollupTFs {
		d, err := kline.ParseTF(s)
		if err != nil {
			return nil, fmt.Errorf("rollup tf: %w", err)
		}
		if d <= base || d%base != 0 {
			return nil, fmt.Errorf("rollup tf %s is not a multiple of %s", s, cfg.BaseTF)
		}
		rollups = append(rollups, d)
	}
	x := &Indexer{
		cfg:     cfg,
		markets: make(map[string]MarketMeta, len(markets)),
		broker:  b,
		trades:  trades,
		candles: candles,
		now:     time.Now,
		ctx:     context.Background(),
	}
	for _, m := range markets {
		x.markets[m.ID.String()] = m
	}
	x.pipe = kline.NewPipeline(base, rollups, cfg.Reorder, x.onBar, x.onBar)
	return x, nil
}

// Run 读到 ctx 结束或 in 关闭。in 关闭算正常结束，未收口的 K 线也一并输出
func (x *Indexer) Run(ctx context.Context, in <-chan market.Notification) error {
	ticker := time.NewTicker(x.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			x.shutdown(ctx, false)
			return ctx.Err()
		case n, ok := <-in:
			if !ok {
				x.shutdown(ctx, true)
				return nil
			}
			x.Handle(ctx, n)
		case t := <-ticker.C:
			x.Tick(ctx, t.UnixMilli())
		}
	}
}

func (x *Indexer) shutdown(ctx context.Context, flushBars bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	x.ctx = ctx
	if flushBars {
		x.pipe.Flush()
	}
	x.flushTrades(ctx)
	logger.Info(ctx, "indexer stopped", zap.Int64("late_drops", x.pipe.LateDrops()), zap.Int("pending_trades", len(x.pending)))
}

// Handle 处理一条通知
func (x *Indexer) Handle(ctx context.Context, n market.Notification) {
	x.ctx = ctx
	payload, err := engine.EncodeNotification(n)
	if err == nil {
		err = x.broker.Publish(ctx, n.Kind.Topic(), payload)
	}
	if err != nil {
		x.fail(ctx, "publish", err)
	}

	if n.Kind != market.OrderFilled && n.Kind != market.OrderPartiallyFilled {
		return
	}
	id := n.Market.String()
	meta, ok := x.markets[id]
	if !ok {
		x.fail(ctx, "meta", fmt.Errorf("unknown market %s", id))
		return
	}
	t := x.trade(meta, n)
	metrics.IndexerTrades.WithLabelValues(meta.label()).Inc()
	if b, err := json.Marshal(t); err == nil {
		if err := x.broker.Publish(ctx, TradeTopic(id), b); err != nil {
			x.fail(ctx, "publish", err)
		}
	}
	x.pending = append(x.pending, t)
	x.pipe.OfferTrade(kline.Trade{Market: id, Price: n.Price, Lots: n.BaseLotsFilled, TsMs: n.Timestamp})
	if len(x.pending) >= x.cfg.TradeBatch {
		x.flushTrades(ctx)
	}
}

// Tick 推进 watermark 并落库
func (x *Indexer) Tick(ctx context.Context, nowMs int64) {
	x.ctx = ctx
	x.pipe.Advance(nowMs)
	x.flushTrades(ctx)
}

// 成交通知里 Owner/Side 是 maker 的，taker 方向取反
func (x *Indexer) trade(meta MarketMeta, n market.Notification) store.Trade {
	return store.Trade{
		Market:       n.Market.String(),
		TakerOrderID: n.TakerOrderID,
		MakerOrderID: n.OrderID,
		Maker:        n.Owner.String(),
		Taker:        n.Taker.String(),
		TakerSide:    n.Side.Opposite().String(),
		PriceLots:    n.Price,
		BaseLots:     n.BaseLotsFilled,
		Price:        meta.Price(n.Price),
		Size:         meta.Size(n.BaseLotsFilled),
		TsMs:         n.Timestamp,
	}
}

func (x *Indexer) flushTrades(ctx context.Context) {
	if len(x.pending) == 0 {
		return
	}
	// 存储驱动 panic 也按失败处理，索引器不能因此退出
	if err := safe.Call("trade-store", func() error { return x.trades.SaveTrades(ctx, x.pending) }); err != nil {
		x.fail(ctx, "store", err)
		// 留着下次重试，积压太多丢最老的
		if over := len(x.pending) - x.cfg.MaxPending; over > 0 {
			metrics.IndexerErrors.WithLabelValues("store_dropped").Add(float64(over))
			x.pending = append(x.pending[:0:0], x.pending[over:]...)
		}
		return
	}
	x.pending = x.pending[:0]
}

func (x *Indexer) onBar(b kline.Bar) {
	meta := x.markets[b.Market]
	c := sink.Candle{
		Market:  b.Market,
		Name:    meta.Name,
		TF:      b.TF,
		StartMs: b.StartMs,
		EndMs:   b.EndMs,
		Open:    meta.Price(b.Open),
		High:    meta.Price(b.High),
		Low:     meta.Price(b.Low),
		Close:   meta.Price(b.Close),
		Volume:  meta.Size(b.Volume),
		Count:   b.Count,
		Closed:  b.Closed,
	}
	if b.Closed {
		metrics.CandlesEmitted.WithLabelValues(b.TF).Inc()
	}
	if err := safe.Call("candle-sink", func() error { return x.candles.WriteCandle(x.ctx, c) }); err != nil {
		x.fail(x.ctx, "sink", err)
	}
	payload, err := json.Marshal(c)
	if err == nil {
		err = x.broker.Publish(x.ctx, CandleTopic(b.Market, b.TF), payload)
	}
	if err != nil {
		x.fail(x.ctx, "publish", err)
	}
}

func (x *Indexer) fail(ctx context.Context, stage string, err error) {
	metrics.IndexerErrors.WithLabelValues(stage).Inc()
	logger.Warn(ctx, "indexer "+stage+" failed", zap.Error(err))
}

func (m MarketMeta) label() string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID.String()
}
