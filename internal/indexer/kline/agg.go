package kline

import (
	"fmt"
	"sort"
	"time"
)

// Trade 聚合器的输入。价格单位 quote lot / base lot，数量单位 base lot，
// 都是撮合里的整数，聚合过程不需要定点数转换
type Trade struct {
	Market string
	Price  uint64
	Lots   uint64
	TsMs   int64
}

// Bar K 线（OHLCV），覆盖 [StartMs, EndMs)
type Bar struct {
	Market   string        `json:"market"`
	Interval time.Duration `json:"-"`
	TF       string        `json:"tf"`
	StartMs  int64         `json:"startMs"`
	EndMs    int64         `json:"endMs"`

	Open  uint64 `json:"open"`
	High  uint64 `json:"high"`
	Low   uint64 `json:"low"`
	Close uint64 `json:"close"`

	Volume uint64 `json:"volume"`
	Count  int64  `json:"count"` // TradeAgg 是成交笔数，RollupAgg 是合并的子 bar 数
	Closed bool   `json:"closed"`
}

func (b Bar) String() string {
	return fmt.Sprintf("%s %s [%d,%d) O=%d H=%d L=%d C=%d V=%d n=%d",
		b.Market, b.TF, b.StartMs, b.EndMs, b.Open, b.High, b.Low, b.Close, b.Volume, b.Count)
}

// TradeAgg 按成交构建最小周期的 bar。
// 每个 market 按事件时间推进 watermark，EndMs <= watermark 的 bar 才关闭输出；
// 超过乱序窗口的迟到成交直接丢。
type TradeAgg struct {
	intervalMs      int64
	offsetMs        int64 // 桶对齐偏移，0 = UTC
	reorderWindowMs int64

	markets map[string]*marketState

	emit func(Bar) // bar 关闭
	live func(Bar) // 每笔成交后当前 bar 的快照，可为空

	lateDrops int64
}

type marketState struct {
	latestTsMs         int64
	bars               map[int64]*Bar // key = bucketStartMs
	lastEmittedStartMs int64
	hasEmitted         bool
}

func NewTradeAgg(interval, tzOffset, reorderWindow time.Duration, emit, live func(Bar)) *TradeAgg {
	return &TradeAgg{
		intervalMs:      interval.Milliseconds(),
		offsetMs:        tzOffset.Milliseconds(),
		reorderWindowMs: reorderWindow.Milliseconds(),
		markets:         make(map[string]*marketState, 16),
		emit:            emit,
		live:            live,
	}
}

func (a *TradeAgg) LateDrops() int64 { return a.lateDrops }

func (a *TradeAgg) OfferTrade(t Trade) {
	st := a.markets[t.Market]
	if st == nil {
		st = &marketState{bars: make(map[int64]*Bar, 4)}
		a.markets[t.Market] = st
	}
	if t.TsMs > st.latestTsMs {
		st.latestTsMs = t.TsMs
	}
	watermark := st.latestTsMs - a.reorderWindowMs

	bs := bucketStartMs(t.TsMs, a.intervalMs, a.offsetMs)
	// 迟到：超过窗口，或者所在桶已经输出过
	if (a.reorderWindowMs > 0 && t.TsMs < watermark) || (st.hasEmitted && bs <= st.lastEmittedStartMs) {
		a.lateDrops++
		a.emitReady(st, watermark)
		return
	}

	b := st.bars[bs]
	if b == nil {
		b = &Bar{
			Market:   t.Market,
			Interval: time.Duration(a.intervalMs) * time.Millisecond,
			TF:       TF(time.Duration(a.intervalMs) * time.Millisecond),
			StartMs:  bs,
			EndMs:    bs + a.intervalMs,
			Open:     t.Price,
			High:     t.Price,
			Low:      t.Price,
			Close:    t.Price,
			Volume:   t.Lots,
			Count:    1,
		}
		st.bars[bs] = b
	} else {
		b.High = max(b.High, t.Price)
		b.Low = min(b.Low, t.Price)
		b.Close = t.Price
		b.Volume += t.Lots
		b.Count++
	}
	if a.live != nil {
		a.live(*b)
	}
	a.emitReady(st, watermark)
}

// Advance 没有成交时用墙上时间推进 watermark，让安静的市场也能按时收 bar
func (a *TradeAgg) Advance(nowMs int64) {
	for _, st := range a.markets {
		if nowMs > st.latestTsMs {
			st.latestTsMs = nowMs
		}
		a.emitReady(st, st.latestTsMs-a.reorderWindowMs)
	}
}

func (a *TradeAgg) emitReady(st *marketState, watermarkMs int64) {
	ready := make([]int64, 0, 4)
	for start, b := range st.bars {
		if b.EndMs <= watermarkMs {
			ready = append(ready, start)
		}
	}
	a.emitSorted(st, ready)
}

func (a *TradeAgg) emitSorted(st *marketState, starts []int64) {
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	for _, start := range starts {
		b := st.bars[start]
		delete(st.bars, start)
		b.Closed = true
		a.emit(*b)
		st.lastEmittedStartMs = start
		st.hasEmitted = true
	}
}

// Flush 退出时把没关闭的 bar 全部输出
func (a *TradeAgg) Flush() {
	for _, st := range a.markets {
		starts := make([]int64, 0, len(st.bars))
		for start := range st.bars {
			starts = append(starts, start)
		}
		a.emitSorted(st, starts)
	}
}

// RollupAgg 小周期 bar 合成大周期：1m -> 5m / 1h / 1d。
// 输入必须是已关闭、按时间递增的子 bar。
type RollupAgg struct {
	intervalMs int64
	offsetMs   int64
	cur        map[string]*Bar
	emit       func(Bar)

	fillGaps  bool // 跳过的桶补空 K，OHLC 都用上一根的 close
	lastClose map[string]uint64
}

func NewRollupAgg(interval, tzOffset time.Duration, fillGaps bool, emit func(Bar)) *RollupAgg {
	return &RollupAgg{
		intervalMs: interval.Milliseconds(),
		offsetMs:   tzOffset.Milliseconds(),
		cur:        make(map[string]*Bar, 16),
		emit:       emit,
		fillGaps:   fillGaps,
		lastClose:  make(map[string]uint64, 16),
	}
}

func (a *RollupAgg) newBar(market string, bs int64, child Bar) Bar {
	d := time.Duration(a.intervalMs) * time.Millisecond
	return Bar{
		Market:   market,
		Interval: d,
		TF:       TF(d),
		StartMs:  bs,
		EndMs:    bs + a.intervalMs,
		Open:     child.Open,
		High:     child.High,
		Low:      child.Low,
		Close:    child.Close,
		Volume:   child.Volume,
		Count:    1,
	}
}

func (a *RollupAgg) OfferBar(child Bar) {
	bs := bucketStartMs(child.StartMs, a.intervalMs, a.offsetMs)
	cb := a.cur[child.Market]
	if cb == nil {
		b := a.newBar(child.Market, bs, child)
		a.cur[child.Market] = &b
		return
	}

	switch {
	case bs > cb.StartMs:
		cb.Closed = true
		a.emit(*cb)
		a.lastClose[child.Market] = cb.Close
		if a.fillGaps {
			c := cb.Close
			for next := cb.StartMs + a.intervalMs; next < bs; next += a.intervalMs {
				a.emit(Bar{
					Market:   child.Market,
					Interval: cb.Interval,
					TF:       cb.TF,
					StartMs:  next,
					EndMs:    next + a.intervalMs,
					Open:     c,
					High:     c,
					Low:      c,
					Close:    c,
					Closed:   true,
				})
			}
		}
		*cb = a.newBar(child.Market, bs, child)
	case bs < cb.StartMs:
		// 乱序子 bar 丢弃
	default:
		cb.High = max(cb.High, child.High)
		cb.Low = min(cb.Low, child.Low)
		cb.Close = child.Close
		cb.Volume += child.Volume
		cb.Count++
	}
}

func (a *RollupAgg) Flush() {
	for m, cb := range a.cur {
		if cb.Count > 0 {
			cb.Closed = true
			a.emit(*cb)
			a.lastClose[m] = cb.Close
		}
		delete(a.cur, m)
	}
}

// Pipeline 最小周期按成交聚合，其余周期从它卷上去
type Pipeline struct {
	base    *TradeAgg
	rollups []*RollupAgg
}

// NewPipeline emit 收到所有周期的关闭 bar，live 只收最小周期的实时 bar
func NewPipeline(base time.Duration, rollups []time.Duration, reorder time.Duration, emit, live func(Bar)) *Pipeline {
	p := &Pipeline{}
	for _, d := range rollups {
		p.rollups = append(p.rollups, NewRollupAgg(d, 0, false, emit))
	}
	p.base = NewTradeAgg(base, 0, reorder, func(b Bar) {
		emit(b)
		for _, r := range p.rollups {
			r.OfferBar(b)
		}
	}, live)
	return p
}

func (p *Pipeline) OfferTrade(t Trade) { p.base.OfferTrade(t) }
func (p *Pipeline) Advance(nowMs int64) { p.base.Advance(nowMs) }
func (p *Pipeline) LateDrops() int64    { return p.base.LateDrops() }

func (p *Pipeline) Flush() {
	p.base.Flush()
	for _, r := range p.rollups {
		r.Flush()
	}
}

// bucketStartMs ((ts+off)/interval)*interval - off，负数时间戳向下取整
func bucketStartMs(tsMs, intervalMs, offsetMs int64) int64 {
	x := tsMs + offsetMs
	q := x / intervalMs
	if x%intervalMs < 0 {
		q--
	}
	return q*intervalMs - offsetMs
}

// TF 周期的短名，用在 topic 和存储 tag 里
func TF(d time.Duration) string {
	switch d {
	case time.Minute:
		return "1m"
	case 5 * time.Minute:
		return "5m"
	case 15 * time.Minute:
		return "15m"
	case time.Hour:
		return "1h"
	case 4 * time.Hour:
		return "4h"
	case 24 * time.Hour:
		return "1d"
	}
	if d > 0 && d%time.Second == 0 {
		return fmt.Sprintf("%ds", int64(d/time.Second))
	}
	return d.String()
}

// ParseTF TF 的反向，配置里写 "1m"/"5m"/"1h"/"1d"
func ParseTF(s string) (time.Duration, error) {
	switch s {
	case "1d":
		return 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("kline: bad resolution %q", s)
	}
	return d, nil
}
