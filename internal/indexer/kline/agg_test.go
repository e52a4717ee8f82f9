package kline

import (
	"testing"
	"time"
)

const minute = int64(60_000)

func TestBucketStartMs(t *testing.T) {
	t.Run("offset_alignment", func(t *testing.T) {
		hour := int64(3_600_000)
		off := 30 * minute
		if got := bucketStartMs(0, hour, off); got != -off {
			t.Fatalf("want=%d got=%d", -off, got)
		}
		if got := bucketStartMs(31*minute, hour, off); got != 30*minute {
			t.Fatalf("want=%d got=%d", 30*minute, got)
		}
	})
	t.Run("negative_floor", func(t *testing.T) {
		if got := bucketStartMs(-1, minute, 0); got != -minute {
			t.Fatalf("got=%d", got)
		}
	})
}

func TestTradeAgg_SameBucket(t *testing.T) {
	var closed, live []Bar
	a := NewTradeAgg(time.Minute, 0, 0, func(b Bar) { closed = append(closed, b) }, func(b Bar) { live = append(live, b) })

	a.OfferTrade(Trade{Market: "m", Price: 10, Lots: 2, TsMs: 1_000})
	a.OfferTrade(Trade{Market: "m", Price: 14, Lots: 1, TsMs: 2_000})
	a.OfferTrade(Trade{Market: "m", Price: 9, Lots: 3, TsMs: 59_999})

	if len(closed) != 0 {
		t.Fatalf("bar closed too early: %v", closed)
	}
	if len(live) != 3 || live[2].Closed {
		t.Fatalf("live=%v", live)
	}
	b := live[2]
	if b.Open != 10 || b.High != 14 || b.Low != 9 || b.Close != 9 || b.Volume != 6 || b.Count != 3 {
		t.Fatalf("bad ohlcv: %s", b)
	}
	if b.TF != "1m" || b.StartMs != 0 || b.EndMs != minute {
		t.Fatalf("bad window: %s", b)
	}
}

func TestTradeAgg_NextBucketClosesPrevious(t *testing.T) {
	var closed []Bar
	a := NewTradeAgg(time.Minute, 0, 0, func(b Bar) { closed = append(closed, b) }, nil)

	a.OfferTrade(Trade{Market: "m", Price: 10, Lots: 1, TsMs: 1_000})
	a.OfferTrade(Trade{Market: "m", Price: 11, Lots: 1, TsMs: minute + 5})

	if len(closed) != 1 || !closed[0].Closed || closed[0].Close != 10 {
		t.Fatalf("closed=%v", closed)
	}
	// 已关闭的桶不能再被改
	a.OfferTrade(Trade{Market: "m", Price: 99, Lots: 1, TsMs: 2_000})
	if a.LateDrops() != 1 {
		t.Fatalf("late drops=%d", a.LateDrops())
	}
}

func TestTradeAgg_ReorderWindow(t *testing.T) {
	var closed []Bar
	a := NewTradeAgg(time.Minute, 0, 5*time.Second, func(b Bar) { closed = append(closed, b) }, nil)

	a.OfferTrade(Trade{Market: "m", Price: 10, Lots: 1, TsMs: 59_000})
	a.OfferTrade(Trade{Market: "m", Price: 20, Lots: 1, TsMs: minute + 1_000})
	// 窗口内的迟到成交还能进上一根
	a.OfferTrade(Trade{Market: "m", Price: 30, Lots: 1, TsMs: 59_500})
	if len(closed) != 0 {
		t.Fatalf("closed inside window: %v", closed)
	}
	a.OfferTrade(Trade{Market: "m", Price: 21, Lots: 1, TsMs: minute + 6_000})
	if len(closed) != 1 || closed[0].High != 30 || closed[0].Count != 2 {
		t.Fatalf("closed=%v", closed)
	}
}

func TestTradeAgg_AdvanceClosesQuietMarket(t *testing.T) {
	var closed []Bar
	a := NewTradeAgg(time.Minute, 0, 0, func(b Bar) { closed = append(closed, b) }, nil)
	a.OfferTrade(Trade{Market: "m", Price: 10, Lots: 1, TsMs: 1_000})
	a.Advance(30_000)
	if len(closed) != 0 {
		t.Fatalf("closed early")
	}
	a.Advance(minute)
	if len(closed) != 1 {
		t.Fatalf("closed=%v", closed)
	}
}

func TestRollupAgg_FiveMinutes(t *testing.T) {
	var out []Bar
	r := NewRollupAgg(5*time.Minute, 0, true, func(b Bar) { out = append(out, b) })
	for i, px := range []uint64{10, 12, 8, 11, 9} {
		r.OfferBar(Bar{Market: "m", StartMs: int64(i) * minute, Open: px, High: px + 1, Low: px - 1, Close: px, Volume: 2})
	}
	// 跳过 5m..15m 两个桶
	r.OfferBar(Bar{Market: "m", StartMs: 15 * minute, Open: 7, High: 7, Low: 7, Close: 7, Volume: 1})

	if len(out) != 3 {
		t.Fatalf("want 1 bar + 2 gap bars, got %v", out)
	}
	b := out[0]
	if b.Open != 10 || b.High != 13 || b.Low != 7 || b.Close != 9 || b.Volume != 10 || b.Count != 5 || b.TF != "5m" {
		t.Fatalf("bad rollup: %s", b)
	}
	for _, g := range out[1:] {
		if g.Volume != 0 || g.Open != 9 || g.Close != 9 {
			t.Fatalf("bad gap bar: %s", g)
		}
	}
	r.Flush()
	if len(out) != 4 || out[3].StartMs != 15*minute {
		t.Fatalf("flush: %v", out)
	}
}

func TestPipeline_AllResolutions(t *testing.T) {
	byTF := map[string]int{}
	p := NewPipeline(time.Minute, []time.Duration{5 * time.Minute, time.Hour}, 0, func(b Bar) { byTF[b.TF]++ }, nil)
	for i := int64(0); i < 61; i++ {
		p.OfferTrade(Trade{Market: "m", Price: 100, Lots: 1, TsMs: i * minute})
	}
	// 第 61 笔打开了 60m 那根，前 60 根 1m 关闭
	if byTF["1m"] != 60 || byTF["5m"] != 11 || byTF["1h"] != 0 {
		t.Fatalf("counts=%v", byTF)
	}
	p.Flush()
	if byTF["1m"] != 61 || byTF["5m"] != 13 || byTF["1h"] != 2 {
		t.Fatalf("after flush=%v", byTF)
	}
}

func TestTF(t *testing.T) {
	for _, s := range []string{"1m", "5m", "1h", "1d"} {
		d, err := ParseTF(s)
		if err != nil {
			t.Fatalf("parse %s: %v", s, err)
		}
		if TF(d) != s {
			t.Fatalf("TF(%s)=%s", d, TF(d))
		}
	}
	if _, err := ParseTF("soon"); err == nil {
		t.Fatalf("want error")
	}
}
