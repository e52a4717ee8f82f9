package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candle(start int64, close string, closed bool) Candle {
	d := decimal.RequireFromString(close)
	return Candle{Market: "m", TF: "1m", StartMs: start, EndMs: start + 60_000,
		Open: d, High: d, Low: d, Close: d, Volume: decimal.NewFromInt(1), Count: 1, Closed: closed}
}

func TestMemorySink_UpsertOrderAndKeep(t *testing.T) {
	s := NewMemorySink(3)
	ctx := context.Background()
	require.NoError(t, s.WriteCandle(ctx, candle(120_000, "1.0", false)))
	require.NoError(t, s.WriteCandle(ctx, candle(0, "0.5", true)))
	require.NoError(t, s.WriteCandle(ctx, candle(60_000, "0.7", true)))
	// 同一根再写一次，覆盖
	require.NoError(t, s.WriteCandle(ctx, candle(120_000, "1.1", true)))

	got := s.Candles("m", "1m", 0)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{0, 60_000, 120_000}, []int64{got[0].StartMs, got[1].StartMs, got[2].StartMs})
	assert.True(t, got[2].Closed)
	assert.Equal(t, "1.1", got[2].Close.String())

	require.NoError(t, s.WriteCandle(ctx, candle(180_000, "1.2", false)))
	got = s.Candles("m", "1m", 2)
	require.Len(t, got, 2)
	assert.Equal(t, int64(120_000), got[0].StartMs)
	assert.Equal(t, int64(180_000), got[1].StartMs)
	assert.Len(t, s.Candles("m", "1m", 0), 3)
	assert.Empty(t, s.Candles("m", "5m", 0))
}

type failSink struct{ n int }

func (f *failSink) WriteCandle(context.Context, Candle) error { f.n++; return errors.New("down") }
func (f *failSink) Close() error                              { return nil }

func TestTee_WritesAllAndReportsError(t *testing.T) {
	mem := NewMemorySink(0)
	bad := &failSink{}
	tee := Tee{bad, mem}
	err := tee.WriteCandle(context.Background(), candle(0, "1", true))
	require.Error(t, err)
	assert.Equal(t, 1, bad.n)
	assert.Len(t, mem.Candles("m", "1m", 0), 1)
	assert.NoError(t, tee.Close())
}

func TestCandlePoint(t *testing.T) {
	p := candlePoint(candle(60_000, "2.5", true))
	assert.Equal(t, measurement, p.Name())
	assert.Equal(t, time.UnixMilli(60_000), p.Time())
	tags := map[string]string{}
	for _, tg := range p.TagList() {
		tags[tg.Key] = tg.Value
	}
	assert.Equal(t, map[string]string{"market": "m", "tf": "1m"}, tags)
	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, 2.5, fields["c"])
	assert.Equal(t, true, fields["closed"])
}
