package sink

import (
	"context"
	"sort"
	"sync"
)

type seriesKey struct {
	market, tf string
}

// MemorySink 每个 (market, tf) 留最近 keep 根，给 API 查询
type MemorySink struct {
	mu     sync.RWMutex
	keep   int
	series map[seriesKey][]Candle // 按 StartMs 升序
}

func NewMemorySink(keep int) *MemorySink {
	if keep <= 0 {
		keep = 1440
	}
	return &MemorySink{keep: keep, series: make(map[seriesKey][]Candle)}
}

func (s *MemorySink) WriteCandle(_ context.Context, c Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := seriesKey{c.Market, c.TF}
	list := s.series[k]
	i := sort.Search(len(list), func(i int) bool { return list[i].StartMs >= c.StartMs })
	switch {
	case i < len(list) && list[i].StartMs == c.StartMs:
		list[i] = c
	case i == len(list):
		list = append(list, c)
	default:
		list = append(list, Candle{})
		copy(list[i+1:], list[i:])
		list[i] = c
	}
	if over := len(list) - s.keep; over > 0 {
		list = append(list[:0:0], list[over:]...)
	}
	s.series[k] = list
	return nil
}

// Candles 最近 limit 根，时间升序；limit <= 0 全给
func (s *MemorySink) Candles(market, tf string, limit int) []Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.series[seriesKey{market, tf}]
	if limit > 0 && limit < len(list) {
		list = list[len(list)-limit:]
	}
	return append([]Candle(nil), list...)
}

func (s *MemorySink) Close() error { return nil }

// Tee 同时写多个 sink，错误合并返回
type Tee []CandleSink

func (t Tee) WriteCandle(ctx context.Context, c Candle) error {
	var first error
	for _, s := range t {
		if err := s.WriteCandle(ctx, c); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t Tee) Close() error {
	var first error
	for _, s := range t {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
