package store

import (
	"context"
	"sync"

	"clobex.com/pkg/orm"
)

// MemoryStore 没配 MySQL 时用，每个市场只留最近 capacity 笔
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	trades   map[string][]Trade
	seen     map[fillKey]struct{}
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryStore{
		capacity: capacity,
		trades:   make(map[string][]Trade),
		seen:     make(map[fillKey]struct{}),
	}
}

func (s *MemoryStore) SaveTrades(_ context.Context, trades []Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range trades {
		k := t.key()
		if _, dup := s.seen[k]; dup {
			continue
		}
		s.seen[k] = struct{}{}
		list := append(s.trades[t.Market], t)
		if over := len(list) - s.capacity; over > 0 {
			for _, old := range list[:over] {
				delete(s.seen, old.key())
			}
			list = append(list[:0:0], list[over:]...)
		}
		s.trades[t.Market] = list
	}
	return nil
}

func (s *MemoryStore) RecentTrades(_ context.Context, market string, page, limit int) ([]Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.trades[market]
	if page <= 0 || limit <= 0 {
		page, limit = 1, len(list)
	}
	limit = min(limit, orm.MaxPageSize)
	start := (page - 1) * limit
	if start >= len(list) {
		return []Trade{}, nil
	}
	end := min(start+limit, len(list))
	out := make([]Trade, 0, end-start)
	// 倒着取，新的在前
	for i := len(list) - 1 - start; i >= len(list)-end; i-- {
		out = append(out, list[i])
	}
	return out, nil
}
