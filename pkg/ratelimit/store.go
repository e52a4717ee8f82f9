package ratelimit

import (
	"context"
	"sync"
	"time"

	"clobex.com/pkg/safe"
	"golang.org/x/time/rate"
)

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Store 按 key 分桶的令牌桶，长时间不用的桶由 janitor 回收
type Store struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
}

func NewStore(limit rate.Limit, burst int, idle time.Duration) *Store {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &Store{
		buckets: make(map[string]*bucket, 1024),
		limit:   limit,
		burst:   max(burst, 1),
		idle:    idle,
		now:     time.Now,
	}
}

func (s *Store) Allow(key string) bool {
	now := s.now()
	s.mu.Lock()
	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(s.limit, s.burst)}
		s.buckets[key] = b
	}
	b.lastSeen = now
	// 整个判断在锁内，AllowN 用同一个 now，测试里可以拨钟
	allowed := b.lim.AllowN(now, 1)
	s.mu.Unlock()
	return allowed
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// StartJanitor ctx 结束即停
func (s *Store) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	safe.GoCtx(ctx, "ratelimit-janitor", func(ctx context.Context) {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.evictIdle()
			}
		}
	})
}

func (s *Store) evictIdle() int {
	cut := s.now().Add(-s.idle)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, b := range s.buckets {
		if b.lastSeen.Before(cut) {
			delete(s.buckets, k)
			n++
		}
	}
	return n
}
