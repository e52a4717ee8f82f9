package broker

import (
	"context"
	"sync"

	"clobex.com/pkg/metrics"
)

type memSub struct {
	patterns []string
	ch       chan Message
}

func (s *memSub) matches(topic string) bool {
	for _, p := range s.patterns {
		if Match(p, topic) {
			return true
		}
	}
	return false
}

// MemBroker 单进程 fan-out，没配 NATS 时用
type MemBroker struct {
	mu     sync.RWMutex
	subs   map[*memSub]struct{}
	bufLen int
}

func NewMemBroker(bufLen int) *MemBroker {
	if bufLen <= 0 {
		bufLen = 4096
	}
	return &MemBroker{subs: make(map[*memSub]struct{}), bufLen: bufLen}
}

func (b *MemBroker) Publish(_ context.Context, topic string, payload []byte) error {
	msg := Message{Topic: topic, Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if !s.matches(topic) {
			continue
		}
		select {
		case s.ch <- msg:
		default:
			metrics.BrokerDropped.WithLabelValues("mem").Inc()
		}
	}
	return nil
}

func (b *MemBroker) Subscribe(ctx context.Context, topics []string) (<-chan Message, error) {
	s := &memSub{patterns: append([]string(nil), topics...), ch: make(chan Message, b.bufLen)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		// 先摘掉再关，Publish 持有读锁时不会往已关闭的 channel 写
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
		close(s.ch)
	}()
	return s.ch, nil
}

func (b *MemBroker) Close() error { return nil }
