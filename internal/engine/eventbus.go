package engine

import (
	"sync/atomic"

	"clobex.com/internal/market"
)

// ChanBus 进程内通知总线，actor 发、indexer 收。
// 满了直接丢掉并计数，撮合不能被下游反压；丢了的通知靠事件队列和查询接口兜底
type ChanBus struct {
	ch      chan market.Notification
	dropped atomic.Uint64
}

func NewChanBus(size int) *ChanBus {
	if size <= 0 {
		size = 1 << 16
	}
	return &ChanBus{ch: make(chan market.Notification, size)}
}

func (b *ChanBus) TryPublish(n market.Notification) bool {
	select {
	case b.ch <- n:
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

func (b *ChanBus) C() <-chan market.Notification { return b.ch }

func (b *ChanBus) Dropped() uint64 { return b.dropped.Load() }

// Close 所有 actor 都退出后才能调，之后 C() 读到关闭
func (b *ChanBus) Close() { close(b.ch) }
