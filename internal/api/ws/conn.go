package ws

import (
	"sync"
	"sync/atomic"

	"clobex.com/pkg/metrics"
	"github.com/gorilla/websocket"
)

// Conn 一个客户端连接。事件类 topic 排队，满了丢；快照类 topic 每个只留最新一帧
type Conn struct {
	ws  *websocket.Conn
	hub *Hub

	mu       sync.Mutex
	queue    [][]byte
	latest   map[string][]byte
	maxQueue int

	notify chan struct{} // 缓冲 1：合并唤醒
	done   chan struct{}
	closed atomic.Bool
}

func newConn(h *Hub, ws *websocket.Conn, maxQueue int) *Conn {
	if maxQueue <= 0 {
		maxQueue = 1024
	}
	return &Conn{
		ws:       ws,
		hub:      h,
		latest:   make(map[string][]byte, 16),
		maxQueue: maxQueue,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (c *Conn) Offer(topic string, frame []byte) bool {
	if c.closed.Load() {
		return false
	}
	c.mu.Lock()
	if Snapshot(topic) {
		c.latest[topic] = frame
	} else {
		if len(c.queue) >= c.maxQueue {
			c.mu.Unlock()
			metrics.WSDropped.WithLabelValues("slow").Inc()
			return false
		}
		c.queue = append(c.queue, frame)
	}
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

// drain 先出事件再出快照，单次最多 max 条，剩下的再唤醒一次
func (c *Conn) drain(max int) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := min(len(c.queue), max)
	out := make([][]byte, 0, n+len(c.latest))
	out = append(out, c.queue[:n]...)
	c.queue = append(c.queue[:0:0], c.queue[n:]...)
	for topic, frame := range c.latest {
		if len(out) >= max {
			break
		}
		out = append(out, frame)
		delete(c.latest, topic)
	}
	if len(c.queue) > 0 || len(c.latest) > 0 {
		select {
		case c.notify <- struct{}{}:
		default:
		}
	}
	return out
}

func (c *Conn) close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.done)
	}
}
