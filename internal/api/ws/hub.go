package ws

import (
	"strings"
	"sync"

	"clobex.com/internal/indexer/broker"
	"clobex.com/pkg/metrics"
	"github.com/segmentio/encoding/json"
)

// ServerMsg 推给客户端的一条消息
type ServerMsg struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// ClientMsg 客户端发来的订阅指令
type ClientMsg struct {
	Type   string   `json:"type"` // sub | unsub
	Topics []string `json:"topics"`
}

// Snapshot K 线这种状态类 topic 只关心最新值：新订阅先回放一份，慢连接上合并
func Snapshot(topic string) bool { return strings.HasPrefix(topic, "candle.") }

// Hub 按订阅模式 fan-out，模式支持 * 和 >
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Conn]struct{} // pattern -> set(conn)
	last map[string][]byte             // snapshot topic -> 最近一帧
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*Conn]struct{}, 64),
		last: make(map[string][]byte, 256),
	}
}

func (h *Hub) Subscribe(c *Conn, patterns []string) {
	type snap struct {
		topic string
		frame []byte
	}
	var snaps []snap

	// 同一把锁里登记和取快照，避免中间插进来的 publish 两边都漏
	h.mu.Lock()
	for _, p := range patterns {
		set := h.subs[p]
		if set == nil {
			set = make(map[*Conn]struct{}, 16)
			h.subs[p] = set
		}
		set[c] = struct{}{}
		for topic, frame := range h.last {
			if broker.Match(p, topic) {
				snaps = append(snaps, snap{topic, frame})
			}
		}
	}
	h.mu.Unlock()

	for _, s := range snaps {
		c.Offer(s.topic, s.frame)
	}
}

func (h *Hub) Unsubscribe(c *Conn, patterns []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range patterns {
		if set := h.subs[p]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.subs, p)
			}
		}
	}
}

func (h *Hub) RemoveConn(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, p)
		}
	}
}

// Subscribers 某个模式上挂了多少连接
func (h *Hub) Subscribers(pattern string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[pattern])
}

// Publish 编一次帧，对每个连接非阻塞 Offer，慢客户端不会卡住广播。payload 必须是 JSON
func (h *Hub) Publish(topic string, payload []byte) {
	frame, err := json.Marshal(ServerMsg{Topic: topic, Data: payload})
	if err != nil {
		metrics.WSDropped.WithLabelValues("encode").Inc()
		return
	}

	targets := make(map[*Conn]struct{})
	if Snapshot(topic) {
		h.mu.Lock()
		h.last[topic] = frame
		h.mu.Unlock()
	}
	h.mu.RLock()
	for p, set := range h.subs {
		if !broker.Match(p, topic) {
			continue
		}
		for c := range set {
			targets[c] = struct{}{}
		}
	}
	h.mu.RUnlock()

	for c := range targets {
		c.Offer(topic, frame)
	}
}
