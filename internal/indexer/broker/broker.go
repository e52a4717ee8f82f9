package broker

import (
	"context"
	"strings"
)

// Message topic 用点分隔，和 NATS subject 一致：order.filled、candle.<market>.1m
type Message struct {
	Topic   string
	Payload []byte
}

// Broker at-most-once 的发布订阅，慢订阅者丢消息
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe ctx 结束时取消订阅并关闭 channel；topic 支持 * 和 > 通配
	Subscribe(ctx context.Context, topics []string) (<-chan Message, error)
	Close() error
}

// Match NATS 的通配规则：* 匹配一段，> 匹配剩下的一段或多段
func Match(pattern, topic string) bool {
	ps := strings.Split(pattern, ".")
	ts := strings.Split(topic, ".")
	for i, p := range ps {
		if p == ">" {
			return len(ts) > i
		}
		if i >= len(ts) {
			return false
		}
		if p != "*" && p != ts[i] {
			return false
		}
	}
	return len(ps) == len(ts)
}
