package ws

import (
	"context"

	"clobex.com/internal/indexer/broker"
)

// Pump 订阅 broker，把消息原样转给本地 hub。单机是内存 broker，多机走 NATS
func Pump(ctx context.Context, b broker.Broker, h *Hub, topics []string) error {
	ch, err := b.Subscribe(ctx, topics)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			h.Publish(m.Topic, m.Payload)
		}
	}
}
