package broker

import (
	"context"
	"sync"
	"time"

	"clobex.com/pkg/logger"
	"clobex.com/pkg/metrics"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type NatsConfig struct {
	URL  string `mapstructure:"url"`
	Name string `mapstructure:"name"`
}

type NatsBroker struct {
	nc *nats.Conn
}

func NewNatsBroker(cfg NatsConfig, opts ...nats.Option) (*NatsBroker, error) {
	opts = append([]nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(context.Background(), "nats disconnected", zap.Error(err))
			}
		}),
	}, opts...)
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	return &NatsBroker{nc: nc}, nil
}

func (b *NatsBroker) Publish(_ context.Context, topic string, payload []byte) error {
	return b.nc.Publish(topic, payload)
}

func (b *NatsBroker) Subscribe(ctx context.Context, topics []string) (<-chan Message, error) {
	out := make(chan Message, 8192)
	var mu sync.Mutex
	closed := false
	subs := make([]*nats.Subscription, 0, len(topics))
	for _, t := range topics {
		sub, err := b.nc.Subscribe(t, func(m *nats.Msg) {
			// 回调里不能阻塞，满了就丢
			mu.Lock()
			defer mu.Unlock()
			if closed {
				return
			}
			select {
			case out <- Message{Topic: m.Subject, Payload: m.Data}:
			default:
				metrics.BrokerDropped.WithLabelValues("nats").Inc()
			}
		})
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}

	go func() {
		<-ctx.Done()
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		// Unsubscribe 之后回调可能还在跑，关 channel 要和回调互斥
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out, nil
}

func (b *NatsBroker) Close() error {
	if b.nc == nil {
		return nil
	}
	err := b.nc.Drain()
	b.nc.Close()
	return err
}
