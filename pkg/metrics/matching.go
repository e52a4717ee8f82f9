package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 撮合相关指标，market 维度用 base58 公钥
var (
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "orders_total",
		Help:      "Orders accepted by type/side.",
	}, []string{"market", "type", "side"})

	OrdersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "orders_rejected_total",
		Help:      "Orders rejected, by error kind.",
	}, []string{"market", "kind"})

	FillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "fills_total",
		Help:      "Match iterations by maker terminal state.",
	}, []string{"market", "type"})

	EventQueueOverwrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "event_queue_overwrites_total",
		Help:      "Unread queue events evicted by overwrite-oldest and settled inline.",
	}, []string{"market"})

	EventQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "event_queue_depth",
		Help:      "Unread events in the queue.",
	}, []string{"market"})

	SlabDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "slab_depth",
		Help:      "Resting orders per side.",
	}, []string{"market", "side"})

	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "command_duration_seconds",
		Help:      "Engine command latency from submit to reply.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
	}, []string{"market", "cmd", "status"})

	MailboxFull = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "mailbox_full_total",
		Help:      "Commands rejected because the market mailbox was full.",
	}, []string{"market"})

	BusDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "bus_dropped_total",
		Help:      "Notifications dropped by a full bus.",
	}, []string{"market"})
)

// 索引 / 推送
var (
	BrokerDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "broker_dropped_total",
		Help:      "Messages dropped by a slow broker subscriber.",
	}, []string{"broker"})

	IndexerTrades = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "indexer_trades_total",
		Help:      "Fills recorded by the indexer.",
	}, []string{"market"})

	IndexerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "indexer_errors_total",
		Help:      "Indexer failures by stage.",
	}, []string{"stage"})

	CandlesEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "candles_emitted_total",
		Help:      "Closed candles by resolution.",
	}, []string{"tf"})

	WSConns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "ws_conns",
		Help:      "Active websocket connections.",
	})

	WSMessagesOut = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "ws_messages_out_total",
		Help:      "Messages written to websocket clients.",
	})

	WSDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "ws_dropped_total",
		Help:      "Websocket messages dropped.",
	}, []string{"why"})
)
