package metrics

import "github.com/prometheus/client_golang/prometheus"

const Namespace = "clobex"

// 治理类指标：限流、熔断、panic。手动注册，测试里不会重复注册
var (
	RateLimitBlockTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "ratelimit_block_total",
		Help:      "Requests rejected by the per-client rate limiter.",
	}, []string{"route"})

	CBRejectTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "circuitbreaker_reject_total",
		Help:      "Calls rejected by an open or half-open breaker.",
	}, []string{"service", "method", "reason"})

	// state: closed / half-open / open，当前状态为 1，其余为 0
	CBState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "circuitbreaker_state",
		Help:      "Circuit breaker state.",
	}, []string{"service", "method", "state"})

	PanicsRecovered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "panics_recovered_total",
		Help:      "Panics recovered in background goroutines and handlers.",
	}, []string{"where"})
)

func MustRegister() {
	prometheus.MustRegister(RateLimitBlockTotal, CBRejectTotal, CBState, PanicsRecovered)
}
