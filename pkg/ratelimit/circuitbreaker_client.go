package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"clobex.com/pkg/metrics"
	"clobex.com/pkg/xerr"
	"github.com/sony/gobreaker/v2"
)

var ErrBreakerOpen = xerr.Define(xerr.KindUnavailable, xerr.ServiceUnavailable, "circuit breaker open")

type Rule struct {
	// Half-Open 状态允许通过的探测请求数（MaxRequests=0 时库会当作 1）
	MaxRequests uint32 `mapstructure:"max_requests"`

	// Closed 状态计数窗口
	Interval time.Duration `mapstructure:"interval"`

	// Rolling window 每个 bucket 周期（>0 则启用 rolling window；<=0 用 fixed window）
	BucketPeriod time.Duration `mapstructure:"bucket_period"`

	// Open 状态持续时间，到期进入 Half-Open
	Timeout time.Duration `mapstructure:"timeout"`

	// 触发熔断条件（两种之一即可）
	TripConsecutiveFailures uint32  `mapstructure:"trip_consecutive_failures"` // 连续失败阈值（建议 10~50）
	TripFailureRate         float64 `mapstructure:"trip_failure_rate"`         // 失败率阈值（0~1），比如 0.5
	TripMinRequests         uint32  `mapstructure:"trip_min_requests"`         // 失败率计算的最小样本数，比如 20
}

type Manager struct {
	service string
	mu      sync.RWMutex
	m       map[string]*gobreaker.CircuitBreaker[struct{}]

	defaultRule Rule
	rules       map[string]Rule
}

func NewManager(service string, defaultRule Rule, perMethod map[string]Rule) *Manager {

	if defaultRule.MaxRequests == 0 {
		defaultRule.MaxRequests = 5
	}
	if defaultRule.Timeout <= 0 {
		defaultRule.Timeout = 3 * time.Second
	}
	if defaultRule.Interval <= 0 {
		defaultRule.Interval = 10 * time.Second
	}
	if defaultRule.TripConsecutiveFailures == 0 && defaultRule.TripFailureRate == 0 {
		defaultRule.TripConsecutiveFailures = 10
	}
	if defaultRule.TripMinRequests == 0 {
		defaultRule.TripMinRequests = 20
	}

	return &Manager{
		service:     service,
		m:           make(map[string]*gobreaker.CircuitBreaker[struct{}], 64),
		defaultRule: defaultRule,
		rules:       perMethod,
	}
}

func (m *Manager) Get(method string) *gobreaker.CircuitBreaker[struct{}] {
	// 快路径：读锁
	m.mu.RLock()
	cb := m.m[method]
	m.mu.RUnlock()
	if cb != nil {
		return cb
	}

	// 慢路径：创建
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb = m.m[method]; cb != nil {
		return cb
	}

	rule, ok := m.rules[method]
	if !ok {
		rule = m.defaultRule
	}
	st := gobreaker.Settings{
		Name:         method,
		MaxRequests:  rule.MaxRequests,
		Interval:     rule.Interval,
		BucketPeriod: rule.BucketPeriod,
		Timeout:      rule.Timeout,

		ReadyToTrip: func(c gobreaker.Counts) bool {
			// 1) 连续失败阈值优先（最直观）
			if rule.TripConsecutiveFailures > 0 && c.ConsecutiveFailures >= rule.TripConsecutiveFailures {
				return true
			}
			// 2) 失败率阈值（适合波动流量）
			if rule.TripFailureRate > 0 && c.Requests >= rule.TripMinRequests {
				failRate := float64(c.TotalFailures) / float64(c.Requests)
				return failRate >= rule.TripFailureRate
			}
			return false
		},

		// IsSuccessful 决定“哪些错误计入熔断失败”
		IsSuccessful: func(err error) bool {
			return isSuccessfulForBreaker(err)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CBState.WithLabelValues(m.service, name, from.String()).Set(0)
			metrics.CBState.WithLabelValues(m.service, name, to.String()).Set(1)
		},
	}

	cb = gobreaker.NewCircuitBreaker[struct{}](st)
	m.m[method] = cb
	return cb
}

// isSuccessfulForBreaker 决定"哪些错误计入熔断失败"。
// 业务可预期的拒绝（余额不足、参数错、权限）说明依赖是健康的，不计入
func isSuccessfulForBreaker(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	switch xerr.KindOf(err) {
	case xerr.KindValidation,
		xerr.KindNotFound,
		xerr.KindAuthorization,
		xerr.KindPolicy,
		xerr.KindCapacity:
		return true
	default:
		// 超时、网络、下游不可用、未分类错误 -> 计入熔断失败
		return false
	}
}

// Do 在 method 对应的熔断器里执行 fn；熔断打开时返回 ErrBreakerOpen
func (m *Manager) Do(method string, fn func() error) error {
	_, err := m.Get(method).Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.CBRejectTotal.WithLabelValues(m.service, method, err.Error()).Inc()
		return fmt.Errorf("%w: %s", ErrBreakerOpen, method)
	}
	return err
}
