package market

import "time"

// Clock 给订单和事件打时间戳，单位毫秒
type Clock interface {
	Now() int64
}

type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().UnixMilli() }

type ClockFunc func() int64

func (f ClockFunc) Now() int64 { return f() }
