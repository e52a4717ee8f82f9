package safe

import (
	"context"
	"fmt"
	"runtime/debug"

	"clobex.com/pkg/logger"
	"clobex.com/pkg/metrics"
	"go.uber.org/zap"
)

// Go 起一个后台协程。panic 只记日志和计数，不拖垮进程；name 标明是哪个协程
func Go(name string, fn func()) {
	GoCtx(context.Background(), name, func(context.Context) { fn() })
}

// GoCtx 同 Go，日志带上 ctx 里的 trace_id
func GoCtx(ctx context.Context, name string, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				report(ctx, name, r)
			}
		}()
		fn(ctx)
	}()
}

// Call 同步执行，panic 转成 error 返回给调用方
func Call(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			report(context.Background(), name, r)
			err = fmt.Errorf("%s: panic: %v", name, r)
		}
	}()
	return fn()
}

func report(ctx context.Context, name string, r any) {
	metrics.PanicsRecovered.WithLabelValues(name).Inc()
	logger.Error(ctx, "goroutine panic recovered",
		zap.String("goroutine", name),
		zap.Any("panic", r),
		zap.ByteString("stack", debug.Stack()),
	)
}
