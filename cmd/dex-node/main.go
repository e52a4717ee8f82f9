package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clobex.com/internal/api"
	"clobex.com/internal/api/ws"
	nodecfg "clobex.com/internal/config"
	"clobex.com/internal/indexer"
	"clobex.com/pkg/config"
	"clobex.com/pkg/logger"
	"clobex.com/pkg/metrics"
	"clobex.com/pkg/trace"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const serviceName = "dex-node"

func main() {
	path := flag.String("config", "", "配置文件路径，默认 ./config/dex-node.yaml")
	flag.Parse()

	// 收到 SIGINT/SIGTERM 取消 ctx，所有组件跟着退
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *path); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(context.Background(), "dex-node exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func run(ctx context.Context, path string) error {
	// 只有日志级别支持热更新，其它改动要重启
	cfg, err := config.LoadAndWatch(serviceName, path, func(next nodecfg.Config) {
		if err := logger.SetLevel(next.Log.Level); err != nil {
			logger.Warn(ctx, "ignore bad log level", zap.String("level", next.Log.Level))
		}
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.InitWithFile(serviceName, cfg.Log.Level, cfg.Log.File)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	metrics.MustRegister()

	shutdownTracer, err := trace.InitTrace(ctx, serviceName, cfg.Trace)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(c); err != nil {
			logger.Error(ctx, "shutdown tracer error", zap.Error(err))
		}
	}()

	n, err := build(ctx, &cfg)
	if err != nil {
		return err
	}
	defer n.close()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Crank.Enabled {
		crank := n.crank()
		g.Go(func() error { return crank.Run(gctx) })
	}

	// 通知 channel 只有一个消费者：索引器，或者关掉索引器时空转丢弃。
	// 引擎 Stop 后 channel 关闭，索引器收尾把没收口的 K 线也写掉，所以这里不跟 gctx 走
	if n.indexer != nil {
		idxCtx := context.WithoutCancel(gctx)
		g.Go(func() error { return n.indexer.Run(idxCtx, n.eng.Notifications()) })
	} else {
		g.Go(func() error {
			for range n.eng.Notifications() {
			}
			return nil
		})
	}

	hub := ws.NewHub()
	wsSrv := ws.NewServer(gctx, hub, cfg.Server.WS)
	if n.broker != nil {
		topics := cfg.Indexer.WSTopics
		if len(topics) == 0 {
			topics = []string{"order.>", indexer.TradeTopic(">"), "candle.>"}
		}
		g.Go(func() error {
			err := ws.Pump(gctx, n.broker, hub, topics)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	handler := api.NewHandler(n.eng, n.trades, n.candles, cfg.Server.CrankLimit)
	router := api.NewRouter(gctx, cfg.Server, handler, wsSrv)
	if cfg.Server.Metrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	srv := api.NewHTTPServer(cfg.Server, router)

	g.Go(func() error {
		logger.Info(gctx, "http listening", zap.String("addr", cfg.Server.Addr), zap.Int("markets", len(cfg.Markets)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// 先停接入，再停引擎，in-flight 的命令能拿到回复
		if err := srv.Shutdown(c); err != nil {
			logger.Warn(c, "http shutdown", zap.Error(err))
		}
		n.eng.Stop()
		return nil
	})
	g.Go(func() error { return n.watchEngine(gctx) })

	err = g.Wait()
	logger.Info(context.Background(), "dex-node stopping",
		zap.NamedError("cause", err), zap.Uint64("dropped_notifications", n.eng.DroppedNotifications()))
	return err
}
