package sink

import (
	"context"
	"fmt"
	"time"

	"clobex.com/pkg/logger"
	"clobex.com/pkg/metrics"
	"clobex.com/pkg/safe"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
)

const measurement = "candle"

type InfluxConfig struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`

	BatchSize     uint          `mapstructure:"batchSize"`
	FlushInterval time.Duration `mapstructure:"flushInterval"`
	UseGzip       bool          `mapstructure:"useGzip"`
}

func (cfg InfluxConfig) String() string {
	return fmt.Sprintf("url=%s org=%s bucket=%s batch=%d flush=%s gzip=%v",
		cfg.URL, cfg.Org, cfg.Bucket, cfg.BatchSize, cfg.FlushInterval, cfg.UseGzip)
}

// InfluxSink 异步批量写，写失败只记日志和指标
type InfluxSink struct {
	client influxdb2.Client
	write  api.WriteAPI
}

func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 2000
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = time.Second
	}
	opt := influxdb2.DefaultOptions().
		SetBatchSize(cfg.BatchSize).
		SetFlushInterval(uint(cfg.FlushInterval.Milliseconds())).
		SetUseGZip(cfg.UseGzip)

	c := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opt)
	w := c.WriteAPI(cfg.Org, cfg.Bucket)

	// Errors() 必须有人读，不然异步写会卡住
	errs := w.Errors()
	safe.Go("influx-errors", func() {
		for err := range errs {
			metrics.IndexerErrors.WithLabelValues("influx").Inc()
			logger.Error(context.Background(), "influx write failed", zap.Error(err))
		}
	})
	return &InfluxSink{client: c, write: w}
}

func (s *InfluxSink) WriteCandle(_ context.Context, c Candle) error {
	s.write.WritePoint(candlePoint(c))
	return nil
}

// Close flush 掉缓冲再关
func (s *InfluxSink) Close() error {
	s.write.Flush()
	s.client.Close()
	return nil
}

func candlePoint(c Candle) *write.Point {
	// tag 只放低基数的 market/tf
	tags := map[string]string{
		"market": c.Market,
		"tf":     c.TF,
	}
	fields := map[string]interface{}{
		"o":      c.Open.InexactFloat64(),
		"h":      c.High.InexactFloat64(),
		"l":      c.Low.InexactFloat64(),
		"c":      c.Close.InexactFloat64(),
		"v":      c.Volume.InexactFloat64(),
		"n":      c.Count,
		"closed": c.Closed,
	}
	return write.NewPoint(measurement, tags, fields, time.UnixMilli(c.StartMs))
}
