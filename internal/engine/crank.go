package engine

import (
	"context"
	"errors"
	"time"

	"clobex.com/pkg/logger"
	"clobex.com/pkg/xredis"
	"go.uber.org/zap"
)

type CrankConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Limit    uint32        `mapstructure:"limit"` // 每个市场每轮最多消费多少事件，0 = 全部
	LockKey  string        `mapstructure:"lockKey"`
	LockTTL  time.Duration `mapstructure:"lockTTL"`
}

// Crank 定时给每个市场发 Consume，替 maker 结算。
// 多节点共用一个 Redis 时只有抢到锁的节点跑。
type Crank struct {
	eng    *Engine
	cfg    CrankConfig
	master *xredis.RedisLockMaster
}

func NewCrank(eng *Engine, cfg CrankConfig, master *xredis.RedisLockMaster) *Crank {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.LockKey == "" {
		cfg.LockKey = "clobex:crank:master"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 3 * cfg.Interval
	}
	return &Crank{eng: eng, cfg: cfg, master: master}
}

func (c *Crank) Run(ctx context.Context) error {
	t := time.NewTicker(c.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if c.master != nil && !c.master.TryAcquireMaster(ctx, c.cfg.LockKey, c.cfg.LockTTL) {
				continue
			}
			c.Tick(ctx)
		}
	}
}

// Tick 跑一轮，返回消费的事件总数
func (c *Crank) Tick(ctx context.Context) int {
	total := 0
	for _, id := range c.eng.Markets() {
		res, err := c.eng.Submit(ctx, Command{Type: CmdConsume, Market: id, Limit: c.cfg.Limit})
		switch {
		case errors.Is(err, ErrEngineBusy):
			// 下一轮再来
			logger.Debug(ctx, "crank skipped busy market", zap.String("market", id.String()))
			continue
		case err != nil:
			logger.Warn(ctx, "crank failed", zap.String("market", id.String()), zap.Error(err))
			continue
		}
		total += len(res.Consume.Consumed)
		if res.Consume.Blocked {
			logger.Warn(ctx, "crank blocked on missing maker account", zap.String("market", id.String()))
		}
	}
	return total
}
