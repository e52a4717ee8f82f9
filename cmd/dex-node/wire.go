package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	nodecfg "clobex.com/internal/config"
	"clobex.com/internal/engine"
	"clobex.com/internal/funds"
	"clobex.com/internal/indexer"
	"clobex.com/internal/indexer/broker"
	"clobex.com/internal/indexer/sink"
	"clobex.com/internal/indexer/store"
	"clobex.com/internal/market"
	"clobex.com/pkg/logger"
	"clobex.com/pkg/orm"
	"clobex.com/pkg/ratelimit"
	"clobex.com/pkg/xredis"
	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// node 进程里的全部组件，build 负责组装，close 按反序释放
type node struct {
	cfg     *nodecfg.Config
	eng     *engine.Engine
	rdb     *redis.Client
	db      *gorm.DB
	broker  broker.Broker
	trades  store.TradeStore
	candles *sink.MemorySink
	sinks   sink.CandleSink
	indexer *indexer.Indexer
}

func build(ctx context.Context, cfg *nodecfg.Config) (_ *node, err error) {
	n := &node{cfg: cfg}
	defer func() {
		if err != nil {
			n.close()
		}
	}()

	if cfg.Escrow.Driver == "redis" || cfg.Crank.UseRedisLock {
		if n.rdb, err = xredis.NewRedis(ctx, &cfg.Redis); err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
	}

	ecfg, err := cfg.Engine.Engine()
	if err != nil {
		return nil, err
	}
	n.eng = engine.NewEngine(ecfg, engine.NewChanBus(cfg.Engine.NotifyBuffer))

	cb := ratelimit.NewManager("escrow", cfg.Escrow.Breaker, nil)
	metas := make([]indexer.MarketMeta, 0, len(cfg.Markets))
	for _, mc := range cfg.Markets {
		id, mcfg, meta, err := mc.Market()
		if err != nil {
			return nil, err
		}
		escrow, err := n.escrow(ctx, id, mcfg)
		if err != nil {
			return nil, fmt.Errorf("market %s escrow: %w", mc.Name, err)
		}
		if err := n.eng.AddMarket(id, mcfg, funds.NewBreakerEscrow(escrow, cb)); err != nil {
			return nil, fmt.Errorf("add market %s: %w", mc.Name, err)
		}
		metas = append(metas, meta)
	}

	if err := n.buildIndexer(metas); err != nil {
		return nil, err
	}
	return n, nil
}

// escrow 每个市场一个金库，两个 mint 只认本市场的
func (n *node) escrow(ctx context.Context, id solana.PublicKey, mcfg market.Config) (funds.Escrow, error) {
	mints := funds.Mints{Base: mcfg.BaseMint, Quote: mcfg.QuoteMint}
	deposits, err := n.deposits(mints)
	if err != nil {
		return nil, err
	}
	if n.cfg.Escrow.Driver == "redis" {
		v := funds.NewRedisVault(n.rdb, n.cfg.Escrow.Prefix, id, mints)
		for _, d := range deposits {
			if err := v.Deposit(ctx, d.owner, d.mint, d.amount); err != nil {
				return nil, err
			}
		}
		return v, nil
	}
	v := funds.NewMemoryVault(mints)
	for _, d := range deposits {
		if err := v.Deposit(d.owner, d.mint, d.amount); err != nil {
			return nil, err
		}
	}
	return v, nil
}

type deposit struct {
	owner, mint solana.PublicKey
	amount      uint64
}

// deposits 挑出本市场 mint 的初始入金，开发环境用
func (n *node) deposits(mints funds.Mints) ([]deposit, error) {
	var out []deposit
	for _, d := range n.cfg.Escrow.Deposits {
		owner, err := solana.PublicKeyFromBase58(d.Owner)
		if err != nil {
			return nil, fmt.Errorf("deposit owner %q: %w", d.Owner, err)
		}
		mint, err := solana.PublicKeyFromBase58(d.Mint)
		if err != nil {
			return nil, fmt.Errorf("deposit mint %q: %w", d.Mint, err)
		}
		if mint != mints.Base && mint != mints.Quote {
			continue
		}
		out = append(out, deposit{owner: owner, mint: mint, amount: d.Amount})
	}
	return out, nil
}

func (n *node) buildIndexer(metas []indexer.MarketMeta) (err error) {
	icfg := n.cfg.Indexer
	n.candles = sink.NewMemorySink(icfg.CandleKeep)
	n.trades = store.NewMemoryStore(icfg.Store.Keep)
	if !icfg.Enabled {
		return nil
	}

	switch icfg.Broker.Driver {
	case "nats":
		nb, err := broker.NewNatsBroker(icfg.Broker.NATS)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		n.broker = nb
	default:
		n.broker = broker.NewMemBroker(icfg.Broker.Buffer)
	}

	if icfg.Store.Driver == "mysql" {
		if n.db, err = orm.NewMySQL(&icfg.Store.MySQL); err != nil {
			return err
		}
		gs, err := store.NewGormStore(n.db, icfg.Store.AutoMigrate)
		if err != nil {
			return fmt.Errorf("trade store: %w", err)
		}
		n.trades = gs
	}

	n.sinks = n.candles
	if icfg.Influx.Enabled {
		logger.Info(context.Background(), "influx candle sink enabled", zap.Stringer("influx", icfg.Influx.InfluxConfig))
		n.sinks = sink.Tee{n.candles, sink.NewInfluxSink(icfg.Influx.InfluxConfig)}
	}

	n.indexer, err = indexer.New(icfg.Config, metas, n.broker, n.trades, n.sinks)
	return err
}

func (n *node) crank() *engine.Crank {
	var master *xredis.RedisLockMaster
	if n.cfg.Crank.UseRedisLock {
		master = xredis.NewRedisLockMaster(n.rdb)
	}
	return engine.NewCrank(n.eng, n.cfg.Crank.CrankConfig, master)
}

// watchEngine actor 异常退出（比如 WAL 写失败）整个进程跟着退，交给外部重启后回放
func (n *node) watchEngine(ctx context.Context) error {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := n.eng.Err(); err != nil {
				return err
			}
		}
	}
}

func (n *node) close() {
	var errs []error
	if n.eng != nil {
		n.eng.Stop()
	}
	if n.sinks != nil {
		errs = append(errs, n.sinks.Close())
	}
	if n.broker != nil {
		errs = append(errs, n.broker.Close())
	}
	if n.db != nil {
		if sqlDB, err := n.db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if n.rdb != nil {
		errs = append(errs, n.rdb.Close())
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn(context.Background(), "close node", zap.Error(err))
	}
}
