package config

import (
	"errors"
	"fmt"

	"clobex.com/internal/api"
	"clobex.com/internal/engine"
	"clobex.com/internal/indexer"
	"clobex.com/internal/indexer/broker"
	"clobex.com/internal/indexer/sink"
	"clobex.com/internal/market"
	"clobex.com/pkg/logger"
	"clobex.com/pkg/orm"
	"clobex.com/pkg/ratelimit"
	"clobex.com/pkg/trace"
	"clobex.com/pkg/xredis"
	"github.com/gagliardetto/solana-go"
)

// Config dex-node 的全部配置，对应 config/dex-node.yaml
type Config struct {
	Log     logger.Config  `mapstructure:"log"`
	Trace   trace.Config   `mapstructure:"trace"`
	Server  api.Config     `mapstructure:"server"`
	Engine  EngineConfig   `mapstructure:"engine"`
	Crank   CrankConfig    `mapstructure:"crank"`
	Escrow  EscrowConfig   `mapstructure:"escrow"`
	Redis   xredis.Config  `mapstructure:"redis"`
	Indexer IndexerConfig  `mapstructure:"indexer"`
	Markets []MarketConfig `mapstructure:"markets"`
}

type EngineConfig struct {
	engine.ActorConfig `mapstructure:",squash"`
	WALDir             string `mapstructure:"walDir"`
	EnableWAL          bool   `mapstructure:"enableWAL"`
	WALBufSize         int    `mapstructure:"walBufSize"`
	Codec              string `mapstructure:"codec"` // binary | json
	NotifyBuffer       int    `mapstructure:"notifyBuffer"`
}

type CrankConfig struct {
	engine.CrankConfig `mapstructure:",squash"`
	Enabled            bool `mapstructure:"enabled"`
	UseRedisLock       bool `mapstructure:"useRedisLock"` // 多节点时只让一个跑
}

type EscrowConfig struct {
	Driver   string         `mapstructure:"driver"` // memory | redis
	Prefix   string         `mapstructure:"prefix"`
	Breaker  ratelimit.Rule `mapstructure:"breaker"`
	Deposits []Deposit      `mapstructure:"deposits"` // 内存金库的初始余额，开发环境用
}

type Deposit struct {
	Owner  string `mapstructure:"owner"`
	Mint   string `mapstructure:"mint"`
	Amount uint64 `mapstructure:"amount"`
}

type IndexerConfig struct {
	indexer.Config `mapstructure:",squash"`
	Enabled        bool         `mapstructure:"enabled"`
	Broker         BrokerConfig `mapstructure:"broker"`
	Store          StoreConfig  `mapstructure:"store"`
	Influx         InfluxConfig `mapstructure:"influx"`
	CandleKeep     int          `mapstructure:"candleKeep"`
	WSTopics       []string     `mapstructure:"wsTopics"`
}

type BrokerConfig struct {
	Driver string            `mapstructure:"driver"` // mem | nats
	Buffer int               `mapstructure:"buffer"`
	NATS   broker.NatsConfig `mapstructure:"nats"`
}

type StoreConfig struct {
	Driver      string     `mapstructure:"driver"` // memory | mysql
	Keep        int        `mapstructure:"keep"`
	AutoMigrate bool       `mapstructure:"autoMigrate"`
	MySQL       orm.Config `mapstructure:"mysql"`
}

type InfluxConfig struct {
	sink.InfluxConfig `mapstructure:",squash"`
	Enabled           bool `mapstructure:"enabled"`
}

// MarketConfig 公钥都是 base58
type MarketConfig struct {
	ID                 string `mapstructure:"id"`
	Name               string `mapstructure:"name"`
	BaseMint           string `mapstructure:"baseMint"`
	QuoteMint          string `mapstructure:"quoteMint"`
	Admin              string `mapstructure:"admin"`
	BaseDecimals       int32  `mapstructure:"baseDecimals"`
	QuoteDecimals      int32  `mapstructure:"quoteDecimals"`
	BaseLotSize        uint64 `mapstructure:"baseLotSize"`
	QuoteLotSize       uint64 `mapstructure:"quoteLotSize"`
	MakerFeeBps        uint64 `mapstructure:"makerFeeBps"`
	TakerFeeBps        uint64 `mapstructure:"takerFeeBps"`
	MinOrderSize       uint64 `mapstructure:"minOrderSize"`
	MaxOrdersPerUser   int    `mapstructure:"maxOrdersPerUser"`
	SlabCapacity       int    `mapstructure:"slabCapacity"`
	EventQueueCapacity int    `mapstructure:"eventQueueCapacity"`
}

// Market 解析出市场 ID、撮合参数和索引用的精度信息
func (m MarketConfig) Market() (solana.PublicKey, market.Config, indexer.MarketMeta, error) {
	keys := make([]solana.PublicKey, 4)
	for i, s := range []string{m.ID, m.BaseMint, m.QuoteMint, m.Admin} {
		if s == "" && i == 3 {
			continue // 没有 admin 就不能改状态
		}
		k, err := solana.PublicKeyFromBase58(s)
		if err != nil {
			return solana.PublicKey{}, market.Config{}, indexer.MarketMeta{}, fmt.Errorf("market %q: bad key %q: %w", m.Name, s, err)
		}
		keys[i] = k
	}
	cfg := market.Config{
		BaseMint:           keys[1],
		QuoteMint:          keys[2],
		Admin:              keys[3],
		BaseLotSize:        m.BaseLotSize,
		QuoteLotSize:       m.QuoteLotSize,
		MakerFeeBps:        m.MakerFeeBps,
		TakerFeeBps:        m.TakerFeeBps,
		MinOrderSize:       m.MinOrderSize,
		MaxOrdersPerUser:   m.MaxOrdersPerUser,
		SlabCapacity:       m.SlabCapacity,
		EventQueueCapacity: m.EventQueueCapacity,
	}
	if err := cfg.Validate(); err != nil {
		return solana.PublicKey{}, market.Config{}, indexer.MarketMeta{}, fmt.Errorf("market %q: %w", m.Name, err)
	}
	meta := indexer.MarketMeta{
		ID:            keys[0],
		Name:          m.Name,
		BaseLotSize:   m.BaseLotSize,
		QuoteLotSize:  m.QuoteLotSize,
		BaseDecimals:  m.BaseDecimals,
		QuoteDecimals: m.QuoteDecimals,
	}
	return keys[0], cfg, meta, nil
}

// Engine 转成引擎配置
func (c EngineConfig) Engine() (engine.EngineConfig, error) {
	out := engine.EngineConfig{
		Actor:      c.ActorConfig,
		WALDir:     c.WALDir,
		EnableWAL:  c.EnableWAL,
		WALBufSize: c.WALBufSize,
	}
	switch c.Codec {
	case "", "binary":
		out.Codec = engine.BinaryCmdCodec{}
	case "json":
		out.Codec = engine.JSONCmdCodec{Version: 1}
	default:
		return out, fmt.Errorf("unknown command codec %q", c.Codec)
	}
	return out, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is empty"))
	}
	if len(c.Markets) == 0 {
		errs = append(errs, errors.New("no markets configured"))
	}
	seen := make(map[solana.PublicKey]bool, len(c.Markets))
	for _, m := range c.Markets {
		id, _, _, err := m.Market()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("market %s configured twice", id))
		}
		seen[id] = true
	}
	if c.Engine.EnableWAL && c.Engine.WALDir == "" {
		errs = append(errs, errors.New("engine.walDir is empty but the command log is enabled"))
	}
	if _, err := c.Engine.Engine(); err != nil {
		errs = append(errs, err)
	}
	switch c.Escrow.Driver {
	case "", "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown escrow driver %q", c.Escrow.Driver))
	}
	if (c.Escrow.Driver == "redis" || c.Crank.UseRedisLock) && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is empty"))
	}
	switch c.Indexer.Broker.Driver {
	case "", "mem", "nats":
	default:
		errs = append(errs, fmt.Errorf("unknown broker driver %q", c.Indexer.Broker.Driver))
	}
	switch c.Indexer.Store.Driver {
	case "", "memory", "mysql":
	default:
		errs = append(errs, fmt.Errorf("unknown trade store driver %q", c.Indexer.Store.Driver))
	}
	return errors.Join(errs...)
}
