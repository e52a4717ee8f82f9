package market

import (
	"clobex.com/internal/funds"
	"clobex.com/internal/matching"
	"clobex.com/pkg/xerr"
	"github.com/gagliardetto/solana-go"
)

var (
	ErrInvalidConfig = xerr.Define(xerr.KindValidation, 6200, "invalid market config")
	ErrInvalidStatus = xerr.Define(xerr.KindValidation, 6201, "invalid market status")
)

const bpsDenominator = 10_000

// Status 市场状态
type Status uint8

const (
	StatusInactive Status = iota
	StatusActive
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusInactive:
		return "inactive"
	case StatusActive:
		return "active"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Config 市场参数，初始化后只读
type Config struct {
	BaseMint           solana.PublicKey
	QuoteMint          solana.PublicKey
	Admin              solana.PublicKey
	BaseLotSize        uint64 // 1 base lot = BaseLotSize base atoms
	QuoteLotSize       uint64 // 价格单位：每个 base lot 多少 quote lot
	MakerFeeBps        uint64
	TakerFeeBps        uint64
	MinOrderSize       uint64 // base atoms
	MaxOrdersPerUser   int
	SlabCapacity       int
	EventQueueCapacity int
}

func (c Config) Validate() error {
	switch {
	case c.BaseMint.IsZero() || c.QuoteMint.IsZero() || c.BaseMint == c.QuoteMint:
		return ErrInvalidConfig
	case c.BaseLotSize == 0 || c.QuoteLotSize == 0:
		return ErrInvalidConfig
	case c.MakerFeeBps > bpsDenominator || c.TakerFeeBps > bpsDenominator:
		return ErrInvalidConfig
	case c.MaxOrdersPerUser < 0 || c.SlabCapacity < 0 || c.EventQueueCapacity < 0:
		return ErrInvalidConfig
	}
	return nil
}

// Market 一个交易对的完整状态：两侧 slab、事件队列、订单号、手续费。
// 不是并发安全的，调用方（engine 的 actor）保证同一时刻只有一个写者。
type Market struct {
	id          solana.PublicKey
	cfg         Config
	status      Status
	nextOrderID uint64
	feesAccrued uint64

	bids   *matching.Slab
	asks   *matching.Slab
	events *matching.EventQueue

	escrow funds.Escrow
	clock  Clock
}

func New(id solana.PublicKey, cfg Config, escrow funds.Escrow, clock Clock) (*Market, error) {
	if id.IsZero() {
		return nil, matching.ErrInvalidMarketAccount
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if escrow == nil {
		escrow = funds.Noop{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Market{
		id:     id,
		cfg:    cfg,
		status: StatusActive,
		bids:   matching.NewSlab(id, matching.Bid, cfg.SlabCapacity),
		asks:   matching.NewSlab(id, matching.Ask, cfg.SlabCapacity),
		events: matching.NewEventQueue(cfg.EventQueueCapacity),
		escrow: escrow,
		clock:  clock,
	}, nil
}

func (m *Market) ID() solana.PublicKey { return m.id }
func (m *Market) Config() Config        { return m.cfg }
func (m *Market) Status() Status        { return m.status }
func (m *Market) NextOrderID() uint64   { return m.nextOrderID }
func (m *Market) FeesAccrued() uint64   { return m.feesAccrued }

// SetStatus 只有 admin 能暂停/恢复市场
func (m *Market) SetStatus(signer solana.PublicKey, status Status) error {
	if m.cfg.Admin.IsZero() || signer != m.cfg.Admin {
		return matching.ErrUnauthorized
	}
	if status > StatusPaused {
		return ErrInvalidStatus
	}
	m.status = status
	return nil
}

// InitOpenOrders trader 第一次进入这个市场时创建账户
func (m *Market) InitOpenOrders(owner solana.PublicKey) (*matching.OpenOrders, error) {
	if owner.IsZero() {
		return nil, funds.ErrInvalidOwner
	}
	return matching.NewOpenOrders(m.id, owner, m.cfg.MaxOrdersPerUser), nil
}

func (m *Market) slab(side matching.Side) *matching.Slab {
	if side == matching.Bid {
		return m.bids
	}
	return m.asks
}

func (m *Market) mint(a matching.Asset) solana.PublicKey {
	if a == matching.Base {
		return m.cfg.BaseMint
	}
	return m.cfg.QuoteMint
}

func (m *Market) authorize(signer solana.PublicKey, oo *matching.OpenOrders) error {
	if oo == nil || oo.Market != m.id {
		return matching.ErrInvalidMarketAccount
	}
	if signer.IsZero() || signer != oo.Owner {
		return matching.ErrUnauthorized
	}
	return nil
}
