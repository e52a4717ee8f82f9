package matching

import (
	"math"

	"github.com/gagliardetto/solana-go"
)

// NilIndex 表示 prev/next 没有邻居
const NilIndex uint32 = math.MaxUint32

const (
	DefaultSlabCapacity       = 32
	DefaultEventQueueCapacity = 32
)

// Side 买卖方向
type Side uint8

const (
	Bid Side = iota
	Ask
)

func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

func (s Side) Valid() bool { return s == Bid || s == Ask }

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

// Better reports whether price a has strictly higher priority than b on this side.
// asks: lower wins; bids: higher wins. Equal prices are never better, which keeps FIFO.
func (s Side) Better(a, b uint64) bool {
	if s == Ask {
		return a < b
	}
	return a > b
}

// Crosses reports whether a taker on side s at takerPrice can trade against a maker
// resting at makerPrice: the maker may not be strictly more aggressive than the taker.
// Bid: taker >= maker. Ask: taker <= maker.
func (s Side) Crosses(takerPrice, makerPrice uint64) bool {
	return !s.Better(makerPrice, takerPrice)
}

// OrderType 订单类型
type OrderType uint8

const (
	Limit OrderType = iota
	ImmediateOrCancel
	PostOnly
)

func (t OrderType) Valid() bool { return t <= PostOnly }

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	case ImmediateOrCancel:
		return "ioc"
	case PostOnly:
		return "post_only"
	default:
		return "unknown"
	}
}

// OrderStatus 订单状态
type OrderStatus uint8

const (
	StatusOpen OrderStatus = iota
	StatusPartialFill
	StatusFill
)

func (s OrderStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusPartialFill:
		return "partial_fill"
	case StatusFill:
		return "fill"
	default:
		return "unknown"
	}
}

// Node 挂在 slab 上的订单。Prev/Next 只是物理顺序的缓存，不是权威数据
type Node struct {
	OrderID       uint64
	ClientOrderID uint64
	Owner         solana.PublicKey
	Price         uint64
	Quantity      uint64 // 剩余未成交，单位 base lot
	Status        OrderStatus
	Timestamp     int64
	Prev          uint32
	Next          uint32
}

// Order 一次下单调用里的 taker，撮合结束后的 Quantity/Status 决定是否挂单
type Order struct {
	OrderID       uint64
	ClientOrderID uint64
	Owner         solana.PublicKey
	Market        solana.PublicKey
	Type          OrderType
	Side          Side
	Price         uint64
	Quantity      uint64
	Status        OrderStatus
	Timestamp     int64
}

// Fill 一次撮合迭代的结果，价格永远是 maker 的挂单价
type Fill struct {
	Type               EventType
	MakerOrderID       uint64
	MakerClientOrderID uint64
	Maker              solana.PublicKey
	Price              uint64
	Quantity           uint64
	MakerRemaining     uint64
}

// MatchResult 撮合输出
type MatchResult struct {
	Fills     []Fill
	Filled    uint64 // 成交 base lot 总量
	QuoteQty  uint64 // Σ qty*price
	Remaining uint64 // taker 剩余
	Rested    bool
	Status    OrderStatus
	// Evicted 队列满时被挤掉的未读事件，从旧到新
	Evicted   []QueueEvent
}
