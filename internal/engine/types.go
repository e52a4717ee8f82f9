package engine

import (
	"time"

	"clobex.com/internal/market"
	"clobex.com/internal/matching"
	"clobex.com/pkg/xerr"
	"github.com/gagliardetto/solana-go"
)

// CmdType 命令类型。会改状态的命令写 WAL，查询不写
type CmdType uint8

const (
	CmdInitOpenOrders CmdType = iota + 1
	CmdPlace
	CmdCancel
	CmdConsume
	CmdSettle
	CmdSetStatus

	CmdQueryBook
	CmdQueryOrder
	CmdQueryOwnerOrders
	CmdQueryEvents
	CmdQueryAccount
	CmdQueryMarket
)

var cmdNames = map[CmdType]string{
	CmdInitOpenOrders:   "init_open_orders",
	CmdPlace:            "place",
	CmdCancel:           "cancel",
	CmdConsume:          "consume",
	CmdSettle:           "settle",
	CmdSetStatus:        "set_status",
	CmdQueryBook:        "query_book",
	CmdQueryOrder:       "query_order",
	CmdQueryOwnerOrders: "query_owner_orders",
	CmdQueryEvents:      "query_events",
	CmdQueryAccount:     "query_account",
	CmdQueryMarket:      "query_market",
}

func (t CmdType) String() string {
	if s, ok := cmdNames[t]; ok {
		return s
	}
	return "unknown"
}

func (t CmdType) Valid() bool { _, ok := cmdNames[t]; return ok }

// Mutates 只有写命令需要落 WAL、需要回放
func (t CmdType) Mutates() bool { return t >= CmdInitOpenOrders && t <= CmdSetStatus }

// Command 发给某个市场 actor 的一条请求。
// Ts 在 Submit 时打上，是这条命令执行时 market 看到的时钟，回放时照用，保证结果一致。
type Command struct {
	Type   CmdType
	ReqID  uint64 // 上游追踪用
	Ts     int64  // unix ms
	Market solana.PublicKey
	Signer solana.PublicKey
	Owner  solana.PublicKey // InitOpenOrders / 账户查询的目标

	Side          matching.Side
	OrderType     matching.OrderType
	Price         uint64
	MaxBaseQty    uint64
	ClientOrderID uint64
	OrderID       uint64        // Cancel / 查单
	Limit         uint32        // Consume 条数、Book 深度，0 = 不限
	Status        market.Status // SetStatus

	reply chan reply
	enq   time.Time
}

// AccountView 账户快照，actor 外面拿不到活的 OpenOrders
type AccountView struct {
	Market solana.PublicKey
	Owner  solana.PublicKey
	matching.Balances
	Orders []matching.OpenOrder
}

// MarketView 市场概况
type MarketView struct {
	ID          solana.PublicKey
	Config      market.Config
	Status      market.Status
	NextOrderID uint64
	FeesAccrued uint64
	QueueLen    int
	BestBid     *matching.Node
	BestAsk     *matching.Node
}

// OrderView 盘口上某一笔单
type OrderView struct {
	Node matching.Node
	Side matching.Side
}

// Result 同步返回给调用方的结果，按命令类型只填一项
type Result struct {
	Seq     uint64 // WAL 序号，查询为 0
	Account *AccountView
	Place   *market.PlaceResult
	Cancel  *market.CancelResult
	Consume *market.ConsumeResult
	Settle  *market.SettleResult
	Book    *market.BookView
	Order   *OrderView
	Events  []matching.QueueEvent
	Market  *MarketView
}

type reply struct {
	res Result
	err error
}

var (
	ErrEngineBusy     = xerr.Define(xerr.KindUnavailable, 6300, "engine busy: mailbox full")
	ErrUnknownMarket  = xerr.Define(xerr.KindNotFound, 6301, "unknown market")
	ErrBadCommand     = xerr.Define(xerr.KindValidation, 6302, "bad command")
	ErrAccountExists  = xerr.Define(xerr.KindValidation, 6303, "open orders account already exists")
	ErrNoAccount      = xerr.Define(xerr.KindNotFound, 6304, "open orders account not found")
	ErrMarketExists   = xerr.Define(xerr.KindValidation, 6305, "market already registered")
	ErrWALFailure     = xerr.Define(xerr.KindUnavailable, 6306, "command log unavailable")
	ErrEngineStopped  = xerr.Define(xerr.KindUnavailable, 6307, "market actor stopped")
	ErrReplayDiverged = xerr.Define(xerr.KindUnknown, 6308, "command log replay diverged")
)
