package matching

import (
	"math"

	"github.com/gagliardetto/solana-go"
)

// MaxOpenOrders 单个账户在一个市场里最多同时挂的单
const MaxOpenOrders = 16

// Asset 资产类型
type Asset uint8

const (
	Base Asset = iota
	Quote
)

func (a Asset) String() string {
	if a == Base {
		return "base"
	}
	return "quote"
}

// OpenOrder 账户视角下的一笔挂单，镜像 slab 的一部分状态
type OpenOrder struct {
	OrderID       uint64
	ClientOrderID uint64
	Type          OrderType
	Side          Side
	Price         uint64
	Quantity      uint64
	Status        OrderStatus
}

// Balances 四个余额桶
type Balances struct {
	BaseFree    uint64
	BaseLocked  uint64
	QuoteFree   uint64
	QuoteLocked uint64
}

// OpenOrders 某个 trader 在某个市场的挂单集合 + 余额。
// 不变量：locked == 当前所有挂单的承诺金额之和。
type OpenOrders struct {
	Market solana.PublicKey
	Owner  solana.PublicKey
	Balances

	orders    []OpenOrder
	count     uint8
	maxOrders int
}

func NewOpenOrders(market, owner solana.PublicKey, maxOrders int) *OpenOrders {
	if maxOrders <= 0 || maxOrders > MaxOpenOrders {
		maxOrders = MaxOpenOrders
	}
	return &OpenOrders{
		Market:    market,
		Owner:     owner,
		orders:    make([]OpenOrder, 0, maxOrders),
		maxOrders: maxOrders,
	}
}

func (o *OpenOrders) Len() int       { return int(o.count) }
func (o *OpenOrders) MaxOrders() int { return o.maxOrders }

func (o *OpenOrders) Push(order OpenOrder) error {
	if len(o.orders) >= o.maxOrders {
		return ErrOrderFull
	}
	if order.Price == 0 {
		return ErrPriceIsTooLow
	}
	if o.count == math.MaxUint8 {
		return ErrOrderOverflow
	}
	o.orders = append(o.orders, order)
	o.count++
	return nil
}

func (o *OpenOrders) Remove(orderID uint64) (OpenOrder, error) {
	i := o.indexOf(orderID)
	if i < 0 {
		return OpenOrder{}, ErrOrderNotFound
	}
	removed := o.orders[i]
	o.orders = append(o.orders[:i], o.orders[i+1:]...)
	o.count--
	return removed, nil
}

func (o *OpenOrders) Order(orderID uint64) (OpenOrder, error) {
	i := o.indexOf(orderID)
	if i < 0 {
		return OpenOrder{}, ErrOrderNotFound
	}
	return o.orders[i], nil
}

func (o *OpenOrders) Orders() []OpenOrder {
	out := make([]OpenOrder, len(o.orders))
	copy(out, o.orders)
	return out
}

// SetRemaining maker 被部分成交后同步剩余数量
func (o *OpenOrders) SetRemaining(orderID, qty uint64, status OrderStatus) error {
	i := o.indexOf(orderID)
	if i < 0 {
		return ErrOrderNotFound
	}
	o.orders[i].Quantity = qty
	o.orders[i].Status = status
	return nil
}

// Lock escrow 入金后记入 locked
func (o *OpenOrders) Lock(a Asset, amount uint64) error {
	locked := o.locked(a)
	v, err := checkedAdd(*locked, amount)
	if err != nil {
		return err
	}
	*locked = v
	return nil
}

// Unlock locked -> free，撤单时用
func (o *OpenOrders) Unlock(a Asset, amount uint64) error {
	locked, free := o.locked(a), o.free(a)
	l, err := checkedSub(*locked, amount)
	if err != nil {
		return err
	}
	f, err := checkedAdd(*free, amount)
	if err != nil {
		return err
	}
	*locked, *free = l, f
	return nil
}

// ConsumeLocked 成交时扣 locked
func (o *OpenOrders) ConsumeLocked(a Asset, amount uint64) error {
	locked := o.locked(a)
	v, err := checkedSub(*locked, amount)
	if err != nil {
		return err
	}
	*locked = v
	return nil
}

// Credit 成交所得记入 free
func (o *OpenOrders) Credit(a Asset, amount uint64) error {
	free := o.free(a)
	v, err := checkedAdd(*free, amount)
	if err != nil {
		return err
	}
	*free = v
	return nil
}

// Withdraw 结算提走 free
func (o *OpenOrders) Withdraw(a Asset, amount uint64) error {
	free := o.free(a)
	v, err := checkedSub(*free, amount)
	if err != nil {
		return err
	}
	*free = v
	return nil
}

func (o *OpenOrders) Clone() *OpenOrders {
	c := *o
	c.orders = make([]OpenOrder, len(o.orders), o.maxOrders)
	copy(c.orders, o.orders)
	return &c
}

func (o *OpenOrders) locked(a Asset) *uint64 {
	if a == Base {
		return &o.BaseLocked
	}
	return &o.QuoteLocked
}

func (o *OpenOrders) free(a Asset) *uint64 {
	if a == Base {
		return &o.BaseFree
	}
	return &o.QuoteFree
}

func (o *OpenOrders) indexOf(orderID uint64) int {
	for i := range o.orders {
		if o.orders[i].OrderID == orderID {
			return i
		}
	}
	return -1
}
