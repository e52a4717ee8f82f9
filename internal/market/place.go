package market

import (
	"context"
	"fmt"

	"clobex.com/internal/matching"
	"github.com/gagliardetto/solana-go"
)

// PlaceRequest 下单参数
type PlaceRequest struct {
	Side          matching.Side
	Type          matching.OrderType
	Price         uint64 // quote lots / base lot
	MaxBaseQty    uint64 // base atoms，向下取整到 lot
	ClientOrderID uint64
	// Makers 队列满时被挤掉的事件要就地给 maker 结算，用它找账户。
	// 为空或者找不到账户时整笔下单失败，返回 ErrQueueFull
	Makers        AccountLookup
}

// PlaceResult 下单结果。数量单位都是 base lot
type PlaceResult struct {
	OrderID       uint64
	Status        matching.OrderStatus
	Fills         []matching.Fill
	Filled        uint64
	Remaining     uint64
	Rested        bool
	Locked        uint64 // 这次从钱包划进金库的数量
	TakerFee      uint64
	Overwritten   int    // 因为队列满被挤掉、已经就地结算的事件数
	MakerFee      uint64 // 就地结算收的 maker 手续费
	Notifications []Notification
}

// PlaceOrder 撮合 + 挂单 + 托管。
// 全部在副本上做，escrow.Lock 是最后一个可能失败的步骤，成功后才替换真实状态；
// 任何一步失败，slab / 队列 / 账户 / 订单号都保持调用前的样子。
// 队列满时被挤掉的事件在同一个事务里给 maker 结算，locked 余额不会悬空。
func (m *Market) PlaceOrder(ctx context.Context, signer solana.PublicKey, oo *matching.OpenOrders, req PlaceRequest) (*PlaceResult, error) {
	if m.status != StatusActive {
		return nil, matching.ErrMarketNotActive
	}
	if err := m.authorize(signer, oo); err != nil {
		return nil, err
	}
	if !req.Side.Valid() {
		return nil, matching.ErrInvalidSide
	}
	if !req.Type.Valid() {
		return nil, matching.ErrInvalidOrderType
	}
	if req.MaxBaseQty < m.cfg.MinOrderSize {
		return nil, matching.ErrMarketOrderSize
	}
	lots := req.MaxBaseQty / m.cfg.BaseLotSize
	if lots == 0 {
		return nil, matching.ErrInvalidQty
	}
	if req.Price == 0 {
		return nil, matching.ErrInvalidPrice
	}
	orderID, err := matching.CheckedAdd(m.nextOrderID, 1)
	if err != nil {
		return nil, matching.ErrOrderIDOverflow
	}

	bids, asks, events, acct := m.bids.Clone(), m.asks.Clone(), m.events.Clone(), oo.Clone()
	same, opposite := bids, asks
	if req.Side == matching.Ask {
		same, opposite = asks, bids
	}

	order := &matching.Order{
		OrderID:       orderID,
		ClientOrderID: req.ClientOrderID,
		Owner:         oo.Owner,
		Market:        m.id,
		Type:          req.Type,
		Side:          req.Side,
		Price:         req.Price,
		Quantity:      lots,
		Status:        matching.StatusOpen,
		Timestamp:     m.clock.Now(),
	}
	res, err := matching.Match(order, same, opposite, events)
	if err != nil {
		return nil, err
	}

	var restLots uint64
	if res.Rested {
		restLots = res.Remaining
	}
	lockAsset, lockAmt, takerFee, err := m.settleTaker(acct, req, res, restLots)
	if err != nil {
		return nil, err
	}
	fees, err := matching.CheckedAdd(m.feesAccrued, takerFee)
	if err != nil {
		return nil, err
	}
	makers, makerFee, err := m.settleEvicted(acct, res.Evicted, req.Makers)
	if err != nil {
		return nil, err
	}
	if fees, err = matching.CheckedAdd(fees, makerFee); err != nil {
		return nil, err
	}
	if res.Rested {
		if err := acct.Push(matching.OpenOrder{
			OrderID:       orderID,
			ClientOrderID: req.ClientOrderID,
			Type:          req.Type,
			Side:          req.Side,
			Price:         req.Price,
			Quantity:      restLots,
			Status:        res.Status,
		}); err != nil {
			return nil, err
		}
	}

	if lockAmt > 0 {
		if err := m.escrow.Lock(ctx, oo.Owner, m.mint(lockAsset), lockAmt); err != nil {
			return nil, fmt.Errorf("escrow lock %d %s: %w", lockAmt, lockAsset, err)
		}
	}

	// commit
	m.bids, m.asks, m.events = bids, asks, events
	*oo = *acct
	for owner, a := range makers {
		*req.Makers(owner) = *a
	}
	m.nextOrderID = orderID
	m.feesAccrued = fees

	out := &PlaceResult{
		OrderID:     orderID,
		Status:      res.Status,
		Fills:       res.Fills,
		Filled:      res.Filled,
		Remaining:   res.Remaining,
		Rested:      res.Rested,
		Locked:      lockAmt,
		TakerFee:    takerFee,
		Overwritten: len(res.Evicted),
		MakerFee:    makerFee,
	}
	out.Notifications = m.fillNotifications(order, res.Fills)
	switch {
	case res.Rested:
		out.Notifications = append(out.Notifications, m.orderNotification(OrderPlaced, order, res.Filled, restLots, 0))
	case res.Remaining > 0:
		// IOC 剩余部分直接丢弃
		out.Notifications = append(out.Notifications, m.orderNotification(OrderReduced, order, res.Filled, 0, res.Remaining))
	}
	return out, nil
}

// settleEvicted 给被挤出队列的事件结算 maker，和 ConsumeEvents 一样只改副本。
// taker 自己也可能是被挤掉事件的 maker，所以它的副本先放进 touched
func (m *Market) settleEvicted(taker *matching.OpenOrders, evicted []matching.QueueEvent, lookup AccountLookup) (map[solana.PublicKey]*matching.OpenOrders, uint64, error) {
	if len(evicted) == 0 {
		return nil, 0, nil
	}
	if lookup == nil {
		return nil, 0, matching.ErrQueueFull
	}
	touched := map[solana.PublicKey]*matching.OpenOrders{taker.Owner: taker}
	var total uint64
	for _, ev := range evicted {
		acct, ok := touched[ev.Counterparty]
		if !ok {
			orig := lookup(ev.Counterparty)
			if orig == nil {
				return nil, 0, fmt.Errorf("%w: no account for maker %s", matching.ErrQueueFull, ev.Counterparty)
			}
			acct = orig.Clone()
			touched[ev.Counterparty] = acct
		}
		makerFee, err := m.settleMaker(acct, ev)
		if err != nil {
			return nil, 0, fmt.Errorf("settle evicted event maker=%d taker=%d: %w", ev.MakerOrderID, ev.TakerOrderID, err)
		}
		if total, err = matching.CheckedAdd(total, makerFee); err != nil {
			return nil, 0, err
		}
	}
	delete(touched, taker.Owner)
	return touched, total, nil
}

// settleTaker 计算 taker 这一侧要托管多少，并在账户副本上记账。
// 买单：成交部分的 quote + taker 手续费 + 剩余挂单的承诺；卖单：成交 + 挂单的 base。
func (m *Market) settleTaker(acct *matching.OpenOrders, req PlaceRequest, res matching.MatchResult, restLots uint64) (matching.Asset, uint64, uint64, error) {
	filledNotional, err := matching.CheckedMul(res.QuoteQty, m.cfg.QuoteLotSize)
	if err != nil {
		return 0, 0, 0, err
	}
	takerFee, err := fee(filledNotional, m.cfg.TakerFeeBps)
	if err != nil {
		return 0, 0, 0, err
	}
	filledBase, err := m.baseAtoms(res.Filled)
	if err != nil {
		return 0, 0, 0, err
	}
	restAsset, restCommit, err := m.commitment(req.Side, req.Price, restLots)
	if err != nil {
		return 0, 0, 0, err
	}

	var lockAmt uint64
	if req.Side == matching.Bid {
		spend, err := matching.CheckedAdd(filledNotional, takerFee)
		if err != nil {
			return 0, 0, 0, err
		}
		if lockAmt, err = matching.CheckedAdd(spend, restCommit); err != nil {
			return 0, 0, 0, err
		}
		if err := acct.Credit(matching.Base, filledBase); err != nil {
			return 0, 0, 0, err
		}
	} else {
		if lockAmt, err = matching.CheckedAdd(filledBase, restCommit); err != nil {
			return 0, 0, 0, err
		}
		proceeds, err := matching.CheckedSub(filledNotional, takerFee)
		if err != nil {
			return 0, 0, 0, err
		}
		if err := acct.Credit(matching.Quote, proceeds); err != nil {
			return 0, 0, 0, err
		}
	}
	if err := acct.Lock(restAsset, restCommit); err != nil {
		return 0, 0, 0, err
	}
	return restAsset, lockAmt, takerFee, nil
}

func (m *Market) orderNotification(kind NotificationKind, order *matching.Order, filled, remaining, reduced uint64) Notification {
	return Notification{
		Kind:              kind,
		Market:            m.id,
		Owner:             order.Owner,
		OrderID:           order.OrderID,
		ClientOrderID:     order.ClientOrderID,
		Side:              order.Side,
		Price:             order.Price,
		BaseLotsFilled:    filled,
		BaseLotsRemaining: remaining,
		BaseLotsReduced:   reduced,
		Timestamp:         order.Timestamp,
	}
}
