package market

import (
	"context"
	"fmt"

	"clobex.com/internal/matching"
	"github.com/gagliardetto/solana-go"
)

type CancelResult struct {
	Order        matching.Node
	Side         matching.Side
	Released     uint64
	Asset        matching.Asset
	Notification Notification
}

// CancelOrder 撤掉一笔还挂着的单：从 slab 和账户里删掉，承诺金额 locked -> free，
// 再通过 escrow 划回钱包。escrow 失败则什么都不改。
func (m *Market) CancelOrder(ctx context.Context, signer solana.PublicKey, oo *matching.OpenOrders, orderID uint64) (*CancelResult, error) {
	if err := m.authorize(signer, oo); err != nil {
		return nil, err
	}
	open, err := oo.Order(orderID)
	if err != nil {
		return nil, err
	}
	slab := m.slab(open.Side)
	node, err := slab.OrderByID(orderID)
	if err != nil {
		if _, qerr := m.events.EventByOrderID(orderID); qerr == nil {
			return nil, fmt.Errorf("order %d filled, awaiting event consumption: %w", orderID, err)
		}
		return nil, err
	}
	if node.Owner != oo.Owner {
		return nil, matching.ErrUnauthorized
	}

	asset, amount, err := m.commitment(open.Side, node.Price, node.Quantity)
	if err != nil {
		return nil, err
	}
	book, acct := slab.Clone(), oo.Clone()
	if _, err := book.Remove(orderID); err != nil {
		return nil, err
	}
	if _, err := acct.Remove(orderID); err != nil {
		return nil, err
	}
	if err := acct.Unlock(asset, amount); err != nil {
		return nil, err
	}
	// 撤单即时退款：刚解锁的部分直接提走，free 里原有的余额不动
	if err := acct.Withdraw(asset, amount); err != nil {
		return nil, err
	}
	if amount > 0 {
		if err := m.escrow.Release(ctx, oo.Owner, m.mint(asset), amount); err != nil {
			return nil, fmt.Errorf("escrow release %d %s: %w", amount, asset, err)
		}
	}

	if open.Side == matching.Bid {
		m.bids = book
	} else {
		m.asks = book
	}
	*oo = *acct

	return &CancelResult{
		Order:    node,
		Side:     open.Side,
		Released: amount,
		Asset:    asset,
		Notification: Notification{
			Kind:              OrderCancelled,
			Market:            m.id,
			Owner:             node.Owner,
			OrderID:           node.OrderID,
			ClientOrderID:     node.ClientOrderID,
			Side:              open.Side,
			Price:             node.Price,
			BaseLotsRemaining: 0,
			BaseLotsReduced:   node.Quantity,
			Timestamp:         m.clock.Now(),
		},
	}, nil
}
