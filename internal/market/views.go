package market

import (
	"clobex.com/internal/matching"
	"github.com/gagliardetto/solana-go"
)

// BookView 盘口快照，按优先级排好
type BookView struct {
	Bids []matching.Node
	Asks []matching.Node
}

func (m *Market) Book(depth int) BookView {
	bids, asks := m.bids.Nodes(), m.asks.Nodes()
	if depth > 0 {
		bids = bids[:min(depth, len(bids))]
		asks = asks[:min(depth, len(asks))]
	}
	return BookView{Bids: bids, Asks: asks}
}

func (m *Market) BestBid() (matching.Node, bool) { return m.bids.Best() }
func (m *Market) BestAsk() (matching.Node, bool) { return m.asks.Best() }

// OrderByID 两侧都找
func (m *Market) OrderByID(orderID uint64) (matching.Node, matching.Side, error) {
	if n, err := m.bids.OrderByID(orderID); err == nil {
		return n, matching.Bid, nil
	}
	n, err := m.asks.OrderByID(orderID)
	if err != nil {
		return matching.Node{}, 0, err
	}
	return n, matching.Ask, nil
}

func (m *Market) OrdersByOwner(owner solana.PublicKey) BookView {
	return BookView{Bids: m.bids.OrdersByOwner(owner), Asks: m.asks.OrdersByOwner(owner)}
}

// PendingEvents 未消费事件，从旧到新
func (m *Market) PendingEvents() []matching.QueueEvent { return m.events.Events() }

func (m *Market) EventByOrderID(orderID uint64) (matching.QueueEvent, error) {
	return m.events.EventByOrderID(orderID)
}

func (m *Market) QueueLen() int { return m.events.Len() }

// Depth 某一侧挂着多少单
func (m *Market) Depth(side matching.Side) int { return m.slab(side).Len() }
