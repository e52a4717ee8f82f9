package matching

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

// slab 任意插入/删除序列之后：价格有序、同价 FIFO、链接和物理顺序一致
func TestSlabProperty_OrderingAndLinks(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		side := rapid.SampledFrom([]Side{Bid, Ask}).Draw(t, "side")
		s := NewSlab(testMarket, side, 32)
		arrival := map[uint64]int{}
		nextID := uint64(1)

		steps := rapid.IntRange(1, 80).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if s.Len() > 0 && rapid.Bool().Draw(t, "remove") {
				nodes := s.Nodes()
				victim := nodes[rapid.IntRange(0, len(nodes)-1).Draw(t, "victim")]
				if _, err := s.Remove(victim.OrderID); err != nil {
					t.Fatalf("remove: %v", err)
				}
				continue
			}
			price := rapid.Uint64Range(1, 20).Draw(t, "price")
			_, err := s.Insert(testMarket, Node{OrderID: nextID, Price: price, Quantity: 1})
			if err != nil && !errors.Is(err, ErrOrderbookFull) {
				t.Fatalf("insert: %v", err)
			}
			if err == nil {
				arrival[nextID] = i
			}
			nextID++
		}

		if s.Len()+s.FreeSlots() != s.Capacity() {
			t.Fatalf("len=%d free=%d cap=%d", s.Len(), s.FreeSlots(), s.Capacity())
		}
		nodes := s.Nodes()
		for i := 1; i < len(nodes); i++ {
			a, b := nodes[i-1], nodes[i]
			if side.Better(b.Price, a.Price) {
				t.Fatalf("out of order at %d: %d then %d", i, a.Price, b.Price)
			}
			if a.Price == b.Price && arrival[a.OrderID] > arrival[b.OrderID] {
				t.Fatalf("fifo broken at price %d", a.Price)
			}
		}
		for i, n := range nodes {
			if i > 0 && nodes[n.Prev].Next != uint32(i) {
				t.Fatalf("prev link broken at %d", i)
			}
			if i < len(nodes)-1 && nodes[n.Next].Prev != uint32(i) {
				t.Fatalf("next link broken at %d", i)
			}
		}
	})
}

// 撮合：成交量不超过 min(taker, 穿价 maker 总量)，成交价全是 maker 价，不留零数量节点
func TestMatchProperty_Conservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bids, asks, q := newBook()
		makerSide := rapid.SampledFrom([]Side{Bid, Ask}).Draw(t, "makerSide")
		makers, takers := asks, bids
		if makerSide == Bid {
			makers, takers = bids, asks
		}

		n := rapid.IntRange(0, 20).Draw(t, "makers")
		prices := map[uint64]uint64{}
		for i := 0; i < n; i++ {
			id := uint64(i + 1)
			price := rapid.Uint64Range(90, 110).Draw(t, "price")
			qty := rapid.Uint64Range(1, 50).Draw(t, "qty")
			if _, err := makers.Insert(testMarket, Node{OrderID: id, Price: price, Quantity: qty}); err != nil {
				t.Fatalf("seed: %v", err)
			}
			prices[id] = price
		}

		tp := rapid.Uint64Range(85, 115).Draw(t, "takerPrice")
		tq := rapid.Uint64Range(1, 400).Draw(t, "takerQty")
		var crossable uint64
		for _, m := range makers.Nodes() {
			if makerSide.Opposite().Crosses(tp, m.Price) {
				crossable += m.Quantity
			}
		}

		typ := rapid.SampledFrom([]OrderType{Limit, ImmediateOrCancel}).Draw(t, "type")
		o := &Order{OrderID: 1000, Market: testMarket, Type: typ, Side: makerSide.Opposite(), Price: tp, Quantity: tq}
		res, err := Match(o, takers, makers, q)
		if err != nil {
			t.Fatalf("match: %v", err)
		}
		if res.Filled != min(tq, crossable) {
			t.Fatalf("filled=%d want %d", res.Filled, min(tq, crossable))
		}
		if res.Filled+res.Remaining != tq {
			t.Fatalf("filled+remaining=%d want %d", res.Filled+res.Remaining, tq)
		}
		var prev uint64
		for i, f := range res.Fills {
			if f.Price != prices[f.MakerOrderID] {
				t.Fatalf("fill at %d, maker price %d", f.Price, prices[f.MakerOrderID])
			}
			if i > 0 && makerSide.Better(f.Price, prev) {
				t.Fatalf("price priority violated")
			}
			prev = f.Price
		}
		for _, m := range makers.Nodes() {
			if m.Quantity == 0 {
				t.Fatalf("zero quantity maker %d left in slab", m.OrderID)
			}
		}
		if typ == ImmediateOrCancel && takers.Len() != 0 {
			t.Fatalf("ioc rested")
		}
	})
}

func TestEventQueueProperty_Overwrite(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 40).Draw(t, "cap")
		total := rapid.IntRange(0, 120).Draw(t, "total")
		q := NewEventQueue(capacity)
		for i := 1; i <= total; i++ {
			q.Insert(QueueEvent{MakerOrderID: uint64(i)})
		}
		want := min(total, capacity)
		if q.Len() != want {
			t.Fatalf("len=%d want %d", q.Len(), want)
		}
		first := total - want + 1
		for i := first; i <= total; i++ {
			ev, ok := q.PopFront()
			if !ok || ev.MakerOrderID != uint64(i) {
				t.Fatalf("pop want %d got %+v", i, ev)
			}
		}
	})
}
