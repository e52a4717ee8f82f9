package matching

import (
	"github.com/gagliardetto/solana-go"
)

// Slab 一个市场单边的挂单簿。
// nodes 的物理顺序就是价格优先级（ask 升序，bid 降序，同价 FIFO），
// 所以 best 永远是 nodes[0]，prev/next 只是跟物理顺序同步的邻居缓存。
type Slab struct {
	market    solana.PublicKey
	side      Side
	nodes     []Node
	capacity  uint32
	freeSlots uint32
}

func NewSlab(market solana.PublicKey, side Side, capacity int) *Slab {
	if capacity <= 0 {
		capacity = DefaultSlabCapacity
	}
	return &Slab{
		market:    market,
		side:      side,
		nodes:     make([]Node, 0, capacity),
		capacity:  uint32(capacity),
		freeSlots: uint32(capacity),
	}
}

func (s *Slab) Side() Side                { return s.side }
func (s *Slab) Market() solana.PublicKey { return s.market }
func (s *Slab) Len() int                 { return len(s.nodes) }
func (s *Slab) Capacity() int            { return int(s.capacity) }
func (s *Slab) FreeSlots() int           { return int(s.freeSlots) }

// Insert 按价格优先级插入一个挂单。任何前置条件失败都不会修改 slab
func (s *Slab) Insert(market solana.PublicKey, n Node) (uint32, error) {
	if uint32(len(s.nodes)) >= s.capacity {
		return 0, ErrOrderbookFull
	}
	if s.freeSlots == 0 {
		return 0, ErrNoSpace
	}
	if n.Quantity == 0 {
		return 0, ErrInvalidQty
	}
	if n.Price == 0 {
		return 0, ErrInvalidPrice
	}
	if s.indexOf(n.OrderID) >= 0 {
		return 0, ErrDuplicateOrderID
	}
	if market.IsZero() || market != s.market {
		return 0, ErrInvalidMarketAccount
	}

	pos := s.FindInsertPosition(n.Price)
	n.Prev, n.Next = NilIndex, NilIndex

	s.nodes = append(s.nodes, Node{})
	copy(s.nodes[pos+1:], s.nodes[pos:])
	s.nodes[pos] = n
	// pos 之后的节点整体后移一位，缓存的邻居下标全部要重算
	for i := pos; i < len(s.nodes); i++ {
		s.UpdateLinks(i)
	}

	s.freeSlots--
	return uint32(pos), nil
}

// FindInsertPosition 第一个比新价格"差"的位置；同价排在已有订单后面
func (s *Slab) FindInsertPosition(price uint64) int {
	for i := range s.nodes {
		if s.side.Better(price, s.nodes[i].Price) {
			return i
		}
	}
	return len(s.nodes)
}

// UpdateLinks 重建 index 处节点以及它两侧邻居的 prev/next
func (s *Slab) UpdateLinks(index int) {
	n := len(s.nodes)
	if index < 0 || index >= n {
		return
	}
	if n == 1 {
		s.nodes[0].Prev, s.nodes[0].Next = NilIndex, NilIndex
		return
	}
	// 左边界 / 内部
	if index == 0 {
		s.nodes[0].Prev = NilIndex
	} else {
		s.nodes[index].Prev = uint32(index - 1)
		s.nodes[index-1].Next = uint32(index)
	}
	// 右边界 / 内部
	if index == n-1 {
		s.nodes[index].Next = NilIndex
	} else {
		s.nodes[index].Next = uint32(index + 1)
		s.nodes[index+1].Prev = uint32(index)
	}
}

// Remove 按 order id 删除，空出来的位置两侧重新链接
func (s *Slab) Remove(orderID uint64) (Node, error) {
	pos := s.indexOf(orderID)
	if pos < 0 {
		return Node{}, ErrOrderNotFound
	}
	removed := s.nodes[pos]

	copy(s.nodes[pos:], s.nodes[pos+1:])
	s.nodes[len(s.nodes)-1] = Node{}
	s.nodes = s.nodes[:len(s.nodes)-1]

	switch {
	case len(s.nodes) == 0:
	case pos == len(s.nodes):
		// 删的是尾巴，新尾巴只需要断开 next
		s.UpdateLinks(pos - 1)
	default:
		for i := pos; i < len(s.nodes); i++ {
			s.UpdateLinks(i)
		}
	}

	s.freeSlots++
	removed.Prev, removed.Next = NilIndex, NilIndex
	return removed, nil
}

// Best 头部就是最优价
func (s *Slab) Best() (Node, bool) {
	if len(s.nodes) == 0 {
		return Node{}, false
	}
	return s.nodes[0], true
}

func (s *Slab) OrderByID(orderID uint64) (Node, error) {
	pos := s.indexOf(orderID)
	if pos < 0 {
		return Node{}, ErrOrderNotFound
	}
	return s.nodes[pos], nil
}

func (s *Slab) OrdersByOwner(owner solana.PublicKey) []Node {
	var out []Node
	for i := range s.nodes {
		if s.nodes[i].Owner == owner {
			out = append(out, s.nodes[i])
		}
	}
	return out
}

// Nodes 按优先级返回一份拷贝，给只读展示用
func (s *Slab) Nodes() []Node {
	out := make([]Node, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Clone 深拷贝，事务性执行时先在副本上改，成功再替换
func (s *Slab) Clone() *Slab {
	c := *s
	c.nodes = make([]Node, len(s.nodes), s.capacity)
	copy(c.nodes, s.nodes)
	return &c
}

// head 给撮合循环原地改 maker 数量用
func (s *Slab) head() *Node {
	if len(s.nodes) == 0 {
		return nil
	}
	return &s.nodes[0]
}

func (s *Slab) indexOf(orderID uint64) int {
	for i := range s.nodes {
		if s.nodes[i].OrderID == orderID {
			return i
		}
	}
	return -1
}
