package matching

import "github.com/gagliardetto/solana-go"

// EventType 队列事件类型，按 maker 在这次迭代后的状态归类
type EventType uint8

const (
	EventFill EventType = iota + 1
	EventPartialFill
)

func (t EventType) String() string {
	switch t {
	case EventFill:
		return "fill"
	case EventPartialFill:
		return "partial_fill"
	default:
		return "unknown"
	}
}

// QueueEvent 一次撮合的不可变记录。Owner 是 taker，Counterparty 是 maker
type QueueEvent struct {
	Type               EventType
	Side               Side // taker 方向
	Owner              solana.PublicKey
	Counterparty       solana.PublicKey
	Price              uint64
	Quantity           uint64
	MakerRemaining     uint64
	MakerOrderID       uint64
	TakerOrderID       uint64
	MakerClientOrderID uint64
	TakerClientOrderID uint64
	Timestamp          int64
}

// EventQueue 固定容量环形缓冲。满了以后覆盖最旧的未读事件，
// 它是"要么消费要么丢"的通知通道，不是审计日志。
type EventQueue struct {
	events []QueueEvent
	head   uint32 // 下一个写入位置
	tail   uint32 // 最旧未读
	count  uint32
}

func NewEventQueue(capacity int) *EventQueue {
	if capacity <= 0 {
		capacity = DefaultEventQueueCapacity
	}
	return &EventQueue{events: make([]QueueEvent, capacity)}
}

func (q *EventQueue) Len() int      { return int(q.count) }
func (q *EventQueue) Capacity() int { return len(q.events) }

// Insert 写入一个事件，返回是否挤掉了最旧的那条
func (q *EventQueue) Insert(ev QueueEvent) (overwritten bool) {
	_, overwritten = q.InsertEvict(ev)
	return overwritten
}

// InsertEvict 同 Insert，另外把被挤掉的事件交回去，调用方负责给它的 maker 结算
func (q *EventQueue) InsertEvict(ev QueueEvent) (evicted QueueEvent, overwritten bool) {
	capacity := uint32(len(q.events))
	if q.count == capacity {
		evicted = q.events[q.tail]
		q.tail = (q.tail + 1) % capacity
		overwritten = true
	} else {
		q.count++
	}
	q.events[q.head] = ev
	q.head = (q.head + 1) % capacity
	return evicted, overwritten
}

// PopFront 取出最旧的事件；空队列返回 false，不算错误
func (q *EventQueue) PopFront() (QueueEvent, bool) {
	if q.count == 0 {
		return QueueEvent{}, false
	}
	ev := q.events[q.tail]
	q.events[q.tail] = QueueEvent{}
	q.tail = (q.tail + 1) % uint32(len(q.events))
	q.count--
	return ev, true
}

func (q *EventQueue) Peek() (QueueEvent, bool) {
	if q.count == 0 {
		return QueueEvent{}, false
	}
	return q.events[q.tail], true
}

// EventByOrderID 从旧到新找第一条涉及该订单的事件（maker 或 taker 一侧）
func (q *EventQueue) EventByOrderID(orderID uint64) (QueueEvent, error) {
	capacity := uint32(len(q.events))
	for i := uint32(0); i < q.count; i++ {
		ev := q.events[(q.tail+i)%capacity]
		if ev.MakerOrderID == orderID || ev.TakerOrderID == orderID {
			return ev, nil
		}
	}
	return QueueEvent{}, ErrOrderNotFound
}

// Events 未读事件从旧到新的拷贝
func (q *EventQueue) Events() []QueueEvent {
	capacity := uint32(len(q.events))
	out := make([]QueueEvent, 0, q.count)
	for i := uint32(0); i < q.count; i++ {
		out = append(out, q.events[(q.tail+i)%capacity])
	}
	return out
}

func (q *EventQueue) Clone() *EventQueue {
	c := *q
	c.events = make([]QueueEvent, len(q.events))
	copy(c.events, q.events)
	return &c
}
