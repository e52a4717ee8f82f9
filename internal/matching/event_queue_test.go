package matching

import (
	"errors"
	"testing"
)

func TestEventQueue_FIFO(t *testing.T) {
	q := NewEventQueue(4)
	if _, ok := q.PopFront(); ok {
		t.Fatalf("pop on empty should report false")
	}
	for i := uint64(1); i <= 3; i++ {
		if q.Insert(QueueEvent{MakerOrderID: i}) {
			t.Fatalf("unexpected overwrite at %d", i)
		}
	}
	ev, ok := q.Peek()
	if !ok || ev.MakerOrderID != 1 || q.Len() != 3 {
		t.Fatalf("peek=%+v ok=%v len=%d", ev, ok, q.Len())
	}
	for i := uint64(1); i <= 3; i++ {
		ev, ok := q.PopFront()
		if !ok || ev.MakerOrderID != i {
			t.Fatalf("pop %d got %+v", i, ev)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("len=%d", q.Len())
	}
}

func TestEventQueue_OverwriteOldest(t *testing.T) {
	const capacity = 32
	q := NewEventQueue(capacity)
	for i := uint64(1); i <= capacity+1; i++ {
		dropped := q.Insert(QueueEvent{MakerOrderID: i})
		if dropped != (i == capacity+1) {
			t.Fatalf("insert %d: dropped=%v", i, dropped)
		}
	}
	if q.Len() != capacity {
		t.Fatalf("len=%d, want %d", q.Len(), capacity)
	}
	if _, err := q.EventByOrderID(1); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("oldest event still reachable: %v", err)
	}
	for i := uint64(2); i <= capacity+1; i++ {
		ev, ok := q.PopFront()
		if !ok || ev.MakerOrderID != i {
			t.Fatalf("pop want %d got %+v", i, ev)
		}
	}
}

func TestEventQueue_EventByOrderID(t *testing.T) {
	q := NewEventQueue(4)
	q.Insert(QueueEvent{MakerOrderID: 7, TakerOrderID: 9, Quantity: 1})
	q.Insert(QueueEvent{MakerOrderID: 8, TakerOrderID: 9, Quantity: 2})

	ev, err := q.EventByOrderID(9)
	if err != nil || ev.Quantity != 1 {
		t.Fatalf("by taker id: %+v %v", ev, err)
	}
	ev, err = q.EventByOrderID(8)
	if err != nil || ev.Quantity != 2 {
		t.Fatalf("by maker id: %+v %v", ev, err)
	}
}

func TestEventQueue_WrapAround(t *testing.T) {
	q := NewEventQueue(3)
	q.Insert(QueueEvent{MakerOrderID: 1})
	q.Insert(QueueEvent{MakerOrderID: 2})
	q.PopFront()
	q.Insert(QueueEvent{MakerOrderID: 3})
	q.Insert(QueueEvent{MakerOrderID: 4})

	got := q.Events()
	if len(got) != 3 || got[0].MakerOrderID != 2 || got[2].MakerOrderID != 4 {
		t.Fatalf("events=%+v", got)
	}
}

func TestEventQueue_InsertEvictReturnsOldest(t *testing.T) {
	q := NewEventQueue(2)
	for i := uint64(1); i <= 2; i++ {
		if _, ow := q.InsertEvict(QueueEvent{MakerOrderID: i}); ow {
			t.Fatalf("insert %d overwrote", i)
		}
	}
	ev, ow := q.InsertEvict(QueueEvent{MakerOrderID: 3})
	if !ow || ev.MakerOrderID != 1 {
		t.Fatalf("evicted=%+v overwritten=%v", ev, ow)
	}
	if head, _ := q.Peek(); head.MakerOrderID != 2 {
		t.Fatalf("head=%+v", head)
	}
}
