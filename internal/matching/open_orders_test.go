package matching

import (
	"errors"
	"math"
	"testing"
)

func TestOpenOrders_PushRemove(t *testing.T) {
	oo := NewOpenOrders(testMarket, key(1), 2)
	if err := oo.Push(OpenOrder{OrderID: 1, Price: 0}); !errors.Is(err, ErrPriceIsTooLow) {
		t.Fatalf("zero price: %v", err)
	}
	if err := oo.Push(OpenOrder{OrderID: 1, Price: 10, Quantity: 1}); err != nil {
		t.Fatal(err)
	}
	if err := oo.Push(OpenOrder{OrderID: 2, Price: 10, Quantity: 1}); err != nil {
		t.Fatal(err)
	}
	if err := oo.Push(OpenOrder{OrderID: 3, Price: 10, Quantity: 1}); !errors.Is(err, ErrOrderFull) {
		t.Fatalf("full: %v", err)
	}
	if _, err := oo.Remove(1); err != nil {
		t.Fatal(err)
	}
	if _, err := oo.Remove(1); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("double remove: %v", err)
	}
	if oo.Len() != 1 {
		t.Fatalf("len=%d", oo.Len())
	}
}

func TestOpenOrders_MaxClamped(t *testing.T) {
	oo := NewOpenOrders(testMarket, key(1), 100)
	if oo.MaxOrders() != MaxOpenOrders {
		t.Fatalf("max=%d", oo.MaxOrders())
	}
}

func TestOpenOrders_Balances(t *testing.T) {
	oo := NewOpenOrders(testMarket, key(1), 0)
	if err := oo.Lock(Quote, 500); err != nil {
		t.Fatal(err)
	}
	if err := oo.ConsumeLocked(Quote, 200); err != nil {
		t.Fatal(err)
	}
	if err := oo.Unlock(Quote, 300); err != nil {
		t.Fatal(err)
	}
	if oo.QuoteLocked != 0 || oo.QuoteFree != 300 {
		t.Fatalf("balances=%+v", oo.Balances)
	}
	if err := oo.Unlock(Quote, 1); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("unlock underflow: %v", err)
	}
	if oo.QuoteFree != 300 {
		t.Fatalf("failed unlock mutated free: %d", oo.QuoteFree)
	}
	oo.BaseFree = math.MaxUint64
	if err := oo.Credit(Base, 1); !errors.Is(err, ErrOverflow) {
		t.Fatalf("credit overflow: %v", err)
	}
	if err := oo.Withdraw(Quote, 300); err != nil || oo.QuoteFree != 0 {
		t.Fatalf("withdraw: %v %d", err, oo.QuoteFree)
	}
}

func TestCheckedMath(t *testing.T) {
	if _, err := checkedMul(math.MaxUint64, 2); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("mul: %v", err)
	}
	if _, err := checkedSub(1, 2); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("sub: %v", err)
	}
	v, err := MulDiv(math.MaxUint64, 30, 10000)
	if err != nil || v != math.MaxUint64/10000*30+(math.MaxUint64%10000)*30/10000 {
		t.Fatalf("muldiv=%d err=%v", v, err)
	}
	if _, err := MulDiv(math.MaxUint64, 2, 1); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("muldiv overflow: %v", err)
	}
}
