package engine

import (
	"testing"

	"clobex.com/internal/market"
	"clobex.com/internal/matching"
)

func TestBinaryCmdCodec_RoundTrip(t *testing.T) {
	in := Command{
		Type:          CmdPlace,
		ReqID:         42,
		Ts:            testNow,
		Signer:        alice,
		Owner:         bob,
		Side:          matching.Ask,
		OrderType:     matching.PostOnly,
		Price:         1<<63 + 5,
		MaxBaseQty:    12_345,
		ClientOrderID: 9,
		OrderID:       77,
		Limit:         3,
		Status:        market.StatusPaused,
	}
	var c BinaryCmdCodec
	payload, err := c.Encode(nil, 11, in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(payload) != cmdRecordLen {
		t.Fatalf("len=%d want %d", len(payload), cmdRecordLen)
	}
	seq, out, err := c.Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if seq != 11 || out != in {
		t.Fatalf("round trip mismatch: seq=%d\n got %+v\nwant %+v", seq, out, in)
	}
}

func TestBinaryCmdCodec_Rejects(t *testing.T) {
	var c BinaryCmdCodec
	if _, err := c.Encode(nil, 1, Command{Type: CmdQueryBook}); err != ErrBadCmdType {
		t.Fatalf("query must not be logged, err=%v", err)
	}
	good, _ := c.Encode(nil, 1, Command{Type: CmdConsume})

	if _, _, err := c.Decode(good[:10]); err != ErrBadCmdRecordLen {
		t.Fatalf("short: %v", err)
	}
	bad := append([]byte(nil), good...)
	bad[offVer] = 9
	if _, _, err := c.Decode(bad); err != ErrBadCmdVersion {
		t.Fatalf("version: %v", err)
	}
	bad = append([]byte(nil), good...)
	bad[offType] = byte(CmdQueryEvents)
	if _, _, err := c.Decode(bad); err != ErrBadCmdType {
		t.Fatalf("type: %v", err)
	}
}

// 复用调用方的 buffer 时不能残留上一条的字节
func TestBinaryCmdCodec_ReusesBuffer(t *testing.T) {
	var c BinaryCmdCodec
	var rec [cmdRecordLen]byte
	first, _ := c.Encode(rec[:0], 1, Command{Type: CmdCancel, Signer: alice, OrderID: 5})
	_ = first
	second, _ := c.Encode(rec[:0], 2, Command{Type: CmdConsume})
	_, out, err := c.Decode(second)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Signer.IsZero() || out.OrderID != 0 {
		t.Fatalf("stale bytes leaked: %+v", out)
	}
}

func TestJSONCmdCodec_RoundTrip(t *testing.T) {
	in := Command{Type: CmdCancel, ReqID: 3, Ts: testNow, Signer: alice, OrderID: 8}
	c := JSONCmdCodec{Version: 1}
	payload, err := c.Encode(nil, 4, in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	seq, out, err := c.Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if seq != 4 || out != in {
		t.Fatalf("got %d %+v", seq, out)
	}
}
