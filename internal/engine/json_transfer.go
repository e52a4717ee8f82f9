package engine

import (
	"clobex.com/internal/market"
	"github.com/segmentio/encoding/json"
)

type cmdJSON struct {
	V   uint8   `json:"v"`
	Seq uint64  `json:"seq"`
	Cmd Command `json:"cmd"`
}

// JSONCmdCodec 可读的 WAL 编码，排查问题时用，线上默认走二进制
type JSONCmdCodec struct{ Version uint8 }

func (c JSONCmdCodec) Encode(dst []byte, seq uint64, cmd Command) ([]byte, error) {
	if !cmd.Type.Mutates() {
		return nil, ErrBadCmdType
	}
	b, err := json.Marshal(cmdJSON{V: c.Version, Seq: seq, Cmd: cmd})
	if err != nil {
		return nil, err
	}
	return append(dst[:0], b...), nil
}

func (c JSONCmdCodec) Decode(payload []byte) (uint64, Command, error) {
	var rec cmdJSON
	if err := json.Unmarshal(payload, &rec); err != nil {
		return 0, Command{}, err
	}
	if !rec.Cmd.Type.Mutates() {
		return 0, Command{}, ErrBadCmdType
	}
	return rec.Seq, rec.Cmd, nil
}

// NotificationJSON 总线通知的对外格式
type NotificationJSON struct {
	Topic             string `json:"topic"`
	Market            string `json:"market"`
	Owner             string `json:"owner"`
	OrderID           uint64 `json:"orderId"`
	ClientOrderID     uint64 `json:"clientOrderId,omitempty"`
	Taker             string `json:"taker,omitempty"`
	TakerOrderID      uint64 `json:"takerOrderId,omitempty"`
	Side              string `json:"side"`
	Price             uint64 `json:"price"`
	BaseLotsFilled    uint64 `json:"baseLotsFilled"`
	BaseLotsRemaining uint64 `json:"baseLotsRemaining"`
	BaseLotsReduced   uint64 `json:"baseLotsReduced,omitempty"`
	Timestamp         int64  `json:"ts"`
}

func EncodeNotification(n market.Notification) ([]byte, error) {
	out := NotificationJSON{
		Topic:             n.Kind.Topic(),
		Market:            n.Market.String(),
		Owner:             n.Owner.String(),
		OrderID:           n.OrderID,
		ClientOrderID:     n.ClientOrderID,
		TakerOrderID:      n.TakerOrderID,
		Side:              n.Side.String(),
		Price:             n.Price,
		BaseLotsFilled:    n.BaseLotsFilled,
		BaseLotsRemaining: n.BaseLotsRemaining,
		BaseLotsReduced:   n.BaseLotsReduced,
		Timestamp:         n.Timestamp,
	}
	if !n.Taker.IsZero() {
		out.Taker = n.Taker.String()
	}
	return json.Marshal(out)
}
