package market

import (
	"clobex.com/internal/matching"
	"github.com/gagliardetto/solana-go"
)

// NotificationKind 订单生命周期通知，给索引/UI 用
type NotificationKind uint8

const (
	OrderPlaced NotificationKind = iota + 1
	OrderFilled
	OrderPartiallyFilled
	OrderReduced
	OrderCancelled
)

// Topic 对外广播时的主题名
func (k NotificationKind) Topic() string {
	switch k {
	case OrderPlaced:
		return "order.placed"
	case OrderFilled:
		return "order.filled"
	case OrderPartiallyFilled:
		return "order.partially_filled"
	case OrderReduced:
		return "order.reduced"
	case OrderCancelled:
		return "order.cancelled"
	default:
		return "order.unknown"
	}
}

// Notification 成交类通知里 Owner 是 maker，Taker 是吃单方
type Notification struct {
	Kind              NotificationKind
	Market            solana.PublicKey
	Owner             solana.PublicKey
	OrderID           uint64
	ClientOrderID     uint64
	Taker             solana.PublicKey
	TakerOrderID      uint64
	Side              matching.Side
	Price             uint64
	BaseLotsFilled    uint64
	BaseLotsRemaining uint64
	BaseLotsReduced   uint64
	Timestamp         int64
}

func (m *Market) fillNotifications(order *matching.Order, fills []matching.Fill) []Notification {
	out := make([]Notification, 0, len(fills)+1)
	for _, f := range fills {
		kind := OrderPartiallyFilled
		if f.Type == matching.EventFill {
			kind = OrderFilled
		}
		out = append(out, Notification{
			Kind:              kind,
			Market:            m.id,
			Owner:             f.Maker,
			OrderID:           f.MakerOrderID,
			ClientOrderID:     f.MakerClientOrderID,
			Taker:             order.Owner,
			TakerOrderID:      order.OrderID,
			Side:              order.Side.Opposite(),
			Price:             f.Price,
			BaseLotsFilled:    f.Quantity,
			BaseLotsRemaining: f.MakerRemaining,
			Timestamp:         order.Timestamp,
		})
	}
	return out
}
