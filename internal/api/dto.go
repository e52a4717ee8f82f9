package api

import (
	"fmt"

	"clobex.com/internal/engine"
	"clobex.com/internal/market"
	"clobex.com/internal/matching"
	"github.com/gagliardetto/solana-go"
)

type initAccountReq struct {
	Owner  string `json:"owner" binding:"required"`
	Signer string `json:"signer"` // 空 = owner 自己
}

type placeReq struct {
	Signer        string `json:"signer" binding:"required"`
	Side          string `json:"side" binding:"required"`
	Type          string `json:"type"` // limit | ioc | post_only，默认 limit
	Price         uint64 `json:"price" binding:"required"`
	MaxBaseQty    uint64 `json:"maxBaseQty" binding:"required"`
	ClientOrderID uint64 `json:"clientOrderId"`
}

type signerReq struct {
	Signer string `json:"signer" binding:"required"`
}

type statusReq struct {
	Signer string `json:"signer" binding:"required"`
	Status string `json:"status" binding:"required"`
}

type crankReq struct {
	Limit uint32 `json:"limit"`
}

func parseKey(s string) (solana.PublicKey, error) {
	k, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("bad public key %q", s)
	}
	return k, nil
}

func parseSide(s string) (matching.Side, error) {
	switch s {
	case "bid", "buy":
		return matching.Bid, nil
	case "ask", "sell":
		return matching.Ask, nil
	}
	return 0, fmt.Errorf("bad side %q", s)
}

func parseOrderType(s string) (matching.OrderType, error) {
	switch s {
	case "", "limit":
		return matching.Limit, nil
	case "ioc", "immediate_or_cancel":
		return matching.ImmediateOrCancel, nil
	case "post_only":
		return matching.PostOnly, nil
	}
	return 0, fmt.Errorf("bad order type %q", s)
}

func parseStatus(s string) (market.Status, error) {
	for _, st := range []market.Status{market.StatusInactive, market.StatusActive, market.StatusPaused} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("bad status %q", s)
}

type orderDTO struct {
	OrderID       uint64 `json:"orderId"`
	ClientOrderID uint64 `json:"clientOrderId"`
	Owner         string `json:"owner,omitempty"`
	Side          string `json:"side"`
	Type          string `json:"type,omitempty"`
	Price         uint64 `json:"price"`
	Quantity      uint64 `json:"quantity"`
	Status        string `json:"status"`
	Ts            int64  `json:"ts,omitempty"`
}

func nodeDTO(n matching.Node, side matching.Side) orderDTO {
	return orderDTO{
		OrderID:       n.OrderID,
		ClientOrderID: n.ClientOrderID,
		Owner:         n.Owner.String(),
		Side:          side.String(),
		Price:         n.Price,
		Quantity:      n.Quantity,
		Status:        n.Status.String(),
		Ts:            n.Timestamp,
	}
}

type bookDTO struct {
	Bids []orderDTO `json:"bids"`
	Asks []orderDTO `json:"asks"`
}

func toBook(v *market.BookView) bookDTO {
	out := bookDTO{Bids: make([]orderDTO, 0, len(v.Bids)), Asks: make([]orderDTO, 0, len(v.Asks))}
	for _, n := range v.Bids {
		out.Bids = append(out.Bids, nodeDTO(n, matching.Bid))
	}
	for _, n := range v.Asks {
		out.Asks = append(out.Asks, nodeDTO(n, matching.Ask))
	}
	return out
}

type accountDTO struct {
	Market      string     `json:"market"`
	Owner       string     `json:"owner"`
	BaseFree    uint64     `json:"baseFree"`
	BaseLocked  uint64     `json:"baseLocked"`
	QuoteFree   uint64     `json:"quoteFree"`
	QuoteLocked uint64     `json:"quoteLocked"`
	Orders      []orderDTO `json:"orders"`
}

func toAccount(v *engine.AccountView) accountDTO {
	out := accountDTO{
		Market:      v.Market.String(),
		Owner:       v.Owner.String(),
		BaseFree:    v.BaseFree,
		BaseLocked:  v.BaseLocked,
		QuoteFree:   v.QuoteFree,
		QuoteLocked: v.QuoteLocked,
		Orders:      make([]orderDTO, 0, len(v.Orders)),
	}
	for _, o := range v.Orders {
		out.Orders = append(out.Orders, orderDTO{
			OrderID:       o.OrderID,
			ClientOrderID: o.ClientOrderID,
			Side:          o.Side.String(),
			Type:          o.Type.String(),
			Price:         o.Price,
			Quantity:      o.Quantity,
			Status:        o.Status.String(),
		})
	}
	return out
}

type fillDTO struct {
	Type           string `json:"type"`
	MakerOrderID   uint64 `json:"makerOrderId"`
	Maker          string `json:"maker"`
	Price          uint64 `json:"price"`
	Quantity       uint64 `json:"quantity"`
	MakerRemaining uint64 `json:"makerRemaining"`
}

type placeDTO struct {
	OrderID     uint64    `json:"orderId"`
	Status      string    `json:"status"`
	Filled      uint64    `json:"filled"`
	Remaining   uint64    `json:"remaining"`
	Rested      bool      `json:"rested"`
	Locked      uint64    `json:"locked"`
	TakerFee    uint64    `json:"takerFee"`
	Overwritten int       `json:"overwritten"`
	Fills       []fillDTO `json:"fills"`
	Seq         uint64    `json:"seq"`
}

func toPlace(seq uint64, r *market.PlaceResult) placeDTO {
	out := placeDTO{
		OrderID:     r.OrderID,
		Status:      r.Status.String(),
		Filled:      r.Filled,
		Remaining:   r.Remaining,
		Rested:      r.Rested,
		Locked:      r.Locked,
		TakerFee:    r.TakerFee,
		Overwritten: r.Overwritten,
		Fills:       make([]fillDTO, 0, len(r.Fills)),
		Seq:         seq,
	}
	for _, f := range r.Fills {
		out.Fills = append(out.Fills, fillDTO{
			Type:           f.Type.String(),
			MakerOrderID:   f.MakerOrderID,
			Maker:          f.Maker.String(),
			Price:          f.Price,
			Quantity:       f.Quantity,
			MakerRemaining: f.MakerRemaining,
		})
	}
	return out
}

type eventDTO struct {
	Type           string `json:"type"`
	TakerSide      string `json:"takerSide"`
	Maker          string `json:"maker"`
	Taker          string `json:"taker"`
	Price          uint64 `json:"price"`
	Quantity       uint64 `json:"quantity"`
	MakerRemaining uint64 `json:"makerRemaining"`
	MakerOrderID   uint64 `json:"makerOrderId"`
	TakerOrderID   uint64 `json:"takerOrderId"`
	Ts             int64  `json:"ts"`
}

func toEvents(evs []matching.QueueEvent) []eventDTO {
	out := make([]eventDTO, 0, len(evs))
	for _, e := range evs {
		out = append(out, eventDTO{
			Type:           e.Type.String(),
			TakerSide:      e.Side.String(),
			Maker:          e.Counterparty.String(),
			Taker:          e.Owner.String(),
			Price:          e.Price,
			Quantity:       e.Quantity,
			MakerRemaining: e.MakerRemaining,
			MakerOrderID:   e.MakerOrderID,
			TakerOrderID:   e.TakerOrderID,
			Ts:             e.Timestamp,
		})
	}
	return out
}

type marketDTO struct {
	ID           string    `json:"id"`
	BaseMint     string    `json:"baseMint"`
	QuoteMint    string    `json:"quoteMint"`
	BaseLotSize  uint64    `json:"baseLotSize"`
	QuoteLotSize uint64    `json:"quoteLotSize"`
	MakerFeeBps  uint64    `json:"makerFeeBps"`
	TakerFeeBps  uint64    `json:"takerFeeBps"`
	MinOrderSize uint64    `json:"minOrderSize"`
	Status       string    `json:"status"`
	NextOrderID  uint64    `json:"nextOrderId"`
	FeesAccrued  uint64    `json:"feesAccrued"`
	QueueLen     int       `json:"queueLen"`
	BestBid      *orderDTO `json:"bestBid"`
	BestAsk      *orderDTO `json:"bestAsk"`
}

func toMarket(v *engine.MarketView) marketDTO {
	out := marketDTO{
		ID:           v.ID.String(),
		BaseMint:     v.Config.BaseMint.String(),
		QuoteMint:    v.Config.QuoteMint.String(),
		BaseLotSize:  v.Config.BaseLotSize,
		QuoteLotSize: v.Config.QuoteLotSize,
		MakerFeeBps:  v.Config.MakerFeeBps,
		TakerFeeBps:  v.Config.TakerFeeBps,
		MinOrderSize: v.Config.MinOrderSize,
		Status:       v.Status.String(),
		NextOrderID:  v.NextOrderID,
		FeesAccrued:  v.FeesAccrued,
		QueueLen:     v.QueueLen,
	}
	if v.BestBid != nil {
		d := nodeDTO(*v.BestBid, matching.Bid)
		out.BestBid = &d
	}
	if v.BestAsk != nil {
		d := nodeDTO(*v.BestAsk, matching.Ask)
		out.BestAsk = &d
	}
	return out
}
