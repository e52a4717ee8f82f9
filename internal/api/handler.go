package api

import (
	"context"
	"strconv"

	"clobex.com/internal/engine"
	"clobex.com/internal/indexer/sink"
	"clobex.com/internal/indexer/store"
	"clobex.com/pkg/common"
	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
)

// Engine 下单/查询都经过引擎，按市场串行
type Engine interface {
	Submit(ctx context.Context, cmd engine.Command) (engine.Result, error)
	Markets() []solana.PublicKey
}

// CandleReader 最近的 K 线
type CandleReader interface {
	Candles(market, tf string, limit int) []sink.Candle
}

type Handler struct {
	eng        Engine
	trades     store.TradeStore
	candles    CandleReader
	crankLimit uint32
}

func NewHandler(eng Engine, trades store.TradeStore, candles CandleReader, crankLimit uint32) *Handler {
	return &Handler{eng: eng, trades: trades, candles: candles, crankLimit: crankLimit}
}

// 参数错误直接回 400，返回 false 表示已经回过了
func (h *Handler) marketParam(c *gin.Context) (solana.PublicKey, bool) {
	return keyParam(c, "market")
}

func keyParam(c *gin.Context, name string) (solana.PublicKey, bool) {
	k, err := parseKey(c.Param(name))
	if err != nil {
		common.BadRequest(c, err.Error())
		return solana.PublicKey{}, false
	}
	return k, true
}

func uintQuery(c *gin.Context, name string, def uint64) (uint64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		common.BadRequest(c, "bad "+name)
		return 0, false
	}
	return v, true
}

func (h *Handler) submit(c *gin.Context, cmd engine.Command) (engine.Result, bool) {
	res, err := h.eng.Submit(c.Request.Context(), cmd)
	if err != nil {
		common.FailFromErr(c, err)
		return res, false
	}
	return res, true
}

// ListMarkets GET /v1/markets
func (h *Handler) ListMarkets(c *gin.Context) {
	ids := h.eng.Markets()
	out := make([]marketDTO, 0, len(ids))
	for _, id := range ids {
		res, ok := h.submit(c, engine.Command{Type: engine.CmdQueryMarket, Market: id})
		if !ok {
			return
		}
		out = append(out, toMarket(res.Market))
	}
	common.Success(c, out)
}

// GetMarket GET /v1/markets/:market
func (h *Handler) GetMarket(c *gin.Context) {
	id, ok := h.marketParam(c)
	if !ok {
		return
	}
	res, ok := h.submit(c, engine.Command{Type: engine.CmdQueryMarket, Market: id})
	if !ok {
		return
	}
	common.Success(c, toMarket(res.Market))
}

// Book GET /v1/markets/:market/book?depth=
func (h *Handler) Book(c *gin.Context) {
	id, ok := h.marketParam(c)
	if !ok {
		return
	}
	depth, ok := uintQuery(c, "depth", 50)
	if !ok {
		return
	}
	res, ok := h.submit(c, engine.Command{Type: engine.CmdQueryBook, Market: id, Limit: uint32(depth)})
	if !ok {
		return
	}
	common.Success(c, toBook(res.Book))
}

// GetOrder GET /v1/markets/:market/orders/:id
func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := h.marketParam(c)
	if !ok {
		return
	}
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.BadRequest(c, "bad order id")
		return
	}
	res, ok := h.submit(c, engine.Command{Type: engine.CmdQueryOrder, Market: id, OrderID: orderID})
	if !ok {
		return
	}
	common.Success(c, nodeDTO(res.Order.Node, res.Order.Side))
}

// OwnerOrders GET /v1/markets/:market/owners/:owner/orders
func (h *Handler) OwnerOrders(c *gin.Context) {
	id, ok := h.marketParam(c)
	if !ok {
		return
	}
	owner, ok := keyParam(c, "owner")
	if !ok {
		return
	}
	res, ok := h.submit(c, engine.Command{Type: engine.CmdQueryOwnerOrders, Market: id, Owner: owner})
	if !ok {
		return
	}
	common.Success(c, toBook(res.Book))
}

// Account GET /v1/markets/:market/owners/:owner/account
func (h *Handler) Account(c *gin.Context) {
	id, ok := h.marketParam(c)
	if !ok {
		return
	}
	owner, ok := keyParam(c, "owner")
	if !ok {
		return
	}
	res, ok := h.submit(c, engine.Command{Type: engine.CmdQueryAccount, Market: id, Owner: owner})
	if !ok {
		return
	}
	common.Success(c, toAccount(res.Account))
}

// Events GET /v1/markets/:market/events?limit=
func (h *Handler) Events(c *gin.Context) {
	id, ok := h.marketParam(c)
	if !ok {
		return
	}
	limit, ok := uintQuery(c, "limit", 0)
	if !ok {
		return
	}
	res, ok := h.submit(c, engine.Command{Type: engine.CmdQueryEvents, Market: id, Limit: uint32(limit)})
	if !ok {
		return
	}
	common.Success(c, toEvents(res.Events))
}

// InitAccount POST /v1/markets/:market/accounts
func (h *Handler) InitAccount(c *gin.Context) {
	id, ok := h.marketParam(c)
	if !ok {
		return
	}
	var req initAccountReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, err.Error())
		return
	}
	if req.Signer == "" {
		req.Signer = req.Owner
	}
	owner, err := parseKey(req.Owner)
	if err != nil {
		common.BadRequest(c, err.Error())
		return
	}
	signer, err := parseKey(req.Signer)
	if err != nil {
		common.BadRequest(c, err.Error())
		return
	}
	res, ok := h.submit(c, engine.Command{Type: engine.CmdInitOpenOrders, Market: id, Owner: owner, Signer: signer})
	if !ok {
		return
	}
	common.Success(c, toAccount(res.Account))
}

// PlaceOrder POST /v1/markets/:market/orders
func (h *Handler) PlaceOrder(c *gin.Context) {
	id, ok := h.marketParam(c)
	if !ok {
		return
	}
	var req placeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, err.Error())
		return
	}
	signer, err := parseKey(req.Signer)
	if err != nil {
		common.BadRequest(c, err.Error())
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		common.BadRequest(c, err.Error())
		return
	}
	typ, err := parseOrderType(req.Type)
	if err != nil {
		common.BadRequest(c, err.Error())
		return
	}
	res, ok := h.submit(c, engine.Command{
		Type:          engine.CmdPlace,
		Market:        id,
		Signer:        signer,
		Side:          side,
		OrderType:     typ,
		Price:         req.Price,
		MaxBaseQty:    req.MaxBaseQty,
		ClientOrderID: req.ClientOrderID,
	})
	if !ok {
		return
	}
	common.Success(c, toPlace(res.Seq, res.Place))
}

// CancelOrder DELETE /v1/markets/:market/orders/:id?signer=
func (h *Handler) CancelOrder(c *gin.Context) {
	id, ok := h.marketParam(c)
	if !ok {
		return
	}
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.BadRequest(c, "bad order id")
		return
	}
	signer, err := parseKey(c.Query("signer"))
	if err != nil {
		common.BadRequest(c, err.Error())
		return
	}
	res, ok := h.submit(c, engine.Command{Type: engine.CmdCancel, Market: id, Signer: signer, OrderID: orderID})
	if !ok {
		return
	}
	common.Success(c, gin.H{
		"order":    nodeDTO(res.Cancel.Order, res.Cancel.Side),
		"released": res.Cancel.Released,
		"asset":    res.Cancel.Asset.String(),
		"seq":      res.Seq,
	})
}

// Settle POST /v1/markets/:market/settle
func (h *Handler) Settle(c *gin.Context) {
	id, ok := h.marketParam(c)
	if !ok {
		return
	}
	var req signerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, err.Error())
		return
	}
	signer, err := parseKey(req.Signer)
	if err != nil {
		common.BadRequest(c, err.Error())
		return
	}
	res, ok := h.submit(c, engine.Command{Type: engine.CmdSettle, Market: id, Signer: signer})
	if !ok {
		return
	}
	common.Success(c, gin.H{"base": res.Settle.Base, "quote": res.Settle.Quote, "seq": res.Seq})
}

// Crank POST /v1/markets/:market/crank
func (h *Handler) Crank(c *gin.Context) {
	id, ok := h.marketParam(c)
	if !ok {
		return
	}
	var req crankReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			common.BadRequest(c, err.Error())
			return
		}
	}
	if req.Limit == 0 {
		req.Limit = h.crankLimit
	}
	res, ok := h.submit(c, engine.Command{Type: engine.CmdConsume, Market: id, Limit: req.Limit})
	if !ok {
		return
	}
	common.Success(c, gin.H{
		"consumed": len(res.Consume.Consumed),
		"makerFee": res.Consume.MakerFee,
		"blocked":  res.Consume.Blocked,
		"seq":      res.Seq,
	})
}

// SetStatus PUT /v1/markets/:market/status
func (h *Handler) SetStatus(c *gin.Context) {
	id, ok := h.marketParam(c)
	if !ok {
		return
	}
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, err.Error())
		return
	}
	signer, err := parseKey(req.Signer)
	if err != nil {
		common.BadRequest(c, err.Error())
		return
	}
	status, err := parseStatus(req.Status)
	if err != nil {
		common.BadRequest(c, err.Error())
		return
	}
	res, ok := h.submit(c, engine.Command{Type: engine.CmdSetStatus, Market: id, Signer: signer, Status: status})
	if !ok {
		return
	}
	common.Success(c, toMarket(res.Market))
}

// Trades GET /v1/markets/:market/trades?page=&limit=
func (h *Handler) Trades(c *gin.Context) {
	id, ok := h.marketParam(c)
	if !ok {
		return
	}
	page, ok := uintQuery(c, "page", 1)
	if !ok {
		return
	}
	limit, ok := uintQuery(c, "limit", 50)
	if !ok {
		return
	}
	rows, err := h.trades.RecentTrades(c.Request.Context(), id.String(), int(page), int(limit))
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, rows)
}

// Candles GET /v1/markets/:market/candles?tf=1m&limit=
func (h *Handler) Candles(c *gin.Context) {
	id, ok := h.marketParam(c)
	if !ok {
		return
	}
	limit, ok := uintQuery(c, "limit", 200)
	if !ok {
		return
	}
	tf := c.DefaultQuery("tf", "1m")
	common.Success(c, h.candles.Candles(id.String(), tf, int(limit)))
}
