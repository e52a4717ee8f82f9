package store

import (
	"context"

	"github.com/shopspring/decimal"
)

// Trade 一笔成交。lot 原值和展示值都存，展示值按市场精度换算
type Trade struct {
	ID           int64           `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	Market       string          `gorm:"column:market;type:varchar(44);not null;uniqueIndex:uk_fill,priority:1;index:idx_market_ts,priority:1" json:"market"`
	TakerOrderID uint64          `gorm:"column:taker_order_id;not null;uniqueIndex:uk_fill,priority:2" json:"takerOrderId"`
	MakerOrderID uint64          `gorm:"column:maker_order_id;not null;uniqueIndex:uk_fill,priority:3" json:"makerOrderId"`
	Maker        string          `gorm:"column:maker;type:varchar(44);not null" json:"maker"`
	Taker        string          `gorm:"column:taker;type:varchar(44);not null" json:"taker"`
	TakerSide    string          `gorm:"column:taker_side;type:varchar(4);not null" json:"takerSide"`
	PriceLots    uint64          `gorm:"column:price_lots;not null" json:"priceLots"`
	BaseLots     uint64          `gorm:"column:base_lots;not null" json:"baseLots"`
	Price        decimal.Decimal `gorm:"column:price;type:decimal(38,18);not null" json:"price"`
	Size         decimal.Decimal `gorm:"column:size;type:decimal(38,18);not null" json:"size"`
	TsMs         int64           `gorm:"column:ts_ms;not null;index:idx_market_ts,priority:2" json:"ts"`
}

func (Trade) TableName() string { return "clob_trades" }

// key 同一个 taker 单对同一个 maker 单只会成交一次
func (t *Trade) key() fillKey {
	return fillKey{market: t.Market, taker: t.TakerOrderID, maker: t.MakerOrderID}
}

type fillKey struct {
	market       string
	taker, maker uint64
}

// TradeStore 成交落库。SaveTrades 幂等，重复成交直接忽略；RecentTrades 新的在前，page 从 1 开始
type TradeStore interface {
	SaveTrades(ctx context.Context, trades []Trade) error
	RecentTrades(ctx context.Context, market string, page, limit int) ([]Trade, error)
}
