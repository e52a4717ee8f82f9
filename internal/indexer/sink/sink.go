package sink

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Candle 换算成展示精度后的 K 线
type Candle struct {
	Market  string          `json:"market"`
	Name    string          `json:"name,omitempty"`
	TF      string          `json:"tf"`
	StartMs int64           `json:"startMs"`
	EndMs   int64           `json:"endMs"`
	Open    decimal.Decimal `json:"open"`
	High    decimal.Decimal `json:"high"`
	Low     decimal.Decimal `json:"low"`
	Close   decimal.Decimal `json:"close"`
	Volume  decimal.Decimal `json:"volume"`
	Count   int64           `json:"count"`
	Closed  bool            `json:"closed"`
}

func (c Candle) String() string {
	return fmt.Sprintf("%s %s @%d O=%s H=%s L=%s C=%s V=%s",
		c.Market, c.TF, c.StartMs, c.Open, c.High, c.Low, c.Close, c.Volume)
}

// CandleSink 同一 (market, tf, start) 多次写入以最后一次为准
type CandleSink interface {
	WriteCandle(ctx context.Context, c Candle) error
	Close() error
}
