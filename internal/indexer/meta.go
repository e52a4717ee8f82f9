package indexer

import (
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// MarketMeta lot 换算成展示精度需要的参数
type MarketMeta struct {
	ID            solana.PublicKey
	Name          string
	BaseLotSize   uint64
	QuoteLotSize  uint64
	BaseDecimals  int32
	QuoteDecimals int32
}

// Size base lot 数量 -> base 代币数量
func (m MarketMeta) Size(baseLots uint64) decimal.Decimal {
	return decimal.NewFromUint64(baseLots).
		Mul(decimal.NewFromUint64(m.BaseLotSize)).
		Shift(-m.BaseDecimals)
}

// Price 每 base lot 多少 quote lot -> 每个 base 代币多少 quote 代币
func (m MarketMeta) Price(priceLots uint64) decimal.Decimal {
	if m.BaseLotSize == 0 {
		return decimal.Zero
	}
	num := decimal.NewFromUint64(priceLots).
		Mul(decimal.NewFromUint64(m.QuoteLotSize)).
		Shift(m.BaseDecimals - m.QuoteDecimals)
	return num.DivRound(decimal.NewFromUint64(m.BaseLotSize), 18)
}
