package market

import "clobex.com/internal/matching"

// 金额换算。price 的单位是 "每个 base lot 值多少 quote lot"，
// 所以 quote atoms = price * lots * QuoteLotSize。

func (m *Market) notional(price, lots uint64) (uint64, error) {
	v, err := matching.CheckedMul(price, lots)
	if err != nil {
		return 0, err
	}
	return matching.CheckedMul(v, m.cfg.QuoteLotSize)
}

func (m *Market) baseAtoms(lots uint64) (uint64, error) {
	return matching.CheckedMul(lots, m.cfg.BaseLotSize)
}

func fee(notional, bps uint64) (uint64, error) {
	return matching.MulDiv(notional, bps, bpsDenominator)
}

// bidCommitment 挂着的买单要锁多少 quote：名义金额 + 按 maker 费率预留的手续费。
// locked 永远等于 C(剩余 lots)，部分成交扣 C(before)-C(after)，向下取整不会累积误差。
func (m *Market) bidCommitment(price, lots uint64) (uint64, error) {
	n, err := m.notional(price, lots)
	if err != nil {
		return 0, err
	}
	f, err := fee(n, m.cfg.MakerFeeBps)
	if err != nil {
		return 0, err
	}
	return matching.CheckedAdd(n, f)
}

// commitment 一笔挂单占用的资产和数量
func (m *Market) commitment(side matching.Side, price, lots uint64) (matching.Asset, uint64, error) {
	if side == matching.Bid {
		amt, err := m.bidCommitment(price, lots)
		return matching.Quote, amt, err
	}
	amt, err := m.baseAtoms(lots)
	return matching.Base, amt, err
}
