package market

import (
	"context"
	"errors"
	"fmt"

	"clobex.com/internal/matching"
	"github.com/gagliardetto/solana-go"
)

// AccountLookup 按 owner 找 maker 的账户，找不到返回 nil
type AccountLookup func(owner solana.PublicKey) *matching.OpenOrders

type ConsumeResult struct {
	Consumed []matching.QueueEvent
	MakerFee uint64
	// Blocked 队头事件的 maker 账户没提供，处理停在这里
	Blocked bool
}

// ConsumeEvents 消费事件队列，给 maker 结算：
// 卖方 maker 扣 base locked，quote free 加上名义金额减 maker 手续费；
// 买方 maker 扣 quote locked C(before)-C(after)，base free 加上成交量。
// 整个调用是一个事务，中途出错不会留下任何修改。
func (m *Market) ConsumeEvents(_ context.Context, limit int, accounts AccountLookup) (*ConsumeResult, error) {
	events := m.events.Clone()
	touched := make(map[solana.PublicKey]*matching.OpenOrders)
	res := &ConsumeResult{}
	fees := m.feesAccrued

	for limit <= 0 || len(res.Consumed) < limit {
		ev, ok := events.Peek()
		if !ok {
			break
		}
		acct, ok := touched[ev.Counterparty]
		if !ok {
			orig := accounts(ev.Counterparty)
			if orig == nil {
				res.Blocked = true
				break
			}
			acct = orig.Clone()
			touched[ev.Counterparty] = acct
		}
		makerFee, err := m.settleMaker(acct, ev)
		if err != nil {
			return nil, fmt.Errorf("settle event maker=%d taker=%d: %w", ev.MakerOrderID, ev.TakerOrderID, err)
		}
		if fees, err = matching.CheckedAdd(fees, makerFee); err != nil {
			return nil, err
		}
		res.MakerFee += makerFee
		events.PopFront()
		res.Consumed = append(res.Consumed, ev)
	}

	m.events = events
	for owner, acct := range touched {
		*accounts(owner) = *acct
	}
	m.feesAccrued = fees
	return res, nil
}

func (m *Market) settleMaker(acct *matching.OpenOrders, ev matching.QueueEvent) (uint64, error) {
	lots := ev.Quantity
	n, err := m.notional(ev.Price, lots)
	if err != nil {
		return 0, err
	}
	base, err := m.baseAtoms(lots)
	if err != nil {
		return 0, err
	}

	var makerFee uint64
	if ev.Side.Opposite() == matching.Ask {
		if err := acct.ConsumeLocked(matching.Base, base); err != nil {
			return 0, err
		}
		if makerFee, err = fee(n, m.cfg.MakerFeeBps); err != nil {
			return 0, err
		}
		if err := acct.Credit(matching.Quote, n-makerFee); err != nil {
			return 0, err
		}
	} else {
		beforeLots, err := matching.CheckedAdd(ev.MakerRemaining, lots)
		if err != nil {
			return 0, err
		}
		before, err := m.bidCommitment(ev.Price, beforeLots)
		if err != nil {
			return 0, err
		}
		after, err := m.bidCommitment(ev.Price, ev.MakerRemaining)
		if err != nil {
			return 0, err
		}
		delta, err := matching.CheckedSub(before, after)
		if err != nil {
			return 0, err
		}
		if err := acct.ConsumeLocked(matching.Quote, delta); err != nil {
			return 0, err
		}
		if err := acct.Credit(matching.Base, base); err != nil {
			return 0, err
		}
		if makerFee, err = matching.CheckedSub(delta, n); err != nil {
			return 0, err
		}
	}

	// 已经撤掉的单在账户里找不到，余额照样结算
	var err2 error
	if ev.Type == matching.EventFill {
		_, err2 = acct.Remove(ev.MakerOrderID)
	} else {
		err2 = acct.SetRemaining(ev.MakerOrderID, ev.MakerRemaining, matching.StatusPartialFill)
	}
	if err2 != nil && !errors.Is(err2, matching.ErrOrderNotFound) {
		return 0, err2
	}
	return makerFee, nil
}

type SettleResult struct {
	Base  uint64
	Quote uint64
}

// SettleFunds 把账户 free 余额全部划回钱包
func (m *Market) SettleFunds(ctx context.Context, signer solana.PublicKey, oo *matching.OpenOrders) (*SettleResult, error) {
	if err := m.authorize(signer, oo); err != nil {
		return nil, err
	}
	res := &SettleResult{Base: oo.BaseFree, Quote: oo.QuoteFree}
	if res.Base > 0 {
		if err := m.escrow.Release(ctx, oo.Owner, m.cfg.BaseMint, res.Base); err != nil {
			return nil, fmt.Errorf("settle base: %w", err)
		}
	}
	if res.Quote > 0 {
		if err := m.escrow.Release(ctx, oo.Owner, m.cfg.QuoteMint, res.Quote); err != nil {
			// base 已经划走了，补偿回金库，保证整体不生效
			if res.Base > 0 {
				if cerr := m.escrow.Lock(ctx, oo.Owner, m.cfg.BaseMint, res.Base); cerr != nil {
					return nil, errors.Join(fmt.Errorf("settle quote: %w", err), fmt.Errorf("compensate base: %w", cerr))
				}
			}
			return nil, fmt.Errorf("settle quote: %w", err)
		}
	}
	oo.BaseFree, oo.QuoteFree = 0, 0
	return res, nil
}
