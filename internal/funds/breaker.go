package funds

import (
	"context"
	"errors"

	"clobex.com/pkg/ratelimit"
	"github.com/gagliardetto/solana-go"
)

// BreakerEscrow 给下游金库套一层熔断。余额不足这类业务拒绝不会触发熔断
type BreakerEscrow struct {
	next Escrow
	cb   *ratelimit.Manager
}

func NewBreakerEscrow(next Escrow, cb *ratelimit.Manager) *BreakerEscrow {
	return &BreakerEscrow{next: next, cb: cb}
}

func (b *BreakerEscrow) Lock(ctx context.Context, owner, mint solana.PublicKey, amount uint64) error {
	return b.do("escrow.lock", func() error { return b.next.Lock(ctx, owner, mint, amount) })
}

func (b *BreakerEscrow) Release(ctx context.Context, owner, mint solana.PublicKey, amount uint64) error {
	return b.do("escrow.release", func() error { return b.next.Release(ctx, owner, mint, amount) })
}

func (b *BreakerEscrow) do(method string, fn func() error) error {
	err := b.cb.Do(method, fn)
	if errors.Is(err, ratelimit.ErrBreakerOpen) {
		return errors.Join(ErrVaultUnavailable, err)
	}
	return err
}
