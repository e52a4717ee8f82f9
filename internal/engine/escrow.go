package engine

import (
	"context"
	"errors"
	"fmt"

	"clobex.com/internal/funds"
	"github.com/gagliardetto/solana-go"
)

type escrowMove struct {
	lock   bool
	owner  solana.PublicKey
	mint   solana.PublicKey
	amount uint64
}

// replayEscrow 回放期间不动真实资金：WAL 里的命令当初已经划过账。
// 平时记下本批次已经生效的划转，WAL 落盘失败时 undo 反向执行
type replayEscrow struct {
	live      funds.Escrow
	replaying bool
	journal   []escrowMove
}

func (r *replayEscrow) Lock(ctx context.Context, owner, mint solana.PublicKey, amount uint64) error {
	if r.replaying {
		return nil
	}
	if err := r.live.Lock(ctx, owner, mint, amount); err != nil {
		return err
	}
	r.journal = append(r.journal, escrowMove{lock: true, owner: owner, mint: mint, amount: amount})
	return nil
}

func (r *replayEscrow) Release(ctx context.Context, owner, mint solana.PublicKey, amount uint64) error {
	if r.replaying {
		return nil
	}
	if err := r.live.Release(ctx, owner, mint, amount); err != nil {
		return err
	}
	r.journal = append(r.journal, escrowMove{owner: owner, mint: mint, amount: amount})
	return nil
}

// begin 新批次开始，之前的划转已经随 WAL 一起持久化
func (r *replayEscrow) begin() { r.journal = r.journal[:0] }

// undo 倒序撤销本批次的划转。单条失败不中断，全部错误一起返回
func (r *replayEscrow) undo(ctx context.Context) error {
	var errs []error
	for i := len(r.journal) - 1; i >= 0; i-- {
		mv := r.journal[i]
		var err error
		if mv.lock {
			err = r.live.Release(ctx, mv.owner, mv.mint, mv.amount)
		} else {
			err = r.live.Lock(ctx, mv.owner, mv.mint, mv.amount)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("reverse %d of %s for %s: %w", mv.amount, mv.mint, mv.owner, err))
		}
	}
	r.journal = r.journal[:0]
	return errors.Join(errs...)
}
