package funds

import (
	"context"

	"clobex.com/pkg/xerr"
	"github.com/gagliardetto/solana-go"
)

// 资金托管错误
var (
	ErrInsufficientBalance = xerr.Define(xerr.KindPolicy, 6100, "insufficient balance")
	ErrInvalidMint         = xerr.Define(xerr.KindValidation, 6101, "invalid mint")
	ErrInvalidOwner        = xerr.Define(xerr.KindValidation, 6102, "invalid owner")
	ErrVaultUnavailable    = xerr.Define(xerr.KindUnavailable, 6103, "vault unavailable")
	ErrBalanceOverflow     = xerr.Define(xerr.KindArithmetic, 6104, "balance overflow")
)

// Escrow 资产托管。Lock 把 trader 钱包里的资产划进市场金库，Release 反向划回。
// 两个调用都是同步的，返回 nil 才代表资金已经移动。
type Escrow interface {
	Lock(ctx context.Context, owner, mint solana.PublicKey, amount uint64) error
	Release(ctx context.Context, owner, mint solana.PublicKey, amount uint64) error
}

// Mints 金库只接受这两种资产
type Mints struct {
	Base  solana.PublicKey
	Quote solana.PublicKey
}

func (m Mints) allowed(mint solana.PublicKey) bool {
	return !mint.IsZero() && (mint == m.Base || mint == m.Quote)
}

func validate(mints Mints, owner, mint solana.PublicKey) error {
	if owner.IsZero() {
		return ErrInvalidOwner
	}
	if !mints.allowed(mint) {
		return ErrInvalidMint
	}
	return nil
}

// Noop 不移动任何资金，WAL 回放时用：回放的命令当初已经真实划过账
type Noop struct{}

func (Noop) Lock(context.Context, solana.PublicKey, solana.PublicKey, uint64) error    { return nil }
func (Noop) Release(context.Context, solana.PublicKey, solana.PublicKey, uint64) error { return nil }
