package funds

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
)

type walletKey struct {
	owner solana.PublicKey
	mint  solana.PublicKey
}

// MemoryVault 进程内账本：trader 钱包余额 + 金库总额
type MemoryVault struct {
	mu      sync.Mutex
	mints   Mints
	wallets map[walletKey]uint64
	vault   map[solana.PublicKey]uint64
}

func NewMemoryVault(mints Mints) *MemoryVault {
	return &MemoryVault{
		mints:   mints,
		wallets: make(map[walletKey]uint64, 64),
		vault:   make(map[solana.PublicKey]uint64, 2),
	}
}

// Deposit 给钱包充值（测试和本地演示用）
func (v *MemoryVault) Deposit(owner, mint solana.PublicKey, amount uint64) error {
	if err := validate(v.mints, owner, mint); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	k := walletKey{owner, mint}
	next := v.wallets[k] + amount
	if next < v.wallets[k] {
		return ErrBalanceOverflow
	}
	v.wallets[k] = next
	return nil
}

func (v *MemoryVault) Balance(owner, mint solana.PublicKey) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.wallets[walletKey{owner, mint}]
}

func (v *MemoryVault) VaultBalance(mint solana.PublicKey) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.vault[mint]
}

func (v *MemoryVault) Lock(_ context.Context, owner, mint solana.PublicKey, amount uint64) error {
	if err := validate(v.mints, owner, mint); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	k := walletKey{owner, mint}
	if v.wallets[k] < amount {
		return ErrInsufficientBalance
	}
	v.wallets[k] -= amount
	v.vault[mint] += amount
	return nil
}

func (v *MemoryVault) Release(_ context.Context, owner, mint solana.PublicKey, amount uint64) error {
	if err := validate(v.mints, owner, mint); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.vault[mint] < amount {
		return ErrInsufficientBalance
	}
	v.vault[mint] -= amount
	v.wallets[walletKey{owner, mint}] += amount
	return nil
}
