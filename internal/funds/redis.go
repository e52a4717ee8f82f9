package funds

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"clobex.com/pkg/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// 钱包扣款和金库入账必须在同一个原子操作里；DECRBY 是精确的 int64，
// 余额不足时立即加回，不用 Lua number 比较大数
var moveScript = redis.NewScript(`
local left = redis.call("DECRBY", KEYS[1], ARGV[1])
if left < 0 then
  redis.call("INCRBY", KEYS[1], ARGV[1])
  return 0
end
redis.call("INCRBY", KEYS[2], ARGV[1])
return 1
`)

// RedisVault 账本放 Redis，多个节点共享同一份钱包余额
type RedisVault struct {
	rdb    *redis.Client
	prefix string
	market solana.PublicKey
	mints  Mints
	sf     singleflight.Group
}

func NewRedisVault(rdb *redis.Client, prefix string, market solana.PublicKey, mints Mints) *RedisVault {
	if prefix == "" {
		prefix = "clobex"
	}
	return &RedisVault{rdb: rdb, prefix: prefix, market: market, mints: mints}
}

func (v *RedisVault) walletKey(owner, mint solana.PublicKey) string {
	return fmt.Sprintf("%s:wallet:%s:%s", v.prefix, owner, mint)
}

func (v *RedisVault) vaultKey(mint solana.PublicKey) string {
	return fmt.Sprintf("%s:vault:%s:%s", v.prefix, v.market, mint)
}

func (v *RedisVault) Deposit(ctx context.Context, owner, mint solana.PublicKey, amount uint64) error {
	if err := validate(v.mints, owner, mint); err != nil {
		return err
	}
	if amount > math.MaxInt64 {
		return ErrBalanceOverflow
	}
	start := time.Now()
	err := v.rdb.IncrBy(ctx, v.walletKey(owner, mint), int64(amount)).Err()
	observe("incrby", start, err)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVaultUnavailable, err)
	}
	return nil
}

// Balance 钱包余额；同一个 key 的并发读合并成一次 GET
func (v *RedisVault) Balance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	key := v.walletKey(owner, mint)
	val, err, _ := v.sf.Do(key, func() (interface{}, error) {
		start := time.Now()
		n, err := v.rdb.Get(ctx, key).Uint64()
		if errors.Is(err, redis.Nil) {
			err = nil
		}
		observe("get", start, err)
		return n, err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrVaultUnavailable, err)
	}
	return val.(uint64), nil
}

func (v *RedisVault) Lock(ctx context.Context, owner, mint solana.PublicKey, amount uint64) error {
	if err := validate(v.mints, owner, mint); err != nil {
		return err
	}
	return v.move(ctx, v.walletKey(owner, mint), v.vaultKey(mint), amount)
}

func (v *RedisVault) Release(ctx context.Context, owner, mint solana.PublicKey, amount uint64) error {
	if err := validate(v.mints, owner, mint); err != nil {
		return err
	}
	return v.move(ctx, v.vaultKey(mint), v.walletKey(owner, mint), amount)
}

func (v *RedisVault) move(ctx context.Context, from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if amount > math.MaxInt64 {
		return ErrBalanceOverflow
	}
	start := time.Now()
	ok, err := moveScript.Run(ctx, v.rdb, []string{from, to}, int64(amount)).Int()
	observe("evalsha", start, err)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVaultUnavailable, err)
	}
	if ok != 1 {
		return ErrInsufficientBalance
	}
	return nil
}

func observe(cmd string, start time.Time, err error) {
	metrics.RedisCmdDuration.WithLabelValues(cmd, metrics.Status(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RedisErrors.WithLabelValues(cmd, "io").Inc()
	}
}
