package xredis

import (
	"context"
	"fmt"
	"time"

	"clobex.com/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 续期：只有锁还是自己的才延长 TTL
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLockMaster 多节点部署时选出唯一干活的节点（比如 crank）
type RedisLockMaster struct {
	rdb *redis.Client
	id  string // 当前节点的唯一ID
}

func NewRedisLockMaster(rdb *redis.Client) *RedisLockMaster {
	id := fmt.Sprintf("%s-%d", uuid.NewString(), time.Now().UnixNano())
	return &RedisLockMaster{rdb: rdb, id: id}
}

func (r *RedisLockMaster) ID() string { return r.id }

// TryAcquireMaster 抢锁或者给自己的锁续期
func (r *RedisLockMaster) TryAcquireMaster(ctx context.Context, key string, ttl time.Duration) bool {
	// SETNX: 如果 Key 不存在则设置成功，否则失败；TTL 防止 master 挂了锁不释放
	ok, err := r.rdb.SetNX(ctx, key, r.id, ttl).Result()
	if err != nil {
		logger.Warn(ctx, "redis lock acquire failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if ok {
		return true
	}
	renewed, err := renewScript.Run(ctx, r.rdb, []string{key}, r.id, ttl.Milliseconds()).Int()
	if err != nil {
		logger.Warn(ctx, "redis lock renew failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return renewed == 1
}
