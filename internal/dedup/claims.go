package dedup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClaimStore 指纹/文档引用的占位存储。
// Claim 是先到先得：占位成功返回 ok=true；已被他人持有返回 holder。
// 同一 taskID 重复 Claim 视为成功（幂等）。
type ClaimStore interface {
	Claim(ctx context.Context, key, taskID string, ttl time.Duration) (ok bool, holder string, err error)
	Release(ctx context.Context, key, taskID string) error
}

// ---- Redis 实现 ----

const claimPrefix = "procq:claim:"

// releaseScript 比较持有者后删除，避免误删他人占位。
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisClaims 基于 SETNX 的共享占位存储（多进程部署）。
type RedisClaims struct {
	rdb *redis.Client
}

func NewRedisClaims(rdb *redis.Client) *RedisClaims {
	return &RedisClaims{rdb: rdb}
}

func (c *RedisClaims) Claim(ctx context.Context, key, taskID string, ttl time.Duration) (bool, string, error) {
	full := claimPrefix + key
	ok, err := c.rdb.SetNX(ctx, full, taskID, ttl).Result()
	if err != nil {
		return false, "", fmt.Errorf("claim %s: %w", key, err)
	}
	if ok {
		return true, taskID, nil
	}

	holder, err := c.rdb.Get(ctx, full).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// 占位刚好过期：重试一次
			return c.Claim(ctx, key, taskID, ttl)
		}
		return false, "", fmt.Errorf("read claim %s: %w", key, err)
	}
	if holder == taskID {
		return true, taskID, nil
	}
	return false, holder, nil
}

func (c *RedisClaims) Release(ctx context.Context, key, taskID string) error {
	return releaseScript.Run(ctx, c.rdb, []string{claimPrefix + key}, taskID).Err()
}

// ---- 内存实现 ----

type memClaim struct {
	holder string
	expiry time.Time
}

// MemoryClaims 单进程占位存储。
type MemoryClaims struct {
	mu     sync.Mutex
	claims map[string]memClaim
}

func NewMemoryClaims() *MemoryClaims {
	return &MemoryClaims{claims: make(map[string]memClaim)}
}

func (c *MemoryClaims) Claim(ctx context.Context, key, taskID string, ttl time.Duration) (bool, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if cl, ok := c.claims[key]; ok && now.Before(cl.expiry) {
		if cl.holder == taskID {
			return true, taskID, nil
		}
		return false, cl.holder, nil
	}
	c.claims[key] = memClaim{holder: taskID, expiry: now.Add(ttl)}
	return true, taskID, nil
}

func (c *MemoryClaims) Release(ctx context.Context, key, taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.claims[key]; ok && cl.holder == taskID {
		delete(c.claims, key)
	}
	return nil
}
