// Package idempotency 提供多种幂等账本实现
// 记录哪些 (correlationId, contentId, platform) 组合已经产生过终态,
// 把上游的至少一次投递收敛为至多一个终态事件
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ==================== 常量定义 ====================

const (
	keySeparator          = ":"
	ledgerPrefix          = "ledger"
	redisPlaceholderValue = "1"

	defaultTTL = 7 * 24 * time.Hour
)

// ==================== 错误定义 ====================

var (
	// ErrRedisReadFailed Redis 读取失败错误
	ErrRedisReadFailed = errors.New("failed to read idempotency key from redis")

	// ErrRedisSetFailed Redis 设置失败错误
	ErrRedisSetFailed = errors.New("failed to set idempotency key in redis")

	// ErrEmptyKey 幂等键为空错误
	ErrEmptyKey = errors.New("idempotency key is empty")
)

// ==================== Redis 实现 ====================

// RedisLedger 基于 Redis 的幂等账本
// 读走 EXISTS,写走 SETNX,保证分布式场景下的原子标记
type RedisLedger struct {
	client    *redis.Client
	Namespace string // 命名空间,用于隔离不同服务的幂等键
	ttl       time.Duration
}

// NewRedisLedger 创建 Redis 幂等账本实例
func NewRedisLedger(client *redis.Client, namespace string, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &RedisLedger{
		client:    client,
		Namespace: namespace,
		ttl:       ttl,
	}
}

// IsProcessed 查询幂等键是否已经落账
func (ledger *RedisLedger) IsProcessed(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}

	count, err := ledger.client.Exists(ctx, ledger.buildLedgerKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisReadFailed, err)
	}

	return count > 0, nil
}

// MarkProcessed 落账幂等键
// SETNX 保证并发标记时只有第一次写入生效,重复标记是无害的
func (ledger *RedisLedger) MarkProcessed(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	if err := ledger.client.SetNX(ctx, ledger.buildLedgerKey(key), redisPlaceholderValue, ledger.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisSetFailed, err)
	}

	return nil
}

// ==================== 私有方法：键构建 ====================

// buildLedgerKey 构建账本键
// 格式: {namespace}:ledger:{correlationId:contentId:platform}
func (ledger *RedisLedger) buildLedgerKey(key string) string {
	return strings.Join([]string{ledger.Namespace, ledgerPrefix, key}, keySeparator)
}
