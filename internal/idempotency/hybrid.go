// Package idempotency 提供基于 Redis + MySQL 的混合幂等账本
// Redis 作为主路径保证高性能,MySQL 作为持久化备份保证可靠性
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"publish-gateway/internal/archiver"
	"publish-gateway/internal/database"
)

// ==================== 常量定义 ====================

const (
	tableIdempotencyRecords = "idempotency_records"
	syncOperationInsert     = "insert"
)

// ==================== 错误定义 ====================

var (
	// ErrDatabaseUnavailable 数据库不可用错误
	ErrDatabaseUnavailable = errors.New("database is not available")

	// ErrInsertFailed 插入记录失败错误
	ErrInsertFailed = errors.New("failed to insert idempotency record")
)

// ==================== 核心服务 ====================

// HybridLedger 混合幂等账本
// 结合 Redis 的高性能和 MySQL 的持久化优势,缓存故障时自动降级
type HybridLedger struct {
	redisLedger *RedisLedger
	mysqlDB     *database.MySQLDB
	syncManager *archiver.Manager
	ttl         time.Duration
}

// NewHybridLedger 创建混合幂等账本实例
func NewHybridLedger(
	redisLedger *RedisLedger,
	mysqlDB *database.MySQLDB,
	syncManager *archiver.Manager,
	ttl time.Duration,
) *HybridLedger {
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &HybridLedger{
		redisLedger: redisLedger,
		mysqlDB:     mysqlDB,
		syncManager: syncManager,
		ttl:         ttl,
	}
}

// IsProcessed 查询幂等键是否已落账
// Redis 优先,读失败时降级到 MySQL
func (ledger *HybridLedger) IsProcessed(ctx context.Context, key string) (bool, error) {
	processed, err := ledger.redisLedger.IsProcessed(ctx, key)
	if err == nil {
		return processed, nil
	}

	log.Printf("[HYBRID_LEDGER] Redis unavailable, degrading to MySQL: %v", err)
	return ledger.recordExistsInMySQL(key)
}

// MarkProcessed 落账幂等键
// Redis 写成功后异步同步到 MySQL;Redis 不可用时直接写 MySQL
func (ledger *HybridLedger) MarkProcessed(ctx context.Context, key string) error {
	if err := ledger.redisLedger.MarkProcessed(ctx, key); err != nil {
		log.Printf("[HYBRID_LEDGER] Redis unavailable, degrading to MySQL: %v", err)
		return ledger.markProcessedInMySQL(key)
	}

	ledger.asyncSyncToMySQL(key)
	return nil
}

// CleanupExpiredRecords 清理过期的账本记录
// 定期清理可以防止数据库膨胀,建议每小时执行一次
func (ledger *HybridLedger) CleanupExpiredRecords(ctx context.Context) error {
	if ledger.mysqlDB == nil {
		return nil
	}

	deletedCount, err := ledger.deleteExpiredRecords()
	if err != nil {
		return err
	}

	log.Printf("[HYBRID_LEDGER] Successfully cleaned up %d expired records", deletedCount)
	return nil
}

// ==================== 私有方法：异步同步 ====================

// asyncSyncToMySQL 异步同步账本记录到 MySQL
// 使用异步方式避免阻塞编排主链路,同步失败不影响业务
func (ledger *HybridLedger) asyncSyncToMySQL(key string) {
	if ledger.syncManager == nil {
		return
	}

	now := time.Now()
	err := ledger.syncManager.AddRecord(
		tableIdempotencyRecords,
		syncOperationInsert,
		key,
		map[string]interface{}{
			"key_hash":   key,
			"namespace":  ledger.redisLedger.Namespace,
			"created_at": now.Unix(),
			"expires_at": now.Add(ledger.ttl).Unix(),
		},
	)

	if err != nil {
		log.Printf("[HYBRID_LEDGER] Async sync to MySQL failed: %v", err)
	}
}

// ==================== 私有方法：MySQL 降级处理 ====================

// recordExistsInMySQL 检查账本记录是否已存在且未过期
func (ledger *HybridLedger) recordExistsInMySQL(key string) (bool, error) {
	if ledger.mysqlDB == nil {
		return false, ErrDatabaseUnavailable
	}

	query := `
		SELECT COUNT(*)
		FROM idempotency_records
		WHERE key_hash = ? AND expires_at > ?
	`

	var count int
	err := ledger.mysqlDB.QueryRow(query, key, time.Now().Unix()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query record existence failed: %w", err)
	}

	return count > 0, nil
}

// markProcessedInMySQL 在 MySQL 中直接落账
// 使用唯一键约束处理并发插入,冲突说明已有人落账,视为成功
func (ledger *HybridLedger) markProcessedInMySQL(key string) error {
	if ledger.mysqlDB == nil {
		return ErrDatabaseUnavailable
	}

	now := time.Now()
	query := `
		INSERT INTO idempotency_records
		(key_hash, namespace, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := ledger.mysqlDB.Exec(
		query,
		key,
		ledger.redisLedger.Namespace,
		now.Unix(),
		now.Add(ledger.ttl).Unix(),
	)

	if err != nil {
		return ledger.handleInsertConflict(key, err)
	}

	return nil
}

// handleInsertConflict 处理插入冲突
// 并发场景下插入失败可能是其他请求已落账,需要二次确认
func (ledger *HybridLedger) handleInsertConflict(key string, insertError error) error {
	exists, checkErr := ledger.recordExistsInMySQL(key)
	if checkErr != nil {
		return fmt.Errorf("%w: %v, recheck failed: %v", ErrInsertFailed, insertError, checkErr)
	}

	if exists {
		return nil
	}

	return fmt.Errorf("%w: %v", ErrInsertFailed, insertError)
}

// deleteExpiredRecords 执行过期记录删除操作
func (ledger *HybridLedger) deleteExpiredRecords() (int64, error) {
	query := "DELETE FROM idempotency_records WHERE expires_at < ?"

	result, err := ledger.mysqlDB.Exec(query, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired records failed: %w", err)
	}

	affectedRows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get affected rows failed: %w", err)
	}

	return affectedRows, nil
}
