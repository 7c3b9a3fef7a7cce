package recorder

import (
	"context"
	"fmt"
	"log"
	"time"

	"publish-gateway/internal/archiver"
	"publish-gateway/internal/database"
	"publish-gateway/internal/publish"
)

// ==================== 常量定义 ====================

const (
	tablePublishRecords = "publish_records"
	operationInsert     = "insert"

	logTagHybridRecorder = "[HYBRID_RECORDER] "

	sqlQueryRecords = `SELECT task_key, namespace, correlation_id, content_id, platform,
		status, failure_class, reason, attempts, created_at, finished_at
		FROM publish_records WHERE namespace = ? ORDER BY created_at DESC LIMIT ?`

	sqlDeleteOldRecords = "DELETE FROM publish_records WHERE created_at < ?"
)

// ==================== 混合存储结构 ====================

// HybridStore Redis + MySQL 混合存储
// Redis 保最近记录的快速查询,MySQL 通过归档器保长期留存
type HybridStore struct {
	redisStore       *RedisStore
	mysqlDatabase    *database.MySQLDB
	asyncSyncManager *archiver.Manager
}

// NewHybridStore 创建混合存储
func NewHybridStore(
	redisStore *RedisStore,
	mysqlDatabase *database.MySQLDB,
	asyncSyncManager *archiver.Manager,
) *HybridStore {
	return &HybridStore{
		redisStore:       redisStore,
		mysqlDatabase:    mysqlDatabase,
		asyncSyncManager: asyncSyncManager,
	}
}

// ==================== 记录保存 ====================

// SaveRecord 保存记录(先写 Redis,再异步归档到 MySQL)
func (store *HybridStore) SaveRecord(ctx context.Context, record publish.Record) error {
	if err := store.redisStore.SaveRecord(ctx, record); err != nil {
		return fmt.Errorf("redis save failed: %w", err)
	}

	store.asyncSyncToMySQL(record)

	return nil
}

// Trim 透传到 Redis 存储
func (store *HybridStore) Trim(ctx context.Context) (int, error) {
	return store.redisStore.Trim(ctx)
}

// asyncSyncToMySQL 异步归档记录到 MySQL
func (store *HybridStore) asyncSyncToMySQL(record publish.Record) {
	if store.asyncSyncManager == nil {
		return
	}

	err := store.asyncSyncManager.AddRecord(
		tablePublishRecords,
		operationInsert,
		record.Key,
		store.buildSyncData(record),
	)
	if err != nil {
		// 不影响主流程,只记录错误
		log.Printf("%s异步归档添加失败: %v", logTagHybridRecorder, err)
	}
}

// buildSyncData 构建归档数据
func (store *HybridStore) buildSyncData(record publish.Record) map[string]interface{} {
	return map[string]interface{}{
		"id":             record.Key,
		"task_key":       record.Key,
		"namespace":      record.Namespace,
		"correlation_id": record.CorrelationID,
		"content_id":     record.ContentID,
		"platform":       string(record.Platform),
		"status":         record.Status,
		"failure_class":  record.Class,
		"reason":         record.Reason,
		"attempts":       record.Attempts,
		"created_at":     record.CreatedAt,
		"finished_at":    record.FinishedAt,
	}
}

// ==================== 查询与清理 ====================

// QueryRecords 查询记录,Redis 优先,失败或无数据时回落 MySQL
func (store *HybridStore) QueryRecords(ctx context.Context, namespace string, limit int64) ([]publish.Record, error) {
	records, err := store.redisStore.QueryRecords(ctx, namespace, limit)
	if err == nil && len(records) > 0 {
		return records, nil
	}

	if err != nil {
		log.Printf("%sRedis 查询失败,回落 MySQL: %v", logTagHybridRecorder, err)
	}

	return store.queryRecordsFromMySQL(namespace, limit)
}

// CleanupOldRecords 清理 MySQL 中超期的历史记录
func (store *HybridStore) CleanupOldRecords(ctx context.Context, olderThan time.Duration) (int64, error) {
	if store.mysqlDatabase == nil {
		return 0, nil
	}

	cutoff := time.Now().Add(-olderThan).Unix()
	result, err := store.mysqlDatabase.Exec(sqlDeleteOldRecords, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get affected rows failed: %w", err)
	}

	return affected, nil
}

// queryRecordsFromMySQL 从 MySQL 查询记录
func (store *HybridStore) queryRecordsFromMySQL(namespace string, limit int64) ([]publish.Record, error) {
	if store.mysqlDatabase == nil {
		return nil, fmt.Errorf("mysql not available")
	}

	if limit <= 0 {
		limit = defaultQueryLimit
	}

	rows, err := store.mysqlDatabase.Query(sqlQueryRecords, namespace, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var records []publish.Record
	for rows.Next() {
		var record publish.Record
		var platform string
		err := rows.Scan(
			&record.Key,
			&record.Namespace,
			&record.CorrelationID,
			&record.ContentID,
			&platform,
			&record.Status,
			&record.Class,
			&record.Reason,
			&record.Attempts,
			&record.CreatedAt,
			&record.FinishedAt,
		)
		if err != nil {
			log.Printf("%s扫描记录失败: %v", logTagHybridRecorder, err)
			continue
		}
		record.Platform = publish.Platform(platform)
		records = append(records, record)
	}

	return records, nil
}
