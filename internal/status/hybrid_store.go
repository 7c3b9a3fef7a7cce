package status

import (
	"context"
	"log"
	"time"

	"publish-gateway/internal/archiver"
	"publish-gateway/internal/database"
)

// ==================== 常量定义 ====================

const (
	tableTaskStatus = "task_status"
	operationInsert = "insert"

	logTagHybridStatus = "[HYBRID_STATUS] "
)

// ==================== 混合状态存储 ====================

// HybridStatusStore Redis + MySQL 混合状态存储
// 实时状态走 Redis,每次更新异步归档到 MySQL
type HybridStatusStore struct {
	redisStore       *RedisStatusStore
	mysqlDatabase    *database.MySQLDB
	asyncSyncManager *archiver.Manager
}

// NewHybridStatusStore 创建混合状态存储
func NewHybridStatusStore(
	redisStore *RedisStatusStore,
	mysqlDatabase *database.MySQLDB,
	asyncSyncManager *archiver.Manager,
) *HybridStatusStore {
	return &HybridStatusStore{
		redisStore:       redisStore,
		mysqlDatabase:    mysqlDatabase,
		asyncSyncManager: asyncSyncManager,
	}
}

// SaveStatus 保存任务状态并异步归档
func (store *HybridStatusStore) SaveStatus(ctx context.Context, status *TaskStatus) error {
	if err := store.redisStore.SaveStatus(ctx, status); err != nil {
		return err
	}

	store.asyncSyncToMySQL(status)
	return nil
}

// GetStatus 获取任务状态
func (store *HybridStatusStore) GetStatus(ctx context.Context, taskKey string) (*TaskStatus, error) {
	return store.redisStore.GetStatus(ctx, taskKey)
}

// GetStatusHistory 获取任务状态历史
func (store *HybridStatusStore) GetStatusHistory(ctx context.Context, taskKey string) ([]*TaskStatus, error) {
	return store.redisStore.GetStatusHistory(ctx, taskKey)
}

// UpdateStatus 更新任务状态并异步归档
func (store *HybridStatusStore) UpdateStatus(
	ctx context.Context,
	taskKey string,
	newStatus string,
	errorMessage string,
) error {
	if err := store.redisStore.UpdateStatus(ctx, taskKey, newStatus, errorMessage); err != nil {
		return err
	}

	updated, err := store.redisStore.GetStatus(ctx, taskKey)
	if err == nil && updated != nil {
		store.asyncSyncToMySQL(updated)
	}

	return nil
}

// GetPendingStatuses 获取在途任务状态
func (store *HybridStatusStore) GetPendingStatuses(ctx context.Context, platforms []string) ([]*TaskStatus, error) {
	return store.redisStore.GetPendingStatuses(ctx, platforms)
}

// CleanupOldStatuses 清理过期状态
func (store *HybridStatusStore) CleanupOldStatuses(ctx context.Context, olderThan time.Duration) error {
	return store.redisStore.CleanupOldStatuses(ctx, olderThan)
}

// asyncSyncToMySQL 异步归档任务状态到 MySQL
func (store *HybridStatusStore) asyncSyncToMySQL(status *TaskStatus) {
	if store.asyncSyncManager == nil {
		return
	}

	err := store.asyncSyncManager.AddRecord(
		tableTaskStatus,
		operationInsert,
		status.TaskKey,
		map[string]interface{}{
			"task_key":   status.TaskKey,
			"platform":   status.Platform,
			"content":    status.Content,
			"status":     status.Status,
			"error":      status.Error,
			"created_at": status.CreatedAt,
			"updated_at": status.UpdatedAt,
		},
	)
	if err != nil {
		log.Printf("%s异步归档添加失败: %v", logTagHybridStatus, err)
	}
}
