package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ==================== 常量定义 ====================

const (
	statusPending  = "pending"
	statusRetrying = "retrying"

	defaultTTL = 24 * time.Hour

	redisKeyStatusFormat        = "task_status:%s"
	redisKeyPendingFormat       = "pending_tasks:%s"
	redisKeyStatusHistoryFormat = "task_status_history:%s"

	platformUnknown = "unknown"
)

// ==================== 数据结构 ====================

// TaskStatus 发布任务状态
type TaskStatus struct {
	TaskKey   string `json:"task_key"`
	Platform  string `json:"platform"`
	Content   string `json:"content,omitempty"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// StatusStore 状态存储接口
type StatusStore interface {
	SaveStatus(ctx context.Context, status *TaskStatus) error
	GetStatus(ctx context.Context, taskKey string) (*TaskStatus, error)
	UpdateStatus(ctx context.Context, taskKey string, newStatus string, error string) error
	GetPendingStatuses(ctx context.Context, platforms []string) ([]*TaskStatus, error)
	CleanupOldStatuses(ctx context.Context, olderThan time.Duration) error
}

// HistoryStore 支持状态流转历史查询的存储
type HistoryStore interface {
	GetStatusHistory(ctx context.Context, taskKey string) ([]*TaskStatus, error)
}

// RedisStatusStore Redis 状态存储实现
type RedisStatusStore struct {
	client *redis.Client
	ttl    time.Duration
}

// ==================== 构造函数 ====================

// NewRedisStatusStore 创建 Redis 状态存储实例
func NewRedisStatusStore(client *redis.Client, ttl time.Duration) *RedisStatusStore {
	if ttl == 0 {
		ttl = defaultTTL
	}

	return &RedisStatusStore{
		client: client,
		ttl:    ttl,
	}
}

// ==================== 核心方法 ====================

// SaveStatus 保存任务状态
func (store *RedisStatusStore) SaveStatus(ctx context.Context, status *TaskStatus) error {
	if err := store.validateTaskKey(status.TaskKey); err != nil {
		return err
	}

	statusKey := store.buildStatusKey(status.TaskKey)
	if err := store.saveStatusToRedis(ctx, statusKey, status); err != nil {
		return err
	}

	store.addToPendingSetIfNeeded(ctx, status)
	store.logStatusSaved(status)

	return nil
}

// GetStatus 获取任务状态
func (store *RedisStatusStore) GetStatus(ctx context.Context, taskKey string) (*TaskStatus, error) {
	statusKey := store.buildStatusKey(taskKey)
	return store.fetchStatusFromRedis(ctx, statusKey)
}

// GetStatusHistory 获取任务状态历史
func (store *RedisStatusStore) GetStatusHistory(ctx context.Context, taskKey string) ([]*TaskStatus, error) {
	historyKey := store.buildHistoryKey(taskKey)
	return store.fetchStatusHistory(ctx, historyKey)
}

// UpdateStatus 更新任务状态
func (store *RedisStatusStore) UpdateStatus(
	ctx context.Context,
	taskKey string,
	newStatus string,
	errorMessage string,
) error {
	existingStatus, err := store.getOrCreateStatus(ctx, taskKey, newStatus, errorMessage)
	if err != nil {
		return err
	}

	store.updateStatusFields(existingStatus, newStatus, errorMessage)

	if err := store.SaveStatus(ctx, existingStatus); err != nil {
		return fmt.Errorf("failed to save updated status: %w", err)
	}

	store.appendStatusHistory(ctx, taskKey, existingStatus)
	store.removeFromPendingSetIfNeeded(ctx, taskKey, existingStatus.Platform, newStatus)

	return nil
}

// GetPendingStatuses 获取指定平台的在途任务状态
func (store *RedisStatusStore) GetPendingStatuses(ctx context.Context, platforms []string) ([]*TaskStatus, error) {
	var allStatuses []*TaskStatus

	for _, platform := range platforms {
		statuses := store.fetchPendingStatusesForPlatform(ctx, platform)
		allStatuses = append(allStatuses, statuses...)
	}

	return allStatuses, nil
}

// CleanupOldStatuses 清理过期状态
func (store *RedisStatusStore) CleanupOldStatuses(ctx context.Context, olderThan time.Duration) error {
	platforms := []string{"instagram", "tiktok", "reddit"}
	cutoffTimestamp := time.Now().Add(-olderThan).Unix()

	for _, platform := range platforms {
		store.cleanupPlatformPendingSet(ctx, platform, cutoffTimestamp)
	}

	return nil
}

// ==================== 私有方法 - Key 构建 ====================

func (store *RedisStatusStore) buildStatusKey(taskKey string) string {
	return fmt.Sprintf(redisKeyStatusFormat, taskKey)
}

func (store *RedisStatusStore) buildPendingKey(platform string) string {
	return fmt.Sprintf(redisKeyPendingFormat, platform)
}

func (store *RedisStatusStore) buildHistoryKey(taskKey string) string {
	return fmt.Sprintf(redisKeyStatusHistoryFormat, taskKey)
}

// ==================== 私有方法 - 验证 ====================

func (store *RedisStatusStore) validateTaskKey(taskKey string) error {
	if taskKey == "" {
		return fmt.Errorf("task_key is required")
	}
	return nil
}

// ==================== 私有方法 - Redis 操作 ====================

func (store *RedisStatusStore) saveStatusToRedis(ctx context.Context, key string, status *TaskStatus) error {
	statusJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	if err := store.client.Set(ctx, key, statusJSON, store.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save status to redis: %w", err)
	}

	return nil
}

func (store *RedisStatusStore) fetchStatusFromRedis(ctx context.Context, key string) (*TaskStatus, error) {
	data, err := store.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}

	return store.parseStatusJSON(data)
}

func (store *RedisStatusStore) fetchStatusHistory(ctx context.Context, key string) ([]*TaskStatus, error) {
	dataList, err := store.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get status history from redis: %w", err)
	}

	return store.parseStatusHistoryList(dataList)
}

// ==================== 私有方法 - 在途集合管理 ====================

func (store *RedisStatusStore) addToPendingSetIfNeeded(ctx context.Context, status *TaskStatus) {
	if status.Status != statusPending && status.Status != statusRetrying {
		return
	}

	pendingKey := store.buildPendingKey(status.Platform)
	store.client.SAdd(ctx, pendingKey, status.TaskKey)
	store.client.Expire(ctx, pendingKey, store.ttl)
}

func (store *RedisStatusStore) removeFromPendingSetIfNeeded(ctx context.Context, taskKey, platform, newStatus string) {
	if newStatus == statusPending || newStatus == statusRetrying {
		return
	}

	pendingKey := store.buildPendingKey(platform)
	store.client.SRem(ctx, pendingKey, taskKey)
}

func (store *RedisStatusStore) fetchPendingStatusesForPlatform(ctx context.Context, platform string) []*TaskStatus {
	pendingKey := store.buildPendingKey(platform)

	taskKeys, err := store.client.SMembers(ctx, pendingKey).Result()
	if err != nil {
		log.Printf("[StatusStore] Failed to get pending tasks (%s): %v", platform, err)
		return []*TaskStatus{}
	}

	return store.fetchStatusesByKeys(ctx, taskKeys)
}

func (store *RedisStatusStore) fetchStatusesByKeys(ctx context.Context, taskKeys []string) []*TaskStatus {
	var statuses []*TaskStatus

	for _, taskKey := range taskKeys {
		status, err := store.GetStatus(ctx, taskKey)
		if err != nil {
			log.Printf("[StatusStore] Failed to get task status (%s): %v", taskKey, err)
			continue
		}

		if status != nil && (status.Status == statusPending || status.Status == statusRetrying) {
			statuses = append(statuses, status)
		}
	}

	return statuses
}

func (store *RedisStatusStore) cleanupPlatformPendingSet(ctx context.Context, platform string, cutoffTimestamp int64) {
	pendingKey := store.buildPendingKey(platform)

	taskKeys, err := store.client.SMembers(ctx, pendingKey).Result()
	if err != nil {
		return
	}

	for _, taskKey := range taskKeys {
		if store.shouldRemoveFromPendingSet(ctx, taskKey, cutoffTimestamp) {
			store.client.SRem(ctx, pendingKey, taskKey)
		}
	}
}

func (store *RedisStatusStore) shouldRemoveFromPendingSet(ctx context.Context, taskKey string, cutoffTimestamp int64) bool {
	status, err := store.GetStatus(ctx, taskKey)
	return err != nil || status == nil || status.CreatedAt < cutoffTimestamp
}

// ==================== 私有方法 - 状态处理 ====================

func (store *RedisStatusStore) getOrCreateStatus(
	ctx context.Context,
	taskKey string,
	newStatus string,
	errorMessage string,
) (*TaskStatus, error) {
	existingStatus, err := store.GetStatus(ctx, taskKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get existing status: %w", err)
	}

	if existingStatus != nil {
		return existingStatus, nil
	}

	return store.createNewStatus(taskKey, newStatus, errorMessage), nil
}

func (store *RedisStatusStore) createNewStatus(taskKey, newStatus, errorMessage string) *TaskStatus {
	now := time.Now().Unix()
	status := &TaskStatus{
		TaskKey:   taskKey,
		Status:    newStatus,
		Error:     errorMessage,
		CreatedAt: now,
		UpdatedAt: now,
	}

	status.Platform = DetectPlatformFromTaskKey(taskKey)
	return status
}

func (store *RedisStatusStore) updateStatusFields(status *TaskStatus, newStatus, errorMessage string) {
	status.Status = newStatus
	status.Error = errorMessage
	status.UpdatedAt = time.Now().Unix()
}

func (store *RedisStatusStore) appendStatusHistory(ctx context.Context, taskKey string, status *TaskStatus) {
	historyKey := store.buildHistoryKey(taskKey)
	statusJSON, _ := json.Marshal(status)

	store.client.RPush(ctx, historyKey, statusJSON)
	store.client.Expire(ctx, historyKey, store.ttl)
}

// ==================== 私有方法 - 平台检测 ====================

// DetectPlatformFromTaskKey 从幂等键提取平台段
// 键格式: correlationId:contentId:platform
func DetectPlatformFromTaskKey(taskKey string) string {
	parts := strings.Split(taskKey, ":")
	if len(parts) < 3 {
		return platformUnknown
	}
	return parts[len(parts)-1]
}

// ==================== 私有方法 - JSON 解析 ====================

func (store *RedisStatusStore) parseStatusJSON(data string) (*TaskStatus, error) {
	var status TaskStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &status, nil
}

func (store *RedisStatusStore) parseStatusHistoryList(dataList []string) ([]*TaskStatus, error) {
	var history []*TaskStatus

	for _, data := range dataList {
		var status TaskStatus
		if err := json.Unmarshal([]byte(data), &status); err == nil {
			history = append(history, &status)
		}
	}

	return history, nil
}

// ==================== 私有方法 - 日志 ====================

func (store *RedisStatusStore) logStatusSaved(status *TaskStatus) {
	log.Printf("[StatusStore] Status saved: %s -> %s (%s)",
		status.TaskKey, status.Status, status.Platform)
}
