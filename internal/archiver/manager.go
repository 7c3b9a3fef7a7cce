// Package archiver 负责把 Redis 中的发布记录、任务状态和幂等账本
// 异步批量归档到 MySQL,写入失败的记录进重试队列表
package archiver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"publish-gateway/internal/config"
	"publish-gateway/internal/database"
)

//
// 常量定义
//

const (
	recordStatusPending = "pending"
	recordStatusFailed  = "failed"

	defaultQueueBufferMultiplier = 2
	workerIdleInterval           = 100 * time.Millisecond
	retryWorkerInterval          = time.Minute
	retryRecordBatchSize         = 100

	tablePublishRecords     = "publish_records"
	tableTaskStatus         = "task_status"
	tableIdempotencyRecords = "idempotency_records"
)

//
// 数据模型
//

// SyncRecord 异步待归档的单条记录
// 用于在内存队列和持久化存储之间传递
type SyncRecord struct {
	ID          int64           `json:"id"`
	TableName   string          `json:"table_name"`
	Operation   string          `json:"operation"`
	RecordID    string          `json:"record_id"`
	Data        json.RawMessage `json:"data"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	CreatedAt   int64           `json:"created_at"`
	NextRetryAt int64           `json:"next_retry_at"`
	Status      string          `json:"status"`
	Error       string          `json:"error"`
}

//
// 异步归档管理器
//

// Manager 异步归档管理器
// 负责高频写操作的异步批处理和失败重试
type Manager struct {
	database      *database.MySQLDB
	configuration config.ArchiveConfig
	queues        map[string]chan SyncRecord
	workers       sync.WaitGroup
	context       context.Context
	cancelFunc    context.CancelFunc
	isRunning     bool
	mutex         sync.RWMutex
}

// NewManager 创建异步归档管理器实例
func NewManager(database *database.MySQLDB, configuration config.ArchiveConfig) *Manager {
	context, cancelFunc := context.WithCancel(context.Background())

	return &Manager{
		database:      database,
		configuration: configuration,
		queues:        make(map[string]chan SyncRecord),
		context:       context,
		cancelFunc:    cancelFunc,
	}
}

// Start 启动异步归档管理器
// 初始化队列并启动所有后台工作协程
func (manager *Manager) Start() error {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if manager.isRunning {
		return fmt.Errorf("manager already running")
	}

	if !manager.configuration.Enabled {
		log.Println("[ARCHIVER] 异步归档已禁用")
		return nil
	}

	manager.initializeQueues()
	manager.startWorkers()
	manager.startBackgroundTasks()

	manager.isRunning = true
	log.Printf("[ARCHIVER] 管理器已启动,工作协程数: %d", manager.configuration.WorkerCount)
	return nil
}

// Stop 停止异步归档管理器
// 等待所有后台协程安全退出
func (manager *Manager) Stop() {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if !manager.isRunning {
		return
	}

	manager.cancelFunc()
	manager.closeAllQueues()
	manager.workers.Wait()

	manager.isRunning = false
	log.Println("[ARCHIVER] 管理器已停止")
}

// AddRecord 将记录加入异步归档队列
// 队列已满时直接持久化到重试队列表
func (manager *Manager) AddRecord(
	tableName string,
	operation string,
	recordID string,
	data interface{},
) error {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	if !manager.isEnabledAndRunning() {
		return nil
	}

	queue, exists := manager.queues[tableName]
	if !exists {
		return fmt.Errorf("unknown table: %s", tableName)
	}

	record, err := manager.createSyncRecord(tableName, operation, recordID, data)
	if err != nil {
		return err
	}

	return manager.enqueueOrPersist(queue, record)
}

//
// 初始化方法
//

// initializeQueues 初始化所有支持的表队列
func (manager *Manager) initializeQueues() {
	supportedTables := []string{
		tablePublishRecords,
		tableTaskStatus,
		tableIdempotencyRecords,
	}

	bufferSize := manager.configuration.BatchSize * defaultQueueBufferMultiplier

	for _, tableName := range supportedTables {
		manager.queues[tableName] = make(chan SyncRecord, bufferSize)
	}
}

// startWorkers 启动所有工作协程
func (manager *Manager) startWorkers() {
	for workerID := 0; workerID < manager.configuration.WorkerCount; workerID++ {
		manager.workers.Add(1)
		go manager.runWorker(workerID)
	}
}

// startBackgroundTasks 启动后台任务协程
func (manager *Manager) startBackgroundTasks() {
	manager.workers.Add(1)
	go manager.runRetryWorker()
}

// closeAllQueues 关闭所有队列通道
func (manager *Manager) closeAllQueues() {
	for _, queue := range manager.queues {
		close(queue)
	}
}

//
// 辅助方法
//

// isEnabledAndRunning 检查管理器是否已启用且正在运行
func (manager *Manager) isEnabledAndRunning() bool {
	return manager.configuration.Enabled && manager.isRunning
}

// createSyncRecord 创建归档记录
func (manager *Manager) createSyncRecord(
	tableName string,
	operation string,
	recordID string,
	data interface{},
) (SyncRecord, error) {
	serializedData, err := json.Marshal(data)
	if err != nil {
		return SyncRecord{}, fmt.Errorf("序列化数据失败: %w", err)
	}

	now := time.Now().Unix()

	return SyncRecord{
		TableName:   tableName,
		Operation:   operation,
		RecordID:    recordID,
		Data:        serializedData,
		MaxAttempts: manager.configuration.RetryAttempts,
		CreatedAt:   now,
		NextRetryAt: now,
		Status:      recordStatusPending,
	}, nil
}

// enqueueOrPersist 尝试入队,失败则持久化
func (manager *Manager) enqueueOrPersist(
	queue chan SyncRecord,
	record SyncRecord,
) error {
	select {
	case queue <- record:
		return nil
	default:
		return manager.persistRecord(record)
	}
}

//
// 工作协程 - 批处理逻辑
//

// runWorker 运行工作协程
// 从队列收集记录并批量处理
func (manager *Manager) runWorker(workerID int) {
	defer manager.workers.Done()

	batch := make([]SyncRecord, 0, manager.configuration.BatchSize)
	ticker := time.NewTicker(manager.configuration.FlushInterval)
	defer ticker.Stop()

	log.Printf("[ARCHIVER] Worker %d 已启动", workerID)
	defer log.Printf("[ARCHIVER] Worker %d 已停止", workerID)

	for {
		select {
		case <-manager.context.Done():
			manager.flushRemainingBatch(batch)
			return

		case <-ticker.C:
			batch = manager.flushBatchIfNotEmpty(batch)

		default:
			batch = manager.collectRecordsFromQueues(batch)
		}
	}
}

// collectRecordsFromQueues 从所有队列收集记录
func (manager *Manager) collectRecordsFromQueues(batch []SyncRecord) []SyncRecord {
	recordCollected := false

	for _, queue := range manager.queues {
		select {
		case record, ok := <-queue:
			if !ok {
				continue
			}

			batch = append(batch, record)
			recordCollected = true

			if len(batch) >= manager.configuration.BatchSize {
				manager.processBatch(batch)
				return make([]SyncRecord, 0, manager.configuration.BatchSize)
			}

		default:
			continue
		}
	}

	if !recordCollected {
		time.Sleep(workerIdleInterval)
	}

	return batch
}

// flushRemainingBatch 刷新剩余批次
func (manager *Manager) flushRemainingBatch(batch []SyncRecord) {
	if len(batch) > 0 {
		manager.processBatch(batch)
	}
}

// flushBatchIfNotEmpty 如果批次不为空则刷新
func (manager *Manager) flushBatchIfNotEmpty(batch []SyncRecord) []SyncRecord {
	if len(batch) > 0 {
		manager.processBatch(batch)
		return make([]SyncRecord, 0, manager.configuration.BatchSize)
	}
	return batch
}

// processBatch 处理一个批次的记录
func (manager *Manager) processBatch(batch []SyncRecord) {
	if len(batch) == 0 {
		return
	}

	groupedRecords := manager.groupRecordsByTable(batch)
	manager.syncGroupedRecords(groupedRecords)
}

// groupRecordsByTable 按表名分组记录
func (manager *Manager) groupRecordsByTable(batch []SyncRecord) map[string][]SyncRecord {
	groups := make(map[string][]SyncRecord)

	for _, record := range batch {
		groups[record.TableName] = append(groups[record.TableName], record)
	}

	return groups
}

// syncGroupedRecords 归档分组后的记录
func (manager *Manager) syncGroupedRecords(groups map[string][]SyncRecord) {
	currentTime := time.Now()

	for tableName, records := range groups {
		if err := manager.syncRecordsToMySQL(tableName, records); err != nil {
			log.Printf("[ARCHIVER] 归档失败 table=%s, count=%d, error=%v",
				tableName, len(records), err)
			manager.handleSyncFailure(records, currentTime, err)
		}
	}
}

// handleSyncFailure 处理归档失败的记录
func (manager *Manager) handleSyncFailure(
	records []SyncRecord,
	failureTime time.Time,
	syncError error,
) {
	for _, record := range records {
		record.Attempts++
		record.NextRetryAt = manager.calculateNextRetryTime(failureTime, record.Attempts)
		record.Status = recordStatusPending
		record.Error = syncError.Error()

		_ = manager.persistRecord(record)
	}
}

// calculateNextRetryTime 计算下次重试时间
// 使用线性退避策略
func (manager *Manager) calculateNextRetryTime(baseTime time.Time, attempts int) int64 {
	retryDelay := time.Duration(attempts) * time.Minute
	return baseTime.Add(retryDelay).Unix()
}

//
// 数据库归档路由
//

// syncRecordsToMySQL 根据表名路由到具体归档函数
func (manager *Manager) syncRecordsToMySQL(
	tableName string,
	records []SyncRecord,
) error {
	switch tableName {
	case tablePublishRecords:
		return manager.syncPublishRecords(records)
	case tableTaskStatus:
		return manager.syncTaskStatus(records)
	case tableIdempotencyRecords:
		return manager.syncIdempotencyRecords(records)
	default:
		return fmt.Errorf("unknown table: %s", tableName)
	}
}

// persistRecord 将记录持久化到重试队列表
func (manager *Manager) persistRecord(record SyncRecord) error {
	query := `INSERT INTO async_sync_queue
		(table_name, operation, record_id, data, attempts, max_attempts,
		 created_at, next_retry_at, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := manager.database.Exec(
		query,
		record.TableName,
		record.Operation,
		record.RecordID,
		record.Data,
		record.Attempts,
		record.MaxAttempts,
		record.CreatedAt,
		record.NextRetryAt,
		record.Status,
		record.Error,
	)

	return err
}

//
// 周期性重试任务
//

// runRetryWorker 运行重试工作协程
// 周期性扫描并处理失败的记录
func (manager *Manager) runRetryWorker() {
	defer manager.workers.Done()

	ticker := time.NewTicker(retryWorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-manager.context.Done():
			return
		case <-ticker.C:
			manager.processRetryRecords()
		}
	}
}

// processRetryRecords 处理需要重试的记录
func (manager *Manager) processRetryRecords() {
	retryRecords, err := manager.fetchRetryRecords()
	if err != nil {
		log.Printf("[ARCHIVER] 获取重试记录失败: %v", err)
		return
	}

	if len(retryRecords) == 0 {
		return
	}

	successIDs := manager.retryRecords(retryRecords)
	manager.deleteSuccessfulRecords(successIDs)
}

// fetchRetryRecords 从数据库获取需要重试的记录
func (manager *Manager) fetchRetryRecords() ([]SyncRecord, error) {
	query := `SELECT id, table_name, operation, record_id, data, attempts,
		max_attempts, created_at, next_retry_at, status, error
		FROM async_sync_queue
		WHERE status=? AND next_retry_at<=? AND attempts<max_attempts
		LIMIT ?`

	rows, err := manager.database.Query(
		query,
		recordStatusPending,
		time.Now().Unix(),
		retryRecordBatchSize,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SyncRecord
	for rows.Next() {
		record, err := manager.scanRetryRecord(rows)
		if err != nil {
			log.Printf("[ARCHIVER] 扫描记录失败: %v", err)
			continue
		}
		records = append(records, record)
	}

	return records, nil
}

// scanRetryRecord 扫描单条重试记录
func (manager *Manager) scanRetryRecord(rows interface {
	Scan(dest ...interface{}) error
}) (SyncRecord, error) {
	var record SyncRecord

	err := rows.Scan(
		&record.ID,
		&record.TableName,
		&record.Operation,
		&record.RecordID,
		&record.Data,
		&record.Attempts,
		&record.MaxAttempts,
		&record.CreatedAt,
		&record.NextRetryAt,
		&record.Status,
		&record.Error,
	)

	return record, err
}

// retryRecords 重试记录并返回成功的ID列表
func (manager *Manager) retryRecords(records []SyncRecord) []int64 {
	var successIDs []int64
	currentTime := time.Now()

	for _, record := range records {
		if manager.retrySingleRecord(record, currentTime) {
			successIDs = append(successIDs, record.ID)
		}
	}

	return successIDs
}

// retrySingleRecord 重试单条记录
func (manager *Manager) retrySingleRecord(
	record SyncRecord,
	currentTime time.Time,
) bool {
	if err := manager.syncRecordsToMySQL(record.TableName, []SyncRecord{record}); err != nil {
		manager.updateFailedRecord(record, currentTime, err)
		return false
	}

	return true
}

// updateFailedRecord 更新失败的记录
func (manager *Manager) updateFailedRecord(
	record SyncRecord,
	failureTime time.Time,
	syncError error,
) {
	record.Attempts++
	record.NextRetryAt = manager.calculateNextRetryTime(failureTime, record.Attempts)
	record.Error = syncError.Error()

	if record.Attempts >= record.MaxAttempts {
		record.Status = recordStatusFailed
	}

	query := `UPDATE async_sync_queue
		SET attempts=?, next_retry_at=?, error=?, status=?
		WHERE id=?`

	_, _ = manager.database.Exec(
		query,
		record.Attempts,
		record.NextRetryAt,
		record.Error,
		record.Status,
		record.ID,
	)
}

// deleteSuccessfulRecords 批量删除成功的记录
func (manager *Manager) deleteSuccessfulRecords(ids []int64) {
	if len(ids) == 0 {
		return
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, len(ids))
	for index, id := range ids {
		args[index] = id
	}

	query := fmt.Sprintf("DELETE FROM async_sync_queue WHERE id IN (%s)", placeholders)

	if _, err := manager.database.Exec(query, args...); err != nil {
		log.Printf("[ARCHIVER] 删除成功记录失败: %v", err)
	}
}

//
// 具体表归档实现
//

// syncPublishRecords 归档发布记录到 MySQL
func (manager *Manager) syncPublishRecords(records []SyncRecord) error {
	if len(records) == 0 {
		return nil
	}

	transaction, err := manager.database.Begin()
	if err != nil {
		return err
	}
	defer transaction.Rollback()

	statement, err := transaction.Prepare(`
		INSERT INTO publish_records
		(id, task_key, namespace, correlation_id, content_id, platform, status,
		 failure_class, reason, attempts, created_at, finished_at, redis_synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
		status=VALUES(status), failure_class=VALUES(failure_class),
		reason=VALUES(reason), attempts=VALUES(attempts),
		finished_at=VALUES(finished_at), redis_synced=VALUES(redis_synced)
	`)
	if err != nil {
		return err
	}
	defer statement.Close()

	for _, record := range records {
		if err := manager.executePublishRecordInsert(statement, record); err != nil {
			return err
		}
	}

	return transaction.Commit()
}

// executePublishRecordInsert 执行发布记录插入
func (manager *Manager) executePublishRecordInsert(
	statement *sql.Stmt,
	record SyncRecord,
) error {
	var publishRecord struct {
		ID            string `json:"id"`
		TaskKey       string `json:"task_key"`
		Namespace     string `json:"namespace"`
		CorrelationID string `json:"correlation_id"`
		ContentID     string `json:"content_id"`
		Platform      string `json:"platform"`
		Status        string `json:"status"`
		FailureClass  string `json:"failure_class"`
		Reason        string `json:"reason"`
		Attempts      int    `json:"attempts"`
		CreatedAt     int64  `json:"created_at"`
		FinishedAt    int64  `json:"finished_at"`
	}

	if err := json.Unmarshal(record.Data, &publishRecord); err != nil {
		log.Printf("[ARCHIVER] 解析发布记录失败: %v", err)
		return nil
	}

	_, err := statement.Exec(
		publishRecord.ID,
		publishRecord.TaskKey,
		publishRecord.Namespace,
		publishRecord.CorrelationID,
		publishRecord.ContentID,
		publishRecord.Platform,
		publishRecord.Status,
		publishRecord.FailureClass,
		publishRecord.Reason,
		publishRecord.Attempts,
		publishRecord.CreatedAt,
		publishRecord.FinishedAt,
		true,
	)

	if err != nil {
		log.Printf("[ARCHIVER] 插入发布记录失败: %v", err)
	}

	return err
}

// syncTaskStatus 归档任务状态到 MySQL
func (manager *Manager) syncTaskStatus(records []SyncRecord) error {
	if len(records) == 0 {
		return nil
	}

	transaction, err := manager.database.Begin()
	if err != nil {
		return err
	}
	defer transaction.Rollback()

	statement, err := transaction.Prepare(`
		INSERT INTO task_status
		(task_key, platform, content, status, error, created_at, updated_at, redis_synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
		status=VALUES(status), error=VALUES(error),
		updated_at=VALUES(updated_at), redis_synced=VALUES(redis_synced)
	`)
	if err != nil {
		return err
	}
	defer statement.Close()

	for _, record := range records {
		if err := manager.executeTaskStatusInsert(statement, record); err != nil {
			return err
		}
	}

	return transaction.Commit()
}

// executeTaskStatusInsert 执行任务状态插入
func (manager *Manager) executeTaskStatusInsert(
	statement *sql.Stmt,
	record SyncRecord,
) error {
	var status struct {
		TaskKey   string `json:"task_key"`
		Platform  string `json:"platform"`
		Content   string `json:"content"`
		Status    string `json:"status"`
		Error     string `json:"error"`
		CreatedAt int64  `json:"created_at"`
		UpdatedAt int64  `json:"updated_at"`
	}

	if err := json.Unmarshal(record.Data, &status); err != nil {
		log.Printf("[ARCHIVER] 解析任务状态失败: %v", err)
		return nil
	}

	_, err := statement.Exec(
		status.TaskKey,
		status.Platform,
		status.Content,
		status.Status,
		status.Error,
		status.CreatedAt,
		status.UpdatedAt,
		true,
	)

	if err != nil {
		log.Printf("[ARCHIVER] 插入任务状态失败: %v", err)
	}

	return err
}

// syncIdempotencyRecords 归档幂等账本到 MySQL
func (manager *Manager) syncIdempotencyRecords(records []SyncRecord) error {
	if len(records) == 0 {
		return nil
	}

	transaction, err := manager.database.Begin()
	if err != nil {
		return err
	}
	defer transaction.Rollback()

	statement, err := transaction.Prepare(`
		INSERT INTO idempotency_records
		(key_hash, namespace, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
		expires_at=VALUES(expires_at)
	`)
	if err != nil {
		return err
	}
	defer statement.Close()

	for _, record := range records {
		if err := manager.executeIdempotencyRecordInsert(statement, record); err != nil {
			return err
		}
	}

	return transaction.Commit()
}

// executeIdempotencyRecordInsert 执行幂等账本插入
func (manager *Manager) executeIdempotencyRecordInsert(
	statement *sql.Stmt,
	record SyncRecord,
) error {
	var idempotency struct {
		KeyHash   string `json:"key_hash"`
		Namespace string `json:"namespace"`
		CreatedAt int64  `json:"created_at"`
		ExpiresAt int64  `json:"expires_at"`
	}

	if err := json.Unmarshal(record.Data, &idempotency); err != nil {
		log.Printf("[ARCHIVER] 解析幂等账本记录失败: %v", err)
		return nil
	}

	_, err := statement.Exec(
		idempotency.KeyHash,
		idempotency.Namespace,
		idempotency.CreatedAt,
		idempotency.ExpiresAt,
	)

	if err != nil {
		log.Printf("[ARCHIVER] 插入幂等账本记录失败: %v", err)
	}

	return err
}
