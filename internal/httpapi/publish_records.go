package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"publish-gateway/internal/publish"
)

// ==================== 常量定义 ====================

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 500
	statsSampleLimit  = 1000
)

// ==================== 接口定义 ====================

// PublishRecordStore 发布记录查询接口
// 与 recorder.RedisStore 和 recorder.HybridStore 的实际方法签名匹配
type PublishRecordStore interface {
	QueryRecords(ctx context.Context, namespace string, limit int64) ([]publish.Record, error)
}

// ==================== Records Handler ====================

// PublishRecordsHandler 发布记录查询处理器
type PublishRecordsHandler struct {
	store     PublishRecordStore
	namespace string
}

// NewPublishRecordsHandler 创建发布记录处理器
func NewPublishRecordsHandler(store PublishRecordStore, namespace string) *PublishRecordsHandler {
	return &PublishRecordsHandler{
		store:     store,
		namespace: namespace,
	}
}

// HandleQuery 处理记录查询请求
// GET /v1/publish-records?limit=50&platform=instagram&status=failed
func (handler *PublishRecordsHandler) HandleQuery(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writeError(writer, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := parseQueryLimit(request.URL.Query().Get("limit"))

	records, err := handler.store.QueryRecords(request.Context(), handler.namespace, limit)
	if err != nil {
		writeError(writer, "查询发布记录失败: "+err.Error(), http.StatusInternalServerError)
		return
	}

	records = filterRecords(
		records,
		request.URL.Query().Get("platform"),
		request.URL.Query().Get("status"),
	)

	writeSuccess(writer, map[string]interface{}{
		"total":   len(records),
		"records": records,
	})
}

// HandleStats 处理记录统计请求
// GET /v1/publish-records/stats
// 基于最近的记录样本统计各终态数量
func (handler *PublishRecordsHandler) HandleStats(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writeError(writer, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := handler.store.QueryRecords(request.Context(), handler.namespace, statsSampleLimit)
	if err != nil {
		writeError(writer, "查询发布记录失败: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeSuccess(writer, buildRecordStats(records))
}

// ==================== 工具函数 ====================

// parseQueryLimit 解析并约束查询条数
func parseQueryLimit(raw string) int64 {
	if raw == "" {
		return defaultQueryLimit
	}

	limit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || limit <= 0 {
		return defaultQueryLimit
	}

	if limit > maxQueryLimit {
		return maxQueryLimit
	}

	return limit
}

// filterRecords 按平台和状态过滤记录
func filterRecords(records []publish.Record, platform string, status string) []publish.Record {
	if platform == "" && status == "" {
		return records
	}

	filtered := make([]publish.Record, 0, len(records))
	for _, record := range records {
		if platform != "" && string(record.Platform) != platform {
			continue
		}
		if status != "" && record.Status != status {
			continue
		}
		filtered = append(filtered, record)
	}

	return filtered
}

// buildRecordStats 构建终态统计
func buildRecordStats(records []publish.Record) map[string]interface{} {
	byStatus := make(map[string]int)
	byPlatform := make(map[string]int)

	for _, record := range records {
		byStatus[record.Status]++
		byPlatform[string(record.Platform)]++
	}

	return map[string]interface{}{
		"sampled":     len(records),
		"by_status":   byStatus,
		"by_platform": byPlatform,
	}
}
