package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"publish-gateway/internal/status"
)

// ==================== Status Handler ====================

// StatusHandler 任务状态查询处理器
type StatusHandler struct {
	store status.StatusStore
}

// NewStatusHandler 创建状态处理器
func NewStatusHandler(store status.StatusStore) *StatusHandler {
	return &StatusHandler{
		store: store,
	}
}

// ==================== HTTP 处理方法 ====================

// HandleStatusQuery 处理状态查询请求
// GET /v1/status?task_key=xxx 或 GET /v1/status?platforms=instagram,reddit
func (handler *StatusHandler) HandleStatusQuery(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writeError(writer, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	taskKey := request.URL.Query().Get("task_key")
	platformsParam := request.URL.Query().Get("platforms")

	if taskKey != "" {
		handler.handleSingleTaskQuery(writer, request, taskKey)
		return
	}

	if platformsParam != "" {
		handler.handlePlatformPendingQuery(writer, request, platformsParam)
		return
	}

	writeError(writer, "缺少 task_key 或 platforms 参数", http.StatusBadRequest)
}

// HandleStatusHistory 处理状态历史查询请求
// GET /v1/status/history?task_key=xxx
func (handler *StatusHandler) HandleStatusHistory(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writeError(writer, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	taskKey := request.URL.Query().Get("task_key")
	if taskKey == "" {
		writeError(writer, "缺少 task_key 参数", http.StatusBadRequest)
		return
	}

	historyStore, ok := handler.store.(status.HistoryStore)
	if !ok {
		writeError(writer, "当前存储不支持历史查询", http.StatusNotImplemented)
		return
	}

	history, err := historyStore.GetStatusHistory(request.Context(), taskKey)
	if err != nil {
		writeError(writer, "获取状态历史失败: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeSuccess(writer, map[string]interface{}{
		"task_key": taskKey,
		"history":  history,
	})
}

// HandleStatusUpdate 处理状态更新请求
// POST /v1/status/update
// body: { "task_key": "xxx", "status": "scheduled", "error": "..." }
func (handler *StatusHandler) HandleStatusUpdate(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writeError(writer, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	updateRequest, err := handler.parseUpdateRequest(request)
	if err != nil {
		writeError(writer, err.Error(), http.StatusBadRequest)
		return
	}

	if err := handler.validateUpdateRequest(updateRequest); err != nil {
		writeError(writer, err.Error(), http.StatusBadRequest)
		return
	}

	if err := handler.updateTaskStatus(request, updateRequest); err != nil {
		writeError(writer, "更新状态失败: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeSuccess(writer, map[string]string{
		"message": "状态更新成功",
	})
}

// ==================== 数据模型 ====================

// statusUpdateRequest 状态更新请求
type statusUpdateRequest struct {
	TaskKey string `json:"task_key"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// ==================== 查询处理 ====================

// handleSingleTaskQuery 处理单个任务状态查询
func (handler *StatusHandler) handleSingleTaskQuery(
	writer http.ResponseWriter,
	request *http.Request,
	taskKey string,
) {
	taskStatus, err := handler.store.GetStatus(request.Context(), taskKey)
	if err != nil {
		writeError(writer, "获取状态失败: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if taskStatus == nil {
		writeError(writer, "状态未找到", http.StatusNotFound)
		return
	}

	writeSuccess(writer, taskStatus)
}

// handlePlatformPendingQuery 处理平台待处理状态查询
func (handler *StatusHandler) handlePlatformPendingQuery(
	writer http.ResponseWriter,
	request *http.Request,
	platformsParam string,
) {
	platforms := handler.parsePlatforms(platformsParam)

	pendingStatuses, err := handler.store.GetPendingStatuses(request.Context(), platforms)
	if err != nil {
		writeError(writer, "获取待处理状态失败: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeSuccess(writer, map[string]interface{}{
		"pending_count": len(pendingStatuses),
		"statuses":      pendingStatuses,
	})
}

// ==================== 更新处理 ====================

// parseUpdateRequest 解析更新请求
func (handler *StatusHandler) parseUpdateRequest(request *http.Request) (*statusUpdateRequest, error) {
	var updateRequest statusUpdateRequest
	if err := json.NewDecoder(request.Body).Decode(&updateRequest); err != nil {
		return nil, fmt.Errorf("JSON解析失败: %w", err)
	}
	return &updateRequest, nil
}

// validateUpdateRequest 验证更新请求
func (handler *StatusHandler) validateUpdateRequest(request *statusUpdateRequest) error {
	if request.TaskKey == "" {
		return fmt.Errorf("缺少 task_key")
	}

	if request.Status == "" {
		return fmt.Errorf("缺少 status")
	}

	return nil
}

// updateTaskStatus 更新任务状态
func (handler *StatusHandler) updateTaskStatus(
	request *http.Request,
	updateRequest *statusUpdateRequest,
) error {
	return handler.store.UpdateStatus(
		request.Context(),
		updateRequest.TaskKey,
		updateRequest.Status,
		updateRequest.Error,
	)
}

// ==================== 工具函数 ====================

// parsePlatforms 解析平台参数
func (handler *StatusHandler) parsePlatforms(platformsParam string) []string {
	platforms := strings.Split(platformsParam, ",")

	for i := range platforms {
		platforms[i] = strings.TrimSpace(platforms[i])
	}

	return platforms
}
