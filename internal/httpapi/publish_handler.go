package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"publish-gateway/internal/publish"
)

// ==================== 常量定义 ====================

const (
	// 提交模式
	ModeAsync = "async"
	ModeSync  = "sync"
)

// ==================== 数据模型 ====================

// publishRequestBody 发布请求体
type publishRequestBody struct {
	CorrelationID string                `json:"correlation_id"`
	Contents      []publish.ContentItem `json:"contents"`
	Platforms     []string              `json:"platforms"`
	Mode          string                `json:"mode,omitempty"` // sync / async,默认 async
}

// publishResponseBody 发布接口响应体
type publishResponseBody struct {
	CorrelationID string `json:"correlation_id"`
	TaskCount     int    `json:"task_count"`
	Mode          string `json:"mode"`
}

// ==================== Publish Handler ====================

// PublishHandler 发布请求处理器
// POST /v1/publish
type PublishHandler struct {
	service publish.Service
}

// NewPublishHandler 创建发布处理器
func NewPublishHandler(service publish.Service) *PublishHandler {
	return &PublishHandler{
		service: service,
	}
}

// ServeHTTP 处理发布请求
// 未携带 correlation_id 时自动生成,保证编排器始终有幂等键可用
func (handler *PublishHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writeError(writer, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := handler.parseRequestBody(request)
	if err != nil {
		writeError(writer, err.Error(), http.StatusBadRequest)
		return
	}

	publishRequest := handler.buildPublishRequest(body)

	if err := publishRequest.Validate(); err != nil {
		writeError(writer, "请求验证失败: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := handler.submit(request, publishRequest, body.Mode); err != nil {
		handler.writeSubmitError(writer, err)
		return
	}

	writeSuccess(writer, publishResponseBody{
		CorrelationID: publishRequest.CorrelationID,
		TaskCount:     len(publishRequest.Tasks()),
		Mode:          handler.effectiveMode(body.Mode),
	})
}

// parseRequestBody 解析请求体
func (handler *PublishHandler) parseRequestBody(request *http.Request) (*publishRequestBody, error) {
	var body publishRequestBody
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("JSON解析失败: %w", err)
	}
	return &body, nil
}

// buildPublishRequest 构造内部发布请求
func (handler *PublishHandler) buildPublishRequest(body *publishRequestBody) publish.PublishRequest {
	correlationID := body.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
		log.Printf("[PublishHandler] 请求未携带 correlation_id,已生成: %s", correlationID)
	}

	platforms := make([]publish.Platform, 0, len(body.Platforms))
	for _, platform := range body.Platforms {
		platforms = append(platforms, publish.Platform(platform))
	}

	return publish.PublishRequest{
		CorrelationID: correlationID,
		Contents:      body.Contents,
		Platforms:     platforms,
		CreatedAt:     time.Now(),
	}
}

// submit 按模式提交请求
func (handler *PublishHandler) submit(
	request *http.Request,
	publishRequest publish.PublishRequest,
	mode string,
) error {
	if mode == ModeSync {
		return handler.service.SubmitSync(request.Context(), publishRequest)
	}

	return handler.service.Submit(request.Context(), publishRequest)
}

// effectiveMode 返回实际使用的提交模式
func (handler *PublishHandler) effectiveMode(mode string) string {
	if mode == ModeSync {
		return ModeSync
	}
	return ModeAsync
}

// writeSubmitError 根据错误类型写入响应
// 请求级校验错误返回 400,其余按服务端错误处理
func (handler *PublishHandler) writeSubmitError(writer http.ResponseWriter, err error) {
	if errors.Is(err, publish.ErrInvalidRequest) ||
		errors.Is(err, publish.ErrMissingCorrelationID) ||
		errors.Is(err, publish.ErrNoContents) ||
		errors.Is(err, publish.ErrNoPlatforms) {
		writeError(writer, err.Error(), http.StatusBadRequest)
		return
	}

	log.Printf("[PublishHandler] 提交失败: %v", err)
	writeError(writer, "提交发布请求失败", http.StatusInternalServerError)
}
