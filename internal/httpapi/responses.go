package httpapi

import (
	"encoding/json"
	"net/http"
)

// ==================== 响应模型 ====================

// Response 统一的 API 响应格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ==================== 响应工具函数 ====================

// writeJSON 写入 JSON 响应
func writeJSON(writer http.ResponseWriter, statusCode int, response Response) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(statusCode)
	_ = json.NewEncoder(writer).Encode(response)
}

// writeSuccess 写入成功响应
func writeSuccess(writer http.ResponseWriter, data interface{}) {
	writeJSON(writer, http.StatusOK, Response{
		Code:    200,
		Message: "success",
		Data:    data,
	})
}

// writeError 写入错误响应
func writeError(writer http.ResponseWriter, message string, statusCode int) {
	writeJSON(writer, statusCode, Response{
		Code:    statusCode,
		Message: message,
		Data:    nil,
	})
}
