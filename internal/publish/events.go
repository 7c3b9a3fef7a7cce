package publish

import "context"

// ==================== 生命周期事件 ====================

const (
	EventPostScheduled = "POST_SCHEDULED"
	EventPostFailed    = "POST_FAILED"
)

// EventPayload 终态事件的结构化负载
type EventPayload struct {
	CorrelationID string   `json:"correlationId"`
	ContentID     string   `json:"contentId"`
	Platform      Platform `json:"platform"`
	Reason        string   `json:"reason,omitempty"` // 仅 POST_FAILED 携带
}

// Bus 事件总线接口,fire-and-forget
type Bus interface {
	Publish(ctx context.Context, event string, payload EventPayload) error
}
