package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"publish-gateway/internal/publish"
	"publish-gateway/internal/queue"
)

// ==================== 常量定义 ====================

const (
	defaultEventsTopic = "publish_events"

	logTag = "[EVENT_BUS] "
)

var (
	errEmptyEventName = errors.New("event name cannot be empty")
	errNilProducer    = errors.New("event bus producer cannot be nil")
)

// ==================== 类型定义 ====================

// eventEnvelope 事件的线上格式
// 下游按 event 字段路由,payload 为终态字段
type eventEnvelope struct {
	Event   string               `json:"event"`
	Payload publish.EventPayload `json:"payload"`
}

// NSQBus 基于 NSQ 的事件总线
// 每个任务终态恰好发出一条事件
type NSQBus struct {
	producer *queue.NSQProducer
	topic    string
}

// ==================== 构造函数 ====================

// NewNSQBus 创建 NSQ 事件总线,复用已有的生产者连接
func NewNSQBus(producer *queue.NSQProducer, topic string) (*NSQBus, error) {
	if producer == nil {
		return nil, errNilProducer
	}

	if topic == "" {
		topic = defaultEventsTopic
	}

	return &NSQBus{
		producer: producer,
		topic:    topic,
	}, nil
}

// ==================== 事件发布 ====================

// Publish 发布终态事件
func (bus *NSQBus) Publish(ctx context.Context, event string, payload publish.EventPayload) error {
	if event == "" {
		return errEmptyEventName
	}

	body, err := json.Marshal(eventEnvelope{Event: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event, err)
	}

	if err := bus.producer.PublishTo(bus.topic, body); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event, err)
	}

	return nil
}

// ==================== 本地事件总线 ====================

// LogBus 仅记录日志的事件总线
// NSQ 未配置时的降级实现,保证编排器仍可运行
type LogBus struct{}

// NewLogBus 创建日志事件总线
func NewLogBus() *LogBus {
	return &LogBus{}
}

// Publish 将事件写入日志
func (bus *LogBus) Publish(_ context.Context, event string, payload publish.EventPayload) error {
	if event == "" {
		return errEmptyEventName
	}

	log.Printf("%s%s correlation=%s content=%s platform=%s reason=%s",
		logTag, event, payload.CorrelationID, payload.ContentID, payload.Platform, payload.Reason)
	return nil
}
