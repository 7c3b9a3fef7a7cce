package publish

import (
	"context"
	"encoding/json"
	"fmt"
)

// Enqueuer 入队器接口,异步提交时使用
type Enqueuer interface {
	Enqueue(ctx context.Context, payload []byte) error
	Close()
}

// Service 接口 - 支持异步排队和同步编排两种提交方式
type Service interface {
	Submit(ctx context.Context, req PublishRequest) error
	SubmitAsync(ctx context.Context, req PublishRequest) error
	SubmitSync(ctx context.Context, req PublishRequest) error
}

type service struct {
	orchestrator *Orchestrator
	enqueuer     Enqueuer
}

func NewService(orchestrator *Orchestrator, enqueuer Enqueuer) Service {
	return &service{orchestrator: orchestrator, enqueuer: enqueuer}
}

// Submit 默认走异步队列;没有配置队列时退化为同步编排
func (s *service) Submit(ctx context.Context, req PublishRequest) error {
	if s.enqueuer == nil {
		return s.SubmitSync(ctx, req)
	}
	return s.SubmitAsync(ctx, req)
}

// SubmitAsync 序列化请求入队,由消费者端驱动编排
func (s *service) SubmitAsync(ctx context.Context, req PublishRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("序列化请求失败: %w", err)
	}
	return s.enqueuer.Enqueue(ctx, payload)
}

// SubmitSync 直接调用编排器扇出
func (s *service) SubmitSync(ctx context.Context, req PublishRequest) error {
	return s.orchestrator.OnContentReady(ctx, req)
}
