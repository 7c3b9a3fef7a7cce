package platforms

import (
	"context"

	"golang.org/x/time/rate"

	"publish-gateway/internal/publish"
)

const (
	// 错误消息常量
	errorRateLimitExceeded = "平台调用频率超限"
)

// ThrottledPublisher 带本地限流的发布器装饰器
// 超出配额时立即返回 rate_limited 错误并携带建议等待时间,
// 由重试执行器按该提示下限安排下一次尝试
type ThrottledPublisher struct {
	inner   publish.Publisher
	limiter *rate.Limiter
}

// Throttle 为发布器附加限流器
// requestsPerSecond <= 0 时不限流,直接返回原发布器
func Throttle(inner publish.Publisher, requestsPerSecond float64, burst int) publish.Publisher {
	if requestsPerSecond <= 0 {
		return inner
	}

	if burst < 1 {
		burst = 1
	}

	return &ThrottledPublisher{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Name 返回内部发布器名称
func (publisher *ThrottledPublisher) Name() string {
	return publisher.inner.Name()
}

// Platform 返回内部发布器的目标平台
func (publisher *ThrottledPublisher) Platform() publish.Platform {
	return publisher.inner.Platform()
}

// Publish 先检查本地配额,再委托给内部发布器
func (publisher *ThrottledPublisher) Publish(ctx context.Context, item publish.ContentItem) error {
	reservation := publisher.limiter.Reserve()
	if !reservation.OK() {
		return publish.NewRateLimited(errorRateLimitExceeded, 0)
	}

	delay := reservation.Delay()
	if delay > 0 {
		// 不在此处等待:取消预约并把等待时间作为提示交回执行器
		reservation.Cancel()
		return publish.NewRateLimited(errorRateLimitExceeded, delay)
	}

	return publisher.inner.Publish(ctx, item)
}
