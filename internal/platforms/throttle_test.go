package platforms_test

import (
	"context"
	"errors"
	"testing"

	"publish-gateway/internal/platforms"
	"publish-gateway/internal/publish"
)

type countingPublisher struct {
	calls int
}

func (p *countingPublisher) Name() string               { return "counting" }
func (p *countingPublisher) Platform() publish.Platform { return publish.PlatformInstagram }
func (p *countingPublisher) Publish(context.Context, publish.ContentItem) error {
	p.calls++
	return nil
}

func TestThrottleDisabledPassesThrough(t *testing.T) {
	inner := &countingPublisher{}

	throttled := platforms.Throttle(inner, 0, 1)
	if throttled != publish.Publisher(inner) {
		t.Fatalf("expected zero rate to return the inner publisher unchanged")
	}
}

func TestThrottleReturnsRateLimitHintWhenQuotaExhausted(t *testing.T) {
	inner := &countingPublisher{}

	// 每秒 1 次,突发 1:第二次调用必然超限
	throttled := platforms.Throttle(inner, 1, 1)

	if err := throttled.Publish(context.Background(), publish.ContentItem{ID: "c1"}); err != nil {
		t.Fatalf("first call should pass, got %v", err)
	}

	err := throttled.Publish(context.Background(), publish.ContentItem{ID: "c2"})
	if err == nil {
		t.Fatalf("second call should be throttled")
	}

	var publishErr *publish.PublishError
	if !errors.As(err, &publishErr) {
		t.Fatalf("expected *publish.PublishError, got %T", err)
	}

	if publishErr.Class != publish.ClassRateLimited {
		t.Fatalf("expected class %s, got %s", publish.ClassRateLimited, publishErr.Class)
	}

	if publishErr.RetryAfter <= 0 {
		t.Fatalf("expected a positive retry-after hint, got %v", publishErr.RetryAfter)
	}

	if inner.calls != 1 {
		t.Fatalf("inner publisher should have been called once, got %d", inner.calls)
	}
}
