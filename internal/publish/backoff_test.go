package publish_test

import (
	"testing"
	"time"

	"publish-gateway/internal/publish"
)

func TestExponentialBackoffGrowsAndCaps(t *testing.T) {
	base := 100 * time.Millisecond
	max := 800 * time.Millisecond
	policy := publish.ExponentialBackoff(base, max)

	// 抖动范围为 [0, base/2],逐次校验上下界
	for attempt := 1; attempt <= 8; attempt++ {
		expected := base << (attempt - 1)
		if expected > max {
			expected = max
		}
		got := policy(attempt)
		if got < expected {
			t.Fatalf("attempt %d: delay %v below expected base %v", attempt, got, expected)
		}
		if got > max {
			t.Fatalf("attempt %d: delay %v exceeds cap %v", attempt, got, max)
		}
	}
}

func TestExponentialBackoffJitterBoundsAtLongDelays(t *testing.T) {
	// 接近缺省 30s 上限的延迟也必须落在 [base, max] 内,
	// 抖动上界不得因整型截断而失真
	base := 20 * time.Second
	max := 30 * time.Second
	policy := publish.ExponentialBackoff(base, max)

	for i := 0; i < 32; i++ {
		if got := policy(1); got < base || got > max {
			t.Fatalf("delay %v outside [%v, %v]", got, base, max)
		}
		// base*2^5 远超 max,封顶后抖动也被钳制在 max
		if got := policy(6); got > max {
			t.Fatalf("capped delay %v exceeds %v", got, max)
		}
	}
}

func TestExponentialBackoffDefaultsOnZeroConfig(t *testing.T) {
	policy := publish.ExponentialBackoff(0, 0)
	if got := policy(1); got <= 0 {
		t.Fatalf("delay = %v, want positive default", got)
	}
}

func TestExponentialBackoffClampsBadAttempt(t *testing.T) {
	policy := publish.ExponentialBackoff(50*time.Millisecond, time.Second)
	if got := policy(0); got < 50*time.Millisecond {
		t.Fatalf("attempt 0 clamped delay = %v, want >= base", got)
	}
	if got := policy(-3); got < 50*time.Millisecond {
		t.Fatalf("negative attempt delay = %v, want >= base", got)
	}
}

func TestZeroAndConstantBackoff(t *testing.T) {
	zero := publish.ZeroBackoff()
	for attempt := 1; attempt <= 5; attempt++ {
		if got := zero(attempt); got != 0 {
			t.Fatalf("zero backoff attempt %d = %v, want 0", attempt, got)
		}
	}

	constant := publish.ConstantBackoff(42 * time.Millisecond)
	for attempt := 1; attempt <= 5; attempt++ {
		if got := constant(attempt); got != 42*time.Millisecond {
			t.Fatalf("constant backoff attempt %d = %v, want 42ms", attempt, got)
		}
	}
}
