package publish

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// ==================== 退避策略 ====================

const (
	defaultBaseBackoff = 500 * time.Millisecond
	defaultMaxBackoff  = 30 * time.Second
)

// BackoffPolicy 纯函数:第 attempt 次(从 1 计)失败后应等待的时间
type BackoffPolicy func(attempt int) time.Duration

// ExponentialBackoff 指数退避,带上限与抖动,避免大量任务同步重试
func ExponentialBackoff(base, max time.Duration) BackoffPolicy {
	if base <= 0 {
		base = defaultBaseBackoff
	}
	if max <= 0 {
		max = defaultMaxBackoff
	}
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		delay := base
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay >= max {
				delay = max
				break
			}
		}
		return calculateJitteredDelay(delay, max)
	}
}

// ZeroBackoff 无等待,用于确定性测试
func ZeroBackoff() BackoffPolicy {
	return func(int) time.Duration { return 0 }
}

// ConstantBackoff 固定等待
func ConstantBackoff(d time.Duration) BackoffPolicy {
	return func(int) time.Duration { return d }
}

// calculateJitteredDelay 计算带抖动的延迟时间(抖动范围 [0, base/2]),
// 抖动上界按 Duration 运算,避免长延迟下的 uint32 截断
func calculateJitteredDelay(baseDelay, max time.Duration) time.Duration {
	delay := baseDelay + randomDurationBelow(baseDelay/2+1)
	if delay > max {
		delay = max
	}
	return delay
}

// randomDurationBelow 生成 [0, bound) 内的随机时长
func randomDurationBelow(bound time.Duration) time.Duration {
	if bound <= 0 {
		return 0
	}
	var randomBytes [8]byte
	_, _ = rand.Read(randomBytes[:])
	return time.Duration(binary.LittleEndian.Uint64(randomBytes[:]) % uint64(bound))
}
