package publish

import (
	"context"
	"log"
	"time"
)

// ==================== 终态定义 ====================

type OutcomeStatus string

const (
	OutcomeScheduled OutcomeStatus = "scheduled"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome 单个任务的终态,每个任务恰好产生一个
type Outcome struct {
	Status   OutcomeStatus
	Reason   string       // 失败原因,成功时为空
	Class    FailureClass // 最后一次失败的分类
	Attempts int          // 实际尝试次数
}

// Attempt 单次尝试的瞬时记录,不持久化
type Attempt struct {
	Number int
	At     time.Time
	Err    *PublishError // nil 表示成功
}

// ==================== 重试执行器 ====================

const defaultMaxAttempts = 3

// Executor 驱动单个 (内容, 平台) 任务的有界重试
type Executor struct {
	backoff     BackoffPolicy
	maxAttempts int
	currentTime func() time.Time
	onAttempt   func(task PublishTask, att Attempt) // 可选观察钩子
}

func NewExecutor(backoff BackoffPolicy, maxAttempts int) *Executor {
	if backoff == nil {
		backoff = ExponentialBackoff(defaultBaseBackoff, defaultMaxBackoff)
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Executor{
		backoff:     backoff,
		maxAttempts: maxAttempts,
		currentTime: time.Now,
	}
}

// NewExecutorFromPolicy 按平台重试参数构造执行器
func NewExecutorFromPolicy(policy RetryPolicy) *Executor {
	return NewExecutor(
		ExponentialBackoff(policy.BaseBackoff, policy.MaxBackoff),
		policy.MaxAttempts,
	)
}

// SetAttemptObserver 注入尝试观察钩子(可选)
func (e *Executor) SetAttemptObserver(fn func(task PublishTask, att Attempt)) {
	e.onAttempt = fn
}

// Run 顺序执行最多 maxAttempts 次尝试,返回任务终态。
// 尝试之间的等待通过定时器挂起,ctx 取消时立即返回。
func (e *Executor) Run(ctx context.Context, task PublishTask, publisher Publisher) Outcome {
	var lastErr *PublishError

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		err := publisher.Publish(ctx, task.Content)
		if err == nil {
			e.observeAttempt(task, attempt, nil)
			return Outcome{Status: OutcomeScheduled, Attempts: attempt}
		}

		lastErr = ClassifyError(err)
		e.observeAttempt(task, attempt, lastErr)
		log.Printf("[EXECUTOR] 任务 %s 第 %d 次尝试失败: %v", task.Key(), attempt, lastErr)

		// 永久失败立即终止,不消耗剩余尝试次数
		if !lastErr.Class.Retriable() {
			return e.failedOutcome(lastErr, attempt)
		}

		// 最后一次尝试失败后不再等待
		if attempt == e.maxAttempts {
			break
		}

		sleepDuration := e.delayBeforeRetry(attempt, lastErr)
		select {
		case <-time.After(sleepDuration):
		case <-ctx.Done():
			return e.failedOutcome(lastErr, attempt)
		}
	}

	return e.failedOutcome(lastErr, e.maxAttempts)
}

// delayBeforeRetry 计算下次尝试前的等待:退避策略为基准,
// 限流提示只抬高下限,不覆盖计算结果
func (e *Executor) delayBeforeRetry(attempt int, lastErr *PublishError) time.Duration {
	delay := e.backoff(attempt)
	if lastErr.Class == ClassRateLimited && lastErr.RetryAfter > delay {
		delay = lastErr.RetryAfter
	}
	return delay
}

func (e *Executor) failedOutcome(lastErr *PublishError, attempts int) Outcome {
	out := Outcome{Status: OutcomeFailed, Attempts: attempts}
	if lastErr != nil {
		out.Reason = lastErr.Reason
		out.Class = lastErr.Class
		if out.Reason == "" {
			out.Reason = lastErr.Error()
		}
	}
	return out
}

func (e *Executor) observeAttempt(task PublishTask, number int, err *PublishError) {
	if e.onAttempt == nil {
		return
	}
	e.onAttempt(task, Attempt{Number: number, At: e.currentTime(), Err: err})
}
