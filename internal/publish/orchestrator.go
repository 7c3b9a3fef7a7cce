package publish

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"publish-gateway/internal/status"
)

// ==================== 常量定义 ====================

const (
	// 任务状态常量
	statusPending   = "pending"
	statusRetrying  = "retrying"
	statusScheduled = "scheduled"
	statusFailed    = "failed"
	statusSkipped   = "skipped"

	// 状态说明常量
	messageTaskAccepted  = "任务已接收"
	messageTaskRetrying  = "等待重试"
	messageTaskScheduled = "发布已排期"
	messageTaskSkipped   = "幂等键已处理,跳过"
)

// ==================== Orchestrator 结构 ====================

// Orchestrator 发布编排器:把一个请求展开为 (内容, 平台) 任务并独立驱动,
// 每个幂等键至多产生一个终态事件
type Orchestrator struct {
	registry      Registry
	ledger        Ledger
	bus           Bus
	store         Store
	statusStore   status.StatusStore
	policies      map[Platform]RetryPolicy
	defaultPolicy RetryPolicy
	namespace     string
	currentTime   func() time.Time
	inFlight      sync.WaitGroup
}

func NewOrchestrator(
	registry Registry,
	ledger Ledger,
	bus Bus,
	namespace string,
) *Orchestrator {
	return &Orchestrator{
		registry:      registry,
		ledger:        ledger,
		bus:           bus,
		policies:      map[Platform]RetryPolicy{},
		defaultPolicy: RetryPolicy{MaxAttempts: defaultMaxAttempts, BaseBackoff: defaultBaseBackoff, MaxBackoff: defaultMaxBackoff},
		namespace:     namespace,
		currentTime:   time.Now,
	}
}

// SetStore 注入记录存储(可选)
func (o *Orchestrator) SetStore(store Store) {
	o.store = store
}

// SetStatusStore 注入状态存储(可选)
func (o *Orchestrator) SetStatusStore(statusStore status.StatusStore) {
	o.statusStore = statusStore
}

// SetRetryPolicy 设置单个平台的重试参数
func (o *Orchestrator) SetRetryPolicy(platform Platform, policy RetryPolicy) {
	o.policies[platform] = policy
}

// SetDefaultRetryPolicy 设置未单独配置平台的缺省重试参数
func (o *Orchestrator) SetDefaultRetryPolicy(policy RetryPolicy) {
	o.defaultPolicy = policy
}

// ==================== 公共入口 ====================

// OnContentReady 编排器唯一入口:校验请求后把任务异步扇出。
// 任务结果不同步返回,通过事件总线观察;任务之间互不影响,完成顺序不保证。
func (o *Orchestrator) OnContentReady(ctx context.Context, req PublishRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	tasks := req.Tasks()
	log.Printf("[ORCHESTRATOR] 请求 %s 展开为 %d 个任务 (%d 条内容 × 平台)",
		req.CorrelationID, len(tasks), len(req.Contents))

	// 任务生命周期与调用方解耦:入口返回后调用方取消 ctx(HTTP 请求结束、
	// 消息 handler 退出)不得打断在途重试,停机统一走 Drain
	taskCtx := context.WithoutCancel(ctx)
	for _, task := range tasks {
		o.inFlight.Add(1)
		go func(t PublishTask) {
			defer o.inFlight.Done()
			defer o.recoverTaskPanic(taskCtx, t)
			o.runTask(taskCtx, t)
		}(task)
	}

	return nil
}

// Drain 等待所有在途任务结束,供停机与测试使用
func (o *Orchestrator) Drain() {
	o.inFlight.Wait()
}

// ==================== 单任务驱动 ====================

// runTask 驱动单个任务:幂等检查 → 有界重试 → 记账 → 发事件
func (o *Orchestrator) runTask(ctx context.Context, task PublishTask) {
	key := task.Key()

	// 1. 幂等检查:已处理的键完全跳过,不调发布器也不发事件
	processed, err := o.ledger.IsProcessed(ctx, key)
	if err != nil {
		// 账本读失败按未处理继续,写侧才是去重点
		log.Printf("[ORCHESTRATOR] 幂等检查失败,继续执行 key=%s: %v", key, err)
	}
	if processed {
		log.Printf("[ORCHESTRATOR] 幂等键已处理,跳过任务: %s", key)
		o.saveRecordAndUpdateStatus(ctx, task, statusSkipped, "", messageTaskSkipped, 0)
		return
	}

	o.saveRecordAndUpdateStatus(ctx, task, statusPending, "", messageTaskAccepted, 0)

	// 2. 执行有界重试
	outcome := o.executeTask(ctx, task)

	// 3. 先落账本再发事件:两步之间崩溃最多丢一个事件,不会重复发终态
	if err := o.ledger.MarkProcessed(ctx, key); err != nil {
		log.Printf("[ORCHESTRATOR] 账本写入失败,抑制终态事件 key=%s: %v", key, err)
		o.saveRecordAndUpdateStatus(ctx, task, statusFailed, string(outcome.Class), err.Error(), outcome.Attempts)
		return
	}

	// 4. 每个任务恰好一个终态事件
	o.emitTerminalEvent(ctx, task, outcome)
}

// executeTask 选择发布器与平台策略并运行执行器
func (o *Orchestrator) executeTask(ctx context.Context, task PublishTask) Outcome {
	publisher, ok := o.registry.Get(task.Platform)
	if !ok {
		log.Printf("[ORCHESTRATOR] 平台 %s 无发布器", task.Platform)
		return Outcome{
			Status:   OutcomeFailed,
			Class:    ClassPermanent,
			Reason:   ErrNoPublisher.Error(),
			Attempts: 0,
		}
	}

	executor := NewExecutorFromPolicy(o.policyFor(task.Platform))
	executor.SetAttemptObserver(func(t PublishTask, att Attempt) {
		if att.Err != nil && att.Err.Class.Retriable() {
			o.updateStatusIfAvailable(ctx, t.Key(), statusRetrying, messageTaskRetrying)
		}
	})

	log.Printf("[ORCHESTRATOR] 开始发布: key=%s publisher=%s", task.Key(), publisher.Name())
	return executor.Run(ctx, task, publisher)
}

// policyFor 返回平台专属重试参数,没有时用缺省值
func (o *Orchestrator) policyFor(platform Platform) RetryPolicy {
	if policy, ok := o.policies[platform]; ok {
		return policy
	}
	return o.defaultPolicy
}

// ==================== 终态事件 ====================

// emitTerminalEvent 按终态发布 POST_SCHEDULED 或 POST_FAILED
func (o *Orchestrator) emitTerminalEvent(ctx context.Context, task PublishTask, outcome Outcome) {
	payload := EventPayload{
		CorrelationID: task.CorrelationID,
		ContentID:     task.Content.ID,
		Platform:      task.Platform,
	}

	if outcome.Status == OutcomeScheduled {
		o.saveRecordAndUpdateStatus(ctx, task, statusScheduled, "", messageTaskScheduled, outcome.Attempts)
		if err := o.bus.Publish(ctx, EventPostScheduled, payload); err != nil {
			log.Printf("[ORCHESTRATOR] 事件发布失败 %s key=%s: %v", EventPostScheduled, task.Key(), err)
		}
		return
	}

	payload.Reason = outcome.Reason
	o.saveRecordAndUpdateStatus(ctx, task, statusFailed, string(outcome.Class), outcome.Reason, outcome.Attempts)
	if err := o.bus.Publish(ctx, EventPostFailed, payload); err != nil {
		log.Printf("[ORCHESTRATOR] 事件发布失败 %s key=%s: %v", EventPostFailed, task.Key(), err)
	}
}

// ==================== 存储操作函数 ====================

// saveRecordAndUpdateStatus 保存记录并更新状态
func (o *Orchestrator) saveRecordAndUpdateStatus(
	ctx context.Context,
	task PublishTask,
	recordStatus string,
	failureClass string,
	content string,
	attempts int,
) {
	if o.store != nil {
		record := o.createPublishRecord(task, recordStatus, failureClass, content, attempts)
		_ = o.store.SaveRecord(ctx, record)
		_, _ = o.store.Trim(ctx)
	}

	o.updateStatusIfAvailable(ctx, task.Key(), recordStatus, content)
}

// updateStatusIfAvailable 如果状态存储可用则更新状态
func (o *Orchestrator) updateStatusIfAvailable(ctx context.Context, key string, recordStatus string, message string) {
	if o.statusStore == nil {
		return
	}

	log.Printf("[ORCHESTRATOR] UpdateStatus: key=%s, status=%s", key, recordStatus)
	_ = o.statusStore.UpdateStatus(ctx, key, recordStatus, message)
}

// createPublishRecord 创建完整的发布记录
func (o *Orchestrator) createPublishRecord(
	task PublishTask,
	recordStatus string,
	failureClass string,
	content string,
	attempts int,
) Record {
	currentTime := o.currentTime().Unix()
	return Record{
		Namespace:     o.namespace,
		Key:           task.Key(),
		CorrelationID: task.CorrelationID,
		ContentID:     task.Content.ID,
		Platform:      task.Platform,
		Status:        recordStatus,
		Class:         failureClass,
		Reason:        content,
		Attempts:      attempts,
		CreatedAt:     currentTime,
		FinishedAt:    currentTime,
	}
}

// ==================== 兜底保护 ====================

// recoverTaskPanic 任何任务 panic 都不允许越过编排器边界。
// panic 同样是终态:未落账的键补一条 POST_FAILED,保持每键恰好一个终态事件;
// 已落账说明 panic 发生在发事件阶段,按崩溃语义宁可丢事件也不重复发
func (o *Orchestrator) recoverTaskPanic(ctx context.Context, task PublishTask) {
	r := recover()
	if r == nil {
		return
	}

	key := task.Key()
	log.Printf("[ORCHESTRATOR] 任务 panic 已捕获 key=%s: %v", key, r)

	processed, err := o.ledger.IsProcessed(ctx, key)
	if err == nil && processed {
		return
	}

	outcome := Outcome{
		Status: OutcomeFailed,
		Class:  ClassPermanent,
		Reason: fmt.Sprintf("task panic: %v", r),
	}
	if err := o.ledger.MarkProcessed(ctx, key); err != nil {
		log.Printf("[ORCHESTRATOR] 账本写入失败,抑制终态事件 key=%s: %v", key, err)
		o.saveRecordAndUpdateStatus(ctx, task, statusFailed, string(outcome.Class), err.Error(), 0)
		return
	}
	o.emitTerminalEvent(ctx, task, outcome)
}
