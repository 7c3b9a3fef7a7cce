package publish_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"publish-gateway/internal/publish"
	"publish-gateway/internal/publish/test"
)

func newOrchestrator(reg publish.Registry, ledger publish.Ledger, bus publish.Bus) *publish.Orchestrator {
	o := publish.NewOrchestrator(reg, ledger, bus, "test")
	o.SetDefaultRetryPolicy(publish.RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond})
	return o
}

func TestOrchestratorDoubleSubmitEmitsOneEventPerTask(t *testing.T) {
	reg := &test.StubRegistry{}
	reg.Register(&test.MockPublisher{NameVal: "ig-stub", Plat: publish.PlatformInstagram})
	reg.Register(&test.MockPublisher{NameVal: "rd-stub", Plat: publish.PlatformReddit})
	ledger := test.NewMemoryLedger()
	bus := &test.RecorderBus{}
	o := newOrchestrator(reg, ledger, bus)

	req := test.NewRequest("C1", publish.PlatformInstagram, publish.PlatformReddit)

	if err := o.OnContentReady(context.Background(), req); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	o.Drain()
	if err := o.OnContentReady(context.Background(), req); err != nil {
		t.Fatalf("second submit: %v", err)
	}
	o.Drain()

	// 两个平台各恰好一个终态事件,重复提交不追加
	if got := len(bus.Snapshot()); got != 2 {
		t.Fatalf("terminal events = %d, want 2 (one per task, across both submits)", got)
	}
}

func TestOrchestratorSkipsProcessedKeyWithoutPublisherCall(t *testing.T) {
	pub := &test.MockPublisher{NameVal: "ig-stub", Plat: publish.PlatformInstagram}
	reg := &test.StubRegistry{}
	reg.Register(pub)
	ledger := test.NewMemoryLedger()
	bus := &test.RecorderBus{}
	o := newOrchestrator(reg, ledger, bus)

	req := test.NewRequest("C1", publish.PlatformInstagram)
	key := req.Tasks()[0].Key()
	ledger.Processed[key] = true

	if err := o.OnContentReady(context.Background(), req); err != nil {
		t.Fatalf("submit: %v", err)
	}
	o.Drain()

	if got := pub.Calls(); got != 0 {
		t.Fatalf("publisher calls = %d, want 0 for processed key", got)
	}
	if got := len(bus.Snapshot()); got != 0 {
		t.Fatalf("events = %d, want 0 for skipped task", got)
	}
}

func TestOrchestratorRetryThenSucceedScenario(t *testing.T) {
	// 第一次 server error,第二次成功 → 恰好一个 POST_SCHEDULED
	pub := &test.MockPublisher{
		NameVal: "ig-stub",
		Plat:    publish.PlatformInstagram,
		Script:  []error{publish.NewServerError("upstream 503", nil), nil},
	}
	reg := &test.StubRegistry{}
	reg.Register(pub)
	bus := &test.RecorderBus{}
	o := newOrchestrator(reg, test.NewMemoryLedger(), bus)

	req := test.NewRequest("C1", publish.PlatformInstagram)
	if err := o.OnContentReady(context.Background(), req); err != nil {
		t.Fatalf("submit: %v", err)
	}
	o.Drain()

	if got := pub.Calls(); got != 2 {
		t.Fatalf("publisher calls = %d, want exactly 2", got)
	}
	events := bus.Snapshot()
	if len(events) != 1 || events[0].Name != publish.EventPostScheduled {
		t.Fatalf("events = %+v, want single POST_SCHEDULED", events)
	}
	payload := events[0].Payload
	if payload.CorrelationID != "C1" || payload.ContentID != "C1" || payload.Platform != publish.PlatformInstagram {
		t.Fatalf("payload = %+v, want {C1, C1, instagram}", payload)
	}
}

func TestOrchestratorExhaustionEmitsSingleFailure(t *testing.T) {
	pub := &test.MockPublisher{
		NameVal: "rd-stub",
		Plat:    publish.PlatformReddit,
		Script:  []error{publish.NewNetworkError("dial timeout", nil)},
	}
	reg := &test.StubRegistry{}
	reg.Register(pub)
	bus := &test.RecorderBus{}
	o := newOrchestrator(reg, test.NewMemoryLedger(), bus)
	o.SetRetryPolicy(publish.PlatformReddit, publish.RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond})

	req := test.NewRequest("C9", publish.PlatformReddit)
	if err := o.OnContentReady(context.Background(), req); err != nil {
		t.Fatalf("submit: %v", err)
	}
	o.Drain()

	if got := pub.Calls(); got != 3 {
		t.Fatalf("publisher calls = %d, want exactly 3 (ceiling)", got)
	}
	events := bus.Snapshot()
	if len(events) != 1 || events[0].Name != publish.EventPostFailed {
		t.Fatalf("events = %+v, want single POST_FAILED", events)
	}
	if events[0].Payload.Reason == "" {
		t.Fatalf("POST_FAILED payload missing reason")
	}
}

// blockingPublisher 第一次调用后阻塞,直到 release 关闭
type blockingPublisher struct {
	plat    publish.Platform
	release chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (b *blockingPublisher) Name() string               { return "blocking-stub" }
func (b *blockingPublisher) Platform() publish.Platform { return b.plat }
func (b *blockingPublisher) Publish(ctx context.Context, item publish.ContentItem) error {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return publish.NewPermanent("held until release")
}

func TestOrchestratorTasksAreIndependent(t *testing.T) {
	// A 卡在 instagram 上,B 在 reddit 上应照常完成
	blocked := &blockingPublisher{
		plat:    publish.PlatformInstagram,
		release: make(chan struct{}),
		entered: make(chan struct{}),
	}
	healthy := &test.MockPublisher{NameVal: "rd-stub", Plat: publish.PlatformReddit}
	reg := &test.StubRegistry{}
	reg.Register(blocked)
	reg.Register(healthy)
	bus := &test.RecorderBus{}
	o := newOrchestrator(reg, test.NewMemoryLedger(), bus)

	req := publish.PublishRequest{
		CorrelationID: "C2",
		Contents: []publish.ContentItem{
			{ID: "A", Text: "stuck"},
			{ID: "B", Text: "fine"},
		},
		Platforms: []publish.Platform{publish.PlatformInstagram, publish.PlatformReddit},
	}
	if err := o.OnContentReady(context.Background(), req); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-blocked.entered

	// A 仍挂起时,B 的两个任务应已产生 POST_SCHEDULED
	deadline := time.Now().Add(3 * time.Second)
	for bus.CountByName(publish.EventPostScheduled) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("reddit tasks not scheduled while instagram task is in flight; events=%+v", bus.Snapshot())
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(blocked.release)
	o.Drain()

	// 最终 4 个任务各一个终态事件
	if got := len(bus.Snapshot()); got != 4 {
		t.Fatalf("terminal events = %d, want 4", got)
	}
}

func TestOrchestratorSurvivesCallerContextCancel(t *testing.T) {
	// 入口返回后调用方立即取消 ctx(HTTP 请求结束、消息 handler 退出的典型时序),
	// 在途任务仍须按上限重试并产生正常终态
	pub := &test.MockPublisher{
		NameVal: "ig-stub",
		Plat:    publish.PlatformInstagram,
		Script:  []error{publish.NewServerError("upstream 503", nil), nil},
	}
	reg := &test.StubRegistry{}
	reg.Register(pub)
	bus := &test.RecorderBus{}
	o := newOrchestrator(reg, test.NewMemoryLedger(), bus)

	ctx, cancel := context.WithCancel(context.Background())
	req := test.NewRequest("C1", publish.PlatformInstagram)
	if err := o.OnContentReady(ctx, req); err != nil {
		t.Fatalf("submit: %v", err)
	}
	cancel()
	o.Drain()

	if got := pub.Calls(); got != 2 {
		t.Fatalf("publisher calls = %d, want 2 despite caller cancel", got)
	}
	events := bus.Snapshot()
	if len(events) != 1 || events[0].Name != publish.EventPostScheduled {
		t.Fatalf("events = %+v, want single POST_SCHEDULED", events)
	}
}

// panickyPublisher 发布时直接 panic,用于验证编排器兜底
type panickyPublisher struct {
	plat publish.Platform
}

func (p *panickyPublisher) Name() string               { return "panic-stub" }
func (p *panickyPublisher) Platform() publish.Platform { return p.plat }
func (p *panickyPublisher) Publish(ctx context.Context, item publish.ContentItem) error {
	panic("nil asset dereference")
}

func TestOrchestratorPanicYieldsFailedEventAndMarksLedger(t *testing.T) {
	reg := &test.StubRegistry{}
	reg.Register(&panickyPublisher{plat: publish.PlatformInstagram})
	ledger := test.NewMemoryLedger()
	bus := &test.RecorderBus{}
	o := newOrchestrator(reg, ledger, bus)

	req := test.NewRequest("C7", publish.PlatformInstagram)
	key := req.Tasks()[0].Key()
	if err := o.OnContentReady(context.Background(), req); err != nil {
		t.Fatalf("submit: %v", err)
	}
	o.Drain()

	events := bus.Snapshot()
	if len(events) != 1 || events[0].Name != publish.EventPostFailed {
		t.Fatalf("events = %+v, want single POST_FAILED for panicked task", events)
	}
	if events[0].Payload.Reason == "" {
		t.Fatalf("POST_FAILED payload missing reason")
	}
	if !ledger.Processed[key] {
		t.Fatalf("panicked task must still mark the ledger: %s", key)
	}

	// 重复提交不得重新执行,也不得追加事件
	if err := o.OnContentReady(context.Background(), req); err != nil {
		t.Fatalf("second submit: %v", err)
	}
	o.Drain()
	if got := len(bus.Snapshot()); got != 1 {
		t.Fatalf("events after resubmit = %d, want 1", got)
	}
}

func TestOrchestratorNoPublisherYieldsFailedEvent(t *testing.T) {
	reg := &test.StubRegistry{}
	bus := &test.RecorderBus{}
	o := newOrchestrator(reg, test.NewMemoryLedger(), bus)

	req := test.NewRequest("C3", publish.PlatformTikTok)
	if err := o.OnContentReady(context.Background(), req); err != nil {
		t.Fatalf("submit: %v", err)
	}
	o.Drain()

	events := bus.Snapshot()
	if len(events) != 1 || events[0].Name != publish.EventPostFailed {
		t.Fatalf("events = %+v, want single POST_FAILED for missing publisher", events)
	}
}

func TestOrchestratorLedgerWriteFailureSuppressesEvent(t *testing.T) {
	reg := &test.StubRegistry{}
	reg.Register(&test.MockPublisher{NameVal: "ig-stub", Plat: publish.PlatformInstagram})
	ledger := test.NewMemoryLedger()
	ledger.WriteErr = context.DeadlineExceeded
	bus := &test.RecorderBus{}
	o := newOrchestrator(reg, ledger, bus)

	req := test.NewRequest("C4", publish.PlatformInstagram)
	if err := o.OnContentReady(context.Background(), req); err != nil {
		t.Fatalf("submit: %v", err)
	}
	o.Drain()

	// 账本未落,宁可少发也不能冒重复终态事件的险
	if got := len(bus.Snapshot()); got != 0 {
		t.Fatalf("events = %d, want 0 when ledger write fails", got)
	}
}

func TestOrchestratorRecordsTerminalOutcome(t *testing.T) {
	reg := &test.StubRegistry{}
	reg.Register(&test.MockPublisher{NameVal: "ig-stub", Plat: publish.PlatformInstagram})
	bus := &test.RecorderBus{}
	store := &test.MockStore{}
	o := newOrchestrator(reg, test.NewMemoryLedger(), bus)
	o.SetStore(store)

	req := test.NewRequest("C5", publish.PlatformInstagram)
	if err := o.OnContentReady(context.Background(), req); err != nil {
		t.Fatalf("submit: %v", err)
	}
	o.Drain()

	var terminal *publish.Record
	for i := range store.Records {
		if store.Records[i].Status == "scheduled" {
			terminal = &store.Records[i]
		}
	}
	if terminal == nil {
		t.Fatalf("no scheduled record saved; records=%+v", store.Records)
	}
	if terminal.CorrelationID != "C5" || terminal.Platform != publish.PlatformInstagram {
		t.Fatalf("record = %+v, want C5/instagram", terminal)
	}
}

func TestOrchestratorRejectsInvalidRequest(t *testing.T) {
	o := newOrchestrator(&test.StubRegistry{}, test.NewMemoryLedger(), &test.RecorderBus{})

	cases := []publish.PublishRequest{
		{Contents: []publish.ContentItem{{ID: "x"}}, Platforms: []publish.Platform{publish.PlatformReddit}},
		{CorrelationID: "C6", Platforms: []publish.Platform{publish.PlatformReddit}},
		{CorrelationID: "C6", Contents: []publish.ContentItem{{ID: "x"}}},
	}
	for i, req := range cases {
		if err := o.OnContentReady(context.Background(), req); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
