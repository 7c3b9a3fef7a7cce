package publish_test

import (
	"context"
	"errors"
	"testing"

	"publish-gateway/internal/publish"
	"publish-gateway/internal/publish/test"
)

func TestSubmitPrefersAsyncWhenEnqueuerConfigured(t *testing.T) {
	publisher := &test.MockPublisher{NameVal: "p", Plat: publish.PlatformInstagram}
	registry := &test.StubRegistry{}
	registry.Register(publisher)

	orchestrator := publish.NewOrchestrator(registry, test.NewMemoryLedger(), &test.RecorderBus{}, "pub")
	enqueuer := &test.MockEnqueuer{}
	service := publish.NewService(orchestrator, enqueuer)

	req := test.NewRequest("C1", publish.PlatformInstagram)
	if err := service.Submit(context.Background(), req); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	orchestrator.Drain()

	if len(enqueuer.Payloads) != 1 {
		t.Fatalf("expected 1 enqueued payload, got %d", len(enqueuer.Payloads))
	}

	// 异步路径只入队,编排器不应被触发
	if publisher.Calls() != 0 {
		t.Fatalf("publisher should not be called on async submit, got %d calls", publisher.Calls())
	}

	decoded, err := test.DecodeRequest(enqueuer.Payloads[0])
	if err != nil {
		t.Fatalf("enqueued payload should round-trip: %v", err)
	}

	if decoded.CorrelationID != "C1" {
		t.Fatalf("expected correlation C1, got %q", decoded.CorrelationID)
	}
}

func TestSubmitFallsBackToSyncWithoutEnqueuer(t *testing.T) {
	publisher := &test.MockPublisher{NameVal: "p", Plat: publish.PlatformInstagram}
	registry := &test.StubRegistry{}
	registry.Register(publisher)

	bus := &test.RecorderBus{}
	orchestrator := publish.NewOrchestrator(registry, test.NewMemoryLedger(), bus, "pub")
	service := publish.NewService(orchestrator, nil)

	req := test.NewRequest("C2", publish.PlatformInstagram)
	if err := service.Submit(context.Background(), req); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	orchestrator.Drain()

	if publisher.Calls() != 1 {
		t.Fatalf("expected 1 publish call on sync fallback, got %d", publisher.Calls())
	}

	if got := bus.CountByName(publish.EventPostScheduled); got != 1 {
		t.Fatalf("expected 1 scheduled event, got %d", got)
	}
}

func TestSubmitAsyncRejectsInvalidRequest(t *testing.T) {
	registry := &test.StubRegistry{}
	orchestrator := publish.NewOrchestrator(registry, test.NewMemoryLedger(), &test.RecorderBus{}, "pub")
	enqueuer := &test.MockEnqueuer{}
	service := publish.NewService(orchestrator, enqueuer)

	err := service.SubmitAsync(context.Background(), publish.PublishRequest{})
	if !errors.Is(err, publish.ErrMissingCorrelationID) {
		t.Fatalf("expected ErrMissingCorrelationID, got %v", err)
	}

	if len(enqueuer.Payloads) != 0 {
		t.Fatalf("invalid request must not be enqueued")
	}
}
