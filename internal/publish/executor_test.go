package publish_test

import (
	"context"
	"testing"
	"time"

	"publish-gateway/internal/publish"
	"publish-gateway/internal/publish/test"
)

func newTask(correlationID, contentID string, platform publish.Platform) publish.PublishTask {
	return publish.PublishTask{
		CorrelationID: correlationID,
		Content:       publish.ContentItem{ID: contentID, Text: "caption"},
		Platform:      platform,
	}
}

func TestExecutorRetriesThenSucceeds(t *testing.T) {
	pub := &test.MockPublisher{
		NameVal: "ig-stub",
		Plat:    publish.PlatformInstagram,
		Script:  []error{publish.NewServerError("upstream 503", nil), nil},
	}
	exec := publish.NewExecutor(publish.ZeroBackoff(), 3)

	outcome := exec.Run(context.Background(), newTask("C1", "C1", publish.PlatformInstagram), pub)

	if outcome.Status != publish.OutcomeScheduled {
		t.Fatalf("outcome = %v, want scheduled", outcome.Status)
	}
	if got := pub.Calls(); got != 2 {
		t.Fatalf("publisher calls = %d, want exactly 2", got)
	}
	if outcome.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", outcome.Attempts)
	}
}

func TestExecutorPermanentFailureStopsImmediately(t *testing.T) {
	pub := &test.MockPublisher{
		NameVal: "tt-stub",
		Plat:    publish.PlatformTikTok,
		Script:  []error{publish.NewPermanent("video required")},
	}
	exec := publish.NewExecutor(publish.ZeroBackoff(), 5)

	outcome := exec.Run(context.Background(), newTask("C1", "C1", publish.PlatformTikTok), pub)

	if outcome.Status != publish.OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", outcome.Status)
	}
	if outcome.Class != publish.ClassPermanent {
		t.Fatalf("class = %v, want permanent", outcome.Class)
	}
	if got := pub.Calls(); got != 1 {
		t.Fatalf("publisher calls = %d, want 1 (no retry on permanent)", got)
	}
}

func TestExecutorExhaustsCeilingExactly(t *testing.T) {
	pub := &test.MockPublisher{
		NameVal: "rd-stub",
		Plat:    publish.PlatformReddit,
		Script:  []error{publish.NewNetworkError("connection reset", nil)},
	}
	exec := publish.NewExecutor(publish.ZeroBackoff(), 4)

	outcome := exec.Run(context.Background(), newTask("C1", "C1", publish.PlatformReddit), pub)

	if outcome.Status != publish.OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", outcome.Status)
	}
	if got := pub.Calls(); got != 4 {
		t.Fatalf("publisher calls = %d, want exactly 4", got)
	}
	if outcome.Attempts != 4 {
		t.Fatalf("attempts = %d, want 4", outcome.Attempts)
	}
}

func TestExecutorCeilingOneIsDeterministicNoWait(t *testing.T) {
	pub := &test.MockPublisher{
		NameVal: "ig-stub",
		Plat:    publish.PlatformInstagram,
		Script:  []error{publish.NewServerError("upstream 500", nil)},
	}
	// 上限为 1 时任何等待都不应发生,故意给大退避值
	exec := publish.NewExecutor(publish.ConstantBackoff(5*time.Second), 1)

	start := time.Now()
	outcome := exec.Run(context.Background(), newTask("C1", "C1", publish.PlatformInstagram), pub)
	elapsed := time.Since(start)

	if outcome.Status != publish.OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", outcome.Status)
	}
	if got := pub.Calls(); got != 1 {
		t.Fatalf("publisher calls = %d, want 1", got)
	}
	if elapsed > 500*time.Millisecond {
		t.Fatalf("elapsed = %v, expected immediate failure with zero wait", elapsed)
	}
}

func TestExecutorRateLimitHintFloorsDelay(t *testing.T) {
	const hint = 150 * time.Millisecond
	pub := &test.MockPublisher{
		NameVal: "ig-stub",
		Plat:    publish.PlatformInstagram,
		Script:  []error{publish.NewRateLimited("quota", hint), nil},
	}
	// 退避策略给 0,提示应抬高下限
	exec := publish.NewExecutor(publish.ZeroBackoff(), 3)

	outcome := exec.Run(context.Background(), newTask("C1", "C1", publish.PlatformInstagram), pub)

	if outcome.Status != publish.OutcomeScheduled {
		t.Fatalf("outcome = %v, want scheduled", outcome.Status)
	}
	if got := pub.Calls(); got != 2 {
		t.Fatalf("publisher calls = %d, want 2", got)
	}
	gap := pub.CallGaps[1].Sub(pub.CallGaps[0])
	if gap < hint {
		t.Fatalf("wait before retry = %v, want >= rate-limit hint %v", gap, hint)
	}
}

func TestExecutorRateLimitKeepsLargerComputedDelay(t *testing.T) {
	const computed = 120 * time.Millisecond
	pub := &test.MockPublisher{
		NameVal: "ig-stub",
		Plat:    publish.PlatformInstagram,
		Script:  []error{publish.NewRateLimited("quota", 1*time.Millisecond), nil},
	}
	exec := publish.NewExecutor(publish.ConstantBackoff(computed), 3)

	_ = exec.Run(context.Background(), newTask("C1", "C1", publish.PlatformInstagram), pub)

	gap := pub.CallGaps[1].Sub(pub.CallGaps[0])
	if gap < computed {
		t.Fatalf("wait before retry = %v, want >= computed delay %v", gap, computed)
	}
}

func TestExecutorContextCancelDuringBackoff(t *testing.T) {
	pub := &test.MockPublisher{
		NameVal: "ig-stub",
		Plat:    publish.PlatformInstagram,
		Script:  []error{publish.NewServerError("upstream 500", nil)},
	}
	exec := publish.NewExecutor(publish.ConstantBackoff(10*time.Second), 3)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	outcome := exec.Run(ctx, newTask("C1", "C1", publish.PlatformInstagram), pub)

	if outcome.Status != publish.OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", outcome.Status)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("elapsed = %v, cancel should interrupt backoff wait", elapsed)
	}
	if got := pub.Calls(); got != 1 {
		t.Fatalf("publisher calls = %d, want 1", got)
	}
}

func TestClassifyErrorDefaultsToNetwork(t *testing.T) {
	classified := publish.ClassifyError(context.DeadlineExceeded)
	if classified.Class != publish.ClassNetwork {
		t.Fatalf("class = %v, want network for unclassified errors", classified.Class)
	}

	wrapped := publish.NewPermanent("nsfw content not allowed")
	if got := publish.ClassifyError(wrapped); got.Class != publish.ClassPermanent {
		t.Fatalf("class = %v, want permanent to survive classification", got.Class)
	}
}
