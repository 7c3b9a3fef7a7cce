package test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"publish-gateway/internal/publish"
)

// ---- Publisher Mock（按尝试次数编排返回值） ----
type MockPublisher struct {
	NameVal  string
	Plat     publish.Platform
	Script   []error // 第 N 次调用返回 Script[N-1];超出后返回最后一项
	CallGaps []time.Time

	mu           sync.Mutex
	PublishCalls int
	LastItem     publish.ContentItem
}

func (m *MockPublisher) Name() string               { return m.NameVal }
func (m *MockPublisher) Platform() publish.Platform { return m.Plat }
func (m *MockPublisher) Publish(ctx context.Context, item publish.ContentItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishCalls++
	m.LastItem = item
	m.CallGaps = append(m.CallGaps, time.Now())
	if len(m.Script) == 0 {
		return nil
	}
	idx := m.PublishCalls - 1
	if idx >= len(m.Script) {
		idx = len(m.Script) - 1
	}
	return m.Script[idx]
}

func (m *MockPublisher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PublishCalls
}

// ---- Registry Stub（最小即可：按平台返回固定 Publisher） ----
type StubRegistry struct {
	ByPlatform map[publish.Platform]publish.Publisher
}

func (s *StubRegistry) Register(p publish.Publisher) {
	if s.ByPlatform == nil {
		s.ByPlatform = map[publish.Platform]publish.Publisher{}
	}
	s.ByPlatform[p.Platform()] = p
}
func (s *StubRegistry) Get(platform publish.Platform) (publish.Publisher, bool) {
	p, ok := s.ByPlatform[platform]
	return p, ok
}

// ---- Ledger Mock（内存幂等账本） ----
type MemoryLedger struct {
	mu        sync.Mutex
	Processed map[string]bool
	ReadErr   error
	WriteErr  error
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{Processed: map[string]bool{}}
}

func (l *MemoryLedger) IsProcessed(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ReadErr != nil {
		return false, l.ReadErr
	}
	return l.Processed[key], nil
}

func (l *MemoryLedger) MarkProcessed(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.WriteErr != nil {
		return l.WriteErr
	}
	l.Processed[key] = true
	return nil
}

// ---- Bus Mock（记录所有发出的事件） ----
type RecordedEvent struct {
	Name    string
	Payload publish.EventPayload
}

type RecorderBus struct {
	mu     sync.Mutex
	Events []RecordedEvent
	Err    error
}

func (b *RecorderBus) Publish(ctx context.Context, event string, payload publish.EventPayload) error {
	if b.Err != nil {
		return b.Err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Events = append(b.Events, RecordedEvent{Name: event, Payload: payload})
	return nil
}

func (b *RecorderBus) Snapshot() []RecordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RecordedEvent, len(b.Events))
	copy(out, b.Events)
	return out
}

// CountByName 统计某个事件名出现的次数
func (b *RecorderBus) CountByName(name string) int {
	count := 0
	for _, ev := range b.Snapshot() {
		if ev.Name == name {
			count++
		}
	}
	return count
}

// ---- Store Mock ----
type MockStore struct {
	mu      sync.Mutex
	Records []publish.Record
	Trimmed int
	Err     error
}

func (s *MockStore) SaveRecord(ctx context.Context, rec publish.Record) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Records = append(s.Records, rec)
	return nil
}
func (s *MockStore) Trim(ctx context.Context) (int, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Trimmed++
	return 0, nil
}

// ---- Enqueuer Mock ----
type MockEnqueuer struct {
	mu       sync.Mutex
	Payloads [][]byte
	Err      error
}

func (q *MockEnqueuer) Enqueue(ctx context.Context, payload []byte) error {
	if q.Err != nil {
		return q.Err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Payloads = append(q.Payloads, payload)
	return nil
}
func (q *MockEnqueuer) Close() {}

func DecodeRequest(b []byte) (publish.PublishRequest, error) {
	var req publish.PublishRequest
	err := json.Unmarshal(b, &req)
	return req, err
}

// ---- Helper: 最小可用请求 ----
func NewRequest(correlationID string, platforms ...publish.Platform) publish.PublishRequest {
	return publish.PublishRequest{
		CorrelationID: correlationID,
		Contents: []publish.ContentItem{{
			ID:     correlationID,
			Text:   "caption",
			Assets: []publish.Asset{{Kind: publish.AssetImage, URI: "https://cdn/img.jpg"}},
		}},
		Platforms: platforms,
	}
}
