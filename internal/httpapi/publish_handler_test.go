package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"publish-gateway/internal/httpapi"
	"publish-gateway/internal/publish"
)

// stubService 记录提交方式的 Service 替身
type stubService struct {
	submitted     []publish.PublishRequest
	syncSubmitted []publish.PublishRequest
	err           error
}

func (s *stubService) Submit(_ context.Context, req publish.PublishRequest) error {
	if s.err != nil {
		return s.err
	}
	s.submitted = append(s.submitted, req)
	return nil
}

func (s *stubService) SubmitAsync(ctx context.Context, req publish.PublishRequest) error {
	return s.Submit(ctx, req)
}

func (s *stubService) SubmitSync(_ context.Context, req publish.PublishRequest) error {
	if s.err != nil {
		return s.err
	}
	s.syncSubmitted = append(s.syncSubmitted, req)
	return nil
}

func postPublish(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()

	request := httptest.NewRequest(http.MethodPost, "/v1/publish", strings.NewReader(body))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func TestPublishHandlerGeneratesCorrelationID(t *testing.T) {
	service := &stubService{}
	handler := httpapi.NewPublishHandler(service)

	body := `{"contents":[{"id":"post-1","text":"hi","assets":[{"kind":"image","uri":"https://cdn/a.jpg"}]}],"platforms":["instagram"]}`
	recorder := postPublish(t, handler, body)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	if len(service.submitted) != 1 {
		t.Fatalf("expected 1 async submit, got %d", len(service.submitted))
	}

	if service.submitted[0].CorrelationID == "" {
		t.Fatalf("handler should generate a correlation id when missing")
	}
}

func TestPublishHandlerSyncModeUsesSubmitSync(t *testing.T) {
	service := &stubService{}
	handler := httpapi.NewPublishHandler(service)

	body := `{"correlation_id":"C1","mode":"sync","contents":[{"id":"post-1"}],"platforms":["reddit"]}`
	recorder := postPublish(t, handler, body)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	if len(service.syncSubmitted) != 1 {
		t.Fatalf("expected 1 sync submit, got %d", len(service.syncSubmitted))
	}

	if len(service.submitted) != 0 {
		t.Fatalf("sync mode must not use the async path")
	}
}

func TestPublishHandlerRejectsEmptyContents(t *testing.T) {
	service := &stubService{}
	handler := httpapi.NewPublishHandler(service)

	recorder := postPublish(t, handler, `{"correlation_id":"C1","contents":[],"platforms":["instagram"]}`)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}

	if len(service.submitted)+len(service.syncSubmitted) != 0 {
		t.Fatalf("invalid request must not reach the service")
	}
}

func TestPublishHandlerRejectsNonPostMethod(t *testing.T) {
	handler := httpapi.NewPublishHandler(&stubService{})

	request := httptest.NewRequest(http.MethodGet, "/v1/publish", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", recorder.Code)
	}
}

func TestPublishHandlerReportsTaskCount(t *testing.T) {
	service := &stubService{}
	handler := httpapi.NewPublishHandler(service)

	body := `{"correlation_id":"C1","contents":[{"id":"a"},{"id":"b"}],"platforms":["instagram","reddit"]}`
	recorder := postPublish(t, handler, body)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var response struct {
		Data struct {
			TaskCount int `json:"task_count"`
		} `json:"data"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("response should be JSON: %v", err)
	}

	if response.Data.TaskCount != 4 {
		t.Fatalf("expected 4 tasks (2 contents x 2 platforms), got %d", response.Data.TaskCount)
	}
}
