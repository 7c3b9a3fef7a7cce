package publish_test

import (
	"errors"
	"testing"

	"publish-gateway/internal/publish"
)

func TestRequestValidate(t *testing.T) {
	valid := publish.PublishRequest{
		CorrelationID: "C1",
		Contents:      []publish.ContentItem{{ID: "a"}},
		Platforms:     []publish.Platform{publish.PlatformReddit},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	missing := valid
	missing.CorrelationID = ""
	if err := missing.Validate(); !errors.Is(err, publish.ErrMissingCorrelationID) {
		t.Fatalf("err = %v, want ErrMissingCorrelationID", err)
	}

	dup := valid
	dup.Contents = []publish.ContentItem{{ID: "a"}, {ID: "a"}}
	if err := dup.Validate(); !errors.Is(err, publish.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest for duplicate content id", err)
	}
}

func TestTasksCrossProductDedupesPlatforms(t *testing.T) {
	req := publish.PublishRequest{
		CorrelationID: "C1",
		Contents:      []publish.ContentItem{{ID: "a"}, {ID: "b"}},
		Platforms: []publish.Platform{
			publish.PlatformInstagram,
			publish.PlatformInstagram, // 重复平台合并
			publish.PlatformTikTok,
		},
	}

	tasks := req.Tasks()
	if len(tasks) != 4 {
		t.Fatalf("tasks = %d, want 4 (2 contents x 2 distinct platforms)", len(tasks))
	}

	keys := map[string]struct{}{}
	for _, task := range tasks {
		keys[task.Key()] = struct{}{}
	}
	if len(keys) != 4 {
		t.Fatalf("distinct keys = %d, want 4", len(keys))
	}
}

func TestTaskKeyIsStable(t *testing.T) {
	task := publish.PublishTask{
		CorrelationID: "C1",
		Content:       publish.ContentItem{ID: "post-7"},
		Platform:      publish.PlatformInstagram,
	}
	if got := task.Key(); got != "C1:post-7:instagram" {
		t.Fatalf("key = %q, want C1:post-7:instagram", got)
	}
	if task.Key() != task.Key() {
		t.Fatalf("key must be deterministic")
	}
}

func TestContentItemHasVideo(t *testing.T) {
	image := publish.ContentItem{Assets: []publish.Asset{{Kind: publish.AssetImage, URI: "https://cdn/a.jpg"}}}
	if image.HasVideo() {
		t.Fatalf("image-only item reported video")
	}

	mixed := publish.ContentItem{Assets: []publish.Asset{
		{Kind: publish.AssetImage, URI: "https://cdn/a.jpg"},
		{Kind: publish.AssetVideo, URI: "https://cdn/a.mp4"},
	}}
	if !mixed.HasVideo() {
		t.Fatalf("item with video asset not detected")
	}
}
