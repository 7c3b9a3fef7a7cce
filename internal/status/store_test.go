package status_test

import (
	"testing"

	"publish-gateway/internal/status"
)

func TestDetectPlatformFromTaskKey(t *testing.T) {
	cases := []struct {
		taskKey  string
		expected string
	}{
		{"C1:post-7:instagram", "instagram"},
		{"C1:post-7:reddit", "reddit"},
		{"corr:with:extra:segments:tiktok", "tiktok"},
		{"no-separator", "unknown"},
		{"only:two", "unknown"},
	}

	for _, testCase := range cases {
		got := status.DetectPlatformFromTaskKey(testCase.taskKey)
		if got != testCase.expected {
			t.Errorf("DetectPlatformFromTaskKey(%q) = %q, want %q",
				testCase.taskKey, got, testCase.expected)
		}
	}
}
