package tiktok_test

import (
	"context"
	"errors"
	"testing"

	"publish-gateway/internal/platforms/tiktok"
	"publish-gateway/internal/publish"
)

func TestPublisherRejectsContentWithoutVideo(t *testing.T) {
	publisher := tiktok.New(nil)

	item := publish.ContentItem{
		ID: "post-1",
		Assets: []publish.Asset{
			{Kind: publish.AssetImage, URI: "https://cdn/img.jpg"},
		},
	}

	err := publisher.Publish(context.Background(), item)

	var publishErr *publish.PublishError
	if !errors.As(err, &publishErr) {
		t.Fatalf("expected *publish.PublishError, got %T", err)
	}

	if publishErr.Class != publish.ClassPermanent {
		t.Fatalf("expected class %s, got %s", publish.ClassPermanent, publishErr.Class)
	}
}

func TestPublisherAcceptsVideoContent(t *testing.T) {
	called := false

	publisher := tiktok.New(func(context.Context, publish.ContentItem) error {
		called = true
		return nil
	})

	item := publish.ContentItem{
		ID: "post-2",
		Assets: []publish.Asset{
			{Kind: publish.AssetVideo, URI: "https://cdn/clip.mp4"},
		},
	}

	if err := publisher.Publish(context.Background(), item); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if !called {
		t.Fatalf("send should have been called for video content")
	}
}
