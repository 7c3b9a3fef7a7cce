package instagram_test

import (
	"context"
	"errors"
	"testing"

	"publish-gateway/internal/platforms/instagram"
	"publish-gateway/internal/publish"
)

func validItem() publish.ContentItem {
	return publish.ContentItem{
		ID:   "post-1",
		Text: "caption",
		Assets: []publish.Asset{
			{Kind: publish.AssetImage, URI: "https://cdn/img.jpg"},
		},
	}
}

func assertPermanent(t *testing.T, err error) {
	t.Helper()

	var publishErr *publish.PublishError
	if !errors.As(err, &publishErr) {
		t.Fatalf("expected *publish.PublishError, got %T", err)
	}

	if publishErr.Class != publish.ClassPermanent {
		t.Fatalf("expected class %s, got %s", publish.ClassPermanent, publishErr.Class)
	}
}

func TestPublisherRejectsNSFWContent(t *testing.T) {
	publisher := instagram.New(nil)

	item := validItem()
	item.NSFW = true

	assertPermanent(t, publisher.Publish(context.Background(), item))
}

func TestPublisherRejectsContentWithoutAssets(t *testing.T) {
	publisher := instagram.New(nil)

	item := validItem()
	item.Assets = nil

	assertPermanent(t, publisher.Publish(context.Background(), item))
}

func TestPublisherDelegatesValidContentToSend(t *testing.T) {
	var sent publish.ContentItem

	publisher := instagram.New(func(_ context.Context, item publish.ContentItem) error {
		sent = item
		return nil
	})

	if err := publisher.Publish(context.Background(), validItem()); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if sent.ID != "post-1" {
		t.Fatalf("send should receive the validated item, got %q", sent.ID)
	}
}

func TestPublisherPropagatesSendError(t *testing.T) {
	sendError := publish.NewServerError("api returned 503", nil)

	publisher := instagram.New(func(context.Context, publish.ContentItem) error {
		return sendError
	})

	err := publisher.Publish(context.Background(), validItem())
	if !errors.Is(err, sendError) {
		t.Fatalf("expected the send error back, got %v", err)
	}
}
