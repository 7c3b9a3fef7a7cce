package reddit_test

import (
	"context"
	"errors"
	"testing"

	"publish-gateway/internal/platforms/reddit"
	"publish-gateway/internal/publish"
)

func TestPublisherUsesMetaSubredditAndTitle(t *testing.T) {
	var gotSubreddit, gotTitle string

	publisher := reddit.New("golang", func(_ context.Context, subreddit string, title string, _ publish.ContentItem) error {
		gotSubreddit = subreddit
		gotTitle = title
		return nil
	})

	item := publish.ContentItem{
		ID:   "post-1",
		Idea: "fallback idea",
		Meta: map[string]string{
			"subreddit": "programming",
			"title":     "explicit title",
		},
	}

	if err := publisher.Publish(context.Background(), item); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if gotSubreddit != "programming" {
		t.Fatalf("expected meta subreddit, got %q", gotSubreddit)
	}

	if gotTitle != "explicit title" {
		t.Fatalf("expected meta title, got %q", gotTitle)
	}
}

func TestPublisherFallsBackToDefaultSubredditAndIdeaTitle(t *testing.T) {
	var gotSubreddit, gotTitle string

	publisher := reddit.New("golang", func(_ context.Context, subreddit string, title string, _ publish.ContentItem) error {
		gotSubreddit = subreddit
		gotTitle = title
		return nil
	})

	item := publish.ContentItem{ID: "post-2", Idea: "my idea"}

	if err := publisher.Publish(context.Background(), item); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if gotSubreddit != "golang" {
		t.Fatalf("expected default subreddit, got %q", gotSubreddit)
	}

	if gotTitle != "my idea" {
		t.Fatalf("expected idea as title, got %q", gotTitle)
	}
}

func TestPublisherRejectsMissingSubreddit(t *testing.T) {
	publisher := reddit.New("", nil)

	err := publisher.Publish(context.Background(), publish.ContentItem{ID: "post-3", Idea: "idea"})

	var publishErr *publish.PublishError
	if !errors.As(err, &publishErr) {
		t.Fatalf("expected *publish.PublishError, got %T", err)
	}

	if publishErr.Class != publish.ClassPermanent {
		t.Fatalf("expected class %s, got %s", publish.ClassPermanent, publishErr.Class)
	}
}

func TestPublisherRejectsMissingTitle(t *testing.T) {
	publisher := reddit.New("golang", nil)

	err := publisher.Publish(context.Background(), publish.ContentItem{ID: "post-4"})

	var publishErr *publish.PublishError
	if !errors.As(err, &publishErr) {
		t.Fatalf("expected *publish.PublishError, got %T", err)
	}

	if publishErr.Class != publish.ClassPermanent {
		t.Fatalf("expected class %s, got %s", publish.ClassPermanent, publishErr.Class)
	}
}
