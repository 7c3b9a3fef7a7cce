package reddit

import (
	"context"
	"log"

	"publish-gateway/internal/publish"
)

const (
	PublisherName = "reddit_api"

	// Meta 字段键名
	MetaKeySubreddit = "subreddit"
	MetaKeyTitle     = "title"

	// 错误消息常量
	ErrorMissingSubreddit = "Reddit 发布缺少目标 subreddit"
	ErrorMissingTitle     = "Reddit 发布缺少标题"
)

// SendFunc 底层 API 调用函数
type SendFunc func(ctx context.Context, subreddit string, title string, item publish.ContentItem) error

// Publisher Reddit 发布器
// 从内容 Meta 中读取 subreddit 与标题,未指定 subreddit 时使用默认值
type Publisher struct {
	publisherName    string
	defaultSubreddit string
	send             SendFunc
}

// New 创建 Reddit 发布器实例
func New(defaultSubreddit string, send SendFunc) *Publisher {
	if send == nil {
		send = stubSend
	}

	return &Publisher{
		publisherName:    PublisherName,
		defaultSubreddit: defaultSubreddit,
		send:             send,
	}
}

// Name 返回发布器名称
func (publisher *Publisher) Name() string {
	return publisher.publisherName
}

// Platform 返回目标平台
func (publisher *Publisher) Platform() publish.Platform {
	return publish.PlatformReddit
}

// Publish 发布内容到 Reddit
func (publisher *Publisher) Publish(ctx context.Context, item publish.ContentItem) error {
	subreddit := publisher.resolveSubreddit(item)
	if subreddit == "" {
		return publish.NewPermanent(ErrorMissingSubreddit)
	}

	title := resolveTitle(item)
	if title == "" {
		return publish.NewPermanent(ErrorMissingTitle)
	}

	return publisher.send(ctx, subreddit, title, item)
}

// resolveSubreddit 确定目标 subreddit
// 优先级: Meta["subreddit"] > 默认配置
func (publisher *Publisher) resolveSubreddit(item publish.ContentItem) string {
	if item.Meta != nil {
		if subreddit, exists := item.Meta[MetaKeySubreddit]; exists && subreddit != "" {
			return subreddit
		}
	}

	return publisher.defaultSubreddit
}

// resolveTitle 确定帖子标题
// 优先级: Meta["title"] > Idea
func resolveTitle(item publish.ContentItem) string {
	if item.Meta != nil {
		if title, exists := item.Meta[MetaKeyTitle]; exists && title != "" {
			return title
		}
	}

	return item.Idea
}

// stubSend 占位发送实现
func stubSend(_ context.Context, subreddit string, title string, item publish.ContentItem) error {
	log.Printf("[REDDIT] 发布内容 %s -> r/%s, 标题: %s", item.ID, subreddit, title)

	// TODO: 集成 Reddit API 的实际提交逻辑
	return nil
}
