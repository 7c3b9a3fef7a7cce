package instagram

import (
	"context"
	"log"

	"publish-gateway/internal/publish"
)

const (
	PublisherName = "instagram_graph_api"

	// 错误消息常量
	ErrorContentIsNSFW = "Instagram 不接受 NSFW 内容"
	ErrorNoAssets      = "Instagram 发布需要至少一个素材"
	ErrorEmptyCaption  = "Instagram 发布需要文案"
)

// SendFunc 底层 API 调用函数
// 返回的错误应已经是 *publish.PublishError,未分类错误按网络错误处理
type SendFunc func(ctx context.Context, item publish.ContentItem) error

// Publisher Instagram 发布器
// 校验失败为永久错误,不触发重试
type Publisher struct {
	publisherName string
	send          SendFunc
}

// New 创建 Instagram 发布器实例
// send 为 nil 时使用占位实现(仅记录日志)
func New(send SendFunc) *Publisher {
	if send == nil {
		send = stubSend
	}

	return &Publisher{
		publisherName: PublisherName,
		send:          send,
	}
}

// Name 返回发布器名称
func (publisher *Publisher) Name() string {
	return publisher.publisherName
}

// Platform 返回目标平台
func (publisher *Publisher) Platform() publish.Platform {
	return publish.PlatformInstagram
}

// Publish 发布内容到 Instagram
// 先做平台规则校验,再调用底层 API
func (publisher *Publisher) Publish(ctx context.Context, item publish.ContentItem) error {
	if err := validateContent(item); err != nil {
		return err
	}

	return publisher.send(ctx, item)
}

// validateContent 校验内容是否符合 Instagram 平台规则
func validateContent(item publish.ContentItem) error {
	if item.NSFW {
		return publish.NewPermanent(ErrorContentIsNSFW)
	}

	if len(item.Assets) == 0 {
		return publish.NewPermanent(ErrorNoAssets)
	}

	if item.Text == "" {
		return publish.NewPermanent(ErrorEmptyCaption)
	}

	return nil
}

// stubSend 占位发送实现
func stubSend(_ context.Context, item publish.ContentItem) error {
	log.Printf("[INSTAGRAM] 发布内容 %s (素材数=%d)", item.ID, len(item.Assets))

	// TODO: 集成 Instagram Graph API 的实际发布逻辑
	return nil
}
