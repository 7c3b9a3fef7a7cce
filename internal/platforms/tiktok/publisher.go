package tiktok

import (
	"context"
	"log"

	"publish-gateway/internal/publish"
)

const (
	PublisherName = "tiktok_content_api"

	// 错误消息常量
	ErrorNoVideoAsset = "TikTok 只接受视频内容"
)

// SendFunc 底层 API 调用函数
type SendFunc func(ctx context.Context, item publish.ContentItem) error

// Publisher TikTok 发布器
// TikTok 仅支持视频,缺少视频素材为永久错误
type Publisher struct {
	publisherName string
	send          SendFunc
}

// New 创建 TikTok 发布器实例
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
	return publish.PlatformTikTok
}

// Publish 发布内容到 TikTok
func (publisher *Publisher) Publish(ctx context.Context, item publish.ContentItem) error {
	if !item.HasVideo() {
		return publish.NewPermanent(ErrorNoVideoAsset)
	}

	return publisher.send(ctx, item)
}

// stubSend 占位发送实现
func stubSend(_ context.Context, item publish.ContentItem) error {
	log.Printf("[TIKTOK] 发布视频 %s", item.ID)

	// TODO: 集成 TikTok Content Posting API 的实际发布逻辑
	return nil
}
