package publish

import (
	"fmt"
	"time"
)

// ==================== 平台与内容类型 ====================

type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformReddit    Platform = "reddit"
)

// KnownPlatforms 返回当前支持的全部平台
func KnownPlatforms() []Platform {
	return []Platform{PlatformInstagram, PlatformTikTok, PlatformReddit}
}

type AssetKind string

const (
	AssetImage AssetKind = "image"
	AssetVideo AssetKind = "video"
)

// Asset 单个媒体资源(图片或视频)
type Asset struct {
	Kind AssetKind `json:"kind"`
	URI  string    `json:"uri"`
}

// ContentItem 一条待发布的内容,上游生成后只读
type ContentItem struct {
	ID     string            `json:"id"`
	Idea   string            `json:"idea,omitempty"` // 选题/创意描述
	Text   string            `json:"text,omitempty"` // 正文/配文
	Tags   []string          `json:"tags,omitempty"`
	NSFW   bool              `json:"nsfw,omitempty"`
	Assets []Asset           `json:"assets,omitempty"`
	Meta   map[string]string `json:"meta,omitempty"` // 平台附加参数(subreddit、title 等)
}

// HasVideo 判断内容是否包含视频资源
func (c ContentItem) HasVideo() bool {
	for _, a := range c.Assets {
		if a.Kind == AssetVideo {
			return true
		}
	}
	return false
}

// ==================== 发布请求 ====================

// PublishRequest 提交给编排器的工作单元,提交后不可变
type PublishRequest struct {
	CorrelationID string        `json:"correlation_id"`
	Contents      []ContentItem `json:"contents"`
	Platforms     []Platform    `json:"platforms"`
	CreatedAt     time.Time     `json:"created_at,omitempty"`
}

// Validate 检查请求的基本约束
func (r PublishRequest) Validate() error {
	if r.CorrelationID == "" {
		return ErrMissingCorrelationID
	}
	if len(r.Contents) == 0 {
		return ErrNoContents
	}
	if len(r.Platforms) == 0 {
		return ErrNoPlatforms
	}
	seen := make(map[string]struct{}, len(r.Contents))
	for _, c := range r.Contents {
		if c.ID == "" {
			return fmt.Errorf("%w: content id empty", ErrInvalidRequest)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: duplicate content id %q", ErrInvalidRequest, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

// Tasks 展开请求为 (内容, 平台) 笛卡尔积,重复平台自动合并
func (r PublishRequest) Tasks() []PublishTask {
	platforms := make([]Platform, 0, len(r.Platforms))
	seen := make(map[Platform]struct{}, len(r.Platforms))
	for _, p := range r.Platforms {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		platforms = append(platforms, p)
	}

	tasks := make([]PublishTask, 0, len(r.Contents)*len(platforms))
	for _, p := range platforms {
		for _, c := range r.Contents {
			tasks = append(tasks, PublishTask{
				CorrelationID: r.CorrelationID,
				Content:       c,
				Platform:      p,
			})
		}
	}
	return tasks
}

// ==================== 发布任务 ====================

// PublishTask 编排器实际驱动的内部单元:一条内容 × 一个平台
type PublishTask struct {
	CorrelationID string      `json:"correlation_id"`
	Content       ContentItem `json:"content"`
	Platform      Platform    `json:"platform"`
}

// Key 幂等键:correlationId + contentId + platform 的稳定拼接
func (t PublishTask) Key() string {
	return fmt.Sprintf("%s:%s:%s", t.CorrelationID, t.Content.ID, t.Platform)
}

// ==================== 重试策略配置 ====================

// RetryPolicy 单个平台的重试参数
type RetryPolicy struct {
	MaxAttempts int           // 尝试上限(含首次),<=0 时取默认值
	BaseBackoff time.Duration // 指数退避起始值
	MaxBackoff  time.Duration // 退避上限
}
