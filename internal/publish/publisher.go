package publish

import "context"

type Publisher interface {
	Name() string
	Platform() Platform
	// Publish 单次发布尝试,失败时返回已分类的 *PublishError;不负责重试与落库
	Publish(ctx context.Context, item ContentItem) error
}

type Registry interface {
	Register(p Publisher)
	Get(platform Platform) (Publisher, bool)
}

type registry struct {
	m map[Platform]Publisher
}

func NewRegistry() Registry { return &registry{m: map[Platform]Publisher{}} }

func (r *registry) Register(p Publisher) {
	r.m[p.Platform()] = p
}

func (r *registry) Get(platform Platform) (Publisher, bool) {
	p, ok := r.m[platform]
	return p, ok
}
