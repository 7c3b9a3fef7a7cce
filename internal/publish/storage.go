package publish

import "context"

// Record 单个任务终态的审计记录
type Record struct {
	Namespace     string
	Key           string // 幂等键
	CorrelationID string
	ContentID     string
	Platform      Platform
	Status        string // scheduled/failed/skipped/pending
	Class         string // 失败分类,成功时为空
	Reason        string
	Attempts      int
	CreatedAt     int64
	FinishedAt    int64
}

type Store interface {
	SaveRecord(ctx context.Context, rec Record) error
	Trim(ctx context.Context) (int, error) // 触发清理(超过 MaxKeep/TTL)
}

// Ledger 幂等账本:记录哪些幂等键已经产生过终态
type Ledger interface {
	IsProcessed(ctx context.Context, key string) (bool, error)
	MarkProcessed(ctx context.Context, key string) error
}
