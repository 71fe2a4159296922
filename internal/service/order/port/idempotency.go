package port

import (
	"context"
	"time"
)

// IdempotencyGuard 记录已处理的请求键
type IdempotencyGuard interface {
	// Acquire 首次见到 key 时返回 true
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Forget 删除 key，使失败的请求可以重试
	Forget(ctx context.Context, key string) error
}
