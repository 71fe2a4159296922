package port

import "context"

// SweepLock 是跨节点的过期清理互斥；拿不到锁时本轮清理可以跳过
type SweepLock interface {
	TryAcquire(ctx context.Context) (release func(), acquired bool, err error)
}
