package adapter

import (
	"context"

	"backoffice/internal/pkg/logger"
	"backoffice/internal/service/reservation/port"
	"backoffice/internal/zookeeper"

	"github.com/pkg/errors"
)

// ZkSweepLock 基于临时顺序节点；持有者会话断开时锁自动释放
type ZkSweepLock struct {
	conn     *zookeeper.Conn
	resource string
}

func NewZkSweepLock(conn *zookeeper.Conn, resource string) *ZkSweepLock {
	return &ZkSweepLock{conn: conn, resource: resource}
}

func (l *ZkSweepLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	lock, err := zookeeper.NewDistributedLock(l.conn, l.resource)
	if err != nil {
		return nil, false, err
	}
	if err := lock.TryLock(); err != nil {
		if errors.Is(err, zookeeper.ErrLockHeld) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("resource", l.resource).Msg("⚠️ release zookeeper sweep lock failed")
		}
	}, true, nil
}

var _ port.SweepLock = (*ZkSweepLock)(nil)
