package adapter

import (
	"context"
	"time"

	"backoffice/internal/pkg/logger"
	"backoffice/internal/pkg/redis"
	"backoffice/internal/service/reservation/port"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const releaseLockScriptName = "release_sweep_lock"

// 只删除自己持有的锁
const releaseLockScript = `
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0
`

// RedisSweepLock 用 SET NX PX 实现的租约锁；租约应短于清理周期
type RedisSweepLock struct {
	client *redis.Client
	key    string
	lease  time.Duration
}

func NewRedisSweepLock(client *redis.Client, key string, lease time.Duration) *RedisSweepLock {
	client.LoadScriptFromContent(releaseLockScriptName, releaseLockScript)
	return &RedisSweepLock{client: client, key: key, lease: lease}
}

func (l *RedisSweepLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.GetClient().SetNX(ctx, l.key, token, l.lease).Result()
	if err != nil {
		return nil, false, errors.Wrapf(err, "acquire sweep lock %s", l.key)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// 使用独立 ctx，清理轮次的 ctx 可能已被取消
		rctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if _, err := l.client.RunScript(rctx, releaseLockScriptName, []string{l.key}, token); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("key", l.key).Msg("⚠️ release sweep lock failed, lease will expire")
		}
	}
	return release, true, nil
}

var _ port.SweepLock = (*RedisSweepLock)(nil)
