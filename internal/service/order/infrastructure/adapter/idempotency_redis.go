package adapter

import (
	"context"
	"time"

	"backoffice/internal/pkg/redis"
	"backoffice/internal/service/order/port"

	"github.com/pkg/errors"
)

const idempotencyKeyPrefix = "idempotency:checkout:"

// IdempotencyRedisAdapter 用 SET NX EX 记录已处理的请求键
type IdempotencyRedisAdapter struct {
	client *redis.Client
}

func NewIdempotencyRedisAdapter(client *redis.Client) *IdempotencyRedisAdapter {
	return &IdempotencyRedisAdapter{client: client}
}

func (a *IdempotencyRedisAdapter) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := a.client.GetClient().SetNX(ctx, idempotencyKeyPrefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "acquire idempotency key")
	}
	return ok, nil
}

func (a *IdempotencyRedisAdapter) Forget(ctx context.Context, key string) error {
	return errors.Wrap(a.client.GetClient().Del(ctx, idempotencyKeyPrefix+key).Err(), "forget idempotency key")
}

var _ port.IdempotencyGuard = (*IdempotencyRedisAdapter)(nil)
