// Package retry runs an operation again on transient failure with exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Policy 描述重试次数与退避参数
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultPolicy: 3 次尝试，20ms 起步指数退避
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   20 * time.Millisecond,
	MaxDelay:    200 * time.Millisecond,
	Multiplier:  2,
}

// Delay returns the wait before attempt n+1, n starting at 1.
func (p Policy) Delay(n int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}
	d := float64(p.BaseDelay)
	for i := 1; i < n; i++ {
		d *= mult
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	return time.Duration(d)
}

// Do 执行 fn，当 retryable(err) 为 true 时按策略重试。
// 非可重试错误立即返回；次数耗尽时返回最后一次错误的包装，errors.Is 仍可识别原始错误。
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for n := 1; n <= attempts; n++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if n == attempts {
			break
		}
		timer := time.NewTimer(p.Delay(n))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ctx.Err(), err.Error())
		case <-timer.C:
		}
	}
	return errors.Wrapf(err, "gave up after %d attempts", attempts)
}
