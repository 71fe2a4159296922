package application

import (
	"context"
	"sync"
	"time"

	"backoffice/internal/pkg/logger"
	"backoffice/internal/service/reservation/domain"
	"backoffice/internal/service/reservation/port"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// ReconcilerOptions 控制清理节奏与批量
type ReconcilerOptions struct {
	Interval       time.Duration
	BatchSize      int
	Concurrency    int
	PurgeInterval  time.Duration
	Retention      time.Duration
	PurgeBatchSize int
}

func (o ReconcilerOptions) withDefaults() ReconcilerOptions {
	if o.Interval <= 0 {
		o.Interval = 30 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 200
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.PurgeBatchSize <= 0 {
		o.PurgeBatchSize = 1000
	}
	return o
}

// Reconciler 周期性地把到期的 RESERVED 记录置为 EXPIRED 并归还容量，
// 并以较低频率删除超过保留期的终态记录。所有写入都走 Manager 的乐观锁路径，
// 多个实例同时运行是安全的，锁只用来减少重复工作。
type Reconciler struct {
	manager      *Manager
	reservations domain.ReservationRepository
	lock         port.SweepLock
	opts         ReconcilerOptions

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewReconciler(manager *Manager, reservations domain.ReservationRepository, lock port.SweepLock, opts ReconcilerOptions) *Reconciler {
	return &Reconciler{
		manager:      manager,
		reservations: reservations,
		lock:         lock,
		opts:         opts.withDefaults(),
	}
}

// Start 启动后台 goroutine；重复调用无效果
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.running = true
	go r.loop(ctx, r.done)
}

// Stop 停止后台 goroutine 并等待当前一轮结束
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.cancel()
	done := r.done
	r.running = false
	r.mu.Unlock()
	<-done
}

func (r *Reconciler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	logger.Ctx(ctx).Info().
		Dur("interval", r.opts.Interval).
		Dur("purge_interval", r.opts.PurgeInterval).
		Msg("✅ reservation reconciler started")

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	// PurgeInterval 为 0 时不做保留期清理
	var purgeC <-chan time.Time
	if r.opts.PurgeInterval > 0 && r.opts.Retention > 0 {
		purgeTicker := time.NewTicker(r.opts.PurgeInterval)
		defer purgeTicker.Stop()
		purgeC = purgeTicker.C
	}

	for {
		select {
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Ctx(ctx).Error().Err(err).Msg("❌ expiry sweep failed")
			}
		case <-purgeC:
			if _, err := r.PurgeOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Ctx(ctx).Error().Err(err).Msg("❌ retention purge failed")
			}
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("🛑 reservation reconciler stopped")
			return
		}
	}
}

// RunOnce 执行一轮过期清理，处理完所有到期记录后对涉及的订单调用关联器
func (r *Reconciler) RunOnce(ctx context.Context) (SweepResult, error) {
	ctx, span := r.manager.tracer.Start(ctx, "reservation.Sweep")
	defer span.End()
	start := time.Now()
	defer func() { r.manager.metrics.sweepTook(time.Since(start)) }()

	var result SweepResult
	if r.lock != nil {
		release, acquired, err := r.lock.TryAcquire(ctx)
		switch {
		case err != nil:
			// 锁服务不可用时照常清理，重复执行是无害的
			logger.Ctx(ctx).Warn().Err(err).Msg("⚠️ sweep lock unavailable, sweeping anyway")
		case !acquired:
			result.Skipped = true
			span.SetAttributes(attribute.Bool("sweep.skipped", true))
			return result, nil
		default:
			defer release()
		}
	}

	now := r.manager.now()
	orders := make(map[string]struct{})
	var mu sync.Mutex

	for {
		due, err := r.reservations.FindDue(ctx, now, r.opts.BatchSize)
		if err != nil {
			span.RecordError(err)
			return result, errors.Wrap(err, "find due reservations")
		}
		if len(due) == 0 {
			break
		}

		expired, failed := 0, 0
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.opts.Concurrency)
		for _, row := range due {
			g.Go(func() error {
				_, ok, err := r.manager.expire(gctx, row.ID, now)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed++
					logger.Ctx(gctx).Error().Err(err).Str("reservation_id", row.ID).Msg("❌ failed to expire reservation")
					return nil
				}
				if ok {
					expired++
					orders[row.OrderID] = struct{}{}
				}
				return nil
			})
		}
		_ = g.Wait()

		result.Expired += expired
		result.Failed += failed
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		// 本批没有任何进展（全部失败）时留到下一轮，避免空转
		if len(due) < r.opts.BatchSize || expired == 0 {
			break
		}
	}

	for orderID := range orders {
		r.manager.notifyReleased(ctx, orderID)
	}
	result.Orders = len(orders)
	r.manager.metrics.expired(result.Expired)
	span.SetAttributes(attribute.Int("sweep.expired", result.Expired), attribute.Int("sweep.orders", result.Orders))
	if result.Expired > 0 || result.Failed > 0 {
		logger.Ctx(ctx).Info().
			Int("expired", result.Expired).
			Int("failed", result.Failed).
			Int("orders", result.Orders).
			Msg("✅ expiry sweep finished")
	}
	return result, nil
}

// PurgeOnce 分批删除超过保留期的 RELEASED / EXPIRED 记录
func (r *Reconciler) PurgeOnce(ctx context.Context) (int64, error) {
	ctx, span := r.manager.tracer.Start(ctx, "reservation.Purge")
	defer span.End()

	cutoff := r.manager.now().Add(-r.opts.Retention)
	var total int64
	for {
		n, err := r.reservations.PurgeTerminal(ctx, cutoff, r.opts.PurgeBatchSize)
		total += n
		if err != nil {
			span.RecordError(err)
			return total, errors.Wrap(err, "purge terminal reservations")
		}
		if n < int64(r.opts.PurgeBatchSize) {
			break
		}
	}
	r.manager.metrics.purged(total)
	if total > 0 {
		logger.Ctx(ctx).Info().Int64("purged", total).Time("cutoff", cutoff).Msg("🧹 terminal reservations purged")
	}
	return total, nil
}
