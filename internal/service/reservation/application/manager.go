package application

import (
	"context"
	"time"

	"backoffice/internal/pkg/logger"
	"backoffice/internal/pkg/retry"
	"backoffice/internal/service/reservation/domain"
	"backoffice/internal/service/reservation/port"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultHoldDuration = 15 * time.Minute

// Manager 实现预占、确认、释放、固定与查询。
// 每次变更都是 读取快照 -> 生成新快照 -> 条件写 的一个事务，版本冲突时整个事务按重试策略重跑。
type Manager struct {
	reservations domain.ReservationRepository
	tx           domain.TxManager
	ledgers      map[domain.ResourceKind]domain.Ledger

	hold      time.Duration
	policy    retry.Policy
	now       func() time.Time
	newID     func() string
	publisher port.EventPublisher
	listener  ReleaseListener
	metrics   *Metrics
	tracer    trace.Tracer
}

type Option func(*Manager)

func WithHoldDuration(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.hold = d
		}
	}
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(m *Manager) { m.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

func WithPublisher(p port.EventPublisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithReleaseListener 注册释放后的回调，通常是 OrderCorrelator
func WithReleaseListener(l ReleaseListener) Option {
	return func(m *Manager) { m.listener = l }
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

func NewManager(reservations domain.ReservationRepository, tx domain.TxManager, ledgers []domain.Ledger, opts ...Option) *Manager {
	m := &Manager{
		reservations: reservations,
		tx:           tx,
		ledgers:      make(map[domain.ResourceKind]domain.Ledger, len(ledgers)),
		hold:         DefaultHoldDuration,
		policy:       retry.DefaultPolicy,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        func() string { return uuid.NewString() },
		tracer:       otel.Tracer("reservation"),
	}
	for _, l := range ledgers {
		m.ledgers[l.Kind()] = l
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetReleaseListener 用于打破 Manager 与关联器之间的构造顺序依赖
func (m *Manager) SetReleaseListener(l ReleaseListener) {
	m.listener = l
}

func (m *Manager) ledger(kind domain.ResourceKind) (domain.Ledger, error) {
	l, ok := m.ledgers[kind]
	if !ok {
		return nil, errors.Wrapf(domain.ErrUnknownResourceKind, "%q", kind)
	}
	return l, nil
}

// Reserve 在资源可用量足够时创建一条 RESERVED 记录并占用容量。
// 容量不足返回 ErrInsufficientCapacity，不做重试。
func (m *Manager) Reserve(ctx context.Context, req ReserveRequest) (domain.Reservation, error) {
	ctx, span := m.tracer.Start(ctx, "reservation.Reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.String("resource.kind", string(req.Kind)),
		attribute.String("resource.id", req.ResourceID),
		attribute.Int64("quantity", req.Quantity),
	)

	if err := req.Validate(); err != nil {
		return domain.Reservation{}, err
	}
	ledger, err := m.ledger(req.Kind)
	if err != nil {
		return domain.Reservation{}, err
	}

	var created domain.Reservation
	err = m.withRetry(ctx, func(ctx context.Context) error {
		return m.tx.Do(ctx, func(ctx context.Context) error {
			entry, err := ledger.Load(ctx, req.ResourceID)
			if err != nil {
				return err
			}
			next, err := entry.Reserve(req.Quantity)
			if err != nil {
				return err
			}
			if err := ledger.Save(ctx, next, entry.Version); err != nil {
				return err
			}
			r, err := domain.NewReservation(m.newID(), req.OrderID, req.Kind, req.ResourceID, req.RequesterID, req.Quantity, m.now(), m.hold)
			if err != nil {
				return err
			}
			if err := m.reservations.Create(ctx, r); err != nil {
				return err
			}
			created = r
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrInsufficientCapacity) {
			m.metrics.reserve(string(req.Kind), "insufficient")
			logger.Ctx(ctx).Warn().Err(err).
				Str("order_id", req.OrderID).
				Str("resource_id", req.ResourceID).
				Int64("quantity", req.Quantity).
				Msg("⚠️ reservation refused")
			return domain.Reservation{}, err
		}
		span.SetStatus(codes.Error, "reserve failed")
		m.metrics.reserve(string(req.Kind), "error")
		logger.Ctx(ctx).Error().Err(err).Str("order_id", req.OrderID).Str("resource_id", req.ResourceID).Msg("❌ reserve failed")
		return domain.Reservation{}, err
	}

	m.metrics.reserve(string(req.Kind), "ok")
	m.metrics.transition(string(domain.StatusReserved))
	logger.Ctx(ctx).Info().
		Str("order_id", created.OrderID).
		Str("reservation_id", created.ID).
		Str("resource_id", created.ResourceID).
		Int64("quantity", created.Quantity).
		Msg("✅ reserved")
	m.publish(ctx, domain.NewEvent(domain.EventReserved, created, created.ReservedAt))
	return created, nil
}

// Confirm 把订单所有 RESERVED 记录转为 CONFIRMED，已处于终态的记录跳过
func (m *Manager) Confirm(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	ctx, span := m.tracer.Start(ctx, "reservation.Confirm")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	changed, err := m.transitionOrder(ctx, orderID, opConfirm)
	if err != nil {
		span.RecordError(err)
		return changed, err
	}
	logger.Ctx(ctx).Info().Str("order_id", orderID).Int("confirmed", len(changed)).Msg("✅ reservations confirmed")
	return changed, nil
}

// Release 把订单所有 RESERVED 记录转为 RELEASED 并归还容量，然后通知订单关联器
func (m *Manager) Release(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	ctx, span := m.tracer.Start(ctx, "reservation.Release")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	changed, err := m.transitionOrder(ctx, orderID, opRelease)
	if err != nil {
		span.RecordError(err)
		// 部分记录已释放时同样通知，关联器自己判断订单是否还有活跃预占
		if len(changed) > 0 {
			m.notifyReleased(ctx, orderID)
		}
		return changed, err
	}
	logger.Ctx(ctx).Info().Str("order_id", orderID).Int("released", len(changed)).Msg("✅ reservations released")
	m.notifyReleased(ctx, orderID)
	return changed, nil
}

// Pin 清除订单所有 RESERVED 记录的到期时间，用于等待人工确认的货到付款订单
func (m *Manager) Pin(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	ctx, span := m.tracer.Start(ctx, "reservation.Pin")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	changed, err := m.transitionOrder(ctx, orderID, opPin)
	if err != nil {
		span.RecordError(err)
		return changed, err
	}
	logger.Ctx(ctx).Info().Str("order_id", orderID).Int("pinned", len(changed)).Msg("📌 reservations pinned")
	return changed, nil
}

// QueryByOrder 只读查询；statuses 为空时返回全部
func (m *Manager) QueryByOrder(ctx context.Context, orderID string, statuses ...domain.Status) ([]domain.Reservation, error) {
	ctx, span := m.tracer.Start(ctx, "reservation.QueryByOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))
	if orderID == "" {
		return nil, errors.Wrap(domain.ErrInvalidRequest, "order id is required")
	}
	return m.reservations.FindByOrder(ctx, orderID, statuses...)
}

// Availability 返回资源计数器当前快照
func (m *Manager) Availability(ctx context.Context, kind domain.ResourceKind, resourceID string) (domain.LedgerEntry, error) {
	ledger, err := m.ledger(kind)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	return ledger.Load(ctx, resourceID)
}

// Increment 提高资源容量上限（补货 / 增加券名额）
func (m *Manager) Increment(ctx context.Context, kind domain.ResourceKind, resourceID string, qty int64) (domain.LedgerEntry, error) {
	ctx, span := m.tracer.Start(ctx, "reservation.Increment")
	defer span.End()
	span.SetAttributes(attribute.String("resource.id", resourceID), attribute.Int64("quantity", qty))

	ledger, err := m.ledger(kind)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	var result domain.LedgerEntry
	err = m.withRetry(ctx, func(ctx context.Context) error {
		return m.tx.Do(ctx, func(ctx context.Context) error {
			entry, err := ledger.Load(ctx, resourceID)
			if err != nil {
				return err
			}
			next, err := entry.Increment(qty)
			if err != nil {
				return err
			}
			if err := ledger.Save(ctx, next, entry.Version); err != nil {
				return err
			}
			result = next
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		return domain.LedgerEntry{}, err
	}
	logger.Ctx(ctx).Info().Str("kind", string(kind)).Str("resource_id", resourceID).Int64("quantity", qty).Msg("✅ capacity incremented")
	return result, nil
}

type operation int

const (
	opConfirm operation = iota
	opRelease
	opPin
	opExpire
)

func (op operation) event() domain.EventType {
	switch op {
	case opConfirm:
		return domain.EventConfirmed
	case opRelease:
		return domain.EventReleased
	case opPin:
		return domain.EventPinned
	default:
		return domain.EventExpired
	}
}

// transitionOrder 对订单的每条 RESERVED 记录单独执行一次事务，单条失败不影响其余记录
func (m *Manager) transitionOrder(ctx context.Context, orderID string, op operation) ([]domain.Reservation, error) {
	if orderID == "" {
		return nil, errors.Wrap(domain.ErrInvalidRequest, "order id is required")
	}
	rows, err := m.reservations.FindByOrder(ctx, orderID, domain.StatusReserved)
	if err != nil {
		return nil, errors.Wrap(err, "find reservations by order")
	}

	var changed []domain.Reservation
	var firstErr error
	for _, row := range rows {
		r, ok, err := m.transition(ctx, row.ID, op, m.now())
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("order_id", orderID).Str("reservation_id", row.ID).Msg("❌ reservation transition failed")
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "reservation %s", row.ID)
			}
			continue
		}
		if ok {
			changed = append(changed, r)
		}
	}
	return changed, firstErr
}

// transition 对单条记录执行状态变更及对应的账本变更。
// 记录不存在、已处于终态或（过期时）尚未到期时返回 ok=false 且无错误。
func (m *Manager) transition(ctx context.Context, id string, op operation, now time.Time) (domain.Reservation, bool, error) {
	var (
		result  domain.Reservation
		applied bool
	)
	err := m.withRetry(ctx, func(ctx context.Context) error {
		applied = false
		return m.tx.Do(ctx, func(ctx context.Context) error {
			r, err := m.reservations.FindByID(ctx, id)
			if errors.Is(err, domain.ErrReservationNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if r.Status != domain.StatusReserved {
				return nil
			}

			var next domain.Reservation
			switch op {
			case opConfirm:
				next, err = r.Confirm(now)
			case opRelease:
				next, err = r.Release(now)
			case opPin:
				if r.Pinned() {
					return nil
				}
				next, err = r.Pin(now)
			case opExpire:
				next, err = r.Expire(now)
				if errors.Is(err, domain.ErrNotDue) {
					return nil
				}
			}
			if err != nil {
				return err
			}

			if op != opPin {
				if err := m.applyLedger(ctx, r, op); err != nil {
					return err
				}
			}
			if err := m.reservations.Update(ctx, next, r.Version); err != nil {
				return err
			}
			result, applied = next, true
			return nil
		})
	})
	if err != nil || !applied {
		return domain.Reservation{}, false, err
	}
	m.metrics.transition(string(result.Status))
	m.publish(ctx, domain.NewEvent(op.event(), result, now))
	return result, true, nil
}

func (m *Manager) applyLedger(ctx context.Context, r domain.Reservation, op operation) error {
	ledger, err := m.ledger(r.Kind)
	if err != nil {
		return err
	}
	entry, err := ledger.Load(ctx, r.ResourceID)
	if err != nil {
		return err
	}
	var next domain.LedgerEntry
	if op == opConfirm {
		next, err = entry.Commit(r.Quantity)
	} else {
		next, err = entry.Restore(r.Quantity)
	}
	if err != nil {
		return err
	}
	return ledger.Save(ctx, next, entry.Version)
}

// expire 由过期清理器调用
func (m *Manager) expire(ctx context.Context, id string, now time.Time) (domain.Reservation, bool, error) {
	return m.transition(ctx, id, opExpire, now)
}

func (m *Manager) notifyReleased(ctx context.Context, orderID string) {
	if m.listener != nil {
		m.listener.OnReleased(ctx, orderID)
	}
}

func (m *Manager) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, m.policy, domain.IsTransient, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			m.metrics.conflict()
			trace.SpanFromContext(ctx).AddEvent("optimistic conflict, retrying", trace.WithAttributes(attribute.Int("attempt", attempt)))
		}
		return fn(ctx)
	})
}

// publish 失败只记录日志，状态变更已经提交
func (m *Manager) publish(ctx context.Context, events ...domain.ReservationEvent) {
	if m.publisher == nil || len(events) == 0 {
		return
	}
	if err := m.publisher.Publish(ctx, events...); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order_id", events[0].OrderID).Msg("❌ failed to publish reservation event")
	}
}
