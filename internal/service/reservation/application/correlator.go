package application

import (
	"context"

	"backoffice/internal/pkg/logger"
	"backoffice/internal/service/reservation/domain"
	"backoffice/internal/service/reservation/port"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ReleaseListener 在订单的预占被释放或过期后收到通知
type ReleaseListener interface {
	OnReleased(ctx context.Context, orderID string)
}

// OrderCorrelator 在订单已无活跃预占时，判断未支付订单是否应被自动取消。
// 只读预占记录，只对订单做一次条件写，从不预占或释放资源。
type OrderCorrelator struct {
	reservations domain.ReservationRepository
	orders       port.OrderGateway
	rule         *EligibilityRule
	metrics      *Metrics
	tracer       trace.Tracer
}

func NewOrderCorrelator(reservations domain.ReservationRepository, orders port.OrderGateway, rule *EligibilityRule, metrics *Metrics) *OrderCorrelator {
	return &OrderCorrelator{
		reservations: reservations,
		orders:       orders,
		rule:         rule,
		metrics:      metrics,
		tracer:       otel.Tracer("reservation"),
	}
}

// OnReleased 记录并吞掉所有错误，不影响释放流程
func (c *OrderCorrelator) OnReleased(ctx context.Context, orderID string) {
	if _, err := c.Evaluate(ctx, orderID); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order_id", orderID).Msg("❌ order correlation failed")
	}
}

// Evaluate 返回订单是否因此被取消
func (c *OrderCorrelator) Evaluate(ctx context.Context, orderID string) (bool, error) {
	ctx, span := c.tracer.Start(ctx, "reservation.CorrelateOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	active, err := c.reservations.CountActiveByOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return false, errors.Wrap(err, "count active reservations")
	}
	if active > 0 {
		return false, nil
	}

	snap, err := c.orders.Snapshot(ctx, orderID)
	if errors.Is(err, port.ErrOrderNotFound) {
		logger.Ctx(ctx).Debug().Str("order_id", orderID).Msg("order not found, nothing to correlate")
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		return false, errors.Wrap(err, "load order snapshot")
	}

	eligible, err := c.rule.Eligible(snap)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	span.SetAttributes(attribute.String("order.status", snap.Status), attribute.Bool("order.eligible", eligible))
	if !eligible {
		return false, nil
	}

	cancelled, err := c.orders.CancelUnpaid(ctx, orderID, snap.Version)
	if err != nil {
		span.RecordError(err)
		return false, errors.Wrap(err, "cancel unpaid order")
	}
	if cancelled {
		c.metrics.orderCancelled()
		logger.Ctx(ctx).Info().Str("order_id", orderID).Msg("✅ unpaid order cancelled after its last reservation was released")
	}
	return cancelled, nil
}
