package saga

import (
	"context"

	"backoffice/internal/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ReserveStockHandler 为每个订单行预占库存。
type ReserveStockHandler struct {
	NextHandler
}

func (h *ReserveStockHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.ReserveStock")
	defer span.End()

	order := orderCtx.Order
	span.SetAttributes(attribute.Int("lines", len(order.Lines)))

	// 按订单释放会覆盖部分成功的行，所以在第一次预占前注册
	orderCtx.AddCompensation(func(compCtx context.Context) {
		compCtx, compSpan := orderCtx.Tracer.Start(compCtx, "saga.compensation.ReleaseReservations")
		defer compSpan.End()
		if err := orderCtx.Reservations.Release(compCtx, order.ID); err != nil {
			compSpan.RecordError(err)
			logger.Ctx(compCtx).Error().Err(err).Str("order_id", order.ID).Msg("🚨 CRITICAL: failed to release reservations during compensation")
		}
	})

	for _, line := range order.Lines {
		if err := orderCtx.Reservations.ReserveStock(ctx, order.ID, order.UserID, line.VariationID, line.Quantity); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stock reservation failed")
			return err
		}
	}
	span.AddEvent("All lines reserved successfully")

	return h.executeNext(orderCtx)
}
