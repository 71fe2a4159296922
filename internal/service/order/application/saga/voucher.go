package saga

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ReserveVoucherHandler 订单带券时预占一次券的使用名额。
type ReserveVoucherHandler struct {
	NextHandler
}

func (h *ReserveVoucherHandler) Handle(orderCtx *OrderContext) error {
	order := orderCtx.Order
	if order.VoucherCode == "" {
		return h.executeNext(orderCtx)
	}

	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.ReserveVoucher")
	defer span.End()
	span.SetAttributes(attribute.String("voucher.code", order.VoucherCode))

	if err := orderCtx.Reservations.ReserveVoucher(ctx, order.ID, order.UserID, order.VoucherCode); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "voucher reservation failed")
		return err
	}
	return h.executeNext(orderCtx)
}
