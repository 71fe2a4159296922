package saga

import (
	"time"

	"backoffice/internal/service/order/domain"

	"github.com/pkg/errors"
)

// PlaceOrderHandler 把订单置为待支付并持久化；货到付款订单的预占会被固定，不再过期。
type PlaceOrderHandler struct {
	NextHandler
	repo domain.OrderRepository
	now  func() time.Time
}

func NewPlaceOrderHandler(repo domain.OrderRepository, now func() time.Time) *PlaceOrderHandler {
	return &PlaceOrderHandler{repo: repo, now: now}
}

func (h *PlaceOrderHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.PlaceOrder")
	defer span.End()

	order := orderCtx.Order
	if order.PaymentMethod == domain.PaymentCOD {
		if err := orderCtx.Reservations.Pin(ctx, order.ID); err != nil {
			span.RecordError(err)
			return errors.Wrap(err, "pin reservations for cash-on-delivery order")
		}
		span.AddEvent("Reservations pinned for COD order.")
	}

	expected := order.Version
	if err := order.MarkAsPendingPayment(h.now()); err != nil {
		return err
	}
	if err := h.repo.Update(ctx, order, expected); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "save pending payment order")
	}
	span.AddEvent("Pending payment order saved.")

	return h.executeNext(orderCtx)
}
