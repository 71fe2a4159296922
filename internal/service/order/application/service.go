package application

import (
	"context"
	"time"

	"backoffice/internal/pkg/logger"
	"backoffice/internal/service/order/application/saga"
	"backoffice/internal/service/order/domain"
	"backoffice/internal/service/order/port"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OrderApplicationService 只关注业务流程编排。
type OrderApplicationService struct {
	orderRepo         domain.OrderRepository
	reservations      port.ReservationService
	processingTimeout time.Duration
	tracer            trace.Tracer
	now               func() time.Time
	newID             func() string
}

type ServiceOption func(*OrderApplicationService)

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *OrderApplicationService) { s.now = now }
}

func WithOrderIDGenerator(gen func() string) ServiceOption {
	return func(s *OrderApplicationService) { s.newID = gen }
}

func NewOrderApplicationService(orderRepo domain.OrderRepository, reservations port.ReservationService, processingTimeout time.Duration, opts ...ServiceOption) *OrderApplicationService {
	s := &OrderApplicationService{
		orderRepo:         orderRepo,
		reservations:      reservations,
		processingTimeout: processingTimeout,
		tracer:            otel.Tracer("order-service"),
		now:               func() time.Time { return time.Now().UTC() },
		newID:             uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checkout 创建订单并依次预占库存、券，全部成功后订单进入待支付；
// 任一步失败都会释放已预占的资源并把订单标记为 FAILED。
func (s *OrderApplicationService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.Checkout")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	method, err := domain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	processingCtx := ctx
	if s.processingTimeout > 0 {
		var cancel context.CancelFunc
		processingCtx, cancel = context.WithTimeout(ctx, s.processingTimeout)
		defer cancel()
	}

	order, err := domain.NewOrder(s.newID(), req.UserID, method, req.Lines, req.VoucherCode, s.now())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID), attribute.String("order.payment_method", string(method)))

	if err := s.orderRepo.Create(processingCtx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to save initial order")
		return nil, errors.Wrap(err, "save initial order")
	}
	span.AddEvent("Initial order saved with CREATED state.")

	orderContext := &saga.OrderContext{
		Ctx:          processingCtx,
		Order:        order.Clone(),
		Tracer:       s.tracer,
		Reservations: s.reservations,
	}

	if err := s.buildChain().Handle(orderContext); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", order.ID).Msg("Order processing chain failed, compensation triggered")
		span.RecordError(err)
		span.SetStatus(codes.Error, "Order processing failed in chain")

		// 补偿与状态回写不受下单超时影响
		bg := trace.ContextWithSpanContext(context.Background(), trace.SpanContextFromContext(ctx))
		orderContext.TriggerCompensation(bg)
		s.markFailed(bg, order.ID)
		return &CheckoutResponse{OrderID: order.ID, Status: domain.StateFailed, Message: err.Error()}, err
	}

	logger.Ctx(ctx).Info().Str("order_id", order.ID).Msg("✅ All resources reserved, order is pending payment")
	span.AddEvent("Order successfully processed and is pending payment.")
	return &CheckoutResponse{OrderID: order.ID, Status: domain.StatePendingPayment, Message: "Your order is waiting for payment."}, nil
}

func (s *OrderApplicationService) markFailed(ctx context.Context, orderID string) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order_id", orderID).Msg("🚨 CRITICAL: failed to load order after compensation")
		return
	}
	if order.State != domain.StateCreated && order.State != domain.StatePendingPayment {
		return
	}
	expected := order.Version
	order.MarkAsFailed(s.now())
	if err := s.orderRepo.Update(ctx, order, expected); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order_id", orderID).Msg("🚨 CRITICAL: failed to mark order as FAILED after compensation")
	}
}

// ConfirmPayment 把待支付订单置为已支付并确认其全部预占；对已支付订单重复调用只会重新确认预占
func (s *OrderApplicationService) ConfirmPayment(ctx context.Context, orderID string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.ConfirmPayment")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.State != domain.StatePaid {
		expected := order.Version
		if err := order.Pay(s.now()); err != nil {
			return nil, err
		}
		if err := s.orderRepo.Update(ctx, order, expected); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}
	if err := s.reservations.Confirm(ctx, orderID); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "confirm reservations")
	}
	return order, nil
}

// CancelOrder 取消待支付订单并释放其预占；对已取消订单重复调用只会重新释放
func (s *OrderApplicationService) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.CancelOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.State != domain.StateCancelled {
		expected := order.Version
		if err := order.Cancel(s.now()); err != nil {
			return nil, err
		}
		if err := s.orderRepo.Update(ctx, order, expected); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}
	if err := s.reservations.Release(ctx, orderID); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "release reservations")
	}
	return order, nil
}

func (s *OrderApplicationService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.orderRepo.FindByID(ctx, orderID)
}

// HandlePaymentEvent 是支付消息的入口；未知类型直接忽略
func (s *OrderApplicationService) HandlePaymentEvent(ctx context.Context, event *domain.PaymentEvent) error {
	ctx, span := s.tracer.Start(ctx, "app.HandlePaymentEvent", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(attribute.String("event.type", string(event.Type)), attribute.String("order.id", event.OrderID))

	if event.OrderID == "" {
		return errors.Wrap(domain.ErrInvalidOrder, "payment event without orderId")
	}
	var err error
	switch event.Type {
	case domain.PaymentSucceeded:
		_, err = s.ConfirmPayment(ctx, event.OrderID)
	case domain.PaymentFailed, domain.OrderCancelRequested:
		_, err = s.CancelOrder(ctx, event.OrderID)
	default:
		logger.Ctx(ctx).Warn().Str("type", string(event.Type)).Msg("ignoring unknown payment event")
	}
	return err
}

func (s *OrderApplicationService) buildChain() saga.Handler {
	chain := new(saga.ReserveStockHandler)
	chain.
		SetNext(new(saga.ReserveVoucherHandler)).
		SetNext(saga.NewPlaceOrderHandler(s.orderRepo, s.now))
	return chain
}
