package application_test

import (
	"context"
	"testing"
	"time"

	"backoffice/internal/pkg/retry"
	"backoffice/internal/service/order/application"
	"backoffice/internal/service/order/domain"
	"backoffice/internal/service/order/infrastructure"
	"backoffice/internal/service/order/infrastructure/adapter"
	resapp "backoffice/internal/service/reservation/application"
	resdomain "backoffice/internal/service/reservation/domain"
	"backoffice/internal/service/reservation/infrastructure/memory"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type CheckoutSuite struct {
	suite.Suite

	ctx     context.Context
	now     time.Time
	store   *memory.Store
	orders  *infrastructure.MemoryRepository
	manager *resapp.Manager
	service *application.OrderApplicationService
}

func TestCheckoutSuite(t *testing.T) {
	suite.Run(t, new(CheckoutSuite))
}

func (s *CheckoutSuite) clock() time.Time { return s.now }

func (s *CheckoutSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s.store = memory.NewStore()
	s.orders = infrastructure.NewMemoryRepository()

	rule, err := resapp.NewEligibilityRule("")
	s.Require().NoError(err)
	s.manager = resapp.NewManager(s.store, s.store,
		[]resdomain.Ledger{s.store.Ledger(resdomain.KindStock), s.store.Ledger(resdomain.KindVoucher)},
		resapp.WithClock(s.clock),
		resapp.WithRetryPolicy(retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}),
		resapp.WithReleaseListener(resapp.NewOrderCorrelator(s.store, adapter.NewOrderGateway(s.orders, s.clock), rule, nil)),
	)
	s.service = application.NewOrderApplicationService(s.orders, adapter.NewReservationManagerAdapter(s.manager), time.Second,
		application.WithServiceClock(s.clock))

	s.seed(resdomain.KindStock, "var-1", 5)
	s.seed(resdomain.KindStock, "var-2", 1)
	s.seed(resdomain.KindVoucher, "SPRING", 1)
}

func (s *CheckoutSuite) seed(kind resdomain.ResourceKind, id string, capacity int64) {
	s.store.Seed(resdomain.LedgerEntry{Kind: kind, ResourceID: id, Capacity: &capacity})
}

func (s *CheckoutSuite) available(kind resdomain.ResourceKind, id string) int64 {
	e, err := s.manager.Availability(s.ctx, kind, id)
	s.Require().NoError(err)
	return e.Available()
}

func (s *CheckoutSuite) checkout(method string, voucher string, lines ...domain.OrderLine) (*application.CheckoutResponse, error) {
	return s.service.Checkout(s.ctx, &application.CheckoutRequest{
		UserID: "u-1", PaymentMethod: method, Lines: lines, VoucherCode: voucher,
	})
}

func (s *CheckoutSuite) TestOnlineCheckoutHoldsWithExpiry() {
	resp, err := s.checkout("ONLINE", "SPRING", domain.OrderLine{VariationID: "var-1", Quantity: 2})
	s.Require().NoError(err)
	s.Equal(domain.StatePendingPayment, resp.Status)

	rows, err := s.manager.QueryByOrder(s.ctx, resp.OrderID, resdomain.StatusReserved)
	s.Require().NoError(err)
	s.Len(rows, 2)
	for _, r := range rows {
		s.NotNil(r.ExpiresAt)
	}
	s.Equal(int64(3), s.available(resdomain.KindStock, "var-1"))
	s.Equal(int64(0), s.available(resdomain.KindVoucher, "SPRING"))
}

func (s *CheckoutSuite) TestCodCheckoutPinsReservations() {
	resp, err := s.checkout("COD", "", domain.OrderLine{VariationID: "var-1", Quantity: 1})
	s.Require().NoError(err)

	rows, err := s.manager.QueryByOrder(s.ctx, resp.OrderID)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Nil(rows[0].ExpiresAt)
}

func (s *CheckoutSuite) TestOutOfStockRollsBackEarlierLines() {
	resp, err := s.checkout("ONLINE", "", domain.OrderLine{VariationID: "var-1", Quantity: 2}, domain.OrderLine{VariationID: "var-2", Quantity: 2})
	s.True(errors.Is(err, domain.ErrOutOfStock))
	s.True(errors.Is(err, resdomain.ErrInsufficientCapacity))
	s.Require().NotNil(resp)

	s.Equal(int64(5), s.available(resdomain.KindStock, "var-1"))
	order, err := s.service.GetOrder(s.ctx, resp.OrderID)
	s.Require().NoError(err)
	s.Equal(domain.StateFailed, order.State)
}

func (s *CheckoutSuite) TestUnavailableVoucherRollsBackStock() {
	_, err := s.checkout("ONLINE", "SPRING", domain.OrderLine{VariationID: "var-1", Quantity: 1})
	s.Require().NoError(err)

	_, err = s.checkout("ONLINE", "SPRING", domain.OrderLine{VariationID: "var-1", Quantity: 1})
	s.True(errors.Is(err, domain.ErrVoucherUnavailable))
	s.Equal(int64(4), s.available(resdomain.KindStock, "var-1"))

	_, err = s.checkout("ONLINE", "NOPE", domain.OrderLine{VariationID: "var-1", Quantity: 1})
	s.True(errors.Is(err, domain.ErrVoucherUnavailable))
}

func (s *CheckoutSuite) TestUnknownVariationIsInvalid() {
	_, err := s.checkout("ONLINE", "", domain.OrderLine{VariationID: "ghost", Quantity: 1})
	s.True(errors.Is(err, domain.ErrInvalidOrder))

	_, err = s.checkout("CHEQUE", "", domain.OrderLine{VariationID: "var-1", Quantity: 1})
	s.True(errors.Is(err, domain.ErrInvalidOrder))
}

func (s *CheckoutSuite) TestConfirmPaymentCommitsReservations() {
	resp, err := s.checkout("ONLINE", "", domain.OrderLine{VariationID: "var-1", Quantity: 2})
	s.Require().NoError(err)

	order, err := s.service.ConfirmPayment(s.ctx, resp.OrderID)
	s.Require().NoError(err)
	s.Equal(domain.StatePaid, order.State)
	s.Equal(domain.PaymentPaid, order.PaymentStatus)

	e, err := s.manager.Availability(s.ctx, resdomain.KindStock, "var-1")
	s.Require().NoError(err)
	s.Equal(int64(2), e.Committed)
	s.Equal(int64(0), e.Reserved)

	_, err = s.service.ConfirmPayment(s.ctx, resp.OrderID)
	s.NoError(err)
	_, err = s.service.CancelOrder(s.ctx, resp.OrderID)
	s.True(errors.Is(err, domain.ErrInvalidOrderState))
}

func (s *CheckoutSuite) TestCancelOrderRestoresCapacity() {
	resp, err := s.checkout("ONLINE", "SPRING", domain.OrderLine{VariationID: "var-1", Quantity: 3})
	s.Require().NoError(err)

	order, err := s.service.CancelOrder(s.ctx, resp.OrderID)
	s.Require().NoError(err)
	s.Equal(domain.StateCancelled, order.State)
	s.Equal(int64(5), s.available(resdomain.KindStock, "var-1"))
	s.Equal(int64(1), s.available(resdomain.KindVoucher, "SPRING"))

	_, err = s.service.CancelOrder(s.ctx, resp.OrderID)
	s.NoError(err)
	_, err = s.service.CancelOrder(s.ctx, "missing")
	s.True(errors.Is(err, domain.ErrOrderNotFound))
}

func (s *CheckoutSuite) TestLapsedOnlineOrderIsAutoCancelled() {
	online, err := s.checkout("ONLINE", "", domain.OrderLine{VariationID: "var-1", Quantity: 1})
	s.Require().NoError(err)
	cod, err := s.checkout("COD", "", domain.OrderLine{VariationID: "var-1", Quantity: 1})
	s.Require().NoError(err)

	s.now = s.now.Add(time.Hour)
	res, err := resapp.NewReconciler(s.manager, s.store, nil, resapp.ReconcilerOptions{}).RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, res.Expired)

	order, err := s.service.GetOrder(s.ctx, online.OrderID)
	s.Require().NoError(err)
	s.Equal(domain.StateCancelled, order.State)

	order, err = s.service.GetOrder(s.ctx, cod.OrderID)
	s.Require().NoError(err)
	s.Equal(domain.StatePendingPayment, order.State)

	// 订单已被自动取消，迟到的支付成功消息不能再把它改成已支付
	_, err = s.service.ConfirmPayment(s.ctx, online.OrderID)
	s.True(errors.Is(err, domain.ErrInvalidOrderState))
}

func (s *CheckoutSuite) TestHandlePaymentEvent() {
	paid, err := s.checkout("ONLINE", "", domain.OrderLine{VariationID: "var-1", Quantity: 1})
	s.Require().NoError(err)
	failed, err := s.checkout("ONLINE", "", domain.OrderLine{VariationID: "var-1", Quantity: 1})
	s.Require().NoError(err)

	s.NoError(s.service.HandlePaymentEvent(s.ctx, &domain.PaymentEvent{Type: domain.PaymentSucceeded, OrderID: paid.OrderID}))
	s.NoError(s.service.HandlePaymentEvent(s.ctx, &domain.PaymentEvent{Type: domain.PaymentFailed, OrderID: failed.OrderID}))
	s.NoError(s.service.HandlePaymentEvent(s.ctx, &domain.PaymentEvent{Type: "REFUNDED", OrderID: paid.OrderID}))
	s.Error(s.service.HandlePaymentEvent(s.ctx, &domain.PaymentEvent{Type: domain.PaymentSucceeded}))

	o, err := s.service.GetOrder(s.ctx, paid.OrderID)
	s.Require().NoError(err)
	s.Equal(domain.StatePaid, o.State)
	o, err = s.service.GetOrder(s.ctx, failed.OrderID)
	s.Require().NoError(err)
	s.Equal(domain.StateCancelled, o.State)
	s.Equal(int64(4), s.available(resdomain.KindStock, "var-1"))
}
