package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"backoffice/internal/pkg/logger"
	"backoffice/internal/service/order/application"
	"backoffice/internal/service/order/domain"
	"backoffice/internal/service/order/port"
	resinterfaces "backoffice/internal/service/reservation/interfaces"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const idempotencyHeader = "Idempotency-Key"

// OrderHandler 封装了订单服务的 HTTP 处理器
type OrderHandler struct {
	service        *application.OrderApplicationService
	idempotency    port.IdempotencyGuard
	idempotencyTTL time.Duration
}

// NewOrderHandler 的 guard 可以为 nil，此时不做幂等校验
func NewOrderHandler(service *application.OrderApplicationService, guard port.IdempotencyGuard, ttl time.Duration) *OrderHandler {
	return &OrderHandler{service: service, idempotency: guard, idempotencyTTL: ttl}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /checkout", h.checkout)
	mux.HandleFunc("POST /orders/confirm", h.confirm)
	mux.HandleFunc("POST /orders/cancel", h.cancel)
	mux.HandleFunc("GET /orders/{id}", h.get)
}

func (h *OrderHandler) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errors.Wrap(domain.ErrInvalidOrder, err.Error()))
		return
	}

	key := r.Header.Get(idempotencyHeader)
	if key != "" && h.idempotency != nil {
		ok, err := h.idempotency.Acquire(ctx, key, h.idempotencyTTL)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !ok {
			writeError(w, r, errors.Wrap(domain.ErrDuplicateRequest, key))
			return
		}
	}

	resp, err := h.service.Checkout(ctx, &req)
	if err != nil {
		// 下单失败时资源已回滚，允许客户端用同一个键重试
		if key != "" && h.idempotency != nil {
			if ferr := h.idempotency.Forget(ctx, key); ferr != nil {
				logger.Ctx(ctx).Warn().Err(ferr).Str("key", key).Msg("failed to forget idempotency key")
			}
		}
		writeError(w, r, err)
		return
	}
	resinterfaces.WriteJSON(w, http.StatusCreated, resp)
}

type orderRequest struct {
	OrderID string `json:"orderId"`
}

func (h *OrderHandler) confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ConfirmPayment)
}

func (h *OrderHandler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CancelOrder)
}

func (h *OrderHandler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, orderID string) (*domain.Order, error)) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		writeError(w, r, errors.Wrap(domain.ErrInvalidOrder, "orderId is required"))
		return
	}
	order, err := op(ctx, req.OrderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resinterfaces.WriteJSON(w, http.StatusOK, application.ToOrderView(order))
}

func (h *OrderHandler) get(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	resinterfaces.WriteJSON(w, http.StatusOK, application.ToOrderView(order))
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidOrder):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrOutOfStock), errors.Is(err, domain.ErrVoucherUnavailable),
		errors.Is(err, domain.ErrInvalidOrderState), errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, domain.ErrOrderConflict):
		return http.StatusServiceUnavailable
	}
	return resinterfaces.StatusOf(err)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("❌ request failed")
	}
	resinterfaces.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
