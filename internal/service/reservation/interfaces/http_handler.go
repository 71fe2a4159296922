package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"backoffice/internal/pkg/logger"
	"backoffice/internal/service/reservation/application"
	"backoffice/internal/service/reservation/domain"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// ReservationHandler 暴露预占核心的 HTTP 接口
type ReservationHandler struct {
	manager *application.Manager
}

func NewReservationHandler(manager *application.Manager) *ReservationHandler {
	return &ReservationHandler{manager: manager}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *ReservationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /reservations/reserve", h.reserve)
	mux.HandleFunc("POST /reservations/confirm", h.byOrder(h.manager.Confirm))
	mux.HandleFunc("POST /reservations/release", h.byOrder(h.manager.Release))
	mux.HandleFunc("POST /reservations/pin", h.byOrder(h.manager.Pin))
	mux.HandleFunc("GET /reservations", h.query)
	mux.HandleFunc("GET /ledger/availability", h.availability)
	mux.HandleFunc("POST /ledger/increment", h.increment)
}

type orderRequest struct {
	OrderID string `json:"orderId"`
}

type incrementRequest struct {
	Kind       domain.ResourceKind `json:"kind"`
	ResourceID string              `json:"resourceId"`
	Quantity   int64               `json:"quantity"`
}

// ReservationView 是预占记录的对外表示
type ReservationView struct {
	ID          string              `json:"id"`
	OrderID     string              `json:"orderId"`
	Kind        domain.ResourceKind `json:"kind"`
	ResourceID  string              `json:"resourceId"`
	RequesterID string              `json:"requesterId,omitempty"`
	Quantity    int64               `json:"quantity"`
	Status      domain.Status       `json:"status"`
	ReservedAt  time.Time           `json:"reservedAt"`
	ExpiresAt   *time.Time          `json:"expiresAt"`
	Version     int64               `json:"version"`
}

func toView(r domain.Reservation) ReservationView {
	return ReservationView{
		ID:          r.ID,
		OrderID:     r.OrderID,
		Kind:        r.Kind,
		ResourceID:  r.ResourceID,
		RequesterID: r.RequesterID,
		Quantity:    r.Quantity,
		Status:      r.Status,
		ReservedAt:  r.ReservedAt,
		ExpiresAt:   r.ExpiresAt,
		Version:     r.Version,
	}
}

func toViews(rs []domain.Reservation) []ReservationView {
	out := make([]ReservationView, 0, len(rs))
	for _, r := range rs {
		out = append(out, toView(r))
	}
	return out
}

// LedgerView 是账本的对外表示；capacity 为 null 表示不限量
type LedgerView struct {
	Kind       domain.ResourceKind `json:"kind"`
	ResourceID string              `json:"resourceId"`
	Capacity   *int64              `json:"capacity"`
	Committed  int64               `json:"committed"`
	Reserved   int64               `json:"reserved"`
	Available  *int64              `json:"available"`
	Closed     bool                `json:"closed"`
	Version    int64               `json:"version"`
}

func toLedgerView(e domain.LedgerEntry) LedgerView {
	v := LedgerView{
		Kind:       e.Kind,
		ResourceID: e.ResourceID,
		Capacity:   e.Capacity,
		Committed:  e.Committed,
		Reserved:   e.Reserved,
		Closed:     e.Closed,
		Version:    e.Version,
	}
	if !e.Unbounded() {
		a := e.Available()
		v.Available = &a
	}
	return v
}

func (h *ReservationHandler) reserve(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, errors.Wrap(domain.ErrInvalidRequest, err.Error()))
		return
	}
	res, err := h.manager.Reserve(ctx, req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toView(res))
}

func (h *ReservationHandler) byOrder(op func(ctx context.Context, orderID string) ([]domain.Reservation, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		var req orderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
			WriteError(w, r, errors.Wrap(domain.ErrInvalidRequest, "orderId is required"))
			return
		}
		rows, err := op(ctx, req.OrderID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"orderId": req.OrderID, "changed": toViews(rows)})
	}
}

func (h *ReservationHandler) query(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		WriteError(w, r, errors.Wrap(domain.ErrInvalidRequest, "order_id is required"))
		return
	}
	var statuses []domain.Status
	if s := r.URL.Query().Get("status"); s != "" {
		st, err := domain.ParseStatus(s)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		statuses = append(statuses, st)
	}
	rows, err := h.manager.QueryByOrder(r.Context(), orderID, statuses...)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toViews(rows))
}

func (h *ReservationHandler) availability(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseResourceKind(r.URL.Query().Get("kind"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	e, err := h.manager.Availability(r.Context(), kind, r.URL.Query().Get("id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toLedgerView(e))
}

func (h *ReservationHandler) increment(w http.ResponseWriter, r *http.Request) {
	var req incrementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, errors.Wrap(domain.ErrInvalidRequest, err.Error()))
		return
	}
	kind, err := domain.ParseResourceKind(string(req.Kind))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	e, err := h.manager.Increment(r.Context(), kind, req.ResourceID, req.Quantity)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toLedgerView(e))
}

// StatusOf 把领域错误映射为 HTTP 状态码
func StatusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrResourceNotFound), errors.Is(err, domain.ErrReservationNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientCapacity):
		return http.StatusConflict
	case errors.Is(err, domain.ErrOptimisticConflict):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrInvalidQuantity), errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrUnknownResourceKind), errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// WriteError 输出 {"error": "..."}；5xx 会记录日志
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("❌ request failed")
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(1))
	}
	WriteJSON(w, status, map[string]string{"error": err.Error()})
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
