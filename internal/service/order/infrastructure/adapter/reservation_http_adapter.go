package adapter

import (
	"context"
	"net/http"
	"strings"

	"backoffice/internal/pkg/httpclient"
	"backoffice/internal/service/order/port"
	resapp "backoffice/internal/service/reservation/application"
	resdomain "backoffice/internal/service/reservation/domain"

	"github.com/pkg/errors"
)

// ReservationHTTPAdapter 通过 HTTP 调用独立部署的预占服务。
type ReservationHTTPAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewReservationHTTPAdapter(client *httpclient.Client, baseURL string) *ReservationHTTPAdapter {
	return &ReservationHTTPAdapter{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (a *ReservationHTTPAdapter) ReserveStock(ctx context.Context, orderID, userID, variationID string, quantity int64) error {
	err := a.client.PostJSON(ctx, a.baseURL+"/reservations/reserve", resapp.ReserveRequest{
		OrderID: orderID, Kind: resdomain.KindStock, ResourceID: variationID, RequesterID: userID, Quantity: quantity,
	}, nil)
	return translateStockError(variationID, fromStatus(err))
}

func (a *ReservationHTTPAdapter) ReserveVoucher(ctx context.Context, orderID, userID, code string) error {
	err := a.client.PostJSON(ctx, a.baseURL+"/reservations/reserve", resapp.ReserveRequest{
		OrderID: orderID, Kind: resdomain.KindVoucher, ResourceID: code, RequesterID: userID, Quantity: 1,
	}, nil)
	return translateVoucherError(code, fromStatus(err))
}

func (a *ReservationHTTPAdapter) Confirm(ctx context.Context, orderID string) error {
	return a.byOrder(ctx, "/reservations/confirm", orderID)
}

func (a *ReservationHTTPAdapter) Release(ctx context.Context, orderID string) error {
	return a.byOrder(ctx, "/reservations/release", orderID)
}

func (a *ReservationHTTPAdapter) Pin(ctx context.Context, orderID string) error {
	return a.byOrder(ctx, "/reservations/pin", orderID)
}

func (a *ReservationHTTPAdapter) byOrder(ctx context.Context, path, orderID string) error {
	return fromStatus(a.client.PostJSON(ctx, a.baseURL+path, map[string]string{"orderId": orderID}, nil))
}

// fromStatus 把预占服务的状态码还原为领域错误
func fromStatus(err error) error {
	var se *httpclient.StatusError
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code {
	case http.StatusConflict:
		return errors.Wrap(resdomain.ErrInsufficientCapacity, se.Detail)
	case http.StatusNotFound:
		return errors.Wrap(resdomain.ErrResourceNotFound, se.Detail)
	case http.StatusServiceUnavailable:
		return errors.Wrap(resdomain.ErrOptimisticConflict, se.Detail)
	case http.StatusBadRequest:
		return errors.Wrap(resdomain.ErrInvalidRequest, se.Detail)
	}
	return err
}

var _ port.ReservationService = (*ReservationHTTPAdapter)(nil)
