package adapter

import (
	"context"
	"fmt"

	"backoffice/internal/service/order/domain"
	"backoffice/internal/service/order/port"
	resapp "backoffice/internal/service/reservation/application"
	resdomain "backoffice/internal/service/reservation/domain"

	"github.com/pkg/errors"
)

// ReservationManagerAdapter 在进程内调用预占核心。
type ReservationManagerAdapter struct {
	manager *resapp.Manager
}

func NewReservationManagerAdapter(manager *resapp.Manager) *ReservationManagerAdapter {
	return &ReservationManagerAdapter{manager: manager}
}

func (a *ReservationManagerAdapter) ReserveStock(ctx context.Context, orderID, userID, variationID string, quantity int64) error {
	_, err := a.manager.Reserve(ctx, resapp.ReserveRequest{
		OrderID: orderID, Kind: resdomain.KindStock, ResourceID: variationID, RequesterID: userID, Quantity: quantity,
	})
	return translateStockError(variationID, err)
}

func (a *ReservationManagerAdapter) ReserveVoucher(ctx context.Context, orderID, userID, code string) error {
	_, err := a.manager.Reserve(ctx, resapp.ReserveRequest{
		OrderID: orderID, Kind: resdomain.KindVoucher, ResourceID: code, RequesterID: userID, Quantity: 1,
	})
	return translateVoucherError(code, err)
}

func (a *ReservationManagerAdapter) Confirm(ctx context.Context, orderID string) error {
	_, err := a.manager.Confirm(ctx, orderID)
	return err
}

func (a *ReservationManagerAdapter) Release(ctx context.Context, orderID string) error {
	_, err := a.manager.Release(ctx, orderID)
	return err
}

func (a *ReservationManagerAdapter) Pin(ctx context.Context, orderID string) error {
	_, err := a.manager.Pin(ctx, orderID)
	return err
}

// 保留原始错误链，调用方既能匹配订单错误也能匹配预占错误
func translateStockError(variationID string, err error) error {
	switch {
	case err == nil:
		return nil
	case resdomain.IsTransient(err):
		return err
	case errors.Is(err, resdomain.ErrInsufficientCapacity):
		return fmt.Errorf("%w: variation %s: %w", domain.ErrOutOfStock, variationID, err)
	case errors.Is(err, resdomain.ErrResourceNotFound):
		return fmt.Errorf("%w: unknown variation %s: %w", domain.ErrInvalidOrder, variationID, err)
	}
	return err
}

func translateVoucherError(code string, err error) error {
	switch {
	case err == nil:
		return nil
	case resdomain.IsTransient(err):
		return err
	case errors.Is(err, resdomain.ErrInsufficientCapacity), errors.Is(err, resdomain.ErrResourceNotFound):
		return fmt.Errorf("%w: %s: %w", domain.ErrVoucherUnavailable, code, err)
	}
	return err
}

var _ port.ReservationService = (*ReservationManagerAdapter)(nil)
