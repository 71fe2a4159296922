package port

import "context"

// ReservationService 是预占核心的出站端口。
// 容量不足时 ReserveStock 返回 domain.ErrOutOfStock，ReserveVoucher 返回 domain.ErrVoucherUnavailable。
type ReservationService interface {
	ReserveStock(ctx context.Context, orderID, userID, variationID string, quantity int64) error
	ReserveVoucher(ctx context.Context, orderID, userID, code string) error
	// 以下按订单批量操作，均为幂等
	Confirm(ctx context.Context, orderID string) error
	Release(ctx context.Context, orderID string) error
	Pin(ctx context.Context, orderID string) error
}
