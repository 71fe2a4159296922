package port

import (
	"context"

	"github.com/pkg/errors"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderSnapshot 是订单关联器做取消判定所需的最小订单视图
type OrderSnapshot struct {
	ID            string
	Status        string
	PaymentMethod string
	PaymentStatus string
	Version       int64
}

// OrderGateway 是预占核心对订单实体的唯一依赖
type OrderGateway interface {
	Snapshot(ctx context.Context, orderID string) (OrderSnapshot, error)
	// CancelUnpaid 以 expectedVersion 为条件把订单置为取消；订单已变化时返回 false
	CancelUnpaid(ctx context.Context, orderID string, expectedVersion int64) (bool, error)
}
