package domain

import "context"

// OrderRepository 定义了订单聚合的持久化接口。
type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	// Update 仅当存储中的版本等于 expectedVersion 时写入，否则返回 ErrOrderConflict
	Update(ctx context.Context, order *Order, expectedVersion int64) error
}
