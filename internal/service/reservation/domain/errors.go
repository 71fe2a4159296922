package domain

import "github.com/pkg/errors"

var (
	// ErrInsufficientCapacity 请求数量超过当前可用量，或资源已关闭不再接受预占
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrResourceNotFound     = errors.New("resource not found")
	// ErrOptimisticConflict 版本号校验失败，属于可重试的瞬时错误
	ErrOptimisticConflict  = errors.New("optimistic concurrency conflict, please retry")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrInvalidTransition   = errors.New("invalid reservation state transition")
	ErrNotDue              = errors.New("reservation is not due for expiry")
	ErrUnknownResourceKind = errors.New("unknown resource kind")
	ErrInvalidRequest      = errors.New("invalid reservation request")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrOptimisticConflict)
}
