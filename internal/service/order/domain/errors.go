package domain

import "github.com/pkg/errors"

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidOrder       = errors.New("invalid order")
	ErrInvalidOrderState  = errors.New("operation not allowed in current order state")
	ErrOrderConflict      = errors.New("order was modified concurrently")
	ErrOutOfStock         = errors.New("out of stock")
	ErrVoucherUnavailable = errors.New("voucher unavailable")
	ErrDuplicateRequest   = errors.New("duplicate request")
)
