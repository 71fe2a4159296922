package domain

import "github.com/pkg/errors"

// State 定义了订单的生命周期状态
type State string

const (
	StateCreated        State = "CREATED"         // 已记录，正在预占资源
	StatePendingPayment State = "PENDING_PAYMENT" // 资源已预占，等待支付（或货到付款）
	StatePaid           State = "PAID"
	StateCancelled      State = "CANCELLED" // 用户取消、支付失败或预占过期
	StateFailed         State = "FAILED"    // 下单流程失败，资源已回滚
)

type PaymentMethod string

const (
	PaymentOnline PaymentMethod = "ONLINE"
	PaymentCOD    PaymentMethod = "COD" // 货到付款
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case PaymentOnline, PaymentCOD:
		return m, nil
	case "":
		return PaymentOnline, nil
	}
	return "", errors.Wrapf(ErrInvalidOrder, "unknown payment method %q", s)
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "UNPAID"
	PaymentPaid   PaymentStatus = "PAID"
)
