package application

import (
	"backoffice/internal/service/order/domain"

	"github.com/pkg/errors"
)

// CheckoutRequest 是下单用例的输入数据
type CheckoutRequest struct {
	UserID        string             `json:"userId"`
	PaymentMethod string             `json:"paymentMethod"`
	Lines         []domain.OrderLine `json:"lines"`
	VoucherCode   string             `json:"voucherCode,omitempty"`
}

func (r *CheckoutRequest) Validate() error {
	if r.UserID == "" {
		return errors.Wrap(domain.ErrInvalidOrder, "userId is required")
	}
	if len(r.Lines) == 0 {
		return errors.Wrap(domain.ErrInvalidOrder, "at least one line is required")
	}
	return nil
}

// CheckoutResponse 是下单用例的输出数据
type CheckoutResponse struct {
	OrderID string       `json:"orderId"`
	Status  domain.State `json:"status"`
	Message string       `json:"message"`
}

// OrderView 是订单的对外表示
type OrderView struct {
	ID            string               `json:"id"`
	UserID        string               `json:"userId"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus"`
	Status        domain.State         `json:"status"`
	Lines         []domain.OrderLine   `json:"lines"`
	VoucherCode   string               `json:"voucherCode,omitempty"`
	Version       int64                `json:"version"`
}

func ToOrderView(o *domain.Order) OrderView {
	return OrderView{
		ID:            o.ID,
		UserID:        o.UserID,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		Status:        o.State,
		Lines:         o.Lines,
		VoucherCode:   o.VoucherCode,
		Version:       o.Version,
	}
}
