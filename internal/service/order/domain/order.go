package domain

import (
	"time"

	"github.com/pkg/errors"
)

// OrderLine 是订单中的一个商品规格及数量
type OrderLine struct {
	VariationID string `json:"variationId"`
	Quantity    int64  `json:"quantity"`
}

// Order 是订单聚合的根实体。每次状态变化 Version 加一，仓储以此做条件更新。
type Order struct {
	ID            string
	UserID        string
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	State         State
	Lines         []OrderLine
	VoucherCode   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Version       int64
}

// NewOrder 创建 CREATED 状态的订单；同一规格的多行会被合并
func NewOrder(id, userID string, method PaymentMethod, lines []OrderLine, voucherCode string, now time.Time) (*Order, error) {
	if id == "" || userID == "" || len(lines) == 0 {
		return nil, errors.Wrap(ErrInvalidOrder, "id, user and at least one line are required")
	}
	merged := make([]OrderLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.VariationID == "" || l.Quantity <= 0 {
			return nil, errors.Wrapf(ErrInvalidOrder, "bad line %+v", l)
		}
		if i, ok := index[l.VariationID]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.VariationID] = len(merged)
		merged = append(merged, l)
	}
	return &Order{
		ID:            id,
		UserID:        userID,
		PaymentMethod: method,
		PaymentStatus: PaymentUnpaid,
		State:         StateCreated,
		Lines:         merged,
		VoucherCode:   voucherCode,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}, nil
}

func (o *Order) touch(now time.Time) {
	o.UpdatedAt = now
	o.Version++
}

// MarkAsPendingPayment 只负责状态流转，不负责调用外部服务
func (o *Order) MarkAsPendingPayment(now time.Time) error {
	if o.State != StateCreated {
		return errors.Wrapf(ErrInvalidOrderState, "order %s is %s", o.ID, o.State)
	}
	o.State = StatePendingPayment
	o.touch(now)
	return nil
}

func (o *Order) MarkAsFailed(now time.Time) {
	o.State = StateFailed
	o.touch(now)
}

// Cancel 只有待支付的订单可以被取消
func (o *Order) Cancel(now time.Time) error {
	if o.State != StatePendingPayment {
		return errors.Wrapf(ErrInvalidOrderState, "order %s is %s", o.ID, o.State)
	}
	o.State = StateCancelled
	o.touch(now)
	return nil
}

func (o *Order) Pay(now time.Time) error {
	if o.State != StatePendingPayment {
		return errors.Wrapf(ErrInvalidOrderState, "order %s is %s", o.ID, o.State)
	}
	o.State = StatePaid
	o.PaymentStatus = PaymentPaid
	o.touch(now)
	return nil
}

// Clone 返回深拷贝，仓储读写时使用
func (o *Order) Clone() *Order {
	c := *o
	c.Lines = append([]OrderLine(nil), o.Lines...)
	return &c
}
