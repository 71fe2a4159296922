package domain

import "time"

type PaymentEventType string

const (
	PaymentSucceeded     PaymentEventType = "PAYMENT_SUCCEEDED"
	PaymentFailed        PaymentEventType = "PAYMENT_FAILED"
	OrderCancelRequested PaymentEventType = "ORDER_CANCEL_REQUESTED"
)

// PaymentEvent 是 payment-events 主题上的消息
type PaymentEvent struct {
	EventID    string           `json:"eventId"`
	Type       PaymentEventType `json:"type"`
	OrderID    string           `json:"orderId"`
	Reason     string           `json:"reason,omitempty"`
	OccurredAt time.Time        `json:"occurredAt"`
}
