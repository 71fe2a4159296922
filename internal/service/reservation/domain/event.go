package domain

import "time"

type EventType string

const (
	EventReserved  EventType = "RESERVATION_RESERVED"
	EventConfirmed EventType = "RESERVATION_CONFIRMED"
	EventReleased  EventType = "RESERVATION_RELEASED"
	EventExpired   EventType = "RESERVATION_EXPIRED"
	EventPinned    EventType = "RESERVATION_PINNED"
)

// ReservationEvent 在状态变更提交后发布
type ReservationEvent struct {
	Type          EventType    `json:"type"`
	ReservationID string       `json:"reservationId"`
	OrderID       string       `json:"orderId"`
	Kind          ResourceKind `json:"kind"`
	ResourceID    string       `json:"resourceId"`
	Quantity      int64        `json:"quantity"`
	Status        Status       `json:"status"`
	ExpiresAt     *time.Time   `json:"expiresAt,omitempty"`
	OccurredAt    time.Time    `json:"occurredAt"`
}

func NewEvent(t EventType, r Reservation, at time.Time) ReservationEvent {
	return ReservationEvent{
		Type:          t,
		ReservationID: r.ID,
		OrderID:       r.OrderID,
		Kind:          r.Kind,
		ResourceID:    r.ResourceID,
		Quantity:      r.Quantity,
		Status:        r.Status,
		ExpiresAt:     r.ExpiresAt,
		OccurredAt:    at,
	}
}
