package domain

import (
	"time"

	"github.com/pkg/errors"
)

// Status 是预占记录的生命周期状态
type Status string

const (
	StatusReserved  Status = "RESERVED"
	StatusConfirmed Status = "CONFIRMED"
	StatusReleased  Status = "RELEASED"
	StatusExpired   Status = "EXPIRED"
)

// TerminalStatuses 可被保留期清理删除的终态
var TerminalStatuses = []Status{StatusReleased, StatusExpired}

func (s Status) IsTerminal() bool {
	return s != StatusReserved
}

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusReserved, StatusConfirmed, StatusReleased, StatusExpired:
		return st, nil
	}
	return "", errors.Wrapf(ErrInvalidRequest, "unknown status %q", s)
}

// Reservation 是一条订单对某个资源的占用记录
type Reservation struct {
	ID          string
	OrderID     string
	Kind        ResourceKind
	ResourceID  string
	RequesterID string
	Quantity    int64
	Status      Status
	ReservedAt  time.Time
	// ExpiresAt 为 nil 表示已固定（pinned），不会被过期清理
	ExpiresAt *time.Time
	UpdatedAt time.Time
	Version   int64
}

// NewReservation 创建一条 RESERVED 记录，到期时间为 now + hold
func NewReservation(id, orderID string, kind ResourceKind, resourceID, requesterID string, qty int64, now time.Time, hold time.Duration) (Reservation, error) {
	if id == "" || orderID == "" || resourceID == "" {
		return Reservation{}, errors.Wrap(ErrInvalidRequest, "id, order id and resource id are required")
	}
	if qty <= 0 {
		return Reservation{}, ErrInvalidQuantity
	}
	expires := now.Add(hold)
	return Reservation{
		ID:          id,
		OrderID:     orderID,
		Kind:        kind,
		ResourceID:  resourceID,
		RequesterID: requesterID,
		Quantity:    qty,
		Status:      StatusReserved,
		ReservedAt:  now,
		ExpiresAt:   &expires,
		UpdatedAt:   now,
		Version:     1,
	}, nil
}

func (r Reservation) Pinned() bool {
	return r.Status == StatusReserved && r.ExpiresAt == nil
}

// IsDue 判断是否已到期且可被清理
func (r Reservation) IsDue(now time.Time) bool {
	return r.Status == StatusReserved && r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

func (r Reservation) Confirm(now time.Time) (Reservation, error) {
	return r.moveTo(StatusConfirmed, now)
}

func (r Reservation) Release(now time.Time) (Reservation, error) {
	return r.moveTo(StatusReleased, now)
}

// Expire 仅对已到期且未固定的记录生效
func (r Reservation) Expire(now time.Time) (Reservation, error) {
	if r.Status == StatusReserved && !r.IsDue(now) {
		return r, ErrNotDue
	}
	return r.moveTo(StatusExpired, now)
}

// Pin 清除到期时间，记录将一直保持 RESERVED 直到确认或释放
func (r Reservation) Pin(now time.Time) (Reservation, error) {
	if r.Status != StatusReserved {
		return r, errors.Wrapf(ErrInvalidTransition, "%s cannot be pinned", r.Status)
	}
	next := r
	next.ExpiresAt = nil
	next.UpdatedAt = now
	next.Version = r.Version + 1
	return next, nil
}

func (r Reservation) moveTo(to Status, now time.Time) (Reservation, error) {
	if r.Status != StatusReserved {
		return r, errors.Wrapf(ErrInvalidTransition, "%s -> %s", r.Status, to)
	}
	next := r
	next.Status = to
	next.UpdatedAt = now
	next.Version = r.Version + 1
	return next, nil
}
