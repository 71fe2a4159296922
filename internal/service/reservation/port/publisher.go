package port

import (
	"context"

	"backoffice/internal/service/reservation/domain"
)

// EventPublisher 发布已提交的预占状态变更
type EventPublisher interface {
	Publish(ctx context.Context, events ...domain.ReservationEvent) error
}
