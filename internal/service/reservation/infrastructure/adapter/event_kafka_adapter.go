package adapter

import (
	"context"
	"encoding/json"

	"backoffice/internal/pkg/mq"
	"backoffice/internal/service/reservation/domain"
	"backoffice/internal/service/reservation/port"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

const eventTypeHeader = "x-event-type"

// EventKafkaAdapter 把预占事件写入 reservation-events，以订单号为 key 保证同一订单有序
type EventKafkaAdapter struct {
	writer mq.Writer
}

func NewEventKafkaAdapter(writer mq.Writer) *EventKafkaAdapter {
	return &EventKafkaAdapter{writer: writer}
}

func (a *EventKafkaAdapter) Publish(ctx context.Context, events ...domain.ReservationEvent) error {
	for _, e := range events {
		body, err := json.Marshal(e)
		if err != nil {
			return errors.Wrap(err, "marshal reservation event")
		}
		err = mq.ProduceMessage(ctx, a.writer, []byte(e.OrderID), body,
			kafka.Header{Key: eventTypeHeader, Value: []byte(e.Type)})
		if err != nil {
			return errors.Wrapf(err, "produce %s for reservation %s", e.Type, e.ReservationID)
		}
	}
	return nil
}

// Close 关闭底层 writer（如果它支持）
func (a *EventKafkaAdapter) Close() error {
	if c, ok := a.writer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// FanoutPublisher 把同一批事件依次交给多个发布者，任一失败都会返回首个错误，但不会中断其余发布
type FanoutPublisher []port.EventPublisher

func (f FanoutPublisher) Publish(ctx context.Context, events ...domain.ReservationEvent) error {
	var first error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, events...); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var (
	_ port.EventPublisher = (*EventKafkaAdapter)(nil)
	_ port.EventPublisher = FanoutPublisher(nil)
)
