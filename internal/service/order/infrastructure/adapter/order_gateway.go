package adapter

import (
	"context"
	"time"

	"backoffice/internal/pkg/logger"
	"backoffice/internal/service/order/domain"
	resport "backoffice/internal/service/reservation/port"

	"github.com/pkg/errors"
)

// OrderGateway 让预占核心的订单关联器读取并条件取消订单。
type OrderGateway struct {
	repo domain.OrderRepository
	now  func() time.Time
}

func NewOrderGateway(repo domain.OrderRepository, now func() time.Time) *OrderGateway {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &OrderGateway{repo: repo, now: now}
}

func (g *OrderGateway) Snapshot(ctx context.Context, orderID string) (resport.OrderSnapshot, error) {
	o, err := g.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return resport.OrderSnapshot{}, errors.Wrap(resport.ErrOrderNotFound, orderID)
		}
		return resport.OrderSnapshot{}, err
	}
	return resport.OrderSnapshot{
		ID:            o.ID,
		Status:        string(o.State),
		PaymentMethod: string(o.PaymentMethod),
		PaymentStatus: string(o.PaymentStatus),
		Version:       o.Version,
	}, nil
}

// CancelUnpaid 订单在判定之后被修改（例如刚刚支付）时返回 false
func (g *OrderGateway) CancelUnpaid(ctx context.Context, orderID string, expectedVersion int64) (bool, error) {
	o, err := g.repo.FindByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	if o.Version != expectedVersion {
		return false, nil
	}
	if err := o.Cancel(g.now()); err != nil {
		return false, nil
	}
	if err := g.repo.Update(ctx, o, expectedVersion); err != nil {
		if errors.Is(err, domain.ErrOrderConflict) {
			return false, nil
		}
		return false, err
	}
	logger.Ctx(ctx).Info().Str("order_id", orderID).Msg("Order auto-cancelled after its reservations lapsed")
	return true, nil
}

var _ resport.OrderGateway = (*OrderGateway)(nil)
