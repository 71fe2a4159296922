package infrastructure

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"backoffice/internal/pkg/logger"
	"backoffice/internal/pkg/mq"
	"backoffice/internal/pkg/retry"
	"backoffice/internal/service/order/application"
	"backoffice/internal/service/order/domain"
	resdomain "backoffice/internal/service/reservation/domain"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// PaymentConsumerAdapter 监听 payment-events 并驱动确认/取消。
// 处理失败（含重试耗尽）的消息转发到死信主题后再提交 offset。
type PaymentConsumerAdapter struct {
	reader  mq.Reader
	appSvc  *application.OrderApplicationService
	failure *mq.FailureHandler
	policy  retry.Policy
	wg      sync.WaitGroup
}

func NewPaymentConsumerAdapter(reader mq.Reader, appSvc *application.OrderApplicationService, failure *mq.FailureHandler, policy retry.Policy) *PaymentConsumerAdapter {
	return &PaymentConsumerAdapter{reader: reader, appSvc: appSvc, failure: failure, policy: policy}
}

// Run 阻塞直到 ctx 结束
func (a *PaymentConsumerAdapter) Run(ctx context.Context) error {
	a.wg.Add(1)
	defer a.wg.Done()
	logger.Ctx(ctx).Info().Msg("✅ Payment consumer started")
	for {
		msg, err := a.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Msg("🛑 Payment consumer shutting down")
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Msg("could not fetch message, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if err := a.processMessage(ctx, msg); err != nil {
			if ferr := a.failure.Handle(ctx, msg, err); ferr != nil {
				// 死信转发失败时不提交，消息会被重新投递
				continue
			}
		}
		if err := a.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit message")
		}
	}
}

// Stop 关闭 reader 并等待 Run 返回
func (a *PaymentConsumerAdapter) Stop() {
	_ = a.reader.Close()
	a.wg.Wait()
}

func (a *PaymentConsumerAdapter) processMessage(parentCtx context.Context, msg kafka.Message) error {
	ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)

	var event domain.PaymentEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return errors.Wrap(err, "unmarshal payment event")
	}
	logger.Ctx(ctx).Info().Str("type", string(event.Type)).Str("order_id", event.OrderID).Msg("Payment event received")

	return retry.Do(ctx, a.policy, isTransient, func(ctx context.Context) error {
		return a.appSvc.HandlePaymentEvent(ctx, &event)
	})
}

func isTransient(err error) bool {
	return resdomain.IsTransient(err) || errors.Is(err, domain.ErrOrderConflict)
}
