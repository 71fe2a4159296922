// cmd/reservation-service/main.go
package main

import (
	"context"
	"net/http"
	"os"

	"backoffice/internal/pkg/bootstrap"
	"backoffice/internal/pkg/httpclient"
	"backoffice/internal/pkg/logger"
	"backoffice/internal/pkg/mq"
	"backoffice/internal/pkg/redis"
	orderapp "backoffice/internal/service/order/application"
	"backoffice/internal/service/order/domain"
	orderinfra "backoffice/internal/service/order/infrastructure"
	orderadapter "backoffice/internal/service/order/infrastructure/adapter"
	orderhttp "backoffice/internal/service/order/interfaces"
	orderport "backoffice/internal/service/order/port"
	"backoffice/internal/service/reservation"
	resapp "backoffice/internal/service/reservation/application"
	resadapter "backoffice/internal/service/reservation/infrastructure/adapter"
	reshttp "backoffice/internal/service/reservation/interfaces"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

const serviceName = "reservation-service"

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	cfg, err := bootstrap.Init(getEnv("CONFIG_PATH", "configs/reservation.yaml"))
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}
	ctx := context.Background()

	// 1. 持久化
	stores, err := reservation.OpenStores(ctx, cfg, orderinfra.Models()...)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to open stores")
	}
	var orderRepo domain.OrderRepository = orderinfra.NewMemoryRepository()
	if stores.DB != nil {
		orderRepo = orderinfra.NewMysqlRepository(stores.DB)
	}

	redisClient, err := redis.NewClient(ctx, cfg.Infra.Redis.Addrs, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to initialize redis client")
	}

	// 2. 预占核心：事件同时写 Kafka 和 websocket 订阅者
	kafkaCfg := cfg.Infra.Kafka
	eventWriter := mq.NewKafkaWriter(kafkaCfg.Brokers, kafkaCfg.Topics.ReservationEvents)
	eventAdapter := resadapter.NewEventKafkaAdapter(eventWriter)
	hub := reshttp.NewFeedHub()

	metrics := resapp.NewMetrics(prometheus.DefaultRegisterer)
	opts := append(reservation.ManagerOptions(cfg),
		resapp.WithMetrics(metrics),
		resapp.WithPublisher(resadapter.FanoutPublisher{eventAdapter, hub}),
	)
	manager := resapp.NewManager(stores.Reservations, stores.Tx, stores.Ledgers, opts...)

	rule, err := resapp.NewEligibilityRule(cfg.Reservation.CancelRule)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("invalid cancel rule")
	}
	gateway := orderadapter.NewOrderGateway(orderRepo, nil)
	manager.SetReleaseListener(resapp.NewOrderCorrelator(stores.Reservations, gateway, rule, metrics))

	// 3. 订单侧：本地调用或远端预占服务
	var reservations orderport.ReservationService = orderadapter.NewReservationManagerAdapter(manager)
	if endpoint := cfg.Order.ReservationEndpoint; endpoint != "" {
		reservations = orderadapter.NewReservationHTTPAdapter(httpclient.NewClient(otel.Tracer(serviceName)), endpoint)
		logger.L().Info().Str("endpoint", endpoint).Msg("✅ Using remote reservation service")
	}
	orderService := orderapp.NewOrderApplicationService(orderRepo, reservations, cfg.Order.ProcessingTimeout)

	// 4. 支付事件消费者与死信
	dltWriter := mq.NewKafkaWriter(kafkaCfg.Brokers, kafkaCfg.Topics.PaymentEventsDLT)
	paymentReader := mq.NewKafkaReader(kafkaCfg.Brokers, kafkaCfg.Topics.PaymentEvents, kafkaCfg.GroupID)
	paymentConsumer := orderinfra.NewPaymentConsumerAdapter(paymentReader, orderService, mq.NewFailureHandler(dltWriter), reservation.RetryPolicy(cfg))
	dltReader := mq.NewKafkaReader(kafkaCfg.Brokers, kafkaCfg.Topics.PaymentEventsDLT, kafkaCfg.GroupID+"-dlt")
	dltConsumer := orderhttp.NewDltConsumerAdapter(dltReader, kafkaCfg.Topics.PaymentEventsDLT)

	// 5. 进程内过期清理（可选）
	var reconciler *resapp.Reconciler
	closeLock := func() {}
	if cfg.App.RunReconciler {
		lock, cleanup, err := reservation.SweepLock(ctx, cfg, redisClient)
		if err != nil {
			logger.L().Fatal().Err(err).Msg("failed to initialize sweep lock")
		}
		closeLock = cleanup
		reconciler = resapp.NewReconciler(manager, stores.Reservations, lock, reservation.ReconcilerOptions(cfg))
	}

	err = bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			appCtx.Mux.Handle("/ws/reservations", hub)
			reshttp.NewReservationHandler(manager).RegisterRoutes(appCtx.Mux)
			orderhttp.NewOrderHandler(orderService, orderadapter.NewIdempotencyRedisAdapter(redisClient), cfg.Reservation.IdempotencyTTL).
				RegisterRoutes(appCtx.Mux)
		},
		Run: func(ctx context.Context) error {
			if reconciler != nil {
				reconciler.Start(ctx)
				defer reconciler.Stop()
			}
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return paymentConsumer.Run(gctx) })
			g.Go(func() error { return dltConsumer.Run(gctx) })
			return g.Wait()
		},
		OnShutdown: func(ctx context.Context) {
			paymentConsumer.Stop()
			dltConsumer.Stop()
			_ = dltWriter.Close()
			_ = eventAdapter.Close()
			closeLock()
			_ = redisClient.Close()
			stores.Close()
		},
	})
	if err != nil {
		logger.L().Fatal().Err(err).Msg("service exited with error")
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
