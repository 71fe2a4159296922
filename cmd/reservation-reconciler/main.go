// cmd/reservation-reconciler/main.go
package main

import (
	"context"
	"net/http"
	"os"

	"backoffice/internal/pkg/bootstrap"
	"backoffice/internal/pkg/logger"
	"backoffice/internal/pkg/mq"
	"backoffice/internal/pkg/redis"
	orderinfra "backoffice/internal/service/order/infrastructure"
	orderadapter "backoffice/internal/service/order/infrastructure/adapter"
	"backoffice/internal/service/reservation"
	resapp "backoffice/internal/service/reservation/application"
	resadapter "backoffice/internal/service/reservation/infrastructure/adapter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const serviceName = "reservation-reconciler"

// 独立运行的过期清理进程，多个副本通过清理锁互斥。
// 只暴露 /healthz 和 /metrics。
func main() {
	cfg, err := bootstrap.Init(getEnv("CONFIG_PATH", "configs/reconciler.yaml"))
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.App.Store == "memory" {
		logger.L().Fatal().Msg("standalone reconciler needs a shared store, app.store=memory is not supported")
	}
	ctx := context.Background()

	stores, err := reservation.OpenStores(ctx, cfg, orderinfra.Models()...)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to open stores")
	}
	orderRepo := orderinfra.NewMysqlRepository(stores.DB)

	var redisClient *redis.Client
	if cfg.Reservation.Reconciler.Lock.Backend == "redis" {
		if redisClient, err = redis.NewClient(ctx, cfg.Infra.Redis.Addrs, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB); err != nil {
			logger.L().Fatal().Err(err).Msg("failed to initialize redis client")
		}
	}
	lock, closeLock, err := reservation.SweepLock(ctx, cfg, redisClient)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to initialize sweep lock")
	}

	eventAdapter := resadapter.NewEventKafkaAdapter(mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.Topics.ReservationEvents))
	metrics := resapp.NewMetrics(prometheus.DefaultRegisterer)
	opts := append(reservation.ManagerOptions(cfg), resapp.WithMetrics(metrics), resapp.WithPublisher(eventAdapter))
	manager := resapp.NewManager(stores.Reservations, stores.Tx, stores.Ledgers, opts...)

	rule, err := resapp.NewEligibilityRule(cfg.Reservation.CancelRule)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("invalid cancel rule")
	}
	manager.SetReleaseListener(resapp.NewOrderCorrelator(stores.Reservations, orderadapter.NewOrderGateway(orderRepo, nil), rule, metrics))

	reconciler := resapp.NewReconciler(manager, stores.Reservations, lock, reservation.ReconcilerOptions(cfg))

	err = bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
		},
		Run: func(ctx context.Context) error {
			reconciler.Start(ctx)
			<-ctx.Done()
			reconciler.Stop()
			return nil
		},
		OnShutdown: func(ctx context.Context) {
			_ = eventAdapter.Close()
			closeLock()
			if redisClient != nil {
				_ = redisClient.Close()
			}
			stores.Close()
		},
	})
	if err != nil {
		logger.L().Fatal().Err(err).Msg("reconciler exited with error")
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
