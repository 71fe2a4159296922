// Package reservation assembles the reservation core from configuration.
package reservation

import (
	"context"
	"time"

	"backoffice/internal/pkg/bootstrap"
	"backoffice/internal/pkg/database"
	"backoffice/internal/pkg/logger"
	"backoffice/internal/pkg/redis"
	"backoffice/internal/pkg/retry"
	"backoffice/internal/service/reservation/application"
	"backoffice/internal/service/reservation/domain"
	"backoffice/internal/service/reservation/infrastructure"
	"backoffice/internal/service/reservation/infrastructure/adapter"
	"backoffice/internal/service/reservation/infrastructure/memory"
	"backoffice/internal/service/reservation/port"
	"backoffice/internal/zookeeper"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Stores 是按配置选定的持久化后端
type Stores struct {
	DB           *gorm.DB // memory 模式下为 nil
	Reservations domain.ReservationRepository
	Tx           domain.TxManager
	Ledgers      []domain.Ledger
}

// OpenStores 打开 MySQL（必要时自动迁移 extraModels）或构造内存存储
func OpenStores(ctx context.Context, cfg *bootstrap.Config, extraModels ...interface{}) (*Stores, error) {
	if cfg.App.Store == "memory" {
		store := memory.NewStore()
		for _, s := range cfg.Reservation.Seed {
			kind, err := domain.ParseResourceKind(s.Kind)
			if err != nil {
				return nil, err
			}
			store.Seed(domain.LedgerEntry{Kind: kind, ResourceID: s.ID, Capacity: s.Capacity})
		}
		logger.Ctx(ctx).Warn().Int("seeded", len(cfg.Reservation.Seed)).Msg("⚠️ Using in-memory store, data is lost on restart")
		return &Stores{
			Reservations: store,
			Tx:           store,
			Ledgers:      []domain.Ledger{store.Ledger(domain.KindStock), store.Ledger(domain.KindVoucher)},
		}, nil
	}

	db, err := database.OpenMySQL(ctx, cfg.Infra.Mysql)
	if err != nil {
		return nil, err
	}
	if cfg.Infra.Mysql.AutoMigrate {
		models := append(infrastructure.Models(), extraModels...)
		if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
			return nil, errors.Wrap(err, "auto migrate")
		}
	}
	return &Stores{
		DB:           db,
		Reservations: infrastructure.NewGormReservationRepository(db),
		Tx:           database.NewTxManager(db),
		Ledgers: []domain.Ledger{
			infrastructure.NewGormStockLedger(db),
			infrastructure.NewGormVoucherLedger(db, nil),
		},
	}, nil
}

// Close 关闭数据库连接
func (s *Stores) Close() {
	if s.DB == nil {
		return
	}
	if sqlDB, err := s.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// ManagerOptions 把配置映射为 Manager 选项
func ManagerOptions(cfg *bootstrap.Config) []application.Option {
	r := cfg.Reservation
	return []application.Option{
		application.WithHoldDuration(r.HoldDuration),
		application.WithRetryPolicy(RetryPolicy(cfg)),
	}
}

func RetryPolicy(cfg *bootstrap.Config) retry.Policy {
	r := cfg.Reservation.Retry
	return retry.Policy{MaxAttempts: r.MaxAttempts, BaseDelay: r.BaseDelay, MaxDelay: r.MaxDelay, Multiplier: 2}
}

func ReconcilerOptions(cfg *bootstrap.Config) application.ReconcilerOptions {
	r := cfg.Reservation.Reconciler
	return application.ReconcilerOptions{
		Interval:       r.Interval,
		BatchSize:      r.BatchSize,
		Concurrency:    r.Concurrency,
		PurgeInterval:  r.PurgeInterval,
		Retention:      r.Retention,
		PurgeBatchSize: r.PurgeBatchSize,
	}
}

// SweepLock 按配置构造清理锁；返回的 cleanup 关闭为锁建立的连接。
// backend 为 none 时返回 nil 锁，每个节点都会清理。
func SweepLock(ctx context.Context, cfg *bootstrap.Config, rdb *redis.Client) (port.SweepLock, func(), error) {
	l := cfg.Reservation.Reconciler.Lock
	lease := l.Lease
	if lease <= 0 {
		lease = cfg.Reservation.Reconciler.Interval - time.Second
	}
	switch l.Backend {
	case "redis":
		if rdb == nil {
			return nil, nil, errors.New("redis sweep lock requires a redis client")
		}
		return adapter.NewRedisSweepLock(rdb, l.Key, lease), func() {}, nil
	case "zookeeper":
		zc := cfg.Infra.Zookeeper
		conn, err := zookeeper.Connect(zc.Servers, zc.SessionTimeout)
		if err != nil {
			return nil, nil, err
		}
		return adapter.NewZkSweepLock(conn, "reservation-sweep"), conn.Close, nil
	}
	logger.Ctx(ctx).Warn().Msg("⚠️ Sweep lock disabled, every node sweeps")
	return nil, func() {}, nil
}
