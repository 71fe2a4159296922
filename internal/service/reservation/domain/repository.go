package domain

import (
	"context"
	"time"
)

// Ledger 是某一类资源计数器的存储能力。
// Save 以 expectedVersion 做条件写，版本不匹配时返回 ErrOptimisticConflict。
type Ledger interface {
	Kind() ResourceKind
	Load(ctx context.Context, resourceID string) (LedgerEntry, error)
	Save(ctx context.Context, next LedgerEntry, expectedVersion int64) error
}

// ReservationRepository 定义了预占记录的持久化接口。
type ReservationRepository interface {
	Create(ctx context.Context, r Reservation) error
	FindByID(ctx context.Context, id string) (Reservation, error)
	// FindByOrder 按订单查询，statuses 为空时返回全部状态
	FindByOrder(ctx context.Context, orderID string, statuses ...Status) ([]Reservation, error)
	CountActiveByOrder(ctx context.Context, orderID string) (int64, error)
	// FindDue 返回未固定且 expires_at <= now 的 RESERVED 记录，按到期时间升序
	FindDue(ctx context.Context, now time.Time, limit int) ([]Reservation, error)
	Update(ctx context.Context, r Reservation, expectedVersion int64) error
	// PurgeTerminal 删除 updated_at 早于 before 的终态记录，返回删除条数
	PurgeTerminal(ctx context.Context, before time.Time, limit int) (int64, error)
}

// TxManager 在一个事务内执行 fn，fn 返回错误时回滚
type TxManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
