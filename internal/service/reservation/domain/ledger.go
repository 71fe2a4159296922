package domain

import (
	"math"

	"github.com/pkg/errors"
)

// LedgerEntry 是某个资源计数器的不可变快照。
// 所有变更方法返回新快照且版本号加一，原快照保持不变，持久化时以原版本号做条件写。
type LedgerEntry struct {
	Kind       ResourceKind
	ResourceID string
	// Capacity 为 nil 表示不限量（无使用上限的优惠券）
	Capacity  *int64
	Committed int64
	Reserved  int64
	// Closed 的资源拒绝新的预占，但已有预占仍可确认或释放
	Closed  bool
	Version int64
}

func (e LedgerEntry) Unbounded() bool {
	return e.Capacity == nil
}

// Available = capacity - committed - reserved，下限为 0
func (e LedgerEntry) Available() int64 {
	if e.Unbounded() {
		return math.MaxInt64
	}
	a := *e.Capacity - e.Committed - e.Reserved
	if a < 0 {
		return 0
	}
	return a
}

// Reserve 占用 qty 个可用单位
func (e LedgerEntry) Reserve(qty int64) (LedgerEntry, error) {
	if qty <= 0 {
		return e, ErrInvalidQuantity
	}
	// 不限量的券 Available 为 MaxInt64，累加前先防溢出
	if qty > math.MaxInt64-e.Reserved-e.Committed {
		return e, errors.Wrapf(ErrInvalidQuantity, "%s %s: quantity %d overflows counters", e.Kind, e.ResourceID, qty)
	}
	if e.Closed {
		return e, errors.Wrapf(ErrInsufficientCapacity, "%s %s is closed", e.Kind, e.ResourceID)
	}
	if qty > e.Available() {
		return e, errors.Wrapf(ErrInsufficientCapacity, "%s %s: requested %d, available %d", e.Kind, e.ResourceID, qty, e.Available())
	}
	next := e.bump()
	next.Reserved += qty
	return next, nil
}

// Commit 将 qty 从预占转为永久消耗
func (e LedgerEntry) Commit(qty int64) (LedgerEntry, error) {
	if qty <= 0 {
		return e, ErrInvalidQuantity
	}
	next := e.bump()
	next.Reserved = clampSub(next.Reserved, qty)
	next.Committed += qty
	return next, nil
}

// Restore 将 qty 从预占归还为可用
func (e LedgerEntry) Restore(qty int64) (LedgerEntry, error) {
	if qty <= 0 {
		return e, ErrInvalidQuantity
	}
	next := e.bump()
	next.Reserved = clampSub(next.Reserved, qty)
	return next, nil
}

// Increment 提高容量上限（补货 / 增加券的使用名额）；不限量资源保持不限量
func (e LedgerEntry) Increment(qty int64) (LedgerEntry, error) {
	if qty <= 0 {
		return e, ErrInvalidQuantity
	}
	if !e.Unbounded() && qty > math.MaxInt64-*e.Capacity {
		return e, errors.Wrapf(ErrInvalidQuantity, "%s %s: increment %d overflows capacity", e.Kind, e.ResourceID, qty)
	}
	next := e.bump()
	if !next.Unbounded() {
		c := *next.Capacity + qty
		next.Capacity = &c
	}
	return next, nil
}

func (e LedgerEntry) bump() LedgerEntry {
	next := e
	if e.Capacity != nil {
		c := *e.Capacity
		next.Capacity = &c
	}
	next.Version = e.Version + 1
	return next
}

func clampSub(a, b int64) int64 {
	if a < b {
		return 0
	}
	return a - b
}
