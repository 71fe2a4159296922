package application

import (
	"context"
	"sync"
	"time"

	"backoffice/internal/service/reservation/domain"
	"backoffice/internal/service/reservation/port"

	"github.com/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeOrders struct {
	mu        sync.Mutex
	orders    map[string]port.OrderSnapshot
	cancelled []string
	err       error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: make(map[string]port.OrderSnapshot)}
}

func (f *fakeOrders) put(o port.OrderSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.ID] = o
}

func (f *fakeOrders) get(id string) port.OrderSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id]
}

func (f *fakeOrders) Snapshot(_ context.Context, orderID string) (port.OrderSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return port.OrderSnapshot{}, f.err
	}
	o, ok := f.orders[orderID]
	if !ok {
		return port.OrderSnapshot{}, port.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeOrders) CancelUnpaid(_ context.Context, orderID string, expectedVersion int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.Version != expectedVersion {
		return false, nil
	}
	o.Status = "CANCELLED"
	o.Version++
	f.orders[orderID] = o
	f.cancelled = append(f.cancelled, orderID)
	return true, nil
}

func pendingOnline(id string) port.OrderSnapshot {
	return port.OrderSnapshot{ID: id, Status: "PENDING_PAYMENT", PaymentMethod: "ONLINE", PaymentStatus: "UNPAID", Version: 1}
}

// flakyLedger 在前 failures 次 Save 时返回版本冲突
type flakyLedger struct {
	domain.Ledger
	mu       sync.Mutex
	failures int
	saves    int
}

func (l *flakyLedger) Save(ctx context.Context, next domain.LedgerEntry, expectedVersion int64) error {
	l.mu.Lock()
	l.saves++
	fail := l.failures > 0
	if fail {
		l.failures--
	}
	l.mu.Unlock()
	if fail {
		return errors.Wrap(domain.ErrOptimisticConflict, "injected")
	}
	return l.Ledger.Save(ctx, next, expectedVersion)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.ReservationEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, events ...domain.ReservationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return p.err
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type stubLock struct {
	acquired bool
	err      error
	released int
}

func (l *stubLock) TryAcquire(context.Context) (func(), bool, error) {
	return func() { l.released++ }, l.acquired, l.err
}

// brokenLedger 在 broken 置位后对指定资源的 Save 返回不可重试的错误
type brokenLedger struct {
	domain.Ledger
	mu       sync.Mutex
	resource string
	broken   bool
}

func (l *brokenLedger) breakNow() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.broken = true
}

func (l *brokenLedger) Save(ctx context.Context, next domain.LedgerEntry, expectedVersion int64) error {
	l.mu.Lock()
	fail := l.broken && next.ResourceID == l.resource
	l.mu.Unlock()
	if fail {
		return errors.New("ledger row locked by maintenance")
	}
	return l.Ledger.Save(ctx, next, expectedVersion)
}

type recordingListener struct {
	mu     sync.Mutex
	orders []string
}

func (l *recordingListener) OnReleased(_ context.Context, orderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orders = append(l.orders, orderID)
}

func (l *recordingListener) notified() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.orders...)
}
