// Package memory keeps ledgers and reservations in process memory.
// Transactions are serialized and roll back to a snapshot on error.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"backoffice/internal/service/reservation/domain"

	"github.com/pkg/errors"
)

type txKey struct{}

type ledgerKey struct {
	kind domain.ResourceKind
	id   string
}

type Store struct {
	txMu sync.Mutex // 串行化事务与事务外写入

	mu           sync.RWMutex
	ledgers      map[ledgerKey]domain.LedgerEntry
	reservations map[string]domain.Reservation
}

func NewStore() *Store {
	return &Store{
		ledgers:      make(map[ledgerKey]domain.LedgerEntry),
		reservations: make(map[string]domain.Reservation),
	}
}

// Seed 直接写入一条账本记录
func (s *Store) Seed(entry domain.LedgerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.Version == 0 {
		entry.Version = 1
	}
	if entry.Capacity != nil {
		c := *entry.Capacity
		entry.Capacity = &c
	}
	s.ledgers[ledgerKey{entry.Kind, entry.ResourceID}] = entry
}

// Do 实现 domain.TxManager
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	ledgers := make(map[ledgerKey]domain.LedgerEntry, len(s.ledgers))
	for k, v := range s.ledgers {
		ledgers[k] = v
	}
	reservations := make(map[string]domain.Reservation, len(s.reservations))
	for k, v := range s.reservations {
		reservations[k] = v
	}
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.ledgers, s.reservations = ledgers, reservations
		s.mu.Unlock()
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

func (s *Store) write(ctx context.Context, fn func()) {
	if !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Ledger 返回某类资源的账本视图
func (s *Store) Ledger(kind domain.ResourceKind) domain.Ledger {
	return &ledger{store: s, kind: kind}
}

type ledger struct {
	store *Store
	kind  domain.ResourceKind
}

func (l *ledger) Kind() domain.ResourceKind { return l.kind }

func (l *ledger) Load(ctx context.Context, resourceID string) (domain.LedgerEntry, error) {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()
	e, ok := l.store.ledgers[ledgerKey{l.kind, resourceID}]
	if !ok {
		return domain.LedgerEntry{}, errors.Wrapf(domain.ErrResourceNotFound, "%s %s", l.kind, resourceID)
	}
	if e.Capacity != nil {
		c := *e.Capacity
		e.Capacity = &c
	}
	return e, nil
}

func (l *ledger) Save(ctx context.Context, next domain.LedgerEntry, expectedVersion int64) error {
	var err error
	l.store.write(ctx, func() {
		key := ledgerKey{l.kind, next.ResourceID}
		cur, ok := l.store.ledgers[key]
		if !ok {
			err = errors.Wrapf(domain.ErrResourceNotFound, "%s %s", l.kind, next.ResourceID)
			return
		}
		if cur.Version != expectedVersion {
			err = errors.Wrapf(domain.ErrOptimisticConflict, "%s %s version %d != %d", l.kind, next.ResourceID, cur.Version, expectedVersion)
			return
		}
		l.store.ledgers[key] = next
	})
	return err
}

func (s *Store) Create(ctx context.Context, r domain.Reservation) error {
	var err error
	s.write(ctx, func() {
		if _, exists := s.reservations[r.ID]; exists {
			err = errors.Errorf("reservation %s already exists", r.ID)
			return
		}
		s.reservations[r.ID] = r
	})
	return err
}

func (s *Store) FindByID(ctx context.Context, id string) (domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return domain.Reservation{}, errors.Wrap(domain.ErrReservationNotFound, id)
	}
	return r, nil
}

func (s *Store) FindByOrder(ctx context.Context, orderID string, statuses ...domain.Status) ([]domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Reservation
	for _, r := range s.reservations {
		if r.OrderID == orderID && matches(r.Status, statuses) {
			out = append(out, r)
		}
	}
	sortReservations(out)
	return out, nil
}

func (s *Store) CountActiveByOrder(ctx context.Context, orderID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, r := range s.reservations {
		if r.OrderID == orderID && r.Status == domain.StatusReserved {
			n++
		}
	}
	return n, nil
}

func (s *Store) FindDue(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Reservation
	for _, r := range s.reservations {
		if r.IsDue(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(*out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(*out[j].ExpiresAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, r domain.Reservation, expectedVersion int64) error {
	var err error
	s.write(ctx, func() {
		cur, ok := s.reservations[r.ID]
		if !ok {
			err = errors.Wrap(domain.ErrReservationNotFound, r.ID)
			return
		}
		if cur.Version != expectedVersion {
			err = errors.Wrapf(domain.ErrOptimisticConflict, "reservation %s version %d != %d", r.ID, cur.Version, expectedVersion)
			return
		}
		s.reservations[r.ID] = r
	})
	return err
}

func (s *Store) PurgeTerminal(ctx context.Context, before time.Time, limit int) (int64, error) {
	var n int64
	s.write(ctx, func() {
		for id, r := range s.reservations {
			if limit > 0 && n >= int64(limit) {
				return
			}
			if matches(r.Status, domain.TerminalStatuses) && r.UpdatedAt.Before(before) {
				delete(s.reservations, id)
				n++
			}
		}
	})
	return n, nil
}

func matches(s domain.Status, statuses []domain.Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, st := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

func sortReservations(rs []domain.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].ReservedAt.Equal(rs[j].ReservedAt) {
			return rs[i].ReservedAt.Before(rs[j].ReservedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}

var (
	_ domain.ReservationRepository = (*Store)(nil)
	_ domain.TxManager             = (*Store)(nil)
)
