package infrastructure

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"backoffice/internal/pkg/database"
	"backoffice/internal/pkg/retry"
	"backoffice/internal/service/reservation/application"
	"backoffice/internal/service/reservation/domain"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return t0 },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(Models()...))
	return db
}

func seedStock(t *testing.T, db *gorm.DB, id string, total int64) {
	t.Helper()
	require.NoError(t, db.Create(&ProductVariationStockModel{ID: id, SKU: id, TotalQuantity: total, Active: true, Version: 1}).Error)
}

func TestStockLedgerCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedStock(t, db, "var-1", 10)
	l := NewGormStockLedger(db)

	entry, err := l.Load(ctx, "var-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), entry.Available())

	next, err := entry.Reserve(4)
	require.NoError(t, err)
	require.NoError(t, l.Save(ctx, next, entry.Version))

	stale, err := entry.Reserve(1)
	require.NoError(t, err)
	err = l.Save(ctx, stale, entry.Version)
	assert.True(t, errors.Is(err, domain.ErrOptimisticConflict))

	reloaded, err := l.Load(ctx, "var-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), reloaded.Reserved)
	assert.Equal(t, int64(2), reloaded.Version)

	_, err = l.Load(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrResourceNotFound))
}

func TestInactiveStockIsClosed(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedStock(t, db, "var-1", 10)
	require.NoError(t, db.Model(&ProductVariationStockModel{}).Where("id = ?", "var-1").Update("active", false).Error)

	entry, err := NewGormStockLedger(db).Load(ctx, "var-1")
	require.NoError(t, err)
	_, err = entry.Reserve(1)
	assert.True(t, errors.Is(err, domain.ErrInsufficientCapacity))
}

func TestVoucherLedgerValidityWindow(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	from, to := t0.Add(-time.Hour), t0.Add(time.Hour)
	limit := int64(2)
	require.NoError(t, db.Create(&VoucherUsageModel{Code: "SPRING", UsageLimit: &limit, Active: true, ValidFrom: &from, ValidTo: &to, Version: 1}).Error)
	require.NoError(t, db.Create(&VoucherUsageModel{Code: "FREE", Active: true, Version: 1}).Error)

	now := t0
	l := NewGormVoucherLedger(db, func() time.Time { return now })

	entry, err := l.Load(ctx, "SPRING")
	require.NoError(t, err)
	assert.False(t, entry.Closed)
	assert.Equal(t, int64(2), entry.Available())

	next, err := entry.Reserve(1)
	require.NoError(t, err)
	require.NoError(t, l.Save(ctx, next, entry.Version))

	now = t0.Add(2 * time.Hour)
	expired, err := l.Load(ctx, "SPRING")
	require.NoError(t, err)
	assert.True(t, expired.Closed)
	assert.Equal(t, int64(1), expired.Reserved)

	free, err := l.Load(ctx, "FREE")
	require.NoError(t, err)
	assert.True(t, free.Unbounded())
	next, err = free.Reserve(100)
	require.NoError(t, err)
	require.NoError(t, l.Save(ctx, next, free.Version))
}

func TestReservationRepository(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewGormReservationRepository(db)

	due, _ := domain.NewReservation("r-due", "o-1", domain.KindStock, "var-1", "u-1", 1, t0.Add(-time.Hour), 15*time.Minute)
	fresh, _ := domain.NewReservation("r-fresh", "o-1", domain.KindVoucher, "SPRING", "u-1", 1, t0, 15*time.Minute)
	pinned, _ := domain.NewReservation("r-pinned", "o-2", domain.KindStock, "var-1", "u-2", 1, t0.Add(-time.Hour), 15*time.Minute)
	old, _ := domain.NewReservation("r-old", "o-3", domain.KindStock, "var-1", "u-3", 1, t0.Add(-72*time.Hour), 15*time.Minute)
	for _, r := range []domain.Reservation{due, fresh, pinned, old} {
		require.NoError(t, repo.Create(ctx, r))
	}

	p, err := pinned.Pin(t0.Add(-50 * time.Minute))
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, p, pinned.Version))
	err = repo.Update(ctx, p, pinned.Version)
	assert.True(t, errors.Is(err, domain.ErrOptimisticConflict))

	released, err := old.Release(t0.Add(-71 * time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, released, old.Version))

	got, err := repo.FindByID(ctx, "r-pinned")
	require.NoError(t, err)
	assert.Nil(t, got.ExpiresAt)
	assert.Equal(t, int64(2), got.Version)

	_, err = repo.FindByID(ctx, "nope")
	assert.True(t, errors.Is(err, domain.ErrReservationNotFound))

	rows, err := repo.FindByOrder(ctx, "o-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "r-due", rows[0].ID)

	rows, err = repo.FindByOrder(ctx, "o-3", domain.StatusReleased)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	n, err := repo.CountActiveByOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	dueRows, err := repo.FindDue(ctx, t0, 10)
	require.NoError(t, err)
	require.Len(t, dueRows, 1)
	assert.Equal(t, "r-due", dueRows[0].ID)

	purged, err := repo.PurgeTerminal(ctx, t0.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	_, err = repo.FindByID(ctx, "r-old")
	assert.True(t, errors.Is(err, domain.ErrReservationNotFound))
}

func TestTxManagerRollsBackLedgerAndRow(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedStock(t, db, "var-1", 10)
	ledger := NewGormStockLedger(db)
	repo := NewGormReservationRepository(db)
	boom := errors.New("boom")

	err := database.NewTxManager(db).Do(ctx, func(ctx context.Context) error {
		entry, err := ledger.Load(ctx, "var-1")
		require.NoError(t, err)
		next, _ := entry.Reserve(3)
		require.NoError(t, ledger.Save(ctx, next, entry.Version))
		r, _ := domain.NewReservation("r-1", "o-1", domain.KindStock, "var-1", "u", 3, t0, time.Minute)
		require.NoError(t, repo.Create(ctx, r))
		return boom
	})
	assert.Same(t, boom, err)

	entry, err := ledger.Load(ctx, "var-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), entry.Reserved)
	_, err = repo.FindByID(ctx, "r-1")
	assert.True(t, errors.Is(err, domain.ErrReservationNotFound))
}

func TestManagerScenarioOnGorm(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedStock(t, db, "var-1", 10)

	now := t0
	clock := func() time.Time { return now }
	repo := NewGormReservationRepository(db)
	m := application.NewManager(repo, database.NewTxManager(db),
		[]domain.Ledger{NewGormStockLedger(db), NewGormVoucherLedger(db, clock)},
		application.WithClock(clock),
		application.WithRetryPolicy(retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}),
	)
	reserve := func(order string, qty int64) error {
		_, err := m.Reserve(ctx, application.ReserveRequest{OrderID: order, Kind: domain.KindStock, ResourceID: "var-1", Quantity: qty})
		return err
	}

	require.NoError(t, reserve("A", 6))
	assert.True(t, errors.Is(reserve("B", 5), domain.ErrInsufficientCapacity))

	confirmed, err := m.Confirm(ctx, "A")
	require.NoError(t, err)
	require.Len(t, confirmed, 1)

	entry, err := m.Availability(ctx, domain.KindStock, "var-1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), entry.Committed)
	assert.Equal(t, int64(0), entry.Reserved)

	require.NoError(t, reserve("B", 4))

	rec := application.NewReconciler(m, repo, nil, application.ReconcilerOptions{BatchSize: 10})
	now = now.Add(time.Hour)
	res, err := rec.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)

	entry, err = m.Availability(ctx, domain.KindStock, "var-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), entry.Available())
}
