package infrastructure

import (
	"context"
	"time"

	"backoffice/internal/pkg/database"
	"backoffice/internal/service/reservation/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// GormStockLedger 是商品规格库存的账本实现
type GormStockLedger struct {
	db *gorm.DB
}

func NewGormStockLedger(db *gorm.DB) *GormStockLedger {
	return &GormStockLedger{db: db}
}

func (l *GormStockLedger) Kind() domain.ResourceKind { return domain.KindStock }

func (l *GormStockLedger) Load(ctx context.Context, resourceID string) (domain.LedgerEntry, error) {
	var m ProductVariationStockModel
	err := database.Conn(ctx, l.db).Where("id = ?", resourceID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.LedgerEntry{}, errors.Wrapf(domain.ErrResourceNotFound, "stock %s", resourceID)
		}
		return domain.LedgerEntry{}, errors.Wrap(err, "load stock ledger")
	}
	return stockToDomain(&m), nil
}

// Save 以版本号为条件整体写回计数器
func (l *GormStockLedger) Save(ctx context.Context, next domain.LedgerEntry, expectedVersion int64) error {
	if next.Capacity == nil {
		return errors.New("stock ledger requires a bounded capacity")
	}
	res := database.Conn(ctx, l.db).Model(&ProductVariationStockModel{}).
		Where("id = ? AND version = ?", next.ResourceID, expectedVersion).
		Updates(map[string]interface{}{
			"total_quantity":    *next.Capacity,
			"sold_quantity":     next.Committed,
			"reserved_quantity": next.Reserved,
			"version":           next.Version,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "save stock ledger")
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(domain.ErrOptimisticConflict, "stock %s at version %d", next.ResourceID, expectedVersion)
	}
	return nil
}

// GormVoucherLedger 是优惠券使用名额的账本实现
type GormVoucherLedger struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormVoucherLedger(db *gorm.DB, now func() time.Time) *GormVoucherLedger {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &GormVoucherLedger{db: db, now: now}
}

func (l *GormVoucherLedger) Kind() domain.ResourceKind { return domain.KindVoucher }

func (l *GormVoucherLedger) Load(ctx context.Context, resourceID string) (domain.LedgerEntry, error) {
	var m VoucherUsageModel
	err := database.Conn(ctx, l.db).Where("code = ?", resourceID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.LedgerEntry{}, errors.Wrapf(domain.ErrResourceNotFound, "voucher %s", resourceID)
		}
		return domain.LedgerEntry{}, errors.Wrap(err, "load voucher ledger")
	}
	return voucherToDomain(&m, l.now()), nil
}

// Save 不修改启用状态与有效期，这两项由运营维护
func (l *GormVoucherLedger) Save(ctx context.Context, next domain.LedgerEntry, expectedVersion int64) error {
	res := database.Conn(ctx, l.db).Model(&VoucherUsageModel{}).
		Where("code = ? AND version = ?", next.ResourceID, expectedVersion).
		Updates(map[string]interface{}{
			"usage_limit":    next.Capacity,
			"used_count":     next.Committed,
			"reserved_count": next.Reserved,
			"version":        next.Version,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "save voucher ledger")
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(domain.ErrOptimisticConflict, "voucher %s at version %d", next.ResourceID, expectedVersion)
	}
	return nil
}

var (
	_ domain.Ledger = (*GormStockLedger)(nil)
	_ domain.Ledger = (*GormVoucherLedger)(nil)
)
