package infrastructure

import "time"

// ProductVariationStockModel 对应 product_variation_stock 表
type ProductVariationStockModel struct {
	ID               string `gorm:"primaryKey;size:64"`
	SKU              string `gorm:"size:64;index"`
	TotalQuantity    int64  `gorm:"not null;default:0"`
	SoldQuantity     int64  `gorm:"not null;default:0"`
	ReservedQuantity int64  `gorm:"not null;default:0"`
	Active           bool   `gorm:"not null;default:true"`
	Version          int64  `gorm:"not null;default:1"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (ProductVariationStockModel) TableName() string {
	return "product_variation_stock"
}

// VoucherUsageModel 对应 voucher_usage 表；UsageLimit 为 NULL 表示不限次数
type VoucherUsageModel struct {
	Code          string `gorm:"primaryKey;size:64"`
	UsageLimit    *int64
	UsedCount     int64 `gorm:"not null;default:0"`
	ReservedCount int64 `gorm:"not null;default:0"`
	Active        bool  `gorm:"not null;default:true"`
	ValidFrom     *time.Time
	ValidTo       *time.Time
	Version       int64 `gorm:"not null;default:1"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (VoucherUsageModel) TableName() string {
	return "voucher_usage"
}

// ReservationModel 对应 resource_reservations 表
type ReservationModel struct {
	ID           string     `gorm:"primaryKey;size:36"`
	OrderID      string     `gorm:"size:64;not null;index:idx_order_status,priority:1"`
	ResourceKind string     `gorm:"size:16;not null"`
	ResourceID   string     `gorm:"size:64;not null"`
	RequesterID  string     `gorm:"size:64"`
	Quantity     int64      `gorm:"not null"`
	Status       string     `gorm:"size:16;not null;index:idx_order_status,priority:2;index:idx_status_expires,priority:1;index:idx_status_updated,priority:1"`
	ReservedAt   time.Time  `gorm:"not null"`
	ExpiresAt    *time.Time `gorm:"index:idx_status_expires,priority:2"`
	CreatedAt    time.Time
	UpdatedAt    time.Time `gorm:"index:idx_status_updated,priority:2"`
	Version      int64     `gorm:"not null;default:1"`
}

func (ReservationModel) TableName() string {
	return "resource_reservations"
}

// Models 返回需要自动迁移的全部模型
func Models() []interface{} {
	return []interface{}{&ProductVariationStockModel{}, &VoucherUsageModel{}, &ReservationModel{}}
}
