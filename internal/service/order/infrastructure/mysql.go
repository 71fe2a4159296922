package infrastructure

import (
	"context"
	"time"

	"backoffice/internal/pkg/database"
	"backoffice/internal/service/order/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// OrderModel 对应 orders 表
type OrderModel struct {
	ID            string `gorm:"primaryKey;size:36"`
	UserID        string `gorm:"size:64;not null;index"`
	PaymentMethod string `gorm:"size:16;not null"`
	PaymentStatus string `gorm:"size:16;not null"`
	Status        string `gorm:"size:24;not null;index"`
	VoucherCode   string `gorm:"size:64"`
	Version       int64  `gorm:"not null;default:1"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Lines         []OrderLineModel `gorm:"foreignKey:OrderID;references:ID"`
}

func (OrderModel) TableName() string { return "orders" }

// OrderLineModel 对应 order_lines 表
type OrderLineModel struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	OrderID     string `gorm:"size:36;not null;index"`
	VariationID string `gorm:"size:64;not null"`
	Quantity    int64  `gorm:"not null"`
}

func (OrderLineModel) TableName() string { return "order_lines" }

// Models 返回需要自动迁移的全部模型
func Models() []interface{} {
	return []interface{}{&OrderModel{}, &OrderLineModel{}}
}

// MysqlRepository 是 OrderRepository 的 GORM 实现
type MysqlRepository struct {
	db *gorm.DB
}

func NewMysqlRepository(db *gorm.DB) *MysqlRepository {
	return &MysqlRepository{db: db}
}

func (r *MysqlRepository) Create(ctx context.Context, order *domain.Order) error {
	m := toModel(order)
	if err := database.Conn(ctx, r.db).Create(m).Error; err != nil {
		return errors.Wrap(err, "create order")
	}
	return nil
}

func (r *MysqlRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var m OrderModel
	err := database.Conn(ctx, r.db).Preload("Lines", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(domain.ErrOrderNotFound, id)
		}
		return nil, errors.Wrap(err, "find order")
	}
	return toDomain(&m), nil
}

// Update 只写可变字段；订单行创建后不再修改
func (r *MysqlRepository) Update(ctx context.Context, order *domain.Order, expectedVersion int64) error {
	res := database.Conn(ctx, r.db).Model(&OrderModel{}).
		Where("id = ? AND version = ?", order.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":         string(order.State),
			"payment_status": string(order.PaymentStatus),
			"updated_at":     order.UpdatedAt,
			"version":        order.Version,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "update order")
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(domain.ErrOrderConflict, "order %s at version %d", order.ID, expectedVersion)
	}
	return nil
}

func toModel(o *domain.Order) *OrderModel {
	m := &OrderModel{
		ID:            o.ID,
		UserID:        o.UserID,
		PaymentMethod: string(o.PaymentMethod),
		PaymentStatus: string(o.PaymentStatus),
		Status:        string(o.State),
		VoucherCode:   o.VoucherCode,
		Version:       o.Version,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	for _, l := range o.Lines {
		m.Lines = append(m.Lines, OrderLineModel{OrderID: o.ID, VariationID: l.VariationID, Quantity: l.Quantity})
	}
	return m
}

func toDomain(m *OrderModel) *domain.Order {
	o := &domain.Order{
		ID:            m.ID,
		UserID:        m.UserID,
		PaymentMethod: domain.PaymentMethod(m.PaymentMethod),
		PaymentStatus: domain.PaymentStatus(m.PaymentStatus),
		State:         domain.State(m.Status),
		VoucherCode:   m.VoucherCode,
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
		Version:       m.Version,
	}
	for _, l := range m.Lines {
		o.Lines = append(o.Lines, domain.OrderLine{VariationID: l.VariationID, Quantity: l.Quantity})
	}
	return o
}

var _ domain.OrderRepository = (*MysqlRepository)(nil)
