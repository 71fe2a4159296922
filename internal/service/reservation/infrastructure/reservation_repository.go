package infrastructure

import (
	"context"
	"time"

	"backoffice/internal/pkg/database"
	"backoffice/internal/service/reservation/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// GormReservationRepository 是 ReservationRepository 的 GORM 实现
type GormReservationRepository struct {
	db *gorm.DB
}

func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

func (r *GormReservationRepository) Create(ctx context.Context, res domain.Reservation) error {
	if err := database.Conn(ctx, r.db).Create(reservationFromDomain(res)).Error; err != nil {
		return errors.Wrap(err, "create reservation")
	}
	return nil
}

func (r *GormReservationRepository) FindByID(ctx context.Context, id string) (domain.Reservation, error) {
	var m ReservationModel
	err := database.Conn(ctx, r.db).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Reservation{}, errors.Wrap(domain.ErrReservationNotFound, id)
		}
		return domain.Reservation{}, errors.Wrap(err, "find reservation")
	}
	return reservationToDomain(&m), nil
}

func (r *GormReservationRepository) FindByOrder(ctx context.Context, orderID string, statuses ...domain.Status) ([]domain.Reservation, error) {
	q := database.Conn(ctx, r.db).Where("order_id = ?", orderID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statusStrings(statuses))
	}
	var models []ReservationModel
	if err := q.Order("reserved_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "find reservations by order")
	}
	return toDomainList(models), nil
}

func (r *GormReservationRepository) CountActiveByOrder(ctx context.Context, orderID string) (int64, error) {
	var n int64
	err := database.Conn(ctx, r.db).Model(&ReservationModel{}).
		Where("order_id = ? AND status = ?", orderID, string(domain.StatusReserved)).
		Count(&n).Error
	return n, errors.Wrap(err, "count active reservations")
}

func (r *GormReservationRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	var models []ReservationModel
	err := database.Conn(ctx, r.db).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", string(domain.StatusReserved), now.UTC()).
		Order("expires_at ASC, id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "find due reservations")
	}
	return toDomainList(models), nil
}

// Update 以版本号为条件写回状态与到期时间
func (r *GormReservationRepository) Update(ctx context.Context, res domain.Reservation, expectedVersion int64) error {
	result := database.Conn(ctx, r.db).Model(&ReservationModel{}).
		Where("id = ? AND version = ?", res.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":     string(res.Status),
			"expires_at": res.ExpiresAt,
			"updated_at": res.UpdatedAt,
			"version":    res.Version,
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "update reservation")
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(domain.ErrOptimisticConflict, "reservation %s at version %d", res.ID, expectedVersion)
	}
	return nil
}

// PurgeTerminal 先取一批 id 再按 id 删除，避免依赖 DELETE ... LIMIT 方言
func (r *GormReservationRepository) PurgeTerminal(ctx context.Context, before time.Time, limit int) (int64, error) {
	conn := database.Conn(ctx, r.db)
	var ids []string
	err := conn.Model(&ReservationModel{}).
		Where("status IN ? AND updated_at < ?", statusStrings(domain.TerminalStatuses), before.UTC()).
		Order("updated_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, errors.Wrap(err, "select purgeable reservations")
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := conn.Where("id IN ? AND status IN ?", ids, statusStrings(domain.TerminalStatuses)).Delete(&ReservationModel{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "purge reservations")
	}
	return res.RowsAffected, nil
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func toDomainList(models []ReservationModel) []domain.Reservation {
	out := make([]domain.Reservation, 0, len(models))
	for i := range models {
		out = append(out, reservationToDomain(&models[i]))
	}
	return out
}

var _ domain.ReservationRepository = (*GormReservationRepository)(nil)
