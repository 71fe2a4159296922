package infrastructure

import (
	"time"

	"backoffice/internal/service/reservation/domain"
)

func stockToDomain(m *ProductVariationStockModel) domain.LedgerEntry {
	total := m.TotalQuantity
	return domain.LedgerEntry{
		Kind:       domain.KindStock,
		ResourceID: m.ID,
		Capacity:   &total,
		Committed:  m.SoldQuantity,
		Reserved:   m.ReservedQuantity,
		Closed:     !m.Active,
		Version:    m.Version,
	}
}

// voucherToDomain 计算券在 now 时刻是否可用：停用或不在有效期内视为关闭
func voucherToDomain(m *VoucherUsageModel, now time.Time) domain.LedgerEntry {
	closed := !m.Active ||
		(m.ValidFrom != nil && now.Before(*m.ValidFrom)) ||
		(m.ValidTo != nil && now.After(*m.ValidTo))
	var limit *int64
	if m.UsageLimit != nil {
		l := *m.UsageLimit
		limit = &l
	}
	return domain.LedgerEntry{
		Kind:       domain.KindVoucher,
		ResourceID: m.Code,
		Capacity:   limit,
		Committed:  m.UsedCount,
		Reserved:   m.ReservedCount,
		Closed:     closed,
		Version:    m.Version,
	}
}

func reservationToDomain(m *ReservationModel) domain.Reservation {
	r := domain.Reservation{
		ID:          m.ID,
		OrderID:     m.OrderID,
		Kind:        domain.ResourceKind(m.ResourceKind),
		ResourceID:  m.ResourceID,
		RequesterID: m.RequesterID,
		Quantity:    m.Quantity,
		Status:      domain.Status(m.Status),
		ReservedAt:  m.ReservedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
		Version:     m.Version,
	}
	if m.ExpiresAt != nil {
		t := m.ExpiresAt.UTC()
		r.ExpiresAt = &t
	}
	return r
}

func reservationFromDomain(r domain.Reservation) *ReservationModel {
	return &ReservationModel{
		ID:           r.ID,
		OrderID:      r.OrderID,
		ResourceKind: string(r.Kind),
		ResourceID:   r.ResourceID,
		RequesterID:  r.RequesterID,
		Quantity:     r.Quantity,
		Status:       string(r.Status),
		ReservedAt:   r.ReservedAt,
		ExpiresAt:    r.ExpiresAt,
		CreatedAt:    r.ReservedAt,
		UpdatedAt:    r.UpdatedAt,
		Version:      r.Version,
	}
}
