package application

import (
	"backoffice/internal/service/reservation/domain"

	"github.com/pkg/errors"
)

// ReserveRequest 是预占用例的输入
type ReserveRequest struct {
	OrderID     string              `json:"orderId"`
	Kind        domain.ResourceKind `json:"kind"`
	ResourceID  string              `json:"resourceId"`
	RequesterID string              `json:"requesterId"`
	Quantity    int64               `json:"quantity"`
}

func (r ReserveRequest) Validate() error {
	if r.OrderID == "" || r.ResourceID == "" {
		return errors.Wrap(domain.ErrInvalidRequest, "orderId and resourceId are required")
	}
	if r.Quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	return nil
}

// SweepResult 汇总一次过期清理
type SweepResult struct {
	Skipped bool `json:"skipped"`
	Expired int  `json:"expired"`
	Failed  int  `json:"failed"`
	Orders  int  `json:"orders"`
}
