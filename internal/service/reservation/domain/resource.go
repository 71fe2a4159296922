package domain

import "github.com/pkg/errors"

// ResourceKind 区分受保护的计数器类型
type ResourceKind string

const (
	KindStock   ResourceKind = "STOCK"   // 商品规格库存
	KindVoucher ResourceKind = "VOUCHER" // 优惠券使用名额
)

func ParseResourceKind(s string) (ResourceKind, error) {
	switch k := ResourceKind(s); k {
	case KindStock, KindVoucher:
		return k, nil
	}
	return "", errors.Wrapf(ErrUnknownResourceKind, "%q", s)
}
