package domain

import "time"

// CouponType — tagged-вариант типа скидки.
type CouponType string

const (
	CouponTypeFixedAmount CouponType = "FIXED_AMOUNT"
	CouponTypePercentage  CouponType = "PERCENTAGE"
)

// Coupon — выпущенный купон. Применяется не более одного раза.
type Coupon struct {
	ID            int64
	Code          string
	UserID        int64
	Type          CouponType
	DiscountValue int64
	Used          bool
	UsedAt        *time.Time
	CreatedAt     time.Time
}

// MarkUsed фиксирует применение купона.
func (c *Coupon) MarkUsed(now time.Time) error {
	if c.Used {
		return ErrCouponAlreadyUsed
	}
	c.Used = true
	c.UsedAt = &now
	return nil
}

// DiscountFor — чистая функция расчёта скидки по варианту купона.
// Результат всегда в диапазоне [0, orderAmount].
func DiscountFor(orderAmount int64, couponType CouponType, discountValue int64) int64 {
	if orderAmount <= 0 || discountValue <= 0 {
		return 0
	}

	var discount int64
	switch couponType {
	case CouponTypeFixedAmount:
		discount = discountValue
	case CouponTypePercentage:
		pct := discountValue
		if pct > 100 {
			pct = 100
		}
		discount = orderAmount * pct / 100
	default:
		return 0
	}

	if discount > orderAmount {
		discount = orderAmount
	}
	return discount
}
