package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
// Переходы: PENDING → COMPLETED (успешная оплата), PENDING → CANCELED
// (провал оплаты либо отмена пользователем). Терминальные статусы липкие.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
)

// OrderItem — снапшот позиции заказа в момент оформления. Неизменяем.
type OrderItem struct {
	ProductID int64
	Name      string
	Price     int64
	Quantity  int64
}

// Subtotal возвращает price * quantity для позиции.
func (i OrderItem) Subtotal() int64 {
	return i.Price * i.Quantity
}

// Order — агрегат заказа.
type Order struct {
	ID             int64
	UserID         int64
	Items          []OrderItem
	CouponCode     string
	DiscountAmount int64
	TotalAmount    int64
	UsedPoint      int64
	Status         OrderStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewOrder создаёт заказ в статусе PENDING; скидка применяется позже через событие.
func NewOrder(userID int64, items []OrderItem, usedPoint int64, now time.Time) (Order, error) {
	if len(items) == 0 {
		return Order{}, ErrOrderItemsRequired
	}
	var subtotal int64
	for _, item := range items {
		if item.Quantity <= 0 {
			return Order{}, ErrQuantityInvalid
		}
		if item.Price < 0 {
			return Order{}, ErrPriceNegative
		}
		subtotal += item.Subtotal()
	}

	return Order{
		UserID:      userID,
		Items:       items,
		TotalAmount: subtotal,
		UsedPoint:   usedPoint,
		Status:      OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Subtotal возвращает сумму позиций без учёта скидки.
func (o *Order) Subtotal() int64 {
	var sum int64
	for _, item := range o.Items {
		sum += item.Subtotal()
	}
	return sum
}

// TotalQuantity возвращает суммарное количество единиц товара в заказе.
func (o *Order) TotalQuantity() int64 {
	var qty int64
	for _, item := range o.Items {
		qty += item.Quantity
	}
	return qty
}

// IsTerminal сообщает, достиг ли заказ конечного статуса.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusCompleted || o.Status == OrderStatusCanceled
}

// ApplyDiscount применяет скидку купона; допускается только в PENDING.
func (o *Order) ApplyDiscount(couponCode string, amount int64, now time.Time) error {
	if o.Status != OrderStatusPending {
		return ErrInvalidState
	}
	if amount < 0 {
		return ErrAmountNegative
	}
	subtotal := o.Subtotal()
	if amount > subtotal {
		amount = subtotal
	}
	o.CouponCode = couponCode
	o.DiscountAmount = amount
	o.TotalAmount = subtotal - amount
	o.UpdatedAt = now
	return nil
}

// Complete переводит заказ в COMPLETED после подтверждённой оплаты.
func (o *Order) Complete(now time.Time) error {
	if o.Status != OrderStatusPending {
		return ErrInvalidState
	}
	o.Status = OrderStatusCompleted
	o.UpdatedAt = now
	return nil
}

// Cancel переводит заказ в CANCELED.
func (o *Order) Cancel(now time.Time) error {
	if o.Status != OrderStatusPending {
		return ErrInvalidState
	}
	o.Status = OrderStatusCanceled
	o.UpdatedAt = now
	return nil
}
