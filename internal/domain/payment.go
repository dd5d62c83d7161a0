package domain

import "time"

// PaymentStatus описывает состояние платежа. Терминальные статусы липкие.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// Payment — платёж, связанный с заказом.
// PaidAmount = TotalAmount − UsedPoint − скидка купона.
type Payment struct {
	ID             int64
	OrderID        int64
	UserID         int64
	TotalAmount    int64
	UsedPoint      int64
	PaidAmount     int64
	CardType       string
	CardNo         string
	Status         PaymentStatus
	TransactionKey string
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewPayment создаёт платёж в статусе PENDING.
func NewPayment(orderID, userID, totalAmount, usedPoint, discount int64, cardType, cardNo string, now time.Time) (Payment, error) {
	if totalAmount < 0 || usedPoint < 0 || discount < 0 {
		return Payment{}, ErrAmountNegative
	}
	paid := totalAmount - usedPoint - discount
	if paid < 0 {
		paid = 0
	}
	return Payment{
		OrderID:     orderID,
		UserID:      userID,
		TotalAmount: totalAmount,
		UsedPoint:   usedPoint,
		PaidAmount:  paid,
		CardType:    cardType,
		CardNo:      cardNo,
		Status:      PaymentStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// RequiresCard сообщает, нужен ли вызов платёжного шлюза:
// нулевой PaidAmount полностью покрыт поинтами и купоном.
func (p *Payment) RequiresCard() bool {
	return p.PaidAmount > 0
}

// IsTerminal сообщает, достиг ли платёж конечного статуса.
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusSuccess || p.Status == PaymentStatusFailed
}

// MarkSuccess переводит платёж в SUCCESS.
func (p *Payment) MarkSuccess(transactionKey string, now time.Time) error {
	if p.Status != PaymentStatusPending {
		return ErrInvalidState
	}
	p.Status = PaymentStatusSuccess
	p.TransactionKey = transactionKey
	p.UpdatedAt = now
	return nil
}

// MarkFailed переводит платёж в FAILED с обязательной причиной.
func (p *Payment) MarkFailed(reason string, now time.Time) error {
	if p.Status != PaymentStatusPending {
		return ErrInvalidState
	}
	if reason == "" {
		return ErrReasonRequired
	}
	p.Status = PaymentStatusFailed
	p.FailureReason = reason
	p.UpdatedAt = now
	return nil
}

// RecalculatePaidAmount пересчитывает PaidAmount после применения купона.
// Допускается только пока платёж в PENDING.
func (p *Payment) RecalculatePaidAmount(newTotal, discount int64, now time.Time) error {
	if p.Status != PaymentStatusPending {
		return ErrInvalidState
	}
	if newTotal < 0 || discount < 0 {
		return ErrAmountNegative
	}
	paid := newTotal - p.UsedPoint
	if paid < 0 {
		paid = 0
	}
	p.TotalAmount = newTotal
	p.PaidAmount = paid
	p.UpdatedAt = now
	return nil
}
