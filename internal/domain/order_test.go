package domain

import (
	"errors"
	"testing"
	"time"
)

func testItems() []OrderItem {
	return []OrderItem{
		{ProductID: 1, Name: "sneakers", Price: 1000, Quantity: 2},
		{ProductID: 2, Name: "cap", Price: 500, Quantity: 1},
	}
}

func TestNewOrder(t *testing.T) {
	now := time.Now().UTC()

	order, err := NewOrder(1, testItems(), 300, now)
	if err != nil {
		t.Fatalf("NewOrder: %v", err)
	}
	if order.Status != OrderStatusPending {
		t.Errorf("expected PENDING, got %s", order.Status)
	}
	if order.TotalAmount != 2500 {
		t.Errorf("expected total 2500, got %d", order.TotalAmount)
	}
	if order.Subtotal() != 2500 {
		t.Errorf("expected subtotal 2500, got %d", order.Subtotal())
	}
	if order.TotalQuantity() != 3 {
		t.Errorf("expected quantity 3, got %d", order.TotalQuantity())
	}
}

func TestNewOrderValidation(t *testing.T) {
	now := time.Now().UTC()

	if _, err := NewOrder(1, nil, 0, now); !errors.Is(err, ErrOrderItemsRequired) {
		t.Errorf("expected ErrOrderItemsRequired, got %v", err)
	}
	if _, err := NewOrder(1, []OrderItem{{ProductID: 1, Price: 100, Quantity: 0}}, 0, now); !errors.Is(err, ErrQuantityInvalid) {
		t.Errorf("expected ErrQuantityInvalid, got %v", err)
	}
	if _, err := NewOrder(1, []OrderItem{{ProductID: 1, Price: -1, Quantity: 1}}, 0, now); !errors.Is(err, ErrPriceNegative) {
		t.Errorf("expected ErrPriceNegative, got %v", err)
	}
}

func TestOrderTerminalStatusesAreSticky(t *testing.T) {
	now := time.Now().UTC()

	order, err := NewOrder(1, testItems(), 0, now)
	if err != nil {
		t.Fatalf("NewOrder: %v", err)
	}
	if err := order.Complete(now); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := order.Cancel(now); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Cancel on COMPLETED: expected ErrInvalidState, got %v", err)
	}
	if err := order.Complete(now); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Complete twice: expected ErrInvalidState, got %v", err)
	}
	if !order.IsTerminal() {
		t.Error("COMPLETED order must be terminal")
	}
}

func TestOrderApplyDiscount(t *testing.T) {
	now := time.Now().UTC()

	order, err := NewOrder(1, testItems(), 0, now)
	if err != nil {
		t.Fatalf("NewOrder: %v", err)
	}

	if err := order.ApplyDiscount("WELCOME", 400, now); err != nil {
		t.Fatalf("ApplyDiscount: %v", err)
	}
	if order.DiscountAmount != 400 || order.TotalAmount != 2100 {
		t.Errorf("expected discount=400 total=2100, got %d/%d", order.DiscountAmount, order.TotalAmount)
	}

	// Скидка больше суммы заказа усекается до неё.
	if err := order.ApplyDiscount("BIG", 99999, now); err != nil {
		t.Fatalf("ApplyDiscount: %v", err)
	}
	if order.TotalAmount != 0 {
		t.Errorf("expected total 0, got %d", order.TotalAmount)
	}

	if err := order.Cancel(now); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := order.ApplyDiscount("LATE", 100, now); !errors.Is(err, ErrInvalidState) {
		t.Errorf("discount on CANCELED: expected ErrInvalidState, got %v", err)
	}
}

func TestPaymentLifecycle(t *testing.T) {
	now := time.Now().UTC()

	payment, err := NewPayment(10, 1, 2500, 500, 0, "CREDIT", "1234-5678-9012-3456", now)
	if err != nil {
		t.Fatalf("NewPayment: %v", err)
	}
	if payment.PaidAmount != 2000 {
		t.Errorf("expected paid 2000, got %d", payment.PaidAmount)
	}
	if !payment.RequiresCard() {
		t.Error("payment with positive paid amount requires card")
	}

	if err := payment.MarkSuccess("tx-1", now); err != nil {
		t.Fatalf("MarkSuccess: %v", err)
	}
	if err := payment.MarkFailed("late", now); !errors.Is(err, ErrInvalidState) {
		t.Errorf("MarkFailed on SUCCESS: expected ErrInvalidState, got %v", err)
	}
}

func TestPaymentFullyCoveredByPoints(t *testing.T) {
	now := time.Now().UTC()

	payment, err := NewPayment(10, 1, 1000, 1000, 0, "", "", now)
	if err != nil {
		t.Fatalf("NewPayment: %v", err)
	}
	if payment.PaidAmount != 0 {
		t.Errorf("expected paid 0, got %d", payment.PaidAmount)
	}
	if payment.RequiresCard() {
		t.Error("zero paid amount must not require card")
	}
}

func TestPaymentMarkFailedRequiresReason(t *testing.T) {
	now := time.Now().UTC()

	payment, err := NewPayment(10, 1, 1000, 0, 0, "CREDIT", "1111", now)
	if err != nil {
		t.Fatalf("NewPayment: %v", err)
	}
	if err := payment.MarkFailed("", now); !errors.Is(err, ErrReasonRequired) {
		t.Errorf("expected ErrReasonRequired, got %v", err)
	}
}

func TestPaymentRecalculatePaidAmount(t *testing.T) {
	now := time.Now().UTC()

	payment, err := NewPayment(10, 1, 2500, 500, 0, "CREDIT", "1111", now)
	if err != nil {
		t.Fatalf("NewPayment: %v", err)
	}

	// Купон снизил сумму заказа до 2100.
	if err := payment.RecalculatePaidAmount(2100, 400, now); err != nil {
		t.Fatalf("RecalculatePaidAmount: %v", err)
	}
	if payment.PaidAmount != 1600 {
		t.Errorf("expected paid 1600, got %d", payment.PaidAmount)
	}

	if err := payment.MarkSuccess("tx", now); err != nil {
		t.Fatalf("MarkSuccess: %v", err)
	}
	if err := payment.RecalculatePaidAmount(100, 0, now); !errors.Is(err, ErrInvalidState) {
		t.Errorf("recalculate on SUCCESS: expected ErrInvalidState, got %v", err)
	}
}
