package consumer

import (
	"context"
	"testing"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
	"github.com/vladislavdragonenkov/commerce-core/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/commerce-core/internal/storage/memory"
)

type stubPayments struct {
	requested []kafka.PaymentRequestedEvent
	coupons   []kafka.CouponAppliedEvent
}

func (s *stubPayments) HandlePaymentRequested(_ context.Context, evt kafka.PaymentRequestedEvent) error {
	s.requested = append(s.requested, evt)
	return nil
}

func (s *stubPayments) HandleCouponApplied(_ context.Context, evt kafka.CouponAppliedEvent) error {
	s.coupons = append(s.coupons, evt)
	return nil
}

type resolvedPayment struct {
	orderID int64
	status  domain.PaymentStatus
	reason  string
	refund  int64
}

type stubOrders struct {
	resolved []resolvedPayment
}

func (s *stubOrders) OnPaymentResult(_ context.Context, orderID int64, status domain.PaymentStatus, reason string, refundPoints int64) error {
	s.resolved = append(s.resolved, resolvedPayment{orderID: orderID, status: status, reason: reason, refund: refundPoints})
	return nil
}

func newWorkflow(t *testing.T) (*WorkflowHandler, *stubPayments, *stubOrders) {
	t.Helper()
	store := memory.NewStore()
	payments := &stubPayments{}
	orders := &stubOrders{}
	pipe := NewPipeline(store.Repositories().Handled, nil, nil)
	return NewWorkflowHandler(payments, orders, pipe, nil), payments, orders
}

func TestWorkflowRoutesPaymentRequested(t *testing.T) {
	handler, payments, _ := newWorkflow(t)

	rec := record("evt-1", kafka.EventTypePaymentRequested, "1",
		payload(t, kafka.PaymentRequestedEvent{OrderID: 7, UserID: 1, TotalAmount: 2000}))
	rec.Topic = kafka.TopicPaymentEvents
	if err := handler.Handle(context.Background(), rec); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(payments.requested) != 1 || payments.requested[0].OrderID != 7 {
		t.Errorf("PaymentRequested must reach the payment service, got %+v", payments.requested)
	}
}

func TestWorkflowRoutesPaymentOutcomes(t *testing.T) {
	handler, _, orders := newWorkflow(t)
	ctx := context.Background()

	completed := record("evt-1", kafka.EventTypePaymentCompleted, "1",
		payload(t, kafka.PaymentCompletedEvent{OrderID: 7, PaymentID: 1, PaidAmount: 2000}))
	completed.Topic = kafka.TopicPaymentEvents
	if err := handler.Handle(ctx, completed); err != nil {
		t.Fatalf("Handle completed: %v", err)
	}

	failed := record("evt-2", kafka.EventTypePaymentFailed, "2",
		payload(t, kafka.PaymentFailedEvent{OrderID: 8, PaymentID: 2, Reason: "PG_DECLINED", RefundPointAmount: 500}))
	failed.Topic = kafka.TopicPaymentEvents
	if err := handler.Handle(ctx, failed); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if len(orders.resolved) != 2 {
		t.Fatalf("expected 2 resolutions, got %+v", orders.resolved)
	}
	if orders.resolved[0].status != domain.PaymentStatusSuccess || orders.resolved[0].orderID != 7 {
		t.Errorf("unexpected completed resolution: %+v", orders.resolved[0])
	}
	failure := orders.resolved[1]
	if failure.status != domain.PaymentStatusFailed || failure.reason != "PG_DECLINED" || failure.refund != 500 {
		t.Errorf("unexpected failed resolution: %+v", failure)
	}
}

func TestWorkflowRoutesCouponApplied(t *testing.T) {
	handler, payments, _ := newWorkflow(t)

	rec := record("evt-1", kafka.EventTypeCouponApplied, "1",
		payload(t, kafka.CouponAppliedEvent{OrderID: 7, CouponCode: "WELCOME10", DiscountAmount: 200}))
	rec.Topic = kafka.TopicCouponEvents
	if err := handler.Handle(context.Background(), rec); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(payments.coupons) != 1 || payments.coupons[0].DiscountAmount != 200 {
		t.Errorf("CouponApplied must reach the payment service, got %+v", payments.coupons)
	}
}

func TestWorkflowIgnoresUnknownEventType(t *testing.T) {
	handler, payments, orders := newWorkflow(t)

	rec := record("evt-1", "SomethingElse", "1", nil)
	if err := handler.Handle(context.Background(), rec); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(payments.requested) != 0 || len(payments.coupons) != 0 || len(orders.resolved) != 0 {
		t.Error("unknown event type must be a no-op")
	}
}
