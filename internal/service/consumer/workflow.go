package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
	"github.com/vladislavdragonenkov/commerce-core/internal/messaging/kafka"
)

// PaymentProcessor — операции платёжного сервиса, вызываемые из событий.
type PaymentProcessor interface {
	HandlePaymentRequested(ctx context.Context, evt kafka.PaymentRequestedEvent) error
	HandleCouponApplied(ctx context.Context, evt kafka.CouponAppliedEvent) error
}

// OrderResolver применяет исход платежа к заказу.
type OrderResolver interface {
	OnPaymentResult(ctx context.Context, orderID int64, status domain.PaymentStatus, reason string, refundPoints int64) error
}

// WorkflowHandler связывает событийный конвейер заказа и платежа:
// payment-events и coupon-events обрабатываются одной consumer group,
// поэтому одной таблицы event_handled достаточно.
type WorkflowHandler struct {
	payments PaymentProcessor
	orders   OrderResolver
	pipeline *Pipeline
	logger   *log.Entry
}

// NewWorkflowHandler создаёт обработчик workflow-событий.
func NewWorkflowHandler(payments PaymentProcessor, orders OrderResolver, pipeline *Pipeline, logger *log.Entry) *WorkflowHandler {
	if logger == nil {
		logger = log.WithField("component", "workflow-consumer")
	}
	return &WorkflowHandler{
		payments: payments,
		orders:   orders,
		pipeline: pipeline,
		logger:   logger,
	}
}

// Handle — RecordHandler для kafka.Consumer.
func (h *WorkflowHandler) Handle(ctx context.Context, rec kafka.Record) error {
	return h.pipeline.Process(ctx, rec, h.apply)
}

func (h *WorkflowHandler) apply(ctx context.Context, rec kafka.Record, _ int64) error {
	switch rec.Headers[kafka.HeaderEventType] {
	case kafka.EventTypePaymentRequested:
		var evt kafka.PaymentRequestedEvent
		if err := json.Unmarshal(rec.Value, &evt); err != nil {
			return fmt.Errorf("unmarshal PaymentRequested: %w", err)
		}
		return h.payments.HandlePaymentRequested(ctx, evt)

	case kafka.EventTypePaymentCompleted:
		var evt kafka.PaymentCompletedEvent
		if err := json.Unmarshal(rec.Value, &evt); err != nil {
			return fmt.Errorf("unmarshal PaymentCompleted: %w", err)
		}
		return h.orders.OnPaymentResult(ctx, evt.OrderID, domain.PaymentStatusSuccess, "", 0)

	case kafka.EventTypePaymentFailed:
		var evt kafka.PaymentFailedEvent
		if err := json.Unmarshal(rec.Value, &evt); err != nil {
			return fmt.Errorf("unmarshal PaymentFailed: %w", err)
		}
		return h.orders.OnPaymentResult(ctx, evt.OrderID, domain.PaymentStatusFailed, evt.Reason, evt.RefundPointAmount)

	case kafka.EventTypeCouponApplied:
		var evt kafka.CouponAppliedEvent
		if err := json.Unmarshal(rec.Value, &evt); err != nil {
			return fmt.Errorf("unmarshal CouponApplied: %w", err)
		}
		return h.payments.HandleCouponApplied(ctx, evt)

	default:
		return nil
	}
}
