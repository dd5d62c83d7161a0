package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
	"github.com/vladislavdragonenkov/commerce-core/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/commerce-core/internal/metrics"
)

const aggregatePayment = "payment"

// FailureReasonMissingCard — причина отклонения карточного платежа без карты.
const FailureReasonMissingCard = "MISSING_CARD"

// DispatchRequest — заявка на вызов платёжного шлюза. Диспетчеризация
// выполняется только после коммита локальной транзакции, чтобы не держать
// блокировки БД поперёк сетевого вызова.
type DispatchRequest struct {
	PaymentID int64
	OrderID   int64
	UserID    int64
	CardType  string
	CardNo    string
	Amount    int64
}

// Dispatcher принимает заявки на вызов шлюза после коммита.
type Dispatcher interface {
	Enqueue(req DispatchRequest)
}

// Options задаёт опциональные зависимости сервиса платежей.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.CommerceMetrics
	Clock   func() time.Time
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) { opts.Logger = logger }
}

// WithMetrics задаёт счётчики платежей.
func WithMetrics(m *metrics.CommerceMetrics) Option {
	return func(opts *Options) { opts.Metrics = m }
}

// WithClock задаёт источник времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) { opts.Clock = clock }
}

// Service обрабатывает жизненный цикл платежа: создание по PaymentRequested,
// применение ответа шлюза, пересчёт после купона.
type Service struct {
	uow        domain.UnitOfWork
	dispatcher Dispatcher
	logger     *log.Entry
	metrics    *metrics.CommerceMetrics
	now        func() time.Time
}

// NewService создаёт сервис платежей. dispatcher может быть nil —
// тогда карточные платежи остаются PENDING до reconciliation.
func NewService(uow domain.UnitOfWork, dispatcher Dispatcher, options ...Option) *Service {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "payment-service")
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		uow:        uow,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    opts.Metrics,
		now:        clock,
	}
}

// HandlePaymentRequested создаёт PENDING-платёж. Нулевой paidAmount
// (полностью покрыт поинтами и купоном) завершается синхронно в той же
// транзакции; карточный платёж без карты отклоняется с MISSING_CARD;
// валидный карточный платёж уходит диспетчеру после коммита.
func (s *Service) HandlePaymentRequested(ctx context.Context, evt kafka.PaymentRequestedEvent) error {
	var dispatch *DispatchRequest
	var result string

	err := s.uow.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		// Повторная доставка PaymentRequested не должна плодить платежи.
		if _, err := r.Payments.GetByOrderID(ctx, evt.OrderID); err == nil {
			return nil
		} else if !errors.Is(err, domain.ErrPaymentNotFound) {
			return err
		}

		now := s.now()
		payment, err := domain.NewPayment(evt.OrderID, evt.UserID, evt.TotalAmount,
			evt.UsedPointAmount, 0, evt.CardType, evt.CardNo, now)
		if err != nil {
			return err
		}
		payment, err = r.Payments.Create(ctx, payment)
		if err != nil {
			return err
		}

		if !payment.RequiresCard() {
			if err := payment.MarkSuccess("", now); err != nil {
				return err
			}
			if err := r.Payments.Save(ctx, payment); err != nil {
				return err
			}
			result = "success"
			return enqueuePaymentEvent(ctx, r, payment.OrderID, kafka.EventTypePaymentCompleted, kafka.PaymentCompletedEvent{
				OrderID:    payment.OrderID,
				PaymentID:  payment.ID,
				PaidAmount: payment.PaidAmount,
			})
		}

		if payment.CardType == "" || payment.CardNo == "" {
			if err := payment.MarkFailed(FailureReasonMissingCard, now); err != nil {
				return err
			}
			if err := r.Payments.Save(ctx, payment); err != nil {
				return err
			}
			result = "failed"
			return enqueuePaymentEvent(ctx, r, payment.OrderID, kafka.EventTypePaymentFailed, kafka.PaymentFailedEvent{
				OrderID:           payment.OrderID,
				PaymentID:         payment.ID,
				Reason:            FailureReasonMissingCard,
				RefundPointAmount: payment.UsedPoint,
			})
		}

		dispatch = &DispatchRequest{
			PaymentID: payment.ID,
			OrderID:   payment.OrderID,
			UserID:    payment.UserID,
			CardType:  payment.CardType,
			CardNo:    payment.CardNo,
			Amount:    payment.PaidAmount,
		}
		return nil
	})
	if err != nil {
		return err
	}

	if result != "" && s.metrics != nil {
		s.metrics.RecordPayment(result)
	}
	// Вызов шлюза только после того, как транзакция стала durable.
	if dispatch != nil && s.dispatcher != nil {
		s.dispatcher.Enqueue(*dispatch)
	}
	return nil
}

// ApplyGatewayResult применяет ответ шлюза к платежу, который всё ещё PENDING.
// PENDING-ответ шлюза сохраняет transactionKey для reconciliation.
func (s *Service) ApplyGatewayResult(ctx context.Context, paymentID int64, result domain.GatewayResult) error {
	var outcome string

	err := s.uow.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		payment, err := r.Payments.GetForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.IsTerminal() {
			return nil
		}
		now := s.now()

		switch result.Status {
		case domain.PaymentStatusSuccess:
			if err := payment.MarkSuccess(result.TransactionKey, now); err != nil {
				return err
			}
			if err := r.Payments.Save(ctx, payment); err != nil {
				return err
			}
			outcome = "success"
			return enqueuePaymentEvent(ctx, r, payment.OrderID, kafka.EventTypePaymentCompleted, kafka.PaymentCompletedEvent{
				OrderID:        payment.OrderID,
				PaymentID:      payment.ID,
				TransactionKey: payment.TransactionKey,
				PaidAmount:     payment.PaidAmount,
			})

		case domain.PaymentStatusFailed:
			reason := result.ErrorCode
			if reason == "" {
				reason = result.Message
			}
			if reason == "" {
				reason = "PG_DECLINED"
			}
			if err := payment.MarkFailed(reason, now); err != nil {
				return err
			}
			if err := r.Payments.Save(ctx, payment); err != nil {
				return err
			}
			outcome = "failed"
			return enqueuePaymentEvent(ctx, r, payment.OrderID, kafka.EventTypePaymentFailed, kafka.PaymentFailedEvent{
				OrderID:           payment.OrderID,
				PaymentID:         payment.ID,
				Reason:            reason,
				RefundPointAmount: payment.UsedPoint,
			})

		default:
			if result.TransactionKey != "" && payment.TransactionKey == "" {
				payment.TransactionKey = result.TransactionKey
				payment.UpdatedAt = now
				return r.Payments.Save(ctx, payment)
			}
			return nil
		}
	})
	if err != nil {
		return err
	}

	if outcome != "" && s.metrics != nil {
		s.metrics.RecordPayment(outcome)
	}
	return nil
}

// HandleCouponApplied применяет скидку к заказу и пересчитывает
// paidAmount ещё не оплаченного платежа.
func (s *Service) HandleCouponApplied(ctx context.Context, evt kafka.CouponAppliedEvent) error {
	return s.uow.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		order, err := r.Orders.GetForUpdate(ctx, evt.OrderID)
		if err != nil {
			return err
		}
		now := s.now()

		if err := order.ApplyDiscount(evt.CouponCode, evt.DiscountAmount, now); err != nil {
			// Скидка на терминальный заказ опоздала — событие поглощается.
			if errors.Is(err, domain.ErrInvalidState) {
				s.logger.WithField("order_id", evt.OrderID).Warn("coupon applied to terminal order, skipped")
				return nil
			}
			return err
		}
		if err := r.Orders.Save(ctx, order); err != nil {
			return err
		}

		payment, err := r.Payments.GetByOrderID(ctx, evt.OrderID)
		if errors.Is(err, domain.ErrPaymentNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if payment.Status != domain.PaymentStatusPending {
			return nil
		}
		if err := payment.RecalculatePaidAmount(order.TotalAmount, order.DiscountAmount, now); err != nil {
			return err
		}
		return r.Payments.Save(ctx, payment)
	})
}

func enqueuePaymentEvent(ctx context.Context, r domain.Repositories, orderID int64, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	_, err = r.Outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: aggregatePayment,
		AggregateID:   strconv.FormatInt(orderID, 10),
		EventType:     eventType,
		Topic:         kafka.TopicPaymentEvents,
		PartitionKey:  strconv.FormatInt(orderID, 10),
		Payload:       body,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	return nil
}
