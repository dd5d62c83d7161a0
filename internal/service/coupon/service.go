package coupon

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
	"github.com/vladislavdragonenkov/commerce-core/internal/messaging/kafka"
)

const aggregateCoupon = "coupon"

// Options задаёт опциональные зависимости сервиса купонов.
type Options struct {
	Logger *log.Entry
	Clock  func() time.Time
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) { opts.Logger = logger }
}

// WithClock задаёт источник времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) { opts.Clock = clock }
}

// Service применяет выпущенные купоны к заказам. Скидка доезжает до заказа
// и платежа асинхронно — событием CouponApplied через outbox.
type Service struct {
	uow    domain.UnitOfWork
	logger *log.Entry
	now    func() time.Time
}

// NewService создаёт сервис купонов.
func NewService(uow domain.UnitOfWork, options ...Option) *Service {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "coupon-service")
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &Service{uow: uow, logger: logger, now: clock}
}

// Apply применяет купон к заказу: проверка повторного использования,
// расчёт скидки по варианту купона, отметка использования и CouponApplied
// в outbox — одна транзакция. Возвращает размер скидки.
func (s *Service) Apply(ctx context.Context, orderID int64, couponCode string) (int64, error) {
	var discount int64

	err := s.uow.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		coupon, err := r.Coupons.GetByCode(ctx, couponCode)
		if err != nil {
			return err
		}

		order, err := r.Orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusPending {
			return domain.ErrInvalidState
		}

		now := s.now()
		if err := coupon.MarkUsed(now); err != nil {
			return err
		}
		if err := r.Coupons.Save(ctx, coupon); err != nil {
			return err
		}

		discount = domain.DiscountFor(order.Subtotal(), coupon.Type, coupon.DiscountValue)

		payload, err := json.Marshal(kafka.CouponAppliedEvent{
			OrderID:        orderID,
			CouponCode:     couponCode,
			DiscountAmount: discount,
		})
		if err != nil {
			return fmt.Errorf("marshal CouponApplied payload: %w", err)
		}

		if _, err := r.Outbox.Enqueue(ctx, domain.OutboxMessage{
			AggregateType: aggregateCoupon,
			AggregateID:   strconv.FormatInt(coupon.ID, 10),
			EventType:     kafka.EventTypeCouponApplied,
			Topic:         kafka.TopicCouponEvents,
			PartitionKey:  strconv.FormatInt(orderID, 10),
			Payload:       payload,
		}); err != nil {
			return fmt.Errorf("enqueue CouponApplied: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.WithFields(log.Fields{
		"order_id":    orderID,
		"coupon_code": couponCode,
		"discount":    discount,
	}).Info("coupon applied")
	return discount, nil
}
