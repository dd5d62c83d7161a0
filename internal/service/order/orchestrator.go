package order

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
	"github.com/vladislavdragonenkov/commerce-core/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/commerce-core/internal/metrics"
)

const aggregateOrder = "order"

// CreateItem — позиция запроса на оформление заказа.
type CreateItem struct {
	ProductID int64
	Quantity  int64
}

// CreateRequest — запрос на оформление заказа. Карта опциональна:
// заказ, полностью покрытый поинтами, проходит без карты.
type CreateRequest struct {
	UserID         int64
	Items          []CreateItem
	RequestedPoint int64
	CardType       string
	CardNo         string
}

// Options задаёт зависимости оркестратора, не входящие в обязательный набор.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.CommerceMetrics
	Cache   domain.ProductCache
	Clock   func() time.Time
}

// Option настраивает Orchestrator.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) { opts.Logger = logger }
}

// WithMetrics задаёт счётчики жизненного цикла заказа.
func WithMetrics(m *metrics.CommerceMetrics) Option {
	return func(opts *Options) { opts.Metrics = m }
}

// WithProductCache задаёт кэш для best-effort инвалидации после коммита.
func WithProductCache(cache domain.ProductCache) Option {
	return func(opts *Options) { opts.Cache = cache }
}

// WithClock задаёт источник времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) { opts.Clock = clock }
}

// Orchestrator управляет жизненным циклом заказа: резервирование склада
// и поинтов при создании, компенсация при отмене, реакция на исход платежа.
// Каждая операция — одна локальная транзакция вместе с её outbox-строками.
type Orchestrator struct {
	uow     domain.UnitOfWork
	logger  *log.Entry
	metrics *metrics.CommerceMetrics
	cache   domain.ProductCache
	now     func() time.Time
}

// NewOrchestrator создаёт оркестратор заказов.
func NewOrchestrator(uow domain.UnitOfWork, options ...Option) *Orchestrator {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "order-orchestrator")
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &Orchestrator{
		uow:     uow,
		logger:  logger,
		metrics: opts.Metrics,
		cache:   opts.Cache,
		now:     clock,
	}
}

// Create оформляет заказ: блокировка пользователя, блокировки товаров по
// возрастанию id, списание склада, списание поинтов
// min(запрошено, баланс, сумма), заказ в PENDING, OrderCreated и
// PaymentRequested в outbox. Всё в одной транзакции: любой сбой
// откатывает резервы целиком.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (domain.Order, error) {
	if len(req.Items) == 0 {
		return domain.Order{}, domain.ErrOrderItemsRequired
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return domain.Order{}, domain.ErrQuantityInvalid
		}
	}
	if req.RequestedPoint < 0 {
		return domain.Order{}, domain.ErrAmountNegative
	}

	started := o.now()
	var created domain.Order

	err := o.uow.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		now := o.now()

		user, err := r.Users.GetForUpdate(ctx, req.UserID)
		if err != nil {
			return err
		}

		// Товары блокируются по возрастанию id, чтобы два конкурентных
		// заказа с пересекающимися товарами не попали в deadlock.
		items := make([]CreateItem, len(req.Items))
		copy(items, req.Items)
		sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

		orderItems := make([]domain.OrderItem, 0, len(items))
		for _, item := range items {
			product, err := r.Products.GetForUpdate(ctx, item.ProductID)
			if err != nil {
				return err
			}
			if err := product.DecreaseStock(item.Quantity); err != nil {
				return err
			}
			product.UpdatedAt = now
			if err := r.Products.Save(ctx, product); err != nil {
				return err
			}
			orderItems = append(orderItems, domain.OrderItem{
				ProductID: product.ID,
				Name:      product.Name,
				Price:     product.Price,
				Quantity:  item.Quantity,
			})
		}

		order, err := domain.NewOrder(req.UserID, orderItems, 0, now)
		if err != nil {
			return err
		}
		subtotal := order.Subtotal()

		usedPoint := req.RequestedPoint
		if usedPoint > user.Point.Balance {
			usedPoint = user.Point.Balance
		}
		if usedPoint > subtotal {
			usedPoint = subtotal
		}
		user.Point, err = user.Point.Subtract(usedPoint)
		if err != nil {
			return err
		}
		user.UpdatedAt = now
		if err := r.Users.Save(ctx, user); err != nil {
			return err
		}

		order.UsedPoint = usedPoint
		created, err = r.Orders.Create(ctx, order)
		if err != nil {
			return err
		}

		itemsPayload := make([]kafka.OrderItemPayload, 0, len(created.Items))
		for _, item := range created.Items {
			itemsPayload = append(itemsPayload, kafka.OrderItemPayload{
				ProductID: item.ProductID,
				Name:      item.Name,
				Price:     item.Price,
				Quantity:  item.Quantity,
			})
		}

		if err := enqueueOrderEvent(ctx, r, created.ID, kafka.TopicOrderEvents, kafka.EventTypeOrderCreated, kafka.OrderCreatedEvent{
			OrderID:         created.ID,
			UserID:          created.UserID,
			Subtotal:        subtotal,
			UsedPointAmount: usedPoint,
			Items:           itemsPayload,
		}); err != nil {
			return err
		}

		return enqueueOrderEvent(ctx, r, created.ID, kafka.TopicPaymentEvents, kafka.EventTypePaymentRequested, kafka.PaymentRequestedEvent{
			OrderID:         created.ID,
			UserID:          created.UserID,
			TotalAmount:     subtotal,
			UsedPointAmount: usedPoint,
			CardType:        req.CardType,
			CardNo:          req.CardNo,
		})
	})
	if err != nil {
		return domain.Order{}, err
	}

	if o.metrics != nil {
		o.metrics.RecordOrderCreated()
		o.metrics.RecordOrderCreateDuration(o.now().Sub(started))
	}
	o.invalidateProducts(ctx, created.Items)

	o.logger.WithFields(log.Fields{
		"order_id":   created.ID,
		"user_id":    created.UserID,
		"used_point": created.UsedPoint,
	}).Info("order created")
	return created, nil
}

// Cancel отменяет PENDING-заказ с компенсацией резервов. Терминальный
// заказ — идемпотентный no-op.
func (o *Orchestrator) Cancel(ctx context.Context, orderID int64, reason string) error {
	var canceled bool
	var items []domain.OrderItem

	err := o.uow.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		order, err := r.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.IsTerminal() {
			return nil
		}
		applied, err := o.cancelLocked(ctx, r, &order, order.UsedPoint, reason)
		if err != nil {
			return err
		}
		canceled = applied
		items = order.Items
		return nil
	})
	if err != nil {
		return err
	}

	if canceled {
		if o.metrics != nil {
			o.metrics.RecordOrderCanceled()
		}
		o.invalidateProducts(ctx, items)
		o.logger.WithFields(log.Fields{
			"order_id": orderID,
			"reason":   reason,
		}).Info("order canceled")
	}
	return nil
}

// OnPaymentResult применяет исход платежа к заказу. Терминальный заказ и
// статус PENDING не меняют состояния.
func (o *Orchestrator) OnPaymentResult(ctx context.Context, orderID int64, status domain.PaymentStatus, reason string, refundPoints int64) error {
	var completed, canceled bool
	var items []domain.OrderItem

	err := o.uow.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		order, err := r.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.IsTerminal() {
			return nil
		}

		switch status {
		case domain.PaymentStatusSuccess:
			now := o.now()
			if err := order.Complete(now); err != nil {
				return err
			}
			if err := r.Orders.Save(ctx, order); err != nil {
				return err
			}
			completed = true
			return enqueueOrderEvent(ctx, r, order.ID, kafka.TopicOrderEvents, kafka.EventTypeOrderCompleted, kafka.OrderCompletedEvent{
				OrderID: order.ID,
				UserID:  order.UserID,
			})

		case domain.PaymentStatusFailed:
			if reason == "" {
				return domain.ErrReasonRequired
			}
			if refundPoints < 0 {
				return domain.ErrAmountNegative
			}
			applied, err := o.cancelLocked(ctx, r, &order, refundPoints, reason)
			if err != nil {
				return err
			}
			canceled = applied
			items = order.Items
			return nil

		default:
			return nil
		}
	})
	if err != nil {
		return err
	}

	if completed && o.metrics != nil {
		o.metrics.RecordOrderCompleted()
	}
	if canceled {
		if o.metrics != nil {
			o.metrics.RecordOrderCanceled()
		}
		o.invalidateProducts(ctx, items)
	}
	return nil
}

// cancelLocked выполняет компенсацию под уже взятой блокировкой заказа:
// возврат склада (товары по возрастанию id), возврат поинтов, CANCELED,
// OrderCanceled в outbox.
func (o *Orchestrator) cancelLocked(ctx context.Context, r domain.Repositories, order *domain.Order, refundPoints int64, reason string) (bool, error) {
	now := o.now()

	if err := order.Cancel(now); err != nil {
		return false, err
	}

	items := make([]domain.OrderItem, len(order.Items))
	copy(items, order.Items)
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	for _, item := range items {
		product, err := r.Products.GetForUpdate(ctx, item.ProductID)
		if err != nil {
			return false, err
		}
		if err := product.IncreaseStock(item.Quantity); err != nil {
			return false, err
		}
		product.UpdatedAt = now
		if err := r.Products.Save(ctx, product); err != nil {
			return false, err
		}
	}

	if refundPoints > 0 {
		user, err := r.Users.GetForUpdate(ctx, order.UserID)
		if err != nil {
			return false, err
		}
		user.Point, err = user.Point.Add(refundPoints)
		if err != nil {
			return false, err
		}
		user.UpdatedAt = now
		if err := r.Users.Save(ctx, user); err != nil {
			return false, err
		}
	}

	if err := r.Orders.Save(ctx, *order); err != nil {
		return false, err
	}

	if err := enqueueOrderEvent(ctx, r, order.ID, kafka.TopicOrderEvents, kafka.EventTypeOrderCanceled, kafka.OrderCanceledEvent{
		OrderID:           order.ID,
		UserID:            order.UserID,
		RefundPointAmount: refundPoints,
		Reason:            reason,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// invalidateProducts сбрасывает кэш листингов и деталей затронутых товаров.
// Ошибки кэша не влияют на результат операции.
func (o *Orchestrator) invalidateProducts(ctx context.Context, items []domain.OrderItem) {
	if o.cache == nil || len(items) == 0 {
		return
	}

	keys := make([]string, 0, len(items))
	for _, item := range items {
		keys = append(keys, fmt.Sprintf("product:detail:%d", item.ProductID))
	}
	if err := o.cache.Delete(ctx, keys...); err != nil {
		o.logger.WithError(err).Warn("failed to invalidate product detail cache")
	}
	if err := o.cache.DeletePattern(ctx, "product:list:*"); err != nil {
		o.logger.WithError(err).Warn("failed to invalidate product list cache")
	}
}

func enqueueOrderEvent(ctx context.Context, r domain.Repositories, orderID int64, topic, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	_, err = r.Outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: aggregateOrder,
		AggregateID:   strconv.FormatInt(orderID, 10),
		EventType:     eventType,
		Topic:         topic,
		PartitionKey:  strconv.FormatInt(orderID, 10),
		Payload:       body,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	return nil
}
