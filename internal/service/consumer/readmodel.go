package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
	"github.com/vladislavdragonenkov/commerce-core/internal/messaging/kafka"
)

// Весовые коэффициенты суточного ZSET-рейтинга.
const (
	RankingLikeWeight  = 0.2
	RankingViewWeight  = 0.1
	RankingOrderWeight = 0.6
)

// ReadModelHandler применяет события активности к read-model: счётчики
// product_metrics (плюс денормализованный product.like_count) и взвешенный
// суточный ZSET-рейтинг. Version-gate действует только для like-событий —
// их outbox-версии нумеруются по агрегату (like, productId); версии заказов
// и просмотров принадлежат чужим агрегатам, там дедупликацию даёт
// event_handled.
type ReadModelHandler struct {
	uow      domain.UnitOfWork
	ranking  domain.RankingIndex
	pipeline *Pipeline
	logger   *log.Entry
	now      func() time.Time
}

// NewReadModelHandler создаёт обработчик read-model. ranking может быть nil —
// тогда обновляются только метрики.
func NewReadModelHandler(uow domain.UnitOfWork, ranking domain.RankingIndex, pipeline *Pipeline, logger *log.Entry) *ReadModelHandler {
	if logger == nil {
		logger = log.WithField("component", "readmodel-consumer")
	}
	return &ReadModelHandler{
		uow:      uow,
		ranking:  ranking,
		pipeline: pipeline,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle — RecordHandler для kafka.Consumer.
func (h *ReadModelHandler) Handle(ctx context.Context, rec kafka.Record) error {
	return h.pipeline.Process(ctx, rec, h.apply)
}

func (h *ReadModelHandler) apply(ctx context.Context, rec kafka.Record, version int64) error {
	switch rec.Headers[kafka.HeaderEventType] {
	case kafka.EventTypeLikeAdded:
		var evt kafka.LikeAddedEvent
		if err := json.Unmarshal(rec.Value, &evt); err != nil {
			return fmt.Errorf("unmarshal LikeAdded: %w", err)
		}
		if err := h.applyMetrics(ctx, evt.ProductID, true, func(m *domain.ProductMetrics, now time.Time) bool {
			return m.ApplyLikeAdded(version, now)
		}); err != nil {
			return err
		}
		return h.incrementRanking(ctx, evt.ProductID, RankingLikeWeight)

	case kafka.EventTypeLikeRemoved:
		var evt kafka.LikeRemovedEvent
		if err := json.Unmarshal(rec.Value, &evt); err != nil {
			return fmt.Errorf("unmarshal LikeRemoved: %w", err)
		}
		if err := h.applyMetrics(ctx, evt.ProductID, true, func(m *domain.ProductMetrics, now time.Time) bool {
			return m.ApplyLikeRemoved(version, now)
		}); err != nil {
			return err
		}
		return h.incrementRanking(ctx, evt.ProductID, -RankingLikeWeight)

	case kafka.EventTypeProductViewed:
		var evt kafka.ProductViewedEvent
		if err := json.Unmarshal(rec.Value, &evt); err != nil {
			return fmt.Errorf("unmarshal ProductViewed: %w", err)
		}
		if err := h.applyMetrics(ctx, evt.ProductID, false, func(m *domain.ProductMetrics, now time.Time) bool {
			return m.ApplyView(now)
		}); err != nil {
			return err
		}
		return h.incrementRanking(ctx, evt.ProductID, RankingViewWeight)

	case kafka.EventTypeOrderCreated:
		var evt kafka.OrderCreatedEvent
		if err := json.Unmarshal(rec.Value, &evt); err != nil {
			return fmt.Errorf("unmarshal OrderCreated: %w", err)
		}
		return h.applyOrderCreated(ctx, evt)

	default:
		return nil
	}
}

func (h *ReadModelHandler) applyMetrics(ctx context.Context, productID int64, syncLikeCount bool, mutate func(*domain.ProductMetrics, time.Time) bool) error {
	return h.uow.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		m, err := r.Metrics.GetOrCreateForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if !mutate(&m, h.now()) {
			return nil
		}
		if err := r.Metrics.Save(ctx, m); err != nil {
			return err
		}
		if !syncLikeCount {
			return nil
		}

		product, err := r.Products.GetForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		product.LikeCount = m.LikeCount
		product.UpdatedAt = h.now()
		return r.Products.Save(ctx, product)
	})
}

func (h *ReadModelHandler) applyOrderCreated(ctx context.Context, evt kafka.OrderCreatedEvent) error {
	for _, item := range evt.Items {
		quantity := item.Quantity
		if err := h.applyMetrics(ctx, item.ProductID, false, func(m *domain.ProductMetrics, now time.Time) bool {
			return m.ApplySale(quantity, now)
		}); err != nil {
			return err
		}
	}

	// Взвешенный вклад заказа: log1p(средняя цена единицы * количество) * 0.6
	// на каждый товар заказа.
	var totalQuantity int64
	for _, item := range evt.Items {
		totalQuantity += item.Quantity
	}
	if totalQuantity <= 0 {
		return nil
	}
	averageUnitPrice := float64(evt.Subtotal) / float64(totalQuantity)

	for _, item := range evt.Items {
		amount := averageUnitPrice * float64(item.Quantity)
		delta := math.Log1p(amount) * RankingOrderWeight
		if err := h.incrementRanking(ctx, item.ProductID, delta); err != nil {
			return err
		}
	}
	return nil
}

func (h *ReadModelHandler) incrementRanking(ctx context.Context, productID int64, delta float64) error {
	if h.ranking == nil || delta == 0 {
		return nil
	}
	if err := h.ranking.IncrementScore(ctx, h.now(), productID, delta); err != nil {
		return fmt.Errorf("increment ranking score for product %d: %w", productID, err)
	}
	return nil
}
