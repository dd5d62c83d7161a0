package consumer

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
	"github.com/vladislavdragonenkov/commerce-core/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/commerce-core/internal/storage/memory"
)

type rankingCall struct {
	productID int64
	delta     float64
}

type stubRanking struct {
	calls []rankingCall
}

func (s *stubRanking) IncrementScore(_ context.Context, _ time.Time, productID int64, delta float64) error {
	s.calls = append(s.calls, rankingCall{productID: productID, delta: delta})
	return nil
}

func (s *stubRanking) CarryOver(context.Context, time.Time, time.Time, float64) error { return nil }

func (s *stubRanking) Top(context.Context, time.Time, int64) ([]domain.RankingEntry, error) {
	return nil, nil
}

func seedProducts(t *testing.T, store *memory.Store, count int) {
	t.Helper()
	err := store.Within(context.Background(), func(ctx context.Context, r domain.Repositories) error {
		for i := 0; i < count; i++ {
			if _, err := r.Products.Create(ctx, domain.Product{
				BrandID: 1, Name: "product", Price: 1000, Stock: 10,
				CreatedAt: time.Now().UTC(),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed products: %v", err)
	}
}

func payload(t *testing.T, v any) []byte {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return body
}

func newReadModel(store *memory.Store, ranking domain.RankingIndex) *ReadModelHandler {
	pipe := NewPipeline(store.Repositories().Handled, nil, nil)
	return NewReadModelHandler(store, ranking, pipe, nil)
}

func TestReadModelLikeAddedUpdatesMetricsAndRanking(t *testing.T) {
	store := memory.NewStore()
	seedProducts(t, store, 1)
	ranking := &stubRanking{}
	handler := newReadModel(store, ranking)
	ctx := context.Background()

	rec := record("like-1", kafka.EventTypeLikeAdded, "1",
		payload(t, kafka.LikeAddedEvent{UserID: 1, ProductID: 1}))
	if err := handler.Handle(ctx, rec); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	m, err := store.Repositories().Metrics.GetOrCreateForUpdate(ctx, 1)
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if m.LikeCount != 1 || m.Version != 1 {
		t.Errorf("expected likeCount=1 version=1, got %d/%d", m.LikeCount, m.Version)
	}

	product, err := store.Repositories().Products.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Products.Get: %v", err)
	}
	if product.LikeCount != 1 {
		t.Errorf("denormalized like_count must follow metrics, got %d", product.LikeCount)
	}

	if len(ranking.calls) != 1 || ranking.calls[0].delta != RankingLikeWeight {
		t.Errorf("expected one ranking increment of %v, got %+v", RankingLikeWeight, ranking.calls)
	}
}

func TestReadModelLikeRemovedDecrementsRanking(t *testing.T) {
	store := memory.NewStore()
	seedProducts(t, store, 1)
	ranking := &stubRanking{}
	handler := newReadModel(store, ranking)
	ctx := context.Background()

	add := record("like-1", kafka.EventTypeLikeAdded, "1",
		payload(t, kafka.LikeAddedEvent{UserID: 1, ProductID: 1}))
	remove := record("like-2", kafka.EventTypeLikeRemoved, "2",
		payload(t, kafka.LikeRemovedEvent{UserID: 1, ProductID: 1}))
	if err := handler.Handle(ctx, add); err != nil {
		t.Fatalf("Handle add: %v", err)
	}
	if err := handler.Handle(ctx, remove); err != nil {
		t.Fatalf("Handle remove: %v", err)
	}

	m, _ := store.Repositories().Metrics.GetOrCreateForUpdate(ctx, 1)
	if m.LikeCount != 0 || m.Version != 2 {
		t.Errorf("expected likeCount=0 version=2, got %d/%d", m.LikeCount, m.Version)
	}
	if len(ranking.calls) != 2 || ranking.calls[1].delta != -RankingLikeWeight {
		t.Errorf("expected decrement of %v, got %+v", RankingLikeWeight, ranking.calls)
	}
}

func TestReadModelStaleVersionDoesNotMutateCounters(t *testing.T) {
	store := memory.NewStore()
	seedProducts(t, store, 1)
	handler := newReadModel(store, &stubRanking{})
	ctx := context.Background()

	first := record("like-1", kafka.EventTypeLikeAdded, "5",
		payload(t, kafka.LikeAddedEvent{UserID: 1, ProductID: 1}))
	// Другой eventId, но не новее по версии: счётчики заморожены.
	stale := record("like-2", kafka.EventTypeLikeAdded, "5",
		payload(t, kafka.LikeAddedEvent{UserID: 2, ProductID: 1}))
	if err := handler.Handle(ctx, first); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if err := handler.Handle(ctx, stale); err != nil {
		t.Fatalf("Handle stale: %v", err)
	}

	m, _ := store.Repositories().Metrics.GetOrCreateForUpdate(ctx, 1)
	if m.LikeCount != 1 || m.Version != 5 {
		t.Errorf("stale version must be rejected, got likeCount=%d version=%d", m.LikeCount, m.Version)
	}
}

func TestReadModelProductViewed(t *testing.T) {
	store := memory.NewStore()
	ranking := &stubRanking{}
	handler := newReadModel(store, ranking)
	ctx := context.Background()

	rec := record("view-1", kafka.EventTypeProductViewed, "1",
		payload(t, kafka.ProductViewedEvent{ProductID: 3}))
	if err := handler.Handle(ctx, rec); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	m, _ := store.Repositories().Metrics.GetOrCreateForUpdate(ctx, 3)
	if m.ViewCount != 1 {
		t.Errorf("expected viewCount=1, got %d", m.ViewCount)
	}
	if len(ranking.calls) != 1 || ranking.calls[0].delta != RankingViewWeight {
		t.Errorf("expected view increment of %v, got %+v", RankingViewWeight, ranking.calls)
	}
}

func TestReadModelOrderCreatedAppliesSalesAndWeightedRanking(t *testing.T) {
	store := memory.NewStore()
	seedProducts(t, store, 2)
	ranking := &stubRanking{}
	handler := newReadModel(store, ranking)
	ctx := context.Background()

	evt := kafka.OrderCreatedEvent{
		OrderID:  1,
		UserID:   1,
		Subtotal: 3000,
		Items: []kafka.OrderItemPayload{
			{ProductID: 1, Price: 1000, Quantity: 2},
			{ProductID: 2, Price: 1000, Quantity: 1},
		},
	}
	rec := record("order-1", kafka.EventTypeOrderCreated, "1", payload(t, evt))
	rec.Topic = kafka.TopicOrderEvents
	if err := handler.Handle(ctx, rec); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	m1, _ := store.Repositories().Metrics.GetOrCreateForUpdate(ctx, 1)
	m2, _ := store.Repositories().Metrics.GetOrCreateForUpdate(ctx, 2)
	if m1.SalesCount != 2 || m2.SalesCount != 1 {
		t.Errorf("expected sales 2/1, got %d/%d", m1.SalesCount, m2.SalesCount)
	}

	// Средняя цена единицы 3000/3=1000: вклад log1p(1000*qty)*0.6 на товар.
	if len(ranking.calls) != 2 {
		t.Fatalf("expected 2 ranking increments, got %+v", ranking.calls)
	}
	want1 := math.Log1p(2000) * RankingOrderWeight
	want2 := math.Log1p(1000) * RankingOrderWeight
	if math.Abs(ranking.calls[0].delta-want1) > 1e-9 || math.Abs(ranking.calls[1].delta-want2) > 1e-9 {
		t.Errorf("expected deltas %v/%v, got %+v", want1, want2, ranking.calls)
	}
}

func TestReadModelSalesAccumulateAcrossOrders(t *testing.T) {
	store := memory.NewStore()
	seedProducts(t, store, 1)
	handler := newReadModel(store, &stubRanking{})
	ctx := context.Background()

	// Каждый заказ — свой агрегат, поэтому outbox присваивает обоим
	// OrderCreated версию 1. Продажи обязаны суммироваться.
	first := record("order-1", kafka.EventTypeOrderCreated, "1", payload(t, kafka.OrderCreatedEvent{
		OrderID: 1, UserID: 1, Subtotal: 2000,
		Items: []kafka.OrderItemPayload{{ProductID: 1, Price: 1000, Quantity: 2}},
	}))
	second := record("order-2", kafka.EventTypeOrderCreated, "1", payload(t, kafka.OrderCreatedEvent{
		OrderID: 2, UserID: 2, Subtotal: 3000,
		Items: []kafka.OrderItemPayload{{ProductID: 1, Price: 1000, Quantity: 3}},
	}))
	first.Topic = kafka.TopicOrderEvents
	second.Topic = kafka.TopicOrderEvents

	if err := handler.Handle(ctx, first); err != nil {
		t.Fatalf("Handle first order: %v", err)
	}
	if err := handler.Handle(ctx, second); err != nil {
		t.Fatalf("Handle second order: %v", err)
	}

	m, _ := store.Repositories().Metrics.GetOrCreateForUpdate(ctx, 1)
	if m.SalesCount != 5 {
		t.Errorf("expected salesCount=5 after two distinct orders, got %d", m.SalesCount)
	}
}

func TestReadModelViewCountsAfterLike(t *testing.T) {
	store := memory.NewStore()
	seedProducts(t, store, 1)
	handler := newReadModel(store, &stubRanking{})
	ctx := context.Background()

	like := record("like-1", kafka.EventTypeLikeAdded, "1",
		payload(t, kafka.LikeAddedEvent{UserID: 1, ProductID: 1}))
	// Первый просмотр несёт версию 1 своего агрегата: like-версия товара
	// уже равна 1, но счётчик просмотров это не блокирует.
	view := record("view-1", kafka.EventTypeProductViewed, "1",
		payload(t, kafka.ProductViewedEvent{ProductID: 1}))

	if err := handler.Handle(ctx, like); err != nil {
		t.Fatalf("Handle like: %v", err)
	}
	if err := handler.Handle(ctx, view); err != nil {
		t.Fatalf("Handle view: %v", err)
	}

	m, _ := store.Repositories().Metrics.GetOrCreateForUpdate(ctx, 1)
	if m.LikeCount != 1 || m.ViewCount != 1 {
		t.Errorf("expected likeCount=1 viewCount=1, got %d/%d", m.LikeCount, m.ViewCount)
	}
}

func TestReadModelWorksWithoutRankingIndex(t *testing.T) {
	store := memory.NewStore()
	handler := newReadModel(store, nil)

	rec := record("view-1", kafka.EventTypeProductViewed, "1",
		payload(t, kafka.ProductViewedEvent{ProductID: 1}))
	if err := handler.Handle(context.Background(), rec); err != nil {
		t.Fatalf("Handle without ranking: %v", err)
	}
}
