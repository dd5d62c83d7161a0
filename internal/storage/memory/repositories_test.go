package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
)

func TestOutboxVersionsAreMonotonicPerAggregate(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	var versions []int64
	err := store.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		for i := 0; i < 3; i++ {
			msg, err := r.Outbox.Enqueue(ctx, domain.OutboxMessage{
				AggregateType: "order",
				AggregateID:   "42",
				EventType:     "OrderCreated",
				Topic:         "order-events",
				Payload:       []byte(`{}`),
			})
			if err != nil {
				return err
			}
			versions = append(versions, msg.Version)
		}
		// Другой агрегат начинает свою последовательность с единицы.
		other, err := r.Outbox.Enqueue(ctx, domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   "43",
			EventType:     "OrderCreated",
			Topic:         "order-events",
			Payload:       []byte(`{}`),
		})
		if err != nil {
			return err
		}
		versions = append(versions, other.Version)
		return nil
	})
	if err != nil {
		t.Fatalf("Within: %v", err)
	}

	want := []int64{1, 2, 3, 1}
	for i, v := range want {
		if versions[i] != v {
			t.Errorf("version[%d] = %d, want %d", i, versions[i], v)
		}
	}
}

func TestOutboxEnqueueAssignsEventID(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	err := store.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		msg, err := r.Outbox.Enqueue(ctx, domain.OutboxMessage{
			AggregateType: "like",
			AggregateID:   "1",
			EventType:     "LikeAdded",
			Topic:         "like-events",
			Payload:       []byte(`{}`),
		})
		if err != nil {
			return err
		}
		if msg.ID == "" {
			t.Error("enqueue must assign event id")
		}
		if msg.Status != domain.OutboxStatusPending {
			t.Errorf("expected PENDING, got %s", msg.Status)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Within: %v", err)
	}
}

func TestWithinRollsBackOnError(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		_, err := r.Products.Create(ctx, domain.Product{Name: "sneakers", Price: 100, Stock: 5})
		if err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = store.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		_, err := r.Products.Get(ctx, 1)
		return err
	})
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("rolled back product must not exist, got %v", err)
	}
}

func TestLikeAddRemoveIdempotency(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	err := store.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		like := domain.Like{UserID: 1, ProductID: 2, CreatedAt: time.Now().UTC()}

		added, err := r.Likes.Add(ctx, like)
		if err != nil {
			return err
		}
		if !added {
			t.Error("first add must apply")
		}

		added, err = r.Likes.Add(ctx, like)
		if err != nil {
			return err
		}
		if added {
			t.Error("second add must be a no-op")
		}

		removed, err := r.Likes.Remove(ctx, 1, 2)
		if err != nil {
			return err
		}
		if !removed {
			t.Error("remove of existing like must apply")
		}

		removed, err = r.Likes.Remove(ctx, 1, 2)
		if err != nil {
			return err
		}
		if removed {
			t.Error("remove of missing like must be a no-op")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Within: %v", err)
	}
}

func TestProductListSortAndFilter(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	err := store.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		seed := []domain.Product{
			{BrandID: 1, Name: "a", Price: 300, LikeCount: 5, CreatedAt: now.Add(-3 * time.Hour)},
			{BrandID: 1, Name: "b", Price: 100, LikeCount: 9, CreatedAt: now.Add(-2 * time.Hour)},
			{BrandID: 2, Name: "c", Price: 200, LikeCount: 1, CreatedAt: now.Add(-1 * time.Hour)},
		}
		for _, p := range seed {
			if _, err := r.Products.Create(ctx, p); err != nil {
				return err
			}
		}

		byPrice, err := r.Products.List(ctx, domain.ProductQuery{Sort: domain.SortPriceAsc})
		if err != nil {
			return err
		}
		if len(byPrice) != 3 || byPrice[0].Name != "b" || byPrice[2].Name != "a" {
			t.Errorf("price_asc order wrong: %+v", byPrice)
		}

		byLikes, err := r.Products.List(ctx, domain.ProductQuery{Sort: domain.SortLikesDesc})
		if err != nil {
			return err
		}
		if byLikes[0].Name != "b" {
			t.Errorf("likes_desc must start with b, got %s", byLikes[0].Name)
		}

		latest, err := r.Products.List(ctx, domain.ProductQuery{Sort: domain.SortLatest})
		if err != nil {
			return err
		}
		if latest[0].Name != "c" {
			t.Errorf("latest must start with c, got %s", latest[0].Name)
		}

		brandOnly, err := r.Products.List(ctx, domain.ProductQuery{BrandID: 1})
		if err != nil {
			return err
		}
		if len(brandOnly) != 2 {
			t.Errorf("expected 2 products of brand 1, got %d", len(brandOnly))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Within: %v", err)
	}
}

func TestPaymentListStalePending(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	err := store.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		fresh, err := domain.NewPayment(1, 1, 1000, 0, 0, "CREDIT", "1111", now)
		if err != nil {
			return err
		}
		if _, err := r.Payments.Create(ctx, fresh); err != nil {
			return err
		}

		stale, err := domain.NewPayment(2, 1, 1000, 0, 0, "CREDIT", "2222", now.Add(-time.Hour))
		if err != nil {
			return err
		}
		if _, err := r.Payments.Create(ctx, stale); err != nil {
			return err
		}

		covered, err := domain.NewPayment(3, 1, 1000, 1000, 0, "", "", now.Add(-time.Hour))
		if err != nil {
			return err
		}
		if _, err := r.Payments.Create(ctx, covered); err != nil {
			return err
		}

		got, err := r.Payments.ListStalePending(ctx, now.Add(-time.Minute), 10)
		if err != nil {
			return err
		}
		if len(got) != 1 || got[0].OrderID != 2 {
			t.Errorf("expected only stale card payment for order 2, got %+v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Within: %v", err)
	}
}

func TestMetricsGetOrCreateAndPaging(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	err := store.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		for i := int64(1); i <= 5; i++ {
			m, err := r.Metrics.GetOrCreateForUpdate(ctx, i)
			if err != nil {
				return err
			}
			if !m.ApplyView(now) {
				t.Fatalf("view must apply for product %d", i)
			}
			if err := r.Metrics.Save(ctx, m); err != nil {
				return err
			}
		}

		first, err := r.Metrics.PageByUpdatedAt(ctx, now.Add(-time.Minute), now.Add(time.Minute), 0, 3)
		if err != nil {
			return err
		}
		if len(first) != 3 || first[0].ProductID != 1 {
			t.Fatalf("expected products 1..3, got %+v", first)
		}

		second, err := r.Metrics.PageByUpdatedAt(ctx, now.Add(-time.Minute), now.Add(time.Minute), first[len(first)-1].ProductID, 3)
		if err != nil {
			return err
		}
		if len(second) != 2 || second[0].ProductID != 4 {
			t.Fatalf("expected products 4..5, got %+v", second)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Within: %v", err)
	}
}

func TestSaveRanksReplacesPeriodSet(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	periodStart := time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)

	err := store.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		initial := []domain.ProductRank{
			{PeriodType: domain.PeriodWeekly, PeriodStart: periodStart, ProductID: 1, Rank: 1, Score: 10},
			{PeriodType: domain.PeriodWeekly, PeriodStart: periodStart, ProductID: 2, Rank: 2, Score: 5},
		}
		if err := r.Ranks.SaveRanks(ctx, domain.PeriodWeekly, periodStart, initial); err != nil {
			return err
		}

		replacement := []domain.ProductRank{
			{PeriodType: domain.PeriodWeekly, PeriodStart: periodStart, ProductID: 3, Rank: 1, Score: 20},
		}
		if err := r.Ranks.SaveRanks(ctx, domain.PeriodWeekly, periodStart, replacement); err != nil {
			return err
		}

		got, err := r.Ranks.ListRanks(ctx, domain.PeriodWeekly, periodStart)
		if err != nil {
			return err
		}
		if len(got) != 1 || got[0].ProductID != 3 {
			t.Errorf("rerun must replace the period set, got %+v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Within: %v", err)
	}
}

func TestEventHandledMarkOnce(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	repos := store.Repositories()
	rec := domain.EventHandled{EventID: "evt-1", EventType: "LikeAdded", Topic: "like-events", HandledAt: now}

	applied, err := repos.Handled.MarkHandled(ctx, rec)
	if err != nil {
		t.Fatalf("MarkHandled: %v", err)
	}
	if !applied {
		t.Error("first mark must apply")
	}

	applied, err = repos.Handled.MarkHandled(ctx, rec)
	if err != nil {
		t.Fatalf("MarkHandled: %v", err)
	}
	if applied {
		t.Error("second mark must report duplicate")
	}

	handled, err := repos.Handled.IsHandled(ctx, "evt-1")
	if err != nil {
		t.Fatalf("IsHandled: %v", err)
	}
	if !handled {
		t.Error("event must be handled")
	}

	deleted, err := repos.Handled.DeleteBefore(ctx, now.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("DeleteBefore: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
}
