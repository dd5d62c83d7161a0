package batch

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
	"github.com/vladislavdragonenkov/commerce-core/internal/storage/memory"
)

// seedMetrics создаёт count метрик с updated_at внутри периода.
// SalesCount растёт с product_id, так что порядок по score детерминирован.
func seedMetrics(t *testing.T, store *memory.Store, count int, updatedAt time.Time) {
	t.Helper()
	err := store.Within(context.Background(), func(ctx context.Context, r domain.Repositories) error {
		for i := 1; i <= count; i++ {
			if err := r.Metrics.Save(ctx, domain.ProductMetrics{
				ProductID:  int64(i),
				LikeCount:  int64(i % 7),
				SalesCount: int64(i),
				ViewCount:  int64(i % 11),
				Version:    1,
				UpdatedAt:  updatedAt,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed metrics: %v", err)
	}
}

func TestRankerProducesTopHundred(t *testing.T) {
	store := memory.NewStore()
	target := time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC) // среда
	seedMetrics(t, store, 250, target)

	ranker := NewRanker(store, WithChunkSize(64))
	if err := ranker.Run(context.Background(), domain.PeriodWeekly, target); err != nil {
		t.Fatalf("Run: %v", err)
	}

	periodStart, _ := domain.PeriodRange(domain.PeriodWeekly, target)
	ranks, err := store.Repositories().Ranks.ListRanks(context.Background(), domain.PeriodWeekly, periodStart)
	if err != nil {
		t.Fatalf("ListRanks: %v", err)
	}
	if len(ranks) != domain.TopRankLimit {
		t.Fatalf("expected %d ranks, got %d", domain.TopRankLimit, len(ranks))
	}

	// SalesCount доминирует в score, поэтому лидер — товар с наибольшим id.
	if ranks[0].ProductID != 250 {
		t.Errorf("expected product 250 at rank 1, got %d", ranks[0].ProductID)
	}
	for i, rank := range ranks {
		if rank.Rank != i+1 {
			t.Fatalf("rank positions must be sequential, got %d at index %d", rank.Rank, i)
		}
		if i > 0 && rank.Score > ranks[i-1].Score {
			t.Fatalf("ranks must be ordered by score desc: %f after %f", rank.Score, ranks[i-1].Score)
		}
	}
}

func TestRankerSkipsMetricsOutsidePeriod(t *testing.T) {
	store := memory.NewStore()
	target := time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)
	periodStart, _ := domain.PeriodRange(domain.PeriodWeekly, target)

	seedMetrics(t, store, 10, target)
	// Активность до начала периода не участвует в свёртке.
	err := store.Within(context.Background(), func(ctx context.Context, r domain.Repositories) error {
		return r.Metrics.Save(ctx, domain.ProductMetrics{
			ProductID:  999,
			SalesCount: 100000,
			Version:    1,
			UpdatedAt:  periodStart.Add(-time.Hour),
		})
	})
	if err != nil {
		t.Fatalf("seed stale metric: %v", err)
	}

	ranker := NewRanker(store)
	if err := ranker.Run(context.Background(), domain.PeriodWeekly, target); err != nil {
		t.Fatalf("Run: %v", err)
	}

	ranks, err := store.Repositories().Ranks.ListRanks(context.Background(), domain.PeriodWeekly, periodStart)
	if err != nil {
		t.Fatalf("ListRanks: %v", err)
	}
	if len(ranks) != 10 {
		t.Fatalf("expected 10 ranks, got %d", len(ranks))
	}
	for _, rank := range ranks {
		if rank.ProductID == 999 {
			t.Error("metric outside the period must not be ranked")
		}
	}
}

func TestRankerRerunReplacesLeaderboard(t *testing.T) {
	store := memory.NewStore()
	target := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	seedMetrics(t, store, 5, target)

	ranker := NewRanker(store)
	ctx := context.Background()
	if err := ranker.Run(ctx, domain.PeriodMonthly, target); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := ranker.Run(ctx, domain.PeriodMonthly, target); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	periodStart, _ := domain.PeriodRange(domain.PeriodMonthly, target)
	ranks, err := store.Repositories().Ranks.ListRanks(ctx, domain.PeriodMonthly, periodStart)
	if err != nil {
		t.Fatalf("ListRanks: %v", err)
	}
	// delete-then-insert: повторный прогон не задваивает набор.
	if len(ranks) != 5 {
		t.Fatalf("rerun must replace the leaderboard, got %d rows", len(ranks))
	}
}
