package idempotency

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
	"github.com/vladislavdragonenkov/commerce-core/internal/storage/memory"
)

func seedHandled(t *testing.T, store *memory.Store, prefix string, count int, handledAt time.Time) {
	t.Helper()
	err := store.Within(context.Background(), func(ctx context.Context, r domain.Repositories) error {
		for i := 0; i < count; i++ {
			if _, err := r.Handled.MarkHandled(ctx, domain.EventHandled{
				EventID:   fmt.Sprintf("%s-%d", prefix, i),
				EventType: "LikeAdded",
				Topic:     "like-events",
				HandledAt: handledAt,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed handled: %v", err)
	}
}

func TestCleanupDeletesExpiredRecordsInBatches(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	seedHandled(t, store, "old", 25, now.Add(-8*24*time.Hour))
	seedHandled(t, store, "fresh", 5, now.Add(-time.Hour))

	// Пачка меньше числа просроченных записей: ProcessOnce должен
	// пройти несколько итераций до неполной пачки.
	worker := NewCleanupWorker(store,
		WithCleanupBatchSize(10),
		WithCleanupClock(func() time.Time { return now }))
	worker.ProcessOnce(context.Background())

	ctx := context.Background()
	handled := store.Repositories().Handled
	for i := 0; i < 25; i++ {
		ok, err := handled.IsHandled(ctx, fmt.Sprintf("old-%d", i))
		if err != nil {
			t.Fatalf("IsHandled: %v", err)
		}
		if ok {
			t.Fatalf("expired record old-%d must be deleted", i)
		}
	}
	for i := 0; i < 5; i++ {
		ok, err := handled.IsHandled(ctx, fmt.Sprintf("fresh-%d", i))
		if err != nil {
			t.Fatalf("IsHandled: %v", err)
		}
		if !ok {
			t.Fatalf("record fresh-%d inside the retention window must survive", i)
		}
	}
}

func TestCleanupIsNoopWithoutExpiredRecords(t *testing.T) {
	store := memory.NewStore()
	now := time.Now().UTC()
	seedHandled(t, store, "fresh", 3, now)

	worker := NewCleanupWorker(store, WithCleanupClock(func() time.Time { return now }))
	worker.ProcessOnce(context.Background())

	for i := 0; i < 3; i++ {
		ok, _ := store.Repositories().Handled.IsHandled(context.Background(), fmt.Sprintf("fresh-%d", i))
		if !ok {
			t.Fatalf("fresh-%d must not be deleted", i)
		}
	}
}
