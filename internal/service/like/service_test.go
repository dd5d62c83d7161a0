package like

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
	"github.com/vladislavdragonenkov/commerce-core/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/commerce-core/internal/storage/memory"
)

func seedProduct(t *testing.T, store *memory.Store) {
	t.Helper()
	err := store.Within(context.Background(), func(ctx context.Context, r domain.Repositories) error {
		_, err := r.Products.Create(ctx, domain.Product{
			BrandID: 1, Name: "sneakers", Price: 1000, Stock: 5,
			CreatedAt: time.Now().UTC(),
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func eventTypes(t *testing.T, store *memory.Store) []string {
	t.Helper()
	msgs, err := store.Repositories().Outbox.PullPending(context.Background(), 100)
	if err != nil {
		t.Fatalf("PullPending: %v", err)
	}
	types := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		types = append(types, msg.EventType)
	}
	return types
}

func TestAddIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	seedProduct(t, store)
	svc := NewService(store)
	ctx := context.Background()

	added, err := svc.Add(ctx, 1, 1)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !added {
		t.Error("first add must apply")
	}

	added, err = svc.Add(ctx, 1, 1)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if added {
		t.Error("second add must be a no-op")
	}

	types := eventTypes(t, store)
	if len(types) != 1 || types[0] != kafka.EventTypeLikeAdded {
		t.Errorf("exactly one LikeAdded must be enqueued, got %v", types)
	}
}

func TestRemoveOnlyEmitsWhenApplied(t *testing.T) {
	store := memory.NewStore()
	seedProduct(t, store)
	svc := NewService(store)
	ctx := context.Background()

	removed, err := svc.Remove(ctx, 1, 1)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed {
		t.Error("remove of missing like must be a no-op")
	}
	if types := eventTypes(t, store); len(types) != 0 {
		t.Errorf("no events expected, got %v", types)
	}

	if _, err := svc.Add(ctx, 1, 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	removed, err = svc.Remove(ctx, 1, 1)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Error("remove of existing like must apply")
	}

	types := eventTypes(t, store)
	if len(types) != 2 || types[1] != kafka.EventTypeLikeRemoved {
		t.Errorf("expected LikeAdded then LikeRemoved, got %v", types)
	}
}

func TestAddUnknownProduct(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store)

	if _, err := svc.Add(context.Background(), 1, 99); !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
}
