package payment

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
	"github.com/vladislavdragonenkov/commerce-core/internal/storage/memory"
)

func TestReconcilerResolvesStalePayments(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	old := time.Now().UTC().Add(-time.Hour)

	err := store.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		withKey, err := domain.NewPayment(1, 1, 1000, 0, 0, "CREDIT", "1111", old)
		if err != nil {
			return err
		}
		withKey.TransactionKey = "tx-stale"
		if _, err := r.Payments.Create(ctx, withKey); err != nil {
			return err
		}

		// Платёж без transaction key шлюз так и не принял — спросить нечего.
		withoutKey, err := domain.NewPayment(2, 1, 1000, 0, 0, "CREDIT", "2222", old)
		if err != nil {
			return err
		}
		_, err = r.Payments.Create(ctx, withoutKey)
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	gateway := &stubGateway{result: domain.GatewayResult{
		TransactionKey: "tx-stale",
		Status:         domain.PaymentStatusSuccess,
	}}
	applier := &recordingApplier{applied: make(chan domain.GatewayResult, 2)}

	rc := NewReconciler(store.Repositories().Payments, gateway, applier)
	rc.ProcessOnce(ctx)

	select {
	case result := <-applier.applied:
		if result.Status != domain.PaymentStatusSuccess {
			t.Errorf("expected SUCCESS, got %s", result.Status)
		}
	default:
		t.Fatal("stale payment with transaction key must be reconciled")
	}

	select {
	case <-applier.applied:
		t.Error("payment without transaction key must be skipped")
	default:
	}
}
