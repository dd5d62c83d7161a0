package pg

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
)

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute, nil)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := cb.Execute("op", func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("expected fn error, got %v", err)
		}
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected OPEN after 3 failures, got %v", cb.State())
	}

	called := false
	err := cb.Execute("op", func() error { called = true; return nil })
	if !errors.Is(err, domain.ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("open breaker must not call fn")
	}
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute, nil)
	boom := errors.New("boom")

	_ = cb.Execute("op", func() error { return boom })
	_ = cb.Execute("op", func() error { return boom })
	_ = cb.Execute("op", func() error { return nil })
	_ = cb.Execute("op", func() error { return boom })
	_ = cb.Execute("op", func() error { return boom })

	if cb.State() != CircuitClosed {
		t.Errorf("interleaved success must reset the streak, got %v", cb.State())
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond, nil)
	boom := errors.New("boom")

	_ = cb.Execute("op", func() error { return boom })
	if cb.State() != CircuitOpen {
		t.Fatalf("expected OPEN, got %v", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	// Пробный вызов после resetTimeout; успех закрывает контур.
	if err := cb.Execute("op", func() error { return nil }); err != nil {
		t.Fatalf("probe call must pass: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected CLOSED after successful probe, got %v", cb.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond, nil)
	boom := errors.New("boom")

	_ = cb.Execute("op", func() error { return boom })
	time.Sleep(20 * time.Millisecond)
	_ = cb.Execute("op", func() error { return boom })

	if cb.State() != CircuitOpen {
		t.Errorf("failed probe must reopen the breaker, got %v", cb.State())
	}
}
