package pg

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
)

// CircuitState — состояние circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// CircuitBreaker защищает вызовы шлюза: после maxFailures подряд ошибок
// контур размыкается на resetTimeout, затем пропускает один пробный вызов.
// Потокобезопасен — им делят воркеры диспетчера и reconciler.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	logger       *log.Entry

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	state       CircuitState
}

// NewCircuitBreaker создаёт circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.WithField("component", "pg-circuit-breaker")
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        CircuitClosed,
		logger:       logger,
	}
}

// State возвращает текущее состояние.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute выполняет fn через breaker. В открытом состоянии возвращает
// domain.ErrCircuitOpen, не вызывая fn.
func (cb *CircuitBreaker) Execute(operation string, fn func() error) error {
	if err := cb.allow(operation); err != nil {
		return err
	}

	err := fn()
	cb.record(operation, err)
	return err
}

func (cb *CircuitBreaker) allow(operation string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return nil
	}
	if time.Since(cb.lastFailure) <= cb.resetTimeout {
		return domain.ErrCircuitOpen
	}

	cb.state = CircuitHalfOpen
	cb.logger.WithField("operation", operation).Info("circuit breaker half-open")
	return nil
}

func (cb *CircuitBreaker) record(operation string, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()

		if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = CircuitOpen
			cb.logger.WithFields(log.Fields{
				"operation": operation,
				"failures":  cb.failures,
			}).Warn("circuit breaker opened")
		}
		return
	}

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
		cb.logger.WithField("operation", operation).Info("circuit breaker closed")
	}
	cb.failures = 0
}
