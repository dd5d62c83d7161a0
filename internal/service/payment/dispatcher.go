package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
	"github.com/vladislavdragonenkov/commerce-core/internal/metrics"
)

const (
	defaultDispatchWorkers = 4
	defaultDispatchQueue   = 256
	defaultCallTimeout     = 10 * time.Second
)

// ResultApplier применяет результат вызова шлюза к платежу.
type ResultApplier interface {
	ApplyGatewayResult(ctx context.Context, paymentID int64, result domain.GatewayResult) error
}

// DispatcherOptions задаёт параметры диспетчера шлюза.
type DispatcherOptions struct {
	Logger      *log.Entry
	Metrics     *metrics.CommerceMetrics
	Workers     int
	QueueSize   int
	CallTimeout time.Duration
	CallbackURL string
}

// DispatcherOption настраивает GatewayDispatcher.
type DispatcherOption func(*DispatcherOptions)

// WithDispatcherLogger задаёт logger диспетчера.
func WithDispatcherLogger(logger *log.Entry) DispatcherOption {
	return func(opts *DispatcherOptions) { opts.Logger = logger }
}

// WithDispatcherMetrics задаёт метрики диспетчера.
func WithDispatcherMetrics(m *metrics.CommerceMetrics) DispatcherOption {
	return func(opts *DispatcherOptions) { opts.Metrics = m }
}

// WithWorkers задаёт число воркеров пула.
func WithWorkers(n int) DispatcherOption {
	return func(opts *DispatcherOptions) { opts.Workers = n }
}

// WithQueueSize задаёт ёмкость очереди заявок.
func WithQueueSize(n int) DispatcherOption {
	return func(opts *DispatcherOptions) { opts.QueueSize = n }
}

// WithCallTimeout задаёт дедлайн одного вызова шлюза.
func WithCallTimeout(timeout time.Duration) DispatcherOption {
	return func(opts *DispatcherOptions) { opts.CallTimeout = timeout }
}

// WithCallbackURL задаёт callback URL, передаваемый шлюзу.
func WithCallbackURL(url string) DispatcherOption {
	return func(opts *DispatcherOptions) { opts.CallbackURL = url }
}

// GatewayDispatcher — пул воркеров, выполняющий вызовы платёжного шлюза
// после коммита бизнес-транзакции. Ошибка вызова (таймаут, открытый breaker)
// оставляет платёж PENDING: его добьёт reconciliation.
type GatewayDispatcher struct {
	gateway     domain.PaymentGateway
	applier     ResultApplier
	logger      *log.Entry
	metrics     *metrics.CommerceMetrics
	queue       chan DispatchRequest
	workers     int
	callTimeout time.Duration
	callbackURL string

	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewGatewayDispatcher создаёт диспетчер вызовов шлюза.
func NewGatewayDispatcher(gateway domain.PaymentGateway, applier ResultApplier, options ...DispatcherOption) *GatewayDispatcher {
	opts := DispatcherOptions{
		Workers:     defaultDispatchWorkers,
		QueueSize:   defaultDispatchQueue,
		CallTimeout: defaultCallTimeout,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "pg-dispatcher")
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultDispatchWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultDispatchQueue
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}

	return &GatewayDispatcher{
		gateway:     gateway,
		applier:     applier,
		logger:      logger,
		metrics:     opts.Metrics,
		queue:       make(chan DispatchRequest, opts.QueueSize),
		workers:     opts.Workers,
		callTimeout: opts.CallTimeout,
		callbackURL: opts.CallbackURL,
	}
}

// Start запускает пул воркеров. Повторный вызов — no-op.
func (d *GatewayDispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.worker(ctx)
		}
		d.logger.WithField("workers", d.workers).Info("gateway dispatcher started")
	})
}

// Stop дожидается завершения воркеров после отмены ctx.
func (d *GatewayDispatcher) Stop() {
	d.wg.Wait()
	d.logger.Info("gateway dispatcher stopped")
}

// Enqueue ставит заявку в очередь. Переполненная очередь не блокирует
// вызывающего: заявка отбрасывается, платёж останется PENDING
// до reconciliation.
func (d *GatewayDispatcher) Enqueue(req DispatchRequest) {
	select {
	case d.queue <- req:
		if d.metrics != nil {
			d.metrics.SetGatewayQueueDepth(len(d.queue))
		}
	default:
		d.logger.WithFields(log.Fields{
			"payment_id": req.PaymentID,
			"order_id":   req.OrderID,
		}).Warn("dispatch queue full, payment left pending for reconciliation")
	}
}

func (d *GatewayDispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.queue:
			d.process(ctx, req)
			if d.metrics != nil {
				d.metrics.SetGatewayQueueDepth(len(d.queue))
			}
		}
	}
}

func (d *GatewayDispatcher) process(ctx context.Context, req DispatchRequest) {
	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	started := time.Now()
	result, err := d.gateway.RequestPayment(callCtx, domain.GatewayRequest{
		OrderID:     req.OrderID,
		UserID:      req.UserID,
		CardType:    req.CardType,
		CardNo:      req.CardNo,
		Amount:      req.Amount,
		CallbackURL: d.callbackURL,
	})
	if d.metrics != nil {
		d.metrics.RecordGatewayDuration("request_payment", time.Since(started))
	}

	if err != nil {
		level := d.logger.WithError(err).WithFields(log.Fields{
			"payment_id": req.PaymentID,
			"order_id":   req.OrderID,
		})
		if errors.Is(err, domain.ErrCircuitOpen) {
			level.Warn("gateway circuit open, payment left pending")
		} else {
			level.Warn("gateway call failed, payment left pending")
		}
		return
	}

	if err := d.applier.ApplyGatewayResult(ctx, req.PaymentID, result); err != nil {
		d.logger.WithError(err).WithField("payment_id", req.PaymentID).Error("failed to apply gateway result")
	}
}
