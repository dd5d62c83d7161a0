package payment

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
	"github.com/vladislavdragonenkov/commerce-core/internal/metrics"
)

const (
	defaultReconcileInterval = 1 * time.Minute
	defaultReconcileAge      = 5 * time.Minute
	defaultReconcileBatch    = 50
)

// ReconcilerOptions задаёт параметры reconciliation-воркера.
type ReconcilerOptions struct {
	Logger   *log.Entry
	Metrics  *metrics.CommerceMetrics
	Interval time.Duration
	MinAge   time.Duration
	Batch    int
	Clock    func() time.Time
}

// ReconcilerOption настраивает Reconciler.
type ReconcilerOption func(*ReconcilerOptions)

// WithReconcilerLogger задаёт logger воркера.
func WithReconcilerLogger(logger *log.Entry) ReconcilerOption {
	return func(opts *ReconcilerOptions) { opts.Logger = logger }
}

// WithReconcilerMetrics задаёт метрики воркера.
func WithReconcilerMetrics(m *metrics.CommerceMetrics) ReconcilerOption {
	return func(opts *ReconcilerOptions) { opts.Metrics = m }
}

// WithReconcileInterval задаёт период опроса.
func WithReconcileInterval(interval time.Duration) ReconcilerOption {
	return func(opts *ReconcilerOptions) { opts.Interval = interval }
}

// WithReconcileMinAge задаёт минимальный возраст PENDING-платежа для проверки.
func WithReconcileMinAge(age time.Duration) ReconcilerOption {
	return func(opts *ReconcilerOptions) { opts.MinAge = age }
}

// WithReconcileBatch задаёт размер батча платежей за цикл.
func WithReconcileBatch(batch int) ReconcilerOption {
	return func(opts *ReconcilerOptions) { opts.Batch = batch }
}

// WithReconcilerClock задаёт источник времени (для тестов).
func WithReconcilerClock(clock func() time.Time) ReconcilerOption {
	return func(opts *ReconcilerOptions) { opts.Clock = clock }
}

// Reconciler добивает зависшие карточные платежи: PENDING старше minAge
// с известным transactionKey опрашивается в шлюзе, и его фактический
// статус применяется к платежу.
type Reconciler struct {
	payments domain.PaymentRepository
	gateway  domain.PaymentGateway
	applier  ResultApplier
	logger   *log.Entry
	metrics  *metrics.CommerceMetrics
	interval time.Duration
	minAge   time.Duration
	batch    int
	now      func() time.Time
}

// NewReconciler создаёт reconciliation-воркер.
func NewReconciler(payments domain.PaymentRepository, gateway domain.PaymentGateway, applier ResultApplier, options ...ReconcilerOption) *Reconciler {
	opts := ReconcilerOptions{
		Interval: defaultReconcileInterval,
		MinAge:   defaultReconcileAge,
		Batch:    defaultReconcileBatch,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "payment-reconciler")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultReconcileInterval
	}
	if opts.MinAge <= 0 {
		opts.MinAge = defaultReconcileAge
	}
	if opts.Batch <= 0 {
		opts.Batch = defaultReconcileBatch
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &Reconciler{
		payments: payments,
		gateway:  gateway,
		applier:  applier,
		logger:   logger,
		metrics:  opts.Metrics,
		interval: opts.Interval,
		minAge:   opts.MinAge,
		batch:    opts.Batch,
		now:      clock,
	}
}

// Run запускает периодическую reconciliation до отмены ctx.
func (rc *Reconciler) Run(ctx context.Context) {
	if rc.payments == nil || rc.gateway == nil || rc.applier == nil {
		rc.logger.Warn("payment reconciler is disabled: missing dependencies")
		return
	}

	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rc.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет один цикл reconciliation.
func (rc *Reconciler) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	cutoff := rc.now().Add(-rc.minAge)
	stale, err := rc.payments.ListStalePending(ctx, cutoff, rc.batch)
	if err != nil {
		rc.logger.WithError(err).Warn("failed to list stale pending payments")
		return
	}

	for _, payment := range stale {
		if ctx.Err() != nil {
			return
		}
		// Без transactionKey статус в шлюзе запросить нечем:
		// платёж остаётся PENDING до ручного вмешательства.
		if payment.TransactionKey == "" {
			rc.logger.WithField("payment_id", payment.ID).Warn("stale pending payment without transaction key")
			continue
		}

		started := time.Now()
		result, err := rc.gateway.GetTransaction(ctx, payment.UserID, payment.TransactionKey)
		if rc.metrics != nil {
			rc.metrics.RecordGatewayDuration("get_transaction", time.Since(started))
		}
		if err != nil {
			rc.logger.WithError(err).WithField("payment_id", payment.ID).Warn("failed to query gateway transaction")
			continue
		}

		if err := rc.applier.ApplyGatewayResult(ctx, payment.ID, result); err != nil {
			rc.logger.WithError(err).WithField("payment_id", payment.ID).Error("failed to apply reconciled result")
		}
	}
}
