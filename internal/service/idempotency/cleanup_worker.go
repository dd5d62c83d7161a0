package idempotency

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
)

var (
	cleanupDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commerce_idempotency_cleanup_deleted_total",
		Help: "Количество удалённых записей event_handled",
	})
	cleanupErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commerce_idempotency_cleanup_errors_total",
		Help: "Количество ошибок очистки event_handled",
	})
)

const (
	defaultRetention       = 7 * 24 * time.Hour
	defaultCleanupInterval = time.Hour
	defaultCleanupBatch    = 1000
)

// CleanupWorker удаляет записи event_handled старше окна хранения.
// Удаление идёт ограниченными пачками, чтобы не держать долгих
// транзакций на горячей таблице.
type CleanupWorker struct {
	uow       domain.UnitOfWork
	logger    *log.Entry
	retention time.Duration
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupWorker)

// WithCleanupLogger задаёт логгер.
func WithCleanupLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) { w.logger = logger }
}

// WithRetention задаёт окно хранения записей.
func WithRetention(retention time.Duration) CleanupOption {
	return func(w *CleanupWorker) {
		if retention > 0 {
			w.retention = retention
		}
	}
}

// WithCleanupInterval задаёт период запуска.
func WithCleanupInterval(interval time.Duration) CleanupOption {
	return func(w *CleanupWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithCleanupBatchSize задаёт размер пачки удаления.
func WithCleanupBatchSize(size int) CleanupOption {
	return func(w *CleanupWorker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithCleanupClock задаёт источник времени.
func WithCleanupClock(now func() time.Time) CleanupOption {
	return func(w *CleanupWorker) { w.now = now }
}

// NewCleanupWorker создаёт воркер очистки таблицы идемпотентности.
func NewCleanupWorker(uow domain.UnitOfWork, opts ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{
		uow:       uow,
		logger:    log.WithField("component", "idempotency-cleanup"),
		retention: defaultRetention,
		interval:  defaultCleanupInterval,
		batchSize: defaultCleanupBatch,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run запускает периодическую очистку до отмены контекста.
func (w *CleanupWorker) Run(ctx context.Context) {
	w.logger.WithFields(log.Fields{
		"retention":  w.retention.String(),
		"interval":   w.interval.String(),
		"batch_size": w.batchSize,
	}).Info("idempotency cleanup worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("idempotency cleanup worker stopped")
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce удаляет просроченные записи пачками, пока очередная пачка
// не окажется неполной.
func (w *CleanupWorker) ProcessOnce(ctx context.Context) {
	cutoff := w.now().Add(-w.retention)
	total := 0

	for {
		var deleted int
		err := w.uow.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
			var err error
			deleted, err = r.Handled.DeleteBefore(ctx, cutoff, w.batchSize)
			return err
		})
		if err != nil {
			cleanupErrors.Inc()
			w.logger.WithError(err).Warn("failed to delete expired event_handled rows")
			return
		}

		total += deleted
		cleanupDeleted.Add(float64(deleted))
		if deleted < w.batchSize {
			break
		}
	}

	if total > 0 {
		w.logger.WithFields(log.Fields{
			"deleted": total,
			"cutoff":  cutoff.Format(time.RFC3339),
		}).Info("expired idempotency records removed")
	}
}
