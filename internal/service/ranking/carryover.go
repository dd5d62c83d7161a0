package ranking

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
)

var carryOverRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "commerce_ranking_carry_over_runs_total",
	Help: "Количество прогонов carry-over суточного рейтинга по результату",
}, []string{"result"})

const (
	defaultCheckInterval   = 10 * time.Minute
	defaultCarryOverWeight = 0.1
)

// CarryOverWorker ежедневно засеивает завтрашний ключ рейтинга затухшей
// копией сегодняшнего, чтобы рейтинг не обнулялся в полночь.
type CarryOverWorker struct {
	ranking  domain.RankingIndex
	logger   *log.Entry
	interval time.Duration
	weight   float64
	now      func() time.Time

	lastCarried string // день YYYYMMDD, за который carry-over уже выполнен
}

// CarryOverOption настраивает CarryOverWorker.
type CarryOverOption func(*CarryOverWorker)

// WithCarryOverLogger задаёт логгер.
func WithCarryOverLogger(logger *log.Entry) CarryOverOption {
	return func(w *CarryOverWorker) { w.logger = logger }
}

// WithCheckInterval задаёт период проверки.
func WithCheckInterval(interval time.Duration) CarryOverOption {
	return func(w *CarryOverWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithCarryOverWeight задаёт вес затухания.
func WithCarryOverWeight(weight float64) CarryOverOption {
	return func(w *CarryOverWorker) {
		if weight > 0 {
			w.weight = weight
		}
	}
}

// WithCarryOverClock задаёт источник времени.
func WithCarryOverClock(now func() time.Time) CarryOverOption {
	return func(w *CarryOverWorker) { w.now = now }
}

// NewCarryOverWorker создаёт воркер carry-over.
func NewCarryOverWorker(ranking domain.RankingIndex, opts ...CarryOverOption) *CarryOverWorker {
	w := &CarryOverWorker{
		ranking:  ranking,
		logger:   log.WithField("component", "ranking-carry-over"),
		interval: defaultCheckInterval,
		weight:   defaultCarryOverWeight,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run запускает периодическую проверку до отмены контекста.
func (w *CarryOverWorker) Run(ctx context.Context) {
	w.logger.WithFields(log.Fields{
		"interval": w.interval.String(),
		"weight":   w.weight,
	}).Info("ranking carry-over worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("ranking carry-over worker stopped")
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет carry-over в последнем интервале перед полуночью,
// когда дневной ключ уже накопил почти весь день. Повторный запуск за тот же
// день — no-op: ZUNIONSTORE перезаписал бы ключ, в который уже могли прийти
// инкременты следующего дня.
func (w *CarryOverWorker) ProcessOnce(ctx context.Context) {
	today := w.now()
	day := today.Format("20060102")
	if day == w.lastCarried {
		return
	}

	midnight := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location()).AddDate(0, 0, 1)
	if midnight.Sub(today) > w.interval {
		return
	}

	tomorrow := today.AddDate(0, 0, 1)
	if err := w.ranking.CarryOver(ctx, today, tomorrow, w.weight); err != nil {
		carryOverRuns.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("failed to carry over daily ranking")
		return
	}

	w.lastCarried = day
	carryOverRuns.WithLabelValues("success").Inc()
	w.logger.WithFields(log.Fields{
		"from": day,
		"to":   tomorrow.Format("20060102"),
	}).Info("daily ranking carried over")
}
