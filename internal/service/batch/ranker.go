package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
)

var (
	rankBatchRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_rank_batch_runs_total",
		Help: "Количество прогонов батч-рейтинга по результату",
	}, []string{"period_type", "result"})

	rankBatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "commerce_rank_batch_duration_seconds",
		Help:    "Длительность прогона батч-рейтинга",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"period_type"})
)

const defaultChunkSize = 100

// Ranker материализует периодический лидерборд в два шага:
// сначала метрики периода сворачиваются в product_rank_scores чанками,
// затем отсортированный поток строк превращается в top-100 и пишется
// одним delete-then-insert.
type Ranker struct {
	uow       domain.UnitOfWork
	logger    *log.Entry
	chunkSize int
	now       func() time.Time
}

// RankerOption настраивает Ranker.
type RankerOption func(*Ranker)

// WithRankerLogger задаёт логгер.
func WithRankerLogger(logger *log.Entry) RankerOption {
	return func(r *Ranker) { r.logger = logger }
}

// WithChunkSize задаёт размер чанка пагинации.
func WithChunkSize(size int) RankerOption {
	return func(r *Ranker) {
		if size > 0 {
			r.chunkSize = size
		}
	}
}

// WithRankerClock задаёт источник времени.
func WithRankerClock(now func() time.Time) RankerOption {
	return func(r *Ranker) { r.now = now }
}

// NewRanker создаёт батч-ранкер.
func NewRanker(uow domain.UnitOfWork, opts ...RankerOption) *Ranker {
	r := &Ranker{
		uow:       uow,
		logger:    log.WithField("component", "rank-batch"),
		chunkSize: defaultChunkSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run выполняет полный прогон для периода, содержащего targetDate.
func (r *Ranker) Run(ctx context.Context, periodType domain.PeriodType, targetDate time.Time) error {
	started := r.now()
	periodStart, periodEnd := domain.PeriodRange(periodType, targetDate)

	logger := r.logger.WithFields(log.Fields{
		"period_type":  string(periodType),
		"period_start": periodStart.Format("2006-01-02"),
	})
	logger.Info("rank batch started")

	if err := r.run(ctx, periodType, periodStart, periodEnd); err != nil {
		rankBatchRuns.WithLabelValues(string(periodType), "error").Inc()
		return err
	}

	elapsed := r.now().Sub(started)
	rankBatchRuns.WithLabelValues(string(periodType), "success").Inc()
	rankBatchDuration.WithLabelValues(string(periodType)).Observe(elapsed.Seconds())
	logger.WithField("elapsed", elapsed.String()).Info("rank batch finished")
	return nil
}

func (r *Ranker) run(ctx context.Context, periodType domain.PeriodType, periodStart, periodEnd time.Time) error {
	// Таблица агрегации живёт только в рамках прогона.
	err := r.uow.Within(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.RankScores.Clear(ctx)
	})
	if err != nil {
		return fmt.Errorf("clear rank scores: %w", err)
	}

	aggregated, err := r.aggregate(ctx, periodStart, periodEnd)
	if err != nil {
		return fmt.Errorf("aggregate metrics: %w", err)
	}

	ranks, err := r.collectTop(ctx, periodType, periodStart)
	if err != nil {
		return fmt.Errorf("collect top ranks: %w", err)
	}

	err = r.uow.Within(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Ranks.SaveRanks(ctx, periodType, periodStart, ranks)
	})
	if err != nil {
		return fmt.Errorf("save ranks: %w", err)
	}

	r.logger.WithFields(log.Fields{
		"aggregated": aggregated,
		"ranked":     len(ranks),
	}).Debug("rank batch pass complete")
	return nil
}

// aggregate — шаг 1: метрики с активностью в [periodStart, periodEnd)
// читаются чанками по product_id и сворачиваются в product_rank_scores.
func (r *Ranker) aggregate(ctx context.Context, periodStart, periodEnd time.Time) (int, error) {
	var (
		aggregated     int
		afterProductID int64
	)

	for {
		var page []domain.ProductMetrics
		err := r.uow.Within(ctx, func(ctx context.Context, repos domain.Repositories) error {
			var err error
			page, err = repos.Metrics.PageByUpdatedAt(ctx, periodStart, periodEnd, afterProductID, r.chunkSize)
			if err != nil {
				return err
			}
			if len(page) == 0 {
				return nil
			}

			ids := make([]int64, 0, len(page))
			for _, m := range page {
				ids = append(ids, m.ProductID)
			}
			existing, err := repos.RankScores.BatchGet(ctx, ids)
			if err != nil {
				return err
			}

			for _, m := range page {
				score := existing[m.ProductID]
				score.ProductID = m.ProductID
				score.LikeCount += m.LikeCount
				score.SalesCount += m.SalesCount
				score.ViewCount += m.ViewCount
				score.Recalculate()
				if err := repos.RankScores.Upsert(ctx, score); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return aggregated, err
		}
		if len(page) == 0 {
			return aggregated, nil
		}

		aggregated += len(page)
		afterProductID = page[len(page)-1].ProductID
	}
}

// collectTop — шаг 2: поток строк по убыванию score сворачивается в буфер
// первых TopRankLimit позиций; позиция присваивается счётчиком по порядку
// чтения, хвост за пределами лимита не материализуется.
func (r *Ranker) collectTop(ctx context.Context, periodType domain.PeriodType, periodStart time.Time) ([]domain.ProductRank, error) {
	ranks := make([]domain.ProductRank, 0, domain.TopRankLimit)
	offset := 0

	for len(ranks) < domain.TopRankLimit {
		var page []domain.ProductRankScore
		err := r.uow.Within(ctx, func(ctx context.Context, repos domain.Repositories) error {
			var err error
			page, err = repos.RankScores.ListByScoreDesc(ctx, offset, r.chunkSize)
			return err
		})
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		for _, score := range page {
			if len(ranks) >= domain.TopRankLimit {
				break
			}
			ranks = append(ranks, domain.ProductRank{
				PeriodType:  periodType,
				PeriodStart: periodStart,
				ProductID:   score.ProductID,
				Rank:        len(ranks) + 1,
				LikeCount:   score.LikeCount,
				SalesCount:  score.SalesCount,
				ViewCount:   score.ViewCount,
				Score:       score.Score,
			})
		}
		offset += len(page)
	}
	return ranks, nil
}
