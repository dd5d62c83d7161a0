package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
)

type metricsRepository struct{ q querier }

const metricsColumns = `product_id, like_count, sales_count, view_count, version, updated_at`

func scanMetrics(row *sql.Row) (domain.ProductMetrics, error) {
	var m domain.ProductMetrics
	err := row.Scan(&m.ProductID, &m.LikeCount, &m.SalesCount, &m.ViewCount, &m.Version, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProductMetrics{}, domain.ErrMetricsNotFound
	}
	if err != nil {
		return domain.ProductMetrics{}, fmt.Errorf("scan product metrics: %w", err)
	}
	return m, nil
}

// GetOrCreateForUpdate создаёт нулевую строку при первом событии по товару;
// гонку на создании разрешает ON CONFLICT DO NOTHING + повторный select.
func (r *metricsRepository) GetOrCreateForUpdate(ctx context.Context, productID int64) (domain.ProductMetrics, error) {
	m, err := scanMetrics(r.q.QueryRowContext(ctx,
		`SELECT `+metricsColumns+` FROM product_metrics WHERE product_id = $1 FOR UPDATE`, productID))
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, domain.ErrMetricsNotFound) {
		return domain.ProductMetrics{}, err
	}

	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO product_metrics (product_id, updated_at)
		VALUES ($1, NOW())
		ON CONFLICT (product_id) DO NOTHING
	`, productID); err != nil {
		return domain.ProductMetrics{}, fmt.Errorf("create product metrics: %w", err)
	}

	return scanMetrics(r.q.QueryRowContext(ctx,
		`SELECT `+metricsColumns+` FROM product_metrics WHERE product_id = $1 FOR UPDATE`, productID))
}

func (r *metricsRepository) Save(ctx context.Context, metrics domain.ProductMetrics) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE product_metrics
		SET like_count = $2, sales_count = $3, view_count = $4, version = $5, updated_at = $6
		WHERE product_id = $1
	`, metrics.ProductID, metrics.LikeCount, metrics.SalesCount, metrics.ViewCount, metrics.Version, metrics.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update product metrics %d: %w", metrics.ProductID, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return domain.ErrMetricsNotFound
	}
	return nil
}

func (r *metricsRepository) PageByUpdatedAt(ctx context.Context, from, to time.Time, afterProductID int64, limit int) ([]domain.ProductMetrics, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+metricsColumns+`
		FROM product_metrics
		WHERE updated_at >= $1 AND updated_at < $2 AND product_id > $3
		ORDER BY product_id
		LIMIT $4
	`, from, to, afterProductID, limit)
	if err != nil {
		return nil, fmt.Errorf("page product metrics: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ProductMetrics, 0, limit)
	for rows.Next() {
		var m domain.ProductMetrics
		if err := rows.Scan(&m.ProductID, &m.LikeCount, &m.SalesCount, &m.ViewCount, &m.Version, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan metrics row: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metrics rows: %w", err)
	}
	return result, nil
}

type rankScoreRepository struct{ q querier }

func (r *rankScoreRepository) BatchGet(ctx context.Context, productIDs []int64) (map[int64]domain.ProductRankScore, error) {
	if len(productIDs) == 0 {
		return map[int64]domain.ProductRankScore{}, nil
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT product_id, like_count, sales_count, view_count, score
		FROM product_rank_scores
		WHERE product_id = ANY($1)
	`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("batch get rank scores: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]domain.ProductRankScore, len(productIDs))
	for rows.Next() {
		var s domain.ProductRankScore
		if err := rows.Scan(&s.ProductID, &s.LikeCount, &s.SalesCount, &s.ViewCount, &s.Score); err != nil {
			return nil, fmt.Errorf("scan rank score row: %w", err)
		}
		result[s.ProductID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rank scores: %w", err)
	}
	return result, nil
}

func (r *rankScoreRepository) Upsert(ctx context.Context, score domain.ProductRankScore) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO product_rank_scores (product_id, like_count, sales_count, view_count, score)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id) DO UPDATE
		SET like_count = EXCLUDED.like_count,
		    sales_count = EXCLUDED.sales_count,
		    view_count = EXCLUDED.view_count,
		    score = EXCLUDED.score
	`, score.ProductID, score.LikeCount, score.SalesCount, score.ViewCount, score.Score)
	if err != nil {
		return fmt.Errorf("upsert rank score %d: %w", score.ProductID, err)
	}
	return nil
}

func (r *rankScoreRepository) ListByScoreDesc(ctx context.Context, offset, limit int) ([]domain.ProductRankScore, error) {
	if limit <= 0 {
		limit = domain.TopRankLimit
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT product_id, like_count, sales_count, view_count, score
		FROM product_rank_scores
		ORDER BY score DESC, product_id
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list rank scores: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ProductRankScore, 0, limit)
	for rows.Next() {
		var s domain.ProductRankScore
		if err := rows.Scan(&s.ProductID, &s.LikeCount, &s.SalesCount, &s.ViewCount, &s.Score); err != nil {
			return nil, fmt.Errorf("scan rank score row: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rank scores: %w", err)
	}
	return result, nil
}

func (r *rankScoreRepository) Clear(ctx context.Context) error {
	if _, err := r.q.ExecContext(ctx, `TRUNCATE product_rank_scores`); err != nil {
		return fmt.Errorf("clear rank scores: %w", err)
	}
	return nil
}

type rankRepository struct{ q querier }

func (r *rankRepository) SaveRanks(ctx context.Context, periodType domain.PeriodType, periodStart time.Time, ranks []domain.ProductRank) error {
	if _, err := r.q.ExecContext(ctx, `
		DELETE FROM product_ranks WHERE period_type = $1 AND period_start = $2
	`, string(periodType), periodStart); err != nil {
		return fmt.Errorf("delete existing ranks: %w", err)
	}

	for _, rank := range ranks {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO product_ranks (period_type, period_start, product_id, rank,
			                           like_count, sales_count, view_count, score)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, string(periodType), periodStart, rank.ProductID, rank.Rank,
			rank.LikeCount, rank.SalesCount, rank.ViewCount, rank.Score); err != nil {
			return fmt.Errorf("insert rank for product %d: %w", rank.ProductID, err)
		}
	}
	return nil
}

func (r *rankRepository) ListRanks(ctx context.Context, periodType domain.PeriodType, periodStart time.Time) ([]domain.ProductRank, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT period_type, period_start, product_id, rank, like_count, sales_count, view_count, score
		FROM product_ranks
		WHERE period_type = $1 AND period_start = $2
		ORDER BY rank
	`, string(periodType), periodStart)
	if err != nil {
		return nil, fmt.Errorf("list ranks: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ProductRank, 0, domain.TopRankLimit)
	for rows.Next() {
		var rank domain.ProductRank
		var pt string
		if err := rows.Scan(&pt, &rank.PeriodStart, &rank.ProductID, &rank.Rank,
			&rank.LikeCount, &rank.SalesCount, &rank.ViewCount, &rank.Score); err != nil {
			return nil, fmt.Errorf("scan rank row: %w", err)
		}
		rank.PeriodType = domain.PeriodType(pt)
		result = append(result, rank)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ranks: %w", err)
	}
	return result, nil
}

var (
	_ domain.ProductMetricsRepository = (*metricsRepository)(nil)
	_ domain.RankScoreRepository      = (*rankScoreRepository)(nil)
	_ domain.ProductRankRepository    = (*rankRepository)(nil)
)
