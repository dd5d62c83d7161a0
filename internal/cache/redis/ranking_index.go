package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
)

// rankingKeyTTL — TTL суточного ключа: два дня от первой записи.
const rankingKeyTTL = 2 * 24 * time.Hour

// RankingIndex — суточный взвешенный рейтинг на Redis ZSET.
// Ключ — ranking:all:YYYYMMDD, member — productId, score — double.
type RankingIndex struct {
	client *goredis.Client
}

// NewRankingIndex создаёт ZSET-рейтинг поверх клиента Redis.
func NewRankingIndex(client *goredis.Client) *RankingIndex {
	return &RankingIndex{client: client}
}

// Key возвращает ключ рейтинга для дня day.
func Key(day time.Time) string {
	return "ranking:all:" + day.Format("20060102")
}

// IncrementScore добавляет delta к score товара за день day.
// TTL ключа выставляется только если ещё не задан: ключ живёт два дня
// от первой записи, а не от последней.
func (r *RankingIndex) IncrementScore(ctx context.Context, day time.Time, productID int64, delta float64) error {
	key := Key(day)
	member := strconv.FormatInt(productID, 10)

	if err := r.client.ZIncrBy(ctx, key, delta, member).Err(); err != nil {
		return fmt.Errorf("zincrby %s: %w", key, err)
	}
	if err := r.client.ExpireNX(ctx, key, rankingKeyTTL).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", key, err)
	}
	return nil
}

// CarryOver засеивает ключ дня tomorrow затухшей копией дня today:
// ZUNIONSTORE с весом weight.
func (r *RankingIndex) CarryOver(ctx context.Context, today, tomorrow time.Time, weight float64) error {
	src := Key(today)
	dst := Key(tomorrow)

	err := r.client.ZUnionStore(ctx, dst, &goredis.ZStore{
		Keys:    []string{src},
		Weights: []float64{weight},
	}).Err()
	if err != nil {
		return fmt.Errorf("zunionstore %s -> %s: %w", src, dst, err)
	}
	if err := r.client.ExpireNX(ctx, dst, rankingKeyTTL).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", dst, err)
	}
	return nil
}

// Top возвращает первые n позиций рейтинга дня day по убыванию score.
func (r *RankingIndex) Top(ctx context.Context, day time.Time, n int64) ([]domain.RankingEntry, error) {
	if n <= 0 {
		return []domain.RankingEntry{}, nil
	}

	members, err := r.client.ZRevRangeWithScores(ctx, Key(day), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange %s: %w", Key(day), err)
	}

	entries := make([]domain.RankingEntry, 0, len(members))
	for _, member := range members {
		raw, ok := member.Member.(string)
		if !ok {
			continue
		}
		productID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, domain.RankingEntry{ProductID: productID, Score: member.Score})
	}
	return entries, nil
}

var _ domain.RankingIndex = (*RankingIndex)(nil)
