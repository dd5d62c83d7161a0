package domain

import (
	"context"
	"time"
)

// GatewayResult — результат вызова платёжного шлюза.
type GatewayResult struct {
	TransactionKey string
	Status         PaymentStatus
	ErrorCode      string
	Message        string
}

// GatewayRequest — запрос на списание средств.
type GatewayRequest struct {
	OrderID     int64
	UserID      int64
	CardType    string
	CardNo      string
	Amount      int64
	CallbackURL string
}

// PaymentGateway описывает исходящее взаимодействие с PG.
// Все вызовы несут дедлайн; реализация оборачивает их в retry и circuit breaker.
type PaymentGateway interface {
	RequestPayment(ctx context.Context, req GatewayRequest) (GatewayResult, error)
	// GetTransaction запрашивает статус транзакции для reconciliation.
	GetTransaction(ctx context.Context, userID int64, transactionKey string) (GatewayResult, error)
}

// RankingEntry — позиция в суточном ZSET-рейтинге.
type RankingEntry struct {
	ProductID int64
	Score     float64
}

// RankingIndex — суточный взвешенный рейтинг (Redis ZSET на ключ дня).
type RankingIndex interface {
	// IncrementScore добавляет delta к score товара за день day
	// и выставляет TTL ключа, если он ещё не задан.
	IncrementScore(ctx context.Context, day time.Time, productID int64, delta float64) error
	// CarryOver засеивает завтрашний ключ затухшей копией сегодняшнего
	// (ZUNIONSTORE WEIGHTS weight).
	CarryOver(ctx context.Context, today, tomorrow time.Time, weight float64) error
	Top(ctx context.Context, day time.Time, n int64) ([]RankingEntry, error)
}

// ProductCache — read-through кэш листингов и деталей товара.
type ProductCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePattern удаляет ключи по маске server-side (SCAN+DEL, не KEYS).
	DeletePattern(ctx context.Context, pattern string) error
}

// OutboxPublisher публикует события из transactional outbox; должен быть
// идемпотентным — relay может доставить сообщение повторно.
type OutboxPublisher interface {
	Publish(ctx context.Context, msg OutboxMessage) error
}
