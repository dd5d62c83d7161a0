package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
)

type likeKey struct {
	userID    int64
	productID int64
}

type rankKey struct {
	periodType  domain.PeriodType
	periodStart time.Time
	productID   int64
}

// state — всё содержимое in-memory хранилища. Копируется целиком
// при старте транзакции, чтобы откат был честным.
type state struct {
	users        map[int64]domain.User
	usersByLogin map[string]int64
	products     map[int64]domain.Product
	brands       map[int64]domain.Brand
	likes        map[likeKey]domain.Like
	orders       map[int64]domain.Order
	payments     map[int64]domain.Payment
	coupons      map[string]domain.Coupon
	outbox       map[string]domain.OutboxMessage
	outboxOrder  []string
	handled      map[string]domain.EventHandled
	metrics      map[int64]domain.ProductMetrics
	rankScores   map[int64]domain.ProductRankScore
	ranks        map[rankKey]domain.ProductRank

	nextUserID    int64
	nextProductID int64
	nextBrandID   int64
	nextOrderID   int64
	nextPaymentID int64
}

func newState() *state {
	return &state{
		users:        make(map[int64]domain.User),
		usersByLogin: make(map[string]int64),
		products:     make(map[int64]domain.Product),
		brands:       make(map[int64]domain.Brand),
		likes:        make(map[likeKey]domain.Like),
		orders:       make(map[int64]domain.Order),
		payments:     make(map[int64]domain.Payment),
		coupons:      make(map[string]domain.Coupon),
		outbox:       make(map[string]domain.OutboxMessage),
		handled:      make(map[string]domain.EventHandled),
		metrics:      make(map[int64]domain.ProductMetrics),
		rankScores:   make(map[int64]domain.ProductRankScore),
		ranks:        make(map[rankKey]domain.ProductRank),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = cloneUser(v)
	}
	for k, v := range s.usersByLogin {
		c.usersByLogin[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.brands {
		c.brands[k] = v
	}
	for k, v := range s.likes {
		c.likes[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = cloneOrder(v)
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.coupons {
		c.coupons[k] = v
	}
	for k, v := range s.outbox {
		c.outbox[k] = cloneOutbox(v)
	}
	c.outboxOrder = append(c.outboxOrder, s.outboxOrder...)
	for k, v := range s.handled {
		c.handled[k] = v
	}
	for k, v := range s.metrics {
		c.metrics[k] = v
	}
	for k, v := range s.rankScores {
		c.rankScores[k] = v
	}
	for k, v := range s.ranks {
		c.ranks[k] = v
	}
	c.nextUserID = s.nextUserID
	c.nextProductID = s.nextProductID
	c.nextBrandID = s.nextBrandID
	c.nextOrderID = s.nextOrderID
	c.nextPaymentID = s.nextPaymentID
	return c
}

func cloneUser(u domain.User) domain.User {
	return u
}

func cloneOrder(o domain.Order) domain.Order {
	items := make([]domain.OrderItem, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return o
}

func cloneOutbox(m domain.OutboxMessage) domain.OutboxMessage {
	payload := make([]byte, len(m.Payload))
	copy(payload, m.Payload)
	m.Payload = payload
	if m.PublishedAt != nil {
		at := *m.PublishedAt
		m.PublishedAt = &at
	}
	return m
}

// Store — in-memory реализация UnitOfWork и всех репозиториев.
// Используется в тестах и для локального запуска без PostgreSQL.
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{state: newState()}
}

// Within выполняет fn в "транзакции": на время работы берётся глобальный
// мьютекс, при ошибке состояние откатывается к снапшоту целиком.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, r domain.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.state.clone()
	if err := fn(ctx, s.repositories()); err != nil {
		// Откат копирует снапшот в тот же объект state: репозитории,
		// выданные через Repositories(), остаются привязанными к нему.
		*s.state = *snapshot
		return err
	}
	return nil
}

// Repositories возвращает репозитории поверх текущего состояния без
// транзакции. Синхронизации нет — только для тестов и локальной сборки.
func (s *Store) Repositories() domain.Repositories {
	return s.repositories()
}

func (s *Store) repositories() domain.Repositories {
	return domain.Repositories{
		Users:      &userRepository{state: s.state},
		Products:   &productRepository{state: s.state},
		Brands:     &brandRepository{state: s.state},
		Likes:      &likeRepository{state: s.state},
		Orders:     &orderRepository{state: s.state},
		Payments:   &paymentRepository{state: s.state},
		Coupons:    &couponRepository{state: s.state},
		Outbox:     &outboxRepository{state: s.state},
		Handled:    &eventHandledRepository{state: s.state},
		Metrics:    &metricsRepository{state: s.state},
		RankScores: &rankScoreRepository{state: s.state},
		Ranks:      &rankRepository{state: s.state},
	}
}

var _ domain.UnitOfWork = (*Store)(nil)
