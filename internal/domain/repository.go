package domain

import (
	"context"
	"time"
)

// ProductSort — порядок сортировки листинга товаров.
type ProductSort string

const (
	SortLatest    ProductSort = "latest"
	SortPriceAsc  ProductSort = "price_asc"
	SortLikesDesc ProductSort = "likes_desc"
)

// ProductQuery — параметры листинга. BrandID=0 означает все бренды.
type ProductQuery struct {
	BrandID int64
	Sort    ProductSort
	Page    int
	Size    int
}

// UserRepository описывает требования к хранилищу пользователей.
type UserRepository interface {
	Create(ctx context.Context, user User) (User, error)
	Get(ctx context.Context, id int64) (User, error)
	// GetForUpdate берёт строчную блокировку (SELECT ... FOR UPDATE)
	// на одну строку пользователя.
	GetForUpdate(ctx context.Context, id int64) (User, error)
	Save(ctx context.Context, user User) error
}

// ProductRepository описывает требования к хранилищу товаров.
type ProductRepository interface {
	Create(ctx context.Context, product Product) (Product, error)
	Get(ctx context.Context, id int64) (Product, error)
	GetForUpdate(ctx context.Context, id int64) (Product, error)
	Save(ctx context.Context, product Product) error
	List(ctx context.Context, query ProductQuery) ([]Product, error)
}

// BrandRepository — бренды читаются пачкой для листинга (избегаем N+1).
type BrandRepository interface {
	Create(ctx context.Context, brand Brand) (Brand, error)
	Get(ctx context.Context, id int64) (Brand, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]Brand, error)
}

// LikeRepository хранит уникальные пары (userID, productID).
type LikeRepository interface {
	// Add возвращает false, если пара уже существует (идемпотентное добавление).
	Add(ctx context.Context, like Like) (bool, error)
	// Remove возвращает false, если пары не было (no-op).
	Remove(ctx context.Context, userID, productID int64) (bool, error)
	Count(ctx context.Context, productID int64) (int64, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	Create(ctx context.Context, order Order) (Order, error)
	Get(ctx context.Context, id int64) (Order, error)
	GetForUpdate(ctx context.Context, id int64) (Order, error)
	Save(ctx context.Context, order Order) error
}

// PaymentRepository описывает требования к хранилищу платежей.
type PaymentRepository interface {
	Create(ctx context.Context, payment Payment) (Payment, error)
	Get(ctx context.Context, id int64) (Payment, error)
	GetByOrderID(ctx context.Context, orderID int64) (Payment, error)
	GetForUpdate(ctx context.Context, id int64) (Payment, error)
	Save(ctx context.Context, payment Payment) error
	// ListStalePending возвращает PENDING-платежи с transaction key старше
	// olderThan — кандидаты на reconciliation.
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]Payment, error)
}

// CouponRepository описывает требования к хранилищу купонов.
type CouponRepository interface {
	GetByCode(ctx context.Context, code string) (Coupon, error)
	Save(ctx context.Context, coupon Coupon) error
}

// OutboxRepository сохраняет события для последующей публикации.
// Enqueue назначает Version = max(version)+1 по (aggregate_id, aggregate_type);
// гонки разрешаются уникальным индексом и повторной попыткой.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkPublished(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
	Stats(ctx context.Context) (OutboxStats, error)
}

// EventHandledRepository — таблица идемпотентности консьюмеров.
type EventHandledRepository interface {
	// MarkHandled возвращает false, если eventID уже записан
	// (конкурентный консьюмер успел раньше — это тоже успех).
	MarkHandled(ctx context.Context, record EventHandled) (bool, error)
	IsHandled(ctx context.Context, eventID string) (bool, error)
	DeleteBefore(ctx context.Context, before time.Time, limit int) (int, error)
}

// ProductMetricsRepository хранит денормализованные счётчики товаров.
type ProductMetricsRepository interface {
	// GetOrCreateForUpdate берёт строчную блокировку на строку метрик,
	// создавая её при первом событии. Гонка на создании разрешается
	// unique-violation + повторным select.
	GetOrCreateForUpdate(ctx context.Context, productID int64) (ProductMetrics, error)
	Save(ctx context.Context, metrics ProductMetrics) error
	// PageByUpdatedAt постранично читает метрики с updated_at в [from, to),
	// упорядоченные по product_id, начиная после afterProductID.
	PageByUpdatedAt(ctx context.Context, from, to time.Time, afterProductID int64, limit int) ([]ProductMetrics, error)
}

// RankScoreRepository — временная таблица агрегации батч-рейтинга.
type RankScoreRepository interface {
	BatchGet(ctx context.Context, productIDs []int64) (map[int64]ProductRankScore, error)
	Upsert(ctx context.Context, score ProductRankScore) error
	// ListByScoreDesc постранично отдаёт строки по убыванию score.
	ListByScoreDesc(ctx context.Context, offset, limit int) ([]ProductRankScore, error)
	Clear(ctx context.Context) error
}

// ProductRankRepository — материализованный лидерборд.
type ProductRankRepository interface {
	// SaveRanks удаляет существующий набор (periodType, periodStart, *)
	// и вставляет ranks заново — delete-then-insert идемпотентен.
	SaveRanks(ctx context.Context, periodType PeriodType, periodStart time.Time, ranks []ProductRank) error
	ListRanks(ctx context.Context, periodType PeriodType, periodStart time.Time) ([]ProductRank, error)
}

// Repositories — набор репозиториев, связанных одной транзакцией.
type Repositories struct {
	Users      UserRepository
	Products   ProductRepository
	Brands     BrandRepository
	Likes      LikeRepository
	Orders     OrderRepository
	Payments   PaymentRepository
	Coupons    CouponRepository
	Outbox     OutboxRepository
	Handled    EventHandledRepository
	Metrics    ProductMetricsRepository
	RankScores RankScoreRepository
	Ranks      ProductRankRepository
}

// UnitOfWork выполняет fn в одной локальной транзакции: либо коммитятся
// все изменения вместе с outbox-строками, либо ни одно.
// Межагрегатные транзакции запрещены — каждая операция пишет в один агрегат
// плюс его outbox.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error
}
