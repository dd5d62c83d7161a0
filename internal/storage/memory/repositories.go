package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
)

// Репозитории работают поверх state без собственных блокировок:
// сериализацию обеспечивает Store.Within.

type userRepository struct{ state *state }

func (r *userRepository) Create(_ context.Context, user domain.User) (domain.User, error) {
	if _, exists := r.state.usersByLogin[user.UserID]; exists {
		return domain.User{}, domain.ErrDuplicateUser
	}
	r.state.nextUserID++
	user.ID = r.state.nextUserID
	r.state.users[user.ID] = user
	r.state.usersByLogin[user.UserID] = user.ID
	return user, nil
}

func (r *userRepository) Get(_ context.Context, id int64) (domain.User, error) {
	user, ok := r.state.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (r *userRepository) GetForUpdate(ctx context.Context, id int64) (domain.User, error) {
	return r.Get(ctx, id)
}

func (r *userRepository) Save(_ context.Context, user domain.User) error {
	if _, ok := r.state.users[user.ID]; !ok {
		return domain.ErrUserNotFound
	}
	r.state.users[user.ID] = user
	return nil
}

type productRepository struct{ state *state }

func (r *productRepository) Create(_ context.Context, product domain.Product) (domain.Product, error) {
	r.state.nextProductID++
	product.ID = r.state.nextProductID
	r.state.products[product.ID] = product
	return product, nil
}

func (r *productRepository) Get(_ context.Context, id int64) (domain.Product, error) {
	product, ok := r.state.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

func (r *productRepository) GetForUpdate(ctx context.Context, id int64) (domain.Product, error) {
	return r.Get(ctx, id)
}

func (r *productRepository) Save(_ context.Context, product domain.Product) error {
	if _, ok := r.state.products[product.ID]; !ok {
		return domain.ErrProductNotFound
	}
	r.state.products[product.ID] = product
	return nil
}

func (r *productRepository) List(_ context.Context, query domain.ProductQuery) ([]domain.Product, error) {
	result := make([]domain.Product, 0, len(r.state.products))
	for _, p := range r.state.products {
		if query.BrandID != 0 && p.BrandID != query.BrandID {
			continue
		}
		result = append(result, p)
	}

	switch query.Sort {
	case domain.SortPriceAsc:
		sort.Slice(result, func(i, j int) bool {
			if result[i].Price != result[j].Price {
				return result[i].Price < result[j].Price
			}
			return result[i].ID < result[j].ID
		})
	case domain.SortLikesDesc:
		sort.Slice(result, func(i, j int) bool {
			if result[i].LikeCount != result[j].LikeCount {
				return result[i].LikeCount > result[j].LikeCount
			}
			return result[i].ID < result[j].ID
		})
	default:
		sort.Slice(result, func(i, j int) bool {
			if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
				return result[i].CreatedAt.After(result[j].CreatedAt)
			}
			return result[i].ID > result[j].ID
		})
	}

	size := query.Size
	if size <= 0 {
		size = 20
	}
	offset := query.Page * size
	if offset >= len(result) {
		return []domain.Product{}, nil
	}
	end := offset + size
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

type brandRepository struct{ state *state }

func (r *brandRepository) Create(_ context.Context, brand domain.Brand) (domain.Brand, error) {
	r.state.nextBrandID++
	brand.ID = r.state.nextBrandID
	r.state.brands[brand.ID] = brand
	return brand, nil
}

func (r *brandRepository) Get(_ context.Context, id int64) (domain.Brand, error) {
	brand, ok := r.state.brands[id]
	if !ok {
		return domain.Brand{}, domain.ErrBrandNotFound
	}
	return brand, nil
}

func (r *brandRepository) GetByIDs(_ context.Context, ids []int64) (map[int64]domain.Brand, error) {
	result := make(map[int64]domain.Brand, len(ids))
	for _, id := range ids {
		if brand, ok := r.state.brands[id]; ok {
			result[id] = brand
		}
	}
	return result, nil
}

type likeRepository struct{ state *state }

func (r *likeRepository) Add(_ context.Context, like domain.Like) (bool, error) {
	key := likeKey{userID: like.UserID, productID: like.ProductID}
	if _, exists := r.state.likes[key]; exists {
		return false, nil
	}
	r.state.likes[key] = like
	return true, nil
}

func (r *likeRepository) Remove(_ context.Context, userID, productID int64) (bool, error) {
	key := likeKey{userID: userID, productID: productID}
	if _, exists := r.state.likes[key]; !exists {
		return false, nil
	}
	delete(r.state.likes, key)
	return true, nil
}

func (r *likeRepository) Count(_ context.Context, productID int64) (int64, error) {
	var count int64
	for key := range r.state.likes {
		if key.productID == productID {
			count++
		}
	}
	return count, nil
}

type orderRepository struct{ state *state }

func (r *orderRepository) Create(_ context.Context, order domain.Order) (domain.Order, error) {
	r.state.nextOrderID++
	order.ID = r.state.nextOrderID
	r.state.orders[order.ID] = cloneOrder(order)
	return order, nil
}

func (r *orderRepository) Get(_ context.Context, id int64) (domain.Order, error) {
	order, ok := r.state.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (r *orderRepository) GetForUpdate(ctx context.Context, id int64) (domain.Order, error) {
	return r.Get(ctx, id)
}

func (r *orderRepository) Save(_ context.Context, order domain.Order) error {
	if _, ok := r.state.orders[order.ID]; !ok {
		return domain.ErrOrderNotFound
	}
	r.state.orders[order.ID] = cloneOrder(order)
	return nil
}

type paymentRepository struct{ state *state }

func (r *paymentRepository) Create(_ context.Context, payment domain.Payment) (domain.Payment, error) {
	r.state.nextPaymentID++
	payment.ID = r.state.nextPaymentID
	r.state.payments[payment.ID] = payment
	return payment, nil
}

func (r *paymentRepository) Get(_ context.Context, id int64) (domain.Payment, error) {
	payment, ok := r.state.payments[id]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return payment, nil
}

func (r *paymentRepository) GetByOrderID(_ context.Context, orderID int64) (domain.Payment, error) {
	for _, payment := range r.state.payments {
		if payment.OrderID == orderID {
			return payment, nil
		}
	}
	return domain.Payment{}, domain.ErrPaymentNotFound
}

func (r *paymentRepository) GetForUpdate(ctx context.Context, id int64) (domain.Payment, error) {
	return r.Get(ctx, id)
}

func (r *paymentRepository) Save(_ context.Context, payment domain.Payment) error {
	if _, ok := r.state.payments[payment.ID]; !ok {
		return domain.ErrPaymentNotFound
	}
	r.state.payments[payment.ID] = payment
	return nil
}

func (r *paymentRepository) ListStalePending(_ context.Context, olderThan time.Time, limit int) ([]domain.Payment, error) {
	result := make([]domain.Payment, 0)
	for _, payment := range r.state.payments {
		if payment.Status != domain.PaymentStatusPending {
			continue
		}
		if !payment.RequiresCard() {
			continue
		}
		if !payment.UpdatedAt.Before(olderThan) {
			continue
		}
		result = append(result, payment)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type couponRepository struct{ state *state }

func (r *couponRepository) GetByCode(_ context.Context, code string) (domain.Coupon, error) {
	coupon, ok := r.state.coupons[code]
	if !ok {
		return domain.Coupon{}, domain.ErrCouponNotFound
	}
	return coupon, nil
}

func (r *couponRepository) Save(_ context.Context, coupon domain.Coupon) error {
	r.state.coupons[coupon.Code] = coupon
	return nil
}

type outboxRepository struct{ state *state }

func (r *outboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	// version = max(version)+1 в пределах (aggregate_id, aggregate_type).
	var maxVersion int64
	for _, existing := range r.state.outbox {
		if existing.AggregateID == msg.AggregateID && existing.AggregateType == msg.AggregateType {
			if existing.Version > maxVersion {
				maxVersion = existing.Version
			}
		}
	}
	msg.Version = maxVersion + 1
	msg.Status = domain.OutboxStatusPending
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	r.state.outbox[msg.ID] = cloneOutbox(msg)
	r.state.outboxOrder = append(r.state.outboxOrder, msg.ID)
	return msg, nil
}

func (r *outboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	result := make([]domain.OutboxMessage, 0, limit)
	for _, id := range r.state.outboxOrder {
		msg, ok := r.state.outbox[id]
		if !ok || msg.Status != domain.OutboxStatusPending {
			continue
		}
		result = append(result, cloneOutbox(msg))
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (r *outboxRepository) MarkPublished(_ context.Context, id string) error {
	msg, ok := r.state.outbox[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	now := time.Now().UTC()
	msg.Status = domain.OutboxStatusPublished
	msg.PublishedAt = &now
	r.state.outbox[id] = msg
	return nil
}

func (r *outboxRepository) MarkFailed(_ context.Context, id string) error {
	msg, ok := r.state.outbox[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	msg.Status = domain.OutboxStatusFailed
	r.state.outbox[id] = msg
	return nil
}

func (r *outboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	for _, id := range r.state.outboxOrder {
		msg, ok := r.state.outbox[id]
		if !ok || msg.Status != domain.OutboxStatusPending {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || msg.CreatedAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = msg.CreatedAt
		}
	}
	return stats, nil
}

type eventHandledRepository struct{ state *state }

func (r *eventHandledRepository) MarkHandled(_ context.Context, record domain.EventHandled) (bool, error) {
	if _, exists := r.state.handled[record.EventID]; exists {
		return false, nil
	}
	if record.HandledAt.IsZero() {
		record.HandledAt = time.Now().UTC()
	}
	r.state.handled[record.EventID] = record
	return true, nil
}

func (r *eventHandledRepository) IsHandled(_ context.Context, eventID string) (bool, error) {
	_, exists := r.state.handled[eventID]
	return exists, nil
}

func (r *eventHandledRepository) DeleteBefore(_ context.Context, before time.Time, limit int) (int, error) {
	deleted := 0
	for id, record := range r.state.handled {
		if limit > 0 && deleted >= limit {
			break
		}
		if record.HandledAt.Before(before) {
			delete(r.state.handled, id)
			deleted++
		}
	}
	return deleted, nil
}

type metricsRepository struct{ state *state }

func (r *metricsRepository) GetOrCreateForUpdate(_ context.Context, productID int64) (domain.ProductMetrics, error) {
	if metrics, ok := r.state.metrics[productID]; ok {
		return metrics, nil
	}
	metrics := domain.ProductMetrics{ProductID: productID, UpdatedAt: time.Now().UTC()}
	r.state.metrics[productID] = metrics
	return metrics, nil
}

func (r *metricsRepository) Save(_ context.Context, metrics domain.ProductMetrics) error {
	r.state.metrics[metrics.ProductID] = metrics
	return nil
}

func (r *metricsRepository) PageByUpdatedAt(_ context.Context, from, to time.Time, afterProductID int64, limit int) ([]domain.ProductMetrics, error) {
	if limit <= 0 {
		limit = 100
	}
	result := make([]domain.ProductMetrics, 0, limit)
	for _, m := range r.state.metrics {
		if m.ProductID <= afterProductID {
			continue
		}
		if m.UpdatedAt.Before(from) || !m.UpdatedAt.Before(to) {
			continue
		}
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ProductID < result[j].ProductID })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type rankScoreRepository struct{ state *state }

func (r *rankScoreRepository) BatchGet(_ context.Context, productIDs []int64) (map[int64]domain.ProductRankScore, error) {
	result := make(map[int64]domain.ProductRankScore, len(productIDs))
	for _, id := range productIDs {
		if score, ok := r.state.rankScores[id]; ok {
			result[id] = score
		}
	}
	return result, nil
}

func (r *rankScoreRepository) Upsert(_ context.Context, score domain.ProductRankScore) error {
	r.state.rankScores[score.ProductID] = score
	return nil
}

func (r *rankScoreRepository) ListByScoreDesc(_ context.Context, offset, limit int) ([]domain.ProductRankScore, error) {
	all := make([]domain.ProductRankScore, 0, len(r.state.rankScores))
	for _, score := range r.state.rankScores {
		all = append(all, score)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].ProductID < all[j].ProductID
	})
	if offset >= len(all) {
		return []domain.ProductRankScore{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *rankScoreRepository) Clear(_ context.Context) error {
	r.state.rankScores = make(map[int64]domain.ProductRankScore)
	return nil
}

type rankRepository struct{ state *state }

func (r *rankRepository) SaveRanks(_ context.Context, periodType domain.PeriodType, periodStart time.Time, ranks []domain.ProductRank) error {
	for key := range r.state.ranks {
		if key.periodType == periodType && key.periodStart.Equal(periodStart) {
			delete(r.state.ranks, key)
		}
	}
	for _, rank := range ranks {
		key := rankKey{periodType: periodType, periodStart: periodStart, productID: rank.ProductID}
		rank.PeriodType = periodType
		rank.PeriodStart = periodStart
		r.state.ranks[key] = rank
	}
	return nil
}

func (r *rankRepository) ListRanks(_ context.Context, periodType domain.PeriodType, periodStart time.Time) ([]domain.ProductRank, error) {
	result := make([]domain.ProductRank, 0)
	for key, rank := range r.state.ranks {
		if key.periodType == periodType && key.periodStart.Equal(periodStart) {
			result = append(result, rank)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Rank < result[j].Rank })
	return result, nil
}

var (
	_ domain.UserRepository           = (*userRepository)(nil)
	_ domain.ProductRepository        = (*productRepository)(nil)
	_ domain.BrandRepository          = (*brandRepository)(nil)
	_ domain.LikeRepository           = (*likeRepository)(nil)
	_ domain.OrderRepository          = (*orderRepository)(nil)
	_ domain.PaymentRepository        = (*paymentRepository)(nil)
	_ domain.CouponRepository         = (*couponRepository)(nil)
	_ domain.OutboxRepository         = (*outboxRepository)(nil)
	_ domain.EventHandledRepository   = (*eventHandledRepository)(nil)
	_ domain.ProductMetricsRepository = (*metricsRepository)(nil)
	_ domain.RankScoreRepository      = (*rankScoreRepository)(nil)
	_ domain.ProductRankRepository    = (*rankRepository)(nil)
)
