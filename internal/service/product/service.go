package product

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
	"github.com/vladislavdragonenkov/commerce-core/internal/messaging/kafka"
)

const (
	aggregateProduct = "product"

	listCacheTTL   = 5 * time.Minute
	detailCacheTTL = 5 * time.Minute
)

// View — товар вместе с именем бренда для выдачи наружу.
type View struct {
	ID        int64  `json:"id"`
	BrandID   int64  `json:"brandId"`
	BrandName string `json:"brandName,omitempty"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Stock     int64  `json:"stock"`
	LikeCount int64  `json:"likeCount"`
}

// Options задаёт опциональные зависимости read-side сервиса товаров.
type Options struct {
	Logger *log.Entry
	Cache  domain.ProductCache
	Clock  func() time.Time
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) { opts.Logger = logger }
}

// WithCache задаёт read-through кэш.
func WithCache(cache domain.ProductCache) Option {
	return func(opts *Options) { opts.Cache = cache }
}

// WithClock задаёт источник времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) { opts.Clock = clock }
}

// Service — read-side товаров: листинг с кэшем и батч-подгрузкой брендов,
// карточка товара с кэшем и событием просмотра.
type Service struct {
	uow    domain.UnitOfWork
	cache  domain.ProductCache
	logger *log.Entry
	now    func() time.Time
}

// NewService создаёт сервис товаров.
func NewService(uow domain.UnitOfWork, options ...Option) *Service {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "product-service")
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &Service{uow: uow, cache: opts.Cache, logger: logger, now: clock}
}

// ListCacheKey строит ключ кэша листинга для запроса query.
func ListCacheKey(query domain.ProductQuery) string {
	brand := "all"
	if query.BrandID > 0 {
		brand = strconv.FormatInt(query.BrandID, 10)
	}
	sort := string(query.Sort)
	if sort == "" {
		sort = string(domain.SortLatest)
	}
	return fmt.Sprintf("product:list:brand:%s:sort:%s:page:%d:size:%d",
		brand, sort, query.Page, query.Size)
}

// DetailCacheKey строит ключ кэша карточки товара.
func DetailCacheKey(productID int64) string {
	return "product:detail:" + strconv.FormatInt(productID, 10)
}

// List возвращает страницу товаров с именами брендов.
// Кэшируется только первая страница: хвостовые страницы читают редко,
// а их инвалидация стоила бы столько же, сколько и первой.
func (s *Service) List(ctx context.Context, query domain.ProductQuery) ([]View, error) {
	cacheable := s.cache != nil && query.Page == 0
	key := ListCacheKey(query)

	if cacheable {
		if views, ok := s.cacheGetViews(ctx, key); ok {
			return views, nil
		}
	}

	var views []View
	err := s.uow.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		products, err := r.Products.List(ctx, query)
		if err != nil {
			return err
		}
		views, err = s.toViews(ctx, r, products)
		return err
	})
	if err != nil {
		return nil, err
	}

	if cacheable {
		s.cacheSetViews(ctx, key, views, listCacheTTL)
	}
	return views, nil
}

// Detail возвращает карточку товара и пишет ProductViewed в outbox.
// Событие фиксируется и на попадании в кэш: счётчик просмотров не должен
// зависеть от того, откуда отдан ответ.
func (s *Service) Detail(ctx context.Context, productID int64, viewerID int64) (View, error) {
	key := DetailCacheKey(productID)

	if s.cache != nil {
		if view, ok := s.cacheGetView(ctx, key); ok {
			if err := s.recordView(ctx, productID, viewerID); err != nil {
				return View{}, err
			}
			return view, nil
		}
	}

	var view View
	err := s.uow.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		product, err := r.Products.Get(ctx, productID)
		if err != nil {
			return err
		}
		views, err := s.toViews(ctx, r, []domain.Product{product})
		if err != nil {
			return err
		}
		view = views[0]

		return enqueueProductViewed(ctx, r, productID, viewerID)
	})
	if err != nil {
		return View{}, err
	}

	if s.cache != nil {
		body, marshalErr := json.Marshal(view)
		if marshalErr == nil {
			if cacheErr := s.cache.Set(ctx, key, string(body), detailCacheTTL); cacheErr != nil {
				s.logger.WithError(cacheErr).WithField("key", key).Warn("failed to cache product detail")
			}
		}
	}
	return view, nil
}

func (s *Service) recordView(ctx context.Context, productID, viewerID int64) error {
	return s.uow.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		return enqueueProductViewed(ctx, r, productID, viewerID)
	})
}

// toViews подгружает бренды одним запросом — никакого N+1 по строкам листинга.
func (s *Service) toViews(ctx context.Context, r domain.Repositories, products []domain.Product) ([]View, error) {
	brandIDs := make([]int64, 0, len(products))
	seen := make(map[int64]struct{}, len(products))
	for _, p := range products {
		if _, ok := seen[p.BrandID]; ok {
			continue
		}
		seen[p.BrandID] = struct{}{}
		brandIDs = append(brandIDs, p.BrandID)
	}

	brands := map[int64]domain.Brand{}
	if len(brandIDs) > 0 {
		var err error
		brands, err = r.Brands.GetByIDs(ctx, brandIDs)
		if err != nil {
			return nil, fmt.Errorf("load brands: %w", err)
		}
	}

	views := make([]View, 0, len(products))
	for _, p := range products {
		views = append(views, View{
			ID:        p.ID,
			BrandID:   p.BrandID,
			BrandName: brands[p.BrandID].Name,
			Name:      p.Name,
			Price:     p.Price,
			Stock:     p.Stock,
			LikeCount: p.LikeCount,
		})
	}
	return views, nil
}

func (s *Service) cacheGetViews(ctx context.Context, key string) ([]View, bool) {
	raw, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("product list cache read failed")
		return nil, false
	}
	if !hit {
		return nil, false
	}
	var views []View
	if err := json.Unmarshal([]byte(raw), &views); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("corrupt product list cache entry")
		return nil, false
	}
	return views, true
}

func (s *Service) cacheSetViews(ctx context.Context, key string, views []View, ttl time.Duration) {
	body, err := json.Marshal(views)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, string(body), ttl); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("failed to cache product list")
	}
}

func (s *Service) cacheGetView(ctx context.Context, key string) (View, bool) {
	raw, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("product detail cache read failed")
		return View{}, false
	}
	if !hit {
		return View{}, false
	}
	var view View
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("corrupt product detail cache entry")
		return View{}, false
	}
	return view, true
}

func enqueueProductViewed(ctx context.Context, r domain.Repositories, productID, viewerID int64) error {
	body, err := json.Marshal(kafka.ProductViewedEvent{
		ProductID: productID,
		UserID:    viewerID,
	})
	if err != nil {
		return fmt.Errorf("marshal ProductViewed payload: %w", err)
	}

	_, err = r.Outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: aggregateProduct,
		AggregateID:   strconv.FormatInt(productID, 10),
		EventType:     kafka.EventTypeProductViewed,
		Topic:         kafka.TopicProductEvents,
		PartitionKey:  strconv.FormatInt(productID, 10),
		Payload:       body,
	})
	if err != nil {
		return fmt.Errorf("enqueue ProductViewed: %w", err)
	}
	return nil
}

// Invalidate сбрасывает кэш карточки товара и все страницы листингов.
// Вызывается после мутации товара.
func (s *Service) Invalidate(ctx context.Context, productID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, DetailCacheKey(productID)); err != nil {
		s.logger.WithError(err).WithField("product_id", productID).Warn("failed to invalidate product detail cache")
	}
	if err := s.cache.DeletePattern(ctx, "product:list:*"); err != nil {
		s.logger.WithError(err).Warn("failed to invalidate product list cache")
	}
}

// InvalidateBrand сбрасывает листинги одного бренда (и общие "all"-листинги).
func (s *Service) InvalidateBrand(ctx context.Context, brandID int64) {
	if s.cache == nil {
		return
	}
	pattern := fmt.Sprintf("product:list:brand:%d:*", brandID)
	if err := s.cache.DeletePattern(ctx, pattern); err != nil {
		s.logger.WithError(err).WithField("brand_id", brandID).Warn("failed to invalidate brand listing cache")
	}
	if err := s.cache.DeletePattern(ctx, "product:list:brand:all:*"); err != nil {
		s.logger.WithError(err).Warn("failed to invalidate brand listing cache")
	}
}
