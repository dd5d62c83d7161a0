package like

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

const aggregateLike = "like"

// Options задаёт опциональные зависимости сервиса лайков.
type Options struct {
	Logger *log.Entry
	Clock  func() time.Time
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) { opts.Logger = logger }
}

// WithClock задаёт источник времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) { opts.Clock = clock }
}

// Service управляет отметками "нравится". Добавление идемпотентно по
// уникальной паре (userId, productId); событие пишется в outbox только
// когда состояние реально изменилось.
type Service struct {
	uow    domain.UnitOfWork
	logger *log.Entry
	now    func() time.Time
}

// NewService создаёт сервис лайков.
func NewService(uow domain.UnitOfWork, options ...Option) *Service {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "like-service")
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &Service{uow: uow, logger: logger, now: clock}
}

// Add ставит лайк. Повторный вызов для той же пары — no-op без события.
// Возвращает true, если лайк добавлен этим вызовом.
func (s *Service) Add(ctx context.Context, userID, productID int64) (bool, error) {
	var added bool

	err := s.uow.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		if _, err := r.Products.Get(ctx, productID); err != nil {
			return err
		}

		applied, err := r.Likes.Add(ctx, domain.Like{
			UserID:    userID,
			ProductID: productID,
			CreatedAt: s.now(),
		})
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		added = true

		return enqueueLikeEvent(ctx, r, productID, kafka.EventTypeLikeAdded, kafka.LikeAddedEvent{
			UserID:    userID,
			ProductID: productID,
		})
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

// Remove снимает лайк. Отсутствующая пара — no-op без события.
// Возвращает true, если лайк удалён этим вызовом.
func (s *Service) Remove(ctx context.Context, userID, productID int64) (bool, error) {
	var removed bool

	err := s.uow.Within(ctx, func(ctx context.Context, r domain.Repositories) error {
		applied, err := r.Likes.Remove(ctx, userID, productID)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		removed = true

		return enqueueLikeEvent(ctx, r, productID, kafka.EventTypeLikeRemoved, kafka.LikeRemovedEvent{
			UserID:    userID,
			ProductID: productID,
		})
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

func enqueueLikeEvent(ctx context.Context, r domain.Repositories, productID int64, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	_, err = r.Outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: aggregateLike,
		AggregateID:   strconv.FormatInt(productID, 10),
		EventType:     eventType,
		Topic:         kafka.TopicLikeEvents,
		PartitionKey:  strconv.FormatInt(productID, 10),
		Payload:       body,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	return nil
}
