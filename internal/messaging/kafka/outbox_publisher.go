package kafka

import (
	"context"
	"fmt"
	"strconv"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в Kafka.
// Топик и ключ партиционирования берутся из самой строки outbox,
// заголовки eventId/eventType/version прикладываются к каждому сообщению.
type OutboxTopicPublisher struct {
	producer *Producer
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer) domain.OutboxPublisher {
	return &OutboxTopicPublisher{producer: producer}
}

func (p *OutboxTopicPublisher) Publish(_ context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}
	if msg.Topic == "" {
		return fmt.Errorf("outbox message %s has no topic", msg.ID)
	}

	key := msg.PartitionKey
	if key == "" {
		key = msg.AggregateID
	}

	headers := []Header{
		{Key: HeaderEventID, Value: msg.ID},
		{Key: HeaderEventType, Value: msg.EventType},
		{Key: HeaderVersion, Value: strconv.FormatInt(msg.Version, 10)},
	}

	return p.producer.Publish(msg.Topic, key, msg.Payload, headers)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
