package kafka

import (
	"context"
	"fmt"
	"strconv"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
)

// HeaderOriginTopic — исходный топик сообщения, ушедшего в DLQ.
const HeaderOriginTopic = "originTopic"

// DLQPublisher отправляет невостребованные outbox-сообщения в единый
// dead letter топик независимо от их исходного топика.
type DLQPublisher struct {
	producer *Producer
}

// NewDLQPublisher создаёт паблишер dead letter очереди.
func NewDLQPublisher(producer *Producer) domain.OutboxPublisher {
	return &DLQPublisher{producer: producer}
}

func (p *DLQPublisher) Publish(_ context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka dlq publisher is not initialized")
	}

	key := msg.PartitionKey
	if key == "" {
		key = msg.AggregateID
	}

	headers := []Header{
		{Key: HeaderEventID, Value: msg.ID},
		{Key: HeaderEventType, Value: msg.EventType},
		{Key: HeaderVersion, Value: strconv.FormatInt(msg.Version, 10)},
		{Key: HeaderOriginTopic, Value: msg.Topic},
	}

	return p.producer.Publish(TopicDeadLetterQueue, key, msg.Payload, headers)
}

var _ domain.OutboxPublisher = (*DLQPublisher)(nil)
