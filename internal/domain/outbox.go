package domain

import "time"

// OutboxStatus — состояние записи transactional outbox.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusPublished OutboxStatus = "PUBLISHED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// OutboxMessage — событие, записанное в той же локальной транзакции,
// что и бизнес-мутация. Version строго растёт в пределах
// (AggregateID, AggregateType) в порядке коммитов.
type OutboxMessage struct {
	ID            string // event_id (UUID), попадает в заголовок eventId
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	PartitionKey  string
	Version       int64
	Payload       []byte
	Status        OutboxStatus
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// EventHandled — запись таблицы идемпотентности консьюмеров.
// Уникальность EventID гарантирует at-most-once применение эффекта.
type EventHandled struct {
	EventID   string
	EventType string
	Topic     string
	HandledAt time.Time
}
