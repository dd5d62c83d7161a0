package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
	"github.com/vladislavdragonenkov/commerce-core/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/commerce-core/internal/storage/memory"
)

type stubPublisher struct {
	published []domain.OutboxMessage
	failFirst int // первые failFirst вызовов возвращают ошибку
	calls     int
}

func (s *stubPublisher) Publish(_ context.Context, msg domain.OutboxMessage) error {
	s.calls++
	if s.calls <= s.failFirst {
		return errors.New("broker unavailable")
	}
	s.published = append(s.published, msg)
	return nil
}

func enqueue(t *testing.T, store *memory.Store, eventType string) domain.OutboxMessage {
	t.Helper()
	var msg domain.OutboxMessage
	err := store.Within(context.Background(), func(ctx context.Context, r domain.Repositories) error {
		var err error
		msg, err = r.Outbox.Enqueue(ctx, domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   "1",
			EventType:     eventType,
			Topic:         kafka.TopicOrderEvents,
			PartitionKey:  "1",
			Payload:       []byte(`{"orderId":1}`),
		})
		return err
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return msg
}

func TestProcessOncePublishesAndMarksPublished(t *testing.T) {
	store := memory.NewStore()
	enqueue(t, store, kafka.EventTypeOrderCreated)
	enqueue(t, store, kafka.EventTypePaymentRequested)

	publisher := &stubPublisher{}
	worker := NewWorker(store.Repositories().Outbox, publisher, WithRetryBaseDelay(0))
	worker.ProcessOnce(context.Background())

	if len(publisher.published) != 2 {
		t.Fatalf("expected 2 published messages, got %d", len(publisher.published))
	}
	if publisher.published[0].EventType != kafka.EventTypeOrderCreated {
		t.Errorf("messages must be published in enqueue order, got %s first", publisher.published[0].EventType)
	}

	pending, err := store.Repositories().Outbox.PullPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("PullPending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("published messages must leave PENDING, %d remain", len(pending))
	}
}

func TestProcessOnceRetriesTransientFailure(t *testing.T) {
	store := memory.NewStore()
	enqueue(t, store, kafka.EventTypeOrderCreated)

	publisher := &stubPublisher{failFirst: 2}
	worker := NewWorker(store.Repositories().Outbox, publisher,
		WithMaxAttempts(3), WithRetryBaseDelay(0))
	worker.ProcessOnce(context.Background())

	if len(publisher.published) != 1 {
		t.Fatalf("third attempt must succeed, published %d", len(publisher.published))
	}
	if publisher.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", publisher.calls)
	}
}

func TestProcessOnceRoutesExhaustedMessageToDLQ(t *testing.T) {
	store := memory.NewStore()
	msg := enqueue(t, store, kafka.EventTypeOrderCreated)

	publisher := &stubPublisher{failFirst: 100}
	dlq := &stubPublisher{}
	worker := NewWorker(store.Repositories().Outbox, publisher,
		WithMaxAttempts(2), WithRetryBaseDelay(0), WithDLQPublisher(dlq))
	worker.ProcessOnce(context.Background())

	if len(dlq.published) != 1 {
		t.Fatalf("exhausted message must go to DLQ, got %d", len(dlq.published))
	}
	dlqMsg := dlq.published[0]
	if dlqMsg.ID != msg.ID || dlqMsg.Topic != kafka.TopicOrderEvents {
		t.Errorf("DLQ message must carry the original id and topic, got %s/%s", dlqMsg.ID, dlqMsg.Topic)
	}

	var wrapped map[string]any
	if err := json.Unmarshal(dlqMsg.Payload, &wrapped); err != nil {
		t.Fatalf("unmarshal DLQ payload: %v", err)
	}
	if reason, _ := wrapped["publish_error"].(string); reason == "" {
		t.Error("DLQ payload must carry the publish error")
	}

	// Строка ушла из PENDING: повторный цикл её не трогает.
	pending, err := store.Repositories().Outbox.PullPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("PullPending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("failed message must be marked FAILED, %d still pending", len(pending))
	}
}

func TestProcessOnceFailureDoesNotBlockBatch(t *testing.T) {
	store := memory.NewStore()
	enqueue(t, store, kafka.EventTypeOrderCreated)
	enqueue(t, store, kafka.EventTypePaymentRequested)

	// Первое сообщение исчерпывает обе попытки, второе публикуется.
	publisher := &stubPublisher{failFirst: 2}
	worker := NewWorker(store.Repositories().Outbox, publisher,
		WithMaxAttempts(2), WithRetryBaseDelay(0))
	worker.ProcessOnce(context.Background())

	if len(publisher.published) != 1 {
		t.Fatalf("second message must still be published, got %d", len(publisher.published))
	}
	if publisher.published[0].EventType != kafka.EventTypePaymentRequested {
		t.Errorf("expected the second message, got %s", publisher.published[0].EventType)
	}
}
