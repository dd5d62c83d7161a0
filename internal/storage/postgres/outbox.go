package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
)

type outboxRepository struct{ q querier }

const enqueueAttempts = 3

// Enqueue назначает version = max(version)+1 по (aggregate_id, aggregate_type)
// внутри текущей транзакции. Гонку двух транзакций разрешает уникальный
// индекс: проигравший откатывается к savepoint и пробует заново.
func (r *outboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Status = domain.OutboxStatusPending
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	for attempt := 0; attempt < enqueueAttempts; attempt++ {
		if _, err := r.q.ExecContext(ctx, `SAVEPOINT outbox_enqueue`); err != nil {
			return domain.OutboxMessage{}, fmt.Errorf("savepoint outbox enqueue: %w", err)
		}

		err := r.q.QueryRowContext(ctx, `
			INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, topic, partition_key,
			                    version, payload, status, created_at)
			SELECT $1, $2, $3, $4, $5, $6,
			       COALESCE(MAX(version), 0) + 1, $7, $8, $9
			FROM outbox
			WHERE aggregate_id = $3 AND aggregate_type = $2
			RETURNING version
		`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Topic, msg.PartitionKey,
			msg.Payload, string(msg.Status), msg.CreatedAt).Scan(&msg.Version)
		if err == nil {
			if _, err := r.q.ExecContext(ctx, `RELEASE SAVEPOINT outbox_enqueue`); err != nil {
				return domain.OutboxMessage{}, fmt.Errorf("release savepoint: %w", err)
			}
			return msg, nil
		}
		if !isUniqueViolation(err) {
			return domain.OutboxMessage{}, fmt.Errorf("insert outbox message: %w", err)
		}

		if _, rbErr := r.q.ExecContext(ctx, `ROLLBACK TO SAVEPOINT outbox_enqueue`); rbErr != nil {
			return domain.OutboxMessage{}, fmt.Errorf("rollback to savepoint: %w", rbErr)
		}
	}
	return domain.OutboxMessage{}, domain.ErrVersionConflict
}

func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, topic, partition_key,
		       version, payload, status, created_at, published_at
		FROM outbox
		WHERE status = $1
		ORDER BY created_at, version
		LIMIT $2
	`, string(domain.OutboxStatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("pull pending outbox: %w", err)
	}
	defer rows.Close()

	messages := make([]domain.OutboxMessage, 0, limit)
	for rows.Next() {
		var m domain.OutboxMessage
		var status string
		if err := rows.Scan(&m.ID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Topic,
			&m.PartitionKey, &m.Version, &m.Payload, &status, &m.CreatedAt, &m.PublishedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		m.Status = domain.OutboxStatus(status)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return messages, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE outbox SET status = $2, published_at = NOW() WHERE id = $1
	`, id, string(domain.OutboxStatusPublished))
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("outbox message %s not found: %w", id, domain.ErrOutboxPublish)
	}
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE outbox SET status = $2 WHERE id = $1
	`, id, string(domain.OutboxStatusFailed))
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("outbox message %s not found: %w", id, domain.ErrOutboxPublish)
	}
	return nil
}

func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	var oldest sql.NullTime
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at) FROM outbox WHERE status = $1
	`, string(domain.OutboxStatusPending)).Scan(&stats.PendingCount, &oldest)
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("query outbox stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time
	}
	return stats, nil
}

type eventHandledRepository struct{ q querier }

func (r *eventHandledRepository) MarkHandled(ctx context.Context, record domain.EventHandled) (bool, error) {
	if record.HandledAt.IsZero() {
		record.HandledAt = time.Now().UTC()
	}
	result, err := r.q.ExecContext(ctx, `
		INSERT INTO event_handled (event_id, event_type, topic, handled_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING
	`, record.EventID, record.EventType, record.Topic, record.HandledAt)
	if err != nil {
		return false, fmt.Errorf("insert event_handled: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func (r *eventHandledRepository) IsHandled(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM event_handled WHERE event_id = $1)
	`, eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query event_handled: %w", err)
	}
	return exists, nil
}

func (r *eventHandledRepository) DeleteBefore(ctx context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 1000
	}
	result, err := r.q.ExecContext(ctx, `
		DELETE FROM event_handled
		WHERE event_id IN (
			SELECT event_id FROM event_handled
			WHERE handled_at < $1
			ORDER BY handled_at
			LIMIT $2
		)
	`, before, limit)
	if err != nil {
		return 0, fmt.Errorf("delete handled events: %w", err)
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

var (
	_ domain.OutboxRepository       = (*outboxRepository)(nil)
	_ domain.EventHandledRepository = (*eventHandledRepository)(nil)
)
