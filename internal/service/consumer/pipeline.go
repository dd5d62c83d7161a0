package consumer

import (
	"context"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
	"github.com/vladislavdragonenkov/commerce-core/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/commerce-core/internal/metrics"
)

// EffectFunc применяет доменный эффект одной записи.
// version — значение заголовка version (0, если заголовок отсутствует).
type EffectFunc func(ctx context.Context, rec kafka.Record, version int64) error

// Pipeline — общий конвейер идемпотентности консьюмеров:
// запись без eventId пропускается; уже обработанный eventId пропускается;
// после эффекта eventId фиксируется в event_handled. Конкурентная вставка
// того же eventId другим консьюмером — тоже успех.
//
// Эффект и фиксация не атомарны: падение между ними приведёт к повторному
// применению, которое гасится version-gate метрик и липкостью терминальных
// статусов.
type Pipeline struct {
	handled domain.EventHandledRepository
	logger  *log.Entry
	metrics *metrics.CommerceMetrics
}

// NewPipeline создаёт конвейер поверх таблицы идемпотентности.
func NewPipeline(handled domain.EventHandledRepository, logger *log.Entry, m *metrics.CommerceMetrics) *Pipeline {
	if logger == nil {
		logger = log.WithField("component", "consumer-pipeline")
	}
	return &Pipeline{handled: handled, logger: logger, metrics: m}
}

// Process прогоняет запись через конвейер.
func (p *Pipeline) Process(ctx context.Context, rec kafka.Record, effect EffectFunc) error {
	eventID := rec.Headers[kafka.HeaderEventID]
	if eventID == "" {
		p.logger.WithFields(log.Fields{
			"topic":  rec.Topic,
			"offset": rec.Offset,
		}).Warn("record without eventId header skipped")
		p.recordSkip("missing_event_id")
		return nil
	}

	var version int64
	if raw := rec.Headers[kafka.HeaderVersion]; raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			p.logger.WithField("event_id", eventID).Warn("malformed version header, treated as 0")
		} else {
			version = parsed
		}
	}

	alreadyHandled, err := p.handled.IsHandled(ctx, eventID)
	if err != nil {
		return err
	}
	if alreadyHandled {
		p.recordSkip("duplicate")
		return nil
	}

	if err := effect(ctx, rec, version); err != nil {
		return err
	}

	applied, err := p.handled.MarkHandled(ctx, domain.EventHandled{
		EventID:   eventID,
		EventType: rec.Headers[kafka.HeaderEventType],
		Topic:     rec.Topic,
	})
	if err != nil {
		return err
	}
	if !applied {
		p.recordSkip("duplicate")
	} else if p.metrics != nil {
		p.metrics.RecordEventConsumed(rec.Headers[kafka.HeaderEventType])
	}
	return nil
}

func (p *Pipeline) recordSkip(reason string) {
	if p.metrics != nil {
		p.metrics.RecordEventSkipped(reason)
	}
}
