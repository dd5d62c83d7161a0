package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const defaultGroupConcurrency = 3

// Record — сообщение Kafka в разобранном виде для обработчиков.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
}

// RecordHandler обрабатывает одно сообщение. Ошибка логируется,
// батч продолжает обрабатываться — идемпотентность обеспечивает
// таблица event_handled на стороне обработчика.
type RecordHandler func(ctx context.Context, rec Record) error

// ConsumerOptions задаёт параметры consumer group.
type ConsumerOptions struct {
	Logger      *log.Entry
	Concurrency int
	DLQProducer *Producer
}

// ConsumerOption настраивает Consumer.
type ConsumerOption func(*ConsumerOptions)

// WithLogger задаёт logger для консьюмера.
func WithLogger(logger *log.Entry) ConsumerOption {
	return func(opts *ConsumerOptions) {
		opts.Logger = logger
	}
}

// WithConcurrency задаёт число параллельных членов consumer group.
func WithConcurrency(n int) ConsumerOption {
	return func(opts *ConsumerOptions) {
		opts.Concurrency = n
	}
}

// WithDLQProducer задаёт producer для отправки необработанных сообщений в DLQ.
func WithDLQProducer(producer *Producer) ConsumerOption {
	return func(opts *ConsumerOptions) {
		opts.DLQProducer = producer
	}
}

// Consumer — обёртка над sarama consumer group с ручным подтверждением offset.
type Consumer struct {
	brokers     []string
	groupID     string
	topics      []string
	handler     RecordHandler
	logger      *log.Entry
	concurrency int
	dlqProducer *Producer

	groups []sarama.ConsumerGroup
	wg     sync.WaitGroup
}

// NewConsumer создаёт consumer group для списка топиков.
func NewConsumer(brokers []string, groupID string, topics []string, handler RecordHandler, options ...ConsumerOption) *Consumer {
	opts := ConsumerOptions{Concurrency: defaultGroupConcurrency}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "kafka-consumer")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultGroupConcurrency
	}

	return &Consumer{
		brokers:     brokers,
		groupID:     groupID,
		topics:      topics,
		handler:     handler,
		logger:      logger.WithField("group_id", groupID),
		concurrency: opts.Concurrency,
		dlqProducer: opts.DLQProducer,
	}
}

// Start запускает членов группы. Каждый член — отдельный client той же группы,
// партиции распределяются между ними брокером.
func (c *Consumer) Start(ctx context.Context) error {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	for i := 0; i < c.concurrency; i++ {
		group, err := sarama.NewConsumerGroup(c.brokers, c.groupID, config)
		if err != nil {
			return fmt.Errorf("create consumer group member %d: %w", i, err)
		}
		c.groups = append(c.groups, group)

		c.wg.Add(2)
		go func(member int, group sarama.ConsumerGroup) {
			defer c.wg.Done()
			for {
				// Consume вызывается в цикле: при rebalance он завершается.
				if err := group.Consume(ctx, c.topics, c); err != nil {
					c.logger.WithError(err).WithField("member", member).Error("consumer session error")
				}
				if ctx.Err() != nil {
					return
				}
			}
		}(i, group)
		go func(group sarama.ConsumerGroup) {
			defer c.wg.Done()
			for err := range group.Errors() {
				c.logger.WithError(err).Error("consumer error")
			}
		}(group)
	}

	c.logger.WithFields(log.Fields{
		"topics":      c.topics,
		"concurrency": c.concurrency,
	}).Info("kafka consumer started")
	return nil
}

// Stop останавливает всех членов группы и дожидается завершения.
func (c *Consumer) Stop() error {
	var firstErr error
	for _, group := range c.groups {
		if err := group.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close consumer group: %w", err)
		}
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return firstErr
}

// Setup вызывается при старте consumer session.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup вызывается при завершении consumer session.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim обрабатывает сообщения одной партиции.
// Ошибка обработчика не блокирует партицию: запись логируется (и уходит в DLQ,
// если он настроен), offset подтверждается — повторное применение эффекта
// предотвращает таблица идемпотентности.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			rec := toRecord(message)
			if err := c.handler(session.Context(), rec); err != nil {
				c.logger.WithError(err).WithFields(log.Fields{
					"topic":     rec.Topic,
					"partition": rec.Partition,
					"offset":    rec.Offset,
				}).Error("record processing failed")
				c.sendToDLQ(rec, err)
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) sendToDLQ(rec Record, processingErr error) {
	if c.dlqProducer == nil {
		return
	}

	headers := []Header{
		{Key: "x-original-topic", Value: rec.Topic},
		{Key: "x-error-message", Value: processingErr.Error()},
		{Key: "x-failed-at", Value: time.Now().UTC().Format(time.RFC3339)},
	}
	for key, value := range rec.Headers {
		headers = append(headers, Header{Key: key, Value: value})
	}

	if err := c.dlqProducer.Publish(TopicDeadLetterQueue, string(rec.Key), rec.Value, headers); err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"topic":  rec.Topic,
			"offset": rec.Offset,
		}).Warn("failed to publish record to DLQ")
	}
}

func toRecord(message *sarama.ConsumerMessage) Record {
	headers := make(map[string]string, len(message.Headers))
	for _, h := range message.Headers {
		headers[string(h.Key)] = string(h.Value)
	}
	return Record{
		Topic:     message.Topic,
		Partition: message.Partition,
		Offset:    message.Offset,
		Key:       message.Key,
		Value:     message.Value,
		Headers:   headers,
	}
}
