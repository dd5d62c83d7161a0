package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Идентификаторы consumer group. Обе группы делят таблицу event_handled:
// их топики не пересекаются, поэтому пространства eventId не конфликтуют.
const (
	GroupReadModel = "commerce-readmodel"
	GroupWorkflow  = "commerce-workflow"
)

// Config описывает настройки запуска приложения.
// Пустой DatabaseDSN включает in-memory хранилище, пустые KafkaBrokers /
// RedisAddr / GatewayURL отключают соответствующие подсистемы.
type Config struct {
	DatabaseDSN  string
	KafkaBrokers []string
	RedisAddr    string

	GatewayURL      string
	GatewayCallback string

	MetricsAddr string

	ConsumerConcurrency int
	OutboxPollInterval  time.Duration
	ReconcileInterval   time.Duration
	CleanupRetention    time.Duration
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		MetricsAddr:         ":9090",
		ConsumerConcurrency: 3,
		OutboxPollInterval:  time.Second,
		ReconcileInterval:   time.Minute,
		CleanupRetention:    7 * 24 * time.Hour,
	}
}

// FromEnv читает конфигурацию из переменных окружения поверх умолчаний.
func FromEnv() Config {
	cfg := DefaultConfig()

	cfg.DatabaseDSN = os.Getenv("DATABASE_URL")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.GatewayURL = os.Getenv("PG_GATEWAY_URL")
	cfg.GatewayCallback = os.Getenv("PG_CALLBACK_URL")

	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		cfg.MetricsAddr = addr
	}
	if raw := os.Getenv("CONSUMER_CONCURRENCY"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.ConsumerConcurrency = n
		}
	}
	if raw := os.Getenv("OUTBOX_POLL_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.OutboxPollInterval = d
		}
	}
	if raw := os.Getenv("RECONCILE_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.ReconcileInterval = d
		}
	}
	if raw := os.Getenv("IDEMPOTENCY_RETENTION"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.CleanupRetention = d
		}
	}

	return cfg
}
