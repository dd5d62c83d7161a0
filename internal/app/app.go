package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	rediscache "github.com/vladislavdragonenkov/commerce-core/internal/cache/redis"
	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
	"github.com/vladislavdragonenkov/commerce-core/internal/gateway/pg"
	healthcheck "github.com/vladislavdragonenkov/commerce-core/internal/health"
	"github.com/vladislavdragonenkov/commerce-core/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/commerce-core/internal/metrics"
	"github.com/vladislavdragonenkov/commerce-core/internal/service/consumer"
	"github.com/vladislavdragonenkov/commerce-core/internal/service/idempotency"
	"github.com/vladislavdragonenkov/commerce-core/internal/service/order"
	"github.com/vladislavdragonenkov/commerce-core/internal/service/outbox"
	"github.com/vladislavdragonenkov/commerce-core/internal/service/payment"
	"github.com/vladislavdragonenkov/commerce-core/internal/service/ranking"
	"github.com/vladislavdragonenkov/commerce-core/internal/storage/memory"
	"github.com/vladislavdragonenkov/commerce-core/internal/storage/postgres"
	"github.com/vladislavdragonenkov/commerce-core/internal/version"
)

// resultApplier разрывает цикл payment service <-> dispatcher:
// диспетчеру нужен applier до того, как сервис создан.
type resultApplier struct {
	svc *payment.Service
}

func (a *resultApplier) ApplyGatewayResult(ctx context.Context, paymentID int64, result domain.GatewayResult) error {
	return a.svc.ApplyGatewayResult(ctx, paymentID, result)
}

// Run собирает и запускает событийную часть системы: хранилище, Redis,
// Kafka-консьюмеры, relay и фоновые воркеры, HTTP-сервер метрик и health.
// Блокируется до отмены контекста.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	logger.Info(version.String())

	healthHandler := healthcheck.NewHandler(version.GetVersion())

	// Хранилище: PostgreSQL либо in-memory fallback для локального запуска.
	var (
		uow   domain.UnitOfWork
		repos domain.Repositories
	)
	if cfg.DatabaseDSN != "" {
		store, err := postgres.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if err := store.MigrateUp(ctx, 0); err != nil {
			return err
		}
		uow = store
		repos = store.Repositories()
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", store.Ping))
		logger.Info("postgres storage initialized")
	} else {
		mem := memory.NewStore()
		uow = mem
		repos = mem.Repositories()
		logger.Warn("DATABASE_URL is not set, using in-memory storage")
	}

	// Redis: рейтинг и кэш товаров. Без него приложение деградирует
	// до чистого read-model на PostgreSQL.
	var (
		rankingIndex domain.RankingIndex
		productCache domain.ProductCache
	)
	if cfg.RedisAddr != "" {
		client, err := rediscache.Open(ctx, cfg.RedisAddr)
		if err != nil {
			logger.WithError(err).Warn("failed to connect to redis, continuing without ranking and cache")
		} else {
			defer func() { _ = client.Close() }()
			rankingIndex = rediscache.NewRankingIndex(client)
			productCache = rediscache.NewProductCache(client)
			healthHandler.RegisterChecker("redis", healthcheck.NewSimpleChecker("redis", func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			}))
			logger.WithField("addr", cfg.RedisAddr).Info("redis initialized")
		}
	}

	commerceMetrics := metrics.NewCommerceMetrics()

	orchestrator := order.NewOrchestrator(uow,
		order.WithMetrics(commerceMetrics),
		order.WithProductCache(productCache),
	)

	// Платёжный контур: шлюз опционален, без него платежи без карты
	// завершаются синхронно, а карточные остаются PENDING.
	var (
		dispatcher *payment.GatewayDispatcher
		applier    = &resultApplier{}
	)
	if cfg.GatewayURL != "" {
		gatewayClient := pg.NewClient(cfg.GatewayURL)
		dispatcher = payment.NewGatewayDispatcher(gatewayClient, applier,
			payment.WithDispatcherMetrics(commerceMetrics),
			payment.WithCallbackURL(cfg.GatewayCallback),
		)

		reconciler := payment.NewReconciler(repos.Payments, gatewayClient, applier,
			payment.WithReconcilerMetrics(commerceMetrics),
			payment.WithReconcileInterval(cfg.ReconcileInterval),
		)
		go reconciler.Run(ctx)
	} else {
		logger.Warn("PG_GATEWAY_URL is not set, card payments will stay pending")
	}

	var paymentSvc *payment.Service
	if dispatcher != nil {
		dispatcher.Start(ctx)
		defer dispatcher.Stop()
		paymentSvc = payment.NewService(uow, dispatcher, payment.WithMetrics(commerceMetrics))
	} else {
		paymentSvc = payment.NewService(uow, nil, payment.WithMetrics(commerceMetrics))
	}
	applier.svc = paymentSvc

	// Kafka: relay outbox-а и два консьюмера. Группы делят event_handled,
	// потому что их топики не пересекаются.
	var kafkaProducer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		} else {
			kafkaProducer = producer
			logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
		}
	}

	if kafkaProducer != nil {
		defer func() {
			if err := kafkaProducer.Close(); err != nil {
				logger.WithError(err).Warn("failed to close kafka producer")
			}
		}()

		relay := outbox.NewWorker(repos.Outbox, kafka.NewOutboxPublisher(kafkaProducer),
			outbox.WithDLQPublisher(kafka.NewDLQPublisher(kafkaProducer)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
		)
		go relay.Run(ctx)

		readModelHandler := consumer.NewReadModelHandler(uow, rankingIndex,
			consumer.NewPipeline(repos.Handled, log.WithField("component", "readmodel-pipeline"), commerceMetrics), nil)
		readModelConsumer := kafka.NewConsumer(cfg.KafkaBrokers, GroupReadModel,
			[]string{kafka.TopicLikeEvents, kafka.TopicOrderEvents, kafka.TopicProductEvents},
			readModelHandler.Handle,
			kafka.WithConcurrency(cfg.ConsumerConcurrency),
			kafka.WithDLQProducer(kafkaProducer),
		)
		if err := readModelConsumer.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = readModelConsumer.Stop() }()

		workflowHandler := consumer.NewWorkflowHandler(paymentSvc, orchestrator,
			consumer.NewPipeline(repos.Handled, log.WithField("component", "workflow-pipeline"), commerceMetrics), nil)
		workflowConsumer := kafka.NewConsumer(cfg.KafkaBrokers, GroupWorkflow,
			[]string{kafka.TopicPaymentEvents, kafka.TopicCouponEvents},
			workflowHandler.Handle,
			kafka.WithConcurrency(cfg.ConsumerConcurrency),
			kafka.WithDLQProducer(kafkaProducer),
		)
		if err := workflowConsumer.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = workflowConsumer.Stop() }()
	} else {
		logger.Warn("kafka is not configured, outbox relay and consumers are disabled")
	}

	if rankingIndex != nil {
		carryOver := ranking.NewCarryOverWorker(rankingIndex)
		go carryOver.Run(ctx)
	}

	cleanup := idempotency.NewCleanupWorker(uow,
		idempotency.WithRetention(cfg.CleanupRetention),
	)
	go cleanup.Run(ctx)

	metricsSrv := startMetricsServer(cfg.MetricsAddr, logger, healthHandler)

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping")
	shutdownHTTP(metricsSrv, logger)
	return ctx.Err()
}

// startMetricsServer поднимает HTTP-сервер метрик и health-проверок.
func startMetricsServer(addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()
	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
