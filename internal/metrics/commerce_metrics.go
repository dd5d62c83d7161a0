package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CommerceMetrics содержит метрики жизненного цикла заказа и событийного конвейера.
type CommerceMetrics struct {
	// Счётчики операций заказа.
	ordersCreated   prometheus.Counter
	ordersCompleted prometheus.Counter
	ordersCanceled  prometheus.Counter

	// Счётчики платежей по результату.
	payments *prometheus.CounterVec

	// Гистограммы времени выполнения.
	orderCreateDuration prometheus.Histogram
	gatewayDuration     *prometheus.HistogramVec

	// Счётчики событийного конвейера.
	eventsConsumed *prometheus.CounterVec
	eventsSkipped  *prometheus.CounterVec

	// Gauge очереди диспетчера платёжного шлюза.
	gatewayQueueDepth prometheus.Gauge
}

// NewCommerceMetrics создаёт метрики и регистрирует их в default registerer.
func NewCommerceMetrics() *CommerceMetrics {
	return newCommerceMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCommerceMetricsWithRegisterer(registerer prometheus.Registerer) *CommerceMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CommerceMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "commerce_orders_created_total",
			Help: "Total number of orders created",
		}),
		ordersCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "commerce_orders_completed_total",
			Help: "Total number of orders completed after successful payment",
		}),
		ordersCanceled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "commerce_orders_canceled_total",
			Help: "Total number of orders canceled with compensation applied",
		}),
		payments: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "commerce_payments_total",
			Help: "Total number of payments grouped by result",
		}, []string{"result"}),
		orderCreateDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "commerce_order_create_duration_seconds",
			Help:    "Duration of order creation transactions in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		gatewayDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "commerce_pg_request_duration_seconds",
			Help:    "Duration of payment gateway calls in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"operation"}),
		eventsConsumed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "commerce_events_consumed_total",
			Help: "Total number of events applied by consumers grouped by type",
		}, []string{"event_type"}),
		eventsSkipped: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "commerce_events_skipped_total",
			Help: "Total number of events skipped as duplicates or stale versions",
		}, []string{"reason"}),
		gatewayQueueDepth: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "commerce_pg_dispatch_queue_depth",
			Help: "Number of payment requests waiting for gateway dispatch",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *CommerceMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordOrderCompleted увеличивает счётчик завершённых заказов.
func (m *CommerceMetrics) RecordOrderCompleted() {
	m.ordersCompleted.Inc()
}

// RecordOrderCanceled увеличивает счётчик отменённых заказов.
func (m *CommerceMetrics) RecordOrderCanceled() {
	m.ordersCanceled.Inc()
}

// RecordPayment записывает исход платежа: success / failed.
func (m *CommerceMetrics) RecordPayment(result string) {
	m.payments.WithLabelValues(result).Inc()
}

// RecordOrderCreateDuration записывает длительность транзакции создания заказа.
func (m *CommerceMetrics) RecordOrderCreateDuration(duration time.Duration) {
	m.orderCreateDuration.Observe(duration.Seconds())
}

// RecordGatewayDuration записывает длительность вызова платёжного шлюза.
func (m *CommerceMetrics) RecordGatewayDuration(operation string, duration time.Duration) {
	m.gatewayDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEventConsumed увеличивает счётчик применённых событий.
func (m *CommerceMetrics) RecordEventConsumed(eventType string) {
	m.eventsConsumed.WithLabelValues(eventType).Inc()
}

// RecordEventSkipped увеличивает счётчик пропущенных событий:
// duplicate (таблица идемпотентности) или stale_version (version-gate).
func (m *CommerceMetrics) RecordEventSkipped(reason string) {
	m.eventsSkipped.WithLabelValues(reason).Inc()
}

// SetGatewayQueueDepth выставляет глубину очереди диспетчера шлюза.
func (m *CommerceMetrics) SetGatewayQueueDepth(depth int) {
	m.gatewayQueueDepth.Set(float64(depth))
}
