package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *CommerceMetrics {
	t.Helper()
	m := newCommerceMetricsWithRegisterer(prometheus.NewRegistry())
	require.NotNil(t, m)
	return m
}

func TestOrderCounters(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordOrderCreated()
	m.RecordOrderCreated()
	m.RecordOrderCompleted()
	m.RecordOrderCanceled()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ordersCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ordersCompleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ordersCanceled))
}

func TestPaymentCounterByResult(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordPayment("success")
	m.RecordPayment("success")
	m.RecordPayment("failed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.payments.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.payments.WithLabelValues("failed")))
}

func TestEventPipelineCounters(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordEventConsumed("LikeAdded")
	m.RecordEventConsumed("LikeAdded")
	m.RecordEventConsumed("OrderCreated")
	m.RecordEventSkipped("duplicate")
	m.RecordEventSkipped("missing_event_id")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsConsumed.WithLabelValues("LikeAdded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsConsumed.WithLabelValues("OrderCreated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsSkipped.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsSkipped.WithLabelValues("missing_event_id")))
}

func TestGatewayQueueDepthGauge(t *testing.T) {
	m := newTestMetrics(t)

	m.SetGatewayQueueDepth(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(m.gatewayQueueDepth))

	m.SetGatewayQueueDepth(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.gatewayQueueDepth))
}

func TestDurationHistograms(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordOrderCreateDuration(100 * time.Millisecond)
	m.RecordOrderCreateDuration(500 * time.Millisecond)
	m.RecordGatewayDuration("request_payment", 50*time.Millisecond)

	// У гистограмм проверяем число наблюдений через собранные серии.
	require.Equal(t, 1, testutil.CollectAndCount(m.orderCreateDuration, "commerce_order_create_duration_seconds"))
	require.Equal(t, 1, testutil.CollectAndCount(m.gatewayDuration, "commerce_pg_request_duration_seconds"))
}

func TestDoubleRegistrationReusesCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()

	first := newCommerceMetricsWithRegisterer(registry)
	second := newCommerceMetricsWithRegisterer(registry)

	// Повторная регистрация возвращает существующие коллекторы, а не паникует.
	first.RecordOrderCreated()
	second.RecordOrderCreated()
	assert.Equal(t, 2.0, testutil.ToFloat64(second.ordersCreated))
}
