// Package prommetrics implements billing.Metrics with Prometheus collectors.
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mcpanel/panelpay/pkg/billing"
)

var _ billing.Metrics = (*Metrics)(nil)

// Metrics implements billing.Metrics using Prometheus.
type Metrics struct {
	webhookEventsTotal        *prometheus.CounterVec
	webhookProcessingDuration *prometheus.HistogramVec
	webhookErrorsTotal        *prometheus.CounterVec
	syncTotal                 *prometheus.CounterVec
	syncDuration              *prometheus.HistogramVec
	deliveriesTotal           *prometheus.CounterVec
	checkoutsTotal            *prometheus.CounterVec
	apiCallsTotal             *prometheus.CounterVec
	apiCallDuration           *prometheus.HistogramVec
}

// NewMetrics creates a new Prometheus metrics implementation for billing providers.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		webhookEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "webhook_events_total",
			Help:      "Total number of webhook events received from billing providers.",
		}, []string{"provider", "event_type", "status"}),

		webhookProcessingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "webhook_processing_duration_seconds",
			Help:      "Duration of detached webhook processing in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "event_type"}),

		webhookErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "webhook_errors_total",
			Help:      "Total number of rejected or failed webhooks.",
		}, []string{"provider", "error_type"}),

		syncTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "payment_sync_total",
			Help:      "Total number of payment state synchronizations.",
		}, []string{"provider", "status"}),

		syncDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "payment_sync_duration_seconds",
			Help:      "Duration of payment state synchronizations in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),

		deliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "item_deliveries_total",
			Help:      "Total number of purchased line items by delivery outcome.",
		}, []string{"provider", "status"}),

		checkoutsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "checkouts_total",
			Help:      "Total number of checkout session creation attempts.",
		}, []string{"provider", "status"}),

		apiCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "api_calls_total",
			Help:      "Total number of API calls to billing providers.",
		}, []string{"provider", "endpoint", "status"}),

		apiCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "api_call_duration_seconds",
			Help:      "Duration of API calls to billing providers in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "endpoint"}),
	}
}

func (m *Metrics) RecordWebhookEvent(provider, eventType, status string) {
	m.webhookEventsTotal.WithLabelValues(provider, eventType, status).Inc()
}

func (m *Metrics) RecordWebhookProcessingDuration(provider, eventType string, duration time.Duration) {
	m.webhookProcessingDuration.WithLabelValues(provider, eventType).Observe(duration.Seconds())
}

func (m *Metrics) RecordWebhookError(provider, errorType string) {
	m.webhookErrorsTotal.WithLabelValues(provider, errorType).Inc()
}

func (m *Metrics) RecordSync(provider, status string) {
	m.syncTotal.WithLabelValues(provider, status).Inc()
}

func (m *Metrics) RecordSyncDuration(provider string, duration time.Duration) {
	m.syncDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func (m *Metrics) RecordDelivery(provider, status string) {
	m.deliveriesTotal.WithLabelValues(provider, status).Inc()
}

func (m *Metrics) RecordCheckout(provider, status string) {
	m.checkoutsTotal.WithLabelValues(provider, status).Inc()
}

func (m *Metrics) RecordAPICall(provider, endpoint, status string) {
	m.apiCallsTotal.WithLabelValues(provider, endpoint, status).Inc()
}

func (m *Metrics) RecordAPICallDuration(provider, endpoint string, duration time.Duration) {
	m.apiCallDuration.WithLabelValues(provider, endpoint).Observe(duration.Seconds())
}
