package billing

import "time"

// Metrics defines the interface for tracking billing provider operations.
// All methods are optional - providers should gracefully handle nil metrics.
type Metrics interface {
	// RecordWebhookEvent records a webhook event received from the billing provider.
	// status: "accepted", "ignored", "processed", "duplicate" or "error"
	RecordWebhookEvent(provider, eventType, status string)

	// RecordWebhookProcessingDuration records how long it took to process a webhook.
	RecordWebhookProcessingDuration(provider, eventType string, duration time.Duration)

	// RecordWebhookError records a webhook processing error.
	// errorType: The type of error (e.g., "missing_signature", "auth_failed", "processing_error")
	RecordWebhookError(provider, errorType string)

	// RecordSync records a payment state synchronization.
	// status: "success" or "error"
	RecordSync(provider, status string)

	// RecordSyncDuration records how long a synchronization took.
	RecordSyncDuration(provider string, duration time.Duration)

	// RecordDelivery records the outcome of one purchased line item.
	// status: "delivered", "skipped" or "failed"
	RecordDelivery(provider, status string)

	// RecordCheckout records a checkout session creation attempt.
	// status: "success", "validation_error" or "provider_error"
	RecordCheckout(provider, status string)

	// RecordAPICall records an API call to the billing provider.
	// endpoint: The API endpoint called (e.g., "/checkout/sessions")
	RecordAPICall(provider, endpoint, status string)

	// RecordAPICallDuration records how long an API call took.
	RecordAPICallDuration(provider, endpoint string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _, _ string)                            {}
func (n *NoopMetrics) RecordWebhookProcessingDuration(_, _ string, _ time.Duration) {}
func (n *NoopMetrics) RecordWebhookError(_, _ string)                               {}
func (n *NoopMetrics) RecordSync(_, _ string)                                       {}
func (n *NoopMetrics) RecordSyncDuration(_ string, _ time.Duration)                 {}
func (n *NoopMetrics) RecordDelivery(_, _ string)                                   {}
func (n *NoopMetrics) RecordCheckout(_, _ string)                                   {}
func (n *NoopMetrics) RecordAPICall(_, _, _ string)                                 {}
func (n *NoopMetrics) RecordAPICallDuration(_, _ string, _ time.Duration)           {}
