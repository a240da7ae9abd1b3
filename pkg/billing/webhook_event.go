package billing

import "time"

// WebhookEvent describes a provider event after it was fully processed.
// It is passed to Config.WebhookCallback.
type WebhookEvent struct {
	// EventID is the provider event identifier
	EventID string

	// EventType is the provider-specific event type
	// Stripe: "checkout.session.completed", "payment_intent.succeeded", etc.
	EventType string

	// Provider is the billing provider name ("stripe")
	Provider string

	// CustomerID is the provider customer the event was reconciled for (may be empty)
	CustomerID string

	// SessionID is set for checkout events
	SessionID string

	// Delivery summarizes item delivery for checkout events (nil otherwise)
	Delivery *DeliveryReport

	// EventTimestamp is when the event occurred (from provider)
	EventTimestamp time.Time
}

// DeliveryReport summarizes the grants performed for one checkout session.
type DeliveryReport struct {
	SessionID string
	Username  string
	Delivered int
	Skipped   int
	Failed    int
}
