package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mcpanel/panelpay/pkg/billing"
)

// Allow-listed Stripe event types. Every other type is acknowledged and dropped.
const (
	EventCheckoutSessionCompleted stripe.EventType = "checkout.session.completed"
	EventPaymentIntentSucceeded   stripe.EventType = "payment_intent.succeeded"
	EventPaymentIntentFailed      stripe.EventType = "payment_intent.payment_failed"
	EventPaymentIntentCanceled    stripe.EventType = "payment_intent.canceled"
	EventSubscriptionCreated      stripe.EventType = "customer.subscription.created"
	EventSubscriptionUpdated      stripe.EventType = "customer.subscription.updated"
	EventSubscriptionDeleted      stripe.EventType = "customer.subscription.deleted"
	EventInvoicePaid              stripe.EventType = "invoice.paid"
	EventInvoicePaymentFailed     stripe.EventType = "invoice.payment_failed"
)

// EventHandler has one method per allow-listed event. Each Event variant
// dispatches to exactly one of them, so an allow-listed type without a
// handler does not compile.
type EventHandler interface {
	HandleCheckoutCompleted(ctx context.Context, e *CheckoutCompleted) error
	HandlePaymentSucceeded(ctx context.Context, e *PaymentSucceeded) error
	HandlePaymentFailed(ctx context.Context, e *PaymentFailed) error
	HandlePaymentCanceled(ctx context.Context, e *PaymentCanceled) error
	HandleSubscriptionCreated(ctx context.Context, e *SubscriptionCreated) error
	HandleSubscriptionUpdated(ctx context.Context, e *SubscriptionUpdated) error
	HandleSubscriptionDeleted(ctx context.Context, e *SubscriptionDeleted) error
	HandleInvoicePaid(ctx context.Context, e *InvoicePaid) error
	HandleInvoicePaymentFailed(ctx context.Context, e *InvoicePaymentFailed) error
}

// Event is a verified, allow-listed and decoded Stripe event
type Event interface {
	// Envelope returns the raw Stripe event
	Envelope() *stripe.Event
	// Accept dispatches the event to its handler method
	Accept(ctx context.Context, h EventHandler) error
	// Summary describes the event for the webhook callback
	Summary() billing.WebhookEvent
}

type envelope struct {
	raw *stripe.Event
}

func (e envelope) Envelope() *stripe.Event { return e.raw }

func (e envelope) summary(customerID string) billing.WebhookEvent {
	return billing.WebhookEvent{
		EventID:        e.raw.ID,
		EventType:      string(e.raw.Type),
		Provider:       providerName,
		CustomerID:     customerID,
		EventTimestamp: time.Unix(e.raw.Created, 0).UTC(),
	}
}

// CheckoutCompleted is checkout.session.completed
type CheckoutCompleted struct {
	envelope
	Session stripe.CheckoutSession

	// Delivery is filled in by the handler
	Delivery *billing.DeliveryReport
}

func (e *CheckoutCompleted) Accept(ctx context.Context, h EventHandler) error {
	return h.HandleCheckoutCompleted(ctx, e)
}

func (e *CheckoutCompleted) Summary() billing.WebhookEvent {
	s := e.summary(customerID(e.Session.Customer))
	s.SessionID = e.Session.ID
	s.Delivery = e.Delivery
	return s
}

// paymentIntentEvent is shared by the payment_intent.* variants
type paymentIntentEvent struct {
	envelope
	PaymentIntent stripe.PaymentIntent
}

// CustomerID returns the customer the intent belongs to (may be empty)
func (e *paymentIntentEvent) CustomerID() string { return customerID(e.PaymentIntent.Customer) }

func (e *paymentIntentEvent) Summary() billing.WebhookEvent { return e.summary(e.CustomerID()) }

// PaymentSucceeded is payment_intent.succeeded
type PaymentSucceeded struct{ paymentIntentEvent }

func (e *PaymentSucceeded) Accept(ctx context.Context, h EventHandler) error {
	return h.HandlePaymentSucceeded(ctx, e)
}

// PaymentFailed is payment_intent.payment_failed
type PaymentFailed struct{ paymentIntentEvent }

func (e *PaymentFailed) Accept(ctx context.Context, h EventHandler) error {
	return h.HandlePaymentFailed(ctx, e)
}

// PaymentCanceled is payment_intent.canceled
type PaymentCanceled struct{ paymentIntentEvent }

func (e *PaymentCanceled) Accept(ctx context.Context, h EventHandler) error {
	return h.HandlePaymentCanceled(ctx, e)
}

// subscriptionEvent is shared by the customer.subscription.* variants
type subscriptionEvent struct {
	envelope
	Subscription stripe.Subscription
}

// CustomerID returns the customer the subscription belongs to (may be empty)
func (e *subscriptionEvent) CustomerID() string { return customerID(e.Subscription.Customer) }

func (e *subscriptionEvent) Summary() billing.WebhookEvent { return e.summary(e.CustomerID()) }

// SubscriptionCreated is customer.subscription.created
type SubscriptionCreated struct{ subscriptionEvent }

func (e *SubscriptionCreated) Accept(ctx context.Context, h EventHandler) error {
	return h.HandleSubscriptionCreated(ctx, e)
}

// SubscriptionUpdated is customer.subscription.updated
type SubscriptionUpdated struct{ subscriptionEvent }

func (e *SubscriptionUpdated) Accept(ctx context.Context, h EventHandler) error {
	return h.HandleSubscriptionUpdated(ctx, e)
}

// SubscriptionDeleted is customer.subscription.deleted
type SubscriptionDeleted struct{ subscriptionEvent }

func (e *SubscriptionDeleted) Accept(ctx context.Context, h EventHandler) error {
	return h.HandleSubscriptionDeleted(ctx, e)
}

// invoiceEvent is shared by the invoice.* variants
type invoiceEvent struct {
	envelope
	Invoice stripe.Invoice
}

// CustomerID returns the customer the invoice belongs to (may be empty)
func (e *invoiceEvent) CustomerID() string { return customerID(e.Invoice.Customer) }

func (e *invoiceEvent) Summary() billing.WebhookEvent { return e.summary(e.CustomerID()) }

// InvoicePaid is invoice.paid
type InvoicePaid struct{ invoiceEvent }

func (e *InvoicePaid) Accept(ctx context.Context, h EventHandler) error {
	return h.HandleInvoicePaid(ctx, e)
}

// InvoicePaymentFailed is invoice.payment_failed
type InvoicePaymentFailed struct{ invoiceEvent }

func (e *InvoicePaymentFailed) Accept(ctx context.Context, h EventHandler) error {
	return h.HandleInvoicePaymentFailed(ctx, e)
}

// decoders is the allow-list: one decoder per accepted event type
var decoders = map[stripe.EventType]func(raw *stripe.Event) (Event, error){
	EventCheckoutSessionCompleted: func(raw *stripe.Event) (Event, error) {
		e := &CheckoutCompleted{envelope: envelope{raw}}
		return e, decodeObject(raw, &e.Session)
	},
	EventPaymentIntentSucceeded: func(raw *stripe.Event) (Event, error) {
		e := &PaymentSucceeded{paymentIntentEvent{envelope: envelope{raw}}}
		return e, decodeObject(raw, &e.PaymentIntent)
	},
	EventPaymentIntentFailed: func(raw *stripe.Event) (Event, error) {
		e := &PaymentFailed{paymentIntentEvent{envelope: envelope{raw}}}
		return e, decodeObject(raw, &e.PaymentIntent)
	},
	EventPaymentIntentCanceled: func(raw *stripe.Event) (Event, error) {
		e := &PaymentCanceled{paymentIntentEvent{envelope: envelope{raw}}}
		return e, decodeObject(raw, &e.PaymentIntent)
	},
	EventSubscriptionCreated: func(raw *stripe.Event) (Event, error) {
		e := &SubscriptionCreated{subscriptionEvent{envelope: envelope{raw}}}
		return e, decodeObject(raw, &e.Subscription)
	},
	EventSubscriptionUpdated: func(raw *stripe.Event) (Event, error) {
		e := &SubscriptionUpdated{subscriptionEvent{envelope: envelope{raw}}}
		return e, decodeObject(raw, &e.Subscription)
	},
	EventSubscriptionDeleted: func(raw *stripe.Event) (Event, error) {
		e := &SubscriptionDeleted{subscriptionEvent{envelope: envelope{raw}}}
		return e, decodeObject(raw, &e.Subscription)
	},
	EventInvoicePaid: func(raw *stripe.Event) (Event, error) {
		e := &InvoicePaid{invoiceEvent{envelope: envelope{raw}}}
		return e, decodeObject(raw, &e.Invoice)
	},
	EventInvoicePaymentFailed: func(raw *stripe.Event) (Event, error) {
		e := &InvoicePaymentFailed{invoiceEvent{envelope: envelope{raw}}}
		return e, decodeObject(raw, &e.Invoice)
	},
}

// Allowed reports whether events of type t are processed
func Allowed(t stripe.EventType) bool {
	_, ok := decoders[t]
	return ok
}

// DecodeEvent decodes an allow-listed event. ok is false for other types.
func DecodeEvent(raw *stripe.Event) (evt Event, ok bool, err error) {
	decode, ok := decoders[raw.Type]
	if !ok {
		return nil, false, nil
	}
	evt, err = decode(raw)
	if err != nil {
		return nil, true, err
	}
	return evt, true, nil
}

func decodeObject(raw *stripe.Event, v interface{}) error {
	if raw.ID == "" {
		return fmt.Errorf("%w: event without id", billing.ErrInvalidWebhookPayload)
	}
	if raw.Data == nil || len(raw.Data.Raw) == 0 {
		return fmt.Errorf("%w: event %s has no data object", billing.ErrInvalidWebhookPayload, raw.ID)
	}
	if err := json.Unmarshal(raw.Data.Raw, v); err != nil {
		return fmt.Errorf("%w: %v", billing.ErrInvalidWebhookPayload, err)
	}
	return nil
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}
