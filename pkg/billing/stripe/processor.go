package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mcpanel/panelpay/pkg/billing"
	"github.com/mcpanel/panelpay/pkg/panelpay"
)

var _ EventHandler = (*Provider)(nil)

// ProcessEvent performs the side effects of one decoded event exactly once.
// A processed event is marked in the store only after its handler succeeded.
// The webhook is acknowledged before processing, so Stripe does not redeliver
// a failed event on its own; an unmarked event is processed again when it is
// resent from the dashboard or the CLI. Concurrent calls for the same event
// id share one execution.
func (p *Provider) ProcessEvent(ctx context.Context, evt Event) error {
	raw := evt.Envelope()
	eventType := string(raw.Type)
	markerKey := panelpay.WebhookMarkerKey(raw.ID)
	start := time.Now()

	_, err, _ := p.inflight.Do(markerKey, func() (interface{}, error) {
		done, err := panelpay.GetValue[bool](ctx, p.store, markerKey)
		if err != nil {
			return nil, fmt.Errorf("failed to read webhook marker: %w", err)
		}
		if done != nil && *done {
			p.metrics.RecordWebhookEvent(providerName, eventType, "duplicate")
			p.logger.Debug("webhook event already processed",
				panelpay.F("event_id", raw.ID),
				panelpay.F("event_type", eventType),
			)
			return nil, nil
		}

		if err := evt.Accept(ctx, p); err != nil {
			p.metrics.RecordWebhookEvent(providerName, eventType, "error")
			p.metrics.RecordWebhookError(providerName, "processing_error")
			return nil, err
		}

		if err := panelpay.SetValue(ctx, p.store, markerKey, true, p.config.WebhookMarkerTTL); err != nil {
			return nil, fmt.Errorf("failed to mark webhook event processed: %w", err)
		}
		p.metrics.RecordWebhookEvent(providerName, eventType, "processed")
		p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(start))

		if p.config.WebhookCallback != nil {
			if cbErr := p.config.WebhookCallback(ctx, evt.Summary()); cbErr != nil {
				p.logger.Error("webhook callback failed",
					panelpay.F("event_id", raw.ID),
					panelpay.F("event_type", eventType),
					panelpay.F("error", cbErr),
				)
			}
		}
		return nil, nil
	})
	return err
}

// HandleCheckoutCompleted syncs the session's customer, then delivers the
// purchased items. Sessions still awaiting a delayed payment are delivered
// on the payment_intent.succeeded of their intent.
func (p *Provider) HandleCheckoutCompleted(ctx context.Context, e *CheckoutCompleted) error {
	if e.Session.ID == "" {
		return fmt.Errorf("%w: checkout session without id", billing.ErrInvalidWebhookPayload)
	}

	if cust := customerID(e.Session.Customer); cust != "" {
		if _, err := p.SyncCustomer(ctx, cust); err != nil {
			return fmt.Errorf("failed to sync customer %s: %w", cust, err)
		}
	} else {
		p.logger.Warn("checkout session has no customer, skipping sync", panelpay.F("session_id", e.Session.ID))
	}

	report, err := p.Deliver(ctx, e.Session.ID)
	if errors.Is(err, billing.ErrPaymentPending) {
		p.logger.Info("checkout awaits payment, delivery deferred",
			panelpay.F("session_id", e.Session.ID),
			panelpay.F("payment_status", string(e.Session.PaymentStatus)),
		)
		return nil
	}
	e.Delivery = report
	return err
}

// HandlePaymentSucceeded syncs the customer and delivers the checkout that
// created the intent. Receipts make the delivery a no-op when the completed
// checkout already granted it.
func (p *Provider) HandlePaymentSucceeded(ctx context.Context, e *PaymentSucceeded) error {
	if err := p.syncForEvent(ctx, e.Envelope().ID, e.CustomerID()); err != nil {
		return err
	}

	// Only intents of storefront checkouts carry the buyer
	if e.PaymentIntent.Metadata[metadataUsername] == "" || p.console == nil {
		return nil
	}

	done := p.startCall("/checkout/sessions/list")
	session, err := p.api.FindCheckoutSession(ctx, e.PaymentIntent.ID)
	done(err)
	if err != nil {
		return fmt.Errorf("%w: failed to find checkout session: %v", billing.ErrPaymentProvider, err)
	}
	if session == nil || session.ID == "" {
		p.logger.Debug("payment intent has no checkout session", panelpay.F("payment_intent_id", e.PaymentIntent.ID))
		return nil
	}

	_, err = p.Deliver(ctx, session.ID)
	if errors.Is(err, billing.ErrPaymentPending) {
		p.logger.Warn("checkout session not marked paid yet, delivery deferred",
			panelpay.F("session_id", session.ID),
			panelpay.F("payment_intent_id", e.PaymentIntent.ID),
		)
		return nil
	}
	return err
}

func (p *Provider) HandlePaymentFailed(ctx context.Context, e *PaymentFailed) error {
	return p.syncForEvent(ctx, e.Envelope().ID, e.CustomerID())
}

func (p *Provider) HandlePaymentCanceled(ctx context.Context, e *PaymentCanceled) error {
	return p.syncForEvent(ctx, e.Envelope().ID, e.CustomerID())
}

// Subscription and invoice events only resync; there is no subscription
// product to deliver.

func (p *Provider) HandleSubscriptionCreated(ctx context.Context, e *SubscriptionCreated) error {
	return p.syncForEvent(ctx, e.Envelope().ID, e.CustomerID())
}

func (p *Provider) HandleSubscriptionUpdated(ctx context.Context, e *SubscriptionUpdated) error {
	return p.syncForEvent(ctx, e.Envelope().ID, e.CustomerID())
}

func (p *Provider) HandleSubscriptionDeleted(ctx context.Context, e *SubscriptionDeleted) error {
	return p.syncForEvent(ctx, e.Envelope().ID, e.CustomerID())
}

func (p *Provider) HandleInvoicePaid(ctx context.Context, e *InvoicePaid) error {
	return p.syncForEvent(ctx, e.Envelope().ID, e.CustomerID())
}

func (p *Provider) HandleInvoicePaymentFailed(ctx context.Context, e *InvoicePaymentFailed) error {
	return p.syncForEvent(ctx, e.Envelope().ID, e.CustomerID())
}

func (p *Provider) syncForEvent(ctx context.Context, eventID, customerID string) error {
	if customerID == "" {
		p.logger.Warn("event has no customer, nothing to sync", panelpay.F("event_id", eventID))
		return nil
	}
	_, err := p.SyncCustomer(ctx, customerID)
	return err
}
