package stripe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mcpanel/panelpay/pkg/billing"
	"github.com/mcpanel/panelpay/pkg/panelpay"
)

// SyncCustomer fetches the customer's recent payment intents and overwrites
// the cached PaymentSnapshot. The snapshot write is the last step, so a
// returned snapshot is what the cache holds. Concurrent calls are safe
// because every call recomputes the whole snapshot.
func (p *Provider) SyncCustomer(ctx context.Context, customerID string) (*panelpay.PaymentSnapshot, error) {
	startTime := time.Now()
	snap, err := p.syncCustomer(ctx, customerID)

	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordSync(providerName, status)
	p.metrics.RecordSyncDuration(providerName, time.Since(startTime))
	return snap, err
}

func (p *Provider) syncCustomer(ctx context.Context, customerID string) (*panelpay.PaymentSnapshot, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, fmt.Errorf("%w: empty customer id", billing.ErrCustomerNotFound)
	}

	done := p.startCall("/payment_intents")
	intents, err := p.api.ListPaymentIntents(ctx, customerID, p.config.PaymentIntentLimit)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list payment intents: %v", billing.ErrPaymentProvider, err)
	}

	var snap *panelpay.PaymentSnapshot
	if pi := selectIntent(intents); pi == nil {
		snap = panelpay.NoPayments()
	} else {
		snap, err = snapshotFromIntent(pi)
		if err != nil {
			return nil, err
		}
		snap.PaymentMethod = p.describePaymentMethod(ctx, pi)
	}

	if err := panelpay.SetValue(ctx, p.store, panelpay.CustomerSnapshotKey(customerID), snap, 0); err != nil {
		return nil, fmt.Errorf("failed to store payment snapshot: %w", err)
	}

	p.logger.Debug("payment state synced",
		panelpay.F("customer_id", customerID),
		panelpay.F("status", string(snap.Status)),
	)
	return snap, nil
}

// selectIntent picks the first succeeded intent, else the most recent one.
// intents are ordered newest first.
func selectIntent(intents []*stripe.PaymentIntent) *stripe.PaymentIntent {
	var first *stripe.PaymentIntent
	for _, pi := range intents {
		if pi == nil {
			continue
		}
		if first == nil {
			first = pi
		}
		if pi.Status == stripe.PaymentIntentStatusSucceeded {
			return pi
		}
	}
	return first
}

// snapshotFromIntent validates the intent at the boundary
func snapshotFromIntent(pi *stripe.PaymentIntent) (*panelpay.PaymentSnapshot, error) {
	status := panelpay.PaymentStatus(pi.Status)
	if pi.ID == "" || !status.Valid() || status == panelpay.PaymentStatusNone {
		return nil, fmt.Errorf("%w: payment intent %q with status %q", billing.ErrUnexpectedResponse, pi.ID, pi.Status)
	}

	var metadata map[string]string
	if len(pi.Metadata) > 0 {
		metadata = make(map[string]string, len(pi.Metadata))
		for k, v := range pi.Metadata {
			metadata[k] = v
		}
	}

	return &panelpay.PaymentSnapshot{
		PaymentIntentID: pi.ID,
		Status:          status,
		Amount:          pi.Amount,
		Currency:        string(pi.Currency),
		Metadata:        metadata,
		Created:         pi.Created,
	}, nil
}

// describePaymentMethod resolves card brand and last4 for display. Failures
// are logged and yield nil; they never fail the sync.
func (p *Provider) describePaymentMethod(ctx context.Context, pi *stripe.PaymentIntent) *panelpay.PaymentMethod {
	pm := pi.PaymentMethod
	if pm == nil || pm.ID == "" {
		return nil
	}

	// Unexpanded references carry only the id
	if pm.Type == "" && pm.Card == nil {
		done := p.startCall("/payment_methods")
		resolved, err := p.api.RetrievePaymentMethod(ctx, pm.ID)
		done(err)
		if err != nil {
			p.logger.Warn("failed to resolve payment method",
				panelpay.F("payment_intent_id", pi.ID),
				panelpay.F("payment_method_id", pm.ID),
				panelpay.F("error", err),
			)
			return nil
		}
		pm = resolved
	}

	if pm == nil || pm.Type != stripe.PaymentMethodTypeCard || pm.Card == nil {
		return nil
	}
	return &panelpay.PaymentMethod{
		Brand: string(pm.Card.Brand),
		Last4: pm.Card.Last4,
	}
}
