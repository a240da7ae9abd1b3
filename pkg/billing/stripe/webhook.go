package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mcpanel/panelpay/pkg/billing"
	"github.com/mcpanel/panelpay/pkg/billing/internal"
	"github.com/mcpanel/panelpay/pkg/panelpay"
)

const signatureHeader = "Stripe-Signature"

// handleWebhook verifies and acknowledges incoming Stripe events. Allowed
// events are processed in a detached task after the response is written.
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if p.webhookSecret == "" {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	// Read and validate body (with size limit protection)
	body, err := internal.ReadBodyStrict(w, r, maxWebhookBodyBytes)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	evt, err := p.verifyEvent(body, r.Header.Get(signatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrMissingSignature):
			p.metrics.RecordWebhookError(providerName, "missing_signature")
		case errors.Is(err, billing.ErrInvalidWebhookSignature):
			p.metrics.RecordWebhookError(providerName, "auth_failed")
		default:
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	eventType := string(evt.Type)
	decoded, allowed, err := DecodeEvent(evt)
	switch {
	case !allowed:
		p.metrics.RecordWebhookEvent(providerName, eventType, "ignored")
		p.logger.Debug("ignoring webhook event", panelpay.F("event_id", evt.ID), panelpay.F("event_type", eventType))
	case err != nil:
		// Stripe would redeliver the same undecodable payload forever
		p.metrics.RecordWebhookError(providerName, "decode_failed")
		p.logger.Error("failed to decode webhook event",
			panelpay.F("event_id", evt.ID),
			panelpay.F("event_type", eventType),
			panelpay.F("error", err),
		)
	default:
		p.metrics.RecordWebhookEvent(providerName, eventType, "accepted")
		p.detach(r.Context(), decoded)
	}

	w.WriteHeader(http.StatusOK)
}

// verifyEvent checks the signature before the payload is parsed
func (p *Provider) verifyEvent(body []byte, signature string) (*stripe.Event, error) {
	if signature == "" {
		return nil, billing.ErrMissingSignature
	}
	if err := webhook.ValidatePayload(body, signature, p.webhookSecret); err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrInvalidWebhookSignature, err)
	}

	var evt stripe.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrInvalidWebhookPayload, err)
	}
	if evt.ID == "" || evt.Type == "" {
		return nil, fmt.Errorf("%w: event without id or type", billing.ErrInvalidWebhookPayload)
	}
	return &evt, nil
}

// detach processes evt in the background. The task outlives the request,
// keeps its values, and is bounded by ProcessingTimeout. Its errors and
// panics are logged and dropped.
func (p *Provider) detach(parent context.Context, evt Event) {
	raw := evt.Envelope()
	p.tasks.Add(1)
	go func() {
		defer p.tasks.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), p.config.ProcessingTimeout)
		defer cancel()

		defer func() {
			if rec := recover(); rec != nil {
				p.metrics.RecordWebhookError(providerName, "panic")
				p.logger.Error("webhook task panicked",
					panelpay.F("event_id", raw.ID),
					panelpay.F("event_type", string(raw.Type)),
					panelpay.F("panic", fmt.Sprint(rec)),
				)
			}
		}()

		start := time.Now()
		if err := p.ProcessEvent(ctx, evt); err != nil {
			p.logger.Error("webhook processing failed",
				panelpay.F("event_id", raw.ID),
				panelpay.F("event_type", string(raw.Type)),
				panelpay.F("duration", time.Since(start)),
				panelpay.F("error", err),
			)
		}
	}()
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
