package stripe

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v83"

	"github.com/mcpanel/panelpay/pkg/billing"
	"github.com/mcpanel/panelpay/pkg/panelpay"
)

// Deliver grants every purchased product of a paid checkout session to the
// buyer exactly once. Line items of the same product are granted together.
// Products with a receipt are skipped; a failing product is logged and does
// not stop the others. When any product failed the returned error wraps
// billing.ErrPartialDelivery. Concurrent calls for one session share a run.
func (p *Provider) Deliver(ctx context.Context, sessionID string) (*billing.DeliveryReport, error) {
	if p.console == nil {
		return nil, fmt.Errorf("%w: no console configured for delivery", billing.ErrProviderNotConfigured)
	}

	v, err, _ := p.deliveries.Do(sessionID, func() (interface{}, error) {
		return p.deliver(ctx, sessionID)
	})
	report, _ := v.(*billing.DeliveryReport)
	return report, err
}

func (p *Provider) deliver(ctx context.Context, sessionID string) (*billing.DeliveryReport, error) {
	// 1. Retrieve the session and its buyer
	session, err := p.retrieveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch session.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
	default:
		return nil, fmt.Errorf("%w: session %s is %q", billing.ErrPaymentPending, session.ID, session.PaymentStatus)
	}

	rawName := ""
	if session.Metadata != nil {
		rawName = session.Metadata[metadataUsername]
	}
	player := SanitizeIdentifier(rawName)
	if player == "" {
		p.logger.Error("checkout session has no buyer identity, nothing delivered",
			panelpay.F("session_id", session.ID),
		)
		return nil, fmt.Errorf("%w: %s", billing.ErrMissingBuyerIdentity, session.ID)
	}

	// 2. Retrieve the purchased line items
	done := p.startCall("/checkout/sessions/line_items")
	items, err := p.api.ListLineItems(ctx, session.ID)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list line items: %v", billing.ErrPaymentProvider, err)
	}

	report := &billing.DeliveryReport{SessionID: session.ID, Username: player}
	fail := func(lineItemID string, err error) {
		report.Failed++
		p.metrics.RecordDelivery(providerName, string(outcomeFailed))
		p.logger.Error("failed to deliver item",
			panelpay.F("session_id", session.ID),
			panelpay.F("player", player),
			panelpay.F("line_item_id", lineItemID),
			panelpay.F("error", err),
		)
	}

	// 3. Group the line items by product
	var grants []*grant
	byProduct := make(map[string]*grant, len(items))
	for _, item := range items {
		if item == nil || item.Quantity <= 0 {
			fail(lineItemID(item), fmt.Errorf("%w: line item without quantity", billing.ErrUnexpectedResponse))
			continue
		}
		productID, productName, err := p.resolveProduct(ctx, item)
		if err != nil {
			fail(item.ID, err)
			continue
		}
		if g, ok := byProduct[productID]; ok {
			g.quantity += item.Quantity
			g.lineItemIDs = append(g.lineItemIDs, item.ID)
			continue
		}
		g := &grant{productID: productID, productName: productName, quantity: item.Quantity, lineItemIDs: []string{item.ID}}
		byProduct[productID] = g
		grants = append(grants, g)
	}

	// 4. Grant each product in isolation
	for _, g := range grants {
		outcome, err := p.deliverGrant(ctx, session.ID, player, g)
		switch outcome {
		case outcomeDelivered:
			report.Delivered++
			p.metrics.RecordDelivery(providerName, string(outcome))
		case outcomeSkipped:
			report.Skipped++
			p.metrics.RecordDelivery(providerName, string(outcome))
		default:
			fail(strings.Join(g.lineItemIDs, ","), err)
		}
	}

	p.logger.Info("checkout delivery finished",
		panelpay.F("session_id", session.ID),
		panelpay.F("player", player),
		panelpay.F("delivered", report.Delivered),
		panelpay.F("skipped", report.Skipped),
		panelpay.F("failed", report.Failed),
	)

	if report.Failed > 0 {
		return report, fmt.Errorf("%w: %d of %d items in session %s",
			billing.ErrPartialDelivery, report.Failed, report.Delivered+report.Skipped+report.Failed, session.ID)
	}
	return report, nil
}

// grant is the total purchased quantity of one product in a session
type grant struct {
	productID   string
	productName string
	quantity    int64
	lineItemIDs []string
}

type deliveryOutcome string

const (
	outcomeDelivered deliveryOutcome = "delivered"
	outcomeSkipped   deliveryOutcome = "skipped"
	outcomeFailed    deliveryOutcome = "failed"
)

func (p *Provider) deliverGrant(ctx context.Context, sessionID, player string, g *grant) (deliveryOutcome, error) {
	receiptKey := panelpay.PurchaseReceiptKey(sessionID, g.productID)
	exists, err := p.store.Exists(ctx, receiptKey)
	if err != nil {
		return outcomeFailed, fmt.Errorf("failed to check delivery receipt: %w", err)
	}
	if exists {
		return outcomeSkipped, nil
	}

	command := RenderCommand(p.config.GrantCommand, player, g.productName, g.productID, g.quantity)
	if command == "" {
		return outcomeFailed, fmt.Errorf("product %s has no deliverable name", g.productID)
	}
	if err := p.console.ExecuteCommand(ctx, command); err != nil {
		return outcomeFailed, fmt.Errorf("grant command failed: %w", err)
	}

	receipt := panelpay.DeliveryReceipt{
		SessionID:   sessionID,
		ProductID:   g.productID,
		ProductName: g.productName,
		Username:    player,
		Quantity:    g.quantity,
		DeliveredAt: p.now().UTC(),
	}
	if err := panelpay.SetValue(ctx, p.store, receiptKey, receipt, 0); err != nil {
		// The grant happened; a later delivery run would grant again
		p.logger.Error("item granted but receipt not stored",
			panelpay.F("session_id", sessionID),
			panelpay.F("product_id", g.productID),
			panelpay.F("error", err),
		)
		return outcomeFailed, err
	}
	return outcomeDelivered, nil
}

// resolveProduct returns the store item id and display name of a line item.
// The item id is the product's item_id metadata, else the Stripe product id.
func (p *Provider) resolveProduct(ctx context.Context, item *stripe.LineItem) (id, name string, err error) {
	if item.Price == nil || item.Price.Product == nil || item.Price.Product.ID == "" {
		return "", "", fmt.Errorf("%w: line item %s has no product", billing.ErrUnexpectedResponse, item.ID)
	}

	product := item.Price.Product
	if product.Name == "" {
		done := p.startCall("/products")
		product, err = p.api.RetrieveProduct(ctx, item.Price.Product.ID)
		done(err)
		if err != nil {
			return "", "", fmt.Errorf("%w: failed to retrieve product: %v", billing.ErrPaymentProvider, err)
		}
		if product == nil || product.ID == "" {
			return "", "", fmt.Errorf("%w: product without id", billing.ErrUnexpectedResponse)
		}
	}

	id = product.ID
	if v := product.Metadata[metadataItemID]; v != "" {
		id = v
	}
	name = product.Name
	if name == "" {
		name = item.Description
	}
	return id, name, nil
}

func (p *Provider) retrieveSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	done := p.startCall("/checkout/sessions/retrieve")
	session, err := p.api.RetrieveCheckoutSession(ctx, sessionID)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to retrieve checkout session: %v", billing.ErrPaymentProvider, err)
	}
	if session == nil || session.ID == "" {
		return nil, fmt.Errorf("%w: checkout session without id", billing.ErrUnexpectedResponse)
	}
	return session, nil
}

// SanitizeIdentifier keeps only ASCII letters, digits and underscores.
// Values embedded in console commands must pass through it.
func SanitizeIdentifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// RenderCommand fills the grant template. Every substituted value is
// sanitized; an empty string is returned when the product sanitizes to nothing.
func RenderCommand(template, player, productName, productID string, quantity int64) string {
	product := SanitizeIdentifier(productName)
	if product == "" {
		return ""
	}
	r := strings.NewReplacer(
		"{player}", SanitizeIdentifier(player),
		"{product}", product,
		"{product_id}", SanitizeIdentifier(productID),
		"{quantity}", strconv.FormatInt(quantity, 10),
	)
	return strings.TrimSpace(r.Replace(template))
}

func lineItemID(item *stripe.LineItem) string {
	if item == nil {
		return ""
	}
	return item.ID
}
