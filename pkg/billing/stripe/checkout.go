package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v83"

	"github.com/mcpanel/panelpay/pkg/billing"
	"github.com/mcpanel/panelpay/pkg/panelpay"
)

const (
	metadataUserID   = "user_id"
	metadataUsername = "minecraft_username"
	metadataItemIDs  = "item_ids"
	metadataItemID   = "item_id"
)

// CreateCheckout creates a Stripe Checkout Session for the cart of userID.
// No state is written when the session cannot be created, except the
// user -> customer mapping, which is reused by the next attempt.
func (p *Provider) CreateCheckout(
	ctx context.Context, userID string, req billing.CheckoutRequest,
) (*billing.CheckoutSession, error) {
	// 1. Validate the request
	if strings.TrimSpace(userID) == "" {
		p.metrics.RecordCheckout(providerName, "validation_error")
		return nil, billing.ErrUnauthenticated
	}
	if err := p.validateCheckout(req); err != nil {
		p.metrics.RecordCheckout(providerName, "validation_error")
		return nil, err
	}
	username := strings.TrimSpace(req.MinecraftUsername)

	// 2. Price the cart
	lineItems, err := p.priceCart(ctx, mergeCartLines(req.CartItems))
	if err != nil {
		p.metrics.RecordCheckout(providerName, "validation_error")
		return nil, err
	}

	// 3. Resolve or create the customer
	customerID, err := p.resolveCustomerID(ctx, userID)
	if err != nil {
		p.metrics.RecordCheckout(providerName, "provider_error")
		return nil, err
	}

	// 4. Create the session
	itemIDs := make([]string, 0, len(lineItems))
	for _, li := range lineItems {
		itemIDs = append(itemIDs, li.ItemID)
	}
	metadata := map[string]string{
		metadataUserID:   userID,
		metadataUsername: username,
		metadataItemIDs:  strings.Join(itemIDs, ","),
	}

	successURL, cancelURL := p.checkoutURLs(req.ReturnURL)
	params := &stripe.CheckoutSessionCreateParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		Customer:   stripe.String(customerID),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		Metadata:   metadata,
		PaymentIntentData: &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	for _, li := range lineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionCreateLineItemParams{
			PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
				Currency: stripe.String(p.config.Currency),
				ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
					Name:     stripe.String(li.Name),
					Metadata: map[string]string{metadataItemID: li.ItemID},
				},
				UnitAmount: stripe.Int64(li.UnitAmount),
			},
			Quantity: stripe.Int64(li.Quantity),
		})
	}
	params.SetIdempotencyKey(uuid.NewString())

	done := p.startCall("/checkout/sessions")
	session, err := p.api.CreateCheckoutSession(ctx, params)
	done(err)
	if err != nil {
		p.metrics.RecordCheckout(providerName, "provider_error")
		return nil, fmt.Errorf("%w: failed to create checkout session: %v", billing.ErrPaymentProvider, err)
	}
	if session == nil || session.ID == "" || session.URL == "" {
		p.metrics.RecordCheckout(providerName, "provider_error")
		return nil, fmt.Errorf("%w: checkout session without id or url", billing.ErrUnexpectedResponse)
	}

	p.metrics.RecordCheckout(providerName, "success")
	p.logger.Info("checkout session created",
		panelpay.F("session_id", session.ID),
		panelpay.F("customer_id", customerID),
		panelpay.F("items", len(lineItems)),
	)

	return &billing.CheckoutSession{
		ID:         session.ID,
		CustomerID: customerID,
		URL:        session.URL,
		LineItems:  lineItems,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		Metadata:   metadata,
	}, nil
}

func (p *Provider) validateCheckout(req billing.CheckoutRequest) error {
	if len(req.CartItems) == 0 {
		return billing.ErrEmptyCart
	}
	username := strings.TrimSpace(req.MinecraftUsername)
	if username == "" {
		return billing.ErrMissingIdentity
	}
	// Delivery embeds the sanitized name; reject anything it would alter
	if SanitizeIdentifier(username) != username {
		return fmt.Errorf("%w: %q", billing.ErrInvalidIdentity, username)
	}
	if err := p.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", billing.ErrInvalidCartItem, err)
	}
	return nil
}

// mergeCartLines folds lines with the same item id into the first of them,
// summing quantities. Receipts are keyed by item id, so each id must reach
// the session once.
func mergeCartLines(cart []billing.CartItem) []billing.CartItem {
	merged := make([]billing.CartItem, 0, len(cart))
	index := make(map[billing.ItemID]int, len(cart))
	for _, item := range cart {
		if i, ok := index[item.ID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

// priceCart computes the line items of the session. Names and prices come
// from the catalog when one is configured.
func (p *Provider) priceCart(ctx context.Context, cart []billing.CartItem) ([]billing.LineItem, error) {
	lineItems := make([]billing.LineItem, 0, len(cart))
	for _, item := range cart {
		if p.config.Catalog != nil {
			listing, err := p.config.Catalog.LookupItem(ctx, string(item.ID))
			if err != nil {
				if errors.Is(err, billing.ErrItemNotFound) {
					return nil, fmt.Errorf("%w: unknown item %s", billing.ErrInvalidCartItem, item.ID)
				}
				return nil, fmt.Errorf("failed to look up item %s: %w", item.ID, err)
			}
			item = billing.ApplyCatalog(item, listing)
		}

		amount, substituted := billing.UnitAmountOrFallback(billing.EffectiveUnitPrice(item))
		if substituted {
			p.logger.Warn("invalid item price replaced by fallback",
				panelpay.F("item_id", string(item.ID)),
				panelpay.F("price", item.Price),
			)
		}

		lineItems = append(lineItems, billing.LineItem{
			ItemID:     string(item.ID),
			Name:       item.Name,
			UnitAmount: amount,
			Quantity:   item.Quantity,
		})
	}
	return lineItems, nil
}

func (p *Provider) checkoutURLs(returnURL string) (successURL, cancelURL string) {
	successURL, cancelURL = p.config.SuccessURL, p.config.CancelURL
	if returnURL != "" {
		cancelURL = returnURL
	}
	if cancelURL == "" {
		cancelURL = successURL
	}
	return successURL, cancelURL
}

// resolveCustomerID returns the Stripe customer of userID. The cached mapping
// is tried first, then a metadata search, and a customer is created last.
func (p *Provider) resolveCustomerID(ctx context.Context, userID string) (string, error) {
	key := panelpay.UserCustomerKey(userID)

	// FAST PATH: cached mapping
	cached, err := panelpay.GetValue[string](ctx, p.store, key)
	if err != nil {
		// Fail instead of risking a duplicate customer
		return "", fmt.Errorf("failed to read customer mapping: %w", err)
	}
	if cached != nil && *cached != "" {
		return *cached, nil
	}

	// SLOW PATH: Stripe Search API (eventually consistent)
	done := p.startCall("/customers/search")
	cust, err := p.api.SearchCustomer(ctx, userID)
	done(err)
	if err != nil {
		return "", fmt.Errorf("%w: customer search failed: %v", billing.ErrPaymentProvider, err)
	}

	if cust == nil {
		done = p.startCall("/customers")
		cust, err = p.api.CreateCustomer(ctx, userID)
		done(err)
		if err != nil {
			return "", fmt.Errorf("%w: failed to create customer: %v", billing.ErrPaymentProvider, err)
		}
		if cust == nil || cust.ID == "" {
			return "", fmt.Errorf("%w: customer without id", billing.ErrUnexpectedResponse)
		}
		p.logger.Info("stripe customer created", panelpay.F("user_id", userID), panelpay.F("customer_id", cust.ID))
	}

	if err := panelpay.SetValue(ctx, p.store, key, cust.ID, 0); err != nil {
		return "", fmt.Errorf("failed to store customer mapping: %w", err)
	}
	return cust.ID, nil
}
