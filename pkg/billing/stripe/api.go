package stripe

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v83"
)

// API is the subset of the Stripe API used by the provider. The default
// implementation wraps *stripe.Client; tests substitute a fake.
type API interface {
	CreateCustomer(ctx context.Context, userID string) (*stripe.Customer, error)
	// SearchCustomer returns nil and no error when no customer carries userID
	SearchCustomer(ctx context.Context, userID string) (*stripe.Customer, error)
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error)
	// FindCheckoutSession returns nil and no error when no session created the intent
	FindCheckoutSession(ctx context.Context, paymentIntentID string) (*stripe.CheckoutSession, error)
	ListLineItems(ctx context.Context, sessionID string) ([]*stripe.LineItem, error)
	// ListPaymentIntents returns at most limit intents of the customer, newest first
	ListPaymentIntents(ctx context.Context, customerID string, limit int) ([]*stripe.PaymentIntent, error)
	RetrievePaymentMethod(ctx context.Context, paymentMethodID string) (*stripe.PaymentMethod, error)
	RetrieveProduct(ctx context.Context, productID string) (*stripe.Product, error)
}

// clientAPI implements API on top of the stripe-go client
type clientAPI struct {
	client *stripe.Client
}

// NewAPI wraps a stripe-go client
func NewAPI(client *stripe.Client) API {
	return &clientAPI{client: client}
}

func (a *clientAPI) CreateCustomer(ctx context.Context, userID string) (*stripe.Customer, error) {
	params := &stripe.CustomerCreateParams{}
	params.AddMetadata("user_id", userID)
	return a.client.V1Customers.Create(ctx, params)
}

func (a *clientAPI) SearchCustomer(ctx context.Context, userID string) (*stripe.Customer, error) {
	params := &stripe.CustomerSearchParams{}
	params.Query = fmt.Sprintf("metadata['user_id']:'%s'", escapeSearchValue(userID))

	for cust, err := range a.client.V1Customers.Search(ctx, params) {
		if err != nil {
			return nil, err
		}
		// Search is eventually consistent and may return partial matches
		if cust.Metadata != nil && cust.Metadata["user_id"] == userID {
			return cust, nil
		}
	}
	return nil, nil
}

func (a *clientAPI) CreateCheckoutSession(
	ctx context.Context, params *stripe.CheckoutSessionCreateParams,
) (*stripe.CheckoutSession, error) {
	return a.client.V1CheckoutSessions.Create(ctx, params)
}

func (a *clientAPI) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	return a.client.V1CheckoutSessions.Retrieve(ctx, sessionID, nil)
}

func (a *clientAPI) FindCheckoutSession(ctx context.Context, paymentIntentID string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionListParams{PaymentIntent: stripe.String(paymentIntentID)}
	params.Limit = stripe.Int64(1)

	for session, err := range a.client.V1CheckoutSessions.List(ctx, params) {
		if err != nil {
			return nil, err
		}
		return session, nil
	}
	return nil, nil
}

func (a *clientAPI) ListLineItems(ctx context.Context, sessionID string) ([]*stripe.LineItem, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(sessionID)}
	params.AddExpand("data.price.product")

	var items []*stripe.LineItem
	for item, err := range a.client.V1CheckoutSessions.ListLineItems(ctx, params) {
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (a *clientAPI) ListPaymentIntents(
	ctx context.Context, customerID string, limit int,
) ([]*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentListParams{Customer: stripe.String(customerID)}
	params.Limit = stripe.Int64(int64(limit))
	params.AddExpand("data.payment_method")

	intents := make([]*stripe.PaymentIntent, 0, limit)
	for pi, err := range a.client.V1PaymentIntents.List(ctx, params) {
		if err != nil {
			return nil, err
		}
		intents = append(intents, pi)
		// The iterator pages on; only the first page is wanted
		if len(intents) >= limit {
			break
		}
	}
	return intents, nil
}

func (a *clientAPI) RetrievePaymentMethod(ctx context.Context, paymentMethodID string) (*stripe.PaymentMethod, error) {
	return a.client.V1PaymentMethods.Retrieve(ctx, paymentMethodID, nil)
}

func (a *clientAPI) RetrieveProduct(ctx context.Context, productID string) (*stripe.Product, error) {
	return a.client.V1Products.Retrieve(ctx, productID, nil)
}

// escapeSearchValue escapes a value for a quoted Stripe search query term
func escapeSearchValue(v string) string {
	out := make([]byte, 0, len(v))
	for i := 0; i < len(v); i++ {
		if v[i] == '\'' || v[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, v[i])
	}
	return string(out)
}
