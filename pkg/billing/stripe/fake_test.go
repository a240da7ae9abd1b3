package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83"

	"github.com/mcpanel/panelpay/pkg/billing"
	"github.com/mcpanel/panelpay/storage/memory"
)

const (
	testSecret     = "whsec_test_secret"
	testUserID     = "user_123"
	testCustomerID = "cus_123"
	testSessionID  = "cs_test_123"
)

var errStripeDown = errors.New("stripe is down")

// fakeAPI is an in-memory Stripe gateway
type fakeAPI struct {
	mu sync.Mutex

	customers      map[string]*stripe.Customer // by user id, for search
	sessions       map[string]*stripe.CheckoutSession
	lineItems      map[string][]*stripe.LineItem
	intents        map[string][]*stripe.PaymentIntent
	paymentMethods map[string]*stripe.PaymentMethod
	products       map[string]*stripe.Product

	errs           map[string]error // by method name
	calls          map[string]int
	checkoutParams []*stripe.CheckoutSessionCreateParams
	nextID         int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		customers:      make(map[string]*stripe.Customer),
		sessions:       make(map[string]*stripe.CheckoutSession),
		lineItems:      make(map[string][]*stripe.LineItem),
		intents:        make(map[string][]*stripe.PaymentIntent),
		paymentMethods: make(map[string]*stripe.PaymentMethod),
		products:       make(map[string]*stripe.Product),
		errs:           make(map[string]error),
		calls:          make(map[string]int),
	}
}

func (f *fakeAPI) record(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return f.errs[method]
}

func (f *fakeAPI) failOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = err
}

func (f *fakeAPI) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeAPI) CreateCustomer(_ context.Context, userID string) (*stripe.Customer, error) {
	if err := f.record("CreateCustomer"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	cust := &stripe.Customer{ID: fmt.Sprintf("cus_new_%d", f.nextID), Metadata: map[string]string{"user_id": userID}}
	f.customers[userID] = cust
	return cust, nil
}

func (f *fakeAPI) SearchCustomer(_ context.Context, userID string) (*stripe.Customer, error) {
	if err := f.record("SearchCustomer"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.customers[userID], nil
}

func (f *fakeAPI) CreateCheckoutSession(
	_ context.Context, params *stripe.CheckoutSessionCreateParams,
) (*stripe.CheckoutSession, error) {
	if err := f.record("CreateCheckoutSession"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkoutParams = append(f.checkoutParams, params)
	f.nextID++
	id := fmt.Sprintf("cs_test_%d", f.nextID)
	session := &stripe.CheckoutSession{
		ID:       id,
		URL:      "https://checkout.stripe.com/c/pay/" + id,
		Customer: &stripe.Customer{ID: stripe.StringValue(params.Customer)},
		Metadata: params.Metadata,
	}
	f.sessions[id] = session
	return session, nil
}

func (f *fakeAPI) RetrieveCheckoutSession(_ context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	if err := f.record("RetrieveCheckoutSession"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, &stripe.Error{HTTPStatusCode: 404, Msg: "No such checkout.session"}
	}
	return s, nil
}

func (f *fakeAPI) FindCheckoutSession(_ context.Context, paymentIntentID string) (*stripe.CheckoutSession, error) {
	if err := f.record("FindCheckoutSession"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.PaymentIntent != nil && s.PaymentIntent.ID == paymentIntentID {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeAPI) ListLineItems(_ context.Context, sessionID string) ([]*stripe.LineItem, error) {
	if err := f.record("ListLineItems"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lineItems[sessionID], nil
}

func (f *fakeAPI) ListPaymentIntents(_ context.Context, customerID string, limit int) ([]*stripe.PaymentIntent, error) {
	if err := f.record("ListPaymentIntents"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	intents := f.intents[customerID]
	if len(intents) > limit {
		intents = intents[:limit]
	}
	return intents, nil
}

func (f *fakeAPI) RetrievePaymentMethod(_ context.Context, id string) (*stripe.PaymentMethod, error) {
	if err := f.record("RetrievePaymentMethod"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	pm, ok := f.paymentMethods[id]
	if !ok {
		return nil, &stripe.Error{HTTPStatusCode: 404, Msg: "No such payment_method"}
	}
	return pm, nil
}

func (f *fakeAPI) RetrieveProduct(_ context.Context, id string) (*stripe.Product, error) {
	if err := f.record("RetrieveProduct"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, &stripe.Error{HTTPStatusCode: 404, Msg: "No such product"}
	}
	return p, nil
}

// fakeConsole records commands and fails those containing a marker
type fakeConsole struct {
	mu       sync.Mutex
	commands []string
	failIf   string
}

func (c *fakeConsole) ExecuteCommand(_ context.Context, command string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failIf != "" && strings.Contains(command, c.failIf) {
		return errors.New("server unreachable")
	}
	c.commands = append(c.commands, command)
	return nil
}

func (c *fakeConsole) executed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands...)
}

type testEnv struct {
	provider *Provider
	api      *fakeAPI
	console  *fakeConsole
	store    *memory.Storage
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	env := &testEnv{api: newFakeAPI(), console: &fakeConsole{}, store: memory.New()}

	cfg := Config{
		Config:              billing.Config{Store: env.store},
		StripeWebhookSecret: testSecret,
		API:                 env.api,
		Console:             env.console,
		SuccessURL:          "https://shop.example.com/api/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:           "https://shop.example.com/cart",
		GrantCommand:        "give {player} {product} {quantity}",
		ProcessingTimeout:   5 * time.Second,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	p, err := NewProvider(cfg)
	require.NoError(t, err)
	p.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	env.provider = p

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Close(ctx)
	})
	return env
}

func lineItem(id, productID, name, itemID string, qty int64) *stripe.LineItem {
	return &stripe.LineItem{
		ID:       id,
		Quantity: qty,
		Price: &stripe.Price{
			ID: "price_" + id,
			Product: &stripe.Product{
				ID:       productID,
				Name:     name,
				Metadata: map[string]string{"item_id": itemID},
			},
		},
	}
}

// setPaymentStatus changes the payment status of a stored session
func (env *testEnv) setPaymentStatus(sessionID string, status stripe.CheckoutSessionPaymentStatus) {
	env.api.mu.Lock()
	defer env.api.mu.Unlock()
	env.api.sessions[sessionID].PaymentStatus = status
}

// seedCompletedCheckout stores a paid session with one VIP line item
func (env *testEnv) seedCompletedCheckout(username string, items ...*stripe.LineItem) {
	env.api.mu.Lock()
	defer env.api.mu.Unlock()
	metadata := map[string]string{"user_id": testUserID}
	if username != "" {
		metadata["minecraft_username"] = username
	}
	env.api.sessions[testSessionID] = &stripe.CheckoutSession{
		ID:            testSessionID,
		Customer:      &stripe.Customer{ID: testCustomerID},
		Metadata:      metadata,
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_1"},
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
	}
	if len(items) == 0 {
		items = []*stripe.LineItem{lineItem("li_1", "prod_vip", "VIP", "1", 1)}
	}
	env.api.lineItems[testSessionID] = items
	env.api.intents[testCustomerID] = []*stripe.PaymentIntent{{
		ID:       "pi_1",
		Status:   stripe.PaymentIntentStatusSucceeded,
		Amount:   999,
		Currency: stripe.CurrencyUSD,
		Created:  1714564800,
	}}
}
