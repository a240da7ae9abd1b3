package stripe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83"

	"github.com/mcpanel/panelpay/pkg/billing"
	"github.com/mcpanel/panelpay/pkg/panelpay"
)

func cachedSnapshot(t *testing.T, env *testEnv, customerID string) *panelpay.PaymentSnapshot {
	t.Helper()
	snap, err := panelpay.GetValue[panelpay.PaymentSnapshot](context.Background(), env.store, panelpay.CustomerSnapshotKey(customerID))
	require.NoError(t, err)
	return snap
}

func TestSyncCustomer_NoPayments(t *testing.T) {
	env := newTestEnv(t)

	snap, err := env.provider.SyncCustomer(context.Background(), testCustomerID)
	require.NoError(t, err)
	assert.Equal(t, panelpay.NoPayments(), snap)
	assert.Equal(t, panelpay.NoPayments(), cachedSnapshot(t, env, testCustomerID))
}

func TestSyncCustomer_PrefersSucceeded(t *testing.T) {
	env := newTestEnv(t)
	env.api.intents[testCustomerID] = []*stripe.PaymentIntent{
		{ID: "pi_3", Status: stripe.PaymentIntentStatusRequiresPaymentMethod, Amount: 500, Currency: stripe.CurrencyUSD, Created: 300},
		{ID: "pi_2", Status: stripe.PaymentIntentStatusSucceeded, Amount: 999, Currency: stripe.CurrencyUSD, Created: 200,
			Metadata: map[string]string{"minecraft_username": "Steve"}},
		{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded, Amount: 100, Currency: stripe.CurrencyUSD, Created: 100},
	}

	snap, err := env.provider.SyncCustomer(context.Background(), testCustomerID)
	require.NoError(t, err)

	assert.Equal(t, &panelpay.PaymentSnapshot{
		PaymentIntentID: "pi_2",
		Status:          panelpay.PaymentStatusSucceeded,
		Amount:          999,
		Currency:        "usd",
		Metadata:        map[string]string{"minecraft_username": "Steve"},
		Created:         200,
	}, snap)
	assert.Equal(t, snap, cachedSnapshot(t, env, testCustomerID))
}

func TestSyncCustomer_FallsBackToMostRecent(t *testing.T) {
	env := newTestEnv(t)
	env.api.intents[testCustomerID] = []*stripe.PaymentIntent{
		{ID: "pi_2", Status: stripe.PaymentIntentStatusProcessing, Amount: 999, Currency: stripe.CurrencyUSD, Created: 200},
		{ID: "pi_1", Status: stripe.PaymentIntentStatusCanceled, Amount: 999, Currency: stripe.CurrencyUSD, Created: 100},
	}

	snap, err := env.provider.SyncCustomer(context.Background(), testCustomerID)
	require.NoError(t, err)
	assert.Equal(t, "pi_2", snap.PaymentIntentID)
	assert.Equal(t, panelpay.PaymentStatusProcessing, snap.Status)
}

func TestSyncCustomer_OverwritesSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.api.intents[testCustomerID] = []*stripe.PaymentIntent{
		{ID: "pi_1", Status: stripe.PaymentIntentStatusProcessing, Amount: 999, Currency: stripe.CurrencyUSD},
	}
	_, err := env.provider.SyncCustomer(ctx, testCustomerID)
	require.NoError(t, err)

	env.api.intents[testCustomerID][0].Status = stripe.PaymentIntentStatusSucceeded
	_, err = env.provider.SyncCustomer(ctx, testCustomerID)
	require.NoError(t, err)

	assert.Equal(t, panelpay.PaymentStatusSucceeded, cachedSnapshot(t, env, testCustomerID).Status)
}

func TestSyncCustomer_ExpandedCard(t *testing.T) {
	env := newTestEnv(t)
	env.api.intents[testCustomerID] = []*stripe.PaymentIntent{{
		ID:     "pi_1",
		Status: stripe.PaymentIntentStatusSucceeded,
		PaymentMethod: &stripe.PaymentMethod{
			ID:   "pm_1",
			Type: stripe.PaymentMethodTypeCard,
			Card: &stripe.PaymentMethodCard{Brand: "visa", Last4: "4242"},
		},
	}}

	snap, err := env.provider.SyncCustomer(context.Background(), testCustomerID)
	require.NoError(t, err)
	assert.Equal(t, &panelpay.PaymentMethod{Brand: "visa", Last4: "4242"}, snap.PaymentMethod)
	assert.Zero(t, env.api.callCount("RetrievePaymentMethod"))
}

func TestSyncCustomer_ResolvesPaymentMethodReference(t *testing.T) {
	env := newTestEnv(t)
	env.api.paymentMethods["pm_1"] = &stripe.PaymentMethod{
		ID:   "pm_1",
		Type: stripe.PaymentMethodTypeCard,
		Card: &stripe.PaymentMethodCard{Brand: "mastercard", Last4: "4444"},
	}
	env.api.intents[testCustomerID] = []*stripe.PaymentIntent{{
		ID:            "pi_1",
		Status:        stripe.PaymentIntentStatusSucceeded,
		PaymentMethod: &stripe.PaymentMethod{ID: "pm_1"},
	}}

	snap, err := env.provider.SyncCustomer(context.Background(), testCustomerID)
	require.NoError(t, err)
	assert.Equal(t, &panelpay.PaymentMethod{Brand: "mastercard", Last4: "4444"}, snap.PaymentMethod)
}

func TestSyncCustomer_PaymentMethodFailureIsTolerated(t *testing.T) {
	env := newTestEnv(t)
	env.api.failOn("RetrievePaymentMethod", errStripeDown)
	env.api.intents[testCustomerID] = []*stripe.PaymentIntent{{
		ID:            "pi_1",
		Status:        stripe.PaymentIntentStatusSucceeded,
		PaymentMethod: &stripe.PaymentMethod{ID: "pm_1"},
	}}

	snap, err := env.provider.SyncCustomer(context.Background(), testCustomerID)
	require.NoError(t, err)
	assert.Equal(t, panelpay.PaymentStatusSucceeded, snap.Status)
	assert.Nil(t, snap.PaymentMethod)
}

func TestSyncCustomer_NonCardMethod(t *testing.T) {
	env := newTestEnv(t)
	env.api.intents[testCustomerID] = []*stripe.PaymentIntent{{
		ID:            "pi_1",
		Status:        stripe.PaymentIntentStatusSucceeded,
		PaymentMethod: &stripe.PaymentMethod{ID: "pm_1", Type: stripe.PaymentMethodType("paypal")},
	}}

	snap, err := env.provider.SyncCustomer(context.Background(), testCustomerID)
	require.NoError(t, err)
	assert.Nil(t, snap.PaymentMethod)
}

func TestSyncCustomer_ListError(t *testing.T) {
	env := newTestEnv(t)
	env.api.failOn("ListPaymentIntents", errStripeDown)

	_, err := env.provider.SyncCustomer(context.Background(), testCustomerID)
	require.ErrorIs(t, err, billing.ErrPaymentProvider)
	assert.Nil(t, cachedSnapshot(t, env, testCustomerID), "failed sync leaves the cache untouched")
}

func TestSyncCustomer_RejectsUnknownStatus(t *testing.T) {
	env := newTestEnv(t)
	env.api.intents[testCustomerID] = []*stripe.PaymentIntent{{ID: "pi_1", Status: "exploded"}}

	_, err := env.provider.SyncCustomer(context.Background(), testCustomerID)
	assert.ErrorIs(t, err, billing.ErrUnexpectedResponse)
}

func TestSyncCustomer_RespectsLimit(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.PaymentIntentLimit = 2 })
	env.api.intents[testCustomerID] = []*stripe.PaymentIntent{
		{ID: "pi_3", Status: stripe.PaymentIntentStatusCanceled},
		{ID: "pi_2", Status: stripe.PaymentIntentStatusCanceled},
		{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded},
	}

	snap, err := env.provider.SyncCustomer(context.Background(), testCustomerID)
	require.NoError(t, err)
	assert.Equal(t, "pi_3", snap.PaymentIntentID, "the succeeded intent is outside the inspected window")
}
