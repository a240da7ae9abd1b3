package billing

import "errors"

var (
	// ErrProviderNotConfigured is returned when a provider is not properly configured
	ErrProviderNotConfigured = errors.New("billing provider not configured")

	// ErrEmptyCart is returned when a checkout is requested for an empty cart
	ErrEmptyCart = errors.New("cart is empty")

	// ErrMissingIdentity is returned when a checkout has no buyer username
	ErrMissingIdentity = errors.New("minecraft username is required")

	// ErrInvalidIdentity is returned when the buyer username has characters
	// that cannot reach a console command
	ErrInvalidIdentity = errors.New("minecraft username may only contain letters, digits and underscores")

	// ErrInvalidCartItem is returned when a cart line has an invalid shape
	ErrInvalidCartItem = errors.New("invalid cart item")

	// ErrUnauthenticated is returned when the caller has no application session
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrMissingSignature is returned when a webhook carries no signature header
	ErrMissingSignature = errors.New("missing webhook signature")

	// ErrInvalidWebhookSignature is returned when webhook signature validation fails
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")

	// ErrInvalidWebhookPayload is returned when webhook payload cannot be parsed
	ErrInvalidWebhookPayload = errors.New("invalid webhook payload")

	// ErrPaymentProvider is returned when the provider's API returns an error
	ErrPaymentProvider = errors.New("payment provider error")

	// ErrUnexpectedResponse is returned when a provider object lacks required fields
	ErrUnexpectedResponse = errors.New("unexpected payment provider response")

	// ErrCustomerNotFound is returned when no provider customer exists for a user
	ErrCustomerNotFound = errors.New("customer not found in billing provider")

	// ErrMissingBuyerIdentity is returned when a completed checkout has no buyer username
	ErrMissingBuyerIdentity = errors.New("checkout session has no buyer identity")

	// ErrPartialDelivery is returned when at least one purchased item could not be granted
	ErrPartialDelivery = errors.New("some purchased items were not delivered")

	// ErrPaymentPending is returned when a checkout session is not paid yet
	ErrPaymentPending = errors.New("checkout session payment is pending")
)
