package panelpay

import "strings"

const (
	userKeyPrefix     = "stripe:user:"
	customerKeyPrefix = "stripe:customer:"
	webhookKeyPrefix  = "stripe:webhook:"
	purchaseKeyPrefix = "purchase:"
)

// UserCustomerKey is the key mapping an application user to a Stripe customer id.
func UserCustomerKey(userID string) string {
	return userKeyPrefix + userID
}

// CustomerSnapshotKey is the key holding the PaymentSnapshot of a customer.
func CustomerSnapshotKey(customerID string) string {
	return customerKeyPrefix + customerID
}

// WebhookMarkerKey is the key holding the processed marker of a webhook event.
func WebhookMarkerKey(eventID string) string {
	return webhookKeyPrefix + eventID
}

// PurchaseReceiptKey is the key holding the DeliveryReceipt of one product
// purchased in one checkout session.
func PurchaseReceiptKey(sessionID, productID string) string {
	return purchaseKeyPrefix + sessionID + ":" + productID
}

// ValidateKey returns ErrInvalidKey for keys that are empty or only whitespace.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}
