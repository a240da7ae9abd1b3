package panelpay

import "time"

// PaymentStatus is the normalized status of a customer's most relevant payment
type PaymentStatus string

const (
	PaymentStatusSucceeded             PaymentStatus = "succeeded"
	PaymentStatusProcessing            PaymentStatus = "processing"
	PaymentStatusRequiresPaymentMethod PaymentStatus = "requires_payment_method"
	PaymentStatusRequiresConfirmation  PaymentStatus = "requires_confirmation"
	PaymentStatusRequiresAction        PaymentStatus = "requires_action"
	PaymentStatusCanceled              PaymentStatus = "canceled"
	PaymentStatusRequiresCapture       PaymentStatus = "requires_capture"

	// PaymentStatusNone means the customer has no payment intents at all
	PaymentStatusNone PaymentStatus = "none"
)

// Valid reports whether s is one of the known statuses.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusSucceeded, PaymentStatusProcessing, PaymentStatusRequiresPaymentMethod,
		PaymentStatusRequiresConfirmation, PaymentStatusRequiresAction, PaymentStatusCanceled,
		PaymentStatusRequiresCapture, PaymentStatusNone:
		return true
	}
	return false
}

// PaymentMethod is the display descriptor of the card used for a payment
type PaymentMethod struct {
	Brand string `json:"brand"`
	Last4 string `json:"last4"`
}

// PaymentSnapshot is the cached view of a customer's most recent actionable
// payment. There is one snapshot per customer and it is overwritten on every
// sync. A snapshot with PaymentStatusNone carries no other fields.
type PaymentSnapshot struct {
	PaymentIntentID string            `json:"paymentIntentId,omitempty"`
	Status          PaymentStatus     `json:"status"`
	Amount          int64             `json:"amount,omitempty"`
	Currency        string            `json:"currency,omitempty"`
	PaymentMethod   *PaymentMethod    `json:"paymentMethod,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Created         int64             `json:"created,omitempty"`
}

// NoPayments returns the snapshot of a customer without payment intents.
func NoPayments() *PaymentSnapshot {
	return &PaymentSnapshot{Status: PaymentStatusNone}
}

// DeliveryReceipt records that one purchased product was granted to a player.
// Its presence under PurchaseReceiptKey is the dedup marker for delivery.
type DeliveryReceipt struct {
	SessionID   string    `json:"sessionId"`
	ProductID   string    `json:"productId"`
	ProductName string    `json:"productName"`
	Username    string    `json:"username"`
	Quantity    int64     `json:"quantity"`
	DeliveredAt time.Time `json:"deliveredAt"`
}
