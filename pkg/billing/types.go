package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ItemID identifies a store item. It decodes from either a JSON string or a
// JSON number, since carts persisted by the storefront carry numeric ids.
type ItemID string

// UnmarshalJSON implements json.Unmarshaler
func (id *ItemID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ItemID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("item id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("item id must be an integer: %w", err)
	}
	*id = ItemID(n.String())
	return nil
}

// CartItem is one line of the client-held cart. It is never authoritative on
// the server side.
type CartItem struct {
	ID        ItemID   `json:"id" validate:"required,max=64"`
	Name      string   `json:"name" validate:"required,max=250"`
	Price     float64  `json:"price"`
	SalePrice *float64 `json:"salePrice,omitempty"`
	Quantity  int64    `json:"quantity" validate:"min=1,max=1000"`

	// PaymentMethod is the storefront payment method the buyer picked
	PaymentMethod string `json:"paymentMethod,omitempty" validate:"max=64"`

	// DiscountCode is an optional code entered for this line
	DiscountCode string `json:"discountCode,omitempty" validate:"max=64"`
}

// CheckoutRequest is the body of a checkout creation request.
type CheckoutRequest struct {
	CartItems         []CartItem `json:"cartItems" validate:"dive"`
	MinecraftUsername string     `json:"minecraftUsername" validate:"max=32"`
	ReturnURL         string     `json:"returnUrl,omitempty" validate:"omitempty,url"`
}

// LineItem is one priced line of a checkout session.
type LineItem struct {
	ItemID     string `json:"itemId"`
	Name       string `json:"name"`
	UnitAmount int64  `json:"unitAmount"` // minor currency units
	Quantity   int64  `json:"quantity"`
}

// CheckoutSession is the immutable result of a checkout creation.
type CheckoutSession struct {
	ID         string            `json:"id"`
	CustomerID string            `json:"customerId"`
	URL        string            `json:"url"`
	LineItems  []LineItem        `json:"lineItems"`
	SuccessURL string            `json:"successUrl"`
	CancelURL  string            `json:"cancelUrl"`
	Metadata   map[string]string `json:"metadata"`
}
