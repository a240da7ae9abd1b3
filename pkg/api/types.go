package api

import "net/http"

// CheckoutResponse is returned by a successful checkout creation
type CheckoutResponse struct {
	CheckoutURL string `json:"checkoutUrl"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// Route is one entry of the handler's route table. Framework adapters in
// middleware/* mount the table onto their routers.
type Route struct {
	Method  string
	Path    string
	Handler http.Handler

	// Authenticated routes need the caller's user ID
	Authenticated bool
}
