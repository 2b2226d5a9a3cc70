// Package payment is a client for the hosted mobile-money checkout gateway.
package payment

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Transaction statuses reported by the gateway
const (
	StatusPending     = "pending"
	StatusApproved    = "approved"
	StatusDeclined    = "declined"
	StatusCanceled    = "canceled"
	StatusRefunded    = "refunded"
	StatusTransferred = "transferred"
)

// Gateway is the contract the booking core needs from a payment provider
type Gateway interface {
	CreateTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error)
	GenerateCheckoutToken(ctx context.Context, transactionID string) (*CheckoutToken, error)
	PushToPhone(ctx context.Context, mode string, token string) error
	Retrieve(ctx context.Context, transactionID string) (*Transaction, error)
}

// Customer identifies the payer
type Customer struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string // local number, digits only
	Country   string // ISO 3166 alpha-2, lower case
}

// TransactionRequest describes a payment to create
type TransactionRequest struct {
	Description string
	Amount      int64 // whole currency units
	Currency    string
	CallbackURL string
	Customer    Customer
	Metadata    map[string]string
}

// Transaction is the gateway's view of a payment
type Transaction struct {
	ID          int64  `json:"id"`
	Reference   string `json:"reference"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Mode        string `json:"mode,omitempty"`
}

// IDString returns the transaction id in the form used as a hold key
func (t *Transaction) IDString() string {
	return strconv.FormatInt(t.ID, 10)
}

// IsApproved reports whether the payment succeeded
func (t *Transaction) IsApproved() bool {
	return strings.EqualFold(t.Status, StatusApproved)
}

// CheckoutToken is a one-time token and hosted page URL for a transaction
type CheckoutToken struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// Error is returned for any non-2xx gateway response
type Error struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("payment gateway %s failed (status %d): %s", e.Operation, e.StatusCode, e.Message)
}
