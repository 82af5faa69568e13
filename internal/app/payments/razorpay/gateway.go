// Package razorpay talks to the Razorpay Orders and Payments APIs and checks
// the signatures Razorpay attaches to checkout callbacks and webhooks.
package razorpay

import (
	"context"
	"strings"
	"time"
)

// Payment statuses reported by Razorpay.
const (
	PaymentCreated    = "created"
	PaymentAuthorized = "authorized"
	PaymentCaptured   = "captured"
	PaymentRefunded   = "refunded"
	PaymentFailed     = "failed"
)

// Order statuses reported by Razorpay.
const (
	OrderCreated   = "created"
	OrderAttempted = "attempted"
	OrderPaid      = "paid"
)

// CurrencyINR is the only currency the storefront sells in.
const CurrencyINR = "INR"

// Gateway is the subset of Razorpay the checkout flow needs.
type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error)
	FetchOrder(ctx context.Context, orderID string) (Order, error)
	FetchPayment(ctx context.Context, paymentID string) (Payment, error)
	OrderPayments(ctx context.Context, orderID string) ([]Payment, error)
	// KeyID is the public key the checkout widget is opened with.
	KeyID() string
}

// CreateOrderRequest describes a Razorpay order. Amounts are integer paise.
type CreateOrderRequest struct {
	AmountPaise int64
	Currency    string
	Receipt     string
	Notes       map[string]string
	LineItems   []LineItem
}

// LineItem is a Magic Checkout cart line.
type LineItem struct {
	SKU         string
	Name        string
	Description string
	ImageURL    string
	WeightGrams int
	PricePaise  int64
	Quantity    int
}

// Order is a Razorpay order entity.
type Order struct {
	ID          string
	Receipt     string
	Status      string
	Currency    string
	AmountPaise int64
	AmountPaid  int64
	Notes       map[string]string
	Customer    Customer
	CreatedAt   time.Time
}

// Payment is a Razorpay payment entity.
type Payment struct {
	ID               string
	OrderID          string
	Status           string
	Method           string
	Email            string
	Contact          string
	Currency         string
	AmountPaise      int64
	ErrorCode        string
	ErrorDescription string
	Notes            map[string]string
	CreatedAt        time.Time
}

// Succeeded reports whether the money has been captured.
func (p Payment) Succeeded() bool { return p.Status == PaymentCaptured }

// Customer holds the details Magic Checkout collects.
type Customer struct {
	Name            string
	Email           string
	Contact         string
	ShippingAddress Address
}

// Address is a Magic Checkout shipping address.
type Address struct {
	Name    string
	Line1   string
	Line2   string
	City    string
	State   string
	Zipcode string
	Country string
}

// IsZero reports whether no address line was collected.
func (a Address) IsZero() bool {
	return a.Line1 == "" && a.Line2 == "" && a.City == "" && a.Zipcode == ""
}

// String renders the address on one line for order records.
func (a Address) String() string {
	parts := make([]string, 0, 6)
	for _, p := range []string{a.Line1, a.Line2, a.City, a.State, a.Zipcode, a.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
