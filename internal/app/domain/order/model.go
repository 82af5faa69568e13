// Package order holds the storefront's order and transaction records and the
// rules derived from them.
package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// PostgREST and the admin JSON API expect numeric amounts, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Status is the lifecycle state stored on an order row.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// TxnStatus is the state of a payment attempt.
type TxnStatus string

const (
	TxnSuccess TxnStatus = "success"
	TxnPending TxnStatus = "pending"
	TxnFailed  TxnStatus = "failed"
)

// FinalStatus is the manually-set fulfilment label. Empty means unfulfilled.
type FinalStatus string

const (
	FinalNone      FinalStatus = ""
	FinalPacked    FinalStatus = "packed"
	FinalShipped   FinalStatus = "shipped"
	FinalDelivered FinalStatus = "delivered"
)

// PaymentMethodRazorpay is recorded until the gateway reports the actual method.
const PaymentMethodRazorpay = "razorpay"

// Order is a purchase of one product line.
type Order struct {
	OrderID         string          `json:"order_id" db:"order_id"`
	UserID          *string         `json:"user_id" db:"user_id"`
	ProductName     string          `json:"product_name" db:"product_name"`
	Quantity        int             `json:"quantity" db:"quantity"`
	Price           decimal.Decimal `json:"price" db:"price"`
	Total           decimal.Decimal `json:"total" db:"total"`
	Status          Status          `json:"status" db:"status"`
	PaymentMethod   string          `json:"payment_method" db:"payment_method"`
	Address         string          `json:"address" db:"address"`
	GuestName       string          `json:"guest_name" db:"guest_name"`
	GuestEmail      string          `json:"guest_email" db:"guest_email"`
	GuestPhone      string          `json:"guest_phone" db:"guest_phone"`
	FinalStatus     FinalStatus     `json:"final_status" db:"final_status"`
	RazorpayOrderID string          `json:"razorpay_order_id" db:"razorpay_order_id"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// IsGuest reports whether the order was placed without an account.
func (o Order) IsGuest() bool {
	return o.UserID == nil || *o.UserID == ""
}

// Transaction is one payment attempt against an order.
type Transaction struct {
	TransactionID     string          `json:"transaction_id" db:"transaction_id"`
	OrderID           string          `json:"order_id" db:"order_id"`
	UserID            *string         `json:"user_id" db:"user_id"`
	Amount            decimal.Decimal `json:"amount" db:"amount"`
	Status            TxnStatus       `json:"status" db:"status"`
	PaymentMethod     string          `json:"payment_method" db:"payment_method"`
	RazorpayPaymentID string          `json:"razorpay_payment_id" db:"razorpay_payment_id"`
	RazorpayOrderID   string          `json:"razorpay_order_id" db:"razorpay_order_id"`
	GuestEmail        string          `json:"guest_email" db:"guest_email"`
	GuestPhone        string          `json:"guest_phone" db:"guest_phone"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// Patch is a partial order update. Nil fields are left unchanged.
type Patch struct {
	Status        *Status      `json:"status,omitempty"`
	FinalStatus   *FinalStatus `json:"final_status,omitempty"`
	PaymentMethod *string      `json:"payment_method,omitempty"`
	Address       *string      `json:"address,omitempty"`
	GuestName     *string      `json:"guest_name,omitempty"`
	GuestEmail    *string      `json:"guest_email,omitempty"`
	GuestPhone    *string      `json:"guest_phone,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Status == nil && p.FinalStatus == nil && p.PaymentMethod == nil &&
		p.Address == nil && p.GuestName == nil && p.GuestEmail == nil && p.GuestPhone == nil
}

// Apply returns o with the patch applied.
func (p Patch) Apply(o Order) Order {
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.FinalStatus != nil {
		o.FinalStatus = *p.FinalStatus
	}
	if p.PaymentMethod != nil {
		o.PaymentMethod = *p.PaymentMethod
	}
	if p.Address != nil {
		o.Address = *p.Address
	}
	if p.GuestName != nil {
		o.GuestName = *p.GuestName
	}
	if p.GuestEmail != nil {
		o.GuestEmail = *p.GuestEmail
	}
	if p.GuestPhone != nil {
		o.GuestPhone = *p.GuestPhone
	}
	return o
}

// NewOrderID returns a short, human-quotable order reference.
func NewOrderID(now time.Time) string {
	return fmt.Sprintf("MB-%s-%s", now.UTC().Format("060102"), shortID())
}

// NewTransactionID returns a transaction reference.
func NewTransactionID(now time.Time) string {
	return fmt.Sprintf("TXN-%s-%s", now.UTC().Format("060102"), shortID())
}

func shortID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

// ParseFinalStatus accepts a fulfilment label from the admin dashboard.
func ParseFinalStatus(s string) (FinalStatus, error) {
	switch fs := FinalStatus(strings.ToLower(strings.TrimSpace(s))); fs {
	case FinalNone, FinalPacked, FinalShipped, FinalDelivered:
		return fs, nil
	default:
		return "", fmt.Errorf("invalid final status %q", s)
	}
}

// ParseStatus accepts an order lifecycle status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusConfirmed, StatusDelivered, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("invalid order status %q", s)
	}
}
