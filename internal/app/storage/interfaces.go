package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/account"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/order"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicate is returned when a unique key (order_id,
	// transaction_id, razorpay_payment_id) already exists.
	ErrDuplicate = errors.New("storage: duplicate")
)

// OrderFilter narrows ListOrders. Zero fields do not filter.
type OrderFilter struct {
	UserID        string
	GuestEmail    string
	GuestPhone    string
	Status        order.Status
	CreatedBefore time.Time
	// CreatedAfter is inclusive.
	CreatedAfter time.Time
	OrderIDs     []string
	Limit        int
}

// TransactionFilter narrows ListTransactions. Zero fields do not filter.
type TransactionFilter struct {
	OrderIDs []string
	UserID   string
	Status   order.TxnStatus
	Limit    int
}

// OrderStore persists orders.
type OrderStore interface {
	CreateOrder(ctx context.Context, o order.Order) (order.Order, error)
	GetOrder(ctx context.Context, orderID string) (order.Order, error)
	GetOrderByRazorpayID(ctx context.Context, razorpayOrderID string) (order.Order, error)
	UpdateOrder(ctx context.Context, orderID string, patch order.Patch) (order.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]order.Order, error)
}

// TransactionStore persists payment attempts. CreateTransaction must return
// ErrDuplicate when razorpay_payment_id already exists.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, txn order.Transaction) (order.Transaction, error)
	GetTransactionByPaymentID(ctx context.Context, razorpayPaymentID string) (order.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, transactionID string, status order.TxnStatus, paymentMethod string) (order.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]order.Transaction, error)
}

// ProfileStore persists customer profiles keyed by auth user id.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (account.Profile, error)
	UpsertProfile(ctx context.Context, p account.Profile) (account.Profile, error)
}

// Store bundles every store the application needs.
type Store interface {
	OrderStore
	TransactionStore
	ProfileStore
}

// Pinger is implemented by stores that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}
