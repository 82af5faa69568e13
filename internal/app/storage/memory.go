package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/account"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/order"
)

// Memory is a thread-safe in-memory Store used in development and tests.
type Memory struct {
	mu           sync.RWMutex
	orders       map[string]order.Order
	transactions map[string]order.Transaction
	byPaymentID  map[string]string
	profiles     map[string]account.Profile
	now          func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		orders:       make(map[string]order.Order),
		transactions: make(map[string]order.Transaction),
		byPaymentID:  make(map[string]string),
		profiles:     make(map[string]account.Profile),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// OrderStore implementation -------------------------------------------------

func (m *Memory) CreateOrder(_ context.Context, o order.Order) (order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orders[o.OrderID]; exists {
		return order.Order{}, ErrDuplicate
	}
	now := m.now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	m.orders[o.OrderID] = o
	return cloneOrder(o), nil
}

func (m *Memory) GetOrder(_ context.Context, orderID string) (order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[orderID]
	if !ok {
		return order.Order{}, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *Memory) GetOrderByRazorpayID(_ context.Context, razorpayOrderID string) (order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, o := range m.orders {
		if razorpayOrderID != "" && o.RazorpayOrderID == razorpayOrderID {
			return cloneOrder(o), nil
		}
	}
	return order.Order{}, ErrNotFound
}

func (m *Memory) UpdateOrder(_ context.Context, orderID string, patch order.Patch) (order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return order.Order{}, ErrNotFound
	}
	o = patch.Apply(o)
	o.UpdatedAt = m.now()
	m.orders[orderID] = o
	return cloneOrder(o), nil
}

func (m *Memory) ListOrders(_ context.Context, f OrderFilter) ([]order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := toSet(f.OrderIDs)
	out := make([]order.Order, 0)
	for _, o := range m.orders {
		if f.UserID != "" && (o.UserID == nil || *o.UserID != f.UserID) {
			continue
		}
		if f.GuestEmail != "" && !strings.EqualFold(o.GuestEmail, f.GuestEmail) {
			continue
		}
		if f.GuestPhone != "" && o.GuestPhone != f.GuestPhone {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if !f.CreatedBefore.IsZero() && !o.CreatedAt.Before(f.CreatedBefore) {
			continue
		}
		if !f.CreatedAfter.IsZero() && o.CreatedAt.Before(f.CreatedAfter) {
			continue
		}
		if ids != nil && !ids[o.OrderID] {
			continue
		}
		out = append(out, cloneOrder(o))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].OrderID > out[j].OrderID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// TransactionStore implementation ------------------------------------------

func (m *Memory) CreateTransaction(_ context.Context, txn order.Transaction) (order.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.transactions[txn.TransactionID]; exists {
		return order.Transaction{}, ErrDuplicate
	}
	if txn.RazorpayPaymentID != "" {
		if _, exists := m.byPaymentID[txn.RazorpayPaymentID]; exists {
			return order.Transaction{}, ErrDuplicate
		}
		m.byPaymentID[txn.RazorpayPaymentID] = txn.TransactionID
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = m.now()
	}
	m.transactions[txn.TransactionID] = txn
	return cloneTxn(txn), nil
}

func (m *Memory) GetTransactionByPaymentID(_ context.Context, paymentID string) (order.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byPaymentID[paymentID]
	if !ok {
		return order.Transaction{}, ErrNotFound
	}
	return cloneTxn(m.transactions[id]), nil
}

func (m *Memory) UpdateTransactionStatus(_ context.Context, transactionID string, status order.TxnStatus, paymentMethod string) (order.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.transactions[transactionID]
	if !ok {
		return order.Transaction{}, ErrNotFound
	}
	txn.Status = status
	if paymentMethod != "" {
		txn.PaymentMethod = paymentMethod
	}
	m.transactions[transactionID] = txn
	return cloneTxn(txn), nil
}

func (m *Memory) ListTransactions(_ context.Context, f TransactionFilter) ([]order.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := toSet(f.OrderIDs)
	out := make([]order.Transaction, 0)
	for _, t := range m.transactions {
		if ids != nil && !ids[t.OrderID] {
			continue
		}
		if f.UserID != "" && (t.UserID == nil || *t.UserID != f.UserID) {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, cloneTxn(t))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// ProfileStore implementation ----------------------------------------------

func (m *Memory) GetProfile(_ context.Context, userID string) (account.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[userID]
	if !ok {
		return account.Profile{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) UpsertProfile(_ context.Context, p account.Profile) (account.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if existing, ok := m.profiles[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
		if p.Email == "" {
			p.Email = existing.Email
		}
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.profiles[p.ID] = p
	return p, nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func cloneOrder(o order.Order) order.Order {
	o.UserID = cloneString(o.UserID)
	return o
}

func cloneTxn(t order.Transaction) order.Transaction {
	t.UserID = cloneString(t.UserID)
	return t
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
