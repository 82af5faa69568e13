// Package supabase stores orders, transactions and profiles in Supabase
// tables through PostgREST using the service role key.
package supabase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/account"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/order"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/storage"
	"github.com/mrsbeantempeh/mrsbean-sub000/supabase/client"
)

const (
	tableOrders       = "orders"
	tableTransactions = "transactions"
	tableProfiles     = "profiles"
)

// pageSize stays at or under PostgREST's default max-rows so a short page
// reliably means the last one.
const pageSize = 1000

// Store implements storage.Store on top of the Supabase REST API.
type Store struct {
	client *client.Client
	now    func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New wraps a configured Supabase client.
func New(c *client.Client) *Store {
	return &Store{client: c, now: func() time.Time { return time.Now().UTC() }}
}

// Ping issues a cheap HEAD-like read against the orders table.
func (s *Store) Ping(ctx context.Context) error {
	resp, err := s.client.From(tableOrders).Select("order_id").Limit(1).Execute(ctx)
	if err != nil {
		return err
	}
	return resp.Error()
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case client.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", storage.ErrDuplicate, err)
	case client.IsNotFound(err):
		return storage.ErrNotFound
	default:
		return err
	}
}

func decodeOne[T any](resp *client.Response, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if err := mapErr(resp.Error()); err != nil {
		return zero, err
	}
	var rows []T
	if err := resp.JSON(&rows); err != nil {
		return zero, fmt.Errorf("decode rows: %w", err)
	}
	if len(rows) == 0 {
		return zero, storage.ErrNotFound
	}
	return rows[0], nil
}

func decodeMany[T any](resp *client.Response, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	if err := mapErr(resp.Error()); err != nil {
		return nil, err
	}
	out := make([]T, 0)
	if err := resp.JSON(&out); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return out, nil
}

// listAll runs an unlimited list in pages. PostgREST caps every response at
// max-rows, so a single request would drop rows without reporting it. Rows
// that shift across a page boundary while paging are returned once.
func listAll[T any](ctx context.Context, query func() *client.QueryBuilder, key func(T) string) ([]T, error) {
	out := make([]T, 0)
	seen := make(map[string]struct{})
	for offset := 0; ; offset += pageSize {
		page, err := decodeMany[T](query().Limit(pageSize).Offset(offset).Execute(ctx))
		if err != nil {
			return nil, err
		}
		for _, row := range page {
			if _, dup := seen[key(row)]; dup {
				continue
			}
			seen[key(row)] = struct{}{}
			out = append(out, row)
		}
		if len(page) < pageSize {
			return out, nil
		}
	}
}

// likeExact escapes LIKE wildcards so ILike acts as a case-insensitive
// equality check.
func likeExact(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(v)
}

// --- OrderStore -------------------------------------------------------------

func (s *Store) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	now := s.now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	resp, err := s.client.From(tableOrders).ExecuteInsert(ctx, o)
	return decodeOne[order.Order](resp, err)
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (order.Order, error) {
	resp, err := s.client.From(tableOrders).Select("*").Eq("order_id", orderID).Limit(1).Execute(ctx)
	return decodeOne[order.Order](resp, err)
}

func (s *Store) GetOrderByRazorpayID(ctx context.Context, razorpayOrderID string) (order.Order, error) {
	if razorpayOrderID == "" {
		return order.Order{}, storage.ErrNotFound
	}
	resp, err := s.client.From(tableOrders).
		Select("*").
		Eq("razorpay_order_id", razorpayOrderID).
		Order("created_at", false).
		Limit(1).
		Execute(ctx)
	return decodeOne[order.Order](resp, err)
}

func (s *Store) UpdateOrder(ctx context.Context, orderID string, patch order.Patch) (order.Order, error) {
	if patch.Empty() {
		return s.GetOrder(ctx, orderID)
	}
	body := struct {
		order.Patch
		UpdatedAt time.Time `json:"updated_at"`
	}{Patch: patch, UpdatedAt: s.now()}

	resp, err := s.client.From(tableOrders).Eq("order_id", orderID).ExecuteUpdate(ctx, body)
	return decodeOne[order.Order](resp, err)
}

func (s *Store) ListOrders(ctx context.Context, f storage.OrderFilter) ([]order.Order, error) {
	query := func() *client.QueryBuilder { return s.ordersQuery(f) }
	if f.Limit > 0 {
		return decodeMany[order.Order](query().Limit(f.Limit).Execute(ctx))
	}
	return listAll(ctx, query, func(o order.Order) string { return o.OrderID })
}

func (s *Store) ordersQuery(f storage.OrderFilter) *client.QueryBuilder {
	q := s.client.From(tableOrders).Select("*")
	if f.UserID != "" {
		q.Eq("user_id", f.UserID)
	}
	if f.GuestEmail != "" {
		q.ILike("guest_email", likeExact(f.GuestEmail))
	}
	if f.GuestPhone != "" {
		q.Eq("guest_phone", f.GuestPhone)
	}
	if f.Status != "" {
		q.Eq("status", f.Status)
	}
	if !f.CreatedBefore.IsZero() {
		q.Lt("created_at", f.CreatedBefore.UTC().Format(time.RFC3339Nano))
	}
	if !f.CreatedAfter.IsZero() {
		q.Gte("created_at", f.CreatedAfter.UTC().Format(time.RFC3339Nano))
	}
	if len(f.OrderIDs) > 0 {
		q.In("order_id", f.OrderIDs)
	}
	return q.Order("created_at", false).Order("order_id", false)
}

// --- TransactionStore -------------------------------------------------------

func (s *Store) CreateTransaction(ctx context.Context, txn order.Transaction) (order.Transaction, error) {
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = s.now()
	}
	resp, err := s.client.From(tableTransactions).ExecuteInsert(ctx, txn)
	return decodeOne[order.Transaction](resp, err)
}

func (s *Store) GetTransactionByPaymentID(ctx context.Context, paymentID string) (order.Transaction, error) {
	if paymentID == "" {
		return order.Transaction{}, storage.ErrNotFound
	}
	resp, err := s.client.From(tableTransactions).Select("*").Eq("razorpay_payment_id", paymentID).Limit(1).Execute(ctx)
	return decodeOne[order.Transaction](resp, err)
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, transactionID string, status order.TxnStatus, paymentMethod string) (order.Transaction, error) {
	body := map[string]any{"status": status}
	if paymentMethod != "" {
		body["payment_method"] = paymentMethod
	}
	resp, err := s.client.From(tableTransactions).Eq("transaction_id", transactionID).ExecuteUpdate(ctx, body)
	return decodeOne[order.Transaction](resp, err)
}

func (s *Store) ListTransactions(ctx context.Context, f storage.TransactionFilter) ([]order.Transaction, error) {
	query := func() *client.QueryBuilder { return s.transactionsQuery(f) }
	if f.Limit > 0 {
		return decodeMany[order.Transaction](query().Limit(f.Limit).Execute(ctx))
	}
	return listAll(ctx, query, func(t order.Transaction) string { return t.TransactionID })
}

func (s *Store) transactionsQuery(f storage.TransactionFilter) *client.QueryBuilder {
	q := s.client.From(tableTransactions).Select("*")
	if len(f.OrderIDs) > 0 {
		q.In("order_id", f.OrderIDs)
	}
	if f.UserID != "" {
		q.Eq("user_id", f.UserID)
	}
	if f.Status != "" {
		q.Eq("status", f.Status)
	}
	return q.Order("created_at", false).Order("transaction_id", false)
}

// --- ProfileStore -----------------------------------------------------------

func (s *Store) GetProfile(ctx context.Context, userID string) (account.Profile, error) {
	resp, err := s.client.From(tableProfiles).Select("*").Eq("id", userID).Limit(1).Execute(ctx)
	return decodeOne[account.Profile](resp, err)
}

func (s *Store) UpsertProfile(ctx context.Context, p account.Profile) (account.Profile, error) {
	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	row := map[string]any{
		"id":         p.ID,
		"full_name":  p.FullName,
		"phone":      p.Phone,
		"address":    p.Address,
		"updated_at": p.UpdatedAt,
	}
	if p.Email != "" {
		row["email"] = p.Email
	}

	// created_at is left out so merges keep the original value.
	resp, err := s.client.From(tableProfiles).OnConflict("id").ExecuteInsert(ctx, row)
	return decodeOne[account.Profile](resp, err)
}
