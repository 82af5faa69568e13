package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/account"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/order"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/storage"
)

const uniqueViolation = "23505"

const orderColumns = `order_id, user_id, product_name, quantity, price, total, status,
	payment_method, address, guest_name, guest_email, guest_phone, final_status,
	razorpay_order_id, created_at, updated_at`

const transactionColumns = `transaction_id, order_id, user_id, amount, status, payment_method,
	razorpay_payment_id, razorpay_order_id, guest_email, guest_phone, created_at`

const profileColumns = `id, email, full_name, phone, address, created_at, updated_at`

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, *sql.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db}, db.DB, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return storage.ErrDuplicate
	}
	return err
}

// --- OrderStore -------------------------------------------------------------

func (s *Store) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (:order_id, :user_id, :product_name, :quantity, :price, :total, :status,
			:payment_method, :address, :guest_name, :guest_email, :guest_phone, :final_status,
			:razorpay_order_id, :created_at, :updated_at)
	`, o)
	if err != nil {
		return order.Order{}, mapErr(err)
	}
	return o, nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (order.Order, error) {
	var o order.Order
	err := s.db.GetContext(ctx, &o, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID)
	return o, mapErr(err)
}

func (s *Store) GetOrderByRazorpayID(ctx context.Context, razorpayOrderID string) (order.Order, error) {
	if razorpayOrderID == "" {
		return order.Order{}, storage.ErrNotFound
	}
	var o order.Order
	err := s.db.GetContext(ctx, &o, `
		SELECT `+orderColumns+` FROM orders
		WHERE razorpay_order_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, razorpayOrderID)
	return o, mapErr(err)
}

func (s *Store) UpdateOrder(ctx context.Context, orderID string, patch order.Patch) (order.Order, error) {
	if patch.Empty() {
		return s.GetOrder(ctx, orderID)
	}

	var (
		sets []string
		args []interface{}
	)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.FinalStatus != nil {
		add("final_status", *patch.FinalStatus)
	}
	if patch.PaymentMethod != nil {
		add("payment_method", *patch.PaymentMethod)
	}
	if patch.Address != nil {
		add("address", *patch.Address)
	}
	if patch.GuestName != nil {
		add("guest_name", *patch.GuestName)
	}
	if patch.GuestEmail != nil {
		add("guest_email", *patch.GuestEmail)
	}
	if patch.GuestPhone != nil {
		add("guest_phone", *patch.GuestPhone)
	}
	add("updated_at", time.Now().UTC())
	args = append(args, orderID)

	var o order.Order
	err := s.db.GetContext(ctx, &o, fmt.Sprintf(`
		UPDATE orders SET %s
		WHERE order_id = $%d
		RETURNING `+orderColumns, strings.Join(sets, ", "), len(args)), args...)
	return o, mapErr(err)
}

func (s *Store) ListOrders(ctx context.Context, f storage.OrderFilter) ([]order.Order, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.GuestEmail != "" {
		add("lower(guest_email) = lower($%d)", f.GuestEmail)
	}
	if f.GuestPhone != "" {
		add("guest_phone = $%d", f.GuestPhone)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if !f.CreatedBefore.IsZero() {
		add("created_at < $%d", f.CreatedBefore)
	}
	if !f.CreatedAfter.IsZero() {
		add("created_at >= $%d", f.CreatedAfter)
	}
	if len(f.OrderIDs) > 0 {
		add("order_id = ANY($%d)", pq.Array(f.OrderIDs))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	out := make([]order.Order, 0)
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// --- TransactionStore -------------------------------------------------------

func (s *Store) CreateTransaction(ctx context.Context, txn order.Transaction) (order.Transaction, error) {
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (:transaction_id, :order_id, :user_id, :amount, :status, :payment_method,
			:razorpay_payment_id, :razorpay_order_id, :guest_email, :guest_phone, :created_at)
	`, txn)
	if err != nil {
		return order.Transaction{}, mapErr(err)
	}
	return txn, nil
}

func (s *Store) GetTransactionByPaymentID(ctx context.Context, paymentID string) (order.Transaction, error) {
	if paymentID == "" {
		return order.Transaction{}, storage.ErrNotFound
	}
	var t order.Transaction
	err := s.db.GetContext(ctx, &t, `SELECT `+transactionColumns+` FROM transactions WHERE razorpay_payment_id = $1`, paymentID)
	return t, mapErr(err)
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, transactionID string, status order.TxnStatus, paymentMethod string) (order.Transaction, error) {
	var t order.Transaction
	err := s.db.GetContext(ctx, &t, `
		UPDATE transactions
		SET status = $2, payment_method = COALESCE(NULLIF($3, ''), payment_method)
		WHERE transaction_id = $1
		RETURNING `+transactionColumns, transactionID, status, paymentMethod)
	return t, mapErr(err)
}

func (s *Store) ListTransactions(ctx context.Context, f storage.TransactionFilter) ([]order.Transaction, error) {
	var (
		where []string
		args  []interface{}
	)
	if len(f.OrderIDs) > 0 {
		args = append(args, pq.Array(f.OrderIDs))
		where = append(where, fmt.Sprintf("order_id = ANY($%d)", len(args)))
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	out := make([]order.Transaction, 0)
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// --- ProfileStore -----------------------------------------------------------

func (s *Store) GetProfile(ctx context.Context, userID string) (account.Profile, error) {
	var p account.Profile
	err := s.db.GetContext(ctx, &p, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, userID)
	return p, mapErr(err)
}

func (s *Store) UpsertProfile(ctx context.Context, p account.Profile) (account.Profile, error) {
	now := time.Now().UTC()
	var out account.Profile
	err := s.db.GetContext(ctx, &out, `
		INSERT INTO profiles (id, email, full_name, phone, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO UPDATE SET
			email = COALESCE(NULLIF(EXCLUDED.email, ''), profiles.email),
			full_name = EXCLUDED.full_name,
			phone = EXCLUDED.phone,
			address = EXCLUDED.address,
			updated_at = EXCLUDED.updated_at
		RETURNING `+profileColumns, p.ID, p.Email, p.FullName, p.Phone, p.Address, now)
	return out, mapErr(err)
}
