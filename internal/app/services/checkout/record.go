package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/order"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/events"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/metrics"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/payments/razorpay"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/storage"
)

// Payment sources, used in logs and metrics.
const (
	SourceCallback  = "callback"
	SourceWebhook   = "webhook"
	SourceReconcile = "reconcile"
)

// Record results.
const (
	ResultRecorded  = "recorded"
	ResultUpgraded  = "upgraded"
	ResultDuplicate = "duplicate"
)

// paymentRecord is one payment report from any source.
type paymentRecord struct {
	Order     order.Order
	PaymentID string
	Status    order.TxnStatus
	Method    string
	// AmountPaise is what the gateway reported; zero falls back to the order total.
	AmountPaise int64
	Customer    *razorpay.Customer
	Source      string
}

// RecordResult is the stored state after a payment report.
type RecordResult struct {
	Order       order.Order
	Transaction order.Transaction
	Result      string
	// Confirmed is set when this report moved the stored order from pending
	// to confirmed. At most one report per payment sees it.
	Confirmed bool
}

func rank(s order.TxnStatus) int {
	switch s {
	case order.TxnSuccess:
		return 2
	case order.TxnFailed:
		return 1
	default:
		return 0
	}
}

// recordPayment stores one transaction per Razorpay payment id. Reports for a
// payment already on file only move its status forward (pending, failed,
// success). The callback, webhook and reconciler can race on the same
// payment, so the work runs under a per-payment lock.
func (s *Service) recordPayment(ctx context.Context, rec paymentRecord) (RecordResult, error) {
	if rec.PaymentID == "" {
		return RecordResult{}, errors.New("payment id is required")
	}
	unlock, err := s.guard.Lock(ctx, "payment:"+rec.PaymentID)
	if err != nil {
		return RecordResult{}, fmt.Errorf("lock payment %s: %w", rec.PaymentID, err)
	}
	defer unlock()

	// The caller loaded the order before taking the lock. Another report for
	// this payment may have confirmed it since, or an admin may have moved it
	// on, so the patch below must see the stored row.
	current, err := s.store.GetOrder(ctx, rec.Order.OrderID)
	if err != nil {
		return RecordResult{}, fmt.Errorf("reload order %s: %w", rec.Order.OrderID, err)
	}
	rec.Order = current

	method := razorpay.NormalizeMethod(rec.Method)
	res := RecordResult{Order: rec.Order}

	existing, err := s.store.GetTransactionByPaymentID(ctx, rec.PaymentID)
	switch {
	case err == nil:
		res.Transaction, res.Result, err = s.upgrade(ctx, existing, rec.Status, method)
	case errors.Is(err, storage.ErrNotFound):
		res.Transaction, err = s.store.CreateTransaction(ctx, s.newTransaction(rec, method))
		res.Result = ResultRecorded
		if errors.Is(err, storage.ErrDuplicate) {
			// Another instance without a shared lock got there first.
			if existing, err = s.store.GetTransactionByPaymentID(ctx, rec.PaymentID); err == nil {
				res.Transaction, res.Result, err = s.upgrade(ctx, existing, rec.Status, method)
			}
		}
	}
	if err != nil {
		return RecordResult{}, fmt.Errorf("record payment %s: %w", rec.PaymentID, err)
	}

	if patch := s.orderPatch(rec, res.Transaction); !patch.Empty() {
		updated, err := s.store.UpdateOrder(ctx, rec.Order.OrderID, patch)
		if err != nil {
			return RecordResult{}, fmt.Errorf("update order %s: %w", rec.Order.OrderID, err)
		}
		res.Order = updated
		res.Confirmed = patch.Status != nil
	}

	metrics.RecordPayment(string(res.Transaction.Status), rec.Source, res.Result)
	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"order_id":   res.Order.OrderID,
		"payment_id": rec.PaymentID,
		"status":     res.Transaction.Status,
		"source":     rec.Source,
		"result":     res.Result,
	}).Info("payment recorded")

	if res.Result == ResultDuplicate && !res.Confirmed {
		return res, nil
	}

	ev := events.New(events.TransactionRecorded, res.Order.OrderID)
	ev.PaymentStatus = string(paymentStatusOf(res.Transaction.Status))
	ev.Amount = res.Transaction.Amount
	ev.Customer = res.Order.GuestName
	s.publish(ctx, ev)

	if res.Confirmed {
		s.notifyConfirmed(ctx, res.Order)
	}
	return res, nil
}

func (s *Service) upgrade(ctx context.Context, txn order.Transaction, status order.TxnStatus, method string) (order.Transaction, string, error) {
	if rank(status) <= rank(txn.Status) {
		return txn, ResultDuplicate, nil
	}
	if method == order.PaymentMethodRazorpay {
		method = ""
	}
	updated, err := s.store.UpdateTransactionStatus(ctx, txn.TransactionID, status, method)
	if err != nil {
		return order.Transaction{}, "", err
	}
	return updated, ResultUpgraded, nil
}

func (s *Service) newTransaction(rec paymentRecord, method string) order.Transaction {
	amount := rec.Order.Total
	if rec.AmountPaise > 0 {
		amount = order.FromPaise(rec.AmountPaise)
	}
	return order.Transaction{
		TransactionID:     order.NewTransactionID(s.now()),
		OrderID:           rec.Order.OrderID,
		UserID:            rec.Order.UserID,
		Amount:            amount.Round(2),
		Status:            rec.Status,
		PaymentMethod:     method,
		RazorpayPaymentID: rec.PaymentID,
		RazorpayOrderID:   rec.Order.RazorpayOrderID,
		GuestEmail:        rec.Order.GuestEmail,
		GuestPhone:        rec.Order.GuestPhone,
		CreatedAt:         s.now(),
	}
}

// orderPatch confirms a pending order on success and fills contact details
// that Magic Checkout collected but the order row lacks.
func (s *Service) orderPatch(rec paymentRecord, txn order.Transaction) order.Patch {
	var p order.Patch
	o := rec.Order
	if txn.Status == order.TxnSuccess && o.Status == order.StatusPending {
		confirmed := order.StatusConfirmed
		p.Status = &confirmed
		if txn.PaymentMethod != "" && txn.PaymentMethod != o.PaymentMethod {
			method := txn.PaymentMethod
			p.PaymentMethod = &method
		}
	}
	if c := rec.Customer; c != nil {
		if o.Address == "" && !c.ShippingAddress.IsZero() {
			addr := c.ShippingAddress.String()
			p.Address = &addr
		}
		if o.GuestName == "" && strings.TrimSpace(c.Name) != "" {
			name := strings.TrimSpace(c.Name)
			p.GuestName = &name
		}
		if o.GuestEmail == "" && order.ValidateEmail(c.Email) {
			email := strings.ToLower(strings.TrimSpace(c.Email))
			p.GuestEmail = &email
		}
		if o.GuestPhone == "" {
			if phone, ok := order.NormalizePhone(c.Contact); ok {
				p.GuestPhone = &phone
			}
		}
	}
	return p
}

func paymentStatusOf(s order.TxnStatus) order.PaymentStatus {
	switch s {
	case order.TxnSuccess:
		return order.PaymentPaid
	case order.TxnFailed:
		return order.PaymentFailed
	default:
		return order.PaymentPending
	}
}

// txnStatusOf maps a Razorpay payment status onto a transaction status. ok is
// false for statuses that say nothing about the outcome yet.
func txnStatusOf(paymentStatus string) (order.TxnStatus, bool) {
	switch paymentStatus {
	case razorpay.PaymentCaptured, razorpay.PaymentRefunded:
		return order.TxnSuccess, true
	case razorpay.PaymentAuthorized:
		return order.TxnPending, true
	case razorpay.PaymentFailed:
		return order.TxnFailed, true
	default:
		return "", false
	}
}
