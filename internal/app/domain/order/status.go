package order

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is derived from an order and its transactions. It is never stored.
type PaymentStatus string

const (
	PaymentPaid          PaymentStatus = "paid"
	PaymentPending       PaymentStatus = "pending"
	PaymentFailed        PaymentStatus = "failed"
	PaymentCartAbandoned PaymentStatus = "cart_abandoned"
	PaymentCancelled     PaymentStatus = "cancelled"
)

// PaymentStatuses lists every derived status in display order.
var PaymentStatuses = []PaymentStatus{
	PaymentPaid, PaymentPending, PaymentFailed, PaymentCartAbandoned, PaymentCancelled,
}

// ParsePaymentStatus accepts a status filter value.
func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	for _, ps := range PaymentStatuses {
		if string(ps) == s {
			return ps, true
		}
	}
	return "", false
}

// DerivePaymentStatus classifies an order. Transactions for other orders are
// ignored. The rules, in precedence order:
//
//	any success transaction             -> paid
//	order cancelled                     -> cancelled
//	any failed transaction              -> failed
//	pending transaction or order recent -> pending
//	otherwise                           -> cart_abandoned
//
// It returns the transaction that decided the status, if any.
func DerivePaymentStatus(o Order, txns []Transaction, now time.Time, abandonAfter time.Duration) (PaymentStatus, *Transaction) {
	var failed, pending *Transaction
	for i := range txns {
		t := &txns[i]
		if t.OrderID != o.OrderID {
			continue
		}
		switch t.Status {
		case TxnSuccess:
			return PaymentPaid, t
		case TxnFailed:
			failed = latest(failed, t)
		case TxnPending:
			pending = latest(pending, t)
		}
	}

	switch {
	case o.Status == StatusCancelled:
		return PaymentCancelled, nil
	case failed != nil:
		return PaymentFailed, failed
	case pending != nil:
		return PaymentPending, pending
	case now.Sub(o.CreatedAt) < abandonAfter:
		return PaymentPending, nil
	default:
		return PaymentCartAbandoned, nil
	}
}

func latest(cur, t *Transaction) *Transaction {
	if cur == nil || t.CreatedAt.After(cur.CreatedAt) {
		return t
	}
	return cur
}

// Summary is an order as shown to customers and admins.
type Summary struct {
	Order
	PaymentStatus PaymentStatus `json:"payment_status"`
	Transaction   *Transaction  `json:"transaction,omitempty"`
}

// Summarize derives a Summary per order, newest order first.
func Summarize(orders []Order, txns []Transaction, now time.Time, abandonAfter time.Duration) []Summary {
	byOrder := make(map[string][]Transaction, len(txns))
	for _, t := range txns {
		byOrder[t.OrderID] = append(byOrder[t.OrderID], t)
	}

	out := make([]Summary, 0, len(orders))
	for _, o := range orders {
		status, decided := DerivePaymentStatus(o, byOrder[o.OrderID], now, abandonAfter)
		s := Summary{Order: o, PaymentStatus: status}
		if decided != nil {
			t := *decided
			s.Transaction = &t
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Totals aggregates summaries for the dashboard header.
type Totals struct {
	Orders   int                   `json:"orders"`
	ByStatus map[PaymentStatus]int `json:"by_status"`
	Revenue  decimal.Decimal       `json:"revenue"`
}

// Tally counts summaries per status. Revenue sums successful transaction amounts.
func Tally(summaries []Summary) Totals {
	t := Totals{ByStatus: make(map[PaymentStatus]int, len(PaymentStatuses)), Revenue: decimal.Zero}
	for _, ps := range PaymentStatuses {
		t.ByStatus[ps] = 0
	}
	for _, s := range summaries {
		t.Orders++
		t.ByStatus[s.PaymentStatus]++
		if s.PaymentStatus == PaymentPaid && s.Transaction != nil {
			t.Revenue = t.Revenue.Add(s.Transaction.Amount)
		}
	}
	return t
}

// Filter keeps summaries with the given status. An empty status keeps all.
func Filter(summaries []Summary, status PaymentStatus) []Summary {
	if status == "" {
		return summaries
	}
	out := summaries[:0:0]
	for _, s := range summaries {
		if s.PaymentStatus == status {
			out = append(out, s)
		}
	}
	return out
}
