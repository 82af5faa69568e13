package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/order"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/storage"
)

// reconcileLookback is how far back a pass looks for pending orders. Carts
// older than this are left as abandoned and no longer cost a gateway call
// per pass. It matches the webhook dedup window, so by then Razorpay has had
// time to retry every webhook for the order.
const reconcileLookback = webhookDedupTTL

// ReconcileReport summarises one reconciliation pass.
type ReconcileReport struct {
	Checked   int `json:"checked"`
	Payments  int `json:"payments"`
	Recovered int `json:"recovered"`
}

// ReconcilePending asks Razorpay about every order that is still pending
// after the abandonment window, up to reconcileLookback old, and records any
// payment a lost callback or webhook never reported. Errors for single
// orders do not stop the pass; they are joined into the returned error.
func (s *Service) ReconcilePending(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	now := s.now()
	pending, err := s.store.ListOrders(ctx, storage.OrderFilter{
		Status:        order.StatusPending,
		CreatedBefore: now.Add(-s.opts.AbandonAfter),
		CreatedAfter:  now.Add(-reconcileLookback),
	})
	if err != nil {
		return report, fmt.Errorf("list pending orders: %w", err)
	}

	var errs []error
	for _, o := range pending {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if o.RazorpayOrderID == "" {
			continue
		}
		report.Checked++

		payments, err := s.gateway.OrderPayments(ctx, o.RazorpayOrderID)
		if err != nil {
			errs = append(errs, fmt.Errorf("order %s: %w", o.OrderID, err))
			continue
		}
		for _, p := range payments {
			status, ok := txnStatusOf(p.Status)
			if !ok {
				continue
			}
			report.Payments++
			res, err := s.recordPayment(ctx, paymentRecord{
				Order:       o,
				PaymentID:   p.ID,
				Status:      status,
				Method:      p.Method,
				AmountPaise: p.AmountPaise,
				Source:      SourceReconcile,
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("order %s: %w", o.OrderID, err))
				continue
			}
			o = res.Order
			if res.Confirmed {
				report.Recovered++
			}
		}
	}

	if len(errs) > 0 || report.Recovered > 0 {
		s.log.WithContext(ctx).WithFields(map[string]interface{}{
			"checked":   report.Checked,
			"recovered": report.Recovered,
			"errors":    len(errs),
		}).Info("reconciliation finished")
	}
	return report, errors.Join(errs...)
}
