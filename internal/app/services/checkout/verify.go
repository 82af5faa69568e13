package checkout

import (
	"context"
	"errors"
	"strings"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/order"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/metrics"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/payments/razorpay"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/storage"
	svcerrors "github.com/mrsbeantempeh/mrsbean-sub000/internal/errors"
)

// VerifyRequest is the payload the checkout widget hands to its success
// handler.
type VerifyRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	Signature         string `json:"razorpay_signature"`
}

// VerifyResult is returned to the browser after a verified payment.
type VerifyResult struct {
	OrderID       string              `json:"order_id"`
	PaymentID     string              `json:"payment_id"`
	PaymentStatus order.PaymentStatus `json:"payment_status"`
	Order         order.Order         `json:"order"`
}

// VerifyPayment checks the checkout signature and records the payment. A
// forged or mismatched signature never touches storage.
func (s *Service) VerifyPayment(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	req.RazorpayOrderID = strings.TrimSpace(req.RazorpayOrderID)
	req.RazorpayPaymentID = strings.TrimSpace(req.RazorpayPaymentID)
	req.Signature = strings.TrimSpace(req.Signature)
	switch {
	case req.RazorpayOrderID == "":
		return nil, svcerrors.Validation("razorpay_order_id", "razorpay_order_id is required")
	case req.RazorpayPaymentID == "":
		return nil, svcerrors.Validation("razorpay_payment_id", "razorpay_payment_id is required")
	case req.Signature == "":
		return nil, svcerrors.Validation("razorpay_signature", "razorpay_signature is required")
	}

	if !razorpay.VerifyPaymentSignature(req.RazorpayOrderID, req.RazorpayPaymentID, req.Signature, s.opts.KeySecret) {
		metrics.RecordSignatureFailure("payment")
		s.log.LogSecurityEvent(ctx, "payment_signature_invalid", map[string]interface{}{
			"razorpay_order_id":   req.RazorpayOrderID,
			"razorpay_payment_id": req.RazorpayPaymentID,
		})
		return nil, svcerrors.InvalidSignature("payment signature verification failed")
	}

	o, err := s.store.GetOrderByRazorpayID(ctx, req.RazorpayOrderID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, svcerrors.NotFound("order", req.RazorpayOrderID)
	}
	if err != nil {
		return nil, svcerrors.Internal("failed to load order", err)
	}

	rec := paymentRecord{
		Order:     o,
		PaymentID: req.RazorpayPaymentID,
		Status:    order.TxnSuccess,
		Source:    SourceCallback,
	}

	// The signature alone proves the payment. The gateway lookups only add
	// the method and amount, so a Razorpay outage must not fail the callback.
	if p, err := s.gateway.FetchPayment(ctx, req.RazorpayPaymentID); err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("payment_id", req.RazorpayPaymentID).Warn("fetch payment failed")
	} else {
		rec.Method = p.Method
		rec.AmountPaise = p.AmountPaise
		if p.Status == razorpay.PaymentFailed {
			rec.Status = order.TxnFailed
		}
	}
	if needsCustomer(o) {
		if ro, err := s.gateway.FetchOrder(ctx, req.RazorpayOrderID); err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("razorpay_order_id", req.RazorpayOrderID).Warn("fetch order failed")
		} else {
			c := ro.Customer
			rec.Customer = &c
		}
	}

	res, err := s.recordPayment(ctx, rec)
	if err != nil {
		return nil, svcerrors.Internal("failed to record payment", err)
	}
	return &VerifyResult{
		OrderID:       res.Order.OrderID,
		PaymentID:     req.RazorpayPaymentID,
		PaymentStatus: paymentStatusOf(res.Transaction.Status),
		Order:         res.Order,
	}, nil
}

func needsCustomer(o order.Order) bool {
	return o.Address == "" || o.GuestName == "" || o.GuestEmail == "" || o.GuestPhone == ""
}
