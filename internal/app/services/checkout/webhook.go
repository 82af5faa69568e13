package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/order"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/metrics"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/payments/razorpay"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/storage"
	svcerrors "github.com/mrsbeantempeh/mrsbean-sub000/internal/errors"
)

// WebhookOutcome says what happened to a delivery. Every outcome is
// acknowledged with 200 so Razorpay stops retrying; only a bad signature is
// rejected.
type WebhookOutcome string

const (
	WebhookProcessed    WebhookOutcome = "processed"
	WebhookDuplicate    WebhookOutcome = "duplicate"
	WebhookIgnored      WebhookOutcome = "ignored"
	WebhookUnknownOrder WebhookOutcome = "unknown_order"
	WebhookFailed       WebhookOutcome = "failed"
)

// Razorpay retries failed deliveries for up to 24 hours.
const webhookDedupTTL = 48 * time.Hour

// HandleWebhook verifies and applies a Razorpay webhook delivery. The only
// error it returns is an invalid signature.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature, eventID string) (WebhookOutcome, error) {
	if !razorpay.VerifyWebhookSignature(body, signature, s.opts.WebhookSecret) {
		metrics.RecordSignatureFailure("webhook")
		metrics.RecordWebhook("", "rejected")
		s.log.LogSecurityEvent(ctx, "webhook_signature_invalid", map[string]interface{}{
			"event_id":          eventID,
			"secret_configured": s.opts.WebhookSecret != "",
		})
		return "", svcerrors.InvalidSignature("webhook signature verification failed")
	}

	ev, err := razorpay.ParseWebhookEvent(body)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("event_id", eventID).Warn("unreadable webhook body")
		metrics.RecordWebhook("", string(WebhookIgnored))
		return WebhookIgnored, nil
	}
	outcome := s.applyWebhook(ctx, ev, eventID)
	metrics.RecordWebhook(ev.Event, string(outcome))
	return outcome, nil
}

func (s *Service) applyWebhook(ctx context.Context, ev razorpay.WebhookEvent, eventID string) WebhookOutcome {
	log := s.log.WithContext(ctx).WithField("event", ev.Event).WithField("event_id", eventID)

	var status order.TxnStatus
	switch ev.Event {
	case razorpay.EventPaymentCaptured, razorpay.EventOrderPaid:
		status = order.TxnSuccess
	case razorpay.EventPaymentAuthorized:
		status = order.TxnPending
	case razorpay.EventPaymentFailed:
		status = order.TxnFailed
	default:
		log.Debug("webhook event ignored")
		return WebhookIgnored
	}
	if ev.Payment == nil || ev.Payment.ID == "" {
		log.Warn("webhook without payment entity")
		return WebhookIgnored
	}

	markKey := ""
	if eventID != "" {
		markKey = "webhook:" + eventID
		first, err := s.guard.MarkOnce(ctx, markKey, webhookDedupTTL)
		if err != nil {
			// Processing twice is harmless; the payment lock still applies.
			log.WithError(err).Warn("webhook dedup unavailable")
			markKey = ""
		} else if !first {
			return WebhookDuplicate
		}
	}

	o, err := s.resolveOrder(ctx, ev)
	if errors.Is(err, storage.ErrNotFound) {
		log.WithField("razorpay_order_id", ev.Payment.OrderID).Warn("webhook for unknown order")
		return WebhookUnknownOrder
	}
	if err != nil {
		log.WithError(err).Error("resolve webhook order failed")
		s.forget(ctx, markKey)
		return WebhookFailed
	}

	rec := paymentRecord{
		Order:       o,
		PaymentID:   ev.Payment.ID,
		Status:      status,
		Method:      ev.Payment.Method,
		AmountPaise: ev.Payment.AmountPaise,
		Source:      SourceWebhook,
	}
	if ev.Order != nil {
		c := ev.Order.Customer
		rec.Customer = &c
	}
	res, err := s.recordPayment(ctx, rec)
	if err != nil {
		log.WithError(err).Error("webhook payment not recorded")
		s.forget(ctx, markKey)
		return WebhookFailed
	}
	if res.Result == ResultDuplicate {
		return WebhookDuplicate
	}
	return WebhookProcessed
}

// resolveOrder finds the storefront order for a webhook by Razorpay order id,
// then by the order_id note, then by the receipt.
func (s *Service) resolveOrder(ctx context.Context, ev razorpay.WebhookEvent) (order.Order, error) {
	candidates := make([]string, 0, 2)
	if id := ev.Payment.Notes["order_id"]; id != "" {
		candidates = append(candidates, id)
	}
	if ev.Order != nil && ev.Order.Receipt != "" {
		candidates = append(candidates, ev.Order.Receipt)
	}

	rzpOrderID := ev.Payment.OrderID
	if rzpOrderID == "" && ev.Order != nil {
		rzpOrderID = ev.Order.ID
	}
	if rzpOrderID != "" {
		o, err := s.store.GetOrderByRazorpayID(ctx, rzpOrderID)
		if !errors.Is(err, storage.ErrNotFound) {
			return o, err
		}
	}
	for _, id := range candidates {
		o, err := s.store.GetOrder(ctx, id)
		if !errors.Is(err, storage.ErrNotFound) {
			return o, err
		}
	}
	return order.Order{}, storage.ErrNotFound
}

func (s *Service) forget(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.guard.Forget(context.WithoutCancel(ctx), key); err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("key", key).Warn("forget webhook mark failed")
	}
}
