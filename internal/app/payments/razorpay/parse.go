package razorpay

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Webhook event names the storefront acts on.
const (
	EventPaymentAuthorized = "payment.authorized"
	EventPaymentCaptured   = "payment.captured"
	EventPaymentFailed     = "payment.failed"
	EventOrderPaid         = "order.paid"
)

// ErrMalformedPayload is returned for bodies that are not Razorpay JSON.
var ErrMalformedPayload = errors.New("razorpay: malformed payload")

// WebhookEvent is a decoded webhook delivery. Payment and Order are nil when
// the event does not carry that entity.
type WebhookEvent struct {
	Event     string
	AccountID string
	Payment   *Payment
	Order     *Order
	CreatedAt time.Time
}

// ParseWebhookEvent decodes a webhook body.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	if !gjson.ValidBytes(body) {
		return WebhookEvent{}, ErrMalformedPayload
	}
	root := gjson.ParseBytes(body)
	ev := WebhookEvent{
		Event:     root.Get("event").String(),
		AccountID: root.Get("account_id").String(),
		CreatedAt: unixTime(root.Get("created_at")),
	}
	if ev.Event == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing event", ErrMalformedPayload)
	}
	if p := root.Get("payload.payment.entity"); p.Exists() {
		payment := parsePayment(p)
		ev.Payment = &payment
	}
	if o := root.Get("payload.order.entity"); o.Exists() {
		ord := parseOrder(o)
		ev.Order = &ord
	}
	return ev, nil
}

// entity re-encodes an SDK response map so it can be read with gjson paths.
func entity(m map[string]interface{}) (gjson.Result, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("encode razorpay entity: %w", err)
	}
	return gjson.ParseBytes(raw), nil
}

func parseOrder(r gjson.Result) Order {
	o := Order{
		ID:          r.Get("id").String(),
		Receipt:     r.Get("receipt").String(),
		Status:      r.Get("status").String(),
		Currency:    r.Get("currency").String(),
		AmountPaise: r.Get("amount").Int(),
		AmountPaid:  r.Get("amount_paid").Int(),
		Notes:       notes(r.Get("notes")),
		CreatedAt:   unixTime(r.Get("created_at")),
	}
	if c := r.Get("customer_details"); c.Exists() {
		o.Customer = Customer{
			Name:            c.Get("name").String(),
			Email:           c.Get("email").String(),
			Contact:         c.Get("contact").String(),
			ShippingAddress: parseAddress(c.Get("shipping_address")),
		}
	}
	return o
}

func parsePayment(r gjson.Result) Payment {
	return Payment{
		ID:               r.Get("id").String(),
		OrderID:          r.Get("order_id").String(),
		Status:           r.Get("status").String(),
		Method:           r.Get("method").String(),
		Email:            r.Get("email").String(),
		Contact:          r.Get("contact").String(),
		Currency:         r.Get("currency").String(),
		AmountPaise:      r.Get("amount").Int(),
		ErrorCode:        r.Get("error_code").String(),
		ErrorDescription: r.Get("error_description").String(),
		Notes:            notes(r.Get("notes")),
		CreatedAt:        unixTime(r.Get("created_at")),
	}
}

func parseAddress(r gjson.Result) Address {
	if !r.IsObject() {
		return Address{}
	}
	return Address{
		Name:    r.Get("name").String(),
		Line1:   r.Get("line1").String(),
		Line2:   r.Get("line2").String(),
		City:    r.Get("city").String(),
		State:   r.Get("state").String(),
		Zipcode: r.Get("zipcode").String(),
		Country: r.Get("country").String(),
	}
}

// notes reads a notes object. Razorpay sends an empty array when unset.
func notes(r gjson.Result) map[string]string {
	if !r.IsObject() {
		return nil
	}
	out := make(map[string]string)
	r.ForEach(func(k, v gjson.Result) bool {
		out[k.String()] = v.String()
		return true
	})
	return out
}

func unixTime(r gjson.Result) time.Time {
	if sec := r.Int(); sec > 0 {
		return time.Unix(sec, 0).UTC()
	}
	return time.Time{}
}
