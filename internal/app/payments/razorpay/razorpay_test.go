package razorpay

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyPaymentSignature(t *testing.T) {
	secret := "key_secret"
	sig := Sign([]byte("order_ABC|pay_XYZ"), secret)

	tests := []struct {
		name      string
		orderID   string
		paymentID string
		signature string
		secret    string
		want      bool
	}{
		{"valid", "order_ABC", "pay_XYZ", sig, secret, true},
		{"uppercase hex", "order_ABC", "pay_XYZ", toUpper(sig), secret, true},
		{"tampered payment", "order_ABC", "pay_OTHER", sig, secret, false},
		{"swapped ids", "pay_XYZ", "order_ABC", sig, secret, false},
		{"wrong secret", "order_ABC", "pay_XYZ", sig, "other", false},
		{"empty signature", "order_ABC", "pay_XYZ", "", secret, false},
		{"empty secret", "order_ABC", "pay_XYZ", sig, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifyPaymentSignature(tt.orderID, tt.paymentID, tt.signature, tt.secret)
			assert.Equal(t, tt.want, got)
		})
	}
}

func toUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'f' {
			b[i] = c - 32
		}
	}
	return string(b)
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	sig := Sign(body, "whsec")

	assert.True(t, VerifyWebhookSignature(body, sig, "whsec"))
	assert.False(t, VerifyWebhookSignature([]byte(`{"event":"payment.failed"}`), sig, "whsec"))
	assert.False(t, VerifyWebhookSignature(body, sig, ""))
	assert.False(t, VerifyWebhookSignature(nil, sig, "whsec"))
}

const capturedWebhook = `{
  "entity": "event",
  "account_id": "acc_1",
  "event": "payment.captured",
  "contains": ["payment"],
  "payload": {
    "payment": {
      "entity": {
        "id": "pay_1",
        "entity": "payment",
        "amount": 24000,
        "currency": "INR",
        "status": "captured",
        "order_id": "order_1",
        "method": "upi",
        "email": "asha@example.com",
        "contact": "+919876543210",
        "notes": {"order_id": "MB-240501-ABC"},
        "created_at": 1714557600
      }
    }
  },
  "created_at": 1714557601
}`

func TestParseWebhookEvent(t *testing.T) {
	ev, err := ParseWebhookEvent([]byte(capturedWebhook))
	require.NoError(t, err)

	assert.Equal(t, EventPaymentCaptured, ev.Event)
	assert.Equal(t, "acc_1", ev.AccountID)
	require.NotNil(t, ev.Payment)
	assert.Nil(t, ev.Order)
	assert.Equal(t, "pay_1", ev.Payment.ID)
	assert.Equal(t, "order_1", ev.Payment.OrderID)
	assert.Equal(t, int64(24000), ev.Payment.AmountPaise)
	assert.Equal(t, "MB-240501-ABC", ev.Payment.Notes["order_id"])
	assert.True(t, ev.Payment.Succeeded())
	assert.Equal(t, int64(1714557600), ev.Payment.CreatedAt.Unix())
}

func TestParseWebhookEvent_Malformed(t *testing.T) {
	_, err := ParseWebhookEvent([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = ParseWebhookEvent([]byte(`{"payload":{}}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestParseWebhookEvent_EmptyNotesArray(t *testing.T) {
	ev, err := ParseWebhookEvent([]byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_2","status":"failed","notes":[]}}}}`))
	require.NoError(t, err)
	assert.Nil(t, ev.Payment.Notes)
	assert.False(t, ev.Payment.Succeeded())
}

type fakeOrders struct {
	created  map[string]interface{}
	order    map[string]interface{}
	payments map[string]interface{}
	err      error
}

func (f *fakeOrders) Create(data map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	f.created = data
	if f.err != nil {
		return nil, f.err
	}
	return map[string]interface{}{
		"id":       "order_new",
		"amount":   data["amount"],
		"currency": data["currency"],
		"receipt":  data["receipt"],
		"status":   "created",
		"notes":    data["notes"],
	}, nil
}

func (f *fakeOrders) Fetch(string, map[string]interface{}, map[string]string) (map[string]interface{}, error) {
	return f.order, f.err
}

func (f *fakeOrders) Payments(string, map[string]interface{}, map[string]string) (map[string]interface{}, error) {
	return f.payments, f.err
}

type fakePayments struct {
	payment map[string]interface{}
}

func (f *fakePayments) Fetch(string, map[string]interface{}, map[string]string) (map[string]interface{}, error) {
	return f.payment, nil
}

func TestClient_CreateOrder_MagicCheckout(t *testing.T) {
	orders := &fakeOrders{}
	c := &Client{keyID: "rzp_test", magic: true, orders: orders, payments: &fakePayments{}}

	o, err := c.CreateOrder(context.Background(), CreateOrderRequest{
		AmountPaise: 24000,
		Receipt:     "MB-1",
		Notes:       map[string]string{"order_id": "MB-1"},
		LineItems:   []LineItem{{SKU: "TEMPEH-200", Name: "Tempeh", PricePaise: 12000, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "order_new", o.ID)
	assert.Equal(t, "MB-1", o.Receipt)
	assert.Equal(t, int64(24000), o.AmountPaise)
	assert.Equal(t, "MB-1", o.Notes["order_id"])

	assert.Equal(t, CurrencyINR, orders.created["currency"])
	assert.Equal(t, int64(24000), orders.created["line_items_total"])
	items := orders.created["line_items"].([]map[string]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0]["quantity"])
}

func TestClient_CreateOrder_Errors(t *testing.T) {
	c := &Client{orders: &fakeOrders{err: errors.New("boom")}, payments: &fakePayments{}}

	_, err := c.CreateOrder(context.Background(), CreateOrderRequest{AmountPaise: 99})
	assert.Error(t, err, "amounts under a rupee are rejected before calling the API")

	_, err = c.CreateOrder(context.Background(), CreateOrderRequest{AmountPaise: 100})
	assert.ErrorContains(t, err, "boom")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.CreateOrder(ctx, CreateOrderRequest{AmountPaise: 100})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_FetchOrder_CustomerDetails(t *testing.T) {
	orders := &fakeOrders{order: map[string]interface{}{
		"id":     "order_1",
		"status": "paid",
		"amount": 12000,
		"customer_details": map[string]interface{}{
			"name":    "Asha",
			"email":   "asha@example.com",
			"contact": "+919876543210",
			"shipping_address": map[string]interface{}{
				"line1":   "12 MG Road",
				"city":    "Pune",
				"state":   "MH",
				"zipcode": "411001",
				"country": "in",
			},
		},
	}}
	c := &Client{orders: orders, payments: &fakePayments{}}

	o, err := c.FetchOrder(context.Background(), "order_1")
	require.NoError(t, err)
	assert.Equal(t, OrderPaid, o.Status)
	assert.Equal(t, "Asha", o.Customer.Name)
	assert.Equal(t, "12 MG Road, Pune, MH, 411001, in", o.Customer.ShippingAddress.String())
	assert.False(t, o.Customer.ShippingAddress.IsZero())
}

func TestClient_OrderPayments(t *testing.T) {
	orders := &fakeOrders{payments: map[string]interface{}{
		"entity": "collection",
		"count":  2,
		"items": []interface{}{
			map[string]interface{}{"id": "pay_1", "status": "failed", "method": "card"},
			map[string]interface{}{"id": "pay_2", "status": "captured", "method": "upi"},
		},
	}}
	c := &Client{orders: orders, payments: &fakePayments{}}

	payments, err := c.OrderPayments(context.Background(), "order_1")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.False(t, payments[0].Succeeded())
	assert.True(t, payments[1].Succeeded())
}

func TestNormalizeMethod(t *testing.T) {
	assert.Equal(t, "razorpay", NormalizeMethod(""))
	assert.Equal(t, "upi", NormalizeMethod(" UPI "))
}
