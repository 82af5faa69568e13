package checkout

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/order"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/events"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/payments/razorpay"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/storage"
	svcerrors "github.com/mrsbeantempeh/mrsbean-sub000/internal/errors"
)

func (f *fixture) checkout(t *testing.T) *Session {
	t.Helper()
	sess, err := f.svc.CreateOrder(context.Background(), validRequest())
	require.NoError(t, err)
	return sess
}

func (f *fixture) transactions(t *testing.T, orderID string) []order.Transaction {
	t.Helper()
	txns, err := f.store.ListTransactions(context.Background(), storage.TransactionFilter{OrderIDs: []string{orderID}})
	require.NoError(t, err)
	return txns
}

func signedVerify(rzpOrderID, paymentID string) VerifyRequest {
	return VerifyRequest{
		RazorpayOrderID:   rzpOrderID,
		RazorpayPaymentID: paymentID,
		Signature:         razorpay.Sign([]byte(rzpOrderID+"|"+paymentID), keySecret),
	}
}

func TestVerifyPayment(t *testing.T) {
	f := newFixture(t)
	sess := f.checkout(t)
	f.gateway.payments["pay_1"] = razorpay.Payment{ID: "pay_1", OrderID: sess.RazorpayOrderID, Status: razorpay.PaymentCaptured, Method: "UPI", AmountPaise: 24000}

	res, err := f.svc.VerifyPayment(context.Background(), signedVerify(sess.RazorpayOrderID, "pay_1"))
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, res.PaymentStatus)
	assert.Equal(t, order.StatusConfirmed, res.Order.Status)
	assert.Equal(t, "upi", res.Order.PaymentMethod)

	txns := f.transactions(t, sess.OrderID)
	require.Len(t, txns, 1)
	assert.Equal(t, order.TxnSuccess, txns[0].Status)
	assert.Equal(t, "240", txns[0].Amount.String())
	assert.Equal(t, "pay_1", txns[0].RazorpayPaymentID)

	assert.Equal(t, []string{"+919876543210", "+919000000000"}, f.sender.sent())
	assert.Equal(t, []events.Type{events.OrderCreated, events.TransactionRecorded}, f.events.types())
}

func TestVerifyPayment_BadSignature(t *testing.T) {
	f := newFixture(t)
	sess := f.checkout(t)

	req := signedVerify(sess.RazorpayOrderID, "pay_1")
	req.RazorpayPaymentID = "pay_2"
	_, err := f.svc.VerifyPayment(context.Background(), req)
	assert.True(t, svcerrors.IsCode(err, svcerrors.CodeInvalidSignature))
	assert.Empty(t, f.transactions(t, sess.OrderID))

	_, err = f.svc.VerifyPayment(context.Background(), VerifyRequest{RazorpayOrderID: sess.RazorpayOrderID})
	assert.True(t, svcerrors.IsCode(err, svcerrors.CodeValidation))
}

func TestVerifyPayment_UnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.VerifyPayment(context.Background(), signedVerify("order_missing", "pay_1"))
	assert.True(t, svcerrors.IsCode(err, svcerrors.CodeNotFound))
}

func TestVerifyPayment_GatewayUnavailable(t *testing.T) {
	f := newFixture(t)
	sess := f.checkout(t)

	// No payment registered with the fake: the lookup fails but the signed
	// callback is still recorded.
	res, err := f.svc.VerifyPayment(context.Background(), signedVerify(sess.RazorpayOrderID, "pay_x"))
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, res.PaymentStatus)
	assert.Equal(t, order.PaymentMethodRazorpay, res.Order.PaymentMethod)
}

func TestVerifyPayment_Idempotent(t *testing.T) {
	f := newFixture(t)
	sess := f.checkout(t)
	req := signedVerify(sess.RazorpayOrderID, "pay_1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.VerifyPayment(context.Background(), req)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.transactions(t, sess.OrderID), 1)
	assert.Len(t, f.sender.sent(), 2, "confirmation sent once")
}

func TestVerifyPayment_RacesWebhook(t *testing.T) {
	f := newFixture(t)
	sess := f.checkout(t)
	f.gateway.payments["pay_1"] = razorpay.Payment{ID: "pay_1", OrderID: sess.RazorpayOrderID, Status: razorpay.PaymentCaptured, Method: "upi", AmountPaise: 24000}
	f.gateway.latency = 20 * time.Millisecond
	body := webhookBody(razorpay.EventPaymentCaptured, "pay_1", sess.RazorpayOrderID, "captured")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := f.svc.VerifyPayment(context.Background(), signedVerify(sess.RazorpayOrderID, "pay_1"))
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := f.svc.HandleWebhook(context.Background(), body, razorpay.Sign(body, webhookSecret), "evt_1")
		assert.NoError(t, err)
	}()
	wg.Wait()

	assert.Len(t, f.transactions(t, sess.OrderID), 1)
	assert.Equal(t, []string{"+919876543210", "+919000000000"}, f.sender.sent(), "one confirmation per recipient")
	assert.Equal(t, []events.Type{events.OrderCreated, events.TransactionRecorded}, f.events.types())
}

func TestRecordPayment_StaleOrderKeepsNewerStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.checkout(t)
	stale := sess.Order

	f.deliver(t, webhookBody(razorpay.EventPaymentCaptured, "pay_1", sess.RazorpayOrderID, "captured"), "evt_1")
	delivered := order.StatusDelivered
	_, err := f.store.UpdateOrder(ctx, sess.OrderID, order.Patch{Status: &delivered})
	require.NoError(t, err)

	res, err := f.svc.recordPayment(ctx, paymentRecord{Order: stale, PaymentID: "pay_1", Status: order.TxnSuccess, Source: SourceCallback})
	require.NoError(t, err)
	assert.Equal(t, ResultDuplicate, res.Result)
	assert.False(t, res.Confirmed)
	assert.Equal(t, order.StatusDelivered, res.Order.Status)

	o, err := f.store.GetOrder(ctx, sess.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, o.Status)
	assert.Len(t, f.sender.sent(), 2)
	assert.Equal(t, []events.Type{events.OrderCreated, events.TransactionRecorded}, f.events.types())
}

func TestVerifyPayment_FillsMagicCheckoutDetails(t *testing.T) {
	f := newFixture(t)
	req := validRequest()
	req.Address = ""
	sess, err := f.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	ro := f.gateway.orders[sess.RazorpayOrderID]
	ro.Customer = razorpay.Customer{ShippingAddress: razorpay.Address{Line1: "4 Lane", City: "Pune", Zipcode: "411001"}}
	f.gateway.orders[sess.RazorpayOrderID] = ro

	res, err := f.svc.VerifyPayment(context.Background(), signedVerify(sess.RazorpayOrderID, "pay_1"))
	require.NoError(t, err)
	assert.Equal(t, "4 Lane, Pune, 411001", res.Order.Address)
}

func webhookBody(event, paymentID, rzpOrderID, status string) []byte {
	return []byte(fmt.Sprintf(`{
		"entity": "event",
		"account_id": "acc_1",
		"event": %q,
		"created_at": 1714550000,
		"payload": {
			"payment": {"entity": {
				"id": %q, "order_id": %q, "status": %q, "method": "card",
				"amount": 24000, "currency": "INR", "notes": {}
			}}
		}
	}`, event, paymentID, rzpOrderID, status))
}

func (f *fixture) deliver(t *testing.T, body []byte, eventID string) WebhookOutcome {
	t.Helper()
	outcome, err := f.svc.HandleWebhook(context.Background(), body, razorpay.Sign(body, webhookSecret), eventID)
	require.NoError(t, err)
	return outcome
}

func TestHandleWebhook_Captured(t *testing.T) {
	f := newFixture(t)
	sess := f.checkout(t)
	body := webhookBody(razorpay.EventPaymentCaptured, "pay_1", sess.RazorpayOrderID, "captured")

	assert.Equal(t, WebhookProcessed, f.deliver(t, body, "evt_1"))
	assert.Equal(t, WebhookDuplicate, f.deliver(t, body, "evt_1"), "same event id")
	assert.Equal(t, WebhookDuplicate, f.deliver(t, body, "evt_2"), "same payment, new event id")

	txns := f.transactions(t, sess.OrderID)
	require.Len(t, txns, 1)
	assert.Equal(t, "card", txns[0].PaymentMethod)

	o, _ := f.store.GetOrder(context.Background(), sess.OrderID)
	assert.Equal(t, order.StatusConfirmed, o.Status)
	assert.Len(t, f.sender.sent(), 2)
}

func TestHandleWebhook_StatusOnlyMovesForward(t *testing.T) {
	f := newFixture(t)
	sess := f.checkout(t)
	rzp := sess.RazorpayOrderID

	assert.Equal(t, WebhookProcessed, f.deliver(t, webhookBody(razorpay.EventPaymentAuthorized, "pay_1", rzp, "authorized"), "evt_a"))
	assert.Equal(t, order.TxnPending, f.transactions(t, sess.OrderID)[0].Status)

	assert.Equal(t, WebhookProcessed, f.deliver(t, webhookBody(razorpay.EventPaymentCaptured, "pay_1", rzp, "captured"), "evt_c"))
	assert.Equal(t, order.TxnSuccess, f.transactions(t, sess.OrderID)[0].Status)

	// A late failure for the same payment never downgrades it.
	assert.Equal(t, WebhookDuplicate, f.deliver(t, webhookBody(razorpay.EventPaymentFailed, "pay_1", rzp, "failed"), "evt_f"))
	assert.Equal(t, order.TxnSuccess, f.transactions(t, sess.OrderID)[0].Status)
}

func TestHandleWebhook_FailedThenRetrySucceeds(t *testing.T) {
	f := newFixture(t)
	sess := f.checkout(t)
	rzp := sess.RazorpayOrderID

	f.deliver(t, webhookBody(razorpay.EventPaymentFailed, "pay_1", rzp, "failed"), "evt_1")
	f.deliver(t, webhookBody(razorpay.EventPaymentCaptured, "pay_2", rzp, "captured"), "evt_2")

	o, _ := f.store.GetOrder(context.Background(), sess.OrderID)
	status, _ := order.DerivePaymentStatus(o, f.transactions(t, sess.OrderID), time.Now(), time.Minute)
	assert.Equal(t, order.PaymentPaid, status)
}

func TestHandleWebhook_BadSignature(t *testing.T) {
	f := newFixture(t)
	body := webhookBody(razorpay.EventPaymentCaptured, "pay_1", "order_A", "captured")

	_, err := f.svc.HandleWebhook(context.Background(), body, razorpay.Sign(body, "wrong"), "evt_1")
	assert.True(t, svcerrors.IsCode(err, svcerrors.CodeInvalidSignature))

	_, err = f.svc.HandleWebhook(context.Background(), body, "", "evt_1")
	assert.Error(t, err)
}

func TestHandleWebhook_Ignored(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, WebhookIgnored, f.deliver(t, []byte(`not json`), "evt_1"))
	assert.Equal(t, WebhookIgnored, f.deliver(t, webhookBody("refund.created", "pay_1", "order_A", "refunded"), "evt_2"))
	assert.Equal(t, WebhookUnknownOrder, f.deliver(t, webhookBody(razorpay.EventPaymentCaptured, "pay_1", "order_zzz", "captured"), "evt_3"))
}

func TestHandleWebhook_ResolvesByReceipt(t *testing.T) {
	f := newFixture(t)
	sess := f.checkout(t)
	body := []byte(fmt.Sprintf(`{
		"event": "order.paid",
		"payload": {
			"payment": {"entity": {"id": "pay_9", "status": "captured", "amount": 24000}},
			"order": {"entity": {"id": "order_other", "receipt": %q, "status": "paid"}}
		}
	}`, sess.OrderID))

	assert.Equal(t, WebhookProcessed, f.deliver(t, body, ""))
	assert.Len(t, f.transactions(t, sess.OrderID), 1)
}

func TestReconcilePending(t *testing.T) {
	f := newFixture(t)
	lost := f.checkout(t)
	authorized := f.checkout(t)

	f.gateway.byOrder[lost.RazorpayOrderID] = []razorpay.Payment{
		{ID: "pay_failed", Status: razorpay.PaymentFailed},
		{ID: "pay_ok", Status: razorpay.PaymentCaptured, Method: "netbanking", AmountPaise: 24000},
	}
	f.gateway.byOrder[authorized.RazorpayOrderID] = []razorpay.Payment{{ID: "pay_auth", Status: razorpay.PaymentAuthorized}}

	// Orders younger than the abandonment window are left alone.
	report, err := f.svc.ReconcilePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{}, report)

	f.svc.now = func() time.Time { return time.Now().UTC().Add(45 * time.Minute) }

	report, err = f.svc.ReconcilePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Checked: 2, Payments: 3, Recovered: 1}, report)

	o, _ := f.store.GetOrder(context.Background(), lost.OrderID)
	assert.Equal(t, order.StatusConfirmed, o.Status)
	assert.Equal(t, "netbanking", o.PaymentMethod)
	assert.Len(t, f.transactions(t, lost.OrderID), 2)

	txns := f.transactions(t, authorized.OrderID)
	require.Len(t, txns, 1)
	assert.Equal(t, order.TxnPending, txns[0].Status)

	again, err := f.svc.ReconcilePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Checked: 1, Payments: 1}, again)
}

func TestReconcilePending_ReachesOrdersBehindAbandonedCarts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	f.svc.now = func() time.Time { return now }

	pendingOrder := func(id string, age time.Duration) {
		_, err := f.store.CreateOrder(ctx, order.Order{
			OrderID:         id,
			RazorpayOrderID: "order_" + id,
			Quantity:        1,
			Total:           decimal.NewFromInt(120),
			Status:          order.StatusPending,
			CreatedAt:       now.Add(-age),
		})
		require.NoError(t, err)
	}

	// The paid order is the oldest; every abandoned cart came after it.
	pendingOrder("MB-paid", 2*time.Hour+time.Minute)
	for i := 0; i < 150; i++ {
		pendingOrder(fmt.Sprintf("MB-cart-%03d", i), 2*time.Hour-time.Duration(i)*time.Second)
	}
	pendingOrder("MB-ancient", reconcileLookback+time.Hour)
	f.gateway.byOrder["order_MB-paid"] = []razorpay.Payment{{ID: "pay_lost", Status: razorpay.PaymentCaptured, Method: "upi", AmountPaise: 12000}}
	f.gateway.byOrder["order_MB-ancient"] = []razorpay.Payment{{ID: "pay_old", Status: razorpay.PaymentCaptured}}

	report, err := f.svc.ReconcilePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Checked: 151, Payments: 1, Recovered: 1}, report)

	o, err := f.store.GetOrder(ctx, "MB-paid")
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, o.Status)
	assert.Len(t, f.transactions(t, "MB-paid"), 1)

	old, err := f.store.GetOrder(ctx, "MB-ancient")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, old.Status, "outside the lookback")
	assert.Empty(t, f.transactions(t, "MB-ancient"))
}

func TestOrderStatus(t *testing.T) {
	f := newFixture(t)
	sess := f.checkout(t)

	sum, err := f.svc.OrderStatus(context.Background(), sess.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPending, sum.PaymentStatus)
	assert.Nil(t, sum.Transaction)

	_, err = f.svc.VerifyPayment(context.Background(), signedVerify(sess.RazorpayOrderID, "pay_9"))
	require.NoError(t, err)
	sum, err = f.svc.OrderStatus(context.Background(), sess.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, sum.PaymentStatus)
	require.NotNil(t, sum.Transaction)
	assert.Equal(t, "pay_9", sum.Transaction.RazorpayPaymentID)

	_, err = f.svc.OrderStatus(context.Background(), "MB-missing")
	assert.True(t, svcerrors.IsCode(err, svcerrors.CodeNotFound))
	_, err = f.svc.OrderStatus(context.Background(), " ")
	assert.True(t, svcerrors.IsCode(err, svcerrors.CodeValidation))
}
