package admin

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/order"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/events"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/storage"
	svcerrors "github.com/mrsbeantempeh/mrsbean-sub000/internal/errors"
)

const secret = "0123456789abcdef0123456789abcdef"

func testHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuth_LoginAndVerify(t *testing.T) {
	auth, err := NewAuth(testHash(t, "tempeh-lover"), secret, time.Hour, nil)
	require.NoError(t, err)

	_, _, err = auth.Login(context.Background(), "wrong")
	assert.True(t, svcerrors.IsCode(err, svcerrors.CodeUnauthorized))

	token, expires, err := auth.Login(context.Background(), "tempeh-lover")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	claims, err := auth.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, claims.Role)

	_, err = auth.Verify(token + "x")
	assert.True(t, svcerrors.IsCode(err, svcerrors.CodeInvalidToken))
	_, err = auth.Verify("")
	assert.True(t, svcerrors.IsCode(err, svcerrors.CodeUnauthorized))
}

func TestAuth_RejectsExpiredAndForeignTokens(t *testing.T) {
	auth, err := NewAuth(testHash(t, "tempeh-lover"), secret, time.Hour, nil)
	require.NoError(t, err)

	token, _, err := auth.Login(context.Background(), "tempeh-lover")
	require.NoError(t, err)
	auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = auth.Verify(token)
	assert.Error(t, err, "expired")
	auth.now = time.Now

	customer := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := customer.SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = auth.Verify(signed)
	assert.True(t, svcerrors.IsCode(err, svcerrors.CodeForbidden))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: RoleAdmin})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.Verify(unsigned)
	assert.Error(t, err)
}

func TestNewAuth(t *testing.T) {
	_, err := NewAuth("plaintext", secret, 0, nil)
	assert.Error(t, err)
	_, err = NewAuth("", "", 0, nil)
	assert.Error(t, err)

	auth, err := NewAuth("", secret, 0, nil)
	require.NoError(t, err)
	assert.False(t, auth.Enabled())
	_, _, err = auth.Login(context.Background(), "anything")
	assert.True(t, svcerrors.IsCode(err, svcerrors.CodeForbidden))
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct horse")))

	_, err = HashPassword("short")
	assert.Error(t, err)
}

type capture struct{ events []events.Event }

func (c *capture) Publish(_ context.Context, ev events.Event) error {
	c.events = append(c.events, ev)
	return nil
}

func seed(t *testing.T) *storage.Memory {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemory()
	old := time.Now().UTC().Add(-3 * time.Hour)

	for _, o := range []order.Order{
		{OrderID: "MB-PAID", Status: order.StatusConfirmed, Total: decimal.NewFromInt(240), GuestName: "Asha", CreatedAt: old},
		{OrderID: "MB-FAIL", Status: order.StatusPending, Total: decimal.NewFromInt(120), CreatedAt: old.Add(time.Minute)},
		{OrderID: "MB-CART", Status: order.StatusPending, Total: decimal.NewFromInt(120), CreatedAt: old.Add(2 * time.Minute)},
	} {
		_, err := store.CreateOrder(ctx, o)
		require.NoError(t, err)
	}
	for _, txn := range []order.Transaction{
		{TransactionID: "T1", OrderID: "MB-PAID", Status: order.TxnSuccess, Amount: decimal.NewFromInt(240), RazorpayPaymentID: "pay_1"},
		{TransactionID: "T2", OrderID: "MB-FAIL", Status: order.TxnFailed, Amount: decimal.NewFromInt(120), RazorpayPaymentID: "pay_2"},
	} {
		_, err := store.CreateTransaction(ctx, txn)
		require.NoError(t, err)
	}
	return store
}

func TestDashboard(t *testing.T) {
	svc := New(seed(t), nil, 30*time.Minute, nil)

	dash, err := svc.Dashboard(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, dash.Orders, 3)
	assert.Equal(t, 1, dash.Totals.ByStatus[order.PaymentPaid])
	assert.Equal(t, 1, dash.Totals.ByStatus[order.PaymentFailed])
	assert.Equal(t, 1, dash.Totals.ByStatus[order.PaymentCartAbandoned])
	assert.True(t, dash.Totals.Revenue.Equal(decimal.NewFromInt(240)))

	failed, err := svc.Dashboard(context.Background(), "failed")
	require.NoError(t, err)
	require.Len(t, failed.Orders, 1)
	assert.Equal(t, "MB-FAIL", failed.Orders[0].OrderID)
	assert.Equal(t, 3, failed.Totals.Orders, "totals ignore the filter")

	_, err = svc.Dashboard(context.Background(), "refunded")
	assert.True(t, svcerrors.IsCode(err, svcerrors.CodeValidation))
}

func TestSetFinalStatus(t *testing.T) {
	pub := &capture{}
	svc := New(seed(t), pub, 30*time.Minute, nil)
	ctx := context.Background()

	o, err := svc.SetFinalStatus(ctx, "MB-PAID", "Shipped")
	require.NoError(t, err)
	assert.Equal(t, order.FinalShipped, o.FinalStatus)
	assert.Equal(t, order.StatusConfirmed, o.Status)

	o, err = svc.SetFinalStatus(ctx, "MB-PAID", "delivered")
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, o.Status)

	require.Len(t, pub.events, 2)
	assert.Equal(t, events.OrderUpdated, pub.events[1].Type)
	assert.Equal(t, "delivered", pub.events[1].FinalStatus)

	_, err = svc.SetFinalStatus(ctx, "MB-PAID", "lost")
	assert.True(t, svcerrors.IsCode(err, svcerrors.CodeValidation))
	_, err = svc.SetFinalStatus(ctx, "MB-NOPE", "packed")
	assert.True(t, svcerrors.IsCode(err, svcerrors.CodeNotFound))
}

func TestExport(t *testing.T) {
	svc := New(seed(t), nil, 30*time.Minute, nil)

	var buf bytes.Buffer
	require.NoError(t, svc.Export(context.Background(), &buf, "paid"))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Order ID", rows[0][0])
	assert.Equal(t, "MB-PAID", rows[1][0])
	assert.Equal(t, "240", rows[1][8])
	assert.Equal(t, "paid", rows[1][9])
	assert.Equal(t, "pay_1", rows[1][11])
}
