package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/notify/whatsapp"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/payments/razorpay"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/services/accounts"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/services/admin"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/services/checkout"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/storage"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/logging"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/middleware"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/web"
	"github.com/mrsbeantempeh/mrsbean-sub000/supabase/client"
)

const (
	keySecret     = "rzp_test_secret"
	webhookSecret = "whsec_test"
	jwtSecret     = "supabase-jwt-secret-for-tests-only"
	adminPassword = "tempeh-admin-pass"
)

type stubGateway struct {
	mu     sync.Mutex
	seq    int
	prefix string
}

func (g *stubGateway) CreateOrder(_ context.Context, req razorpay.CreateOrderRequest) (razorpay.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return razorpay.Order{ID: fmt.Sprintf("order_%sT%d", g.prefix, g.seq), Receipt: req.Receipt, Status: razorpay.OrderCreated, AmountPaise: req.AmountPaise}, nil
}

func (g *stubGateway) FetchOrder(context.Context, string) (razorpay.Order, error) {
	return razorpay.Order{}, fmt.Errorf("not found")
}

func (g *stubGateway) FetchPayment(_ context.Context, id string) (razorpay.Payment, error) {
	return razorpay.Payment{ID: id, Status: razorpay.PaymentCaptured, Method: "upi"}, nil
}

func (g *stubGateway) OrderPayments(context.Context, string) ([]razorpay.Payment, error) {
	return nil, nil
}

func (g *stubGateway) KeyID() string { return "rzp_test_key" }

type stubAuth struct{}

func (stubAuth) SignUp(_ context.Context, email, _ string, _ map[string]any) (*client.AuthResponse, error) {
	return &client.AuthResponse{AccessToken: customerToken("user-new", email), ExpiresIn: 3600, User: &client.User{ID: "user-new", Email: email}}, nil
}

func (stubAuth) SignIn(_ context.Context, email, password string) (*client.AuthResponse, error) {
	if password != "secret123" {
		return nil, &client.APIError{StatusCode: http.StatusBadRequest, Message: "Invalid login credentials"}
	}
	return &client.AuthResponse{AccessToken: customerToken("user-1", email), ExpiresIn: 3600, User: &client.User{ID: "user-1", Email: email}}, nil
}

func (stubAuth) SignOut(context.Context, string) error { return nil }

type sentMessages struct {
	mu sync.Mutex
	to []string
}

func (s *sentMessages) Send(_ context.Context, to, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.to = append(s.to, to)
	return "wamid.1", nil
}

func (s *sentMessages) Provider() string { return "test" }

func customerToken(userID, email string) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, accounts.SupabaseClaims{
		Email: email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	s, err := tok.SignedString([]byte(jwtSecret))
	if err != nil {
		panic(err)
	}
	return s
}

type fixture struct {
	h     *Handler
	store *storage.Memory
	sent  *sentMessages
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logging.NewNop()
	store := storage.NewMemory()
	sent := &sentMessages{}
	notifier := whatsapp.NewNotifier(sent, "+919000000000", "Mrs. Bean", "", log)

	co, err := checkout.New(checkout.Deps{
		Store:    store,
		Gateway:  &stubGateway{},
		Notifier: notifier,
		Log:      log,
	}, checkout.Options{
		KeySecret:         keySecret,
		WebhookSecret:     webhookSecret,
		AbandonAfter:      30 * time.Minute,
		SyncNotifications: true,
	})
	require.NoError(t, err)

	hash, err := admin.HashPassword(adminPassword)
	require.NoError(t, err)
	adminAuth, err := admin.NewAuth(hash, "admin-session-secret", time.Hour, log)
	require.NoError(t, err)

	verifier, err := accounts.NewTokenVerifier(accounts.VerifierConfig{JWTSecret: jwtSecret})
	require.NoError(t, err)

	views, err := web.New("Mrs. Bean Tempeh", log)
	require.NoError(t, err)

	h, err := New(Deps{
		Checkout:  co,
		Admin:     admin.New(store, nil, 30*time.Minute, log),
		AdminAuth: adminAuth,
		Accounts:  accounts.New(stubAuth{}, verifier, store, 30*time.Minute, log),
		Notifier:  notifier,
		Renderer:  views,
		Log:       log,
	}, Options{MagicCheckout: true, RateLimitRPS: 1000, RateLimitBurst: 1000})
	require.NoError(t, err)
	return &fixture{h: h, store: store, sent: sent}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.h.ServeHTTP(rr, req)
	return rr
}

func jsonRequest(method, target string, body interface{}) *http.Request {
	var r *http.Request
	if body == nil {
		r = httptest.NewRequest(method, target, nil)
	} else {
		raw, _ := json.Marshal(body)
		r = httptest.NewRequest(method, target, strings.NewReader(string(raw)))
		r.Header.Set("Content-Type", "application/json")
	}
	r.Header.Set("Accept", "application/json")
	return r
}

func formRequest(target string, values url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func orderBody() map[string]interface{} {
	return map[string]interface{}{
		"quantity": 2,
		"name":     "Asha Rao",
		"email":    "asha@example.com",
		"phone":    "9876543210",
		"address":  "12 MG Road, Pune",
	}
}

func (f *fixture) createOrder(t *testing.T) map[string]interface{} {
	t.Helper()
	rr := f.do(jsonRequest(http.MethodPost, "/api/razorpay/create-order", orderBody()))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decode(t, rr)
}

func (f *fixture) adminCookie(t *testing.T) *http.Cookie {
	t.Helper()
	rr := f.do(jsonRequest(http.MethodPost, "/api/admin/login", map[string]string{"password": adminPassword}))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	for _, c := range rr.Result().Cookies() {
		if c.Name == admin.SessionCookie {
			assert.True(t, c.HttpOnly)
			return c
		}
	}
	t.Fatal("no admin session cookie")
	return nil
}

func verifyBody(rzpOrderID, paymentID string) map[string]string {
	return map[string]string{
		"razorpay_order_id":   rzpOrderID,
		"razorpay_payment_id": paymentID,
		"razorpay_signature":  razorpay.Sign([]byte(rzpOrderID+"|"+paymentID), keySecret),
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rr := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode(t, rr)["status"])
	assert.NotEmpty(t, rr.Header().Get("X-Trace-ID"))
}

func TestHealth_Degraded(t *testing.T) {
	f := newFixture(t)
	f.h.ready = func(context.Context) error { return fmt.Errorf("db down") }
	rr := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	body := f.createOrder(t)

	assert.Equal(t, true, body["success"])
	assert.Equal(t, "order_T1", body["razorpay_order_id"])
	assert.Equal(t, "rzp_test_key", body["key_id"])
	assert.Equal(t, float64(24000), body["amount"])
	assert.Equal(t, true, body["magic_checkout"])
	assert.NotEmpty(t, body["order_id"])
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture(t)
	b := orderBody()
	b["email"] = "not-an-email"
	rr := f.do(jsonRequest(http.MethodPost, "/api/razorpay/create-order", b))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_FAILED", decode(t, rr)["code"])
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	created := f.createOrder(t)
	rzpID := created["razorpay_order_id"].(string)

	rr := f.do(jsonRequest(http.MethodPost, "/api/razorpay/verify", verifyBody(rzpID, "pay_1")))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode(t, rr)
	assert.Equal(t, "paid", body["payment_status"])
	assert.Equal(t, "/thank-you?order_id="+url.QueryEscape(created["order_id"].(string)), body["redirect"])
	assert.Equal(t, []string{"+919876543210", "+919000000000"}, f.sent.to)

	bad := verifyBody(rzpID, "pay_2")
	bad["razorpay_signature"] = "deadbeef"
	rr = f.do(jsonRequest(http.MethodPost, "/api/razorpay/verify", bad))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_SIGNATURE", decode(t, rr)["code"])
}

func TestVerify_FormCallbackRedirects(t *testing.T) {
	f := newFixture(t)
	created := f.createOrder(t)
	v := url.Values{}
	for k, val := range verifyBody(created["razorpay_order_id"].(string), "pay_1") {
		v.Set(k, val)
	}

	rr := f.do(formRequest("/api/razorpay/verify", v))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Location"), "/thank-you?order_id="))

	page := f.do(httptest.NewRequest(http.MethodGet, rr.Header().Get("Location"), nil))
	assert.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "was received")
}

func webhookRequest(body, signature, eventID string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/razorpay/webhook", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("X-Razorpay-Signature", signature)
	r.Header.Set("X-Razorpay-Event-Id", eventID)
	return r
}

func TestWebhook(t *testing.T) {
	f := newFixture(t)
	created := f.createOrder(t)
	body := fmt.Sprintf(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_w1","order_id":%q,"status":"captured","method":"card","amount":24000}}}}`,
		created["razorpay_order_id"])

	rr := f.do(webhookRequest(body, "bad", "evt_1"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	sig := razorpay.Sign([]byte(body), webhookSecret)
	rr = f.do(webhookRequest(body, sig, "evt_1"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, string(checkout.WebhookProcessed), decode(t, rr)["status"])

	rr = f.do(webhookRequest(body, sig, "evt_1"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, string(checkout.WebhookDuplicate), decode(t, rr)["status"])

	unknown := `{"event":"refund.processed","payload":{}}`
	rr = f.do(webhookRequest(unknown, razorpay.Sign([]byte(unknown), webhookSecret), "evt_2"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, string(checkout.WebhookIgnored), decode(t, rr)["status"])
}

func TestAdminOrders(t *testing.T) {
	f := newFixture(t)
	created := f.createOrder(t)
	orderID := created["order_id"].(string)

	rr := f.do(jsonRequest(http.MethodGet, "/api/admin/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	cookie := f.adminCookie(t)

	req := jsonRequest(http.MethodGet, "/api/admin/orders?status=pending", nil)
	req.AddCookie(cookie)
	rr = f.do(req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode(t, rr)
	assert.Len(t, body["orders"], 1)
	assert.Equal(t, float64(1), body["totals"].(map[string]interface{})["orders"])

	req = jsonRequest(http.MethodPatch, "/api/admin/orders", map[string]string{"order_id": orderID, "final_status": "delivered"})
	req.AddCookie(cookie)
	rr = f.do(req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	o := decode(t, rr)["order"].(map[string]interface{})
	assert.Equal(t, "delivered", o["final_status"])
	assert.Equal(t, "delivered", o["status"])

	req = jsonRequest(http.MethodPatch, "/api/admin/orders", map[string]string{"order_id": orderID, "final_status": "lost"})
	req.AddCookie(cookie)
	assert.Equal(t, http.StatusBadRequest, f.do(req).Code)

	req = jsonRequest(http.MethodGet, "/api/admin/audit", nil)
	req.AddCookie(cookie)
	rr = f.do(req)
	entries := decode(t, rr)["entries"].([]interface{})
	require.Len(t, entries, 3)
	assert.Equal(t, "set_final_status", entries[0].(map[string]interface{})["action"])
	assert.Equal(t, false, entries[0].(map[string]interface{})["success"])
	assert.Equal(t, "admin_login", entries[2].(map[string]interface{})["action"])
}

func TestAdminLogin_WrongPassword(t *testing.T) {
	f := newFixture(t)
	rr := f.do(jsonRequest(http.MethodPost, "/api/admin/login", map[string]string{"password": "nope"}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, rr.Result().Cookies())
}

func TestAdminExport(t *testing.T) {
	f := newFixture(t)
	f.createOrder(t)
	req := httptest.NewRequest(http.MethodGet, "/api/admin/orders/export", nil)
	req.AddCookie(f.adminCookie(t))
	rr := f.do(req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, xlsxContentType, rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), ".xlsx")
	assert.True(t, strings.HasPrefix(rr.Body.String(), "PK"), "xlsx is a zip archive")
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t)
	cookie := f.adminCookie(t)

	req := jsonRequest(http.MethodPost, "/api/whatsapp/send-message", map[string]string{"to": "+919812345678", "message": "Your tempeh has shipped"})
	req.AddCookie(cookie)
	rr := f.do(req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode(t, rr)["success"])

	req = jsonRequest(http.MethodPost, "/api/whatsapp/send-message", map[string]string{"to": "+919812345678", "message": " "})
	req.AddCookie(cookie)
	rr = f.do(req)
	require.Equal(t, http.StatusOK, rr.Code, "notification failures still answer 200")
	body := decode(t, rr)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["error"])

	rr = f.do(jsonRequest(http.MethodPost, "/api/whatsapp/send-message", map[string]string{"to": "+919812345678", "message": "hi"}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestOrders_GuestAndAccount(t *testing.T) {
	f := newFixture(t)
	f.createOrder(t)

	rr := f.do(jsonRequest(http.MethodGet, "/api/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(jsonRequest(http.MethodGet, "/api/orders?email=asha@example.com&phone=98765%2043210", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Len(t, decode(t, rr)["orders"], 1)

	rr = f.do(jsonRequest(http.MethodGet, "/api/orders?email=asha@example.com&phone=9000000001", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode(t, rr)["orders"], 0)

	rr = f.do(jsonRequest(http.MethodGet, "/api/orders?email=asha@example.com", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := jsonRequest(http.MethodPost, "/api/razorpay/create-order", orderBody())
	req.Header.Set("Authorization", "Bearer "+customerToken("user-1", "asha@example.com"))
	require.Equal(t, http.StatusOK, f.do(req).Code)

	req = jsonRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Authorization", "Bearer "+customerToken("user-1", "asha@example.com"))
	rr = f.do(req)
	require.Equal(t, http.StatusOK, rr.Code)
	orders := decode(t, rr)["orders"].([]interface{})
	require.Len(t, orders, 1)
	assert.Equal(t, "user-1", orders[0].(map[string]interface{})["user_id"])
}

func TestAccountAPI(t *testing.T) {
	f := newFixture(t)

	rr := f.do(jsonRequest(http.MethodPost, "/api/account/signin", map[string]string{"email": "asha@example.com", "password": "wrong"}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(jsonRequest(http.MethodPost, "/api/account/signin", map[string]string{"email": "asha@example.com", "password": "secret123"}))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var session *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == middleware.CustomerCookie {
			session = c
		}
	}
	require.NotNil(t, session)

	req := jsonRequest(http.MethodPut, "/api/account/profile", map[string]string{"full_name": "Asha Rao", "phone": "98765 43210"})
	req.AddCookie(session)
	rr = f.do(req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	p := decode(t, rr)["profile"].(map[string]interface{})
	assert.Equal(t, "+919876543210", p["phone"])

	req = jsonRequest(http.MethodGet, "/api/account/profile", nil)
	req.AddCookie(session)
	rr = f.do(req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Asha Rao", decode(t, rr)["profile"].(map[string]interface{})["full_name"])

	rr = f.do(jsonRequest(http.MethodGet, "/api/account/profile", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestPages(t *testing.T) {
	f := newFixture(t)

	rr := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Mrs. Bean Tempeh (200 g)")

	rr = f.do(httptest.NewRequest(http.MethodGet, "/checkout?qty=3", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "₹360")

	form := url.Values{"quantity": {"1"}, "name": {"Ravi"}, "email": {"ravi@example.com"}, "phone": {"9123456780"}}
	rr = f.do(formRequest("/checkout", form))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "order_T1")
	assert.Contains(t, rr.Body.String(), "magic-checkout.js")

	form.Set("phone", "12")
	rr = f.do(formRequest("/checkout", form))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `value="ravi@example.com"`)

	rr = f.do(httptest.NewRequest(http.MethodGet, "/orders", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Find your orders")

	rr = f.do(httptest.NewRequest(http.MethodGet, "/no-such-page", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAdminPages(t *testing.T) {
	f := newFixture(t)
	f.createOrder(t)

	rr := f.do(httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/admin/login", rr.Header().Get("Location"))

	rr = f.do(formRequest("/admin/login", url.Values{"password": {"nope"}}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid password")

	rr = f.do(formRequest("/admin/login", url.Values{"password": {adminPassword}}))
	require.Equal(t, http.StatusSeeOther, rr.Code)
	cookies := rr.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr = f.do(req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Asha Rao")
	assert.Contains(t, rr.Body.String(), "Export XLSX")
}

func TestSafeNext(t *testing.T) {
	assert.Equal(t, "/orders", safeNext("/orders", "/"))
	assert.Equal(t, "/", safeNext("//evil.example", "/"))
	assert.Equal(t, "/", safeNext("https://evil.example/", "/"))
	assert.Equal(t, "/", safeNext("/\\evil.example", "/"))
	assert.Equal(t, "/", safeNext("", "/"))
}
