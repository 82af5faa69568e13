// Package httpapi serves the storefront pages and JSON API.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/metrics"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/notify/whatsapp"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/services/accounts"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/services/admin"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/services/checkout"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/logging"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/middleware"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/web"
)

// Deps are the services behind the HTTP surface.
type Deps struct {
	Checkout  *checkout.Service
	Admin     *admin.Service
	AdminAuth *admin.Auth
	Accounts  *accounts.Service
	Notifier  *whatsapp.Notifier
	// LiveFeed upgrades admin dashboards to the websocket event stream.
	LiveFeed http.Handler
	Renderer *web.Renderer
	Log      *logging.Logger
	// Ready reports storage health for /healthz. Nil means always ready.
	Ready func(ctx context.Context) error
}

// Options configure the HTTP layer.
type Options struct {
	MagicCheckout  bool
	SecureCookies  bool
	AllowedOrigins []string
	RateLimitRPS   int
	RateLimitBurst int
	AuditFile      string
}

// Handler is the storefront's http.Handler.
type Handler struct {
	checkout  *checkout.Service
	admin     *admin.Service
	adminAuth *admin.Auth
	accounts  *accounts.Service
	notifier  *whatsapp.Notifier
	liveFeed  http.Handler
	views     *web.Renderer
	log       *logging.Logger
	ready     func(ctx context.Context) error
	opts      Options

	auth    *middleware.AuthMiddleware
	limiter *middleware.RateLimiter
	audit   *auditLog
	sink    *fileAuditSink
	router  *mux.Router
}

// New builds the router.
func New(deps Deps, opts Options) (*Handler, error) {
	switch {
	case deps.Checkout == nil:
		return nil, errors.New("httpapi: checkout service is required")
	case deps.Admin == nil || deps.AdminAuth == nil:
		return nil, errors.New("httpapi: admin service is required")
	case deps.Accounts == nil:
		return nil, errors.New("httpapi: accounts service is required")
	case deps.Renderer == nil:
		return nil, errors.New("httpapi: renderer is required")
	}
	if deps.Log == nil {
		deps.Log = logging.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = whatsapp.NewNotifier(nil, "", "", "", deps.Log)
	}
	if deps.LiveFeed == nil {
		deps.LiveFeed = http.NotFoundHandler()
	}

	sink, err := newFileAuditSink(opts.AuditFile)
	if err != nil {
		return nil, err
	}
	var auditSinkIface auditSink
	if sink != nil {
		auditSinkIface = sink
	}

	h := &Handler{
		checkout:  deps.Checkout,
		admin:     deps.Admin,
		adminAuth: deps.AdminAuth,
		accounts:  deps.Accounts,
		notifier:  deps.Notifier,
		liveFeed:  deps.LiveFeed,
		views:     deps.Renderer,
		log:       deps.Log,
		ready:     deps.Ready,
		opts:      opts,
		auth:      middleware.NewAuthMiddleware(deps.Accounts, deps.AdminAuth, deps.Log),
		limiter:   middleware.NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst, deps.Log),
		audit:     newAuditLog(500, auditSinkIface),
		sink:      sink,
	}
	h.router = h.routes()
	return h, nil
}

func (h *Handler) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.NewRequestTracer(h.log, "/healthz", "/metrics").Handler)
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.NewCORSMiddleware(h.opts.AllowedOrigins).Handler)
	r.NotFoundHandler = http.HandlerFunc(h.notFound)

	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(web.Static()).Methods(http.MethodGet)

	// Razorpay callbacks are not rate limited: the gateway retries on 429
	// and the widget's verify call must not be lost.
	r.HandleFunc("/api/razorpay/webhook", h.handleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/api/razorpay/verify", h.handleVerify).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.limiter.Handler)
	api.Use(h.auth.OptionalCustomer)
	api.HandleFunc("/razorpay/create-order", h.handleCreateOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders", h.handleOrders).Methods(http.MethodGet)
	api.HandleFunc("/admin/login", h.handleAdminLogin).Methods(http.MethodPost)
	api.HandleFunc("/admin/logout", h.handleAdminLogout).Methods(http.MethodPost)
	api.HandleFunc("/account/signup", h.handleSignUp).Methods(http.MethodPost)
	api.HandleFunc("/account/signin", h.handleSignIn).Methods(http.MethodPost)
	api.HandleFunc("/account/signout", h.handleSignOut).Methods(http.MethodPost)

	profile := api.PathPrefix("/account/profile").Subrouter()
	profile.Use(middleware.RequireCustomer)
	profile.HandleFunc("", h.handleGetProfile).Methods(http.MethodGet)
	profile.HandleFunc("", h.handleUpdateProfile).Methods(http.MethodPut, http.MethodPatch)

	adminAPI := api.PathPrefix("/admin").Subrouter()
	adminAPI.Use(h.auth.RequireAdmin)
	adminAPI.HandleFunc("/orders", h.handleAdminOrders).Methods(http.MethodGet)
	adminAPI.HandleFunc("/orders", h.handleAdminUpdateOrder).Methods(http.MethodPatch)
	adminAPI.HandleFunc("/orders/export", h.handleAdminExport).Methods(http.MethodGet)
	adminAPI.HandleFunc("/audit", h.handleAdminAudit).Methods(http.MethodGet)
	adminAPI.Handle("/live", h.liveFeed).Methods(http.MethodGet)

	whatsappAPI := api.PathPrefix("/whatsapp").Subrouter()
	whatsappAPI.Use(h.auth.RequireAdmin)
	whatsappAPI.HandleFunc("/send-message", h.handleSendMessage).Methods(http.MethodPost)

	pages := r.NewRoute().Subrouter()
	pages.Use(h.auth.OptionalCustomer)
	pages.HandleFunc("/", h.pageHome).Methods(http.MethodGet)
	pages.HandleFunc("/checkout", h.pageCheckout).Methods(http.MethodGet)
	pages.Handle("/checkout", h.limiter.Handler(http.HandlerFunc(h.submitCheckout))).Methods(http.MethodPost)
	pages.HandleFunc("/thank-you", h.pageThankYou).Methods(http.MethodGet)
	pages.HandleFunc("/orders", h.pageOrders).Methods(http.MethodGet)
	pages.HandleFunc("/account", h.pageAccount).Methods(http.MethodGet)
	pages.Handle("/account/signin", h.limiter.Handler(http.HandlerFunc(h.submitSignIn))).Methods(http.MethodPost)
	pages.Handle("/account/signup", h.limiter.Handler(http.HandlerFunc(h.submitSignUp))).Methods(http.MethodPost)
	pages.HandleFunc("/account/signout", h.submitSignOut).Methods(http.MethodPost)
	pages.Handle("/account/profile", middleware.RequireCustomer(http.HandlerFunc(h.submitProfile))).Methods(http.MethodPost)

	pages.HandleFunc("/admin/login", h.pageAdminLogin).Methods(http.MethodGet)
	pages.Handle("/admin/login", h.limiter.Handler(http.HandlerFunc(h.submitAdminLogin))).Methods(http.MethodPost)
	pages.HandleFunc("/admin/logout", h.submitAdminLogout).Methods(http.MethodPost)
	pages.Handle("/admin", h.auth.RequireAdmin(http.HandlerFunc(h.pageAdmin))).Methods(http.MethodGet)

	return r
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Start runs background housekeeping until ctx is done.
func (h *Handler) Start(ctx context.Context) {
	h.limiter.StartCleanup(ctx, 5*time.Minute)
}

// Close releases the audit file.
func (h *Handler) Close() error {
	return h.sink.Close()
}
