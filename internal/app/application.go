package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/events"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/httpapi"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/idempotency"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/metrics"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/notify/whatsapp"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/payments/razorpay"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/services/accounts"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/services/admin"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/services/checkout"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/services/reconcile"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/storage"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/storage/postgres"
	supastore "github.com/mrsbeantempeh/mrsbean-sub000/internal/app/storage/supabase"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/system"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/config"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/logging"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/platform/migrations"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/web"
	"github.com/mrsbeantempeh/mrsbean-sub000/supabase/client"
)

// Options select how the application runs.
type Options struct {
	// Serverless is set for the Lambda entrypoint: notifications are sent
	// inline, and the reconciler and live feed are not started because the
	// process is frozen between invocations.
	Serverless bool
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	cfg     *config.Config
	log     *logging.Logger
	manager *system.Manager
	closers []func() error
	cancel  context.CancelFunc

	Store    storage.Store
	Checkout *checkout.Service
	Admin    *admin.Service
	Accounts *accounts.Service
	Handler  *httpapi.Handler
}

// New builds a fully initialised application from cfg. Resources opened
// before a failure are released.
func New(ctx context.Context, cfg *config.Config, log *logging.Logger, opts Options) (_ *Application, err error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if log == nil {
		log = logging.New("storefront", cfg.Log.Level, cfg.Log.Format)
	}

	a := &Application{cfg: cfg, log: log, manager: system.NewManager()}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	catalog, err := config.LoadCatalogOrDefault(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	store, supa, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Store = store

	guard, err := a.openGuard(ctx)
	if err != nil {
		return nil, err
	}

	var hub *events.Hub
	publishers := events.Multi{}
	if !opts.Serverless {
		hub = events.NewHub(log, originChecker(cfg))
		publishers = append(publishers, hub)
		if err := a.manager.Register(hub); err != nil {
			return nil, err
		}
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			return nil, fmt.Errorf("configure kafka: %w", err)
		}
		publishers = append(publishers, kp)
		if err := a.manager.Register(kp); err != nil {
			return nil, err
		}
	}

	sender, err := newSender(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure whatsapp: %w", err)
	}
	notifier := whatsapp.NewNotifier(sender, cfg.WhatsApp.AdminNumber, catalog.Brand, cfg.PublicBaseURL, log)
	if !notifier.Enabled() {
		log.Warn("WHATSAPP_PROVIDER not set; order notifications are logged only")
	}

	gateway, err := razorpay.New(razorpay.Config{
		KeyID:         cfg.Razorpay.KeyID,
		KeySecret:     cfg.Razorpay.KeySecret,
		MagicCheckout: cfg.Razorpay.MagicCheckout,
	})
	if err != nil {
		return nil, fmt.Errorf("configure razorpay: %w", err)
	}
	if cfg.Razorpay.WebhookSecret == "" {
		log.Warn("RAZORPAY_WEBHOOK_SECRET not set; webhooks will be rejected")
	}

	a.Checkout, err = checkout.New(checkout.Deps{
		Store:     store,
		Gateway:   gateway,
		Catalog:   catalog,
		Guard:     guard,
		Publisher: publishers,
		Notifier:  notifier,
		Log:       log,
	}, checkout.Options{
		KeySecret:         cfg.Razorpay.KeySecret,
		WebhookSecret:     cfg.Razorpay.WebhookSecret,
		AbandonAfter:      cfg.AbandonAfter,
		SyncNotifications: opts.Serverless,
	})
	if err != nil {
		return nil, err
	}
	if err := a.manager.Register(drainService{checkout: a.Checkout}); err != nil {
		return nil, err
	}

	a.Admin = admin.New(store, publishers, cfg.AbandonAfter, log)
	secret := cfg.SessionSecret
	if secret == "" {
		secret = randomSecret()
		log.Warn("SESSION_SECRET not set; admin sessions will not survive a restart")
	}
	if cfg.Admin.PasswordHash == "" {
		log.Warn("ADMIN_PASSWORD_HASH not set; admin login is disabled")
	}
	adminAuth, err := admin.NewAuth(cfg.Admin.PasswordHash, secret, cfg.Admin.SessionTTL, log)
	if err != nil {
		return nil, err
	}

	a.Accounts, err = a.buildAccounts(ctx, store, supa)
	if err != nil {
		return nil, err
	}

	if !opts.Serverless {
		sched, err := reconcile.NewScheduler(a.Checkout, cfg.ReconcileSchedule, log)
		if err != nil {
			return nil, err
		}
		if err := a.manager.Register(sched); err != nil {
			return nil, err
		}
	}

	views, err := web.New(catalog.Brand, log)
	if err != nil {
		return nil, err
	}

	deps := httpapi.Deps{
		Checkout:  a.Checkout,
		Admin:     a.Admin,
		AdminAuth: adminAuth,
		Accounts:  a.Accounts,
		Notifier:  notifier,
		Renderer:  views,
		Log:       log,
	}
	if hub != nil {
		deps.LiveFeed = hub
	}
	if p, ok := store.(storage.Pinger); ok {
		deps.Ready = p.Ping
	}
	a.Handler, err = httpapi.New(deps, httpapi.Options{
		MagicCheckout:  cfg.Razorpay.MagicCheckout,
		SecureCookies:  strings.HasPrefix(cfg.PublicBaseURL, "https://"),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		AuditFile:      cfg.Admin.AuditFile,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Handler.Close)

	log.WithFields(map[string]interface{}{
		"storage":  cfg.Storage.Driver,
		"whatsapp": notifier.Provider(),
		"accounts": a.Accounts.Enabled(),
		"services": a.manager.Services(),
	}).Info("application configured")
	return a, nil
}

func (a *Application) openStore(ctx context.Context) (storage.Store, *client.Client, error) {
	cfg := a.cfg
	switch cfg.Storage.Driver {
	case config.StorageSupabase:
		retry := client.DefaultRetryConfig()
		breaker := client.DefaultCircuitBreakerConfig()
		breaker.OnStateChange = func(from, to client.CircuitState) {
			a.log.WithFields(map[string]interface{}{"from": from.String(), "to": to.String()}).Warn("supabase circuit breaker changed state")
		}
		if !cfg.Supabase.Resilient {
			retry.MaxRetries = 0
		}
		c, _, err := client.NewResilient(client.Config{
			URL:    cfg.Supabase.URL,
			APIKey: cfg.Supabase.ServiceKey,
		}, client.ResilienceConfig{
			RetryConfig:          retry,
			CircuitBreakerConfig: breaker,
			OnRetry:              metrics.RecordSupabaseRetry,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("configure supabase: %w", err)
		}
		return supastore.New(c), c, nil

	case config.StoragePostgres:
		store, db, err := postgres.Open(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if cfg.Storage.AutoMigrate {
			if err := migrate(ctx, db); err != nil {
				return nil, nil, err
			}
			a.log.Info("database schema applied")
		}
		return store, nil, nil

	default:
		a.log.Warn("using in-memory storage; orders are lost on restart")
		return storage.NewMemory(), nil, nil
	}
}

func migrate(ctx context.Context, db *sql.DB) error {
	if err := migrations.Apply(ctx, db); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (a *Application) openGuard(ctx context.Context) (idempotency.Guard, error) {
	opts := idempotency.Options{}
	if a.cfg.RedisURL == "" {
		return idempotency.NewMemory(opts), nil
	}
	r, err := idempotency.OpenRedis(ctx, a.cfg.RedisURL, opts)
	if err != nil {
		return nil, fmt.Errorf("configure redis: %w", err)
	}
	a.closers = append(a.closers, r.Close)
	return r, nil
}

// buildAccounts enables sign-in when Supabase Auth is reachable. Tokens are
// checked against the project secret, then the JWKS, then GoTrue itself.
func (a *Application) buildAccounts(ctx context.Context, store storage.Store, supa *client.Client) (*accounts.Service, error) {
	cfg := a.cfg
	if cfg.Supabase.URL == "" {
		return accounts.New(nil, nil, store, cfg.AbandonAfter, a.log), nil
	}

	authKey := cfg.Supabase.AnonKey
	if authKey == "" {
		authKey = cfg.Supabase.ServiceKey
	}
	authClient := supa
	if authClient == nil || authKey != cfg.Supabase.ServiceKey {
		c, err := client.New(client.Config{URL: cfg.Supabase.URL, APIKey: authKey})
		if err != nil {
			a.log.WithError(err).Warn("supabase auth not configured; customer accounts disabled")
			return accounts.New(nil, nil, store, cfg.AbandonAfter, a.log), nil
		}
		authClient = c
	}
	auth := authClient.Auth()

	vc := accounts.VerifierConfig{JWTSecret: cfg.Supabase.JWTSecret, Remote: auth}
	if jwks, err := accounts.NewJWKS(ctx, cfg.Supabase.URL); err != nil {
		a.log.WithError(err).Debug("supabase jwks unavailable")
	} else {
		vc.JWKS = jwks
	}
	verifier, err := accounts.NewTokenVerifier(vc)
	if err != nil {
		return nil, err
	}
	return accounts.New(auth, verifier, store, cfg.AbandonAfter, a.log), nil
}

func newSender(cfg *config.Config) (whatsapp.Sender, error) {
	switch cfg.WhatsApp.Provider {
	case config.WhatsAppMeta:
		return whatsapp.NewMeta(whatsapp.MetaConfig{
			AccessToken:   cfg.WhatsApp.MetaAccessToken,
			PhoneNumberID: cfg.WhatsApp.MetaPhoneNumber,
			APIVersion:    cfg.WhatsApp.MetaAPIVersion,
		})
	case config.WhatsAppTwilio:
		return whatsapp.NewTwilio(whatsapp.TwilioConfig{
			AccountSID: cfg.WhatsApp.TwilioAccountSID,
			AuthToken:  cfg.WhatsApp.TwilioAuthToken,
			From:       cfg.WhatsApp.TwilioFrom,
		})
	default:
		return whatsapp.Nop{}, nil
	}
}

// originChecker accepts websocket upgrades from the public site and the CORS
// allowlist.
func originChecker(cfg *config.Config) func(r *http.Request) bool {
	allowed := map[string]bool{}
	if u, err := url.Parse(cfg.PublicBaseURL); err == nil && u.Host != "" {
		allowed[u.Host] = true
	}
	for _, o := range cfg.CORSAllowedOrigins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			allowed[u.Host] = true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host || allowed[u.Host]
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// drainService waits for in-flight notifications on shutdown.
type drainService struct {
	checkout *checkout.Service
}

func (drainService) Name() string { return "notification-drain" }

func (drainService) Start(ctx context.Context) error { return nil }

func (d drainService) Stop(ctx context.Context) error {
	return d.checkout.Wait(ctx)
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	if err := a.manager.Start(ctx); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.Handler.Start(runCtx)
	return nil
}

// Stop stops all services and releases connections.
func (a *Application) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	err := a.manager.Stop(ctx)
	a.close()
	return err
}

func (a *Application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("close resource")
		}
	}
	a.closers = nil
}

// Config returns the configuration the application was built with.
func (a *Application) Config() *config.Config { return a.cfg }

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 20 * time.Second
