// Package config loads storefront configuration from the environment and the
// product catalog from YAML.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSupabase = "supabase"
	StoragePostgres = "postgres"
)

// WhatsApp providers.
const (
	WhatsAppNone   = "none"
	WhatsAppMeta   = "meta"
	WhatsAppTwilio = "twilio"
)

// Config is the process configuration decoded from environment variables.
type Config struct {
	Env           string `env:"APP_ENV,default=development"`
	Port          int    `env:"PORT,default=8080"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL,default=http://localhost:8080"`
	CatalogPath   string `env:"CATALOG_PATH,default=config/catalog.yaml"`

	Log struct {
		Level  string `env:"LOG_LEVEL,default=info"`
		Format string `env:"LOG_FORMAT,default=json"`
		File   string `env:"LOG_FILE"`
	}

	Storage struct {
		Driver      string `env:"STORAGE_DRIVER,default=memory"`
		DatabaseURL string `env:"DATABASE_URL"`
		AutoMigrate bool   `env:"DATABASE_AUTO_MIGRATE,default=false"`
	}

	Supabase struct {
		URL        string `env:"SUPABASE_URL"`
		ServiceKey string `env:"SUPABASE_SERVICE_KEY"`
		AnonKey    string `env:"SUPABASE_ANON_KEY"`
		JWTSecret  string `env:"SUPABASE_JWT_SECRET"`
		Resilient  bool   `env:"SUPABASE_RESILIENCE,default=true"`
	}

	Razorpay struct {
		KeyID         string `env:"RAZORPAY_KEY_ID"`
		KeySecret     string `env:"RAZORPAY_KEY_SECRET"`
		WebhookSecret string `env:"RAZORPAY_WEBHOOK_SECRET"`
		MagicCheckout bool   `env:"RAZORPAY_MAGIC_CHECKOUT,default=true"`
	}

	WhatsApp struct {
		Provider         string `env:"WHATSAPP_PROVIDER,default=none"`
		AdminNumber      string `env:"WHATSAPP_ADMIN_NUMBER"`
		MetaAccessToken  string `env:"WHATSAPP_META_ACCESS_TOKEN"`
		MetaPhoneNumber  string `env:"WHATSAPP_META_PHONE_NUMBER_ID"`
		MetaAPIVersion   string `env:"WHATSAPP_META_API_VERSION,default=v19.0"`
		TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
		TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`
		TwilioFrom       string `env:"TWILIO_WHATSAPP_FROM"`
	}

	Admin struct {
		PasswordHash string        `env:"ADMIN_PASSWORD_HASH"`
		SessionTTL   time.Duration `env:"ADMIN_SESSION_TTL,default=12h"`
		AuditFile    string        `env:"ADMIN_AUDIT_FILE"`
	}

	SessionSecret string `env:"SESSION_SECRET"`

	RedisURL string `env:"REDIS_URL"`

	Kafka struct {
		Brokers []string `env:"KAFKA_BROKERS"`
		Topic   string   `env:"KAFKA_TOPIC,default=storefront.orders"`
	}

	ReconcileSchedule string        `env:"RECONCILE_SCHEDULE,default=@every 10m"`
	AbandonAfter      time.Duration `env:"CART_ABANDON_AFTER,default=30m"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`
	RateLimitRPS       int      `env:"RATE_LIMIT_RPS,default=10"`
	RateLimitBurst     int      `env:"RATE_LIMIT_BURST,default=20"`
}

// Load reads an optional .env file and decodes the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.WhatsApp.Provider = strings.ToLower(strings.TrimSpace(c.WhatsApp.Provider))
	c.PublicBaseURL = strings.TrimSuffix(c.PublicBaseURL, "/")
	c.Supabase.URL = strings.TrimSuffix(c.Supabase.URL, "/")

	origins := c.CORSAllowedOrigins[:0]
	for _, o := range c.CORSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSAllowedOrigins = origins
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate checks driver-specific requirements. Production additionally
// requires payment credentials and session secrets.
func (c *Config) Validate() error {
	var problems []string

	switch c.Storage.Driver {
	case StorageMemory:
		if c.IsProduction() {
			problems = append(problems, "STORAGE_DRIVER=memory is not allowed in production")
		}
	case StorageSupabase:
		if c.Supabase.URL == "" || c.Supabase.ServiceKey == "" {
			problems = append(problems, "SUPABASE_URL and SUPABASE_SERVICE_KEY are required for the supabase driver")
		}
	case StoragePostgres:
		if c.Storage.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required for the postgres driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown STORAGE_DRIVER %q", c.Storage.Driver))
	}

	switch c.WhatsApp.Provider {
	case "", WhatsAppNone:
	case WhatsAppMeta:
		if c.WhatsApp.MetaAccessToken == "" || c.WhatsApp.MetaPhoneNumber == "" {
			problems = append(problems, "WHATSAPP_META_ACCESS_TOKEN and WHATSAPP_META_PHONE_NUMBER_ID are required for meta")
		}
	case WhatsAppTwilio:
		if c.WhatsApp.TwilioAccountSID == "" || c.WhatsApp.TwilioAuthToken == "" || c.WhatsApp.TwilioFrom == "" {
			problems = append(problems, "TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_WHATSAPP_FROM are required for twilio")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown WHATSAPP_PROVIDER %q", c.WhatsApp.Provider))
	}

	if c.IsProduction() {
		if c.Razorpay.KeyID == "" || c.Razorpay.KeySecret == "" {
			problems = append(problems, "RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required in production")
		}
		if c.Razorpay.WebhookSecret == "" {
			problems = append(problems, "RAZORPAY_WEBHOOK_SECRET is required in production")
		}
		if len(c.SessionSecret) < 32 {
			problems = append(problems, "SESSION_SECRET must be at least 32 bytes in production")
		}
		if c.Admin.PasswordHash == "" {
			problems = append(problems, "ADMIN_PASSWORD_HASH is required in production")
		}
	}

	if c.AbandonAfter < 0 {
		problems = append(problems, "CART_ABANDON_AFTER must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
