package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, WhatsAppNone, cfg.WhatsApp.Provider)
	assert.Equal(t, 30*time.Minute, cfg.AbandonAfter)
	assert.Equal(t, "@every 10m", cfg.ReconcileSchedule)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PORT=9090\nCORS_ALLOWED_ORIGINS=https://a.in, https://b.in\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("PORT")
		os.Unsetenv("CORS_ALLOWED_ORIGINS")
	})

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"https://a.in", "https://b.in"}, cfg.CORSAllowedOrigins)
}

func TestValidate_ProductionRequirements(t *testing.T) {
	cfg := &Config{Env: "production"}
	cfg.Storage.Driver = StorageSupabase

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUPABASE_URL")
	assert.Contains(t, err.Error(), "RAZORPAY_KEY_ID")
	assert.Contains(t, err.Error(), "ADMIN_PASSWORD_HASH")
	assert.Contains(t, err.Error(), "SESSION_SECRET")
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := &Config{}
	cfg.Storage.Driver = "mongo"
	require.Error(t, cfg.Validate())
}

func TestValidate_WhatsAppProvider(t *testing.T) {
	cfg := &Config{}
	cfg.Storage.Driver = StorageMemory
	cfg.WhatsApp.Provider = WhatsAppTwilio
	require.Error(t, cfg.Validate())

	cfg.WhatsApp.TwilioAccountSID = "AC1"
	cfg.WhatsApp.TwilioAuthToken = "tok"
	cfg.WhatsApp.TwilioFrom = "+14155238886"
	require.NoError(t, cfg.Validate())
}
