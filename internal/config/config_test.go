package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadWithEnv(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	viper.Reset()
	for k, v := range env {
		t.Setenv(k, v)
	}
	return Load()
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadWithEnv(t, nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 64*1024, cfg.Ingest.MaxFieldLength)
	assert.Equal(t, int64(10*1024*1024), cfg.Ingest.MaxBodyBytes)
	assert.Equal(t, 50, cfg.Store.ListLimit)
	assert.Equal(t, 24*time.Hour, cfg.Store.Retention)
	assert.Equal(t, time.Hour, cfg.Store.CleanupInterval)
	assert.False(t, cfg.SMTP.Enabled)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Empty(t, cfg.Database.Type)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	cfg, err := loadWithEnv(t, map[string]string{
		"TEMPINBOX_SERVER_PORT":          "9090",
		"TEMPINBOX_STORE_RETENTION":      "48h",
		"TEMPINBOX_CORS_ALLOWED_ORIGINS": "https://a.example, https://b.example",
		"TEMPINBOX_SMTP_ALLOWED_DOMAINS": "Temp.Inbox,Mail.Example",
	})
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 48*time.Hour, cfg.Store.Retention)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, []string{"temp.inbox", "mail.example"}, cfg.SMTP.AllowedDomains)
}

func TestLoad_InvalidDatabaseType(t *testing.T) {
	_, err := loadWithEnv(t, map[string]string{
		"TEMPINBOX_DATABASE_TYPE": "sqlite",
		"TEMPINBOX_DATABASE_DSN":  "file.db",
	})
	assert.Error(t, err)
}

func TestLoad_DatabaseRequiresDSN(t *testing.T) {
	_, err := loadWithEnv(t, map[string]string{
		"TEMPINBOX_DATABASE_TYPE": "mysql",
	})
	assert.Error(t, err)
}

func TestLoad_BodyCeilingMustExceedFieldCap(t *testing.T) {
	_, err := loadWithEnv(t, map[string]string{
		"TEMPINBOX_INGEST_MAX_BODY_BYTES": "1024",
	})
	assert.Error(t, err)
}
