package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "json", cfg.Server.LogFormat)

	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/twofa.sqlite", cfg.Database.Path)

	require.True(t, cfg.Auth.TOTP.Enabled)
	require.Equal(t, "OpenPortal", cfg.Auth.TOTP.Issuer)
	require.Equal(t, 5*time.Minute, cfg.Auth.TOTP.EmailCodeInterval)
	require.Equal(t, 256, cfg.Auth.TOTP.QRSize)

	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)

	require.False(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, 10*time.Second, cfg.Email.SMTP.Timeout)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
server:
  port: 9443
  log_level: debug
auth:
  totp:
    enabled: false
    issuer: Example
    email_code_interval: 300s
security:
  encryption_key: super-secret-passphrase
database:
  driver: postgres
  postgres:
    host: db.internal
    port: 5432
    database: twofa
    username: twofa
    password: hunter2
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	require.Equal(t, 9443, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.False(t, cfg.Auth.TOTP.Enabled)
	require.Equal(t, "Example", cfg.Auth.TOTP.Issuer)
	require.Equal(t, 300*time.Second, cfg.Auth.TOTP.EmailCodeInterval)
	require.Equal(t, "super-secret-passphrase", cfg.Security.EncryptionKey)

	conn := cfg.Database.Connection()
	require.Equal(t, "postgres", conn.Driver)
	require.Equal(t, "db.internal", conn.Host)
	require.Equal(t, 5432, conn.Port)
	require.Equal(t, "twofa", conn.Name)
	require.Equal(t, "twofa", conn.User)
	require.Equal(t, "hunter2", conn.Password)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("TWOFA_SERVER_PORT", "8443")
	t.Setenv("TWOFA_AUTH_TOTP_ISSUER", "EnvIssuer")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 8443, cfg.Server.Port)
	require.Equal(t, "EnvIssuer", cfg.Auth.TOTP.Issuer)
}

func TestDatabaseConnectionSQLite(t *testing.T) {
	cfg := DatabaseConfig{Driver: "sqlite", Path: "/tmp/x.sqlite"}
	conn := cfg.Connection()
	require.Equal(t, "sqlite", conn.Driver)
	require.Equal(t, "/tmp/x.sqlite", conn.Path)
	require.Empty(t, conn.Host)
}
