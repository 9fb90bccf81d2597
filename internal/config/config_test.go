package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0644))
	return dir
}

func TestLoad_AllFields(t *testing.T) {
	dir := writeConfig(t, `driver: mysql
connection:
  host: myhost
  port: 3307
  username: myuser
  database: mydb
  charset: latin1
  sslmode: require
  sslcert: /path/client.crt
  sslkey: /path/client.key
  sslrootcert: /path/ca.crt
  connect_timeout: 3s
  options:
    parseTime: "true"

pool:
  max_pool_size: 10
  max_retries: 4
  base_backoff_seconds: 0.5
  max_backoff: 4s
  health_check_enabled: false
  health_check_timeout: 2s
  connection_lost_codes: ["2006", "2013"]

metrics:
  addr: ":9102"
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "mysql", cfg.Driver)
	assert.Equal(t, "myhost", cfg.Connection.Host)
	assert.Equal(t, 3307, cfg.Connection.Port)
	assert.Equal(t, "myuser", cfg.Connection.Username)
	assert.Equal(t, "mydb", cfg.Connection.Database)
	assert.Equal(t, "latin1", cfg.Connection.Charset)
	assert.Equal(t, "require", cfg.Connection.SSLMode)
	assert.Equal(t, "/path/client.crt", cfg.Connection.SSLCert)
	assert.Equal(t, "/path/client.key", cfg.Connection.SSLKey)
	assert.Equal(t, "/path/ca.crt", cfg.Connection.SSLRootCert)
	assert.Equal(t, "3s", cfg.Connection.ConnectTimeout)
	assert.Equal(t, "true", cfg.Connection.Options["parseTime"])
	assert.Equal(t, ":9102", cfg.Metrics.Addr)

	opts, err := cfg.Pool.Options()
	require.NoError(t, err)
	assert.Equal(t, 10, opts.MaxPoolSize)
	assert.Equal(t, 4, opts.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, opts.BaseBackoff)
	assert.Equal(t, 4*time.Second, opts.MaxBackoff)
	assert.True(t, opts.DisableHealthCheck)
	assert.Equal(t, 2*time.Second, opts.HealthCheckTimeout)
	assert.Equal(t, []string{"2006", "2013"}, opts.ConnectionLostCodes)
}

func TestLoad_MinimalYAML(t *testing.T) {
	dir := writeConfig(t, `driver: postgres
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	opts, err := cfg.Pool.Options()
	require.NoError(t, err)
	assert.Equal(t, sqlpool.DefaultPoolOptions(), opts)
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := writeConfig(t, "pool: [unclosed")

	_, err := Load(dir)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrConfigNotFound))
}

func TestPoolConfig_Options_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  PoolConfig
	}{
		{"bad max_backoff", PoolConfig{MaxBackoff: "soon"}},
		{"bad timeout", PoolConfig{HealthCheckTimeout: "5 parsecs"}},
		{"negative size", PoolConfig{MaxPoolSize: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.Options()
			assert.ErrorIs(t, err, sqlpool.ErrInvalidConfig)
		})
	}
}
