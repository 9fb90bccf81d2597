package postgres

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

func TestConnString(t *testing.T) {
	p := sqlpool.ConnectionParameters{
		Host:     "db.internal",
		Username: "app",
		Password: "never-rendered",
		Database: "my db",
		TLS:      sqlpool.TLSOptions{Mode: "require"},
	}

	got := ConnString(p)

	assert.Equal(t, "connect_timeout=10 dbname='my db' host=db.internal port=5432 sslmode=require user=app", got)
	assert.NotContains(t, got, "never-rendered")
}

func TestConnString_Quoting(t *testing.T) {
	assert.Equal(t, `''`, quote(""))
	assert.Equal(t, `'it\'s'`, quote("it's"))
	assert.Equal(t, `'a\\b'`, quote(`a\b`))
	assert.Equal(t, "plain", quote("plain"))
}

func TestSSLMode(t *testing.T) {
	tests := map[string]string{
		"":            "prefer",
		"false":       "disable",
		"preferred":   "prefer",
		"true":        "verify-full",
		"skip-verify": "require",
		"verify-ca":   "verify-ca",
		"Disable":     "disable",
	}
	for in, want := range tests {
		assert.Equal(t, want, sslMode(sqlpool.ConnectionParameters{TLS: sqlpool.TLSOptions{Mode: in}}), in)
	}

	google := sqlpool.ConnectionParameters{AuthMethod: sqlpool.AuthMethodGoogleIAM, TLS: sqlpool.TLSOptions{Mode: "require"}}.
		WithDial(func(context.Context, string, string) (net.Conn, error) { return nil, net.ErrClosed })
	assert.Equal(t, "disable", sslMode(google))
}

func TestConfig(t *testing.T) {
	p := sqlpool.ConnectionParameters{
		Host:           "db.internal",
		Port:           6543,
		Username:       "app",
		Password:       "p@ss word",
		Database:       "orders",
		ConnectTimeout: 3 * time.Second,
		TLS:            sqlpool.TLSOptions{Mode: "disable"},
		Options:        map[string]any{"application_name": "sqlpool", "statement_timeout": 5000},
	}

	cfg, err := Config(p)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, uint16(6543), cfg.Port)
	assert.Equal(t, "app", cfg.User)
	assert.Equal(t, "p@ss word", cfg.Password)
	assert.Equal(t, "orders", cfg.Database)
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)
	assert.Nil(t, cfg.TLSConfig)
	assert.Equal(t, "sqlpool", cfg.RuntimeParams["application_name"])
	assert.Equal(t, "5000", cfg.RuntimeParams["statement_timeout"])
}

func TestConfig_Dial(t *testing.T) {
	called := false
	p := sqlpool.ConnectionParameters{Host: "db", TLS: sqlpool.TLSOptions{Mode: "disable"}}.
		WithDial(func(ctx context.Context, network, addr string) (net.Conn, error) {
			called = true
			return nil, net.ErrClosed
		})

	cfg, err := Config(p)
	require.NoError(t, err)
	require.NotNil(t, cfg.DialFunc)

	_, _ = cfg.DialFunc(context.Background(), "tcp", "db:5432")
	assert.True(t, called)
}

func TestConfig_InvalidSSLMode(t *testing.T) {
	_, err := Config(sqlpool.ConnectionParameters{Host: "db", TLS: sqlpool.TLSOptions{Mode: "sometimes"}})
	assert.ErrorIs(t, err, sqlpool.ErrInvalidConfig)
}

func TestDriver_Name(t *testing.T) {
	d, err := New(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Name, d.Name())
	assert.NotNil(t, d.Classifier())
}
