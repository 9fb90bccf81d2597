package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/sqlpool/internal/config"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

func TestConnFlags_IsEmpty(t *testing.T) {
	tests := []struct {
		name  string
		flags ConnFlags
		want  bool
	}{
		{"empty flags", ConnFlags{}, true},
		{"only host set", ConnFlags{Host: "localhost"}, false},
		{"only port set", ConnFlags{Port: 3306}, false},
		{"only socket set", ConnFlags{Socket: "/tmp/mysql.sock"}, false},
		{"only username set", ConnFlags{Username: "root"}, false},
		{"only sslmode set", ConnFlags{SSLMode: "require"}, false},
		{"only database set", ConnFlags{Database: "app"}, true},
		{"only driver set", ConnFlags{Driver: "postgres"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.flags.IsEmpty())
		})
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MYSQL_HOST", "mysql.env")
	t.Setenv("MYSQL_TCP_PORT", "3307")
	t.Setenv("MYSQL_PWD", "envpass")
	t.Setenv("PGHOST", "pg.env")
	t.Setenv("SQLPOOL_CONNECTION_STRING", "mysql://x@y/z")
	t.Setenv("USER", "alice")
	t.Setenv("AZURE_TENANT_ID", "tenant")

	env := LoadFromEnvironment()

	assert.Equal(t, "mysql.env", env.MYSQL_HOST)
	assert.Equal(t, "3307", env.MYSQL_TCP_PORT)
	assert.Equal(t, "envpass", env.MYSQL_PWD)
	assert.Equal(t, "pg.env", env.PGHOST)
	assert.Equal(t, "mysql://x@y/z", env.SQLPOOL_CONNECTION_STRING)
	assert.Equal(t, "alice", env.USER)
	assert.True(t, env.HasAzureCredentials())
}

func TestResolve_Defaults(t *testing.T) {
	driver, p, err := ResolveConnectionParams(nil, nil, &EnvVars{USER: "alice"}, nil)
	require.NoError(t, err)

	assert.Equal(t, DriverMySQL, driver)
	assert.Equal(t, "localhost", p.Host)
	assert.Equal(t, sqlpool.DefaultMySQLPort, p.Port)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, sqlpool.AuthMethodStandard, p.AuthMethod)
}

func TestResolve_PostgresDefaults(t *testing.T) {
	driver, p, err := ResolveConnectionParams(&ConnFlags{Driver: "postgresql"}, nil, &EnvVars{}, nil)
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, driver)
	assert.Equal(t, sqlpool.DefaultPostgresPort, p.Port)
}

func TestResolve_Precedence(t *testing.T) {
	project := &config.ProjectConfig{
		Connection: config.ConnectionConfig{
			Host:           "yaml-host",
			Port:           3310,
			Username:       "yaml-user",
			Database:       "yaml-db",
			SSLMode:        "preferred",
			ConnectTimeout: "3s",
			Options:        map[string]any{"parseTime": true},
		},
	}
	env := &EnvVars{MYSQL_HOST: "env-host", MYSQL_TCP_PORT: "3320", MYSQL_PWD: "envpass", USER: "os-user"}

	t.Run("flags beat env and yaml", func(t *testing.T) {
		_, p, err := ResolveConnectionParams(&ConnFlags{Host: "flag-host", Port: 3330, Username: "flag-user", Database: "flag-db"}, nil, env, project)
		require.NoError(t, err)
		assert.Equal(t, "flag-host", p.Host)
		assert.Equal(t, 3330, p.Port)
		assert.Equal(t, "flag-user", p.Username)
		assert.Equal(t, "flag-db", p.Database)
		assert.Equal(t, "envpass", p.Password)
	})

	t.Run("env beats yaml", func(t *testing.T) {
		_, p, err := ResolveConnectionParams(nil, nil, env, project)
		require.NoError(t, err)
		assert.Equal(t, "env-host", p.Host)
		assert.Equal(t, 3320, p.Port)
		assert.Equal(t, "yaml-user", p.Username)
	})

	t.Run("yaml beats defaults", func(t *testing.T) {
		_, p, err := ResolveConnectionParams(nil, nil, &EnvVars{}, project)
		require.NoError(t, err)
		assert.Equal(t, "yaml-host", p.Host)
		assert.Equal(t, 3310, p.Port)
		assert.Equal(t, "yaml-db", p.Database)
		assert.Equal(t, "preferred", p.TLS.Mode)
		assert.Equal(t, 3*time.Second, p.ConnectTimeout)
		assert.Equal(t, true, p.Options["parseTime"])
	})
}

func TestResolve_SocketFromEnvOverridesYamlHost(t *testing.T) {
	project := &config.ProjectConfig{Connection: config.ConnectionConfig{Host: "yaml-host"}}
	_, p, err := ResolveConnectionParams(nil, nil, &EnvVars{MYSQL_UNIX_PORT: "/tmp/mysql.sock"}, project)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/mysql.sock", p.Socket)
	assert.Empty(t, p.Host)
	assert.Zero(t, p.Port)
}

func TestResolve_ConnectionString(t *testing.T) {
	t.Run("flag", func(t *testing.T) {
		driver, p, err := ResolveConnectionParams(&ConnFlags{ConnectionString: "postgres://app@pg:6432/orders"}, nil, &EnvVars{PGPASSWORD: "pgpass"}, nil)
		require.NoError(t, err)
		assert.Equal(t, DriverPostgres, driver)
		assert.Equal(t, "pg", p.Host)
		assert.Equal(t, 6432, p.Port)
		assert.Equal(t, "orders", p.Database)
		assert.Equal(t, "pgpass", p.Password, "password falls back to env")
	})

	t.Run("env var", func(t *testing.T) {
		driver, p, err := ResolveConnectionParams(nil, nil, &EnvVars{DATABASE_URL: "mysql://root@db/app"}, nil)
		require.NoError(t, err)
		assert.Equal(t, DriverMySQL, driver)
		assert.Equal(t, "db", p.Host)
		assert.Equal(t, sqlpool.DefaultMySQLPort, p.Port)
	})

	t.Run("sqlpool variable wins over DATABASE_URL", func(t *testing.T) {
		_, p, err := ResolveConnectionParams(nil, nil, &EnvVars{
			SQLPOOL_CONNECTION_STRING: "mysql://root@first/app",
			DATABASE_URL:              "mysql://root@second/app",
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, "first", p.Host)
	})

	t.Run("granular flags ignore env connection string", func(t *testing.T) {
		_, p, err := ResolveConnectionParams(&ConnFlags{Host: "flag-host"}, nil, &EnvVars{DATABASE_URL: "mysql://root@db/app"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "flag-host", p.Host)
	})

	t.Run("database flag overrides", func(t *testing.T) {
		_, p, err := ResolveConnectionParams(&ConnFlags{ConnectionString: "mysql://root@db/app", Database: "other"}, nil, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "other", p.Database)
	})
}

func TestResolve_Conflicts(t *testing.T) {
	t.Run("connection string and granular flags", func(t *testing.T) {
		_, _, err := ResolveConnectionParams(&ConnFlags{ConnectionString: "mysql://db/app", Host: "other"}, nil, nil, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, sqlpool.ErrInvalidConfig)
		assert.Contains(t, err.Error(), "cannot specify both")
	})

	t.Run("driver contradicts scheme", func(t *testing.T) {
		_, _, err := ResolveConnectionParams(&ConnFlags{ConnectionString: "mysql://db/app", Driver: "postgres"}, nil, nil, nil)
		assert.ErrorIs(t, err, sqlpool.ErrInvalidConfig)
	})

	t.Run("bad env port", func(t *testing.T) {
		_, _, err := ResolveConnectionParams(nil, nil, &EnvVars{MYSQL_TCP_PORT: "abc"}, nil)
		assert.ErrorIs(t, err, sqlpool.ErrInvalidConfig)
	})

	t.Run("bad connection string", func(t *testing.T) {
		_, _, err := ResolveConnectionParams(&ConnFlags{ConnectionString: "nonsense"}, nil, nil, nil)
		assert.ErrorIs(t, err, sqlpool.ErrInvalidConfig)
	})
}

func TestResolve_DriverFromConfig(t *testing.T) {
	driver, p, err := ResolveConnectionParams(nil, nil, &EnvVars{PGHOST: "pg.env", MYSQL_HOST: "mysql.env"}, &config.ProjectConfig{Driver: "postgres"})
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, driver)
	assert.Equal(t, "pg.env", p.Host, "PG* variables apply to postgres")
}

func TestResolve_AzureAuth(t *testing.T) {
	env := &EnvVars{AZURE_TENANT_ID: "env-tenant", AZURE_CLIENT_ID: "env-client", AZURE_CLIENT_SECRET: "secret"}

	_, p, err := ResolveConnectionParams(&ConnFlags{Username: "aad-user"}, &AzureFlags{ClientID: "flag-client"}, env, nil)
	require.NoError(t, err)

	assert.Equal(t, sqlpool.AuthMethodAzureEntraID, p.AuthMethod)
	assert.Equal(t, "env-tenant", p.AzureTenantID)
	assert.Equal(t, "flag-client", p.AzureClientID)
	assert.Equal(t, "secret", p.AzureClientSecret)
}

func TestResolve_ExplicitCloudMethodBeatsAzureEnv(t *testing.T) {
	env := &EnvVars{AZURE_TENANT_ID: "tenant", AWS_REGION: "us-east-1"}

	_, p, err := ResolveConnectionParams(&ConnFlags{Host: "rds", Username: "iam", AuthMethod: "aws"}, nil, env, nil)
	require.NoError(t, err)

	assert.Equal(t, sqlpool.AuthMethodAWSIAM, p.AuthMethod)
	assert.Equal(t, "us-east-1", p.AWSRegion)
	assert.Empty(t, p.AzureTenantID)
}

func TestResolve_GoogleInstanceWithoutHost(t *testing.T) {
	_, p, err := ResolveConnectionParams(&ConnFlags{Username: "sa@project.iam", AuthMethod: "google", GoogleInstance: "p:r:i"}, nil, &EnvVars{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "p:r:i", p.GoogleInstance)
	assert.Empty(t, p.Host)
}

func TestResolve_ValidationErrors(t *testing.T) {
	_, _, err := ResolveConnectionParams(&ConnFlags{Username: "iam", AuthMethod: "aws"}, nil, &EnvVars{}, nil)
	assert.ErrorIs(t, err, sqlpool.ErrInvalidConfig, "AWS without region")
}
