package testinfra

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

const (
	PostgresImage    = "postgres:17"
	PostgresUser     = "postgres"
	PostgresPassword = "postgres"
	PostgresDB       = "postgres"

	MySQLImage        = "mysql:8.4"
	MySQLUser         = "sqlpool"
	MySQLPassword     = "sqlpool"
	MySQLRootPassword = "root"
	MySQLDB           = "sqlpool"

	containerCertDir  = "/tmp/testcontainers-go/postgres"
	sslEntrypointPath = "/usr/local/bin/docker-entrypoint-ssl.bash"
)

// PostgresContainer is a started PostgreSQL server and the parameters that
// reach it from the host.
type PostgresContainer struct {
	*postgres.PostgresContainer
	Params sqlpool.ConnectionParameters
}

// MySQLContainer is a started MySQL server and the parameters that reach it
// from the host.
type MySQLContainer struct {
	testcontainers.Container
	Params sqlpool.ConnectionParameters
}

func postgresWait() testcontainers.CustomizeRequestOption {
	return testcontainers.WithWaitStrategy(
		wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	)
}

// StartPostgres runs a PostgreSQL server that offers TLS with the bundle's
// server certificate next to plain password logins.
func StartPostgres(ctx context.Context, certPaths *CertPaths) (*PostgresContainer, error) {
	confPath, err := writeSSLConfig(filepath.Dir(certPaths.CACert))
	if err != nil {
		return nil, err
	}

	return runPostgres(ctx, "start postgres",
		postgres.WithSSLCert(certPaths.CACert, certPaths.ServerCert, certPaths.ServerKey),
		postgres.WithConfigFile(confPath),
		// WithSSLCert sets entrypoint to "sh" which fails on Debian (dash doesn't support pipefail).
		testcontainers.WithEntrypoint("bash", sslEntrypointPath),
	)
}

// StartMTLSPostgres runs a PostgreSQL server that only accepts client
// certificates signed by the bundle's CA.
func StartMTLSPostgres(ctx context.Context, certPaths *CertPaths) (*PostgresContainer, error) {
	dir := filepath.Dir(certPaths.CACert)

	confPath, err := writeSSLConfig(dir)
	if err != nil {
		return nil, err
	}

	initScript, err := writeMTLSInitScript(dir)
	if err != nil {
		return nil, err
	}

	ctr, err := runPostgres(ctx, "start mTLS postgres",
		postgres.WithSSLCert(certPaths.CACert, certPaths.ServerCert, certPaths.ServerKey),
		postgres.WithConfigFile(confPath),
		postgres.WithInitScripts(initScript),
		testcontainers.WithEntrypoint("bash", sslEntrypointPath),
	)
	if err != nil {
		return nil, err
	}
	ctr.Params.Password = ""
	ctr.Params.TLS = sqlpool.TLSOptions{
		Mode:     "verify-ca",
		CAFile:   certPaths.CACert,
		CertFile: certPaths.ClientCert,
		KeyFile:  certPaths.ClientKey,
	}
	return ctr, nil
}

// StartSimplePostgres runs a PostgreSQL server without TLS.
func StartSimplePostgres(ctx context.Context) (*PostgresContainer, error) {
	return runPostgres(ctx, "start postgres")
}

func runPostgres(ctx context.Context, what string, opts ...testcontainers.ContainerCustomizer) (*PostgresContainer, error) {
	opts = append([]testcontainers.ContainerCustomizer{
		postgres.WithUsername(PostgresUser),
		postgres.WithPassword(PostgresPassword),
		postgres.WithDatabase(PostgresDB),
		postgresWait(),
	}, opts...)

	ctr, err := postgres.Run(ctx, PostgresImage, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}

	endpoint, err := ctr.PortEndpoint(ctx, "5432/tcp", "")
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get postgres endpoint: %w", err)
	}
	params, err := hostParams(endpoint)
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, err
	}
	params.Username = PostgresUser
	params.Password = PostgresPassword
	params.Database = PostgresDB
	params.TLS.Mode = "disable"

	return &PostgresContainer{PostgresContainer: ctr, Params: params}, nil
}

// StartMySQL runs a MySQL server with an application user that owns MySQLDB
// and may create further databases.
func StartMySQL(ctx context.Context) (*MySQLContainer, error) {
	initScript, err := writeMySQLGrants()
	if err != nil {
		return nil, err
	}

	req := testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        MySQLImage,
			ExposedPorts: []string{"3306/tcp"},
			Env: map[string]string{
				"MYSQL_ROOT_PASSWORD": MySQLRootPassword,
				"MYSQL_USER":          MySQLUser,
				"MYSQL_PASSWORD":      MySQLPassword,
				"MYSQL_DATABASE":      MySQLDB,
			},
			Files: []testcontainers.ContainerFile{{
				HostFilePath:      initScript,
				ContainerFilePath: "/docker-entrypoint-initdb.d/99-grants.sql",
				FileMode:          0644,
			}},
			WaitingFor: wait.ForAll(
				wait.ForLog("port: 3306  MySQL Community Server"),
				wait.ForListeningPort("3306/tcp"),
			).WithDeadline(120 * time.Second),
		},
		Started: true,
	}

	ctr, err := testcontainers.GenericContainer(ctx, req)
	os.Remove(initScript)
	if err != nil {
		return nil, fmt.Errorf("start mysql: %w", err)
	}

	endpoint, err := ctr.PortEndpoint(ctx, "3306/tcp", "")
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mysql endpoint: %w", err)
	}
	params, err := hostParams(endpoint)
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, err
	}
	params.Username = MySQLUser
	params.Password = MySQLPassword
	params.Database = MySQLDB

	return &MySQLContainer{Container: ctr, Params: params}, nil
}

// hostParams splits a host:port endpoint into connection parameters.
func hostParams(endpoint string) (sqlpool.ConnectionParameters, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return sqlpool.ConnectionParameters{}, fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	p, err := strconv.Atoi(portStr)
	if err != nil {
		return sqlpool.ConnectionParameters{}, fmt.Errorf("parse port %q: %w", portStr, err)
	}
	return sqlpool.ConnectionParameters{Host: host, Port: p, ConnectTimeout: 10 * time.Second}, nil
}

func writeSSLConfig(dir string) (string, error) {
	conf := fmt.Sprintf(`listen_addresses = '*'
ssl = on
ssl_cert_file = '%s/server.cert'
ssl_key_file = '%s/server.key'
ssl_ca_file = '%s/ca_cert.pem'
`, containerCertDir, containerCertDir, containerCertDir)

	path := filepath.Join(dir, "postgresql.conf")
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		return "", fmt.Errorf("write postgresql.conf: %w", err)
	}
	return path, nil
}

func writeMTLSInitScript(dir string) (string, error) {
	script := `#!/bin/bash
cat > "$PGDATA/pg_hba.conf" << 'PGEOF'
local   all all                trust
hostssl all all 0.0.0.0/0      cert clientcert=verify-full
hostssl all all ::/0            cert clientcert=verify-full
PGEOF
`
	path := filepath.Join(dir, "init-mtls.sh")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		return "", fmt.Errorf("write init script: %w", err)
	}
	return path, nil
}

// writeMySQLGrants lets the application user manage databases and see the
// sessions of other users, which KILL needs.
func writeMySQLGrants() (string, error) {
	f, err := os.CreateTemp("", "sqlpool-mysql-grants-*.sql")
	if err != nil {
		return "", fmt.Errorf("create grants script: %w", err)
	}
	defer f.Close()

	script := fmt.Sprintf("GRANT ALL PRIVILEGES ON *.* TO '%s'@'%%' WITH GRANT OPTION;\nFLUSH PRIVILEGES;\n", MySQLUser)
	if _, err := f.WriteString(script); err != nil {
		return "", fmt.Errorf("write grants script: %w", err)
	}
	return f.Name(), nil
}
