package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vvka-141/sqlpool/internal/logging"
	"github.com/vvka-141/sqlpool/internal/retry"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// ConnectionFactory opens exactly one raw connection per call and wraps it as
// a PooledConnection. It never retries: failures come back classified as
// *sqlpool.AuthError (permanent) or *sqlpool.ConnectError.
type ConnectionFactory struct {
	driver sqlpool.Driver
	logger sqlpool.Logger
	creds  *credentialResolver
}

// FactoryOption configures a ConnectionFactory.
type FactoryOption func(*factoryConfig)

type factoryConfig struct {
	tokenProvider TokenProviderFunc
	dialer        func(ctx context.Context) (Dialer, error)
}

// WithTokenProvider overrides how AWS and Azure token providers are built.
func WithTokenProvider(fn TokenProviderFunc) FactoryOption {
	return func(c *factoryConfig) { c.tokenProvider = fn }
}

// WithCloudSQLDialer overrides how the Cloud SQL dialer is created.
func WithCloudSQLDialer(fn func(ctx context.Context) (Dialer, error)) FactoryOption {
	return func(c *factoryConfig) { c.dialer = fn }
}

// NewConnectionFactory creates a factory for driver. A nil logger discards output.
func NewConnectionFactory(driver sqlpool.Driver, logger sqlpool.Logger, opts ...FactoryOption) *ConnectionFactory {
	if driver == nil {
		panic("driver cannot be nil")
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	cfg := factoryConfig{
		tokenProvider: defaultTokenProvider,
		dialer:        newCloudSQLDialer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &ConnectionFactory{
		driver: driver,
		logger: logger,
		creds:  newCredentialResolver(cfg.tokenProvider, cfg.dialer, logger),
	}
}

// Driver returns the driver the factory opens connections with.
func (f *ConnectionFactory) Driver() sqlpool.Driver { return f.driver }

// Open establishes one connection for params.
func (f *ConnectionFactory) Open(ctx context.Context, params sqlpool.ConnectionParameters) (*sqlpool.PooledConnection, error) {
	params = params.Normalize()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	// The pool key is taken before credentials are filled in, so a rotated
	// token keeps the connection in the same sub-pool.
	fp := params.Fingerprint()

	resolved, err := f.creds.resolve(ctx, params)
	if err != nil {
		return nil, f.classifyCredentialError(ctx, params, err)
	}
	if resolved.ConnectTimeout == 0 {
		resolved.ConnectTimeout = sqlpool.DefaultConnectTimeout
	}

	f.logger.Verbose("Opening %s connection to %s as %q", f.driver.Name(), params.Address(), params.Username)
	raw, err := f.driver.Open(ctx, resolved)
	if err != nil {
		return nil, f.classifyOpenError(ctx, params, err)
	}
	return sqlpool.NewPooledConnection(raw, params, fp), nil
}

// Close releases shared resources such as the Cloud SQL dialer.
func (f *ConnectionFactory) Close() error {
	return f.creds.Close()
}

func (f *ConnectionFactory) classifyOpenError(ctx context.Context, params sqlpool.ConnectionParameters, err error) error {
	if ctxErr := contextError(ctx, err); ctxErr != nil {
		return ctxErr
	}
	c := f.driver.Classifier()
	if c.IsAuthFailure(err) {
		return &sqlpool.AuthError{Username: params.Username, Err: wrapConnectionError(f.driver.Name(), params, err)}
	}
	return &sqlpool.ConnectError{
		Address:   params.Address(),
		Transient: c.IsTransientOpen(err),
		Err:       wrapConnectionError(f.driver.Name(), params, err),
	}
}

// classifyCredentialError treats an unreachable identity endpoint as transient.
// Anything else (no credentials, rejected secret) will not fix itself.
func (f *ConnectionFactory) classifyCredentialError(ctx context.Context, params sqlpool.ConnectionParameters, err error) error {
	if ctxErr := contextError(ctx, err); ctxErr != nil {
		return ctxErr
	}
	if retry.IsNetworkError(err) || retry.IsConnectionMessage(err) {
		return &sqlpool.ConnectError{Address: params.Address(), Transient: true, Err: err}
	}
	return &sqlpool.AuthError{Username: params.Username, Err: err}
}

// contextError reports a failure caused by the caller giving up. It is
// returned as is so the retry loop stops.
func contextError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("open aborted: %w", err)
	}
	return nil
}

// wrapConnectionError wraps raw driver errors with actionable guidance.
func wrapConnectionError(driver string, params sqlpool.ConnectionParameters, err error) error {
	errStr := strings.ToLower(err.Error())
	addr := params.Address()
	probe := fmt.Sprintf("mysqladmin ping -h %s -P %d", params.Host, params.Port)
	if driver != "mysql" {
		probe = fmt.Sprintf("pg_isready -h %s -p %d", params.Host, params.Port)
	}

	switch {
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "actively refused"):
		return fmt.Errorf(`connection refused to %s

Possible causes:
  - The server is not running (check: %s)
  - Wrong host or port
  - Firewall blocking the connection

Original error: %w`, addr, probe, err)

	case strings.Contains(errStr, "no such host"):
		return fmt.Errorf(`cannot resolve host "%s"

Possible causes:
  - Hostname is misspelled
  - DNS is not configured or reachable

Original error: %w`, params.Host, err)

	case strings.Contains(errStr, "access denied") || strings.Contains(errStr, "password authentication failed"):
		return fmt.Errorf(`authentication failed for user "%s"

Possible causes:
  - Wrong password (check $MYSQL_PWD / $PGPASSWORD)
  - Wrong username
  - Expired IAM token or missing database grant

Original error: %w`, params.Username, err)

	case strings.Contains(errStr, "unknown database") || strings.Contains(errStr, "does not exist"):
		return fmt.Errorf(`database "%s" does not exist

Original error: %w`, params.Database, err)

	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out"):
		return fmt.Errorf(`connection timed out to %s

Possible causes:
  - Server is overloaded or unresponsive
  - Firewall silently dropping packets
  - connect_timeout too low (currently %v)

Original error: %w`, addr, connectTimeout(params), err)

	case strings.Contains(errStr, "tls") || strings.Contains(errStr, "ssl") || strings.Contains(errStr, "x509"):
		return fmt.Errorf(`TLS connection error

Possible causes:
  - Server requires TLS but --sslmode is wrong
  - Certificate verification failed (check --sslrootcert)
  - Client certificates missing (check --sslcert, --sslkey)

Original error: %w`, err)

	case strings.Contains(errStr, "too many connections"):
		return fmt.Errorf(`too many connections to %s

Possible causes:
  - Server connection limit reached
  - Other clients holding connections

Original error: %w`, addr, err)

	default:
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
}

func connectTimeout(p sqlpool.ConnectionParameters) time.Duration {
	if p.ConnectTimeout == 0 {
		return sqlpool.DefaultConnectTimeout
	}
	return p.ConnectTimeout
}
