package mysql

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// Name is the driver identifier used in configuration.
const Name = "mysql"

// Driver opens MySQL connections. It is safe for concurrent use.
type Driver struct {
	classifier *Classifier
	openDB     func(cfg *gomysql.Config) (*sql.DB, error)
}

var _ sqlpool.Driver = (*Driver)(nil)

// Option configures a Driver.
type Option func(*Driver)

// WithOpenDB replaces the function that turns a config into a *sql.DB.
// Tests use it to hand out sqlmock databases.
func WithOpenDB(fn func(cfg *gomysql.Config) (*sql.DB, error)) Option {
	return func(d *Driver) {
		d.openDB = fn
	}
}

// New creates a MySQL driver classifying errors with the given code sets.
func New(lostCodes, integrityCodes []string, opts ...Option) (*Driver, error) {
	classifier, err := NewClassifier(lostCodes, integrityCodes)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		classifier: classifier,
		openDB:     openDB,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func openDB(cfg *gomysql.Config) (*sql.DB, error) {
	connector, err := gomysql.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	return sql.OpenDB(connector), nil
}

// Name returns "mysql".
func (d *Driver) Name() string { return Name }

// Classifier returns the error classifier.
func (d *Driver) Classifier() sqlpool.Classifier { return d.classifier }

// Open establishes exactly one connection.
func (d *Driver) Open(ctx context.Context, params sqlpool.ConnectionParameters) (sqlpool.RawConn, error) {
	cfg, err := Config(params)
	if err != nil {
		return nil, err
	}

	db, err := d.openDB(cfg)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &rawConn{db: db, conn: conn}, nil
}

// Config translates connection parameters into a go-sql-driver config.
//
// Options are applied through the driver's own DSN parser, so every DSN
// parameter it understands (parseTime, loc, readTimeout, ...) is accepted;
// unknown keys become session variables. clientFoundRows defaults to true.
func Config(params sqlpool.ConnectionParameters) (*gomysql.Config, error) {
	p := params.Normalize()
	if p.Socket == "" && p.Port == 0 {
		p.Port = sqlpool.DefaultMySQLPort
	}

	charset := p.Charset
	if charset == "" {
		charset = sqlpool.DefaultMySQLCharset
	}

	query := url.Values{}
	query.Set("charset", charset)
	for k, v := range p.Options {
		query.Set(k, fmt.Sprint(v))
	}

	cfg, err := gomysql.ParseDSN("/?" + query.Encode())
	if err != nil {
		return nil, fmt.Errorf("mysql options: %v: %w", err, sqlpool.ErrInvalidConfig)
	}

	cfg.User = p.Username
	cfg.Passwd = p.Password
	cfg.DBName = p.Database
	cfg.Net = p.Network()
	cfg.Addr = p.Address()

	cfg.Timeout = p.ConnectTimeout
	if cfg.Timeout == 0 {
		cfg.Timeout = sqlpool.DefaultConnectTimeout
	}
	if _, ok := p.Options["clientFoundRows"]; !ok {
		cfg.ClientFoundRows = true
	}

	switch p.AuthMethod {
	case sqlpool.AuthMethodAWSIAM, sqlpool.AuthMethodAzureEntraID:
		// Tokens travel through the cleartext plugin and need TLS.
		cfg.AllowCleartextPasswords = true
		if !p.TLS.Enabled() {
			p.TLS.Mode = "preferred"
		}
	}

	key := "sqlpool-" + params.Fingerprint().Short()

	if err := applyTLS(cfg, p, key); err != nil {
		return nil, err
	}

	if p.Dial != nil {
		dial := p.Dial
		network := p.Network()
		gomysql.RegisterDialContext(key, func(ctx context.Context, addr string) (net.Conn, error) {
			return dial(ctx, network, addr)
		})
		cfg.Net = key
	}

	return cfg, nil
}

func applyTLS(cfg *gomysql.Config, p sqlpool.ConnectionParameters, key string) error {
	mode := strings.ToLower(p.TLS.Mode)
	custom := p.TLS.CAFile != "" || p.TLS.CertFile != "" || p.TLS.ServerName != ""

	switch mode {
	case "", "disable", "false":
		cfg.TLSConfig = "false"
		return nil
	case "prefer", "preferred":
		if !custom {
			cfg.TLSConfig = "preferred"
			return nil
		}
	case "require", "skip-verify":
		if !custom {
			cfg.TLSConfig = "skip-verify"
			return nil
		}
	case "true", "verify-ca", "verify-full":
		if !custom {
			cfg.TLSConfig = "true"
			return nil
		}
	default:
		return fmt.Errorf("tls mode %q: %w", p.TLS.Mode, sqlpool.ErrInvalidConfig)
	}

	tlsCfg, err := buildTLSConfig(p.TLS, mode)
	if err != nil {
		return err
	}
	if err := gomysql.RegisterTLSConfig(key, tlsCfg); err != nil {
		return fmt.Errorf("register tls config: %w", err)
	}
	cfg.TLSConfig = key
	if mode == "prefer" || mode == "preferred" {
		cfg.AllowFallbackToPlaintext = true
	}
	return nil
}

func buildTLSConfig(opts sqlpool.TLSOptions, mode string) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		ServerName: opts.ServerName,
		MinVersion: tls.VersionTLS12,
	}

	switch mode {
	case "prefer", "preferred", "require", "skip-verify":
		tlsCfg.InsecureSkipVerify = true
	}

	if opts.CAFile != "" {
		pem, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %v: %w", err, sqlpool.ErrInvalidConfig)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA file %s holds no PEM certificates: %w", opts.CAFile, sqlpool.ErrInvalidConfig)
		}
		tlsCfg.RootCAs = pool
	}

	if opts.CertFile != "" || opts.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %v: %w", err, sqlpool.ErrInvalidConfig)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	return tlsCfg, nil
}

// rawConn pins one connection of a single-connection *sql.DB.
type rawConn struct {
	db   *sql.DB
	conn *sql.Conn
}

func (c *rawConn) Exec(ctx context.Context, stmt string, args ...any) (sqlpool.Result, error) {
	res, err := c.conn.ExecContext(ctx, stmt, args...)
	if err != nil {
		return sqlpool.Result{}, err
	}

	var out sqlpool.Result
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
	}
	return out, nil
}

func (c *rawConn) Query(ctx context.Context, stmt string, args ...any) (sqlpool.Result, error) {
	rows, err := c.conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return sqlpool.Result{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return sqlpool.Result{}, err
	}

	out := sqlpool.Result{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return sqlpool.Result{}, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out.Rows = append(out.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return sqlpool.Result{}, err
	}
	return out, nil
}

func (c *rawConn) Close() error {
	connErr := c.conn.Close()
	dbErr := c.db.Close()
	if connErr != nil && connErr != sql.ErrConnDone {
		return connErr
	}
	return dbErr
}

