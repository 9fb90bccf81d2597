package postgres

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// Name is the driver identifier used in configuration.
const Name = "postgres"

// closeTimeout bounds the graceful Terminate message on Close.
const closeTimeout = 5 * time.Second

// Driver opens PostgreSQL connections. It is safe for concurrent use.
type Driver struct {
	classifier *Classifier
}

var _ sqlpool.Driver = (*Driver)(nil)

// New creates a PostgreSQL driver classifying errors with the given SQLSTATE sets.
func New(lostCodes, integrityCodes []string) (*Driver, error) {
	classifier, err := NewClassifier(lostCodes, integrityCodes)
	if err != nil {
		return nil, err
	}
	return &Driver{classifier: classifier}, nil
}

// Name returns "postgres".
func (d *Driver) Name() string { return Name }

// Classifier returns the error classifier.
func (d *Driver) Classifier() sqlpool.Classifier { return d.classifier }

// Open establishes exactly one connection.
func (d *Driver) Open(ctx context.Context, params sqlpool.ConnectionParameters) (sqlpool.RawConn, error) {
	cfg, err := Config(params)
	if err != nil {
		return nil, err
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &rawConn{conn: conn}, nil
}

// Config translates connection parameters into a pgx config.
// Options are sent as run-time parameters (application_name, search_path, ...).
func Config(params sqlpool.ConnectionParameters) (*pgx.ConnConfig, error) {
	p := params.Normalize()

	cfg, err := pgx.ParseConfig(ConnString(p))
	if err != nil {
		return nil, fmt.Errorf("postgres connection settings: %v: %w", err, sqlpool.ErrInvalidConfig)
	}

	// An empty password keeps whatever pgx found in the passfile.
	if p.Password != "" {
		cfg.Password = p.Password
	}
	if cfg.TLSConfig != nil && p.TLS.ServerName != "" {
		cfg.TLSConfig.ServerName = p.TLS.ServerName
	}
	if p.Dial != nil {
		cfg.DialFunc = pgconn.DialFunc(p.Dial)
	}
	for k, v := range p.Options {
		cfg.RuntimeParams[k] = fmt.Sprint(v)
	}
	return cfg, nil
}

// ConnString renders the keyword/value form of params, without the password.
func ConnString(p sqlpool.ConnectionParameters) string {
	kv := map[string]string{}

	switch {
	case p.Socket != "":
		kv["host"] = p.Socket
	case p.Host != "":
		kv["host"] = p.Host
	}
	port := p.Port
	if port == 0 {
		port = sqlpool.DefaultPostgresPort
	}
	kv["port"] = strconv.Itoa(port)

	if p.Username != "" {
		kv["user"] = p.Username
	}
	if p.Database != "" {
		kv["dbname"] = p.Database
	}
	if p.Charset != "" {
		kv["client_encoding"] = p.Charset
	}

	timeout := p.ConnectTimeout
	if timeout == 0 {
		timeout = sqlpool.DefaultConnectTimeout
	}
	secs := int(timeout.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	kv["connect_timeout"] = strconv.Itoa(secs)

	kv["sslmode"] = sslMode(p)
	if p.TLS.CAFile != "" {
		kv["sslrootcert"] = p.TLS.CAFile
	}
	if p.TLS.CertFile != "" {
		kv["sslcert"] = p.TLS.CertFile
	}
	if p.TLS.KeyFile != "" {
		kv["sslkey"] = p.TLS.KeyFile
	}

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+quote(kv[k]))
	}
	return strings.Join(parts, " ")
}

// sslMode maps the shared TLS vocabulary onto libpq sslmode values.
func sslMode(p sqlpool.ConnectionParameters) string {
	// The Cloud SQL dialer encrypts the transport itself.
	if p.Dial != nil && p.AuthMethod == sqlpool.AuthMethodGoogleIAM {
		return "disable"
	}
	switch strings.ToLower(p.TLS.Mode) {
	case "":
		return "prefer"
	case "false":
		return "disable"
	case "preferred":
		return "prefer"
	case "true":
		return "verify-full"
	case "skip-verify":
		return "require"
	}
	return strings.ToLower(p.TLS.Mode)
}

func quote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

type rawConn struct {
	conn *pgx.Conn
}

func (c *rawConn) Exec(ctx context.Context, stmt string, args ...any) (sqlpool.Result, error) {
	tag, err := c.conn.Exec(ctx, stmt, args...)
	if err != nil {
		return sqlpool.Result{}, err
	}
	return sqlpool.Result{RowsAffected: tag.RowsAffected()}, nil
}

func (c *rawConn) Query(ctx context.Context, stmt string, args ...any) (sqlpool.Result, error) {
	rows, err := c.conn.Query(ctx, stmt, args...)
	if err != nil {
		return sqlpool.Result{}, err
	}
	defer rows.Close()

	var out sqlpool.Result
	for _, fd := range rows.FieldDescriptions() {
		out.Columns = append(out.Columns, fd.Name)
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return sqlpool.Result{}, err
		}
		out.Rows = append(out.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return sqlpool.Result{}, err
	}
	out.RowsAffected = rows.CommandTag().RowsAffected()
	return out, nil
}

func (c *rawConn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return c.conn.Close(ctx)
}
