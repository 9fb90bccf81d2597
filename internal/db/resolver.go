package db

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/vvka-141/sqlpool/internal/config"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// ConnFlags represents connection parameters from CLI flags.
//
// Note: Password is NOT included as a CLI flag for security reasons.
// Use one of these methods instead:
//  1. $MYSQL_PWD or $PGPASSWORD environment variable
//  2. Connection string with embedded password
//  3. The interactive prompt (--password)
type ConnFlags struct {
	Driver           string
	ConnectionString string
	Host             string
	Port             int
	Socket           string
	Username         string
	Database         string
	SSLMode          string
	AuthMethod       string
	AWSRegion        string
	GoogleInstance   string
}

// IsEmpty returns true if no connection-related granular flags were provided by the user.
// Database, Driver and the cloud auth flags are excluded because they can be
// combined with a connection string.
func (f *ConnFlags) IsEmpty() bool {
	return f.Host == "" && f.Port == 0 && f.Socket == "" && f.Username == "" && f.SSLMode == ""
}

// AzureFlags represents Azure Entra ID CLI flags.
// These override the corresponding AZURE_* environment variables.
// Note: Client secret is NOT included as a CLI flag for security reasons.
// Use AZURE_CLIENT_SECRET environment variable instead.
type AzureFlags struct {
	TenantID string // Overrides AZURE_TENANT_ID
	ClientID string // Overrides AZURE_CLIENT_ID
}

// IsEmpty returns true if no Azure flags were provided.
func (a *AzureFlags) IsEmpty() bool {
	return a == nil || (a.TenantID == "" && a.ClientID == "")
}

// EnvVars holds the environment variables the resolver consults.
// MySQL and PostgreSQL client conventions are both honoured; only the set
// matching the resolved driver is used.
type EnvVars struct {
	SQLPOOL_DRIVER            string
	SQLPOOL_CONNECTION_STRING string
	DATABASE_URL              string // Heroku/Rails convention

	MYSQL_HOST      string
	MYSQL_TCP_PORT  string
	MYSQL_UNIX_PORT string // socket path
	MYSQL_PWD       string

	PGHOST     string
	PGPORT     string
	PGUSER     string
	PGPASSWORD string
	PGDATABASE string
	PGSSLMODE  string

	USER string

	AWS_REGION string

	// Azure Entra ID environment variables (Azure SDK standard names)
	AZURE_TENANT_ID     string
	AZURE_CLIENT_ID     string
	AZURE_CLIENT_SECRET string
}

// LoadFromEnvironment loads database client and cloud provider environment variables.
func LoadFromEnvironment() *EnvVars {
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}
	return &EnvVars{
		SQLPOOL_DRIVER:            os.Getenv("SQLPOOL_DRIVER"),
		SQLPOOL_CONNECTION_STRING: os.Getenv("SQLPOOL_CONNECTION_STRING"),
		DATABASE_URL:              os.Getenv("DATABASE_URL"),
		MYSQL_HOST:                os.Getenv("MYSQL_HOST"),
		MYSQL_TCP_PORT:            os.Getenv("MYSQL_TCP_PORT"),
		MYSQL_UNIX_PORT:           os.Getenv("MYSQL_UNIX_PORT"),
		MYSQL_PWD:                 os.Getenv("MYSQL_PWD"),
		PGHOST:                    os.Getenv("PGHOST"),
		PGPORT:                    os.Getenv("PGPORT"),
		PGUSER:                    os.Getenv("PGUSER"),
		PGPASSWORD:                os.Getenv("PGPASSWORD"),
		PGDATABASE:                os.Getenv("PGDATABASE"),
		PGSSLMODE:                 os.Getenv("PGSSLMODE"),
		USER:                      user,
		AWS_REGION:                os.Getenv("AWS_REGION"),
		AZURE_TENANT_ID:           os.Getenv("AZURE_TENANT_ID"),
		AZURE_CLIENT_ID:           os.Getenv("AZURE_CLIENT_ID"),
		AZURE_CLIENT_SECRET:       os.Getenv("AZURE_CLIENT_SECRET"),
	}
}

// HasAzureCredentials returns true if Azure Entra ID environment variables are set.
func (e *EnvVars) HasAzureCredentials() bool {
	return e.AZURE_TENANT_ID != "" || e.AZURE_CLIENT_ID != ""
}

// connectionString returns the first connection string found in the environment.
func (e *EnvVars) connectionString() string {
	if e.SQLPOOL_CONNECTION_STRING != "" {
		return e.SQLPOOL_CONNECTION_STRING
	}
	return e.DATABASE_URL
}

// driverEnv is the per-driver view of EnvVars.
type driverEnv struct {
	host, port, socket, user, password, database, sslMode string
}

func (e *EnvVars) forDriver(driver string) driverEnv {
	if driver == DriverPostgres {
		return driverEnv{
			host:     e.PGHOST,
			port:     e.PGPORT,
			user:     e.PGUSER,
			password: e.PGPASSWORD,
			database: e.PGDATABASE,
			sslMode:  e.PGSSLMODE,
		}
	}
	return driverEnv{
		host:     e.MYSQL_HOST,
		port:     e.MYSQL_TCP_PORT,
		socket:   e.MYSQL_UNIX_PORT,
		password: e.MYSQL_PWD,
	}
}

// ResolveConnectionParams resolves the driver and connection parameters.
//
// Precedence for each parameter:
//  1. CLI flag (--connection, or granular flags -h, -P, -u, -d)
//  2. Environment variable (SQLPOOL_CONNECTION_STRING / DATABASE_URL, then MYSQL_* or PG*)
//  3. sqlpool.yaml
//  4. Defaults (localhost, the driver's default port, current OS user)
//
// A connection string supplies the parameters it names; environment and
// defaults fill the rest (password, port).
//
// Azure Entra ID Authentication:
// If azureFlags are provided OR Azure environment variables are set (AZURE_TENANT_ID, etc.),
// the AuthMethod is set to AzureEntraID and credentials are attached.
//
// Conflict Detection:
// Returns error if BOTH --connection flag AND granular flags are provided, or
// if --driver contradicts the connection string scheme.
func ResolveConnectionParams(
	flags *ConnFlags,
	azureFlags *AzureFlags,
	envVars *EnvVars,
	projectConfig *config.ProjectConfig,
) (string, sqlpool.ConnectionParameters, error) {
	if flags == nil {
		flags = &ConnFlags{}
	}
	if azureFlags == nil {
		azureFlags = &AzureFlags{}
	}
	if envVars == nil {
		envVars = &EnvVars{}
	}
	var pc config.ProjectConfig
	if projectConfig != nil {
		pc = *projectConfig
	}

	if flags.ConnectionString != "" && !flags.IsEmpty() {
		return "", sqlpool.ConnectionParameters{}, fmt.Errorf(
			"cannot specify both --connection and granular flags (-h, -P, -u, -S, --sslmode)\n"+
				"Choose one approach:\n"+
				"  1. Connection string: --connection \"mysql://user@localhost:3306/app\"\n"+
				"  2. Granular flags: -h localhost -P 3306 -u myuser -d mydb\n"+
				"  3. Environment variables: export MYSQL_HOST=localhost MYSQL_TCP_PORT=3306: %w",
			sqlpool.ErrInvalidConfig,
		)
	}

	connStr := flags.ConnectionString
	if connStr == "" && flags.IsEmpty() {
		connStr = envVars.connectionString()
	}

	var (
		params      sqlpool.ConnectionParameters
		impliedName string
	)
	if connStr != "" {
		var err error
		impliedName, params, err = ParseConnectionString(connStr)
		if err != nil {
			return "", sqlpool.ConnectionParameters{}, fmt.Errorf("invalid connection string: %v: %w", err, sqlpool.ErrInvalidConfig)
		}
	}

	driver, err := resolveDriver(flags.Driver, envVars.SQLPOOL_DRIVER, impliedName, pc.Driver)
	if err != nil {
		return "", sqlpool.ConnectionParameters{}, err
	}
	env := envVars.forDriver(driver)

	if connStr == "" {
		params, err = resolveFromGranularParams(flags, env, pc.Connection)
		if err != nil {
			return "", sqlpool.ConnectionParameters{}, err
		}
	} else {
		if params.Password == "" {
			params.Password = env.password
		}
		if params.TLS.Mode == "" {
			params.TLS.Mode = env.sslMode
		}
	}

	// Database: flag > connection string > env > yaml
	params.Database = firstNonEmpty(flags.Database, params.Database, env.database, pc.Connection.Database)
	if params.Username == "" {
		params.Username = firstNonEmpty(env.user, pc.Connection.Username, envVars.USER)
	}

	if err := applyCloudAuth(&params, flags, envVars, pc.Connection); err != nil {
		return "", sqlpool.ConnectionParameters{}, err
	}
	applyAzureAuth(&params, azureFlags, envVars, pc.Connection)
	applyDefaults(&params, driver)

	if err := params.Validate(); err != nil {
		return "", sqlpool.ConnectionParameters{}, err
	}
	return driver, params, nil
}

// resolveDriver applies flag > env > connection string > yaml > mysql.
// An explicit choice that disagrees with the connection string is an error.
func resolveDriver(flag, env, implied, file string) (string, error) {
	explicit := firstNonEmpty(flag, env)
	if explicit != "" {
		d, err := NormalizeDriver(explicit)
		if err != nil {
			return "", err
		}
		if implied != "" && implied != d {
			return "", fmt.Errorf("driver %q conflicts with a %s connection string: %w", d, implied, sqlpool.ErrInvalidConfig)
		}
		return d, nil
	}
	if implied != "" {
		return implied, nil
	}
	if file != "" {
		return NormalizeDriver(file)
	}
	return DriverMySQL, nil
}

// resolveFromGranularParams builds parameters from flags, environment and sqlpool.yaml.
func resolveFromGranularParams(flags *ConnFlags, env driverEnv, pc config.ConnectionConfig) (sqlpool.ConnectionParameters, error) {
	var p sqlpool.ConnectionParameters

	// Host and socket are taken together from the highest layer that names either.
	switch {
	case flags.Host != "" || flags.Socket != "":
		p.Host, p.Socket = flags.Host, flags.Socket
	case env.host != "" || env.socket != "":
		p.Host, p.Socket = env.host, env.socket
	default:
		p.Host, p.Socket = pc.Host, pc.Socket
	}

	switch {
	case flags.Port != 0:
		p.Port = flags.Port
	case env.port != "":
		port, err := strconv.Atoi(env.port)
		if err != nil {
			return p, fmt.Errorf("invalid port value '%s' in environment: must be an integer: %w", env.port, sqlpool.ErrInvalidConfig)
		}
		p.Port = port
	default:
		p.Port = pc.Port
	}

	p.Username = firstNonEmpty(flags.Username, env.user, pc.Username)
	p.Password = env.password
	p.Charset = pc.Charset

	p.TLS = sqlpool.TLSOptions{
		Mode:       firstNonEmpty(flags.SSLMode, env.sslMode, pc.SSLMode),
		CAFile:     pc.SSLRootCert,
		CertFile:   pc.SSLCert,
		KeyFile:    pc.SSLKey,
		ServerName: pc.SSLServerName,
	}

	if pc.ConnectTimeout != "" {
		d, err := time.ParseDuration(pc.ConnectTimeout)
		if err != nil {
			return p, fmt.Errorf("connection.connect_timeout %q: %w", pc.ConnectTimeout, sqlpool.ErrInvalidConfig)
		}
		p.ConnectTimeout = d
	}

	if len(pc.Options) > 0 {
		p.Options = make(map[string]any, len(pc.Options))
		for k, v := range pc.Options {
			p.Options[k] = v
		}
	}

	return p.Normalize(), nil
}

// applyCloudAuth sets the auth method and its AWS / Google settings: flag > env > yaml.
func applyCloudAuth(p *sqlpool.ConnectionParameters, flags *ConnFlags, env *EnvVars, pc config.ConnectionConfig) error {
	if method := firstNonEmpty(flags.AuthMethod, pc.AuthMethod); method != "" {
		m, err := sqlpool.ParseAuthMethod(method)
		if err != nil {
			return err
		}
		p.AuthMethod = m
	}

	switch p.AuthMethod {
	case sqlpool.AuthMethodAWSIAM:
		p.AWSRegion = firstNonEmpty(flags.AWSRegion, p.AWSRegion, env.AWS_REGION, pc.AWSRegion)
	case sqlpool.AuthMethodGoogleIAM:
		p.GoogleInstance = firstNonEmpty(flags.GoogleInstance, p.GoogleInstance, pc.GoogleInstance)
	}
	return nil
}

// applyAzureAuth sets Azure Entra ID authentication if credentials are available.
// CLI flags take precedence over environment variables, which beat sqlpool.yaml.
func applyAzureAuth(p *sqlpool.ConnectionParameters, flags *AzureFlags, env *EnvVars, pc config.ConnectionConfig) {
	tenantID := firstNonEmpty(flags.TenantID, env.AZURE_TENANT_ID, pc.AzureTenantID)
	clientID := firstNonEmpty(flags.ClientID, env.AZURE_CLIENT_ID, pc.AzureClientID)

	// Another cloud method chosen explicitly wins over ambient Azure variables.
	if p.AuthMethod != sqlpool.AuthMethodStandard && p.AuthMethod != sqlpool.AuthMethodAzureEntraID {
		return
	}
	if p.AuthMethod == sqlpool.AuthMethodStandard && tenantID == "" && clientID == "" {
		return
	}

	p.AuthMethod = sqlpool.AuthMethodAzureEntraID
	p.AzureTenantID = tenantID
	p.AzureClientID = clientID
	// Client secret only comes from env var (no flag for security)
	p.AzureClientSecret = env.AZURE_CLIENT_SECRET
}

func applyDefaults(p *sqlpool.ConnectionParameters, driver string) {
	if p.Socket != "" {
		return
	}
	if p.Host == "" && p.AuthMethod != sqlpool.AuthMethodGoogleIAM {
		p.Host = "localhost"
	}
	if p.Port == 0 && p.Host != "" {
		p.Port = sqlpool.DefaultMySQLPort
		if driver == DriverPostgres {
			p.Port = sqlpool.DefaultPostgresPort
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
