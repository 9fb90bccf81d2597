package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vvka-141/sqlpool/internal/config"
	"github.com/vvka-141/sqlpool/internal/db"
	"github.com/vvka-141/sqlpool/internal/tui"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// connectionFlags holds the common connection-related flag values.
type connectionFlags struct {
	driver         string
	connection     string
	host           string
	port           int
	socket         string
	username       string
	database       string
	sslMode        string
	authMethod     string
	awsRegion      string
	googleInstance string
	azureTenantID  string
	azureClientID  string
	password       bool

	maxPoolSize        int
	maxRetries         int
	baseBackoff        time.Duration
	healthCheckTimeout time.Duration
	noHealthCheck      bool
}

// register adds the connection and pool flags to cmd.
func (f *connectionFlags) register(cmd *cobra.Command) {
	f.addFlags(cmd, cmd.Flags())
}

// registerPersistent adds the flags to cmd and all of its subcommands.
func (f *connectionFlags) registerPersistent(cmd *cobra.Command) {
	f.addFlags(cmd, cmd.PersistentFlags())
}

func (f *connectionFlags) addFlags(cmd *cobra.Command, fl *pflag.FlagSet) {
	fl.StringVar(&f.driver, "driver", "", "Database driver: mysql or postgres (default: from connection string, else mysql)")
	fl.StringVar(&f.connection, "connection", "", "Connection string (URI, MySQL DSN or ADO.NET)")
	fl.StringVarP(&f.host, "host", "h", "", "Database host")
	fl.IntVarP(&f.port, "port", "P", 0, "Database port")
	fl.StringVarP(&f.socket, "socket", "S", "", "Unix socket path (PostgreSQL: socket directory)")
	fl.StringVarP(&f.username, "username", "u", "", "Database user")
	fl.StringVarP(&f.database, "database", "d", "", "Database name")
	fl.StringVar(&f.sslMode, "sslmode", "", "TLS mode (disable, prefer, require, verify-ca, verify-full)")
	fl.StringVar(&f.authMethod, "auth-method", "", "Authentication: password, certificate, aws-iam, google-iam, azure-entra-id")
	fl.StringVar(&f.awsRegion, "aws-region", "", "AWS region for IAM authentication")
	fl.StringVar(&f.googleInstance, "google-instance", "", "Cloud SQL instance (project:region:instance)")
	fl.StringVar(&f.azureTenantID, "azure-tenant-id", "", "Azure tenant ID (overrides AZURE_TENANT_ID)")
	fl.StringVar(&f.azureClientID, "azure-client-id", "", "Azure client ID (overrides AZURE_CLIENT_ID)")
	fl.BoolVar(&f.password, "password", false, "Prompt for the password")

	fl.IntVar(&f.maxPoolSize, "max-pool-size", sqlpool.DefaultMaxPoolSize, "Maximum connections per fingerprint")
	fl.IntVar(&f.maxRetries, "max-retries", sqlpool.DefaultMaxRetries, "Total connect attempts")
	fl.DurationVar(&f.baseBackoff, "base-backoff", sqlpool.DefaultBaseBackoff, "Delay before the first connect retry")
	fl.DurationVar(&f.healthCheckTimeout, "health-check-timeout", sqlpool.DefaultHealthCheckTimeout, "Timeout of the idle connection health check")
	fl.BoolVar(&f.noHealthCheck, "no-health-check", false, "Disable health checks (connections are never reused)")

	_ = cmd.RegisterFlagCompletionFunc("driver", completeDrivers)
	_ = cmd.RegisterFlagCompletionFunc("sslmode", completeSSLModes)
	_ = cmd.RegisterFlagCompletionFunc("auth-method", completeAuthMethods)
}

func (f *connectionFlags) connFlags() *db.ConnFlags {
	return &db.ConnFlags{
		Driver:           f.driver,
		ConnectionString: f.connection,
		Host:             f.host,
		Port:             f.port,
		Socket:           f.socket,
		Username:         f.username,
		Database:         f.database,
		SSLMode:          f.sslMode,
		AuthMethod:       f.authMethod,
		AWSRegion:        f.awsRegion,
		GoogleInstance:   f.googleInstance,
	}
}

func (f *connectionFlags) azureFlags() *db.AzureFlags {
	return &db.AzureFlags{
		TenantID: f.azureTenantID,
		ClientID: f.azureClientID,
	}
}

// resolvedConnection holds everything a command needs to talk to one target.
type resolvedConnection struct {
	Driver     string
	Params     sqlpool.ConnectionParameters
	Options    sqlpool.PoolOptions
	ProjectCfg *config.ProjectConfig
}

// resolveConnection merges flags, environment and sqlpool.yaml into
// connection parameters and pool options.
func resolveConnection(cmd *cobra.Command, flags *connectionFlags) (*resolvedConnection, error) {
	projectCfg, err := loadProjectConfig(getConfigDir(cmd))
	if err != nil {
		return nil, err
	}

	driver, params, err := db.ResolveConnectionParams(flags.connFlags(), flags.azureFlags(), db.LoadFromEnvironment(), projectCfg)
	if err != nil {
		return nil, err
	}

	if flags.password {
		pw, err := tui.PromptPassword(cmd.ErrOrStderr(), fmt.Sprintf("Password for %s@%s", params.Username, params.Address()))
		if err != nil {
			if errors.Is(err, tui.ErrNotInteractive) {
				return nil, fmt.Errorf("--password needs an interactive terminal; use the connection string or the driver's password variable instead: %w", sqlpool.ErrInvalidConfig)
			}
			return nil, err
		}
		params = params.WithPassword(pw)
	}

	opts, err := resolvePoolOptions(cmd, flags, projectCfg)
	if err != nil {
		return nil, err
	}

	if getVerboseFlag(cmd) {
		logConnectionVerbose(cmd.ErrOrStderr(), driver, params, opts)
	}

	return &resolvedConnection{
		Driver:     driver,
		Params:     params,
		Options:    opts,
		ProjectCfg: projectCfg,
	}, nil
}
