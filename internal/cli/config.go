package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vvka-141/sqlpool/internal/config"
	"github.com/vvka-141/sqlpool/internal/tui"
	"github.com/vvka-141/sqlpool/internal/tui/wizards"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

var configFlags connectionFlags

var (
	configForce       bool
	configInteractive bool
)

// runWizard shows the connection wizard. Tests replace it.
var runWizard = wizards.RunConnectionWizard

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write or show sqlpool.yaml",
	Long: `Work with the project configuration file sqlpool.yaml.

Both subcommands resolve the connection exactly like the other commands
(flags, then environment, then the existing sqlpool.yaml). The password is
never written: supply it through the environment or the connection string.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write sqlpool.yaml from the resolved connection and pool settings",
	Long: `Write sqlpool.yaml into dir (default: current directory).

With --interactive a full-screen wizard asks for the driver, the
authentication method, the server and the pool settings, then checks a
connection out of a real pool before anything is written.

Examples:
  sqlpool config init --interactive
  sqlpool config init --connection "postgresql://app@db.internal/app" --max-pool-size 10
  sqlpool config init ./service -h localhost -u app -d app --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	configFlags.registerPersistent(configCmd)
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing sqlpool.yaml")
	configInitCmd.Flags().BoolVarP(&configInteractive, "interactive", "i", false, "Collect and test the connection in a wizard")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	configPath := filepath.Join(targetDir, config.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite): %w", configPath, sqlpool.ErrUsage)
	}

	var (
		rc  *resolvedConnection
		err error
	)
	if configInteractive {
		rc, err = connectionFromWizard(cmd)
	} else {
		rc, err = resolveConnection(cmd, &configFlags)
	}
	if err != nil {
		return err
	}
	if rc == nil {
		fmt.Fprintln(cmd.ErrOrStderr(), tui.MutedStyle.Render("Cancelled, nothing written"))
		return nil
	}

	data, err := yaml.Marshal(projectConfigFrom(rc))
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", targetDir, err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), tui.Success("Configuration saved to %s", configPath))
	fmt.Fprintln(cmd.OutOrStdout(), describePool(rc.Options))
	return nil
}

// connectionFromWizard runs the connection wizard seeded with the pool
// settings from flags and sqlpool.yaml. A cancelled wizard yields nil.
func connectionFromWizard(cmd *cobra.Command) (*resolvedConnection, error) {
	if !interactive() {
		return nil, fmt.Errorf("--interactive needs a terminal: %w", sqlpool.ErrUsage)
	}

	projectCfg, err := loadProjectConfig(getConfigDir(cmd))
	if err != nil {
		return nil, err
	}
	opts, err := resolvePoolOptions(cmd, &configFlags, projectCfg)
	if err != nil {
		return nil, err
	}

	res, err := runWizard(stackTester{cmd: cmd}, wizards.WithDriver(configFlags.driver), wizards.WithPoolOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("connection wizard failed: %w", err)
	}
	if res.Cancelled {
		return nil, nil
	}
	if !res.Tested {
		fmt.Fprintln(cmd.ErrOrStderr(), tui.Warning("Saving a connection that did not pass the test"))
	}

	return &resolvedConnection{
		Driver:     res.Driver,
		Params:     res.Params,
		Options:    res.Options,
		ProjectCfg: projectCfg,
	}, nil
}

// stackTester proves wizard settings by checking a connection out of a
// freshly wired pool and asking the server for its version.
type stackTester struct {
	cmd *cobra.Command
}

func (s stackTester) TestConnection(ctx context.Context, driver string, params sqlpool.ConnectionParameters, opts sqlpool.PoolOptions) (string, error) {
	stack, err := newPoolStack(s.cmd, &resolvedConnection{Driver: driver, Params: params, Options: opts})
	if err != nil {
		return "", err
	}
	defer stack.Close(context.Background())

	h, err := stack.service.GetConnection(ctx, params)
	if err != nil {
		return "", err
	}
	defer stack.service.ReleaseConnection(h)

	res, err := h.Cursor().Query(ctx, "SELECT version()")
	if err != nil {
		return "", err
	}
	if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return "connected", nil
	}
	version := formatValue(res.Rows[0][0])
	if idx := strings.Index(version, ","); idx > 0 {
		version = version[:idx]
	}
	return version, nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	rc, err := resolveConnection(cmd, &configFlags)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(projectConfigFrom(rc))
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// projectConfigFrom turns a resolved connection back into sqlpool.yaml form.
// Secrets are left out.
func projectConfigFrom(rc *resolvedConnection) *config.ProjectConfig {
	p := rc.Params
	o := rc.Options
	healthCheck := !o.DisableHealthCheck

	cfg := &config.ProjectConfig{
		Driver: rc.Driver,
		Connection: config.ConnectionConfig{
			Host:           p.Host,
			Port:           p.Port,
			Socket:         p.Socket,
			Username:       p.Username,
			Database:       p.Database,
			Charset:        p.Charset,
			SSLMode:        p.TLS.Mode,
			SSLCert:        p.TLS.CertFile,
			SSLKey:         p.TLS.KeyFile,
			SSLRootCert:    p.TLS.CAFile,
			SSLServerName:  p.TLS.ServerName,
			AuthMethod:     authMethodToString(p.AuthMethod),
			AzureTenantID:  p.AzureTenantID,
			AzureClientID:  p.AzureClientID,
			AWSRegion:      p.AWSRegion,
			GoogleInstance: p.GoogleInstance,
			Options:        p.Options,
		},
		Pool: config.PoolConfig{
			MaxPoolSize:          o.MaxPoolSize,
			MaxRetries:           o.MaxRetries,
			BaseBackoffSeconds:   o.BaseBackoff.Seconds(),
			HealthCheckEnabled:   &healthCheck,
			HealthCheckTimeout:   o.HealthCheckTimeout.String(),
			HealthCheckStatement: o.HealthCheckStatement,
			ConnectionLostCodes:  o.ConnectionLostCodes,
			IntegrityCodes:       o.IntegrityCodes,
		},
	}
	if p.ConnectTimeout > 0 {
		cfg.Connection.ConnectTimeout = p.ConnectTimeout.String()
	}
	if o.MaxBackoff > 0 {
		cfg.Pool.MaxBackoff = o.MaxBackoff.String()
	}
	if rc.ProjectCfg != nil {
		cfg.Metrics = rc.ProjectCfg.Metrics
	}
	return cfg
}

// authMethodToString returns the sqlpool.yaml spelling of m; empty for passwords.
func authMethodToString(m sqlpool.AuthMethod) string {
	switch m {
	case sqlpool.AuthMethodCertificate:
		return "certificate"
	case sqlpool.AuthMethodAWSIAM:
		return "aws-iam"
	case sqlpool.AuthMethodGoogleIAM:
		return "google-iam"
	case sqlpool.AuthMethodAzureEntraID:
		return "azure-entra-id"
	}
	return ""
}

// describePool renders pool options for humans.
func describePool(o sqlpool.PoolOptions) string {
	return tui.KeyValues(
		[2]string{"Max pool size", strconv.Itoa(o.MaxPoolSize)},
		[2]string{"Connect attempts", strconv.Itoa(o.MaxRetries)},
		[2]string{"Base backoff", o.BaseBackoff.String()},
		[2]string{"Health check", strconv.FormatBool(!o.DisableHealthCheck)},
	)
}
