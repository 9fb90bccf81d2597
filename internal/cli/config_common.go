package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vvka-141/sqlpool/internal/config"
	"github.com/vvka-141/sqlpool/internal/tui"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// loadProjectConfig loads godotenv and project configuration.
// Returns nil config if sqlpool.yaml does not exist (not an error).
func loadProjectConfig(dir string) (*config.ProjectConfig, error) {
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	projectCfg, err := config.Load(dir)
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			return nil, nil // Config file not found is not an error
		}
		return nil, fmt.Errorf("failed to load %s: %v: %w", config.ConfigFileName, err, sqlpool.ErrInvalidConfig)
	}
	return projectCfg, nil
}

// resolvePoolOptions starts from the pool section of sqlpool.yaml (or the
// defaults) and applies any pool flag the user set explicitly.
func resolvePoolOptions(cmd *cobra.Command, flags *connectionFlags, projectCfg *config.ProjectConfig) (sqlpool.PoolOptions, error) {
	var pc config.PoolConfig
	if projectCfg != nil {
		pc = projectCfg.Pool
	}
	opts, err := pc.Options()
	if err != nil {
		return sqlpool.PoolOptions{}, err
	}

	changed := func(name string) bool { return flagChanged(cmd, name) }
	if changed("max-pool-size") {
		opts.MaxPoolSize = flags.maxPoolSize
	}
	if changed("max-retries") {
		opts.MaxRetries = flags.maxRetries
	}
	if changed("base-backoff") {
		opts.BaseBackoff = flags.baseBackoff
	}
	if changed("health-check-timeout") {
		opts.HealthCheckTimeout = flags.healthCheckTimeout
	}
	if flags.noHealthCheck {
		opts.DisableHealthCheck = true
	}

	if err := opts.Validate(); err != nil {
		return sqlpool.PoolOptions{}, err
	}
	return opts, nil
}

// logConnectionVerbose logs connection details when verbose mode is enabled.
func logConnectionVerbose(w io.Writer, driver string, p sqlpool.ConnectionParameters, opts sqlpool.PoolOptions) {
	fmt.Fprintf(w, "[VERBOSE] Connection resolved:\n")
	fmt.Fprintf(w, "  Driver: %s\n", driver)
	if p.Socket != "" {
		fmt.Fprintf(w, "  Socket: %s\n", p.Socket)
	} else {
		fmt.Fprintf(w, "  Host: %s\n", p.Host)
		fmt.Fprintf(w, "  Port: %d\n", p.Port)
	}
	fmt.Fprintf(w, "  User: %s\n", p.Username)
	fmt.Fprintf(w, "  Database: %s\n", p.Database)
	if p.TLS.Mode != "" {
		fmt.Fprintf(w, "  TLS Mode: %s\n", p.TLS.Mode)
	}
	if p.TLS.CAFile != "" {
		fmt.Fprintf(w, "  TLS CA: %s\n", p.TLS.CAFile)
	}
	if p.TLS.CertFile != "" {
		fmt.Fprintf(w, "  TLS Cert: %s\n", p.TLS.CertFile)
	}
	fmt.Fprintf(w, "  Auth Method: %s\n", p.AuthMethod)
	fmt.Fprintf(w, "  Fingerprint: %s\n", p.Fingerprint().Short())
	fmt.Fprintf(w, "[VERBOSE] Pool: max %d per fingerprint, %d connect attempts, backoff %s, health check %t\n",
		opts.MaxPoolSize, opts.MaxRetries, opts.BaseBackoff, !opts.DisableHealthCheck)
}

// flagChanged reports whether the user set the named flag, local or inherited.
func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flag(name)
	return f != nil && f.Changed
}

// interactive reports whether prompts and wizards may be shown. Tests replace it.
var interactive = tui.IsInteractive
