package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// ErrConfigNotFound is returned when the config file does not exist.
// Callers can check for this with errors.Is(err, config.ErrConfigNotFound).
var ErrConfigNotFound = errors.New("config file not found")

type ConnectionConfig struct {
	Host           string         `yaml:"host"`
	Port           int            `yaml:"port"`
	Socket         string         `yaml:"socket,omitempty"`
	Username       string         `yaml:"username"`
	Database       string         `yaml:"database"`
	Charset        string         `yaml:"charset,omitempty"`
	SSLMode        string         `yaml:"sslmode"`
	SSLCert        string         `yaml:"sslcert,omitempty"`
	SSLKey         string         `yaml:"sslkey,omitempty"`
	SSLRootCert    string         `yaml:"sslrootcert,omitempty"`
	SSLServerName  string         `yaml:"sslservername,omitempty"`
	ConnectTimeout string         `yaml:"connect_timeout,omitempty"`
	AuthMethod     string         `yaml:"auth_method,omitempty"`
	AzureTenantID  string         `yaml:"azure_tenant_id,omitempty"`
	AzureClientID  string         `yaml:"azure_client_id,omitempty"`
	AWSRegion      string         `yaml:"aws_region,omitempty"`
	GoogleInstance string         `yaml:"google_instance,omitempty"`
	Options        map[string]any `yaml:"options,omitempty"`
}

// PoolConfig mirrors sqlpool.PoolOptions. Durations are Go duration strings.
type PoolConfig struct {
	MaxPoolSize          int      `yaml:"max_pool_size"`
	MaxRetries           int      `yaml:"max_retries"`
	BaseBackoffSeconds   float64  `yaml:"base_backoff_seconds"`
	MaxBackoff           string   `yaml:"max_backoff,omitempty"`
	HealthCheckEnabled   *bool    `yaml:"health_check_enabled,omitempty"`
	HealthCheckTimeout   string   `yaml:"health_check_timeout,omitempty"`
	HealthCheckStatement string   `yaml:"health_check_statement,omitempty"`
	ConnectionLostCodes  []string `yaml:"connection_lost_codes,omitempty"`
	IntegrityCodes       []string `yaml:"integrity_codes,omitempty"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

type ProjectConfig struct {
	Driver     string           `yaml:"driver"`
	Connection ConnectionConfig `yaml:"connection"`
	Pool       PoolConfig       `yaml:"pool"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

const ConfigFileName = sqlpool.ConfigFileName

func Load(sourcePath string) (*ProjectConfig, error) {
	configPath := filepath.Join(sourcePath, ConfigFileName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}
	return &cfg, nil
}

// Options converts the pool section into PoolOptions, filling defaults for
// anything left out. The result is validated.
func (p PoolConfig) Options() (sqlpool.PoolOptions, error) {
	opts := sqlpool.DefaultPoolOptions()

	if p.MaxPoolSize != 0 {
		opts.MaxPoolSize = p.MaxPoolSize
	}
	if p.MaxRetries != 0 {
		opts.MaxRetries = p.MaxRetries
	}
	if p.BaseBackoffSeconds != 0 {
		opts.BaseBackoff = time.Duration(p.BaseBackoffSeconds * float64(time.Second))
	}
	if p.HealthCheckEnabled != nil {
		opts.DisableHealthCheck = !*p.HealthCheckEnabled
	}
	if p.HealthCheckStatement != "" {
		opts.HealthCheckStatement = p.HealthCheckStatement
	}
	opts.ConnectionLostCodes = p.ConnectionLostCodes
	opts.IntegrityCodes = p.IntegrityCodes

	var errs []error
	if p.MaxBackoff != "" {
		d, err := time.ParseDuration(p.MaxBackoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("pool.max_backoff %q: %w", p.MaxBackoff, sqlpool.ErrInvalidConfig))
		}
		opts.MaxBackoff = d
	}
	if p.HealthCheckTimeout != "" {
		d, err := time.ParseDuration(p.HealthCheckTimeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("pool.health_check_timeout %q: %w", p.HealthCheckTimeout, sqlpool.ErrInvalidConfig))
		}
		opts.HealthCheckTimeout = d
	}
	if err := errors.Join(errs...); err != nil {
		return sqlpool.PoolOptions{}, err
	}

	if err := opts.Validate(); err != nil {
		return sqlpool.PoolOptions{}, err
	}
	return opts, nil
}
