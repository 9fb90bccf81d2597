package sqlpool

import (
	"errors"
	"fmt"
	"time"
)

// PoolOptions is the recognised configuration surface of the pool.
type PoolOptions struct {
	// MaxPoolSize caps open connections per fingerprint (idle + checked out).
	MaxPoolSize int

	// MaxRetries is the total number of open attempts, the first one included.
	MaxRetries int

	// BaseBackoff is the delay before the first retry. Attempt i waits BaseBackoff * 2^i.
	BaseBackoff time.Duration

	// MaxBackoff caps a single delay. Zero means uncapped.
	MaxBackoff time.Duration

	// DisableHealthCheck turns off validation of idle connections on
	// checkout. Connections are then not reused: every checkout opens a
	// fresh one.
	DisableHealthCheck bool

	HealthCheckTimeout   time.Duration
	HealthCheckStatement string

	// ConnectionLostCodes and IntegrityCodes override the driver defaults when non-empty.
	ConnectionLostCodes []string
	IntegrityCodes      []string
}

// DefaultPoolOptions returns the documented defaults.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxPoolSize:          DefaultMaxPoolSize,
		MaxRetries:           DefaultMaxRetries,
		BaseBackoff:          DefaultBaseBackoff,
		HealthCheckTimeout:   DefaultHealthCheckTimeout,
		HealthCheckStatement: DefaultHealthCheckStatement,
	}
}

// WithDefaults fills zero-valued fields from DefaultPoolOptions.
func (o PoolOptions) WithDefaults() PoolOptions {
	d := DefaultPoolOptions()
	if o.MaxPoolSize == 0 {
		o.MaxPoolSize = d.MaxPoolSize
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = d.MaxRetries
	}
	if o.BaseBackoff == 0 {
		o.BaseBackoff = d.BaseBackoff
	}
	if o.HealthCheckTimeout == 0 {
		o.HealthCheckTimeout = d.HealthCheckTimeout
	}
	if o.HealthCheckStatement == "" {
		o.HealthCheckStatement = d.HealthCheckStatement
	}
	return o
}

// Validate checks if the PoolOptions has valid values.
// It returns a multi-error if multiple validation failures occur.
func (o PoolOptions) Validate() error {
	var errs []error

	if o.MaxPoolSize < 1 {
		errs = append(errs, fmt.Errorf("max_pool_size must be at least 1, got %d: %w", o.MaxPoolSize, ErrInvalidConfig))
	}

	if o.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("max_retries must be at least 1, got %d: %w", o.MaxRetries, ErrInvalidConfig))
	}

	if o.BaseBackoff < 0 {
		errs = append(errs, fmt.Errorf("base backoff cannot be negative: %w", ErrInvalidConfig))
	}

	if o.MaxBackoff < 0 {
		errs = append(errs, fmt.Errorf("max backoff cannot be negative: %w", ErrInvalidConfig))
	}

	if o.HealthCheckTimeout < 0 {
		errs = append(errs, fmt.Errorf("health check timeout cannot be negative: %w", ErrInvalidConfig))
	}

	if !o.DisableHealthCheck && o.HealthCheckStatement == "" {
		errs = append(errs, fmt.Errorf("health check statement is required when health checks are enabled: %w", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// WorstCaseBackoff is the total sleep a failing connect can accumulate:
// the sum of BaseBackoff * 2^i for every retry, honouring MaxBackoff.
func (o PoolOptions) WorstCaseBackoff() time.Duration {
	var total time.Duration
	for i := 0; i < o.MaxRetries-1; i++ {
		d := o.BaseBackoff << i
		if o.MaxBackoff > 0 && d > o.MaxBackoff {
			d = o.MaxBackoff
		}
		total += d
	}
	return total
}
