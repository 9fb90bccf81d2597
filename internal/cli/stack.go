package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vvka-141/sqlpool/internal/db"
	"github.com/vvka-141/sqlpool/internal/driver/mysql"
	"github.com/vvka-141/sqlpool/internal/driver/postgres"
	"github.com/vvka-141/sqlpool/internal/logging"
	"github.com/vvka-141/sqlpool/internal/metrics"
	"github.com/vvka-141/sqlpool/internal/pool"
	"github.com/vvka-141/sqlpool/internal/retry"
	"github.com/vvka-141/sqlpool/internal/services"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// metricsNamespace prefixes every exported metric.
const metricsNamespace = "sqlpool"

// newDriver builds the driver for a resolved driver name. Tests replace it.
var newDriver = func(name string, opts sqlpool.PoolOptions) (sqlpool.Driver, error) {
	switch name {
	case db.DriverMySQL:
		d, err := mysql.New(opts.ConnectionLostCodes, opts.IntegrityCodes)
		if err != nil {
			return nil, err
		}
		return d, nil
	case db.DriverPostgres:
		d, err := postgres.New(opts.ConnectionLostCodes, opts.IntegrityCodes)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, fmt.Errorf("unknown driver %q: %w", name, sqlpool.ErrInvalidConfig)
}

// connectSleeper overrides the backoff sleep when set. Tests replace it.
var connectSleeper retry.Sleeper

// poolStack is the wired pool behind one command invocation.
type poolStack struct {
	conn      *resolvedConnection
	driver    sqlpool.Driver
	logger    *logging.ZapLogger
	collector *metrics.Collector
	factory   *db.ConnectionFactory
	pool      *pool.Pool
	service   *services.ConnectionService
}

// newPoolStack wires driver, factory, retrying connector, pool, metrics and
// connection service for rc.
func newPoolStack(cmd *cobra.Command, rc *resolvedConnection) (*poolStack, error) {
	logger := logging.NewZapLogger(getVerboseFlag(cmd)).Named(rc.Driver)

	drv, err := newDriver(rc.Driver, rc.Options)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector(metricsNamespace)
	factory := db.NewConnectionFactory(drv, logger)

	connector := db.NewRetryingConnector(factory, rc.Options, logger, collector)
	if connectSleeper != nil {
		connector = connector.WithSleeper(connectSleeper)
	}

	p, err := pool.New(connector, rc.Options, pool.WithLogger(logger), pool.WithObserver(collector))
	if err != nil {
		factory.Close()
		return nil, err
	}
	collector.WatchPool(p, metricsNamespace)

	return &poolStack{
		conn:      rc,
		driver:    drv,
		logger:    logger,
		collector: collector,
		factory:   factory,
		pool:      p,
		service:   services.NewConnectionService(p, drv.Classifier(), logger, collector),
	}, nil
}

// Close shuts the pool and the factory down and flushes the logger.
func (s *poolStack) Close(ctx context.Context) error {
	err := errors.Join(s.pool.Close(ctx), s.factory.Close())
	_ = s.logger.Sync()
	return err
}

// openStack resolves the connection for cmd and wires a pool for it.
func openStack(cmd *cobra.Command, flags *connectionFlags) (*poolStack, error) {
	rc, err := resolveConnection(cmd, flags)
	if err != nil {
		return nil, err
	}
	return newPoolStack(cmd, rc)
}
