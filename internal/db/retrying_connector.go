package db

import (
	"context"
	"time"

	"github.com/vvka-141/sqlpool/internal/logging"
	"github.com/vvka-141/sqlpool/internal/retry"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// Opener opens one connection without retrying. *ConnectionFactory implements it.
type Opener interface {
	Open(ctx context.Context, params sqlpool.ConnectionParameters) (*sqlpool.PooledConnection, error)
}

// RetryingConnector opens connections with exponential backoff on transient failures.
//
// With MaxRetries 3 and BaseBackoff 1s a target that never answers is tried
// three times, sleeping 1s and 2s in between, before
// *sqlpool.ExhaustedRetriesError is returned. Authentication failures are
// returned after the first attempt.
type RetryingConnector struct {
	opener   Opener
	executor *retry.Executor
	logger   sqlpool.Logger
	observer sqlpool.Observer
}

// NewRetryingConnector creates a connector that retries opener per opts.
func NewRetryingConnector(opener Opener, opts sqlpool.PoolOptions, logger sqlpool.Logger, observer sqlpool.Observer) *RetryingConnector {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	if observer == nil {
		observer = sqlpool.NopObserver{}
	}
	return &RetryingConnector{
		opener:   opener,
		executor: retry.NewExecutor(retry.NewConnectErrorClassifier(), retry.FromPoolOptions(opts.WithDefaults())),
		logger:   logger,
		observer: observer,
	}
}

// WithSleeper returns a copy that waits through s between attempts.
func (c *RetryingConnector) WithSleeper(s retry.Sleeper) *RetryingConnector {
	clone := *c
	clone.executor = c.executor.WithSleeper(s)
	return &clone
}

// Connect opens a connection, retrying transient failures.
func (c *RetryingConnector) Connect(ctx context.Context, params sqlpool.ConnectionParameters) (*sqlpool.PooledConnection, error) {
	fp := params.Fingerprint()
	start := time.Now()

	executor := c.executor.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		c.logger.Info("Connection attempt %d to %s failed, retrying in %v: %v", attempt+1, params.Address(), delay, err)
		c.observer.ConnectRetried(fp, attempt+1, delay)
	})

	var conn *sqlpool.PooledConnection
	err := executor.Execute(ctx, func(ctx context.Context) error {
		var err error
		conn, err = c.opener.Open(ctx, params)
		return err
	})
	if err != nil {
		c.logger.Error("Could not connect to %s: %v", params.Address(), err)
		return nil, err
	}

	took := time.Since(start)
	c.observer.ConnectionOpened(fp, took)
	c.logger.Verbose("Opened %s in %v", conn, took.Round(time.Millisecond))
	return conn, nil
}
