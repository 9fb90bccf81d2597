package pool

import (
	"context"
	"time"

	"github.com/vvka-141/sqlpool/internal/logging"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// HealthChecker validates idle connections before they are handed out again.
type HealthChecker struct {
	statement string
	timeout   time.Duration
	logger    sqlpool.Logger
}

// NewHealthChecker creates a checker running opts.HealthCheckStatement with
// opts.HealthCheckTimeout.
func NewHealthChecker(opts sqlpool.PoolOptions, logger sqlpool.Logger) *HealthChecker {
	opts = opts.WithDefaults()
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &HealthChecker{
		statement: opts.HealthCheckStatement,
		timeout:   opts.HealthCheckTimeout,
		logger:    logger,
	}
}

// Check reports whether conn answered the health statement in time.
// Any error, including a timeout, counts as unhealthy.
func (h *HealthChecker) Check(ctx context.Context, conn *sqlpool.PooledConnection) bool {
	if conn == nil || conn.IsBroken() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if _, err := conn.Raw().Query(ctx, h.statement); err != nil {
		h.logger.Verbose("Health check failed for %s: %v", conn, err)
		return false
	}
	return true
}
