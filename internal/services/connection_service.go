package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vvka-141/sqlpool/internal/cursor"
	"github.com/vvka-141/sqlpool/internal/pool"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// ConnectionService is the entry point for query layers: it hands out
// connections wrapped in a ResilientCursor and takes them back.
//
// ConnectionService is safe for concurrent use. Each Handle belongs to one
// caller.
type ConnectionService struct {
	pool       *pool.Pool
	classifier sqlpool.Classifier
	logger     sqlpool.Logger
	observer   sqlpool.Observer
}

// NewConnectionService creates a service over p.
//
// Panics if any dependency is nil. Panics indicate programmer error
// (incorrect dependency injection setup).
func NewConnectionService(p *pool.Pool, classifier sqlpool.Classifier, logger sqlpool.Logger, observer sqlpool.Observer) *ConnectionService {
	if p == nil {
		panic("pool cannot be nil")
	}
	if classifier == nil {
		panic("classifier cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	if observer == nil {
		observer = sqlpool.NopObserver{}
	}

	return &ConnectionService{
		pool:       p,
		classifier: classifier,
		logger:     logger,
		observer:   observer,
	}
}

// Pool returns the underlying pool.
func (s *ConnectionService) Pool() *pool.Pool { return s.pool }

// GetConnection checks out a connection for params.
//
// The caller is responsible for:
//   - Releasing the handle: defer svc.ReleaseConnection(h)
func (s *ConnectionService) GetConnection(ctx context.Context, params sqlpool.ConnectionParameters) (*Handle, error) {
	conn, err := s.pool.Checkout(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection to %s: %w", params.Address(), err)
	}

	s.logger.Verbose("Acquired %s", conn)
	return &Handle{
		cursor: cursor.New(conn, s.pool, s.classifier,
			cursor.WithLogger(s.logger),
			cursor.WithObserver(s.observer)),
		acquiredAt: time.Now(),
	}, nil
}

// ReleaseConnection returns the handle's current connection to the pool.
// Releasing a handle twice, or a nil handle, is a no-op.
func (s *ConnectionService) ReleaseConnection(h *Handle) {
	if h == nil {
		return
	}
	h.releaseOnce.Do(func() {
		conn := h.cursor.Conn()
		h.released.Store(true)
		s.logger.Verbose("Releasing %s after %v", conn, time.Since(h.acquiredAt).Round(time.Millisecond))
		s.pool.Checkin(conn)
	})
}

// Handle is a checked-out connection together with its cursor.
type Handle struct {
	cursor     *cursor.ResilientCursor
	acquiredAt time.Time

	releaseOnce sync.Once
	released    atomic.Bool
}

// Cursor returns the cursor bound to this handle. Every call returns the
// same cursor, so a connection it replaces is the one that gets released.
func (h *Handle) Cursor() *cursor.ResilientCursor { return h.cursor }

// Conn returns the connection the handle currently holds.
func (h *Handle) Conn() *sqlpool.PooledConnection { return h.cursor.Conn() }

// Released reports whether ReleaseConnection was called for h.
func (h *Handle) Released() bool { return h.released.Load() }
