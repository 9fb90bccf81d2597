package pool

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map"
	"golang.org/x/sync/errgroup"

	"github.com/vvka-141/sqlpool/internal/logging"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// Connector opens a connection, retrying as it sees fit.
// *db.RetryingConnector implements it.
type Connector interface {
	Connect(ctx context.Context, params sqlpool.ConnectionParameters) (*sqlpool.PooledConnection, error)
}

// PIDFunc reports the current process identity.
type PIDFunc func() int

// Stats is a point-in-time view of one sub-pool.
type Stats struct {
	Fingerprint sqlpool.Fingerprint
	Idle        int
	InUse       int
	Open        int
	Max         int
	Generation  uint64
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger. The default discards output.
func WithLogger(l sqlpool.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// WithObserver sets the event observer (e.g. the Prometheus collector).
func WithObserver(o sqlpool.Observer) Option {
	return func(p *Pool) { p.observer = o }
}

// WithPIDFunc overrides how the process identity is read.
func WithPIDFunc(fn PIDFunc) Option {
	return func(p *Pool) { p.pidFn = fn }
}

// WithHealthChecker replaces the checker built from PoolOptions.
func WithHealthChecker(h *HealthChecker) Option {
	return func(p *Pool) { p.health = h }
}

// Pool hands out connections per fingerprint.
//
// Pool is safe for concurrent use. A PooledConnection returned by Checkout
// belongs to the caller until it is passed to Checkin or DiscardAndReplace.
type Pool struct {
	connector Connector
	opts      sqlpool.PoolOptions
	health    *HealthChecker
	logger    sqlpool.Logger
	observer  sqlpool.Observer
	pidFn     PIDFunc

	// mu guards the registry swap on Reset; sub-pools have their own locks.
	mu       sync.RWMutex
	registry cmap.ConcurrentMap
	pid      int

	closed atomic.Bool
}

// New creates a pool opening connections through connector.
// Zero-valued fields of opts take their defaults.
func New(connector Connector, opts sqlpool.PoolOptions, options ...Option) (*Pool, error) {
	if connector == nil {
		return nil, fmt.Errorf("connector is required: %w", sqlpool.ErrInvalidConfig)
	}
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		connector: connector,
		opts:      opts,
		registry:  cmap.New(),
		pidFn:     os.Getpid,
	}
	for _, opt := range options {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.NewNullLogger()
	}
	if p.observer == nil {
		p.observer = sqlpool.NopObserver{}
	}
	if p.health == nil {
		p.health = NewHealthChecker(opts, p.logger)
	}
	p.pid = p.pidFn()
	return p, nil
}

// Options returns the effective pool options.
func (p *Pool) Options() sqlpool.PoolOptions { return p.opts }

// Checkout returns a connection for params, exclusively owned by the caller.
//
// An idle connection is reused if it passes the health check; unhealthy ones
// are closed and the next one is tried. With no idle connection a new one is
// opened through the connector if the sub-pool has a free slot. Otherwise
// *sqlpool.PoolExhaustedError is returned without waiting. If ctx ends
// during a health check the connection goes back to the idle set untouched.
func (p *Pool) Checkout(ctx context.Context, params sqlpool.ConnectionParameters) (*sqlpool.PooledConnection, error) {
	if p.closed.Load() {
		return nil, sqlpool.ErrPoolClosed
	}

	fp := params.Fingerprint()
	sp := p.subPoolFor(fp)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sp.mu.Lock()
		if conn := sp.popIdle(); conn != nil {
			sp.checkedOut[conn.ID()] = conn
			sp.mu.Unlock()

			conn.MarkCheckedOut()
			if p.health.Check(ctx, conn) {
				p.observer.CheckedOut(fp, true)
				p.logger.Verbose("Reusing %s", conn)
				return conn, nil
			}

			// A check cut short by the caller says nothing about the connection.
			if err := ctx.Err(); err != nil {
				p.restoreIdle(sp, conn)
				return nil, err
			}

			p.observer.HealthCheckFailed(fp)
			p.discard(sp, conn, sqlpool.CloseReasonUnhealthy)
			continue
		}

		if !sp.reserve() {
			sp.mu.Unlock()
			p.observer.PoolExhausted(fp)
			return nil, &sqlpool.PoolExhaustedError{Fingerprint: fp, MaxSize: sp.maxSize}
		}
		generation := sp.generation
		sp.mu.Unlock()

		return p.open(ctx, sp, params, generation)
	}
}

// open fills a reserved slot. The slot is released if the open fails.
func (p *Pool) open(ctx context.Context, sp *subPool, params sqlpool.ConnectionParameters, generation uint64) (*sqlpool.PooledConnection, error) {
	conn, err := p.connector.Connect(ctx, params)
	if err != nil {
		sp.mu.Lock()
		sp.release()
		sp.mu.Unlock()
		return nil, err
	}

	if p.closed.Load() {
		sp.mu.Lock()
		sp.release()
		sp.mu.Unlock()
		p.closeConn(conn, sqlpool.CloseReasonOpenAborted)
		return nil, sqlpool.ErrPoolClosed
	}

	// A CloseAll that ran while this connection was being opened leaves it
	// with an old generation; it is closed when checked in.
	conn.SetGeneration(generation)
	conn.MarkCheckedOut()

	sp.mu.Lock()
	sp.checkedOut[conn.ID()] = conn
	sp.mu.Unlock()

	p.observer.CheckedOut(sp.fingerprint, false)
	return conn, nil
}

// Checkin returns conn to its sub-pool.
//
// Broken connections, connections from before a CloseAll, and every
// connection when health checks are disabled are closed instead of kept.
// Connections the current registry does not know about (for example from
// before a Reset) are dropped without touching their handle.
func (p *Pool) Checkin(conn *sqlpool.PooledConnection) {
	if conn == nil {
		return
	}
	fp := conn.Fingerprint()

	sp, ok := p.lookup(fp)
	if !ok {
		p.logger.Verbose("Dropping untracked %s", conn)
		return
	}

	sp.mu.Lock()
	if !sp.untrack(conn) {
		sp.mu.Unlock()
		p.logger.Verbose("Dropping untracked %s", conn)
		return
	}

	var reason sqlpool.CloseReason
	switch {
	case conn.IsBroken():
		reason = sqlpool.CloseReasonBroken
	case conn.Generation() != sp.generation:
		reason = sqlpool.CloseReasonStale
	case p.closed.Load():
		reason = sqlpool.CloseReasonPoolClosed
	case p.opts.DisableHealthCheck:
		reason = sqlpool.CloseReasonNoReuse
	}

	if reason == "" && conn.MarkIdle() {
		sp.idle = append(sp.idle, conn)
		sp.mu.Unlock()
		p.observer.CheckedIn(fp)
		return
	}
	if reason == "" {
		reason = sqlpool.CloseReasonBroken
	}
	sp.release()
	sp.mu.Unlock()

	p.observer.CheckedIn(fp)
	p.closeConn(conn, reason)
}

// DiscardAndReplace closes a connection that failed mid-use and checks out
// a replacement for the same parameters.
func (p *Pool) DiscardAndReplace(ctx context.Context, conn *sqlpool.PooledConnection) (*sqlpool.PooledConnection, error) {
	params := conn.Params()
	conn.MarkBroken()

	if sp, ok := p.lookup(conn.Fingerprint()); ok {
		p.discard(sp, conn, sqlpool.CloseReasonBroken)
	} else {
		p.logger.Verbose("Dropping untracked %s", conn)
	}

	return p.Checkout(ctx, params)
}

// restoreIdle hands a connection taken for a health check back to the idle
// set. Its slot stays reserved. If a CloseAll or Close happened meanwhile it
// is closed like any other stale checkin.
func (p *Pool) restoreIdle(sp *subPool, conn *sqlpool.PooledConnection) {
	sp.mu.Lock()
	if !sp.untrack(conn) {
		sp.mu.Unlock()
		return
	}
	if conn.Generation() == sp.generation && !p.closed.Load() && conn.MarkIdle() {
		sp.idle = append(sp.idle, conn)
		sp.mu.Unlock()
		return
	}
	sp.release()
	sp.mu.Unlock()
	p.closeConn(conn, sqlpool.CloseReasonStale)
}

// discard forgets a checked-out connection, frees its slot and closes it.
func (p *Pool) discard(sp *subPool, conn *sqlpool.PooledConnection, reason sqlpool.CloseReason) {
	sp.mu.Lock()
	tracked := sp.untrack(conn)
	if tracked {
		sp.release()
	}
	sp.mu.Unlock()

	if tracked {
		p.closeConn(conn, reason)
	}
}

func (p *Pool) closeConn(conn *sqlpool.PooledConnection, reason sqlpool.CloseReason) error {
	err := conn.Close()
	p.observer.ConnectionClosed(conn.Fingerprint(), reason)
	if err != nil {
		p.logger.Verbose("Closing %s (%s): %v", conn, reason, err)
		return fmt.Errorf("close %s: %w", conn, err)
	}
	p.logger.Verbose("Closed %s (%s)", conn, reason)
	return nil
}

// CloseAll closes every idle connection of one sub-pool, or of all of them
// when fp is nil, and retires the connections currently checked out: they
// are closed as soon as they are checked in. Use it after destructive
// operations (dropping and re-creating a database) that leave every existing
// connection stale.
//
// Idle connections are closed concurrently; the first close error is returned.
func (p *Pool) CloseAll(ctx context.Context, fp *sqlpool.Fingerprint) error {
	var targets []*subPool
	if fp != nil {
		if sp, ok := p.lookup(*fp); ok {
			targets = append(targets, sp)
		}
	} else {
		for _, v := range p.currentRegistry().Items() {
			targets = append(targets, v.(*subPool))
		}
	}

	var doomed []*sqlpool.PooledConnection
	for _, sp := range targets {
		sp.mu.Lock()
		for conn := sp.popIdle(); conn != nil; conn = sp.popIdle() {
			doomed = append(doomed, conn)
			sp.release()
		}
		sp.generation++
		sp.mu.Unlock()
	}

	var g errgroup.Group
	for _, conn := range doomed {
		g.Go(func() error {
			return p.closeConn(conn, sqlpool.CloseReasonCloseAll)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if len(doomed) > 0 {
		p.logger.Verbose("Closed %d idle connection(s) across %d pool(s)", len(doomed), len(targets))
	}
	return ctx.Err()
}

// Reset drops all pool state without closing anything. Inherited handles
// belong to the parent process and must not be used or closed from here.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
}

func (p *Pool) resetLocked() {
	p.registry = cmap.New()
	p.pid = p.pidFn()
}

// Close closes idle connections, retires checked-out ones and makes further
// checkouts fail with sqlpool.ErrPoolClosed.
func (p *Pool) Close(ctx context.Context) error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.CloseAll(ctx, nil)
}

// Stats returns the counters of the sub-pool for fp.
func (p *Pool) Stats(fp sqlpool.Fingerprint) (Stats, bool) {
	sp, ok := p.lookup(fp)
	if !ok {
		return Stats{}, false
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.stats(), true
}

// AllStats returns the counters of every sub-pool, ordered by fingerprint.
func (p *Pool) AllStats() []Stats {
	items := p.currentRegistry().Items()
	out := make([]Stats, 0, len(items))
	for _, v := range items {
		sp := v.(*subPool)
		sp.mu.Lock()
		out = append(out, sp.stats())
		sp.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Fingerprint.String() < out[j].Fingerprint.String()
	})
	return out
}

// currentRegistry returns the registry for this process, resetting first if
// the process identity changed since it was built.
func (p *Pool) currentRegistry() cmap.ConcurrentMap {
	pid := p.pidFn()

	p.mu.RLock()
	if p.pid == pid {
		reg := p.registry
		p.mu.RUnlock()
		return reg
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pid != pid {
		p.logger.Info("Process identity changed (%d -> %d), discarding inherited connection pool", p.pid, pid)
		p.resetLocked()
	}
	return p.registry
}

func (p *Pool) lookup(fp sqlpool.Fingerprint) (*subPool, bool) {
	v, ok := p.currentRegistry().Get(fp.String())
	if !ok {
		return nil, false
	}
	return v.(*subPool), true
}

// subPoolFor returns the sub-pool for fp, creating it on first use.
func (p *Pool) subPoolFor(fp sqlpool.Fingerprint) *subPool {
	reg := p.currentRegistry()
	key := fp.String()
	if v, ok := reg.Get(key); ok {
		return v.(*subPool)
	}
	reg.SetIfAbsent(key, newSubPool(fp, p.opts.MaxPoolSize))
	v, _ := reg.Get(key)
	return v.(*subPool)
}
