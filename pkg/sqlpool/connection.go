package sqlpool

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ConnState is the lifecycle state of a PooledConnection.
type ConnState int32

const (
	StateIdle ConnState = iota
	StateCheckedOut
	StateBroken
)

// String returns a human-readable string representation of the ConnState.
func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCheckedOut:
		return "checked-out"
	case StateBroken:
		return "broken"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// PooledConnection wraps one raw driver connection.
//
// The raw handle is owned by exactly one of {the pool's idle set, one caller}.
// Broken is terminal: a broken connection is closed and never pooled again.
type PooledConnection struct {
	id          uuid.UUID
	raw         RawConn
	params      ConnectionParameters
	fingerprint Fingerprint
	createdAt   time.Time

	state      atomic.Int32
	generation atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

// NewPooledConnection wraps raw as a fresh connection in the Idle state.
func NewPooledConnection(raw RawConn, params ConnectionParameters, fp Fingerprint) *PooledConnection {
	return &PooledConnection{
		id:          uuid.New(),
		raw:         raw,
		params:      params,
		fingerprint: fp,
		createdAt:   time.Now(),
	}
}

// ID uniquely identifies the connection for logs and bookkeeping.
func (c *PooledConnection) ID() uuid.UUID { return c.id }

// Raw returns the driver handle. Only the current owner may use it.
func (c *PooledConnection) Raw() RawConn { return c.raw }

// Params returns the parameters the connection was opened for.
func (c *PooledConnection) Params() ConnectionParameters { return c.params }

// Fingerprint returns the pool key the connection belongs to.
func (c *PooledConnection) Fingerprint() Fingerprint { return c.fingerprint }

// CreatedAt returns when the raw connection was opened.
func (c *PooledConnection) CreatedAt() time.Time { return c.createdAt }

// State returns the current lifecycle state.
func (c *PooledConnection) State() ConnState { return ConnState(c.state.Load()) }

// Generation returns the sub-pool epoch the connection was opened in.
func (c *PooledConnection) Generation() uint64 { return c.generation.Load() }

// SetGeneration records the sub-pool epoch. Called by the pool when it adopts the connection.
func (c *PooledConnection) SetGeneration(g uint64) { c.generation.Store(g) }

// MarkCheckedOut moves an Idle connection to CheckedOut.
// It fails if the connection is Broken.
func (c *PooledConnection) MarkCheckedOut() bool {
	for {
		cur := c.state.Load()
		if ConnState(cur) == StateBroken {
			return false
		}
		if c.state.CompareAndSwap(cur, int32(StateCheckedOut)) {
			return true
		}
	}
}

// MarkIdle moves a CheckedOut connection back to Idle.
// It fails if the connection is Broken.
func (c *PooledConnection) MarkIdle() bool {
	for {
		cur := c.state.Load()
		if ConnState(cur) == StateBroken {
			return false
		}
		if c.state.CompareAndSwap(cur, int32(StateIdle)) {
			return true
		}
	}
}

// MarkBroken flags the connection for disposal. It is irreversible.
func (c *PooledConnection) MarkBroken() {
	c.state.Store(int32(StateBroken))
}

// IsBroken reports whether the connection must be discarded.
func (c *PooledConnection) IsBroken() bool {
	return c.State() == StateBroken
}

// Close marks the connection Broken and closes the raw handle once.
func (c *PooledConnection) Close() error {
	c.MarkBroken()
	c.closeOnce.Do(func() {
		if c.raw != nil {
			c.closeErr = c.raw.Close()
		}
	})
	return c.closeErr
}

// String returns a log-friendly identifier.
func (c *PooledConnection) String() string {
	return fmt.Sprintf("conn[%s pool=%s %s]", c.id.String()[:8], c.fingerprint.Short(), c.State())
}
