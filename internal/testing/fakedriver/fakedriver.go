// Package fakedriver is a scripted, in-memory sqlpool.Driver for unit tests.
//
// Opens and statements succeed by default. Tests queue failures with
// Driver.FailOpens and Conn.FailNext, or install a Hook for finer control.
// Errors are classified by identity: ErrLost is connection-lost, ErrDuplicate
// is an integrity violation, ErrDenied is an authentication failure and
// ErrRefused a transient open failure.
package fakedriver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// Name is the driver identifier.
const Name = "fake"

var (
	ErrLost      = errors.New("fake: server has gone away")
	ErrDuplicate = errors.New("fake: duplicate entry")
	ErrDenied    = errors.New("fake: access denied")
	ErrRefused   = errors.New("fake: connection refused")
	ErrSyntax    = errors.New("fake: syntax error")
	ErrClosed    = errors.New("fake: use of closed connection")
)

// Hook intercepts a statement before the scripted queue is consulted.
// Returning a non-nil error fails the statement.
type Hook func(ctx context.Context, stmt string, args []any) error

// Responder builds the result of a successful Query.
type Responder func(stmt string, args []any) sqlpool.Result

// Call records one statement sent to a Conn.
type Call struct {
	Stmt string
	Args []any
}

// Driver is safe for concurrent use.
type Driver struct {
	mu       sync.Mutex
	openErrs []error
	conns    []*Conn
	params   []sqlpool.ConnectionParameters
	onOpen   func(*Conn)
}

// New creates a driver whose opens succeed until told otherwise.
func New() *Driver {
	return &Driver{}
}

func (d *Driver) Name() string { return Name }

func (d *Driver) Classifier() sqlpool.Classifier { return Classifier{} }

// FailOpens queues errors returned by the next Open calls, one per call.
func (d *Driver) FailOpens(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErrs = append(d.openErrs, errs...)
}

// OnOpen runs fn on every connection the driver opens from now on.
func (d *Driver) OnOpen(fn func(*Conn)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onOpen = fn
}

// Open implements sqlpool.Driver.
func (d *Driver) Open(ctx context.Context, params sqlpool.ConnectionParameters) (sqlpool.RawConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.params = append(d.params, params)
	if len(d.openErrs) > 0 {
		err := d.openErrs[0]
		d.openErrs = d.openErrs[1:]
		d.mu.Unlock()
		return nil, err
	}
	c := &Conn{id: len(d.conns) + 1}
	d.conns = append(d.conns, c)
	onOpen := d.onOpen
	d.mu.Unlock()

	if onOpen != nil {
		onOpen(c)
	}
	return c, nil
}

// Attempts returns how many times Open was called, failed calls included.
func (d *Driver) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.params)
}

// Params returns the parameters of every Open call in order.
func (d *Driver) Params() []sqlpool.ConnectionParameters {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sqlpool.ConnectionParameters(nil), d.params...)
}

// Conns returns every connection opened so far, oldest first.
func (d *Driver) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// Conn returns the n-th opened connection (1-based).
func (d *Driver) Conn(n int) *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n < 1 || n > len(d.conns) {
		panic(fmt.Sprintf("fakedriver: no connection #%d (opened %d)", n, len(d.conns)))
	}
	return d.conns[n-1]
}

// Conn is a scripted raw connection.
type Conn struct {
	id int

	mu       sync.Mutex
	failNext []error
	broken   bool
	closed   bool
	closes   int
	hook     Hook
	respond  Responder
	calls    []Call
}

// ID is the 1-based open order.
func (c *Conn) ID() int { return c.id }

// FailNext queues errors for the next statements, one per call.
func (c *Conn) FailNext(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = append(c.failNext, errs...)
}

// Break makes every further statement fail with ErrLost.
func (c *Conn) Break() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broken = true
}

// SetHook installs h for every further statement.
func (c *Conn) SetHook(h Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hook = h
}

// SetResponder replaces the default single echo row returned by Query.
func (c *Conn) SetResponder(r Responder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.respond = r
}

// Calls returns the statements received, failed ones included.
func (c *Conn) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Statements returns just the statement texts of Calls.
func (c *Conn) Statements() []string {
	calls := c.Calls()
	out := make([]string, len(calls))
	for i, call := range calls {
		out[i] = call.Stmt
	}
	return out
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Closes returns how many times Close was called.
func (c *Conn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *Conn) run(ctx context.Context, stmt string, args []any) error {
	c.mu.Lock()
	c.calls = append(c.calls, Call{Stmt: stmt, Args: args})
	hook := c.hook
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.broken:
		c.mu.Unlock()
		return ErrLost
	}
	var scripted error
	if len(c.failNext) > 0 {
		scripted = c.failNext[0]
		c.failNext = c.failNext[1:]
	}
	c.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, stmt, args); err != nil {
			return err
		}
	}
	if scripted != nil {
		return scripted
	}
	return ctx.Err()
}

// Exec implements sqlpool.RawConn. Successful statements affect one row.
func (c *Conn) Exec(ctx context.Context, stmt string, args ...any) (sqlpool.Result, error) {
	if err := c.run(ctx, stmt, args); err != nil {
		return sqlpool.Result{}, err
	}
	return sqlpool.Result{RowsAffected: 1, LastInsertID: int64(len(c.Calls()))}, nil
}

// Query implements sqlpool.RawConn. Unless a Responder is set it returns a
// single row echoing the arguments.
func (c *Conn) Query(ctx context.Context, stmt string, args ...any) (sqlpool.Result, error) {
	if err := c.run(ctx, stmt, args); err != nil {
		return sqlpool.Result{}, err
	}
	c.mu.Lock()
	respond := c.respond
	c.mu.Unlock()
	if respond != nil {
		return respond(stmt, args), nil
	}
	row := []any{int64(1)}
	row = append(row, args...)
	cols := make([]string, len(row))
	for i := range cols {
		cols[i] = fmt.Sprintf("c%d", i)
	}
	return sqlpool.Result{Columns: cols, Rows: [][]any{row}}, nil
}

// Close implements sqlpool.RawConn.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closes++
	return nil
}

// Classifier classifies the package's sentinel errors.
type Classifier struct{}

func (Classifier) Classify(err error) sqlpool.ErrorKind {
	switch {
	case errors.Is(err, ErrDuplicate):
		return sqlpool.KindIntegrity
	case errors.Is(err, ErrLost), errors.Is(err, ErrClosed):
		return sqlpool.KindConnectionLost
	}
	return sqlpool.KindOther
}

func (Classifier) IsAuthFailure(err error) bool { return errors.Is(err, ErrDenied) }

func (Classifier) IsTransientOpen(err error) bool {
	return errors.Is(err, ErrRefused) || errors.Is(err, ErrLost)
}

var (
	_ sqlpool.Driver     = (*Driver)(nil)
	_ sqlpool.RawConn    = (*Conn)(nil)
	_ sqlpool.Classifier = Classifier{}
)
