// Package cursor runs statements on a pooled connection and recovers from a
// lost connection by retrying once on a replacement.
package cursor

import (
	"context"
	"errors"
	"fmt"

	"github.com/vvka-141/sqlpool/internal/logging"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// Replacer discards a failed connection and checks out a new one for the
// same parameters. *pool.Pool implements it.
type Replacer interface {
	DiscardAndReplace(ctx context.Context, conn *sqlpool.PooledConnection) (*sqlpool.PooledConnection, error)
}

// Option configures a ResilientCursor.
type Option func(*ResilientCursor)

// WithLogger sets the logger. The default discards output.
func WithLogger(l sqlpool.Logger) Option {
	return func(c *ResilientCursor) { c.logger = l }
}

// WithObserver sets the event observer.
func WithObserver(o sqlpool.Observer) Option {
	return func(c *ResilientCursor) { c.observer = o }
}

// ResilientCursor executes statements on a checked-out connection.
//
// Failures are classified by the driver:
//   - integrity violations fail with *sqlpool.IntegrityError after one call
//   - a lost connection is replaced through the Replacer and the statement
//     is sent once more; a second loss fails with *sqlpool.ConnectionLostError
//   - anything else fails with *sqlpool.DatabaseError
//
// The connection can change under the cursor; Conn returns the current one,
// which is what the caller must eventually check in. A ResilientCursor is
// not safe for concurrent use.
type ResilientCursor struct {
	conn       *sqlpool.PooledConnection
	replacer   Replacer
	classifier sqlpool.Classifier
	logger     sqlpool.Logger
	observer   sqlpool.Observer
}

// New creates a cursor over conn.
func New(conn *sqlpool.PooledConnection, replacer Replacer, classifier sqlpool.Classifier, opts ...Option) *ResilientCursor {
	c := &ResilientCursor{
		conn:       conn,
		replacer:   replacer,
		classifier: classifier,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.NewNullLogger()
	}
	if c.observer == nil {
		c.observer = sqlpool.NopObserver{}
	}
	return c
}

// Conn returns the connection the cursor currently runs on.
func (c *ResilientCursor) Conn() *sqlpool.PooledConnection { return c.conn }

// Execute runs a statement that returns no rows.
func (c *ResilientCursor) Execute(ctx context.Context, stmt string, args ...any) (sqlpool.Result, error) {
	return c.run(ctx, func(raw sqlpool.RawConn) (sqlpool.Result, error) {
		return raw.Exec(ctx, stmt, args...)
	})
}

// Query runs a statement and buffers its rows.
func (c *ResilientCursor) Query(ctx context.Context, stmt string, args ...any) (sqlpool.Result, error) {
	return c.run(ctx, func(raw sqlpool.RawConn) (sqlpool.Result, error) {
		return raw.Query(ctx, stmt, args...)
	})
}

// ExecuteMany runs stmt once per argument set and sums the affected rows.
// LastInsertID is the one reported by the final statement.
//
// If the connection is lost part way through, the batch resumes from the
// failing argument set on a replacement connection; sets that already
// succeeded are not sent again. At most one replacement is made per call.
func (c *ResilientCursor) ExecuteMany(ctx context.Context, stmt string, argSets [][]any) (sqlpool.Result, error) {
	var total sqlpool.Result
	if len(argSets) == 0 {
		return total, nil
	}

	replaced := false
	if c.conn.IsBroken() {
		if err := c.replace(ctx, nil); err != nil {
			return total, err
		}
		replaced = true
	}

	for i := 0; i < len(argSets); {
		res, err := c.conn.Raw().Exec(ctx, stmt, argSets[i]...)
		if err == nil {
			total.RowsAffected += res.RowsAffected
			total.LastInsertID = res.LastInsertID
			i++
			continue
		}

		kind := c.classifier.Classify(err)
		if kind != sqlpool.KindConnectionLost || replaced || ctx.Err() != nil {
			return total, c.fail(ctx, kind, err, replaced)
		}

		c.logger.Info("Connection lost at argument set %d of %d on %s, resuming on a fresh connection: %v", i+1, len(argSets), c.conn, err)
		if err := c.replace(ctx, err); err != nil {
			return total, err
		}
		replaced = true
	}
	return total, nil
}

func (c *ResilientCursor) run(ctx context.Context, call func(sqlpool.RawConn) (sqlpool.Result, error)) (sqlpool.Result, error) {
	replaced := false
	if c.conn.IsBroken() {
		if err := c.replace(ctx, nil); err != nil {
			return sqlpool.Result{}, err
		}
		replaced = true
	}

	res, err := call(c.conn.Raw())
	if err == nil {
		return res, nil
	}

	kind := c.classifier.Classify(err)
	if kind != sqlpool.KindConnectionLost || replaced || ctx.Err() != nil {
		return sqlpool.Result{}, c.fail(ctx, kind, err, replaced)
	}

	c.logger.Info("Connection lost on %s, retrying on a fresh connection: %v", c.conn, err)
	if err := c.replace(ctx, err); err != nil {
		return sqlpool.Result{}, err
	}

	res, err = call(c.conn.Raw())
	if err == nil {
		return res, nil
	}
	return sqlpool.Result{}, c.fail(ctx, c.classifier.Classify(err), err, true)
}

// replace swaps the current connection for a new one. cause is the error
// that triggered it, nil when the connection was already known to be broken.
func (c *ResilientCursor) replace(ctx context.Context, cause error) error {
	fp := c.conn.Fingerprint()

	fresh, err := c.replacer.DiscardAndReplace(ctx, c.conn)
	if err != nil {
		c.observer.StatementFailed(fp, sqlpool.KindConnectionLost)
		c.logger.Error("Could not replace lost connection: %v", err)
		if cause == nil {
			return &sqlpool.ConnectionLostError{Err: fmt.Errorf("replacement failed: %w", err)}
		}
		return &sqlpool.ConnectionLostError{Err: fmt.Errorf("%w (replacement failed: %w)", cause, err)}
	}

	c.conn = fresh
	c.observer.StatementRetried(fp, sqlpool.KindConnectionLost)
	return nil
}

// fail wraps err in the taxonomy error for kind.
func (c *ResilientCursor) fail(ctx context.Context, kind sqlpool.ErrorKind, err error, retried bool) error {
	c.observer.StatementFailed(c.conn.Fingerprint(), kind)

	if ctxErr := ctx.Err(); ctxErr != nil {
		// The statement may still be running server side.
		if kind == sqlpool.KindConnectionLost {
			c.conn.MarkBroken()
		}
		if !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return &sqlpool.DatabaseError{Err: err}
	}

	switch kind {
	case sqlpool.KindIntegrity:
		return &sqlpool.IntegrityError{Err: err}
	case sqlpool.KindConnectionLost:
		c.conn.MarkBroken()
		return &sqlpool.ConnectionLostError{Retried: retried, Err: err}
	default:
		return &sqlpool.DatabaseError{Err: err}
	}
}
