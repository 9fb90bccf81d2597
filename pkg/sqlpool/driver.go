package sqlpool

import (
	"context"
	"fmt"
)

// ErrorKind is the coarse classification the pool and cursor act on.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindConnectionLost
	KindIntegrity
)

// String returns a human-readable string representation of the ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case KindOther:
		return "other"
	case KindConnectionLost:
		return "connection-lost"
	case KindIntegrity:
		return "integrity"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// Driver opens raw connections for one database flavour.
// Implementations must be safe for concurrent use.
type Driver interface {
	// Name returns the driver identifier ("mysql", "postgres").
	Name() string

	// Open establishes exactly one raw connection. It does not retry.
	Open(ctx context.Context, params ConnectionParameters) (RawConn, error)

	// Classifier returns the error classifier for this driver.
	Classifier() Classifier
}

// Classifier maps driver errors onto the categories the core understands.
// All code matching lives behind this interface.
type Classifier interface {
	// Classify categorises a statement error.
	Classify(err error) ErrorKind

	// IsAuthFailure reports whether an open error was caused by rejected credentials.
	IsAuthFailure(err error) bool

	// IsTransientOpen reports whether an open error is expected to clear up on retry
	// (refused, timeout, too many connections, server starting up).
	IsTransientOpen(err error) bool
}

// RawConn is one live network connection owned by the pool or by one caller.
// A RawConn is not safe for concurrent use.
type RawConn interface {
	// Exec runs a statement and reports affected rows.
	Exec(ctx context.Context, stmt string, args ...any) (Result, error)

	// Query runs a statement and materialises its rows.
	Query(ctx context.Context, stmt string, args ...any) (Result, error)

	// Close releases the underlying socket.
	Close() error
}

// Result is the outcome of one statement.
type Result struct {
	RowsAffected int64
	LastInsertID int64
	Columns      []string
	Rows         [][]any
}
