package sqlpool

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure scenarios.
// These enable callers to distinguish error types using errors.Is().
//
// Example usage:
//
//	conn, err := pool.Checkout(ctx, params)
//	if errors.Is(err, sqlpool.ErrPoolExhausted) {
//	    // Back off or fail the request
//	}
var (
	// ErrInvalidConfig indicates the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnsupportedAuthMethod indicates the requested authentication method is not supported.
	ErrUnsupportedAuthMethod = errors.New("unsupported authentication method")

	// ErrConnectionFailed indicates a database connection could not be established.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrPoolExhausted indicates every slot of a sub-pool is checked out.
	ErrPoolExhausted = errors.New("pool exhausted")

	// ErrPoolClosed indicates the pool was closed.
	ErrPoolClosed = errors.New("pool is closed")

	// ErrConnectionLost indicates an established connection died mid-use.
	ErrConnectionLost = errors.New("connection lost")

	// ErrIntegrity indicates a constraint violation.
	ErrIntegrity = errors.New("integrity violation")

	// ErrDatabase is the catch-all for statement failures.
	ErrDatabase = errors.New("database error")

	// ErrUsage indicates the command line was malformed.
	ErrUsage = errors.New("usage error")

	// ErrApprovalDenied indicates the user declined a destructive operation.
	ErrApprovalDenied = errors.New("approval denied")
)

// ConnectError is a transport-level failure to open a connection.
type ConnectError struct {
	Address   string
	Transient bool
	Err       error
}

func (e *ConnectError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("connect to %s failed (%s): %v", e.Address, kind, e.Err)
}

func (e *ConnectError) Unwrap() []error { return []error{ErrConnectionFailed, e.Err} }

// AuthError is a non-retryable open failure caused by rejected credentials.
type AuthError struct {
	Username string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for user %q: %v", e.Username, e.Err)
}

func (e *AuthError) Unwrap() []error { return []error{ErrConnectionFailed, e.Err} }

// ExhaustedRetriesError is returned once every allowed open attempt failed transiently.
type ExhaustedRetriesError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("no luck even after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedRetriesError) Unwrap() error { return e.LastErr }

// PoolExhaustedError reports a sub-pool with no idle connection and no free slot.
type PoolExhaustedError struct {
	Fingerprint Fingerprint
	MaxSize     int
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("pool %s exhausted: all %d connections checked out", e.Fingerprint.Short(), e.MaxSize)
}

func (e *PoolExhaustedError) Unwrap() error { return ErrPoolExhausted }

// IntegrityError wraps a constraint violation. It is never retried.
type IntegrityError struct {
	Err error
}

func (e *IntegrityError) Error() string { return "integrity error: " + e.Err.Error() }

func (e *IntegrityError) Unwrap() []error { return []error{ErrIntegrity, e.Err} }

// ConnectionLostError wraps a connection-lost failure that survived the single
// transparent retry, or whose replacement connection could not be obtained.
type ConnectionLostError struct {
	Retried bool
	Err     error
}

func (e *ConnectionLostError) Error() string {
	if e.Retried {
		return "connection lost (after reconnect): " + e.Err.Error()
	}
	return "connection lost: " + e.Err.Error()
}

func (e *ConnectionLostError) Unwrap() []error { return []error{ErrConnectionLost, e.Err} }

// DatabaseError is the catch-all for statement failures. It is not retried.
type DatabaseError struct {
	Err error
}

func (e *DatabaseError) Error() string { return "database error: " + e.Err.Error() }

func (e *DatabaseError) Unwrap() []error { return []error{ErrDatabase, e.Err} }

// ExitCodeForError returns the appropriate exit code for an error.
// Returns ExitSuccess (0) for nil errors, semantic codes for known errors,
// and ExitGeneralError (1) for unclassified errors.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var authErr *AuthError
	switch {
	case errors.Is(err, ErrUsage), isCobraUsageError(err):
		return ExitUsageError
	case errors.Is(err, ErrApprovalDenied):
		return ExitApprovalDenied
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrUnsupportedAuthMethod):
		return ExitConfigError
	case errors.As(err, &authErr):
		return ExitAuthError
	case errors.Is(err, ErrPoolExhausted):
		return ExitPoolExhausted
	case errors.Is(err, ErrConnectionFailed), errors.Is(err, ErrConnectionLost):
		return ExitConnectionError
	case errors.Is(err, ErrIntegrity):
		return ExitIntegrityError
	case errors.Is(err, ErrDatabase):
		return ExitExecutionFailed
	}

	// Check for common connection error patterns
	errStr := err.Error()
	if strings.Contains(errStr, "failed to connect") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") {
		return ExitConnectionError
	}

	return ExitGeneralError
}

// isCobraUsageError recognises the argument and flag errors cobra returns.
func isCobraUsageError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{
		"unknown flag",
		"unknown shorthand flag",
		"unknown command",
		"accepts ",
		"required flag",
		"invalid argument",
		"flag needs an argument",
		"missing required argument",
	} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}
