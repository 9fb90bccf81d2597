package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// ClassifierFunc adapts a function to sqlpool.ErrorClassifier.
type ClassifierFunc func(err error) bool

// IsTransient calls f(err).
func (f ClassifierFunc) IsTransient(err error) bool { return f(err) }

// ConnectErrorClassifier retries opens that the connection factory marked transient.
// Authentication failures and anything not wrapped in *sqlpool.ConnectError are permanent.
type ConnectErrorClassifier struct{}

// NewConnectErrorClassifier creates the classifier used by the reconnect loop.
func NewConnectErrorClassifier() *ConnectErrorClassifier {
	return &ConnectErrorClassifier{}
}

// IsTransient determines if an open failure is worth another attempt.
func (c *ConnectErrorClassifier) IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var authErr *sqlpool.AuthError
	if errors.As(err, &authErr) {
		return false
	}

	var connErr *sqlpool.ConnectError
	if errors.As(err, &connErr) {
		return connErr.Transient
	}

	return false
}

// NetworkClassifier recognizes driver-agnostic transport failures: refused or
// reset sockets, DNS hiccups, timeouts and their textual forms.
type NetworkClassifier struct{}

// NewNetworkClassifier creates a new network error classifier.
func NewNetworkClassifier() *NetworkClassifier {
	return &NetworkClassifier{}
}

// IsTransient reports whether err looks like a transport failure.
func (c *NetworkClassifier) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	// The caller gave up; retrying would ignore that.
	if errors.Is(err, context.Canceled) {
		return false
	}
	return IsNetworkError(err) || IsConnectionMessage(err)
}

// IsNetworkError checks for network-level errors.
func IsNetworkError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() || dnsErr.Timeout() || dnsErr.IsNotFound
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Err == nil {
			return true
		}
		for _, errno := range []syscall.Errno{
			syscall.ECONNREFUSED,
			syscall.ECONNRESET,
			syscall.ECONNABORTED,
			syscall.ENETUNREACH,
			syscall.EHOSTUNREACH,
			syscall.EPIPE,
			syscall.ENOENT, // unix socket not there yet
		} {
			if errors.Is(opErr.Err, errno) {
				return true
			}
		}
	}

	return false
}

var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"connection timeout",
	"connection failure",
	"no such host",
	"network is unreachable",
	"i/o timeout",
	"broken pipe",
	"too many connections",
	"server closed the connection",
	"unexpected eof",
	"invalid connection",
	"bad connection",
	"server has gone away",
	"lost connection",
}

// IsConnectionMessage matches well-known transport failure texts.
func IsConnectionMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
