package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

func TestConnectErrorClassifier(t *testing.T) {
	c := NewConnectErrorClassifier()

	tests := []struct {
		name        string
		err         error
		isTransient bool
	}{
		{"nil", nil, false},
		{"transient connect", &sqlpool.ConnectError{Transient: true, Err: io.EOF}, true},
		{"permanent connect", &sqlpool.ConnectError{Transient: false, Err: io.EOF}, false},
		{"wrapped transient", fmt.Errorf("open: %w", &sqlpool.ConnectError{Transient: true, Err: io.EOF}), true},
		{"auth", &sqlpool.AuthError{Username: "app", Err: errors.New("denied")}, false},
		{"plain network error", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.isTransient, c.IsTransient(tt.err))
		})
	}
}

func TestNetworkClassifier(t *testing.T) {
	c := NewNetworkClassifier()

	tests := []struct {
		name        string
		err         error
		isTransient bool
	}{
		{"nil", nil, false},
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, true},
		{"reset", &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}, true},
		{"unreachable", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.EHOSTUNREACH}, true},
		{"missing socket", &net.OpError{Op: "dial", Net: "unix", Err: syscall.ENOENT}, true},
		{"dns timeout", &net.DNSError{Err: "timeout", Name: "db", IsTimeout: true}, true},
		{"eof", io.EOF, true},
		{"unexpected eof", fmt.Errorf("read packet: %w", io.ErrUnexpectedEOF), true},
		{"gone away text", errors.New("MySQL server has gone away"), true},
		{"bad conn text", errors.New("driver: bad connection"), true},
		{"cancelled", context.Canceled, false},
		{"syntax", errors.New("You have an error in your SQL syntax"), false},
		{"permission", &net.OpError{Op: "dial", Net: "unix", Err: syscall.EACCES}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.isTransient, c.IsTransient(tt.err))
		})
	}
}

func TestClassifierFunc(t *testing.T) {
	sentinel := errors.New("retry me")
	c := ClassifierFunc(func(err error) bool { return errors.Is(err, sentinel) })

	assert.True(t, c.IsTransient(fmt.Errorf("wrapped: %w", sentinel)))
	assert.False(t, c.IsTransient(errors.New("other")))
}
