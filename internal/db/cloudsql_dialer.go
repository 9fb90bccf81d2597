package db

import (
	"context"
	"fmt"
	"net"
	"sync"

	"cloud.google.com/go/cloudsqlconn"
)

// Dialer opens transport connections to a Cloud SQL instance.
// *cloudsqlconn.Dialer satisfies it.
type Dialer interface {
	Dial(ctx context.Context, instance string, opts ...cloudsqlconn.DialOption) (net.Conn, error)
	Close() error
}

// lazyDialer creates the Cloud SQL dialer on first use and keeps it for the
// lifetime of the factory. Creating one fetches instance metadata and
// certificates, so it is shared across connections.
type lazyDialer struct {
	mu     sync.Mutex
	dialer Dialer
	newFn  func(ctx context.Context) (Dialer, error)
}

func newCloudSQLDialer(ctx context.Context) (Dialer, error) {
	d, err := cloudsqlconn.NewDialer(ctx, cloudsqlconn.WithIAMAuthN())
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloud SQL dialer: %w", err)
	}
	return d, nil
}

func (l *lazyDialer) get(ctx context.Context) (Dialer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dialer != nil {
		return l.dialer, nil
	}
	d, err := l.newFn(ctx)
	if err != nil {
		return nil, err
	}
	l.dialer = d
	return d, nil
}

// Close releases the Cloud SQL dialer resources, if any were created.
func (l *lazyDialer) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dialer == nil {
		return nil
	}
	err := l.dialer.Close()
	l.dialer = nil
	return err
}
