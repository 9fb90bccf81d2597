package db

import (
	"context"
	"sync"
	"time"

	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleeper) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

type recordingObserver struct {
	sqlpool.NopObserver

	mu      sync.Mutex
	retries []int
	opened  int
}

func (o *recordingObserver) ConnectRetried(_ sqlpool.Fingerprint, attempt int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries = append(o.retries, attempt)
}

func (o *recordingObserver) ConnectionOpened(sqlpool.Fingerprint, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened++
}

type stubTokenProvider struct {
	mu      sync.Mutex
	token   string
	expires time.Time
	err     error
	calls   int
}

func (s *stubTokenProvider) GetToken(context.Context) (string, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", time.Time{}, s.err
	}
	expires := s.expires
	if expires.IsZero() {
		expires = time.Now().Add(15 * time.Minute)
	}
	return s.token, expires, nil
}

func (s *stubTokenProvider) String() string { return "stub" }

func baseParams() sqlpool.ConnectionParameters {
	return sqlpool.ConnectionParameters{
		Host:     "db.internal",
		Port:     3306,
		Username: "app",
		Password: "secret",
		Database: "shop",
	}
}
